package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/gov-dx-sandbox/audit-ledger/config"
	"github.com/gov-dx-sandbox/audit-ledger/consumer"
	"github.com/gov-dx-sandbox/audit-ledger/database"
	"github.com/gov-dx-sandbox/audit-ledger/gateway"
	"github.com/gov-dx-sandbox/audit-ledger/handlers"
	"github.com/gov-dx-sandbox/audit-ledger/middleware"
	"github.com/gov-dx-sandbox/audit-ledger/models"
	"github.com/gov-dx-sandbox/audit-ledger/redis"
	"github.com/gov-dx-sandbox/audit-ledger/services"
)

func main() {
	// Load .env.local for local development; system env wins in deployment.
	if err := godotenv.Load(".env.local"); err == nil {
		slog.Info("Loaded environment from .env.local")
	}

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	// Enum vocabularies (actions, subject types)
	enums, err := config.LoadEnums(os.Getenv("ENUMS_CONFIG_PATH"))
	if err != nil {
		slog.Error("Failed to load enum configuration", "error", err)
		os.Exit(1)
	}
	models.SetEnumConfig(enums)

	// Ledger store
	db, err := database.ConnectGormDB(database.NewDatabaseConfig())
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	store := database.NewGormLedgerStore(db)

	// Core services: one appender instance shared by every write path.
	appender := services.NewAppender(store)
	queryService := services.NewQueryService(store)
	verifier := services.NewVerifier(store)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Ingestion queue (optional: without REDIS_ADDR every submission
	// takes the synchronous fallback path through the same appender).
	streamName := config.GetEnvOrDefault("AUDIT_STREAM", consumer.DefaultStreamName)
	var queue *redis.QueueClient
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		queue, err = redis.NewClient(&redis.Config{
			Addr:     addr,
			Username: os.Getenv("REDIS_USERNAME"),
			Password: os.Getenv("REDIS_PASSWORD"),
			UseTLS:   os.Getenv("REDIS_TLS") == "true",
		})
		if err != nil {
			slog.Error("Failed to connect to Redis, continuing without queue", "error", err)
			queue = nil
		}
	} else {
		slog.Info("REDIS_ADDR not set, submissions use the direct append path")
	}

	var publisher gateway.Publisher
	if queue != nil {
		defer queue.Close()

		streamConsumer, err := consumer.NewStreamConsumer(queue, consumer.NewChainEventProcessor(appender), streamName)
		if err != nil {
			slog.Error("Failed to start stream consumer", "error", err)
			os.Exit(1)
		}
		go streamConsumer.Start(ctx)

		publisher = queue
	}

	recorder := gateway.NewRecorder(publisher, appender, streamName)

	// HTTP API
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	})
	handlers.NewLedgerHandler(queryService, verifier).Register(mux)
	handlers.NewIngestHandler(recorder).Register(mux)

	port := config.GetEnvOrDefault("PORT", "3001")
	server := &http.Server{
		Addr:         ":" + port,
		Handler:      middleware.CORSMiddleware()(mux),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("Audit ledger starting", "port", port, "stream", streamName)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()

	slog.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server shutdown failed", "error", err)
	}
}
