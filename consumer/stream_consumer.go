package consumer

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	redisclient "github.com/redis/go-redis/v9"

	"github.com/gov-dx-sandbox/audit-ledger/redis"
)

const (
	// DefaultStreamName is the ingestion stream collaborators publish to.
	DefaultStreamName = "audit-ledger-events"

	groupName      = "ledger-appenders"
	dlqSuffix      = ":dlq"
	maxRetry       = 5
	blockTimeout   = 5 * time.Second
	pendingTimeout = 1 * time.Minute // time before a message is considered stuck
)

// EventProcessor processes one queued message. Returning an error leaves
// the message pending so the queue redelivers it.
type EventProcessor interface {
	ProcessAuditEvent(ctx context.Context, values map[string]interface{}) error
}

// StreamConsumer drains the ingestion stream into the chain appender.
// It reads one message at a time: the consumer pool is deliberately
// constrained to a single in-flight message so the single-writer
// discipline of the appender is preserved end to end.
type StreamConsumer struct {
	client       *redis.QueueClient
	processor    EventProcessor
	stream       string
	dlqStream    string
	consumerName string
}

// NewStreamConsumer creates a consumer and ensures the stream group exists.
func NewStreamConsumer(client *redis.QueueClient, processor EventProcessor, stream string) (*StreamConsumer, error) {
	if stream == "" {
		stream = DefaultStreamName
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := client.EnsureStreamGroupExists(ctx, stream, groupName); err != nil {
		return nil, fmt.Errorf("failed to ensure consumer group: %w", err)
	}

	hostname, err := os.Hostname()
	if err != nil || hostname == "" {
		hostname = "audit-ledger"
	}

	slog.Info("Consumer group ensured", "group", groupName, "stream", stream)

	return &StreamConsumer{
		client:       client,
		processor:    processor,
		stream:       stream,
		dlqStream:    stream + dlqSuffix,
		consumerName: hostname,
	}, nil
}

// Start consumes events in a blocking loop until ctx is cancelled.
// Run it in a goroutine from main.
func (c *StreamConsumer) Start(ctx context.Context) {
	slog.Info("Starting audit stream consumer", "stream", c.stream, "consumer", c.consumerName)
	for {
		select {
		case <-ctx.Done():
			slog.Info("Audit stream consumer shutting down")
			return
		default:
			// First reclaim any stuck messages, then read new ones.
			c.claimPendingMessages(ctx)
			c.readNewMessages(ctx)
		}
	}
}

// readNewMessages reads and processes never-delivered messages.
func (c *StreamConsumer) readNewMessages(ctx context.Context) {
	msgs, err := c.client.ReadFromStreamGroup(ctx, c.stream, groupName, c.consumerName, 1, blockTimeout)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		slog.Error("Failed to read from audit stream", "error", err)
		time.Sleep(1 * time.Second) // avoid spamming on repeated errors
		return
	}

	for _, msg := range msgs {
		c.processMessage(ctx, msg, 1)
	}
}

// claimPendingMessages takes over messages that were delivered but never
// acknowledged (processing failed or the consumer crashed) once they
// have been idle long enough. The pending entry's retry count drives the
// dead-letter decision.
func (c *StreamConsumer) claimPendingMessages(ctx context.Context) {
	pending, err := c.client.GetPendingMessages(ctx, c.stream, groupName, c.consumerName, 10)
	if err != nil {
		if ctx.Err() == nil {
			slog.Error("Failed to check pending audit messages", "error", err)
		}
		return
	}

	for _, p := range pending {
		if p.Idle < pendingTimeout {
			continue
		}

		slog.Warn("Re-claiming idle audit message", "message_id", p.ID, "retries", p.RetryCount)

		claimed, err := c.client.ClaimMessages(ctx, c.stream, groupName, c.consumerName, pendingTimeout, []string{p.ID})
		if err != nil {
			slog.Error("Failed to claim audit message", "message_id", p.ID, "error", err)
			continue
		}

		for _, msg := range claimed {
			c.processMessage(ctx, msg, p.RetryCount)
		}
	}
}

// processMessage processes and acknowledges one message. deliveryCount
// comes from the pending-entry retry counter for reclaimed messages and
// is 1 for first deliveries.
func (c *StreamConsumer) processMessage(ctx context.Context, msg redisclient.XMessage, deliveryCount int64) {
	err := c.processor.ProcessAuditEvent(ctx, msg.Values)
	if err == nil {
		if ackErr := c.client.AckMessage(ctx, c.stream, groupName, msg.ID); ackErr != nil {
			slog.Error("Failed to ack audit message", "message_id", msg.ID, "error", ackErr)
		}
		return
	}

	slog.Warn("Failed to process audit message",
		"message_id", msg.ID,
		"attempt", deliveryCount,
		"error", err)

	if deliveryCount <= maxRetry {
		// Not acked: the message stays pending and is redelivered after
		// the idle timeout.
		return
	}

	// Retry budget exhausted: dead-letter the message. An audit gap is a
	// compliance-relevant event and must not be silent.
	slog.Error("Audit message exhausted retries, moving to dead-letter stream",
		"message_id", msg.ID,
		"attempts", deliveryCount,
		"dlq_stream", c.dlqStream,
		"error", err)

	dlqValues := make(map[string]interface{}, len(msg.Values)+3)
	for k, v := range msg.Values {
		dlqValues[k] = v
	}
	dlqValues["_error"] = err.Error()
	dlqValues["_original_id"] = msg.ID
	dlqValues["_failed_at"] = time.Now().UTC().Format(time.RFC3339)

	if _, dlqErr := c.client.PublishAuditEvent(ctx, c.dlqStream, dlqValues); dlqErr != nil {
		// Failed to process AND failed to dead-letter. Don't ack; the
		// message will be redelivered and dead-lettering retried.
		slog.Error("Failed to move audit message to dead-letter stream",
			"message_id", msg.ID, "error", dlqErr)
		return
	}

	if ackErr := c.client.AckMessage(ctx, c.stream, groupName, msg.ID); ackErr != nil {
		slog.Error("Failed to ack audit message after dead-lettering",
			"message_id", msg.ID, "error", ackErr)
	}
}
