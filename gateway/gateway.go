// Package gateway is the narrow interface through which collaborators
// emit audit events. Submit is fire-and-forget: the caller is performing
// an unrelated business action and must never be delayed or failed by
// audit plumbing.
package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/gov-dx-sandbox/audit-ledger/models"
	"github.com/gov-dx-sandbox/audit-ledger/services"
)

const (
	defaultEnqueueTimeout  = 2 * time.Second
	defaultFallbackTimeout = 3 * time.Second
)

// EventField is the stream entry key that carries the serialized event.
const EventField = "event"

// Recorder is the interface collaborators depend on. Submit never
// returns an error; all failures are handled internally.
type Recorder interface {
	Submit(ctx context.Context, event *models.AuditEvent)
}

// Publisher is the durable queue's producer side (satisfied by
// redis.QueueClient).
type Publisher interface {
	PublishAuditEvent(ctx context.Context, stream string, values map[string]interface{}) (string, error)
}

// Gateway enqueues events onto the durable stream and falls back to a
// synchronous append through the shared chain appender when the queue is
// unreachable. The fallback goes through the same Appender instance the
// stream consumer uses, never a parallel write path.
type Gateway struct {
	queue           Publisher
	appender        *services.Appender
	stream          string
	enqueueTimeout  time.Duration
	fallbackTimeout time.Duration
}

// NewGateway creates a gateway publishing to the given stream. A nil
// queue is allowed; every submission then takes the direct append path.
func NewGateway(queue Publisher, appender *services.Appender, stream string) *Gateway {
	return &Gateway{
		queue:           queue,
		appender:        appender,
		stream:          stream,
		enqueueTimeout:  defaultEnqueueTimeout,
		fallbackTimeout: defaultFallbackTimeout,
	}
}

// Submit accepts an event for recording. It assigns a missing
// idempotency key, attempts the durable enqueue, and on enqueue failure
// performs a best-effort synchronous append. Errors are logged, never
// propagated to the triggering business operation.
func (g *Gateway) Submit(ctx context.Context, event *models.AuditEvent) {
	if event == nil {
		return
	}
	if event.EventID == uuid.Nil {
		event.EventID = uuid.New()
	}

	if g.queue != nil {
		payload, err := json.Marshal(event)
		if err != nil {
			slog.Error("Failed to serialize audit event, dropping enqueue", "error", err, "event_id", event.EventID)
		} else {
			enqueueCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), g.enqueueTimeout)
			defer cancel()

			_, err := g.queue.PublishAuditEvent(enqueueCtx, g.stream, map[string]interface{}{
				EventField: string(payload),
			})
			if err == nil {
				return
			}
			slog.Warn("Audit queue unreachable, falling back to direct append",
				"error", err,
				"event_id", event.EventID,
				"stream", g.stream)
		}
	}

	// Degraded mode: append synchronously through the shared appender.
	// Detached from the caller's context so a cancelled business request
	// cannot abandon an admitted append.
	fallbackCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), g.fallbackTimeout)
	defer cancel()

	if _, err := g.appender.Append(fallbackCtx, event); err != nil {
		// The one case where an audit event can be lost. Loud, but the
		// business operation is unaffected.
		slog.Error("Audit event lost: fallback append failed",
			"error", err,
			"event_id", event.EventID,
			"action", event.Action,
			"subject_type", event.Subject.Type,
			"subject_id", event.Subject.ID)
	}
}

// noopRecorder implements Recorder but does nothing.
// Used when the audit ledger is not configured or disabled.
type noopRecorder struct{}

func (noopRecorder) Submit(ctx context.Context, event *models.AuditEvent) {}

// NewRecorder returns the gateway when a queue or appender is available,
// or a no-op recorder when auditing is disabled. Collaborators can keep
// calling Submit either way.
func NewRecorder(queue Publisher, appender *services.Appender, stream string) Recorder {
	if appender == nil {
		slog.Info("Audit ledger disabled, using no-op recorder")
		return noopRecorder{}
	}
	return NewGateway(queue, appender, stream)
}
