package consumer

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/gov-dx-sandbox/audit-ledger/gateway"
	"github.com/gov-dx-sandbox/audit-ledger/models"
	"github.com/gov-dx-sandbox/audit-ledger/services"
)

// ChainEventProcessor funnels queued messages into the chain appender.
// It is the glue between the at-least-once queue and the exactly-once
// ledger: the appender's idempotency check absorbs redeliveries.
type ChainEventProcessor struct {
	appender *services.Appender
}

// NewChainEventProcessor creates a new processor over the shared appender.
func NewChainEventProcessor(appender *services.Appender) *ChainEventProcessor {
	return &ChainEventProcessor{appender: appender}
}

// ProcessAuditEvent parses a stream message and appends it to the chain.
// A malformed payload is a permanent failure; returning the error lets
// the redelivery/dead-letter policy deal with it rather than losing the
// message silently.
func (p *ChainEventProcessor) ProcessAuditEvent(ctx context.Context, values map[string]interface{}) error {
	raw, ok := values[gateway.EventField].(string)
	if !ok || raw == "" {
		return fmt.Errorf("missing required field: %s", gateway.EventField)
	}

	var event models.AuditEvent
	if err := json.Unmarshal([]byte(raw), &event); err != nil {
		return fmt.Errorf("failed to parse audit event payload: %w", err)
	}

	if _, err := p.appender.Append(ctx, &event); err != nil {
		return fmt.Errorf("failed to append event %s to ledger: %w", event.EventID, err)
	}
	return nil
}
