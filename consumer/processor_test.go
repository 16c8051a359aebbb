package consumer

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/gov-dx-sandbox/audit-ledger/database"
	"github.com/gov-dx-sandbox/audit-ledger/gateway"
	"github.com/gov-dx-sandbox/audit-ledger/models"
	"github.com/gov-dx-sandbox/audit-ledger/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupProcessor(t *testing.T) (*ChainEventProcessor, database.LedgerStore) {
	db := services.SetupSQLiteTestDB(t)
	store := database.NewGormLedgerStore(db)
	return NewChainEventProcessor(services.NewAppender(store)), store
}

func queuedValues(t *testing.T, event *models.AuditEvent) map[string]interface{} {
	t.Helper()
	payload, err := json.Marshal(event)
	require.NoError(t, err)
	return map[string]interface{}{gateway.EventField: string(payload)}
}

func queuedEvent() *models.AuditEvent {
	actorID := "actor-1"
	return &models.AuditEvent{
		EventID: uuid.New(),
		Actor:   models.Actor{ID: &actorID},
		Action:  "UPDATE",
		Subject: models.Subject{Type: "INVOICE", ID: "X1"},
		Outcome: models.OutcomeSuccess,
	}
}

func TestChainEventProcessor_ProcessAuditEvent(t *testing.T) {
	ctx := context.Background()

	t.Run("AppendsQueuedEvent", func(t *testing.T) {
		processor, store := setupProcessor(t)
		event := queuedEvent()

		require.NoError(t, processor.ProcessAuditEvent(ctx, queuedValues(t, event)))

		record, err := store.FindByEventID(ctx, event.EventID)
		require.NoError(t, err)
		require.NotNil(t, record)
		assert.Equal(t, "UPDATE", record.Action)
		assert.Equal(t, uint64(1), record.Sequence)
	})

	t.Run("RedeliveryYieldsSingleRecord", func(t *testing.T) {
		processor, store := setupProcessor(t)
		event := queuedEvent()
		values := queuedValues(t, event)

		require.NoError(t, processor.ProcessAuditEvent(ctx, values))
		// At-least-once delivery: the same message arrives again.
		require.NoError(t, processor.ProcessAuditEvent(ctx, values))

		_, total, err := store.Query(ctx, &database.LedgerFilters{})
		require.NoError(t, err)
		assert.Equal(t, int64(1), total)
	})

	t.Run("MissingPayloadIsError", func(t *testing.T) {
		processor, _ := setupProcessor(t)
		err := processor.ProcessAuditEvent(ctx, map[string]interface{}{})
		assert.Error(t, err)
	})

	t.Run("MalformedPayloadIsError", func(t *testing.T) {
		processor, _ := setupProcessor(t)
		err := processor.ProcessAuditEvent(ctx, map[string]interface{}{
			gateway.EventField: "{not json",
		})
		assert.Error(t, err)
	})

	t.Run("InvalidEventIsError", func(t *testing.T) {
		processor, _ := setupProcessor(t)
		event := queuedEvent()
		event.Action = ""
		err := processor.ProcessAuditEvent(ctx, queuedValues(t, event))
		assert.Error(t, err)
	})
}
