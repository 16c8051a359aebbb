package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/gov-dx-sandbox/audit-ledger/chain"
	"github.com/gov-dx-sandbox/audit-ledger/database"
	"github.com/gov-dx-sandbox/audit-ledger/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAppender(t *testing.T) (*Appender, database.LedgerStore) {
	db := SetupSQLiteTestDB(t)
	store := database.NewGormLedgerStore(db)
	return NewAppender(store), store
}

func newTestEvent(action, subjectType, subjectID string) *models.AuditEvent {
	actorID := "actor-1"
	return &models.AuditEvent{
		EventID:  uuid.New(),
		Actor:    models.Actor{ID: &actorID},
		Action:   action,
		Subject:  models.Subject{Type: subjectType, ID: subjectID},
		NewValue: json.RawMessage(`{"state":"` + action + `"}`),
		Outcome:  models.OutcomeSuccess,
	}
}

func TestAppender_Append(t *testing.T) {
	appender, _ := newTestAppender(t)
	ctx := context.Background()

	t.Run("GenesisRecord", func(t *testing.T) {
		record, err := appender.Append(ctx, newTestEvent("CREATE", "INVOICE", "X1"))
		require.NoError(t, err)

		assert.Equal(t, uint64(1), record.Sequence)
		assert.Equal(t, chain.Genesis, record.PrevHash)
		assert.Equal(t, chain.RecordHash(record), record.Hash)
		assert.False(t, record.Timestamp.IsZero())
	})

	t.Run("ChainLink", func(t *testing.T) {
		first, err := appender.Append(ctx, newTestEvent("UPDATE", "INVOICE", "X1"))
		require.NoError(t, err)
		second, err := appender.Append(ctx, newTestEvent("APPROVE", "INVOICE", "X1"))
		require.NoError(t, err)

		assert.Equal(t, first.Sequence+1, second.Sequence)
		assert.Equal(t, first.Hash, second.PrevHash)
	})

	t.Run("InvalidEventRejected", func(t *testing.T) {
		event := newTestEvent("CREATE", "INVOICE", "X2")
		event.Outcome = "UNKNOWN"
		_, err := appender.Append(ctx, event)
		require.Error(t, err)
		assert.True(t, models.IsValidationError(err))
	})
}

func TestAppender_Idempotency(t *testing.T) {
	appender, store := newTestAppender(t)
	ctx := context.Background()

	event := newTestEvent("CREATE", "USER", "u-1")

	first, err := appender.Append(ctx, event)
	require.NoError(t, err)

	// Simulated queue redelivery of the same idempotency key.
	second, err := appender.Append(ctx, event)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.Sequence, second.Sequence)
	assert.Equal(t, first.Hash, second.Hash)

	_, total, err := store.Query(ctx, &database.LedgerFilters{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
}

func TestAppender_ConcurrentAppends(t *testing.T) {
	appender, store := newTestAppender(t)
	ctx := context.Background()

	const k = 25
	var wg sync.WaitGroup
	errs := make([]error, k)

	for i := 0; i < k; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			event := newTestEvent("CREATE", "DOCUMENT", fmt.Sprintf("d-%d", i))
			_, errs[i] = appender.Append(ctx, event)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		require.NoError(t, err, "append %d failed", i)
	}

	records, total, err := store.Query(ctx, &database.LedgerFilters{Ascending: true, Limit: k})
	require.NoError(t, err)
	require.Equal(t, int64(k), total)

	// K distinct sequence values with no gaps, no shared prevHash.
	sequences := make([]uint64, 0, k)
	prevHashes := make(map[string]struct{}, k)
	for i := range records {
		sequences = append(sequences, records[i].Sequence)
		prevHashes[records[i].PrevHash] = struct{}{}
	}
	sort.Slice(sequences, func(a, b int) bool { return sequences[a] < sequences[b] })
	for i, seq := range sequences {
		assert.Equal(t, uint64(i+1), seq)
	}
	assert.Len(t, prevHashes, k)

	// The resulting chain must be fully linked.
	for i := 1; i < len(records); i++ {
		assert.Equal(t, records[i-1].Hash, records[i].PrevHash)
	}
}
