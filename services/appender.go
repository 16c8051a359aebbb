package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gov-dx-sandbox/audit-ledger/chain"
	"github.com/gov-dx-sandbox/audit-ledger/database"
	"github.com/gov-dx-sandbox/audit-ledger/models"
)

const defaultMaxAppendRetries = 5

// Appender is the only code path permitted to compute a record hash and
// write to the ledger. Both the stream consumer and the gateway's
// synchronous fallback must go through the same Appender instance so
// that no two code paths ever read-then-write the tail independently.
//
// Serialization is enforced twice: the mutex gives true single-writer
// execution in process, and the store's AppendIfTail precondition
// rejects a stale tail if another process appended concurrently.
type Appender struct {
	store      database.LedgerStore
	mu         sync.Mutex
	maxRetries int
	now        func() time.Time
}

// NewAppender creates an appender over the given store.
func NewAppender(store database.LedgerStore) *Appender {
	return &Appender{
		store:      store,
		maxRetries: defaultMaxAppendRetries,
		now:        time.Now,
	}
}

// Append records one event at the current chain tail and returns the
// stored record. Re-appending an already-recorded idempotency key (queue
// redelivery) returns the existing record unchanged. A store failure is
// returned to the caller, never silently swallowed; the caller decides
// the retry policy.
func (a *Appender) Append(ctx context.Context, event *models.AuditEvent) (*models.AuditRecord, error) {
	if err := event.Validate(); err != nil {
		return nil, err
	}

	// Idempotency check: a redelivered event is already on the chain.
	existing, err := a.store.FindByEventID(ctx, event.EventID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	for attempt := 1; attempt <= a.maxRetries; attempt++ {
		tail, err := a.store.Tail(ctx)
		if err != nil {
			// A tail lookup failure aborts the append; it is never treated
			// as an empty ledger.
			return nil, err
		}

		prevHash := chain.Genesis
		var sequence uint64 = 1
		if tail != nil {
			prevHash = tail.Hash
			sequence = tail.Sequence + 1
		}

		record := models.NewRecordFromEvent(event)
		record.Sequence = sequence
		record.PrevHash = prevHash
		record.Timestamp = a.now().UTC().Truncate(time.Microsecond)
		record.Hash = chain.ComputeHash(prevHash, chain.CanonicalPayload(record))

		err = a.store.AppendIfTail(ctx, record, prevHash)
		if err == nil {
			return record, nil
		}
		if !errors.Is(err, database.ErrTailConflict) {
			return nil, err
		}

		// Lost the tail race. If the conflict was this very event racing
		// its own redelivery, the record now exists; return it.
		existing, lookupErr := a.store.FindByEventID(ctx, event.EventID)
		if lookupErr == nil && existing != nil {
			return existing, nil
		}

		slog.Warn("Chain tail conflict, retrying append",
			"attempt", attempt,
			"max_attempts", a.maxRetries,
			"event_id", event.EventID)
	}

	// Exhausted retries: an operational anomaly under correct
	// single-writer discipline.
	return nil, fmt.Errorf("%w: gave up after %d attempts for event %s",
		ErrContention, a.maxRetries, event.EventID)
}
