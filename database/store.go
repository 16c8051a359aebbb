package database

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/gov-dx-sandbox/audit-ledger/models"
)

// ErrTailConflict is returned by AppendIfTail when the chain tail moved
// between the caller reading it and the insert (another append won the
// race). The appender retries against the updated tail.
var ErrTailConflict = errors.New("ledger tail conflict")

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("audit record not found")

// LedgerFilters represents filter criteria for ledger queries.
type LedgerFilters struct {
	ActorID      *string
	Actions      []string
	SubjectTypes []string
	Outcome      *string
	From         *time.Time
	To           *time.Time
	// Search is matched against actor name, subject label and username.
	Search string

	// Ascending orders by sequence ascending; default is descending.
	Ascending bool
	Limit     int
	Offset    int
}

// LedgerStats holds the aggregate counters computed over a filtered window.
type LedgerStats struct {
	Total           int64            `json:"total"`
	Failed          int64            `json:"failed"`
	DistinctActors  int64            `json:"distinctActors"`
	Today           int64            `json:"today"`
	ActionBreakdown map[string]int64 `json:"actionBreakdown"`
}

// LedgerStore is the persistence contract for the append-only ledger.
// The store exclusively owns AuditRecord persistence; records are only
// ever inserted, never updated or deleted.
type LedgerStore interface {
	// AppendIfTail atomically inserts record only if the current chain
	// tail's hash equals expectedPrevHash (chain.Genesis for an empty
	// ledger). Returns ErrTailConflict when the precondition fails.
	AppendIfTail(ctx context.Context, record *models.AuditRecord, expectedPrevHash string) error

	// Tail returns the record with the highest sequence, or (nil, nil)
	// when the ledger is empty. A store failure is returned as an error,
	// never silently treated as an empty ledger.
	Tail(ctx context.Context) (*models.AuditRecord, error)

	// FindByEventID looks up a record by its idempotency key. Returns
	// (nil, nil) when no record with that key exists.
	FindByEventID(ctx context.Context, eventID uuid.UUID) (*models.AuditRecord, error)

	// FindByID returns a single record or ErrNotFound.
	FindByID(ctx context.Context, id uuid.UUID) (*models.AuditRecord, error)

	// Query returns records matching the filters plus the total match
	// count, ordered by sequence.
	Query(ctx context.Context, filters *LedgerFilters) ([]models.AuditRecord, int64, error)

	// Timeline returns the full history of one subject, ordered by
	// sequence ascending.
	Timeline(ctx context.Context, subjectType, subjectID string) ([]models.AuditRecord, error)

	// Stats computes aggregate counters over the given window. The
	// "today" counter is relative to now in UTC.
	Stats(ctx context.Context, from, to *time.Time, now time.Time) (*LedgerStats, error)

	// Range returns up to limit records with sequence >= fromSequence,
	// ordered ascending. Used by the verifier for batch scans.
	Range(ctx context.Context, fromSequence uint64, limit int) ([]models.AuditRecord, error)
}
