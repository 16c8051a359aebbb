package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/gov-dx-sandbox/audit-ledger/chain"
	"github.com/gov-dx-sandbox/audit-ledger/models"
	"gorm.io/gorm"
)

// GormLedgerStore implements LedgerStore using GORM (works with SQLite or
// PostgreSQL).
type GormLedgerStore struct {
	db *gorm.DB
}

// NewGormLedgerStore creates a new store (works with SQLite or PostgreSQL).
func NewGormLedgerStore(db *gorm.DB) *GormLedgerStore {
	// Auto-migrate the audit_records table
	if err := db.AutoMigrate(&models.AuditRecord{}); err != nil {
		// Log migration error but don't fail store creation.
		// The actual database operation will fail later if the schema is wrong.
		slog.Warn("Failed to auto-migrate audit_records table", "error", err)
	}
	return &GormLedgerStore{db: db}
}

// AppendIfTail atomically inserts record if the chain tail still matches
// expectedPrevHash. The precondition is re-checked inside a transaction
// and additionally guarded by the unique indexes on sequence and
// prev_hash, so a lost race surfaces as ErrTailConflict rather than a
// forked chain.
func (s *GormLedgerStore) AppendIfTail(ctx context.Context, record *models.AuditRecord, expectedPrevHash string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var tail models.AuditRecord
		currentHash := chain.Genesis
		err := tx.Order("sequence DESC").First(&tail).Error
		switch {
		case err == nil:
			currentHash = tail.Hash
		case errors.Is(err, gorm.ErrRecordNotFound):
			// Empty ledger, genesis append.
		default:
			return fmt.Errorf("failed to read chain tail: %w", err)
		}

		if currentHash != expectedPrevHash {
			return fmt.Errorf("%w: tail is %s, expected %s", ErrTailConflict, currentHash, expectedPrevHash)
		}

		if err := tx.Create(record).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				// A concurrent append committed between our tail read and
				// the insert.
				return fmt.Errorf("%w: %v", ErrTailConflict, err)
			}
			return fmt.Errorf("failed to insert audit record: %w", err)
		}
		return nil
	})
}

// Tail returns the newest record, or (nil, nil) for an empty ledger.
func (s *GormLedgerStore) Tail(ctx context.Context) (*models.AuditRecord, error) {
	var record models.AuditRecord
	err := s.db.WithContext(ctx).Order("sequence DESC").First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read chain tail: %w", err)
	}
	return &record, nil
}

// FindByEventID looks up a record by idempotency key.
func (s *GormLedgerStore) FindByEventID(ctx context.Context, eventID uuid.UUID) (*models.AuditRecord, error) {
	var record models.AuditRecord
	err := s.db.WithContext(ctx).Where("event_id = ?", eventID).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to look up record by event ID: %w", err)
	}
	return &record, nil
}

// FindByID returns a single record by primary key.
func (s *GormLedgerStore) FindByID(ctx context.Context, id uuid.UUID) (*models.AuditRecord, error) {
	var record models.AuditRecord
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to retrieve audit record: %w", err)
	}
	return &record, nil
}

// Query retrieves records with optional filtering and pagination.
func (s *GormLedgerStore) Query(ctx context.Context, filters *LedgerFilters) ([]models.AuditRecord, int64, error) {
	var records []models.AuditRecord
	var total int64

	query := s.applyFilters(s.db.WithContext(ctx).Model(&models.AuditRecord{}), filters)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count audit records: %w", err)
	}

	limit := filters.Limit
	if limit <= 0 {
		limit = 100 // default
	}
	if limit > 1000 {
		limit = 1000 // max
	}

	order := "sequence DESC"
	if filters.Ascending {
		order = "sequence ASC"
	}

	if err := query.Order(order).Limit(limit).Offset(filters.Offset).Find(&records).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to retrieve audit records: %w", err)
	}

	if records == nil {
		records = []models.AuditRecord{}
	}

	return records, total, nil
}

// Timeline returns the chronological history of one subject.
func (s *GormLedgerStore) Timeline(ctx context.Context, subjectType, subjectID string) ([]models.AuditRecord, error) {
	var records []models.AuditRecord
	err := s.db.WithContext(ctx).
		Where("subject_type = ? AND subject_id = ?", subjectType, subjectID).
		Order("sequence ASC").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve subject timeline: %w", err)
	}
	if records == nil {
		records = []models.AuditRecord{}
	}
	return records, nil
}

// Stats computes the aggregate counters as independent queries over the
// same filtered window.
func (s *GormLedgerStore) Stats(ctx context.Context, from, to *time.Time, now time.Time) (*LedgerStats, error) {
	stats := &LedgerStats{ActionBreakdown: map[string]int64{}}

	windowed := func() *gorm.DB {
		q := s.db.WithContext(ctx).Model(&models.AuditRecord{})
		if from != nil {
			q = q.Where("timestamp >= ?", *from)
		}
		if to != nil {
			q = q.Where("timestamp <= ?", *to)
		}
		return q
	}

	if err := windowed().Count(&stats.Total).Error; err != nil {
		return nil, fmt.Errorf("failed to count audit records: %w", err)
	}

	if err := windowed().Where("outcome = ?", models.OutcomeFailed).Count(&stats.Failed).Error; err != nil {
		return nil, fmt.Errorf("failed to count failed audit records: %w", err)
	}

	if err := windowed().Where("actor_id IS NOT NULL").
		Distinct("actor_id").Count(&stats.DistinctActors).Error; err != nil {
		return nil, fmt.Errorf("failed to count distinct actors: %w", err)
	}

	startOfToday := time.Date(now.UTC().Year(), now.UTC().Month(), now.UTC().Day(), 0, 0, 0, 0, time.UTC)
	if err := windowed().Where("timestamp >= ?", startOfToday).Count(&stats.Today).Error; err != nil {
		return nil, fmt.Errorf("failed to count today's audit records: %w", err)
	}

	type actionCount struct {
		Action string
		Count  int64
	}
	var counts []actionCount
	if err := windowed().Select("action, COUNT(*) as count").
		Group("action").Scan(&counts).Error; err != nil {
		return nil, fmt.Errorf("failed to compute action breakdown: %w", err)
	}
	for _, c := range counts {
		stats.ActionBreakdown[c.Action] = c.Count
	}

	return stats, nil
}

// Range returns records with sequence >= fromSequence, ascending.
func (s *GormLedgerStore) Range(ctx context.Context, fromSequence uint64, limit int) ([]models.AuditRecord, error) {
	var records []models.AuditRecord
	err := s.db.WithContext(ctx).
		Where("sequence >= ?", fromSequence).
		Order("sequence ASC").
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to scan ledger range: %w", err)
	}
	return records, nil
}

// applyFilters builds the WHERE clause shared by Query's count and page
// reads.
func (s *GormLedgerStore) applyFilters(query *gorm.DB, filters *LedgerFilters) *gorm.DB {
	if filters == nil {
		return query
	}
	if filters.ActorID != nil && *filters.ActorID != "" {
		query = query.Where("actor_id = ?", *filters.ActorID)
	}
	if len(filters.Actions) > 0 {
		query = query.Where("action IN ?", filters.Actions)
	}
	if len(filters.SubjectTypes) > 0 {
		query = query.Where("subject_type IN ?", filters.SubjectTypes)
	}
	if filters.Outcome != nil && *filters.Outcome != "" {
		query = query.Where("outcome = ?", *filters.Outcome)
	}
	if filters.From != nil {
		query = query.Where("timestamp >= ?", *filters.From)
	}
	if filters.To != nil {
		query = query.Where("timestamp <= ?", *filters.To)
	}
	if filters.Search != "" {
		pattern := "%" + filters.Search + "%"
		query = query.Where("actor_name LIKE ? OR subject_label LIKE ? OR username LIKE ?",
			pattern, pattern, pattern)
	}
	return query
}
