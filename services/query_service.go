package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/gov-dx-sandbox/audit-ledger/database"
	"github.com/gov-dx-sandbox/audit-ledger/models"
)

const (
	defaultPageLimit = 20
	maxPageLimit     = 1000
)

// PagedRecords is the pagination envelope returned by FindAll.
type PagedRecords struct {
	Data       []models.AuditRecord `json:"data"`
	Total      int64                `json:"total"`
	Page       int                  `json:"page"`
	Limit      int                  `json:"limit"`
	TotalPages int                  `json:"totalPages"`
	HasNext    bool                 `json:"hasNext"`
	HasPrev    bool                 `json:"hasPrev"`
}

// QueryService is the stateless read layer over the ledger store.
type QueryService struct {
	store database.LedgerStore
}

// NewQueryService creates a new query service instance.
func NewQueryService(store database.LedgerStore) *QueryService {
	return &QueryService{store: store}
}

// FindAll returns a page of records matching the filters, ordered by
// sequence descending (newest first).
func (s *QueryService) FindAll(ctx context.Context, filters *database.LedgerFilters, page, limit int) (*PagedRecords, error) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = defaultPageLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}

	if filters == nil {
		filters = &database.LedgerFilters{}
	}
	filters.Limit = limit
	filters.Offset = (page - 1) * limit

	records, total, err := s.store.Query(ctx, filters)
	if err != nil {
		return nil, err
	}

	totalPages := int((total + int64(limit) - 1) / int64(limit))

	return &PagedRecords{
		Data:       records,
		Total:      total,
		Page:       page,
		Limit:      limit,
		TotalPages: totalPages,
		HasNext:    page < totalPages,
		HasPrev:    page > 1 && total > 0,
	}, nil
}

// Get returns a single record by its ID.
func (s *QueryService) Get(ctx context.Context, id uuid.UUID) (*models.AuditRecord, error) {
	return s.store.FindByID(ctx, id)
}

// Timeline reconstructs the full chronological history of one subject,
// ordered by sequence ascending.
func (s *QueryService) Timeline(ctx context.Context, subjectType, subjectID string) ([]models.AuditRecord, error) {
	return s.store.Timeline(ctx, subjectType, subjectID)
}

// Stats computes the aggregate counters over the given window. Each
// counter is an independent aggregate query over the same filtered
// window, not a mutable cache.
func (s *QueryService) Stats(ctx context.Context, from, to *time.Time) (*database.LedgerStats, error) {
	return s.store.Stats(ctx, from, to, time.Now())
}
