package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gov-dx-sandbox/audit-ledger/database"
	"github.com/gov-dx-sandbox/audit-ledger/services"
	"github.com/gov-dx-sandbox/audit-ledger/utils"
)

// LedgerHandler exposes the read-only HTTP API over the ledger: list
// with filters and pagination, get-by-id, per-subject timeline,
// aggregate stats and on-demand chain verification. There is no write
// endpoint; records enter only through the ingestion gateway.
type LedgerHandler struct {
	query    *services.QueryService
	verifier *services.Verifier
}

// NewLedgerHandler creates a new instance of LedgerHandler.
func NewLedgerHandler(query *services.QueryService, verifier *services.Verifier) *LedgerHandler {
	return &LedgerHandler{query: query, verifier: verifier}
}

// Register wires the handler's routes onto the mux.
func (h *LedgerHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/records", h.GetRecords)
	mux.HandleFunc("GET /api/v1/records/timeline", h.GetTimeline)
	mux.HandleFunc("GET /api/v1/records/stats", h.GetStats)
	mux.HandleFunc("GET /api/v1/records/{id}", h.GetRecord)
	mux.HandleFunc("GET /api/v1/verify", h.Verify)
}

// GetRecords handles the paginated, filtered list request.
func (h *LedgerHandler) GetRecords(w http.ResponseWriter, r *http.Request) {
	filters, err := parseFilters(r)
	if err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid filter parameters", err)
		return
	}

	page := parseIntParam(r, "page", 1)
	limit := parseIntParam(r, "limit", 20)

	result, err := h.query.FindAll(r.Context(), filters, page, limit)
	if err != nil {
		slog.Error("Failed to retrieve audit records", "error", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to retrieve audit records", nil)
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, result)
}

// GetRecord handles the get-by-id request.
func (h *LedgerHandler) GetRecord(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid record ID", err)
		return
	}

	record, err := h.query.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			utils.RespondWithError(w, http.StatusNotFound, "Audit record not found", nil)
			return
		}
		slog.Error("Failed to retrieve audit record", "error", err, "id", id)
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to retrieve audit record", nil)
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, record)
}

// GetTimeline handles the per-subject history request.
func (h *LedgerHandler) GetTimeline(w http.ResponseWriter, r *http.Request) {
	subjectType := r.URL.Query().Get("subjectType")
	subjectID := r.URL.Query().Get("subjectId")
	if subjectType == "" || subjectID == "" {
		utils.RespondWithError(w, http.StatusBadRequest,
			"Missing required query parameters (subjectType, subjectId)", nil)
		return
	}

	records, err := h.query.Timeline(r.Context(), subjectType, subjectID)
	if err != nil {
		slog.Error("Failed to retrieve subject timeline",
			"error", err,
			"subjectType", subjectType,
			"subjectId", subjectID)
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to retrieve timeline", nil)
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, records)
}

// GetStats handles the aggregate statistics request.
func (h *LedgerHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	from, err := parseTimeParam(r, "from")
	if err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid 'from' parameter", err)
		return
	}
	to, err := parseTimeParam(r, "to")
	if err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid 'to' parameter", err)
		return
	}

	stats, err := h.query.Stats(r.Context(), from, to)
	if err != nil {
		slog.Error("Failed to compute audit stats", "error", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to compute statistics", nil)
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, stats)
}

// Verify handles the on-demand integrity sweep. Intended for periodic
// operational checks, not for every read.
func (h *LedgerHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var fromSequence uint64 = 1
	if raw := r.URL.Query().Get("fromSequence"); raw != "" {
		parsed, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			utils.RespondWithError(w, http.StatusBadRequest, "Invalid 'fromSequence' parameter", err)
			return
		}
		fromSequence = parsed
	}

	report, err := h.verifier.Verify(r.Context(), fromSequence)
	if err != nil {
		slog.Error("Chain verification failed to run", "error", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "Verification failed to run", nil)
		return
	}

	status := http.StatusOK
	if !report.OK {
		// The sweep ran but found tampering.
		status = http.StatusConflict
	}
	utils.RespondWithJSON(w, status, report)
}

// parseFilters builds LedgerFilters from the request's query parameters.
func parseFilters(r *http.Request) (*database.LedgerFilters, error) {
	q := r.URL.Query()
	filters := &database.LedgerFilters{}

	if v := q.Get("actorId"); v != "" {
		filters.ActorID = &v
	}
	if v := q.Get("action"); v != "" {
		filters.Actions = splitCSV(v)
	}
	if v := q.Get("subjectType"); v != "" {
		filters.SubjectTypes = splitCSV(v)
	}
	if v := q.Get("outcome"); v != "" {
		filters.Outcome = &v
	}
	filters.Search = q.Get("search")

	from, err := parseTimeParam(r, "from")
	if err != nil {
		return nil, err
	}
	filters.From = from

	to, err := parseTimeParam(r, "to")
	if err != nil {
		return nil, err
	}
	filters.To = to

	filters.Ascending = strings.EqualFold(q.Get("sort"), "asc")

	return filters, nil
}

// splitCSV splits a comma-separated parameter into trimmed values.
func splitCSV(raw string) []string {
	parts := strings.Split(raw, ",")
	values := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			values = append(values, trimmed)
		}
	}
	return values
}

// parseIntParam reads a positive integer query parameter with a default.
func parseIntParam(r *http.Request, key string, defaultValue int) int {
	if raw := r.URL.Query().Get(key); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			return parsed
		}
	}
	return defaultValue
}

// parseTimeParam reads an RFC3339 time query parameter.
func parseTimeParam(r *http.Request, key string) (*time.Time, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return nil, nil
	}
	parsed, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}
