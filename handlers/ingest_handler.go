package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/gov-dx-sandbox/audit-ledger/gateway"
	"github.com/gov-dx-sandbox/audit-ledger/models"
	"github.com/gov-dx-sandbox/audit-ledger/services"
	"github.com/gov-dx-sandbox/audit-ledger/utils"
)

// IngestHandler accepts audit events from out-of-process collaborators
// and hands them to the ingestion gateway. Submission is accepted, not
// confirmed: the chain append happens asynchronously behind the queue.
// Snapshots are passed through the redaction service before they leave
// the handler; callers should still redact on their side.
type IngestHandler struct {
	recorder gateway.Recorder
	redactor *services.RedactionService
}

// NewIngestHandler creates a new instance of IngestHandler.
func NewIngestHandler(recorder gateway.Recorder) *IngestHandler {
	return &IngestHandler{recorder: recorder, redactor: services.NewRedactionService()}
}

// Register wires the handler's routes onto the mux.
func (h *IngestHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/events", h.SubmitEvent)
}

// SubmitEvent handles the POST request to submit a new audit event.
// Malformed requests are rejected up front; everything past decoding is
// fire-and-forget.
func (h *IngestHandler) SubmitEvent(w http.ResponseWriter, r *http.Request) {
	var event models.AuditEvent
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	if event.EventID == uuid.Nil {
		// Callers should supply the idempotency key so their own retries
		// deduplicate; generate one for those that don't.
		event.EventID = uuid.New()
	}

	if err := event.Validate(); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid audit event", err)
		return
	}

	for _, snapshot := range []*json.RawMessage{&event.OldValue, &event.NewValue} {
		if len(*snapshot) == 0 {
			continue
		}
		redacted, err := h.redactor.RedactSnapshot(*snapshot)
		if err != nil {
			utils.RespondWithError(w, http.StatusBadRequest, "Invalid snapshot payload", err)
			return
		}
		*snapshot = redacted
	}

	h.recorder.Submit(r.Context(), &event)

	utils.RespondWithJSON(w, http.StatusAccepted, map[string]string{
		"eventId": event.EventID.String(),
		"status":  "accepted",
	})
}
