package models

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/gov-dx-sandbox/audit-ledger/config"
)

// Outcome constants (not configurable via YAML as they are core to the system)
const (
	OutcomeSuccess = "SUCCESS"
	OutcomeFailed  = "FAILED"
)

// Enum configuration (loaded from YAML config file)
// Uses config.LedgerEnums to leverage O(1) validation lookups
var (
	enumConfig     *config.LedgerEnums
	enumConfigOnce sync.Once
)

// SetEnumConfig sets the enum configuration (called at service startup)
func SetEnumConfig(enums *config.LedgerEnums) {
	enumConfigOnce.Do(func() {
		enumConfig = enums
	})
}

// GetEnumConfig returns the current enum configuration
func GetEnumConfig() *config.LedgerEnums {
	return enumConfig
}

// Actor describes who performed the action. All fields are optional
// because unauthenticated failures are logged too.
type Actor struct {
	ID       *string `json:"id,omitempty"`
	Name     *string `json:"name,omitempty"`
	Role     *string `json:"role,omitempty"`
	OrgUnit  *string `json:"orgUnit,omitempty"`
	Username *string `json:"username,omitempty"`
}

// Subject describes the entity the action was performed on.
type Subject struct {
	Type  string `json:"type"`
	ID    string `json:"id"`
	Label string `json:"label,omitempty"`
}

// NetworkContext carries the request-level network information of the
// triggering call.
type NetworkContext struct {
	IPAddress string `json:"ipAddress,omitempty"`
	UserAgent string `json:"userAgent,omitempty"`
	Browser   string `json:"browser,omitempty"`
	OS        string `json:"os,omitempty"`
}

// AuditEvent is the ephemeral submission emitted by collaborators. It is
// consumed exactly once by the chain appender; the EventID is the
// caller-generated idempotency key that deduplicates queue redeliveries.
//
// Callers are responsible for redacting secrets (passwords, tokens,
// hashes) from OldValue/NewValue before submitting. The HTTP ingest
// endpoint additionally runs services.RedactionService over snapshots.
type AuditEvent struct {
	EventID       uuid.UUID       `json:"eventId"`
	Actor         Actor           `json:"actor"`
	Action        string          `json:"action"`
	Subject       Subject         `json:"subject"`
	OldValue      json.RawMessage `json:"oldValue,omitempty"`
	NewValue      json.RawMessage `json:"newValue,omitempty"`
	ChangedFields []string        `json:"changedFields,omitempty"`
	Reason        string          `json:"reason,omitempty"`
	Outcome       string          `json:"outcome"`
	ErrorMessage  string          `json:"errorMessage,omitempty"`
	Network       NetworkContext  `json:"network"`
}

// Validate performs validation checks matching the database constraints.
// Uses enum configuration if available, otherwise falls back to default
// constants via config.DefaultEnums.
func (e *AuditEvent) Validate() error {
	if e.EventID == uuid.Nil {
		return fmt.Errorf("%w: eventId is required", ErrValidation)
	}

	if e.Outcome != OutcomeSuccess && e.Outcome != OutcomeFailed {
		return fmt.Errorf("%w: invalid outcome: %s (must be %s or %s)",
			ErrValidation, e.Outcome, OutcomeSuccess, OutcomeFailed)
	}

	if e.Subject.Type == "" {
		return fmt.Errorf("%w: subject.type is required", ErrValidation)
	}
	if e.Subject.ID == "" {
		return fmt.Errorf("%w: subject.id is required", ErrValidation)
	}

	if e.Action == "" {
		return fmt.Errorf("%w: action is required", ErrValidation)
	}
	if enumConfig != nil {
		if !enumConfig.IsValidAction(e.Action) {
			return fmt.Errorf("%w: invalid action: %s", ErrValidation, e.Action)
		}
		if !enumConfig.IsValidSubjectType(e.Subject.Type) {
			return fmt.Errorf("%w: invalid subject type: %s", ErrValidation, e.Subject.Type)
		}
	} else {
		// Fallback to default validation when config is not loaded
		if !contains(config.DefaultEnums.Actions, e.Action) {
			return fmt.Errorf("%w: invalid action: %s (must be one of: %v)",
				ErrValidation, e.Action, config.DefaultEnums.Actions)
		}
		if !contains(config.DefaultEnums.SubjectTypes, e.Subject.Type) {
			return fmt.Errorf("%w: invalid subject type: %s (must be one of: %v)",
				ErrValidation, e.Subject.Type, config.DefaultEnums.SubjectTypes)
		}
	}

	return nil
}

// contains checks if a string slice contains a value.
// Used only for fallback validation when config is not available.
func contains(slice []string, value string) bool {
	for _, v := range slice {
		if v == value {
			return true
		}
	}
	return false
}
