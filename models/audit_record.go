package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// StringList stores a []string as a JSON text column so it works the same
// on PostgreSQL and SQLite.
type StringList []string

// Value implements driver.Valuer.
func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return nil, nil
	}
	b, err := json.Marshal([]string(l))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal string list: %w", err)
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (l *StringList) Scan(value interface{}) error {
	if value == nil {
		*l = nil
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported type for StringList: %T", value)
	}
	return json.Unmarshal(data, (*[]string)(l))
}

// JSONText stores an arbitrary JSON document as a text column. A
// defined scanner type is required because drivers differ in how they
// return text columns (pgx returns string, sqlite may return []byte);
// neither can be scanned into a bare json.RawMessage.
type JSONText json.RawMessage

// Value implements driver.Valuer.
func (j JSONText) Value() (driver.Value, error) {
	if len(j) == 0 {
		return nil, nil
	}
	return string(j), nil
}

// Scan implements sql.Scanner.
func (j *JSONText) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	switch v := value.(type) {
	case []byte:
		*j = append(JSONText(nil), v...)
	case string:
		*j = JSONText(v)
	default:
		return fmt.Errorf("unsupported type for JSONText: %T", value)
	}
	return nil
}

// MarshalJSON returns the document verbatim, like json.RawMessage.
func (j JSONText) MarshalJSON() ([]byte, error) {
	if len(j) == 0 {
		return []byte("null"), nil
	}
	return j, nil
}

// UnmarshalJSON stores the document verbatim.
func (j *JSONText) UnmarshalJSON(data []byte) error {
	*j = append((*j)[0:0], data...)
	return nil
}

// AuditRecord is the persisted, immutable form of an AuditEvent plus the
// integrity fields maintained by the chain appender. Once written, a
// record is never updated or deleted.
//
// Sequence is the authoritative position in the chain. It exists in
// addition to Timestamp because wall-clock timestamps are not unique or
// monotonic under clock skew or sub-millisecond bursts.
//
// The unique indexes on sequence and prev_hash are what make the
// optimistic append precondition race-safe at the database level: two
// writers racing on the same tail cannot both commit.
type AuditRecord struct {
	// Primary Key
	ID uuid.UUID `gorm:"primaryKey" json:"id"`

	// Idempotency key of the originating AuditEvent
	EventID uuid.UUID `gorm:"not null;uniqueIndex:uq_audit_records_event_id" json:"eventId"`

	// Integrity fields, owned exclusively by the chain appender
	Sequence uint64 `gorm:"not null;uniqueIndex:uq_audit_records_sequence;index:idx_audit_records_actor,priority:2;index:idx_audit_records_action,priority:2" json:"sequence"`
	PrevHash string `gorm:"type:varchar(64);not null;uniqueIndex:uq_audit_records_prev_hash" json:"prevHash"`
	Hash     string `gorm:"type:varchar(64);not null" json:"hash"`

	// Temporal (assigned by the appender, truncated to microseconds so the
	// canonical form survives a database round trip)
	Timestamp time.Time `gorm:"not null;index:idx_audit_records_timestamp" json:"timestamp"`

	// Actor
	ActorID      *string `gorm:"type:varchar(255);index:idx_audit_records_actor,priority:1" json:"actorId,omitempty"`
	ActorName    *string `gorm:"type:varchar(255)" json:"actorName,omitempty"`
	ActorRole    *string `gorm:"type:varchar(100)" json:"actorRole,omitempty"`
	ActorOrgUnit *string `gorm:"type:varchar(255)" json:"actorOrgUnit,omitempty"`
	Username     *string `gorm:"type:varchar(255)" json:"username,omitempty"`

	// Action
	Action string `gorm:"type:varchar(50);not null;index:idx_audit_records_action,priority:1" json:"action"`

	// Subject
	SubjectType  string `gorm:"type:varchar(100);not null;index:idx_audit_records_subject,priority:1" json:"subjectType"`
	SubjectID    string `gorm:"type:varchar(255);not null;index:idx_audit_records_subject,priority:2" json:"subjectId"`
	SubjectLabel string `gorm:"type:varchar(255)" json:"subjectLabel,omitempty"`

	// Snapshots (secrets redacted by the caller before submission)
	OldValue JSONText `gorm:"type:text" json:"oldValue,omitempty"`
	NewValue JSONText `gorm:"type:text" json:"newValue,omitempty"`

	ChangedFields StringList `gorm:"type:text" json:"changedFields,omitempty"`
	Reason        string     `gorm:"type:text" json:"reason,omitempty"`

	// Outcome
	Outcome      string `gorm:"type:varchar(20);not null;index:idx_audit_records_outcome" json:"outcome"`
	ErrorMessage string `gorm:"type:text" json:"errorMessage,omitempty"`

	// Network context
	IPAddress string `gorm:"type:varchar(64)" json:"ipAddress,omitempty"`
	UserAgent string `gorm:"type:text" json:"userAgent,omitempty"`
	Browser   string `gorm:"type:varchar(100)" json:"browser,omitempty"`
	OS        string `gorm:"type:varchar(100)" json:"os,omitempty"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"createdAt"`
}

// TableName sets the table name for AuditRecord.
func (AuditRecord) TableName() string {
	return "audit_records"
}

// BeforeCreate hook to set default values.
func (r *AuditRecord) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

// NewRecordFromEvent copies the collaborator-supplied fields of an event
// into a record. The integrity fields (Sequence, PrevHash, Hash,
// Timestamp) are left for the chain appender to assign.
func NewRecordFromEvent(event *AuditEvent) *AuditRecord {
	return &AuditRecord{
		ID:            uuid.New(),
		EventID:       event.EventID,
		ActorID:       event.Actor.ID,
		ActorName:     event.Actor.Name,
		ActorRole:     event.Actor.Role,
		ActorOrgUnit:  event.Actor.OrgUnit,
		Username:      event.Actor.Username,
		Action:        event.Action,
		SubjectType:   event.Subject.Type,
		SubjectID:     event.Subject.ID,
		SubjectLabel:  event.Subject.Label,
		OldValue:      JSONText(event.OldValue),
		NewValue:      JSONText(event.NewValue),
		ChangedFields: StringList(event.ChangedFields),
		Reason:        event.Reason,
		Outcome:       event.Outcome,
		ErrorMessage:  event.ErrorMessage,
		IPAddress:     event.Network.IPAddress,
		UserAgent:     event.Network.UserAgent,
		Browser:       event.Network.Browser,
		OS:            event.Network.OS,
	}
}
