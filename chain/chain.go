// Package chain implements the hash chain that makes the audit ledger
// tamper-evident.
//
// Each record's hash is computed as
//
//	SHA-256(prev_hash | canonical payload)
//
// where the payload covers sequence, timestamp, actor id, action,
// subject type/id and the new-value snapshot, each field length-prefixed
// so the serialization is injective: collaborator-supplied values may
// contain the separator, and no byte may shift between adjacent fields
// without changing the payload. Modifying any historical record
// invalidates every record after it. The same canonical serialization is
// used byte-for-byte when appending and when verifying.
package chain

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"

	"github.com/gov-dx-sandbox/audit-ledger/models"
)

// Genesis is the sentinel prev_hash of the first record in the ledger.
const Genesis = "GENESIS"

// CanonicalPayload deterministically serializes the fixed, ordered subset
// of record fields covered by the hash. Every field is rendered as
// "<length>:<bytes>|" so distinct field tuples always produce distinct
// payload bytes. The timestamp is rendered as microseconds since the
// Unix epoch; the appender truncates timestamps to microsecond precision
// so the value survives a database round trip on both PostgreSQL and
// SQLite.
func CanonicalPayload(r *models.AuditRecord) string {
	actorID := ""
	if r.ActorID != nil {
		actorID = *r.ActorID
	}

	var b strings.Builder
	writeField(&b, strconv.FormatUint(r.Sequence, 10))
	writeField(&b, strconv.FormatInt(r.Timestamp.UTC().UnixMicro(), 10))
	writeField(&b, actorID)
	writeField(&b, r.Action)
	writeField(&b, r.SubjectType)
	writeField(&b, r.SubjectID)
	writeField(&b, string(r.NewValue))
	return b.String()
}

// writeField appends one length-prefixed field.
func writeField(b *strings.Builder, s string) {
	b.WriteString(strconv.Itoa(len(s)))
	b.WriteByte(':')
	b.WriteString(s)
	b.WriteByte('|')
}

// ComputeHash calculates the hex-encoded SHA-256 hash for a record given
// the previous record's stored hash and the canonical payload.
func ComputeHash(prevHash, payload string) string {
	h := sha256.New()
	h.Write([]byte(prevHash))
	h.Write([]byte{'|'})
	h.Write([]byte(payload))
	return hex.EncodeToString(h.Sum(nil))
}

// RecordHash recomputes a record's hash from its own fields and its
// stored prev_hash.
func RecordHash(r *models.AuditRecord) string {
	return ComputeHash(r.PrevHash, CanonicalPayload(r))
}

// VerifyRecord reports whether a record's stored hash matches the hash
// recomputed from its contents.
func VerifyRecord(r *models.AuditRecord) bool {
	return r.Hash == RecordHash(r)
}
