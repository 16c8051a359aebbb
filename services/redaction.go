package services

import (
	"encoding/json"
	"fmt"
	"regexp"
)

// RedactionService strips secret-bearing fields from snapshot data.
// Collaborators should redact before calling Submit; the HTTP ingest
// endpoint runs this service as a second pass over every snapshot.
type RedactionService struct {
	secretPattern *regexp.Regexp
}

// NewRedactionService creates a new redaction service.
func NewRedactionService() *RedactionService {
	// Matches field names that carry credentials: password, token,
	// secret, apiKey/api_key and *_hash / *Hash columns.
	pattern := regexp.MustCompile(`(?i)(password|passwd|secret|token|credential|api_?key|_hash$|hash$)`)

	return &RedactionService{
		secretPattern: pattern,
	}
}

// RedactSnapshot removes secret fields from a JSON snapshot and returns
// the redacted serialization. Non-object snapshots pass through
// unchanged.
func (s *RedactionService) RedactSnapshot(raw json.RawMessage) (json.RawMessage, error) {
	if len(raw) == 0 {
		return raw, nil
	}

	var data interface{}
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("failed to parse snapshot for redaction: %w", err)
	}

	redacted, err := s.RedactData(data)
	if err != nil {
		return nil, err
	}

	out, err := json.Marshal(redacted)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize redacted snapshot: %w", err)
	}
	return out, nil
}

// RedactData removes all secret fields from the data.
func (s *RedactionService) RedactData(data interface{}) (interface{}, error) {
	switch v := data.(type) {
	case map[string]interface{}:
		return s.redactMap(v), nil
	case []interface{}:
		return s.redactArray(v), nil
	default:
		return v, nil
	}
}

// redactMap recursively redacts a map.
func (s *RedactionService) redactMap(m map[string]interface{}) map[string]interface{} {
	redacted := make(map[string]interface{})

	for key, value := range m {
		if s.secretPattern.MatchString(key) {
			// Drop the field entirely.
			continue
		}

		switch v := value.(type) {
		case map[string]interface{}:
			redacted[key] = s.redactMap(v)
		case []interface{}:
			redacted[key] = s.redactArray(v)
		default:
			redacted[key] = v
		}
	}

	return redacted
}

// redactArray recursively redacts an array.
func (s *RedactionService) redactArray(arr []interface{}) []interface{} {
	redacted := make([]interface{}, 0, len(arr))

	for _, item := range arr {
		switch v := item.(type) {
		case map[string]interface{}:
			redacted = append(redacted, s.redactMap(v))
		case []interface{}:
			redacted = append(redacted, s.redactArray(v))
		default:
			redacted = append(redacted, v)
		}
	}

	return redacted
}
