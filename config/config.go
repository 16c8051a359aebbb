package config

import (
	"fmt"
	"log/slog"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

// LedgerEnums represents the enum configuration for the audit ledger.
// Action and subject-type vocabularies are configurable via YAML so the
// ledger can be reused across host systems with different entity sets.
type LedgerEnums struct {
	Actions      []string `yaml:"actions"`
	SubjectTypes []string `yaml:"subjectTypes"`

	// Maps for O(1) validation lookups (initialized from slices)
	actionsMap      map[string]struct{}
	subjectTypesMap map[string]struct{}

	// initOnce ensures thread-safe lazy initialization of maps
	initOnce sync.Once
}

// Config holds the audit ledger configuration file contents.
type Config struct {
	Enums LedgerEnums `yaml:"enums"`
}

var (
	// DefaultEnums provides default enum values if the config file is not found.
	DefaultEnums = LedgerEnums{
		Actions: []string{
			"CREATE",
			"READ",
			"UPDATE",
			"DELETE",
			"APPROVE",
			"REJECT",
			"LOGIN",
			"LOGIN_FAILED",
			"LOGOUT",
			"EXPORT",
		},
		SubjectTypes: []string{
			"USER",
			"INVOICE",
			"BUDGET",
			"TAXPAYER",
			"ORG_UNIT",
			"DOCUMENT",
			"SETTING",
			"SESSION",
		},
	}
)

// LoadEnums loads enum configuration from a YAML file.
// If the file is not found, returns the default enums.
func LoadEnums(configPath string) (*LedgerEnums, error) {
	if configPath == "" {
		configPath = "config/enums.yaml"
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return GetDefaultEnums(), nil
		}
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		slog.Warn("Failed to parse config file, using defaults", "path", configPath, "error", err)
		return GetDefaultEnums(), nil
	}

	// Use defaults for any missing enum arrays
	enums := &config.Enums
	if len(enums.Actions) == 0 {
		enums.Actions = DefaultEnums.Actions
	}
	if len(enums.SubjectTypes) == 0 {
		enums.SubjectTypes = DefaultEnums.SubjectTypes
	}

	enums.InitializeMaps()

	return enums, nil
}

// GetDefaultEnums creates a new LedgerEnums instance with default values.
// Slices are copied to avoid sharing references with the global DefaultEnums.
func GetDefaultEnums() *LedgerEnums {
	enums := &LedgerEnums{
		Actions:      append([]string(nil), DefaultEnums.Actions...),
		SubjectTypes: append([]string(nil), DefaultEnums.SubjectTypes...),
	}
	enums.InitializeMaps()
	return enums
}

// InitializeMaps converts slices to maps for O(1) validation lookups.
// Uses sync.Once so initialization is thread-safe and happens only once.
func (e *LedgerEnums) InitializeMaps() {
	e.initOnce.Do(func() {
		e.actionsMap = make(map[string]struct{}, len(e.Actions))
		for _, a := range e.Actions {
			e.actionsMap[a] = struct{}{}
		}

		e.subjectTypesMap = make(map[string]struct{}, len(e.SubjectTypes))
		for _, st := range e.SubjectTypes {
			e.subjectTypesMap[st] = struct{}{}
		}
	})
}

// IsValidAction checks if the given action is valid.
func (e *LedgerEnums) IsValidAction(action string) bool {
	_, exists := e.actionsMap[action]
	return exists
}

// IsValidSubjectType checks if the given subject type is valid.
func (e *LedgerEnums) IsValidSubjectType(subjectType string) bool {
	_, exists := e.subjectTypesMap[subjectType]
	return exists
}

// GetEnvOrDefault returns the environment variable value or a default.
func GetEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
