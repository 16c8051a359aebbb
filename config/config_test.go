package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadEnums(t *testing.T) {
	t.Run("MissingFileReturnsDefaults", func(t *testing.T) {
		enums, err := LoadEnums(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
		require.NoError(t, err)
		assert.Equal(t, DefaultEnums.Actions, enums.Actions)
		assert.True(t, enums.IsValidAction("CREATE"))
	})

	t.Run("LoadsFromFile", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "enums.yaml")
		content := `
enums:
  actions:
    - CREATE
    - ARCHIVE
  subjectTypes:
    - WIDGET
`
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

		enums, err := LoadEnums(path)
		require.NoError(t, err)
		assert.True(t, enums.IsValidAction("ARCHIVE"))
		assert.False(t, enums.IsValidAction("DELETE"))
		assert.True(t, enums.IsValidSubjectType("WIDGET"))
		assert.False(t, enums.IsValidSubjectType("USER"))
	})

	t.Run("MissingSectionsFallBackToDefaults", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "enums.yaml")
		content := `
enums:
  actions:
    - CREATE
`
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

		enums, err := LoadEnums(path)
		require.NoError(t, err)
		assert.Equal(t, []string{"CREATE"}, enums.Actions)
		assert.Equal(t, DefaultEnums.SubjectTypes, enums.SubjectTypes)
	})

	t.Run("MalformedFileFallsBackToDefaults", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "enums.yaml")
		require.NoError(t, os.WriteFile(path, []byte("{{not yaml"), 0o644))

		enums, err := LoadEnums(path)
		require.NoError(t, err)
		assert.Equal(t, DefaultEnums.Actions, enums.Actions)
	})
}

func TestGetDefaultEnums(t *testing.T) {
	enums := GetDefaultEnums()

	// Copies, not shared slices with the package-level defaults.
	enums.Actions[0] = "MUTATED"
	assert.Equal(t, "CREATE", DefaultEnums.Actions[0])

	assert.True(t, GetDefaultEnums().IsValidAction("APPROVE"))
	assert.False(t, GetDefaultEnums().IsValidAction(""))
}

func TestGetEnvOrDefault(t *testing.T) {
	t.Setenv("AUDIT_LEDGER_TEST_KEY", "set")
	assert.Equal(t, "set", GetEnvOrDefault("AUDIT_LEDGER_TEST_KEY", "fallback"))
	assert.Equal(t, "fallback", GetEnvOrDefault("AUDIT_LEDGER_TEST_KEY_UNSET", "fallback"))
}
