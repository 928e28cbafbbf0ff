package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Setenv("SOCIALCHEF_API_URL", "")
	t.Setenv("SOCIALCHEF_TOKEN", "")
	t.Setenv("SOCIALCHEF_DB", "")
}

func TestLoad(t *testing.T) {
	t.Run("missing file gives defaults", func(t *testing.T) {
		clearEnv(t)
		cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
		require.NoError(t, err)
		assert.Equal(t, 90, cfg.Analysis.WindowDays)
		assert.Equal(t, "UTC", cfg.Analysis.Timezone)
		assert.Equal(t, 100, cfg.API.BulkChunkSize)
		assert.Equal(t, 30*time.Second, cfg.APITimeout())
	})

	t.Run("file values override defaults", func(t *testing.T) {
		clearEnv(t)
		path := filepath.Join(t.TempDir(), "insights.yaml")
		require.NoError(t, os.WriteFile(path, []byte(`
api:
  base_url: https://api.socialchef.example
  timeout: 5s
analysis:
  window_days: 30
  timezone: Europe/Oslo
  brand_id: brand-1
`), 0644))

		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, "https://api.socialchef.example", cfg.API.BaseURL)
		assert.Equal(t, 5*time.Second, cfg.APITimeout())
		assert.Equal(t, 30, cfg.Analysis.WindowDays)
		assert.Equal(t, "brand-1", cfg.Analysis.BrandID)
		assert.Equal(t, 3, cfg.API.Retries, "unset keys keep defaults")
	})

	t.Run("environment overrides the file", func(t *testing.T) {
		t.Setenv("SOCIALCHEF_API_URL", "https://env.example")
		t.Setenv("SOCIALCHEF_TOKEN", "env-token")
		t.Setenv("SOCIALCHEF_DB", "/tmp/env.db")

		path := filepath.Join(t.TempDir(), "insights.yaml")
		require.NoError(t, os.WriteFile(path, []byte("api:\n  base_url: https://file.example\n  token: file-token\n"), 0644))

		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, "https://env.example", cfg.API.BaseURL)
		assert.Equal(t, "env-token", cfg.API.Token)
		assert.Equal(t, "/tmp/env.db", cfg.Storage.DBPath)
	})

	t.Run("malformed yaml", func(t *testing.T) {
		clearEnv(t)
		path := filepath.Join(t.TempDir(), "bad.yaml")
		require.NoError(t, os.WriteFile(path, []byte("api: [unclosed"), 0644))
		_, err := Load(path)
		assert.Error(t, err)
	})

	t.Run("invalid values", func(t *testing.T) {
		clearEnv(t)
		path := filepath.Join(t.TempDir(), "invalid.yaml")
		require.NoError(t, os.WriteFile(path, []byte("analysis:\n  timezone: Nowhere/Land\n"), 0644))
		_, err := Load(path)
		assert.ErrorIs(t, err, ErrInvalidConfig)
	})
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	cfg.Analysis.WindowDays = 0
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)

	cfg = DefaultConfig()
	cfg.API.Timeout = "soon"
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)

	cfg = DefaultConfig()
	cfg.Logging.Level = "loud"
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
}

func TestSaveRoundTrip(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "nested", "insights.yaml")

	cfg := DefaultConfig()
	cfg.Analysis.BrandID = "brand-9"
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "brand-9", loaded.Analysis.BrandID)
}
