package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "production", cfg.App.Env)
	assert.Equal(t, "0.0.0.0:8080", cfg.HTTP.Addr())
	assert.Equal(t, "gemini-1.5-flash", cfg.LLM.Model)
	assert.Equal(t, "monday", cfg.Analysis.WeekStart)
	assert.Equal(t, 0.2, cfg.Analysis.RegularIncomeCV)
	assert.Equal(t, "0 2 * * 1", cfg.Schedule.WeeklyCron)
	assert.Equal(t, 10, cfg.Schedule.BatchSize)
}

func TestLoad_FileAndEnvPrecedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
app:
  env: staging
database:
  url: postgres://file-host/finpulse
http:
  port: 9000
schedule:
  batch_size: 25
`), 0o644))

	t.Setenv("DATABASE_URL", "postgres://env-host/finpulse")
	t.Setenv("APP_ENV", "development")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "postgres://env-host/finpulse", cfg.Database.URL, "environment beats the file")
	assert.True(t, cfg.App.IsDevelopment())
	assert.Equal(t, 9000, cfg.HTTP.Port)
	assert.Equal(t, 25, cfg.Schedule.BatchSize)
	assert.Equal(t, 5, cfg.Database.MaxIdleConns, "unset values still default")
}

func TestLoad_MissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.HTTP.Port)
}

func TestValidate_RejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad port", func(c *Config) { c.HTTP.Port = 70000 }},
		{"bad week start", func(c *Config) { c.Analysis.WeekStart = "wednesday" }},
		{"bad income cv", func(c *Config) { c.Analysis.RegularIncomeCV = 1.5 }},
		{"bad batch size", func(c *Config) { c.Schedule.BatchSize = -1 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg, err := Load("")
			require.NoError(t, err)
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
