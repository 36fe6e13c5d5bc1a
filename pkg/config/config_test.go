// pkg/config/config_test.go
package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	for _, key := range []string{"SOURCE_KIND", "AUDIT_KIND", "BATCH_SIZE", "ONE_HOT", "PRESCAN_FILES", "WORKER_POOL_SIZE", "VERIFY_OUTPUT"} {
		t.Setenv(key, "")
	}

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, SourceParquet, cfg.SourceKind)
	assert.Equal(t, AuditNone, cfg.AuditKind)
	assert.Equal(t, "*.parquet", cfg.InputPattern)
	assert.Equal(t, 0, cfg.BatchSize)
	assert.Equal(t, 2, cfg.PrescanFiles)
	assert.Equal(t, 1, cfg.WorkerPoolSize)
	assert.True(t, cfg.OneHot)
	assert.False(t, cfg.Standardize)
	assert.False(t, cfg.VerifyOutput)
	assert.Equal(t, "省", cfg.ProvinceMarker)
	assert.Equal(t, "other", cfg.ProvinceSentinel)
	assert.Equal(t, "unknown", cfg.GenderSentinel)
	assert.Nil(t, cfg.Snowflake)
	assert.Nil(t, cfg.Postgres)
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("BATCH_SIZE", "500")
	t.Setenv("STANDARDIZE", "true")
	t.Setenv("ONE_HOT", "0")
	t.Setenv("WORKER_POOL_SIZE", "4")
	t.Setenv("PROVINCE_SENTINEL", "其他")
	t.Setenv("PRESCAN_FILES", "not-a-number")
	t.Setenv("VERIFY_OUTPUT", "true")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 500, cfg.BatchSize)
	assert.True(t, cfg.Standardize)
	assert.False(t, cfg.OneHot)
	assert.Equal(t, 4, cfg.WorkerPoolSize)
	assert.Equal(t, "其他", cfg.ProvinceSentinel)
	assert.Equal(t, 2, cfg.PrescanFiles)
	assert.True(t, cfg.VerifyOutput)
}

func TestLoadConfigSelectedBackends(t *testing.T) {
	t.Run("snowflake source requires credentials", func(t *testing.T) {
		t.Setenv("SOURCE_KIND", "snowflake")
		t.Setenv("SNOWFLAKE_USER", "")
		_, err := LoadConfig()
		assert.Error(t, err)
	})

	t.Run("snowflake source", func(t *testing.T) {
		t.Setenv("SOURCE_KIND", "snowflake")
		t.Setenv("SNOWFLAKE_USER", "u")
		t.Setenv("SNOWFLAKE_PASSWORD", "p")
		t.Setenv("SNOWFLAKE_ACCOUNT", "acct")
		t.Setenv("SNOWFLAKE_WAREHOUSE", "wh")
		t.Setenv("SNOWFLAKE_TABLES", `USERS_2023, "USERS,2024"`)

		cfg, err := LoadConfig()
		require.NoError(t, err)
		require.NotNil(t, cfg.Snowflake)
		assert.Equal(t, []string{"USERS_2023", "USERS,2024"}, cfg.Snowflake.Tables)
		assert.Equal(t, "ANALYTICS.PUBLIC.USERS_2023", cfg.Snowflake.QualifiedTable("USERS_2023"))
	})

	t.Run("postgres audit requires credentials", func(t *testing.T) {
		t.Setenv("AUDIT_KIND", "postgres")
		t.Setenv("POSTGRES_USER", "")
		_, err := LoadConfig()
		assert.Error(t, err)
	})
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			InputDir:         "in",
			OutputDir:        "out",
			SourceKind:       SourceParquet,
			AuditKind:        AuditNone,
			WorkerPoolSize:   1,
			PrescanFiles:     2,
			ProvinceMarker:   "省",
			ProvinceSentinel: "other",
			GenderSentinel:   "unknown",
		}
	}
	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown source", func(c *Config) { c.SourceKind = "csv" }},
		{"unknown audit", func(c *Config) { c.AuditKind = "mongo" }},
		{"sqlite without path", func(c *Config) { c.AuditKind = AuditSQLite; c.AuditSQLitePath = "" }},
		{"negative batch", func(c *Config) { c.BatchSize = -1 }},
		{"zero workers", func(c *Config) { c.WorkerPoolSize = 0 }},
		{"zero prescan", func(c *Config) { c.PrescanFiles = 0 }},
		{"empty marker", func(c *Config) { c.ProvinceMarker = "" }},
		{"missing output", func(c *Config) { c.OutputDir = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("NORMALIZER_TEST_KEY=from-file\n"), 0o644))

	t.Setenv("NORMALIZER_TEST_KEY", "")
	require.NoError(t, os.Unsetenv("NORMALIZER_TEST_KEY"))

	require.NoError(t, LoadDotEnv(path))
	assert.Equal(t, "from-file", os.Getenv("NORMALIZER_TEST_KEY"))

	// A missing file is not an error
	assert.NoError(t, LoadDotEnv(filepath.Join(dir, "missing.env")))
}
