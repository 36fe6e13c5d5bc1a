// pkg/config/config.go
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Source kinds
const (
	SourceParquet   = "parquet"
	SourceSnowflake = "snowflake"
)

// Audit store kinds
const (
	AuditNone     = "none"
	AuditSQLite   = "sqlite"
	AuditPostgres = "postgres"
)

// Config represents the application configuration
type Config struct {
	// Input and output
	InputDir     string
	OutputDir    string
	InputPattern string
	SourceKind   string

	// Batching
	BatchSize      int // 0 means one batch per row-group
	WorkerPoolSize int // 1 means sequential

	// Vocabulary
	PrescanFiles   int
	VocabularyPath string

	// Normalization switches
	OneHot            bool
	Standardize       bool
	CreditScoreFilter bool
	ProvinceMarker    string
	ProvinceSentinel  string
	GenderSentinel    string

	// Reporting
	AuditKind       string
	AuditSQLitePath string
	ProfilePath     string
	VerifyOutput    bool

	// Database connections, loaded only when selected
	Snowflake *SnowflakeConfig
	Postgres  *PostgresConfig

	// Logging
	LogLevel  string
	LogFormat string
}

// LoadDotEnv seeds the environment from a .env file when one exists.
// Variables already set in the environment win.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		// Default values
		InputDir:     getEnv("INPUT_DIR", "data"),
		OutputDir:    getEnv("OUTPUT_DIR", "output"),
		InputPattern: getEnv("INPUT_PATTERN", "*.parquet"),
		SourceKind:   strings.ToLower(getEnv("SOURCE_KIND", SourceParquet)),

		BatchSize:      getEnvAsInt("BATCH_SIZE", 0),
		WorkerPoolSize: getEnvAsInt("WORKER_POOL_SIZE", 1),

		PrescanFiles:   getEnvAsInt("PRESCAN_FILES", 2),
		VocabularyPath: getEnv("VOCABULARY_PATH", ""),

		OneHot:            getEnvAsBool("ONE_HOT", true),
		Standardize:       getEnvAsBool("STANDARDIZE", false),
		CreditScoreFilter: getEnvAsBool("CREDIT_SCORE_FILTER", false),
		ProvinceMarker:    getEnv("PROVINCE_MARKER", "省"),
		ProvinceSentinel:  getEnv("PROVINCE_SENTINEL", "other"),
		GenderSentinel:    getEnv("GENDER_SENTINEL", "unknown"),

		AuditKind:       strings.ToLower(getEnv("AUDIT_KIND", AuditNone)),
		AuditSQLitePath: getEnv("AUDIT_SQLITE_PATH", "normalize_audit.db"),
		ProfilePath:     getEnv("PROFILE_PATH", ""),
		VerifyOutput:    getEnvAsBool("VERIFY_OUTPUT", false),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),
	}

	// Load database configurations only for the selected backends
	if cfg.SourceKind == SourceSnowflake {
		snowConfig, err := LoadSnowflakeConfig()
		if err != nil {
			return nil, errors.New("failed to load Snowflake configuration: " + err.Error())
		}
		cfg.Snowflake = snowConfig
	}

	if cfg.AuditKind == AuditPostgres {
		pgConfig, err := LoadPostgresConfig()
		if err != nil {
			return nil, errors.New("failed to load PostgreSQL configuration: " + err.Error())
		}
		cfg.Postgres = pgConfig
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate ensures all required configuration is present and valid
func (c *Config) Validate() error {
	switch c.SourceKind {
	case SourceParquet:
		if c.InputDir == "" {
			return errors.New("input directory is required")
		}
	case SourceSnowflake:
		if c.Snowflake == nil {
			return errors.New("snowflake configuration is required")
		}
	default:
		return fmt.Errorf("unknown source kind %q", c.SourceKind)
	}

	switch c.AuditKind {
	case AuditNone:
	case AuditSQLite:
		if c.AuditSQLitePath == "" {
			return errors.New("sqlite audit path is required")
		}
	case AuditPostgres:
		if c.Postgres == nil {
			return errors.New("postgreSQL configuration is required")
		}
	default:
		return fmt.Errorf("unknown audit kind %q", c.AuditKind)
	}

	if c.OutputDir == "" {
		return errors.New("output directory is required")
	}

	if c.BatchSize < 0 {
		return errors.New("batch size cannot be negative")
	}

	if c.WorkerPoolSize <= 0 {
		return errors.New("worker pool size must be positive")
	}

	if c.PrescanFiles <= 0 {
		return errors.New("prescan file count must be positive")
	}

	if c.ProvinceMarker == "" {
		return errors.New("province marker cannot be empty")
	}

	if c.ProvinceSentinel == "" || c.GenderSentinel == "" {
		return errors.New("sentinel values cannot be empty")
	}

	return nil
}

// Helper functions for environment variables
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(strings.TrimSpace(valueStr))
	if err != nil {
		return defaultValue
	}
	return value
}
