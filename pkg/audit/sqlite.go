// pkg/audit/sqlite.go
package audit

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// SQLiteRecorder keeps the audit trail in a local database file
type SQLiteRecorder struct {
	*sqlRecorder
}

// NewSQLiteRecorder opens (or creates) the database at path and ensures the tables exist
func NewSQLiteRecorder(ctx context.Context, path string, logger *zap.Logger) (*SQLiteRecorder, error) {
	if path == "" {
		return nil, errors.New("sqlite path cannot be empty")
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit database: %w", err)
	}
	// One writer at a time; pipeline workers queue on the pool
	db.SetMaxOpenConns(1)

	stmts := []string{
		`PRAGMA busy_timeout = 5000`,
		`CREATE TABLE IF NOT EXISTS ` + ReportsTable + ` (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL,
			batch TEXT NOT NULL,
			source TEXT NOT NULL,
			rows_in INTEGER NOT NULL,
			rows_out INTEGER NOT NULL,
			dropped_age INTEGER NOT NULL,
			dropped_income INTEGER NOT NULL,
			dropped_credit_score INTEGER NOT NULL,
			field_failures INTEGER NOT NULL,
			failed_fields TEXT NOT NULL,
			operation_count INTEGER NOT NULL,
			recorded_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS ` + OperationsTable + ` (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL,
			source TEXT NOT NULL,
			batch TEXT NOT NULL,
			column_name TEXT NOT NULL,
			original_value TEXT,
			new_value TEXT NOT NULL,
			row_identifier TEXT NOT NULL,
			cleaning_operation TEXT NOT NULL,
			cleaning_reason TEXT NOT NULL,
			cleaned_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_` + OperationsTable + `_run ON ` + OperationsTable + ` (run_id)`,
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set up audit database: %w", err)
		}
	}

	logger = logger.Named("audit.sqlite")
	logger.Info("Ensured audit tables exist", zap.String("path", path))

	return &SQLiteRecorder{
		sqlRecorder: newSQLRecorder(db, ReportsTable, OperationsTable, joinFields, logger),
	}, nil
}

// Close closes the database
func (r *SQLiteRecorder) Close() error {
	return r.db.Close()
}
