// pkg/audit/postgres.go
package audit

import (
	"context"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/David-Botos/user-normalizer/pkg/connector"
)

// PostgresRecorder keeps the audit trail in the configured audit schema.
// The connection is owned by the connector; Close leaves it open.
type PostgresRecorder struct {
	*sqlRecorder
}

// NewPostgresRecorder ensures the audit tables exist in the connector's audit schema
func NewPostgresRecorder(ctx context.Context, conn *connector.PostgresConnector, logger *zap.Logger) (*PostgresRecorder, error) {
	if conn == nil {
		return nil, errors.New("postgres connector cannot be nil")
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	schema := conn.AuditSchema()
	if err := conn.EnsureSchema(ctx, schema); err != nil {
		return nil, fmt.Errorf("failed to ensure audit schema: %w", err)
	}

	if err := conn.CreateTableIfNotExists(ctx, schema, ReportsTable, []string{
		"id BIGSERIAL PRIMARY KEY",
		"run_id UUID NOT NULL",
		"batch TEXT NOT NULL",
		"source TEXT NOT NULL",
		"rows_in INTEGER NOT NULL",
		"rows_out INTEGER NOT NULL",
		"dropped_age INTEGER NOT NULL",
		"dropped_income INTEGER NOT NULL",
		"dropped_credit_score INTEGER NOT NULL",
		"field_failures INTEGER NOT NULL",
		"failed_fields TEXT[] NOT NULL",
		"operation_count INTEGER NOT NULL",
		"recorded_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT CURRENT_TIMESTAMP",
	}); err != nil {
		return nil, err
	}

	if err := conn.CreateTableIfNotExists(ctx, schema, OperationsTable, []string{
		"id BIGSERIAL PRIMARY KEY",
		"run_id UUID NOT NULL",
		"source TEXT NOT NULL",
		"batch TEXT NOT NULL",
		"column_name TEXT NOT NULL",
		"original_value TEXT",
		"new_value TEXT NOT NULL",
		"row_identifier TEXT NOT NULL",
		"cleaning_operation TEXT NOT NULL",
		"cleaning_reason TEXT NOT NULL",
		"cleaned_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP",
	}); err != nil {
		return nil, err
	}

	logger = logger.Named("audit.postgres")
	logger.Info("Ensured audit tables exist", zap.String("schema", schema))

	return &PostgresRecorder{
		sqlRecorder: newSQLRecorder(
			conn.DBx(),
			qualify(schema, ReportsTable),
			qualify(schema, OperationsTable),
			func(fields []string) interface{} { return pq.Array(fields) },
			logger,
		),
	}, nil
}

// Close is a no-op; the connector closes the pool
func (r *PostgresRecorder) Close() error {
	return nil
}

func qualify(schema, table string) string {
	return pq.QuoteIdentifier(schema) + "." + pq.QuoteIdentifier(table)
}
