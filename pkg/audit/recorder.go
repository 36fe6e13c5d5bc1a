// pkg/audit/recorder.go
package audit

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/David-Botos/user-normalizer/pkg/converter"
	"github.com/David-Botos/user-normalizer/pkg/model"
)

// Default table names
const (
	ReportsTable    = "normalize_batch_reports"
	OperationsTable = "cleaned_on_normalize"
)

// Recorder persists batch reports and their cleaning operations
type Recorder interface {
	RecordBatch(ctx context.Context, runID string, report *model.BatchReport) error
	Close() error
}

// NopRecorder discards everything
type NopRecorder struct{}

func (NopRecorder) RecordBatch(context.Context, string, *model.BatchReport) error { return nil }
func (NopRecorder) Close() error                                                  { return nil }

// BatchRow is one persisted batch report
type BatchRow struct {
	RunID          string `db:"run_id"`
	Batch          string `db:"batch"`
	Source         string `db:"source"`
	RowsIn         int    `db:"rows_in"`
	RowsOut        int    `db:"rows_out"`
	DroppedAge     int    `db:"dropped_age"`
	DroppedIncome  int    `db:"dropped_income"`
	DroppedCredit  int    `db:"dropped_credit_score"`
	FieldFailures  int    `db:"field_failures"`
	OperationCount int    `db:"operation_count"`
}

// sqlRecorder writes reports through sqlx; placeholders are rebound per driver
type sqlRecorder struct {
	db         *sqlx.DB
	reports    string
	operations string
	conv       *converter.TypeConverter
	logger     *zap.Logger

	// failedFields encodes the sorted list of fields that fell back
	failedFields func([]string) interface{}
	now          func() time.Time
}

func newSQLRecorder(db *sqlx.DB, reports, operations string, failedFields func([]string) interface{}, logger *zap.Logger) *sqlRecorder {
	return &sqlRecorder{
		db:           db,
		reports:      reports,
		operations:   operations,
		conv:         converter.NewTypeConverter(logger),
		logger:       logger,
		failedFields: failedFields,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// RecordBatch inserts the report and all of its operations in one transaction
func (r *sqlRecorder) RecordBatch(ctx context.Context, runID string, report *model.BatchReport) (err error) {
	if report == nil {
		return errors.New("batch report cannot be nil")
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				r.logger.Error("Failed to rollback transaction",
					zap.Error(rbErr),
					zap.NamedError("cause", err))
			}
		}
	}()

	recordedAt := r.now()
	_, err = tx.ExecContext(ctx, tx.Rebind(`
		INSERT INTO `+r.reports+`
		(run_id, batch, source, rows_in, rows_out, dropped_age, dropped_income,
		 dropped_credit_score, field_failures, failed_fields, operation_count, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`),
		runID,
		report.Batch.Name(),
		report.Batch.Source,
		report.RowsIn,
		report.RowsOut,
		report.Dropped[model.DropAge],
		report.Dropped[model.DropIncome],
		report.Dropped[model.DropCreditScore],
		report.TotalFieldFailures(),
		r.failedFields(failedFieldNames(report)),
		len(report.Operations),
		recordedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert batch report: %w", err)
	}

	if len(report.Operations) > 0 {
		var stmt *sqlx.Stmt
		stmt, err = tx.PreparexContext(ctx, tx.Rebind(`
			INSERT INTO `+r.operations+`
			(run_id, source, batch, column_name, original_value, new_value,
			 row_identifier, cleaning_operation, cleaning_reason, cleaned_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`))
		if err != nil {
			return fmt.Errorf("failed to prepare statement: %w", err)
		}
		defer stmt.Close()

		for _, op := range report.Operations {
			cleanedAt := op.CleanedAt
			if cleanedAt.IsZero() {
				cleanedAt = recordedAt
			}
			_, err = stmt.ExecContext(ctx,
				runID,
				op.Source,
				op.Batch,
				op.ColumnName,
				r.nullableText(op.OriginalValue),
				op.NewValue,
				op.RowIdentifier,
				op.CleaningOperation,
				op.CleaningReason,
				cleanedAt,
			)
			if err != nil {
				return fmt.Errorf("failed to insert cleaning operation: %w", err)
			}
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	r.logger.Debug("Recorded batch report",
		zap.String("batch", report.Batch.Name()),
		zap.Int("operations", len(report.Operations)))
	return nil
}

// Reports returns the persisted reports of a run ordered by batch name
func (r *sqlRecorder) Reports(ctx context.Context, runID string) ([]BatchRow, error) {
	var rows []BatchRow
	err := r.db.SelectContext(ctx, &rows, r.db.Rebind(`
		SELECT run_id, batch, source, rows_in, rows_out, dropped_age, dropped_income,
		       dropped_credit_score, field_failures, operation_count
		FROM `+r.reports+`
		WHERE run_id = ?
		ORDER BY batch
	`), runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query batch reports: %w", err)
	}
	return rows, nil
}

// OperationCount returns how many cleaning operations a run recorded
func (r *sqlRecorder) OperationCount(ctx context.Context, runID string) (int, error) {
	var n int
	err := r.db.GetContext(ctx, &n, r.db.Rebind(
		`SELECT COUNT(*) FROM `+r.operations+` WHERE run_id = ?`), runID)
	return n, err
}

func (r *sqlRecorder) nullableText(v interface{}) *string {
	s, ok := r.conv.ToText(v)
	if !ok {
		return nil
	}
	return &s
}

func failedFieldNames(report *model.BatchReport) []string {
	names := make([]string, 0, len(report.FieldFailures))
	for field, n := range report.FieldFailures {
		if n > 0 {
			names = append(names, field)
		}
	}
	sort.Strings(names)
	return names
}

func joinFields(fields []string) interface{} {
	return strings.Join(fields, ",")
}
