// pkg/audit/audit_test.go
package audit

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/David-Botos/user-normalizer/pkg/model"
)

func testReport(source string, rg int) *model.BatchReport {
	id := model.BatchID{Source: source, RowGroup: rg}
	report := model.NewBatchReport(id, 5)
	report.RowsOut = 3
	report.Dropped[model.DropAge] = 1
	report.Dropped[model.DropIncome] = 1
	report.FieldFailures["last_login"] = 2
	report.FieldFailures["purchase_history"] = 1

	ctx := model.CleaningContext{Source: source, Batch: id.Name(), RowIdentifier: "u1"}
	report.AddOperation(ctx.Operation("last_login", "not-a-date", "", model.OpTimestampParse, "unparseable_timestamp"))
	report.AddOperation(ctx.Operation("gender", nil, "unknown", model.OpSentinelFill, "missing_value"))
	report.AddOperation(ctx.Operation("age", 41.5, "41.5", model.OpMedianFill, "missing_value"))
	return report
}

func TestSQLiteRecorder(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "audit.db")

	rec, err := NewSQLiteRecorder(ctx, path, zap.NewNop())
	require.NoError(t, err)
	defer rec.Close()

	runID := uuid.NewString()
	require.NoError(t, rec.RecordBatch(ctx, runID, testReport("data/users.parquet", 1)))
	require.NoError(t, rec.RecordBatch(ctx, runID, testReport("data/users.parquet", 0)))
	require.NoError(t, rec.RecordBatch(ctx, uuid.NewString(), testReport("data/other.parquet", 0)))

	rows, err := rec.Reports(ctx, runID)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "users_part0", rows[0].Batch)
	assert.Equal(t, "users_part1", rows[1].Batch)
	assert.Equal(t, BatchRow{
		RunID:          runID,
		Batch:          "users_part0",
		Source:         "data/users.parquet",
		RowsIn:         5,
		RowsOut:        3,
		DroppedAge:     1,
		DroppedIncome:  1,
		FieldFailures:  3,
		OperationCount: 3,
	}, rows[0])

	n, err := rec.OperationCount(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, 6, n)

	var original []sql.NullString
	require.NoError(t, rec.db.SelectContext(ctx, &original,
		`SELECT original_value FROM `+OperationsTable+` WHERE run_id = ? AND batch = ? ORDER BY id`,
		runID, "users_part0"))
	require.Len(t, original, 3)
	assert.Equal(t, sql.NullString{String: "not-a-date", Valid: true}, original[0])
	assert.False(t, original[1].Valid)
	assert.Equal(t, sql.NullString{String: "41.5", Valid: true}, original[2])

	var failed string
	require.NoError(t, rec.db.GetContext(ctx, &failed,
		`SELECT failed_fields FROM `+ReportsTable+` WHERE run_id = ? LIMIT 1`, runID))
	assert.Equal(t, "last_login,purchase_history", failed)
}

func TestSQLiteRecorderReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "audit.db")
	runID := uuid.NewString()

	rec, err := NewSQLiteRecorder(ctx, path, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, rec.RecordBatch(ctx, runID, testReport("users.parquet", 0)))
	require.NoError(t, rec.Close())

	rec, err = NewSQLiteRecorder(ctx, path, zap.NewNop())
	require.NoError(t, err)
	defer rec.Close()

	rows, err := rec.Reports(ctx, runID)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestSQLiteRecorderErrors(t *testing.T) {
	ctx := context.Background()

	_, err := NewSQLiteRecorder(ctx, "", zap.NewNop())
	assert.Error(t, err)

	_, err = NewSQLiteRecorder(ctx, filepath.Join(t.TempDir(), "audit.db"), nil)
	assert.Error(t, err)

	rec, err := NewSQLiteRecorder(ctx, filepath.Join(t.TempDir(), "audit.db"), zap.NewNop())
	require.NoError(t, err)
	defer rec.Close()
	assert.Error(t, rec.RecordBatch(ctx, "run", nil))
}

func TestNopRecorder(t *testing.T) {
	var rec Recorder = NopRecorder{}
	assert.NoError(t, rec.RecordBatch(context.Background(), "run", testReport("x", 0)))
	assert.NoError(t, rec.Close())
}

func TestPostgresRecorderRequiresConnector(t *testing.T) {
	_, err := NewPostgresRecorder(context.Background(), nil, zap.NewNop())
	assert.Error(t, err)
}

func TestQualify(t *testing.T) {
	assert.Equal(t, `"audit"."cleaned_on_normalize"`, qualify("audit", OperationsTable))
}
