// cmd/normalize/main_test.go
package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/apache/arrow/go/v16/arrow"
	"github.com/apache/arrow/go/v16/arrow/array"
	"github.com/apache/arrow/go/v16/arrow/memory"
	"github.com/apache/arrow/go/v16/parquet"
	"github.com/apache/arrow/go/v16/parquet/pqarrow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/David-Botos/user-normalizer/pkg/config"
)

func TestNewLogger(t *testing.T) {
	logger, err := newLogger("debug", "json")
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zapcore.DebugLevel))

	logger, err = newLogger("warn", "console")
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zapcore.InfoLevel))

	_, err = newLogger("loud", "json")
	assert.Error(t, err)
	_, err = newLogger("info", "xml")
	assert.Error(t, err)
}

func TestNormalizerOptions(t *testing.T) {
	cfg := &config.Config{
		OneHot:            false,
		Standardize:       true,
		CreditScoreFilter: true,
		ProvinceMarker:    "州",
		ProvinceSentinel:  "none",
		GenderSentinel:    "n/a",
	}
	opts := normalizerOptions(cfg)
	assert.False(t, opts.OneHot)
	assert.True(t, opts.Standardize)
	assert.True(t, opts.CreditScoreFilter)
	assert.Equal(t, "州", opts.ProvinceMarker)
	assert.Equal(t, "none", opts.ProvinceSentinel)
	assert.Equal(t, "n/a", opts.GenderSentinel)
	assert.Equal(t, float64(120), opts.MaxAge)
}

func writeInput(t *testing.T, path string) {
	t.Helper()
	mem := memory.NewGoAllocator()
	schema := arrow.NewSchema([]arrow.Field{
		{Name: "id", Type: arrow.BinaryTypes.String},
		{Name: "timestamp", Type: arrow.BinaryTypes.String, Nullable: true},
		{Name: "registration_date", Type: arrow.BinaryTypes.String, Nullable: true},
		{Name: "age", Type: arrow.PrimitiveTypes.Float64, Nullable: true},
		{Name: "gender", Type: arrow.BinaryTypes.String, Nullable: true},
		{Name: "income", Type: arrow.PrimitiveTypes.Float64, Nullable: true},
		{Name: "country", Type: arrow.BinaryTypes.String, Nullable: true},
		{Name: "chinese_address", Type: arrow.BinaryTypes.String, Nullable: true},
		{Name: "purchase_history", Type: arrow.BinaryTypes.String, Nullable: true},
		{Name: "login_history", Type: arrow.BinaryTypes.String, Nullable: true},
	}, nil)

	b := array.NewRecordBuilder(mem, schema)
	defer b.Release()

	ids := []string{"u1", "u2", "u3"}
	ages := []float64{30, 45, 130}
	for i, id := range ids {
		b.Field(0).(*array.StringBuilder).Append(id)
		b.Field(1).(*array.StringBuilder).Append("2024-03-09 22:15:00")
		b.Field(2).(*array.StringBuilder).Append("2024-03-01 23:00:00")
		b.Field(3).(*array.Float64Builder).Append(ages[i])
		b.Field(4).(*array.StringBuilder).Append("female")
		b.Field(5).(*array.Float64Builder).Append(50000)
		b.Field(6).(*array.StringBuilder).Append("China")
		b.Field(7).(*array.StringBuilder).Append("广东省广州市")
		b.Field(8).(*array.StringBuilder).Append(`{"category":"books","payment_method":"card","average_price":12.5}`)
		b.Field(9).(*array.StringBuilder).Append(`{"login_count":2}`)
	}
	rec := b.NewRecord()
	defer rec.Release()

	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	tbl := array.NewTableFromRecords(schema, []arrow.Record{rec})
	defer tbl.Release()
	require.NoError(t, pqarrow.WriteTable(tbl, f, 1024, parquet.NewWriterProperties(), pqarrow.DefaultWriterProps()))
}

func TestRun(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in")
	require.NoError(t, os.MkdirAll(in, 0o755))
	writeInput(t, filepath.Join(in, "users.parquet"))

	cfg := &config.Config{
		InputDir:         in,
		OutputDir:        filepath.Join(dir, "out"),
		InputPattern:     "*.parquet",
		SourceKind:       config.SourceParquet,
		WorkerPoolSize:   2,
		PrescanFiles:     2,
		VocabularyPath:   filepath.Join(dir, "vocab.yaml"),
		OneHot:           true,
		ProvinceMarker:   "省",
		ProvinceSentinel: "other",
		GenderSentinel:   "unknown",
		AuditKind:        config.AuditSQLite,
		AuditSQLitePath:  filepath.Join(dir, "audit.db"),
		ProfilePath:      filepath.Join(dir, "profile.md"),
	}
	require.NoError(t, cfg.Validate())

	require.NoError(t, run(context.Background(), cfg, zap.NewNop()))

	assert.FileExists(t, filepath.Join(dir, "out", "users_part0.parquet"))
	assert.FileExists(t, cfg.VocabularyPath)
	assert.FileExists(t, cfg.AuditSQLitePath)

	data, err := os.ReadFile(cfg.ProfilePath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "2 rows across 1 batches.")
}

func TestRunWithoutInput(t *testing.T) {
	cfg := &config.Config{
		InputDir:       t.TempDir(),
		OutputDir:      t.TempDir(),
		InputPattern:   "*.parquet",
		SourceKind:     config.SourceParquet,
		WorkerPoolSize: 1,
		PrescanFiles:   1,
		AuditKind:      config.AuditNone,
	}
	assert.Error(t, run(context.Background(), cfg, zap.NewNop()))
}
