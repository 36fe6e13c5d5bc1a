package pipeline

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/apache/arrow/go/v16/arrow"
	"github.com/apache/arrow/go/v16/arrow/memory"
	"github.com/apache/arrow/go/v16/parquet/file"
	"github.com/apache/arrow/go/v16/parquet/pqarrow"
	"go.uber.org/zap"

	"github.com/David-Botos/user-normalizer/pkg/converter"
	"github.com/David-Botos/user-normalizer/pkg/model"
)

// ErrVerificationFailed is returned when a written artifact does not match its batch
var ErrVerificationFailed = errors.New("artifact verification failed")

// StructureDiscrepancy represents a column that differs between the batch schema and the artifact
type StructureDiscrepancy struct {
	ColumnName   string
	ExpectedType string
	ActualType   string
	IsMissing    bool
}

// VerificationReport contains the result of checking one artifact
type VerificationReport struct {
	Batch                  string
	Path                   string
	VerificationTime       time.Time
	RowCountMatches        bool
	ExpectedRowCount       int64
	ActualRowCount         int64
	StructureMatches       bool
	StructureDiscrepancies []StructureDiscrepancy
	Duration               time.Duration
}

// OK reports whether the artifact matches the batch
func (r *VerificationReport) OK() bool {
	return r.RowCountMatches && r.StructureMatches
}

func (r *VerificationReport) String() string {
	var parts []string
	if !r.RowCountMatches {
		parts = append(parts, fmt.Sprintf("row count %d, expected %d", r.ActualRowCount, r.ExpectedRowCount))
	}
	for _, d := range r.StructureDiscrepancies {
		if d.IsMissing {
			parts = append(parts, fmt.Sprintf("column %s missing", d.ColumnName))
		} else {
			parts = append(parts, fmt.Sprintf("column %s is %s, expected %s", d.ColumnName, d.ActualType, d.ExpectedType))
		}
	}
	return strings.Join(parts, "; ")
}

// Verifier re-reads written artifacts and compares them with the batch they came from
type Verifier struct {
	mem    memory.Allocator
	conv   *converter.TypeConverter
	logger *zap.Logger
}

// NewVerifier creates a new verifier
func NewVerifier(logger *zap.Logger) *Verifier {
	return &Verifier{
		mem:    memory.NewGoAllocator(),
		conv:   converter.NewTypeConverter(logger),
		logger: logger,
	}
}

// VerifyArtifact checks the row count and column layout of the file at path
func (v *Verifier) VerifyArtifact(path string, batch *model.NormalizedBatch) (*VerificationReport, error) {
	start := time.Now()
	report := &VerificationReport{
		Batch:            batch.ID.Name(),
		Path:             path,
		VerificationTime: start,
		ExpectedRowCount: int64(batch.Len()),
	}

	rdr, err := file.OpenParquetFile(path, false)
	if err != nil {
		return nil, fmt.Errorf("failed to open artifact %s: %w", path, err)
	}
	defer rdr.Close()

	report.ActualRowCount = rdr.NumRows()
	report.RowCountMatches = report.ActualRowCount == report.ExpectedRowCount

	fr, err := pqarrow.NewFileReader(rdr, pqarrow.ArrowReadProperties{}, v.mem)
	if err != nil {
		return nil, fmt.Errorf("failed to read artifact schema %s: %w", path, err)
	}
	actual, err := fr.Schema()
	if err != nil {
		return nil, fmt.Errorf("failed to read artifact schema %s: %w", path, err)
	}

	expected, err := v.conv.ArrowSchema(batch.Schema)
	if err != nil {
		return nil, err
	}
	for _, want := range expected.Fields() {
		idx := actual.FieldIndices(want.Name)
		if len(idx) == 0 {
			report.StructureDiscrepancies = append(report.StructureDiscrepancies,
				StructureDiscrepancy{ColumnName: want.Name, ExpectedType: want.Type.String(), IsMissing: true})
			continue
		}
		got := actual.Field(idx[0])
		if !sameType(want.Type, got.Type) {
			report.StructureDiscrepancies = append(report.StructureDiscrepancies,
				StructureDiscrepancy{
					ColumnName:   want.Name,
					ExpectedType: want.Type.String(),
					ActualType:   got.Type.String(),
				})
		}
	}
	report.StructureMatches = len(report.StructureDiscrepancies) == 0 &&
		actual.NumFields() == expected.NumFields()
	report.Duration = time.Since(start)

	if v.logger != nil {
		v.logger.Debug("Verified artifact",
			zap.String("batch", report.Batch),
			zap.Bool("ok", report.OK()),
			zap.Int64("rows", report.ActualRowCount),
			zap.Duration("duration", report.Duration))
	}

	return report, nil
}

// sameType compares column types. Timestamps only need to agree on unit since
// the Parquet round trip does not keep the zone of naive timestamps.
func sameType(want, got arrow.DataType) bool {
	wt, ok := want.(*arrow.TimestampType)
	if !ok {
		return arrow.TypeEqual(want, got)
	}
	gt, ok := got.(*arrow.TimestampType)
	return ok && gt.Unit == wt.Unit
}
