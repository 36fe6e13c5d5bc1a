// pkg/sink/parquet.go
package sink

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/apache/arrow/go/v16/arrow/array"
	"github.com/apache/arrow/go/v16/arrow/memory"
	"github.com/apache/arrow/go/v16/parquet"
	"github.com/apache/arrow/go/v16/parquet/compress"
	"github.com/apache/arrow/go/v16/parquet/pqarrow"
	"go.uber.org/zap"

	"github.com/David-Botos/user-normalizer/pkg/converter"
	"github.com/David-Botos/user-normalizer/pkg/model"
)

const writeBufferSize = 256 * 1024

// ParquetSink writes each batch to <dir>/<batch name>.parquet. Files are
// written to a temp file in the same directory and renamed into place, so a
// re-run replaces earlier output without leaving partial files.
type ParquetSink struct {
	dir    string
	mem    memory.Allocator
	conv   *converter.TypeConverter
	props  *parquet.WriterProperties
	logger *zap.Logger
}

// NewParquetSink creates the output directory if needed
func NewParquetSink(dir string, logger *zap.Logger) (*ParquetSink, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSinkUnavailable, err)
	}
	return &ParquetSink{
		dir:  dir,
		mem:  memory.DefaultAllocator,
		conv: converter.NewTypeConverter(logger),
		props: parquet.NewWriterProperties(
			parquet.WithCompression(compress.Codecs.Snappy),
		),
		logger: logger.Named("parquet-sink"),
	}, nil
}

// Path returns the artifact path for a batch
func (s *ParquetSink) Path(id model.BatchID) string {
	return filepath.Join(s.dir, id.Name()+".parquet")
}

// Write encodes the batch and atomically replaces its artifact
func (s *ParquetSink) Write(ctx context.Context, batch *model.NormalizedBatch) (string, error) {
	if batch == nil || batch.Schema == nil {
		return "", fmt.Errorf("batch and schema cannot be nil")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	dest := s.Path(batch.ID)
	tmp, err := os.CreateTemp(s.dir, ".tmp-"+batch.ID.Name()+"-*")
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSinkUnavailable, err)
	}
	tmpPath := tmp.Name()

	fail := func(err error) (string, error) {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return "", err
	}

	bw := bufio.NewWriterSize(tmp, writeBufferSize)
	if err := s.EncodeBatch(bw, batch); err != nil {
		return fail(fmt.Errorf("failed to encode %s: %w", batch.ID.Name(), err))
	}
	if err := bw.Flush(); err != nil {
		return fail(fmt.Errorf("%w: %v", ErrSinkUnavailable, err))
	}
	if err := tmp.Sync(); err != nil {
		return fail(fmt.Errorf("%w: %v", ErrSinkUnavailable, err))
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("%w: %v", ErrSinkUnavailable, err)
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("%w: %v", ErrSinkUnavailable, err)
	}

	s.logger.Debug("Wrote batch",
		zap.String("batch", batch.ID.Name()),
		zap.String("path", dest),
		zap.Int("rows", batch.Len()))

	return dest, nil
}

// EncodeBatch writes the batch as a single Parquet file to w. w is not closed.
func (s *ParquetSink) EncodeBatch(w io.Writer, batch *model.NormalizedBatch) error {
	schema, err := s.conv.ArrowSchema(batch.Schema)
	if err != nil {
		return err
	}

	rb := array.NewRecordBuilder(s.mem, schema)
	defer rb.Release()

	for i, col := range batch.Schema.Columns {
		if err := s.appendColumn(rb.Field(i), col, batch); err != nil {
			return fmt.Errorf("column %s: %w", col.Name, err)
		}
	}

	rec := rb.NewRecord()
	defer rec.Release()

	fw, err := pqarrow.NewFileWriter(schema, nopCloser{w}, s.props, pqarrow.DefaultWriterProps())
	if err != nil {
		return fmt.Errorf("failed to create parquet writer: %w", err)
	}
	if rec.NumRows() > 0 {
		if err := fw.Write(rec); err != nil {
			_ = fw.Close()
			return fmt.Errorf("failed to write record: %w", err)
		}
	}
	return fw.Close()
}

// nopCloser hides any Close method so the parquet writer leaves w open
type nopCloser struct {
	io.Writer
}
