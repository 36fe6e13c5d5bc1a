// pkg/source/parquet.go
package source

import (
	"context"
	"fmt"

	"github.com/apache/arrow/go/v16/arrow"
	"github.com/apache/arrow/go/v16/arrow/memory"
	"github.com/apache/arrow/go/v16/parquet/file"
	"github.com/apache/arrow/go/v16/parquet/pqarrow"
	"go.uber.org/zap"

	"github.com/David-Botos/user-normalizer/pkg/converter"
	"github.com/David-Botos/user-normalizer/pkg/model"
)

// ParquetSource reads one Parquet file, one batch per row-group. With a
// positive batch size each row-group is further split into fixed-size chunks.
type ParquetSource struct {
	path      string
	batchSize int
	mem       memory.Allocator
	conv      *converter.TypeConverter
	logger    *zap.Logger
}

// NewParquetSource creates a source for the file at path
func NewParquetSource(path string, batchSize int, logger *zap.Logger) *ParquetSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ParquetSource{
		path:      path,
		batchSize: batchSize,
		mem:       memory.DefaultAllocator,
		conv:      converter.NewTypeConverter(logger),
		logger:    logger.Named("parquet-source").With(zap.String("file", path)),
	}
}

// NewParquetSources creates one source per file in dir matching pattern
func NewParquetSources(dir, pattern string, batchSize int, logger *zap.Logger) ([]BatchSource, error) {
	files, err := ListFiles(dir, pattern)
	if err != nil {
		return nil, err
	}
	sources := make([]BatchSource, 0, len(files))
	for _, f := range files {
		sources = append(sources, NewParquetSource(f, batchSize, logger))
	}
	return sources, nil
}

// Name returns the file path
func (s *ParquetSource) Name() string {
	return s.path
}

func (s *ParquetSource) open() (*file.Reader, *pqarrow.FileReader, error) {
	rdr, err := file.OpenParquetFile(s.path, false)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %s: %v", ErrSourceUnavailable, s.path, err)
	}
	fr, err := pqarrow.NewFileReader(rdr, pqarrow.ArrowReadProperties{BatchSize: 64 * 1024}, s.mem)
	if err != nil {
		rdr.Close()
		return nil, nil, fmt.Errorf("%w: %s: %v", ErrSourceUnavailable, s.path, err)
	}
	return rdr, fr, nil
}

// NumRowGroups returns the number of row-groups in the file
func (s *ParquetSource) NumRowGroups() (int, error) {
	rdr, err := file.OpenParquetFile(s.path, false)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", ErrSourceUnavailable, s.path, err)
	}
	defer rdr.Close()
	return rdr.NumRowGroups(), nil
}

// ReadRowGroup reads a single row-group as one batch, ignoring chunking
func (s *ParquetSource) ReadRowGroup(ctx context.Context, rg int) (*model.RawBatch, error) {
	rdr, fr, err := s.open()
	if err != nil {
		return nil, err
	}
	defer rdr.Close()

	if rg < 0 || rg >= rdr.NumRowGroups() {
		return nil, fmt.Errorf("row-group %d out of range [0,%d)", rg, rdr.NumRowGroups())
	}

	records, err := s.readRowGroup(ctx, fr, rg)
	if err != nil {
		return nil, err
	}
	return &model.RawBatch{
		ID:      model.BatchID{Source: s.path, RowGroup: rg},
		Records: records,
	}, nil
}

// Batches reads every row-group in order
func (s *ParquetSource) Batches(ctx context.Context, yield YieldFunc) error {
	rdr, fr, err := s.open()
	if err != nil {
		return err
	}
	defer rdr.Close()

	numGroups := rdr.NumRowGroups()
	s.logger.Debug("Reading parquet file",
		zap.Int("rowGroups", numGroups),
		zap.Int64("rows", rdr.NumRows()))

	chunked := s.batchSize > 0
	for rg := 0; rg < numGroups; rg++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		records, err := s.readRowGroup(ctx, fr, rg)
		if err != nil {
			id := model.BatchID{Source: s.path, RowGroup: rg, Chunked: chunked}
			if yerr := yield(&model.RawBatch{ID: id}, &BatchReadError{Batch: id, Err: err}); yerr != nil {
				return yerr
			}
			continue
		}

		for i, part := range chunk(records, s.batchSize) {
			batch := &model.RawBatch{
				ID:      model.BatchID{Source: s.path, RowGroup: rg, Chunk: i, Chunked: chunked},
				Records: part,
			}
			if err := yield(batch, nil); err != nil {
				return err
			}
		}
	}

	return nil
}

func (s *ParquetSource) readRowGroup(ctx context.Context, fr *pqarrow.FileReader, rg int) ([]model.RawRecord, error) {
	// A nil column list selects nothing, so every leaf column is named
	cols := make([]int, fr.ParquetReader().MetaData().Schema.NumColumns())
	for i := range cols {
		cols[i] = i
	}
	tbl, err := fr.ReadRowGroups(ctx, cols, []int{rg})
	if err != nil {
		return nil, fmt.Errorf("row-group %d: %w", rg, err)
	}
	defer tbl.Release()

	return s.tableToRecords(tbl)
}

func (s *ParquetSource) tableToRecords(tbl arrow.Table) ([]model.RawRecord, error) {
	numRows := int(tbl.NumRows())
	records := make([]model.RawRecord, numRows)

	names := make([]string, tbl.NumCols())
	for i, f := range tbl.Schema().Fields() {
		names[i] = f.Name
	}

	for column, colIdx := range converter.ColumnIndex(names) {
		row := 0
		for _, arr := range tbl.Column(colIdx).Data().Chunks() {
			for j := 0; j < arr.Len(); j++ {
				value, err := s.conv.ArrowValue(arr, j)
				if err != nil {
					return nil, fmt.Errorf("column %s: %w", names[colIdx], err)
				}
				if err := s.conv.AssignRaw(&records[row], column, value); err != nil {
					return nil, err
				}
				row++
			}
		}
	}

	return records, nil
}
