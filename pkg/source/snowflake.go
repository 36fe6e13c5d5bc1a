// pkg/source/snowflake.go
package source

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/David-Botos/user-normalizer/pkg/converter"
	"github.com/David-Botos/user-normalizer/pkg/model"
)

// PageQuerier is the part of the Snowflake connector a table source needs
type PageQuerier interface {
	TableColumns(ctx context.Context, table string) ([]string, error)
	CountRows(ctx context.Context, table string) (int, error)
	QueryPage(ctx context.Context, table, orderBy string, limit, offset int) (*sql.Rows, error)
}

// SnowflakeSource reads one warehouse table in pages of pageSize rows, ordered
// by the id column so pages are stable across runs. Page i is batch
// <table>_part<i>.
type SnowflakeSource struct {
	db       PageQuerier
	table    string
	pageSize int
	conv     *converter.TypeConverter
	logger   *zap.Logger
}

// NewSnowflakeSource creates a source for one table
func NewSnowflakeSource(db PageQuerier, table string, pageSize int, logger *zap.Logger) *SnowflakeSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	if pageSize <= 0 {
		pageSize = 10000
	}
	return &SnowflakeSource{
		db:       db,
		table:    table,
		pageSize: pageSize,
		conv:     converter.NewTypeConverter(logger),
		logger:   logger.Named("snowflake-source").With(zap.String("table", table)),
	}
}

// Name returns the table name
func (s *SnowflakeSource) Name() string {
	return s.table
}

// Batches reads the table page by page
func (s *SnowflakeSource) Batches(ctx context.Context, yield YieldFunc) error {
	columns, err := s.db.TableColumns(ctx, s.table)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
	index := converter.ColumnIndex(columns)
	orderBy, ok := orderColumn(columns, index)
	if !ok {
		return fmt.Errorf("%w: table %s has no id column", ErrSourceUnavailable, s.table)
	}

	total, err := s.db.CountRows(ctx, s.table)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}

	pages := (total + s.pageSize - 1) / s.pageSize
	s.logger.Info("Reading table",
		zap.Int("rows", total),
		zap.Int("pages", pages),
		zap.Int("pageSize", s.pageSize))

	for page := 0; page < pages; page++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		id := model.BatchID{Source: s.table, RowGroup: page}
		records, err := s.readPage(ctx, orderBy, index, page*s.pageSize)
		if err != nil {
			if yerr := yield(&model.RawBatch{ID: id}, &BatchReadError{Batch: id, Err: err}); yerr != nil {
				return yerr
			}
			continue
		}

		if err := yield(&model.RawBatch{ID: id, Records: records}, nil); err != nil {
			return err
		}
	}

	return nil
}

func (s *SnowflakeSource) readPage(ctx context.Context, orderBy string, index map[string]int, offset int) ([]model.RawRecord, error) {
	rows, err := s.db.QueryPage(ctx, s.table, orderBy, s.pageSize, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return s.scanRows(rows, index)
}

// scanRows converts driver rows into raw records using the resolved column index
func (s *SnowflakeSource) scanRows(rows *sql.Rows, index map[string]int) ([]model.RawRecord, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var records []model.RawRecord
	values := make([]interface{}, len(cols))
	ptrs := make([]interface{}, len(cols))
	for i := range values {
		ptrs[i] = &values[i]
	}

	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		var rec model.RawRecord
		for column, idx := range index {
			if idx >= len(values) {
				continue
			}
			if err := s.conv.AssignRaw(&rec, column, values[idx]); err != nil {
				return nil, err
			}
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return records, nil
}

func orderColumn(columns []string, index map[string]int) (string, bool) {
	idx, ok := index[converter.RawID]
	if !ok {
		return "", false
	}
	return columns[idx], true
}
