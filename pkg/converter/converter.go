// pkg/converter/converter.go
package converter

import (
	"fmt"
	"time"

	"github.com/apache/arrow/go/v16/arrow"
	"go.uber.org/zap"

	"github.com/David-Botos/user-normalizer/pkg/model"
)

// TimestampLayout is the text form used when a typed timestamp is handed to the
// normalizer as a raw value. It carries no zone.
const TimestampLayout = "2006-01-02 15:04:05.999999999"

// TypeConverter handles mapping between record values, Arrow types and driver values
type TypeConverter struct {
	logger *zap.Logger
	// Configuration options
	config TypeConverterConfig
}

// TypeConverterConfig provides configuration options for type conversion
type TypeConverterConfig struct {
	// Unit used for timestamp columns written to Parquet
	TimestampUnit arrow.TimeUnit
	// Whether textual "null"/"NULL"/"nil" markers read as missing
	NullMarkersAsNull bool
}

// DefaultConfig returns the default configuration
func DefaultConfig() TypeConverterConfig {
	return TypeConverterConfig{
		TimestampUnit:     arrow.Microsecond,
		NullMarkersAsNull: true,
	}
}

// NewTypeConverter creates a new TypeConverter with default configuration
func NewTypeConverter(logger *zap.Logger) *TypeConverter {
	return NewTypeConverterWithConfig(logger, DefaultConfig())
}

// NewTypeConverterWithConfig creates a TypeConverter with custom configuration
func NewTypeConverterWithConfig(logger *zap.Logger, config TypeConverterConfig) *TypeConverter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TypeConverter{
		logger: logger,
		config: config,
	}
}

// ArrowType maps an output column kind to its Arrow data type
func (c *TypeConverter) ArrowType(kind model.ColumnKind) (arrow.DataType, error) {
	switch kind {
	case model.KindString:
		return arrow.BinaryTypes.String, nil
	case model.KindFloat64:
		return arrow.PrimitiveTypes.Float64, nil
	case model.KindInt64:
		return arrow.PrimitiveTypes.Int64, nil
	case model.KindBool:
		return arrow.FixedWidthTypes.Boolean, nil
	case model.KindTimestamp:
		return &arrow.TimestampType{Unit: c.config.TimestampUnit}, nil
	case model.KindIndicator:
		return arrow.PrimitiveTypes.Uint8, nil
	default:
		return nil, fmt.Errorf("unknown column kind: %s", kind)
	}
}

// ArrowSchema builds the Arrow schema for a normalized batch
func (c *TypeConverter) ArrowSchema(schema *model.Schema) (*arrow.Schema, error) {
	fields := make([]arrow.Field, 0, len(schema.Columns))
	for _, col := range schema.Columns {
		dt, err := c.ArrowType(col.Kind)
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", col.Name, err)
		}
		fields = append(fields, arrow.Field{
			Name:     col.Name,
			Type:     dt,
			Nullable: col.Nullable,
		})
	}
	return arrow.NewSchema(fields, nil), nil
}

// ArrowTimestamp converts a naive instant into the configured timestamp unit
func (c *TypeConverter) ArrowTimestamp(t time.Time) (arrow.Timestamp, error) {
	return arrow.TimestampFromTime(t, c.config.TimestampUnit)
}
