// pkg/converter/array.go
package converter

import (
	"fmt"
	"time"

	"github.com/apache/arrow/go/v16/arrow"
	"github.com/apache/arrow/go/v16/arrow/array"
)

// ArrowValue reads row i of an Arrow array as a plain Go value suitable for
// AssignRaw. Null cells return nil. Timestamps come back as naive wall-clock text.
func (c *TypeConverter) ArrowValue(arr arrow.Array, i int) (interface{}, error) {
	if arr.IsNull(i) {
		return nil, nil
	}

	switch a := arr.(type) {
	case *array.String:
		return a.Value(i), nil
	case *array.LargeString:
		return a.Value(i), nil
	case *array.Binary:
		return string(a.Value(i)), nil
	case *array.LargeBinary:
		return string(a.Value(i)), nil
	case *array.Float64:
		return a.Value(i), nil
	case *array.Float32:
		return a.Value(i), nil
	case *array.Int64:
		return a.Value(i), nil
	case *array.Int32:
		return a.Value(i), nil
	case *array.Int16:
		return a.Value(i), nil
	case *array.Int8:
		return a.Value(i), nil
	case *array.Uint64:
		return a.Value(i), nil
	case *array.Uint32:
		return a.Value(i), nil
	case *array.Uint16:
		return a.Value(i), nil
	case *array.Uint8:
		return a.Value(i), nil
	case *array.Boolean:
		return a.Value(i), nil
	case *array.Timestamp:
		tt := a.DataType().(*arrow.TimestampType)
		t := a.Value(i).ToTime(tt.Unit)
		if tt.TimeZone != "" {
			if loc, err := time.LoadLocation(tt.TimeZone); err == nil {
				t = t.In(loc)
			} else {
				c.logger.Debug("Unknown timestamp zone, keeping UTC wall clock")
			}
		}
		return t.Format(TimestampLayout), nil
	case *array.Date32:
		return a.Value(i).ToTime().Format("2006-01-02"), nil
	case *array.Date64:
		return a.Value(i).ToTime().Format("2006-01-02"), nil
	case *array.Dictionary:
		return c.ArrowValue(a.Dictionary(), a.GetValueIndex(i))
	default:
		return nil, fmt.Errorf("unsupported arrow type %s", arr.DataType())
	}
}
