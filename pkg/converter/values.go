// pkg/converter/values.go
package converter

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/ohler55/ojg/oj"
	"go.uber.org/zap"

	"github.com/David-Botos/user-normalizer/pkg/model"
)

// isNull determines if a value should be treated as NULL
func (c *TypeConverter) isNull(value interface{}) bool {
	if value == nil {
		return true
	}

	if c.config.NullMarkersAsNull {
		if strVal, ok := value.(string); ok {
			switch strings.TrimSpace(strVal) {
			case "null", "NULL", "nil", "NIL", "None", "":
				return true
			}
		}
	}

	return false
}

// ToText converts a driver value to text. The second result is false for NULL.
func (c *TypeConverter) ToText(value interface{}) (string, bool) {
	if c.isNull(value) {
		return "", false
	}

	switch v := value.(type) {
	case string:
		return v, true
	case *string:
		if v == nil {
			return "", false
		}
		return c.ToText(*v)
	case []byte:
		return string(v), true
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32), true
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, bool:
		return fmt.Sprintf("%v", v), true
	case time.Time:
		return v.Format(TimestampLayout), true
	default:
		// Structured values (Snowflake VARIANT/OBJECT) become JSON text
		return oj.JSON(v, &oj.Options{Sort: true}), true
	}
}

// ToFloat converts a driver value to a nullable float. Unparseable text is an error.
func (c *TypeConverter) ToFloat(value interface{}) (*float64, error) {
	if c.isNull(value) {
		return nil, nil
	}

	var f float64
	switch v := value.(type) {
	case float64:
		f = v
	case float32:
		f = float64(v)
	case int:
		f = float64(v)
	case int8:
		f = float64(v)
	case int16:
		f = float64(v)
	case int32:
		f = float64(v)
	case int64:
		f = float64(v)
	case uint8:
		f = float64(v)
	case uint16:
		f = float64(v)
	case uint32:
		f = float64(v)
	case uint64:
		f = float64(v)
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return nil, fmt.Errorf("cannot convert string '%s' to numeric", v)
		}
		f = parsed
	case []byte:
		return c.ToFloat(string(v))
	default:
		return nil, fmt.Errorf("cannot convert %T to numeric", value)
	}

	if math.IsNaN(f) {
		return nil, nil
	}
	return &f, nil
}

// AssignRaw stores a driver value into the matching RawRecord field
func (c *TypeConverter) AssignRaw(rec *model.RawRecord, column string, value interface{}) error {
	switch column {
	case RawAge, RawIncome, RawCreditScore:
		f, err := c.ToFloat(value)
		if err != nil {
			// A bad numeric cell reads as missing so imputation can fill it
			c.logger.Debug("Unreadable numeric cell",
				zap.String("column", column),
				zap.Error(err))
			f = nil
		}
		switch column {
		case RawAge:
			rec.Age = f
		case RawIncome:
			rec.Income = f
		default:
			rec.CreditScore = f
		}
		return nil
	}

	text, ok := c.ToText(value)
	if !ok {
		text = ""
	}

	switch column {
	case RawID:
		rec.ID = text
	case RawLastLogin:
		rec.LastLogin = text
	case RawRegistrationDate:
		rec.RegistrationDate = text
	case RawGender:
		if ok {
			rec.Gender = &text
		} else {
			rec.Gender = nil
		}
	case RawCountry:
		rec.Country = text
	case RawAddress:
		rec.Address = text
	case RawPurchaseHistory:
		rec.PurchaseHistory = text
	case RawLoginHistory:
		rec.LoginHistory = text
	default:
		return fmt.Errorf("unknown raw column: %s", column)
	}
	return nil
}
