// pkg/normalizer/operations.go
package normalizer

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// ErrEmptyValue is returned by parsers when the input is blank
var ErrEmptyValue = errors.New("empty value")

// timestampFormats are tried in order; zoned layouts come first so the offset
// is consumed before the wall clock is kept
var timestampFormats = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05.999999999 -0700 MST",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02",
	"2006/01/02 15:04:05",
	"2006/01/02",
	"01/02/2006 15:04:05",
	"01/02/2006",
	"01-02-2006",
}

// ParseTimestamp parses a timestamp string into a timezone-naive instant: the
// wall clock is kept and the location is set to UTC. Offsets are not applied.
func ParseTimestamp(value string) (time.Time, error) {
	cleaned := strings.TrimSpace(value)
	if cleaned == "" {
		return time.Time{}, ErrEmptyValue
	}

	for _, format := range timestampFormats {
		if t, err := time.Parse(format, cleaned); err == nil {
			return toNaive(t), nil
		}
	}

	return time.Time{}, fmt.Errorf("cannot parse time from '%s'", cleaned)
}

// toNaive drops the zone while keeping the wall clock
func toNaive(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(),
		t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
}

// ExtractProvince returns the leading part of the address up to and including
// the first occurrence of marker. The match never spans a line break.
func ExtractProvince(address, marker string) (string, bool) {
	if marker == "" || address == "" {
		return "", false
	}
	idx := strings.Index(address, marker)
	if idx < 0 {
		return "", false
	}
	prefix := address[:idx]
	if strings.ContainsAny(prefix, "\n\r") {
		return "", false
	}
	return address[:idx+len(marker)], true
}

// toFloat converts a decoded JSON scalar to float64
func toFloat(v interface{}) (float64, error) {
	if v == nil {
		return 0, errors.New("nil value")
	}

	switch val := v.(type) {
	case int64:
		return float64(val), nil
	case int:
		return float64(val), nil
	case float64:
		return val, nil
	case string:
		cleaned := strings.TrimSpace(val)
		if cleaned == "" {
			return 0, ErrEmptyValue
		}
		return strconv.ParseFloat(cleaned, 64)
	default:
		return 0, fmt.Errorf("cannot convert %T to float", v)
	}
}

// toString converts a decoded JSON scalar to string
func toString(v interface{}) string {
	if v == nil {
		return ""
	}

	switch val := v.(type) {
	case string:
		return val
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		if val == math.Trunc(val) && math.Abs(val) < 1e15 {
			return strconv.FormatInt(int64(val), 10)
		}
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return fmt.Sprintf("%v", val)
	}
}

// floatOrNaN unwraps a nullable float, mapping nil to NaN
func floatOrNaN(p *float64) float64 {
	if p == nil {
		return math.NaN()
	}
	return *p
}

// nanToPtr is the inverse of floatOrNaN
func nanToPtr(v float64) *float64 {
	if math.IsNaN(v) {
		return nil
	}
	return &v
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
