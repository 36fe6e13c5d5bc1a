// pkg/model/metadata.go
package model

import "strings"

// ColumnKind is the physical type of an output column
type ColumnKind int

const (
	KindString ColumnKind = iota
	KindFloat64
	KindInt64
	KindBool
	KindTimestamp
	KindIndicator // uint8 0/1
)

func (k ColumnKind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindFloat64:
		return "float64"
	case KindInt64:
		return "int64"
	case KindBool:
		return "bool"
	case KindTimestamp:
		return "timestamp"
	case KindIndicator:
		return "indicator"
	default:
		return "unknown"
	}
}

// Field identifies which NormalizedRecord value a column carries
type Field int

const (
	ColID Field = iota
	ColLastLogin
	ColRegistrationDate
	ColAge
	ColGender
	ColIncome
	ColCreditScore
	ColCountry
	ColAddress
	ColProvince
	ColPaymentMethod
	ColPaymentStatus
	ColPurchaseDate
	ColCategory
	ColAveragePrice
	ColItemsCount
	ColLoginCount
	ColFirstLogin
	ColDeviceCount
	ColLocationCount
	ColDaysSinceRegistration
	ColLoginHour
	ColLoginDayOfWeek
	ColIsWeekend
	ColIndicator
)

// Schema describes the columns of a normalized batch in output order
type Schema struct {
	Columns []Column
	OneHot  []OneHotColumn // indicator definitions, aligned with NormalizedRecord.Indicators
	Scaled  bool
}

// Column represents metadata about an output column
type Column struct {
	Name      string     // Column name
	Field     Field      // Record value the column is read from
	Kind      ColumnKind // Physical type
	Nullable  bool       // Whether column allows null values
	Indicator int        // Index into Indicators for KindIndicator columns, -1 otherwise
}

type baseColumn struct {
	name     string
	field    Field
	kind     ColumnKind
	nullable bool
	category string // set for columns replaced by one-hot indicators
}

var baseColumns = []baseColumn{
	{"id", ColID, KindString, false, ""},
	{"last_login", ColLastLogin, KindTimestamp, true, ""},
	{"registration_date", ColRegistrationDate, KindTimestamp, true, ""},
	{"age", ColAge, KindFloat64, false, ""},
	{"gender", ColGender, KindString, false, FieldGender},
	{"income", ColIncome, KindFloat64, false, ""},
	{"credit_score", ColCreditScore, KindFloat64, true, ""},
	{"country", ColCountry, KindString, false, FieldCountry},
	{"address", ColAddress, KindString, false, ""},
	{"province", ColProvince, KindString, false, FieldProvince},
	{"payment_method", ColPaymentMethod, KindString, false, ""},
	{"payment_status", ColPaymentStatus, KindString, false, ""},
	{"purchase_date", ColPurchaseDate, KindString, false, ""},
	{"category", ColCategory, KindString, false, FieldCategory},
	{"average_price", ColAveragePrice, KindFloat64, true, ""},
	{"items_count", ColItemsCount, KindInt64, false, ""},
	{"login_count", ColLoginCount, KindInt64, false, ""},
	{"first_login", ColFirstLogin, KindTimestamp, true, ""},
	{"device_count", ColDeviceCount, KindInt64, false, ""},
	{"location_count", ColLocationCount, KindInt64, false, ""},
	{"days_since_registration", ColDaysSinceRegistration, KindInt64, true, ""},
	{"login_hour", ColLoginHour, KindInt64, true, ""},
	{"login_dayofweek", ColLoginDayOfWeek, KindInt64, true, ""},
	{"is_weekend", ColIsWeekend, KindBool, false, ""},
}

// ScaledFields lists the columns rewritten as z-scores when standardization is on
var ScaledFields = []Field{
	ColAge,
	ColIncome,
	ColAveragePrice,
	ColItemsCount,
	ColCreditScore,
	ColDaysSinceRegistration,
}

// IsScaled reports whether the field is one of the standardized columns
func IsScaled(f Field) bool {
	for _, s := range ScaledFields {
		if s == f {
			return true
		}
	}
	return false
}

// BuildSchema derives the output schema. With oneHot set, categorical columns
// covered by the vocabulary are removed and replaced by trailing indicator columns.
// With standardize set, the scaled columns become float64.
func BuildSchema(vocab *CategoryVocabulary, oneHot, standardize bool) *Schema {
	s := &Schema{Scaled: standardize}

	for _, bc := range baseColumns {
		if oneHot && bc.category != "" && vocab.Has(bc.category) {
			continue
		}
		col := Column{
			Name:      bc.name,
			Field:     bc.field,
			Kind:      bc.kind,
			Nullable:  bc.nullable,
			Indicator: -1,
		}
		if standardize && IsScaled(bc.field) {
			col.Kind = KindFloat64
		}
		s.Columns = append(s.Columns, col)
	}

	if oneHot {
		s.OneHot = vocab.OneHotColumns()
		for i, oh := range s.OneHot {
			s.Columns = append(s.Columns, Column{
				Name:      oh.Name,
				Field:     ColIndicator,
				Kind:      KindIndicator,
				Indicator: i,
			})
		}
	}

	return s
}

// ColumnNames returns the column names in output order
func (s *Schema) ColumnNames() []string {
	names := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		names[i] = c.Name
	}
	return names
}

// GetColumnByName returns a column by name (case-insensitive)
// Returns nil if column not found
func (s *Schema) GetColumnByName(name string) *Column {
	normalizedName := normalizeColumnName(name)
	for i, col := range s.Columns {
		if normalizeColumnName(col.Name) == normalizedName {
			return &s.Columns[i]
		}
	}
	return nil
}

func normalizeColumnName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
