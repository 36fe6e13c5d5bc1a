// pkg/model/record.go
package model

import "time"

// Categorical field names understood by the vocabulary and the one-hot encoder
const (
	FieldCategory = "category"
	FieldGender   = "gender"
	FieldCountry  = "country"
	FieldProvince = "province"
)

// CategoricalFields lists the encodable fields in their canonical column order
var CategoricalFields = []string{FieldCategory, FieldGender, FieldCountry, FieldProvince}

// RawRecord is one row of an input batch as it comes off storage.
// Embedded history fields are kept as opaque JSON text; nil pointers and empty
// strings mean the source value was null.
type RawRecord struct {
	ID               string
	LastLogin        string // also read from a "timestamp" column
	RegistrationDate string
	Age              *float64
	Gender           *string
	Income           *float64
	CreditScore      *float64
	Country          string
	Address          string // also read from a "chinese_address" column
	PurchaseHistory  string
	LoginHistory     string
}

// NormalizedRecord is one row of an output batch
type NormalizedRecord struct {
	ID               string
	LastLogin        *time.Time
	RegistrationDate *time.Time

	Age         float64
	Gender      string
	Income      float64
	CreditScore *float64
	Country     string
	Address     string
	Province    string

	// Flattened purchase_history
	PaymentMethod string
	PaymentStatus string
	PurchaseDate  string
	Category      string
	AveragePrice  *float64
	ItemsCount    int

	// Expanded login_history
	LoginCount    int
	FirstLogin    *time.Time
	DeviceCount   int
	LocationCount int

	DaysSinceRegistration *int
	LoginHour             *int
	LoginDayOfWeek        *int
	IsWeekend             bool

	// Indicators is aligned with Schema.OneHot; nil when encoding is off
	Indicators []bool
	// Scaled is set when standardization is on
	Scaled *ScaledFeatures
}

// ScaledFeatures holds the per-batch z-scores of the standardized columns.
// Nil pointers are values that were missing before scaling.
type ScaledFeatures struct {
	Age                   float64
	Income                float64
	AveragePrice          *float64
	ItemsCount            float64
	CreditScore           *float64
	DaysSinceRegistration *float64
}

// CategoricalValue returns the record's value for a categorical field
func (r *NormalizedRecord) CategoricalValue(field string) (string, bool) {
	switch field {
	case FieldCategory:
		return r.Category, r.Category != ""
	case FieldGender:
		return r.Gender, r.Gender != ""
	case FieldCountry:
		return r.Country, r.Country != ""
	case FieldProvince:
		return r.Province, r.Province != ""
	default:
		return "", false
	}
}
