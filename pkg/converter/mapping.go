// pkg/converter/mapping.go
package converter

import (
	"strings"
)

// Raw input columns
const (
	RawID               = "id"
	RawLastLogin        = "last_login"
	RawRegistrationDate = "registration_date"
	RawAge              = "age"
	RawGender           = "gender"
	RawIncome           = "income"
	RawCreditScore      = "credit_score"
	RawCountry          = "country"
	RawAddress          = "address"
	RawPurchaseHistory  = "purchase_history"
	RawLoginHistory     = "login_history"
)

// columnAliases maps alternative input column names onto the canonical ones
var columnAliases = map[string]string{
	"timestamp":       RawLastLogin,
	"chinese_address": RawAddress,
	"user_id":         RawID,
}

var rawColumns = map[string]bool{
	RawID:               true,
	RawLastLogin:        true,
	RawRegistrationDate: true,
	RawAge:              true,
	RawGender:           true,
	RawIncome:           true,
	RawCreditScore:      true,
	RawCountry:          true,
	RawAddress:          true,
	RawPurchaseHistory:  true,
	RawLoginHistory:     true,
}

// CanonicalColumn returns the raw column a source column feeds, or "" when the
// column is not part of the input record
func CanonicalColumn(name string) string {
	n := strings.ToLower(strings.TrimSpace(name))
	if alias, ok := columnAliases[n]; ok {
		return alias
	}
	if rawColumns[n] {
		return n
	}
	return ""
}

// ColumnIndex resolves source column names to canonical raw columns. When both
// a canonical name and its alias are present, the canonical column wins.
func ColumnIndex(names []string) map[string]int {
	index := make(map[string]int, len(names))
	for i, name := range names {
		canonical := CanonicalColumn(name)
		if canonical == "" {
			continue
		}
		isAlias := strings.ToLower(strings.TrimSpace(name)) != canonical
		if _, taken := index[canonical]; taken && isAlias {
			continue
		}
		index[canonical] = i
	}
	return index
}
