// pkg/normalizer/embedded.go
package normalizer

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ohler55/ojg/jp"
	"github.com/ohler55/ojg/oj"
)

// ErrNotObject is returned when embedded text decodes to something other than a JSON object
var ErrNotObject = errors.New("embedded value is not an object")

var (
	pathItems         = jp.MustParseString("$.items")
	pathPaymentMethod = jp.MustParseString("$.payment_method")
	pathPaymentStatus = jp.MustParseString("$.payment_status")
	pathPurchaseDate  = jp.MustParseString("$.purchase_date")
	pathCategory      = jp.MustParseString("$.category")
	pathAveragePrice  = jp.MustParseString("$.average_price")
	pathAvgPrice      = jp.MustParseString("$.avg_price")

	pathLoginCount = jp.MustParseString("$.login_count")
	pathFirstLogin = jp.MustParseString("$.first_login")
	pathDevices    = jp.MustParseString("$.devices")
	pathLocations  = jp.MustParseString("$.locations")
)

// PurchaseDetails is the flattened content of purchase_history
type PurchaseDetails struct {
	PaymentMethod string
	PaymentStatus string
	PurchaseDate  string
	Category      string
	AveragePrice  *float64
	ItemsCount    int
}

// LoginDetails is the expanded content of login_history
type LoginDetails struct {
	LoginCount    int
	FirstLogin    *time.Time
	DeviceCount   int
	LocationCount int
}

func decodeObject(text string) (interface{}, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyValue
	}
	data, err := oj.ParseString(text)
	if err != nil {
		return nil, fmt.Errorf("invalid json: %w", err)
	}
	if _, ok := data.(map[string]interface{}); !ok {
		return nil, ErrNotObject
	}
	return data, nil
}

func first(path jp.Expr, data interface{}) (interface{}, bool) {
	results := path.Get(data)
	if len(results) == 0 {
		return nil, false
	}
	return results[0], true
}

func stringAt(path jp.Expr, data interface{}) string {
	v, ok := first(path, data)
	if !ok {
		return ""
	}
	return toString(v)
}

// distinctCount counts distinct values of a JSON list; anything else counts as 0
func distinctCount(v interface{}) int {
	list, ok := v.([]interface{})
	if !ok {
		return 0
	}
	seen := make(map[string]struct{}, len(list))
	for _, item := range list {
		seen[toString(item)] = struct{}{}
	}
	return len(seen)
}

// DecodePurchaseHistory decodes one purchase_history value. On error the
// returned details are the zero value and the caller applies the fallback.
func DecodePurchaseHistory(text string) (PurchaseDetails, error) {
	data, err := decodeObject(text)
	if err != nil {
		return PurchaseDetails{}, err
	}

	details := PurchaseDetails{
		PaymentMethod: stringAt(pathPaymentMethod, data),
		PaymentStatus: stringAt(pathPaymentStatus, data),
		PurchaseDate:  stringAt(pathPurchaseDate, data),
		Category:      stringAt(pathCategory, data),
	}

	if items, ok := first(pathItems, data); ok {
		if list, isList := items.([]interface{}); isList {
			details.ItemsCount = len(list)
		}
	}

	price, ok := first(pathAveragePrice, data)
	if !ok {
		price, ok = first(pathAvgPrice, data)
	}
	if ok {
		if f, err := toFloat(price); err == nil {
			details.AveragePrice = &f
		}
	}

	return details, nil
}

// DecodeLoginHistory decodes one login_history value. On error the returned
// details are the zero value and the caller applies the fallback.
func DecodeLoginHistory(text string) (LoginDetails, error) {
	data, err := decodeObject(text)
	if err != nil {
		return LoginDetails{}, err
	}

	var details LoginDetails

	if v, ok := first(pathLoginCount, data); ok {
		if f, err := toFloat(v); err == nil && f > 0 {
			details.LoginCount = int(f)
		}
	}

	if v, ok := first(pathFirstLogin, data); ok {
		if t, err := ParseTimestamp(toString(v)); err == nil {
			details.FirstLogin = &t
		}
	}

	if v, ok := first(pathDevices, data); ok {
		details.DeviceCount = distinctCount(v)
	}
	if v, ok := first(pathLocations, data); ok {
		details.LocationCount = distinctCount(v)
	}

	return details, nil
}

// CategoryOf extracts the purchase category without the rest of the decode
// bookkeeping. Returns "" when the value is missing or malformed.
func CategoryOf(purchaseHistory string) string {
	details, err := DecodePurchaseHistory(purchaseHistory)
	if err != nil {
		return ""
	}
	return details.Category
}
