// pkg/normalizer/features.go
package normalizer

import (
	"math"
	"time"

	"github.com/David-Botos/user-normalizer/pkg/model"
	"github.com/David-Botos/user-normalizer/pkg/stats"
)

// DayOfWeek returns the weekday with Monday = 0 and Sunday = 6
func DayOfWeek(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}

const secondsPerDay = 24 * 60 * 60

// DaysBetween returns floor((to - from) / 24h); negative spans are kept.
// It works on Unix seconds since time.Duration saturates past about 292 years.
func DaysBetween(from, to time.Time) int {
	secs := to.Unix() - from.Unix()
	if to.Nanosecond() < from.Nanosecond() {
		secs--
	}
	days := secs / secondsPerDay
	if secs%secondsPerDay < 0 {
		days--
	}
	return int(days)
}

func deriveTimeFeatures(rec *model.NormalizedRecord) {
	if rec.LastLogin != nil {
		hour := rec.LastLogin.Hour()
		dow := DayOfWeek(*rec.LastLogin)
		rec.LoginHour = &hour
		rec.LoginDayOfWeek = &dow
		rec.IsWeekend = dow >= 5
	}
	if rec.LastLogin != nil && rec.RegistrationDate != nil {
		days := DaysBetween(*rec.RegistrationDate, *rec.LastLogin)
		rec.DaysSinceRegistration = &days
	}
}

// encode builds the indicator vector for one record. Values outside the
// vocabulary match no column.
func encode(rec *model.NormalizedRecord, columns []model.OneHotColumn) []bool {
	indicators := make([]bool, len(columns))
	for i, col := range columns {
		if v, ok := rec.CategoricalValue(col.Field); ok && v == col.Value {
			indicators[i] = true
		}
	}
	return indicators
}

// standardize fits and applies per-batch z-scores to the scaled columns
func standardize(rows []*row) {
	if len(rows) == 0 {
		return
	}

	n := len(rows)
	age := make([]float64, n)
	income := make([]float64, n)
	price := make([]float64, n)
	items := make([]float64, n)
	credit := make([]float64, n)
	days := make([]float64, n)

	for i, r := range rows {
		age[i] = r.out.Age
		income[i] = r.out.Income
		price[i] = floatOrNaN(r.out.AveragePrice)
		items[i] = float64(r.out.ItemsCount)
		credit[i] = floatOrNaN(r.out.CreditScore)
		if r.out.DaysSinceRegistration != nil {
			days[i] = float64(*r.out.DaysSinceRegistration)
		} else {
			days[i] = math.NaN()
		}
	}

	for _, col := range [][]float64{age, income, price, items, credit, days} {
		stats.Standardize(col)
	}

	for i, r := range rows {
		r.out.Scaled = &model.ScaledFeatures{
			Age:                   age[i],
			Income:                income[i],
			AveragePrice:          nanToPtr(price[i]),
			ItemsCount:            items[i],
			CreditScore:           nanToPtr(credit[i]),
			DaysSinceRegistration: nanToPtr(days[i]),
		}
	}
}
