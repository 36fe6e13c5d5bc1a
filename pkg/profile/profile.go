// pkg/profile/profile.go
package profile

import (
	"fmt"
	"math"
	"sort"

	"github.com/David-Botos/user-normalizer/pkg/model"
)

// AgeBucketWidth is the width of the age ranges in the profile
const AgeBucketWidth = 10

// mean accumulates a running sum; values are raw (unscaled) columns
type mean struct {
	n   int
	sum float64
}

func (m *mean) add(v float64) {
	if math.IsNaN(v) {
		return
	}
	m.n++
	m.sum += v
}

func (m mean) value() (float64, bool) {
	if m.n == 0 {
		return 0, false
	}
	return m.sum / float64(m.n), true
}

// provinceStats holds running sums only, so a run over many batches stays in
// constant memory per province
type provinceStats struct {
	rows     int
	income   mean
	avgPrice mean
}

type groupStats struct {
	rows     int
	avgPrice mean
	items    int
}

// Accumulator aggregates normalized batches into a run profile.
// It is not safe for concurrent use; the pipeline serializes batch hooks.
type Accumulator struct {
	rows          int
	batches       int
	countries     map[string]int
	genderCountry map[string]map[string]int
	genders       map[string]struct{}
	provinces     map[string]*provinceStats
	ageBuckets    map[int]*groupStats
	payments      map[string]*groupStats
	categories    map[string]*groupStats
}

// NewAccumulator creates an empty profile
func NewAccumulator() *Accumulator {
	return &Accumulator{
		countries:     make(map[string]int),
		genderCountry: make(map[string]map[string]int),
		genders:       make(map[string]struct{}),
		provinces:     make(map[string]*provinceStats),
		ageBuckets:    make(map[int]*groupStats),
		payments:      make(map[string]*groupStats),
		categories:    make(map[string]*groupStats),
	}
}

// Add folds one normalized batch into the profile. The report is unused and
// accepted so Add can be registered directly as a pipeline hook.
func (a *Accumulator) Add(batch *model.NormalizedBatch, _ *model.BatchReport) {
	if batch == nil {
		return
	}
	a.batches++
	for i := range batch.Records {
		a.addRecord(&batch.Records[i])
	}
}

func (a *Accumulator) addRecord(r *model.NormalizedRecord) {
	a.rows++

	country := orUnknown(r.Country)
	a.countries[country]++

	byGender, ok := a.genderCountry[country]
	if !ok {
		byGender = make(map[string]int)
		a.genderCountry[country] = byGender
	}
	gender := orUnknown(r.Gender)
	byGender[gender]++
	a.genders[gender] = struct{}{}

	price := math.NaN()
	if r.AveragePrice != nil {
		price = *r.AveragePrice
	}

	ps, ok := a.provinces[r.Province]
	if !ok {
		ps = &provinceStats{}
		a.provinces[r.Province] = ps
	}
	ps.rows++
	ps.income.add(r.Income)
	ps.avgPrice.add(price)

	bucket := int(math.Floor(r.Age/AgeBucketWidth)) * AgeBucketWidth
	group(a.ageBuckets, bucket).add(price, r.ItemsCount)
	group(a.payments, orUnknown(r.PaymentMethod)).add(price, r.ItemsCount)
	group(a.categories, orUnknown(r.Category)).add(price, r.ItemsCount)
}

func (g *groupStats) add(price float64, items int) {
	g.rows++
	g.avgPrice.add(price)
	g.items += items
}

func group[K comparable](m map[K]*groupStats, key K) *groupStats {
	g, ok := m[key]
	if !ok {
		g = &groupStats{}
		m[key] = g
	}
	return g
}

func bucketLabel(lower int) string {
	return fmt.Sprintf("%d-%d", lower, lower+AgeBucketWidth-1)
}

func orUnknown(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}

// Rows returns the number of rows folded in
func (a *Accumulator) Rows() int {
	return a.rows
}

// CountryRow is one line of the country breakdown
type CountryRow struct {
	Country  string
	Rows     int
	ByGender map[string]int
}

// ProvinceRow is one line of the province breakdown
type ProvinceRow struct {
	Province        string
	Rows            int
	MeanIncome      float64
	HasIncome       bool
	MeanAvgPrice    float64
	HasAveragePrice bool
}

// GroupRow is one line of the age, payment method or category breakdowns
type GroupRow struct {
	Key             string
	Rows            int
	MeanAvgPrice    float64
	HasAveragePrice bool
	Items           int
}

// Countries returns countries ordered by row count, then name
func (a *Accumulator) Countries() []CountryRow {
	out := make([]CountryRow, 0, len(a.countries))
	for country, n := range a.countries {
		byGender := make(map[string]int, len(a.genderCountry[country]))
		for g, c := range a.genderCountry[country] {
			byGender[g] = c
		}
		out = append(out, CountryRow{Country: country, Rows: n, ByGender: byGender})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Rows != out[j].Rows {
			return out[i].Rows > out[j].Rows
		}
		return out[i].Country < out[j].Country
	})
	return out
}

// Genders returns every gender seen, sorted
func (a *Accumulator) Genders() []string {
	out := make([]string, 0, len(a.genders))
	for g := range a.genders {
		out = append(out, g)
	}
	sort.Strings(out)
	return out
}

// Provinces returns provinces ordered by mean income, highest first
func (a *Accumulator) Provinces() []ProvinceRow {
	out := make([]ProvinceRow, 0, len(a.provinces))
	for province, ps := range a.provinces {
		row := ProvinceRow{Province: province, Rows: ps.rows}
		row.MeanIncome, row.HasIncome = ps.income.value()
		row.MeanAvgPrice, row.HasAveragePrice = ps.avgPrice.value()
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].MeanIncome != out[j].MeanIncome {
			return out[i].MeanIncome > out[j].MeanIncome
		}
		return out[i].Province < out[j].Province
	})
	return out
}

// AgeBuckets returns the age ranges in ascending order
func (a *Accumulator) AgeBuckets() []GroupRow {
	keys := make([]int, 0, len(a.ageBuckets))
	for k := range a.ageBuckets {
		keys = append(keys, k)
	}
	sort.Ints(keys)

	out := make([]GroupRow, 0, len(keys))
	for _, k := range keys {
		out = append(out, groupRow(bucketLabel(k), a.ageBuckets[k]))
	}
	return out
}

// PaymentMethods returns payment methods ordered by mean average_price, highest first
func (a *Accumulator) PaymentMethods() []GroupRow {
	out := groupRows(a.payments)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].MeanAvgPrice > out[j].MeanAvgPrice
	})
	return out
}

// Categories returns categories ordered by row count, highest first
func (a *Accumulator) Categories() []GroupRow {
	out := groupRows(a.categories)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Rows > out[j].Rows
	})
	return out
}

// groupRows returns rows sorted by key for a stable base order
func groupRows(m map[string]*groupStats) []GroupRow {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]GroupRow, 0, len(keys))
	for _, k := range keys {
		out = append(out, groupRow(k, m[k]))
	}
	return out
}

func groupRow(key string, g *groupStats) GroupRow {
	row := GroupRow{Key: key, Rows: g.rows, Items: g.items}
	row.MeanAvgPrice, row.HasAveragePrice = g.avgPrice.value()
	return row
}
