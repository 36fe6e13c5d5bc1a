// pkg/normalizer/normalizer_test.go
package normalizer

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/David-Botos/user-normalizer/pkg/model"
)

const (
	validPurchase = `{"items":[{"id":1},{"id":2},{"id":3}],"payment_method":"credit_card","payment_status":"paid","purchase_date":"2024-02-01","category":"books","average_price":120.5}`
	validLogin    = `{"login_count":7,"first_login":"2023-01-05 08:00:00","devices":["phone","laptop","phone"],"locations":["home","office","home","cafe"]}`
)

func fptr(v float64) *float64 { return &v }
func sptr(v string) *string   { return &v }

func rawRecord(id string, age, income float64) model.RawRecord {
	return model.RawRecord{
		ID:               id,
		LastLogin:        "2024-03-09T22:15:00+08:00",
		RegistrationDate: "2024-03-01 23:00:00",
		Age:              fptr(age),
		Gender:           sptr("female"),
		Income:           fptr(income),
		CreditScore:      fptr(700),
		Country:          "China",
		Address:          "广东省广州市天河区体育西路",
		PurchaseHistory:  validPurchase,
		LoginHistory:     validLogin,
	}
}

func testVocabulary() *model.CategoryVocabulary {
	return model.NewCategoryVocabulary(map[string][]string{
		model.FieldCategory: {"books", "toys"},
		model.FieldGender:   {"female", "male", "unknown"},
		model.FieldCountry:  {"China", "Japan"},
		model.FieldProvince: {"广东省", "other"},
	})
}

func newTestNormalizer(t *testing.T, mutate func(*Options)) *RecordNormalizer {
	t.Helper()
	opts := DefaultOptions()
	if mutate != nil {
		mutate(&opts)
	}
	n, err := NewRecordNormalizer(testVocabulary(), opts, zap.NewNop())
	require.NoError(t, err)
	return n
}

func batchOf(records ...model.RawRecord) *model.RawBatch {
	return &model.RawBatch{
		ID:      model.BatchID{Source: "users.parquet", RowGroup: 0},
		Records: records,
	}
}

func TestNewRecordNormalizer(t *testing.T) {
	_, err := NewRecordNormalizer(nil, DefaultOptions(), zap.NewNop())
	assert.ErrorIs(t, err, ErrNilVocabulary)

	_, err = NewRecordNormalizer(testVocabulary(), DefaultOptions(), nil)
	assert.Error(t, err)

	opts := DefaultOptions()
	opts.ProvinceMarker = ""
	_, err = NewRecordNormalizer(testVocabulary(), opts, zap.NewNop())
	assert.Error(t, err)

	opts = DefaultOptions()
	opts.OneHot = false
	n, err := NewRecordNormalizer(nil, opts, zap.NewNop())
	require.NoError(t, err)
	assert.Empty(t, n.Schema().OneHot)
}

func TestNormalizeNilBatch(t *testing.T) {
	n := newTestNormalizer(t, nil)
	_, _, err := n.Normalize(nil)
	assert.ErrorIs(t, err, ErrNilBatch)
}

func TestAgeScenario(t *testing.T) {
	n := newTestNormalizer(t, nil)

	// The 17-year-old carries an outlying income so the fence removes it
	batch := batchOf(
		rawRecord("u1", 17, 200000),
		rawRecord("u2", 30, 50000),
		rawRecord("u3", 45, 50000),
		rawRecord("u4", 121, 50000),
		rawRecord("u5", 60, 50000),
	)

	out, report, err := n.Normalize(batch)
	require.NoError(t, err)

	require.Len(t, out.Records, 3)
	var ages []float64
	for _, rec := range out.Records {
		ages = append(ages, rec.Age)
	}
	assert.Equal(t, []float64{30, 45, 60}, ages)

	assert.Equal(t, 5, report.RowsIn)
	assert.Equal(t, 3, report.RowsOut)
	assert.Equal(t, 2, report.RowsDropped())
	assert.Equal(t, 1, report.Dropped[model.DropAge])
	assert.Equal(t, 1, report.Dropped[model.DropIncome])
}

func TestAgeBounds(t *testing.T) {
	n := newTestNormalizer(t, nil)

	var records []model.RawRecord
	for i, age := range []float64{-5, 0, 0.5, 1, 50, 119.9, 120, 150} {
		records = append(records, rawRecord(fmt.Sprintf("u%d", i), age, 50000))
	}
	noAge := rawRecord("missing", 0, 50000)
	noAge.Age = nil
	records = append(records, noAge)

	out, report, err := n.Normalize(batchOf(records...))
	require.NoError(t, err)

	for _, rec := range out.Records {
		assert.Greater(t, rec.Age, 0.0)
		assert.Less(t, rec.Age, 120.0)
	}
	// missing age is imputed with the median and kept
	assert.Equal(t, 1, report.Imputed["age"])
	assert.Equal(t, 4, report.Dropped[model.DropAge])
	assert.Len(t, out.Records, 5)
}

func TestIncomeFence(t *testing.T) {
	n := newTestNormalizer(t, nil)

	incomes := []float64{10, 20, 30, 40, 50, 60, 70, 80, 1000, -500}
	var records []model.RawRecord
	for i, inc := range incomes {
		records = append(records, rawRecord(fmt.Sprintf("u%d", i), 30, inc))
	}

	out, report, err := n.Normalize(batchOf(records...))
	require.NoError(t, err)

	// Q1 = 22.5, Q3 = 67.5, fence = [-45, 135]
	assert.Equal(t, 2, report.Dropped[model.DropIncome])
	for _, rec := range out.Records {
		assert.GreaterOrEqual(t, rec.Income, -45.0)
		assert.LessOrEqual(t, rec.Income, 135.0)
	}
}

func TestMedianImputation(t *testing.T) {
	n := newTestNormalizer(t, nil)

	a := rawRecord("a", 20, 100)
	b := rawRecord("b", 40, 200)
	c := rawRecord("c", 30, 300)
	c.Income = nil
	c.CreditScore = nil
	c.Gender = nil

	out, report, err := n.Normalize(batchOf(a, b, c))
	require.NoError(t, err)
	require.Len(t, out.Records, 3)

	assert.Equal(t, 150.0, out.Records[2].Income)
	require.NotNil(t, out.Records[2].CreditScore)
	assert.Equal(t, 700.0, *out.Records[2].CreditScore)
	assert.Equal(t, "unknown", out.Records[2].Gender)

	assert.Equal(t, 1, report.Imputed["income"])
	assert.Equal(t, 1, report.Imputed["credit_score"])
	assert.Equal(t, 1, report.Imputed[model.FieldGender])

	var ops []string
	for _, op := range report.Operations {
		if op.RowIdentifier == "c" {
			ops = append(ops, op.CleaningOperation)
		}
	}
	assert.ElementsMatch(t, []string{model.OpSentinelFill, model.OpMedianFill, model.OpMedianFill}, ops)
}

func TestMedianImputationIsPerBatch(t *testing.T) {
	n := newTestNormalizer(t, nil)

	withoutAge := func(id string) model.RawRecord {
		r := rawRecord(id, 0, 500)
		r.Age = nil
		return r
	}

	young := batchOf(rawRecord("a1", 20, 500), rawRecord("a2", 30, 500), withoutAge("a3"))
	old := batchOf(rawRecord("b1", 60, 500), rawRecord("b2", 80, 500), withoutAge("b3"))
	old.ID.RowGroup = 1

	outYoung, _, err := n.Normalize(young)
	require.NoError(t, err)
	outOld, _, err := n.Normalize(old)
	require.NoError(t, err)

	require.Len(t, outYoung.Records, 3)
	require.Len(t, outOld.Records, 3)
	assert.Equal(t, 25.0, outYoung.Records[2].Age)
	assert.Equal(t, 70.0, outOld.Records[2].Age)

	// Normalizing again in the other order gives the same values
	againOld, _, err := n.Normalize(old)
	require.NoError(t, err)
	againYoung, _, err := n.Normalize(young)
	require.NoError(t, err)
	assert.Equal(t, 70.0, againOld.Records[2].Age)
	assert.Equal(t, 25.0, againYoung.Records[2].Age)
}

func TestCreditScoreFilter(t *testing.T) {
	records := []model.RawRecord{
		rawRecord("a", 30, 100),
		rawRecord("b", 30, 100),
		rawRecord("c", 30, 100),
	}
	records[0].CreditScore = fptr(299)
	records[2].CreditScore = fptr(850)

	off := newTestNormalizer(t, nil)
	out, _, err := off.Normalize(batchOf(records...))
	require.NoError(t, err)
	assert.Len(t, out.Records, 3)

	on := newTestNormalizer(t, func(o *Options) { o.CreditScoreFilter = true })
	out, report, err := on.Normalize(batchOf(records...))
	require.NoError(t, err)
	assert.Len(t, out.Records, 2)
	assert.Equal(t, 1, report.Dropped[model.DropCreditScore])
}

func TestMalformedPurchaseValidLogin(t *testing.T) {
	n := newTestNormalizer(t, nil)

	rec := rawRecord("u1", 30, 50000)
	rec.PurchaseHistory = `{"items": [1, 2,`

	out, report, err := n.Normalize(batchOf(rec))
	require.NoError(t, err)
	require.Len(t, out.Records, 1)

	got := out.Records[0]
	assert.Equal(t, 0, got.ItemsCount)
	assert.Empty(t, got.PaymentMethod)
	assert.Nil(t, got.AveragePrice)
	assert.Equal(t, 7, got.LoginCount)
	assert.Equal(t, 2, got.DeviceCount)
	assert.Equal(t, 3, got.LocationCount)
	require.NotNil(t, got.FirstLogin)
	assert.Equal(t, time.Date(2023, 1, 5, 8, 0, 0, 0, time.UTC), *got.FirstLogin)

	assert.Equal(t, 1, report.FieldFailures["purchase_history"])
	assert.Zero(t, report.FieldFailures["login_history"])
}

func TestPerRowIsolation(t *testing.T) {
	n := newTestNormalizer(t, nil)

	clean := []model.RawRecord{
		rawRecord("a", 30, 100),
		rawRecord("b", 40, 100),
	}
	bad := rawRecord("bad", 35, 100)
	bad.PurchaseHistory = "not json at all"
	bad.LoginHistory = "[1,2,3]"

	before, _, err := n.Normalize(batchOf(clean...))
	require.NoError(t, err)
	after, _, err := n.Normalize(batchOf(clean[0], bad, clean[1]))
	require.NoError(t, err)
	require.Len(t, after.Records, 3)

	assert.Equal(t, before.Records[0].ItemsCount, after.Records[0].ItemsCount)
	assert.Equal(t, before.Records[1].ItemsCount, after.Records[2].ItemsCount)
	assert.Equal(t, before.Records[0].DeviceCount, after.Records[0].DeviceCount)
	assert.Equal(t, 3, after.Records[2].ItemsCount)
	assert.Equal(t, 0, after.Records[1].ItemsCount)
	assert.Equal(t, 0, after.Records[1].LoginCount)
}

func TestProvinceScenarios(t *testing.T) {
	n := newTestNormalizer(t, nil)

	a := rawRecord("a", 30, 100)
	a.Address = "广东省广州市天河区…"
	b := rawRecord("b", 30, 100)
	b.Address = "Unknown Location"
	c := rawRecord("c", 30, 100)
	c.Address = ""

	out, report, err := n.Normalize(batchOf(a, b, c))
	require.NoError(t, err)
	require.Len(t, out.Records, 3)

	assert.Equal(t, "广东省", out.Records[0].Province)
	assert.Equal(t, "other", out.Records[1].Province)
	assert.Equal(t, "other", out.Records[2].Province)
	assert.Equal(t, 2, report.FieldFailures[model.FieldProvince])
}

func TestOneHotClosedVocabulary(t *testing.T) {
	n := newTestNormalizer(t, nil)
	schema := n.Schema()

	// Encoded source columns are replaced by indicators
	assert.Nil(t, schema.GetColumnByName("country"))
	assert.Nil(t, schema.GetColumnByName("gender"))
	require.NotNil(t, schema.GetColumnByName("country_China"))

	var names []string
	for _, oh := range schema.OneHot {
		names = append(names, oh.Name)
	}
	assert.Equal(t, []string{
		"category_books", "category_toys",
		"gender_female", "gender_male", "gender_unknown",
		"country_China", "country_Japan",
		"province_other", "province_广东省",
	}, names)

	rec := rawRecord("mars", 30, 100)
	rec.Country = "Mars"
	out, _, err := n.Normalize(batchOf(rec, rawRecord("cn", 30, 100)))
	require.NoError(t, err)
	require.Len(t, out.Records, 2)

	for i, oh := range schema.OneHot {
		if oh.Field == model.FieldCountry {
			assert.False(t, out.Records[0].Indicators[i], oh.Name)
		}
	}
	idx := -1
	for i, oh := range schema.OneHot {
		if oh.Name == "country_China" {
			idx = i
		}
	}
	require.GreaterOrEqual(t, idx, 0)
	assert.True(t, out.Records[1].Indicators[idx])
	assert.Len(t, out.Records[1].Indicators, len(schema.OneHot))
}

func TestTimeFeatures(t *testing.T) {
	n := newTestNormalizer(t, nil)

	weekend := rawRecord("weekend", 30, 100)
	negative := rawRecord("negative", 30, 100)
	negative.LastLogin = "2024-03-04 10:00:00"
	negative.RegistrationDate = "2024-03-04 11:00:00"
	broken := rawRecord("broken", 30, 100)
	broken.LastLogin = "yesterday-ish"

	out, report, err := n.Normalize(batchOf(weekend, negative, broken))
	require.NoError(t, err)
	require.Len(t, out.Records, 3)

	w := out.Records[0]
	require.NotNil(t, w.LastLogin)
	assert.Equal(t, time.Date(2024, 3, 9, 22, 15, 0, 0, time.UTC), *w.LastLogin)
	assert.Equal(t, 22, *w.LoginHour)
	assert.Equal(t, 5, *w.LoginDayOfWeek)
	assert.True(t, w.IsWeekend)
	assert.Equal(t, 7, *w.DaysSinceRegistration)

	neg := out.Records[1]
	assert.Equal(t, 0, *neg.LoginDayOfWeek)
	assert.False(t, neg.IsWeekend)
	assert.Equal(t, -1, *neg.DaysSinceRegistration)

	b := out.Records[2]
	assert.Nil(t, b.LastLogin)
	assert.Nil(t, b.LoginHour)
	assert.Nil(t, b.DaysSinceRegistration)
	assert.Equal(t, 1, report.FieldFailures["last_login"])
}

func TestStandardization(t *testing.T) {
	n := newTestNormalizer(t, func(o *Options) { o.Standardize = true })

	a := rawRecord("a", 20, 100)
	b := rawRecord("b", 40, 100)
	b.PurchaseHistory = ""

	out, _, err := n.Normalize(batchOf(a, b))
	require.NoError(t, err)
	require.Len(t, out.Records, 2)

	sa, sb := out.Records[0].Scaled, out.Records[1].Scaled
	require.NotNil(t, sa)
	require.NotNil(t, sb)
	assert.InDelta(t, -1, sa.Age, 1e-9)
	assert.InDelta(t, 1, sb.Age, 1e-9)
	// zero variance
	assert.Equal(t, 0.0, sa.Income)
	// b has no average_price, so a alone is fitted
	require.NotNil(t, sa.AveragePrice)
	assert.Equal(t, 0.0, *sa.AveragePrice)
	assert.Nil(t, sb.AveragePrice)
	assert.InDelta(t, 1, sa.ItemsCount, 1e-9)

	col := n.Schema().GetColumnByName("items_count")
	require.NotNil(t, col)
	assert.Equal(t, model.KindFloat64, col.Kind)
}

func TestStandardizationEmptyBatch(t *testing.T) {
	n := newTestNormalizer(t, func(o *Options) { o.Standardize = true })
	out, report, err := n.Normalize(batchOf())
	require.NoError(t, err)
	assert.Empty(t, out.Records)
	assert.Equal(t, 0, report.RowsOut)
}

func TestNormalizeIsIdempotentAndPure(t *testing.T) {
	n := newTestNormalizer(t, func(o *Options) { o.Standardize = true })

	bad := rawRecord("c", 50, 90)
	bad.Gender = nil
	bad.Income = nil
	batch := batchOf(rawRecord("a", 30, 100), rawRecord("b", 44, 120), bad)

	first, _, err := n.Normalize(batch)
	require.NoError(t, err)
	second, _, err := n.Normalize(batch)
	require.NoError(t, err)

	assert.Equal(t, first.Records, second.Records)
	assert.Nil(t, batch.Records[2].Gender)
	assert.Nil(t, batch.Records[2].Income)
}

func TestCategoricalValues(t *testing.T) {
	opts := DefaultOptions()

	rec := rawRecord("a", 30, 100)
	rec.Gender = nil
	rec.Address = "nowhere"

	got := CategoricalValues(&rec, opts)
	assert.Equal(t, map[string]string{
		model.FieldCategory: "books",
		model.FieldGender:   "unknown",
		model.FieldCountry:  "China",
		model.FieldProvince: "other",
	}, got)
}
