// pkg/converter/converter_test.go
package converter

import (
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/apache/arrow/go/v16/arrow"
	"github.com/apache/arrow/go/v16/arrow/array"
	"github.com/apache/arrow/go/v16/arrow/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/David-Botos/user-normalizer/pkg/model"
)

func TestColumnIndex(t *testing.T) {
	idx := ColumnIndex([]string{"ID", "timestamp", "chinese_address", "extra", "Age"})
	assert.Equal(t, map[string]int{
		RawID:        0,
		RawLastLogin: 1,
		RawAddress:   2,
		RawAge:       4,
	}, idx)

	// canonical name beats the alias regardless of order
	idx = ColumnIndex([]string{"last_login", "timestamp"})
	assert.Equal(t, 0, idx[RawLastLogin])
	idx = ColumnIndex([]string{"timestamp", "last_login"})
	assert.Equal(t, 1, idx[RawLastLogin])
}

func TestAssignRaw(t *testing.T) {
	c := NewTypeConverter(zap.NewNop())
	var rec model.RawRecord

	require.NoError(t, c.AssignRaw(&rec, RawAge, int64(30)))
	require.NoError(t, c.AssignRaw(&rec, RawIncome, "1234.5"))
	require.NoError(t, c.AssignRaw(&rec, RawCreditScore, "n/a"))
	require.NoError(t, c.AssignRaw(&rec, RawGender, nil))
	require.NoError(t, c.AssignRaw(&rec, RawCountry, "China"))
	require.NoError(t, c.AssignRaw(&rec, RawLastLogin, time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)))
	require.NoError(t, c.AssignRaw(&rec, RawPurchaseHistory, map[string]interface{}{"items": []int{1}}))

	require.NotNil(t, rec.Age)
	assert.Equal(t, 30.0, *rec.Age)
	require.NotNil(t, rec.Income)
	assert.Equal(t, 1234.5, *rec.Income)
	assert.Nil(t, rec.CreditScore)
	assert.Nil(t, rec.Gender)
	assert.Equal(t, "China", rec.Country)
	assert.Equal(t, "2024-01-02 03:04:05", rec.LastLogin)
	assert.JSONEq(t, `{"items":[1]}`, rec.PurchaseHistory)

	assert.Error(t, c.AssignRaw(&rec, "nope", "x"))
}

func TestArrowValue(t *testing.T) {
	mem := memory.NewGoAllocator()
	c := NewTypeConverter(zap.NewNop())

	sb := array.NewStringBuilder(mem)
	defer sb.Release()
	sb.Append("a")
	sb.AppendNull()
	strs := sb.NewArray()
	defer strs.Release()

	v, err := c.ArrowValue(strs, 0)
	require.NoError(t, err)
	assert.Equal(t, "a", v)
	v, err = c.ArrowValue(strs, 1)
	require.NoError(t, err)
	assert.Nil(t, v)

	tsType := &arrow.TimestampType{Unit: arrow.Microsecond, TimeZone: "Asia/Shanghai"}
	tb := array.NewTimestampBuilder(mem, tsType)
	defer tb.Release()
	tb.Append(arrow.Timestamp(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).UnixMicro()))
	ts := tb.NewArray()
	defer ts.Release()

	v, err = c.ArrowValue(ts, 0)
	require.NoError(t, err)
	assert.Equal(t, "2024-01-01 08:00:00", v)
}

func TestArrowSchema(t *testing.T) {
	c := NewTypeConverter(zap.NewNop())
	vocab := model.NewCategoryVocabulary(map[string][]string{model.FieldCountry: {"China"}})
	schema := model.BuildSchema(vocab, true, false)

	as, err := c.ArrowSchema(schema)
	require.NoError(t, err)
	assert.Equal(t, len(schema.Columns), as.NumFields())

	idx := as.FieldIndices("country_China")
	require.Len(t, idx, 1)
	assert.Equal(t, arrow.PrimitiveTypes.Uint8, as.Field(idx[0]).Type)
	assert.Empty(t, as.FieldIndices("country"))
}
