// pkg/vocabulary/vocabulary_test.go
package vocabulary

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/David-Botos/user-normalizer/pkg/model"
	"github.com/David-Botos/user-normalizer/pkg/normalizer"
	"github.com/David-Botos/user-normalizer/pkg/source"
)

type fakeSource struct {
	name    string
	batches []*model.RawBatch
	errs    []error
	openErr error
	reads   int
}

func (f *fakeSource) Name() string { return f.name }

func (f *fakeSource) Batches(ctx context.Context, yield source.YieldFunc) error {
	f.reads++
	if f.openErr != nil {
		return f.openErr
	}
	for i, b := range f.batches {
		var err error
		if i < len(f.errs) {
			err = f.errs[i]
		}
		if yerr := yield(b, err); yerr != nil {
			return yerr
		}
	}
	return nil
}

func sptr(s string) *string { return &s }

func record(category, gender, country, address string) model.RawRecord {
	rec := model.RawRecord{
		Country:         country,
		Address:         address,
		PurchaseHistory: `{"category":"` + category + `"}`,
	}
	if gender != "" {
		rec.Gender = sptr(gender)
	}
	return rec
}

func batch(name string, records ...model.RawRecord) *model.RawBatch {
	return &model.RawBatch{ID: model.BatchID{Source: name}, Records: records}
}

func TestBuild(t *testing.T) {
	first := &fakeSource{name: "a", batches: []*model.RawBatch{
		batch("a", record("books", "female", "China", "广东省广州市"), record("toys", "", "Japan", "Tokyo")),
		batch("a"),
	}, errs: []error{nil, errors.New("corrupt row-group")}}
	second := &fakeSource{name: "b", batches: []*model.RawBatch{
		batch("b", record("books", "male", "China", "浙江省杭州市")),
	}}
	third := &fakeSource{name: "c", batches: []*model.RawBatch{
		batch("c", record("garden", "male", "USA", "")),
	}}

	b := NewBuilder(normalizer.DefaultOptions(), 2, zap.NewNop())
	vocab, err := b.Build(context.Background(), []source.BatchSource{first, second, third})
	require.NoError(t, err)

	assert.Equal(t, []string{"books", "toys"}, vocab.Values(model.FieldCategory))
	assert.Equal(t, []string{"female", "male", "unknown"}, vocab.Values(model.FieldGender))
	assert.Equal(t, []string{"China", "Japan"}, vocab.Values(model.FieldCountry))
	assert.Equal(t, []string{"other", "广东省", "浙江省"}, vocab.Values(model.FieldProvince))

	assert.Equal(t, 0, third.reads, "sources beyond the pre-scan are not read")
}

func TestBuildSkipsUnobservedFields(t *testing.T) {
	noCategory := record("", "female", "", "广东省广州市")
	noCategory.PurchaseHistory = `{"payment_method":"card"}`
	src := &fakeSource{name: "a", batches: []*model.RawBatch{batch("a", noCategory)}}

	vocab, err := NewBuilder(normalizer.DefaultOptions(), 2, zap.NewNop()).
		Build(context.Background(), []source.BatchSource{src})
	require.NoError(t, err)

	assert.False(t, vocab.Has(model.FieldCategory))
	assert.False(t, vocab.Has(model.FieldCountry))
	assert.True(t, vocab.Has(model.FieldGender))
	assert.Equal(t, []string{model.FieldGender, model.FieldProvince}, vocab.Fields())

	schema := model.BuildSchema(vocab, true, false)
	assert.NotNil(t, schema.GetColumnByName("category"), "raw category column is kept")
	assert.NotNil(t, schema.GetColumnByName("country"), "raw country column is kept")
	assert.Nil(t, schema.GetColumnByName("gender"))
	assert.NotNil(t, schema.GetColumnByName("gender_female"))
}

func TestBuildErrors(t *testing.T) {
	b := NewBuilder(normalizer.DefaultOptions(), 2, zap.NewNop())

	_, err := b.Build(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNoSources)

	broken := &fakeSource{name: "x", openErr: source.ErrSourceUnavailable}
	_, err = b.Build(context.Background(), []source.BatchSource{broken})
	assert.Error(t, err)
}

func TestSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "vocab.yaml")
	vocab := model.NewCategoryVocabulary(map[string][]string{
		model.FieldCountry:  {"Japan", "China"},
		model.FieldProvince: {"广东省", "other"},
	})

	require.NoError(t, Save(path, vocab))
	loaded, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, vocab.Map(), loaded.Map())
	assert.Equal(t, vocab.OneHotColumns(), loaded.OneHotColumns())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "version: 1")
}

func TestLoadRejectsBadFiles(t *testing.T) {
	dir := t.TempDir()

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("fields: [unclosed"), 0o644))
	_, err := Load(bad)
	assert.Error(t, err)

	future := filepath.Join(dir, "future.yaml")
	require.NoError(t, os.WriteFile(future, []byte("version: 9\nfields: {}\n"), 0o644))
	_, err = Load(future)
	assert.Error(t, err)
}

func TestLoadOrBuild(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vocab.yaml")
	src := &fakeSource{name: "a", batches: []*model.RawBatch{
		batch("a", record("books", "female", "China", "广东省")),
	}}
	b := NewBuilder(normalizer.DefaultOptions(), 2, zap.NewNop())

	built, err := LoadOrBuild(context.Background(), path, b, []source.BatchSource{src})
	require.NoError(t, err)
	assert.Equal(t, 1, src.reads)
	assert.FileExists(t, path)

	reused, err := LoadOrBuild(context.Background(), path, b, []source.BatchSource{src})
	require.NoError(t, err)
	assert.Equal(t, 1, src.reads, "second run reuses the saved vocabulary")
	assert.Equal(t, built.Map(), reused.Map())
}
