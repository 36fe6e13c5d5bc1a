// pkg/normalizer/normalizer.go
package normalizer

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/David-Botos/user-normalizer/pkg/model"
)

var (
	// ErrNilVocabulary is returned when one-hot encoding is requested without a vocabulary
	ErrNilVocabulary = errors.New("vocabulary cannot be nil when one-hot encoding is enabled")
	// ErrNilBatch is returned by Normalize for a nil batch
	ErrNilBatch = errors.New("batch cannot be nil")
)

// Options controls the optional stages and the sentinel values
type Options struct {
	OneHot            bool
	Standardize       bool
	CreditScoreFilter bool

	ProvinceMarker   string // terminal glyph of the province token
	ProvinceSentinel string // province for addresses without the marker
	GenderSentinel   string // gender for rows with no gender

	// Age is kept when MinAge < age < MaxAge
	MinAge float64
	MaxAge float64
	// Credit score is kept when MinCreditScore <= score <= MaxCreditScore
	MinCreditScore float64
	MaxCreditScore float64
}

// DefaultOptions returns the default normalization settings
func DefaultOptions() Options {
	return Options{
		OneHot:            true,
		Standardize:       false,
		CreditScoreFilter: false,
		ProvinceMarker:    "省",
		ProvinceSentinel:  "other",
		GenderSentinel:    "unknown",
		MinAge:            0,
		MaxAge:            120,
		MinCreditScore:    300,
		MaxCreditScore:    850,
	}
}

// Validate checks option consistency
func (o Options) Validate() error {
	if o.ProvinceMarker == "" {
		return errors.New("province marker cannot be empty")
	}
	if o.ProvinceSentinel == "" || o.GenderSentinel == "" {
		return errors.New("sentinel values cannot be empty")
	}
	if o.MinAge >= o.MaxAge {
		return fmt.Errorf("invalid age bounds (%v, %v)", o.MinAge, o.MaxAge)
	}
	if o.CreditScoreFilter && o.MinCreditScore > o.MaxCreditScore {
		return fmt.Errorf("invalid credit score bounds [%v, %v]", o.MinCreditScore, o.MaxCreditScore)
	}
	return nil
}

// RecordNormalizer turns raw batches into normalized batches. It holds no
// per-batch state, so one instance may serve several workers at once.
type RecordNormalizer struct {
	vocab  *model.CategoryVocabulary
	schema *model.Schema
	opts   Options
	logger *zap.Logger
}

// NewRecordNormalizer creates a normalizer bound to a vocabulary
func NewRecordNormalizer(vocab *model.CategoryVocabulary, opts Options, logger *zap.Logger) (*RecordNormalizer, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if opts.OneHot && vocab == nil {
		return nil, ErrNilVocabulary
	}
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("invalid options: %w", err)
	}

	n := &RecordNormalizer{
		vocab:  vocab,
		schema: model.BuildSchema(vocab, opts.OneHot, opts.Standardize),
		opts:   opts,
		logger: logger.Named("normalizer"),
	}
	n.logger.Info("Embedded fields fall back per row; a malformed value no longer resets the field for the whole batch",
		zap.Bool("one_hot", opts.OneHot),
		zap.Bool("standardize", opts.Standardize),
		zap.Bool("credit_score_filter", opts.CreditScoreFilter),
		zap.Int("indicator_columns", len(n.schema.OneHot)))
	return n, nil
}

// Schema returns the output schema shared by every batch
func (n *RecordNormalizer) Schema() *model.Schema {
	return n.schema
}

// Options returns the settings the normalizer was built with
func (n *RecordNormalizer) Options() Options {
	return n.opts
}

// row is the working state of one record while the stages run
type row struct {
	out    model.NormalizedRecord
	age    float64 // NaN when missing
	income float64
	credit float64
	ctx    model.CleaningContext
}

// Normalize runs every stage over one batch. The input batch is not modified.
func (n *RecordNormalizer) Normalize(batch *model.RawBatch) (*model.NormalizedBatch, *model.BatchReport, error) {
	if batch == nil {
		return nil, nil, ErrNilBatch
	}

	report := model.NewBatchReport(batch.ID, len(batch.Records))
	logger := n.logger.With(zap.String("batch", batch.ID.Name()))

	rows := make([]*row, len(batch.Records))
	for i := range batch.Records {
		rows[i] = n.expandRow(&batch.Records[i], batch.ID, report, logger)
	}

	n.impute(rows, report)
	rows = n.filter(rows, report, logger)

	for _, r := range rows {
		deriveTimeFeatures(&r.out)
	}

	if n.opts.OneHot {
		for _, r := range rows {
			r.out.Indicators = encode(&r.out, n.schema.OneHot)
		}
	}

	if n.opts.Standardize {
		standardize(rows)
	}

	out := &model.NormalizedBatch{
		ID:      batch.ID,
		Schema:  n.schema,
		Records: make([]model.NormalizedRecord, len(rows)),
	}
	for i, r := range rows {
		out.Records[i] = r.out
	}
	report.RowsOut = len(out.Records)

	logger.Debug("Normalized batch",
		zap.Int("rowsIn", report.RowsIn),
		zap.Int("rowsOut", report.RowsOut),
		zap.Int("dropped", report.RowsDropped()),
		zap.Int("fieldFailures", report.TotalFieldFailures()))

	return out, report, nil
}

// expandRow runs the per-row stages: timestamps, embedded fields and address
func (n *RecordNormalizer) expandRow(
	raw *model.RawRecord,
	id model.BatchID,
	report *model.BatchReport,
	logger *zap.Logger,
) *row {
	r := &row{
		age:    floatOrNaN(raw.Age),
		income: floatOrNaN(raw.Income),
		credit: floatOrNaN(raw.CreditScore),
		ctx: model.CleaningContext{
			Source:        id.Source,
			Batch:         id.Name(),
			RowIdentifier: raw.ID,
		},
	}
	r.out.ID = raw.ID
	r.out.Country = raw.Country
	r.out.Address = raw.Address

	fail := func(field string, original interface{}, newValue, op string, err error) {
		report.FieldFailures[field]++
		report.AddOperation(r.ctx.Operation(field, original, newValue, op, err.Error()))
		logger.Debug("Field fallback applied",
			zap.String("row", raw.ID),
			zap.String("field", field),
			zap.Error(err))
	}

	// Timestamps
	r.out.LastLogin = n.parseTimestampField("last_login", raw.LastLogin, fail)
	r.out.RegistrationDate = n.parseTimestampField("registration_date", raw.RegistrationDate, fail)

	// Embedded fields fail independently and per row
	purchase, err := DecodePurchaseHistory(raw.PurchaseHistory)
	if err != nil {
		fail("purchase_history", nullableText(raw.PurchaseHistory), "", model.OpEmbeddedDecode, err)
	}
	r.out.PaymentMethod = purchase.PaymentMethod
	r.out.PaymentStatus = purchase.PaymentStatus
	r.out.PurchaseDate = purchase.PurchaseDate
	r.out.Category = purchase.Category
	r.out.AveragePrice = purchase.AveragePrice
	r.out.ItemsCount = purchase.ItemsCount

	login, err := DecodeLoginHistory(raw.LoginHistory)
	if err != nil {
		fail("login_history", nullableText(raw.LoginHistory), "", model.OpEmbeddedDecode, err)
	}
	r.out.LoginCount = login.LoginCount
	r.out.FirstLogin = login.FirstLogin
	r.out.DeviceCount = login.DeviceCount
	r.out.LocationCount = login.LocationCount

	// Address
	province, ok := ExtractProvince(raw.Address, n.opts.ProvinceMarker)
	if !ok {
		province = n.opts.ProvinceSentinel
		fail(model.FieldProvince, nullableText(raw.Address), province, model.OpProvinceDefault,
			fmt.Errorf("no %q marker in address", n.opts.ProvinceMarker))
	}
	r.out.Province = province

	// Gender sentinel is part of imputation but needs no batch statistics
	if raw.Gender == nil || *raw.Gender == "" {
		r.out.Gender = n.opts.GenderSentinel
		report.Imputed[model.FieldGender]++
		report.AddOperation(r.ctx.Operation(model.FieldGender, nil, n.opts.GenderSentinel,
			model.OpSentinelFill, "missing_value"))
	} else {
		r.out.Gender = *raw.Gender
	}

	return r
}

func (n *RecordNormalizer) parseTimestampField(
	field, value string,
	fail func(string, interface{}, string, string, error),
) *time.Time {
	if value == "" {
		return nil
	}
	t, err := ParseTimestamp(value)
	if err != nil {
		fail(field, value, "", model.OpTimestampParse, err)
		return nil
	}
	return &t
}

// CategoricalValues extracts the encodable values of one raw record using the
// same rules Normalize applies. The vocabulary builder relies on this.
func CategoricalValues(raw *model.RawRecord, opts Options) map[string]string {
	values := make(map[string]string, len(model.CategoricalFields))

	if category := CategoryOf(raw.PurchaseHistory); category != "" {
		values[model.FieldCategory] = category
	}

	if raw.Gender == nil || *raw.Gender == "" {
		values[model.FieldGender] = opts.GenderSentinel
	} else {
		values[model.FieldGender] = *raw.Gender
	}

	if raw.Country != "" {
		values[model.FieldCountry] = raw.Country
	}

	if province, ok := ExtractProvince(raw.Address, opts.ProvinceMarker); ok {
		values[model.FieldProvince] = province
	} else {
		values[model.FieldProvince] = opts.ProvinceSentinel
	}

	return values
}

func nullableText(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
