// pkg/vocabulary/builder.go
package vocabulary

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/David-Botos/user-normalizer/pkg/model"
	"github.com/David-Botos/user-normalizer/pkg/normalizer"
	"github.com/David-Botos/user-normalizer/pkg/source"
)

// ErrNoSources is returned when there is nothing to pre-scan
var ErrNoSources = errors.New("no sources to pre-scan")

// Builder collects the distinct categorical values of a bounded prefix of the
// sources, using the same extraction rules as the normalizer
type Builder struct {
	opts    normalizer.Options
	prescan int
	logger  *zap.Logger
}

// NewBuilder creates a builder that samples the first prescan sources
func NewBuilder(opts normalizer.Options, prescan int, logger *zap.Logger) *Builder {
	if prescan <= 0 {
		prescan = 2
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Builder{
		opts:    opts,
		prescan: prescan,
		logger:  logger.Named("vocabulary"),
	}
}

// Build scans the sampled sources and returns the sorted vocabulary.
// Unreadable batches are logged and skipped.
func (b *Builder) Build(ctx context.Context, sources []source.BatchSource) (*model.CategoryVocabulary, error) {
	if len(sources) == 0 {
		return nil, ErrNoSources
	}

	sample := sources
	if len(sample) > b.prescan {
		sample = sample[:b.prescan]
	}

	values := make(map[string]map[string]struct{}, len(model.CategoricalFields))
	for _, f := range model.CategoricalFields {
		values[f] = make(map[string]struct{})
	}

	rows := 0
	for _, src := range sample {
		err := src.Batches(ctx, func(batch *model.RawBatch, err error) error {
			if err != nil {
				b.logger.Warn("Skipping unreadable batch during pre-scan",
					zap.String("batch", batch.ID.Name()),
					zap.Error(err))
				return nil
			}
			for i := range batch.Records {
				for field, v := range normalizer.CategoricalValues(&batch.Records[i], b.opts) {
					values[field][v] = struct{}{}
				}
			}
			rows += batch.Len()
			return nil
		})
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			b.logger.Warn("Skipping unreadable source during pre-scan",
				zap.String("source", src.Name()),
				zap.Error(err))
		}
	}

	// A field with no observed values stays out of the vocabulary so the
	// encoder keeps its raw column instead of emitting zero indicators
	raw := make(map[string][]string, len(values))
	for field, set := range values {
		if len(set) == 0 {
			b.logger.Warn("No values observed during pre-scan; field will not be encoded",
				zap.String("field", field))
			continue
		}
		list := make([]string, 0, len(set))
		for v := range set {
			list = append(list, v)
		}
		raw[field] = list
	}
	vocab := model.NewCategoryVocabulary(raw)

	fields := make([]zap.Field, 0, len(model.CategoricalFields)+2)
	fields = append(fields, zap.Int("sources", len(sample)), zap.Int("rows", rows))
	for _, f := range model.CategoricalFields {
		fields = append(fields, zap.Int(f, len(vocab.Values(f))))
	}
	b.logger.Info("Built category vocabulary", fields...)

	if rows == 0 {
		return vocab, fmt.Errorf("pre-scan read no rows from %d sources", len(sample))
	}
	return vocab, nil
}
