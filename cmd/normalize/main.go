// cmd/normalize/main.go
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/David-Botos/user-normalizer/pkg/audit"
	"github.com/David-Botos/user-normalizer/pkg/config"
	"github.com/David-Botos/user-normalizer/pkg/connector"
	"github.com/David-Botos/user-normalizer/pkg/normalizer"
	"github.com/David-Botos/user-normalizer/pkg/pipeline"
	"github.com/David-Botos/user-normalizer/pkg/profile"
	"github.com/David-Botos/user-normalizer/pkg/sink"
	"github.com/David-Botos/user-normalizer/pkg/source"
	"github.com/David-Botos/user-normalizer/pkg/vocabulary"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("Normalization failed", zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	factory := connector.NewConnectorFactory(cfg, logger)

	sources, closeSources, err := openSources(ctx, cfg, factory, logger)
	if err != nil {
		return err
	}
	defer closeSources()

	opts := normalizerOptions(cfg)

	vocab, err := vocabulary.LoadOrBuild(ctx, cfg.VocabularyPath,
		vocabulary.NewBuilder(opts, cfg.PrescanFiles, logger), sources)
	if err != nil {
		return fmt.Errorf("failed to prepare vocabulary: %w", err)
	}

	norm, err := normalizer.NewRecordNormalizer(vocab, opts, logger)
	if err != nil {
		return err
	}

	out, err := sink.NewParquetSink(cfg.OutputDir, logger)
	if err != nil {
		return err
	}

	recorder, err := openRecorder(ctx, cfg, factory, logger)
	if err != nil {
		return err
	}
	defer recorder.Close()

	prof := profile.NewAccumulator()
	runner := pipeline.NewRunner(sources, norm, out, logger).
		WithWorkerCount(cfg.WorkerPoolSize).
		WithRecorder(recorder).
		WithVerification(cfg.VerifyOutput).
		OnBatch(prof.Add)

	summary, runErr := runner.Run(ctx)

	metrics := runner.Metrics()
	logger.Info(metrics.GenerateMetricsReport())
	if data, err := metrics.ToJSON(); err == nil {
		logger.Debug("Run metrics", zap.ByteString("json", data))
	}

	if cfg.ProfilePath != "" && prof.Rows() > 0 {
		if err := prof.WriteFile(cfg.ProfilePath); err != nil {
			logger.Warn("Failed to write run profile", zap.String("path", cfg.ProfilePath), zap.Error(err))
		} else {
			logger.Info("Wrote run profile", zap.String("path", cfg.ProfilePath))
		}
	}

	if runErr != nil {
		return runErr
	}

	for _, f := range summary.Failures {
		logger.Warn("Batch skipped",
			zap.String("batch", f.Batch.Name()),
			zap.String("category", f.Category.String()),
			zap.Error(f.Err))
	}
	return nil
}

// openSources returns the configured sources in processing order
func openSources(
	ctx context.Context,
	cfg *config.Config,
	factory *connector.ConnectorFactory,
	logger *zap.Logger,
) ([]source.BatchSource, func(), error) {
	switch cfg.SourceKind {
	case config.SourceSnowflake:
		sf, err := factory.CreateSnowflakeConnector(ctx)
		if err != nil {
			return nil, nil, err
		}
		if err := sf.Validate(); err != nil {
			sf.Close()
			return nil, nil, err
		}
		sources := make([]source.BatchSource, 0, len(cfg.Snowflake.Tables))
		for _, table := range cfg.Snowflake.Tables {
			sources = append(sources, source.NewSnowflakeSource(sf, table, cfg.Snowflake.PageSize, logger))
		}
		return sources, func() { sf.Close() }, nil

	default:
		sources, err := source.NewParquetSources(cfg.InputDir, cfg.InputPattern, cfg.BatchSize, logger)
		if err != nil {
			return nil, nil, err
		}
		return sources, func() {}, nil
	}
}

// openRecorder returns the configured audit store
func openRecorder(
	ctx context.Context,
	cfg *config.Config,
	factory *connector.ConnectorFactory,
	logger *zap.Logger,
) (audit.Recorder, error) {
	switch cfg.AuditKind {
	case config.AuditSQLite:
		return audit.NewSQLiteRecorder(ctx, cfg.AuditSQLitePath, logger)

	case config.AuditPostgres:
		pg, err := factory.CreatePostgresConnector(ctx)
		if err != nil {
			return nil, err
		}
		if err := pg.Validate(); err != nil {
			pg.Close()
			return nil, err
		}
		rec, err := audit.NewPostgresRecorder(ctx, pg, logger)
		if err != nil {
			pg.Close()
			return nil, err
		}
		return &closingRecorder{Recorder: rec, close: pg.Close}, nil

	default:
		return audit.NopRecorder{}, nil
	}
}

// closingRecorder also closes the connection the recorder borrowed
type closingRecorder struct {
	audit.Recorder
	close func() error
}

func (r *closingRecorder) Close() error {
	err := r.Recorder.Close()
	if cerr := r.close(); err == nil {
		err = cerr
	}
	return err
}

func normalizerOptions(cfg *config.Config) normalizer.Options {
	opts := normalizer.DefaultOptions()
	opts.OneHot = cfg.OneHot
	opts.Standardize = cfg.Standardize
	opts.CreditScoreFilter = cfg.CreditScoreFilter
	opts.ProvinceMarker = cfg.ProvinceMarker
	opts.ProvinceSentinel = cfg.ProvinceSentinel
	opts.GenderSentinel = cfg.GenderSentinel
	return opts
}
