package pipeline

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/David-Botos/user-normalizer/pkg/audit"
	"github.com/David-Botos/user-normalizer/pkg/model"
	"github.com/David-Botos/user-normalizer/pkg/sink"
	"github.com/David-Botos/user-normalizer/pkg/source"
)

// ErrNoSources is returned when a run has nothing to read
var ErrNoSources = errors.New("no sources to normalize")

// BatchHook observes every written batch. Calls are serialized.
type BatchHook func(batch *model.NormalizedBatch, report *model.BatchReport)

// Runner reads every source in order and normalizes batches on a worker pool
type Runner struct {
	runID        string
	sources      []source.BatchSource
	normalizer   Normalizer
	sink         sink.BatchSink
	recorder     audit.Recorder
	verifier     *Verifier
	errorHandler *ErrorHandler
	metrics      *RunMetrics
	logger       *zap.Logger
	workerCount  int
	hooks        []BatchHook
}

// NewRunner creates a runner with one worker per CPU, capped
func NewRunner(
	sources []source.BatchSource,
	normalizer Normalizer,
	batchSink sink.BatchSink,
	logger *zap.Logger,
) *Runner {
	runID := uuid.New().String()
	logger = logger.With(zap.String("runID", runID))

	return &Runner{
		runID:        runID,
		sources:      sources,
		normalizer:   normalizer,
		sink:         batchSink,
		recorder:     audit.NopRecorder{},
		errorHandler: NewErrorHandler(logger),
		metrics:      NewRunMetrics(runID, logger),
		logger:       logger,
		workerCount:  calculateOptimalWorkerCount(),
	}
}

// WithWorkerCount sets the number of worker goroutines
func (r *Runner) WithWorkerCount(count int) *Runner {
	if count > 0 {
		r.workerCount = count
	}
	return r
}

// WithRecorder persists batch reports through rec
func (r *Runner) WithRecorder(rec audit.Recorder) *Runner {
	if rec != nil {
		r.recorder = rec
	}
	return r
}

// WithVerification re-reads every artifact after it is written and aborts on a mismatch
func (r *Runner) WithVerification(enabled bool) *Runner {
	if enabled {
		r.verifier = NewVerifier(r.logger)
	} else {
		r.verifier = nil
	}
	return r
}

// OnBatch registers a hook called for every written batch
func (r *Runner) OnBatch(hook BatchHook) *Runner {
	r.hooks = append(r.hooks, hook)
	return r
}

// RunID identifies this run in logs and the audit trail
func (r *Runner) RunID() string {
	return r.runID
}

// Metrics returns the run's metrics collector
func (r *Runner) Metrics() *RunMetrics {
	return r.metrics
}

// Run processes every source. Unreadable batches are recorded in the summary and
// skipped; a sink failure stops the run and is returned with the partial summary.
func (r *Runner) Run(ctx context.Context) (*RunSummary, error) {
	if len(r.sources) == 0 {
		return nil, ErrNoSources
	}

	r.logger.Info("Starting normalization run",
		zap.Int("sources", len(r.sources)),
		zap.Int("workers", r.workerCount))

	jobs := make(chan BatchJob, r.workerCount*2)
	results := make(chan BatchResult, r.workerCount*2)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(jobs)
		return r.produce(gctx, jobs)
	})

	var wg sync.WaitGroup
	for i := 0; i < r.workerCount; i++ {
		worker := NewWorker(i, r.runID, r.normalizer, r.sink, r.recorder, r.errorHandler, r.logger).
			WithVerifier(r.verifier)
		wg.Add(1)
		g.Go(func() error {
			defer wg.Done()
			return worker.Start(gctx, jobs, results)
		})
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	for result := range results {
		r.metrics.RecordBatch(result)
		if result.Success {
			for _, hook := range r.hooks {
				hook(result.Output, result.Report)
			}
		}
	}

	err := g.Wait()
	r.metrics.RecordErrors(r.errorHandler)
	r.metrics.Complete()
	summary := r.metrics.Summary()

	if err != nil {
		return summary, fmt.Errorf("normalization run aborted: %w", err)
	}
	return summary, nil
}

// produce reads sources sequentially so batches are queued in read order
func (r *Runner) produce(ctx context.Context, jobs chan<- BatchJob) error {
	seq := 0
	for _, src := range r.sources {
		r.metrics.RecordSource()

		err := src.Batches(ctx, func(batch *model.RawBatch, err error) error {
			if err != nil {
				r.skip(batch.ID, err)
				return nil
			}

			r.metrics.RecordRead(batch.Len())
			select {
			case jobs <- NewBatchJob(seq, batch):
				seq++
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
		if err == nil {
			continue
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		// The whole source was unreadable
		r.skip(model.BatchID{Source: src.Name()}, err)
	}
	return nil
}

// skip records a batch that could not be read; reads never abort the run
func (r *Runner) skip(id model.BatchID, err error) {
	category := r.errorHandler.CategorizeError(err)
	if category != ErrorCategoryBatchRead {
		err = &source.BatchReadError{Batch: id, Err: err}
		category = ErrorCategoryBatchRead
	}
	r.errorHandler.HandleError(NewErrorRecord(err, category).WithBatch(id))
	r.metrics.RecordFailure(id, category, err)
}

// calculateOptimalWorkerCount picks a pool size from the available CPUs
func calculateOptimalWorkerCount() int {
	n := runtime.NumCPU()
	if n > 8 {
		n = 8
	}
	if n < 1 {
		n = 1
	}
	return n
}
