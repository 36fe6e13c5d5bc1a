package pipeline

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/David-Botos/user-normalizer/pkg/audit"
	"github.com/David-Botos/user-normalizer/pkg/model"
	"github.com/David-Botos/user-normalizer/pkg/sink"
)

// WorkerState represents the current state of a worker
type WorkerState string

const (
	WorkerStateIdle      WorkerState = "idle"
	WorkerStateWorking   WorkerState = "working"
	WorkerStateCompleted WorkerState = "completed"
	WorkerStateError     WorkerState = "error"
)

// Normalizer turns a raw batch into a normalized one
type Normalizer interface {
	Normalize(batch *model.RawBatch) (*model.NormalizedBatch, *model.BatchReport, error)
}

// Worker normalizes batches and hands them to the sink
type Worker struct {
	ID           int
	runID        string
	normalizer   Normalizer
	sink         sink.BatchSink
	recorder     audit.Recorder
	verifier     *Verifier
	errorHandler *ErrorHandler
	logger       *zap.Logger
	state        WorkerState
	stateLock    sync.RWMutex
}

// NewWorker creates a new worker
func NewWorker(
	id int,
	runID string,
	normalizer Normalizer,
	batchSink sink.BatchSink,
	recorder audit.Recorder,
	errorHandler *ErrorHandler,
	logger *zap.Logger,
) *Worker {
	if recorder == nil {
		recorder = audit.NopRecorder{}
	}
	return &Worker{
		ID:           id,
		runID:        runID,
		normalizer:   normalizer,
		sink:         batchSink,
		recorder:     recorder,
		errorHandler: errorHandler,
		logger:       logger.With(zap.Int("workerID", id)),
		state:        WorkerStateIdle,
	}
}

// WithVerifier re-reads every artifact after it is written
func (w *Worker) WithVerifier(v *Verifier) *Worker {
	w.verifier = v
	return w
}

// GetState returns the current state of the worker
func (w *Worker) GetState() WorkerState {
	w.stateLock.RLock()
	defer w.stateLock.RUnlock()
	return w.state
}

// setState updates the worker state
func (w *Worker) setState(state WorkerState) {
	w.stateLock.Lock()
	defer w.stateLock.Unlock()

	prevState := w.state
	w.state = state

	if prevState != state {
		w.logger.Debug("Worker state changed",
			zap.String("from", string(prevState)),
			zap.String("to", string(state)))
	}
}

// Start processes jobs until the channel closes or the context is cancelled.
// It returns the error of the first job whose failure aborts the run.
func (w *Worker) Start(ctx context.Context, jobs <-chan BatchJob, results chan<- BatchResult) error {
	w.setState(WorkerStateWorking)
	defer func() {
		if w.GetState() != WorkerStateError {
			w.setState(WorkerStateCompleted)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case job, ok := <-jobs:
			if !ok {
				return nil
			}

			result := w.ProcessJob(ctx, job)

			select {
			case results <- result:
			case <-ctx.Done():
				w.logger.Warn("Context cancelled while sending result",
					zap.String("batch", job.Name()))
				return ctx.Err()
			}

			if !result.Success && w.errorHandler.HandleError(
				NewErrorRecord(result.Err, result.Category).WithBatch(result.Batch)) == ActionAbort {
				w.setState(WorkerStateError)
				return result.Err
			}
		}
	}
}

// ProcessJob normalizes, writes, and records a single batch
func (w *Worker) ProcessJob(ctx context.Context, job BatchJob) BatchResult {
	result := NewBatchResult(job, w.ID)

	out, report, err := w.normalizer.Normalize(job.Batch)
	if err != nil {
		result.Fail(WrapError(err, "failed to normalize "+job.Name()), ErrorCategoryCritical)
		return *result
	}
	result.Report = report
	result.Output = out
	w.errorHandler.AddCount(ErrorCategoryFieldParse, report.TotalFieldFailures())

	path, err := w.sink.Write(ctx, out)
	if err != nil {
		result.Fail(err, w.errorHandler.CategorizeError(err))
		return *result
	}
	result.Path = path
	if info, statErr := os.Stat(path); statErr == nil {
		result.Bytes = info.Size()
	}

	if w.verifier != nil {
		check, err := w.verifier.VerifyArtifact(path, out)
		if err == nil && !check.OK() {
			err = fmt.Errorf("%w: artifact %s does not match batch: %s", ErrVerificationFailed, path, check)
		}
		if err != nil {
			result.Fail(err, ErrorCategorySink)
			return *result
		}
	}

	if err := w.recorder.RecordBatch(ctx, w.runID, report); err != nil {
		w.errorHandler.HandleError(NewErrorRecord(err, ErrorCategoryAudit).WithBatch(job.Batch.ID))
	}

	result.Complete(true)

	w.logger.Info("Batch normalized",
		zap.String("batch", job.Name()),
		zap.Int("rowsIn", report.RowsIn),
		zap.Int("rowsOut", report.RowsOut),
		zap.Int("dropped", report.RowsDropped()),
		zap.Int("fieldFailures", report.TotalFieldFailures()),
		zap.String("path", path),
		zap.Duration("duration", time.Since(result.StartTime)))

	return *result
}
