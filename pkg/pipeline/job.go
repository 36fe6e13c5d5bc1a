package pipeline

import (
	"time"

	"github.com/google/uuid"

	"github.com/David-Botos/user-normalizer/pkg/model"
)

// BatchJob represents one raw batch waiting for a worker
type BatchJob struct {
	ID        string          // Unique job identifier
	Seq       int             // Position in read order
	Batch     *model.RawBatch // Rows to normalize
	CreatedAt time.Time       // Job creation timestamp
}

// NewBatchJob creates a new batch job with defaults
func NewBatchJob(seq int, batch *model.RawBatch) BatchJob {
	return BatchJob{
		ID:        uuid.New().String(),
		Seq:       seq,
		Batch:     batch,
		CreatedAt: time.Now(),
	}
}

// Name returns the batch's artifact stem
func (j BatchJob) Name() string {
	if j.Batch == nil {
		return ""
	}
	return j.Batch.ID.Name()
}

// BatchResult represents the outcome of one batch job
type BatchResult struct {
	JobID     string
	Seq       int
	Batch     model.BatchID
	Success   bool
	Path      string                 // Artifact written by the sink
	Bytes     int64                  // Artifact size
	Report    *model.BatchReport     // Nil when normalization failed
	Output    *model.NormalizedBatch // Nil when normalization failed
	Err       error
	Category  ErrorCategory
	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration
	WorkerID  int
}

// NewBatchResult initializes a result for a job
func NewBatchResult(job BatchJob, workerID int) *BatchResult {
	r := &BatchResult{
		JobID:     job.ID,
		Seq:       job.Seq,
		StartTime: time.Now(),
		WorkerID:  workerID,
	}
	if job.Batch != nil {
		r.Batch = job.Batch.ID
	}
	return r
}

// Complete marks the job as complete and calculates duration
func (r *BatchResult) Complete(success bool) {
	r.EndTime = time.Now()
	r.Duration = r.EndTime.Sub(r.StartTime)
	r.Success = success
}

// Fail records the error that ended the job
func (r *BatchResult) Fail(err error, category ErrorCategory) {
	r.Err = err
	r.Category = category
	r.Complete(false)
}

// BatchFailure is one batch that produced no artifact
type BatchFailure struct {
	Batch    model.BatchID
	Category ErrorCategory
	Err      error
}

// RunSummary represents the final run summary
type RunSummary struct {
	RunID          string
	Sources        int
	BatchesRead    int
	BatchesWritten int
	Artifacts      []string
	Failures       []BatchFailure
	RowsRead       int64
	RowsWritten    int64
	BytesWritten   int64
	Dropped        map[model.DropReason]int64
	FieldFailures  map[string]int64
	Imputed        map[string]int64
	CleaningOps    int64
	ErrorCounts    map[ErrorCategory]int
	ErrorSamples   map[ErrorCategory][]ErrorRecord
	BatchErrors    map[string]int // errors recorded per batch name
	StartTime      time.Time
	EndTime        time.Time
	Duration       time.Duration
	Throughput     float64 // rows/second
}

// RowsDropped returns the number of rows excluded by all filters
func (s *RunSummary) RowsDropped() int64 {
	var n int64
	for _, c := range s.Dropped {
		n += c
	}
	return n
}

// SuccessRate returns the percentage of read batches that were written
func (s *RunSummary) SuccessRate() float64 {
	total := s.BatchesWritten + len(s.Failures)
	if total == 0 {
		return 0
	}
	return float64(s.BatchesWritten) / float64(total) * 100
}
