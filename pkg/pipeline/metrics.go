package pipeline

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/ohler55/ojg/oj"
	"go.uber.org/zap"

	"github.com/David-Botos/user-normalizer/pkg/model"
)

// RunMetrics tracks metrics for a normalization run
type RunMetrics struct {
	mu                sync.Mutex
	logger            *zap.Logger
	RunID             string
	StartTime         time.Time
	EndTime           time.Time
	Sources           int
	BatchesRead       int
	BatchesWritten    int
	Artifacts         []string
	Failures          []BatchFailure
	TotalRowsRead     int64
	TotalRowsWritten  int64
	TotalBytesWritten int64
	TotalCleaningOps  int64
	Dropped           map[model.DropReason]int64
	FieldFailures     map[string]int64
	Imputed           map[string]int64
	ErrorCounts       map[ErrorCategory]int
	ErrorSamples      map[ErrorCategory][]ErrorRecord
	BatchErrors       map[string]int
	WorkerUtilization map[int]time.Duration
	SlowestBatch      string
	SlowestDuration   time.Duration
}

// NewRunMetrics creates a new RunMetrics instance
func NewRunMetrics(runID string, logger *zap.Logger) *RunMetrics {
	return &RunMetrics{
		RunID:             runID,
		StartTime:         time.Now(),
		Dropped:           make(map[model.DropReason]int64),
		FieldFailures:     make(map[string]int64),
		Imputed:           make(map[string]int64),
		ErrorCounts:       make(map[ErrorCategory]int),
		ErrorSamples:      make(map[ErrorCategory][]ErrorRecord),
		BatchErrors:       make(map[string]int),
		WorkerUtilization: make(map[int]time.Duration),
		logger:            logger,
	}
}

// RecordSource counts a source that was opened
func (m *RunMetrics) RecordSource() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Sources++
}

// RecordRead counts a batch handed to the workers
func (m *RunMetrics) RecordRead(rows int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.BatchesRead++
	m.TotalRowsRead += int64(rows)
}

// RecordBatch records metrics for a finished batch job
func (m *RunMetrics) RecordBatch(result BatchResult) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if result.Report != nil {
		for reason, n := range result.Report.Dropped {
			m.Dropped[reason] += int64(n)
		}
		for field, n := range result.Report.FieldFailures {
			m.FieldFailures[field] += int64(n)
		}
		for field, n := range result.Report.Imputed {
			m.Imputed[field] += int64(n)
		}
		m.TotalCleaningOps += int64(len(result.Report.Operations))
	}

	if result.Success {
		m.BatchesWritten++
		m.Artifacts = append(m.Artifacts, result.Path)
		m.TotalBytesWritten += result.Bytes
		if result.Output != nil {
			m.TotalRowsWritten += int64(result.Output.Len())
		}
	} else {
		m.failure(result.Batch, result.Category, result.Err)
	}

	m.WorkerUtilization[result.WorkerID] += result.Duration
	if result.Duration > m.SlowestDuration {
		m.SlowestDuration = result.Duration
		m.SlowestBatch = result.Batch.Name()
	}

	if m.logger != nil {
		m.logger.Debug("Batch completed",
			zap.String("batch", result.Batch.Name()),
			zap.Bool("success", result.Success),
			zap.Duration("duration", result.Duration),
			zap.Int("worker", result.WorkerID))
	}
}

// RecordFailure records a batch that never reached a worker
func (m *RunMetrics) RecordFailure(id model.BatchID, category ErrorCategory, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.BatchesRead++
	m.failure(id, category, err)
}

func (m *RunMetrics) failure(id model.BatchID, category ErrorCategory, err error) {
	m.Failures = append(m.Failures, BatchFailure{Batch: id, Category: category, Err: err})
	m.ErrorCounts[category]++
}

// RecordErrors takes the handler's counts, samples and per-batch totals.
// Category counts keep the larger of the two tallies since batch failures are
// seen by both.
func (m *RunMetrics) RecordErrors(eh *ErrorHandler) {
	counts := eh.GetErrorSummary()
	samples := eh.GetErrorSamples()
	perBatch := eh.GetBatchErrorCounts()

	m.mu.Lock()
	defer m.mu.Unlock()
	for c, n := range counts {
		if n > m.ErrorCounts[c] {
			m.ErrorCounts[c] = n
		}
	}
	m.ErrorSamples = samples
	m.BatchErrors = perBatch
}

// Complete marks the run as complete
func (m *RunMetrics) Complete() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.EndTime = time.Now()

	if m.logger != nil {
		m.logger.Info("Normalization run completed",
			zap.Duration("totalDuration", m.EndTime.Sub(m.StartTime)),
			zap.Int("batchesWritten", m.BatchesWritten),
			zap.Int("batchesFailed", len(m.Failures)),
			zap.Int64("rowsRead", m.TotalRowsRead),
			zap.Int64("rowsWritten", m.TotalRowsWritten),
			zap.Float64("throughput", m.calculateThroughput()))
	}
}

// calculateThroughput calculates the rows/second throughput
func (m *RunMetrics) calculateThroughput() float64 {
	duration := m.duration().Seconds()
	if duration <= 0 {
		return 0
	}
	return float64(m.TotalRowsWritten) / duration
}

func (m *RunMetrics) duration() time.Duration {
	if m.EndTime.IsZero() {
		return time.Since(m.StartTime)
	}
	return m.EndTime.Sub(m.StartTime)
}

// Summary creates a RunSummary from the metrics
func (m *RunMetrics) Summary() *RunSummary {
	m.mu.Lock()
	defer m.mu.Unlock()

	endTime := m.EndTime
	if endTime.IsZero() {
		endTime = time.Now()
	}

	counts := make(map[ErrorCategory]int, len(m.ErrorCounts))
	for c, n := range m.ErrorCounts {
		counts[c] = n
	}
	samples := make(map[ErrorCategory][]ErrorRecord, len(m.ErrorSamples))
	for c, records := range m.ErrorSamples {
		samples[c] = append([]ErrorRecord(nil), records...)
	}
	perBatch := make(map[string]int, len(m.BatchErrors))
	for name, n := range m.BatchErrors {
		perBatch[name] = n
	}

	artifacts := make([]string, len(m.Artifacts))
	copy(artifacts, m.Artifacts)
	sort.Strings(artifacts)

	failures := make([]BatchFailure, len(m.Failures))
	copy(failures, m.Failures)
	sort.SliceStable(failures, func(i, j int) bool {
		return failures[i].Batch.Name() < failures[j].Batch.Name()
	})

	return &RunSummary{
		RunID:          m.RunID,
		Sources:        m.Sources,
		BatchesRead:    m.BatchesRead,
		BatchesWritten: m.BatchesWritten,
		Artifacts:      artifacts,
		Failures:       failures,
		RowsRead:       m.TotalRowsRead,
		RowsWritten:    m.TotalRowsWritten,
		BytesWritten:   m.TotalBytesWritten,
		Dropped:        copyCounts(m.Dropped),
		FieldFailures:  copyCounts(m.FieldFailures),
		Imputed:        copyCounts(m.Imputed),
		CleaningOps:    m.TotalCleaningOps,
		ErrorCounts:    counts,
		ErrorSamples:   samples,
		BatchErrors:    perBatch,
		StartTime:      m.StartTime,
		EndTime:        endTime,
		Duration:       m.duration(),
		Throughput:     m.calculateThroughput(),
	}
}

func copyCounts[K comparable](in map[K]int64) map[K]int64 {
	out := make(map[K]int64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func sortedKeys[K ~string, V any](m map[K]V) []K {
	keys := make([]K, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// getPercentage safely calculates a percentage, avoiding division by zero
func getPercentage(value, total float64) float64 {
	if total == 0 {
		return 0
	}
	return (value / total) * 100
}

// GenerateMetricsReport creates a detailed metrics report
func (m *RunMetrics) GenerateMetricsReport() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	var dropped int64
	for _, n := range m.Dropped {
		dropped += n
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf(`
Normalization Metrics Report
============================
Run ID:                  %s
Duration:                %s
Start Time:              %s
End Time:                %s

Batch Summary
-------------
Sources:                 %d
Batches Read:            %s
Batches Written:         %s (%.1f%%)
Batches Failed:          %s
Slowest Batch:           %s (%s)

Row Summary
-----------
Rows Read:               %s
Rows Written:            %s
Rows Dropped:            %s (%.1f%%)
Data Written:            %s
Cleaning Operations:     %s
Average Throughput:      %s rows/sec
`,
		m.RunID,
		m.duration().Round(time.Millisecond),
		m.StartTime.Format(time.RFC3339),
		m.EndTime.Format(time.RFC3339),

		m.Sources,
		humanize.Comma(int64(m.BatchesRead)),
		humanize.Comma(int64(m.BatchesWritten)),
		getPercentage(float64(m.BatchesWritten), float64(m.BatchesRead)),
		humanize.Comma(int64(len(m.Failures))),
		m.SlowestBatch, m.SlowestDuration.Round(time.Millisecond),

		humanize.Comma(m.TotalRowsRead),
		humanize.Comma(m.TotalRowsWritten),
		humanize.Comma(dropped),
		getPercentage(float64(dropped), float64(m.TotalRowsRead)),
		humanize.Bytes(uint64(m.TotalBytesWritten)),
		humanize.Comma(m.TotalCleaningOps),
		humanize.CommafWithDigits(m.calculateThroughput(), 2),
	))

	if len(m.Dropped) > 0 {
		sb.WriteString("\nDropped Rows\n------------\n")
		for _, reason := range sortedKeys(m.Dropped) {
			sb.WriteString(fmt.Sprintf("- %s: %s\n", reason, humanize.Comma(m.Dropped[reason])))
		}
	}

	if len(m.FieldFailures) > 0 {
		sb.WriteString("\nField Fallbacks\n---------------\n")
		for _, field := range sortedKeys(m.FieldFailures) {
			sb.WriteString(fmt.Sprintf("- %s: %s\n", field, humanize.Comma(m.FieldFailures[field])))
		}
	}

	if len(m.Imputed) > 0 {
		sb.WriteString("\nImputed Values\n--------------\n")
		for _, field := range sortedKeys(m.Imputed) {
			sb.WriteString(fmt.Sprintf("- %s: %s\n", field, humanize.Comma(m.Imputed[field])))
		}
	}

	if len(m.Failures) > 0 {
		sb.WriteString("\nFailed Batches\n--------------\n")
		for _, f := range m.Failures {
			sb.WriteString(fmt.Sprintf("- %s [%s]: %v\n", f.Batch.Name(), f.Category, f.Err))
		}
	}

	if len(m.ErrorSamples) > 0 {
		sb.WriteString("\nError Samples\n-------------\n")
		categories := make([]ErrorCategory, 0, len(m.ErrorSamples))
		for c := range m.ErrorSamples {
			categories = append(categories, c)
		}
		sort.Slice(categories, func(i, j int) bool { return categories[i] < categories[j] })
		for _, c := range categories {
			sb.WriteString(fmt.Sprintf("%s (%s total)\n", c, humanize.Comma(int64(m.ErrorCounts[c]))))
			for _, r := range m.ErrorSamples[c] {
				sb.WriteString(fmt.Sprintf("- %s\n", r))
			}
		}
	}

	if len(m.BatchErrors) > 0 {
		sb.WriteString("\nErrors per Batch\n----------------\n")
		for _, name := range sortedKeys(m.BatchErrors) {
			sb.WriteString(fmt.Sprintf("- %s: %d\n", name, m.BatchErrors[name]))
		}
	}

	if total := m.duration(); total > 0 && len(m.WorkerUtilization) > 0 {
		sb.WriteString("\nWorker Efficiency\n-----------------\n")
		ids := make([]int, 0, len(m.WorkerUtilization))
		for id := range m.WorkerUtilization {
			ids = append(ids, id)
		}
		sort.Ints(ids)
		for _, id := range ids {
			eff := float64(m.WorkerUtilization[id]) / float64(total)
			sb.WriteString(fmt.Sprintf("- Worker %d: %.1f%% active time\n", id, eff*100))
		}
	}

	return sb.String()
}

// ToJSON serializes metrics to JSON
func (m *RunMetrics) ToJSON() ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	dropped := make(map[string]interface{}, len(m.Dropped))
	for reason, n := range m.Dropped {
		dropped[string(reason)] = n
	}
	fieldFailures := make(map[string]interface{}, len(m.FieldFailures))
	for field, n := range m.FieldFailures {
		fieldFailures[field] = n
	}
	batchErrors := make(map[string]interface{}, len(m.BatchErrors))
	for name, n := range m.BatchErrors {
		batchErrors[name] = int64(n)
	}
	errorCounts := make(map[string]interface{}, len(m.ErrorCounts))
	for category, n := range m.ErrorCounts {
		errorCounts[category.String()] = int64(n)
	}

	return oj.Marshal(map[string]interface{}{
		"runId":           m.RunID,
		"duration":        m.duration().String(),
		"batchesRead":     int64(m.BatchesRead),
		"batchesWritten":  int64(m.BatchesWritten),
		"batchesFailed":   int64(len(m.Failures)),
		"rowsRead":        m.TotalRowsRead,
		"rowsWritten":     m.TotalRowsWritten,
		"bytesWritten":    m.TotalBytesWritten,
		"cleaningOps":     m.TotalCleaningOps,
		"throughput":      m.calculateThroughput(),
		"dropped":         dropped,
		"fieldFailures":   fieldFailures,
		"errorCategories": errorCounts,
		"batchErrors":     batchErrors,
	}, &oj.Options{Sort: true})
}
