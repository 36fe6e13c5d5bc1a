package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/David-Botos/user-normalizer/pkg/model"
	"github.com/David-Botos/user-normalizer/pkg/sink"
	"github.com/David-Botos/user-normalizer/pkg/source"
)

// Action defines the recommended action after an error
type Action int

const (
	// ActionContinue indicates processing should continue despite the error
	ActionContinue Action = iota
	// ActionSkipBatch indicates the current batch should be skipped
	ActionSkipBatch
	// ActionAbort indicates the entire run should be aborted
	ActionAbort
)

func (a Action) String() string {
	switch a {
	case ActionContinue:
		return "Continue"
	case ActionSkipBatch:
		return "SkipBatch"
	case ActionAbort:
		return "Abort"
	default:
		return fmt.Sprintf("Unknown(%d)", int(a))
	}
}

// ErrorCategory defines categories of errors during a run
type ErrorCategory int

const (
	// Error categories with increasing severity
	ErrorCategoryNone ErrorCategory = iota
	ErrorCategoryWarning
	ErrorCategoryFieldParse
	ErrorCategoryAudit
	ErrorCategoryBatchRead
	ErrorCategorySink
	ErrorCategoryCritical
)

// String returns a string representation of the error category
func (ec ErrorCategory) String() string {
	switch ec {
	case ErrorCategoryNone:
		return "None"
	case ErrorCategoryWarning:
		return "Warning"
	case ErrorCategoryFieldParse:
		return "FieldParse"
	case ErrorCategoryAudit:
		return "Audit"
	case ErrorCategoryBatchRead:
		return "BatchRead"
	case ErrorCategorySink:
		return "Sink"
	case ErrorCategoryCritical:
		return "Critical"
	default:
		return fmt.Sprintf("Unknown(%d)", ec)
	}
}

// ErrorRecord represents a single error during a run
type ErrorRecord struct {
	Category  ErrorCategory
	Source    string
	Batch     string
	Error     error
	Message   string // Derived from Error but stored for serialization
	Timestamp time.Time
}

// NewErrorRecord creates a new error record with current timestamp
func NewErrorRecord(err error, category ErrorCategory) ErrorRecord {
	record := ErrorRecord{
		Category:  category,
		Error:     err,
		Timestamp: time.Now(),
	}

	if err != nil {
		record.Message = err.Error()
	}

	return record
}

// WithBatch adds batch information to the error record
func (r ErrorRecord) WithBatch(id model.BatchID) ErrorRecord {
	r.Source = id.Source
	r.Batch = id.Name()
	return r
}

// String returns a formatted error message
func (r ErrorRecord) String() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("[%s] ", r.Category))

	if r.Batch != "" {
		sb.WriteString(fmt.Sprintf("Batch: %s ", r.Batch))
	}

	if r.Error != nil {
		sb.WriteString(fmt.Sprintf("Error: %s", r.Error.Error()))
	} else if r.Message != "" {
		sb.WriteString(fmt.Sprintf("Error: %s", r.Message))
	}

	return sb.String()
}

// ErrorHandler tracks errors during a run and decides what to do about them
type ErrorHandler struct {
	logger       *zap.Logger
	errorCounts  map[ErrorCategory]int
	sampleErrors map[ErrorCategory][]ErrorRecord
	batchErrors  map[string]int
	mu           sync.Mutex
	maxSamples   int
}

// NewErrorHandler creates a new error handler
func NewErrorHandler(logger *zap.Logger) *ErrorHandler {
	return &ErrorHandler{
		logger:       logger,
		errorCounts:  make(map[ErrorCategory]int),
		sampleErrors: make(map[ErrorCategory][]ErrorRecord),
		batchErrors:  make(map[string]int),
		maxSamples:   5, // Store up to 5 sample errors per category
	}
}

// CategorizeError determines the category of an error
func (eh *ErrorHandler) CategorizeError(err error) ErrorCategory {
	if err == nil {
		return ErrorCategoryNone
	}

	var readErr *source.BatchReadError
	var category ErrorCategory

	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		category = ErrorCategoryCritical
	case errors.Is(err, sink.ErrSinkUnavailable):
		category = ErrorCategorySink
	case errors.As(err, &readErr), errors.Is(err, source.ErrSourceUnavailable):
		category = ErrorCategoryBatchRead
	default:
		category = ErrorCategoryCritical
	}

	if eh.logger != nil {
		eh.logger.Debug("Categorized error",
			zap.String("error", err.Error()),
			zap.String("category", category.String()))
	}

	return category
}

// HandleError records an error and determines the action
func (eh *ErrorHandler) HandleError(record ErrorRecord) Action {
	eh.RecordError(record)

	switch record.Category {
	case ErrorCategoryNone, ErrorCategoryWarning, ErrorCategoryFieldParse, ErrorCategoryAudit:
		return ActionContinue
	case ErrorCategoryBatchRead:
		return ActionSkipBatch
	case ErrorCategorySink, ErrorCategoryCritical:
		if eh.logger != nil {
			eh.logger.Error("Critical error during run",
				zap.String("category", record.Category.String()),
				zap.String("batch", record.Batch),
				zap.String("error", record.Message))
		}
		return ActionAbort
	default:
		return ActionContinue
	}
}

// RecordError saves an error occurrence
func (eh *ErrorHandler) RecordError(record ErrorRecord) {
	eh.mu.Lock()
	defer eh.mu.Unlock()

	eh.errorCounts[record.Category]++

	samples := eh.sampleErrors[record.Category]
	if len(samples) < eh.maxSamples {
		eh.sampleErrors[record.Category] = append(samples, record)
	}

	if record.Batch != "" {
		eh.batchErrors[record.Batch]++
	}

	if eh.logger != nil {
		logLevel := zap.InfoLevel

		switch record.Category {
		case ErrorCategoryFieldParse:
			logLevel = zap.DebugLevel
		case ErrorCategoryWarning, ErrorCategoryAudit, ErrorCategoryBatchRead:
			logLevel = zap.WarnLevel
		case ErrorCategorySink, ErrorCategoryCritical:
			logLevel = zap.ErrorLevel
		}

		eh.logger.Log(logLevel, "Run error",
			zap.String("category", record.Category.String()),
			zap.String("batch", record.Batch),
			zap.String("error", record.Message))
	}
}

// AddCount records n occurrences of a category without keeping samples.
// Field-level fallbacks are counted this way; their detail lives in the batch report.
func (eh *ErrorHandler) AddCount(category ErrorCategory, n int) {
	if n <= 0 {
		return
	}
	eh.mu.Lock()
	defer eh.mu.Unlock()
	eh.errorCounts[category] += n
}

// GetErrorSummary returns a copy of the error counts per category
func (eh *ErrorHandler) GetErrorSummary() map[ErrorCategory]int {
	eh.mu.Lock()
	defer eh.mu.Unlock()

	summary := make(map[ErrorCategory]int, len(eh.errorCounts))
	for category, count := range eh.errorCounts {
		summary[category] = count
	}
	return summary
}

// GetErrorSamples returns sample errors for each category
func (eh *ErrorHandler) GetErrorSamples() map[ErrorCategory][]ErrorRecord {
	eh.mu.Lock()
	defer eh.mu.Unlock()

	samples := make(map[ErrorCategory][]ErrorRecord, len(eh.sampleErrors))
	for category, records := range eh.sampleErrors {
		categorySamples := make([]ErrorRecord, len(records))
		copy(categorySamples, records)
		samples[category] = categorySamples
	}
	return samples
}

// GetBatchErrorCounts returns error counts by batch name
func (eh *ErrorHandler) GetBatchErrorCounts() map[string]int {
	eh.mu.Lock()
	defer eh.mu.Unlock()

	counts := make(map[string]int, len(eh.batchErrors))
	for batch, count := range eh.batchErrors {
		counts[batch] = count
	}
	return counts
}

// WrapError creates a new error with additional context
func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}
