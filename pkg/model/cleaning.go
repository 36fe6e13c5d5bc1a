// pkg/model/cleaning.go
package model

import (
	"time"
)

// Cleaning operation kinds
const (
	OpTimestampParse  = "timestamp_parse"
	OpEmbeddedDecode  = "embedded_decode"
	OpProvinceDefault = "province_default"
	OpSentinelFill    = "sentinel_fill"
	OpMedianFill      = "median_fill"
)

// CleaningOperation represents a single fallback or imputation applied to one field of one row
type CleaningOperation struct {
	Source            string      // Source the batch came from
	Batch             string      // Batch name, e.g. "users_part3"
	ColumnName        string      // Column that was cleaned
	OriginalValue     interface{} // Original value (may be nil)
	NewValue          string      // Value after cleaning
	RowIdentifier     string      // Row ID
	CleaningOperation string      // Type of cleaning performed (e.g., "median_fill")
	CleaningReason    string      // Reason for cleaning (e.g., "missing_value")
	CleanedAt         time.Time   // Set by the recorder when empty
}

// CleaningContext carries the row coordinates for operations emitted while cleaning
type CleaningContext struct {
	Source        string
	Batch         string
	RowIdentifier string
}

// Operation builds a CleaningOperation for the row described by the context
func (c CleaningContext) Operation(column string, original interface{}, newValue, op, reason string) CleaningOperation {
	return CleaningOperation{
		Source:            c.Source,
		Batch:             c.Batch,
		ColumnName:        column,
		OriginalValue:     original,
		NewValue:          newValue,
		RowIdentifier:     c.RowIdentifier,
		CleaningOperation: op,
		CleaningReason:    reason,
	}
}
