// pkg/model/batch.go
package model

import (
	"fmt"
	"path/filepath"
	"strings"
)

// DropReason names the filter that excluded a row
type DropReason string

const (
	DropAge         DropReason = "age"
	DropIncome      DropReason = "income"
	DropCreditScore DropReason = "credit_score"
)

// BatchID locates a batch within its source
type BatchID struct {
	Source   string // source name, usually the input file path
	RowGroup int
	Chunk    int
	Chunked  bool // true when the row-group was split into fixed-size chunks
}

// Name returns the deterministic artifact stem: <base>_part<rg> or <base>_part<rg>_<chunk>
func (id BatchID) Name() string {
	base := filepath.Base(id.Source)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	if id.Chunked {
		return fmt.Sprintf("%s_part%d_%d", base, id.RowGroup, id.Chunk)
	}
	return fmt.Sprintf("%s_part%d", base, id.RowGroup)
}

func (id BatchID) String() string {
	return id.Name()
}

// RawBatch is one unit of input
type RawBatch struct {
	ID      BatchID
	Records []RawRecord
}

// Len returns the number of rows in the batch
func (b *RawBatch) Len() int {
	if b == nil {
		return 0
	}
	return len(b.Records)
}

// NormalizedBatch is one unit of output
type NormalizedBatch struct {
	ID      BatchID
	Schema  *Schema
	Records []NormalizedRecord
}

// Len returns the number of rows in the batch
func (b *NormalizedBatch) Len() int {
	if b == nil {
		return 0
	}
	return len(b.Records)
}

// BatchReport summarizes what normalization did to one batch
type BatchReport struct {
	Batch         BatchID
	RowsIn        int
	RowsOut       int
	Dropped       map[DropReason]int
	FieldFailures map[string]int // field -> rows that fell back to a default
	Imputed       map[string]int // field -> rows filled by imputation
	Operations    []CleaningOperation
}

// NewBatchReport creates an empty report for a batch
func NewBatchReport(id BatchID, rowsIn int) *BatchReport {
	return &BatchReport{
		Batch:         id,
		RowsIn:        rowsIn,
		Dropped:       make(map[DropReason]int),
		FieldFailures: make(map[string]int),
		Imputed:       make(map[string]int),
	}
}

// RowsDropped returns the number of rows excluded by all filters
func (r *BatchReport) RowsDropped() int {
	n := 0
	for _, c := range r.Dropped {
		n += c
	}
	return n
}

// TotalFieldFailures returns the number of field-level fallbacks across all fields
func (r *BatchReport) TotalFieldFailures() int {
	n := 0
	for _, c := range r.FieldFailures {
		n += c
	}
	return n
}

// AddOperation records a cleaning operation on the report
func (r *BatchReport) AddOperation(op CleaningOperation) {
	r.Operations = append(r.Operations, op)
}
