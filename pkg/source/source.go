// pkg/source/source.go
package source

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/David-Botos/user-normalizer/pkg/model"
)

// ErrSourceUnavailable is returned when a source cannot be opened at all
var ErrSourceUnavailable = errors.New("source unavailable")

// YieldFunc receives batches in order. A non-nil err means the batch identified
// by batch.ID could not be read; batch.Records is then empty. Returning an
// error from YieldFunc stops iteration and that error is returned by Batches.
type YieldFunc func(batch *model.RawBatch, err error) error

// BatchSource produces ordered raw batches
type BatchSource interface {
	// Name identifies the source in batch IDs and logs
	Name() string
	// Batches reads every batch in order. Per-batch read failures are passed
	// to yield and do not stop iteration.
	Batches(ctx context.Context, yield YieldFunc) error
}

// BatchReadError describes one batch that could not be read
type BatchReadError struct {
	Batch model.BatchID
	Err   error
}

func (e *BatchReadError) Error() string {
	return fmt.Sprintf("failed to read batch %s: %v", e.Batch.Name(), e.Err)
}

func (e *BatchReadError) Unwrap() error {
	return e.Err
}

// ListFiles returns the files in dir matching pattern, sorted by name
func ListFiles(dir, pattern string) ([]string, error) {
	if pattern == "" {
		pattern = "*"
	}
	if _, err := filepath.Match(pattern, ""); err != nil {
		return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if ok, _ := filepath.Match(pattern, e.Name()); ok {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

// chunk splits records into consecutive slices of at most size records.
// size <= 0 returns the records as a single chunk.
func chunk(records []model.RawRecord, size int) [][]model.RawRecord {
	if size <= 0 || len(records) <= size {
		return [][]model.RawRecord{records}
	}
	chunks := make([][]model.RawRecord, 0, (len(records)+size-1)/size)
	for start := 0; start < len(records); start += size {
		end := start + size
		if end > len(records) {
			end = len(records)
		}
		chunks = append(chunks, records[start:end])
	}
	return chunks
}
