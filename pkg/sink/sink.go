// pkg/sink/sink.go
package sink

import (
	"context"
	"errors"

	"github.com/David-Botos/user-normalizer/pkg/model"
)

// ErrSinkUnavailable is returned when the output location cannot be written
var ErrSinkUnavailable = errors.New("sink unavailable")

// BatchSink persists normalized batches, one artifact per batch
type BatchSink interface {
	// Write stores the batch and returns the artifact location
	Write(ctx context.Context, batch *model.NormalizedBatch) (string, error)
}
