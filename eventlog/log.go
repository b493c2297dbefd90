package eventlog

import (
	"context"

	"github.com/kbukum/eventstream/pipeline"
	"github.com/kbukum/eventstream/tracked"
)

// Log is an append-only sequence of values with resumable reads.
type Log[T any] interface {
	// Append stores v and returns its id.
	Append(ctx context.Context, v T) (string, error)
	// Read returns the entries after afterID, then waits for new ones.
	// An empty afterID reads from the beginning.
	Read(ctx context.Context, afterID string) (pipeline.Iterator[tracked.Envelope[T]], error)
}
