// Package buffer defines interfaces for channel buffering operations.
//
// A channel buffer holds the records of one named channel until the manager
// flushes them into a structured output file.
package buffer

import (
	"context"

	"github.com/jittakal/telemetrystore/pkg/telemetry"
)

// ChannelBuffer is a bounded, ordered queue of records for one channel.
// All implementations must be thread-safe.
type ChannelBuffer interface {
	// Push appends a record to the tail.
	// Returns an error if the buffer is at capacity and rejects overflow.
	Push(record telemetry.Record) error

	// Records returns an ordered snapshot of the buffered records, oldest first.
	Records() []telemetry.Record

	// Size returns the number of buffered records.
	Size() int

	// Capacity returns the window size of the buffer.
	Capacity() int

	// Full returns true once Size reaches Capacity.
	Full() bool

	// Clear removes all records. The capacity is kept.
	Clear()

	// Stats returns current buffer statistics without modifying the buffer.
	Stats() telemetry.ChannelStats
}

// Manager buffers samples for a fixed set of channels and flushes full
// channels to a structured file.
type Manager interface {
	// Push copies sample into the named channel.
	Push(name string, sample []float64) error

	// PushOwned appends sample to the named channel without copying it.
	// The caller must not modify sample afterwards.
	PushOwned(name string, sample []float64) error

	// Flush writes every full channel and clears it on success.
	Flush(ctx context.Context) error

	// Close flushes once when auto-save is enabled and rejects further use.
	Close(ctx context.Context) error
}
