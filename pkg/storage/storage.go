// Package storage defines interfaces for persisting telemetry containers.
//
// A Writer opens a File for one flush; the File receives exactly one
// container and is then closed. Backends decide where the bytes end up
// (local filesystem, S3, GCS, Azure Blob).
package storage

import (
	"context"
	"time"

	"github.com/jittakal/telemetrystore/pkg/container"
	"github.com/jittakal/telemetrystore/pkg/telemetry"
)

// Writer creates structured files.
type Writer interface {
	// Create opens a new file for the given name.
	Create(ctx context.Context, name string) (File, error)

	// Close closes the writer and releases resources.
	Close() error
}

// File is one open structured file.
type File interface {
	// Write encodes root into the file.
	Write(root *container.Struct) error

	// Close finishes the file. Remote backends upload on Close.
	Close() error

	// Stats returns statistics of the written file. Valid after Close.
	Stats() telemetry.FileStats
}

// Router determines object keys for flushed files.
type Router interface {
	// Route returns the storage key for a container flushed at the given time.
	Route(containerName string, at time.Time, flushID string) string
}

// FlushPolicy determines when buffered channels should be flushed.
type FlushPolicy interface {
	// ShouldFlush returns true if a flush should be triggered now.
	ShouldFlush(stats []telemetry.ChannelStats, now time.Time) bool
}

type flushIDKey struct{}

// ContextWithFlushID returns a context carrying the id of the flush that
// creates files under it.
func ContextWithFlushID(ctx context.Context, flushID string) context.Context {
	return context.WithValue(ctx, flushIDKey{}, flushID)
}

// FlushIDFromContext returns the flush id stored by ContextWithFlushID, or "".
func FlushIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(flushIDKey{}).(string)
	return id
}
