package storage

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/jittakal/telemetrystore/internal/errors"
	"github.com/jittakal/telemetrystore/pkg/container"
	"github.com/jittakal/telemetrystore/pkg/encoder"
	"github.com/jittakal/telemetrystore/pkg/storage"
	"github.com/jittakal/telemetrystore/pkg/telemetry"
)

// Ensure implementation satisfies interface at compile time.
var _ storage.File = (*stagedFile)(nil)

// object describes where a staged file ends up.
type object struct {
	Key       string
	FlushID   string
	Container string
	Format    telemetry.FileFormat
}

// commitFunc moves a fully encoded staging file to its destination and
// returns the final location.
type commitFunc func(ctx context.Context, stagingPath string, obj object) (string, error)

// stagedFile encodes into a local staging file; Close commits it.
// A file whose Write failed, or that was never written, is discarded.
type stagedFile struct {
	// ctx from Create bounds the commit in Close.
	ctx     context.Context
	backend string
	name    string
	flushID string
	at      time.Time
	tmp     *os.File
	enc     encoder.Encoder
	keyFor  func(containerName string, at time.Time, flushID string) string
	commit  commitFunc
	logger  *slog.Logger
	metrics MetricsCollector
	obj     object
	stats   telemetry.FileStats
	written bool
	failed  bool
	closed  bool
}

// stagingOptions carries the per-backend parts of a stagedFile.
type stagingOptions struct {
	backend string
	dir     string
	enc     encoder.Encoder
	keyFor  func(containerName string, at time.Time, flushID string) string
	commit  commitFunc
	logger  *slog.Logger
	metrics MetricsCollector
}

func newStagedFile(ctx context.Context, name string, opts stagingOptions) (*stagedFile, error) {
	tmp, err := os.CreateTemp(opts.dir, fmt.Sprintf(".%s-upload-*%s", opts.backend, opts.enc.FileExtension()))
	if err != nil {
		if opts.metrics != nil {
			opts.metrics.IncStorageErrors(opts.backend, "create")
		}
		return nil, &errors.WriteError{Operation: "create", Path: name, Err: err}
	}

	flushID := storage.FlushIDFromContext(ctx)
	if flushID == "" {
		flushID = uuid.NewString()
	}

	return &stagedFile{
		ctx:     ctx,
		backend: opts.backend,
		name:    name,
		flushID: flushID,
		at:      time.Now(),
		tmp:     tmp,
		enc:     opts.enc,
		keyFor:  opts.keyFor,
		commit:  opts.commit,
		logger:  opts.logger,
		metrics: opts.metrics,
	}, nil
}

// Write encodes root into the staging file. A file holds one container.
func (f *stagedFile) Write(root *container.Struct) error {
	if f.closed {
		return errors.ErrWriterClosed
	}
	if f.written || f.failed {
		return &errors.WriteError{Operation: "write", Path: f.name, Err: fmt.Errorf("file already written")}
	}

	stats, err := f.enc.Encode(f.tmp, root)
	if err != nil {
		f.failed = true
		f.recordError("encode")
		return &errors.WriteError{Operation: "encode", Path: f.name, Err: err}
	}

	if info, err := f.tmp.Stat(); err == nil {
		stats.SizeBytes = info.Size()
	}

	f.stats = *stats
	f.obj = object{
		Key:       f.keyFor(root.Name, f.at, f.flushID),
		FlushID:   f.flushID,
		Container: root.Name,
		Format:    f.enc.Format(),
	}
	f.written = true
	return nil
}

// Close commits the staging file and removes it.
func (f *stagedFile) Close() error {
	if f.closed {
		return nil
	}
	f.closed = true

	defer os.Remove(f.tmp.Name())

	closeErr := f.tmp.Close()

	if !f.written || f.failed {
		f.logger.Debug("discarding staged file", "backend", f.backend, "name", f.name)
		return nil
	}

	if closeErr != nil {
		f.recordError("write")
		return &errors.WriteError{Operation: "write", Path: f.name, Err: closeErr}
	}

	location, err := f.commit(f.ctx, f.tmp.Name(), f.obj)
	if err != nil {
		f.recordError("upload")
		return &errors.WriteError{Operation: "upload", Path: f.obj.Key, Err: err}
	}

	duration := time.Since(f.at)

	f.logger.Info("wrote telemetry file",
		"backend", f.backend,
		"location", location,
		"flush_id", f.flushID,
		"channels", f.stats.EntryCount,
		"samples", f.stats.SampleCount,
		"file_size", f.stats.SizeBytes,
		"format", f.obj.Format,
		"total_duration_ms", duration.Milliseconds(),
	)

	if f.metrics != nil {
		format := string(f.obj.Format)
		f.metrics.IncFilesWritten(f.backend, format, "success")
		f.metrics.ObserveFileSize(f.backend, format, float64(f.stats.SizeBytes))
		f.metrics.ObserveStorageWriteDuration(f.backend, duration.Seconds())
	}

	return nil
}

// Stats returns statistics of the encoded file.
func (f *stagedFile) Stats() telemetry.FileStats {
	return f.stats
}

// Key returns the destination key. Valid after a successful Write.
func (f *stagedFile) Key() string {
	return f.obj.Key
}

func (f *stagedFile) recordError(operation string) {
	if f.metrics != nil {
		f.metrics.IncStorageErrors(f.backend, operation)
		f.metrics.IncFilesWritten(f.backend, string(f.enc.Format()), "failed")
	}
}

// contentType returns the MIME type uploaded objects are tagged with.
func contentType(format telemetry.FileFormat) string {
	switch format {
	case telemetry.FormatAvro:
		return "application/avro"
	default:
		return "application/octet-stream"
	}
}

// objectMetadata returns the user metadata attached to uploaded objects.
func objectMetadata(obj object) map[string]string {
	return map[string]string{
		"flush-id":  obj.FlushID,
		"container": obj.Container,
	}
}
