package buffer

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/mat"

	"github.com/jittakal/telemetrystore/internal/errors"
	"github.com/jittakal/telemetrystore/internal/validator"
	"github.com/jittakal/telemetrystore/pkg/buffer"
	"github.com/jittakal/telemetrystore/pkg/container"
	"github.com/jittakal/telemetrystore/pkg/storage"
	"github.com/jittakal/telemetrystore/pkg/telemetry"
)

// Ensure implementation satisfies interface at compile time.
var _ buffer.Manager = (*Manager)(nil)

// MetricsCollector defines metrics operations for the buffer manager.
type MetricsCollector interface {
	IncSamplesPushed(channel string, status string)
	SetBufferRecordCount(channel string, count int)
	IncEvictions(channel string)
	IncFlushes(status string)
	ObserveFlushDuration(duration float64)
	ObserveChannelsFlushed(count int)
}

// Options configures a Manager.
type Options struct {
	// Filename is passed to the writer; the container is named after the
	// part before its first '.'.
	Filename string

	// Channels declares the channel set, in flush order.
	Channels []telemetry.ChannelInfo

	// WindowSize is the number of records that makes a channel full.
	WindowSize int

	// AutoSave makes Close flush once.
	AutoSave bool

	// Overflow selects what a full channel does with another sample.
	Overflow OverflowPolicy

	// Clock stamps pushed samples. Defaults to telemetry.SystemClock.
	Clock telemetry.Clock

	// Writer persists flushed containers. Required.
	Writer storage.Writer

	Logger  *slog.Logger
	Metrics MetricsCollector
}

// Manager buffers samples for a fixed set of channels and flushes every full
// channel into one structured file.
//
// Pushes hold the read side of the manager lock plus the target buffer's own
// lock, so pushes to different channels run in parallel. Flush and Close
// hold the write side: no push can interleave with snapshot, write and clear.
type Manager struct {
	filename      string
	containerName string
	windowSize    int
	autoSave      bool
	registry      *registry
	clock         telemetry.Clock
	writer        storage.Writer
	logger        *slog.Logger
	metrics       MetricsCollector
	closed        bool
	mu            sync.RWMutex
}

// NewManager creates a buffer manager.
func NewManager(opts Options) (*Manager, error) {
	if len(opts.Channels) == 0 {
		return nil, &errors.ConfigurationError{Field: "channels", Reason: "at least one channel is required"}
	}
	if opts.Filename == "" {
		return nil, &errors.ConfigurationError{Field: "filename", Reason: "required field is missing"}
	}
	if opts.WindowSize <= 0 {
		return nil, &errors.ConfigurationError{
			Field:  "window_size",
			Reason: fmt.Sprintf("must be positive, got %d", opts.WindowSize),
		}
	}
	if opts.Writer == nil {
		return nil, &errors.ConfigurationError{Field: "writer", Reason: "a structured file writer is required"}
	}

	reg, err := newRegistry(opts.Channels, opts.WindowSize, opts.Overflow)
	if err != nil {
		return nil, err
	}

	clock := opts.Clock
	if clock == nil {
		clock = telemetry.SystemClock{}
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	m := &Manager{
		filename:      opts.Filename,
		containerName: ContainerName(opts.Filename),
		windowSize:    opts.WindowSize,
		autoSave:      opts.AutoSave,
		registry:      reg,
		clock:         clock,
		writer:        opts.Writer,
		logger:        logger,
		metrics:       opts.Metrics,
	}

	logger.Info("buffer manager created",
		"filename", m.filename,
		"container", m.containerName,
		"channels", len(reg.channels),
		"window_size", m.windowSize,
		"auto_save", m.autoSave,
		"overflow_policy", opts.Overflow.String(),
	)

	return m, nil
}

// ContainerName returns filename truncated at its first '.'.
// A filename without a dot is returned unchanged.
func ContainerName(filename string) string {
	if i := strings.IndexByte(filename, '.'); i >= 0 {
		return filename[:i]
	}
	return filename
}

// Channel resolves a channel name to a handle for PushTo.
func (m *Manager) Channel(name string) (ChannelID, error) {
	return m.registry.lookup(name)
}

// Push copies sample into the named channel.
func (m *Manager) Push(name string, sample []float64) error {
	return m.PushOwned(name, copySample(sample))
}

// PushOwned appends sample to the named channel without copying it.
// The caller must not modify sample afterwards.
func (m *Manager) PushOwned(name string, sample []float64) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return errors.ErrManagerClosed
	}

	ch, err := m.registry.byName(name)
	if err != nil {
		m.recordPush(name, "unknown_channel")
		return err
	}
	return m.push(ch, sample)
}

// PushTo copies sample into the channel identified by id.
func (m *Manager) PushTo(id ChannelID, sample []float64) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return errors.ErrManagerClosed
	}

	ch, err := m.registry.byID(id)
	if err != nil {
		return err
	}
	return m.push(ch, copySample(sample))
}

// PushMatrix pushes a rows x cols matrix, flattened row-major.
func (m *Manager) PushMatrix(name string, sample mat.Matrix) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return errors.ErrManagerClosed
	}

	ch, err := m.registry.byName(name)
	if err != nil {
		m.recordPush(name, "unknown_channel")
		return err
	}

	r, c := sample.Dims()
	if r != ch.info.Dimensions.Rows || c != ch.info.Dimensions.Cols {
		m.recordPush(name, "dimension_mismatch")
		return fmt.Errorf("%w: matrix is %dx%d", &errors.DimensionError{
			Channel: ch.info.Name,
			Rows:    ch.info.Dimensions.Rows,
			Cols:    ch.info.Dimensions.Cols,
			Got:     r * c,
		}, r, c)
	}

	data := make([]float64, 0, r*c)
	for i := range r {
		for j := range c {
			data = append(data, sample.At(i, j))
		}
	}
	return m.push(ch, data)
}

func (m *Manager) push(ch *channel, sample []float64) error {
	if err := validator.ValidateSample(ch.info, sample); err != nil {
		m.recordPush(ch.info.Name, "dimension_mismatch")
		return err
	}

	record := telemetry.Record{Timestamp: m.clock.Now(), Datum: sample}

	evicted, err := ch.buf.push(record)
	if err != nil {
		m.recordPush(ch.info.Name, "rejected")
		return err
	}

	if m.metrics != nil {
		m.metrics.IncSamplesPushed(ch.info.Name, "success")
		m.metrics.SetBufferRecordCount(ch.info.Name, ch.buf.Size())
		if evicted {
			m.metrics.IncEvictions(ch.info.Name)
		}
	}
	return nil
}

func (m *Manager) recordPush(channel, status string) {
	if m.metrics != nil {
		m.metrics.IncSamplesPushed(channel, status)
	}
}

// Flush writes every full channel into one file named after Filename and
// clears the written channels once the writer has succeeded. Channels that
// are not full are left untouched. When no channel is full no file is
// created and Flush returns nil.
func (m *Manager) Flush(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return errors.ErrManagerClosed
	}
	return m.flushLocked(ctx)
}

// Close releases the manager. When auto-save is set it performs one flush
// and returns its result. If that flush fails the manager stays open with
// its buffers intact, so Close (or Flush) can be retried. Once Close has
// succeeded later calls return nil.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}

	if m.autoSave {
		if err := m.flushLocked(ctx); err != nil {
			m.logger.Error("auto-save flush failed, manager left open", "error", err)
			return err
		}
	}

	m.closed = true
	m.logger.Info("buffer manager closed", "auto_save", m.autoSave)
	return nil
}

func (m *Manager) flushLocked(ctx context.Context) error {
	start := time.Now()
	flushID := uuid.NewString()
	logger := m.logger.With("flush_id", flushID, "filename", m.filename)

	var (
		entries []container.Variable
		flushed []*channel
	)

	for i := range m.registry.channels {
		ch := &m.registry.channels[i]

		if !ch.buf.Full() {
			logger.Info("not enough data points collected",
				"channel", ch.info.Name,
				"size", ch.buf.Size(),
				"window_size", m.windowSize,
			)
			continue
		}

		entry, err := buildEntry(ch.info, ch.buf.Records())
		if err != nil {
			m.recordFlush("failed", start, 0)
			return &errors.WriteError{Operation: "encode", Path: m.filename, Err: err}
		}

		entries = append(entries, entry)
		flushed = append(flushed, ch)
	}

	if len(entries) == 0 {
		logger.Debug("no full channels, nothing to write")
		m.recordFlush("skipped", start, 0)
		return nil
	}

	root := container.NewStruct(m.containerName, entries...)

	if err := m.write(storage.ContextWithFlushID(ctx, flushID), root); err != nil {
		logger.Error("failed to write channels, buffers kept",
			"channels", len(entries),
			"error", err,
		)
		m.recordFlush("failed", start, 0)
		return err
	}

	for _, ch := range flushed {
		ch.buf.Clear()
		if m.metrics != nil {
			m.metrics.SetBufferRecordCount(ch.info.Name, 0)
		}
	}

	logger.Info("flushed channels",
		"container", m.containerName,
		"channels", len(entries),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	m.recordFlush("success", start, len(entries))

	return nil
}

func (m *Manager) write(ctx context.Context, root *container.Struct) error {
	f, err := m.writer.Create(ctx, m.filename)
	if err != nil {
		return asWriteError("create", m.filename, err)
	}

	if err := f.Write(root); err != nil {
		_ = f.Close()
		return asWriteError("write", m.filename, err)
	}

	if err := f.Close(); err != nil {
		return asWriteError("close", m.filename, err)
	}
	return nil
}

func (m *Manager) recordFlush(status string, start time.Time, channels int) {
	if m.metrics == nil {
		return
	}
	m.metrics.IncFlushes(status)
	m.metrics.ObserveFlushDuration(time.Since(start).Seconds())
	if channels > 0 {
		m.metrics.ObserveChannelsFlushed(channels)
	}
}

// buildEntry flattens records of one channel: record blocks in order, values
// within a block in row-major order.
func buildEntry(info telemetry.ChannelInfo, records []telemetry.Record) (*container.Struct, error) {
	elements := info.Dimensions.Elements()
	data := make([]float64, 0, len(records)*elements)
	timestamps := make([]float64, 0, len(records))

	for _, r := range records {
		data = append(data, r.Datum...)
		timestamps = append(timestamps, r.Timestamp)
	}

	dims := []int{info.Dimensions.Rows, info.Dimensions.Cols, len(records)}
	return container.NewChannelEntry(info.Name, dims, data, timestamps)
}

func asWriteError(op, path string, err error) error {
	var writeErr *errors.WriteError
	if stderrors.As(err, &writeErr) {
		return err
	}
	return &errors.WriteError{Operation: op, Path: path, Err: err}
}

func copySample(sample []float64) []float64 {
	out := make([]float64, len(sample))
	copy(out, sample)
	return out
}

// Channels returns the channel descriptors in declaration order.
func (m *Manager) Channels() []telemetry.ChannelInfo {
	return m.registry.infos()
}

// Size returns the number of records buffered for the named channel.
func (m *Manager) Size(name string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ch, err := m.registry.byName(name)
	if err != nil {
		return 0, err
	}
	return ch.buf.Size(), nil
}

// Full reports whether the named channel holds WindowSize records.
func (m *Manager) Full(name string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ch, err := m.registry.byName(name)
	if err != nil {
		return false, err
	}
	return ch.buf.Full(), nil
}

// Stats returns per-channel statistics in declaration order.
func (m *Manager) Stats() []telemetry.ChannelStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]telemetry.ChannelStats, len(m.registry.channels))
	for i, ch := range m.registry.channels {
		out[i] = ch.buf.Stats()
	}
	return out
}

// ContainerName returns the name of the top-level container.
func (m *Manager) ContainerName() string { return m.containerName }

// Filename returns the output filename.
func (m *Manager) Filename() string { return m.filename }

// WindowSize returns the per-channel capacity.
func (m *Manager) WindowSize() int { return m.windowSize }

// Closed reports whether Close has been called.
func (m *Manager) Closed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.closed
}
