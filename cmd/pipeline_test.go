package main

import (
	"context"
	stderrors "errors"
	"io"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/jittakal/telemetrystore/internal/buffer"
	"github.com/jittakal/telemetrystore/internal/config/dto"
	"github.com/jittakal/telemetrystore/internal/errors"
	"github.com/jittakal/telemetrystore/internal/server"
	"github.com/jittakal/telemetrystore/internal/storage"
	pkgstorage "github.com/jittakal/telemetrystore/pkg/storage"
	"github.com/jittakal/telemetrystore/pkg/telemetry"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type mockDLQ struct {
	mu      sync.Mutex
	reasons []string
}

func (d *mockDLQ) Publish(ctx context.Context, sample *telemetry.ConsumedSample, reason string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.reasons = append(d.reasons, reason)
	return nil
}

func (d *mockDLQ) Close() error { return nil }

// failingWriter cannot create files.
type failingWriter struct{}

func (failingWriter) Create(ctx context.Context, name string) (pkgstorage.File, error) {
	return nil, stderrors.New("disk unavailable")
}

func (failingWriter) Close() error { return nil }

func newTestPipeline(t *testing.T, writer pkgstorage.Writer, flush dto.FlushConfig) *pipeline {
	t.Helper()

	manager, err := buffer.NewManager(buffer.Options{
		Filename: "robot_log.mat",
		Channels: []telemetry.ChannelInfo{
			telemetry.NewChannelInfo("pos", 3, 1),
			telemetry.NewChannelInfo("vel", 1, 1),
		},
		WindowSize: 2,
		Writer:     writer,
		Logger:     testLogger(),
	})
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}

	policy, err := buffer.NewFlushPolicy(buffer.PolicyConfig{Strategy: flush.Strategy, IntervalSeconds: flush.IntervalSeconds})
	if err != nil {
		t.Fatalf("NewFlushPolicy() error = %v", err)
	}

	return newPipeline(manager, policy, server.NewManagerHealthChecker(manager), testLogger(), flush)
}

func newTestFileWriter(t *testing.T) (*storage.FileWriter, string) {
	t.Helper()

	dir := t.TempDir()
	w, err := storage.NewFileWriter(storage.FileConfig{BasePath: dir}, telemetry.FormatParquet, "snappy", testLogger(), nil)
	if err != nil {
		t.Fatalf("NewFileWriter() error = %v", err)
	}
	return w, dir
}

func consumed(channel string, values ...float64) (*telemetry.ConsumedSample, *bool) {
	committed := false
	return &telemetry.ConsumedSample{
		EventID: "evt-" + channel,
		Payload: telemetry.SamplePayload{Channel: channel, Values: values},
		Kafka:   telemetry.KafkaMetadata{Topic: "telemetry.samples"},
		CommitFunc: func() error {
			committed = true
			return nil
		},
	}, &committed
}

func countFiles(t *testing.T, dir string) int {
	t.Helper()

	n := 0
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && filepath.Ext(path) == ".parquet" {
			n++
		}
		return nil
	})
	if err != nil {
		t.Fatalf("WalkDir() error = %v", err)
	}
	return n
}

func TestPipeline_Ingest(t *testing.T) {
	w, _ := newTestFileWriter(t)
	p := newTestPipeline(t, w, dto.FlushConfig{Strategy: "any"})
	dlq := &mockDLQ{}
	p.dlq = dlq

	tests := []struct {
		name          string
		channel       string
		values        []float64
		wantCommitted bool
		wantDLQ       int
	}{
		{name: "valid sample", channel: "pos", values: []float64{1, 2, 3}, wantCommitted: true},
		{name: "unknown channel", channel: "acc", values: []float64{1}, wantCommitted: true, wantDLQ: 1},
		{name: "dimension mismatch", channel: "vel", values: []float64{1, 2}, wantCommitted: true, wantDLQ: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sample, committed := consumed(tt.channel, tt.values...)
			p.ingest(context.Background(), sample)

			if *committed != tt.wantCommitted {
				t.Errorf("committed = %v, want %v", *committed, tt.wantCommitted)
			}
			if len(dlq.reasons) != tt.wantDLQ {
				t.Errorf("DLQ publishes = %d, want %d", len(dlq.reasons), tt.wantDLQ)
			}
		})
	}

	if size, _ := p.manager.Size("pos"); size != 1 {
		t.Errorf("Size(pos) = %d, want 1", size)
	}
}

func TestPipeline_IngestAfterClose(t *testing.T) {
	w, _ := newTestFileWriter(t)
	p := newTestPipeline(t, w, dto.FlushConfig{})

	if err := p.manager.Close(context.Background()); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	sample, committed := consumed("pos", 1, 2, 3)
	p.ingest(context.Background(), sample)

	if *committed {
		t.Error("sample pushed to a closed manager must not be committed")
	}
}

func TestPipeline_MaybeFlush(t *testing.T) {
	w, dir := newTestFileWriter(t)
	p := newTestPipeline(t, w, dto.FlushConfig{Strategy: "any"})

	ctx := context.Background()

	// Nothing is full yet
	if err := p.maybeFlush(ctx); err != nil {
		t.Fatalf("maybeFlush() error = %v", err)
	}
	if n := countFiles(t, dir); n != 0 {
		t.Fatalf("files = %d, want 0", n)
	}

	for i := 0; i < 2; i++ {
		sample, _ := consumed("pos", 1, 2, 3)
		p.ingest(ctx, sample)
	}

	if err := p.maybeFlush(ctx); err != nil {
		t.Fatalf("maybeFlush() error = %v", err)
	}
	if n := countFiles(t, dir); n != 1 {
		t.Errorf("files = %d, want 1", n)
	}
	if size, _ := p.manager.Size("pos"); size != 0 {
		t.Errorf("Size(pos) after flush = %d, want 0", size)
	}
	if !p.health.IsHealthy() {
		t.Error("health should be ready after a successful flush")
	}
}

func TestPipeline_FlushRetry(t *testing.T) {
	p := newTestPipeline(t, failingWriter{}, dto.FlushConfig{
		Strategy:             "any",
		RetryBackoffMS:       1000,
		MaxConsecutiveErrors: 2,
	})

	now := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return now }

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		sample, _ := consumed("vel", float64(i))
		p.ingest(ctx, sample)
	}

	if err := p.maybeFlush(ctx); err != nil {
		t.Fatalf("first failure should not stop the pipeline: %v", err)
	}
	if p.health.IsHealthy() {
		t.Error("health should report the failed flush")
	}
	if size, _ := p.manager.Size("vel"); size != 2 {
		t.Errorf("Size(vel) after failed flush = %d, want 2", size)
	}

	// Within the backoff nothing is attempted
	if err := p.maybeFlush(ctx); err != nil {
		t.Fatalf("maybeFlush() during backoff error = %v", err)
	}
	if p.consecutiveErrors != 1 {
		t.Errorf("consecutiveErrors = %d, want 1", p.consecutiveErrors)
	}

	now = now.Add(time.Second)
	err := p.maybeFlush(ctx)
	if !stderrors.Is(err, errors.ErrWriteFailure) {
		t.Errorf("maybeFlush() error = %v, want ErrWriteFailure after limit", err)
	}
}

func TestPipeline_Run(t *testing.T) {
	t.Run("stops on cancel", func(t *testing.T) {
		w, _ := newTestFileWriter(t)
		p := newTestPipeline(t, w, dto.FlushConfig{})

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- p.run(ctx, nil, nil, 10*time.Millisecond) }()

		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("run() error = %v, want nil", err)
			}
		case <-time.After(time.Second):
			t.Fatal("run did not stop")
		}
	})

	t.Run("source closed unexpectedly", func(t *testing.T) {
		w, _ := newTestFileWriter(t)
		p := newTestPipeline(t, w, dto.FlushConfig{})

		samples := make(chan *telemetry.ConsumedSample, 1)
		sample, committed := consumed("vel", 4)
		samples <- sample
		close(samples)

		err := p.run(context.Background(), samples, nil, time.Hour)
		if !stderrors.Is(err, errors.ErrConnectionLost) {
			t.Errorf("run() error = %v, want ErrConnectionLost", err)
		}
		if !*committed {
			t.Error("queued sample should be ingested before the close is seen")
		}
		if p.health.IsHealthy() {
			t.Error("health should report the lost source")
		}
	})

	t.Run("rejections from the source keep health", func(t *testing.T) {
		w, _ := newTestFileWriter(t)
		p := newTestPipeline(t, w, dto.FlushConfig{})

		p.handleSourceError(&errors.ValidationError{Field: "data.values", Reason: "sample has no values"})
		if !p.health.IsHealthy() {
			t.Error("a rejected message should not affect readiness")
		}

		p.handleSourceError(errors.ErrConnectionLost)
		if p.health.IsHealthy() {
			t.Error("a source failure should affect readiness")
		}
	})
}

func TestNewStorageWriter(t *testing.T) {
	tests := []struct {
		name    string
		cfg     dto.StorageConfig
		wantErr bool
	}{
		{
			name: "file backend",
			cfg: dto.StorageConfig{
				Backend:     "file",
				Format:      "avro",
				Compression: "deflate",
				File:        dto.FileConfig{BasePath: t.TempDir()},
			},
		},
		{
			name:    "unsupported backend",
			cfg:     dto.StorageConfig{Backend: "ftp", Format: "parquet"},
			wantErr: true,
		},
		{
			name:    "s3 without bucket",
			cfg:     dto.StorageConfig{Backend: "s3", Format: "parquet", S3: dto.S3Config{Region: "us-east-1"}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, err := newStorageWriter(tt.cfg, testLogger(), nil)
			if (err != nil) != tt.wantErr {
				t.Fatalf("newStorageWriter() error = %v, wantErr %v", err, tt.wantErr)
			}
			if w != nil {
				_ = w.Close()
			}
		})
	}
}

func TestNewClock(t *testing.T) {
	if _, ok := newClock("monotonic").(*telemetry.MonotonicClock); !ok {
		t.Error("newClock(monotonic) should return a MonotonicClock")
	}
	if _, ok := newClock("system").(telemetry.SystemClock); !ok {
		t.Error("newClock(system) should return a SystemClock")
	}
	if _, ok := newClock("").(telemetry.SystemClock); !ok {
		t.Error("newClock(\"\") should return a SystemClock")
	}
}

func TestCheckInterval(t *testing.T) {
	if got := checkInterval(dto.FlushConfig{}); got != 500*time.Millisecond {
		t.Errorf("checkInterval() = %v, want 500ms", got)
	}
	if got := checkInterval(dto.FlushConfig{CheckIntervalMS: 250}); got != 250*time.Millisecond {
		t.Errorf("checkInterval() = %v, want 250ms", got)
	}
}

func TestNewCollectors(t *testing.T) {
	if c := newCollectors(false, nil); c.buffer != nil || c.storage != nil || c.kafka != nil || c.dlq != nil {
		t.Error("disabled metrics should leave all collectors nil")
	}
}
