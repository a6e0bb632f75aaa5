// Package storage implements storage writer implementations.
package storage

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/jittakal/telemetrystore/internal/errors"
	"github.com/jittakal/telemetrystore/internal/encoder"
	"github.com/jittakal/telemetrystore/pkg/storage"
	"github.com/jittakal/telemetrystore/pkg/telemetry"
)

// Ensure implementation satisfies interface at compile time.
var _ storage.Writer = (*FileWriter)(nil)

// MetricsCollector defines metrics operations for storage.
type MetricsCollector interface {
	IncFilesWritten(backend string, format string, status string)
	ObserveFileSize(backend string, format string, size float64)
	ObserveStorageWriteDuration(backend string, duration float64)
	IncStorageErrors(backend string, operation string)
}

// FileConfig contains local filesystem configuration.
type FileConfig struct {
	BasePath string

	// Flat writes every flush to BasePath/<filename>, replacing the previous
	// file, instead of a routed, timestamped path.
	Flat bool
}

// Validate checks the filesystem configuration.
func (c FileConfig) Validate() error {
	if c.BasePath == "" {
		return &errors.ConfigurationError{Field: "storage.file.base_path", Reason: "required field is missing"}
	}
	return nil
}

// FileWriter implements storage.Writer for local filesystem storage.
// Files are encoded next to their destination and renamed into place on
// Close, so readers never observe a partial file.
type FileWriter struct {
	basePath       string
	flat           bool
	router         *DefaultRouter
	encoderFactory *encoder.Factory
	logger         *slog.Logger
	metrics        MetricsCollector
}

// NewFileWriter creates a new filesystem storage writer.
func NewFileWriter(
	cfg FileConfig,
	format telemetry.FileFormat,
	compression string,
	logger *slog.Logger,
	metrics MetricsCollector,
) (*FileWriter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(cfg.BasePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base path: %w", err)
	}

	encoderFactory := encoder.NewFactory(format, compression)
	if _, err := encoderFactory.CreateEncoder(); err != nil {
		return nil, fmt.Errorf("failed to create encoder: %w", err)
	}

	logger.Info("filesystem writer created",
		"base_path", cfg.BasePath,
		"flat", cfg.Flat,
		"format", format,
		"compression", compression,
	)

	return &FileWriter{
		basePath:       cfg.BasePath,
		flat:           cfg.Flat,
		router:         NewRouter("file", "", ""),
		encoderFactory: encoderFactory,
		logger:         logger,
		metrics:        metrics,
	}, nil
}

// Create opens a staging file for name under the base path.
func (w *FileWriter) Create(ctx context.Context, name string) (storage.File, error) {
	enc, err := w.encoderFactory.CreateEncoder()
	if err != nil {
		if w.metrics != nil {
			w.metrics.IncStorageErrors("file", "encoder_create")
		}
		return nil, &errors.WriteError{Operation: "create", Path: name, Err: err}
	}

	keyFor := func(containerName string, at time.Time, flushID string) string {
		if w.flat {
			return name
		}
		return w.router.Route(containerName, at, flushID) + enc.FileExtension()
	}

	return newStagedFile(ctx, name, stagingOptions{
		backend: "file",
		dir:     w.basePath,
		enc:     enc,
		keyFor:  keyFor,
		commit:  w.commit,
		logger:  w.logger,
		metrics: w.metrics,
	})
}

func (w *FileWriter) commit(_ context.Context, stagingPath string, obj object) (string, error) {
	fullPath := filepath.Join(w.basePath, filepath.FromSlash(obj.Key))

	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return "", fmt.Errorf("failed to create directory: %w", err)
	}

	if err := os.Rename(stagingPath, fullPath); err != nil {
		return "", fmt.Errorf("failed to move file into place: %w", err)
	}

	return fullPath, nil
}

// Close closes the writer.
func (w *FileWriter) Close() error {
	w.logger.Info("closing filesystem writer")
	return nil
}
