// Package storage implements Google Cloud Storage writer.
package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/jittakal/telemetrystore/internal/encoder"
	"github.com/jittakal/telemetrystore/internal/errors"
	pkgstorage "github.com/jittakal/telemetrystore/pkg/storage"
	"github.com/jittakal/telemetrystore/pkg/telemetry"
)

// Ensure implementation satisfies interface at compile time.
var _ pkgstorage.Writer = (*GCSWriter)(nil)

// GCSConfig contains Google Cloud Storage configuration.
type GCSConfig struct {
	Bucket               string
	ProjectID            string
	Prefix               string
	CredentialsFile      string
	CredentialsJSON      string
	Endpoint             string
	UseDefaultCredential bool
}

// Validate checks the GCS configuration.
func (c GCSConfig) Validate() error {
	if c.Bucket == "" {
		return &errors.ConfigurationError{Field: "storage.gcs.bucket", Reason: "required field is missing"}
	}
	if c.CredentialsFile != "" && c.CredentialsJSON != "" {
		return &errors.ConfigurationError{Field: "storage.gcs.credentials_json", Reason: "mutually exclusive with credentials_file"}
	}
	return nil
}

// clientOptions returns the client options for the configured
// authentication method.
func (c GCSConfig) clientOptions() ([]option.ClientOption, string) {
	var opts []option.ClientOption
	if c.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(c.Endpoint))
	}

	switch {
	case c.UseDefaultCredential:
		return opts, "default"
	case c.CredentialsJSON != "":
		return append(opts, option.WithCredentialsJSON([]byte(c.CredentialsJSON))), "json"
	case c.CredentialsFile != "":
		return append(opts, option.WithCredentialsFile(c.CredentialsFile)), "file"
	default:
		return opts, "default"
	}
}

// GCSWriter implements storage.Writer for Google Cloud Storage.
type GCSWriter struct {
	client         *storage.Client
	bucket         string
	router         *DefaultRouter
	encoderFactory *encoder.Factory
	logger         *slog.Logger
	metrics        MetricsCollector
}

// NewGCSWriter creates a new Google Cloud Storage writer.
func NewGCSWriter(
	cfg GCSConfig,
	format telemetry.FileFormat,
	compression string,
	logger *slog.Logger,
	metrics MetricsCollector,
) (*GCSWriter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	clientOpts, auth := cfg.clientOptions()
	logger.Info("using GCP credentials", "method", auth)

	client, err := storage.NewClient(context.Background(), clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}

	encoderFactory := encoder.NewFactory(format, compression)
	if _, err := encoderFactory.CreateEncoder(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to create encoder: %w", err)
	}

	logger.Info("GCS writer created",
		"bucket", cfg.Bucket,
		"project_id", cfg.ProjectID,
		"prefix", cfg.Prefix,
		"format", format,
		"compression", compression,
	)

	return &GCSWriter{
		client:         client,
		bucket:         cfg.Bucket,
		router:         NewRouter("gs", cfg.Bucket, cfg.Prefix),
		encoderFactory: encoderFactory,
		logger:         logger,
		metrics:        metrics,
	}, nil
}

// Create stages a file that is uploaded to GCS on Close.
func (w *GCSWriter) Create(ctx context.Context, name string) (pkgstorage.File, error) {
	enc, err := w.encoderFactory.CreateEncoder()
	if err != nil {
		if w.metrics != nil {
			w.metrics.IncStorageErrors("gcs", "encoder_create")
		}
		return nil, &errors.WriteError{Operation: "create", Path: name, Err: err}
	}

	return newStagedFile(ctx, name, stagingOptions{
		backend: "gcs",
		dir:     os.TempDir(),
		enc:     enc,
		keyFor: func(containerName string, at time.Time, flushID string) string {
			return w.router.Route(containerName, at, flushID) + enc.FileExtension()
		},
		commit:  w.upload,
		logger:  w.logger,
		metrics: w.metrics,
	})
}

func (w *GCSWriter) upload(ctx context.Context, stagingPath string, obj object) (string, error) {
	file, err := os.Open(stagingPath)
	if err != nil {
		return "", fmt.Errorf("failed to open encoded file: %w", err)
	}
	defer file.Close()

	gcsWriter := w.client.Bucket(w.bucket).Object(obj.Key).NewWriter(ctx)
	gcsWriter.ContentType = contentType(obj.Format)
	gcsWriter.Metadata = objectMetadata(obj)

	if _, err := io.Copy(gcsWriter, file); err != nil {
		gcsWriter.Close()
		return "", fmt.Errorf("failed to write to GCS: %w", err)
	}

	// Close finalizes the upload.
	if err := gcsWriter.Close(); err != nil {
		return "", fmt.Errorf("failed to close GCS writer: %w", err)
	}

	return w.router.URI(obj.Key), nil
}

// Close closes the GCS writer.
func (w *GCSWriter) Close() error {
	w.logger.Info("closing GCS writer")
	if w.client != nil {
		return w.client.Close()
	}
	return nil
}
