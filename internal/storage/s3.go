// Package storage implements S3 storage writer.
package storage

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/jittakal/telemetrystore/internal/encoder"
	"github.com/jittakal/telemetrystore/internal/errors"
	"github.com/jittakal/telemetrystore/pkg/storage"
	"github.com/jittakal/telemetrystore/pkg/telemetry"
)

// Ensure implementation satisfies interface at compile time.
var _ storage.Writer = (*S3Writer)(nil)

// S3Config contains AWS S3 configuration.
type S3Config struct {
	Bucket       string
	Region       string
	Endpoint     string
	Prefix       string
	UsePathStyle bool
	SSEEnabled   bool
	SSEKMSKeyID  string
}

// Validate checks the S3 configuration.
func (c S3Config) Validate() error {
	if c.Bucket == "" {
		return &errors.ConfigurationError{Field: "storage.s3.bucket", Reason: "required field is missing"}
	}
	if c.Region == "" {
		return &errors.ConfigurationError{Field: "storage.s3.region", Reason: "required field is missing"}
	}
	if c.SSEKMSKeyID != "" && !c.SSEEnabled {
		return &errors.ConfigurationError{Field: "storage.s3.sse_kms_key_id", Reason: "requires sse_enabled"}
	}
	return nil
}

// S3Writer implements storage.Writer for AWS S3 storage.
// Files are uploaded with multipart support and optional server-side
// encryption once the flush has been fully encoded.
type S3Writer struct {
	client         *s3.Client
	uploader       *manager.Uploader
	bucket         string
	region         string
	sseEnabled     bool
	sseKMSKeyID    string
	router         *DefaultRouter
	encoderFactory *encoder.Factory
	logger         *slog.Logger
	metrics        MetricsCollector
}

// NewS3Writer creates a new S3 storage writer.
func NewS3Writer(
	cfg S3Config,
	format telemetry.FileFormat,
	compression string,
	logger *slog.Logger,
	metrics MetricsCollector,
) (*S3Writer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	// Load AWS config
	ctx := context.Background()
	awsConfig, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(cfg.Region),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	s3Client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	uploader := manager.NewUploader(s3Client, func(u *manager.Uploader) {
		u.PartSize = 10 * 1024 * 1024 // 10MB parts
		u.Concurrency = 5
	})

	encoderFactory := encoder.NewFactory(format, compression)
	if _, err := encoderFactory.CreateEncoder(); err != nil {
		return nil, fmt.Errorf("failed to create encoder: %w", err)
	}

	logger.Info("S3 writer created",
		"bucket", cfg.Bucket,
		"region", cfg.Region,
		"prefix", cfg.Prefix,
		"format", format,
		"compression", compression,
		"sse_enabled", cfg.SSEEnabled,
	)

	return &S3Writer{
		client:         s3Client,
		uploader:       uploader,
		bucket:         cfg.Bucket,
		region:         cfg.Region,
		sseEnabled:     cfg.SSEEnabled,
		sseKMSKeyID:    cfg.SSEKMSKeyID,
		router:         NewRouter("s3", cfg.Bucket, cfg.Prefix),
		encoderFactory: encoderFactory,
		logger:         logger,
		metrics:        metrics,
	}, nil
}

// Create stages a file that is uploaded to S3 on Close.
func (w *S3Writer) Create(ctx context.Context, name string) (storage.File, error) {
	enc, err := w.encoderFactory.CreateEncoder()
	if err != nil {
		if w.metrics != nil {
			w.metrics.IncStorageErrors("s3", "encoder_create")
		}
		return nil, &errors.WriteError{Operation: "create", Path: name, Err: err}
	}

	return newStagedFile(ctx, name, stagingOptions{
		backend: "s3",
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

func (w *S3Writer) upload(ctx context.Context, stagingPath string, obj object) (string, error) {
	file, err := os.Open(stagingPath)
	if err != nil {
		return "", fmt.Errorf("failed to open encoded file: %w", err)
	}
	defer file.Close()

	input := w.putObjectInput(obj)
	input.Body = file

	result, err := w.uploader.Upload(ctx, input)
	if err != nil {
		return "", fmt.Errorf("failed to upload to S3: %w", err)
	}

	return result.Location, nil
}

// putObjectInput builds the upload request for obj, without a body.
func (w *S3Writer) putObjectInput(obj object) *s3.PutObjectInput {
	input := &s3.PutObjectInput{
		Bucket:      aws.String(w.bucket),
		Key:         aws.String(obj.Key),
		ContentType: aws.String(contentType(obj.Format)),
		Metadata:    objectMetadata(obj),
	}

	if w.sseEnabled {
		if w.sseKMSKeyID != "" {
			input.ServerSideEncryption = types.ServerSideEncryptionAwsKms
			input.SSEKMSKeyId = aws.String(w.sseKMSKeyID)
		} else {
			input.ServerSideEncryption = types.ServerSideEncryptionAes256
		}
	}

	return input
}

// Close closes the S3 writer.
func (w *S3Writer) Close() error {
	w.logger.Info("closing S3 writer")
	return nil
}
