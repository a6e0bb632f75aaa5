// Package storage implements Azure Blob storage writer.
package storage

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"

	"github.com/jittakal/telemetrystore/internal/encoder"
	"github.com/jittakal/telemetrystore/internal/errors"
	"github.com/jittakal/telemetrystore/pkg/storage"
	"github.com/jittakal/telemetrystore/pkg/telemetry"
)

// Ensure implementation satisfies interface at compile time.
var _ storage.Writer = (*AzureWriter)(nil)

// AzureConfig contains Azure Blob Storage configuration.
type AzureConfig struct {
	AccountName   string
	AccountKey    string
	ContainerName string
	Endpoint      string
	Prefix        string
}

// Validate checks the Azure configuration.
func (c AzureConfig) Validate() error {
	if c.AccountName == "" {
		return &errors.ConfigurationError{Field: "storage.azure.account_name", Reason: "required field is missing"}
	}
	if c.AccountKey == "" {
		return &errors.ConfigurationError{Field: "storage.azure.account_key", Reason: "required field is missing"}
	}
	if c.ContainerName == "" {
		return &errors.ConfigurationError{Field: "storage.azure.container_name", Reason: "required field is missing"}
	}
	return nil
}

// ConnectionString builds the storage account connection string.
func (c AzureConfig) ConnectionString() string {
	if c.Endpoint != "" {
		return fmt.Sprintf("DefaultEndpointsProtocol=https;AccountName=%s;AccountKey=%s;BlobEndpoint=%s",
			c.AccountName, c.AccountKey, c.Endpoint)
	}
	return fmt.Sprintf("DefaultEndpointsProtocol=https;AccountName=%s;AccountKey=%s;EndpointSuffix=core.windows.net",
		c.AccountName, c.AccountKey)
}

// AzureWriter implements storage.Writer for Azure Blob Storage.
type AzureWriter struct {
	client         *azblob.Client
	containerName  string
	router         *DefaultRouter
	encoderFactory *encoder.Factory
	logger         *slog.Logger
	metrics        MetricsCollector
}

// NewAzureWriter creates a new Azure Blob storage writer.
func NewAzureWriter(
	cfg AzureConfig,
	format telemetry.FileFormat,
	compression string,
	logger *slog.Logger,
	metrics MetricsCollector,
) (*AzureWriter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	client, err := azblob.NewClientFromConnectionString(cfg.ConnectionString(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create Azure client: %w", err)
	}

	encoderFactory := encoder.NewFactory(format, compression)
	if _, err := encoderFactory.CreateEncoder(); err != nil {
		return nil, fmt.Errorf("failed to create encoder: %w", err)
	}

	logger.Info("Azure writer created",
		"container", cfg.ContainerName,
		"account", cfg.AccountName,
		"prefix", cfg.Prefix,
		"format", format,
		"compression", compression,
	)

	return &AzureWriter{
		client:         client,
		containerName:  cfg.ContainerName,
		router:         NewRouter("wasbs", cfg.ContainerName, cfg.Prefix),
		encoderFactory: encoderFactory,
		logger:         logger,
		metrics:        metrics,
	}, nil
}

// Create stages a file that is uploaded to Azure Blob Storage on Close.
func (w *AzureWriter) Create(ctx context.Context, name string) (storage.File, error) {
	enc, err := w.encoderFactory.CreateEncoder()
	if err != nil {
		if w.metrics != nil {
			w.metrics.IncStorageErrors("azure", "encoder_create")
		}
		return nil, &errors.WriteError{Operation: "create", Path: name, Err: err}
	}

	return newStagedFile(ctx, name, stagingOptions{
		backend: "azure",
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

func (w *AzureWriter) upload(ctx context.Context, stagingPath string, obj object) (string, error) {
	file, err := os.Open(stagingPath)
	if err != nil {
		return "", fmt.Errorf("failed to open encoded file: %w", err)
	}
	defer file.Close()

	metadata := make(map[string]*string)
	for k, v := range objectMetadata(obj) {
		// Azure metadata names must be valid C# identifiers.
		metadata[azureMetadataKey(k)] = &v
	}
	ct := contentType(obj.Format)

	_, err = w.client.UploadFile(ctx, w.containerName, obj.Key, file, &azblob.UploadFileOptions{
		HTTPHeaders: &blob.HTTPHeaders{BlobContentType: &ct},
		Metadata:    metadata,
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload to Azure Blob: %w", err)
	}

	return w.router.URI(obj.Key), nil
}

func azureMetadataKey(k string) string {
	out := []byte(k)
	for i, c := range out {
		if c == '-' {
			out[i] = '_'
		}
	}
	return string(out)
}

// Close closes the Azure writer.
func (w *AzureWriter) Close() error {
	w.logger.Info("Azure writer closed")
	return nil
}
