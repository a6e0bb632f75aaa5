// Package encoder implements encoder factory for creating file format encoders.
package encoder

import (
	"fmt"
	"slices"

	"github.com/jittakal/telemetrystore/pkg/encoder"
	"github.com/jittakal/telemetrystore/pkg/telemetry"
)

// Factory creates encoders based on format and configuration.
type Factory struct {
	format      telemetry.FileFormat
	compression string
}

// NewFactory creates a new encoder factory.
func NewFactory(format telemetry.FileFormat, compression string) *Factory {
	return &Factory{
		format:      format,
		compression: compression,
	}
}

// Format returns the configured file format.
func (f *Factory) Format() telemetry.FileFormat {
	return f.format
}

// CreateEncoder creates an encoder based on the configured format.
func (f *Factory) CreateEncoder() (encoder.Encoder, error) {
	switch f.format {
	case telemetry.FormatParquet:
		return NewParquetEncoder(f.compression), nil
	case telemetry.FormatAvro:
		return NewAvroEncoder(f.compression)
	default:
		return nil, fmt.Errorf("unsupported file format: %s", f.format)
	}
}

// SupportedFormats returns a list of supported file formats.
func SupportedFormats() []telemetry.FileFormat {
	return []telemetry.FileFormat{
		telemetry.FormatParquet,
		telemetry.FormatAvro,
	}
}

// SupportedCompressions returns supported compression codecs for a given format.
func SupportedCompressions(format telemetry.FileFormat) []string {
	switch format {
	case telemetry.FormatParquet:
		return []string{"uncompressed", "snappy", "gzip", "lz4", "zstd"}
	case telemetry.FormatAvro:
		return []string{"uncompressed", "gzip", "deflate", "snappy"}
	default:
		return []string{}
	}
}

// IsSupportedCompression reports whether compression is valid for format.
// Empty means the format default.
func IsSupportedCompression(format telemetry.FileFormat, compression string) bool {
	return compression == "" || slices.Contains(SupportedCompressions(format), compression)
}

// DefaultCompression returns the default compression for a format.
func DefaultCompression(format telemetry.FileFormat) string {
	switch format {
	case telemetry.FormatParquet:
		return "snappy"
	case telemetry.FormatAvro:
		return "gzip"
	default:
		return "uncompressed"
	}
}
