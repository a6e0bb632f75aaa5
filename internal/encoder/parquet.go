// Package encoder implements file format encoders.
package encoder

import (
	"fmt"
	"io"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/jittakal/telemetrystore/pkg/container"
	"github.com/jittakal/telemetrystore/pkg/encoder"
	"github.com/jittakal/telemetrystore/pkg/telemetry"
)

// Ensure implementation satisfies interface at compile time.
var _ encoder.Encoder = (*ParquetEncoder)(nil)

// ChannelParquet is the Parquet row for one flushed channel.
// Dimensions is [rows, cols, T]; Data holds rows*cols*T values, one
// rows*cols block per timestep.
type ChannelParquet struct {
	Container  string    `parquet:"container,dict"`
	Name       string    `parquet:"name,dict"`
	Dimensions []int64   `parquet:"dimensions,list"`
	Data       []float64 `parquet:"data,list"`
	Timestamps []float64 `parquet:"timestamps,list"`
}

// ParquetEncoder implements encoder.Encoder for Apache Parquet columnar format.
// Supports multiple compression codecs: SNAPPY (default), GZIP, LZ4, ZSTD.
type ParquetEncoder struct {
	compressionName string
}

// NewParquetEncoder creates a new Parquet encoder with specified compression.
func NewParquetEncoder(compression string) *ParquetEncoder {
	return &ParquetEncoder{
		compressionName: compression,
	}
}

// compressionCodec converts string compression name to parquet WriterOption.
func compressionCodec(compression string) parquet.WriterOption {
	switch compression {
	case "snappy", "SNAPPY":
		return parquet.Compression(&parquet.Snappy)
	case "gzip", "GZIP":
		return parquet.Compression(&parquet.Gzip)
	case "lz4", "LZ4":
		return parquet.Compression(&parquet.Lz4Raw)
	case "zstd", "ZSTD":
		return parquet.Compression(&parquet.Zstd)
	case "uncompressed", "UNCOMPRESSED", "none", "NONE":
		return parquet.Compression(&parquet.Uncompressed)
	default:
		return parquet.Compression(&parquet.Snappy)
	}
}

// Encode writes one row per channel entry of root.
// The container name is also stored in the file key/value metadata.
func (e *ParquetEncoder) Encode(w io.Writer, root *container.Struct) (*telemetry.FileStats, error) {
	channels, err := container.Channels(root)
	if err != nil {
		return nil, fmt.Errorf("failed to read container: %w", err)
	}
	if len(channels) == 0 {
		return nil, fmt.Errorf("no channels to encode")
	}

	rows := make([]ChannelParquet, len(channels))
	samples := 0
	for i, ch := range channels {
		rows[i] = toParquetRow(root.Name, ch)
		samples += len(ch.Timestamps)
	}

	cw := &countingWriter{w: w}
	writer := parquet.NewGenericWriter[ChannelParquet](
		cw,
		parquet.SchemaOf(new(ChannelParquet)),
		compressionCodec(e.compressionName),
		parquet.CreatedBy("telemetrystore", "1.0", "0"),
		parquet.KeyValueMetadata("container", root.Name),
	)

	if _, err := writer.Write(rows); err != nil {
		writer.Close()
		return nil, fmt.Errorf("failed to write rows: %w", err)
	}

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close writer: %w", err)
	}

	return &telemetry.FileStats{
		EntryCount:  len(channels),
		SampleCount: samples,
		SizeBytes:   cw.n,
		WrittenAt:   time.Now(),
	}, nil
}

func toParquetRow(containerName string, ch container.Channel) ChannelParquet {
	dims := make([]int64, len(ch.Dimensions))
	for i, d := range ch.Dimensions {
		dims[i] = int64(d)
	}
	return ChannelParquet{
		Container:  containerName,
		Name:       ch.Name,
		Dimensions: dims,
		Data:       ch.Data,
		Timestamps: ch.Timestamps,
	}
}

// Format returns the file format.
func (e *ParquetEncoder) Format() telemetry.FileFormat {
	return telemetry.FormatParquet
}

// FileExtension returns the file extension.
func (e *ParquetEncoder) FileExtension() string {
	return ".parquet"
}

// countingWriter counts bytes written through it.
type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
