// Package encoder implements file format encoders.
package encoder

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"time"

	"github.com/linkedin/goavro/v2"

	"github.com/jittakal/telemetrystore/pkg/container"
	"github.com/jittakal/telemetrystore/pkg/encoder"
	"github.com/jittakal/telemetrystore/pkg/telemetry"
)

// Ensure implementation satisfies interface at compile time.
var _ encoder.Encoder = (*AvroEncoder)(nil)

// AvroEncoder implements encoder.Encoder for Apache Avro OCF files.
// "gzip" wraps the whole file; "deflate" and "snappy" use the OCF block codecs.
type AvroEncoder struct {
	codec       *goavro.Codec
	compression string
}

// NewAvroEncoder creates a new Avro encoder with specified compression.
func NewAvroEncoder(compression string) (*AvroEncoder, error) {
	codec, err := goavro.NewCodec(avroSchema())
	if err != nil {
		return nil, fmt.Errorf("failed to create avro codec: %w", err)
	}

	return &AvroEncoder{
		codec:       codec,
		compression: compression,
	}, nil
}

// avroSchema returns the Avro schema for one flushed channel.
func avroSchema() string {
	return `{
		"type": "record",
		"name": "TelemetryChannel",
		"namespace": "com.telemetry.store",
		"fields": [
			{"name": "container", "type": "string"},
			{"name": "name", "type": "string"},
			{"name": "dimensions", "type": {"type": "array", "items": "long"}},
			{"name": "data", "type": {"type": "array", "items": "double"}},
			{"name": "timestamps", "type": {"type": "array", "items": "double"}}
		]
	}`
}

func (e *AvroEncoder) gzipped() bool {
	return e.compression == "gzip" || e.compression == "GZIP"
}

func (e *AvroEncoder) blockCompression() string {
	switch e.compression {
	case "deflate", "DEFLATE":
		return goavro.CompressionDeflateLabel
	case "snappy", "SNAPPY":
		return goavro.CompressionSnappyLabel
	default:
		return goavro.CompressionNullLabel
	}
}

// Encode writes one Avro record per channel entry of root.
func (e *AvroEncoder) Encode(w io.Writer, root *container.Struct) (*telemetry.FileStats, error) {
	channels, err := container.Channels(root)
	if err != nil {
		return nil, fmt.Errorf("failed to read container: %w", err)
	}
	if len(channels) == 0 {
		return nil, fmt.Errorf("no channels to encode")
	}

	cw := &countingWriter{w: w}
	var writer io.Writer = cw

	var gzipWriter *gzip.Writer
	if e.gzipped() {
		gzipWriter = gzip.NewWriter(cw)
		writer = gzipWriter
	}

	ocfWriter, err := goavro.NewOCFWriter(goavro.OCFConfig{
		W:               writer,
		Codec:           e.codec,
		CompressionName: e.blockCompression(),
		MetaData:        map[string][]byte{"telemetry.container": []byte(root.Name)},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create OCF writer: %w", err)
	}

	samples := 0
	for _, ch := range channels {
		if err := ocfWriter.Append([]interface{}{toAvroMap(root.Name, ch)}); err != nil {
			return nil, fmt.Errorf("failed to write channel %q: %w", ch.Name, err)
		}
		samples += len(ch.Timestamps)
	}

	if gzipWriter != nil {
		if err := gzipWriter.Close(); err != nil {
			return nil, fmt.Errorf("failed to close gzip writer: %w", err)
		}
	}

	return &telemetry.FileStats{
		EntryCount:  len(channels),
		SampleCount: samples,
		SizeBytes:   cw.n,
		WrittenAt:   time.Now(),
	}, nil
}

// toAvroMap converts a channel to its Avro map representation.
// goavro expects arrays as []interface{}.
func toAvroMap(containerName string, ch container.Channel) map[string]interface{} {
	dims := make([]interface{}, len(ch.Dimensions))
	for i, d := range ch.Dimensions {
		dims[i] = int64(d)
	}

	return map[string]interface{}{
		"container":  containerName,
		"name":       ch.Name,
		"dimensions": dims,
		"data":       floatsToAvro(ch.Data),
		"timestamps": floatsToAvro(ch.Timestamps),
	}
}

func floatsToAvro(values []float64) []interface{} {
	out := make([]interface{}, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

// EncodeToBytes encodes root to bytes (useful for testing).
func (e *AvroEncoder) EncodeToBytes(root *container.Struct) ([]byte, error) {
	var buf bytes.Buffer
	if _, err := e.Encode(&buf, root); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Format returns the file format.
func (e *AvroEncoder) Format() telemetry.FileFormat {
	return telemetry.FormatAvro
}

// FileExtension returns the file extension.
func (e *AvroEncoder) FileExtension() string {
	if e.gzipped() {
		return ".avro.gz"
	}
	return ".avro"
}
