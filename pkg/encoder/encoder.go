// Package encoder defines interfaces for encoding telemetry containers to
// various file formats.
package encoder

import (
	"io"

	"github.com/jittakal/telemetrystore/pkg/container"
	"github.com/jittakal/telemetrystore/pkg/telemetry"
)

// Encoder encodes a container to a specific file format.
type Encoder interface {
	// Encode writes root to w and returns file statistics.
	// SizeBytes is left to the caller, which owns w.
	Encode(w io.Writer, root *container.Struct) (*telemetry.FileStats, error)

	// Format returns the file format this encoder produces.
	Format() telemetry.FileFormat

	// FileExtension returns the file extension (e.g., ".parquet", ".avro").
	FileExtension() string
}
