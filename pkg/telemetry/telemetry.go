// Package telemetry defines core sample types and interfaces for telemetry buffering.
package telemetry

import (
	"fmt"
	"math"
	"time"
)

// Dimensions is the declared rows x cols shape of every sample on a channel.
type Dimensions struct {
	Rows int `json:"rows" mapstructure:"rows"`
	Cols int `json:"cols" mapstructure:"cols"`
}

// Elements returns the number of values a sample of this shape carries.
func (d Dimensions) Elements() int {
	return d.Rows * d.Cols
}

// String returns the shape in the format "rowsxcols".
func (d Dimensions) String() string {
	return fmt.Sprintf("%dx%d", d.Rows, d.Cols)
}

// ChannelInfo describes one named channel. Names are unique within a manager.
type ChannelInfo struct {
	Name       string
	Dimensions Dimensions
}

// NewChannelInfo returns a descriptor for a rows x cols channel.
func NewChannelInfo(name string, rows, cols int) ChannelInfo {
	return ChannelInfo{
		Name:       name,
		Dimensions: Dimensions{Rows: rows, Cols: cols},
	}
}

// Record is one time-stamped observation of a channel.
// A Record is not modified after it has been pushed.
type Record struct {
	// Timestamp in seconds, as reported by the Clock at push time.
	Timestamp float64

	// Datum holds rows*cols values in row-major order.
	Datum []float64
}

// Time converts the record timestamp to a time.Time.
func (r Record) Time() time.Time {
	return SecondsToTime(r.Timestamp)
}

// CloudEvents attributes of ingested and dead-lettered samples.
const (
	EventTypeSample   = "telemetry.sample"
	EventTypeRejected = "telemetry.sample.rejected"
	ContentTypeJSON   = "application/json"
)

// SamplePayload is the wire representation of a sample sent by producers.
type SamplePayload struct {
	Channel string    `json:"channel"`
	Values  []float64 `json:"values"`
}

// ChannelStats is a point-in-time view of one channel buffer.
type ChannelStats struct {
	Name      string
	Size      int
	Capacity  int
	Full      bool
	Evicted   int64
	FirstPush time.Time
	LastPush  time.Time
}

// KafkaMetadata identifies the Kafka message a sample was read from.
type KafkaMetadata struct {
	Topic     string
	Partition int32
	Offset    int64
	Key       []byte
	Timestamp time.Time
}

// ConsumedSample is a sample decoded from an ingestion source.
type ConsumedSample struct {
	EventID string
	Source  string
	Payload SamplePayload
	Kafka   KafkaMetadata

	// Raw is the undecoded message value.
	Raw []byte

	// CommitFunc marks the message as processed. May be nil.
	CommitFunc func() error
}

// Commit marks the message as processed.
func (s *ConsumedSample) Commit() error {
	if s.CommitFunc == nil {
		return nil
	}
	return s.CommitFunc()
}

// FileStats contains statistics about a written output file.
type FileStats struct {
	EntryCount  int
	SampleCount int
	SizeBytes   int64
	WrittenAt   time.Time
}

// FileFormat represents the output file format.
type FileFormat string

const (
	FormatParquet FileFormat = "parquet"
	FormatAvro    FileFormat = "avro"
)

// Clock supplies the current time as floating point seconds.
type Clock interface {
	Now() float64
}

// ClockFunc adapts a function to the Clock interface.
type ClockFunc func() float64

// Now calls f.
func (f ClockFunc) Now() float64 {
	return f()
}

// SystemClock reports wall-clock seconds since the Unix epoch.
type SystemClock struct{}

// Now returns the current Unix time in seconds.
func (SystemClock) Now() float64 {
	return float64(time.Now().UnixNano()) / float64(time.Second)
}

// MonotonicClock reports seconds elapsed since the clock was created.
// It is not affected by wall-clock adjustments.
type MonotonicClock struct {
	start time.Time
}

// NewMonotonicClock creates a clock starting at zero.
func NewMonotonicClock() *MonotonicClock {
	return &MonotonicClock{start: time.Now()}
}

// Now returns seconds elapsed since NewMonotonicClock.
func (c *MonotonicClock) Now() float64 {
	return time.Since(c.start).Seconds()
}

// SecondsToTime converts Unix seconds to a UTC time.Time.
func SecondsToTime(seconds float64) time.Time {
	sec, frac := math.Modf(seconds)
	return time.Unix(int64(sec), int64(frac*float64(time.Second))).UTC()
}
