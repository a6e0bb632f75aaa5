// Package telemetry defines the core types shared by the buffering engine,
// the encoders and the storage backends.
//
// # Channels
//
// A channel is a named stream of samples with a fixed rows x cols shape:
//
//	pos := telemetry.NewChannelInfo("pos", 3, 1)
//	pos.Dimensions.Elements() // 3
//
// # Records
//
// Record pairs a sample with the timestamp taken when it was pushed:
//
//	record := telemetry.Record{
//	    Timestamp: clock.Now(),
//	    Datum:     []float64{0.1, 0.2, 0.3},
//	}
//
// # Clocks
//
// The Clock interface supplies timestamps in floating point seconds.
// SystemClock reports Unix time, MonotonicClock reports seconds since it was
// created, and ClockFunc adapts any function (useful in tests):
//
//	clock := telemetry.ClockFunc(func() float64 { return 42 })
//
// # File Formats
//
//	telemetry.FormatParquet  // Columnar format for analytics
//	telemetry.FormatAvro     // Row-based format with schema
package telemetry
