// Package encoder provides telemetry container encoding to columnar and row
// file formats.
//
// Every encoder stores one row per flushed channel with the columns
//
//	container   top-level container name (the filename stem)
//	name        channel name
//	dimensions  [rows, cols, T]
//	data        rows*cols*T values, one rows x cols block per timestep
//	timestamps  T push times in seconds
//
// # Encoder Factory
//
//	factory := encoder.NewFactory(telemetry.FormatParquet, "snappy")
//	enc, err := factory.CreateEncoder()
//
// # Encoding
//
// Encoders write to any io.Writer; the storage backends decide whether that
// is a local file or a temporary file that is uploaded afterwards:
//
//	stats, err := enc.Encode(w, root)
//	fmt.Printf("Encoded %d channels, %d bytes\n", stats.EntryCount, stats.SizeBytes)
//
// # Compression Options
//
//	Parquet: "snappy" (default), "gzip", "lz4", "zstd", "none"
//	Avro:    "gzip" (default, whole file), "deflate", "snappy" (OCF blocks), "none"
//
// # File Extensions
//
//	parquetEnc.FileExtension()  // ".parquet"
//	avroEnc.FileExtension()     // ".avro.gz" (with gzip)
package encoder
