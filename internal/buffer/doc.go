// Package buffer provides thread-safe sample buffering and the flush engine.
//
// # ChannelBuffer
//
// ChannelBuffer is a fixed-capacity queue for the records of one channel.
// Capacity is a hard ceiling; the overflow policy decides what happens to a
// sample pushed into a full buffer:
//
//	buf := buffer.New(telemetry.NewChannelInfo("pos", 3, 1), 100, buffer.OverflowReject)
//
//	err := buf.Push(record)
//	if errors.Is(err, errors.ErrBufferFull) {
//	    // window reached, flush first
//	}
//
// With OverflowDropOldest the oldest record is evicted instead.
//
// # Manager
//
// Manager owns one ChannelBuffer per declared channel, all with the same
// window size. Samples are validated against the channel shape and stamped
// with the configured Clock:
//
//	m, err := buffer.NewManager(buffer.Options{
//	    Filename:   "log.mat",
//	    Channels:   []telemetry.ChannelInfo{telemetry.NewChannelInfo("pos", 3, 1)},
//	    WindowSize: 100,
//	    AutoSave:   true,
//	    Writer:     writer,
//	})
//
//	err = m.Push("pos", []float64{0.1, 0.2, 0.3})
//
// Hot loops can resolve the channel once and push through the handle:
//
//	pos, _ := m.Channel("pos")
//	err = m.PushTo(pos, sample)
//
// # Flushing
//
// Flush visits channels in declaration order. Channels that are not full are
// skipped and keep their data. Each full channel becomes one struct holding
//
//	data        rows x cols x T array
//	dimensions  [rows, cols, T]
//	name        channel name
//	timestamps  T push times
//
// All structs are wrapped in a container named after the filename up to its
// first '.', and handed to the storage writer. Buffers are cleared only after
// the writer succeeded, so a failed flush can be retried.
//
// Close flushes once when AutoSave is set. After Close, pushes and flushes
// return ErrManagerClosed.
//
// # Flush Policy
//
// FlushPolicy tells a long-running process when to call Flush: as soon as
// any channel is full, once all channels are full, or after an interval.
package buffer
