package buffer_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/jittakal/telemetrystore/internal/buffer"
	"github.com/jittakal/telemetrystore/pkg/container"
	"github.com/jittakal/telemetrystore/pkg/storage"
	"github.com/jittakal/telemetrystore/pkg/telemetry"
)

// printWriter prints each container it receives.
type printWriter struct{}

func (printWriter) Create(_ context.Context, name string) (storage.File, error) {
	fmt.Println("create", name)
	return &printFile{}, nil
}

func (printWriter) Close() error { return nil }

type printFile struct{ root *container.Struct }

func (f *printFile) Write(root *container.Struct) error {
	f.root = root
	return nil
}

func (f *printFile) Close() error {
	channels, err := container.Channels(f.root)
	if err != nil {
		return err
	}
	fmt.Println("container", f.root.Name)
	for _, ch := range channels {
		fmt.Println(ch.Name, ch.Dimensions, ch.Data, ch.Timestamps)
	}
	return nil
}

func (f *printFile) Stats() telemetry.FileStats { return telemetry.FileStats{} }

func Example_channelBuffer() {
	buf := buffer.New(telemetry.NewChannelInfo("pos", 1, 1), 3, buffer.OverflowDropOldest)

	for i := 1; i <= 5; i++ {
		_ = buf.Push(telemetry.Record{Timestamp: float64(i), Datum: []float64{float64(i * 10)}})
	}

	for r := range buf.All() {
		fmt.Println(r.Timestamp, r.Datum)
	}
	fmt.Println("full:", buf.Full(), "evicted:", buf.Stats().Evicted)

	// Output:
	// 3 [30]
	// 4 [40]
	// 5 [50]
	// full: true evicted: 2
}

func Example_manager() {
	next := 0.0
	clock := telemetry.ClockFunc(func() float64 {
		next += 0.5
		return next
	})

	m, err := buffer.NewManager(buffer.Options{
		Filename: "log.mat",
		Channels: []telemetry.ChannelInfo{
			telemetry.NewChannelInfo("pos", 3, 1),
			telemetry.NewChannelInfo("vel", 3, 1),
		},
		WindowSize: 2,
		AutoSave:   true,
		Clock:      clock,
		Writer:     printWriter{},
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		fmt.Println("error:", err)
		return
	}

	_ = m.Push("pos", []float64{1, 2, 3})
	_ = m.Push("pos", []float64{4, 5, 6})
	_ = m.Push("vel", []float64{0, 0, 0})

	if err := m.Close(context.Background()); err != nil {
		fmt.Println("error:", err)
	}

	size, _ := m.Size("vel")
	fmt.Println("vel size:", size)

	// Output:
	// create log.mat
	// container log
	// pos [3 1 2] [1 2 3 4 5 6] [0.5 1]
	// vel size: 1
}
