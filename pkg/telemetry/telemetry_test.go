package telemetry

import (
	"testing"
	"time"
)

func TestDimensions_Elements(t *testing.T) {
	tests := []struct {
		name string
		dims Dimensions
		want int
	}{
		{
			name: "scalar",
			dims: Dimensions{Rows: 1, Cols: 1},
			want: 1,
		},
		{
			name: "column vector",
			dims: Dimensions{Rows: 3, Cols: 1},
			want: 3,
		},
		{
			name: "matrix",
			dims: Dimensions{Rows: 4, Cols: 4},
			want: 16,
		},
		{
			name: "zero value",
			dims: Dimensions{},
			want: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.dims.Elements(); got != tt.want {
				t.Errorf("Elements() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestDimensions_String(t *testing.T) {
	dims := Dimensions{Rows: 3, Cols: 2}
	if got := dims.String(); got != "3x2" {
		t.Errorf("String() = %q, want %q", got, "3x2")
	}
}

func TestNewChannelInfo(t *testing.T) {
	info := NewChannelInfo("pos", 3, 1)

	if info.Name != "pos" {
		t.Errorf("Name = %v, want pos", info.Name)
	}
	if info.Dimensions.Rows != 3 || info.Dimensions.Cols != 1 {
		t.Errorf("Dimensions = %v, want 3x1", info.Dimensions)
	}
}

func TestClockFunc(t *testing.T) {
	calls := 0
	clock := ClockFunc(func() float64 {
		calls++
		return 12.5
	})

	if got := clock.Now(); got != 12.5 {
		t.Errorf("Now() = %v, want 12.5", got)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestSystemClock_Now(t *testing.T) {
	before := float64(time.Now().Unix())
	got := SystemClock{}.Now()
	after := float64(time.Now().Unix()) + 1

	if got < before || got > after {
		t.Errorf("Now() = %v, want within [%v, %v]", got, before, after)
	}
}

func TestMonotonicClock_Now(t *testing.T) {
	clock := NewMonotonicClock()

	first := clock.Now()
	time.Sleep(2 * time.Millisecond)
	second := clock.Now()

	if first < 0 {
		t.Errorf("first reading = %v, want >= 0", first)
	}
	if second <= first {
		t.Errorf("clock did not advance: first=%v second=%v", first, second)
	}
}

func TestSecondsToTime(t *testing.T) {
	got := SecondsToTime(1766313000.5)
	want := time.Date(2025, 12, 21, 10, 30, 0, int(500*time.Millisecond), time.UTC)

	if !got.Equal(want) {
		t.Errorf("SecondsToTime() = %v, want %v", got, want)
	}
}

func TestRecord_Time(t *testing.T) {
	record := Record{Timestamp: 1766313000, Datum: []float64{1}}

	if got := record.Time().Unix(); got != 1766313000 {
		t.Errorf("Time().Unix() = %d, want 1766313000", got)
	}
}
