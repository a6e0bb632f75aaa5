// Package buffer implements per-channel sample buffering and the flush engine.
package buffer

import (
	"fmt"
	"iter"
	"sync"
	"time"

	"github.com/jittakal/telemetrystore/internal/errors"
	"github.com/jittakal/telemetrystore/pkg/buffer"
	"github.com/jittakal/telemetrystore/pkg/telemetry"
)

// Ensure implementation satisfies interface at compile time.
var _ buffer.ChannelBuffer = (*ChannelBuffer)(nil)

// OverflowPolicy decides what a full ChannelBuffer does with a new record.
type OverflowPolicy int

const (
	// OverflowReject refuses the record with ErrBufferFull.
	OverflowReject OverflowPolicy = iota
	// OverflowDropOldest evicts the oldest record to make room.
	OverflowDropOldest
)

// String returns the configuration name of the policy.
func (p OverflowPolicy) String() string {
	switch p {
	case OverflowReject:
		return "reject"
	case OverflowDropOldest:
		return "drop_oldest"
	default:
		return "unknown"
	}
}

// ParseOverflowPolicy parses "reject" or "drop_oldest". Empty means reject.
func ParseOverflowPolicy(s string) (OverflowPolicy, error) {
	switch s {
	case "", "reject":
		return OverflowReject, nil
	case "drop_oldest":
		return OverflowDropOldest, nil
	default:
		return 0, &errors.ConfigurationError{
			Field:  "overflow_policy",
			Reason: fmt.Sprintf("unsupported policy %q (supported: reject, drop_oldest)", s),
		}
	}
}

// ChannelBuffer buffers the records of a single channel.
// It is a fixed-capacity ring: records are kept in insertion order and the
// capacity is never exceeded.
type ChannelBuffer struct {
	info      telemetry.ChannelInfo
	records   []telemetry.Record
	head      int
	count     int
	overflow  OverflowPolicy
	evicted   int64
	firstPush time.Time
	lastPush  time.Time
	mu        sync.RWMutex
}

// New creates a new channel buffer holding at most capacity records.
func New(info telemetry.ChannelInfo, capacity int, overflow OverflowPolicy) *ChannelBuffer {
	return &ChannelBuffer{
		info:     info,
		records:  make([]telemetry.Record, capacity),
		overflow: overflow,
	}
}

// Info returns the channel descriptor.
func (b *ChannelBuffer) Info() telemetry.ChannelInfo {
	return b.info
}

// Push appends a record to the tail.
func (b *ChannelBuffer) Push(record telemetry.Record) error {
	_, err := b.push(record)
	return err
}

// push appends record and reports whether an older record was evicted.
func (b *ChannelBuffer) push(record telemetry.Record) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	capacity := len(b.records)
	if capacity == 0 {
		return false, fmt.Errorf("%w: channel %q has no capacity", errors.ErrBufferFull, b.info.Name)
	}

	evicted := false
	if b.count == capacity {
		if b.overflow != OverflowDropOldest {
			return false, fmt.Errorf("%w: channel %q window (%d) reached", errors.ErrBufferFull, b.info.Name, capacity)
		}
		b.records[b.head] = record
		b.head = (b.head + 1) % capacity
		b.evicted++
		evicted = true
	} else {
		b.records[(b.head+b.count)%capacity] = record
		b.count++
	}

	now := time.Now()
	if b.firstPush.IsZero() {
		b.firstPush = now
	}
	b.lastPush = now

	return evicted, nil
}

// Records returns the buffered records, oldest first.
// The returned slice is a copy; later pushes do not affect it.
func (b *ChannelBuffer) Records() []telemetry.Record {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]telemetry.Record, b.count)
	for i := range b.count {
		out[i] = b.records[(b.head+i)%len(b.records)]
	}
	return out
}

// All ranges over a snapshot of the buffered records, oldest first.
func (b *ChannelBuffer) All() iter.Seq[telemetry.Record] {
	return func(yield func(telemetry.Record) bool) {
		for _, r := range b.Records() {
			if !yield(r) {
				return
			}
		}
	}
}

// Size returns the number of buffered records.
func (b *ChannelBuffer) Size() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.count
}

// Capacity returns the window size.
func (b *ChannelBuffer) Capacity() int {
	return len(b.records)
}

// Full returns true once the buffer holds Capacity records.
func (b *ChannelBuffer) Full() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.count >= len(b.records)
}

// Stats returns current buffer statistics.
func (b *ChannelBuffer) Stats() telemetry.ChannelStats {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return telemetry.ChannelStats{
		Name:      b.info.Name,
		Size:      b.count,
		Capacity:  len(b.records),
		Full:      b.count >= len(b.records),
		Evicted:   b.evicted,
		FirstPush: b.firstPush,
		LastPush:  b.lastPush,
	}
}

// Clear removes all records. Capacity and the eviction count are kept.
func (b *ChannelBuffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()

	clear(b.records)
	b.head = 0
	b.count = 0
	b.firstPush = time.Time{}
	b.lastPush = time.Time{}
}
