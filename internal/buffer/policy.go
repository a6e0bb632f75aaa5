package buffer

import (
	"fmt"
	"sync"
	"time"

	"github.com/jittakal/telemetrystore/internal/errors"
	"github.com/jittakal/telemetrystore/pkg/storage"
	"github.com/jittakal/telemetrystore/pkg/telemetry"
)

// Ensure implementation satisfies interface at compile time.
var _ storage.FlushPolicy = (*FlushPolicy)(nil)

// FlushStrategy determines which channel states trigger a flush.
type FlushStrategy string

const (
	StrategyAny FlushStrategy = "any"
	StrategyAll FlushStrategy = "all"
)

// PolicyConfig configures flush triggering.
type PolicyConfig struct {
	Strategy        string
	IntervalSeconds int
}

// FlushPolicy triggers a flush when any (or all) channels are full, or when
// the flush interval has elapsed since the last triggered flush.
type FlushPolicy struct {
	strategy    FlushStrategy
	interval    time.Duration
	lastTrigger time.Time
	mu          sync.Mutex
}

// NewFlushPolicy creates a flush policy. An empty strategy means "any".
func NewFlushPolicy(cfg PolicyConfig) (*FlushPolicy, error) {
	strategy := FlushStrategy(cfg.Strategy)
	switch strategy {
	case "":
		strategy = StrategyAny
	case StrategyAny, StrategyAll:
	default:
		return nil, &errors.ConfigurationError{
			Field:  "flush.strategy",
			Reason: fmt.Sprintf("unsupported strategy %q (supported: any, all)", cfg.Strategy),
		}
	}

	if cfg.IntervalSeconds < 0 {
		return nil, &errors.ConfigurationError{
			Field:  "flush.interval_seconds",
			Reason: fmt.Sprintf("must not be negative, got %d", cfg.IntervalSeconds),
		}
	}

	return &FlushPolicy{
		strategy: strategy,
		interval: time.Duration(cfg.IntervalSeconds) * time.Second,
	}, nil
}

// ShouldFlush returns true if a flush condition is met. A true result
// restarts the interval.
func (p *FlushPolicy) ShouldFlush(stats []telemetry.ChannelStats, now time.Time) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.lastTrigger.IsZero() {
		p.lastTrigger = now
	}

	if p.fullnessMet(stats) || (p.interval > 0 && now.Sub(p.lastTrigger) >= p.interval) {
		p.lastTrigger = now
		return true
	}
	return false
}

func (p *FlushPolicy) fullnessMet(stats []telemetry.ChannelStats) bool {
	if len(stats) == 0 {
		return false
	}

	full := 0
	for _, s := range stats {
		if s.Full {
			full++
		}
	}

	if p.strategy == StrategyAll {
		return full == len(stats)
	}
	return full > 0
}
