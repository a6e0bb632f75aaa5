package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jittakal/telemetrystore/internal/buffer"
	"github.com/jittakal/telemetrystore/internal/config/dto"
	"github.com/jittakal/telemetrystore/internal/errors"
	"github.com/jittakal/telemetrystore/internal/server"
	"github.com/jittakal/telemetrystore/pkg/consumer"
	"github.com/jittakal/telemetrystore/pkg/telemetry"
)

// pipeline pushes ingested samples into the buffer manager and flushes it
// whenever the flush policy fires.
type pipeline struct {
	manager *buffer.Manager
	policy  *buffer.FlushPolicy
	health  *server.ManagerHealthChecker
	dlq     consumer.DLQPublisher
	logger  *slog.Logger

	retryBackoff         time.Duration
	maxConsecutiveErrors int
	consecutiveErrors    int
	nextAttempt          time.Time
	now                  func() time.Time
}

func newPipeline(
	manager *buffer.Manager,
	policy *buffer.FlushPolicy,
	health *server.ManagerHealthChecker,
	logger *slog.Logger,
	cfg dto.FlushConfig,
) *pipeline {
	return &pipeline{
		manager:              manager,
		policy:               policy,
		health:               health,
		logger:               logger,
		retryBackoff:         time.Duration(cfg.RetryBackoffMS) * time.Millisecond,
		maxConsecutiveErrors: cfg.MaxConsecutiveErrors,
		now:                  time.Now,
	}
}

// run processes samples and flush ticks until ctx is done, the sample
// channel closes, or flushing fails too many times in a row. samples and
// errs may be nil when no ingestion source is configured.
func (p *pipeline) run(
	ctx context.Context,
	samples <-chan *telemetry.ConsumedSample,
	errs <-chan error,
	checkInterval time.Duration,
) error {
	ticker := time.NewTicker(checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("context cancelled, stopping processing")
			return nil

		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			p.handleSourceError(err)

		case sample, ok := <-samples:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				p.health.RecordIngestError(errors.ErrConnectionLost)
				return fmt.Errorf("sample source stopped: %w", errors.ErrConnectionLost)
			}
			p.ingest(ctx, sample)

		case <-ticker.C:
			if err := p.maybeFlush(ctx); err != nil {
				return err
			}
		}
	}
}

func (p *pipeline) handleSourceError(err error) {
	if errors.IsRejection(err) {
		// Already logged and dead-lettered by the source
		return
	}
	p.logger.Error("consumer error", "error", err)
	p.health.RecordIngestError(err)
}

// ingest pushes one sample. Rejected samples go to the DLQ; the message is
// committed either way.
func (p *pipeline) ingest(ctx context.Context, sample *telemetry.ConsumedSample) {
	err := p.manager.Push(sample.Payload.Channel, sample.Payload.Values)
	switch {
	case err == nil:
	case errors.IsRejection(err):
		p.logger.Warn("sample rejected",
			"channel", sample.Payload.Channel,
			"event_id", sample.EventID,
			"topic", sample.Kafka.Topic,
			"offset", sample.Kafka.Offset,
			"error", err,
		)
		if p.dlq != nil {
			if dlqErr := p.dlq.Publish(ctx, sample, err.Error()); dlqErr != nil {
				p.logger.Error("failed to publish rejected sample to DLQ",
					"event_id", sample.EventID,
					"error", dlqErr,
				)
			}
		}
	case stderrors.Is(err, errors.ErrManagerClosed):
		// Shutting down; leave the message uncommitted for redelivery
		return
	default:
		p.logger.Error("failed to push sample",
			"channel", sample.Payload.Channel,
			"event_id", sample.EventID,
			"error", err,
		)
		return
	}

	if err := sample.Commit(); err != nil {
		p.logger.Error("failed to commit offset",
			"topic", sample.Kafka.Topic,
			"partition", sample.Kafka.Partition,
			"offset", sample.Kafka.Offset,
			"error", err,
		)
	}
}

// maybeFlush flushes when the policy fires. Failed flushes are retried after
// the backoff; it returns an error once the consecutive failure limit is hit.
func (p *pipeline) maybeFlush(ctx context.Context) error {
	now := p.now()
	if now.Before(p.nextAttempt) {
		return nil
	}

	// A failed flush keeps its data buffered, so a retry is due even if the
	// policy would not fire again.
	if p.consecutiveErrors == 0 && !p.policy.ShouldFlush(p.manager.Stats(), now) {
		return nil
	}

	err := p.manager.Flush(ctx)
	p.health.RecordFlush(now, err)
	if err == nil {
		p.consecutiveErrors = 0
		p.nextAttempt = time.Time{}
		return nil
	}

	p.consecutiveErrors++
	p.nextAttempt = now.Add(p.retryBackoff)
	p.logger.Error("flush failed",
		"consecutive_errors", p.consecutiveErrors,
		"retryable", errors.IsRetryable(err),
		"retry_in", p.retryBackoff,
		"error", err,
	)

	if p.maxConsecutiveErrors > 0 && p.consecutiveErrors >= p.maxConsecutiveErrors {
		return fmt.Errorf("flush failed %d consecutive times: %w", p.consecutiveErrors, err)
	}
	return nil
}
