// Package consumer defines interfaces for sample ingestion.
//
// This package provides abstractions for reading samples from an external
// source and routing rejected samples to a dead letter queue.
package consumer

import (
	"context"

	"github.com/jittakal/telemetrystore/pkg/telemetry"
)

// SampleSource reads samples from an ingestion source.
type SampleSource interface {
	// Consume starts consuming and delivers decoded samples.
	// Both channels are closed when ctx is done or the source is closed.
	Consume(ctx context.Context) (<-chan *telemetry.ConsumedSample, <-chan error, error)

	// Close closes the source and releases resources.
	Close() error
}

// DLQPublisher publishes rejected samples to a dead letter queue.
type DLQPublisher interface {
	// Publish sends a sample to the DLQ with the rejection reason.
	Publish(ctx context.Context, sample *telemetry.ConsumedSample, reason string) error

	// Close closes the publisher and releases resources.
	Close() error
}
