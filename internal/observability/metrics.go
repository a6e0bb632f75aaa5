package observability

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics.
type Metrics struct {
	// Buffer metrics
	SamplesPushed     *prometheus.CounterVec
	BufferRecordCount *prometheus.GaugeVec
	BufferEvictions   *prometheus.CounterVec

	// Flush metrics
	Flushes         *prometheus.CounterVec
	FlushDuration   prometheus.Histogram
	ChannelsFlushed prometheus.Histogram

	// Storage metrics
	FilesWritten         *prometheus.CounterVec
	StorageWriteDuration *prometheus.HistogramVec
	FileSize             *prometheus.HistogramVec
	StorageErrors        *prometheus.CounterVec

	// Ingestion metrics
	MessagesConsumed   *prometheus.CounterVec
	InvalidMessages    *prometheus.CounterVec
	Rebalances         *prometheus.CounterVec
	RebalanceDuration  *prometheus.HistogramVec
	PartitionsAssigned *prometheus.GaugeVec
	DLQPublished       *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics(registry *prometheus.Registry) *Metrics {
	factory := promauto.With(registry)

	return &Metrics{
		SamplesPushed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "telemetry_samples_pushed_total",
				Help: "Total number of samples pushed, by outcome",
			},
			[]string{"channel", "status"},
		),
		BufferRecordCount: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "telemetry_buffer_record_count",
				Help: "Current number of records in a channel buffer",
			},
			[]string{"channel"},
		),
		BufferEvictions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "telemetry_buffer_evictions_total",
				Help: "Total number of records evicted by the drop_oldest overflow policy",
			},
			[]string{"channel"},
		),

		Flushes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "telemetry_flushes_total",
				Help: "Total number of flushes, by outcome",
			},
			[]string{"status"},
		),
		FlushDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "telemetry_flush_duration_seconds",
				Help:    "Duration of flushes including the file write",
				Buckets: prometheus.DefBuckets,
			},
		),
		ChannelsFlushed: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "telemetry_channels_flushed",
				Help:    "Number of full channels written per flush",
				Buckets: prometheus.LinearBuckets(1, 4, 8),
			},
		),

		FilesWritten: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "files_written_total",
				Help: "Total number of files written to storage",
			},
			[]string{"backend", "format", "status"},
		),
		StorageWriteDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "storage_write_duration_seconds",
				Help:    "Duration of complete storage write operations including encoding",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"backend"},
		),
		FileSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "file_size_bytes",
				Help:    "Size of files written to storage",
				Buckets: prometheus.ExponentialBuckets(1024, 4, 10), // 1KB to 256MB
			},
			[]string{"backend", "format"},
		),
		StorageErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "storage_errors_total",
				Help: "Total number of storage errors",
			},
			[]string{"backend", "error_type"},
		),

		MessagesConsumed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kafka_messages_consumed_total",
				Help: "Total number of messages consumed from Kafka",
			},
			[]string{"topic", "partition"},
		),
		InvalidMessages: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kafka_invalid_messages_total",
				Help: "Total number of messages that could not be decoded into a sample",
			},
			[]string{"topic"},
		),
		Rebalances: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kafka_rebalance_total",
				Help: "Total number of consumer group rebalances",
			},
			[]string{"group"},
		),
		RebalanceDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "kafka_rebalance_duration_seconds",
				Help:    "Duration of consumer group rebalances",
				Buckets: []float64{0.1, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0, 60.0},
			},
			[]string{"group"},
		),
		PartitionsAssigned: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "kafka_partitions_assigned",
				Help: "Number of partitions currently assigned to this consumer",
			},
			[]string{"topic"},
		),
		DLQPublished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dlq_published_total",
				Help: "Total number of samples published to the dead letter queue",
			},
			[]string{"topic", "status"},
		),
	}
}

// IncSamplesPushed increments the samples pushed counter.
func (m *Metrics) IncSamplesPushed(channel string, status string) {
	m.SamplesPushed.WithLabelValues(channel, status).Inc()
}

// SetBufferRecordCount sets the record count of a channel buffer.
func (m *Metrics) SetBufferRecordCount(channel string, count int) {
	m.BufferRecordCount.WithLabelValues(channel).Set(float64(count))
}

// IncEvictions increments the evictions counter.
func (m *Metrics) IncEvictions(channel string) {
	m.BufferEvictions.WithLabelValues(channel).Inc()
}

// IncFlushes increments the flushes counter.
func (m *Metrics) IncFlushes(status string) {
	m.Flushes.WithLabelValues(status).Inc()
}

// ObserveFlushDuration observes flush duration.
func (m *Metrics) ObserveFlushDuration(duration float64) {
	m.FlushDuration.Observe(duration)
}

// ObserveChannelsFlushed observes the number of channels written by a flush.
func (m *Metrics) ObserveChannelsFlushed(count int) {
	m.ChannelsFlushed.Observe(float64(count))
}

// IncFilesWritten increments files written counter.
func (m *Metrics) IncFilesWritten(backend string, format string, status string) {
	m.FilesWritten.WithLabelValues(backend, format, status).Inc()
}

// ObserveFileSize observes file size.
func (m *Metrics) ObserveFileSize(backend string, format string, size float64) {
	m.FileSize.WithLabelValues(backend, format).Observe(size)
}

// ObserveStorageWriteDuration observes storage write duration.
func (m *Metrics) ObserveStorageWriteDuration(backend string, duration float64) {
	m.StorageWriteDuration.WithLabelValues(backend).Observe(duration)
}

// IncStorageErrors increments storage errors counter.
func (m *Metrics) IncStorageErrors(backend string, operation string) {
	m.StorageErrors.WithLabelValues(backend, operation).Inc()
}

// IncMessagesConsumed increments messages consumed counter.
func (m *Metrics) IncMessagesConsumed(topic string, partition int32) {
	m.MessagesConsumed.WithLabelValues(topic, fmt.Sprintf("%d", partition)).Inc()
}

// IncInvalidMessages increments the invalid messages counter.
func (m *Metrics) IncInvalidMessages(topic string) {
	m.InvalidMessages.WithLabelValues(topic).Inc()
}

// IncRebalances increments rebalances counter.
func (m *Metrics) IncRebalances(groupID string) {
	m.Rebalances.WithLabelValues(groupID).Inc()
}

// ObserveRebalanceDuration observes rebalance duration.
func (m *Metrics) ObserveRebalanceDuration(groupID string, duration float64) {
	m.RebalanceDuration.WithLabelValues(groupID).Observe(duration)
}

// SetPartitionsAssigned sets partitions assigned gauge.
func (m *Metrics) SetPartitionsAssigned(topic string, count float64) {
	m.PartitionsAssigned.WithLabelValues(topic).Set(count)
}

// IncDLQPublished increments the DLQ publish counter.
func (m *Metrics) IncDLQPublished(topic string, status string) {
	m.DLQPublished.WithLabelValues(topic, status).Inc()
}
