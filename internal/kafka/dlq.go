package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/IBM/sarama"
	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/google/uuid"

	"github.com/jittakal/telemetrystore/internal/errors"
	"github.com/jittakal/telemetrystore/pkg/consumer"
	"github.com/jittakal/telemetrystore/pkg/telemetry"
)

// Ensure implementation satisfies interface at compile time.
var _ consumer.DLQPublisher = (*DLQPublisher)(nil)

// RejectedSample is the data of a dead-lettered sample event.
type RejectedSample struct {
	// OriginalEvent is set when the rejected message was valid JSON.
	OriginalEvent json.RawMessage `json:"original_event,omitempty"`

	// OriginalValue is set otherwise.
	OriginalValue []byte `json:"original_value,omitempty"`

	Topic            string    `json:"topic"`
	Partition        int32     `json:"partition"`
	Offset           int64     `json:"offset"`
	EventID          string    `json:"event_id,omitempty"`
	Channel          string    `json:"channel,omitempty"`
	Reason           string    `json:"reason"`
	FailureTimestamp time.Time `json:"failure_timestamp"`
	ProcessorID      string    `json:"processor_id"`
}

// DLQConfig contains DLQ configuration.
type DLQConfig struct {
	Enabled     bool
	TopicSuffix string
}

// DLQMetricsCollector defines metrics operations for the DLQ publisher.
type DLQMetricsCollector interface {
	IncDLQPublished(topic string, status string)
}

// DLQPublisher publishes rejected samples to a dead letter topic named after
// the source topic plus a suffix.
type DLQPublisher struct {
	producer    sarama.SyncProducer
	config      DLQConfig
	logger      *slog.Logger
	metrics     DLQMetricsCollector
	processorID string
	mu          sync.RWMutex
	closed      bool
	now         func() time.Time
}

// NewDLQPublisher creates a new DLQ publisher. A disabled publisher accepts
// and discards every sample.
func NewDLQPublisher(
	bootstrapServers []string,
	security SecurityConfig,
	dlqConfig DLQConfig,
	logger *slog.Logger,
	metrics DLQMetricsCollector,
	processorID string,
) (*DLQPublisher, error) {
	if !dlqConfig.Enabled {
		logger.Info("DLQ is disabled")
		return newDLQPublisher(nil, dlqConfig, logger, metrics, processorID), nil
	}

	saramaConfig := sarama.NewConfig()
	saramaConfig.Version = sarama.V2_8_0_0
	saramaConfig.Producer.RequiredAcks = sarama.WaitForAll
	saramaConfig.Producer.Retry.Max = 5
	saramaConfig.Producer.Return.Successes = true
	saramaConfig.Producer.Return.Errors = true
	saramaConfig.Producer.Compression = sarama.CompressionSnappy
	saramaConfig.Producer.Idempotent = true
	saramaConfig.Net.MaxOpenRequests = 1

	if err := configureSecurity(saramaConfig, security); err != nil {
		return nil, fmt.Errorf("failed to configure security: %w", err)
	}

	producer, err := sarama.NewSyncProducer(bootstrapServers, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create sync producer: %w", err)
	}

	logger.Info("DLQ publisher created",
		"bootstrap_servers", bootstrapServers,
		"topic_suffix", dlqConfig.TopicSuffix,
	)

	return newDLQPublisher(producer, dlqConfig, logger, metrics, processorID), nil
}

func newDLQPublisher(
	producer sarama.SyncProducer,
	config DLQConfig,
	logger *slog.Logger,
	metrics DLQMetricsCollector,
	processorID string,
) *DLQPublisher {
	return &DLQPublisher{
		producer:    producer,
		config:      config,
		logger:      logger,
		metrics:     metrics,
		processorID: processorID,
		now:         time.Now,
	}
}

// Publish sends sample to the DLQ as a CloudEvent of type
// telemetry.sample.rejected.
func (p *DLQPublisher) Publish(ctx context.Context, sample *telemetry.ConsumedSample, reason string) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return errors.ErrConsumerClosed
	}

	if !p.config.Enabled || p.producer == nil {
		p.logger.Debug("DLQ disabled, skipping publish")
		return nil
	}

	if sample.Kafka.Topic == "" {
		return fmt.Errorf("cannot route sample to DLQ: source topic is empty")
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	dlqTopic := sample.Kafka.Topic + p.config.TopicSuffix

	msg, err := p.message(dlqTopic, sample, reason)
	if err != nil {
		return err
	}

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		p.record(dlqTopic, "error")
		p.logger.Error("failed to publish to DLQ",
			"error", err,
			"dlq_topic", dlqTopic,
			"event_id", sample.EventID,
		)
		return fmt.Errorf("failed to send message to DLQ: %w", err)
	}

	p.record(dlqTopic, "success")
	p.logger.Info("published sample to DLQ",
		"dlq_topic", dlqTopic,
		"partition", partition,
		"offset", offset,
		"event_id", sample.EventID,
		"reason", reason,
	)

	return nil
}

func (p *DLQPublisher) message(dlqTopic string, sample *telemetry.ConsumedSample, reason string) (*sarama.ProducerMessage, error) {
	now := p.now().UTC()

	rejected := RejectedSample{
		Topic:            sample.Kafka.Topic,
		Partition:        sample.Kafka.Partition,
		Offset:           sample.Kafka.Offset,
		EventID:          sample.EventID,
		Channel:          sample.Payload.Channel,
		Reason:           reason,
		FailureTimestamp: now,
		ProcessorID:      p.processorID,
	}
	if json.Valid(sample.Raw) {
		rejected.OriginalEvent = sample.Raw
	} else {
		rejected.OriginalValue = sample.Raw
	}

	evt := cloudevents.NewEvent()
	evt.SetID(uuid.NewString())
	evt.SetType(telemetry.EventTypeRejected)
	evt.SetSource(p.processorID)
	evt.SetTime(now)
	if sample.Payload.Channel != "" {
		evt.SetSubject(sample.Payload.Channel)
	}
	if err := evt.SetData(telemetry.ContentTypeJSON, rejected); err != nil {
		return nil, fmt.Errorf("failed to encode DLQ event data: %w", err)
	}

	value, err := json.Marshal(evt)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal DLQ event: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: dlqTopic,
		Value: sarama.ByteEncoder(value),
		Headers: []sarama.RecordHeader{
			{Key: []byte("failure_reason"), Value: []byte(reason)},
			{Key: []byte("original_topic"), Value: []byte(sample.Kafka.Topic)},
			{Key: []byte("processor_id"), Value: []byte(p.processorID)},
			{Key: []byte("content-type"), Value: []byte(cloudevents.ApplicationCloudEventsJSON)},
		},
		Timestamp: now,
	}
	if len(sample.Kafka.Key) > 0 {
		msg.Key = sarama.ByteEncoder(sample.Kafka.Key)
	} else if sample.EventID != "" {
		msg.Key = sarama.StringEncoder(sample.EventID)
	}

	return msg, nil
}

func (p *DLQPublisher) record(topic, status string) {
	if p.metrics != nil {
		p.metrics.IncDLQPublished(topic, status)
	}
}

// Close closes the DLQ publisher.
func (p *DLQPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true

	if p.producer == nil {
		return nil
	}

	p.logger.Info("closing DLQ publisher")
	if err := p.producer.Close(); err != nil {
		p.logger.Error("error closing DLQ producer", "error", err)
		return err
	}

	return nil
}
