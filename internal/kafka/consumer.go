// Package kafka implements Kafka sample ingestion and dead letter publishing.
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

	"github.com/jittakal/telemetrystore/internal/errors"
	"github.com/jittakal/telemetrystore/internal/validator"
	"github.com/jittakal/telemetrystore/pkg/consumer"
	"github.com/jittakal/telemetrystore/pkg/telemetry"
)

// Ensure implementation satisfies interfaces at compile time.
var _ consumer.SampleSource = (*SampleConsumer)(nil)

// ConsumerConfig contains Kafka consumer configuration.
type ConsumerConfig struct {
	BootstrapServers    []string
	GroupID             string
	Topics              []string
	Security            SecurityConfig
	AutoOffsetReset     string
	MaxPollIntervalMS   int
	SessionTimeoutMS    int
	HeartbeatIntervalMS int
}

// Validate checks the consumer configuration.
func (c ConsumerConfig) Validate() error {
	if len(c.BootstrapServers) == 0 {
		return &errors.ConfigurationError{Field: "kafka.bootstrap_servers", Reason: "required field is missing"}
	}
	if c.GroupID == "" {
		return &errors.ConfigurationError{Field: "kafka.consumer.group_id", Reason: "required field is missing"}
	}
	if len(c.Topics) == 0 {
		return &errors.ConfigurationError{Field: "kafka.consumer.topics", Reason: "required field is missing"}
	}
	return nil
}

// MetricsCollector defines metrics operations for the Kafka consumer.
type MetricsCollector interface {
	IncMessagesConsumed(topic string, partition int32)
	IncInvalidMessages(topic string)
	IncRebalances(groupID string)
	ObserveRebalanceDuration(groupID string, duration float64)
	SetPartitionsAssigned(topic string, count float64)
}

// SampleConsumer reads CloudEvents-encoded samples from Kafka topics using a
// sarama consumer group. Messages that do not decode into a valid sample are
// published to the DLQ, when one is configured, and skipped.
type SampleConsumer struct {
	consumerGroup sarama.ConsumerGroup
	config        ConsumerConfig
	validator     *validator.SampleEventValidator
	dlq           consumer.DLQPublisher
	logger        *slog.Logger
	metrics       MetricsCollector
	ready         chan struct{}
	mu            sync.RWMutex
	closed        bool
}

// NewSampleConsumer creates a new Kafka sample consumer. dlq may be nil.
func NewSampleConsumer(
	config ConsumerConfig,
	sampleValidator *validator.SampleEventValidator,
	dlq consumer.DLQPublisher,
	logger *slog.Logger,
	metrics MetricsCollector,
) (*SampleConsumer, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	saramaConfig, err := newConsumerSaramaConfig(config)
	if err != nil {
		return nil, err
	}

	consumerGroup, err := sarama.NewConsumerGroup(
		config.BootstrapServers,
		config.GroupID,
		saramaConfig,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer group: %w", err)
	}

	logger.Info("kafka consumer created",
		"group_id", config.GroupID,
		"topics", config.Topics,
		"bootstrap_servers", config.BootstrapServers,
		"session_timeout_ms", config.SessionTimeoutMS,
	)

	return newSampleConsumer(consumerGroup, config, sampleValidator, dlq, logger, metrics), nil
}

func newSampleConsumer(
	group sarama.ConsumerGroup,
	config ConsumerConfig,
	sampleValidator *validator.SampleEventValidator,
	dlq consumer.DLQPublisher,
	logger *slog.Logger,
	metrics MetricsCollector,
) *SampleConsumer {
	return &SampleConsumer{
		consumerGroup: group,
		config:        config,
		validator:     sampleValidator,
		dlq:           dlq,
		logger:        logger,
		metrics:       metrics,
		ready:         make(chan struct{}),
	}
}

func newConsumerSaramaConfig(config ConsumerConfig) (*sarama.Config, error) {
	saramaConfig := sarama.NewConfig()

	saramaConfig.Version = sarama.V2_8_0_0
	saramaConfig.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	saramaConfig.Consumer.Offsets.Initial = offsetInitial(config.AutoOffsetReset)
	saramaConfig.Consumer.Offsets.AutoCommit.Enable = true
	saramaConfig.Consumer.Return.Errors = true

	if config.SessionTimeoutMS > 0 {
		saramaConfig.Consumer.Group.Session.Timeout = time.Duration(config.SessionTimeoutMS) * time.Millisecond
	}
	if config.HeartbeatIntervalMS > 0 {
		saramaConfig.Consumer.Group.Heartbeat.Interval = time.Duration(config.HeartbeatIntervalMS) * time.Millisecond
	}

	// A slow flush must not trigger a rebalance
	if config.MaxPollIntervalMS > 0 {
		saramaConfig.Consumer.MaxProcessingTime = time.Duration(config.MaxPollIntervalMS) * time.Millisecond
	} else {
		saramaConfig.Consumer.MaxProcessingTime = 5 * time.Minute
	}

	if err := configureSecurity(saramaConfig, config.Security); err != nil {
		return nil, fmt.Errorf("failed to configure security: %w", err)
	}

	return saramaConfig, nil
}

// Consume starts consuming and returns channels for samples and errors.
// It returns once the first group session has been set up.
func (c *SampleConsumer) Consume(ctx context.Context) (<-chan *telemetry.ConsumedSample, <-chan error, error) {
	c.mu.RLock()
	if c.closed {
		c.mu.RUnlock()
		return nil, nil, errors.ErrConsumerClosed
	}
	c.mu.RUnlock()

	sampleChan := make(chan *telemetry.ConsumedSample, 100)
	errorChan := make(chan error, 10)

	handler := &consumerGroupHandler{
		consumer:   c,
		sampleChan: sampleChan,
		errorChan:  errorChan,
		ready:      c.ready,
	}

	// Consume returns on every rebalance, so it runs in a loop
	go func() {
		defer close(sampleChan)
		defer close(errorChan)

		for {
			if err := c.consumerGroup.Consume(ctx, c.config.Topics, handler); err != nil {
				c.logger.Error("consumer group error", "error", err)
				errorChan <- fmt.Errorf("%w: %w", errors.ErrConnectionLost, err)
				return
			}

			if ctx.Err() != nil {
				c.logger.Info("consumer context cancelled")
				return
			}
		}
	}()

	select {
	case <-c.ready:
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	}

	c.logger.Info("kafka consumer started and ready")
	return sampleChan, errorChan, nil
}

// Close closes the consumer and releases resources.
func (c *SampleConsumer) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}

	c.closed = true
	c.logger.Info("closing kafka consumer")

	if err := c.consumerGroup.Close(); err != nil {
		c.logger.Error("error closing consumer group", "error", err)
		return err
	}

	c.logger.Info("kafka consumer closed")
	return nil
}

// decode turns a Kafka message into a sample. Failures are returned as
// *errors.ProcessingError wrapping an *errors.ValidationError.
func (c *SampleConsumer) decode(message *sarama.ConsumerMessage) (*telemetry.ConsumedSample, error) {
	meta := telemetry.KafkaMetadata{
		Topic:     message.Topic,
		Partition: message.Partition,
		Offset:    message.Offset,
		Key:       message.Key,
		Timestamp: message.Timestamp,
	}

	procErr := func(eventID string, err error) error {
		return &errors.ProcessingError{
			Topic:     message.Topic,
			Partition: message.Partition,
			Offset:    message.Offset,
			EventID:   eventID,
			Err:       err,
		}
	}

	var evt cloudevents.Event
	if err := json.Unmarshal(message.Value, &evt); err != nil {
		return &telemetry.ConsumedSample{Kafka: meta, Raw: message.Value},
			procErr("", &errors.ValidationError{Field: "envelope", Reason: err.Error()})
	}

	sample := &telemetry.ConsumedSample{
		EventID: evt.ID(),
		Source:  evt.Source(),
		Kafka:   meta,
		Raw:     message.Value,
	}

	payload, err := c.validator.Validate(&evt)
	if err != nil {
		return sample, procErr(evt.ID(), err)
	}
	sample.Payload = *payload

	return sample, nil
}

// reject routes an undecodable message to the DLQ.
func (c *SampleConsumer) reject(ctx context.Context, sample *telemetry.ConsumedSample, err error) {
	if c.metrics != nil {
		c.metrics.IncInvalidMessages(sample.Kafka.Topic)
	}

	c.logger.Warn("invalid sample message",
		"topic", sample.Kafka.Topic,
		"partition", sample.Kafka.Partition,
		"offset", sample.Kafka.Offset,
		"event_id", sample.EventID,
		"error", err,
	)

	if c.dlq == nil {
		return
	}
	if pubErr := c.dlq.Publish(ctx, sample, err.Error()); pubErr != nil {
		c.logger.Error("failed to publish invalid message to DLQ",
			"topic", sample.Kafka.Topic,
			"offset", sample.Kafka.Offset,
			"error", pubErr,
		)
	}
}

// consumerGroupHandler implements sarama.ConsumerGroupHandler.
type consumerGroupHandler struct {
	consumer       *SampleConsumer
	sampleChan     chan<- *telemetry.ConsumedSample
	errorChan      chan<- error
	ready          chan struct{}
	readyOnce      sync.Once
	rebalanceStart time.Time
}

// Setup is run at the beginning of a new session, before ConsumeClaim.
func (h *consumerGroupHandler) Setup(session sarama.ConsumerGroupSession) error {
	h.rebalanceStart = time.Now()

	h.consumer.logger.Info("consumer group session setup",
		"member_id", session.MemberID(),
		"generation_id", session.GenerationID(),
		"claims", session.Claims(),
	)

	if h.consumer.metrics != nil {
		h.consumer.metrics.IncRebalances(h.consumer.config.GroupID)
		for topic, partitions := range session.Claims() {
			h.consumer.metrics.SetPartitionsAssigned(topic, float64(len(partitions)))
		}
	}

	h.readyOnce.Do(func() {
		close(h.ready)
	})
	return nil
}

// Cleanup is run at the end of a session, once all ConsumeClaim goroutines have exited.
func (h *consumerGroupHandler) Cleanup(session sarama.ConsumerGroupSession) error {
	if h.consumer.metrics != nil && !h.rebalanceStart.IsZero() {
		h.consumer.metrics.ObserveRebalanceDuration(
			h.consumer.config.GroupID,
			time.Since(h.rebalanceStart).Seconds(),
		)
	}

	h.consumer.logger.Info("consumer group session cleanup",
		"member_id", session.MemberID(),
	)
	return nil
}

// ConsumeClaim processes messages from a partition.
func (h *consumerGroupHandler) ConsumeClaim(
	session sarama.ConsumerGroupSession,
	claim sarama.ConsumerGroupClaim,
) error {
	h.consumer.logger.Info("started consuming partition",
		"topic", claim.Topic(),
		"partition", claim.Partition(),
		"initial_offset", claim.InitialOffset(),
	)

	for {
		select {
		case message, ok := <-claim.Messages():
			if !ok || message == nil {
				return nil
			}
			if !h.handle(session, message) {
				return nil
			}

		case <-session.Context().Done():
			h.consumer.logger.Info("session context done, stopping partition consumption",
				"topic", claim.Topic(),
				"partition", claim.Partition(),
			)
			return nil
		}
	}
}

// handle processes one message. It returns false when the session ended.
func (h *consumerGroupHandler) handle(session sarama.ConsumerGroupSession, message *sarama.ConsumerMessage) bool {
	if h.consumer.metrics != nil {
		h.consumer.metrics.IncMessagesConsumed(message.Topic, message.Partition)
	}

	sample, err := h.consumer.decode(message)
	if err != nil {
		h.consumer.reject(session.Context(), sample, err)
		session.MarkMessage(message, "")

		select {
		case h.errorChan <- err:
		default:
			// Reader is behind; the rejection is already logged.
		}
		return true
	}

	sample.CommitFunc = func() error {
		session.MarkMessage(message, "")
		return nil
	}

	select {
	case h.sampleChan <- sample:
		return true
	case <-session.Context().Done():
		return false
	}
}

// offsetInitial converts the AutoOffsetReset config to Sarama's offset constant.
func offsetInitial(autoOffsetReset string) int64 {
	switch autoOffsetReset {
	case "earliest":
		return sarama.OffsetOldest
	default:
		return sarama.OffsetNewest
	}
}
