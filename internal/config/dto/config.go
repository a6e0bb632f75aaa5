package dto

import (
	"fmt"

	"github.com/jittakal/telemetrystore/internal/errors"
	"github.com/jittakal/telemetrystore/pkg/telemetry"
)

// ApplicationConfig is the root configuration structure
type ApplicationConfig struct {
	Application   ApplicationInfo     `mapstructure:"application"`
	Recorder      RecorderConfig      `mapstructure:"recorder"`
	Flush         FlushConfig         `mapstructure:"flush"`
	Storage       StorageConfig       `mapstructure:"storage"`
	Kafka         KafkaConfig         `mapstructure:"kafka"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	Shutdown      ShutdownConfig      `mapstructure:"shutdown"`
}

// ApplicationInfo contains application metadata
type ApplicationInfo struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

// RecorderConfig describes the buffer manager: output file, window and
// declared channels.
type RecorderConfig struct {
	Filename       string          `mapstructure:"filename"`
	WindowSize     int             `mapstructure:"window_size"`
	AutoSave       bool            `mapstructure:"auto_save"`
	OverflowPolicy string          `mapstructure:"overflow_policy"`
	Clock          string          `mapstructure:"clock"`
	Channels       []ChannelConfig `mapstructure:"channels"`
}

// ChannelConfig declares one channel and its sample shape
type ChannelConfig struct {
	Name string `mapstructure:"name"`
	Rows int    `mapstructure:"rows"`
	Cols int    `mapstructure:"cols"`
}

// ChannelInfos converts the declared channels, in order.
func (c RecorderConfig) ChannelInfos() []telemetry.ChannelInfo {
	infos := make([]telemetry.ChannelInfo, len(c.Channels))
	for i, ch := range c.Channels {
		infos[i] = telemetry.NewChannelInfo(ch.Name, ch.Rows, ch.Cols)
	}
	return infos
}

// Validate validates the recorder configuration.
func (c *RecorderConfig) Validate() error {
	if c.Filename == "" {
		return &errors.ConfigurationError{Field: "recorder.filename", Reason: "required field is missing"}
	}
	if c.WindowSize <= 0 {
		return &errors.ConfigurationError{
			Field:  "recorder.window_size",
			Reason: fmt.Sprintf("must be positive, got %d", c.WindowSize),
		}
	}
	switch c.Clock {
	case "", "system", "monotonic":
	default:
		return &errors.ConfigurationError{
			Field:  "recorder.clock",
			Reason: fmt.Sprintf("unsupported clock %q (supported: system, monotonic)", c.Clock),
		}
	}
	return nil
}

// FlushConfig controls when the daemon flushes
type FlushConfig struct {
	Strategy             string `mapstructure:"strategy"`
	IntervalSeconds      int    `mapstructure:"interval_seconds"`
	CheckIntervalMS      int    `mapstructure:"check_interval_ms"`
	RetryBackoffMS       int    `mapstructure:"retry_backoff_ms"`
	MaxConsecutiveErrors int    `mapstructure:"max_consecutive_errors"`
}

// StorageConfig contains storage backend configuration
type StorageConfig struct {
	Backend     string      `mapstructure:"backend"`
	Format      string      `mapstructure:"format"`
	Compression string      `mapstructure:"compression"`
	S3          S3Config    `mapstructure:"s3"`
	Azure       AzureConfig `mapstructure:"azure"`
	GCS         GCSConfig   `mapstructure:"gcs"`
	File        FileConfig  `mapstructure:"file"`
}

// S3Config contains AWS S3 configuration
type S3Config struct {
	Bucket       string `mapstructure:"bucket"`
	Region       string `mapstructure:"region"`
	Prefix       string `mapstructure:"prefix"`
	Endpoint     string `mapstructure:"endpoint"`
	UsePathStyle bool   `mapstructure:"use_path_style"`
	SSEEnabled   bool   `mapstructure:"sse_enabled"`
	SSEKMSKeyID  string `mapstructure:"sse_kms_key_id"`
}

// AzureConfig contains Azure Blob Storage configuration
type AzureConfig struct {
	AccountName string `mapstructure:"account_name"`
	AccountKey  string `mapstructure:"account_key"`
	Container   string `mapstructure:"container"`
	Endpoint    string `mapstructure:"endpoint"`
	Prefix      string `mapstructure:"prefix"`
}

// GCSConfig contains Google Cloud Storage configuration
type GCSConfig struct {
	Bucket               string `mapstructure:"bucket"`
	ProjectID            string `mapstructure:"project_id"`
	Prefix               string `mapstructure:"prefix"`
	Endpoint             string `mapstructure:"endpoint"`
	CredentialsFile      string `mapstructure:"credentials_file"`
	CredentialsJSON      string `mapstructure:"credentials_json"`
	UseDefaultCredential bool   `mapstructure:"use_default_credential"`
}

// FileConfig contains local filesystem configuration
type FileConfig struct {
	BasePath string `mapstructure:"base_path"`
	Flat     bool   `mapstructure:"flat"`
}

// KafkaConfig contains Kafka ingestion configuration
type KafkaConfig struct {
	Enabled          bool           `mapstructure:"enabled"`
	BootstrapServers []string       `mapstructure:"bootstrap_servers"`
	SecurityProtocol string         `mapstructure:"security_protocol"`
	SASLMechanism    string         `mapstructure:"sasl_mechanism"`
	SASLUsername     string         `mapstructure:"sasl_username"`
	SASLPassword     string         `mapstructure:"sasl_password"`
	AWSRegion        string         `mapstructure:"aws_region"`
	Consumer         ConsumerConfig `mapstructure:"consumer"`
	DLQ              DLQConfig      `mapstructure:"dlq"`
}

// Validate validates the Kafka configuration. A disabled source is valid.
func (c *KafkaConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if len(c.BootstrapServers) == 0 {
		return &errors.ConfigurationError{Field: "kafka.bootstrap_servers", Reason: "required when kafka is enabled"}
	}
	if len(c.Consumer.Topics) == 0 {
		return &errors.ConfigurationError{Field: "kafka.consumer.topics", Reason: "required when kafka is enabled"}
	}
	if c.Consumer.GroupID == "" {
		return &errors.ConfigurationError{Field: "kafka.consumer.group_id", Reason: "required when kafka is enabled"}
	}
	if c.SASLMechanism == "AWS_MSK_IAM" && c.AWSRegion == "" {
		return &errors.ConfigurationError{Field: "kafka.aws_region", Reason: "required for AWS_MSK_IAM"}
	}
	return nil
}

// ConsumerConfig contains Kafka consumer configuration
type ConsumerConfig struct {
	GroupID             string   `mapstructure:"group_id"`
	Topics              []string `mapstructure:"topics"`
	AutoOffsetReset     string   `mapstructure:"auto_offset_reset"`
	MaxPollIntervalMS   int      `mapstructure:"max_poll_interval_ms"`
	SessionTimeoutMS    int      `mapstructure:"session_timeout_ms"`
	HeartbeatIntervalMS int      `mapstructure:"heartbeat_interval_ms"`
	AllowNonFinite      bool     `mapstructure:"allow_non_finite"`
}

// DLQConfig contains dead letter queue configuration
type DLQConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	TopicSuffix string `mapstructure:"topic_suffix"`
}

// ObservabilityConfig contains observability settings
type ObservabilityConfig struct {
	Logging LoggingConfig `mapstructure:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Health  HealthConfig  `mapstructure:"health"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level     string `mapstructure:"level"`
	Format    string `mapstructure:"format"`
	Output    string `mapstructure:"output"`
	AddSource bool   `mapstructure:"add_source"`
}

// MetricsConfig contains metrics settings
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// HealthConfig contains health check settings
type HealthConfig struct {
	Port int `mapstructure:"port"`
}

// ShutdownConfig contains shutdown settings
type ShutdownConfig struct {
	GracePeriodSeconds int `mapstructure:"grace_period_seconds"`
}
