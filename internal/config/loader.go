// Package config loads the telemetry daemon configuration.
package config

import (
	stderrors "errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"

	"github.com/jittakal/telemetrystore/internal/buffer"
	"github.com/jittakal/telemetrystore/internal/config/dto"
	"github.com/jittakal/telemetrystore/internal/encoder"
	"github.com/jittakal/telemetrystore/internal/errors"
	"github.com/jittakal/telemetrystore/internal/validator"
	"github.com/jittakal/telemetrystore/pkg/telemetry"
)

// EnvPrefix prefixes environment overrides, e.g. TELEMETRY_RECORDER_WINDOW_SIZE.
const EnvPrefix = "TELEMETRY"

// Loader handles configuration loading and validation
type Loader struct {
	v *viper.Viper
}

// NewLoader creates a new configuration loader
func NewLoader() *Loader {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return &Loader{v: v}
}

// Load loads configuration from file and environment variables
func (l *Loader) Load(path string) (*dto.ApplicationConfig, error) {
	l.setDefaults()

	if path != "" {
		l.v.SetConfigFile(path)
		if err := l.v.ReadInConfig(); err != nil {
			if !stderrors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	// Expand ${VAR} references in string values
	for _, key := range l.v.AllKeys() {
		value := l.v.GetString(key)
		if strings.Contains(value, "${") {
			l.v.Set(key, os.ExpandEnv(value))
		}
	}

	var config dto.ApplicationConfig
	if err := l.v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if config.Storage.Compression == "" {
		config.Storage.Compression = encoder.DefaultCompression(telemetry.FileFormat(config.Storage.Format))
	}

	if err := l.Validate(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func (l *Loader) setDefaults() {
	// Application defaults
	l.v.SetDefault("application.name", "telemetryd")
	l.v.SetDefault("application.version", "1.0.0")
	l.v.SetDefault("application.environment", "development")

	// Recorder defaults
	l.v.SetDefault("recorder.filename", "telemetry.mat")
	l.v.SetDefault("recorder.window_size", 1000)
	l.v.SetDefault("recorder.auto_save", true)
	l.v.SetDefault("recorder.overflow_policy", "reject")
	l.v.SetDefault("recorder.clock", "system")

	// Flush defaults
	l.v.SetDefault("flush.strategy", "any")
	l.v.SetDefault("flush.interval_seconds", 0)
	l.v.SetDefault("flush.check_interval_ms", 500)
	l.v.SetDefault("flush.retry_backoff_ms", 1000)
	l.v.SetDefault("flush.max_consecutive_errors", 5)

	// Storage defaults
	l.v.SetDefault("storage.backend", "file")
	l.v.SetDefault("storage.format", "parquet")
	l.v.SetDefault("storage.compression", "")
	l.v.SetDefault("storage.file.base_path", "./data")
	l.v.SetDefault("storage.file.flat", false)
	l.v.SetDefault("storage.s3.use_path_style", false)
	l.v.SetDefault("storage.s3.sse_enabled", true)
	l.v.SetDefault("storage.azure.account_key", "${AZURE_STORAGE_ACCOUNT_KEY}")
	l.v.SetDefault("storage.gcs.credentials_json", "${GCP_CREDENTIALS_JSON}")

	// Kafka defaults
	l.v.SetDefault("kafka.enabled", false)
	l.v.SetDefault("kafka.security_protocol", "PLAINTEXT")
	l.v.SetDefault("kafka.sasl_mechanism", "PLAIN")
	l.v.SetDefault("kafka.consumer.group_id", "telemetryd")
	l.v.SetDefault("kafka.consumer.auto_offset_reset", "latest")
	l.v.SetDefault("kafka.consumer.max_poll_interval_ms", 300000)
	l.v.SetDefault("kafka.consumer.session_timeout_ms", 10000)
	l.v.SetDefault("kafka.consumer.heartbeat_interval_ms", 3000)
	l.v.SetDefault("kafka.consumer.allow_non_finite", false)
	l.v.SetDefault("kafka.dlq.enabled", true)
	l.v.SetDefault("kafka.dlq.topic_suffix", "-dlq")

	// Observability defaults
	l.v.SetDefault("observability.logging.level", "info")
	l.v.SetDefault("observability.logging.format", "json")
	l.v.SetDefault("observability.logging.output", "stdout")
	l.v.SetDefault("observability.logging.add_source", false)
	l.v.SetDefault("observability.metrics.enabled", true)
	l.v.SetDefault("observability.metrics.port", 9090)
	l.v.SetDefault("observability.health.port", 8080)

	// Shutdown defaults
	l.v.SetDefault("shutdown.grace_period_seconds", 30)
}

// Validate validates the configuration
func (l *Loader) Validate(config *dto.ApplicationConfig) error {
	if err := config.Recorder.Validate(); err != nil {
		return err
	}
	if err := validator.ValidateChannels(config.Recorder.ChannelInfos()); err != nil {
		return err
	}
	if _, err := buffer.ParseOverflowPolicy(config.Recorder.OverflowPolicy); err != nil {
		return err
	}

	if _, err := buffer.NewFlushPolicy(buffer.PolicyConfig{
		Strategy:        config.Flush.Strategy,
		IntervalSeconds: config.Flush.IntervalSeconds,
	}); err != nil {
		return err
	}
	if config.Flush.CheckIntervalMS <= 0 {
		return &errors.ConfigurationError{
			Field:  "flush.check_interval_ms",
			Reason: fmt.Sprintf("must be positive, got %d", config.Flush.CheckIntervalMS),
		}
	}

	if err := validateStorage(&config.Storage); err != nil {
		return err
	}

	if err := config.Kafka.Validate(); err != nil {
		return err
	}

	if err := validatePort("observability.metrics.port", config.Observability.Metrics.Port); err != nil {
		return err
	}
	return validatePort("observability.health.port", config.Observability.Health.Port)
}

func validateStorage(cfg *dto.StorageConfig) error {
	switch cfg.Backend {
	case "s3":
		if cfg.S3.Bucket == "" {
			return &errors.ConfigurationError{Field: "storage.s3.bucket", Reason: "required for S3 backend"}
		}
		if cfg.S3.Region == "" {
			return &errors.ConfigurationError{Field: "storage.s3.region", Reason: "required for S3 backend"}
		}
	case "azure":
		if cfg.Azure.AccountName == "" {
			return &errors.ConfigurationError{Field: "storage.azure.account_name", Reason: "required for Azure backend"}
		}
		if cfg.Azure.Container == "" {
			return &errors.ConfigurationError{Field: "storage.azure.container", Reason: "required for Azure backend"}
		}
	case "gcs":
		if cfg.GCS.Bucket == "" {
			return &errors.ConfigurationError{Field: "storage.gcs.bucket", Reason: "required for GCS backend"}
		}
	case "file":
		if cfg.File.BasePath == "" {
			return &errors.ConfigurationError{Field: "storage.file.base_path", Reason: "required for file backend"}
		}
	default:
		return &errors.ConfigurationError{
			Field:  "storage.backend",
			Reason: fmt.Sprintf("unsupported storage backend %q (supported: file, s3, azure, gcs)", cfg.Backend),
		}
	}

	format := telemetry.FileFormat(cfg.Format)
	if format != telemetry.FormatParquet && format != telemetry.FormatAvro {
		return &errors.ConfigurationError{
			Field:  "storage.format",
			Reason: fmt.Sprintf("unsupported storage format %q", cfg.Format),
		}
	}
	if !encoder.IsSupportedCompression(format, cfg.Compression) {
		return &errors.ConfigurationError{
			Field:  "storage.compression",
			Reason: fmt.Sprintf("%q is not supported for %s (supported: %s)", cfg.Compression, format, strings.Join(encoder.SupportedCompressions(format), ", ")),
		}
	}

	return nil
}

func validatePort(field string, port int) error {
	if port < 1 || port > 65535 {
		return &errors.ConfigurationError{Field: field, Reason: fmt.Sprintf("invalid port %d", port)}
	}
	return nil
}
