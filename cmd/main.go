package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jittakal/telemetrystore/internal/buffer"
	"github.com/jittakal/telemetrystore/internal/config"
	"github.com/jittakal/telemetrystore/internal/config/dto"
	"github.com/jittakal/telemetrystore/internal/kafka"
	"github.com/jittakal/telemetrystore/internal/observability"
	"github.com/jittakal/telemetrystore/internal/server"
	"github.com/jittakal/telemetrystore/internal/storage"
	"github.com/jittakal/telemetrystore/internal/validator"
	"github.com/jittakal/telemetrystore/pkg/consumer"
	pkgstorage "github.com/jittakal/telemetrystore/pkg/storage"
	"github.com/jittakal/telemetrystore/pkg/telemetry"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("application error: %v", err)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to configuration file")
	flag.Parse()

	// Priority: CLI flag > CONFIG_PATH env var > default path
	var cfgPath string
	if *configPath != "" {
		cfgPath = *configPath
	} else if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
		cfgPath = envPath
	} else {
		cfgPath = "config/telemetryd.yaml"
	}

	cfg, err := config.NewLoader().Load(cfgPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := observability.NewLogger(observability.LoggingConfig{
		Level:     cfg.Observability.Logging.Level,
		Format:    cfg.Observability.Logging.Format,
		Output:    cfg.Observability.Logging.Output,
		AddSource: cfg.Observability.Logging.AddSource,
	})
	logger.Info("starting telemetry daemon",
		"name", cfg.Application.Name,
		"version", cfg.Application.Version,
		"environment", cfg.Application.Environment,
	)

	registry := prometheus.NewRegistry()
	collectors := newCollectors(cfg.Observability.Metrics.Enabled, registry)

	// Cleanups run in reverse registration order
	var cleanupFuncs []func() error
	addCleanup := func(name string, fn func() error) {
		cleanupFuncs = append(cleanupFuncs, func() error {
			if err := fn(); err != nil {
				logger.Error("cleanup failed", "component", name, "error", err)
				return err
			}
			return nil
		})
		logger.Debug("registered cleanup", "component", name)
	}
	defer func() {
		for i := len(cleanupFuncs) - 1; i >= 0; i-- {
			_ = cleanupFuncs[i]()
		}
	}()

	writer, err := newStorageWriter(cfg.Storage, logger, collectors.storage)
	if err != nil {
		return err
	}
	addCleanup("storage-writer", writer.Close)

	overflow, err := buffer.ParseOverflowPolicy(cfg.Recorder.OverflowPolicy)
	if err != nil {
		return err
	}

	manager, err := buffer.NewManager(buffer.Options{
		Filename:   cfg.Recorder.Filename,
		Channels:   cfg.Recorder.ChannelInfos(),
		WindowSize: cfg.Recorder.WindowSize,
		AutoSave:   cfg.Recorder.AutoSave,
		Overflow:   overflow,
		Clock:      newClock(cfg.Recorder.Clock),
		Writer:     writer,
		Logger:     logger,
		Metrics:    collectors.buffer,
	})
	if err != nil {
		return fmt.Errorf("failed to create buffer manager: %w", err)
	}

	policy, err := buffer.NewFlushPolicy(buffer.PolicyConfig{
		Strategy:        cfg.Flush.Strategy,
		IntervalSeconds: cfg.Flush.IntervalSeconds,
	})
	if err != nil {
		return err
	}

	healthChecker := server.NewManagerHealthChecker(manager)

	httpServer := server.NewServer(
		cfg.Observability.Health.Port,
		cfg.Observability.Metrics.Port,
		healthChecker,
		registry,
		logger,
	)
	if err := httpServer.Start(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	addCleanup("http-server", func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(ctx)
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p := newPipeline(manager, policy, healthChecker, logger, cfg.Flush)

	var (
		samples <-chan *telemetry.ConsumedSample
		errs    <-chan error
		source  consumer.SampleSource
	)
	if cfg.Kafka.Enabled {
		dlq, err := newDLQPublisher(cfg, logger, collectors.dlq)
		if err != nil {
			return err
		}
		addCleanup("dlq-publisher", dlq.Close)
		p.dlq = dlq

		sampleConsumer, err := kafka.NewSampleConsumer(
			consumerConfig(cfg.Kafka),
			validator.NewSampleEventValidator(cfg.Kafka.Consumer.AllowNonFinite),
			dlq,
			logger,
			collectors.kafka,
		)
		if err != nil {
			return fmt.Errorf("failed to create consumer: %w", err)
		}
		source = sampleConsumer

		samples, errs, err = source.Consume(ctx)
		if err != nil {
			_ = source.Close()
			return fmt.Errorf("failed to start consuming: %w", err)
		}
	} else {
		logger.Info("kafka ingestion disabled, running flush loop only")
	}

	logger.Info("application started successfully")

	runErrChan := make(chan error, 1)
	go func() {
		runErrChan <- p.run(ctx, samples, errs, checkInterval(cfg.Flush))
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case sig := <-sigChan:
		logger.Info("received termination signal", "signal", sig.String())
		cancel()
		runErr = <-runErrChan
	case runErr = <-runErrChan:
		cancel()
	}
	if runErr != nil {
		logger.Error("pipeline stopped", "error", runErr)
	}

	logger.Info("initiating graceful shutdown")

	// The consumer stops first so no sample is pushed after the final flush
	if source != nil {
		if err := source.Close(); err != nil {
			logger.Error("failed to close consumer", "error", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(
		context.Background(),
		time.Duration(cfg.Shutdown.GracePeriodSeconds)*time.Second,
	)
	defer shutdownCancel()

	if err := manager.Close(shutdownCtx); err != nil {
		logger.Error("final flush failed", "error", err)
		if runErr == nil {
			runErr = err
		}
	}

	logger.Info("application stopped")
	return runErr
}

// metricsCollectors holds the metrics sinks handed to components; all nil when
// metrics are disabled.
type metricsCollectors struct {
	buffer  buffer.MetricsCollector
	storage storage.MetricsCollector
	kafka   kafka.MetricsCollector
	dlq     kafka.DLQMetricsCollector
}

func newCollectors(enabled bool, registry *prometheus.Registry) metricsCollectors {
	if !enabled {
		return metricsCollectors{}
	}
	m := observability.NewMetrics(registry)
	return metricsCollectors{buffer: m, storage: m, kafka: m, dlq: m}
}

// storageWriter is a structured file writer that owns backend resources.
type storageWriter interface {
	pkgstorage.Writer
	Close() error
}

func newStorageWriter(cfg dto.StorageConfig, logger *slog.Logger, metrics storage.MetricsCollector) (storageWriter, error) {
	format := telemetry.FileFormat(cfg.Format)

	switch cfg.Backend {
	case "file":
		w, err := storage.NewFileWriter(storage.FileConfig{
			BasePath: cfg.File.BasePath,
			Flat:     cfg.File.Flat,
		}, format, cfg.Compression, logger, metrics)
		if err != nil {
			return nil, fmt.Errorf("failed to create filesystem writer: %w", err)
		}
		return w, nil

	case "s3":
		w, err := storage.NewS3Writer(storage.S3Config{
			Bucket:       cfg.S3.Bucket,
			Region:       cfg.S3.Region,
			Endpoint:     cfg.S3.Endpoint,
			Prefix:       cfg.S3.Prefix,
			UsePathStyle: cfg.S3.UsePathStyle,
			SSEEnabled:   cfg.S3.SSEEnabled,
			SSEKMSKeyID:  cfg.S3.SSEKMSKeyID,
		}, format, cfg.Compression, logger, metrics)
		if err != nil {
			return nil, fmt.Errorf("failed to create S3 writer: %w", err)
		}
		return w, nil

	case "azure":
		w, err := storage.NewAzureWriter(storage.AzureConfig{
			AccountName:   cfg.Azure.AccountName,
			AccountKey:    cfg.Azure.AccountKey,
			ContainerName: cfg.Azure.Container,
			Endpoint:      cfg.Azure.Endpoint,
			Prefix:        cfg.Azure.Prefix,
		}, format, cfg.Compression, logger, metrics)
		if err != nil {
			return nil, fmt.Errorf("failed to create Azure Blob writer: %w", err)
		}
		return w, nil

	case "gcs":
		w, err := storage.NewGCSWriter(storage.GCSConfig{
			Bucket:               cfg.GCS.Bucket,
			ProjectID:            cfg.GCS.ProjectID,
			Prefix:               cfg.GCS.Prefix,
			Endpoint:             cfg.GCS.Endpoint,
			CredentialsFile:      cfg.GCS.CredentialsFile,
			CredentialsJSON:      cfg.GCS.CredentialsJSON,
			UseDefaultCredential: cfg.GCS.UseDefaultCredential,
		}, format, cfg.Compression, logger, metrics)
		if err != nil {
			return nil, fmt.Errorf("failed to create GCS writer: %w", err)
		}
		return w, nil

	default:
		return nil, fmt.Errorf("unsupported storage backend: %s (supported: file, s3, azure, gcs)", cfg.Backend)
	}
}

func newClock(name string) telemetry.Clock {
	if name == "monotonic" {
		return telemetry.NewMonotonicClock()
	}
	return telemetry.SystemClock{}
}

func securityConfig(cfg dto.KafkaConfig) kafka.SecurityConfig {
	return kafka.SecurityConfig{
		SecurityProtocol: cfg.SecurityProtocol,
		SASLMechanism:    cfg.SASLMechanism,
		SASLUsername:     cfg.SASLUsername,
		SASLPassword:     cfg.SASLPassword,
		AWSRegion:        cfg.AWSRegion,
	}
}

func consumerConfig(cfg dto.KafkaConfig) kafka.ConsumerConfig {
	return kafka.ConsumerConfig{
		BootstrapServers:    cfg.BootstrapServers,
		GroupID:             cfg.Consumer.GroupID,
		Topics:              cfg.Consumer.Topics,
		Security:            securityConfig(cfg),
		AutoOffsetReset:     cfg.Consumer.AutoOffsetReset,
		MaxPollIntervalMS:   cfg.Consumer.MaxPollIntervalMS,
		SessionTimeoutMS:    cfg.Consumer.SessionTimeoutMS,
		HeartbeatIntervalMS: cfg.Consumer.HeartbeatIntervalMS,
	}
}

func newDLQPublisher(cfg *dto.ApplicationConfig, logger *slog.Logger, metrics kafka.DLQMetricsCollector) (*kafka.DLQPublisher, error) {
	dlq, err := kafka.NewDLQPublisher(
		cfg.Kafka.BootstrapServers,
		securityConfig(cfg.Kafka),
		kafka.DLQConfig{
			Enabled:     cfg.Kafka.DLQ.Enabled,
			TopicSuffix: cfg.Kafka.DLQ.TopicSuffix,
		},
		logger,
		metrics,
		cfg.Application.Name,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create DLQ publisher: %w", err)
	}
	return dlq, nil
}

func checkInterval(cfg dto.FlushConfig) time.Duration {
	if cfg.CheckIntervalMS <= 0 {
		return 500 * time.Millisecond
	}
	return time.Duration(cfg.CheckIntervalMS) * time.Millisecond
}
