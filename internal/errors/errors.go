// Package errors defines application-specific error types and sentinel errors.
package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for common conditions.
var (
	ErrConfiguration     = errors.New("invalid configuration")
	ErrUnknownChannel    = errors.New("unknown channel")
	ErrDimensionMismatch = errors.New("sample dimension mismatch")
	ErrWriteFailure      = errors.New("write failure")
	ErrBufferFull        = errors.New("buffer is full")
	ErrManagerClosed     = errors.New("buffer manager is closed")
	ErrWriterClosed      = errors.New("storage writer is closed")
	ErrConsumerClosed    = errors.New("consumer is closed")
	ErrInvalidSample     = errors.New("invalid sample")
	ErrConnectionLost    = errors.New("connection lost")
)

// ConfigurationError reports an invalid manager or channel configuration.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: field=%s: %s", e.Field, e.Reason)
}

func (e *ConfigurationError) Is(target error) bool {
	return target == ErrConfiguration
}

// DimensionError reports a sample whose length does not match the
// declared shape of its channel.
type DimensionError struct {
	Channel string
	Rows    int
	Cols    int
	Got     int
}

func (e *DimensionError) Error() string {
	return fmt.Sprintf("dimension mismatch: channel=%s expected %dx%d (%d values), got %d",
		e.Channel, e.Rows, e.Cols, e.Rows*e.Cols, e.Got)
}

func (e *DimensionError) Is(target error) bool {
	return target == ErrDimensionMismatch
}

// WriteError represents a structured file write failure.
type WriteError struct {
	Operation string
	Path      string
	Err       error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write error: operation=%s path=%s: %v",
		e.Operation, e.Path, e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

func (e *WriteError) Is(target error) bool {
	return target == ErrWriteFailure
}

// ValidationError represents an ingested sample that failed validation.
type ValidationError struct {
	EventID string
	Field   string
	Reason  string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: event_id=%s field=%s: %s",
		e.EventID, e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidSample
}

// ProcessingError represents an error while handling a consumed sample.
type ProcessingError struct {
	Topic     string
	Partition int32
	Offset    int64
	EventID   string
	Err       error
}

func (e *ProcessingError) Error() string {
	return fmt.Sprintf("processing error: topic=%s partition=%d offset=%d event_id=%s: %v",
		e.Topic, e.Partition, e.Offset, e.EventID, e.Err)
}

func (e *ProcessingError) Unwrap() error {
	return e.Err
}

// Retryable defines an interface for errors that can indicate if they are retryable.
type Retryable interface {
	error
	IsRetryable() bool
}

// IsRetryable checks if an error is retryable.
// It first checks if the error implements the Retryable interface,
// then falls back to checking sentinel errors.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var retryable Retryable
	if errors.As(err, &retryable) {
		return retryable.IsRetryable()
	}

	if errors.Is(err, ErrConnectionLost) {
		return true
	}

	return false
}

// IsRetryable determines if a WriteError is retryable based on the operation type.
func (e *WriteError) IsRetryable() bool {
	return e.Operation == "write" || e.Operation == "upload" || e.Operation == "create"
}

// IsRetryable determines if a ProcessingError is retryable.
func (e *ProcessingError) IsRetryable() bool {
	return IsRetryable(e.Err)
}

// IsRejection reports whether err means a sample was refused by the buffer
// manager rather than a transient failure.
func IsRejection(err error) bool {
	return errors.Is(err, ErrUnknownChannel) ||
		errors.Is(err, ErrDimensionMismatch) ||
		errors.Is(err, ErrBufferFull) ||
		errors.Is(err, ErrInvalidSample)
}
