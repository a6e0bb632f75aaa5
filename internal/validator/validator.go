// Package validator provides channel configuration and sample validation.
package validator

import (
	"fmt"
	"math"

	cloudevents "github.com/cloudevents/sdk-go/v2"

	"github.com/jittakal/telemetrystore/internal/errors"
	"github.com/jittakal/telemetrystore/pkg/telemetry"
)

// ValidateChannels checks a channel descriptor list: it must be non-empty,
// names must be present and unique, and every shape must be positive.
func ValidateChannels(channels []telemetry.ChannelInfo) error {
	if len(channels) == 0 {
		return &errors.ConfigurationError{Field: "channels", Reason: "at least one channel is required"}
	}

	seen := make(map[string]struct{}, len(channels))
	for i, ch := range channels {
		if ch.Name == "" {
			return &errors.ConfigurationError{
				Field:  fmt.Sprintf("channels[%d].name", i),
				Reason: "required field is missing",
			}
		}
		if _, dup := seen[ch.Name]; dup {
			return &errors.ConfigurationError{
				Field:  fmt.Sprintf("channels[%d].name", i),
				Reason: fmt.Sprintf("duplicate channel name %q", ch.Name),
			}
		}
		seen[ch.Name] = struct{}{}

		if ch.Dimensions.Rows <= 0 || ch.Dimensions.Cols <= 0 {
			return &errors.ConfigurationError{
				Field:  fmt.Sprintf("channels[%d].dimensions", i),
				Reason: fmt.Sprintf("channel %q: rows and cols must be positive, got %s", ch.Name, ch.Dimensions),
			}
		}
	}

	return nil
}

// ValidateSample checks that sample carries exactly rows*cols values.
func ValidateSample(info telemetry.ChannelInfo, sample []float64) error {
	if len(sample) != info.Dimensions.Elements() {
		return &errors.DimensionError{
			Channel: info.Name,
			Rows:    info.Dimensions.Rows,
			Cols:    info.Dimensions.Cols,
			Got:     len(sample),
		}
	}
	return nil
}

// SampleEventValidator validates CloudEvents carrying telemetry samples.
type SampleEventValidator struct {
	allowNonFinite bool
}

// NewSampleEventValidator creates a new sample event validator.
// NaN and infinite values are rejected unless allowNonFinite is set.
func NewSampleEventValidator(allowNonFinite bool) *SampleEventValidator {
	return &SampleEventValidator{allowNonFinite: allowNonFinite}
}

// Validate validates e and decodes its sample payload.
func (v *SampleEventValidator) Validate(e *cloudevents.Event) (*telemetry.SamplePayload, error) {
	if e.ID() == "" {
		return nil, &errors.ValidationError{Field: "id", Reason: "required field is missing"}
	}

	if e.Source() == "" {
		return nil, &errors.ValidationError{EventID: e.ID(), Field: "source", Reason: "required field is missing"}
	}

	if e.SpecVersion() != cloudevents.VersionV1 {
		return nil, &errors.ValidationError{
			EventID: e.ID(),
			Field:   "specversion",
			Reason:  fmt.Sprintf("unsupported version: %s (supported: %s)", e.SpecVersion(), cloudevents.VersionV1),
		}
	}

	if e.Type() != telemetry.EventTypeSample {
		return nil, &errors.ValidationError{
			EventID: e.ID(),
			Field:   "type",
			Reason:  fmt.Sprintf("unexpected type %q (want %q)", e.Type(), telemetry.EventTypeSample),
		}
	}

	var payload telemetry.SamplePayload
	if err := e.DataAs(&payload); err != nil {
		return nil, &errors.ValidationError{EventID: e.ID(), Field: "data", Reason: err.Error()}
	}

	if payload.Channel == "" {
		return nil, &errors.ValidationError{EventID: e.ID(), Field: "data.channel", Reason: "required field is missing"}
	}

	if len(payload.Values) == 0 {
		return nil, &errors.ValidationError{EventID: e.ID(), Field: "data.values", Reason: "sample has no values"}
	}

	if !v.allowNonFinite {
		for i, x := range payload.Values {
			if math.IsNaN(x) || math.IsInf(x, 0) {
				return nil, &errors.ValidationError{
					EventID: e.ID(),
					Field:   fmt.Sprintf("data.values[%d]", i),
					Reason:  "value is not finite",
				}
			}
		}
	}

	return &payload, nil
}
