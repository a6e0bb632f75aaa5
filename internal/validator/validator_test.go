package validator

import (
	"encoding/json"
	"errors"
	"testing"

	cloudevents "github.com/cloudevents/sdk-go/v2"

	apperrors "github.com/jittakal/telemetrystore/internal/errors"
	"github.com/jittakal/telemetrystore/pkg/telemetry"
)

func TestValidateChannels(t *testing.T) {
	tests := []struct {
		name     string
		channels []telemetry.ChannelInfo
		wantErr  bool
	}{
		{
			name:     "single channel",
			channels: []telemetry.ChannelInfo{telemetry.NewChannelInfo("pos", 3, 1)},
		},
		{
			name: "multiple channels",
			channels: []telemetry.ChannelInfo{
				telemetry.NewChannelInfo("pos", 3, 1),
				telemetry.NewChannelInfo("rot", 3, 3),
			},
		},
		{
			name:     "empty list",
			channels: nil,
			wantErr:  true,
		},
		{
			name:     "empty name",
			channels: []telemetry.ChannelInfo{telemetry.NewChannelInfo("", 1, 1)},
			wantErr:  true,
		},
		{
			name: "duplicate name",
			channels: []telemetry.ChannelInfo{
				telemetry.NewChannelInfo("pos", 3, 1),
				telemetry.NewChannelInfo("pos", 1, 1),
			},
			wantErr: true,
		},
		{
			name:     "zero rows",
			channels: []telemetry.ChannelInfo{telemetry.NewChannelInfo("pos", 0, 1)},
			wantErr:  true,
		},
		{
			name:     "negative cols",
			channels: []telemetry.ChannelInfo{telemetry.NewChannelInfo("pos", 1, -2)},
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateChannels(tt.channels)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateChannels() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr && !errors.Is(err, apperrors.ErrConfiguration) {
				t.Errorf("ValidateChannels() error = %v, want ErrConfiguration", err)
			}
		})
	}
}

func TestValidateSample(t *testing.T) {
	info := telemetry.NewChannelInfo("pos", 3, 1)

	if err := ValidateSample(info, []float64{1, 2, 3}); err != nil {
		t.Errorf("ValidateSample() error = %v, want nil", err)
	}

	err := ValidateSample(info, []float64{1, 2})
	if !errors.Is(err, apperrors.ErrDimensionMismatch) {
		t.Fatalf("ValidateSample() error = %v, want ErrDimensionMismatch", err)
	}

	var dimErr *apperrors.DimensionError
	if !errors.As(err, &dimErr) {
		t.Fatal("expected DimensionError")
	}
	if dimErr.Got != 2 || dimErr.Rows != 3 || dimErr.Cols != 1 {
		t.Errorf("DimensionError = %+v", dimErr)
	}
}

func newSampleEvent(t *testing.T, data interface{}) cloudevents.Event {
	t.Helper()

	e := cloudevents.NewEvent()
	e.SetSpecVersion(cloudevents.VersionV1)
	e.SetID("evt-1")
	e.SetSource("robot/arm")
	e.SetType(telemetry.EventTypeSample)
	if err := e.SetData(telemetry.ContentTypeJSON, data); err != nil {
		t.Fatalf("SetData() error = %v", err)
	}
	return e
}

func TestSampleEventValidator_ValidateSuccess(t *testing.T) {
	v := NewSampleEventValidator(false)
	e := newSampleEvent(t, telemetry.SamplePayload{Channel: "pos", Values: []float64{1, 2, 3}})

	payload, err := v.Validate(&e)
	if err != nil {
		t.Fatalf("Validate() error = %v, want nil", err)
	}
	if payload.Channel != "pos" {
		t.Errorf("Channel = %v, want pos", payload.Channel)
	}
	if len(payload.Values) != 3 {
		t.Errorf("len(Values) = %d, want 3", len(payload.Values))
	}
}

func TestSampleEventValidator_ValidateErrors(t *testing.T) {
	v := NewSampleEventValidator(false)

	tests := []struct {
		name      string
		mutate    func(e *cloudevents.Event)
		data      interface{}
		wantField string
	}{
		{
			name:      "wrong type",
			mutate:    func(e *cloudevents.Event) { e.SetType("book.issued") },
			data:      telemetry.SamplePayload{Channel: "pos", Values: []float64{1}},
			wantField: "type",
		},
		{
			name:      "missing channel",
			data:      telemetry.SamplePayload{Values: []float64{1}},
			wantField: "data.channel",
		},
		{
			name:      "no values",
			data:      telemetry.SamplePayload{Channel: "pos"},
			wantField: "data.values",
		},
		{
			name:      "data is not an object",
			data:      []int{1, 2},
			wantField: "data",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newSampleEvent(t, tt.data)
			if tt.mutate != nil {
				tt.mutate(&e)
			}

			_, err := v.Validate(&e)
			if err == nil {
				t.Fatal("Validate() expected error")
			}

			var valErr *apperrors.ValidationError
			if !errors.As(err, &valErr) {
				t.Fatalf("expected ValidationError, got %T", err)
			}
			if valErr.Field != tt.wantField {
				t.Errorf("Field = %v, want %v", valErr.Field, tt.wantField)
			}
			if !errors.Is(err, apperrors.ErrInvalidSample) {
				t.Error("expected ErrInvalidSample")
			}
		})
	}
}

func TestSampleEventValidator_MissingID(t *testing.T) {
	v := NewSampleEventValidator(false)

	// SetID rejects an empty id, so the event comes off the wire without one.
	raw := []byte(`{"specversion":"1.0","source":"robot/arm","type":"telemetry.sample",` +
		`"datacontenttype":"application/json","data":{"channel":"pos","values":[1]}}`)

	var e cloudevents.Event
	if err := json.Unmarshal(raw, &e); err != nil {
		t.Fatalf("json.Unmarshal() error = %v", err)
	}
	if e.ID() != "" {
		t.Fatalf("ID() = %q, want empty", e.ID())
	}

	_, err := v.Validate(&e)

	var valErr *apperrors.ValidationError
	if !errors.As(err, &valErr) {
		t.Fatalf("Validate() error = %v, want ValidationError", err)
	}
	if valErr.Field != "id" {
		t.Errorf("Field = %v, want id", valErr.Field)
	}
	if !errors.Is(err, apperrors.ErrInvalidSample) {
		t.Error("expected ErrInvalidSample")
	}
}
