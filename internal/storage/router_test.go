package storage

import (
	"testing"
	"time"
)

func TestNewRouter(t *testing.T) {
	router := NewRouter("s3", "my-bucket", "/telemetry/")

	if router.protocol != "s3" {
		t.Errorf("protocol = %v, want s3", router.protocol)
	}
	if router.bucket != "my-bucket" {
		t.Errorf("bucket = %v, want my-bucket", router.bucket)
	}
	if router.basePath != "telemetry" {
		t.Errorf("basePath = %v, want telemetry", router.basePath)
	}
}

func TestDefaultRouter_Route(t *testing.T) {
	at := time.Date(2025, 12, 18, 10, 30, 5, 0, time.UTC)

	tests := []struct {
		name     string
		basePath string
		at       time.Time
		flushID  string
		want     string
	}{
		{
			name:     "with base path",
			basePath: "base",
			at:       at,
			flushID:  "6f1c2d3e-aaaa-bbbb-cccc-000000000000",
			want:     "base/log/dt=2025-12-18/log_20251218_103005_6f1c2d3e",
		},
		{
			name:    "without base path",
			at:      at,
			flushID: "6f1c2d3e-aaaa-bbbb-cccc-000000000000",
			want:    "log/dt=2025-12-18/log_20251218_103005_6f1c2d3e",
		},
		{
			name:    "short flush id",
			at:      at,
			flushID: "abc",
			want:    "log/dt=2025-12-18/log_20251218_103005_abc",
		},
		{
			name: "no flush id",
			at:   at,
			want: "log/dt=2025-12-18/log_20251218_103005",
		},
		{
			name:    "partitioned in UTC",
			at:      time.Date(2025, 12, 18, 23, 30, 0, 0, time.FixedZone("UTC-2", -2*60*60)),
			flushID: "12345678",
			want:    "log/dt=2025-12-19/log_20251219_013000_12345678",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := NewRouter("s3", "test-bucket", tt.basePath)
			if got := router.Route("log", tt.at, tt.flushID); got != tt.want {
				t.Errorf("Route() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDefaultRouter_URI(t *testing.T) {
	tests := []struct {
		name   string
		router *DefaultRouter
		key    string
		want   string
	}{
		{
			name:   "s3",
			router: NewRouter("s3", "my-bucket", ""),
			key:    "log/dt=2025-12-18/log.parquet",
			want:   "s3://my-bucket/log/dt=2025-12-18/log.parquet",
		},
		{
			name:   "gcs",
			router: NewRouter("gs", "my-bucket", ""),
			key:    "/log.avro",
			want:   "gs://my-bucket/log.avro",
		},
		{
			name:   "no bucket",
			router: NewRouter("file", "", ""),
			key:    "log/log.parquet",
			want:   "log/log.parquet",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.router.URI(tt.key); got != tt.want {
				t.Errorf("URI() = %v, want %v", got, tt.want)
			}
		})
	}
}
