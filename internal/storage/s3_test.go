package storage

import (
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/jittakal/telemetrystore/pkg/telemetry"
)

func TestS3Config_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  S3Config
		wantErr bool
	}{
		{
			name: "valid config",
			config: S3Config{
				Bucket: "test-bucket",
				Region: "us-east-1",
			},
			wantErr: false,
		},
		{
			name: "empty bucket",
			config: S3Config{
				Region: "us-east-1",
			},
			wantErr: true,
		},
		{
			name: "empty region",
			config: S3Config{
				Bucket: "test-bucket",
			},
			wantErr: true,
		},
		{
			name: "with endpoint",
			config: S3Config{
				Bucket:       "test-bucket",
				Region:       "us-east-1",
				Endpoint:     "http://localhost:9000",
				UsePathStyle: true,
			},
			wantErr: false,
		},
		{
			name: "with SSE KMS key",
			config: S3Config{
				Bucket:      "test-bucket",
				Region:      "us-east-1",
				SSEEnabled:  true,
				SSEKMSKeyID: "arn:aws:kms:us-east-1:123456789012:key/12345678-1234-1234-1234-123456789012",
			},
			wantErr: false,
		},
		{
			name: "KMS key without SSE",
			config: S3Config{
				Bucket:      "test-bucket",
				Region:      "us-east-1",
				SSEKMSKeyID: "alias/telemetry",
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestS3Writer_PutObjectInput(t *testing.T) {
	obj := object{
		Key:       "telemetry/log/dt=2025-12-18/log_20251218_103005_6f1c2d3e.avro",
		FlushID:   "6f1c2d3e",
		Container: "log",
		Format:    telemetry.FormatAvro,
	}

	tests := []struct {
		name    string
		writer  *S3Writer
		wantSSE types.ServerSideEncryption
		wantKMS string
	}{
		{
			name:   "no encryption",
			writer: &S3Writer{bucket: "b"},
		},
		{
			name:    "AES256",
			writer:  &S3Writer{bucket: "b", sseEnabled: true},
			wantSSE: types.ServerSideEncryptionAes256,
		},
		{
			name:    "KMS",
			writer:  &S3Writer{bucket: "b", sseEnabled: true, sseKMSKeyID: "alias/telemetry"},
			wantSSE: types.ServerSideEncryptionAwsKms,
			wantKMS: "alias/telemetry",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input := tt.writer.putObjectInput(obj)

			if got := aws.ToString(input.Bucket); got != "b" {
				t.Errorf("Bucket = %v, want b", got)
			}
			if got := aws.ToString(input.Key); got != obj.Key {
				t.Errorf("Key = %v, want %v", got, obj.Key)
			}
			if got := aws.ToString(input.ContentType); got != "application/avro" {
				t.Errorf("ContentType = %v, want application/avro", got)
			}
			if input.Metadata["flush-id"] != "6f1c2d3e" || input.Metadata["container"] != "log" {
				t.Errorf("Metadata = %v", input.Metadata)
			}
			if input.ServerSideEncryption != tt.wantSSE {
				t.Errorf("ServerSideEncryption = %v, want %v", input.ServerSideEncryption, tt.wantSSE)
			}
			if got := aws.ToString(input.SSEKMSKeyId); got != tt.wantKMS {
				t.Errorf("SSEKMSKeyId = %v, want %v", got, tt.wantKMS)
			}
		})
	}
}

func TestS3Writer_Close(t *testing.T) {
	w := &S3Writer{logger: testLogger()}
	if err := w.Close(); err != nil {
		t.Errorf("Close() error = %v, want nil", err)
	}
}
