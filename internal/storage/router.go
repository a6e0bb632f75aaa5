// Package storage implements storage-related functionality.
package storage

import (
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/jittakal/telemetrystore/pkg/storage"
)

// Ensure implementation satisfies interface at compile time.
var _ storage.Router = (*DefaultRouter)(nil)

// DefaultRouter implements Hive-style partitioning for flushed files.
type DefaultRouter struct {
	protocol string
	bucket   string
	basePath string
}

// NewRouter creates a new storage router.
func NewRouter(protocol, bucket, basePath string) *DefaultRouter {
	return &DefaultRouter{
		protocol: protocol,
		bucket:   bucket,
		basePath: strings.Trim(basePath, "/"),
	}
}

// Route returns the object key (without extension) for a container flushed
// at the given time.
// Format: basePath/container/dt=YYYY-MM-DD/container_YYYYMMDD_HHMMSS_<flush id prefix>
// Partitioning uses UTC.
func (r *DefaultRouter) Route(containerName string, at time.Time, flushID string) string {
	t := at.UTC()

	id := flushID
	if len(id) > 8 {
		id = id[:8]
	}

	name := fmt.Sprintf("%s_%s", containerName, t.Format("20060102_150405"))
	if id != "" {
		name += "_" + id
	}

	return path.Join(r.basePath, containerName, "dt="+t.Format("2006-01-02"), name)
}

// URI returns the fully qualified location of key, e.g. s3://bucket/key.
func (r *DefaultRouter) URI(key string) string {
	if r.protocol == "" || r.bucket == "" {
		return key
	}
	return fmt.Sprintf("%s://%s/%s", r.protocol, r.bucket, strings.TrimPrefix(key, "/"))
}
