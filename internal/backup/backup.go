package backup

import (
	"context"
	"time"
)

// ObjectInfo describes one stored snapshot.
type ObjectInfo struct {
	Key          string
	Size         int64
	LastModified *time.Time
}

// UploadOptions conveys the snapshot destination.
type UploadOptions struct {
	Bucket    string
	KeyPrefix string
}

// Service stores database snapshots in remote object storage.
type Service interface {
	UploadFile(ctx context.Context, localPath string, opts UploadOptions) (string, error)
	ListObjects(ctx context.Context, bucket, prefix string) ([]ObjectInfo, error)
}
