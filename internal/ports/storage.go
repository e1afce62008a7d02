package ports

import (
	"context"
	"io"
)

type PutObjectInput struct {
	ObjectKey   string
	ContentType string
	Reader      io.Reader
	Size        int64
}

type PutObjectOutput struct {
	// For localfs this is the requested object key. For gdrive it is the
	// Drive file id, which Get and Delete expect.
	ObjectKey string
	Size      int64
}

// StorageProvider is implemented by localfs and gdrive.
type StorageProvider interface {
	Provider() string

	PutObject(ctx context.Context, in PutObjectInput) (PutObjectOutput, error)
	GetObject(ctx context.Context, objectKey string) (rc io.ReadCloser, contentType string, size int64, err error)
	DeleteObject(ctx context.Context, objectKey string) error

	// Check verifies the backend is reachable and writable.
	Check(ctx context.Context) error
}
