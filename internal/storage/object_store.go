package storage

import (
	"context"
	"errors"
	"io"
)

var ErrObjectNotFound = errors.New("object not found")

// ObjectStore keeps dataset and model files. Keys are slash separated and
// generated by the server, never taken verbatim from a client.
type ObjectStore interface {
	PutObject(ctx context.Context, key string, data io.Reader) (int64, error)

	GetObject(ctx context.Context, key string) (io.ReadCloser, error)

	DeleteObject(ctx context.Context, key string) error

	// Location is the path of key as reported to clients.
	Location(key string) string
}
