// Package storage holds packages that exceed the Telegram upload ceiling and
// the thumbnails served over HTTP. The backing bucket is any S3-compatible
// endpoint (Cloudflare R2 included).
package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrObjectNotFound is returned when the key has no object behind it.
var ErrObjectNotFound = errors.New("object not found")

// Blob is an opened object. The caller owns Body.
type Blob struct {
	Body        io.ReadCloser
	Size        int64
	ContentType string
}

// Object describes a stored object for listing.
type Object struct {
	Key          string
	LastModified time.Time
}

// BlobStore stores and serves binary objects by key.
type BlobStore interface {
	// Put streams body into the object at key. The body is consumed once
	// and never fully buffered.
	Put(ctx context.Context, key string, body io.Reader, contentType string) error
	// Get opens the object, or returns ErrObjectNotFound.
	Get(ctx context.Context, key string) (Blob, error)
	// Delete removes the object. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
	// List returns all stored objects.
	List(ctx context.Context) ([]Object, error)
}
