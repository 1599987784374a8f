package storage

import (
	"context"
	"errors"
	"io"
)

// ErrDisabled is returned by DisabledStore writes.
var ErrDisabled = errors.New("blob storage disabled")

// DisabledStore is the BlobStore wired when no bucket is configured. Writes
// fail without consuming the body, so callers take their degrade paths
// instead of buffering payloads in process memory; reads see an empty bucket.
type DisabledStore struct{}

func NewDisabledStore() DisabledStore {
	return DisabledStore{}
}

func (DisabledStore) Put(_ context.Context, _ string, _ io.Reader, _ string) error {
	return ErrDisabled
}

func (DisabledStore) Get(_ context.Context, _ string) (Blob, error) {
	return Blob{}, ErrObjectNotFound
}

func (DisabledStore) Delete(_ context.Context, _ string) error {
	return nil
}

func (DisabledStore) List(_ context.Context) ([]Object, error) {
	return nil, nil
}

var _ BlobStore = DisabledStore{}
