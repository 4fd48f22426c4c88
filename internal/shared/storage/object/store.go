package object

import (
	"context"
	"io"
)

// ObjectStore defines the contract for storing transient report files.
// Keys are generated by the caller and are never derived from user input.
type ObjectStore interface {
	Save(ctx context.Context, storageKey string, r io.Reader) (sizeBytes int64, err error)
	Open(ctx context.Context, storageKey string) (io.ReadCloser, error)
	Remove(ctx context.Context, storageKey string) error
}
