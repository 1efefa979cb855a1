// Package storage is the seam between the pipeline and the object
// store holding uploaded files. The assembler only ever needs a
// fetchable URL (binary assets) or the raw bytes (inline text), keyed
// by the opaque storage key on the file record.
package storage

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("storage: object not found")

// Resolver turns a stored file reference into either a fetchable URL
// with expiry or inline bytes.
type Resolver interface {
	ResolveURL(ctx context.Context, key string, expiry time.Duration) (string, error)
	ReadBytes(ctx context.Context, key string) ([]byte, error)
}
