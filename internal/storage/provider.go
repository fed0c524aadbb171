// Package storage defines the object store abstraction shared by every harvester
// subsystem. Object names are slash-separated keys relative to the bucket or base
// directory, for example "comments/UCxyz/abc123.json".
package storage

import (
	"context"
	"io"
)

// Provider reads and writes whole objects.
type Provider interface {
	// PutObject replaces the object at path and returns its URI.
	PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error)
	// GetObject returns the object contents or an error wrapping chat.ErrNotFound.
	GetObject(ctx context.Context, path string) ([]byte, error)
	// ObjectExists reports whether path holds an object.
	ObjectExists(ctx context.Context, path string) (bool, error)
	// ListObjects returns the names under prefix in lexical order.
	ListObjects(ctx context.Context, prefix string) ([]string, error)
}
