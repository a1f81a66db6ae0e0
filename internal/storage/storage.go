package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrObjectNotFound is returned by Open when the object does not exist.
var ErrObjectNotFound = errors.New("object not found")

// ObjectStore is flat physical storage for file contents. Objects are grouped
// in one container per user, named after the user's root directory, and keyed
// by file ID. There is no hierarchy below the container.
type ObjectStore interface {
	EnsureContainer(ctx context.Context, container string) error
	RemoveContainer(ctx context.Context, container string) error
	// Put stores the object and returns the number of bytes written.
	Put(ctx context.Context, container, id string, reader io.Reader, size int64, contentType string) (int64, error)
	Open(ctx context.Context, container, id string) (io.ReadCloser, int64, error)
	// Remove deletes the object. A missing object is not an error.
	Remove(ctx context.Context, container, id string) error
}

// ObjectKey is the backend-independent location of a file's bytes.
func ObjectKey(container, id string) string {
	return container + "/" + id
}

func validateSegment(kind, value string) error {
	if value == "" || value == "." || value == ".." || strings.ContainsAny(value, "/\\\x00") {
		return fmt.Errorf("invalid %s name %q", kind, value)
	}
	return nil
}
