package blob

import (
	"context"
	"fmt"
	"io"
	"strings"
)

// Store holds the append-only bytes of every uploaded file, addressed by
// the (entryID, fileID) pair.
type Store interface {
	// Append writes data at the current end of the blob, creating it first.
	// A zero-length append still creates the blob.
	Append(ctx context.Context, entryID, fileID string, data []byte) error
	// Open streams the blob. ErrBlobNotFound when it was never written.
	Open(ctx context.Context, entryID, fileID string) (io.ReadCloser, error)
	// Remove deletes one blob. ErrBlobNotFound when it did not exist.
	Remove(ctx context.Context, entryID, fileID string) error
	// RemoveEntry deletes whatever blobs remain under entryID.
	RemoveEntry(ctx context.Context, entryID string) error
	Ping(ctx context.Context) error
}

func validateKey(parts ...string) error {
	for _, p := range parts {
		if p == "" || p == "." || p == ".." || strings.ContainsAny(p, `/\`) || strings.ContainsRune(p, 0) {
			return fmt.Errorf("%w: %q", ErrInvalidKey, p)
		}
	}
	return nil
}
