package download

import "errors"

var (
	// ErrEntryNotFound signals a missing, expired or empty entry.
	ErrEntryNotFound = errors.New("entry not found")
	// ErrBlobMissing means a file row exists but its bytes were never written.
	ErrBlobMissing = errors.New("file content missing")
)
