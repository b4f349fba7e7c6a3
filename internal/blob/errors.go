package blob

import "errors"

var (
	// ErrBlobNotFound signals that nothing was ever appended for the key.
	ErrBlobNotFound = errors.New("blob not found")
	// ErrInvalidKey rejects ids that could escape the storage root.
	ErrInvalidKey = errors.New("invalid blob key")
	// ErrLockTimeout is returned when a per-file lock cannot be acquired in time.
	ErrLockTimeout = errors.New("blob lock timeout")
)
