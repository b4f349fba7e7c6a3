package metadata

import "errors"

var (
	// ErrEntryNotFound signals a missing, expired or empty entry.
	ErrEntryNotFound = errors.New("entry not found")
	// ErrFileNotFound signals that the file row could not be located.
	ErrFileNotFound = errors.New("file not found")
	// ErrConflict indicates a primary key collision.
	ErrConflict = errors.New("metadata conflict")
)
