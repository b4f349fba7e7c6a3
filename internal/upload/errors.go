package upload

import "errors"

var (
	// ErrInvalidDeleteDate rejects delete dates outside [now, now+retention].
	ErrInvalidDeleteDate = errors.New("invalid delete date")
	// ErrInvalidEntry rejects malformed entry declarations.
	ErrInvalidEntry = errors.New("invalid entry")
	// ErrInvalidChunk rejects malformed chunk payloads.
	ErrInvalidChunk = errors.New("invalid chunk")
	// ErrEntryNotFound signals an unknown or expired entry.
	ErrEntryNotFound = errors.New("entry not found")
	// ErrFileNotFound signals an unknown file id or one owned by another entry.
	ErrFileNotFound = errors.New("file not found")
)
