package client

import (
	"errors"
	"fmt"
)

// ErrEntryNotFound is returned when the server does not know the entry.
var ErrEntryNotFound = errors.New("entry not found")

// StatusError is a non-2xx server response.
type StatusError struct {
	Op   string
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: server returned %d", e.Op, e.Code)
	}
	return fmt.Sprintf("%s: server returned %d: %s", e.Op, e.Code, e.Body)
}
