package crdt

import (
	"errors"
	"fmt"
)

// Error definitions
var (
	ErrUnknownCharacter = errors.New("unknown character id")
	ErrInvalidValue     = errors.New("value must be a single character")
)

func unknownCharacter(id string) error {
	return fmt.Errorf("%w %q", ErrUnknownCharacter, id)
}

// DeserializationError reports a malformed or truncated store payload. Callers
// can tell it apart from other failures with errors.As and drop the payload or
// ask the peer for a fresh snapshot.
type DeserializationError struct {
	Reason string
	Err    error
}

func (e *DeserializationError) Error() string {
	if e.Err != nil {
		return "deserialize store: " + e.Reason + ": " + e.Err.Error()
	}
	return "deserialize store: " + e.Reason
}

func (e *DeserializationError) Unwrap() error {
	return e.Err
}

func malformed(format string, args ...any) error {
	return &DeserializationError{Reason: fmt.Sprintf(format, args...)}
}
