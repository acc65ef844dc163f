package hle

import (
	"errors"
	"fmt"
)

var (
	ErrMalformedBuffer = errors.New("malformed command buffer")
	ErrUnknownHandle   = errors.New("unknown handle")
	ErrUnmappedMemory  = errors.New("unmapped memory")
	ErrContextClosed   = errors.New("request context is closed")
)

// TranslateError reports where a translation pass stopped.
type TranslateError struct {
	Direction string
	Word      int
	Err       error
}

func (e *TranslateError) Error() string {
	return fmt.Sprintf("ipc %s pass: word %d: %v", e.Direction, e.Word, e.Err)
}

func (e *TranslateError) Unwrap() error {
	return e.Err
}

// ErrorKind returns a short label for the taxonomy entry err belongs to.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrMalformedBuffer):
		return "malformed_buffer"
	case errors.Is(err, ErrUnknownHandle):
		return "unknown_handle"
	case errors.Is(err, ErrUnmappedMemory):
		return "unmapped_memory"
	case errors.Is(err, ErrContextClosed):
		return "context_closed"
	default:
		return "internal"
	}
}

func malformed(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrMalformedBuffer, fmt.Sprintf(format, args...))
}
