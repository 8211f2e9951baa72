package querysync

import (
	"errors"
	"fmt"
)

// ErrClosed is returned by operations on a closed Client.
var ErrClosed = errors.New("querysync: client closed")

// PanicError wraps a value recovered from a panicking fetch or mutation func.
// The panic is scoped to that one query or mutation.
type PanicError struct {
	Key   string
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("querysync: fetch %s panicked: %v", e.Key, e.Value)
}

// Unwrap exposes the panic value when it was itself an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}
