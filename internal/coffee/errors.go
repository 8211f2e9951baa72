package coffee

import (
	"errors"
	"fmt"
)

// Kind classifies a failed API call.
type Kind uint8

const (
	KindUnknown Kind = iota
	// KindNetwork: the request never got an HTTP response.
	KindNetwork
	// KindServer: the server answered with a non-2xx status other than 400/404.
	KindServer
	// KindValidation: the server rejected the input (400).
	KindValidation
	// KindNotFound: the addressed resource does not exist (404).
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindServer:
		return "server"
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

// Sentinels for errors.Is. Every *Error matches the sentinel of its Kind.
var (
	ErrNetwork    = errors.New("coffee: network error")
	ErrServer     = errors.New("coffee: server error")
	ErrValidation = errors.New("coffee: validation error")
	ErrNotFound   = errors.New("coffee: not found")
)

// Error is the error type of every API operation.
type Error struct {
	Kind    Kind
	Op      string // operation, e.g. "coffee.CreateOrder"
	Status  int    // HTTP status; 0 for network errors
	Message string // server-provided message, if any
	Err     error  // underlying cause, if any
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Status != 0 {
		return fmt.Sprintf("%s: %s (%d): %s", e.Op, e.Kind, e.Status, msg)
	}
	return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, msg)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	switch target {
	case ErrNetwork:
		return e.Kind == KindNetwork
	case ErrServer:
		return e.Kind == KindServer
	case ErrValidation:
		return e.Kind == KindValidation
	case ErrNotFound:
		return e.Kind == KindNotFound
	}
	return false
}

// KindOf returns the Kind of err, or KindUnknown when err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Validation builds a KindValidation error.
func Validation(op, msg string) *Error {
	return &Error{Kind: KindValidation, Op: op, Message: msg}
}

// NotFound builds a KindNotFound error.
func NotFound(op, msg string) *Error {
	return &Error{Kind: KindNotFound, Op: op, Message: msg}
}

// Internal wraps err as a KindServer error.
func Internal(op string, err error) *Error {
	return &Error{Kind: KindServer, Op: op, Err: err}
}

func kindForStatus(code int) Kind {
	switch {
	case code == 400:
		return KindValidation
	case code == 404:
		return KindNotFound
	default:
		return KindServer
	}
}
