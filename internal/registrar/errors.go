package registrar

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a registration failure.
type Kind int

const (
	KindBadRequest Kind = iota + 1
	KindUnauthorized
	KindInternal
)

// Status is the HTTP status code reported for k.
func (k Kind) Status() int {
	switch k {
	case KindBadRequest:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// Error is a registration failure. Record marks failures that count toward
// locking out the client IP and user.
type Error struct {
	Kind      Kind
	Retryable bool
	Record    bool
	Detail    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%d: %s", e.Kind.Status(), e.Detail)
}

func badRequest(format string, args ...any) *Error {
	return &Error{Kind: KindBadRequest, Detail: fmt.Sprintf(format, args...)}
}

func unauthorized(record bool, format string, args ...any) *Error {
	return &Error{Kind: KindUnauthorized, Record: record, Detail: fmt.Sprintf(format, args...)}
}

func internal(detail string) *Error {
	return &Error{Kind: KindInternal, Retryable: true, Detail: detail}
}

// AsError returns err as an *Error, wrapping anything else as an internal
// error.
func AsError(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return internal("Internal error")
}
