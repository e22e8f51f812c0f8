package tracker

import (
	"errors"
	"fmt"
)

var (
	// ErrDuplicateIdentifier is returned by Register when the task identifier
	// is already bound to an unresolved request.
	ErrDuplicateIdentifier = errors.New("task identifier already in use for another request")

	// ErrCancelled is the transport error reported when an operation was
	// cancelled before it completed.
	ErrCancelled = errors.New("request cancelled")
)

// TransportError wraps a low-level failure (DNS, connection, read) reported by
// the transport. It always wins over HTTP status errors.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error: %v", e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// BadStatusError reports a non-2xx response whose body did not carry a
// structured error description.
type BadStatusError struct {
	Status int
}

func (e *BadStatusError) Error() string {
	return fmt.Sprintf("bad response status code received: %d", e.Status)
}

// BadStatusWithMessageError reports a non-2xx response with a parseable
// {"error": ..., "error_description": ...} body.
type BadStatusWithMessageError struct {
	Status      int
	Code        string
	Description string
}

// Message joins the short code and the optional description.
func (e *BadStatusWithMessageError) Message() string {
	if e.Description == "" {
		return e.Code
	}
	return e.Code + ": " + e.Description
}

func (e *BadStatusWithMessageError) Error() string {
	return fmt.Sprintf("bad response status code received: %d with error message: %s", e.Status, e.Message())
}

// InvalidResponseError reports a response that is not a well-formed HTTP
// response at all.
type InvalidResponseError struct {
	Detail string
}

func (e *InvalidResponseError) Error() string {
	return fmt.Sprintf("invalid HTTP response received: %s", e.Detail)
}
