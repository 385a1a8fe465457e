package backend

import (
	"errors"
	"fmt"
)

// ErrMissingSessionID is returned when a create response carries no usable identifier.
var ErrMissingSessionID = errors.New("session id missing from response")

// Op names a backend operation for error reporting.
type Op string

const (
	OpCreateSession Op = "create_session"
	OpSendMessage   Op = "send_message"
)

// Error is a failed backend call: transport failure, timeout, non-2xx status,
// or an unusable response body.
type Error struct {
	Op         Op
	Endpoint   string
	StatusCode int
	Body       string
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("backend %s %s: status %d: %s", e.Op, e.Endpoint, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("backend %s %s: %v", e.Op, e.Endpoint, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Timeout reports whether the call ran out of time.
func (e *Error) Timeout() bool {
	var t interface{ Timeout() bool }
	if errors.As(e.Err, &t) {
		return t.Timeout()
	}
	return false
}
