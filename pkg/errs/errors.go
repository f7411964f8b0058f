// Package errs defines the error kinds shared by the compilation and upload
// pipelines.
package errs

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidParameter = errors.New("invalid parameter")
	ErrCredential       = errors.New("credential error")
	ErrTransfer         = errors.New("transfer error")
	ErrAbort            = errors.New("aborted")
	ErrCompilation      = errors.New("compilation error")
	ErrUpload           = errors.New("upload failed")
)

// Error carries an error kind together with the operation that failed and the
// underlying cause. errors.Is matches both Kind and Err.
type Error struct {
	Kind     error
	Op       string
	Attempts int
	Err      error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Kind.Error()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Attempts > 0 {
		msg = fmt.Sprintf("%s after %d attempt(s)", msg, e.Attempts)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// New wraps err with kind for operation op.
func New(kind error, op string, err error) error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// InvalidParameterf builds an ErrInvalidParameter error with a formatted reason.
func InvalidParameterf(op, format string, args ...any) error {
	return &Error{Kind: ErrInvalidParameter, Op: op, Err: fmt.Errorf(format, args...)}
}

// Attempts returns the attempt count recorded on err, or 0.
func Attempts(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.Attempts
	}
	return 0
}

// IsRetryable reports whether err is a transient credential or transfer failure.
func IsRetryable(err error) bool {
	if errors.Is(err, ErrAbort) || errors.Is(err, ErrInvalidParameter) {
		return false
	}
	return errors.Is(err, ErrCredential) || errors.Is(err, ErrTransfer)
}
