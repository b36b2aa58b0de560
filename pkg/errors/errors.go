// Package errors defines the sentinel errors shared by the review pipeline and
// an AppError type that attaches context (and an HTTP status where one is
// known) to a sentinel.
package errors

import (
	"errors"
	"fmt"
)

var (
	ErrMemoryCeiling        = errors.New("host memory exceeds configured ceiling")
	ErrSourceIO             = errors.New("record source i/o failure")
	ErrTranslationStatus    = errors.New("translation endpoint returned non-success status")
	ErrTranslationTransport = errors.New("translation request failed")
	ErrPeerUnavailable      = errors.New("peer unavailable")
	ErrInvalidConfig        = errors.New("invalid configuration")
	ErrRetryExhausted       = errors.New("retry attempts exhausted")
	ErrPoolClosed           = errors.New("worker pool closed")
	ErrStoreTimeout         = errors.New("store call timed out")
)

type AppError struct {
	Err        error
	Message    string
	StatusCode int
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(sentinel error, statusCode int, message string) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    message,
		StatusCode: statusCode,
	}
}

func Newf(sentinel error, statusCode int, format string, args ...any) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    fmt.Sprintf(format, args...),
		StatusCode: statusCode,
	}
}

// StatusCode returns the HTTP status carried by err, or 0 if none is known.
func StatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}
	return 0
}

// IsFatal reports whether err belongs to one of the process-terminating
// classes: a host memory ceiling violation or an unrecoverable failure of the
// primary record source.
func IsFatal(err error) bool {
	return errors.Is(err, ErrMemoryCeiling) || errors.Is(err, ErrSourceIO)
}
