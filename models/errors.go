package models

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Error codes used in run summaries and internal error handling.
const (
	ErrCodeConfig          = "CONFIG_INVALID"
	ErrCodeNavigation      = "NAVIGATION_FAILED"
	ErrCodeTimeout         = "PAGE_TIMEOUT"
	ErrCodeBrowserCrash    = "BROWSER_CRASH"
	ErrCodeExtraction      = "EXTRACTION_FAILED"
	ErrCodeSubmitTransient = "SUBMISSION_TRANSIENT"
	ErrCodeSubmitRejected  = "SUBMISSION_REJECTED"
	ErrCodeCredentials     = "CREDENTIALS_MISSING"
)

// RunError is the internal error type carrying an error code.
// It implements the error interface and supports error wrapping via Unwrap.
type RunError struct {
	Code    string
	Message string
	Err     error // wrapped original error
}

func (e *RunError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *RunError) Unwrap() error {
	return e.Err
}

// NewRunError creates a new RunError.
func NewRunError(code, message string, err error) *RunError {
	return &RunError{Code: code, Message: message, Err: err}
}

// CodeOf returns the RunError code of err, or empty if err carries none.
func CodeOf(err error) string {
	var re *RunError
	if errors.As(err, &re) {
		return re.Code
	}
	return ""
}

// IsTransient reports whether err belongs to the failure class expected to
// resolve on retry: explicitly tagged transient submissions, deadline
// expiries, and network-level timeouts. Rejects are never transient.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	switch CodeOf(err) {
	case ErrCodeSubmitTransient, ErrCodeTimeout:
		return true
	case ErrCodeSubmitRejected, ErrCodeConfig, ErrCodeCredentials:
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return false
}
