package providers

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"tripbuilder/crmsync/internal/constants"
)

// ProviderError represents a failed CRM call. Transient errors were retried
// up to the configured bound before being returned.
type ProviderError struct {
	Code       string
	Message    string
	Details    string
	StatusCode int
	Transient  bool
	Err        error

	retryAfter time.Duration
}

func (e *ProviderError) Error() string {
	msg := e.Message
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (HTTP %d)", msg, e.StatusCode)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if e.Details != "" {
		return fmt.Sprintf("%s: %s", msg, e.Details)
	}
	return msg
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

func newProviderError(code string, status int, transient bool, details string, err error) *ProviderError {
	return &ProviderError{
		Code:       code,
		Message:    constants.GetErrorMessage(code),
		Details:    details,
		StatusCode: status,
		Transient:  transient,
		Err:        err,
	}
}

// statusError converts a non-2xx response into a ProviderError.
func statusError(status int, body string) *ProviderError {
	switch {
	case status == http.StatusTooManyRequests:
		return newProviderError(constants.ErrCodeRateLimited, status, true, body, nil)
	case status >= 500:
		return newProviderError(constants.ErrCodeRemoteUnavailable, status, true, body, nil)
	case status == http.StatusUnauthorized:
		return newProviderError(constants.ErrCodeInvalidAPIKey, status, false, body, nil)
	case status == http.StatusForbidden:
		return newProviderError(constants.ErrCodeForbidden, status, false, body, nil)
	case status == http.StatusNotFound:
		return newProviderError(constants.ErrCodeNotFound, status, false, body, nil)
	case status == http.StatusUnprocessableEntity:
		return newProviderError(constants.ErrCodeValidationFailed, status, false, body, nil)
	default:
		return newProviderError(constants.ErrCodeBadRequest, status, false, body, nil)
	}
}

// IsTransient reports whether err is a retryable remote failure.
func IsTransient(err error) bool {
	var perr *ProviderError
	return errors.As(err, &perr) && perr.Transient
}

// IsPermanent reports whether err is a remote rejection that must not be retried.
func IsPermanent(err error) bool {
	var perr *ProviderError
	return errors.As(err, &perr) && !perr.Transient
}

// IsNotFound reports whether the remote answered 404.
func IsNotFound(err error) bool {
	var perr *ProviderError
	return errors.As(err, &perr) && perr.StatusCode == http.StatusNotFound
}
