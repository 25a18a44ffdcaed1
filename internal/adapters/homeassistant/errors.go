package homeassistant

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel causes carried inside HAError or returned directly
var (
	ErrUnauthorized         = errors.New("home assistant rejected the access token")
	ErrEntityNotFound       = errors.New("entity not found")
	ErrConnectionClosed     = errors.New("websocket connection closed")
	ErrSubscriptionRejected = errors.New("subscription rejected by home assistant")
	ErrInvalidURL           = errors.New("invalid home assistant url")
)

// HAError records which exchange with Home Assistant failed.
// Code is the HTTP status, or 0 when no response was received.
type HAError struct {
	Op   string
	Code int
	Err  error
}

func (e *HAError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("%s: status %d: %v", e.Op, e.Code, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *HAError) Unwrap() error {
	return e.Err
}

func transportError(op string, err error) *HAError {
	return &HAError{Op: op, Err: err}
}

func statusError(op string, code int, body []byte) *HAError {
	switch code {
	case http.StatusUnauthorized:
		return &HAError{Op: op, Code: code, Err: ErrUnauthorized}
	case http.StatusNotFound:
		return &HAError{Op: op, Code: code, Err: ErrEntityNotFound}
	}

	msg := http.StatusText(code)
	if len(body) > 0 {
		if len(body) > 200 {
			body = body[:200]
		}
		msg = fmt.Sprintf("%s: %s", msg, body)
	}
	return &HAError{Op: op, Code: code, Err: errors.New(msg)}
}

// IsConnectionError reports a failure where Home Assistant gave no HTTP answer
func IsConnectionError(err error) bool {
	var haErr *HAError
	return errors.As(err, &haErr) && haErr.Code == 0
}

func IsAuthError(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}

// IsNotFound reports whether Home Assistant does not know the entity
func IsNotFound(err error) bool {
	return errors.Is(err, ErrEntityNotFound)
}

// retryable reports whether a status is worth another attempt
func retryable(code int) bool {
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}
