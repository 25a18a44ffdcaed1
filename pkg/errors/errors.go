package errors

import (
	"fmt"
	"net/http"
)

// AppError carries the HTTP status and client-facing message for a failure.
// Err is the underlying cause; its text becomes Details.
type AppError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
	Err     error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%d %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%d %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

var ErrInternalServer = &AppError{Code: http.StatusInternalServerError, Message: "Internal server error"}

func New(code int, message string) *AppError {
	return &AppError{Code: code, Message: message}
}

// Wrap attaches a status and message to err
func Wrap(code int, message string, err error) *AppError {
	appErr := &AppError{Code: code, Message: message, Err: err}
	if err != nil {
		appErr.Details = err.Error()
	}
	return appErr
}
