package http

import (
	"fmt"
	"net/http"
)

// codes maps the statuses the API answers with to their stable error code.
var codes = map[int]string{
	http.StatusBadRequest:          "ERR_BAD_REQUEST",
	http.StatusNotFound:            "ERR_NOT_FOUND",
	http.StatusConflict:            "ERR_CONFLICT",
	http.StatusTooManyRequests:     "ERR_RATE_LIMITED",
	http.StatusInternalServerError: "ERR_INTERNAL",
	http.StatusServiceUnavailable:  "ERR_UNAVAILABLE",
}

// AppError carries a stable code plus the status to answer with. The
// wrapped Err is logged but never serialised.
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
	Status  int    `json:"-"`
	Err     error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err == nil {
		return e.Code + ": " + e.Message
	}
	return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
}

func (e *AppError) Unwrap() error { return e.Err }

// WithError attaches the cause.
func (e *AppError) WithError(err error) *AppError {
	e.Err = err
	return e
}

func NewAppError(code, field, message string, status int) *AppError {
	return &AppError{Code: code, Field: field, Message: message, Status: status}
}

func statusError(status int, message string) *AppError {
	return NewAppError(codes[status], "", message, status)
}

func NotFoundError(message string) *AppError {
	return statusError(http.StatusNotFound, message)
}

func ConflictError(message string) *AppError {
	return statusError(http.StatusConflict, message)
}

func TooManyRequestsError(message string) *AppError {
	return statusError(http.StatusTooManyRequests, message)
}

func ServiceUnavailableError(message string) *AppError {
	return statusError(http.StatusServiceUnavailable, message)
}

func InternalError(message string) *AppError {
	return statusError(http.StatusInternalServerError, message)
}
