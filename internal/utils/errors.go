package utils

import "net/http"

// AppError is the error type returned across service boundaries. Detail holds
// diagnostic context that is safe to return to the caller (previews are
// bounded before they get here).
type AppError struct {
	StatusCode int            `json:"-"`
	Message    string         `json:"error"`
	Detail     map[string]any `json:"detail,omitempty"`
}

func (e *AppError) Error() string {
	return e.Message
}

func NewBadRequestError(message string) *AppError {
	return &AppError{StatusCode: http.StatusBadRequest, Message: message}
}

func NewNotFoundError(message string) *AppError {
	return &AppError{StatusCode: http.StatusNotFound, Message: message}
}

func NewInternalError(message string) *AppError {
	return &AppError{StatusCode: http.StatusInternalServerError, Message: message}
}

// NewUpstreamError covers transport failures and empty completions from the
// AI service: the request was fine, the upstream was not.
func NewUpstreamError(message string, detail map[string]any) *AppError {
	return &AppError{StatusCode: http.StatusBadGateway, Message: message, Detail: detail}
}

// NewUnprocessableError is used when the upstream answered but no usable JSON
// could be recovered from its output.
func NewUnprocessableError(message string, detail map[string]any) *AppError {
	return &AppError{StatusCode: http.StatusUnprocessableEntity, Message: message, Detail: detail}
}
