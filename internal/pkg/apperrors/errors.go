package apperrors

import (
	"fmt"
	"net/http"
)

type ErrorType string

const (
	ErrUnauthorized   ErrorType = "UNAUTHORIZED"
	ErrForbidden      ErrorType = "FORBIDDEN"
	ErrRateLimited    ErrorType = "RATE_LIMITED"
	ErrSerde          ErrorType = "SERDE_ERROR"
	ErrInvalidRequest ErrorType = "INVALID_REQUEST"
	ErrUpstream       ErrorType = "UPSTREAM_ERROR"
	ErrInternal       ErrorType = "INTERNAL_ERROR"
)

// AppError is the standard error struct for the application
type AppError struct {
	Type       ErrorType `json:"code"`
	Message    string    `json:"message"`
	Suggestion string    `json:"suggestion,omitempty"`
	HTTPStatus int       `json:"-"`
	Cause      error     `json:"-"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

func New(errType ErrorType, msg string, cause error) *AppError {
	return &AppError{
		Type:       errType,
		Message:    msg,
		Cause:      cause,
		HTTPStatus: mapTypeToStatus(errType),
		Suggestion: mapTypeToSuggestion(errType),
	}
}

func NewUnauthorized(msg string) *AppError {
	return New(ErrUnauthorized, msg, nil)
}

func NewForbidden(msg string) *AppError {
	return New(ErrForbidden, msg, nil)
}

func NewRateLimited(msg string) *AppError {
	return New(ErrRateLimited, msg, nil)
}

// NewSerde wraps a body (de)serialization failure. These are always
// 400-class: the payload reached us but could not be interpreted.
func NewSerde(cause error) *AppError {
	return New(ErrSerde, "malformed request or response body", cause)
}

func NewUpstream(msg string, cause error) *AppError {
	return New(ErrUpstream, msg, cause)
}

func Wrap(err error) *AppError {
	if err == nil {
		return nil
	}
	if appErr, ok := err.(*AppError); ok {
		return appErr
	}
	return New(ErrInternal, err.Error(), err)
}

func mapTypeToStatus(t ErrorType) int {
	switch t {
	case ErrUnauthorized:
		return http.StatusUnauthorized
	case ErrForbidden:
		return http.StatusForbidden
	case ErrRateLimited:
		return http.StatusTooManyRequests
	case ErrSerde, ErrInvalidRequest:
		return http.StatusBadRequest
	case ErrUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func mapTypeToSuggestion(t ErrorType) string {
	switch t {
	case ErrUnauthorized:
		return "Check the API key id and request signature."
	case ErrForbidden:
		return "The API key is disabled; contact the operator."
	case ErrRateLimited:
		return "Back off and retry after the limit window."
	case ErrUpstream:
		return "The relayer is unreachable; retry the request."
	default:
		return ""
	}
}
