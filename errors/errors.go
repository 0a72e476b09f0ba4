package errors

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"runtime/debug"

	"github.com/go-playground/validator/v10"
)

type ErrorType string

const (
	ErrNotFound           ErrorType = "ENTRY_NOT_FOUND_ERROR"
	ErrValidation         ErrorType = "VALIDATION_ERROR"
	ErrAuthorization      ErrorType = "AUTHORIZATION_ERROR"
	ErrExpiredToken       ErrorType = "EXPIRED_TOKEN_ERROR"
	ErrAuthentication     ErrorType = "AUTHENTICATION_ERROR"
	ErrInvalidToken       ErrorType = "INVALID_TOKEN_ERROR"
	ErrUpstreamRejected   ErrorType = "UPSTREAM_REJECTED_ERROR"
	ErrServiceUnavailable ErrorType = "SERVICE_UNAVAILABLE_ERROR"
	ErrPersistence        ErrorType = "PERSISTENCE_ERROR"
	ErrFatal              ErrorType = "FATAL_ERROR"
)

type AppError struct {
	Code     int       `json:"-"`
	Type     ErrorType `json:"type"`
	Message  string    `json:"message"`
	Internal string    `json:"internal,omitempty"`
}

func (a AppError) Error() string {
	return fmt.Sprintf("%s: %s", a.Type, a.Message)
}

func (a AppError) Serialize(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(a.Code)
	if err := json.NewEncoder(w).Encode(a); err != nil {
		panic(a)
	}
}

func Is(err, target error) bool {
	return errors.Is(err, target)
}

// IsType reports whether err is an AppError of the given taxonomy class.
func IsType(err error, t ErrorType) bool {
	apperr := new(AppError)
	return errors.As(err, apperr) && apperr.Type == t
}

func HandleDataDBError(err error) AppError {
	if Is(err, sql.ErrNoRows) {
		return NewNotFoundError("resource not found")
	}
	return NewPersistenceError(err)
}

func HandleBindError(err error) AppError {
	if errors.As(err, &AppError{}) {
		return AsAppError(err)
	}

	if v, ok := err.(validator.ValidationErrors); ok {
		var message string
		switch v[0].ActualTag() {
		case "required":
			message = fmt.Sprintf("%s is requried", v[0].Field())
		case "required_without":
			message = fmt.Sprintf("%s is requried when %s is not provided", v[0].Field(), v[0].Param())
		case "oneof":
			message = fmt.Sprintf("%s must be one of values: (%s), value received: %s", v[0].Field(), v[0].Param(), v[0].Value())
		case "gt":
			message = fmt.Sprintf("%s must be greater than (%s), value received: %s", v[0].Field(), v[0].Param(), v[0].Value())
		default:
			message = fmt.Sprintf("Validation failed on field { %s }, Condition: %s", v[0].Field(), v[0].ActualTag())
			if v[0].Param() != "" {
				message += fmt.Sprintf("{ %s }", v[0].Param())
			}
			if v[0].Value() != "" && v[0].Value() != nil {
				message += fmt.Sprintf(", Value Recieved: %v", v[0].Value())
			}
		}

		return AppError{
			Code:     http.StatusBadRequest,
			Type:     ErrValidation,
			Message:  message,
			Internal: err.Error(),
		}
	}
	if Is(err, io.EOF) {
		return NewValidationError("No request body")
	}

	vErr := NewValidationError("invalid request received")
	vErr.Internal = err.Error()

	return vErr
}

func NewValidationError(msg string) AppError {
	return AppError{
		Code:    http.StatusBadRequest,
		Type:    ErrValidation,
		Message: msg,
	}
}

func NewNotFoundError(msg string) AppError {
	return AppError{
		Code:    http.StatusNotFound,
		Type:    ErrNotFound,
		Message: msg,
	}
}

func NewAuthorizationError(msg string) AppError {
	return AppError{
		Code:    http.StatusForbidden,
		Type:    ErrAuthorization,
		Message: msg,
	}
}

func NewAuthenticationError(msg string) AppError {
	return AppError{
		Code:    http.StatusUnauthorized,
		Type:    ErrAuthentication,
		Message: msg,
	}
}

func NewInvalidTokenError() AppError {
	return AppError{
		Code:    http.StatusUnauthorized,
		Type:    ErrInvalidToken,
		Message: "Invalid token",
	}
}

// NewUpstreamRejectedError wraps a non-retryable rejection from the exchange,
// keeping the upstream's human-readable reason when it supplied one.
func NewUpstreamRejectedError(msg string) AppError {
	if msg == "" {
		msg = "request rejected by exchange"
	}
	return AppError{
		Code:    http.StatusFailedDependency,
		Type:    ErrUpstreamRejected,
		Message: msg,
	}
}

// NewServiceUnavailableError is raised after retry exhaustion on transient
// transport failures.
func NewServiceUnavailableError(err error) AppError {
	return AppError{
		Code:     http.StatusServiceUnavailable,
		Type:     ErrServiceUnavailable,
		Message:  "exchange service is unreachable, try again shortly",
		Internal: err.Error(),
	}
}

func NewPersistenceError(err error) AppError {
	return AppError{
		Code:     http.StatusInternalServerError,
		Type:     ErrPersistence,
		Message:  "Oops! something happened on our end.",
		Internal: err.Error(),
	}
}

func NewFatalError(err error) AppError {
	debug.PrintStack()
	return AppError{
		Code:     http.StatusInternalServerError,
		Type:     ErrFatal,
		Message:  "Oops! something happened on our end.",
		Internal: err.Error(),
	}
}

func NewUnknownError(err any) AppError {
	return NewFatalError(fmt.Errorf("%v", err))
}

func AsAppError(err error) AppError {
	apperr := new(AppError)
	if errors.As(err, apperr) {
		return *apperr
	}
	return NewFatalError(err)
}
