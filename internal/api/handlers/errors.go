package handlers

import (
	"fmt"
	"net/http"

	"github.com/CzarCx/qr-brain/internal/repository"
	"github.com/CzarCx/qr-brain/internal/scan"
	"github.com/CzarCx/qr-brain/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// ErrorResponse defines the structure of an error response
type ErrorResponse struct {
	Message string      `json:"message"`
	Code    string      `json:"code,omitempty"`
	Details interface{} `json:"details,omitempty"`
}

// Error represents an API error
type Error struct {
	Message    string
	StatusCode int
	Code       string
	Details    interface{}
}

// Error implements the error interface
func (e *Error) Error() string {
	return e.Message
}

// Common API errors
var (
	ErrInvalidRequest     = &Error{Message: "Invalid request", StatusCode: http.StatusBadRequest, Code: "INVALID_REQUEST"}
	ErrNotFound           = &Error{Message: "Resource not found", StatusCode: http.StatusNotFound, Code: "NOT_FOUND"}
	ErrInternalServer     = &Error{Message: "Internal server error", StatusCode: http.StatusInternalServerError, Code: "INTERNAL_ERROR"}
	ErrConflict           = &Error{Message: "Resource changed or already exists", StatusCode: http.StatusConflict, Code: "CONFLICT"}
	ErrServiceUnavailable = &Error{Message: "Service unavailable", StatusCode: http.StatusServiceUnavailable, Code: "SERVICE_UNAVAILABLE"}
)

// NewValidationError creates a new validation error with a custom message
func NewValidationError(message string, details interface{}) *Error {
	return &Error{
		Message:    message,
		StatusCode: http.StatusBadRequest,
		Code:       "VALIDATION_ERROR",
		Details:    details,
	}
}

// WriteError maps err onto an API error and writes it
func WriteError(c *gin.Context, err error) {
	apiErr := toAPIError(err)
	if apiErr.StatusCode >= http.StatusInternalServerError {
		log.Error().Err(err).
			Str("path", c.Request.URL.Path).
			Str("method", c.Request.Method).
			Msg("Unhandled error")
	}

	c.AbortWithStatusJSON(apiErr.StatusCode, ErrorResponse{
		Message: apiErr.Message,
		Code:    apiErr.Code,
		Details: apiErr.Details,
	})
}

func toAPIError(err error) *Error {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr
	}

	var confirm *service.ConfirmationRequiredError
	if errors.As(err, &confirm) {
		return &Error{
			Message:    confirm.Error(),
			StatusCode: http.StatusConflict,
			Code:       "CONFIRMATION_REQUIRED",
			Details:    confirm,
		}
	}

	var invalid *service.ValidationError
	if errors.As(err, &invalid) {
		return NewValidationError(invalid.Error(), nil)
	}

	var fields validator.ValidationErrors
	if errors.As(err, &fields) {
		return NewValidationError("Validation error", fieldErrors(fields))
	}

	switch {
	case errors.Is(err, scan.ErrSessionNotFound):
		return &Error{Message: "Session not found", StatusCode: http.StatusNotFound, Code: "SESSION_NOT_FOUND"}
	case errors.Is(err, repository.ErrNotFound):
		return &Error{Message: err.Error(), StatusCode: http.StatusNotFound, Code: ErrNotFound.Code}
	case errors.Is(err, repository.ErrConflict), errors.Is(err, repository.ErrDuplicateKey):
		return &Error{Message: err.Error(), StatusCode: http.StatusConflict, Code: ErrConflict.Code}
	case errors.Is(err, service.ErrSearchDisabled):
		return &Error{Message: err.Error(), StatusCode: http.StatusServiceUnavailable, Code: ErrServiceUnavailable.Code}
	}

	return ErrInternalServer
}

// fieldErrors renders validator failures as field -> message
func fieldErrors(errs validator.ValidationErrors) map[string]string {
	out := make(map[string]string, len(errs))
	for _, fe := range errs {
		field := fe.Field()
		if fe.Param() != "" {
			out[field] = fmt.Sprintf("failed on '%s' (%s)", fe.Tag(), fe.Param())
		} else {
			out[field] = fmt.Sprintf("failed on '%s'", fe.Tag())
		}
	}
	return out
}
