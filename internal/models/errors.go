package models

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
)

// Error codes carried by AppError.
const (
	CodeValidation         = "VALIDATION_ERROR"
	CodeNotFound           = "NOT_FOUND"
	CodeParentNotFound     = "PARENT_NOT_FOUND"
	CodeForbidden          = "FORBIDDEN"
	CodeNotMember          = "NOT_MEMBER"
	CodeAlreadyDeleted     = "ALREADY_DELETED"
	CodeConflict           = "CONFLICT"
	CodeUnauthorized       = "UNAUTHORIZED"
	CodeTransactionFailure = "TRANSACTION_FAILURE"
	CodeInternal           = "INTERNAL_ERROR"
)

// ErrorResponse represents a standardized API error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

// AppError represents a custom application error
type AppError struct {
	Code    string
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// HTTPStatus maps the error code onto a response status.
func (e *AppError) HTTPStatus() int {
	switch e.Code {
	case CodeValidation, CodeAlreadyDeleted:
		return fiber.StatusBadRequest
	case CodeNotFound, CodeParentNotFound:
		return fiber.StatusNotFound
	case CodeForbidden, CodeNotMember:
		return fiber.StatusForbidden
	case CodeConflict:
		return fiber.StatusConflict
	case CodeUnauthorized:
		return fiber.StatusUnauthorized
	default:
		return fiber.StatusInternalServerError
	}
}

// Predefined error constructors
func NewNotFoundError(resource string, id interface{}) *AppError {
	return &AppError{
		Code:    CodeNotFound,
		Message: fmt.Sprintf("%s with ID %v not found", resource, id),
	}
}

func NewValidationError(message string) *AppError {
	return &AppError{
		Code:    CodeValidation,
		Message: message,
	}
}

func NewUnauthorizedError(message string) *AppError {
	return &AppError{
		Code:    CodeUnauthorized,
		Message: message,
	}
}

func NewForbiddenError(message string) *AppError {
	return &AppError{
		Code:    CodeForbidden,
		Message: message,
	}
}

// NewNotMemberError is the forbidden variant raised when the caller has no
// membership in the group that owns the target.
func NewNotMemberError() *AppError {
	return &AppError{
		Code:    CodeNotMember,
		Message: "You must be a member of this group",
	}
}

func NewParentNotFoundError(parentID uint) *AppError {
	return &AppError{
		Code:    CodeParentNotFound,
		Message: fmt.Sprintf("Parent reply with ID %d not found in this thread", parentID),
	}
}

func NewAlreadyDeletedError(resource string) *AppError {
	return &AppError{
		Code:    CodeAlreadyDeleted,
		Message: resource + " has already been deleted",
	}
}

func NewConflictError(message string) *AppError {
	return &AppError{
		Code:    CodeConflict,
		Message: message,
	}
}

// NewTransactionFailure wraps a store failure that aborted a multi-entity write.
func NewTransactionFailure(err error) *AppError {
	return &AppError{
		Code:    CodeTransactionFailure,
		Message: "Transaction failed",
		Err:     err,
	}
}

func NewInternalError(err error) *AppError {
	return &AppError{
		Code:    CodeInternal,
		Message: "Internal server error",
		Err:     err,
	}
}

// IsCode reports whether err carries an AppError with the given code.
func IsCode(err error, code string) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == code
}

// StatusFor returns the HTTP status for any error returned by a service.
func StatusFor(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.HTTPStatus()
	}
	return fiber.StatusInternalServerError
}

// RespondWithError creates a standardized error response
func RespondWithError(c *fiber.Ctx, status int, err error) error {
	var response ErrorResponse

	var appErr *AppError
	if errors.As(err, &appErr) {
		response = ErrorResponse{
			Error: appErr.Message,
			Code:  appErr.Code,
		}
		if appErr.Err != nil && status < fiber.StatusInternalServerError {
			response.Details = appErr.Err.Error()
		}
	} else {
		response = ErrorResponse{
			Error: err.Error(),
		}
	}

	return c.Status(status).JSON(response)
}
