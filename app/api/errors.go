package api

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"ragassist/types"
)

// ErrorHandler renders every error returned by a handler as JSON. Domain
// errors are mapped to a status by their sentinel.
func ErrorHandler(c *fiber.Ctx, err error) error {
	var apiError Error
	if errors.As(err, &apiError) {
		return c.Status(apiError.Code).JSON(apiError)
	}
	var valError ValidationError
	if errors.As(err, &valError) {
		return c.Status(valError.Status).JSON(valError)
	}

	apiError = NewError(statusFor(err), err.Error())
	level := slog.LevelWarn
	if apiError.Code >= fiber.StatusInternalServerError {
		level = slog.LevelError
	}
	slog.Log(c.UserContext(), level, "request failed",
		"method", c.Method(), "path", c.Path(), "code", apiError.Code, "error", apiError.Message)
	return c.Status(apiError.Code).JSON(apiError)
}

func statusFor(err error) int {
	var fiberError *fiber.Error
	switch {
	case errors.As(err, &fiberError):
		return fiberError.Code
	case errors.Is(err, types.ErrChunking),
		errors.Is(err, types.ErrUnsupportedKind),
		errors.Is(err, types.ErrLoad):
		return fiber.StatusBadRequest
	case errors.Is(err, types.ErrEmbedding),
		errors.Is(err, types.ErrGeneration),
		errors.Is(err, types.ErrSearch):
		return fiber.StatusBadGateway
	default:
		// storage failures and dimension mismatches included
		return fiber.StatusInternalServerError
	}
}

type Error struct {
	Code    int    `json:"code"`
	Message string `json:"error"`
}

type ValidationError struct {
	Status int               `json:"status"`
	Errors map[string]string `json:"errors"`
}

func (e ValidationError) Error() string {
	return "validation failed"
}

func NewValidationError(errors map[string]string) ValidationError {
	return ValidationError{
		Status: fiber.StatusUnprocessableEntity,
		Errors: errors,
	}
}

// Error implements the Error interface
func (e Error) Error() string {
	return e.Message
}

func NewError(code int, err string) Error {
	return Error{
		Code:    code,
		Message: err,
	}
}

func ErrBadRequest() Error {
	return Error{
		Code:    fiber.StatusBadRequest,
		Message: "invalid JSON request",
	}
}

func ErrMissingFile(field string) Error {
	return Error{
		Code:    fiber.StatusBadRequest,
		Message: fmt.Sprintf("multipart field %q is required", field),
	}
}
