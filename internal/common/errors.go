package common

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gofiber/fiber/v2"
)

// Error kinds. Every failure raised by the service layer wraps exactly one.
var (
	ErrBadRequest      = errors.New("bad request")
	ErrConflict        = errors.New("conflict")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrNotFound        = errors.New("not found")
	ErrServerError     = errors.New("server error")
)

// Error carries a kind, a message that is safe to show to clients, and an
// optional underlying cause.
type Error struct {
	Kind    error
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap exposes both the kind and the cause to errors.Is / errors.As.
func (e *Error) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Kind, e.Err}
	}
	return []error{e.Kind}
}

func newError(kind error, msg string, cause error) *Error {
	return &Error{Kind: kind, Message: msg, Err: cause}
}

func BadRequest(msg string) error      { return newError(ErrBadRequest, msg, nil) }
func Conflict(msg string) error        { return newError(ErrConflict, msg, nil) }
func Unauthorized(msg string) error    { return newError(ErrUnauthorized, msg, nil) }
func Unauthenticated(msg string) error { return newError(ErrUnauthenticated, msg, nil) }
func NotFound(msg string) error        { return newError(ErrNotFound, msg, nil) }

// ServerError wraps a downstream failure. The cause is logged, never shown.
func ServerError(msg string, cause error) error {
	return newError(ErrServerError, msg, cause)
}

// Wrap attaches a cause to an error of the given kind.
func Wrap(kind error, msg string, cause error) error {
	return newError(kind, msg, cause)
}

// HTTPStatusFromError maps error kinds to HTTP status codes.
func HTTPStatusFromError(err error) int {
	if err == nil {
		return http.StatusOK
	}

	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return fiberErr.Code
	}

	switch {
	case errors.Is(err, ErrBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrUnauthorized), errors.Is(err, ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

// PublicMessage returns the message that may be sent to the client for err.
func PublicMessage(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return fiberErr.Message
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "Request timed out, please try again"
	}
	return "Something went wrong, please try again"
}
