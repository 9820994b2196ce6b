package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Error represents an application error carrying the HTTP status it maps to.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"error"`
	Err     error  `json:"-"`
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error
func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a new Error
func New(code int, message string, err error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

func BadRequest(message string) *Error { return New(http.StatusBadRequest, message, nil) }
func NotFound(message string) *Error   { return New(http.StatusNotFound, message, nil) }
func Forbidden(message string) *Error  { return New(http.StatusForbidden, message, nil) }
func Conflict(message string) *Error   { return New(http.StatusConflict, message, nil) }

func Unprocessable(message string) *Error {
	return New(http.StatusUnprocessableEntity, message, nil)
}

// Internal hides the cause from clients; callers log err before returning.
func Internal(message string, err error) *Error {
	return New(http.StatusInternalServerError, message, err)
}

// Common error types
var (
	ErrBadRequest         = New(http.StatusBadRequest, "Bad request", nil)
	ErrUnauthorized       = New(http.StatusUnauthorized, "Unauthorized", nil)
	ErrForbidden          = New(http.StatusForbidden, "Forbidden", nil)
	ErrNotFound           = New(http.StatusNotFound, "Not found", nil)
	ErrMethodNotAllowed   = New(http.StatusMethodNotAllowed, "Method not allowed", nil)
	ErrInternalServer     = New(http.StatusInternalServerError, "Internal server error", nil)
	ErrServiceUnavailable = New(http.StatusServiceUnavailable, "Service unavailable", nil)
)

// Authentication error types
var (
	ErrMissingToken = New(http.StatusUnauthorized, "Missing bearer token", nil)
	ErrInvalidToken = New(http.StatusUnauthorized, "Invalid token", nil)
	ErrAdminOnly    = New(http.StatusForbidden, "Admin role required", nil)
)

// As extracts an *Error from err, falling back to a 500.
func As(err error) *Error {
	var appErr *Error
	if stderrors.As(err, &appErr) {
		return appErr
	}
	return New(http.StatusInternalServerError, ErrInternalServer.Message, err)
}

// Respond writes the {"error": message} body used by every endpoint.
func Respond(c *gin.Context, err *Error) {
	c.AbortWithStatusJSON(err.Code, gin.H{"error": err.Message})
}

// ErrorMiddleware renders the last error pushed with c.Error when the
// handler did not write a response itself.
func ErrorMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}
		Respond(c, As(c.Errors.Last().Err))
	}
}
