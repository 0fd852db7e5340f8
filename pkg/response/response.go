package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/huangang/perfsentry/internal/domain"
)

// Response is the envelope of every API reply. Code is 0 on success and the
// HTTP status otherwise.
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// AppError carries the status a handler wants to answer with.
type AppError struct {
	HTTPStatus int
	Code       int
	Message    string
}

func (e *AppError) Error() string {
	return e.Message
}

func newAppError(status int, msg string) *AppError {
	return &AppError{HTTPStatus: status, Code: status, Message: msg}
}

// Unavailable reports a feature that is switched off in this deployment.
func Unavailable(msg string) *AppError {
	return newAppError(http.StatusServiceUnavailable, msg)
}

func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{Message: "ok", Data: data})
}

func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Response{Message: "created", Data: data})
}

// FromDomain maps err onto a status by the domain sentinel it wraps.
// Anything unrecognised is a 500 whose text is not exposed.
func FromDomain(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	for _, m := range domainStatus {
		if errors.Is(err, m.sentinel) {
			return newAppError(m.status, err.Error())
		}
	}
	return newAppError(http.StatusInternalServerError, "internal server error")
}

var domainStatus = []struct {
	sentinel error
	status   int
}{
	{domain.ErrValidation, http.StatusBadRequest},
	{domain.ErrNotAuthorized, http.StatusForbidden},
	{domain.ErrNotFound, http.StatusNotFound},
	{domain.ErrInvalidStateTransition, http.StatusConflict},
	{domain.ErrConflict, http.StatusConflict},
}

// Error answers with the status FromDomain picks. Server errors are also
// attached to the context so the request logger prints them.
func Error(c *gin.Context, err error) {
	appErr := FromDomain(err)
	if appErr.HTTPStatus >= http.StatusInternalServerError {
		_ = c.Error(err)
	}
	fail(c, appErr.HTTPStatus, appErr.Message)
}

func BadRequest(c *gin.Context, msg string)      { fail(c, http.StatusBadRequest, msg) }
func Unauthorized(c *gin.Context, msg string)    { fail(c, http.StatusUnauthorized, msg) }
func Forbidden(c *gin.Context, msg string)       { fail(c, http.StatusForbidden, msg) }
func TooManyRequests(c *gin.Context, msg string) { fail(c, http.StatusTooManyRequests, msg) }

func fail(c *gin.Context, status int, msg string) {
	c.JSON(status, Response{Code: status, Message: msg})
}
