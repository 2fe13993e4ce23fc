package utils

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

const (
	msgUnauthorized = "authentication required"
	msgForbidden    = "you do not have permission to perform this action"
	msgInternal     = "internal server error"
)

// AppError carries an HTTP status and a client-safe message from services to controllers.
// Err is the underlying cause and is only ever logged.
type AppError struct {
	Status  int
	Message string
	Fields  []FieldError
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

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func ValidationError(message string, fields ...FieldError) *AppError {
	return &AppError{Status: http.StatusBadRequest, Message: message, Fields: fields}
}

func Unauthorized(cause error) *AppError {
	return &AppError{Status: http.StatusUnauthorized, Message: msgUnauthorized, Err: cause}
}

func Forbidden(cause error) *AppError {
	return &AppError{Status: http.StatusForbidden, Message: msgForbidden, Err: cause}
}

func NotFound(resource string) *AppError {
	return &AppError{Status: http.StatusNotFound, Message: resource + " not found"}
}

func Conflict(message string) *AppError {
	return &AppError{Status: http.StatusConflict, Message: message}
}

// Upstream wraps a failure of an integration (mail, media, broker). Clients see a generic 500.
func Upstream(service string, cause error) *AppError {
	return &AppError{Status: http.StatusBadGateway, Message: service + " unavailable", Err: cause}
}

func Internal(cause error) *AppError {
	return &AppError{Status: http.StatusInternalServerError, Message: msgInternal, Err: cause}
}

// HandleError logs err with request context and writes the matching error envelope.
// Only validation, not-found and conflict errors expose their message to the client.
func HandleError(c *gin.Context, err error) {
	var appErr *AppError
	if !errors.As(err, &appErr) {
		appErr = Internal(err)
	}

	fields := logrus.Fields{
		"method": c.Request.Method,
		"path":   c.Request.URL.Path,
		"status": appErr.Status,
	}
	if appErr.Err != nil {
		fields["cause"] = appErr.Err.Error()
	}

	status := appErr.Status
	message := appErr.Message
	switch {
	case status == http.StatusUnauthorized:
		message = msgUnauthorized
		ErrorLogger.WithFields(fields).Warn(appErr.Message)
	case status == http.StatusForbidden:
		message = msgForbidden
		ErrorLogger.WithFields(fields).Warn(appErr.Message)
	case status >= http.StatusInternalServerError:
		status = http.StatusInternalServerError
		message = msgInternal
		ErrorLogger.WithFields(fields).Error(appErr.Message)
	default:
		InfoLogger.WithFields(fields).Info(appErr.Message)
	}

	RespondError(c, status, message, appErr.Fields)
}
