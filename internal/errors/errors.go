// Package errors defines the application error taxonomy with HTTP context.
package errors

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Error codes used across the application
const (
	CodeVideoNotFound     = "VIDEO_NOT_FOUND"
	CodeInvalidPath       = "INVALID_PATH"
	CodeFileBrowse        = "FILE_BROWSE_ERROR"
	CodeDatabaseOperation = "DATABASE_ERROR"
	CodeInputValidation   = "VALIDATION_ERROR"
	CodeFileMissing       = "FILE_MISSING"
	CodeThumbnail         = "THUMBNAIL_ERROR"
)

// AppError represents a structured error with HTTP context
type AppError struct {
	Code       string                 `json:"code"`
	Message    string                 `json:"message"`
	Context    map[string]interface{} `json:"context,omitempty"`
	Cause      error                  `json:"-"`
	HTTPStatus int                    `json:"-"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is matches errors by code so callers can compare against sentinel
// constructors without carrying context.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	return ok && t.Code == e.Code
}

// ToGinResponse sends the error as a standardized JSON response
func (e *AppError) ToGinResponse(c *gin.Context) {
	statusCode := e.HTTPStatus
	if statusCode == 0 {
		statusCode = http.StatusInternalServerError
	}

	response := gin.H{
		"error": e.Message,
		"code":  e.Code,
	}
	if len(e.Context) > 0 {
		response["details"] = e.Context
	}

	c.JSON(statusCode, response)
}

// NewVideoNotFound reports a video record absent from the catalog
func NewVideoNotFound(id string) *AppError {
	return &AppError{
		Code:       CodeVideoNotFound,
		Message:    "video not found",
		HTTPStatus: http.StatusNotFound,
		Context:    map[string]interface{}{"id": id},
	}
}

// NewFileMissing reports a catalog record whose backing file is gone from
// disk, distinct from a record that never existed.
func NewFileMissing(path string) *AppError {
	return &AppError{
		Code:       CodeFileMissing,
		Message:    "video file does not exist on disk",
		HTTPStatus: http.StatusNotFound,
		Context:    map[string]interface{}{"path": path},
	}
}

// NewInvalidPath reports an unknown pseudo-root or malformed relative path
func NewInvalidPath(path string) *AppError {
	return &AppError{
		Code:       CodeInvalidPath,
		Message:    "invalid path",
		HTTPStatus: http.StatusBadRequest,
		Context:    map[string]interface{}{"path": path},
	}
}

// NewFileBrowse reports a filesystem access failure during browsing
func NewFileBrowse(path string, cause error) *AppError {
	return &AppError{
		Code:       CodeFileBrowse,
		Message:    "error accessing directory",
		HTTPStatus: http.StatusInternalServerError,
		Context:    map[string]interface{}{"path": path},
		Cause:      cause,
	}
}

// NewDatabaseOperation wraps a store-layer failure with the attempted
// operation name and enough context to reproduce it.
func NewDatabaseOperation(operation string, details string, cause error) *AppError {
	return &AppError{
		Code:       CodeDatabaseOperation,
		Message:    "database operation failed",
		HTTPStatus: http.StatusInternalServerError,
		Context:    map[string]interface{}{"operation": operation, "details": details},
		Cause:      cause,
	}
}

// NewInputValidation reports a malformed or out-of-bound request payload
func NewInputValidation(field string, issue string) *AppError {
	return &AppError{
		Code:       CodeInputValidation,
		Message:    "invalid input: " + issue,
		HTTPStatus: http.StatusBadRequest,
		Context:    map[string]interface{}{"field": field},
	}
}

// NewThumbnail reports a failed thumbnail generation after all retries
func NewThumbnail(path string, cause error) *AppError {
	return &AppError{
		Code:       CodeThumbnail,
		Message:    "failed to generate thumbnail",
		HTTPStatus: http.StatusInternalServerError,
		Context:    map[string]interface{}{"path": path},
		Cause:      cause,
	}
}

// HandleError sends err as a gin response, mapping unknown errors to 500
func HandleError(c *gin.Context, err error) {
	if appErr, ok := err.(*AppError); ok {
		appErr.ToGinResponse(c)
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{
		"error": "internal server error",
		"code":  "INTERNAL_ERROR",
	})
}
