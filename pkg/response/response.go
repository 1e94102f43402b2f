package response

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Machine-readable error codes. Auth codes distinguish an expired access token
// (client should refresh and retry once) from an invalid one (force re-login).
const (
	CodeBadRequest        = "bad_request"
	CodeTokenInvalid      = "token_invalid"
	CodeTokenExpired      = "token_expired"
	CodeForbidden         = "forbidden"
	CodeNotFound          = "not_found"
	CodeConflict          = "conflict"
	CodeBadRange          = "bad_range"
	CodeProcessingFailure = "processing_failure"
	CodeInternal          = "internal"
)

// Body is the standard API response envelope.
type Body struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Code    string      `json:"code,omitempty"`
}

// OK sends a 200 JSON response with data.
func OK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Body{Success: true, Data: data})
}

// Created sends a 201 JSON response with data.
func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Body{Success: true, Data: data})
}

// NoContent sends 204.
func NoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

// Fail sends an error response with an explicit status and code.
func Fail(c *gin.Context, status int, code, err string) {
	c.JSON(status, Body{Success: false, Error: err, Code: code})
}

// BadRequest sends 400 with error message.
func BadRequest(c *gin.Context, err string) {
	Fail(c, http.StatusBadRequest, CodeBadRequest, err)
}

// Unauthorized sends 401 with an auth code (token_invalid or token_expired).
func Unauthorized(c *gin.Context, code, err string) {
	Fail(c, http.StatusUnauthorized, code, err)
}

// Forbidden sends 403.
func Forbidden(c *gin.Context, err string) {
	Fail(c, http.StatusForbidden, CodeForbidden, err)
}

// ForbiddenCode sends 403 with an explicit code.
func ForbiddenCode(c *gin.Context, code, err string) {
	Fail(c, http.StatusForbidden, code, err)
}

// NotFound sends 404.
func NotFound(c *gin.Context, err string) {
	Fail(c, http.StatusNotFound, CodeNotFound, err)
}

// Conflict sends 409.
func Conflict(c *gin.Context, err string) {
	Fail(c, http.StatusConflict, CodeConflict, err)
}

// RangeNotSatisfiable sends 416 with the Content-Range total-size form.
func RangeNotSatisfiable(c *gin.Context, size int64) {
	c.Header("Content-Range", fmt.Sprintf("bytes */%d", size))
	Fail(c, http.StatusRequestedRangeNotSatisfiable, CodeBadRange, "requested range not satisfiable")
}

// ProcessingFailure sends 500 with the processing_failure code. The job itself is
// recorded as failed on the entity and is retryable.
func ProcessingFailure(c *gin.Context, err string) {
	Fail(c, http.StatusInternalServerError, CodeProcessingFailure, err)
}

// ServiceUnavailable sends 503.
func ServiceUnavailable(c *gin.Context, err string) {
	Fail(c, http.StatusServiceUnavailable, CodeInternal, err)
}

// Internal sends 500.
func Internal(c *gin.Context, err string) {
	Fail(c, http.StatusInternalServerError, CodeInternal, err)
}
