package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "github.com/assiworks/opening-registration/pkg/errors"
)

// Failure is the error envelope: {"ok": false, "message": "..."}.
type Failure struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// OK sends a 200 JSON response. The fields are flattened next to "ok": true.
func OK(c *gin.Context, fields gin.H) {
	c.JSON(http.StatusOK, withOK(fields, true))
}

// Created sends a 201 JSON response.
func Created(c *gin.Context, fields gin.H) {
	c.JSON(http.StatusCreated, withOK(fields, true))
}

// Fail sends an error envelope with an explicit status.
func Fail(c *gin.Context, status int, message string) {
	c.JSON(status, Failure{OK: false, Message: message})
}

// FailWith sends {"ok": false, "message": ...} plus extra fields, used when a
// partially completed request still has results worth reporting.
func FailWith(c *gin.Context, status int, message string, fields gin.H) {
	body := withOK(fields, false)
	body["message"] = message
	c.JSON(status, body)
}

// BadRequest sends 400.
func BadRequest(c *gin.Context, message string) {
	Fail(c, http.StatusBadRequest, message)
}

// Unauthorized sends 401.
func Unauthorized(c *gin.Context, message string) {
	Fail(c, http.StatusUnauthorized, message)
}

// NotFound sends 404.
func NotFound(c *gin.Context, message string) {
	Fail(c, http.StatusNotFound, message)
}

// MethodNotAllowed sends 405.
func MethodNotAllowed(c *gin.Context) {
	Fail(c, http.StatusMethodNotAllowed, "method not allowed")
}

// Internal sends 500.
func Internal(c *gin.Context, message string) {
	Fail(c, http.StatusInternalServerError, message)
}

// Error renders any error through the AppError taxonomy. Internal causes are
// never written to the response.
func Error(c *gin.Context, err error) {
	appErr := apperrors.FromError(err)
	c.JSON(appErr.StatusCode, Failure{OK: false, Message: appErr.Message, Code: appErr.Code})
}

func withOK(fields gin.H, ok bool) gin.H {
	out := make(gin.H, len(fields)+1)
	for k, v := range fields {
		out[k] = v
	}
	out["ok"] = ok
	return out
}
