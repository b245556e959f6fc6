// pkg/response/response.go
package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// StandardResponse represents a standard API response
type StandardResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// Success sends a successful response
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, StandardResponse{
		Success: true,
		Data:    data,
	})
}

// SuccessWithMessage sends a successful response with a message
func SuccessWithMessage(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusOK, StandardResponse{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// BadRequest sends a bad request error response
func BadRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, StandardResponse{
		Success: false,
		Message: message,
	})
	c.Abort()
}

// Unauthorized sends an unauthorized error response
func Unauthorized(c *gin.Context, message string) {
	if message == "" {
		message = "Unauthorized"
	}
	c.JSON(http.StatusUnauthorized, StandardResponse{
		Success: false,
		Message: message,
	})
	c.Abort()
}

// NotFound sends a not found error response
func NotFound(c *gin.Context, message string) {
	if message == "" {
		message = "Resource not found"
	}
	c.JSON(http.StatusNotFound, StandardResponse{
		Success: false,
		Message: message,
	})
	c.Abort()
}

// Conflict sends a conflict error response
func Conflict(c *gin.Context, message string) {
	c.JSON(http.StatusConflict, StandardResponse{
		Success: false,
		Message: message,
	})
	c.Abort()
}

// GatewayTimeout sends a gateway timeout error response
func GatewayTimeout(c *gin.Context, message string) {
	c.JSON(http.StatusGatewayTimeout, StandardResponse{
		Success: false,
		Message: message,
	})
	c.Abort()
}

// InternalError sends an internal server error response
func InternalError(c *gin.Context, message string) {
	if message == "" {
		message = "Internal server error"
	}
	c.JSON(http.StatusInternalServerError, StandardResponse{
		Success: false,
		Message: message,
	})
	c.Abort()
}

// ErrorResponse sends a generic error response with a specific status code
func ErrorResponse(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, StandardResponse{
		Success: false,
		Message: message,
	})
	c.Abort()
}
