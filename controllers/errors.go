package controllers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/snackline-api/services"
	"github.com/kendall-kelly/snackline-api/utils"
	"go.uber.org/zap"
)

// statusFor maps a service error kind to its HTTP status
func statusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, services.ErrInsufficientStock),
		errors.Is(err, services.ErrOrderTerminal),
		errors.Is(err, services.ErrInvalidCancellation),
		errors.Is(err, services.ErrDeleteNotAllowed),
		errors.Is(err, services.ErrDuplicateFeedback),
		errors.Is(err, services.ErrOrderNotEligible),
		errors.Is(err, services.ErrIdempotencyConflict),
		errors.Is(err, services.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes err inside the error envelope. Errors without a code
// are logged and hidden behind a generic INTERNAL_ERROR.
func respondError(c *gin.Context, logger *zap.Logger, err error) {
	var uploadErr *utils.FileUploadError
	if errors.As(err, &uploadErr) {
		abortWithError(c, http.StatusBadRequest, uploadErr.Code, uploadErr.Message)
		return
	}

	var serviceErr *services.ServiceError
	if errors.As(err, &serviceErr) {
		abortWithError(c, statusFor(err), serviceErr.Code, serviceErr.Message)
		return
	}

	logger.Error("request failed",
		zap.String("method", c.Request.Method),
		zap.String("path", c.FullPath()),
		zap.Error(err),
	)
	abortWithError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred")
}

func abortWithError(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, gin.H{
		"success": false,
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	})
}

// respondValidation reports a request body or query that failed binding
func respondValidation(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
		"success": false,
		"error": gin.H{
			"code":    services.CodeValidation,
			"message": "Invalid request data",
			"details": err.Error(),
		},
	})
}

func respondOK(c *gin.Context, status int, data interface{}) {
	c.JSON(status, gin.H{
		"success": true,
		"data":    data,
	})
}

// parseID reads a positive numeric path parameter
func parseID(c *gin.Context, param string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(param), 10, 64)
	if err != nil || id == 0 {
		abortWithError(c, http.StatusBadRequest, "INVALID_ID", "Invalid "+param+" format")
		return 0, false
	}
	return uint(id), true
}

// queryUint reads an optional numeric query parameter; 0 when absent
func queryUint(c *gin.Context, key string) (uint, bool) {
	raw := c.Query(key)
	if raw == "" {
		return 0, true
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		abortWithError(c, http.StatusBadRequest, services.CodeValidation, key+" must be a positive integer")
		return 0, false
	}
	return uint(v), true
}
