package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"realtime-service/internal/apperr"
)

// writeError maps a service error onto a JSON error response. Internal
// causes are logged and never returned to the caller.
func writeError(c *gin.Context, logger *zap.Logger, err error) {
	status := apperr.HTTPStatus(err)
	if status == http.StatusInternalServerError {
		logger.Error("request failed",
			zap.String("path", c.FullPath()),
			zap.String("request_id", requestIDFromContext(c)),
			zap.Error(err))
	}
	c.JSON(status, gin.H{"error": apperr.PublicMessage(err)})
}

// uuidParam reads a path parameter that must be a UUID.
func uuidParam(c *gin.Context, name string) (string, bool) {
	val := c.Param(name)
	if _, err := uuid.Parse(val); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return "", false
	}
	return val, true
}
