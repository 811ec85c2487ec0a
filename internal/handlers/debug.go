package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"realtime-service/internal/notifications"
	"realtime-service/internal/telemetry"
)

// RegisterDebugRoutes wires debug-only endpoints.
func RegisterDebugRoutes(router gin.IRouter, emitter *telemetry.AuditEmitter, cleaner *notifications.Cleaner, enabled bool) {
	if !enabled {
		return
	}

	router.GET("/debug/audit-test", func(c *gin.Context) {
		if emitter == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "audit emitter not configured"})
			return
		}
		emitter.Emit(c.Request.Context(), "INFO", "audit test", requestIDFromContext(c), userIDFromContext(c), nil)
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.GET("/debug/cleanup", func(c *gin.Context) {
		if cleaner == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "cleanup not configured"})
			return
		}
		report, err := cleaner.DryRun(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "dry run failed", "report": report})
			return
		}
		c.JSON(http.StatusOK, report)
	})
}
