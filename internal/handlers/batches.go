package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"realtime-service/internal/middleware"
	"realtime-service/internal/models"
	"realtime-service/internal/notifications"
	"realtime-service/internal/telemetry"
)

// BatchHandler exposes administrative notification batches.
type BatchHandler struct {
	sender *notifications.BatchSender
	audit  *telemetry.AuditEmitter
	logger *zap.Logger
}

// NewBatchHandler builds a BatchHandler. A nil audit emitter disables auditing.
func NewBatchHandler(sender *notifications.BatchSender, audit *telemetry.AuditEmitter, logger *zap.Logger) *BatchHandler {
	return &BatchHandler{sender: sender, audit: audit, logger: logger.Named("batches")}
}

// Create stores a draft batch.
func (h *BatchHandler) Create(c *gin.Context) {
	var req struct {
		Title         string                  `json:"title" binding:"required,max=200"`
		Body          string                  `json:"body"`
		Type          models.NotificationType `json:"notification_type"`
		TargetUserIDs []string                `json:"target_user_ids"`
		Filter        models.UserFilter       `json:"filter"`
		ScheduledAt   *time.Time              `json:"scheduled_at"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	batch, err := h.sender.CreateBatch(c.Request.Context(), models.NotificationBatch{
		Title:         req.Title,
		Body:          req.Body,
		Type:          req.Type,
		TargetUserIDs: req.TargetUserIDs,
		Filter:        req.Filter,
		Status:        models.BatchDraft,
		CreatedBy:     c.GetString(middleware.UserIDKey),
		ScheduledAt:   req.ScheduledAt,
	})
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	h.audit.Emit(c.Request.Context(), "INFO", "notification batch created", requestIDFromContext(c), userIDFromContext(c),
		map[string]string{"batch_id": batch.ID})
	c.JSON(http.StatusCreated, batch)
}

// Send delivers a draft batch.
func (h *BatchHandler) Send(c *gin.Context) {
	batchID, ok := uuidParam(c, "batch_id")
	if !ok {
		return
	}

	sent, err := h.sender.Send(c.Request.Context(), batchID)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	h.audit.Emit(c.Request.Context(), "INFO", "notification batch sent", requestIDFromContext(c), userIDFromContext(c),
		map[string]string{"batch_id": batchID})
	c.JSON(http.StatusOK, gin.H{"batch_id": batchID, "sent": sent})
}
