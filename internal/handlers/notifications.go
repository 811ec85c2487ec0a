package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"realtime-service/internal/middleware"
	"realtime-service/internal/models"
	"realtime-service/internal/notifications"
)

// NotificationHandler serves notification settings, listing and stats.
type NotificationHandler struct {
	dispatcher *notifications.Dispatcher
	logger     *zap.Logger
}

// NewNotificationHandler builds a NotificationHandler.
func NewNotificationHandler(dispatcher *notifications.Dispatcher, logger *zap.Logger) *NotificationHandler {
	return &NotificationHandler{dispatcher: dispatcher, logger: logger.Named("notifications")}
}

// settingsPatch carries only the fields the client wants to change.
type settingsPatch struct {
	LikesEnabled       *bool             `json:"likes_enabled"`
	CommentsEnabled    *bool             `json:"comments_enabled"`
	FollowsEnabled     *bool             `json:"follows_enabled"`
	MessagesEnabled    *bool             `json:"messages_enabled"`
	MentionsEnabled    *bool             `json:"mentions_enabled"`
	PostUploadsEnabled *bool             `json:"post_uploads_enabled"`
	PushEnabled        *bool             `json:"push_enabled"`
	EmailEnabled       *bool             `json:"email_enabled"`
	InAppEnabled       *bool             `json:"in_app_enabled"`
	QuietHoursEnabled  *bool             `json:"quiet_hours_enabled"`
	QuietHoursStart    *models.TimeOfDay `json:"quiet_hours_start"`
	QuietHoursEnd      *models.TimeOfDay `json:"quiet_hours_end"`
}

func (p settingsPatch) apply(s *models.NotificationSettings) {
	setBool(&s.LikesEnabled, p.LikesEnabled)
	setBool(&s.CommentsEnabled, p.CommentsEnabled)
	setBool(&s.FollowsEnabled, p.FollowsEnabled)
	setBool(&s.MessagesEnabled, p.MessagesEnabled)
	setBool(&s.MentionsEnabled, p.MentionsEnabled)
	setBool(&s.PostUploadsEnabled, p.PostUploadsEnabled)
	setBool(&s.PushEnabled, p.PushEnabled)
	setBool(&s.EmailEnabled, p.EmailEnabled)
	setBool(&s.InAppEnabled, p.InAppEnabled)
	setBool(&s.QuietHoursEnabled, p.QuietHoursEnabled)
	if p.QuietHoursStart != nil {
		s.QuietHoursStart = p.QuietHoursStart
	}
	if p.QuietHoursEnd != nil {
		s.QuietHoursEnd = p.QuietHoursEnd
	}
}

func setBool(dst *bool, val *bool) {
	if val != nil {
		*dst = *val
	}
}

// GetSettings returns the caller's settings, creating defaults on first use.
func (h *NotificationHandler) GetSettings(c *gin.Context) {
	settings, err := h.dispatcher.Settings(c.Request.Context(), c.GetString(middleware.UserIDKey))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, settings)
}

// UpdateSettings applies a partial update to the caller's settings.
func (h *NotificationHandler) UpdateSettings(c *gin.Context) {
	var patch settingsPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	settings, err := h.dispatcher.Settings(ctx, c.GetString(middleware.UserIDKey))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	patch.apply(&settings)

	stored, err := h.dispatcher.UpdateSettings(ctx, settings)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, stored)
}

// List returns one page of the caller's notifications.
func (h *NotificationHandler) List(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", strconv.Itoa(notifications.DefaultPageSize)))

	result, err := h.dispatcher.ListPage(c.Request.Context(), c.GetString(middleware.UserIDKey), page, pageSize)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// MarkRead marks the given notifications, or all of them, as read.
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	var req struct {
		NotificationIDs []string `json:"notification_ids" binding:"omitempty,dive,uuid"`
		MarkAll         bool     `json:"mark_all"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	userID := c.GetString(middleware.UserIDKey)
	count, err := h.dispatcher.MarkRead(ctx, userID, req.NotificationIDs, req.MarkAll)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	h.dispatcher.PublishUnreadCount(ctx, userID)
	c.JSON(http.StatusOK, models.MarkReadResponseEvent{Type: models.EventMarkReadResponse, MarkedCount: count, Success: true})
}

// Stats returns totals by type and the unread count.
func (h *NotificationHandler) Stats(c *gin.Context) {
	stats, err := h.dispatcher.UserStats(c.Request.Context(), c.GetString(middleware.UserIDKey))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}
