package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"realtime-service/internal/middleware"
	"realtime-service/internal/models"
	"realtime-service/internal/repositories"
)

// DeviceHandler registers and revokes push tokens.
type DeviceHandler struct {
	tokens repositories.DeviceTokenRepository
	logger *zap.Logger
}

// NewDeviceHandler builds a DeviceHandler.
func NewDeviceHandler(tokens repositories.DeviceTokenRepository, logger *zap.Logger) *DeviceHandler {
	return &DeviceHandler{tokens: tokens, logger: logger.Named("devices")}
}

// Register stores a push token for the caller.
func (h *DeviceHandler) Register(c *gin.Context) {
	var req struct {
		Token      string `json:"token" binding:"required,max=512"`
		Platform   string `json:"platform" binding:"required,oneof=ios android web"`
		DeviceName string `json:"device_name" binding:"max=100"`
		AppVersion string `json:"app_version" binding:"max=20"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	stored, err := h.tokens.RegisterDeviceToken(c.Request.Context(), models.DeviceToken{
		UserID:     c.GetString(middleware.UserIDKey),
		Token:      req.Token,
		Platform:   models.Platform(req.Platform),
		DeviceName: req.DeviceName,
		AppVersion: req.AppVersion,
	})
	if err != nil {
		h.logger.Error("register device token failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not register device"})
		return
	}
	c.JSON(http.StatusCreated, stored)
}

// Revoke deactivates one of the caller's push tokens.
func (h *DeviceHandler) Revoke(c *gin.Context) {
	err := h.tokens.RevokeDeviceToken(c.Request.Context(), c.GetString(middleware.UserIDKey), c.Param("token"))
	if errors.Is(err, repositories.ErrDeviceTokenNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "device not found"})
		return
	}
	if err != nil {
		h.logger.Error("revoke device token failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not revoke device"})
		return
	}
	c.Status(http.StatusNoContent)
}
