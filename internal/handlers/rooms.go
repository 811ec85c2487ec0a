package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"realtime-service/internal/chat"
	"realtime-service/internal/middleware"
)

// RoomHandler manages chat room endpoints.
type RoomHandler struct {
	service *chat.Service
	logger  *zap.Logger
}

// NewRoomHandler builds a RoomHandler.
func NewRoomHandler(service *chat.Service, logger *zap.Logger) *RoomHandler {
	return &RoomHandler{service: service, logger: logger.Named("rooms")}
}

// CreateGroupRoom creates a group room owned by the caller.
func (h *RoomHandler) CreateGroupRoom(c *gin.Context) {
	var req struct {
		Name           string   `json:"name" binding:"max=100"`
		ParticipantIDs []string `json:"participant_ids"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	room, err := h.service.CreateGroupRoom(c.Request.Context(), c.GetString(middleware.UserIDKey), req.Name, req.ParticipantIDs)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, room)
}

// StartDirect creates or returns the direct room between the caller and another user.
func (h *RoomHandler) StartDirect(c *gin.Context) {
	var req struct {
		UserID string `json:"user_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	room, created, err := h.service.GetOrCreateDirectRoom(c.Request.Context(), c.GetString(middleware.UserIDKey), req.UserID)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, room)
}

// Join adds the caller to a group room.
func (h *RoomHandler) Join(c *gin.Context) {
	roomID, ok := uuidParam(c, "room_id")
	if !ok {
		return
	}
	room, err := h.service.JoinRoom(c.Request.Context(), roomID, c.GetString(middleware.UserIDKey))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, room)
}

// Leave removes the caller from a group room.
func (h *RoomHandler) Leave(c *gin.Context) {
	roomID, ok := uuidParam(c, "room_id")
	if !ok {
		return
	}
	deactivated, err := h.service.LeaveRoom(c.Request.Context(), roomID, c.GetString(middleware.UserIDKey))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"left": true, "room_deactivated": deactivated})
}

// Online lists the participants of a room that are currently connected.
func (h *RoomHandler) Online(c *gin.Context) {
	roomID, ok := uuidParam(c, "room_id")
	if !ok {
		return
	}
	online, err := h.service.OnlineParticipants(c.Request.Context(), roomID, c.GetString(middleware.UserIDKey))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"room_id": roomID, "online": online})
}
