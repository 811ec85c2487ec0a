package chat

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"realtime-service/internal/apperr"
	"realtime-service/internal/auth"
	"realtime-service/internal/ws"
)

// WebSocketHandler serves GET /ws/chat/:room_id.
type WebSocketHandler struct {
	service  *Service
	hub      *ws.Hub
	presence Presence
	verifier auth.Verifier
	logger   *zap.Logger
}

func NewWebSocketHandler(service *Service, hub *ws.Hub, presence Presence, verifier auth.Verifier, logger *zap.Logger) *WebSocketHandler {
	return &WebSocketHandler{service: service, hub: hub, presence: presence, verifier: verifier, logger: logger.Named("chat_ws")}
}

// Handle authenticates the handshake, checks room membership, upgrades and
// serves the session until the connection closes.
func (h *WebSocketHandler) Handle(c *gin.Context) {
	ctx, span := otel.Tracer("realtime-service/ws").Start(c.Request.Context(), "ws.chat.handshake",
		trace.WithSpanKind(trace.SpanKindServer))
	c.Request = c.Request.WithContext(ctx)

	roomID := c.Param("room_id")
	if _, err := uuid.Parse(roomID); err != nil {
		span.End()
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid room_id"})
		return
	}
	span.SetAttributes(attribute.String("room.id", roomID))

	session := NewSession(h.service, h.hub, h.presence, h.logger)
	userID, _ := h.verifier.Verify(auth.TokenFromRequest(c.Request))
	if err := session.Authenticate(userID); err != nil {
		span.End()
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}
	if err := session.Join(ctx, roomID); err != nil {
		span.End()
		status := apperr.HTTPStatus(err)
		if status == http.StatusInternalServerError {
			h.logger.Error("join room failed", zap.String("room_id", roomID), zap.Error(err))
		}
		c.JSON(status, gin.H{"error": apperr.PublicMessage(err)})
		return
	}

	info := ws.InfoFromRequest(c.Request, "rooms", roomID, userID, span.SpanContext().TraceID().String())
	conn, err := ws.Upgrade(c, info, h.logger)
	span.End()
	if err != nil {
		h.logger.Debug("upgrade failed", zap.Error(err))
		return
	}

	sessionCtx := context.WithoutCancel(ctx)
	ws.PublishConnect(sessionCtx, info)
	err = session.Run(sessionCtx, conn)
	reason := ""
	if err != nil {
		reason = err.Error()
	}
	if ws.IsUnexpectedClose(err) {
		ws.PublishError(sessionCtx, info, reason)
	}
	ws.PublishDisconnect(sessionCtx, info, reason)
}
