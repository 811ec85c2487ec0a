package notifications

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"realtime-service/internal/auth"
	"realtime-service/internal/ws"
)

// WebSocketHandler serves GET /ws/notifications.
type WebSocketHandler struct {
	hub        *ws.Hub
	dispatcher *Dispatcher
	presence   Presence
	verifier   auth.Verifier
	logger     *zap.Logger
}

func NewWebSocketHandler(hub *ws.Hub, dispatcher *Dispatcher, presence Presence, verifier auth.Verifier, logger *zap.Logger) *WebSocketHandler {
	return &WebSocketHandler{hub: hub, dispatcher: dispatcher, presence: presence, verifier: verifier, logger: logger.Named("notifications_ws")}
}

// Handle authenticates the handshake, upgrades it and serves the session
// until the connection closes.
func (h *WebSocketHandler) Handle(c *gin.Context) {
	ctx, span := otel.Tracer("realtime-service/ws").Start(c.Request.Context(), "ws.notifications.handshake",
		trace.WithSpanKind(trace.SpanKindServer))
	c.Request = c.Request.WithContext(ctx)

	userID, err := h.verifier.Verify(auth.TokenFromRequest(c.Request))
	if err != nil {
		span.End()
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	info := ws.InfoFromRequest(c.Request, "notifications", userID, userID, span.SpanContext().TraceID().String())
	conn, err := ws.Upgrade(c, info, h.logger)
	span.End()
	if err != nil {
		h.logger.Debug("upgrade failed", zap.Error(err))
		return
	}

	sessionCtx := context.WithoutCancel(ctx)
	ws.PublishConnect(sessionCtx, info)
	err = NewSession(userID, h.dispatcher, h.hub, h.presence, h.logger).Run(sessionCtx, conn)
	reason := ""
	if err != nil {
		reason = err.Error()
	}
	if ws.IsUnexpectedClose(err) {
		ws.PublishError(sessionCtx, info, reason)
	}
	ws.PublishDisconnect(sessionCtx, info, reason)
}
