package notifications

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"realtime-service/internal/models"
	"realtime-service/internal/ws"
)

// Presence is told when a user's live connections come and go.
type Presence interface {
	Connected(ctx context.Context, userID string)
	Disconnected(ctx context.Context, userID string)
}

// Session serves one notification-channel connection of a user.
type Session struct {
	userID     string
	dispatcher *Dispatcher
	hub        *ws.Hub
	presence   Presence
	logger     *zap.Logger

	opMu      sync.Mutex
	closeOnce sync.Once
}

func NewSession(userID string, dispatcher *Dispatcher, hub *ws.Hub, presence Presence, logger *zap.Logger) *Session {
	return &Session{
		userID:     userID,
		dispatcher: dispatcher,
		hub:        hub,
		presence:   presence,
		logger:     logger.With(zap.String("user_id", userID)),
	}
}

// Run subscribes the connection to the user's topic, sends the unread
// backlog and serves frames until the connection fails. It returns the error
// that ended the read loop.
func (s *Session) Run(ctx context.Context, conn ws.Transport) error {
	s.hub.Subscribe(ws.UserTopic(s.userID), conn)
	s.presence.Connected(ctx, s.userID)
	defer s.cleanup(ctx, conn)

	s.sendBacklog(ctx, conn)

	for {
		raw, err := conn.ReadFrame()
		if err != nil {
			return err
		}
		s.Handle(ctx, conn, raw)
	}
}

func (s *Session) sendBacklog(ctx context.Context, conn ws.Transport) {
	unread, err := s.dispatcher.ListUnread(ctx, s.userID, UnreadOnConnect)
	if err != nil {
		s.sendError(conn, err)
		return
	}
	s.send(conn, models.NotificationsEvent{Type: models.EventUnreadNotifications, Notifications: unread})
	s.sendUnreadCount(ctx, conn)
}

// Handle processes one inbound frame. Errors are reported to this
// connection only.
func (s *Session) Handle(ctx context.Context, conn ws.Transport, raw []byte) {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	var action models.NotificationAction
	if err := ws.DecodeFrame(raw, &action); err != nil {
		s.sendError(conn, err)
		return
	}

	switch action.Action {
	case models.ActionMarkRead:
		count, err := s.dispatcher.MarkRead(ctx, s.userID, action.NotificationIDs, action.MarkAll)
		if err != nil {
			s.sendError(conn, err)
			return
		}
		s.send(conn, models.MarkReadResponseEvent{Type: models.EventMarkReadResponse, MarkedCount: count, Success: true})
		// every open device of the user shows the same badge
		s.dispatcher.PublishUnreadCount(ctx, s.userID)
	case models.ActionGetUnreadCount:
		s.sendUnreadCount(ctx, conn)
	case models.ActionGetNotifications:
		page, err := s.dispatcher.ListPage(ctx, s.userID, action.Page, action.PageSize)
		if err != nil {
			s.sendError(conn, err)
			return
		}
		s.send(conn, models.NotificationsListEvent{Type: models.EventNotificationsList, NotificationPage: page})
	}
}

func (s *Session) sendUnreadCount(ctx context.Context, conn ws.Transport) {
	count, err := s.dispatcher.UnreadCount(ctx, s.userID)
	if err != nil {
		s.sendError(conn, err)
		return
	}
	s.send(conn, models.UnreadCountEvent{Type: models.EventUnreadCount, Count: count})
}

func (s *Session) send(conn ws.Transport, frame any) {
	if err := conn.SendJSON(frame); err != nil {
		s.logger.Debug("send frame failed", zap.Error(err))
	}
}

func (s *Session) sendError(conn ws.Transport, err error) {
	frame := ws.ErrorFrame(err)
	if frame.Code == "internal_error" {
		s.logger.Error("notification operation failed", zap.Error(err))
	}
	s.send(conn, frame)
}

func (s *Session) cleanup(ctx context.Context, conn ws.Transport) {
	s.closeOnce.Do(func() {
		s.opMu.Lock()
		defer s.opMu.Unlock()
		s.hub.UnsubscribeAll(conn)
		conn.Close()
		s.presence.Disconnected(ctx, s.userID)
	})
}
