package chat

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"realtime-service/internal/apperr"
	"realtime-service/internal/models"
	"realtime-service/internal/ws"
)

// State is where a chat session is in its lifecycle.
type State int

const (
	StateConnecting State = iota
	StateAuthenticated
	StateJoined
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticated:
		return "authenticated"
	case StateJoined:
		return "joined"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

var errInvalidState = errors.New("invalid session state")

// Presence is told when a user's live connections come and go.
type Presence interface {
	Connected(ctx context.Context, userID string)
	Disconnected(ctx context.Context, userID string)
}

// Session is one chat connection of one user in one room. Frames are handled
// strictly in arrival order on the reader goroutine.
type Session struct {
	service  *Service
	hub      *ws.Hub
	presence Presence
	logger   *zap.Logger

	mu     sync.Mutex
	state  State
	userID string
	room   models.ChatRoom

	opMu      sync.Mutex
	closeOnce sync.Once
}

func NewSession(service *Service, hub *ws.Hub, presence Presence, logger *zap.Logger) *Session {
	return &Session{
		service:  service,
		hub:      hub,
		presence: presence,
		logger:   logger,
		state:    StateConnecting,
	}
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Authenticate binds the verified identity to the session. An empty user id
// closes it.
func (s *Session) Authenticate(userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateConnecting {
		return errInvalidState
	}
	if userID == "" {
		s.state = StateClosed
		return apperr.Unauthenticated("invalid token")
	}
	s.userID = userID
	s.state = StateAuthenticated
	return nil
}

// Join checks room membership. A user who may not enter the room closes the
// session.
func (s *Session) Join(ctx context.Context, roomID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateAuthenticated {
		return errInvalidState
	}
	room, err := s.service.AuthorizeJoin(ctx, roomID, s.userID)
	if err != nil {
		s.state = StateClosed
		return err
	}
	s.room = room
	s.state = StateJoined
	s.logger = s.logger.With(zap.String("room_id", room.ID), zap.String("user_id", s.userID))
	return nil
}

// Run serves a joined session until the connection fails, then cleans up
// exactly once. It returns the error that ended the read loop.
func (s *Session) Run(ctx context.Context, conn ws.Transport) error {
	if s.State() != StateJoined {
		conn.Close()
		return errInvalidState
	}

	s.hub.Subscribe(ws.RoomTopic(s.room.ID), conn)
	s.presence.Connected(ctx, s.userID)
	s.service.AnnounceStatus(s.room.ID, s.userID, models.StatusUserJoined)
	defer s.Close(ctx, conn)

	for {
		raw, err := conn.ReadFrame()
		if err != nil {
			return err
		}
		s.Handle(ctx, conn, raw)
	}
}

// Handle processes one inbound frame. Failures become an error frame for this
// connection only and never end the session.
func (s *Session) Handle(ctx context.Context, conn ws.Transport, raw []byte) {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	if s.State() != StateJoined {
		return
	}

	var action models.ChatAction
	if err := ws.DecodeFrame(raw, &action); err != nil {
		s.sendError(conn, err)
		return
	}

	roomID := s.room.ID
	var err error
	switch action.Action {
	case models.ActionSendMessage:
		_, err = s.service.SendMessage(ctx, roomID, s.userID, SendMessageInput{
			Content:       action.Content,
			Type:          action.MessageType,
			AttachmentURL: action.AttachmentURL,
			ReplyToID:     action.ReplyToID,
		})
	case models.ActionTyping:
		err = s.service.Typing(ctx, roomID, s.userID, action.IsTyping, conn.ID())
	case models.ActionMarkRead:
		_, err = s.service.MarkRead(ctx, roomID, s.userID, action.MessageIDs, action.All)
	case models.ActionEditMessage:
		_, err = s.service.EditMessage(ctx, roomID, s.userID, action.MessageID, action.Content)
	case models.ActionDeleteMessage:
		_, err = s.service.DeleteMessage(ctx, roomID, s.userID, action.MessageID)
	}
	if err != nil {
		s.sendError(conn, err)
	}
}

// Close unsubscribes the connection, marks the user's session gone and tells
// the room. Later calls are no-ops. It waits for an in-flight frame.
func (s *Session) Close(ctx context.Context, conn ws.Transport) {
	s.closeOnce.Do(func() {
		s.opMu.Lock()
		defer s.opMu.Unlock()

		s.mu.Lock()
		joined := s.state == StateJoined
		s.state = StateClosed
		s.mu.Unlock()

		left := s.hub.UnsubscribeAll(conn)
		conn.Close()
		if !joined {
			return
		}
		s.presence.Disconnected(ctx, s.userID)
		// evicted connections are already off the topic and announced
		if contains(left, ws.RoomTopic(s.room.ID)) {
			s.service.AnnounceStatus(s.room.ID, s.userID, models.StatusUserLeft)
		}
	})
}

func (s *Session) sendError(conn ws.Transport, err error) {
	frame := ws.ErrorFrame(err)
	if frame.Code == string(apperr.KindInternal) {
		s.logger.Error("chat operation failed", zap.Error(err))
	}
	if sendErr := conn.SendJSON(frame); sendErr != nil {
		s.logger.Debug("send error frame failed", zap.Error(sendErr))
	}
}
