// Package chat implements chat rooms, messages and the live chat protocol.
package chat

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"realtime-service/internal/apperr"
	"realtime-service/internal/models"
	"realtime-service/internal/repositories"
	"realtime-service/internal/ws"
)

const maxRoomName = 100

// Broadcaster fans frames out to room topics and drops connections that may
// no longer listen. *ws.Hub satisfies it.
type Broadcaster interface {
	PublishJSON(topic string, v any) (int, error)
	PublishJSONExcept(topic string, v any, skipID string) (int, error)
	Evict(topic, userID string) int
	CloseTopic(topic string) int
}

// Notifier turns chat activity into notifications. *notifications.Dispatcher
// satisfies it.
type Notifier interface {
	NotifyMessage(ctx context.Context, room models.ChatRoom, msg models.Message, recipients []string)
	NotifyChatInvite(ctx context.Context, room models.ChatRoom, inviterID string, invitees []string)
	NotifyMentions(ctx context.Context, authorID, content string, source models.SourceRef, allowed []string)
}

// OnlineLookup answers which of a set of users are online.
type OnlineLookup interface {
	OnlineAmong(ctx context.Context, userIDs []string) ([]string, error)
}

// SendMessageInput is the client-supplied part of a new message.
type SendMessageInput struct {
	Content       string
	Type          models.MessageType
	AttachmentURL *string
	ReplyToID     *string
}

// Service owns room membership and message state. Every mutation is
// persisted before it is broadcast.
type Service struct {
	rooms    repositories.RoomRepository
	messages repositories.MessageRepository
	hub      Broadcaster
	notifier Notifier
	online   OnlineLookup
	logger   *zap.Logger
}

func NewService(rooms repositories.RoomRepository, messages repositories.MessageRepository, hub Broadcaster, notifier Notifier, online OnlineLookup, logger *zap.Logger) *Service {
	return &Service{
		rooms:    rooms,
		messages: messages,
		hub:      hub,
		notifier: notifier,
		online:   online,
		logger:   logger.Named("chat"),
	}
}

// AuthorizeJoin checks that the user may open a live session on the room.
func (s *Service) AuthorizeJoin(ctx context.Context, roomID, userID string) (models.ChatRoom, error) {
	room, err := s.loadRoom(ctx, roomID)
	if err != nil {
		return models.ChatRoom{}, err
	}
	if !contains(room.Participants, userID) {
		return models.ChatRoom{}, apperr.Forbidden("not a room participant")
	}
	if !room.IsActive {
		return models.ChatRoom{}, apperr.Forbidden("room is inactive")
	}
	return room, nil
}

// SendMessage stores a message, broadcasts it to the room and notifies the
// other participants.
func (s *Service) SendMessage(ctx context.Context, roomID, senderID string, in SendMessageInput) (models.Message, error) {
	typ := in.Type
	if typ == "" {
		typ = models.MessageText
	}
	if !typ.Valid() || typ == models.MessageSystem {
		return models.Message{}, apperr.Validation("unsupported message type")
	}
	content := strings.TrimSpace(in.Content)
	switch typ {
	case models.MessageText:
		if content == "" {
			return models.Message{}, apperr.Validation("message content is required")
		}
	case models.MessageImage, models.MessageFile:
		if in.AttachmentURL == nil || *in.AttachmentURL == "" {
			return models.Message{}, apperr.Validation("attachment is required")
		}
	}

	room, err := s.AuthorizeJoin(ctx, roomID, senderID)
	if err != nil {
		return models.Message{}, err
	}

	msg := models.Message{
		RoomID:        roomID,
		SenderID:      senderID,
		Type:          typ,
		Content:       content,
		AttachmentURL: in.AttachmentURL,
		ReplyToID:     s.replyTarget(ctx, roomID, in.ReplyToID),
	}
	stored, err := s.messages.CreateMessage(ctx, msg)
	if err != nil {
		return models.Message{}, apperr.Internal("could not store message", err)
	}

	s.publish(ws.RoomTopic(roomID), models.MessageEvent{Type: models.EventMessage, Message: stored})
	s.notifyParticipants(ctx, room, stored)
	return stored, nil
}

// replyTarget keeps a reply reference only when it points into the same room.
func (s *Service) replyTarget(ctx context.Context, roomID string, replyToID *string) *string {
	if replyToID == nil || *replyToID == "" {
		return nil
	}
	parent, err := s.messages.GetMessage(ctx, *replyToID)
	if err != nil {
		if !errors.Is(err, repositories.ErrMessageNotFound) {
			s.logger.Warn("load reply target failed", zap.String("message_id", *replyToID), zap.Error(err))
		}
		return nil
	}
	if parent.RoomID != roomID {
		return nil
	}
	id := parent.ID
	return &id
}

func (s *Service) notifyParticipants(ctx context.Context, room models.ChatRoom, msg models.Message) {
	recipients := make([]string, 0, len(room.Participants))
	for _, id := range room.Participants {
		if id != msg.SenderID {
			recipients = append(recipients, id)
		}
	}
	if len(recipients) == 0 {
		return
	}
	s.notifier.NotifyMessage(ctx, room, msg, recipients)
	if msg.Type == models.MessageText {
		s.notifier.NotifyMentions(ctx, msg.SenderID, msg.Content, models.SourceRef{Kind: models.SourceRoom, ID: room.ID}, recipients)
	}
}

// Typing relays a typing indicator to everyone in the room except the
// connection it came from. Nothing is stored.
func (s *Service) Typing(ctx context.Context, roomID, userID string, isTyping bool, originConnID string) error {
	if err := s.requireParticipant(ctx, roomID, userID); err != nil {
		return err
	}
	if _, err := s.hub.PublishJSONExcept(ws.RoomTopic(roomID),
		models.TypingEvent{Type: models.EventTyping, UserID: userID, IsTyping: isTyping}, originConnID); err != nil {
		return apperr.Internal("could not relay typing state", err)
	}
	return nil
}

// MarkRead records read receipts for the given messages, or for every unread
// message in the room when all is set. Own messages and messages already
// read are skipped. It returns the ids that were newly marked.
func (s *Service) MarkRead(ctx context.Context, roomID, userID string, messageIDs []string, all bool) ([]string, error) {
	if !all && len(messageIDs) == 0 {
		return nil, apperr.Validation("message_ids or all is required")
	}
	if err := s.requireParticipant(ctx, roomID, userID); err != nil {
		return nil, err
	}

	var (
		candidates []string
		err        error
	)
	if all {
		candidates, err = s.messages.UnreadMessageIDs(ctx, roomID, userID)
	} else {
		candidates, err = s.messages.ReadableMessageIDs(ctx, roomID, userID, messageIDs)
	}
	if err != nil {
		return nil, apperr.Internal("could not load messages", err)
	}
	if len(candidates) == 0 {
		return []string{}, nil
	}

	marked, err := s.messages.CreateMessageReadRecords(ctx, userID, candidates)
	if err != nil {
		return nil, apperr.Internal("could not store read receipts", err)
	}
	if len(marked) > 0 {
		s.publish(ws.RoomTopic(roomID), models.MessagesReadEvent{Type: models.EventMessagesRead, UserID: userID, MessageIDs: marked})
	}
	return marked, nil
}

// EditMessage replaces the content of the caller's own live message.
func (s *Service) EditMessage(ctx context.Context, roomID, userID, messageID, content string) (models.Message, error) {
	content = strings.TrimSpace(content)
	if messageID == "" {
		return models.Message{}, apperr.Validation("message_id is required")
	}
	if content == "" {
		return models.Message{}, apperr.Validation("content is required")
	}
	msg, err := s.ownMessage(ctx, roomID, userID, messageID, "only the sender can edit this message")
	if err != nil {
		return models.Message{}, err
	}
	if msg.IsDeleted {
		return models.Message{}, apperr.Validation("deleted messages cannot be edited")
	}

	updated, err := s.messages.UpdateMessage(ctx, messageID, content)
	if errors.Is(err, repositories.ErrMessageDeleted) {
		return models.Message{}, apperr.Validation("deleted messages cannot be edited")
	}
	if err != nil {
		return models.Message{}, apperr.Internal("could not update message", err)
	}

	s.publish(ws.RoomTopic(roomID), models.MessageEvent{Type: models.EventMessageEdited, Message: updated})
	return updated, nil
}

// DeleteMessage soft-deletes the caller's own message. Deleting a message
// twice is a no-op.
func (s *Service) DeleteMessage(ctx context.Context, roomID, userID, messageID string) (models.Message, error) {
	if messageID == "" {
		return models.Message{}, apperr.Validation("message_id is required")
	}
	msg, err := s.ownMessage(ctx, roomID, userID, messageID, "only the sender can delete this message")
	if err != nil {
		return models.Message{}, err
	}
	if msg.IsDeleted {
		return msg, nil
	}

	deleted, err := s.messages.SoftDeleteMessage(ctx, messageID)
	if errors.Is(err, repositories.ErrMessageDeleted) {
		return msg, nil
	}
	if err != nil {
		return models.Message{}, apperr.Internal("could not delete message", err)
	}

	s.publish(ws.RoomTopic(roomID), models.MessageDeletedEvent{Type: models.EventMessageDeleted, MessageID: deleted.ID, Content: models.Tombstone})
	return deleted, nil
}

func (s *Service) ownMessage(ctx context.Context, roomID, userID, messageID, forbidden string) (models.Message, error) {
	if err := s.requireParticipant(ctx, roomID, userID); err != nil {
		return models.Message{}, err
	}
	msg, err := s.messages.GetMessage(ctx, messageID)
	if errors.Is(err, repositories.ErrMessageNotFound) {
		return models.Message{}, apperr.NotFound("message not found")
	}
	if err != nil {
		return models.Message{}, apperr.Internal("could not load message", err)
	}
	if msg.RoomID != roomID {
		return models.Message{}, apperr.NotFound("message not found")
	}
	if msg.SenderID != userID {
		return models.Message{}, apperr.Forbidden(forbidden)
	}
	return msg, nil
}

// CreateGroupRoom creates a group room with the creator and the given users
// and invites everyone but the creator.
func (s *Service) CreateGroupRoom(ctx context.Context, creatorID, name string, participantIDs []string) (models.ChatRoom, error) {
	name = strings.TrimSpace(name)
	if utf8.RuneCountInString(name) > maxRoomName {
		return models.ChatRoom{}, apperr.Validation("room name is too long")
	}
	room, err := s.rooms.CreateGroupRoom(ctx, creatorID, name, participantIDs)
	if err != nil {
		return models.ChatRoom{}, apperr.Internal("could not create room", err)
	}

	invitees := make([]string, 0, len(room.Participants))
	for _, id := range room.Participants {
		if id != creatorID {
			invitees = append(invitees, id)
		}
	}
	if len(invitees) > 0 {
		s.notifier.NotifyChatInvite(ctx, room, creatorID, invitees)
	}
	return room, nil
}

// GetOrCreateDirectRoom returns the single direct room between two users.
func (s *Service) GetOrCreateDirectRoom(ctx context.Context, userID, otherID string) (models.ChatRoom, bool, error) {
	if otherID == "" {
		return models.ChatRoom{}, false, apperr.Validation("user_id is required")
	}
	if otherID == userID {
		return models.ChatRoom{}, false, apperr.Validation("cannot start a direct chat with yourself")
	}
	room, created, err := s.rooms.GetOrCreateDirectRoom(ctx, userID, otherID)
	if err != nil {
		return models.ChatRoom{}, false, apperr.Internal("could not open direct room", err)
	}
	return room, created, nil
}

// JoinRoom adds the user to an active group room.
func (s *Service) JoinRoom(ctx context.Context, roomID, userID string) (models.ChatRoom, error) {
	room, err := s.loadRoom(ctx, roomID)
	if err != nil {
		return models.ChatRoom{}, err
	}
	if room.Type != models.RoomGroup {
		return models.ChatRoom{}, apperr.Validation("only group rooms can be joined")
	}
	if !room.IsActive {
		return models.ChatRoom{}, apperr.Forbidden("room is inactive")
	}
	if contains(room.Participants, userID) {
		return room, nil
	}
	if err := s.rooms.AddParticipant(ctx, roomID, userID); err != nil {
		return models.ChatRoom{}, apperr.Internal("could not join room", err)
	}
	if err := s.rooms.TouchRoom(ctx, roomID); err != nil {
		s.logger.Warn("touch room failed", zap.String("room_id", roomID), zap.Error(err))
	}
	room.Participants = append(room.Participants, userID)
	s.publish(ws.RoomTopic(roomID), models.UserStatusEvent{Type: models.EventUserStatus, UserID: userID, Status: models.StatusUserJoined})
	return room, nil
}

// LeaveRoom removes the user from a group room. It reports whether the room
// was deactivated because its creator left it with at most one other member.
func (s *Service) LeaveRoom(ctx context.Context, roomID, userID string) (bool, error) {
	room, err := s.loadRoom(ctx, roomID)
	if err != nil {
		return false, err
	}
	if room.Type != models.RoomGroup {
		return false, apperr.Validation("direct rooms cannot be left")
	}
	deactivated, err := s.rooms.LeaveRoom(ctx, roomID, userID)
	if errors.Is(err, repositories.ErrNotParticipant) {
		return false, apperr.Forbidden("not a room participant")
	}
	if err != nil {
		return false, apperr.Internal("could not leave room", err)
	}
	topic := ws.RoomTopic(roomID)
	s.publish(topic, models.UserStatusEvent{Type: models.EventUserStatus, UserID: userID, Status: models.StatusUserLeft})
	if deactivated {
		closed := s.hub.CloseTopic(topic)
		s.logger.Info("room deactivated", zap.String("room_id", roomID), zap.Int("closed_connections", closed))
	} else if n := s.hub.Evict(topic, userID); n > 0 {
		s.logger.Debug("closed live sessions of departed member", zap.String("room_id", roomID), zap.String("user_id", userID), zap.Int("connections", n))
	}
	return deactivated, nil
}

// OnlineParticipants lists the room's participants that are online.
func (s *Service) OnlineParticipants(ctx context.Context, roomID, userID string) ([]string, error) {
	room, err := s.loadRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if !contains(room.Participants, userID) {
		return nil, apperr.Forbidden("not a room participant")
	}
	online, err := s.online.OnlineAmong(ctx, room.Participants)
	if err != nil {
		return nil, apperr.Internal("could not load presence", err)
	}
	if online == nil {
		online = []string{}
	}
	return online, nil
}

// AnnounceStatus tells the room a participant's live session started or ended.
func (s *Service) AnnounceStatus(roomID, userID, status string) {
	s.publish(ws.RoomTopic(roomID), models.UserStatusEvent{Type: models.EventUserStatus, UserID: userID, Status: status})
}

func (s *Service) loadRoom(ctx context.Context, roomID string) (models.ChatRoom, error) {
	room, err := s.rooms.GetRoom(ctx, roomID)
	if errors.Is(err, repositories.ErrRoomNotFound) {
		return models.ChatRoom{}, apperr.NotFound("room not found")
	}
	if err != nil {
		return models.ChatRoom{}, apperr.Internal("could not load room", err)
	}
	return room, nil
}

func (s *Service) requireParticipant(ctx context.Context, roomID, userID string) error {
	ok, err := s.rooms.IsParticipant(ctx, roomID, userID)
	if err != nil {
		return apperr.Internal("could not check membership", err)
	}
	if !ok {
		return apperr.Forbidden("not a room participant")
	}
	return nil
}

func (s *Service) publish(topic string, frame any) {
	if _, err := s.hub.PublishJSON(topic, frame); err != nil {
		s.logger.Error("broadcast failed", zap.String("topic", topic), zap.Error(err))
	}
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
