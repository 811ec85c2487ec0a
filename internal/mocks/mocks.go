package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"realtime-service/internal/models"
	"realtime-service/internal/repositories"
)

type RoomRepositoryMock struct {
	mock.Mock
}

func (m *RoomRepositoryMock) CreateGroupRoom(ctx context.Context, creatorID string, name string, participantIDs []string) (models.ChatRoom, error) {
	args := m.Called(ctx, creatorID, name, participantIDs)
	var room models.ChatRoom
	if val := args.Get(0); val != nil {
		room = val.(models.ChatRoom)
	}
	return room, args.Error(1)
}

func (m *RoomRepositoryMock) GetOrCreateDirectRoom(ctx context.Context, userID string, otherID string) (models.ChatRoom, bool, error) {
	args := m.Called(ctx, userID, otherID)
	var room models.ChatRoom
	if val := args.Get(0); val != nil {
		room = val.(models.ChatRoom)
	}
	return room, args.Bool(1), args.Error(2)
}

func (m *RoomRepositoryMock) GetRoom(ctx context.Context, roomID string) (models.ChatRoom, error) {
	args := m.Called(ctx, roomID)
	var room models.ChatRoom
	if val := args.Get(0); val != nil {
		room = val.(models.ChatRoom)
	}
	return room, args.Error(1)
}

func (m *RoomRepositoryMock) GetRoomParticipants(ctx context.Context, roomID string) ([]string, error) {
	args := m.Called(ctx, roomID)
	var ids []string
	if val := args.Get(0); val != nil {
		ids = val.([]string)
	}
	return ids, args.Error(1)
}

func (m *RoomRepositoryMock) IsParticipant(ctx context.Context, roomID string, userID string) (bool, error) {
	args := m.Called(ctx, roomID, userID)
	return args.Bool(0), args.Error(1)
}

func (m *RoomRepositoryMock) AddParticipant(ctx context.Context, roomID string, userID string) error {
	args := m.Called(ctx, roomID, userID)
	return args.Error(0)
}

func (m *RoomRepositoryMock) LeaveRoom(ctx context.Context, roomID string, userID string) (bool, error) {
	args := m.Called(ctx, roomID, userID)
	return args.Bool(0), args.Error(1)
}

func (m *RoomRepositoryMock) TouchRoom(ctx context.Context, roomID string) error {
	args := m.Called(ctx, roomID)
	return args.Error(0)
}

type MessageRepositoryMock struct {
	mock.Mock
}

func (m *MessageRepositoryMock) CreateMessage(ctx context.Context, msg models.Message) (models.Message, error) {
	args := m.Called(ctx, msg)
	var stored models.Message
	if val := args.Get(0); val != nil {
		stored = val.(models.Message)
	}
	return stored, args.Error(1)
}

func (m *MessageRepositoryMock) GetMessage(ctx context.Context, messageID string) (models.Message, error) {
	args := m.Called(ctx, messageID)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) UpdateMessage(ctx context.Context, messageID string, content string) (models.Message, error) {
	args := m.Called(ctx, messageID, content)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) SoftDeleteMessage(ctx context.Context, messageID string) (models.Message, error) {
	args := m.Called(ctx, messageID)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) ReadableMessageIDs(ctx context.Context, roomID string, userID string, messageIDs []string) ([]string, error) {
	args := m.Called(ctx, roomID, userID, messageIDs)
	var ids []string
	if val := args.Get(0); val != nil {
		ids = val.([]string)
	}
	return ids, args.Error(1)
}

func (m *MessageRepositoryMock) UnreadMessageIDs(ctx context.Context, roomID string, userID string) ([]string, error) {
	args := m.Called(ctx, roomID, userID)
	var ids []string
	if val := args.Get(0); val != nil {
		ids = val.([]string)
	}
	return ids, args.Error(1)
}

func (m *MessageRepositoryMock) CreateMessageReadRecords(ctx context.Context, userID string, messageIDs []string) ([]string, error) {
	args := m.Called(ctx, userID, messageIDs)
	var ids []string
	if val := args.Get(0); val != nil {
		ids = val.([]string)
	}
	return ids, args.Error(1)
}

type PresenceRepositoryMock struct {
	mock.Mock
}

func (m *PresenceRepositoryMock) EnsurePresence(ctx context.Context, userID string) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

func (m *PresenceRepositoryMock) SetOnline(ctx context.Context, userID string, online bool, at time.Time) (bool, error) {
	args := m.Called(ctx, userID, online, at)
	return args.Bool(0), args.Error(1)
}

func (m *PresenceRepositoryMock) GetPresence(ctx context.Context, userID string) (models.PresenceState, error) {
	args := m.Called(ctx, userID)
	var state models.PresenceState
	if val := args.Get(0); val != nil {
		state = val.(models.PresenceState)
	}
	return state, args.Error(1)
}

func (m *PresenceRepositoryMock) OnlineAmong(ctx context.Context, userIDs []string) ([]string, error) {
	args := m.Called(ctx, userIDs)
	var ids []string
	if val := args.Get(0); val != nil {
		ids = val.([]string)
	}
	return ids, args.Error(1)
}

type NotificationRepositoryMock struct {
	mock.Mock
}

func (m *NotificationRepositoryMock) GetOrCreateSettings(ctx context.Context, userID string) (models.NotificationSettings, error) {
	args := m.Called(ctx, userID)
	var settings models.NotificationSettings
	if val := args.Get(0); val != nil {
		settings = val.(models.NotificationSettings)
	}
	return settings, args.Error(1)
}

func (m *NotificationRepositoryMock) UpdateSettings(ctx context.Context, settings models.NotificationSettings) (models.NotificationSettings, error) {
	args := m.Called(ctx, settings)
	var stored models.NotificationSettings
	if val := args.Get(0); val != nil {
		stored = val.(models.NotificationSettings)
	}
	return stored, args.Error(1)
}

func (m *NotificationRepositoryMock) QueryRecentDuplicate(ctx context.Context, q repositories.DuplicateQuery) (*models.Notification, error) {
	args := m.Called(ctx, q)
	var n *models.Notification
	if val := args.Get(0); val != nil {
		n = val.(*models.Notification)
	}
	return n, args.Error(1)
}

func (m *NotificationRepositoryMock) CreateNotification(ctx context.Context, n models.Notification) (models.Notification, error) {
	args := m.Called(ctx, n)
	var stored models.Notification
	if val := args.Get(0); val != nil {
		stored = val.(models.Notification)
	}
	return stored, args.Error(1)
}

func (m *NotificationRepositoryMock) MarkSent(ctx context.Context, notificationID string) error {
	args := m.Called(ctx, notificationID)
	return args.Error(0)
}

func (m *NotificationRepositoryMock) MarkRead(ctx context.Context, userID string, notificationIDs []string, all bool, at time.Time) (int64, error) {
	args := m.Called(ctx, userID, notificationIDs, all, at)
	return args.Get(0).(int64), args.Error(1)
}

func (m *NotificationRepositoryMock) UnreadCount(ctx context.Context, userID string) (int64, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *NotificationRepositoryMock) CountForUser(ctx context.Context, userID string) (int64, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *NotificationRepositoryMock) ListForUser(ctx context.Context, userID string, limit int, offset int) ([]models.Notification, error) {
	args := m.Called(ctx, userID, limit, offset)
	var list []models.Notification
	if val := args.Get(0); val != nil {
		list = val.([]models.Notification)
	}
	return list, args.Error(1)
}

func (m *NotificationRepositoryMock) ListUnread(ctx context.Context, userID string, limit int) ([]models.Notification, error) {
	args := m.Called(ctx, userID, limit)
	var list []models.Notification
	if val := args.Get(0); val != nil {
		list = val.([]models.Notification)
	}
	return list, args.Error(1)
}

func (m *NotificationRepositoryMock) CountByType(ctx context.Context, userID string) ([]models.TypeCount, error) {
	args := m.Called(ctx, userID)
	var counts []models.TypeCount
	if val := args.Get(0); val != nil {
		counts = val.([]models.TypeCount)
	}
	return counts, args.Error(1)
}

func (m *NotificationRepositoryMock) CountReadBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	args := m.Called(ctx, cutoff)
	return args.Get(0).(int64), args.Error(1)
}

func (m *NotificationRepositoryMock) DeleteReadBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	args := m.Called(ctx, cutoff)
	return args.Get(0).(int64), args.Error(1)
}

type DeviceTokenRepositoryMock struct {
	mock.Mock
}

func (m *DeviceTokenRepositoryMock) RegisterDeviceToken(ctx context.Context, token models.DeviceToken) (models.DeviceToken, error) {
	args := m.Called(ctx, token)
	var stored models.DeviceToken
	if val := args.Get(0); val != nil {
		stored = val.(models.DeviceToken)
	}
	return stored, args.Error(1)
}

func (m *DeviceTokenRepositoryMock) RevokeDeviceToken(ctx context.Context, userID string, token string) error {
	args := m.Called(ctx, userID, token)
	return args.Error(0)
}

func (m *DeviceTokenRepositoryMock) DeactivateToken(ctx context.Context, token string) error {
	args := m.Called(ctx, token)
	return args.Error(0)
}

func (m *DeviceTokenRepositoryMock) TouchToken(ctx context.Context, token string, at time.Time) error {
	args := m.Called(ctx, token, at)
	return args.Error(0)
}

func (m *DeviceTokenRepositoryMock) ListActiveDeviceTokens(ctx context.Context, userID string) ([]models.DeviceToken, error) {
	args := m.Called(ctx, userID)
	var tokens []models.DeviceToken
	if val := args.Get(0); val != nil {
		tokens = val.([]models.DeviceToken)
	}
	return tokens, args.Error(1)
}

func (m *DeviceTokenRepositoryMock) CountStale(ctx context.Context, cutoff time.Time) (int64, error) {
	args := m.Called(ctx, cutoff)
	return args.Get(0).(int64), args.Error(1)
}

func (m *DeviceTokenRepositoryMock) PurgeStale(ctx context.Context, cutoff time.Time) (int64, error) {
	args := m.Called(ctx, cutoff)
	return args.Get(0).(int64), args.Error(1)
}

type BatchRepositoryMock struct {
	mock.Mock
}

func (m *BatchRepositoryMock) CreateBatch(ctx context.Context, batch models.NotificationBatch) (models.NotificationBatch, error) {
	args := m.Called(ctx, batch)
	var stored models.NotificationBatch
	if val := args.Get(0); val != nil {
		stored = val.(models.NotificationBatch)
	}
	return stored, args.Error(1)
}

func (m *BatchRepositoryMock) GetBatch(ctx context.Context, batchID string) (models.NotificationBatch, error) {
	args := m.Called(ctx, batchID)
	var batch models.NotificationBatch
	if val := args.Get(0); val != nil {
		batch = val.(models.NotificationBatch)
	}
	return batch, args.Error(1)
}

func (m *BatchRepositoryMock) TransitionStatus(ctx context.Context, batchID string, from models.BatchStatus, to models.BatchStatus) error {
	args := m.Called(ctx, batchID, from, to)
	return args.Error(0)
}

func (m *BatchRepositoryMock) CompleteBatch(ctx context.Context, batchID string, result models.BatchResult) error {
	args := m.Called(ctx, batchID, result)
	return args.Error(0)
}

type UserDirectoryMock struct {
	mock.Mock
}

func (m *UserDirectoryMock) FilterUsers(ctx context.Context, filter models.UserFilter) ([]string, error) {
	args := m.Called(ctx, filter)
	var ids []string
	if val := args.Get(0); val != nil {
		ids = val.([]string)
	}
	return ids, args.Error(1)
}

func (m *UserDirectoryMock) ResolveUsernames(ctx context.Context, usernames []string) (map[string]string, error) {
	args := m.Called(ctx, usernames)
	var ids map[string]string
	if val := args.Get(0); val != nil {
		ids = val.(map[string]string)
	}
	return ids, args.Error(1)
}

var _ repositories.RoomRepository = (*RoomRepositoryMock)(nil)
var _ repositories.MessageRepository = (*MessageRepositoryMock)(nil)
var _ repositories.PresenceRepository = (*PresenceRepositoryMock)(nil)
var _ repositories.NotificationRepository = (*NotificationRepositoryMock)(nil)
var _ repositories.DeviceTokenRepository = (*DeviceTokenRepositoryMock)(nil)
var _ repositories.BatchRepository = (*BatchRepositoryMock)(nil)
var _ repositories.UserDirectory = (*UserDirectoryMock)(nil)
