package chat

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"realtime-service/internal/apperr"
	"realtime-service/internal/models"
	"realtime-service/internal/repositories"
	"realtime-service/internal/ws"
)

func TestSendMessageBroadcastsAndNotifies(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	room := groupRoom("alice", "bob", "carol")
	stored := models.Message{ID: msgID, RoomID: roomID, SenderID: "alice", Type: models.MessageText, Content: "hi @bob", CreatedAt: time.Now()}

	f.rooms.On("GetRoom", mock.Anything, roomID).Return(room, nil)
	f.messages.On("CreateMessage", mock.Anything, mock.MatchedBy(func(m models.Message) bool {
		return m.RoomID == roomID && m.SenderID == "alice" && m.Content == "hi @bob" && m.Type == models.MessageText && m.ReplyToID == nil
	})).Return(stored, nil)

	msg, err := f.service.SendMessage(ctx, roomID, "alice", SendMessageInput{Content: "  hi @bob  "})
	require.NoError(t, err)
	assert.Equal(t, stored, msg)

	frames := f.hub.all()
	require.Len(t, frames, 1)
	assert.Equal(t, ws.RoomTopic(roomID), frames[0].topic)
	assert.Equal(t, models.MessageEvent{Type: models.EventMessage, Message: stored}, frames[0].frame)

	calls := f.notifier.all()
	require.Len(t, calls, 2)
	assert.Equal(t, "message", calls[0].kind)
	assert.Equal(t, []string{"bob", "carol"}, calls[0].recipients)
	assert.Equal(t, "mention", calls[1].kind)
	assert.Equal(t, models.SourceRef{Kind: models.SourceRoom, ID: roomID}, calls[1].source)
	assert.Equal(t, []string{"bob", "carol"}, calls[1].recipients)
}

func TestSendMessageByOutsiderIsForbidden(t *testing.T) {
	f := newFixture(t)
	f.rooms.On("GetRoom", mock.Anything, roomID).Return(directRoom("bob", "carol"), nil)

	_, err := f.service.SendMessage(context.Background(), roomID, "alice", SendMessageInput{Content: "hi"})
	require.Error(t, err)
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))
	f.messages.AssertNotCalled(t, "CreateMessage", mock.Anything, mock.Anything)
	assert.Empty(t, f.hub.all())
	assert.Empty(t, f.notifier.all())
}

func TestSendMessageValidation(t *testing.T) {
	tests := []struct {
		name string
		in   SendMessageInput
		msg  string
	}{
		{"empty text", SendMessageInput{Content: "   "}, "message content is required"},
		{"image without attachment", SendMessageInput{Type: models.MessageImage}, "attachment is required"},
		{"file with empty attachment", SendMessageInput{Type: models.MessageFile, AttachmentURL: strPtr("")}, "attachment is required"},
		{"system type", SendMessageInput{Type: models.MessageSystem, Content: "x"}, "unsupported message type"},
		{"unknown type", SendMessageInput{Type: "video", Content: "x"}, "unsupported message type"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			_, err := f.service.SendMessage(context.Background(), roomID, "alice", tt.in)
			require.Error(t, err)
			assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
			assert.Equal(t, tt.msg, apperr.PublicMessage(err))
		})
	}
}

func TestSendMessageErrors(t *testing.T) {
	tests := []struct {
		name  string
		setup func(f *fixture)
		kind  apperr.Kind
	}{
		{
			name:  "unknown room",
			setup: func(f *fixture) { f.rooms.On("GetRoom", mock.Anything, roomID).Return(nil, repositories.ErrRoomNotFound) },
			kind:  apperr.KindNotFound,
		},
		{
			name: "inactive room",
			setup: func(f *fixture) {
				room := groupRoom("alice", "bob")
				room.IsActive = false
				f.rooms.On("GetRoom", mock.Anything, roomID).Return(room, nil)
			},
			kind: apperr.KindForbidden,
		},
		{
			name: "store failure",
			setup: func(f *fixture) {
				f.rooms.On("GetRoom", mock.Anything, roomID).Return(groupRoom("alice", "bob"), nil)
				f.messages.On("CreateMessage", mock.Anything, mock.Anything).Return(nil, errBoom)
			},
			kind: apperr.KindInternal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			tt.setup(f)
			_, err := f.service.SendMessage(context.Background(), roomID, "alice", SendMessageInput{Content: "hi"})
			require.Error(t, err)
			assert.Equal(t, tt.kind, apperr.KindOf(err))
			assert.Empty(t, f.hub.all())
			assert.Empty(t, f.notifier.all())
		})
	}
}

func TestSendMessageReplyTarget(t *testing.T) {
	tests := []struct {
		name   string
		parent models.Message
		err    error
		want   *string
	}{
		{"same room", models.Message{ID: replyID, RoomID: roomID}, nil, strPtr(replyID)},
		{"other room", models.Message{ID: replyID, RoomID: otherRoom}, nil, nil},
		{"missing", models.Message{}, repositories.ErrMessageNotFound, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.rooms.On("GetRoom", mock.Anything, roomID).Return(directRoom("alice", "bob"), nil)
			f.messages.On("GetMessage", mock.Anything, replyID).Return(tt.parent, tt.err)
			f.messages.On("CreateMessage", mock.Anything, mock.MatchedBy(func(m models.Message) bool {
				return assert.ObjectsAreEqual(tt.want, m.ReplyToID)
			})).Return(models.Message{ID: msgID, RoomID: roomID, SenderID: "alice", Type: models.MessageText, Content: "re"}, nil)

			_, err := f.service.SendMessage(context.Background(), roomID, "alice", SendMessageInput{Content: "re", ReplyToID: strPtr(replyID)})
			require.NoError(t, err)
		})
	}
}

func TestSendMessageAloneInRoomSkipsNotifications(t *testing.T) {
	f := newFixture(t)
	f.rooms.On("GetRoom", mock.Anything, roomID).Return(groupRoom("alice"), nil)
	f.messages.On("CreateMessage", mock.Anything, mock.Anything).Return(models.Message{ID: msgID, RoomID: roomID, SenderID: "alice"}, nil)

	_, err := f.service.SendMessage(context.Background(), roomID, "alice", SendMessageInput{Content: "echo"})
	require.NoError(t, err)
	assert.Len(t, f.hub.all(), 1)
	assert.Empty(t, f.notifier.all())
}

func TestTypingSkipsOriginConnection(t *testing.T) {
	f := newFixture(t)
	f.rooms.On("IsParticipant", mock.Anything, roomID, "alice").Return(true, nil)

	require.NoError(t, f.service.Typing(context.Background(), roomID, "alice", true, "conn-1"))

	frames := f.hub.all()
	require.Len(t, frames, 1)
	assert.Equal(t, "conn-1", frames[0].skip)
	assert.Equal(t, models.TypingEvent{Type: models.EventTyping, UserID: "alice", IsTyping: true}, frames[0].frame)
}

func TestMarkRead(t *testing.T) {
	t.Run("explicit ids", func(t *testing.T) {
		f := newFixture(t)
		ids := []string{msgID, replyID}
		f.rooms.On("IsParticipant", mock.Anything, roomID, "bob").Return(true, nil)
		f.messages.On("ReadableMessageIDs", mock.Anything, roomID, "bob", ids).Return([]string{msgID}, nil)
		f.messages.On("CreateMessageReadRecords", mock.Anything, "bob", []string{msgID}).Return([]string{msgID}, nil)

		marked, err := f.service.MarkRead(context.Background(), roomID, "bob", ids, false)
		require.NoError(t, err)
		assert.Equal(t, []string{msgID}, marked)

		frames := f.hub.all()
		require.Len(t, frames, 1)
		assert.Equal(t, models.MessagesReadEvent{Type: models.EventMessagesRead, UserID: "bob", MessageIDs: []string{msgID}}, frames[0].frame)
	})

	t.Run("second call is a no-op", func(t *testing.T) {
		f := newFixture(t)
		f.rooms.On("IsParticipant", mock.Anything, roomID, "bob").Return(true, nil)
		f.messages.On("UnreadMessageIDs", mock.Anything, roomID, "bob").Return([]string{msgID}, nil)
		f.messages.On("CreateMessageReadRecords", mock.Anything, "bob", []string{msgID}).Return([]string{}, nil)

		marked, err := f.service.MarkRead(context.Background(), roomID, "bob", nil, true)
		require.NoError(t, err)
		assert.Empty(t, marked)
		assert.Empty(t, f.hub.all())
	})

	t.Run("nothing to mark", func(t *testing.T) {
		f := newFixture(t)
		f.rooms.On("IsParticipant", mock.Anything, roomID, "bob").Return(true, nil)
		f.messages.On("UnreadMessageIDs", mock.Anything, roomID, "bob").Return(nil, nil)

		marked, err := f.service.MarkRead(context.Background(), roomID, "bob", nil, true)
		require.NoError(t, err)
		assert.Empty(t, marked)
		f.messages.AssertNotCalled(t, "CreateMessageReadRecords", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("requires ids or all", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.service.MarkRead(context.Background(), roomID, "bob", nil, false)
		assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	})
}

func TestEditMessage(t *testing.T) {
	own := models.Message{ID: msgID, RoomID: roomID, SenderID: "alice", Content: "old"}

	tests := []struct {
		name    string
		user    string
		content string
		stored  models.Message
		kind    apperr.Kind
	}{
		{"other sender", "bob", "new", own, apperr.KindForbidden},
		{"other room", "alice", "new", models.Message{ID: msgID, RoomID: otherRoom, SenderID: "alice"}, apperr.KindNotFound},
		{"deleted", "alice", "new", models.Message{ID: msgID, RoomID: roomID, SenderID: "alice", IsDeleted: true, Content: models.Tombstone}, apperr.KindValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.rooms.On("IsParticipant", mock.Anything, roomID, tt.user).Return(true, nil)
			f.messages.On("GetMessage", mock.Anything, msgID).Return(tt.stored, nil)

			_, err := f.service.EditMessage(context.Background(), roomID, tt.user, msgID, tt.content)
			require.Error(t, err)
			assert.Equal(t, tt.kind, apperr.KindOf(err))
			f.messages.AssertNotCalled(t, "UpdateMessage", mock.Anything, mock.Anything, mock.Anything)
			assert.Empty(t, f.hub.all())
		})
	}

	t.Run("empty content", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.service.EditMessage(context.Background(), roomID, "alice", msgID, " ")
		assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	})

	t.Run("sender edits", func(t *testing.T) {
		f := newFixture(t)
		edited := own
		edited.Content = "new"
		f.rooms.On("IsParticipant", mock.Anything, roomID, "alice").Return(true, nil)
		f.messages.On("GetMessage", mock.Anything, msgID).Return(own, nil)
		f.messages.On("UpdateMessage", mock.Anything, msgID, "new").Return(edited, nil)

		got, err := f.service.EditMessage(context.Background(), roomID, "alice", msgID, "new")
		require.NoError(t, err)
		assert.Equal(t, "new", got.Content)
		frames := f.hub.all()
		require.Len(t, frames, 1)
		assert.Equal(t, models.MessageEvent{Type: models.EventMessageEdited, Message: edited}, frames[0].frame)
	})
}

func TestDeleteMessage(t *testing.T) {
	t.Run("soft delete broadcasts tombstone", func(t *testing.T) {
		f := newFixture(t)
		f.rooms.On("IsParticipant", mock.Anything, roomID, "alice").Return(true, nil)
		f.messages.On("GetMessage", mock.Anything, msgID).Return(models.Message{ID: msgID, RoomID: roomID, SenderID: "alice", Content: "oops"}, nil)
		f.messages.On("SoftDeleteMessage", mock.Anything, msgID).
			Return(models.Message{ID: msgID, RoomID: roomID, SenderID: "alice", Content: models.Tombstone, IsDeleted: true}, nil)

		got, err := f.service.DeleteMessage(context.Background(), roomID, "alice", msgID)
		require.NoError(t, err)
		assert.True(t, got.IsDeleted)
		assert.Equal(t, models.Tombstone, got.Content)

		frames := f.hub.all()
		require.Len(t, frames, 1)
		assert.Equal(t, models.MessageDeletedEvent{Type: models.EventMessageDeleted, MessageID: msgID, Content: models.Tombstone}, frames[0].frame)
	})

	t.Run("already deleted is a no-op", func(t *testing.T) {
		f := newFixture(t)
		f.rooms.On("IsParticipant", mock.Anything, roomID, "alice").Return(true, nil)
		f.messages.On("GetMessage", mock.Anything, msgID).
			Return(models.Message{ID: msgID, RoomID: roomID, SenderID: "alice", Content: models.Tombstone, IsDeleted: true}, nil)

		_, err := f.service.DeleteMessage(context.Background(), roomID, "alice", msgID)
		require.NoError(t, err)
		f.messages.AssertNotCalled(t, "SoftDeleteMessage", mock.Anything, mock.Anything)
		assert.Empty(t, f.hub.all())
	})

	t.Run("other sender", func(t *testing.T) {
		f := newFixture(t)
		f.rooms.On("IsParticipant", mock.Anything, roomID, "bob").Return(true, nil)
		f.messages.On("GetMessage", mock.Anything, msgID).Return(models.Message{ID: msgID, RoomID: roomID, SenderID: "alice"}, nil)

		_, err := f.service.DeleteMessage(context.Background(), roomID, "bob", msgID)
		assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))
	})

	t.Run("unknown message", func(t *testing.T) {
		f := newFixture(t)
		f.rooms.On("IsParticipant", mock.Anything, roomID, "alice").Return(true, nil)
		f.messages.On("GetMessage", mock.Anything, msgID).Return(nil, repositories.ErrMessageNotFound)

		_, err := f.service.DeleteMessage(context.Background(), roomID, "alice", msgID)
		assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
	})
}

func TestCreateGroupRoomInvitesOthers(t *testing.T) {
	f := newFixture(t)
	room := groupRoom("alice", "bob", "carol")
	f.rooms.On("CreateGroupRoom", mock.Anything, "alice", "Book club", []string{"bob", "carol", "bob"}).Return(room, nil)

	got, err := f.service.CreateGroupRoom(context.Background(), "alice", " Book club ", []string{"bob", "carol", "bob"})
	require.NoError(t, err)
	assert.Equal(t, room, got)

	calls := f.notifier.all()
	require.Len(t, calls, 1)
	assert.Equal(t, "chat_invite", calls[0].kind)
	assert.Equal(t, "alice", calls[0].actorID)
	assert.Equal(t, []string{"bob", "carol"}, calls[0].recipients)
}

func TestCreateGroupRoomRejectsLongName(t *testing.T) {
	f := newFixture(t)
	name := make([]rune, maxRoomName+1)
	for i := range name {
		name[i] = 'ж'
	}
	_, err := f.service.CreateGroupRoom(context.Background(), "alice", string(name), nil)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestGetOrCreateDirectRoom(t *testing.T) {
	t.Run("self chat", func(t *testing.T) {
		f := newFixture(t)
		_, _, err := f.service.GetOrCreateDirectRoom(context.Background(), "alice", "alice")
		assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	})

	t.Run("either order returns the same room", func(t *testing.T) {
		f := newFixture(t)
		room := directRoom("alice", "bob")
		f.rooms.On("GetOrCreateDirectRoom", mock.Anything, "alice", "bob").Return(room, true, nil).Once()
		f.rooms.On("GetOrCreateDirectRoom", mock.Anything, "bob", "alice").Return(room, false, nil).Once()

		first, created, err := f.service.GetOrCreateDirectRoom(context.Background(), "alice", "bob")
		require.NoError(t, err)
		assert.True(t, created)
		second, created, err := f.service.GetOrCreateDirectRoom(context.Background(), "bob", "alice")
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, first.ID, second.ID)
	})
}

func TestJoinRoom(t *testing.T) {
	t.Run("direct room", func(t *testing.T) {
		f := newFixture(t)
		f.rooms.On("GetRoom", mock.Anything, roomID).Return(directRoom("bob", "carol"), nil)
		_, err := f.service.JoinRoom(context.Background(), roomID, "alice")
		assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	})

	t.Run("group room", func(t *testing.T) {
		f := newFixture(t)
		f.rooms.On("GetRoom", mock.Anything, roomID).Return(groupRoom("bob", "carol"), nil)
		f.rooms.On("AddParticipant", mock.Anything, roomID, "alice").Return(nil)
		f.rooms.On("TouchRoom", mock.Anything, roomID).Return(nil)

		room, err := f.service.JoinRoom(context.Background(), roomID, "alice")
		require.NoError(t, err)
		assert.Equal(t, []string{"bob", "carol", "alice"}, room.Participants)
		frames := f.hub.all()
		require.Len(t, frames, 1)
		assert.Equal(t, models.UserStatusEvent{Type: models.EventUserStatus, UserID: "alice", Status: models.StatusUserJoined}, frames[0].frame)
	})

	t.Run("already a member", func(t *testing.T) {
		f := newFixture(t)
		f.rooms.On("GetRoom", mock.Anything, roomID).Return(groupRoom("alice", "bob"), nil)
		_, err := f.service.JoinRoom(context.Background(), roomID, "alice")
		require.NoError(t, err)
		f.rooms.AssertNotCalled(t, "AddParticipant", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestLeaveRoom(t *testing.T) {
	t.Run("direct room", func(t *testing.T) {
		f := newFixture(t)
		f.rooms.On("GetRoom", mock.Anything, roomID).Return(directRoom("alice", "bob"), nil)
		_, err := f.service.LeaveRoom(context.Background(), roomID, "alice")
		assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	})

	t.Run("not a participant", func(t *testing.T) {
		f := newFixture(t)
		f.rooms.On("GetRoom", mock.Anything, roomID).Return(groupRoom("bob", "carol"), nil)
		f.rooms.On("LeaveRoom", mock.Anything, roomID, "alice").Return(false, repositories.ErrNotParticipant)
		_, err := f.service.LeaveRoom(context.Background(), roomID, "alice")
		assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))
		assert.Empty(t, f.hub.all())
	})

	t.Run("creator leaves", func(t *testing.T) {
		f := newFixture(t)
		f.rooms.On("GetRoom", mock.Anything, roomID).Return(groupRoom("alice", "bob"), nil)
		f.rooms.On("LeaveRoom", mock.Anything, roomID, "alice").Return(true, nil)

		deactivated, err := f.service.LeaveRoom(context.Background(), roomID, "alice")
		require.NoError(t, err)
		assert.True(t, deactivated)
		frames := f.hub.all()
		require.Len(t, frames, 1)
		assert.Equal(t, models.UserStatusEvent{Type: models.EventUserStatus, UserID: "alice", Status: models.StatusUserLeft}, frames[0].frame)
		evicted, closed := f.hub.drops()
		assert.Empty(t, evicted)
		assert.Equal(t, []string{ws.RoomTopic(roomID)}, closed)
	})

	t.Run("member leaves", func(t *testing.T) {
		f := newFixture(t)
		f.rooms.On("GetRoom", mock.Anything, roomID).Return(groupRoom("alice", "bob", "carol"), nil)
		f.rooms.On("LeaveRoom", mock.Anything, roomID, "bob").Return(false, nil)

		deactivated, err := f.service.LeaveRoom(context.Background(), roomID, "bob")
		require.NoError(t, err)
		assert.False(t, deactivated)
		evicted, closed := f.hub.drops()
		assert.Equal(t, []string{ws.RoomTopic(roomID) + "|bob"}, evicted)
		assert.Empty(t, closed)
	})
}

func TestOnlineParticipants(t *testing.T) {
	f := newFixture(t)
	f.rooms.On("GetRoom", mock.Anything, roomID).Return(groupRoom("alice", "bob"), nil)

	online, err := f.service.OnlineParticipants(context.Background(), roomID, "bob")
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, online)

	_, err = f.service.OnlineParticipants(context.Background(), roomID, "mallory")
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))
}
