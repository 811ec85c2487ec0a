package chat

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"realtime-service/internal/mocks"
	"realtime-service/internal/models"
	"realtime-service/internal/ws"
)

const (
	roomID    = "3f2a7c1e-8d4b-4e6a-9c0f-1b2d3e4f5a60"
	otherRoom = "7b1c2d3e-4f5a-4b6c-8d7e-9f0a1b2c3d4e"
	msgID     = "a1b2c3d4-e5f6-4a7b-8c9d-0e1f2a3b4c5d"
	replyID   = "b2c3d4e5-f6a7-4b8c-9d0e-1f2a3b4c5d6e"
)

const (
	timeout = 2 * time.Second
	tick    = 10 * time.Millisecond
)

var errBoom = errors.New("boom")

type published struct {
	topic string
	frame any
	skip  string
}

type recordingBroadcaster struct {
	mu      sync.Mutex
	frames  []published
	evicted []string
	closed  []string
}

func (b *recordingBroadcaster) Evict(topic, userID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.evicted = append(b.evicted, topic+"|"+userID)
	return 1
}

func (b *recordingBroadcaster) CloseTopic(topic string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = append(b.closed, topic)
	return 2
}

func (b *recordingBroadcaster) drops() (evicted, closed []string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.evicted...), append([]string(nil), b.closed...)
}

func (b *recordingBroadcaster) PublishJSON(topic string, v any) (int, error) {
	return b.PublishJSONExcept(topic, v, "")
}

func (b *recordingBroadcaster) PublishJSONExcept(topic string, v any, skipID string) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.frames = append(b.frames, published{topic: topic, frame: v, skip: skipID})
	return 1, nil
}

func (b *recordingBroadcaster) all() []published {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]published(nil), b.frames...)
}

type notifyCall struct {
	kind       string
	room       models.ChatRoom
	msg        models.Message
	actorID    string
	content    string
	source     models.SourceRef
	recipients []string
}

type recordingNotifier struct {
	mu    sync.Mutex
	calls []notifyCall
}

func (n *recordingNotifier) NotifyMessage(_ context.Context, room models.ChatRoom, msg models.Message, recipients []string) {
	n.record(notifyCall{kind: "message", room: room, msg: msg, actorID: msg.SenderID, recipients: recipients})
}

func (n *recordingNotifier) NotifyChatInvite(_ context.Context, room models.ChatRoom, inviterID string, invitees []string) {
	n.record(notifyCall{kind: "chat_invite", room: room, actorID: inviterID, recipients: invitees})
}

func (n *recordingNotifier) NotifyMentions(_ context.Context, authorID, content string, source models.SourceRef, allowed []string) {
	n.record(notifyCall{kind: "mention", actorID: authorID, content: content, source: source, recipients: allowed})
}

func (n *recordingNotifier) record(c notifyCall) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, c)
}

func (n *recordingNotifier) all() []notifyCall {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notifyCall(nil), n.calls...)
}

type onlineStub struct {
	online []string
	err    error
}

func (o onlineStub) OnlineAmong(_ context.Context, _ []string) ([]string, error) {
	return o.online, o.err
}

type fixture struct {
	rooms    *mocks.RoomRepositoryMock
	messages *mocks.MessageRepositoryMock
	hub      *recordingBroadcaster
	notifier *recordingNotifier
	service  *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		rooms:    &mocks.RoomRepositoryMock{},
		messages: &mocks.MessageRepositoryMock{},
		hub:      &recordingBroadcaster{},
		notifier: &recordingNotifier{},
	}
	f.service = NewService(f.rooms, f.messages, f.hub, f.notifier, onlineStub{online: []string{"alice"}}, zap.NewNop())
	t.Cleanup(func() {
		f.rooms.AssertExpectations(t)
		f.messages.AssertExpectations(t)
	})
	return f
}

func groupRoom(participants ...string) models.ChatRoom {
	name := "Book club"
	return models.ChatRoom{
		ID:           roomID,
		Name:         &name,
		Type:         models.RoomGroup,
		CreatedBy:    participants[0],
		IsActive:     true,
		Participants: participants,
	}
}

func directRoom(a, b string) models.ChatRoom {
	return models.ChatRoom{ID: roomID, Type: models.RoomDirect, CreatedBy: a, IsActive: true, Participants: []string{a, b}}
}

func strPtr(s string) *string { return &s }

// fakeConn is an in-memory ws.Transport.
type fakeConn struct {
	id   string
	user string
	in   chan []byte
	done chan struct{}
	once sync.Once

	mu     sync.Mutex
	out    [][]byte
	closed bool
}

func newFakeConn(id string) *fakeConn {
	return &fakeConn{id: id, in: make(chan []byte, 16), done: make(chan struct{})}
}

func newUserConn(id, userID string) *fakeConn {
	c := newFakeConn(id)
	c.user = userID
	return c
}

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) Info() ws.ConnInfo { return ws.ConnInfo{ConnID: c.id, UserID: c.user} }

func (c *fakeConn) Enqueue(payload []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	c.out = append(c.out, payload)
	return true
}

func (c *fakeConn) SendJSON(v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if !c.Enqueue(payload) {
		return ws.ErrConnClosed
	}
	return nil
}

func (c *fakeConn) ReadFrame() ([]byte, error) {
	select {
	case raw, ok := <-c.in:
		if !ok {
			return nil, io.EOF
		}
		return raw, nil
	case <-c.done:
		return nil, ws.ErrConnClosed
	}
}

func (c *fakeConn) Close() {
	c.once.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
		close(c.done)
	})
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeConn) frames(t *testing.T) []map[string]any {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]map[string]any, 0, len(c.out))
	for _, raw := range c.out {
		var m map[string]any
		require.NoError(t, json.Unmarshal(raw, &m))
		out = append(out, m)
	}
	return out
}

type presenceRecorder struct {
	mu           sync.Mutex
	connected    []string
	disconnected []string
}

func (p *presenceRecorder) Connected(_ context.Context, userID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.connected = append(p.connected, userID)
}

func (p *presenceRecorder) Disconnected(_ context.Context, userID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.disconnected = append(p.disconnected, userID)
}

func (p *presenceRecorder) counts() (int, int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.connected), len(p.disconnected)
}

func waitErr(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(timeout):
		t.Fatal("session did not finish")
		return nil
	}
}
