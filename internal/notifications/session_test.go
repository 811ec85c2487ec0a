package notifications

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"realtime-service/internal/models"
	"realtime-service/internal/ws"
)

type fakeConn struct {
	id   string
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

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) Info() ws.ConnInfo { return ws.ConnInfo{ConnID: c.id} }

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

func runSession(t *testing.T, s *Session, conn *fakeConn) <-chan error {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- s.Run(context.Background(), conn) }()
	return done
}

func wait(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("session did not finish")
		return nil
	}
}

func TestNotificationSessionFlow(t *testing.T) {
	f := newFixture(t)
	hub := ws.NewHub(zap.NewNop())
	presence := &presenceRecorder{}
	conn := newFakeConn("c1")
	const nid = "0b6c8f1e-8a51-4c1f-9f43-3d1f9d0f2a11"

	f.store.On("ListUnread", mock.Anything, "u2", UnreadOnConnect).Return([]models.Notification{{ID: nid, RecipientID: "u2", Title: "New like"}}, nil).Once()
	f.store.On("UnreadCount", mock.Anything, "u2").Return(int64(1), nil)
	f.store.On("MarkRead", mock.Anything, "u2", []string{nid}, false, fixedNow).Return(int64(1), nil).Once()
	f.store.On("CountForUser", mock.Anything, "u2").Return(int64(1), nil).Once()
	f.store.On("ListForUser", mock.Anything, "u2", 5, 0).Return([]models.Notification{{ID: nid, RecipientID: "u2"}}, nil).Once()

	s := NewSession("u2", f.d, hub, presence, zap.NewNop())
	done := runSession(t, s, conn)

	conn.in <- []byte(`{"action":"mark_read","notification_ids":["` + nid + `"]}`)
	conn.in <- []byte(`{"action":"get_unread_count"}`)
	conn.in <- []byte(`{"action":"get_notifications","page":1,"page_size":5}`)
	conn.in <- []byte(`{"action":"mark_read"}`)
	conn.in <- []byte(`not json`)
	close(conn.in)

	assert.ErrorIs(t, wait(t, done), io.EOF)

	frames := conn.frames(t)
	require.Len(t, frames, 7)
	assert.Equal(t, "unread_notifications", frames[0]["type"])
	assert.Len(t, frames[0]["notifications"], 1)
	assert.Equal(t, "unread_count", frames[1]["type"])
	assert.Equal(t, map[string]any{"type": "mark_read_response", "marked_count": float64(1), "success": true}, frames[2])
	assert.Equal(t, "unread_count", frames[3]["type"])
	assert.Equal(t, "notifications_list", frames[4]["type"])
	assert.Equal(t, float64(1), frames[4]["total_pages"])
	assert.Equal(t, "validation_error", frames[5]["code"])
	assert.Equal(t, "malformed frame", frames[6]["message"])

	// the refreshed badge goes to every device of the user
	var counts int
	for _, p := range f.hub.all() {
		if p.topic == ws.UserTopic("u2") {
			counts++
		}
	}
	assert.Equal(t, 1, counts)

	assert.Equal(t, 0, hub.Subscribers(ws.UserTopic("u2")))
	assert.Equal(t, []string{"u2"}, presence.connected)
	assert.Equal(t, []string{"u2"}, presence.disconnected)
	assert.True(t, conn.closed)
}

func TestNotificationSessionReceivesLiveNotifications(t *testing.T) {
	f := newFixture(t)
	hub := ws.NewHub(zap.NewNop())
	conn := newFakeConn("c1")

	f.store.On("ListUnread", mock.Anything, "u2", UnreadOnConnect).Return(nil, nil).Once()
	f.store.On("UnreadCount", mock.Anything, "u2").Return(int64(0), nil).Once()

	s := NewSession("u2", f.d, hub, &presenceRecorder{}, zap.NewNop())
	done := runSession(t, s, conn)

	require.Eventually(t, func() bool { return len(conn.frames(t)) == 2 }, time.Second, 5*time.Millisecond)
	n, err := hub.PublishJSON(ws.UserTopic("u2"), models.UnreadCountEvent{Type: models.EventUnreadCount, Count: 5})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	close(conn.in)
	wait(t, done)

	frames := conn.frames(t)
	require.Len(t, frames, 3)
	assert.Equal(t, float64(5), frames[2]["count"])
}
