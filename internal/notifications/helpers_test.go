package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"

	"realtime-service/internal/mocks"
	"realtime-service/internal/models"
	"realtime-service/internal/push"
	"realtime-service/internal/sourceref"
)

var fixedNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type published struct {
	topic string
	frame any
}

type recordingHub struct {
	mu     sync.Mutex
	frames []published
}

func (h *recordingHub) PublishJSON(topic string, v any) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.frames = append(h.frames, published{topic: topic, frame: v})
	return 1, nil
}

func (h *recordingHub) all() []published {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]published(nil), h.frames...)
}

type pushQueueStub struct {
	mu   sync.Mutex
	jobs []push.Job
	err  error
}

func (q *pushQueueStub) Enqueue(_ context.Context, job push.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

type fixture struct {
	d      *Dispatcher
	store  *mocks.NotificationRepositoryMock
	tokens *mocks.DeviceTokenRepositoryMock
	users  *mocks.UserDirectoryMock
	hub    *recordingHub
	push   *pushQueueStub
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	sources := sourceref.NewRegistry()
	for _, kind := range []models.SourceKind{models.SourcePost, models.SourceComment, models.SourceRoom, models.SourceUser} {
		sources.Register(kind, sourceref.ReferenceOnly(kind))
	}
	f := &fixture{
		store:  new(mocks.NotificationRepositoryMock),
		tokens: new(mocks.DeviceTokenRepositoryMock),
		users:  new(mocks.UserDirectoryMock),
		hub:    &recordingHub{},
		push:   &pushQueueStub{},
	}
	f.d = NewDispatcher(Deps{
		Store:   f.store,
		Tokens:  f.tokens,
		Users:   f.users,
		Sources: sources,
		Hub:     f.hub,
		Push:    f.push,
		Logger:  zap.NewNop(),
	})
	f.d.now = func() time.Time { return fixedNow }
	return f
}

// expectDelivery wires the mocks for a notification that is stored and
// delivered in-app with no push devices.
func (f *fixture) expectDelivery(userID string) {
	f.store.On("CreateNotification", mock.Anything, mock.MatchedBy(func(n models.Notification) bool {
		return n.RecipientID == userID
	})).Return(models.Notification{ID: "n-" + userID, RecipientID: userID, CreatedAt: fixedNow}, nil)
	f.store.On("UnreadCount", mock.Anything, userID).Return(int64(1), nil)
	f.tokens.On("ListActiveDeviceTokens", mock.Anything, userID).Return([]models.DeviceToken{}, nil)
}

func strPtr(s string) *string { return &s }

func tod(h, m int) *models.TimeOfDay {
	t := models.NewTimeOfDay(h, m)
	return &t
}

func frameType(t *testing.T, frame any) string {
	t.Helper()
	raw, err := json.Marshal(frame)
	if err != nil {
		t.Fatalf("marshal frame: %v", err)
	}
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		t.Fatalf("unmarshal frame: %v", err)
	}
	return head.Type
}

var errBoom = errors.New("boom")
