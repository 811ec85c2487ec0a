package notifications

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type storyStoreStub struct {
	expired int64
	deleted int64
	err     error
	seenNow time.Time
}

func (s *storyStoreStub) CountExpired(_ context.Context, now time.Time) (int64, error) {
	s.seenNow = now
	return s.expired, s.err
}

func (s *storyStoreStub) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	s.seenNow = now
	return s.deleted, s.err
}

func newTestCleaner(f *fixture, stories *storyStoreStub) *Cleaner {
	cfg := CleanerConfig{NotificationRetentionDays: 30, DeviceTokenInactiveDays: 90, Interval: time.Hour}
	var c *Cleaner
	if stories == nil {
		c = NewCleaner(f.d, f.tokens, nil, cfg, zap.NewNop())
	} else {
		c = NewCleaner(f.d, f.tokens, stories, cfg, zap.NewNop())
	}
	c.now = func() time.Time { return fixedNow }
	return c
}

func TestCleanerRunOnce(t *testing.T) {
	f := newFixture(t)
	stories := &storyStoreStub{deleted: 4}
	c := newTestCleaner(f, stories)

	f.store.On("DeleteReadBefore", mock.Anything, fixedNow.AddDate(0, 0, -30)).Return(int64(12), nil).Once()
	f.tokens.On("PurgeStale", mock.Anything, fixedNow.AddDate(0, 0, -90)).Return(int64(2), nil).Once()

	report, err := c.RunOnce(context.Background())

	require.NoError(t, err)
	assert.Equal(t, Report{Notifications: 12, Stories: 4, DeviceTokens: 2}, report)
	assert.Equal(t, fixedNow, stories.seenNow)
	f.store.AssertExpectations(t)
	f.tokens.AssertExpectations(t)
}

func TestCleanerRunOnceKeepsGoingAfterFailure(t *testing.T) {
	f := newFixture(t)
	c := newTestCleaner(f, &storyStoreStub{err: errBoom})

	f.store.On("DeleteReadBefore", mock.Anything, mock.Anything).Return(int64(0), errBoom).Once()
	f.tokens.On("PurgeStale", mock.Anything, mock.Anything).Return(int64(3), nil).Once()

	report, err := c.RunOnce(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "notifications: boom")
	assert.Contains(t, err.Error(), "stories: boom")
	assert.Equal(t, int64(3), report.DeviceTokens)
}

func TestCleanerWithoutStoryStore(t *testing.T) {
	f := newFixture(t)
	c := newTestCleaner(f, nil)

	f.store.On("DeleteReadBefore", mock.Anything, mock.Anything).Return(int64(1), nil).Once()
	f.tokens.On("PurgeStale", mock.Anything, mock.Anything).Return(int64(0), nil).Once()

	report, err := c.RunOnce(context.Background())

	require.NoError(t, err)
	assert.Equal(t, int64(0), report.Stories)
}

func TestCleanerDryRunDeletesNothing(t *testing.T) {
	f := newFixture(t)
	c := newTestCleaner(f, &storyStoreStub{expired: 6})

	f.store.On("CountReadBefore", mock.Anything, fixedNow.AddDate(0, 0, -30)).Return(int64(9), nil).Once()
	f.tokens.On("CountStale", mock.Anything, fixedNow.AddDate(0, 0, -90)).Return(int64(1), nil).Once()

	report, err := c.DryRun(context.Background())

	require.NoError(t, err)
	assert.Equal(t, Report{Notifications: 9, Stories: 6, DeviceTokens: 1, DryRun: true}, report)
	f.store.AssertNotCalled(t, "DeleteReadBefore", mock.Anything, mock.Anything)
	f.tokens.AssertNotCalled(t, "PurgeStale", mock.Anything, mock.Anything)
}

func TestCleanerRunStopsWithContext(t *testing.T) {
	f := newFixture(t)
	c := newTestCleaner(f, nil)
	f.store.On("DeleteReadBefore", mock.Anything, mock.Anything).Return(int64(0), nil)
	ran := make(chan struct{})
	var once sync.Once
	f.tokens.On("PurgeStale", mock.Anything, mock.Anything).Return(int64(0), nil).Run(func(mock.Arguments) {
		once.Do(func() { close(ran) })
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()

	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("cleaner did not run")
	}
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("cleaner did not stop")
	}
}
