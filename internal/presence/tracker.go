// Package presence tracks which users currently hold a live connection.
package presence

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"realtime-service/internal/observability"
	"realtime-service/internal/repositories"
)

// Cache mirrors the online set for cheap lookups from any instance.
type Cache interface {
	MarkOnline(ctx context.Context, userID string) error
	MarkOffline(ctx context.Context, userID string) error
	IsOnline(ctx context.Context, userID string) (bool, error)
	OnlineAmong(ctx context.Context, userIDs []string) ([]string, error)
}

type userSessions struct {
	mu      sync.Mutex
	count   int
	removed bool
}

// Tracker stores the online flag of users. The database row is the source of
// truth; the cache is optional.
type Tracker struct {
	store  repositories.PresenceRepository
	cache  Cache
	logger *zap.Logger
	now    func() time.Time

	mu    sync.Mutex
	users map[string]*userSessions
}

// NewTracker builds a Tracker. cache may be nil.
func NewTracker(store repositories.PresenceRepository, cache Cache, logger *zap.Logger) *Tracker {
	return &Tracker{
		store:  store,
		cache:  cache,
		logger: logger.Named("presence"),
		now:    func() time.Time { return time.Now().UTC() },
		users:  make(map[string]*userSessions),
	}
}

// SetOnline records the user's flag. Repeating the current value is a no-op;
// an offline transition stamps last_seen.
func (t *Tracker) SetOnline(ctx context.Context, userID string, online bool) {
	changed, err := t.store.SetOnline(ctx, userID, online, t.now())
	if err != nil {
		t.logger.Error("store presence failed", zap.String("user_id", userID), zap.Bool("online", online), zap.Error(err))
		return
	}
	if changed {
		observability.IncPresenceTransition(online)
	}
	if t.cache == nil {
		return
	}
	if online {
		err = t.cache.MarkOnline(ctx, userID)
	} else {
		err = t.cache.MarkOffline(ctx, userID)
	}
	if err != nil {
		t.logger.Warn("presence cache update failed", zap.String("user_id", userID), zap.Error(err))
	}
}

// IsOnline reports the user's flag. Unknown users are offline.
func (t *Tracker) IsOnline(ctx context.Context, userID string) bool {
	if t.cache != nil {
		online, err := t.cache.IsOnline(ctx, userID)
		if err == nil {
			return online
		}
		t.logger.Warn("presence cache lookup failed, using store", zap.String("user_id", userID), zap.Error(err))
	}
	state, err := t.store.GetPresence(ctx, userID)
	if err != nil {
		return false
	}
	return state.IsOnline
}

// OnlineAmong filters userIDs down to the ones online. The cache answers when
// it is configured and reachable, the store otherwise.
func (t *Tracker) OnlineAmong(ctx context.Context, userIDs []string) ([]string, error) {
	if len(userIDs) == 0 {
		return []string{}, nil
	}
	if t.cache != nil {
		online, err := t.cache.OnlineAmong(ctx, userIDs)
		if err == nil {
			return online, nil
		}
		t.logger.Warn("presence cache lookup failed, using store", zap.Int("users", len(userIDs)), zap.Error(err))
	}
	return t.store.OnlineAmong(ctx, userIDs)
}

// Connected counts a new live session for the user and marks them online on the first one.
func (t *Tracker) Connected(ctx context.Context, userID string) {
	s := t.lockSessions(userID)
	defer s.mu.Unlock()

	s.count++
	if s.count == 1 {
		if err := t.store.EnsurePresence(ctx, userID); err != nil {
			t.logger.Error("provision presence failed", zap.String("user_id", userID), zap.Error(err))
		}
		t.SetOnline(ctx, userID, true)
	}
}

// Disconnected releases a live session and marks the user offline after the last one.
func (t *Tracker) Disconnected(ctx context.Context, userID string) {
	s := t.lockSessions(userID)
	defer s.mu.Unlock()

	if s.count > 0 {
		s.count--
		if s.count == 0 {
			t.SetOnline(ctx, userID, false)
		}
	}
	if s.count == 0 {
		t.mu.Lock()
		if t.users[userID] == s {
			delete(t.users, userID)
		}
		s.removed = true
		t.mu.Unlock()
	}
}

// Sessions returns the number of live sessions the user holds on this instance.
func (t *Tracker) Sessions(userID string) int {
	t.mu.Lock()
	s, ok := t.users[userID]
	t.mu.Unlock()
	if !ok {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

// tracked reports how many users hold an entry in the session table.
func (t *Tracker) tracked() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.users)
}

// lockSessions returns the user's entry locked. An entry removed while we
// waited for its lock is retried so no count lands on a detached entry.
func (t *Tracker) lockSessions(userID string) *userSessions {
	for {
		t.mu.Lock()
		s, ok := t.users[userID]
		if !ok {
			s = &userSessions{}
			t.users[userID] = s
		}
		t.mu.Unlock()

		s.mu.Lock()
		if !s.removed {
			return s
		}
		s.mu.Unlock()
	}
}
