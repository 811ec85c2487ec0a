package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"realtime-service/internal/models"
)

var ErrPresenceNotFound = errors.New("presence not found")

// PresenceRepository abstracts presence persistence.
type PresenceRepository interface {
	EnsurePresence(ctx context.Context, userID string) error
	SetOnline(ctx context.Context, userID string, online bool, at time.Time) (bool, error)
	GetPresence(ctx context.Context, userID string) (models.PresenceState, error)
	OnlineAmong(ctx context.Context, userIDs []string) ([]string, error)
}

// PresenceRepo is a sqlx implementation of PresenceRepository.
type PresenceRepo struct {
	db *sqlx.DB
}

// NewPresenceRepo constructs a PresenceRepo.
func NewPresenceRepo(db *sqlx.DB) *PresenceRepo {
	return &PresenceRepo{db: db}
}

// EnsurePresence provisions an offline record for a user seen for the first time.
func (r *PresenceRepo) EnsurePresence(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO presence (user_id) VALUES ($1) ON CONFLICT DO NOTHING`, userID)
	return err
}

// SetOnline stores the flag and reports whether it changed. Going offline
// stamps last_seen; going online leaves it as it was.
func (r *PresenceRepo) SetOnline(ctx context.Context, userID string, online bool, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO presence (user_id, is_online, last_seen)
         VALUES ($1, $2::boolean, CASE WHEN $2::boolean THEN NULL ELSE $3::timestamptz END)
         ON CONFLICT (user_id) DO UPDATE
            SET is_online = EXCLUDED.is_online,
                last_seen = CASE WHEN EXCLUDED.is_online THEN presence.last_seen ELSE $3::timestamptz END
          WHERE presence.is_online <> EXCLUDED.is_online`,
		userID, online, at)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// GetPresence fetches the stored state of a user.
func (r *PresenceRepo) GetPresence(ctx context.Context, userID string) (models.PresenceState, error) {
	var state models.PresenceState
	err := r.db.GetContext(ctx, &state, `SELECT user_id, is_online, last_seen FROM presence WHERE user_id=$1`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.PresenceState{}, ErrPresenceNotFound
	}
	return state, err
}

// OnlineAmong returns the subset of userIDs currently online.
func (r *PresenceRepo) OnlineAmong(ctx context.Context, userIDs []string) ([]string, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}
	var ids []string
	err := r.db.SelectContext(ctx, &ids, `SELECT user_id FROM presence WHERE is_online AND user_id = ANY($1) ORDER BY user_id`, pq.Array(userIDs))
	return ids, err
}
