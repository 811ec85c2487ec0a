package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"realtime-service/internal/models"
)

var ErrDeviceTokenNotFound = errors.New("device token not found")

// DeviceTokenRepository abstracts push registration persistence.
type DeviceTokenRepository interface {
	RegisterDeviceToken(ctx context.Context, token models.DeviceToken) (models.DeviceToken, error)
	RevokeDeviceToken(ctx context.Context, userID string, token string) error
	DeactivateToken(ctx context.Context, token string) error
	TouchToken(ctx context.Context, token string, at time.Time) error
	ListActiveDeviceTokens(ctx context.Context, userID string) ([]models.DeviceToken, error)
	CountStale(ctx context.Context, cutoff time.Time) (int64, error)
	PurgeStale(ctx context.Context, cutoff time.Time) (int64, error)
}

// DeviceTokenRepo is a sqlx implementation of DeviceTokenRepository.
type DeviceTokenRepo struct {
	db *sqlx.DB
}

// NewDeviceTokenRepo constructs a DeviceTokenRepo.
func NewDeviceTokenRepo(db *sqlx.DB) *DeviceTokenRepo {
	return &DeviceTokenRepo{db: db}
}

const deviceTokenColumns = `id, user_id, token, platform, device_name, app_version, is_active, created_at, last_used`

// RegisterDeviceToken stores a token for the user. Tokens are globally unique,
// so registering a known token moves it to the user and reactivates it.
func (r *DeviceTokenRepo) RegisterDeviceToken(ctx context.Context, t models.DeviceToken) (models.DeviceToken, error) {
	var stored models.DeviceToken
	err := r.db.GetContext(ctx, &stored,
		`INSERT INTO device_tokens (id, user_id, token, platform, device_name, app_version)
         VALUES ($1, $2, $3, $4, $5, $6)
         ON CONFLICT (token) DO UPDATE SET
            user_id=EXCLUDED.user_id, platform=EXCLUDED.platform, device_name=EXCLUDED.device_name,
            app_version=EXCLUDED.app_version, is_active=TRUE, last_used=NOW()
         RETURNING `+deviceTokenColumns,
		uuid.NewString(), t.UserID, t.Token, t.Platform, t.DeviceName, t.AppVersion)
	return stored, err
}

// RevokeDeviceToken deactivates a token owned by the user. Rows are kept.
func (r *DeviceTokenRepo) RevokeDeviceToken(ctx context.Context, userID string, token string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE device_tokens SET is_active=FALSE WHERE user_id=$1 AND token=$2`, userID, token)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrDeviceTokenNotFound
	}
	return nil
}

// DeactivateToken disables a token the push gateway reported as dead.
func (r *DeviceTokenRepo) DeactivateToken(ctx context.Context, token string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE device_tokens SET is_active=FALSE WHERE token=$1`, token)
	return err
}

// TouchToken records a successful push.
func (r *DeviceTokenRepo) TouchToken(ctx context.Context, token string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `UPDATE device_tokens SET last_used=$2 WHERE token=$1`, token, at)
	return err
}

// ListActiveDeviceTokens returns the tokens push attempts go to.
func (r *DeviceTokenRepo) ListActiveDeviceTokens(ctx context.Context, userID string) ([]models.DeviceToken, error) {
	tokens := []models.DeviceToken{}
	err := r.db.SelectContext(ctx, &tokens,
		`SELECT `+deviceTokenColumns+` FROM device_tokens WHERE user_id=$1 AND is_active=TRUE ORDER BY last_used DESC`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return tokens, nil
	}
	return tokens, err
}

// CountStale counts tokens unused since cutoff.
func (r *DeviceTokenRepo) CountStale(ctx context.Context, cutoff time.Time) (int64, error) {
	var count int64
	err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM device_tokens WHERE last_used < $1`, cutoff)
	return count, err
}

// PurgeStale deletes tokens unused since cutoff.
func (r *DeviceTokenRepo) PurgeStale(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM device_tokens WHERE last_used < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
