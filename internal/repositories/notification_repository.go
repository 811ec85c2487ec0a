package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"realtime-service/internal/models"
)

var ErrNotificationNotFound = errors.New("notification not found")

// DuplicateQuery describes a recent notification that would make a new one redundant.
type DuplicateQuery struct {
	RecipientID string
	ActorID     *string
	Type        models.NotificationType
	Source      models.SourceRef
	Since       time.Time
}

// NotificationRepository abstracts notification and settings persistence.
type NotificationRepository interface {
	GetOrCreateSettings(ctx context.Context, userID string) (models.NotificationSettings, error)
	UpdateSettings(ctx context.Context, settings models.NotificationSettings) (models.NotificationSettings, error)
	QueryRecentDuplicate(ctx context.Context, q DuplicateQuery) (*models.Notification, error)
	CreateNotification(ctx context.Context, n models.Notification) (models.Notification, error)
	MarkSent(ctx context.Context, notificationID string) error
	MarkRead(ctx context.Context, userID string, notificationIDs []string, all bool, at time.Time) (int64, error)
	UnreadCount(ctx context.Context, userID string) (int64, error)
	CountForUser(ctx context.Context, userID string) (int64, error)
	ListForUser(ctx context.Context, userID string, limit int, offset int) ([]models.Notification, error)
	ListUnread(ctx context.Context, userID string, limit int) ([]models.Notification, error)
	CountByType(ctx context.Context, userID string) ([]models.TypeCount, error)
	CountReadBefore(ctx context.Context, cutoff time.Time) (int64, error)
	DeleteReadBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// NotificationRepo is a sqlx implementation of NotificationRepository.
type NotificationRepo struct {
	db *sqlx.DB
}

// NewNotificationRepo constructs a NotificationRepo.
func NewNotificationRepo(db *sqlx.DB) *NotificationRepo {
	return &NotificationRepo{db: db}
}

const (
	notificationColumns = `id, recipient_id, actor_id, notification_type, title, body, source_kind, source_id, is_read, read_at, is_sent, metadata, created_at`
	settingsColumns     = `user_id, likes_enabled, comments_enabled, follows_enabled, messages_enabled, mentions_enabled, post_uploads_enabled,
        push_enabled, email_enabled, in_app_enabled, quiet_hours_enabled, quiet_hours_start, quiet_hours_end, created_at, updated_at`
)

// GetOrCreateSettings returns the user's settings, inserting the defaults on first use.
func (r *NotificationRepo) GetOrCreateSettings(ctx context.Context, userID string) (models.NotificationSettings, error) {
	if _, err := r.db.ExecContext(ctx, `INSERT INTO notification_settings (user_id) VALUES ($1) ON CONFLICT DO NOTHING`, userID); err != nil {
		return models.NotificationSettings{}, err
	}
	var settings models.NotificationSettings
	err := r.db.GetContext(ctx, &settings, `SELECT `+settingsColumns+` FROM notification_settings WHERE user_id=$1`, userID)
	return settings, err
}

// UpdateSettings overwrites every preference of the user.
func (r *NotificationRepo) UpdateSettings(ctx context.Context, s models.NotificationSettings) (models.NotificationSettings, error) {
	var out models.NotificationSettings
	err := r.db.GetContext(ctx, &out,
		`INSERT INTO notification_settings (user_id, likes_enabled, comments_enabled, follows_enabled, messages_enabled, mentions_enabled,
            post_uploads_enabled, push_enabled, email_enabled, in_app_enabled, quiet_hours_enabled, quiet_hours_start, quiet_hours_end)
         VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
         ON CONFLICT (user_id) DO UPDATE SET
            likes_enabled=EXCLUDED.likes_enabled, comments_enabled=EXCLUDED.comments_enabled,
            follows_enabled=EXCLUDED.follows_enabled, messages_enabled=EXCLUDED.messages_enabled,
            mentions_enabled=EXCLUDED.mentions_enabled, post_uploads_enabled=EXCLUDED.post_uploads_enabled,
            push_enabled=EXCLUDED.push_enabled, email_enabled=EXCLUDED.email_enabled,
            in_app_enabled=EXCLUDED.in_app_enabled, quiet_hours_enabled=EXCLUDED.quiet_hours_enabled,
            quiet_hours_start=EXCLUDED.quiet_hours_start, quiet_hours_end=EXCLUDED.quiet_hours_end,
            updated_at=NOW()
         RETURNING `+settingsColumns,
		s.UserID, s.LikesEnabled, s.CommentsEnabled, s.FollowsEnabled, s.MessagesEnabled, s.MentionsEnabled,
		s.PostUploadsEnabled, s.PushEnabled, s.EmailEnabled, s.InAppEnabled, s.QuietHoursEnabled, s.QuietHoursStart, s.QuietHoursEnd)
	return out, err
}

// QueryRecentDuplicate finds a notification with the same recipient, actor,
// type and source created after q.Since. It returns nil when there is none.
func (r *NotificationRepo) QueryRecentDuplicate(ctx context.Context, q DuplicateQuery) (*models.Notification, error) {
	var n models.Notification
	err := r.db.GetContext(ctx, &n,
		`SELECT `+notificationColumns+` FROM notifications
         WHERE recipient_id=$1 AND actor_id IS NOT DISTINCT FROM $2 AND notification_type=$3
           AND source_kind=$4 AND source_id=$5 AND created_at >= $6
         ORDER BY created_at DESC LIMIT 1`,
		q.RecipientID, q.ActorID, q.Type, q.Source.Kind, q.Source.ID, q.Since)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &n, nil
}

// CreateNotification inserts a notification row.
func (r *NotificationRepo) CreateNotification(ctx context.Context, n models.Notification) (models.Notification, error) {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.Metadata == nil {
		n.Metadata = models.Metadata{}
	}
	var stored models.Notification
	err := r.db.GetContext(ctx, &stored,
		`INSERT INTO notifications (id, recipient_id, actor_id, notification_type, title, body, source_kind, source_id, metadata)
         VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING `+notificationColumns,
		n.ID, n.RecipientID, n.ActorID, n.Type, n.Title, n.Body, n.SourceKind, n.SourceID, n.Metadata)
	return stored, err
}

// MarkSent flags a notification as handed to the push path.
func (r *NotificationRepo) MarkSent(ctx context.Context, notificationID string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE notifications SET is_sent=TRUE WHERE id=$1`, notificationID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotificationNotFound
	}
	return nil
}

// MarkRead marks the user's unread notifications as read and returns how many changed.
// With all set, ids are ignored.
func (r *NotificationRepo) MarkRead(ctx context.Context, userID string, notificationIDs []string, all bool, at time.Time) (int64, error) {
	var (
		res sql.Result
		err error
	)
	if all {
		res, err = r.db.ExecContext(ctx, `UPDATE notifications SET is_read=TRUE, read_at=$2 WHERE recipient_id=$1 AND is_read=FALSE`, userID, at)
	} else {
		if len(notificationIDs) == 0 {
			return 0, nil
		}
		res, err = r.db.ExecContext(ctx,
			`UPDATE notifications SET is_read=TRUE, read_at=$2 WHERE recipient_id=$1 AND is_read=FALSE AND id = ANY($3::uuid[])`,
			userID, at, pq.Array(notificationIDs))
	}
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// UnreadCount counts unread notifications of a user.
func (r *NotificationRepo) UnreadCount(ctx context.Context, userID string) (int64, error) {
	var count int64
	err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM notifications WHERE recipient_id=$1 AND is_read=FALSE`, userID)
	return count, err
}

// CountForUser counts all notifications of a user.
func (r *NotificationRepo) CountForUser(ctx context.Context, userID string) (int64, error) {
	var count int64
	err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM notifications WHERE recipient_id=$1`, userID)
	return count, err
}

// ListForUser returns a page of notifications, newest first.
func (r *NotificationRepo) ListForUser(ctx context.Context, userID string, limit int, offset int) ([]models.Notification, error) {
	list := []models.Notification{}
	err := r.db.SelectContext(ctx, &list,
		`SELECT `+notificationColumns+` FROM notifications WHERE recipient_id=$1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		userID, limit, offset)
	return list, err
}

// ListUnread returns the newest unread notifications.
func (r *NotificationRepo) ListUnread(ctx context.Context, userID string, limit int) ([]models.Notification, error) {
	list := []models.Notification{}
	err := r.db.SelectContext(ctx, &list,
		`SELECT `+notificationColumns+` FROM notifications WHERE recipient_id=$1 AND is_read=FALSE ORDER BY created_at DESC LIMIT $2`,
		userID, limit)
	return list, err
}

// CountByType groups a user's notifications by type.
func (r *NotificationRepo) CountByType(ctx context.Context, userID string) ([]models.TypeCount, error) {
	counts := []models.TypeCount{}
	err := r.db.SelectContext(ctx, &counts,
		`SELECT notification_type, COUNT(*) AS count FROM notifications WHERE recipient_id=$1 GROUP BY notification_type ORDER BY notification_type`,
		userID)
	return counts, err
}

// CountReadBefore counts read notifications created before cutoff.
func (r *NotificationRepo) CountReadBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	var count int64
	err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM notifications WHERE is_read=TRUE AND created_at < $1`, cutoff)
	return count, err
}

// DeleteReadBefore purges read notifications created before cutoff. Unread rows are kept.
func (r *NotificationRepo) DeleteReadBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM notifications WHERE is_read=TRUE AND created_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
