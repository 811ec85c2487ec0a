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

var (
	ErrMessageNotFound = errors.New("message not found")
	ErrMessageDeleted  = errors.New("message is deleted")
)

// MessageRepository abstracts message persistence.
type MessageRepository interface {
	CreateMessage(ctx context.Context, msg models.Message) (models.Message, error)
	GetMessage(ctx context.Context, messageID string) (models.Message, error)
	UpdateMessage(ctx context.Context, messageID string, content string) (models.Message, error)
	SoftDeleteMessage(ctx context.Context, messageID string) (models.Message, error)
	ReadableMessageIDs(ctx context.Context, roomID string, userID string, messageIDs []string) ([]string, error)
	UnreadMessageIDs(ctx context.Context, roomID string, userID string) ([]string, error)
	CreateMessageReadRecords(ctx context.Context, userID string, messageIDs []string) ([]string, error)
}

// MessageRepo is a sqlx implementation of MessageRepository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs a MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

const messageColumns = `id, room_id, sender_id, message_type, content, attachment_url, reply_to_id, is_deleted, created_at, edited_at`

// CreateMessage inserts a message and bumps the room's updated_at in the same
// transaction.
func (r *MessageRepo) CreateMessage(ctx context.Context, msg models.Message) (stored models.Message, err error) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Message{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if err = tx.GetContext(ctx, &stored,
		`INSERT INTO chat_messages (id, room_id, sender_id, message_type, content, attachment_url, reply_to_id)
         VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING `+messageColumns,
		msg.ID, msg.RoomID, msg.SenderID, msg.Type, msg.Content, msg.AttachmentURL, msg.ReplyToID); err != nil {
		return models.Message{}, err
	}
	if _, err = tx.ExecContext(ctx, `UPDATE chat_rooms SET updated_at=$2 WHERE id=$1`, msg.RoomID, stored.CreatedAt); err != nil {
		return models.Message{}, err
	}
	if err = tx.Commit(); err != nil {
		return models.Message{}, err
	}
	return stored, nil
}

// GetMessage fetches a message by id.
func (r *MessageRepo) GetMessage(ctx context.Context, messageID string) (models.Message, error) {
	var msg models.Message
	err := r.db.GetContext(ctx, &msg, `SELECT `+messageColumns+` FROM chat_messages WHERE id=$1`, messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	return msg, err
}

// UpdateMessage replaces the content of a live message and stamps edited_at.
func (r *MessageRepo) UpdateMessage(ctx context.Context, messageID string, content string) (models.Message, error) {
	var msg models.Message
	err := r.db.GetContext(ctx, &msg,
		`UPDATE chat_messages SET content=$2, edited_at=$3 WHERE id=$1 AND is_deleted=FALSE RETURNING `+messageColumns,
		messageID, content, time.Now().UTC())
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, r.missingOrDeleted(ctx, messageID)
	}
	return msg, err
}

// SoftDeleteMessage overwrites the content with the tombstone and flags the row.
func (r *MessageRepo) SoftDeleteMessage(ctx context.Context, messageID string) (models.Message, error) {
	var msg models.Message
	err := r.db.GetContext(ctx, &msg,
		`UPDATE chat_messages SET content=$2, attachment_url=NULL, is_deleted=TRUE WHERE id=$1 AND is_deleted=FALSE RETURNING `+messageColumns,
		messageID, models.Tombstone)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, r.missingOrDeleted(ctx, messageID)
	}
	return msg, err
}

func (r *MessageRepo) missingOrDeleted(ctx context.Context, messageID string) error {
	var exists bool
	if err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM chat_messages WHERE id=$1)`, messageID); err != nil {
		return err
	}
	if exists {
		return ErrMessageDeleted
	}
	return ErrMessageNotFound
}

// ReadableMessageIDs keeps the ids that belong to the room and were not sent by the user.
func (r *MessageRepo) ReadableMessageIDs(ctx context.Context, roomID string, userID string, messageIDs []string) ([]string, error) {
	if len(messageIDs) == 0 {
		return nil, nil
	}
	var ids []string
	err := r.db.SelectContext(ctx, &ids,
		`SELECT id FROM chat_messages WHERE room_id=$1 AND sender_id<>$2 AND id = ANY($3::uuid[]) ORDER BY created_at`,
		roomID, userID, pq.Array(messageIDs))
	return ids, err
}

// UnreadMessageIDs lists messages in the room the user has not read yet, excluding their own.
func (r *MessageRepo) UnreadMessageIDs(ctx context.Context, roomID string, userID string) ([]string, error) {
	var ids []string
	err := r.db.SelectContext(ctx, &ids,
		`SELECT m.id FROM chat_messages m
         WHERE m.room_id=$1 AND m.sender_id<>$2
           AND NOT EXISTS (SELECT 1 FROM message_reads mr WHERE mr.message_id=m.id AND mr.user_id=$2)
         ORDER BY m.created_at`,
		roomID, userID)
	return ids, err
}

// CreateMessageReadRecords inserts read receipts, skipping ones that exist.
// It returns only the ids that were newly marked.
func (r *MessageRepo) CreateMessageReadRecords(ctx context.Context, userID string, messageIDs []string) ([]string, error) {
	if len(messageIDs) == 0 {
		return nil, nil
	}
	var inserted []string
	err := r.db.SelectContext(ctx, &inserted,
		`INSERT INTO message_reads (user_id, message_id)
         SELECT $1, unnest($2::uuid[])
         ON CONFLICT (user_id, message_id) DO NOTHING
         RETURNING message_id`,
		userID, pq.Array(messageIDs))
	return inserted, err
}
