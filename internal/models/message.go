package models

import "time"

// MessageType is the kind of payload a message carries.
type MessageType string

const (
	MessageText   MessageType = "text"
	MessageImage  MessageType = "image"
	MessageFile   MessageType = "file"
	MessageSystem MessageType = "system"
)

// Valid reports whether t is a known message type.
func (t MessageType) Valid() bool {
	switch t {
	case MessageText, MessageImage, MessageFile, MessageSystem:
		return true
	}
	return false
}

// Tombstone replaces the content of a soft-deleted message.
const Tombstone = "[message deleted]"

// Message is a single chat message. Rows are never hard deleted.
type Message struct {
	ID            string      `db:"id" json:"id"`
	RoomID        string      `db:"room_id" json:"room_id"`
	SenderID      string      `db:"sender_id" json:"sender_id"`
	Type          MessageType `db:"message_type" json:"message_type"`
	Content       string      `db:"content" json:"content"`
	AttachmentURL *string     `db:"attachment_url" json:"attachment_url,omitempty"`
	ReplyToID     *string     `db:"reply_to_id" json:"reply_to_id,omitempty"`
	IsDeleted     bool        `db:"is_deleted" json:"is_deleted"`
	CreatedAt     time.Time   `db:"created_at" json:"created_at"`
	EditedAt      *time.Time  `db:"edited_at" json:"edited_at,omitempty"`
}

// MessageRead records that a user has read a message.
type MessageRead struct {
	UserID    string    `db:"user_id" json:"user_id"`
	MessageID string    `db:"message_id" json:"message_id"`
	ReadAt    time.Time `db:"read_at" json:"read_at"`
}
