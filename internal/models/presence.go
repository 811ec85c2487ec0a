package models

import "time"

// PresenceState is the stored online flag of a user.
type PresenceState struct {
	UserID   string     `db:"user_id" json:"user_id"`
	IsOnline bool       `db:"is_online" json:"is_online"`
	LastSeen *time.Time `db:"last_seen" json:"last_seen,omitempty"`
}
