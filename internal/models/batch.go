package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// BatchStatus is the lifecycle state of a notification batch.
type BatchStatus string

const (
	BatchDraft     BatchStatus = "draft"
	BatchScheduled BatchStatus = "scheduled"
	BatchSending   BatchStatus = "sending"
	BatchSent      BatchStatus = "sent"
	BatchFailed    BatchStatus = "failed"
)

// CanTransition reports whether a batch may move from s to next.
// Only draft->scheduled, draft->sending and sending->{sent,failed} exist.
func (s BatchStatus) CanTransition(next BatchStatus) bool {
	switch s {
	case BatchDraft:
		return next == BatchSending || next == BatchScheduled
	case BatchSending:
		return next == BatchSent || next == BatchFailed
	}
	return false
}

// UserFilter selects batch targets from the user directory.
type UserFilter struct {
	IsActive     *bool      `json:"is_active,omitempty"`
	IsVerified   *bool      `json:"is_verified,omitempty"`
	JoinedAfter  *time.Time `json:"joined_after,omitempty"`
	JoinedBefore *time.Time `json:"joined_before,omitempty"`
	UserIDs      []string   `json:"user_ids,omitempty"`
}

func (f UserFilter) Value() (driver.Value, error) {
	return json.Marshal(f)
}

func (f *UserFilter) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*f = UserFilter{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("user filter: unsupported type %T", src)
	}
	return json.Unmarshal(raw, f)
}

// NotificationBatch is one administrative request to notify many users.
type NotificationBatch struct {
	ID              string           `db:"id" json:"id"`
	Title           string           `db:"title" json:"title"`
	Body            string           `db:"body" json:"body"`
	Type            NotificationType `db:"notification_type" json:"notification_type"`
	TargetUserIDs   pq.StringArray   `db:"target_user_ids" json:"target_user_ids"`
	Filter          UserFilter       `db:"filter" json:"filter"`
	Status          BatchStatus      `db:"status" json:"status"`
	TotalRecipients int              `db:"total_recipients" json:"total_recipients"`
	SentCount       int              `db:"sent_count" json:"sent_count"`
	FailedCount     int              `db:"failed_count" json:"failed_count"`
	SuppressedCount int              `db:"suppressed_count" json:"suppressed_count"`
	CreatedBy       string           `db:"created_by" json:"created_by"`
	ScheduledAt     *time.Time       `db:"scheduled_at" json:"scheduled_at,omitempty"`
	CreatedAt       time.Time        `db:"created_at" json:"created_at"`
	SentAt          *time.Time       `db:"sent_at" json:"sent_at,omitempty"`
}

// BatchResult is the tally written back when a batch completes.
type BatchResult struct {
	Status          BatchStatus
	TotalRecipients int
	SentCount       int
	FailedCount     int
	SuppressedCount int
	SentAt          *time.Time
}
