package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// NotificationType enumerates what triggered a notification.
type NotificationType string

const (
	NotificationLike       NotificationType = "like"
	NotificationComment    NotificationType = "comment"
	NotificationFollow     NotificationType = "follow"
	NotificationMessage    NotificationType = "message"
	NotificationMention    NotificationType = "mention"
	NotificationPostUpload NotificationType = "post_upload"
	NotificationChatInvite NotificationType = "chat_invite"
	NotificationSystem     NotificationType = "system"
)

// Valid reports whether t is a known notification type.
func (t NotificationType) Valid() bool {
	switch t {
	case NotificationLike, NotificationComment, NotificationFollow, NotificationMessage,
		NotificationMention, NotificationPostUpload, NotificationChatInvite, NotificationSystem:
		return true
	}
	return false
}

// SourceKind names the kind of object a notification points at.
type SourceKind string

const (
	SourcePost    SourceKind = "post"
	SourceComment SourceKind = "comment"
	SourceRoom    SourceKind = "room"
	SourceUser    SourceKind = "user"
)

// SourceRef is a typed pointer to the object that caused a notification.
type SourceRef struct {
	Kind SourceKind `json:"kind"`
	ID   string     `json:"id"`
}

// Notification is a message addressed to exactly one recipient.
type Notification struct {
	ID          string           `db:"id" json:"id"`
	RecipientID string           `db:"recipient_id" json:"recipient_id"`
	ActorID     *string          `db:"actor_id" json:"actor_id,omitempty"`
	Type        NotificationType `db:"notification_type" json:"notification_type"`
	Title       string           `db:"title" json:"title"`
	Body        string           `db:"body" json:"body"`
	SourceKind  *SourceKind      `db:"source_kind" json:"-"`
	SourceID    *string          `db:"source_id" json:"-"`
	IsRead      bool             `db:"is_read" json:"is_read"`
	ReadAt      *time.Time       `db:"read_at" json:"read_at,omitempty"`
	IsSent      bool             `db:"is_sent" json:"is_sent"`
	Metadata    Metadata         `db:"metadata" json:"metadata"`
	CreatedAt   time.Time        `db:"created_at" json:"created_at"`
}

// Source returns the source reference, or nil when the notification has none.
func (n Notification) Source() *SourceRef {
	if n.SourceKind == nil || n.SourceID == nil {
		return nil
	}
	return &SourceRef{Kind: *n.SourceKind, ID: *n.SourceID}
}

// MarshalJSON adds the source reference as a nested object.
func (n Notification) MarshalJSON() ([]byte, error) {
	type alias Notification
	return json.Marshal(struct {
		alias
		Source *SourceRef `json:"source,omitempty"`
	}{alias: alias(n), Source: n.Source()})
}

// Metadata is a free-form JSON object stored as jsonb.
type Metadata map[string]any

func (m Metadata) Value() (driver.Value, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}

func (m *Metadata) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*m = Metadata{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("metadata: unsupported type %T", src)
	}
	out := Metadata{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return err
	}
	*m = out
	return nil
}

// TimeOfDay is a wall-clock time stored as seconds since midnight.
type TimeOfDay int

// NewTimeOfDay builds a TimeOfDay from hours and minutes.
func NewTimeOfDay(hour, minute int) TimeOfDay {
	return TimeOfDay(hour*3600 + minute*60)
}

// TimeOfDayOf extracts the wall-clock part of t.
func TimeOfDayOf(t time.Time) TimeOfDay {
	return TimeOfDay(t.Hour()*3600 + t.Minute()*60 + t.Second())
}

// ParseTimeOfDay accepts "15:04" or "15:04:05".
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	for _, layout := range []string{"15:04:05", "15:04"} {
		if t, err := time.Parse(layout, s); err == nil {
			return TimeOfDayOf(t), nil
		}
	}
	return 0, fmt.Errorf("invalid time of day %q", s)
}

func (t TimeOfDay) String() string {
	s := int(t)
	return fmt.Sprintf("%02d:%02d:%02d", s/3600, (s%3600)/60, s%60)
}

func (t TimeOfDay) Value() (driver.Value, error) {
	return t.String(), nil
}

func (t *TimeOfDay) Scan(src any) error {
	switch v := src.(type) {
	case time.Time:
		*t = TimeOfDayOf(v)
		return nil
	case []byte:
		return t.parse(string(v))
	case string:
		return t.parse(v)
	}
	return fmt.Errorf("time of day: unsupported type %T", src)
}

func (t *TimeOfDay) parse(s string) error {
	parsed, err := ParseTimeOfDay(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

func (t TimeOfDay) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String()[:5])
}

func (t *TimeOfDay) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return errors.New("time of day must be a string like \"22:00\"")
	}
	return t.parse(s)
}

// NotificationSettings holds the per-user delivery preferences.
type NotificationSettings struct {
	UserID             string     `db:"user_id" json:"user_id"`
	LikesEnabled       bool       `db:"likes_enabled" json:"likes_enabled"`
	CommentsEnabled    bool       `db:"comments_enabled" json:"comments_enabled"`
	FollowsEnabled     bool       `db:"follows_enabled" json:"follows_enabled"`
	MessagesEnabled    bool       `db:"messages_enabled" json:"messages_enabled"`
	MentionsEnabled    bool       `db:"mentions_enabled" json:"mentions_enabled"`
	PostUploadsEnabled bool       `db:"post_uploads_enabled" json:"post_uploads_enabled"`
	PushEnabled        bool       `db:"push_enabled" json:"push_enabled"`
	EmailEnabled       bool       `db:"email_enabled" json:"email_enabled"`
	InAppEnabled       bool       `db:"in_app_enabled" json:"in_app_enabled"`
	QuietHoursEnabled  bool       `db:"quiet_hours_enabled" json:"quiet_hours_enabled"`
	QuietHoursStart    *TimeOfDay `db:"quiet_hours_start" json:"quiet_hours_start,omitempty"`
	QuietHoursEnd      *TimeOfDay `db:"quiet_hours_end" json:"quiet_hours_end,omitempty"`
	CreatedAt          time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time  `db:"updated_at" json:"updated_at"`
}

// DefaultSettings returns the settings a user gets on first use.
func DefaultSettings(userID string) NotificationSettings {
	return NotificationSettings{
		UserID:             userID,
		LikesEnabled:       true,
		CommentsEnabled:    true,
		FollowsEnabled:     true,
		MessagesEnabled:    true,
		MentionsEnabled:    true,
		PostUploadsEnabled: true,
		PushEnabled:        true,
		InAppEnabled:       true,
	}
}

// Platform is the push platform of a device token.
type Platform string

const (
	PlatformIOS     Platform = "ios"
	PlatformAndroid Platform = "android"
	PlatformWeb     Platform = "web"
)

// DeviceToken is a push registration owned by a user.
type DeviceToken struct {
	ID         string    `db:"id" json:"id"`
	UserID     string    `db:"user_id" json:"user_id"`
	Token      string    `db:"token" json:"token"`
	Platform   Platform  `db:"platform" json:"platform"`
	DeviceName string    `db:"device_name" json:"device_name"`
	AppVersion string    `db:"app_version" json:"app_version"`
	IsActive   bool      `db:"is_active" json:"is_active"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	LastUsed   time.Time `db:"last_used" json:"last_used"`
}

// TypeCount is a per-type notification total.
type TypeCount struct {
	Type  NotificationType `db:"notification_type" json:"type"`
	Count int64            `db:"count" json:"count"`
}

// NotificationStats summarises the notifications of a user.
type NotificationStats struct {
	Total  int64       `json:"total"`
	Unread int64       `json:"unread"`
	ByType []TypeCount `json:"by_type"`
}
