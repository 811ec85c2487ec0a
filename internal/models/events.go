package models

// Chat channel server frame types.
const (
	EventMessage        = "message"
	EventTyping         = "typing"
	EventUserStatus     = "user_status"
	EventMessagesRead   = "messages_read"
	EventMessageEdited  = "message_edited"
	EventMessageDeleted = "message_deleted"
	EventError          = "error"
)

// Notification channel server frame types.
const (
	EventNewNotification     = "new_notification"
	EventUnreadCount         = "unread_count"
	EventNotificationsList   = "notifications_list"
	EventUnreadNotifications = "unread_notifications"
	EventMarkReadResponse    = "mark_read_response"
)

// User status values carried by user_status frames.
const (
	StatusUserJoined = "user_joined"
	StatusUserLeft   = "user_left"
)

// Client actions.
const (
	ActionSendMessage      = "send_message"
	ActionTyping           = "typing"
	ActionMarkRead         = "mark_read"
	ActionEditMessage      = "edit_message"
	ActionDeleteMessage    = "delete_message"
	ActionGetUnreadCount   = "get_unread_count"
	ActionGetNotifications = "get_notifications"
)

// ChatAction is an inbound frame on the chat channel.
type ChatAction struct {
	Action        string      `json:"action" validate:"required,oneof=send_message typing mark_read edit_message delete_message"`
	Content       string      `json:"content,omitempty"`
	MessageType   MessageType `json:"message_type,omitempty"`
	AttachmentURL *string     `json:"attachment_url,omitempty" validate:"omitempty,url"`
	ReplyToID     *string     `json:"reply_to_id,omitempty" validate:"omitempty,uuid"`
	IsTyping      bool        `json:"is_typing,omitempty"`
	MessageIDs    []string    `json:"message_ids,omitempty" validate:"omitempty,dive,uuid"`
	All           bool        `json:"all,omitempty"`
	MessageID     string      `json:"message_id,omitempty" validate:"omitempty,uuid"`
}

// NotificationAction is an inbound frame on the notification channel.
type NotificationAction struct {
	Action          string   `json:"action" validate:"required,oneof=mark_read get_unread_count get_notifications"`
	NotificationIDs []string `json:"notification_ids,omitempty" validate:"omitempty,dive,uuid"`
	MarkAll         bool     `json:"mark_all,omitempty"`
	Page            int      `json:"page,omitempty" validate:"gte=0"`
	PageSize        int      `json:"page_size,omitempty" validate:"gte=0,lte=100"`
}

// MessageEvent carries a new or edited message.
type MessageEvent struct {
	Type    string  `json:"type"`
	Message Message `json:"message"`
}

// TypingEvent signals that a participant started or stopped typing.
type TypingEvent struct {
	Type     string `json:"type"`
	UserID   string `json:"user_id"`
	IsTyping bool   `json:"is_typing"`
}

// UserStatusEvent announces a participant joining or leaving the room.
type UserStatusEvent struct {
	Type   string `json:"type"`
	UserID string `json:"user_id"`
	Status string `json:"status"`
}

// MessagesReadEvent lists messages a participant has just read.
type MessagesReadEvent struct {
	Type       string   `json:"type"`
	UserID     string   `json:"user_id"`
	MessageIDs []string `json:"message_ids"`
}

// MessageDeletedEvent announces a soft delete.
type MessageDeletedEvent struct {
	Type      string `json:"type"`
	MessageID string `json:"message_id"`
	Content   string `json:"content"`
}

// ErrorEvent is sent only to the connection whose operation failed.
type ErrorEvent struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NotificationEvent delivers a freshly created notification.
type NotificationEvent struct {
	Type         string       `json:"type"`
	Notification Notification `json:"notification"`
}

// UnreadCountEvent reports the number of unread notifications.
type UnreadCountEvent struct {
	Type  string `json:"type"`
	Count int64  `json:"count"`
}

// NotificationsEvent carries unread_notifications frames.
type NotificationsEvent struct {
	Type          string         `json:"type"`
	Notifications []Notification `json:"notifications"`
}

// NotificationPage is one page of a user's notifications.
type NotificationPage struct {
	Notifications []Notification `json:"notifications"`
	Page          int            `json:"page"`
	PageSize      int            `json:"page_size"`
	TotalPages    int            `json:"total_pages"`
	TotalCount    int64          `json:"total_count"`
	HasNext       bool           `json:"has_next"`
	HasPrevious   bool           `json:"has_previous"`
}

// NotificationsListEvent carries a notifications_list frame.
type NotificationsListEvent struct {
	Type string `json:"type"`
	NotificationPage
}

// MarkReadResponseEvent answers a mark_read action.
type MarkReadResponseEvent struct {
	Type        string `json:"type"`
	MarkedCount int64  `json:"marked_count"`
	Success     bool   `json:"success"`
}
