package notifications

import (
	"context"
	"fmt"
	"regexp"
	"unicode/utf8"

	"go.uber.org/zap"

	"realtime-service/internal/models"
)

const previewLength = 50

var mentionPattern = regexp.MustCompile(`@(\w+)`)

// NotifyMessage tells every recipient about a new chat message.
func (d *Dispatcher) NotifyMessage(ctx context.Context, room models.ChatRoom, msg models.Message, recipients []string) {
	title := "New message"
	if room.Type == models.RoomGroup {
		title = "Message in " + roomName(room)
	}
	source := &models.SourceRef{Kind: models.SourceRoom, ID: room.ID}
	actor := msg.SenderID
	for _, recipient := range recipients {
		if recipient == msg.SenderID {
			continue
		}
		d.createQuietly(ctx, Request{
			RecipientID: recipient,
			ActorID:     &actor,
			Type:        models.NotificationMessage,
			Title:       title,
			Body:        MessagePreview(msg),
			Source:      source,
			Metadata: models.Metadata{
				"room_id":         room.ID,
				"room_type":       string(room.Type),
				"message_id":      msg.ID,
				"message_preview": MessagePreview(msg),
			},
		})
	}
}

// NotifyChatInvite tells the invitees they were added to a group room.
func (d *Dispatcher) NotifyChatInvite(ctx context.Context, room models.ChatRoom, inviterID string, invitees []string) {
	name := roomName(room)
	source := &models.SourceRef{Kind: models.SourceRoom, ID: room.ID}
	for _, invitee := range invitees {
		if invitee == inviterID {
			continue
		}
		d.createQuietly(ctx, Request{
			RecipientID: invitee,
			ActorID:     &inviterID,
			Type:        models.NotificationChatInvite,
			Title:       "Chat invitation",
			Body:        fmt.Sprintf("You were added to %s", name),
			Source:      source,
			Metadata: models.Metadata{
				"room_id":   room.ID,
				"room_name": name,
			},
		})
	}
}

// NotifyMentions notifies every @username found in content. allowed, when
// non-nil, restricts the recipients to those user ids.
func (d *Dispatcher) NotifyMentions(ctx context.Context, authorID, content string, source models.SourceRef, allowed []string) {
	names := ParseMentions(content)
	if len(names) == 0 {
		return
	}
	ids, err := d.users.ResolveUsernames(ctx, names)
	if err != nil {
		d.logger.Warn("resolve mentions failed", zap.String("author_id", authorID), zap.Error(err))
		return
	}

	var permitted map[string]struct{}
	if allowed != nil {
		permitted = make(map[string]struct{}, len(allowed))
		for _, id := range allowed {
			permitted[id] = struct{}{}
		}
	}

	notified := make(map[string]struct{})
	for _, name := range names {
		id, ok := ids[name]
		if !ok || id == authorID {
			continue
		}
		if _, done := notified[id]; done {
			continue
		}
		if permitted != nil {
			if _, ok := permitted[id]; !ok {
				continue
			}
		}
		notified[id] = struct{}{}
		d.createQuietly(ctx, Request{
			RecipientID: id,
			ActorID:     &authorID,
			Type:        models.NotificationMention,
			Title:       "You were mentioned",
			Body:        fmt.Sprintf("You were mentioned in a %s", source.Kind),
			Source:      &source,
			Metadata: models.Metadata{
				"mention_context": string(source.Kind),
			},
		})
	}
}

// ParseMentions returns the distinct usernames mentioned in content, in order
// of first appearance.
func ParseMentions(content string) []string {
	matches := mentionPattern.FindAllStringSubmatch(content, -1)
	seen := make(map[string]struct{}, len(matches))
	names := make([]string, 0, len(matches))
	for _, m := range matches {
		if _, ok := seen[m[1]]; ok {
			continue
		}
		seen[m[1]] = struct{}{}
		names = append(names, m[1])
	}
	return names
}

// MessagePreview is the short text shown for a message in notifications.
func MessagePreview(msg models.Message) string {
	if msg.Type != models.MessageText {
		return "[" + string(msg.Type) + "]"
	}
	if utf8.RuneCountInString(msg.Content) <= previewLength {
		return msg.Content
	}
	return string([]rune(msg.Content)[:previewLength])
}

func roomName(room models.ChatRoom) string {
	if room.Name != nil && *room.Name != "" {
		return *room.Name
	}
	return "Group chat"
}
