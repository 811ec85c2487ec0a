package notifications

import (
	"time"

	"realtime-service/internal/models"
)

// InQuietHours reports whether at falls inside the user's quiet window. Both
// bounds are inclusive; a window whose start is after its end wraps past
// midnight. A disabled or incomplete window never matches.
func InQuietHours(s models.NotificationSettings, at time.Time) bool {
	if !s.QuietHoursEnabled || s.QuietHoursStart == nil || s.QuietHoursEnd == nil {
		return false
	}
	now := models.TimeOfDayOf(at)
	start, end := *s.QuietHoursStart, *s.QuietHoursEnd
	if start <= end {
		return start <= now && now <= end
	}
	return now >= start || now <= end
}

// CategoryEnabled reports whether the user accepts notifications of type t.
// Types without a toggle are always accepted.
func CategoryEnabled(s models.NotificationSettings, t models.NotificationType) bool {
	switch t {
	case models.NotificationLike:
		return s.LikesEnabled
	case models.NotificationComment:
		return s.CommentsEnabled
	case models.NotificationFollow:
		return s.FollowsEnabled
	case models.NotificationMessage:
		return s.MessagesEnabled
	case models.NotificationMention:
		return s.MentionsEnabled
	case models.NotificationPostUpload:
		return s.PostUploadsEnabled
	default:
		return true
	}
}
