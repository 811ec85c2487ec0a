package notifications

import "errors"

const (
	ReasonCategoryDisabled = "category_disabled"
	ReasonQuietHours       = "quiet_hours"
)

// SuppressedError means the recipient's settings filtered the notification
// out. Nothing was stored.
type SuppressedError struct {
	Reason string
}

func (e *SuppressedError) Error() string {
	return "notification suppressed: " + e.Reason
}

// IsSuppressed reports whether err is a suppression rather than a failure.
func IsSuppressed(err error) bool {
	var s *SuppressedError
	return errors.As(err, &s)
}
