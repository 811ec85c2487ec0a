package repositories

import "errors"

var ErrNotParticipant = errors.New("user is not a room participant")
