package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"realtime-service/internal/models"
)

var ErrRoomNotFound = errors.New("room not found")

// RoomRepository abstracts chat room persistence.
type RoomRepository interface {
	CreateGroupRoom(ctx context.Context, creatorID string, name string, participantIDs []string) (models.ChatRoom, error)
	GetOrCreateDirectRoom(ctx context.Context, userID string, otherID string) (models.ChatRoom, bool, error)
	GetRoom(ctx context.Context, roomID string) (models.ChatRoom, error)
	GetRoomParticipants(ctx context.Context, roomID string) ([]string, error)
	IsParticipant(ctx context.Context, roomID string, userID string) (bool, error)
	AddParticipant(ctx context.Context, roomID string, userID string) error
	LeaveRoom(ctx context.Context, roomID string, userID string) (bool, error)
	TouchRoom(ctx context.Context, roomID string) error
}

// RoomRepo is a sqlx implementation of RoomRepository.
type RoomRepo struct {
	db *sqlx.DB
}

// NewRoomRepo constructs a RoomRepo.
func NewRoomRepo(db *sqlx.DB) *RoomRepo {
	return &RoomRepo{db: db}
}

const roomColumns = `id, name, room_type, created_by, is_active, direct_key, created_at, updated_at`

// CreateGroupRoom creates a group room and its participants atomically.
// The creator is always a participant and duplicates are collapsed.
func (r *RoomRepo) CreateGroupRoom(ctx context.Context, creatorID string, name string, participantIDs []string) (room models.ChatRoom, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.ChatRoom{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	var roomName *string
	if name != "" {
		roomName = &name
	}
	if err = tx.GetContext(ctx, &room,
		`INSERT INTO chat_rooms (id, name, room_type, created_by) VALUES ($1, $2, $3, $4) RETURNING `+roomColumns,
		uuid.NewString(), roomName, models.RoomGroup, creatorID); err != nil {
		return models.ChatRoom{}, err
	}

	members := models.UniqueParticipants(creatorID, participantIDs)
	for _, id := range members {
		if _, err = tx.ExecContext(ctx, `INSERT INTO room_participants (room_id, user_id) VALUES ($1, $2)`, room.ID, id); err != nil {
			return models.ChatRoom{}, err
		}
	}

	if err = tx.Commit(); err != nil {
		return models.ChatRoom{}, err
	}
	room.Participants = members
	return room, nil
}

// GetOrCreateDirectRoom returns the direct room of the pair, creating it on first use.
// The boolean reports whether a new room was created.
func (r *RoomRepo) GetOrCreateDirectRoom(ctx context.Context, userID string, otherID string) (room models.ChatRoom, created bool, err error) {
	if userID == otherID {
		return models.ChatRoom{}, false, errors.New("cannot create direct room with self")
	}
	key := models.DirectKey(userID, otherID)

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.ChatRoom{}, false, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	// concurrent requests for the same pair serialize on the direct_key unique index
	err = tx.GetContext(ctx, &room,
		`INSERT INTO chat_rooms (id, room_type, created_by, direct_key) VALUES ($1, $2, $3, $4)
         ON CONFLICT (direct_key) DO NOTHING RETURNING `+roomColumns,
		uuid.NewString(), models.RoomDirect, userID, key)
	switch {
	case err == nil:
		created = true
		for _, id := range []string{userID, otherID} {
			if _, err = tx.ExecContext(ctx, `INSERT INTO room_participants (room_id, user_id) VALUES ($1, $2)`, room.ID, id); err != nil {
				return models.ChatRoom{}, false, err
			}
		}
	case errors.Is(err, sql.ErrNoRows):
		if err = tx.GetContext(ctx, &room, `SELECT `+roomColumns+` FROM chat_rooms WHERE direct_key=$1`, key); err != nil {
			return models.ChatRoom{}, false, err
		}
	default:
		return models.ChatRoom{}, false, err
	}

	if err = tx.Commit(); err != nil {
		return models.ChatRoom{}, false, err
	}
	room.Participants = []string{userID, otherID}
	return room, created, nil
}

// GetRoom fetches a room with its participants.
func (r *RoomRepo) GetRoom(ctx context.Context, roomID string) (models.ChatRoom, error) {
	var room models.ChatRoom
	err := r.db.GetContext(ctx, &room, `SELECT `+roomColumns+` FROM chat_rooms WHERE id=$1`, roomID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.ChatRoom{}, ErrRoomNotFound
	}
	if err != nil {
		return models.ChatRoom{}, err
	}
	room.Participants, err = r.GetRoomParticipants(ctx, roomID)
	return room, err
}

// GetRoomParticipants lists the user ids of a room.
func (r *RoomRepo) GetRoomParticipants(ctx context.Context, roomID string) ([]string, error) {
	var ids []string
	err := r.db.SelectContext(ctx, &ids, `SELECT user_id FROM room_participants WHERE room_id=$1 ORDER BY joined_at, user_id`, roomID)
	return ids, err
}

// IsParticipant checks membership.
func (r *RoomRepo) IsParticipant(ctx context.Context, roomID string, userID string) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM room_participants WHERE room_id=$1 AND user_id=$2)`, roomID, userID)
	return exists, err
}

// AddParticipant adds a user to a room. Adding an existing member is a no-op.
func (r *RoomRepo) AddParticipant(ctx context.Context, roomID string, userID string) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO room_participants (room_id, user_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`, roomID, userID)
	return err
}

// LeaveRoom removes a participant. When the creator leaves and at most one
// participant remains the room is deactivated; the boolean reports that.
func (r *RoomRepo) LeaveRoom(ctx context.Context, roomID string, userID string) (deactivated bool, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	var createdBy string
	if err = tx.GetContext(ctx, &createdBy, `SELECT created_by FROM chat_rooms WHERE id=$1 FOR UPDATE`, roomID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = ErrRoomNotFound
		}
		return false, err
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM room_participants WHERE room_id=$1 AND user_id=$2`, roomID, userID)
	if err != nil {
		return false, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		err = fmt.Errorf("leave room %s: %w", roomID, ErrNotParticipant)
		return false, err
	}

	var remaining int
	if err = tx.GetContext(ctx, &remaining, `SELECT COUNT(*) FROM room_participants WHERE room_id=$1`, roomID); err != nil {
		return false, err
	}
	if createdBy == userID && remaining <= 1 {
		if _, err = tx.ExecContext(ctx, `UPDATE chat_rooms SET is_active=FALSE, updated_at=NOW() WHERE id=$1`, roomID); err != nil {
			return false, err
		}
		deactivated = true
	}

	if err = tx.Commit(); err != nil {
		return false, err
	}
	return deactivated, nil
}

// TouchRoom bumps updated_at so rooms sort by latest activity.
func (r *RoomRepo) TouchRoom(ctx context.Context, roomID string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE chat_rooms SET updated_at=NOW() WHERE id=$1`, roomID)
	return err
}
