package models

import (
	"sort"
	"strings"
	"time"
)

// RoomType distinguishes one-to-one rooms from group rooms.
type RoomType string

const (
	RoomDirect RoomType = "direct"
	RoomGroup  RoomType = "group"
)

// ChatRoom is a conversation between a set of participants.
type ChatRoom struct {
	ID        string    `db:"id" json:"id"`
	Name      *string   `db:"name" json:"name,omitempty"`
	Type      RoomType  `db:"room_type" json:"room_type"`
	CreatedBy string    `db:"created_by" json:"created_by"`
	IsActive  bool      `db:"is_active" json:"is_active"`
	DirectKey *string   `db:"direct_key" json:"-"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`

	Participants []string `db:"-" json:"participants,omitempty"`
}

// RoomParticipant is one membership row.
type RoomParticipant struct {
	RoomID   string    `db:"room_id" json:"room_id"`
	UserID   string    `db:"user_id" json:"user_id"`
	JoinedAt time.Time `db:"joined_at" json:"joined_at"`
}

// DirectKey returns the order-independent key identifying the direct room of a pair.
func DirectKey(a, b string) string {
	pair := []string{a, b}
	sort.Strings(pair)
	return strings.Join(pair, ":")
}

// UniqueParticipants dedupes ids and always includes the creator.
func UniqueParticipants(creator string, ids []string) []string {
	seen := map[string]struct{}{creator: {}}
	out := []string{creator}
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
