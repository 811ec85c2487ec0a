package repositories

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"realtime-service/internal/models"
)

// UserDirectory is the read-only view of the user store.
type UserDirectory interface {
	FilterUsers(ctx context.Context, filter models.UserFilter) ([]string, error)
	ResolveUsernames(ctx context.Context, usernames []string) (map[string]string, error)
}

// UserDirectoryRepo reads the users table owned by the account service.
type UserDirectoryRepo struct {
	db *sqlx.DB
}

// NewUserDirectoryRepo constructs a UserDirectoryRepo.
func NewUserDirectoryRepo(db *sqlx.DB) *UserDirectoryRepo {
	return &UserDirectoryRepo{db: db}
}

// FilterUsers returns the ids matching every set field of the filter.
func (r *UserDirectoryRepo) FilterUsers(ctx context.Context, f models.UserFilter) ([]string, error) {
	var (
		where []string
		args  []any
	)
	add := func(clause string, arg any) {
		args = append(args, arg)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	if f.IsActive != nil {
		add("is_active = $%d", *f.IsActive)
	}
	if f.IsVerified != nil {
		add("is_verified = $%d", *f.IsVerified)
	}
	if f.JoinedAfter != nil {
		add("date_joined >= $%d", *f.JoinedAfter)
	}
	if f.JoinedBefore != nil {
		add("date_joined < $%d", *f.JoinedBefore)
	}
	if len(f.UserIDs) > 0 {
		add("id = ANY($%d)", pq.Array(f.UserIDs))
	}

	query := `SELECT id FROM users`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY id`

	ids := []string{}
	if err := r.db.SelectContext(ctx, &ids, query, args...); err != nil {
		return nil, err
	}
	return ids, nil
}

// ResolveUsernames maps usernames to user ids. Unknown names are left out.
func (r *UserDirectoryRepo) ResolveUsernames(ctx context.Context, usernames []string) (map[string]string, error) {
	out := map[string]string{}
	if len(usernames) == 0 {
		return out, nil
	}
	var rows []struct {
		ID       string `db:"id"`
		Username string `db:"username"`
	}
	if err := r.db.SelectContext(ctx, &rows, `SELECT id, username FROM users WHERE username = ANY($1) AND is_active`, pq.Array(usernames)); err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.Username] = row.ID
	}
	return out, nil
}
