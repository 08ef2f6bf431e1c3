package identity

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"opschat/internal/models"
)

var ErrUserNotFound = errors.New("user not found")

// Directory resolves user display info. The identity collaborator owns the
// records; chat only reads them.
type Directory interface {
	GetUser(ctx context.Context, userID int) (models.User, error)
	BulkUsers(ctx context.Context, ids []int) (map[int]models.User, error)
}

// SQLDirectory reads profiles straight from the users table.
type SQLDirectory struct {
	db *sqlx.DB
}

// NewSQLDirectory constructs a SQLDirectory.
func NewSQLDirectory(db *sqlx.DB) *SQLDirectory {
	return &SQLDirectory{db: db}
}

// GetUser fetches one profile.
func (d *SQLDirectory) GetUser(ctx context.Context, userID int) (models.User, error) {
	var user models.User
	err := d.db.GetContext(ctx, &user, `SELECT id, display_name, avatar_url, created_at FROM users WHERE id=$1`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, ErrUserNotFound
	}
	return user, err
}

// BulkUsers fetches multiple profiles in one query, keyed by id.
func (d *SQLDirectory) BulkUsers(ctx context.Context, ids []int) (map[int]models.User, error) {
	result := make(map[int]models.User, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	var users []models.User
	err := d.db.SelectContext(ctx, &users, `SELECT id, display_name, avatar_url, created_at FROM users WHERE id = ANY($1)`, pq.Array(ids))
	if err != nil {
		return nil, err
	}
	for _, u := range users {
		result[u.ID] = u
	}
	return result, nil
}
