package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go-realtime-chat/internal/common"
	"go-realtime-chat/internal/db"

	"github.com/jackc/pgx/v5/pgconn"
)

// uniqueViolation is the PostgreSQL SQLSTATE for a unique constraint hit.
const uniqueViolation = "23505"

type Repository struct {
	db db.DBTX
}

func NewRepository(db db.DBTX) *Repository {
	return &Repository{db: db}
}

func (r *Repository) CreateUser(ctx context.Context, user *User) (*User, error) {
	query := `INSERT INTO users (id, username, password) VALUES ($1, $2, $3) RETURNING created_at`

	err := r.db.QueryRowContext(ctx, query, user.ID, user.Username, user.Password).Scan(&user.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, common.ErrAlreadyExists
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return user, nil
}

func (r *Repository) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	u := &User{}
	query := `SELECT id, username, password, created_at FROM users WHERE username = $1`

	err := r.db.QueryRowContext(ctx, query, username).Scan(&u.ID, &u.Username, &u.Password, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return u, nil
}

func (r *Repository) GetUserByID(ctx context.Context, id string) (*User, error) {
	u := &User{}
	query := `SELECT id, username, created_at FROM users WHERE id = $1`

	err := r.db.QueryRowContext(ctx, query, id).Scan(&u.ID, &u.Username, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return u, nil
}

func (r *Repository) SearchUsers(ctx context.Context, query string) ([]User, error) {
	// We limit to 10 to keep it fast
	q := `SELECT id, username, created_at FROM users WHERE username ILIKE $1 ORDER BY username LIMIT 10`
	rows, err := r.db.QueryContext(ctx, q, "%"+query+"%")
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	users := []User{}
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Username, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// Block adds blockedID to the owner's block list. Blocking twice is a no-op.
func (r *Repository) Block(ctx context.Context, ownerID, blockedID string) error {
	query := `INSERT INTO blocks (owner_id, blocked_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`
	if _, err := r.db.ExecContext(ctx, query, ownerID, blockedID); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// Unblock removes blockedID from the owner's block list. Unknown pairs are a no-op.
func (r *Repository) Unblock(ctx context.Context, ownerID, blockedID string) error {
	query := `DELETE FROM blocks WHERE owner_id = $1 AND blocked_id = $2`
	if _, err := r.db.ExecContext(ctx, query, ownerID, blockedID); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *Repository) ListBlocked(ctx context.Context, ownerID string) ([]BlockedUser, error) {
	query := `
		SELECT u.id, u.username, b.created_at
		FROM blocks b
		JOIN users u ON u.id = b.blocked_id
		WHERE b.owner_id = $1
		ORDER BY b.created_at DESC
	`
	rows, err := r.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	blocked := []BlockedUser{}
	for rows.Next() {
		var b BlockedUser
		if err := rows.Scan(&b.ID, &b.Username, &b.BlockedAt); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		blocked = append(blocked, b)
	}
	return blocked, rows.Err()
}

// IsBlockedEither reports whether a blocks b or b blocks a.
func (r *Repository) IsBlockedEither(ctx context.Context, a, b string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM blocks
			WHERE (owner_id = $1 AND blocked_id = $2) OR (owner_id = $2 AND blocked_id = $1)
		)
	`
	var blocked bool
	if err := r.db.QueryRowContext(ctx, query, a, b).Scan(&blocked); err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return blocked, nil
}
