package notification

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go-realtime-chat/internal/common"
	"go-realtime-chat/internal/db"
)

type Repository struct {
	db db.DBTX
}

func NewRepository(db db.DBTX) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Create(ctx context.Context, n *Notification) (*Notification, error) {
	query := `
		INSERT INTO notifications (id, sender_id, receiver_id, message)
		VALUES ($1, $2, $3, $4)
		RETURNING read, delivered, created_at
	`
	err := r.db.QueryRowContext(ctx, query, n.ID, n.SenderID, n.ReceiverID, n.Message).
		Scan(&n.Read, &n.Delivered, &n.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}

// Get returns a notification owned by receiverID.
func (r *Repository) Get(ctx context.Context, id, receiverID string) (*Notification, error) {
	query := `
		SELECT id, sender_id, receiver_id, message, read, delivered, created_at
		FROM notifications
		WHERE id = $1 AND receiver_id = $2
	`
	n := &Notification{}
	err := r.db.QueryRowContext(ctx, query, id, receiverID).
		Scan(&n.ID, &n.SenderID, &n.ReceiverID, &n.Message, &n.Read, &n.Delivered, &n.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}

func (r *Repository) List(ctx context.Context, receiverID string, limit int) ([]*Notification, error) {
	query := `
		SELECT id, sender_id, receiver_id, message, read, delivered, created_at
		FROM notifications
		WHERE receiver_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := r.db.QueryContext(ctx, query, receiverID, limit)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	out := []*Notification{}
	for rows.Next() {
		n := &Notification{}
		if err := rows.Scan(&n.ID, &n.SenderID, &n.ReceiverID, &n.Message, &n.Read, &n.Delivered, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return out, nil
}

// MarkRead and MarkDelivered only ever set their flag to TRUE.
func (r *Repository) MarkRead(ctx context.Context, id, receiverID string) error {
	return r.setFlag(ctx, `UPDATE notifications SET read = TRUE WHERE id = $1 AND receiver_id = $2`, id, receiverID)
}

func (r *Repository) MarkDelivered(ctx context.Context, id, receiverID string) error {
	return r.setFlag(ctx, `UPDATE notifications SET delivered = TRUE WHERE id = $1 AND receiver_id = $2`, id, receiverID)
}

func (r *Repository) setFlag(ctx context.Context, query, id, receiverID string) error {
	res, err := r.db.ExecContext(ctx, query, id, receiverID)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return common.ErrNotFound
	}
	return nil
}

func (r *Repository) MarkAllRead(ctx context.Context, receiverID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE notifications SET read = TRUE WHERE receiver_id = $1 AND read = FALSE`, receiverID)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}

func (r *Repository) UnreadCount(ctx context.Context, receiverID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM notifications WHERE receiver_id = $1 AND read = FALSE`, receiverID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}

func (r *Repository) Delete(ctx context.Context, id, receiverID string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM notifications WHERE id = $1 AND receiver_id = $2`, id, receiverID)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return common.ErrNotFound
	}
	return nil
}

// UpsertSubscription stores sub. Endpoints are unique: re-subscribing an
// endpoint moves it to the new owner and refreshes its keys.
func (r *Repository) UpsertSubscription(ctx context.Context, sub *PushSubscription) (*PushSubscription, error) {
	query := `
		INSERT INTO push_subscriptions (id, user_id, endpoint, p256dh, auth)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (endpoint) DO UPDATE
		SET user_id = EXCLUDED.user_id, p256dh = EXCLUDED.p256dh, auth = EXCLUDED.auth
		RETURNING id, created_at
	`
	err := r.db.QueryRowContext(ctx, query, sub.ID, sub.UserID, sub.Endpoint, sub.Keys.P256dh, sub.Keys.Auth).
		Scan(&sub.ID, &sub.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return sub, nil
}

func (r *Repository) DeleteSubscription(ctx context.Context, userID, endpoint string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM push_subscriptions WHERE user_id = $1 AND endpoint = $2`, userID, endpoint)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return common.ErrNotFound
	}
	return nil
}

// DeleteSubscriptionByEndpoint drops an endpoint the push provider reported as gone.
func (r *Repository) DeleteSubscriptionByEndpoint(ctx context.Context, endpoint string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM push_subscriptions WHERE endpoint = $1`, endpoint); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *Repository) ListSubscriptions(ctx context.Context, userID string) ([]*PushSubscription, error) {
	query := `
		SELECT id, user_id, endpoint, p256dh, auth, created_at
		FROM push_subscriptions
		WHERE user_id = $1
		ORDER BY created_at
	`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	out := []*PushSubscription{}
	for rows.Next() {
		s := &PushSubscription{}
		if err := rows.Scan(&s.ID, &s.UserID, &s.Endpoint, &s.Keys.P256dh, &s.Keys.Auth, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return out, nil
}
