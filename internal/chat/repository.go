package chat

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go-realtime-chat/internal/common"
	"go-realtime-chat/internal/db"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const messageColumns = `m.id, m.conversation_id, m.sender_id, u.username, m.receiver_id, m.is_global,
	m.content, m.kind, m.file_url, m.read, m.edited, m.created_at, m.updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(row rowScanner) (*Message, error) {
	var (
		msg      Message
		receiver sql.NullString
		fileURL  sql.NullString
		kind     string
	)
	err := row.Scan(&msg.ID, &msg.ConversationID, &msg.SenderID, &msg.SenderUsername, &receiver, &msg.IsGlobal,
		&msg.Content, &kind, &fileURL, &msg.Read, &msg.Edited, &msg.CreatedAt, &msg.UpdatedAt)
	if err != nil {
		return nil, err
	}
	msg.ReceiverID = receiver.String
	msg.FileURL = fileURL.String
	msg.Kind = Kind(kind)
	return &msg, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// CreateMessage inserts msg and fills in timestamps and the sender's username.
func (r *Repository) CreateMessage(ctx context.Context, msg *Message) (*Message, error) {
	query := `
		WITH inserted AS (
			INSERT INTO messages (id, conversation_id, sender_id, receiver_id, is_global, content, kind, file_url)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			RETURNING sender_id, created_at, updated_at
		)
		SELECT u.username, i.created_at, i.updated_at
		FROM inserted i
		JOIN users u ON u.id = i.sender_id
	`
	err := r.db.QueryRowContext(ctx, query,
		msg.ID, msg.ConversationID, msg.SenderID, nullString(msg.ReceiverID), msg.IsGlobal,
		msg.Content, string(msg.Kind), nullString(msg.FileURL),
	).Scan(&msg.SenderUsername, &msg.CreatedAt, &msg.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return msg, nil
}

func (r *Repository) GetMessage(ctx context.Context, id string) (*Message, error) {
	return getMessage(ctx, r.db, id, false)
}

func getMessage(ctx context.Context, q db.DBTX, id string, forUpdate bool) (*Message, error) {
	query := `SELECT ` + messageColumns + `
		FROM messages m
		JOIN users u ON u.id = m.sender_id
		WHERE m.id = $1`
	if forUpdate {
		query += ` FOR UPDATE OF m`
	}
	msg, err := scanMessage(q.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return msg, nil
}

// EditOwned replaces the content of a message sent by senderID.
func (r *Repository) EditOwned(ctx context.Context, id, senderID, content string) (*Message, error) {
	var msg *Message
	err := db.WithTx(ctx, r.db, func(ctx context.Context, tx db.DBTX) error {
		var err error
		msg, err = getMessage(ctx, tx, id, true)
		if err != nil {
			return err
		}
		if msg.SenderID != senderID {
			return common.ErrForbidden
		}

		query := `UPDATE messages SET content = $2, edited = TRUE, updated_at = now() WHERE id = $1 RETURNING updated_at`
		if err := tx.QueryRowContext(ctx, query, id, content).Scan(&msg.UpdatedAt); err != nil {
			return fmt.Errorf("db error: %w", err)
		}
		msg.Content = content
		msg.Edited = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	return msg, nil
}

// DeleteOwned hard-deletes a message sent by senderID and returns what was removed.
func (r *Repository) DeleteOwned(ctx context.Context, id, senderID string) (*Message, error) {
	var msg *Message
	err := db.WithTx(ctx, r.db, func(ctx context.Context, tx db.DBTX) error {
		var err error
		msg, err = getMessage(ctx, tx, id, true)
		if err != nil {
			return err
		}
		if msg.SenderID != senderID {
			return common.ErrForbidden
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE id = $1`, id); err != nil {
			return fmt.Errorf("db error: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return msg, nil
}

// MarkConversationRead flags every unread message addressed to readerID in the
// conversation as read and returns how many changed.
func (r *Repository) MarkConversationRead(ctx context.Context, conversationID, readerID string) (int64, error) {
	query := `UPDATE messages SET read = TRUE WHERE conversation_id = $1 AND receiver_id = $2 AND read = FALSE`
	res, err := r.db.ExecContext(ctx, query, conversationID, readerID)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}

// History returns up to limit messages of a conversation created before
// "before" (zero means now), oldest first.
func (r *Repository) History(ctx context.Context, conversationID string, before time.Time, limit int) ([]*Message, error) {
	query := `SELECT ` + messageColumns + `
		FROM messages m
		JOIN users u ON u.id = m.sender_id
		WHERE m.conversation_id = $1 AND ($2::timestamptz IS NULL OR m.created_at < $2)
		ORDER BY m.created_at DESC
		LIMIT $3`

	cursor := sql.NullTime{Time: before, Valid: !before.IsZero()}
	rows, err := r.db.QueryContext(ctx, query, conversationID, cursor, limit)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	messages := []*Message{}
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}
