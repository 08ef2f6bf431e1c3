package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"opschat/internal/models"
)

var ErrMessageNotFound = errors.New("message not found")

const messageColumns = `id, chat_id, sender_id, content, message_type, reply_to_id, is_edited, edited_at, created_at, updated_at`

// MessageRepository defines interactions for chat messages and their
// delivery statuses.
type MessageRepository interface {
	Create(ctx context.Context, chatID, senderID int, content, messageType string, replyToID *int) (models.Message, error)
	Get(ctx context.Context, messageID int) (models.Message, error)
	GetBatch(ctx context.Context, ids []int) (map[int]models.Message, error)
	Edit(ctx context.Context, messageID int, content string) (models.Message, error)
	Delete(ctx context.Context, messageID int) error
	List(ctx context.Context, chatID, page, limit int, before, after *models.Message) ([]models.Message, error)
	LastMessage(ctx context.Context, chatID int) (*models.Message, error)
	MarkDelivered(ctx context.Context, messageID, chatID, senderID int) error
	Statuses(ctx context.Context, messageID int) ([]models.MessageStatus, error)
}

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

// Create stores a message row. The insert is all-or-nothing; no partial
// side effects on failure.
func (r *MessageRepo) Create(ctx context.Context, chatID, senderID int, content, messageType string, replyToID *int) (models.Message, error) {
	var msg models.Message
	err := r.db.QueryRowxContext(ctx, `INSERT INTO messages (chat_id, sender_id, content, message_type, reply_to_id)
        VALUES ($1, $2, $3, $4, $5) RETURNING `+messageColumns,
		chatID, senderID, content, messageType, replyToID).StructScan(&msg)
	return msg, err
}

// Get retrieves a single message.
func (r *MessageRepo) Get(ctx context.Context, messageID int) (models.Message, error) {
	var msg models.Message
	err := r.db.GetContext(ctx, &msg, `SELECT `+messageColumns+` FROM messages WHERE id=$1`, messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	return msg, err
}

// GetBatch fetches several messages in one query, keyed by id. Used for
// reply previews so a page costs one lookup instead of one per message.
func (r *MessageRepo) GetBatch(ctx context.Context, ids []int) (map[int]models.Message, error) {
	result := make(map[int]models.Message, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	var msgs []models.Message
	err := r.db.SelectContext(ctx, &msgs, `SELECT `+messageColumns+` FROM messages WHERE id = ANY($1)`, pq.Array(ids))
	if err != nil {
		return nil, err
	}
	for _, m := range msgs {
		result[m.ID] = m
	}
	return result, nil
}

// Edit replaces the content and marks the message edited.
func (r *MessageRepo) Edit(ctx context.Context, messageID int, content string) (models.Message, error) {
	var msg models.Message
	err := r.db.QueryRowxContext(ctx, `UPDATE messages
        SET content=$2, is_edited=TRUE, edited_at=NOW(), updated_at=NOW()
        WHERE id=$1 RETURNING `+messageColumns, messageID, content).StructScan(&msg)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	return msg, err
}

// Delete removes the message; associated status rows cascade.
func (r *MessageRepo) Delete(ctx context.Context, messageID int) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM messages WHERE id=$1`, messageID)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrMessageNotFound
	}
	return nil
}

// List returns a page of messages ascending by (created_at, id). The
// optional before/after boundaries are strict and are applied before the
// offset, so combining them stays well-defined.
func (r *MessageRepo) List(ctx context.Context, chatID, page, limit int, before, after *models.Message) ([]models.Message, error) {
	if page < 1 {
		page = 1
	}
	offset := (page - 1) * limit

	query := `SELECT ` + messageColumns + ` FROM messages WHERE chat_id=$1`
	args := []interface{}{chatID}

	if before != nil {
		query += fmt.Sprintf(` AND (created_at, id) < ($%d, $%d)`, len(args)+1, len(args)+2)
		args = append(args, before.CreatedAt, before.ID)
	}
	if after != nil {
		query += fmt.Sprintf(` AND (created_at, id) > ($%d, $%d)`, len(args)+1, len(args)+2)
		args = append(args, after.CreatedAt, after.ID)
	}
	query += fmt.Sprintf(` ORDER BY created_at ASC, id ASC LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	var msgs []models.Message
	err := r.db.SelectContext(ctx, &msgs, query, args...)
	return msgs, err
}

// LastMessage returns the most recent message of a chat, or nil when the
// chat is empty.
func (r *MessageRepo) LastMessage(ctx context.Context, chatID int) (*models.Message, error) {
	var msg models.Message
	err := r.db.GetContext(ctx, &msg, `SELECT `+messageColumns+` FROM messages
        WHERE chat_id=$1 ORDER BY created_at DESC, id DESC LIMIT 1`, chatID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// MarkDelivered writes a delivered status row for every active participant
// except the sender.
func (r *MessageRepo) MarkDelivered(ctx context.Context, messageID, chatID, senderID int) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO message_statuses (message_id, user_id, status)
        SELECT $1, p.user_id, 'delivered' FROM chat_participants p
        WHERE p.chat_id = $2 AND p.user_id <> $3 AND p.left_at IS NULL
        ON CONFLICT (message_id, user_id) DO NOTHING`, messageID, chatID, senderID)
	return err
}

// Statuses returns the per-recipient delivery markers of a message.
func (r *MessageRepo) Statuses(ctx context.Context, messageID int) ([]models.MessageStatus, error) {
	var statuses []models.MessageStatus
	err := r.db.SelectContext(ctx, &statuses, `SELECT message_id, user_id, status, status_at
        FROM message_statuses WHERE message_id=$1 ORDER BY status_at ASC, user_id ASC`, messageID)
	return statuses, err
}
