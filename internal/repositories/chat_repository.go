package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"opschat/internal/models"
)

var ErrChatNotFound = errors.New("chat not found")

const chatColumns = `id, org_id, chat_type, name, description, avatar_url, is_active, created_by, created_at, updated_at`

// ChatRepository abstracts chat and participant persistence.
type ChatRepository interface {
	CreateDirectChat(ctx context.Context, orgID string, userID, participantID int) (models.Chat, bool, error)
	CreateGroupChat(ctx context.Context, orgID string, creatorID int, name, description string, participantIDs []int) (models.Chat, error)
	GetChat(ctx context.Context, chatID int) (models.Chat, error)
	GetParticipants(ctx context.Context, chatID int) ([]models.ChatParticipant, error)
	IsActiveParticipant(ctx context.Context, chatID, userID int) (bool, error)
	ListChats(ctx context.Context, orgID string, userID, page, limit int, search string) ([]models.Chat, error)
	UnreadCount(ctx context.Context, chatID, userID int) (int, error)
	AdvanceReadCursor(ctx context.Context, chatID, userID, messageID int) error
	TouchUpdatedAt(ctx context.Context, chatID int) error
}

// ChatRepo is a sqlx implementation of ChatRepository.
type ChatRepo struct {
	db *sqlx.DB
}

// NewChatRepo constructs a ChatRepo.
func NewChatRepo(db *sqlx.DB) *ChatRepo {
	return &ChatRepo{db: db}
}

// CreateDirectChat returns the existing direct chat for the unordered user
// pair, or creates one. The second return value reports whether a new chat
// was created. Uniqueness is enforced by the participant-count lookup, not a
// database constraint.
func (r *ChatRepo) CreateDirectChat(ctx context.Context, orgID string, userID, participantID int) (models.Chat, bool, error) {
	if userID == participantID {
		return models.Chat{}, false, errors.New("cannot create chat with self")
	}

	var chat models.Chat
	err := r.db.GetContext(ctx, &chat, `SELECT `+chatColumnsPrefixed("c")+` FROM chats c
        JOIN chat_participants p ON p.chat_id = c.id
        WHERE c.chat_type = 'direct' AND c.org_id = $1 AND p.user_id IN ($2, $3)
        GROUP BY c.id
        HAVING COUNT(DISTINCT p.user_id) = 2
        LIMIT 1`, orgID, userID, participantID)
	if err == nil {
		return chat, false, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return models.Chat{}, false, err
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Chat{}, false, err
	}
	defer tx.Rollback()

	if err := tx.QueryRowxContext(ctx, `INSERT INTO chats (org_id, chat_type, created_by)
        VALUES ($1, 'direct', $2) RETURNING `+chatColumns, orgID, userID).StructScan(&chat); err != nil {
		return models.Chat{}, false, err
	}
	for _, id := range []int{userID, participantID} {
		if _, err := tx.ExecContext(ctx, `INSERT INTO chat_participants (chat_id, user_id) VALUES ($1, $2)`, chat.ID, id); err != nil {
			return models.Chat{}, false, err
		}
	}
	if err := tx.Commit(); err != nil {
		return models.Chat{}, false, err
	}
	return chat, true, nil
}

// CreateGroupChat creates a group chat with the creator as admin.
func (r *ChatRepo) CreateGroupChat(ctx context.Context, orgID string, creatorID int, name, description string, participantIDs []int) (models.Chat, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Chat{}, err
	}
	defer tx.Rollback()

	var chat models.Chat
	if err := tx.QueryRowxContext(ctx, `INSERT INTO chats (org_id, chat_type, name, description, created_by)
        VALUES ($1, 'group', $2, $3, $4) RETURNING `+chatColumns, orgID, name, description, creatorID).StructScan(&chat); err != nil {
		return models.Chat{}, err
	}

	if _, err := tx.ExecContext(ctx, `INSERT INTO chat_participants (chat_id, user_id, is_admin) VALUES ($1, $2, TRUE)`, chat.ID, creatorID); err != nil {
		return models.Chat{}, err
	}
	for _, id := range participantIDs {
		if id == creatorID {
			continue
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO chat_participants (chat_id, user_id) VALUES ($1, $2)
            ON CONFLICT (chat_id, user_id) DO NOTHING`, chat.ID, id); err != nil {
			return models.Chat{}, err
		}
	}
	if err := tx.Commit(); err != nil {
		return models.Chat{}, err
	}
	return chat, nil
}

// GetChat fetches a chat by id.
func (r *ChatRepo) GetChat(ctx context.Context, chatID int) (models.Chat, error) {
	var chat models.Chat
	err := r.db.GetContext(ctx, &chat, `SELECT `+chatColumns+` FROM chats WHERE id=$1`, chatID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Chat{}, ErrChatNotFound
	}
	return chat, err
}

// GetParticipants returns every participant row of a chat, including
// soft-removed members.
func (r *ChatRepo) GetParticipants(ctx context.Context, chatID int) ([]models.ChatParticipant, error) {
	var participants []models.ChatParticipant
	err := r.db.SelectContext(ctx, &participants, `SELECT chat_id, user_id, is_admin, is_muted, joined_at, left_at, last_read_message_id
        FROM chat_participants WHERE chat_id=$1 ORDER BY joined_at ASC`, chatID)
	return participants, err
}

// IsActiveParticipant reports whether the user belongs to the chat and has
// not left.
func (r *ChatRepo) IsActiveParticipant(ctx context.Context, chatID, userID int) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM chat_participants
        WHERE chat_id=$1 AND user_id=$2 AND left_at IS NULL)`, chatID, userID)
	return exists, err
}

// ListChats returns active chats where the user is an active participant,
// most recent activity first, offset-paginated. A non-empty search filters by
// group name or any participant's display name.
func (r *ChatRepo) ListChats(ctx context.Context, orgID string, userID, page, limit int, search string) ([]models.Chat, error) {
	if page < 1 {
		page = 1
	}
	offset := (page - 1) * limit

	query := `SELECT ` + chatColumnsPrefixed("c") + ` FROM chats c
        JOIN chat_participants p ON p.chat_id = c.id AND p.user_id = $1 AND p.left_at IS NULL
        WHERE c.is_active AND c.org_id = $2
          AND ($3 = '' OR c.name ILIKE '%' || $3 || '%' OR EXISTS (
              SELECT 1 FROM chat_participants sp JOIN users u ON u.id = sp.user_id
              WHERE sp.chat_id = c.id AND u.display_name ILIKE '%' || $3 || '%'))
        ORDER BY c.updated_at DESC, c.id DESC
        LIMIT $4 OFFSET $5`

	var chats []models.Chat
	err := r.db.SelectContext(ctx, &chats, query, userID, orgID, search, limit, offset)
	return chats, err
}

// UnreadCount counts messages from others created after the user's read
// cursor. A missing cursor means everything from others is unread.
func (r *ChatRepo) UnreadCount(ctx context.Context, chatID, userID int) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM messages m
        WHERE m.chat_id = $1 AND m.sender_id <> $2
          AND m.id > COALESCE((SELECT last_read_message_id FROM chat_participants
              WHERE chat_id = $1 AND user_id = $2), 0)`, chatID, userID)
	return count, err
}

// AdvanceReadCursor moves the user's read cursor forward; it never regresses.
func (r *ChatRepo) AdvanceReadCursor(ctx context.Context, chatID, userID, messageID int) error {
	res, err := r.db.ExecContext(ctx, `UPDATE chat_participants
        SET last_read_message_id = GREATEST(COALESCE(last_read_message_id, 0), $3)
        WHERE chat_id = $1 AND user_id = $2 AND left_at IS NULL`, chatID, userID, messageID)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrChatNotFound
	}
	return nil
}

// TouchUpdatedAt bumps the chat's activity timestamp for list ordering.
func (r *ChatRepo) TouchUpdatedAt(ctx context.Context, chatID int) error {
	_, err := r.db.ExecContext(ctx, `UPDATE chats SET updated_at = NOW() WHERE id=$1`, chatID)
	return err
}

func chatColumnsPrefixed(alias string) string {
	return fmt.Sprintf(`%[1]s.id, %[1]s.org_id, %[1]s.chat_type, %[1]s.name, %[1]s.description, %[1]s.avatar_url, %[1]s.is_active, %[1]s.created_by, %[1]s.created_at, %[1]s.updated_at`, alias)
}
