package models

import "time"

// Chat types.
const (
	ChatTypeDirect = "direct"
	ChatTypeGroup  = "group"
)

// Chat represents a direct or group conversation.
type Chat struct {
	ID          int       `db:"id" json:"id"`
	OrgID       string    `db:"org_id" json:"org_id"`
	ChatType    string    `db:"chat_type" json:"type"`
	Name        string    `db:"name" json:"name,omitempty"`
	Description string    `db:"description" json:"description,omitempty"`
	AvatarURL   string    `db:"avatar_url" json:"avatar_url,omitempty"`
	IsActive    bool      `db:"is_active" json:"is_active"`
	CreatedBy   int       `db:"created_by" json:"created_by"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// ChatParticipant captures persisted membership of a user in a chat.
// Soft-removed members keep their row with left_at set.
type ChatParticipant struct {
	ChatID            int        `db:"chat_id" json:"chat_id"`
	UserID            int        `db:"user_id" json:"user_id"`
	IsAdmin           bool       `db:"is_admin" json:"is_admin"`
	IsMuted           bool       `db:"is_muted" json:"is_muted"`
	JoinedAt          time.Time  `db:"joined_at" json:"joined_at"`
	LeftAt            *time.Time `db:"left_at" json:"left_at,omitempty"`
	LastReadMessageID *int       `db:"last_read_message_id" json:"last_read_message_id,omitempty"`
}

// ParticipantView is a roster entry augmented with profile and presence data.
type ParticipantView struct {
	UserID      int    `json:"user_id"`
	DisplayName string `json:"display_name"`
	AvatarURL   string `json:"avatar_url,omitempty"`
	IsAdmin     bool   `json:"is_admin"`
	IsMuted     bool   `json:"is_muted"`
	IsOnline    bool   `json:"is_online"`
}

// ChatSummary is one entry of the paginated chat list.
type ChatSummary struct {
	Chat
	Participants []ParticipantView `json:"participants"`
	LastMessage  *MessageView      `json:"last_message,omitempty"`
	UnreadCount  int               `json:"unread_count"`
}
