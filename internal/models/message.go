package models

import "time"

// Message types.
const (
	MessageTypeText  = "text"
	MessageTypeImage = "image"
	MessageTypeFile  = "file"
)

// Message represents a persisted chat message.
type Message struct {
	ID          int        `db:"id" json:"id"`
	ChatID      int        `db:"chat_id" json:"chat_id"`
	SenderID    int        `db:"sender_id" json:"sender_id"`
	Content     string     `db:"content" json:"content"`
	MessageType string     `db:"message_type" json:"message_type"`
	ReplyToID   *int       `db:"reply_to_id" json:"reply_to_id,omitempty"`
	IsEdited    bool       `db:"is_edited" json:"is_edited"`
	EditedAt    *time.Time `db:"edited_at" json:"edited_at,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at"`
}

// MessageStatus is a per-recipient delivery marker. Rows cascade when the
// message is deleted.
type MessageStatus struct {
	MessageID int       `db:"message_id" json:"message_id"`
	UserID    int       `db:"user_id" json:"user_id"`
	Status    string    `db:"status" json:"status"`
	StatusAt  time.Time `db:"status_at" json:"status_at"`
}

// ReplyPreview is the short form of a referenced message attached to replies.
type ReplyPreview struct {
	ID       int    `json:"id"`
	SenderID int    `json:"sender_id"`
	Content  string `json:"content"`
}

// MessageView is a message with its sender resolved and, when the message is
// a reply, a preview of the referenced message.
type MessageView struct {
	Message
	SenderName   string        `json:"sender_name,omitempty"`
	SenderAvatar string        `json:"sender_avatar,omitempty"`
	ReplyTo      *ReplyPreview `json:"reply_to,omitempty"`
}
