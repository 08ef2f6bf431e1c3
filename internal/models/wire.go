package models

import "time"

// FrameType tags a client→server websocket frame.
type FrameType string

const (
	FrameAuth        FrameType = "auth"
	FrameJoinChat    FrameType = "join_chat"
	FrameLeaveChat   FrameType = "leave_chat"
	FrameTypingStart FrameType = "typing_start"
	FrameTypingStop  FrameType = "typing_stop"
	FramePing        FrameType = "ping"
)

// AuthPayload authenticates a freshly opened socket.
type AuthPayload struct {
	UserID       int    `json:"userId"`
	SessionToken string `json:"sessionToken"`
}

// RoomPayload joins or leaves a chat room.
type RoomPayload struct {
	UserID int `json:"userId"`
	ChatID int `json:"chatId"`
}

// TypingPayload announces a typing indicator; never persisted.
type TypingPayload struct {
	ChatID   int    `json:"chatId"`
	UserID   int    `json:"userId"`
	UserName string `json:"userName"`
}

// EventType tags a server→client websocket frame.
type EventType string

const (
	EventAuthSuccess    EventType = "auth_success"
	EventAuthError      EventType = "auth_error"
	EventChatJoined     EventType = "chat_joined"
	EventChatLeft       EventType = "chat_left"
	EventOnlineUsers    EventType = "online_users"
	EventChatMessage    EventType = "chat_message"
	EventMessageEdited  EventType = "message_edited"
	EventMessageDeleted EventType = "message_deleted"
	EventTypingStart    EventType = "typing_start"
	EventTypingStop     EventType = "typing_stop"
	EventPong           EventType = "pong"
	EventError          EventType = "error"
)

// EventBase is embedded in every outbound frame; all frames carry a
// top-level timestamp.
type EventBase struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
}

// NewEventBase stamps an event with the current server time.
func NewEventBase(t EventType) EventBase {
	return EventBase{Type: t, Timestamp: time.Now().UTC()}
}

type AuthSuccessEvent struct {
	EventBase
	UserID int `json:"userId"`
}

type AuthErrorEvent struct {
	EventBase
	Message string `json:"message"`
}

type ChatJoinedEvent struct {
	EventBase
	ChatID int `json:"chatId"`
}

type ChatLeftEvent struct {
	EventBase
	ChatID int `json:"chatId"`
}

type OnlineUsersEvent struct {
	EventBase
	ChatID      int   `json:"chatId"`
	OnlineUsers []int `json:"onlineUsers"`
}

type ChatMessageEvent struct {
	EventBase
	ID           int       `json:"id"`
	ChatID       int       `json:"chatId"`
	SenderID     int       `json:"senderId"`
	SenderName   string    `json:"senderName"`
	SenderAvatar string    `json:"senderAvatar,omitempty"`
	Content      string    `json:"content"`
	MessageType  string    `json:"messageType"`
	ReplyToID    *int      `json:"replyToId,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

type MessageEditedEvent struct {
	EventBase
	ID       int       `json:"id"`
	ChatID   int       `json:"chatId"`
	Content  string    `json:"content"`
	EditedAt time.Time `json:"editedAt"`
}

type MessageDeletedEvent struct {
	EventBase
	ID     int `json:"id"`
	ChatID int `json:"chatId"`
}

type TypingEvent struct {
	EventBase
	ChatID   int    `json:"chatId"`
	UserID   int    `json:"userId"`
	UserName string `json:"userName"`
}

type PongEvent struct {
	EventBase
}

type ErrorEvent struct {
	EventBase
	Message string `json:"message"`
}
