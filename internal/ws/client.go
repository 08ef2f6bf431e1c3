package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"opschat/internal/identity"
	"opschat/internal/models"
	"opschat/internal/observability"
	"opschat/internal/registry"
	"opschat/internal/repositories"
)

const (
	writeWait      = 10 * time.Second
	readWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	maxMessageSize = int64(4 << 10)
	sendBufferSize = 256
)

type connState int

const (
	stateUnauthenticated connState = iota
	stateAuthenticated
	stateClosed
)

// Client is one websocket connection and its protocol state machine.
// state and userID are owned by the read pump goroutine; frames from one
// connection are handled to completion, in receipt order.
type Client struct {
	conn      *websocket.Conn
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once

	registry *registry.Registry
	verifier identity.Verifier
	chats    repositories.ChatRepository

	info   registry.ConnInfo
	state  connState
	userID int
}

func newClient(conn *websocket.Conn, reg *registry.Registry, verifier identity.Verifier, chats repositories.ChatRepository, info registry.ConnInfo) *Client {
	if conn != nil {
		conn.SetReadLimit(maxMessageSize)
	}
	return &Client{
		conn:     conn,
		send:     make(chan []byte, sendBufferSize),
		done:     make(chan struct{}),
		registry: reg,
		verifier: verifier,
		chats:    chats,
		info:     info,
	}
}

// Deliver enqueues a pre-marshaled payload without blocking. It reports
// false when the connection is closed or its buffer is full.
func (c *Client) Deliver(payload []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

// Close tears the connection down; safe to call more than once.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		if c.conn != nil {
			_ = c.conn.Close()
		}
	})
}

func (c *Client) readPump(ctx context.Context) {
	var closeReason string
	defer func() {
		if c.state == stateAuthenticated {
			c.registry.RemoveConnection(c.userID, c)
		}
		c.state = stateClosed
		c.Close()
		observability.DecWSActive("session")
		observability.IncWSEvent("session", "ws_disconnect")
		publishSessionEvent(ctx, "ws_disconnect", c.info, c.userID, closeReason)
	}()

	_ = c.conn.SetReadDeadline(time.Now().Add(readWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(readWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			closeReason = err.Error()
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				observability.IncWSEvent("session", "ws_error")
			}
			return
		}
		// any inbound frame counts as liveness
		_ = c.conn.SetReadDeadline(time.Now().Add(readWait))
		c.handleRaw(ctx, data)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case <-c.done:
			return
		case payload := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				log.Printf("ws: write error conn=%s: %v", c.info.ConnID, err)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) handleRaw(ctx context.Context, data []byte) {
	frame, err := ParseFrame(data)
	if err != nil {
		if errors.Is(err, ErrUnknownFrameType) {
			log.Printf("ws: ignoring frame conn=%s: %v", c.info.ConnID, err)
			return
		}
		c.sendError("malformed payload")
		return
	}
	c.handleFrame(ctx, frame)
}

func (c *Client) handleFrame(ctx context.Context, frame Frame) {
	switch frame.Type {
	case models.FrameAuth:
		c.handleAuth(ctx, frame.Auth)
	case models.FrameJoinChat:
		c.handleJoin(ctx, frame.Room)
	case models.FrameLeaveChat:
		c.handleLeave(frame.Room)
	case models.FrameTypingStart:
		c.handleTyping(frame.Typing, models.EventTypingStart)
	case models.FrameTypingStop:
		c.handleTyping(frame.Typing, models.EventTypingStop)
	case models.FramePing:
		c.enqueue(models.PongEvent{EventBase: models.NewEventBase(models.EventPong)})
	}
}

func (c *Client) handleAuth(ctx context.Context, payload *models.AuthPayload) {
	if c.state == stateAuthenticated {
		c.sendError("already authenticated")
		return
	}

	session, err := c.verifier.Verify(ctx, payload.SessionToken)
	if err != nil || (payload.UserID != 0 && session.UserID != payload.UserID) {
		c.enqueue(models.AuthErrorEvent{
			EventBase: models.NewEventBase(models.EventAuthError),
			Message:   "invalid session",
		})
		return
	}

	c.userID = session.UserID
	c.state = stateAuthenticated
	c.registry.AddConnection(c.userID, c, c.info)
	c.enqueue(models.AuthSuccessEvent{
		EventBase: models.NewEventBase(models.EventAuthSuccess),
		UserID:    c.userID,
	})
}

func (c *Client) handleJoin(ctx context.Context, payload *models.RoomPayload) {
	if c.state != stateAuthenticated {
		c.sendError("not authenticated")
		return
	}

	// Room membership requires persisted participation, not just a valid
	// session.
	member, err := c.chats.IsActiveParticipant(ctx, payload.ChatID, c.userID)
	if err != nil {
		c.sendError("failed to verify chat membership")
		return
	}
	if !member {
		c.sendError("not a chat participant")
		return
	}

	c.registry.JoinChatRoom(c.userID, payload.ChatID)
	c.enqueue(models.ChatJoinedEvent{
		EventBase: models.NewEventBase(models.EventChatJoined),
		ChatID:    payload.ChatID,
	})
	c.enqueue(models.OnlineUsersEvent{
		EventBase:   models.NewEventBase(models.EventOnlineUsers),
		ChatID:      payload.ChatID,
		OnlineUsers: c.registry.OnlineUsersInChat(payload.ChatID),
	})
}

func (c *Client) handleLeave(payload *models.RoomPayload) {
	if c.state != stateAuthenticated {
		c.sendError("not authenticated")
		return
	}

	c.registry.LeaveChatRoom(c.userID, payload.ChatID)
	c.enqueue(models.ChatLeftEvent{
		EventBase: models.NewEventBase(models.EventChatLeft),
		ChatID:    payload.ChatID,
	})
}

func (c *Client) handleTyping(payload *models.TypingPayload, eventType models.EventType) {
	if c.state != stateAuthenticated {
		c.sendError("not authenticated")
		return
	}

	c.registry.BroadcastToChatRoom(payload.ChatID, models.TypingEvent{
		EventBase: models.NewEventBase(eventType),
		ChatID:    payload.ChatID,
		UserID:    c.userID,
		UserName:  payload.UserName,
	}, c.userID)
}

func (c *Client) sendError(msg string) {
	c.enqueue(models.ErrorEvent{
		EventBase: models.NewEventBase(models.EventError),
		Message:   msg,
	})
}

func (c *Client) enqueue(event any) {
	payload, err := json.Marshal(event)
	if err != nil {
		log.Printf("ws: marshal event conn=%s: %v", c.info.ConnID, err)
		return
	}
	if !c.Deliver(payload) {
		c.Close()
	}
}
