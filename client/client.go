// Package client implements the browser-equivalent socket lifecycle: it
// dials the chat websocket, authenticates, re-joins rooms after every
// reconnect, and surfaces inbound events so callers can invalidate caches.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"

	"opschat/internal/models"
)

const (
	dialTimeout  = 10 * time.Second
	authTimeout  = 10 * time.Second
	writeTimeout = 10 * time.Second
	pingInterval = 30 * time.Second
)

// Config configures a Client.
type Config struct {
	// URL is the websocket endpoint, e.g. ws://host:8083/ws.
	URL          string
	UserID       int
	SessionToken string

	// OnEvent receives every inbound frame after dispatch.
	OnEvent func(eventType models.EventType, payload []byte)
	// OnInvalidate is called with the chat id whenever a message event
	// means locally cached chat data is stale.
	OnInvalidate func(chatID int)
}

// Client maintains one websocket session, reconnecting with exponential
// backoff until its context is canceled.
type Client struct {
	cfg Config

	mu     sync.Mutex
	conn   *websocket.Conn
	joined map[int]struct{}
}

// New constructs a Client; call Run to start the session loop.
func New(cfg Config) *Client {
	return &Client{cfg: cfg, joined: make(map[int]struct{})}
}

// Run dials, authenticates, and reads events until ctx is canceled. Every
// dropped session is retried with exponential backoff; a session that made
// it past authentication resets the backoff before the next wait.
func (c *Client) Run(ctx context.Context) error {
	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = 0

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		authed, err := c.session(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if authed {
			policy.Reset()
		}
		if err != nil {
			wait := policy.NextBackOff()
			log.Printf("client: session ended: %v; reconnecting in %s", err, wait)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
		}
	}
}

// session runs one connection to completion. The bool reports whether the
// session made it past authentication.
func (c *Client) session(ctx context.Context) (bool, error) {
	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, c.cfg.URL, nil)
	cancel()
	if err != nil {
		return false, fmt.Errorf("dial: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()
		conn.Close()
	}()

	if err := c.authenticate(conn); err != nil {
		return false, err
	}
	if err := c.rejoinRooms(); err != nil {
		return true, err
	}

	stopPing := make(chan struct{})
	defer close(stopPing)
	go c.pingLoop(stopPing)

	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-stopPing:
		}
	}()

	return true, c.readLoop(conn)
}

func (c *Client) authenticate(conn *websocket.Conn) error {
	if err := c.writeJSON(map[string]any{
		"type":         models.FrameAuth,
		"userId":       c.cfg.UserID,
		"sessionToken": c.cfg.SessionToken,
	}); err != nil {
		return fmt.Errorf("send auth: %w", err)
	}

	deadline := time.Now().Add(authTimeout)
	for {
		_ = conn.SetReadDeadline(deadline)
		_, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("await auth reply: %w", err)
		}
		eventType, _ := peekEvent(data)
		switch eventType {
		case models.EventAuthSuccess:
			_ = conn.SetReadDeadline(time.Time{})
			return nil
		case models.EventAuthError:
			return errors.New("authentication rejected")
		default:
			// stray frame before the auth reply; ignore
		}
	}
}

func (c *Client) rejoinRooms() error {
	c.mu.Lock()
	rooms := make([]int, 0, len(c.joined))
	for chatID := range c.joined {
		rooms = append(rooms, chatID)
	}
	c.mu.Unlock()

	for _, chatID := range rooms {
		if err := c.sendRoomFrame(models.FrameJoinChat, chatID); err != nil {
			return fmt.Errorf("rejoin chat %d: %w", chatID, err)
		}
	}
	return nil
}

func (c *Client) readLoop(conn *websocket.Conn) error {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		c.dispatch(data)
	}
}

func (c *Client) dispatch(data []byte) {
	eventType, chatID := peekEvent(data)

	switch eventType {
	case models.EventChatMessage, models.EventMessageEdited, models.EventMessageDeleted:
		if c.cfg.OnInvalidate != nil && chatID != 0 {
			c.cfg.OnInvalidate(chatID)
		}
	}

	if c.cfg.OnEvent != nil {
		c.cfg.OnEvent(eventType, data)
	}
}

func (c *Client) pingLoop(stop <-chan struct{}) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := c.writeJSON(map[string]any{"type": models.FramePing}); err != nil {
				return
			}
		}
	}
}

// JoinChat subscribes to a room. The subscription survives reconnects: it
// is replayed after every successful authentication.
func (c *Client) JoinChat(chatID int) error {
	c.mu.Lock()
	c.joined[chatID] = struct{}{}
	connected := c.conn != nil
	c.mu.Unlock()

	if !connected {
		return nil
	}
	return c.sendRoomFrame(models.FrameJoinChat, chatID)
}

// LeaveChat drops the room subscription.
func (c *Client) LeaveChat(chatID int) error {
	c.mu.Lock()
	delete(c.joined, chatID)
	connected := c.conn != nil
	c.mu.Unlock()

	if !connected {
		return nil
	}
	return c.sendRoomFrame(models.FrameLeaveChat, chatID)
}

// Typing sends a typing indicator for a chat.
func (c *Client) Typing(chatID int, userName string, active bool) error {
	frameType := models.FrameTypingStop
	if active {
		frameType = models.FrameTypingStart
	}
	return c.writeJSON(map[string]any{
		"type":     frameType,
		"chatId":   chatID,
		"userId":   c.cfg.UserID,
		"userName": userName,
	})
}

func (c *Client) sendRoomFrame(frameType models.FrameType, chatID int) error {
	return c.writeJSON(map[string]any{
		"type":   frameType,
		"userId": c.cfg.UserID,
		"chatId": chatID,
	})
}

func (c *Client) writeJSON(payload any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return errors.New("not connected")
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteJSON(payload)
}

func peekEvent(data []byte) (models.EventType, int) {
	var envelope struct {
		Type   models.EventType `json:"type"`
		ChatID int              `json:"chatId"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return "", 0
	}
	return envelope.Type, envelope.ChatID
}
