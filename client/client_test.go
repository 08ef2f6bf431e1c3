package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"opschat/internal/models"
)

var upgrader = websocket.Upgrader{}

type recordedFrame struct {
	Type   models.FrameType `json:"type"`
	UserID int              `json:"userId"`
	ChatID int              `json:"chatId"`
	Token  string           `json:"sessionToken"`
}

// chatServer is a scripted websocket endpoint: it answers the auth frame,
// records every inbound frame, and lets the test push events down.
type chatServer struct {
	t        *testing.T
	frames   chan recordedFrame
	sessions chan *websocket.Conn
}

func newChatServer(t *testing.T) (*chatServer, *httptest.Server) {
	s := &chatServer{
		t:        t,
		frames:   make(chan recordedFrame, 16),
		sessions: make(chan *websocket.Conn, 4),
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		s.sessions <- conn
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var frame recordedFrame
			if err := json.Unmarshal(data, &frame); err != nil {
				continue
			}
			if frame.Type == models.FrameAuth {
				_ = conn.WriteJSON(map[string]any{"type": models.EventAuthSuccess, "userId": frame.UserID})
			}
			s.frames <- frame
		}
	}))
	t.Cleanup(srv.Close)
	return s, srv
}

func (s *chatServer) nextFrame() recordedFrame {
	s.t.Helper()
	select {
	case frame := <-s.frames:
		return frame
	case <-time.After(3 * time.Second):
		s.t.Fatal("timed out waiting for frame")
		return recordedFrame{}
	}
}

func (s *chatServer) nextSession() *websocket.Conn {
	s.t.Helper()
	select {
	case conn := <-s.sessions:
		return conn
	case <-time.After(3 * time.Second):
		s.t.Fatal("timed out waiting for session")
		return nil
	}
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestClientAuthenticatesAndRejoinsRooms(t *testing.T) {
	server, srv := newChatServer(t)

	var invalidated atomic.Int64
	events := make(chan models.EventType, 16)
	c := New(Config{
		URL:          wsURL(srv),
		UserID:       7,
		SessionToken: "tok",
		OnEvent: func(eventType models.EventType, _ []byte) {
			events <- eventType
		},
		OnInvalidate: func(chatID int) {
			if chatID == 10 {
				invalidated.Add(1)
			}
		},
	})
	require.NoError(t, c.JoinChat(10))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = c.Run(ctx) }()

	auth := server.nextFrame()
	assert.Equal(t, models.FrameAuth, auth.Type)
	assert.Equal(t, 7, auth.UserID)
	assert.Equal(t, "tok", auth.Token)

	join := server.nextFrame()
	assert.Equal(t, models.FrameJoinChat, join.Type)
	assert.Equal(t, 10, join.ChatID)

	conn := server.nextSession()
	require.NoError(t, conn.WriteJSON(map[string]any{"type": models.EventChatMessage, "chatId": 10, "id": 1}))

	select {
	case eventType := <-events:
		assert.Equal(t, models.EventChatMessage, eventType)
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for event dispatch")
	}
	assert.Eventually(t, func() bool { return invalidated.Load() == 1 }, 3*time.Second, 10*time.Millisecond)
}

func TestClientReconnectsAndReplaysRooms(t *testing.T) {
	server, srv := newChatServer(t)

	c := New(Config{URL: wsURL(srv), UserID: 7, SessionToken: "tok"})
	require.NoError(t, c.JoinChat(10))
	require.NoError(t, c.JoinChat(11))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = c.Run(ctx) }()

	assert.Equal(t, models.FrameAuth, server.nextFrame().Type)
	joined := map[int]bool{server.nextFrame().ChatID: true, server.nextFrame().ChatID: true}
	assert.True(t, joined[10] && joined[11])

	// drop the session; the client must dial again and replay everything
	conn := server.nextSession()
	require.NoError(t, conn.Close())

	assert.Equal(t, models.FrameAuth, server.nextFrame().Type)
	rejoined := map[int]bool{server.nextFrame().ChatID: true, server.nextFrame().ChatID: true}
	assert.True(t, rejoined[10] && rejoined[11])
}

func TestSessionPastAuthReportsAuthenticated(t *testing.T) {
	server, srv := newChatServer(t)

	c := New(Config{URL: wsURL(srv), UserID: 7, SessionToken: "tok"})

	type result struct {
		authed bool
		err    error
	}
	done := make(chan result, 1)
	go func() {
		authed, err := c.session(context.Background())
		done <- result{authed, err}
	}()

	require.Equal(t, models.FrameAuth, server.nextFrame().Type)
	require.NoError(t, server.nextSession().Close())

	select {
	case res := <-done:
		// the drop is an error, but the session got past auth, so Run
		// resets its backoff before sleeping
		assert.Error(t, res.err)
		assert.True(t, res.authed)
	case <-time.After(3 * time.Second):
		t.Fatal("session did not end after server close")
	}
}

func TestSessionDialFailureNotAuthenticated(t *testing.T) {
	_, srv := newChatServer(t)
	url := wsURL(srv)
	srv.Close()

	c := New(Config{URL: url, UserID: 7, SessionToken: "tok"})

	authed, err := c.session(context.Background())
	assert.Error(t, err)
	assert.False(t, authed)
}

func TestClientStopsOnContextCancel(t *testing.T) {
	server, srv := newChatServer(t)

	c := New(Config{URL: wsURL(srv), UserID: 7, SessionToken: "tok"})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	server.nextFrame()
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(3 * time.Second):
		t.Fatal("client did not stop after cancel")
	}
}
