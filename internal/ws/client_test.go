package ws

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"opschat/internal/identity"
	"opschat/internal/mocks"
	"opschat/internal/models"
	"opschat/internal/registry"
)

func newTestClient(verifier identity.Verifier, chats *mocks.ChatRepositoryMock) (*Client, *registry.Registry) {
	reg := registry.New()
	return newClient(nil, reg, verifier, chats, registry.ConnInfo{ConnID: "test"}), reg
}

// nextEvent pops the next queued outbound frame and returns its type tag.
func nextEvent(t *testing.T, c *Client) (models.EventType, []byte) {
	t.Helper()
	select {
	case payload := <-c.send:
		var envelope struct {
			Type models.EventType `json:"type"`
		}
		require.NoError(t, json.Unmarshal(payload, &envelope))
		return envelope.Type, payload
	default:
		t.Fatal("no event queued")
		return "", nil
	}
}

func TestAuthSuccessRegistersConnection(t *testing.T) {
	verifier := new(mocks.VerifierMock)
	verifier.On("Verify", mock.Anything, "tok").Return(identity.Session{UserID: 7, OrgID: "org-1"}, nil).Once()
	c, reg := newTestClient(verifier, new(mocks.ChatRepositoryMock))

	c.handleFrame(context.Background(), Frame{Type: models.FrameAuth, Auth: &models.AuthPayload{UserID: 7, SessionToken: "tok"}})

	eventType, _ := nextEvent(t, c)
	assert.Equal(t, models.EventAuthSuccess, eventType)
	assert.True(t, reg.IsUserOnline(7))
	verifier.AssertExpectations(t)
}

func TestAuthRejectsInvalidToken(t *testing.T) {
	verifier := new(mocks.VerifierMock)
	verifier.On("Verify", mock.Anything, "bad").Return(identity.Session{}, assert.AnError).Once()
	c, reg := newTestClient(verifier, new(mocks.ChatRepositoryMock))

	c.handleFrame(context.Background(), Frame{Type: models.FrameAuth, Auth: &models.AuthPayload{SessionToken: "bad"}})

	eventType, _ := nextEvent(t, c)
	assert.Equal(t, models.EventAuthError, eventType)
	assert.False(t, reg.IsUserOnline(7))
}

func TestAuthRejectsUserIDMismatch(t *testing.T) {
	verifier := new(mocks.VerifierMock)
	verifier.On("Verify", mock.Anything, "tok").Return(identity.Session{UserID: 7}, nil).Once()
	c, reg := newTestClient(verifier, new(mocks.ChatRepositoryMock))

	c.handleFrame(context.Background(), Frame{Type: models.FrameAuth, Auth: &models.AuthPayload{UserID: 9, SessionToken: "tok"}})

	eventType, _ := nextEvent(t, c)
	assert.Equal(t, models.EventAuthError, eventType)
	assert.False(t, reg.IsUserOnline(7))
}

func TestRepeatAuthRejected(t *testing.T) {
	verifier := new(mocks.VerifierMock)
	verifier.On("Verify", mock.Anything, "tok").Return(identity.Session{UserID: 7}, nil).Once()
	c, _ := newTestClient(verifier, new(mocks.ChatRepositoryMock))

	c.handleFrame(context.Background(), Frame{Type: models.FrameAuth, Auth: &models.AuthPayload{SessionToken: "tok"}})
	nextEvent(t, c)

	c.handleFrame(context.Background(), Frame{Type: models.FrameAuth, Auth: &models.AuthPayload{SessionToken: "tok"}})
	eventType, _ := nextEvent(t, c)
	assert.Equal(t, models.EventError, eventType)
	verifier.AssertExpectations(t)
}

func TestJoinRequiresAuthentication(t *testing.T) {
	c, reg := newTestClient(new(mocks.VerifierMock), new(mocks.ChatRepositoryMock))

	c.handleFrame(context.Background(), Frame{Type: models.FrameJoinChat, Room: &models.RoomPayload{ChatID: 10}})

	eventType, _ := nextEvent(t, c)
	assert.Equal(t, models.EventError, eventType)
	assert.Empty(t, reg.OnlineUsersInChat(10))
}

func TestJoinChecksPersistedParticipation(t *testing.T) {
	verifier := new(mocks.VerifierMock)
	verifier.On("Verify", mock.Anything, "tok").Return(identity.Session{UserID: 7}, nil).Once()
	chats := new(mocks.ChatRepositoryMock)
	chats.On("IsActiveParticipant", mock.Anything, 10, 7).Return(false, nil).Once()
	c, reg := newTestClient(verifier, chats)

	c.handleFrame(context.Background(), Frame{Type: models.FrameAuth, Auth: &models.AuthPayload{SessionToken: "tok"}})
	nextEvent(t, c)

	c.handleFrame(context.Background(), Frame{Type: models.FrameJoinChat, Room: &models.RoomPayload{ChatID: 10}})
	eventType, _ := nextEvent(t, c)
	assert.Equal(t, models.EventError, eventType)
	assert.Empty(t, reg.OnlineUsersInChat(10))
	chats.AssertExpectations(t)
}

func TestJoinEmitsJoinedAndOnlineUsers(t *testing.T) {
	verifier := new(mocks.VerifierMock)
	verifier.On("Verify", mock.Anything, "tok").Return(identity.Session{UserID: 7}, nil).Once()
	chats := new(mocks.ChatRepositoryMock)
	chats.On("IsActiveParticipant", mock.Anything, 10, 7).Return(true, nil).Once()
	c, reg := newTestClient(verifier, chats)

	c.handleFrame(context.Background(), Frame{Type: models.FrameAuth, Auth: &models.AuthPayload{SessionToken: "tok"}})
	nextEvent(t, c)

	c.handleFrame(context.Background(), Frame{Type: models.FrameJoinChat, Room: &models.RoomPayload{ChatID: 10}})

	eventType, _ := nextEvent(t, c)
	assert.Equal(t, models.EventChatJoined, eventType)

	eventType, payload := nextEvent(t, c)
	assert.Equal(t, models.EventOnlineUsers, eventType)
	var online models.OnlineUsersEvent
	require.NoError(t, json.Unmarshal(payload, &online))
	assert.Equal(t, []int{7}, online.OnlineUsers)

	assert.Equal(t, []int{7}, reg.OnlineUsersInChat(10))
}

func TestLeaveRemovesRoomSubscription(t *testing.T) {
	verifier := new(mocks.VerifierMock)
	verifier.On("Verify", mock.Anything, "tok").Return(identity.Session{UserID: 7}, nil).Once()
	chats := new(mocks.ChatRepositoryMock)
	chats.On("IsActiveParticipant", mock.Anything, 10, 7).Return(true, nil).Once()
	c, reg := newTestClient(verifier, chats)

	c.handleFrame(context.Background(), Frame{Type: models.FrameAuth, Auth: &models.AuthPayload{SessionToken: "tok"}})
	nextEvent(t, c)
	c.handleFrame(context.Background(), Frame{Type: models.FrameJoinChat, Room: &models.RoomPayload{ChatID: 10}})
	nextEvent(t, c)
	nextEvent(t, c)

	c.handleFrame(context.Background(), Frame{Type: models.FrameLeaveChat, Room: &models.RoomPayload{ChatID: 10}})

	eventType, _ := nextEvent(t, c)
	assert.Equal(t, models.EventChatLeft, eventType)
	assert.Empty(t, reg.OnlineUsersInChat(10))
}

func TestTypingUsesAuthenticatedIdentity(t *testing.T) {
	verifier := new(mocks.VerifierMock)
	verifier.On("Verify", mock.Anything, "tok").Return(identity.Session{UserID: 7}, nil).Once()
	chats := new(mocks.ChatRepositoryMock)
	chats.On("IsActiveParticipant", mock.Anything, 10, 7).Return(true, nil).Once()
	c, reg := newTestClient(verifier, chats)

	peer := newClient(nil, reg, verifier, chats, registry.ConnInfo{ConnID: "peer"})
	reg.AddConnection(8, peer, registry.ConnInfo{ConnID: "peer"})
	reg.JoinChatRoom(8, 10)

	c.handleFrame(context.Background(), Frame{Type: models.FrameAuth, Auth: &models.AuthPayload{SessionToken: "tok"}})
	nextEvent(t, c)
	c.handleFrame(context.Background(), Frame{Type: models.FrameJoinChat, Room: &models.RoomPayload{ChatID: 10}})
	nextEvent(t, c)
	nextEvent(t, c)

	// the payload claims another user; the session identity must win
	c.handleFrame(context.Background(), Frame{Type: models.FrameTypingStart, Typing: &models.TypingPayload{ChatID: 10, UserID: 99, UserName: "ada"}})

	eventType, payload := nextEvent(t, peer)
	assert.Equal(t, models.EventTypingStart, eventType)
	var typing models.TypingEvent
	require.NoError(t, json.Unmarshal(payload, &typing))
	assert.Equal(t, 7, typing.UserID)

	// typing is not echoed back to the sender
	select {
	case extra := <-c.send:
		t.Fatalf("unexpected event for sender: %s", extra)
	default:
	}
}

func TestPingAnswersPong(t *testing.T) {
	c, _ := newTestClient(new(mocks.VerifierMock), new(mocks.ChatRepositoryMock))

	c.handleFrame(context.Background(), Frame{Type: models.FramePing})

	eventType, _ := nextEvent(t, c)
	assert.Equal(t, models.EventPong, eventType)
}

func TestDeliverAfterCloseReportsFalse(t *testing.T) {
	c, _ := newTestClient(new(mocks.VerifierMock), new(mocks.ChatRepositoryMock))

	require.True(t, c.Deliver([]byte(`{}`)))
	c.Close()
	assert.False(t, c.Deliver([]byte(`{}`)))
}
