package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"opschat/internal/identity"
	"opschat/internal/models"
	"opschat/internal/repositories"
)

type ChatRepositoryMock struct {
	mock.Mock
}

func (m *ChatRepositoryMock) CreateDirectChat(ctx context.Context, orgID string, userID, participantID int) (models.Chat, bool, error) {
	args := m.Called(ctx, orgID, userID, participantID)
	var chat models.Chat
	if val := args.Get(0); val != nil {
		chat = val.(models.Chat)
	}
	return chat, args.Bool(1), args.Error(2)
}

func (m *ChatRepositoryMock) CreateGroupChat(ctx context.Context, orgID string, creatorID int, name, description string, participantIDs []int) (models.Chat, error) {
	args := m.Called(ctx, orgID, creatorID, name, description, participantIDs)
	var chat models.Chat
	if val := args.Get(0); val != nil {
		chat = val.(models.Chat)
	}
	return chat, args.Error(1)
}

func (m *ChatRepositoryMock) GetChat(ctx context.Context, chatID int) (models.Chat, error) {
	args := m.Called(ctx, chatID)
	var chat models.Chat
	if val := args.Get(0); val != nil {
		chat = val.(models.Chat)
	}
	return chat, args.Error(1)
}

func (m *ChatRepositoryMock) GetParticipants(ctx context.Context, chatID int) ([]models.ChatParticipant, error) {
	args := m.Called(ctx, chatID)
	var participants []models.ChatParticipant
	if val := args.Get(0); val != nil {
		participants = val.([]models.ChatParticipant)
	}
	return participants, args.Error(1)
}

func (m *ChatRepositoryMock) IsActiveParticipant(ctx context.Context, chatID, userID int) (bool, error) {
	args := m.Called(ctx, chatID, userID)
	return args.Bool(0), args.Error(1)
}

func (m *ChatRepositoryMock) ListChats(ctx context.Context, orgID string, userID, page, limit int, search string) ([]models.Chat, error) {
	args := m.Called(ctx, orgID, userID, page, limit, search)
	var chats []models.Chat
	if val := args.Get(0); val != nil {
		chats = val.([]models.Chat)
	}
	return chats, args.Error(1)
}

func (m *ChatRepositoryMock) UnreadCount(ctx context.Context, chatID, userID int) (int, error) {
	args := m.Called(ctx, chatID, userID)
	return args.Int(0), args.Error(1)
}

func (m *ChatRepositoryMock) AdvanceReadCursor(ctx context.Context, chatID, userID, messageID int) error {
	args := m.Called(ctx, chatID, userID, messageID)
	return args.Error(0)
}

func (m *ChatRepositoryMock) TouchUpdatedAt(ctx context.Context, chatID int) error {
	args := m.Called(ctx, chatID)
	return args.Error(0)
}

type MessageRepositoryMock struct {
	mock.Mock
}

func (m *MessageRepositoryMock) Create(ctx context.Context, chatID, senderID int, content, messageType string, replyToID *int) (models.Message, error) {
	args := m.Called(ctx, chatID, senderID, content, messageType, replyToID)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) Get(ctx context.Context, messageID int) (models.Message, error) {
	args := m.Called(ctx, messageID)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) GetBatch(ctx context.Context, ids []int) (map[int]models.Message, error) {
	args := m.Called(ctx, ids)
	var msgs map[int]models.Message
	if val := args.Get(0); val != nil {
		msgs = val.(map[int]models.Message)
	}
	return msgs, args.Error(1)
}

func (m *MessageRepositoryMock) Edit(ctx context.Context, messageID int, content string) (models.Message, error) {
	args := m.Called(ctx, messageID, content)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) Delete(ctx context.Context, messageID int) error {
	args := m.Called(ctx, messageID)
	return args.Error(0)
}

func (m *MessageRepositoryMock) List(ctx context.Context, chatID, page, limit int, before, after *models.Message) ([]models.Message, error) {
	args := m.Called(ctx, chatID, page, limit, before, after)
	var msgs []models.Message
	if val := args.Get(0); val != nil {
		msgs = val.([]models.Message)
	}
	return msgs, args.Error(1)
}

func (m *MessageRepositoryMock) LastMessage(ctx context.Context, chatID int) (*models.Message, error) {
	args := m.Called(ctx, chatID)
	var msg *models.Message
	if val := args.Get(0); val != nil {
		msg = val.(*models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) MarkDelivered(ctx context.Context, messageID, chatID, senderID int) error {
	args := m.Called(ctx, messageID, chatID, senderID)
	return args.Error(0)
}

func (m *MessageRepositoryMock) Statuses(ctx context.Context, messageID int) ([]models.MessageStatus, error) {
	args := m.Called(ctx, messageID)
	var statuses []models.MessageStatus
	if val := args.Get(0); val != nil {
		statuses = val.([]models.MessageStatus)
	}
	return statuses, args.Error(1)
}

type DirectoryMock struct {
	mock.Mock
}

func (m *DirectoryMock) GetUser(ctx context.Context, userID int) (models.User, error) {
	args := m.Called(ctx, userID)
	var user models.User
	if val := args.Get(0); val != nil {
		user = val.(models.User)
	}
	return user, args.Error(1)
}

func (m *DirectoryMock) BulkUsers(ctx context.Context, ids []int) (map[int]models.User, error) {
	args := m.Called(ctx, ids)
	var users map[int]models.User
	if val := args.Get(0); val != nil {
		users = val.(map[int]models.User)
	}
	return users, args.Error(1)
}

type VerifierMock struct {
	mock.Mock
}

func (m *VerifierMock) Verify(ctx context.Context, token string) (identity.Session, error) {
	args := m.Called(ctx, token)
	var session identity.Session
	if val := args.Get(0); val != nil {
		session = val.(identity.Session)
	}
	return session, args.Error(1)
}

type BroadcasterMock struct {
	mock.Mock
}

func (m *BroadcasterMock) BroadcastToChatRoom(chatID int, event any, excludeUserID int) {
	m.Called(chatID, event, excludeUserID)
}

var _ repositories.ChatRepository = (*ChatRepositoryMock)(nil)
var _ repositories.MessageRepository = (*MessageRepositoryMock)(nil)
var _ identity.Directory = (*DirectoryMock)(nil)
var _ identity.Verifier = (*VerifierMock)(nil)
