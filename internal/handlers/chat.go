package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"opschat/internal/apperr"
	"opschat/internal/identity"
	"opschat/internal/models"
	"opschat/internal/pipeline"
	"opschat/internal/registry"
	"opschat/internal/repositories"
	"opschat/internal/telemetry"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// ChatHandler serves the REST chat surface: chat list, history, and message
// mutations.
type ChatHandler struct {
	chats     repositories.ChatRepository
	messages  repositories.MessageRepository
	directory identity.Directory
	pipeline  *pipeline.Service
	presence  *registry.Registry
	audit     *telemetry.AuditEmitter
}

// NewChatHandler builds a ChatHandler.
func NewChatHandler(chats repositories.ChatRepository, messages repositories.MessageRepository, directory identity.Directory, pipe *pipeline.Service, presence *registry.Registry, audit *telemetry.AuditEmitter) *ChatHandler {
	return &ChatHandler{
		chats:     chats,
		messages:  messages,
		directory: directory,
		pipeline:  pipe,
		presence:  presence,
		audit:     audit,
	}
}

// ListChats returns the chats where the user is an active participant, most
// recent activity first, each augmented with roster, last message, and
// unread count.
func (h *ChatHandler) ListChats(c *gin.Context) {
	userID := c.GetInt("userID")
	orgID := c.GetString("orgID")
	page, limit := pagination(c)
	search := c.Query("search")

	chats, err := h.chats.ListChats(c.Request.Context(), orgID, userID, page, limit, search)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load chats"})
		return
	}

	summaries := make([]models.ChatSummary, 0, len(chats))
	for _, chat := range chats {
		summary, err := h.buildSummary(c, chat, userID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load chat details"})
			return
		}
		summaries = append(summaries, summary)
	}

	c.JSON(http.StatusOK, gin.H{"chats": summaries, "page": page, "limit": limit})
}

// GetChat returns one chat with its roster.
func (h *ChatHandler) GetChat(c *gin.Context) {
	chatID, ok := paramInt(c, "chat_id")
	if !ok {
		return
	}
	userID := c.GetInt("userID")

	chat, err := h.chats.GetChat(c.Request.Context(), chatID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repositories.ErrChatNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": "chat not found"})
		return
	}

	if !h.requireMembership(c, chatID, userID) {
		return
	}

	summary, err := h.buildSummary(c, chat, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load chat details"})
		return
	}
	c.JSON(http.StatusOK, summary)
}

// CreateDirectChat returns the existing direct chat with the participant or
// creates one. Requesting it twice yields the same chat.
func (h *ChatHandler) CreateDirectChat(c *gin.Context) {
	var req struct {
		ParticipantID int `json:"participant_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := c.GetInt("userID")
	orgID := c.GetString("orgID")

	if userID == req.ParticipantID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot chat with yourself"})
		return
	}

	if _, err := h.directory.GetUser(c.Request.Context(), req.ParticipantID); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, identity.ErrUserNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": "participant not found"})
		return
	}

	chat, created, err := h.chats.CreateDirectChat(c.Request.Context(), orgID, userID, req.ParticipantID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create chat"})
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, chat)
}

// CreateGroupChat creates a group chat with the caller as admin.
func (h *ChatHandler) CreateGroupChat(c *gin.Context) {
	var req struct {
		Name           string `json:"name" binding:"required"`
		Description    string `json:"description"`
		ParticipantIDs []int  `json:"participant_ids" binding:"required,min=1"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := c.GetInt("userID")
	orgID := c.GetString("orgID")

	chat, err := h.chats.CreateGroupChat(c.Request.Context(), orgID, userID, req.Name, req.Description, req.ParticipantIDs)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create group chat"})
		return
	}

	h.emitAudit(c, "group chat created: "+chat.Name)
	c.JSON(http.StatusCreated, chat)
}

// ListMessages returns a page of chat history ascending by creation time.
// before/after reference message ids and add strict boundaries on top of the
// offset pagination.
func (h *ChatHandler) ListMessages(c *gin.Context) {
	chatID, ok := paramInt(c, "chat_id")
	if !ok {
		return
	}
	userID := c.GetInt("userID")
	page, limit := pagination(c)

	if !h.requireMembership(c, chatID, userID) {
		return
	}

	before, ok := h.boundary(c, chatID, "before")
	if !ok {
		return
	}
	after, ok := h.boundary(c, chatID, "after")
	if !ok {
		return
	}

	msgs, err := h.messages.List(c.Request.Context(), chatID, page, limit, before, after)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load messages"})
		return
	}

	views, err := h.buildMessageViews(c, msgs)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to resolve messages"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"messages": views, "page": page, "limit": limit})
}

// PostMessage runs the send pipeline and returns the persisted message.
func (h *ChatHandler) PostMessage(c *gin.Context) {
	chatID, ok := paramInt(c, "chat_id")
	if !ok {
		return
	}

	var req struct {
		Content     string `json:"content" binding:"required"`
		MessageType string `json:"message_type"`
		ReplyToID   *int   `json:"reply_to_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := c.GetInt("userID")
	msg, err := h.pipeline.Send(c.Request.Context(), chatID, userID, req.Content, req.MessageType, req.ReplyToID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

// MarkRead advances the caller's read cursor, which backs the unread count.
func (h *ChatHandler) MarkRead(c *gin.Context) {
	chatID, ok := paramInt(c, "chat_id")
	if !ok {
		return
	}

	var req struct {
		MessageID int `json:"message_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := c.GetInt("userID")
	msg, err := h.messages.Get(c.Request.Context(), req.MessageID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repositories.ErrMessageNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": "message not found"})
		return
	}
	if msg.ChatID != chatID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message does not belong to chat"})
		return
	}

	if err := h.chats.AdvanceReadCursor(c.Request.Context(), chatID, userID, req.MessageID); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repositories.ErrChatNotFound) {
			status = http.StatusForbidden
		}
		c.JSON(status, gin.H{"error": "could not update read cursor"})
		return
	}
	c.Status(http.StatusNoContent)
}

// MessageStatuses returns the delivery receipts of a message, visible to any
// active participant of its chat.
func (h *ChatHandler) MessageStatuses(c *gin.Context) {
	messageID, ok := paramInt(c, "message_id")
	if !ok {
		return
	}
	userID := c.GetInt("userID")

	msg, err := h.messages.Get(c.Request.Context(), messageID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repositories.ErrMessageNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": "message not found"})
		return
	}

	if !h.requireMembership(c, msg.ChatID, userID) {
		return
	}

	statuses, err := h.messages.Statuses(c.Request.Context(), messageID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load statuses"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"statuses": statuses})
}

// EditMessage updates a message's content; sender only.
func (h *ChatHandler) EditMessage(c *gin.Context) {
	messageID, ok := paramInt(c, "message_id")
	if !ok {
		return
	}

	var req struct {
		Content string `json:"content" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := c.GetInt("userID")
	msg, err := h.pipeline.Edit(c.Request.Context(), messageID, userID, req.Content)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, msg)
}

// DeleteMessage removes a message and its status rows; sender only.
func (h *ChatHandler) DeleteMessage(c *gin.Context) {
	messageID, ok := paramInt(c, "message_id")
	if !ok {
		return
	}

	userID := c.GetInt("userID")
	if err := h.pipeline.Remove(c.Request.Context(), messageID, userID); err != nil {
		respondError(c, err)
		return
	}

	h.emitAudit(c, "message deleted")
	c.Status(http.StatusNoContent)
}

func (h *ChatHandler) buildSummary(c *gin.Context, chat models.Chat, userID int) (models.ChatSummary, error) {
	ctx := c.Request.Context()

	participants, err := h.chats.GetParticipants(ctx, chat.ID)
	if err != nil {
		return models.ChatSummary{}, err
	}

	ids := make([]int, 0, len(participants))
	for _, p := range participants {
		if p.LeftAt == nil {
			ids = append(ids, p.UserID)
		}
	}
	users, err := h.directory.BulkUsers(ctx, ids)
	if err != nil {
		return models.ChatSummary{}, err
	}

	roster := make([]models.ParticipantView, 0, len(ids))
	for _, p := range participants {
		if p.LeftAt != nil {
			continue
		}
		view := models.ParticipantView{
			UserID:   p.UserID,
			IsAdmin:  p.IsAdmin,
			IsMuted:  p.IsMuted,
			IsOnline: h.presence.IsUserOnline(p.UserID),
		}
		if u, ok := users[p.UserID]; ok {
			view.DisplayName = u.DisplayName
			view.AvatarURL = u.AvatarURL
		}
		roster = append(roster, view)
	}

	summary := models.ChatSummary{Chat: chat, Participants: roster}

	last, err := h.messages.LastMessage(ctx, chat.ID)
	if err != nil {
		return models.ChatSummary{}, err
	}
	if last != nil {
		view := models.MessageView{Message: *last}
		if u, ok := users[last.SenderID]; ok {
			view.SenderName = u.DisplayName
			view.SenderAvatar = u.AvatarURL
		} else if sender, err := h.directory.GetUser(ctx, last.SenderID); err == nil {
			view.SenderName = sender.DisplayName
			view.SenderAvatar = sender.AvatarURL
		}
		summary.LastMessage = &view
	}

	unread, err := h.chats.UnreadCount(ctx, chat.ID, userID)
	if err != nil {
		return models.ChatSummary{}, err
	}
	summary.UnreadCount = unread

	return summary, nil
}

func (h *ChatHandler) buildMessageViews(c *gin.Context, msgs []models.Message) ([]models.MessageView, error) {
	ctx := c.Request.Context()

	senderIDs := make([]int, 0, len(msgs))
	senderSeen := map[int]struct{}{}
	replyIDs := make([]int, 0)
	replySeen := map[int]struct{}{}
	for _, m := range msgs {
		if _, ok := senderSeen[m.SenderID]; !ok {
			senderSeen[m.SenderID] = struct{}{}
			senderIDs = append(senderIDs, m.SenderID)
		}
		if m.ReplyToID != nil {
			if _, ok := replySeen[*m.ReplyToID]; !ok {
				replySeen[*m.ReplyToID] = struct{}{}
				replyIDs = append(replyIDs, *m.ReplyToID)
			}
		}
	}

	users, err := h.directory.BulkUsers(ctx, senderIDs)
	if err != nil {
		return nil, err
	}
	replies, err := h.messages.GetBatch(ctx, replyIDs)
	if err != nil {
		return nil, err
	}

	views := make([]models.MessageView, 0, len(msgs))
	for _, m := range msgs {
		view := models.MessageView{Message: m}
		if u, ok := users[m.SenderID]; ok {
			view.SenderName = u.DisplayName
			view.SenderAvatar = u.AvatarURL
		}
		if m.ReplyToID != nil {
			if ref, ok := replies[*m.ReplyToID]; ok {
				view.ReplyTo = &models.ReplyPreview{ID: ref.ID, SenderID: ref.SenderID, Content: ref.Content}
			}
		}
		views = append(views, view)
	}
	return views, nil
}

// boundary resolves a before/after query parameter to the referenced
// message, rejecting references outside the chat.
func (h *ChatHandler) boundary(c *gin.Context, chatID int, name string) (*models.Message, bool) {
	raw := c.Query(name)
	if raw == "" {
		return nil, true
	}
	id, err := strconv.Atoi(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name + " message id"})
		return nil, false
	}

	msg, err := h.messages.Get(c.Request.Context(), id)
	if err != nil || msg.ChatID != chatID {
		c.JSON(http.StatusBadRequest, gin.H{"error": name + " message not found in chat"})
		return nil, false
	}
	return &msg, true
}

func (h *ChatHandler) requireMembership(c *gin.Context, chatID, userID int) bool {
	member, err := h.chats.IsActiveParticipant(c.Request.Context(), chatID, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to verify membership"})
		return false
	}
	if !member {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a chat participant"})
		return false
	}
	return true
}

func (h *ChatHandler) emitAudit(c *gin.Context, text string) {
	if h.audit == nil {
		return
	}
	h.audit.Emit(c.Request.Context(), "INFO", text, requestIDFromContext(c), userIDFromContext(c))
}

func respondError(c *gin.Context, err error) {
	c.JSON(apperr.HTTPStatus(err), gin.H{"error": apperr.Message(err)})
}

func pagination(c *gin.Context) (int, int) {
	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page < 1 {
		page = 1
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultPageSize)))
	if err != nil || limit < 1 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	return page, limit
}

func paramInt(c *gin.Context, name string) (int, bool) {
	val, err := strconv.Atoi(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return val, true
}
