package pipeline

import (
	"context"
	"errors"
	"log"

	"opschat/internal/apperr"
	"opschat/internal/identity"
	"opschat/internal/models"
	"opschat/internal/observability"
	"opschat/internal/repositories"
)

// Broadcaster fans an event out to every socket joined to a room, except one
// user. Implemented by the connection registry.
type Broadcaster interface {
	BroadcastToChatRoom(chatID int, event any, excludeUserID int)
}

// Service validates, persists, and fans out messages. Broadcast delivery is
// fire-and-forget; persistence is the source of truth.
type Service struct {
	chats       repositories.ChatRepository
	messages    repositories.MessageRepository
	directory   identity.Directory
	broadcaster Broadcaster
}

// NewService constructs the pipeline.
func NewService(chats repositories.ChatRepository, messages repositories.MessageRepository, directory identity.Directory, broadcaster Broadcaster) *Service {
	return &Service{
		chats:       chats,
		messages:    messages,
		directory:   directory,
		broadcaster: broadcaster,
	}
}

// Send persists a message and broadcasts it to the chat room. The sender
// must be an active participant and a reply must reference a message of the
// same chat. Returns the persisted message.
func (s *Service) Send(ctx context.Context, chatID, senderID int, content, messageType string, replyToID *int) (models.Message, error) {
	var zero models.Message

	if content == "" {
		return zero, s.fail("send", apperr.BadRequest("content must not be empty"))
	}
	if messageType == "" {
		messageType = models.MessageTypeText
	}
	switch messageType {
	case models.MessageTypeText, models.MessageTypeImage, models.MessageTypeFile:
	default:
		return zero, s.fail("send", apperr.BadRequest("unsupported message type"))
	}

	if _, err := s.chats.GetChat(ctx, chatID); err != nil {
		if errors.Is(err, repositories.ErrChatNotFound) {
			return zero, s.fail("send", apperr.NotFound("chat not found"))
		}
		return zero, s.fail("send", apperr.Internal("failed to load chat", err))
	}

	member, err := s.chats.IsActiveParticipant(ctx, chatID, senderID)
	if err != nil {
		return zero, s.fail("send", apperr.Internal("failed to verify membership", err))
	}
	if !member {
		return zero, s.fail("send", apperr.Forbidden("not a chat participant"))
	}

	if replyToID != nil {
		ref, err := s.messages.Get(ctx, *replyToID)
		if err != nil {
			if errors.Is(err, repositories.ErrMessageNotFound) {
				return zero, s.fail("send", apperr.BadRequest("reply references unknown message"))
			}
			return zero, s.fail("send", apperr.Internal("failed to load reply reference", err))
		}
		if ref.ChatID != chatID {
			return zero, s.fail("send", apperr.BadRequest("reply references a message from another chat"))
		}
	}

	msg, err := s.messages.Create(ctx, chatID, senderID, content, messageType, replyToID)
	if err != nil {
		return zero, s.fail("send", apperr.Internal("failed to store message", err))
	}

	if err := s.messages.MarkDelivered(ctx, msg.ID, chatID, senderID); err != nil {
		log.Printf("pipeline: mark delivered message=%d: %v", msg.ID, err)
	}

	event := models.ChatMessageEvent{
		EventBase:   models.NewEventBase(models.EventChatMessage),
		ID:          msg.ID,
		ChatID:      msg.ChatID,
		SenderID:    msg.SenderID,
		Content:     msg.Content,
		MessageType: msg.MessageType,
		ReplyToID:   msg.ReplyToID,
		CreatedAt:   msg.CreatedAt,
	}
	if sender, err := s.directory.GetUser(ctx, senderID); err == nil {
		event.SenderName = sender.DisplayName
		event.SenderAvatar = sender.AvatarURL
	} else {
		log.Printf("pipeline: resolve sender %d: %v", senderID, err)
	}

	s.broadcaster.BroadcastToChatRoom(chatID, event, senderID)

	if err := s.chats.TouchUpdatedAt(ctx, chatID); err != nil {
		log.Printf("pipeline: touch chat %d: %v", chatID, err)
	}

	observability.IncPipelineOp("send", "ok")
	return msg, nil
}

// Edit updates a message's content. Only the original sender may edit.
func (s *Service) Edit(ctx context.Context, messageID, senderID int, newContent string) (models.Message, error) {
	var zero models.Message

	if newContent == "" {
		return zero, s.fail("edit", apperr.BadRequest("content must not be empty"))
	}

	msg, err := s.messages.Get(ctx, messageID)
	if err != nil {
		if errors.Is(err, repositories.ErrMessageNotFound) {
			return zero, s.fail("edit", apperr.NotFound("message not found"))
		}
		return zero, s.fail("edit", apperr.Internal("failed to load message", err))
	}
	if msg.SenderID != senderID {
		return zero, s.fail("edit", apperr.Forbidden("only the sender can edit a message"))
	}

	updated, err := s.messages.Edit(ctx, messageID, newContent)
	if err != nil {
		return zero, s.fail("edit", apperr.Internal("failed to edit message", err))
	}

	event := models.MessageEditedEvent{
		EventBase: models.NewEventBase(models.EventMessageEdited),
		ID:        updated.ID,
		ChatID:    updated.ChatID,
		Content:   updated.Content,
	}
	if updated.EditedAt != nil {
		event.EditedAt = *updated.EditedAt
	}
	s.broadcaster.BroadcastToChatRoom(updated.ChatID, event, senderID)

	observability.IncPipelineOp("edit", "ok")
	return updated, nil
}

// Remove deletes a message; its status rows cascade. Only the original
// sender may delete.
func (s *Service) Remove(ctx context.Context, messageID, senderID int) error {
	msg, err := s.messages.Get(ctx, messageID)
	if err != nil {
		if errors.Is(err, repositories.ErrMessageNotFound) {
			return s.fail("delete", apperr.NotFound("message not found"))
		}
		return s.fail("delete", apperr.Internal("failed to load message", err))
	}
	if msg.SenderID != senderID {
		return s.fail("delete", apperr.Forbidden("only the sender can delete a message"))
	}

	if err := s.messages.Delete(ctx, messageID); err != nil {
		return s.fail("delete", apperr.Internal("failed to delete message", err))
	}

	s.broadcaster.BroadcastToChatRoom(msg.ChatID, models.MessageDeletedEvent{
		EventBase: models.NewEventBase(models.EventMessageDeleted),
		ID:        msg.ID,
		ChatID:    msg.ChatID,
	}, senderID)

	observability.IncPipelineOp("delete", "ok")
	return nil
}

func (s *Service) fail(operation string, err error) error {
	observability.IncPipelineOp(operation, outcomeLabel(err))
	return err
}

func outcomeLabel(err error) string {
	switch apperr.KindOf(err) {
	case apperr.KindForbidden:
		return "forbidden"
	case apperr.KindNotFound:
		return "not_found"
	case apperr.KindBadRequest:
		return "bad_request"
	case apperr.KindUnauthorized:
		return "unauthorized"
	default:
		return "internal"
	}
}
