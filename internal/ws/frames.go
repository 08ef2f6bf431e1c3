package ws

import (
	"encoding/json"
	"errors"
	"fmt"

	"opschat/internal/models"
)

// ErrUnknownFrameType marks a frame whose type tag is not part of the
// protocol. Unknown frames are logged and ignored; the connection stays open.
var ErrUnknownFrameType = errors.New("unknown frame type")

// Frame is the closed union of inbound frames, parsed once at the boundary.
// Exactly one payload field is set, matching Type.
type Frame struct {
	Type   models.FrameType
	Auth   *models.AuthPayload
	Room   *models.RoomPayload
	Typing *models.TypingPayload
}

// ParseFrame decodes a raw websocket message into a Frame. A recognized type
// with an undecodable body is a malformed frame; an unrecognized type returns
// ErrUnknownFrameType.
func ParseFrame(data []byte) (Frame, error) {
	var envelope struct {
		Type models.FrameType `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return Frame{}, fmt.Errorf("decode frame envelope: %w", err)
	}

	frame := Frame{Type: envelope.Type}
	switch envelope.Type {
	case models.FrameAuth:
		payload := &models.AuthPayload{}
		if err := json.Unmarshal(data, payload); err != nil {
			return Frame{}, fmt.Errorf("decode auth frame: %w", err)
		}
		if payload.SessionToken == "" {
			return Frame{}, errors.New("auth frame missing session token")
		}
		frame.Auth = payload
	case models.FrameJoinChat, models.FrameLeaveChat:
		payload := &models.RoomPayload{}
		if err := json.Unmarshal(data, payload); err != nil {
			return Frame{}, fmt.Errorf("decode room frame: %w", err)
		}
		if payload.ChatID == 0 {
			return Frame{}, errors.New("room frame missing chat id")
		}
		frame.Room = payload
	case models.FrameTypingStart, models.FrameTypingStop:
		payload := &models.TypingPayload{}
		if err := json.Unmarshal(data, payload); err != nil {
			return Frame{}, fmt.Errorf("decode typing frame: %w", err)
		}
		if payload.ChatID == 0 {
			return Frame{}, errors.New("typing frame missing chat id")
		}
		frame.Typing = payload
	case models.FramePing:
		// no payload
	default:
		return Frame{}, fmt.Errorf("%w: %q", ErrUnknownFrameType, envelope.Type)
	}
	return frame, nil
}
