package websocket

import (
	"context"
	"encoding/json"
	"errors"

	apperrors "chatrelay/pkg/errors"
	"chatrelay/pkg/logger"
)

// EventHandler is the application side of the wire protocol. The usecase
// layer implements it; the hub and dispatcher stay free of persistence
// concerns.
type EventHandler interface {
	// Authorize reports whether userID is a participant of the conversation,
	// checked against the persisted participant list.
	Authorize(ctx context.Context, userID, convID string) error

	// CurrentTypers returns the typing indicators live in the conversation,
	// replayed to a client joining the room so it does not miss in-flight
	// state.
	CurrentTypers(ctx context.Context, convID string) []TypingEvent

	SendMessage(ctx context.Context, senderID string, payload SendMessagePayload) error
	MarkDelivered(ctx context.Context, userID, convID, messageID string) error
	MarkRead(ctx context.Context, userID, convID, messageID string) error
	MarkConversationRead(ctx context.Context, userID, convID string) error
	Typing(ctx context.Context, userID, convID string, typing bool) error

	AddMember(ctx context.Context, actorID, convID, userID string) error
	RemoveMember(ctx context.Context, actorID, convID, userID string) error
	LeaveGroup(ctx context.Context, actorID, convID string) error
	RenameGroup(ctx context.Context, actorID, convID, name string) error
	ChangeAdmin(ctx context.Context, actorID, convID, newAdminID string) error
}

// Dispatcher decodes inbound frames into the closed ClientEvent set and
// routes each variant. Unknown types are answered with an error frame, never
// silently dropped.
type Dispatcher struct {
	hub     *Hub
	handler EventHandler
}

func NewDispatcher(hub *Hub, handler EventHandler) *Dispatcher {
	return &Dispatcher{
		hub:     hub,
		handler: handler,
	}
}

func (d *Dispatcher) Dispatch(ctx context.Context, client *Client, raw []byte) {
	var event ClientEvent
	if err := json.Unmarshal(raw, &event); err != nil {
		d.hub.SendError(client, "BAD_REQUEST", "Invalid event format")
		return
	}

	switch event.Type {
	case EventPing:
		d.hub.SendToClient(client, NewServerEvent(EventPong, nil))

	case EventJoinRooms:
		var payload JoinRoomsPayload
		if !d.decode(client, event.Data, &payload) {
			return
		}
		for _, convID := range payload.ConversationIDs {
			d.joinRoom(ctx, client, convID)
		}

	case EventJoinRoom:
		var payload RoomPayload
		if !d.decode(client, event.Data, &payload) {
			return
		}
		d.joinRoom(ctx, client, payload.ConversationID)

	case EventLeaveRoom:
		var payload RoomPayload
		if !d.decode(client, event.Data, &payload) {
			return
		}
		d.hub.LeaveRoom(client, payload.ConversationID)

	case EventSendMessage:
		var payload SendMessagePayload
		if !d.decode(client, event.Data, &payload) {
			return
		}
		d.report(client, d.handler.SendMessage(ctx, client.UserID, payload))

	case EventTyping:
		var payload RoomPayload
		if !d.decode(client, event.Data, &payload) {
			return
		}
		d.report(client, d.handler.Typing(ctx, client.UserID, payload.ConversationID, true))

	case EventStopTyping:
		var payload RoomPayload
		if !d.decode(client, event.Data, &payload) {
			return
		}
		d.report(client, d.handler.Typing(ctx, client.UserID, payload.ConversationID, false))

	case EventMarkDelivered:
		var payload ReceiptPayload
		if !d.decode(client, event.Data, &payload) {
			return
		}
		d.report(client, d.handler.MarkDelivered(ctx, client.UserID, payload.ConversationID, payload.MessageID))

	case EventMarkRead:
		var payload ReceiptPayload
		if !d.decode(client, event.Data, &payload) {
			return
		}
		d.report(client, d.handler.MarkRead(ctx, client.UserID, payload.ConversationID, payload.MessageID))

	case EventMarkConversationRead:
		var payload RoomPayload
		if !d.decode(client, event.Data, &payload) {
			return
		}
		d.report(client, d.handler.MarkConversationRead(ctx, client.UserID, payload.ConversationID))

	case EventAddMember:
		var payload MemberPayload
		if !d.decode(client, event.Data, &payload) {
			return
		}
		d.report(client, d.handler.AddMember(ctx, client.UserID, payload.ConversationID, payload.UserID))

	case EventRemoveMember:
		var payload MemberPayload
		if !d.decode(client, event.Data, &payload) {
			return
		}
		d.report(client, d.handler.RemoveMember(ctx, client.UserID, payload.ConversationID, payload.UserID))

	case EventLeaveGroup:
		var payload RoomPayload
		if !d.decode(client, event.Data, &payload) {
			return
		}
		d.report(client, d.handler.LeaveGroup(ctx, client.UserID, payload.ConversationID))

	case EventRenameGroup:
		var payload RenamePayload
		if !d.decode(client, event.Data, &payload) {
			return
		}
		d.report(client, d.handler.RenameGroup(ctx, client.UserID, payload.ConversationID, payload.Name))

	case EventChangeAdmin:
		var payload MemberPayload
		if !d.decode(client, event.Data, &payload) {
			return
		}
		d.report(client, d.handler.ChangeAdmin(ctx, client.UserID, payload.ConversationID, payload.UserID))

	default:
		logger.Warn("Unknown event type %q from user %s", event.Type, client.UserID)
		d.hub.SendError(client, "BAD_REQUEST", "Unknown event type")
	}
}

func (d *Dispatcher) joinRoom(ctx context.Context, client *Client, convID string) {
	if err := d.handler.Authorize(ctx, client.UserID, convID); err != nil {
		d.report(client, err)
		return
	}
	d.hub.JoinRoom(client, convID)

	for _, ev := range d.handler.CurrentTypers(ctx, convID) {
		if ev.UserID == client.UserID {
			continue
		}
		d.hub.SendToClient(client, NewServerEvent(EventTyping, ev))
	}
}

func (d *Dispatcher) decode(client *Client, data json.RawMessage, v interface{}) bool {
	if len(data) == 0 {
		d.hub.SendError(client, "BAD_REQUEST", "Missing event data")
		return false
	}
	if err := json.Unmarshal(data, v); err != nil {
		d.hub.SendError(client, "BAD_REQUEST", "Invalid event data")
		return false
	}
	return true
}

// report relays a handler failure to the requester only. Nothing was
// broadcast for a failed operation, so nobody else hears about it.
func (d *Dispatcher) report(client *Client, err error) {
	if err == nil {
		return
	}

	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		d.hub.SendError(client, appErr.Code, appErr.Message)
		return
	}
	d.hub.SendError(client, "INTERNAL_ERROR", "Operation failed")
}
