package websocket

import (
	"encoding/json"
	"time"

	"chatrelay/internal/domain/entity"
)

// Client-to-server event types. The dispatcher switches exhaustively over
// this set; anything else is rejected as an unknown event.
const (
	EventJoinRooms            = "join_rooms"
	EventJoinRoom             = "join_room"
	EventLeaveRoom            = "leave_room"
	EventSendMessage          = "send_message"
	EventTyping               = "typing"
	EventStopTyping           = "stop_typing"
	EventMarkDelivered        = "mark_delivered"
	EventMarkRead             = "mark_read"
	EventMarkConversationRead = "mark_conversation_read"
	EventAddMember            = "add_member"
	EventRemoveMember         = "remove_member"
	EventLeaveGroup           = "leave_group"
	EventRenameGroup          = "rename_group"
	EventChangeAdmin          = "change_admin"
	EventPing                 = "ping"
)

// Server-to-client event types.
const (
	EventMessage             = "message"
	EventConversationUpdated = "conversation_updated"
	EventMessageDelivered    = "message_delivered"
	EventMessageRead         = "message_read"
	EventConversationRead    = "conversation_read"
	EventUserOnline          = "user_online"
	EventUserOffline         = "user_offline"
	EventGroupUpdated        = "group_updated"
	EventAddedToGroup        = "added_to_group"
	EventRemovedFromGroup    = "removed_from_group"
	EventPong                = "pong"
	EventError               = "error"
)

// Group mutation tags carried by group_updated events.
const (
	GroupUserAdded    = "USER_ADDED"
	GroupUserRemoved  = "USER_REMOVED"
	GroupUserLeft     = "USER_LEFT"
	GroupRenamed      = "GROUP_RENAMED"
	GroupAdminChanged = "ADMIN_CHANGED"
)

// ClientEvent is the envelope for every inbound frame. Data stays raw until
// the dispatcher knows the concrete payload type for Type.
type ClientEvent struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// ServerEvent is the envelope for every outbound frame.
type ServerEvent struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp string      `json:"timestamp"`
}

func NewServerEvent(eventType string, data interface{}) ServerEvent {
	return ServerEvent{
		Type:      eventType,
		Data:      data,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

// Inbound payloads.

type JoinRoomsPayload struct {
	ConversationIDs []string `json:"conversation_ids"`
}

type RoomPayload struct {
	ConversationID string `json:"conversation_id"`
}

type SendMessagePayload struct {
	ConversationID string `json:"conversation_id"`
	Type           string `json:"type"`
	Content        string `json:"content,omitempty"`
	ImageURL       string `json:"image_url,omitempty"`
}

type ReceiptPayload struct {
	ConversationID string `json:"conversation_id"`
	MessageID      string `json:"message_id"`
}

type MemberPayload struct {
	ConversationID string `json:"conversation_id"`
	UserID         string `json:"user_id"`
}

type RenamePayload struct {
	ConversationID string `json:"conversation_id"`
	Name           string `json:"name"`
}

// Outbound payloads.

type MessageEvent struct {
	Message *entity.Message `json:"message"`
	Sender  *entity.User    `json:"sender,omitempty"`
}

type ConversationUpdatedEvent struct {
	ConversationID string          `json:"conversation_id"`
	LastMessage    *entity.Message `json:"last_message,omitempty"`
	UnreadCount    map[string]int  `json:"unread_count"`
}

type ReceiptEvent struct {
	ConversationID string `json:"conversation_id"`
	MessageID      string `json:"message_id"`
	UserID         string `json:"user_id"`
}

type ConversationReadEvent struct {
	ConversationID string `json:"conversation_id"`
	UserID         string `json:"user_id"`
}

type TypingEvent struct {
	ConversationID string `json:"conversation_id"`
	UserID         string `json:"user_id"`
	Username       string `json:"username,omitempty"`
}

type PresenceEvent struct {
	UserID   string `json:"user_id"`
	IsOnline bool   `json:"is_online"`
	LastSeen string `json:"last_seen,omitempty"`
}

type GroupUpdatedEvent struct {
	Type         string               `json:"type"`
	Conversation *entity.Conversation `json:"conversation"`
	ActorID      string               `json:"actor_id"`
	TargetID     string               `json:"target_id,omitempty"`
}

type AddedToGroupEvent struct {
	Conversation *entity.Conversation `json:"conversation"`
	AddedBy      string               `json:"added_by"`
}

type RemovedFromGroupEvent struct {
	ConversationID string `json:"conversation_id"`
	RemovedBy      string `json:"removed_by"`
}

type ErrorEvent struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
