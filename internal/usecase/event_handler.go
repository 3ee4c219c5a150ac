package usecase

import (
	"context"

	"chatrelay/internal/domain/repository"
	ws "chatrelay/internal/infrastructure/websocket"
	"chatrelay/pkg/errors"
)

// ChatEventHandler implements websocket.EventHandler by delegating each wire
// event to the owning use case. It is the only seam between the transport
// and the application layer.
type ChatEventHandler struct {
	chat        *ChatUseCase
	receipts    *ReceiptUseCase
	groups      *GroupUseCase
	userRepo    repository.UserRepository
	hub         Broadcaster
	typing      TypingTracker
	rateLimiter RateLimiter
}

func NewChatEventHandler(
	chat *ChatUseCase,
	receipts *ReceiptUseCase,
	groups *GroupUseCase,
	userRepo repository.UserRepository,
	hub Broadcaster,
	typing TypingTracker,
	rateLimiter RateLimiter,
) *ChatEventHandler {
	return &ChatEventHandler{
		chat:        chat,
		receipts:    receipts,
		groups:      groups,
		userRepo:    userRepo,
		hub:         hub,
		typing:      typing,
		rateLimiter: rateLimiter,
	}
}

func (h *ChatEventHandler) Authorize(ctx context.Context, userID, convID string) error {
	return h.chat.Authorize(ctx, userID, convID)
}

// CurrentTypers snapshots the unexpired typing flags for a conversation so a
// joining client can render indicators that started before it joined.
func (h *ChatEventHandler) CurrentTypers(ctx context.Context, convID string) []ws.TypingEvent {
	var events []ws.TypingEvent
	for _, userID := range h.typing.TypingUsers(convID) {
		username := ""
		if user, err := h.userRepo.GetByID(ctx, userID); err == nil {
			username = user.Username
		}
		events = append(events, ws.TypingEvent{
			ConversationID: convID,
			UserID:         userID,
			Username:       username,
		})
	}
	return events
}

func (h *ChatEventHandler) SendMessage(ctx context.Context, senderID string, payload ws.SendMessagePayload) error {
	// A send is the strongest possible stop-typing signal.
	h.typing.Clear(payload.ConversationID, senderID)
	return h.chat.SendMessage(ctx, senderID, payload)
}

func (h *ChatEventHandler) MarkDelivered(ctx context.Context, userID, convID, messageID string) error {
	return h.receipts.MarkDelivered(ctx, userID, convID, messageID)
}

func (h *ChatEventHandler) MarkRead(ctx context.Context, userID, convID, messageID string) error {
	return h.receipts.MarkRead(ctx, userID, convID, messageID)
}

func (h *ChatEventHandler) MarkConversationRead(ctx context.Context, userID, convID string) error {
	return h.receipts.MarkConversationRead(ctx, userID, convID)
}

func (h *ChatEventHandler) Typing(ctx context.Context, userID, convID string, typing bool) error {
	if err := h.chat.Authorize(ctx, userID, convID); err != nil {
		return err
	}

	if !typing {
		h.typing.Clear(convID, userID)
		h.hub.BroadcastToRoom(convID, ws.NewServerEvent(ws.EventStopTyping, ws.TypingEvent{
			ConversationID: convID,
			UserID:         userID,
		}), userID)
		return nil
	}

	if allowed, _ := h.rateLimiter.Allow(userID, "typing"); !allowed {
		// Typing is best effort; a throttled indicator is dropped, not errored.
		return nil
	}

	h.typing.Set(convID, userID)

	username := ""
	if user, err := h.userRepo.GetByID(ctx, userID); err == nil {
		username = user.Username
	}

	h.hub.BroadcastToRoom(convID, ws.NewServerEvent(ws.EventTyping, ws.TypingEvent{
		ConversationID: convID,
		UserID:         userID,
		Username:       username,
	}), userID)

	return nil
}

func (h *ChatEventHandler) AddMember(ctx context.Context, actorID, convID, userID string) error {
	if userID == "" {
		return errors.BadRequest("User ID is required", nil)
	}
	return h.groups.AddMember(ctx, actorID, convID, userID)
}

func (h *ChatEventHandler) RemoveMember(ctx context.Context, actorID, convID, userID string) error {
	if userID == "" {
		return errors.BadRequest("User ID is required", nil)
	}
	return h.groups.RemoveMember(ctx, actorID, convID, userID)
}

func (h *ChatEventHandler) LeaveGroup(ctx context.Context, actorID, convID string) error {
	return h.groups.LeaveGroup(ctx, actorID, convID)
}

func (h *ChatEventHandler) RenameGroup(ctx context.Context, actorID, convID, name string) error {
	return h.groups.RenameGroup(ctx, actorID, convID, name)
}

func (h *ChatEventHandler) ChangeAdmin(ctx context.Context, actorID, convID, newAdminID string) error {
	if newAdminID == "" {
		return errors.BadRequest("User ID is required", nil)
	}
	return h.groups.ChangeAdmin(ctx, actorID, convID, newAdminID)
}

// Disconnected clears any typing state the user's last connection left
// behind. Called by the hub's unregister path via the websocket handler.
func (h *ChatEventHandler) Disconnected(userID string) {
	h.typing.ClearUser(userID)
}
