package usecase

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"chatrelay/internal/domain/entity"
	"chatrelay/internal/domain/repository"
	ws "chatrelay/internal/infrastructure/websocket"
	"chatrelay/pkg/errors"
	"chatrelay/pkg/logger"
)

type ChatUseCase struct {
	convRepo    repository.ConversationRepository
	messageRepo repository.MessageRepository
	userRepo    repository.UserRepository
	hub         Broadcaster
	images      ImageStore
	rateLimiter RateLimiter
}

func NewChatUseCase(
	convRepo repository.ConversationRepository,
	messageRepo repository.MessageRepository,
	userRepo repository.UserRepository,
	hub Broadcaster,
	images ImageStore,
	rateLimiter RateLimiter,
) *ChatUseCase {
	return &ChatUseCase{
		convRepo:    convRepo,
		messageRepo: messageRepo,
		userRepo:    userRepo,
		hub:         hub,
		images:      images,
		rateLimiter: rateLimiter,
	}
}

type CreateDirectChatInput struct {
	RecipientID    string `json:"recipient_id" validate:"required"`
	InitialMessage string `json:"initial_message,omitempty"`
}

type CreateGroupChatInput struct {
	Name      string   `json:"name" validate:"required,min=1,max=100"`
	MemberIDs []string `json:"member_ids" validate:"required,min=2"`
}

// Authorize reports whether userID may act inside the conversation. Every
// room join and in-room operation funnels through this check; membership is
// decided by the persisted participant list, never by room occupancy.
func (uc *ChatUseCase) Authorize(ctx context.Context, userID, convID string) error {
	conv, err := uc.convRepo.GetByID(ctx, convID)
	if err != nil {
		return err
	}
	if !conv.HasParticipant(userID) {
		return errors.Forbidden("Not a participant of this conversation", nil)
	}
	return nil
}

// CreateDirectChat returns the existing one-to-one conversation between the
// two users or creates it. Live connections of both sides are joined to the
// room immediately so they receive events without an explicit join.
func (uc *ChatUseCase) CreateDirectChat(ctx context.Context, userID string, input CreateDirectChatInput) (*entity.Conversation, error) {
	if allowed, _ := uc.rateLimiter.Allow(userID, "create_chat"); !allowed {
		return nil, errors.TooManyRequests("Too many conversations created, try again later")
	}
	if input.RecipientID == userID {
		return nil, errors.BadRequest("Cannot start a conversation with yourself", nil)
	}

	if _, err := uc.userRepo.GetByID(ctx, input.RecipientID); err != nil {
		return nil, err
	}

	conv, err := uc.convRepo.FindDirect(ctx, userID, input.RecipientID)
	if err != nil && !errors.Is(err, "NOT_FOUND") {
		return nil, err
	}

	created := false
	if conv == nil {
		conv = &entity.Conversation{
			ID:           uuid.New().String(),
			Participants: []string{userID, input.RecipientID},
			IsGroup:      false,
			UnreadCount:  map[string]int{},
		}
		if err := uc.convRepo.Create(ctx, conv); err != nil {
			return nil, err
		}
		created = true
	}

	uc.hub.JoinUserToRoom(userID, conv.ID)
	uc.hub.JoinUserToRoom(input.RecipientID, conv.ID)

	if created && input.InitialMessage != "" {
		if err := uc.SendMessage(ctx, userID, ws.SendMessagePayload{
			ConversationID: conv.ID,
			Type:           entity.MessageTypeText,
			Content:        input.InitialMessage,
		}); err != nil {
			return nil, err
		}
		return uc.convRepo.GetByID(ctx, conv.ID)
	}

	return conv, nil
}

func (uc *ChatUseCase) CreateGroupChat(ctx context.Context, creatorID string, input CreateGroupChatInput) (*entity.Conversation, error) {
	if allowed, _ := uc.rateLimiter.Allow(creatorID, "create_chat"); !allowed {
		return nil, errors.TooManyRequests("Too many conversations created, try again later")
	}

	members := dedupe(append(input.MemberIDs, creatorID))
	if len(members) < 3 {
		return nil, errors.BadRequest("A group needs at least two other members", nil)
	}

	for _, id := range members {
		if id == creatorID {
			continue
		}
		if _, err := uc.userRepo.GetByID(ctx, id); err != nil {
			return nil, err
		}
	}

	conv := &entity.Conversation{
		ID:           uuid.New().String(),
		Participants: members,
		IsGroup:      true,
		Name:         strings.TrimSpace(input.Name),
		AdminID:      creatorID,
		UnreadCount:  map[string]int{},
	}
	if err := uc.convRepo.Create(ctx, conv); err != nil {
		return nil, err
	}

	for _, id := range members {
		uc.hub.JoinUserToRoom(id, conv.ID)
		if id != creatorID {
			uc.hub.BroadcastToUser(id, ws.NewServerEvent(ws.EventAddedToGroup, ws.AddedToGroupEvent{
				Conversation: conv,
				AddedBy:      creatorID,
			}))
		}
	}

	return conv, nil
}

func (uc *ChatUseCase) ListConversations(ctx context.Context, userID string, limit, offset int) ([]*entity.Conversation, int64, error) {
	return uc.convRepo.ListByUserID(ctx, userID, limit, offset)
}

func (uc *ChatUseCase) GetConversation(ctx context.Context, userID, convID string) (*entity.Conversation, error) {
	conv, err := uc.convRepo.GetByID(ctx, convID)
	if err != nil {
		return nil, err
	}
	if !conv.HasParticipant(userID) {
		return nil, errors.Forbidden("Not a participant of this conversation", nil)
	}
	return conv, nil
}

func (uc *ChatUseCase) ListMessages(ctx context.Context, userID, convID string, limit, offset int) ([]*entity.Message, int64, error) {
	if err := uc.Authorize(ctx, userID, convID); err != nil {
		return nil, 0, err
	}
	return uc.messageRepo.ListByConversation(ctx, convID, limit, offset)
}

// SendMessage runs the full fan-out pipeline: authorize, validate, persist,
// move the last-message pointer, bump every recipient's unread counter in one
// atomic write, then broadcast. A persistence failure aborts before any
// broadcast so no client ever sees a message the store does not hold.
func (uc *ChatUseCase) SendMessage(ctx context.Context, senderID string, payload ws.SendMessagePayload) error {
	if allowed, _ := uc.rateLimiter.Allow(senderID, "send_message"); !allowed {
		return errors.TooManyRequests("Sending too fast, slow down")
	}

	conv, err := uc.convRepo.GetByID(ctx, payload.ConversationID)
	if err != nil {
		return err
	}
	if !conv.HasParticipant(senderID) {
		return errors.Forbidden("Not a participant of this conversation", nil)
	}

	msg, err := uc.buildMessage(senderID, payload)
	if err != nil {
		return err
	}

	sender, err := uc.userRepo.GetByID(ctx, senderID)
	if err != nil {
		return err
	}

	if err := uc.messageRepo.Create(ctx, msg); err != nil {
		return err
	}

	preview := msg.Content
	if msg.Type == entity.MessageTypeImage {
		preview = "[image]"
	}
	if err := uc.convRepo.SetLastMessage(ctx, conv.ID, msg.ID, preview, msg.CreatedAt); err != nil {
		return err
	}

	recipients := make([]string, 0, len(conv.Participants)-1)
	for _, id := range conv.Participants {
		if id != senderID {
			recipients = append(recipients, id)
		}
	}
	if err := uc.convRepo.IncrementUnread(ctx, conv.ID, recipients); err != nil {
		return err
	}

	uc.hub.BroadcastToRoom(conv.ID, ws.NewServerEvent(ws.EventMessage, ws.MessageEvent{
		Message: msg,
		Sender:  sender,
	}), "")

	updated, err := uc.convRepo.GetByID(ctx, conv.ID)
	if err != nil {
		logger.Error("Failed to reload conversation %s after send: %v", conv.ID, err)
		updated = conv
	}
	uc.hub.BroadcastToRoom(conv.ID, ws.NewServerEvent(ws.EventConversationUpdated, ws.ConversationUpdatedEvent{
		ConversationID: conv.ID,
		LastMessage:    msg,
		UnreadCount:    updated.UnreadCount,
	}), "")

	return nil
}

func (uc *ChatUseCase) buildMessage(senderID string, payload ws.SendMessagePayload) (*entity.Message, error) {
	content := strings.TrimSpace(payload.Content)

	switch payload.Type {
	case entity.MessageTypeText:
		if content == "" {
			return nil, errors.BadRequest("Message content is required", nil)
		}
		if payload.ImageURL != "" {
			return nil, errors.BadRequest("Text messages cannot carry an image", nil)
		}
	case entity.MessageTypeImage:
		if payload.ImageURL == "" {
			return nil, errors.BadRequest("Image URL is required", nil)
		}
		// Only references into our own bucket are relayed. Anything else,
		// including well-formed URLs to other hosts, is rejected.
		if !uc.images.IsManagedURL(payload.ImageURL) {
			return nil, errors.BadRequest("Image URL must reference an uploaded image", nil)
		}
		if content != "" {
			return nil, errors.BadRequest("Image messages cannot carry text content", nil)
		}
	default:
		return nil, errors.BadRequest("Unknown message type", nil)
	}

	return &entity.Message{
		ID:             uuid.New().String(),
		ConversationID: payload.ConversationID,
		SenderID:       senderID,
		Type:           payload.Type,
		Content:        content,
		ImageURL:       payload.ImageURL,
		DeliveredTo:    []entity.Receipt{},
		ReadBy:         []entity.Receipt{},
		CreatedAt:      time.Now(),
	}, nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
