package usecase

import (
	"context"
	"time"

	"chatrelay/internal/domain/entity"
	"chatrelay/internal/domain/repository"
	ws "chatrelay/internal/infrastructure/websocket"
	"chatrelay/pkg/errors"
)

// ReceiptUseCase aggregates delivery and read acknowledgements. Receipts are
// idempotent: replaying one neither grows the receipt set, moves a counter,
// nor triggers a second broadcast.
type ReceiptUseCase struct {
	convRepo    repository.ConversationRepository
	messageRepo repository.MessageRepository
	hub         Broadcaster
}

func NewReceiptUseCase(
	convRepo repository.ConversationRepository,
	messageRepo repository.MessageRepository,
	hub Broadcaster,
) *ReceiptUseCase {
	return &ReceiptUseCase{
		convRepo:    convRepo,
		messageRepo: messageRepo,
		hub:         hub,
	}
}

func (uc *ReceiptUseCase) MarkDelivered(ctx context.Context, userID, convID, messageID string) error {
	msg, err := uc.authorizeReceipt(ctx, userID, convID, messageID)
	if err != nil {
		return err
	}
	if msg.SenderID == userID {
		return nil
	}

	grew, err := uc.messageRepo.AppendDelivered(ctx, convID, messageID, userID, time.Now())
	if err != nil {
		return err
	}
	if !grew {
		return nil
	}

	uc.hub.BroadcastToRoom(convID, ws.NewServerEvent(ws.EventMessageDelivered, ws.ReceiptEvent{
		ConversationID: convID,
		MessageID:      messageID,
		UserID:         userID,
	}), "")

	return nil
}

func (uc *ReceiptUseCase) MarkRead(ctx context.Context, userID, convID, messageID string) error {
	msg, err := uc.authorizeReceipt(ctx, userID, convID, messageID)
	if err != nil {
		return err
	}
	if msg.SenderID == userID {
		return nil
	}

	grew, err := uc.messageRepo.AppendRead(ctx, convID, messageID, userID, time.Now())
	if err != nil {
		return err
	}
	if !grew {
		return nil
	}

	// Only a receipt that actually landed moves the counter, so replays
	// cannot drag it below the true unread count.
	if err := uc.convRepo.DecrementUnread(ctx, convID, userID); err != nil {
		return err
	}

	uc.hub.BroadcastToRoom(convID, ws.NewServerEvent(ws.EventMessageRead, ws.ReceiptEvent{
		ConversationID: convID,
		MessageID:      messageID,
		UserID:         userID,
	}), "")

	return nil
}

// MarkConversationRead snapshots a cutoff, marks every message up to it as
// read by userID, then resets the counter to the number of still-unread
// messages that arrived after the cutoff. Messages racing in during the sweep
// are therefore never silently swallowed.
func (uc *ReceiptUseCase) MarkConversationRead(ctx context.Context, userID, convID string) error {
	conv, err := uc.convRepo.GetByID(ctx, convID)
	if err != nil {
		return err
	}
	if !conv.HasParticipant(userID) {
		return errors.Forbidden("Not a participant of this conversation", nil)
	}

	cutoff := time.Now()
	marked, err := uc.messageRepo.MarkAllRead(ctx, convID, userID, cutoff, cutoff)
	if err != nil {
		return err
	}

	remaining, err := uc.messageRepo.CountUnreadAfter(ctx, convID, userID, cutoff)
	if err != nil {
		return err
	}
	if err := uc.convRepo.ResetUnread(ctx, convID, userID, remaining); err != nil {
		return err
	}

	if marked == 0 && remaining == conv.UnreadCount[userID] {
		return nil
	}

	uc.hub.BroadcastToRoom(convID, ws.NewServerEvent(ws.EventConversationRead, ws.ConversationReadEvent{
		ConversationID: convID,
		UserID:         userID,
	}), "")

	return nil
}

func (uc *ReceiptUseCase) authorizeReceipt(ctx context.Context, userID, convID, messageID string) (*entity.Message, error) {
	conv, err := uc.convRepo.GetByID(ctx, convID)
	if err != nil {
		return nil, err
	}
	if !conv.HasParticipant(userID) {
		return nil, errors.Forbidden("Not a participant of this conversation", nil)
	}

	msg, err := uc.messageRepo.GetByID(ctx, convID, messageID)
	if err != nil {
		return nil, err
	}

	return msg, nil
}
