package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatrelay/internal/domain/entity"
	ws "chatrelay/internal/infrastructure/websocket"
	"chatrelay/pkg/errors"
)

func newReceiptFixture(t *testing.T) (*ReceiptUseCase, *fakeConvRepo, *fakeMsgRepo, *fakeHub) {
	t.Helper()
	convRepo := newFakeConvRepo(groupConv())
	msgRepo := newFakeMsgRepo()
	hub := newFakeHub()
	return NewReceiptUseCase(convRepo, msgRepo, hub), convRepo, msgRepo, hub
}

func seedMessage(t *testing.T, msgRepo *fakeMsgRepo, convRepo *fakeConvRepo, id, sender string, at time.Time) {
	t.Helper()
	require.NoError(t, msgRepo.Create(context.Background(), &entity.Message{
		ID:             id,
		ConversationID: "conv1",
		SenderID:       sender,
		Type:           entity.MessageTypeText,
		Content:        "m " + id,
		DeliveredTo:    []entity.Receipt{},
		ReadBy:         []entity.Receipt{},
		CreatedAt:      at,
	}))
	conv, err := convRepo.GetByID(context.Background(), "conv1")
	require.NoError(t, err)
	var recipients []string
	for _, p := range conv.Participants {
		if p != sender {
			recipients = append(recipients, p)
		}
	}
	require.NoError(t, convRepo.IncrementUnread(context.Background(), "conv1", recipients))
}

func TestMarkReadDecrementsOnce(t *testing.T) {
	uc, convRepo, msgRepo, hub := newReceiptFixture(t)
	seedMessage(t, msgRepo, convRepo, "m1", "alice", time.Now())

	require.NoError(t, uc.MarkRead(context.Background(), "bob", "conv1", "m1"))

	conv, _ := convRepo.GetByID(context.Background(), "conv1")
	assert.Equal(t, 0, conv.UnreadCount["bob"])
	assert.Equal(t, 1, conv.UnreadCount["carol"])
	assert.Equal(t, []string{ws.EventMessageRead}, hub.eventTypes())

	// Replaying the receipt changes nothing.
	require.NoError(t, uc.MarkRead(context.Background(), "bob", "conv1", "m1"))

	conv, _ = convRepo.GetByID(context.Background(), "conv1")
	assert.Equal(t, 0, conv.UnreadCount["bob"])
	assert.Len(t, hub.eventTypes(), 1)

	msg, _ := msgRepo.GetByID(context.Background(), "conv1", "m1")
	assert.Len(t, msg.ReadBy, 1)
}

func TestMarkReadOwnMessageIsNoop(t *testing.T) {
	uc, convRepo, msgRepo, hub := newReceiptFixture(t)
	seedMessage(t, msgRepo, convRepo, "m1", "alice", time.Now())

	require.NoError(t, uc.MarkRead(context.Background(), "alice", "conv1", "m1"))

	msg, _ := msgRepo.GetByID(context.Background(), "conv1", "m1")
	assert.Empty(t, msg.ReadBy)
	assert.Empty(t, hub.eventTypes())
}

func TestMarkDeliveredIdempotent(t *testing.T) {
	uc, convRepo, msgRepo, hub := newReceiptFixture(t)
	seedMessage(t, msgRepo, convRepo, "m1", "alice", time.Now())

	require.NoError(t, uc.MarkDelivered(context.Background(), "bob", "conv1", "m1"))
	require.NoError(t, uc.MarkDelivered(context.Background(), "bob", "conv1", "m1"))

	msg, _ := msgRepo.GetByID(context.Background(), "conv1", "m1")
	assert.Len(t, msg.DeliveredTo, 1)
	assert.Equal(t, []string{ws.EventMessageDelivered}, hub.eventTypes())

	// Delivery receipts never touch the unread counter.
	conv, _ := convRepo.GetByID(context.Background(), "conv1")
	assert.Equal(t, 1, conv.UnreadCount["bob"])
}

func TestMarkReceiptNonParticipant(t *testing.T) {
	uc, convRepo, msgRepo, _ := newReceiptFixture(t)
	seedMessage(t, msgRepo, convRepo, "m1", "alice", time.Now())

	assert.True(t, errors.Is(uc.MarkRead(context.Background(), "dave", "conv1", "m1"), "FORBIDDEN"))
	assert.True(t, errors.Is(uc.MarkDelivered(context.Background(), "dave", "conv1", "m1"), "FORBIDDEN"))
}

func TestMarkConversationRead(t *testing.T) {
	uc, convRepo, msgRepo, hub := newReceiptFixture(t)
	past := time.Now().Add(-time.Minute)
	seedMessage(t, msgRepo, convRepo, "m1", "alice", past)
	seedMessage(t, msgRepo, convRepo, "m2", "alice", past.Add(time.Second))
	seedMessage(t, msgRepo, convRepo, "m3", "carol", past.Add(2*time.Second))

	require.NoError(t, uc.MarkConversationRead(context.Background(), "bob", "conv1"))

	for _, id := range []string{"m1", "m2", "m3"} {
		msg, _ := msgRepo.GetByID(context.Background(), "conv1", id)
		assert.True(t, msg.WasReadBy("bob"), "message %s should be read", id)
	}

	conv, _ := convRepo.GetByID(context.Background(), "conv1")
	assert.Equal(t, 0, conv.UnreadCount["bob"])
	// Other participants' counters are untouched.
	assert.Equal(t, 3, conv.UnreadCount["carol"]+conv.UnreadCount["alice"])

	assert.Contains(t, hub.eventTypes(), ws.EventConversationRead)
}

func TestMarkConversationReadAlreadyClean(t *testing.T) {
	uc, _, _, hub := newReceiptFixture(t)

	require.NoError(t, uc.MarkConversationRead(context.Background(), "bob", "conv1"))
	assert.Empty(t, hub.eventTypes())
}
