package usecase

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatrelay/internal/domain/entity"
	ws "chatrelay/internal/infrastructure/websocket"
	"chatrelay/pkg/errors"
)

func newChatFixture(conv *entity.Conversation) (*ChatUseCase, *fakeConvRepo, *fakeMsgRepo, *fakeHub) {
	convRepo := newFakeConvRepo(conv)
	msgRepo := newFakeMsgRepo()
	userRepo := newFakeUserRepo("alice", "bob", "carol", "dave")
	hub := newFakeHub()
	uc := NewChatUseCase(convRepo, msgRepo, userRepo, hub, newFakeImageStore(), &fakeLimiter{})
	return uc, convRepo, msgRepo, hub
}

const managedImageURL = "https://storage.googleapis.com/relay-test/img1.png"

func groupConv() *entity.Conversation {
	return &entity.Conversation{
		ID:           "conv1",
		Participants: []string{"alice", "bob", "carol"},
		IsGroup:      true,
		Name:         "trio",
		AdminID:      "alice",
		UnreadCount:  map[string]int{},
	}
}

func TestSendMessageFanout(t *testing.T) {
	uc, convRepo, msgRepo, hub := newChatFixture(groupConv())

	err := uc.SendMessage(context.Background(), "alice", ws.SendMessagePayload{
		ConversationID: "conv1",
		Type:           entity.MessageTypeText,
		Content:        "hello everyone",
	})
	require.NoError(t, err)

	msgs, total, err := msgRepo.ListByConversation(context.Background(), "conv1", 50, 0)
	require.NoError(t, err)
	require.EqualValues(t, 1, total)

	msg := msgs[0]
	assert.Equal(t, "alice", msg.SenderID)
	assert.Equal(t, "hello everyone", msg.Content)
	assert.Empty(t, msg.DeliveredTo)
	assert.Empty(t, msg.ReadBy)

	conv, err := convRepo.GetByID(context.Background(), "conv1")
	require.NoError(t, err)
	assert.Equal(t, msg.ID, conv.LastMessageID)
	assert.Equal(t, "hello everyone", conv.LastMessage)

	// Every recipient except the sender gained exactly one unread.
	assert.Equal(t, 0, conv.UnreadCount["alice"])
	assert.Equal(t, 1, conv.UnreadCount["bob"])
	assert.Equal(t, 1, conv.UnreadCount["carol"])

	// Message lands before the conversation summary.
	assert.Equal(t, []string{ws.EventMessage, ws.EventConversationUpdated}, hub.eventTypes())

	rooms := hub.callsOf("room")
	require.Len(t, rooms, 2)
	assert.Equal(t, "conv1", rooms[0].ConvID)

	summary, ok := rooms[1].Event.Data.(ws.ConversationUpdatedEvent)
	require.True(t, ok)
	assert.Equal(t, 1, summary.UnreadCount["bob"])
}

func TestSendMessageConcurrentSendsBothCount(t *testing.T) {
	uc, convRepo, _, _ := newChatFixture(groupConv())

	done := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() {
			done <- uc.SendMessage(context.Background(), "alice", ws.SendMessagePayload{
				ConversationID: "conv1",
				Type:           entity.MessageTypeText,
				Content:        "racing",
			})
		}()
	}
	require.NoError(t, <-done)
	require.NoError(t, <-done)

	conv, err := convRepo.GetByID(context.Background(), "conv1")
	require.NoError(t, err)
	assert.Equal(t, 2, conv.UnreadCount["bob"])
	assert.Equal(t, 2, conv.UnreadCount["carol"])
}

func TestSendMessageNonParticipant(t *testing.T) {
	uc, _, msgRepo, hub := newChatFixture(groupConv())

	err := uc.SendMessage(context.Background(), "dave", ws.SendMessagePayload{
		ConversationID: "conv1",
		Type:           entity.MessageTypeText,
		Content:        "let me in",
	})
	assert.True(t, errors.Is(err, "FORBIDDEN"))

	_, total, _ := msgRepo.ListByConversation(context.Background(), "conv1", 50, 0)
	assert.EqualValues(t, 0, total)
	assert.Empty(t, hub.eventTypes())
}

func TestSendMessagePayloadValidation(t *testing.T) {
	uc, _, _, _ := newChatFixture(groupConv())
	ctx := context.Background()

	cases := []struct {
		name    string
		payload ws.SendMessagePayload
	}{
		{"empty text", ws.SendMessagePayload{ConversationID: "conv1", Type: entity.MessageTypeText, Content: "   "}},
		{"text with image", ws.SendMessagePayload{ConversationID: "conv1", Type: entity.MessageTypeText, Content: "hi", ImageURL: managedImageURL}},
		{"image without url", ws.SendMessagePayload{ConversationID: "conv1", Type: entity.MessageTypeImage}},
		{"image with text", ws.SendMessagePayload{ConversationID: "conv1", Type: entity.MessageTypeImage, ImageURL: managedImageURL, Content: "caption"}},
		{"image outside bucket", ws.SendMessagePayload{ConversationID: "conv1", Type: entity.MessageTypeImage, ImageURL: "https://elsewhere.example/x.png"}},
		{"image with scheme trick", ws.SendMessagePayload{ConversationID: "conv1", Type: entity.MessageTypeImage, ImageURL: "javascript:alert(1)"}},
		{"unknown type", ws.SendMessagePayload{ConversationID: "conv1", Type: "sticker", Content: "hi"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := uc.SendMessage(ctx, "alice", tc.payload)
			assert.True(t, errors.Is(err, "BAD_REQUEST"), "expected BAD_REQUEST, got %v", err)
		})
	}
}

func TestSendImageMessage(t *testing.T) {
	uc, convRepo, msgRepo, _ := newChatFixture(groupConv())

	err := uc.SendMessage(context.Background(), "alice", ws.SendMessagePayload{
		ConversationID: "conv1",
		Type:           entity.MessageTypeImage,
		ImageURL:       managedImageURL,
	})
	require.NoError(t, err)

	msgs, _, err := msgRepo.ListByConversation(context.Background(), "conv1", 50, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, managedImageURL, msgs[0].ImageURL)

	conv, err := convRepo.GetByID(context.Background(), "conv1")
	require.NoError(t, err)
	assert.Equal(t, "[image]", conv.LastMessage)
}

func TestSendImageMessageForeignReferenceRejected(t *testing.T) {
	uc, _, msgRepo, hub := newChatFixture(groupConv())

	err := uc.SendMessage(context.Background(), "alice", ws.SendMessagePayload{
		ConversationID: "conv1",
		Type:           entity.MessageTypeImage,
		ImageURL:       "javascript:alert(1)",
	})
	assert.True(t, errors.Is(err, "BAD_REQUEST"))

	// Nothing persisted, nothing fanned out.
	_, total, _ := msgRepo.ListByConversation(context.Background(), "conv1", 50, 0)
	assert.EqualValues(t, 0, total)
	assert.Empty(t, hub.eventTypes())
}

func TestSendMessageRateLimited(t *testing.T) {
	convRepo := newFakeConvRepo(groupConv())
	uc := NewChatUseCase(convRepo, newFakeMsgRepo(), newFakeUserRepo("alice"), newFakeHub(), newFakeImageStore(), &fakeLimiter{denied: map[string]bool{"send_message": true}})

	err := uc.SendMessage(context.Background(), "alice", ws.SendMessagePayload{
		ConversationID: "conv1",
		Type:           entity.MessageTypeText,
		Content:        "hi",
	})
	assert.True(t, errors.Is(err, "TOO_MANY_REQUESTS"))
}

func TestCreateDirectChatReusesExisting(t *testing.T) {
	existing := &entity.Conversation{
		ID:           "direct1",
		Participants: []string{"alice", "bob"},
		UnreadCount:  map[string]int{},
	}
	uc, convRepo, _, hub := newChatFixture(existing)

	conv, err := uc.CreateDirectChat(context.Background(), "alice", CreateDirectChatInput{RecipientID: "bob"})
	require.NoError(t, err)
	assert.Equal(t, "direct1", conv.ID)

	all, total, _ := convRepo.ListByUserID(context.Background(), "alice", 50, 0)
	assert.EqualValues(t, 1, total)
	assert.Len(t, all, 1)

	// Both sides' live connections are attached to the room.
	joins := hub.callsOf("join")
	require.Len(t, joins, 2)
}

func TestCreateDirectChatWithSelf(t *testing.T) {
	uc, _, _, _ := newChatFixture(groupConv())

	_, err := uc.CreateDirectChat(context.Background(), "alice", CreateDirectChatInput{RecipientID: "alice"})
	assert.True(t, errors.Is(err, "BAD_REQUEST"))
}

func TestCreateDirectChatUnknownRecipient(t *testing.T) {
	uc, _, _, _ := newChatFixture(groupConv())

	_, err := uc.CreateDirectChat(context.Background(), "alice", CreateDirectChatInput{RecipientID: "nobody"})
	assert.True(t, errors.Is(err, "NOT_FOUND"))
}

func TestCreateGroupChat(t *testing.T) {
	uc, _, _, hub := newChatFixture(groupConv())

	conv, err := uc.CreateGroupChat(context.Background(), "alice", CreateGroupChatInput{
		Name:      "new group",
		MemberIDs: []string{"bob", "carol", "bob"},
	})
	require.NoError(t, err)

	assert.True(t, conv.IsGroup)
	assert.Equal(t, "alice", conv.AdminID)
	assert.ElementsMatch(t, []string{"alice", "bob", "carol"}, conv.Participants)

	// The creator does not get an added_to_group notice, the others do.
	users := hub.callsOf("user")
	require.Len(t, users, 2)
	for _, call := range users {
		assert.Equal(t, ws.EventAddedToGroup, call.Event.Type)
		assert.NotEqual(t, "alice", call.UserID)
	}
}

func TestCreateGroupChatTooSmall(t *testing.T) {
	uc, _, _, _ := newChatFixture(groupConv())

	_, err := uc.CreateGroupChat(context.Background(), "alice", CreateGroupChatInput{
		Name:      "tiny",
		MemberIDs: []string{"bob"},
	})
	assert.True(t, errors.Is(err, "BAD_REQUEST"))
}

func TestAuthorize(t *testing.T) {
	uc, _, _, _ := newChatFixture(groupConv())

	assert.NoError(t, uc.Authorize(context.Background(), "bob", "conv1"))
	assert.True(t, errors.Is(uc.Authorize(context.Background(), "dave", "conv1"), "FORBIDDEN"))
	assert.True(t, errors.Is(uc.Authorize(context.Background(), "bob", "missing"), "NOT_FOUND"))
}
