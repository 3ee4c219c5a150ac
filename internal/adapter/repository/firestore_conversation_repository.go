package repository

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"chatrelay/internal/domain/entity"
	"chatrelay/internal/domain/repository"
	"chatrelay/pkg/errors"
	"chatrelay/pkg/logger"
)

type firestoreConversationRepository struct {
	client *firestore.Client
}

func NewFirestoreConversationRepository(client *firestore.Client) repository.ConversationRepository {
	return &firestoreConversationRepository{
		client: client,
	}
}

func (r *firestoreConversationRepository) docRef(id string) *firestore.DocumentRef {
	return r.client.Collection("conversations").Doc(id)
}

func (r *firestoreConversationRepository) Create(ctx context.Context, conv *entity.Conversation) error {
	if conv.ID == "" {
		conv.ID = uuid.New().String()
	}
	if conv.UnreadCount == nil {
		conv.UnreadCount = make(map[string]int)
	}

	now := time.Now()
	conv.CreatedAt = now
	conv.UpdatedAt = now

	_, err := r.docRef(conv.ID).Set(ctx, conv)
	if err != nil {
		return errors.Internal("Failed to create conversation", err)
	}

	return nil
}

func (r *firestoreConversationRepository) GetByID(ctx context.Context, id string) (*entity.Conversation, error) {
	doc, err := r.docRef(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, errors.NotFound("Conversation", err)
		}
		return nil, errors.Internal("Failed to get conversation", err)
	}

	var conv entity.Conversation
	if err := doc.DataTo(&conv); err != nil {
		return nil, errors.Internal("Failed to parse conversation data", err)
	}

	return &conv, nil
}

func (r *firestoreConversationRepository) ListByUserID(ctx context.Context, userID string, limit, offset int) ([]*entity.Conversation, int64, error) {
	query := r.client.Collection("conversations").
		Where("participants", "array-contains", userID).
		OrderBy("lastMessageAt", firestore.Desc)

	allDocs, err := query.Documents(ctx).GetAll()
	if err != nil {
		logger.Error("Firestore error while fetching conversations for user %s: %v", userID, err)
		return nil, 0, errors.Internal("Failed to fetch conversations", err)
	}

	total := int64(len(allDocs))

	// Pagination applied in-memory, matching the single-query read path.
	start := offset
	end := len(allDocs)
	if limit > 0 {
		end = start + limit
		if end > len(allDocs) {
			end = len(allDocs)
		}
	}
	if start > len(allDocs) {
		start = len(allDocs)
	}

	var convs []*entity.Conversation
	for i := start; i < end; i++ {
		var conv entity.Conversation
		if err := allDocs[i].DataTo(&conv); err != nil {
			logger.Warn("Skipping malformed conversation document for user %s: %v", userID, err)
			continue
		}
		convs = append(convs, &conv)
	}

	return convs, total, nil
}

func (r *firestoreConversationRepository) FindDirect(ctx context.Context, userA, userB string) (*entity.Conversation, error) {
	query := r.client.Collection("conversations").
		Where("participants", "array-contains", userA).
		Where("isGroup", "==", false)

	docs, err := query.Documents(ctx).GetAll()
	if err != nil {
		return nil, errors.Internal("Failed to query direct conversations", err)
	}

	for _, doc := range docs {
		var conv entity.Conversation
		if err := doc.DataTo(&conv); err != nil {
			continue
		}
		if len(conv.Participants) == 2 && conv.HasParticipant(userB) {
			return &conv, nil
		}
	}

	return nil, errors.NotFound("Conversation", nil)
}

func (r *firestoreConversationRepository) Delete(ctx context.Context, id string) error {
	_, err := r.docRef(id).Delete(ctx)
	if err != nil {
		return errors.Internal("Failed to delete conversation", err)
	}

	return nil
}

func (r *firestoreConversationRepository) SetLastMessage(ctx context.Context, convID, messageID, preview string, at time.Time) error {
	_, err := r.docRef(convID).Update(ctx, []firestore.Update{
		{Path: "lastMessageId", Value: messageID},
		{Path: "lastMessage", Value: preview},
		{Path: "lastMessageAt", Value: at},
		{Path: "updatedAt", Value: time.Now()},
	})
	if err != nil {
		return errors.Internal("Failed to set last message", err)
	}

	return nil
}

func (r *firestoreConversationRepository) IncrementUnread(ctx context.Context, convID string, recipientIDs []string) error {
	if len(recipientIDs) == 0 {
		return nil
	}

	// One server-side Increment per recipient in a single write, so racing
	// sends against the same recipient both land.
	updates := make([]firestore.Update, 0, len(recipientIDs)+1)
	for _, uid := range recipientIDs {
		updates = append(updates, firestore.Update{
			FieldPath: firestore.FieldPath{"unreadCount", uid},
			Value:     firestore.Increment(1),
		})
	}
	updates = append(updates, firestore.Update{Path: "updatedAt", Value: time.Now()})

	_, err := r.docRef(convID).Update(ctx, updates)
	if err != nil {
		return errors.Internal("Failed to increment unread counters", err)
	}

	return nil
}

func (r *firestoreConversationRepository) DecrementUnread(ctx context.Context, convID, userID string) error {
	ref := r.docRef(convID)

	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		doc, err := tx.Get(ref)
		if err != nil {
			return err
		}

		var conv entity.Conversation
		if err := doc.DataTo(&conv); err != nil {
			return err
		}

		current := conv.UnreadCount[userID]
		if current <= 0 {
			return nil
		}

		return tx.Update(ref, []firestore.Update{
			{FieldPath: firestore.FieldPath{"unreadCount", userID}, Value: current - 1},
		})
	})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return errors.NotFound("Conversation", err)
		}
		return errors.Internal("Failed to decrement unread counter", err)
	}

	return nil
}

func (r *firestoreConversationRepository) ResetUnread(ctx context.Context, convID, userID string, count int) error {
	_, err := r.docRef(convID).Update(ctx, []firestore.Update{
		{FieldPath: firestore.FieldPath{"unreadCount", userID}, Value: count},
	})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return errors.NotFound("Conversation", err)
		}
		return errors.Internal("Failed to reset unread counter", err)
	}

	return nil
}

func (r *firestoreConversationRepository) Mutate(ctx context.Context, convID string, fn func(*entity.Conversation) error) (*entity.Conversation, error) {
	ref := r.docRef(convID)
	var mutated entity.Conversation

	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		doc, err := tx.Get(ref)
		if err != nil {
			return err
		}

		var conv entity.Conversation
		if err := doc.DataTo(&conv); err != nil {
			return err
		}

		if err := fn(&conv); err != nil {
			return err
		}

		conv.UpdatedAt = time.Now()
		mutated = conv
		return tx.Set(ref, &conv)
	})
	if err != nil {
		if appErr, ok := err.(*errors.AppError); ok {
			return nil, appErr
		}
		if status.Code(err) == codes.NotFound {
			return nil, errors.NotFound("Conversation", err)
		}
		return nil, errors.Internal("Failed to update conversation", err)
	}

	return &mutated, nil
}
