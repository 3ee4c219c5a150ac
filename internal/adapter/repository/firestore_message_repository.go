package repository

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"chatrelay/internal/domain/entity"
	"chatrelay/internal/domain/repository"
	"chatrelay/pkg/errors"
	"chatrelay/pkg/logger"
)

type firestoreMessageRepository struct {
	client *firestore.Client
}

func NewFirestoreMessageRepository(client *firestore.Client) repository.MessageRepository {
	return &firestoreMessageRepository{
		client: client,
	}
}

func (r *firestoreMessageRepository) messages(convID string) *firestore.CollectionRef {
	return r.client.Collection("conversations").Doc(convID).Collection("messages")
}

func (r *firestoreMessageRepository) Create(ctx context.Context, msg *entity.Message) error {
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	if msg.DeliveredTo == nil {
		msg.DeliveredTo = []entity.Receipt{}
	}
	if msg.ReadBy == nil {
		msg.ReadBy = []entity.Receipt{}
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}

	_, err := r.messages(msg.ConversationID).Doc(msg.ID).Set(ctx, msg)
	if err != nil {
		return errors.Internal("Failed to create message", err)
	}

	return nil
}

func (r *firestoreMessageRepository) GetByID(ctx context.Context, convID, messageID string) (*entity.Message, error) {
	doc, err := r.messages(convID).Doc(messageID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, errors.NotFound("Message", err)
		}
		return nil, errors.Internal("Failed to get message", err)
	}

	var msg entity.Message
	if err := doc.DataTo(&msg); err != nil {
		return nil, errors.Internal("Failed to parse message data", err)
	}

	return &msg, nil
}

func (r *firestoreMessageRepository) ListByConversation(ctx context.Context, convID string, limit, offset int) ([]*entity.Message, int64, error) {
	query := r.messages(convID).OrderBy("createdAt", firestore.Desc)

	countDocs, err := query.Documents(ctx).GetAll()
	if err != nil {
		logger.Error("Firestore error while counting messages for conversation %s: %v", convID, err)
		return nil, 0, errors.Internal("Failed to count messages", err)
	}
	total := int64(len(countDocs))

	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}

	iter := query.Documents(ctx)
	var messages []*entity.Message

	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			logger.Error("Firestore error while iterating messages for conversation %s: %v", convID, err)
			return nil, 0, errors.Internal("Failed to iterate messages", err)
		}

		var msg entity.Message
		if err := doc.DataTo(&msg); err != nil {
			logger.Error("Error parsing message data for conversation %s: %v", convID, err)
			return nil, 0, errors.Internal("Failed to parse message data", err)
		}

		messages = append(messages, &msg)
	}

	return messages, total, nil
}

func (r *firestoreMessageRepository) AppendDelivered(ctx context.Context, convID, messageID, userID string, at time.Time) (bool, error) {
	return r.appendReceipt(ctx, convID, messageID, userID, at, "deliveredTo")
}

func (r *firestoreMessageRepository) AppendRead(ctx context.Context, convID, messageID, userID string, at time.Time) (bool, error) {
	return r.appendReceipt(ctx, convID, messageID, userID, at, "readBy")
}

// appendReceipt grows a receipt set inside a transaction so a duplicate
// acknowledgement never produces a second entry.
func (r *firestoreMessageRepository) appendReceipt(ctx context.Context, convID, messageID, userID string, at time.Time, field string) (bool, error) {
	ref := r.messages(convID).Doc(messageID)
	grew := false

	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		grew = false

		doc, err := tx.Get(ref)
		if err != nil {
			return err
		}

		var msg entity.Message
		if err := doc.DataTo(&msg); err != nil {
			return err
		}

		var set []entity.Receipt
		switch field {
		case "deliveredTo":
			set = msg.DeliveredTo
		case "readBy":
			set = msg.ReadBy
		}

		for _, rcpt := range set {
			if rcpt.UserID == userID {
				return nil
			}
		}

		set = append(set, entity.Receipt{UserID: userID, At: at})
		grew = true
		return tx.Update(ref, []firestore.Update{
			{Path: field, Value: set},
		})
	})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return false, errors.NotFound("Message", err)
		}
		return false, errors.Internal("Failed to record receipt", err)
	}

	return grew, nil
}

func (r *firestoreMessageRepository) MarkAllRead(ctx context.Context, convID, userID string, cutoff, at time.Time) (int, error) {
	query := r.messages(convID).Where("createdAt", "<=", cutoff)

	docs, err := query.Documents(ctx).GetAll()
	if err != nil {
		return 0, errors.Internal("Failed to scan messages for bulk read", err)
	}

	marked := 0
	for _, doc := range docs {
		var msg entity.Message
		if err := doc.DataTo(&msg); err != nil {
			logger.Warn("Skipping malformed message document in conversation %s: %v", convID, err)
			continue
		}
		if msg.SenderID == userID || msg.WasReadBy(userID) {
			continue
		}

		readBy := append(msg.ReadBy, entity.Receipt{UserID: userID, At: at})
		if _, err := doc.Ref.Update(ctx, []firestore.Update{
			{Path: "readBy", Value: readBy},
		}); err != nil {
			return marked, errors.Internal("Failed to record bulk read receipt", err)
		}
		marked++
	}

	return marked, nil
}

func (r *firestoreMessageRepository) CountUnreadAfter(ctx context.Context, convID, userID string, cutoff time.Time) (int, error) {
	query := r.messages(convID).Where("createdAt", ">", cutoff)

	docs, err := query.Documents(ctx).GetAll()
	if err != nil {
		return 0, errors.Internal("Failed to count unread messages", err)
	}

	count := 0
	for _, doc := range docs {
		var msg entity.Message
		if err := doc.DataTo(&msg); err != nil {
			continue
		}
		if msg.SenderID != userID && !msg.WasReadBy(userID) {
			count++
		}
	}

	return count, nil
}
