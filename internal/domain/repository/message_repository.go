package repository

import (
	"context"
	"time"

	"chatrelay/internal/domain/entity"
)

type MessageRepository interface {
	Create(ctx context.Context, msg *entity.Message) error
	GetByID(ctx context.Context, convID, messageID string) (*entity.Message, error)
	ListByConversation(ctx context.Context, convID string, limit, offset int) ([]*entity.Message, int64, error)

	// AppendDelivered and AppendRead add a receipt for userID unless one is
	// already present. They report whether the set actually grew, so callers
	// can suppress duplicate counter updates and rebroadcasts.
	AppendDelivered(ctx context.Context, convID, messageID, userID string, at time.Time) (bool, error)
	AppendRead(ctx context.Context, convID, messageID, userID string, at time.Time) (bool, error)

	// MarkAllRead appends a read receipt for userID to every message created at
	// or before cutoff that userID has not read yet. Returns how many messages
	// were marked.
	MarkAllRead(ctx context.Context, convID, userID string, cutoff, at time.Time) (int, error)

	// CountUnreadAfter counts messages newer than cutoff still unread by userID.
	CountUnreadAfter(ctx context.Context, convID, userID string, cutoff time.Time) (int, error)
}
