package repository

import (
	"context"
	"time"

	"chatrelay/internal/domain/entity"
)

type ConversationRepository interface {
	Create(ctx context.Context, conv *entity.Conversation) error
	GetByID(ctx context.Context, id string) (*entity.Conversation, error)
	ListByUserID(ctx context.Context, userID string, limit, offset int) ([]*entity.Conversation, int64, error)
	FindDirect(ctx context.Context, userA, userB string) (*entity.Conversation, error)
	Delete(ctx context.Context, id string) error

	// SetLastMessage atomically moves the conversation's last-message pointer.
	SetLastMessage(ctx context.Context, convID, messageID, preview string, at time.Time) error

	// IncrementUnread bumps each recipient's unread counter by exactly one in a
	// single atomic write. Two racing sends against the same recipient must
	// both land.
	IncrementUnread(ctx context.Context, convID string, recipientIDs []string) error

	// DecrementUnread lowers one user's counter by one, floored at zero.
	DecrementUnread(ctx context.Context, convID, userID string) error

	// ResetUnread sets one user's counter to an authoritative value.
	ResetUnread(ctx context.Context, convID, userID string, count int) error

	// Mutate applies a structural change (participants, admin, name, unread
	// map entries) to the conversation inside a transaction. The mutator sees
	// the freshly read document; conflicting writers are retried by the store.
	Mutate(ctx context.Context, convID string, fn func(*entity.Conversation) error) (*entity.Conversation, error)
}
