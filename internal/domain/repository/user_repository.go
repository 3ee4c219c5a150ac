package repository

import (
	"context"
	"time"

	"chatrelay/internal/domain/entity"
)

type UserRepository interface {
	Create(ctx context.Context, user *entity.User) error
	GetByID(ctx context.Context, id string) (*entity.User, error)
	GetByEmail(ctx context.Context, email string) (*entity.User, error)
	Update(ctx context.Context, user *entity.User) error
	SearchByUsername(ctx context.Context, prefix string, limit int) ([]*entity.User, error)

	// SetPresence flips the online flag and stamps lastSeen on the user record.
	SetPresence(ctx context.Context, userID string, online bool, lastSeen time.Time) error
}
