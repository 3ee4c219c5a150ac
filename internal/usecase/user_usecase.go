package usecase

import (
	"context"
	"strings"

	"chatrelay/internal/domain/entity"
	"chatrelay/internal/domain/repository"
	"chatrelay/pkg/errors"
	"chatrelay/pkg/logger"
)

type UserUseCase struct {
	userRepo repository.UserRepository
	hub      Broadcaster
	images   ImageStore
}

func NewUserUseCase(userRepo repository.UserRepository, hub Broadcaster, images ImageStore) *UserUseCase {
	return &UserUseCase{
		userRepo: userRepo,
		hub:      hub,
		images:   images,
	}
}

type UpdateProfileInput struct {
	Username  string `json:"username,omitempty" validate:"omitempty,min=3,max=30"`
	AvatarURL string `json:"avatar_url,omitempty" validate:"omitempty,url"`
}

func (uc *UserUseCase) GetProfile(ctx context.Context, userID string) (*entity.User, error) {
	user, err := uc.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	// Live connections beat the persisted flag, which lags briefly around
	// connect and disconnect.
	user.IsOnline = uc.hub.IsOnline(userID)
	return user, nil
}

func (uc *UserUseCase) UpdateProfile(ctx context.Context, userID string, input UpdateProfileInput) (*entity.User, error) {
	user, err := uc.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	if input.Username != "" {
		user.Username = input.Username
	}

	oldAvatar := ""
	if input.AvatarURL != "" && input.AvatarURL != user.AvatarURL {
		if !uc.images.IsManagedURL(input.AvatarURL) {
			return nil, errors.BadRequest("Avatar URL must reference an uploaded image", nil)
		}
		oldAvatar = user.AvatarURL
		user.AvatarURL = input.AvatarURL
	}

	if err := uc.userRepo.Update(ctx, user); err != nil {
		return nil, err
	}

	// The replaced avatar object has no remaining reference. Cleanup failure
	// only leaks an orphan, so it is logged and not surfaced.
	if oldAvatar != "" && uc.images.IsManagedURL(oldAvatar) {
		if err := uc.images.DeleteObject(ctx, oldAvatar); err != nil {
			logger.Warn("Failed to delete replaced avatar %s: %v", oldAvatar, err)
		}
	}

	return user, nil
}

func (uc *UserUseCase) Search(ctx context.Context, query string, limit int) ([]*entity.User, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, errors.BadRequest("Search query is required", nil)
	}
	if limit <= 0 || limit > 50 {
		limit = 20
	}

	users, err := uc.userRepo.SearchByUsername(ctx, query, limit)
	if err != nil {
		return nil, err
	}

	for _, u := range users {
		u.IsOnline = uc.hub.IsOnline(u.ID)
	}
	return users, nil
}
