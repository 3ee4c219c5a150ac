package usecase

import (
	"context"
	"time"

	"chatrelay/internal/infrastructure/websocket"
)

type FirebaseAuthClient interface {
	CreateUser(ctx context.Context, email, password, displayName string) (string, error)
	VerifyToken(ctx context.Context, token string) (string, error)
	GenerateToken(ctx context.Context, uid string) (string, error)
	GenerateLongLivedToken(ctx context.Context, uid string) (string, error)
	SignInWithEmailPassword(email, password string) (string, error)
}

// Broadcaster is the hub surface the use cases need. *websocket.Hub
// satisfies it; tests substitute a recorder.
type Broadcaster interface {
	BroadcastToRoom(conversationID string, event websocket.ServerEvent, excludeUserID string)
	BroadcastToUser(userID string, event websocket.ServerEvent)
	JoinUserToRoom(userID, conversationID string)
	RemoveUserFromRoom(userID, conversationID string)
	CloseRoom(conversationID string)
	IsOnline(userID string) bool
}

// TypingTracker expires typing state server-side so a vanished client
// cannot leave a conversation stuck in "typing".
type TypingTracker interface {
	Set(conversationID, userID string)
	Clear(conversationID, userID string)
	ClearUser(userID string)
	TypingUsers(conversationID string) []string
}

type RateLimiter interface {
	Allow(userID, action string) (bool, time.Duration)
}

// ImageStore is the upload bucket surface the use cases see. Message and
// avatar images must point into the bucket; objects nothing references
// anymore get deleted through it.
type ImageStore interface {
	IsManagedURL(fileURL string) bool
	DeleteObject(ctx context.Context, fileURL string) error
}
