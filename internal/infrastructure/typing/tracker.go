package typing

import (
	"context"
	"sync"
	"time"
)

type key struct {
	convID string
	userID string
}

// Tracker holds the ephemeral (conversation, user) -> typing state. Entries
// expire after a quiet interval and are swept by a background ticker; nothing
// here is ever persisted.
type Tracker struct {
	mu      sync.Mutex
	entries map[key]time.Time // expiry instant
	ttl     time.Duration
}

func NewTracker(ttl time.Duration) *Tracker {
	return &Tracker{
		entries: make(map[key]time.Time),
		ttl:     ttl,
	}
}

// Set records that userID is typing in convID, starting or refreshing the
// quiet timeout.
func (t *Tracker) Set(convID, userID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries[key{convID, userID}] = time.Now().Add(t.ttl)
}

// Clear drops the typing flag, e.g. on an explicit stop signal.
func (t *Tracker) Clear(convID, userID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, key{convID, userID})
}

// ClearUser drops every typing flag held by one identity, used on disconnect.
func (t *Tracker) ClearUser(userID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for k := range t.entries {
		if k.userID == userID {
			delete(t.entries, k)
		}
	}
}

// TypingUsers lists identities with an unexpired typing flag in convID.
// Expired entries are evicted lazily here as well as by the sweeper.
func (t *Tracker) TypingUsers(convID string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	var users []string
	for k, expiry := range t.entries {
		if k.convID != convID {
			continue
		}
		if now.After(expiry) {
			delete(t.entries, k)
			continue
		}
		users = append(users, k.userID)
	}
	return users
}

// Start runs the background sweep until the context is cancelled.
func (t *Tracker) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(t.ttl)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				t.sweep()
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (t *Tracker) sweep() {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	for k, expiry := range t.entries {
		if now.After(expiry) {
			delete(t.entries, k)
		}
	}
}
