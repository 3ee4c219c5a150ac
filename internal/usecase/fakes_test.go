package usecase

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"chatrelay/internal/domain/entity"
	ws "chatrelay/internal/infrastructure/websocket"
	"chatrelay/pkg/errors"
)

// In-memory fakes for the repository and hub surfaces. They implement the
// same idempotency rules the Firestore adapters promise.

type fakeConvRepo struct {
	mu    sync.Mutex
	convs map[string]*entity.Conversation
}

func newFakeConvRepo(convs ...*entity.Conversation) *fakeConvRepo {
	r := &fakeConvRepo{convs: make(map[string]*entity.Conversation)}
	for _, c := range convs {
		r.convs[c.ID] = c
	}
	return r
}

func cloneConv(c *entity.Conversation) *entity.Conversation {
	dup := *c
	dup.Participants = append([]string(nil), c.Participants...)
	dup.UnreadCount = make(map[string]int, len(c.UnreadCount))
	for k, v := range c.UnreadCount {
		dup.UnreadCount[k] = v
	}
	return &dup
}

func (r *fakeConvRepo) Create(ctx context.Context, conv *entity.Conversation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.convs[conv.ID] = cloneConv(conv)
	return nil
}

func (r *fakeConvRepo) GetByID(ctx context.Context, id string) (*entity.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	conv, ok := r.convs[id]
	if !ok {
		return nil, errors.NotFound("Conversation", nil)
	}
	return cloneConv(conv), nil
}

func (r *fakeConvRepo) ListByUserID(ctx context.Context, userID string, limit, offset int) ([]*entity.Conversation, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entity.Conversation
	for _, c := range r.convs {
		if c.HasParticipant(userID) {
			out = append(out, cloneConv(c))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, int64(len(out)), nil
}

func (r *fakeConvRepo) FindDirect(ctx context.Context, userA, userB string) (*entity.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.convs {
		if !c.IsGroup && len(c.Participants) == 2 && c.HasParticipant(userA) && c.HasParticipant(userB) {
			return cloneConv(c), nil
		}
	}
	return nil, errors.NotFound("Conversation", nil)
}

func (r *fakeConvRepo) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.convs, id)
	return nil
}

func (r *fakeConvRepo) SetLastMessage(ctx context.Context, convID, messageID, preview string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	conv, ok := r.convs[convID]
	if !ok {
		return errors.NotFound("Conversation", nil)
	}
	conv.LastMessageID = messageID
	conv.LastMessage = preview
	conv.LastMessageAt = at
	return nil
}

func (r *fakeConvRepo) IncrementUnread(ctx context.Context, convID string, recipientIDs []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	conv, ok := r.convs[convID]
	if !ok {
		return errors.NotFound("Conversation", nil)
	}
	if conv.UnreadCount == nil {
		conv.UnreadCount = make(map[string]int)
	}
	for _, id := range recipientIDs {
		conv.UnreadCount[id]++
	}
	return nil
}

func (r *fakeConvRepo) DecrementUnread(ctx context.Context, convID, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	conv, ok := r.convs[convID]
	if !ok {
		return errors.NotFound("Conversation", nil)
	}
	if conv.UnreadCount[userID] > 0 {
		conv.UnreadCount[userID]--
	}
	return nil
}

func (r *fakeConvRepo) ResetUnread(ctx context.Context, convID, userID string, count int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	conv, ok := r.convs[convID]
	if !ok {
		return errors.NotFound("Conversation", nil)
	}
	if conv.UnreadCount == nil {
		conv.UnreadCount = make(map[string]int)
	}
	conv.UnreadCount[userID] = count
	return nil
}

func (r *fakeConvRepo) Mutate(ctx context.Context, convID string, fn func(*entity.Conversation) error) (*entity.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	conv, ok := r.convs[convID]
	if !ok {
		return nil, errors.NotFound("Conversation", nil)
	}
	working := cloneConv(conv)
	if err := fn(working); err != nil {
		return nil, err
	}
	working.UpdatedAt = time.Now()
	r.convs[convID] = working
	return cloneConv(working), nil
}

type fakeMsgRepo struct {
	mu       sync.Mutex
	messages map[string][]*entity.Message // keyed by conversation ID
}

func newFakeMsgRepo() *fakeMsgRepo {
	return &fakeMsgRepo{messages: make(map[string][]*entity.Message)}
}

func (r *fakeMsgRepo) Create(ctx context.Context, msg *entity.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	dup := *msg
	r.messages[msg.ConversationID] = append(r.messages[msg.ConversationID], &dup)
	return nil
}

func (r *fakeMsgRepo) find(convID, messageID string) *entity.Message {
	for _, m := range r.messages[convID] {
		if m.ID == messageID {
			return m
		}
	}
	return nil
}

func (r *fakeMsgRepo) GetByID(ctx context.Context, convID, messageID string) (*entity.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m := r.find(convID, messageID); m != nil {
		dup := *m
		return &dup, nil
	}
	return nil, errors.NotFound("Message", nil)
}

func (r *fakeMsgRepo) ListByConversation(ctx context.Context, convID string, limit, offset int) ([]*entity.Message, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	msgs := r.messages[convID]
	out := make([]*entity.Message, 0, len(msgs))
	for _, m := range msgs {
		dup := *m
		out = append(out, &dup)
	}
	return out, int64(len(msgs)), nil
}

func (r *fakeMsgRepo) AppendDelivered(ctx context.Context, convID, messageID, userID string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m := r.find(convID, messageID)
	if m == nil {
		return false, errors.NotFound("Message", nil)
	}
	if m.DeliveredBy(userID) {
		return false, nil
	}
	m.DeliveredTo = append(m.DeliveredTo, entity.Receipt{UserID: userID, At: at})
	return true, nil
}

func (r *fakeMsgRepo) AppendRead(ctx context.Context, convID, messageID, userID string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m := r.find(convID, messageID)
	if m == nil {
		return false, errors.NotFound("Message", nil)
	}
	if m.WasReadBy(userID) {
		return false, nil
	}
	m.ReadBy = append(m.ReadBy, entity.Receipt{UserID: userID, At: at})
	return true, nil
}

func (r *fakeMsgRepo) MarkAllRead(ctx context.Context, convID, userID string, cutoff, at time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	marked := 0
	for _, m := range r.messages[convID] {
		if m.CreatedAt.After(cutoff) || m.SenderID == userID || m.WasReadBy(userID) {
			continue
		}
		m.ReadBy = append(m.ReadBy, entity.Receipt{UserID: userID, At: at})
		marked++
	}
	return marked, nil
}

func (r *fakeMsgRepo) CountUnreadAfter(ctx context.Context, convID, userID string, cutoff time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, m := range r.messages[convID] {
		if m.CreatedAt.After(cutoff) && m.SenderID != userID && !m.WasReadBy(userID) {
			count++
		}
	}
	return count, nil
}

type fakeUserRepo struct {
	mu    sync.Mutex
	users map[string]*entity.User
}

func newFakeUserRepo(ids ...string) *fakeUserRepo {
	r := &fakeUserRepo{users: make(map[string]*entity.User)}
	for _, id := range ids {
		r.users[id] = &entity.User{ID: id, Username: id, Email: id + "@example.com"}
	}
	return r
}

func (r *fakeUserRepo) Create(ctx context.Context, user *entity.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[user.ID] = user
	return nil
}

func (r *fakeUserRepo) GetByID(ctx context.Context, id string) (*entity.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, errors.NotFound("User", nil)
	}
	dup := *u
	return &dup, nil
}

func (r *fakeUserRepo) GetByEmail(ctx context.Context, email string) (*entity.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == email {
			dup := *u
			return &dup, nil
		}
	}
	return nil, errors.NotFound("User", nil)
}

func (r *fakeUserRepo) Update(ctx context.Context, user *entity.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[user.ID] = user
	return nil
}

func (r *fakeUserRepo) SearchByUsername(ctx context.Context, prefix string, limit int) ([]*entity.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entity.User
	for _, u := range r.users {
		if len(u.Username) >= len(prefix) && u.Username[:len(prefix)] == prefix {
			dup := *u
			out = append(out, &dup)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *fakeUserRepo) SetPresence(ctx context.Context, userID string, online bool, lastSeen time.Time) error {
	return nil
}

// fakeHub records every call in arrival order so tests can assert both
// targeting and sequencing.

type hubCall struct {
	Op      string // "room", "user", "join", "remove", "close"
	ConvID  string
	UserID  string
	Exclude string
	Event   ws.ServerEvent
}

type fakeHub struct {
	mu     sync.Mutex
	calls  []hubCall
	online map[string]bool
}

func newFakeHub() *fakeHub {
	return &fakeHub{online: make(map[string]bool)}
}

func (h *fakeHub) record(c hubCall) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = append(h.calls, c)
}

func (h *fakeHub) BroadcastToRoom(convID string, event ws.ServerEvent, excludeUserID string) {
	h.record(hubCall{Op: "room", ConvID: convID, Exclude: excludeUserID, Event: event})
}

func (h *fakeHub) BroadcastToUser(userID string, event ws.ServerEvent) {
	h.record(hubCall{Op: "user", UserID: userID, Event: event})
}

func (h *fakeHub) JoinUserToRoom(userID, convID string) {
	h.record(hubCall{Op: "join", ConvID: convID, UserID: userID})
}

func (h *fakeHub) RemoveUserFromRoom(userID, convID string) {
	h.record(hubCall{Op: "remove", ConvID: convID, UserID: userID})
}

func (h *fakeHub) CloseRoom(convID string) {
	h.record(hubCall{Op: "close", ConvID: convID})
}

func (h *fakeHub) IsOnline(userID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.online[userID]
}

func (h *fakeHub) callsOf(op string) []hubCall {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []hubCall
	for _, c := range h.calls {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

func (h *fakeHub) eventTypes() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []string
	for _, c := range h.calls {
		if c.Op == "room" || c.Op == "user" {
			out = append(out, c.Event.Type)
		}
	}
	return out
}

type fakeLimiter struct {
	denied map[string]bool
}

func (l *fakeLimiter) Allow(userID, action string) (bool, time.Duration) {
	if l.denied[action] {
		return false, time.Minute
	}
	return true, 0
}

type fakeTracker struct {
	mu      sync.Mutex
	set     []string
	cleared []string
	typers  map[string][]string
}

func (t *fakeTracker) Set(conversationID, userID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.set = append(t.set, conversationID+":"+userID)
}

func (t *fakeTracker) Clear(conversationID, userID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cleared = append(t.cleared, conversationID+":"+userID)
}

func (t *fakeTracker) ClearUser(userID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cleared = append(t.cleared, "*:"+userID)
}

func (t *fakeTracker) TypingUsers(conversationID string) []string {
	return t.typers[conversationID]
}

// fakeImageStore treats any URL under its prefix as bucket-managed and
// records deletions.
type fakeImageStore struct {
	prefix  string
	deleted []string
}

func newFakeImageStore() *fakeImageStore {
	return &fakeImageStore{prefix: "https://storage.googleapis.com/relay-test/"}
}

func (s *fakeImageStore) IsManagedURL(fileURL string) bool {
	return strings.HasPrefix(fileURL, s.prefix)
}

func (s *fakeImageStore) DeleteObject(ctx context.Context, fileURL string) error {
	s.deleted = append(s.deleted, fileURL)
	return nil
}
