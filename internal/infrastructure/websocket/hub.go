package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"chatrelay/pkg/logger"
)

// Presence is the persistence hook for online/offline transitions. The user
// repository implements it; the hub never touches the store directly.
type Presence interface {
	SetPresence(ctx context.Context, userID string, online bool, lastSeen time.Time) error
}

// Hub owns every live connection: the identity index (userID to connection
// set, multi-device), the room index (conversationID to subscribed
// connections), and the presence transitions at 0<->1 connections per
// identity. All fan-out goes through here.
type Hub struct {
	mu       sync.RWMutex
	byUser   map[string]map[*Client]struct{}
	rooms    map[string]map[*Client]struct{}
	presence Presence
}

func NewHub(presence Presence) *Hub {
	return &Hub{
		byUser:   make(map[string]map[*Client]struct{}),
		rooms:    make(map[string]map[*Client]struct{}),
		presence: presence,
	}
}

// Register admits an authenticated connection. The first connection for an
// identity marks it online and announces it to everyone else connected.
func (h *Hub) Register(ctx context.Context, client *Client) {
	h.mu.Lock()
	first := len(h.byUser[client.UserID]) == 0
	if h.byUser[client.UserID] == nil {
		h.byUser[client.UserID] = make(map[*Client]struct{})
	}
	h.byUser[client.UserID][client] = struct{}{}
	h.mu.Unlock()

	if !first {
		return
	}

	if err := h.presence.SetPresence(ctx, client.UserID, true, time.Now()); err != nil {
		logger.Warn("Failed to persist online presence for user %s: %v", client.UserID, err)
	}

	h.BroadcastAll(NewServerEvent(EventUserOnline, PresenceEvent{
		UserID:   client.UserID,
		IsOnline: true,
	}), client.UserID)
}

// Unregister drops a connection, pulls it from every room, and, when it was
// the identity's last connection, marks the identity offline with a lastSeen
// stamp.
func (h *Hub) Unregister(ctx context.Context, client *Client) {
	h.mu.Lock()
	set, ok := h.byUser[client.UserID]
	if !ok {
		h.mu.Unlock()
		return
	}
	if _, ok := set[client]; !ok {
		h.mu.Unlock()
		return
	}

	delete(set, client)
	close(client.Send)
	for convID, members := range h.rooms {
		if _, ok := members[client]; ok {
			delete(members, client)
			if len(members) == 0 {
				delete(h.rooms, convID)
			}
		}
	}

	last := len(set) == 0
	if last {
		delete(h.byUser, client.UserID)
	}
	h.mu.Unlock()

	if !last {
		return
	}

	lastSeen := time.Now()
	if err := h.presence.SetPresence(ctx, client.UserID, false, lastSeen); err != nil {
		logger.Warn("Failed to persist offline presence for user %s: %v", client.UserID, err)
	}

	h.BroadcastAll(NewServerEvent(EventUserOffline, PresenceEvent{
		UserID:   client.UserID,
		IsOnline: false,
		LastSeen: lastSeen.UTC().Format(time.RFC3339),
	}), client.UserID)
}

// JoinRoom subscribes one connection to a conversation's events. Callers
// must have verified the connection's identity is a participant.
func (h *Hub) JoinRoom(client *Client, convID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.byUser[client.UserID][client]; !ok {
		return
	}
	if h.rooms[convID] == nil {
		h.rooms[convID] = make(map[*Client]struct{})
	}
	h.rooms[convID][client] = struct{}{}
}

// LeaveRoom unsubscribes one connection from a conversation's events.
func (h *Hub) LeaveRoom(client *Client, convID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if members, ok := h.rooms[convID]; ok {
		delete(members, client)
		if len(members) == 0 {
			delete(h.rooms, convID)
		}
	}
}

// JoinUserToRoom subscribes every live connection of an identity to a room.
// Used when a group mutation adds a participant who is already connected.
func (h *Hub) JoinUserToRoom(userID, convID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.byUser[userID] {
		if h.rooms[convID] == nil {
			h.rooms[convID] = make(map[*Client]struct{})
		}
		h.rooms[convID][client] = struct{}{}
	}
}

// RemoveUserFromRoom pulls every live connection of an identity out of a
// room. Used when a group mutation removes a participant.
func (h *Hub) RemoveUserFromRoom(userID, convID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	members, ok := h.rooms[convID]
	if !ok {
		return
	}
	for client := range h.byUser[userID] {
		delete(members, client)
	}
	if len(members) == 0 {
		delete(h.rooms, convID)
	}
}

// CloseRoom drops the whole room, e.g. when a conversation is deleted.
func (h *Hub) CloseRoom(convID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.rooms, convID)
}

// IsOnline reports whether the identity has at least one live connection.
func (h *Hub) IsOnline(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.byUser[userID]) > 0
}

// BroadcastToRoom fans an event out to every connection subscribed to the
// conversation, optionally excluding all of one identity's connections.
// Delivery is fire-and-forget per recipient; one stalled connection never
// blocks the rest.
func (h *Hub) BroadcastToRoom(convID string, event ServerEvent, excludeUserID string) {
	payload, err := json.Marshal(event)
	if err != nil {
		logger.Error("Failed to marshal %s event for room %s: %v", event.Type, convID, err)
		return
	}

	h.mu.RLock()
	stalled := h.send(h.roomTargets(convID, excludeUserID), payload)
	h.mu.RUnlock()

	h.dropStalled(stalled)
}

// BroadcastToUser sends an event to every live connection of one identity.
func (h *Hub) BroadcastToUser(userID string, event ServerEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		logger.Error("Failed to marshal %s event for user %s: %v", event.Type, userID, err)
		return
	}

	h.mu.RLock()
	targets := make([]*Client, 0, len(h.byUser[userID]))
	for client := range h.byUser[userID] {
		targets = append(targets, client)
	}
	stalled := h.send(targets, payload)
	h.mu.RUnlock()

	h.dropStalled(stalled)
}

// BroadcastAll sends an event to every connected client, optionally
// excluding one identity. Used for presence announcements.
func (h *Hub) BroadcastAll(event ServerEvent, excludeUserID string) {
	payload, err := json.Marshal(event)
	if err != nil {
		logger.Error("Failed to marshal %s event: %v", event.Type, err)
		return
	}

	h.mu.RLock()
	var targets []*Client
	for userID, set := range h.byUser {
		if userID == excludeUserID {
			continue
		}
		for client := range set {
			targets = append(targets, client)
		}
	}
	stalled := h.send(targets, payload)
	h.mu.RUnlock()

	h.dropStalled(stalled)
}

func (h *Hub) SendToClient(client *Client, event ServerEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		logger.Error("Failed to marshal %s event for client of user %s: %v", event.Type, client.UserID, err)
		return
	}

	h.mu.RLock()
	stalled := h.send([]*Client{client}, payload)
	h.mu.RUnlock()

	h.dropStalled(stalled)
}

func (h *Hub) SendError(client *Client, code, message string) {
	h.SendToClient(client, NewServerEvent(EventError, ErrorEvent{Code: code, Message: message}))
}

// roomTargets must be called with the lock held.
func (h *Hub) roomTargets(convID, excludeUserID string) []*Client {
	targets := make([]*Client, 0, len(h.rooms[convID]))
	for client := range h.rooms[convID] {
		if excludeUserID != "" && client.UserID == excludeUserID {
			continue
		}
		targets = append(targets, client)
	}
	return targets
}

// send must be called with at least the read lock held, which keeps the
// non-blocking sends from racing the close in Unregister. Returns any
// clients whose buffers were full.
func (h *Hub) send(targets []*Client, payload []byte) []*Client {
	var stalled []*Client
	for _, client := range targets {
		if _, ok := h.byUser[client.UserID][client]; !ok {
			continue
		}
		select {
		case client.Send <- payload:
		default:
			stalled = append(stalled, client)
		}
	}
	return stalled
}

// dropStalled disconnects clients that could not keep up with the fan-out.
func (h *Hub) dropStalled(stalled []*Client) {
	for _, client := range stalled {
		logger.Warn("Dropping slow connection for user %s", client.UserID)
		h.Unregister(context.Background(), client)
	}
}
