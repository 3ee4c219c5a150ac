package entity

import "time"

type Conversation struct {
	ID            string         `json:"id" firestore:"id"`
	Participants  []string       `json:"participants" firestore:"participants"`
	IsGroup       bool           `json:"is_group" firestore:"isGroup"`
	Name          string         `json:"name,omitempty" firestore:"name,omitempty"`
	AdminID       string         `json:"admin_id,omitempty" firestore:"adminId,omitempty"`
	LastMessageID string         `json:"last_message_id,omitempty" firestore:"lastMessageId,omitempty"`
	LastMessage   string         `json:"last_message,omitempty" firestore:"lastMessage,omitempty"`
	LastMessageAt time.Time      `json:"last_message_at" firestore:"lastMessageAt"`
	UnreadCount   map[string]int `json:"unread_count" firestore:"unreadCount"` // Map of userID to unread count
	CreatedAt     time.Time      `json:"created_at" firestore:"createdAt"`
	UpdatedAt     time.Time      `json:"updated_at" firestore:"updatedAt"`
}

// HasParticipant reports whether userID is in the persisted participant list.
func (c *Conversation) HasParticipant(userID string) bool {
	for _, p := range c.Participants {
		if p == userID {
			return true
		}
	}
	return false
}
