package entity

import "time"

const (
	MessageTypeText  = "text"
	MessageTypeImage = "image"
)

// Receipt records one user's acknowledgement of a message.
type Receipt struct {
	UserID string    `json:"user_id" firestore:"userId"`
	At     time.Time `json:"at" firestore:"at"`
}

type Message struct {
	ID             string    `json:"id" firestore:"id"`
	ConversationID string    `json:"conversation_id" firestore:"conversationId"`
	SenderID       string    `json:"sender_id" firestore:"senderId"`
	Type           string    `json:"type" firestore:"type"` // "text" or "image"
	Content        string    `json:"content,omitempty" firestore:"content,omitempty"`
	ImageURL       string    `json:"image_url,omitempty" firestore:"imageUrl,omitempty"`
	DeliveredTo    []Receipt `json:"delivered_to" firestore:"deliveredTo"`
	ReadBy         []Receipt `json:"read_by" firestore:"readBy"`
	CreatedAt      time.Time `json:"created_at" firestore:"createdAt"`
}

// DeliveredBy reports whether userID already acknowledged delivery.
func (m *Message) DeliveredBy(userID string) bool {
	for _, r := range m.DeliveredTo {
		if r.UserID == userID {
			return true
		}
	}
	return false
}

// WasReadBy reports whether userID already acknowledged reading.
func (m *Message) WasReadBy(userID string) bool {
	for _, r := range m.ReadBy {
		if r.UserID == userID {
			return true
		}
	}
	return false
}
