package models

import "time"

// Message is one entry in a conversation. Seq breaks ties between messages
// written within the same clock tick.
type Message struct {
	ID             string    `db:"id" json:"id"`
	Seq            int64     `db:"seq" json:"seq"`
	ConversationID string    `db:"conversation_id" json:"conversation_id"`
	SenderID       string    `db:"sender_id" json:"sender_id"`
	Text           string    `db:"text" json:"text,omitempty"`
	ImageURL       string    `db:"image_url" json:"image_url,omitempty"`
	Seen           bool      `db:"seen" json:"seen"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	ExpiresAt      time.Time `db:"expires_at" json:"-"`
}

// HasContent reports whether the message carries text or an image.
func (m Message) HasContent() bool {
	return m.Text != "" || m.ImageURL != ""
}
