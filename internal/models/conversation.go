package models

import "time"

// LastMessage is the denormalized snapshot of the newest message in a
// conversation, used to render conversation lists without a join.
type LastMessage struct {
	Text     string    `db:"last_text" json:"text,omitempty"`
	Image    string    `db:"last_image" json:"image,omitempty"`
	SenderID string    `db:"last_sender_id" json:"sender_id,omitempty"`
	Seen     bool      `db:"last_seen" json:"seen"`
	At       time.Time `db:"last_at" json:"at"`
}

// Conversation is the private thread between exactly two users. The pair is
// stored in canonical order so that (a, b) and (b, a) map to one row.
type Conversation struct {
	ID              string `db:"id" json:"id"`
	ParticipantLow  string `db:"participant_low" json:"-"`
	ParticipantHigh string `db:"participant_high" json:"-"`
	LastMessage     `json:"last_message"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}

// Participants returns both user ids in canonical order.
func (c Conversation) Participants() []string {
	return []string{c.ParticipantLow, c.ParticipantHigh}
}

// HasParticipant reports whether userID is one of the two participants.
func (c Conversation) HasParticipant(userID string) bool {
	return userID != "" && (c.ParticipantLow == userID || c.ParticipantHigh == userID)
}

// OtherParticipant returns the counterpart of userID.
func (c Conversation) OtherParticipant(userID string) string {
	if c.ParticipantLow == userID {
		return c.ParticipantHigh
	}
	return c.ParticipantLow
}

// ConversationSummary is a conversation as seen by one of its participants.
type ConversationSummary struct {
	Conversation
	Participant UserSummary `db:"-" json:"participant"`
	UnreadCount int64       `db:"unread_count" json:"unread_count"`
}
