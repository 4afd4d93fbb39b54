package models

type EventType string

// Events pushed to live channels.
const (
	EventNewMessage           EventType = "newMessage"
	EventNewNotification      EventType = "newNotification"
	EventPendingNotifications EventType = "pendingNotifications"
	EventMessagesSeen         EventType = "messagesSeen"
	EventUserOnline           EventType = "userOnline"
	EventUserOffline          EventType = "userOffline"
	EventOnlineUsers          EventType = "getOnlineUsers"
	EventTyping               EventType = "typing"
	EventError                EventType = "error"
)

// Events accepted from live channels, in addition to typing and getOnlineUsers.
const (
	EventJoinConversation  EventType = "joinConversation"
	EventLeaveConversation EventType = "leaveConversation"
)

// Inbound reports whether clients may send events of this type.
func (t EventType) Inbound() bool {
	switch t {
	case EventTyping, EventOnlineUsers, EventJoinConversation, EventLeaveConversation:
		return true
	}
	return false
}

// Event is the JSON frame written to a live channel.
type Event struct {
	Type           EventType      `json:"type"`
	Message        *Message       `json:"message,omitempty"`
	Notification   *Notification  `json:"notification,omitempty"`
	Notifications  []Notification `json:"notifications,omitempty"`
	UnreadCount    *int64         `json:"unread_count,omitempty"`
	UserID         string         `json:"user_id,omitempty"`
	OnlineUsers    []string       `json:"online_users,omitempty"`
	ConversationID string         `json:"conversation_id,omitempty"`
	IsTyping       *bool          `json:"is_typing,omitempty"`
	Count          int64          `json:"count,omitempty"`
	Error          string         `json:"error,omitempty"`
}

// ClientEvent is a JSON frame read from a live channel.
type ClientEvent struct {
	Type           EventType `json:"type"`
	ConversationID string    `json:"conversation_id"`
	IsTyping       bool      `json:"is_typing"`
}
