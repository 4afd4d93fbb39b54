package models

import (
	"encoding/json"
	"fmt"
	"time"
)

type NotificationType string

const (
	NotificationLike                    NotificationType = "like"
	NotificationComment                 NotificationType = "comment"
	NotificationConnectionAccepted      NotificationType = "connectionAccepted"
	NotificationNewCase                 NotificationType = "new_case"
	NotificationCaseApplication         NotificationType = "case_application"
	NotificationCaseApplicationAccepted NotificationType = "case_application_accepted"
	NotificationCaseApplicationRejected NotificationType = "case_application_rejected"
	NotificationCaseStatusUpdate        NotificationType = "case_status_update"
)

// NotificationTypes lists every accepted type.
var NotificationTypes = []NotificationType{
	NotificationLike,
	NotificationComment,
	NotificationConnectionAccepted,
	NotificationNewCase,
	NotificationCaseApplication,
	NotificationCaseApplicationAccepted,
	NotificationCaseApplicationRejected,
	NotificationCaseStatusUpdate,
}

func (t NotificationType) Valid() bool {
	for _, known := range NotificationTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Notification is a persisted per-recipient event. Read and Delivered only
// ever move from false to true.
type Notification struct {
	ID            string           `json:"id"`
	RecipientID   string           `json:"recipient_id"`
	Type          NotificationType `json:"type"`
	Message       string           `json:"message"`
	RelatedUserID *string          `json:"related_user_id,omitempty"`
	RelatedPostID *string          `json:"related_post_id,omitempty"`
	RelatedCaseID *string          `json:"related_case_id,omitempty"`
	RelatedUser   *UserSummary     `json:"related_user,omitempty"`
	Payload       Payload          `json:"payload,omitempty"`
	Read          bool             `json:"read"`
	ReadAt        *time.Time       `json:"read_at,omitempty"`
	Delivered     bool             `json:"delivered"`
	DeliveredAt   *time.Time       `json:"delivered_at,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
}

// NotificationPage is one page of a recipient's notifications, newest first.
type NotificationPage struct {
	Notifications []Notification `json:"notifications"`
	Total         int64          `json:"total"`
	Page          int            `json:"page"`
	Limit         int            `json:"limit"`
	HasMore       bool           `json:"has_more"`
	UnreadCount   int64          `json:"unread_count"`
}

// Payload is the type-specific body of a notification. Each notification
// type has exactly one payload shape.
type Payload interface {
	NotificationType() NotificationType
}

type LikePayload struct {
	PostID string `json:"post_id"`
}

type CommentPayload struct {
	PostID    string `json:"post_id"`
	CommentID string `json:"comment_id,omitempty"`
	Preview   string `json:"preview,omitempty"`
}

type ConnectionAcceptedPayload struct {
	ConnectionID string `json:"connection_id,omitempty"`
}

type NewCasePayload struct {
	CaseID    string `json:"case_id"`
	CaseTitle string `json:"case_title"`
	Action    string `json:"action"`
}

type CaseApplicationPayload struct {
	CaseID        string `json:"case_id"`
	CaseTitle     string `json:"case_title"`
	ApplicationID string `json:"application_id,omitempty"`
	Action        string `json:"action"`
}

type ApplicationDecisionPayload struct {
	CaseID        string `json:"case_id"`
	CaseTitle     string `json:"case_title"`
	ApplicationID string `json:"application_id,omitempty"`
	Accepted      bool   `json:"accepted"`
	Action        string `json:"action"`
}

type CaseStatusPayload struct {
	CaseID    string `json:"case_id"`
	CaseTitle string `json:"case_title"`
	Status    string `json:"status"`
}

func (LikePayload) NotificationType() NotificationType { return NotificationLike }

func (CommentPayload) NotificationType() NotificationType { return NotificationComment }

func (ConnectionAcceptedPayload) NotificationType() NotificationType {
	return NotificationConnectionAccepted
}

func (NewCasePayload) NotificationType() NotificationType { return NotificationNewCase }

func (CaseApplicationPayload) NotificationType() NotificationType {
	return NotificationCaseApplication
}

func (p ApplicationDecisionPayload) NotificationType() NotificationType {
	if p.Accepted {
		return NotificationCaseApplicationAccepted
	}
	return NotificationCaseApplicationRejected
}

func (CaseStatusPayload) NotificationType() NotificationType { return NotificationCaseStatusUpdate }

// ValidatePayload checks that p is the payload shape of t. A nil payload is
// allowed for every type.
func ValidatePayload(t NotificationType, p Payload) error {
	if p == nil {
		return nil
	}
	if got := p.NotificationType(); got != t {
		return fmt.Errorf("payload of type %q does not match notification type %q", got, t)
	}
	return nil
}

// DecodePayload restores the payload of a stored notification of type t.
func DecodePayload(t NotificationType, raw []byte) (Payload, error) {
	if len(raw) == 0 || string(raw) == "null" || string(raw) == "{}" {
		return nil, nil
	}

	var (
		p   Payload
		err error
	)
	switch t {
	case NotificationLike:
		var v LikePayload
		err = json.Unmarshal(raw, &v)
		p = v
	case NotificationComment:
		var v CommentPayload
		err = json.Unmarshal(raw, &v)
		p = v
	case NotificationConnectionAccepted:
		var v ConnectionAcceptedPayload
		err = json.Unmarshal(raw, &v)
		p = v
	case NotificationNewCase:
		var v NewCasePayload
		err = json.Unmarshal(raw, &v)
		p = v
	case NotificationCaseApplication:
		var v CaseApplicationPayload
		err = json.Unmarshal(raw, &v)
		p = v
	case NotificationCaseApplicationAccepted, NotificationCaseApplicationRejected:
		var v ApplicationDecisionPayload
		err = json.Unmarshal(raw, &v)
		v.Accepted = t == NotificationCaseApplicationAccepted
		p = v
	case NotificationCaseStatusUpdate:
		var v CaseStatusPayload
		err = json.Unmarshal(raw, &v)
		p = v
	default:
		return nil, fmt.Errorf("unknown notification type %q", t)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", t, err)
	}
	return p, nil
}

// EncodePayload is the stored form of p.
func EncodePayload(p Payload) ([]byte, error) {
	if p == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(p)
}
