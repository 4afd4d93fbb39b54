// Package messaging implements private two-party conversations: sending,
// history with seen tracking, conversation lists and participation checks.
package messaging

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/rajyaabhishek/LawX-sub001/internal/apperrors"
	"github.com/rajyaabhishek/LawX-sub001/internal/logger"
	"github.com/rajyaabhishek/LawX-sub001/internal/media"
	"github.com/rajyaabhishek/LawX-sub001/internal/models"
	"github.com/rajyaabhishek/LawX-sub001/internal/observability"
	"github.com/rajyaabhishek/LawX-sub001/internal/repositories"
)

type UserDirectory interface {
	Exists(ctx context.Context, id string) (bool, error)
	BulkUsers(ctx context.Context, ids []string) (map[string]models.UserSummary, error)
}

type ImageStore interface {
	SaveImage(ctx context.Context, uploaderID, recipientID string, img media.Image) (string, error)
	Delete(ctx context.Context, url string) error
}

// Outbox receives the live pushes that follow a committed write.
type Outbox interface {
	PushMessage(recipientID string, msg models.Message)
	PushMessagesSeen(viewerID, conversationID string, count int64)
}

// SendInput is the body of a send request. Image is a base64 data URI.
type SendInput struct {
	Text  string `json:"text"`
	Image string `json:"image"`
}

type Service struct {
	conversations repositories.ConversationRepository
	messages      repositories.MessageRepository
	users         UserDirectory
	images        ImageStore
	outbox        Outbox
	maxImageBytes int
}

func NewService(
	conversations repositories.ConversationRepository,
	messages repositories.MessageRepository,
	users UserDirectory,
	images ImageStore,
	outbox Outbox,
	maxImageBytes int,
) *Service {
	return &Service{
		conversations: conversations,
		messages:      messages,
		users:         users,
		images:        images,
		outbox:        outbox,
		maxImageBytes: maxImageBytes,
	}
}

// SendMessage stores a message from senderID to recipientID, creating the
// conversation on first contact, and queues the live push. All validation
// happens before anything is written.
func (s *Service) SendMessage(ctx context.Context, senderID, recipientID string, in SendInput) (models.Message, error) {
	text := strings.TrimSpace(in.Text)
	switch {
	case senderID == "":
		return models.Message{}, apperrors.Unauthorized("unauthorized")
	case recipientID == "":
		return models.Message{}, apperrors.InvalidArg("recipient is required")
	case senderID == recipientID:
		return models.Message{}, apperrors.InvalidArg("cannot send a message to yourself")
	case text == "" && in.Image == "":
		return models.Message{}, apperrors.InvalidArg("message text or image is required")
	}

	var img *media.Image
	if in.Image != "" {
		decoded, err := media.DecodeDataURI(in.Image, s.maxImageBytes)
		if err != nil {
			return models.Message{}, apperrors.InvalidArg(err.Error())
		}
		img = &decoded
	}

	exists, err := s.users.Exists(ctx, recipientID)
	if err != nil {
		return models.Message{}, apperrors.Internal("failed to look up recipient", err)
	}
	if !exists {
		return models.Message{}, apperrors.NotFound("recipient not found")
	}

	var imageURL string
	if img != nil {
		imageURL, err = s.images.SaveImage(ctx, senderID, recipientID, *img)
		if err != nil {
			return models.Message{}, apperrors.Internal("failed to store image", err)
		}
	}

	msg, err := s.store(ctx, senderID, recipientID, text, imageURL)
	if err != nil {
		if imageURL != "" {
			if delErr := s.images.Delete(ctx, imageURL); delErr != nil {
				logger.Warn().Err(delErr).Str("image_url", imageURL).Msg("failed to remove orphaned image")
			}
		}
		return models.Message{}, err
	}

	content := "text"
	switch {
	case imageURL != "" && text != "":
		content = "text_image"
	case imageURL != "":
		content = "image"
	}
	observability.IncMessageSent(content)

	s.outbox.PushMessage(recipientID, msg)
	s.publish(ctx, observability.RoutingMessageCreated, "message_created", map[string]any{
		"message_id":      msg.ID,
		"conversation_id": msg.ConversationID,
		"sender_id":       senderID,
		"recipient_id":    recipientID,
		"has_image":       imageURL != "",
	})
	return msg, nil
}

func (s *Service) store(ctx context.Context, senderID, recipientID, text, imageURL string) (models.Message, error) {
	conv, err := s.conversations.GetOrCreate(ctx, senderID, recipientID)
	if err != nil {
		return models.Message{}, apperrors.Internal("failed to send message", err)
	}
	msg, err := s.messages.Append(ctx, conv.ID, senderID, text, imageURL)
	if err != nil {
		if errors.Is(err, repositories.ErrEmptyMessage) {
			return models.Message{}, apperrors.InvalidArg("message text or image is required")
		}
		return models.Message{}, apperrors.Internal("failed to send message", err)
	}
	return msg, nil
}

// History returns the conversation between viewerID and otherUserID in
// order. Reading it marks the counterpart's messages as seen; a
// conversation that was never started yields an empty history.
func (s *Service) History(ctx context.Context, viewerID, otherUserID string) ([]models.Message, error) {
	if otherUserID == "" {
		return nil, apperrors.InvalidArg("user id is required")
	}
	if viewerID == otherUserID {
		return []models.Message{}, nil
	}

	conv, err := s.conversations.Find(ctx, viewerID, otherUserID)
	if errors.Is(err, repositories.ErrConversationNotFound) {
		return []models.Message{}, nil
	}
	if err != nil {
		return nil, apperrors.Internal("failed to load messages", err)
	}

	if _, err := s.markSeen(ctx, viewerID, conv.ID); err != nil {
		return nil, err
	}

	msgs, err := s.messages.ListByConversation(ctx, conv.ID)
	if err != nil {
		return nil, apperrors.Internal("failed to load messages", err)
	}
	if msgs == nil {
		msgs = []models.Message{}
	}
	return msgs, nil
}

// MarkSeen flips the counterpart's unseen messages in a conversation the
// viewer belongs to. Foreign and unknown conversations are not found.
func (s *Service) MarkSeen(ctx context.Context, viewerID, conversationID string) (int64, error) {
	ok, err := s.IsParticipant(ctx, conversationID, viewerID)
	if err != nil {
		return 0, apperrors.Internal("failed to mark messages seen", err)
	}
	if !ok {
		return 0, apperrors.NotFound("conversation not found")
	}
	return s.markSeen(ctx, viewerID, conversationID)
}

func (s *Service) markSeen(ctx context.Context, viewerID, conversationID string) (int64, error) {
	count, err := s.messages.MarkSeenFromOther(ctx, conversationID, viewerID)
	if err != nil {
		return 0, apperrors.Internal("failed to mark messages seen", err)
	}
	if count > 0 {
		s.outbox.PushMessagesSeen(viewerID, conversationID, count)
		s.publish(ctx, observability.RoutingMessagesSeen, "messages_seen", map[string]any{
			"conversation_id": conversationID,
			"viewer_id":       viewerID,
			"count":           count,
		})
	}
	return count, nil
}

// ListConversations returns the user's conversations, newest activity
// first, each with the counterpart's profile attached. A directory failure
// degrades to bare ids.
func (s *Service) ListConversations(ctx context.Context, userID string) ([]models.ConversationSummary, error) {
	list, err := s.conversations.ListForUser(ctx, userID)
	if err != nil {
		return nil, apperrors.Internal("failed to load conversations", err)
	}
	if len(list) == 0 {
		return []models.ConversationSummary{}, nil
	}

	ids := make([]string, 0, len(list))
	for _, c := range list {
		ids = append(ids, c.OtherParticipant(userID))
	}
	users, err := s.users.BulkUsers(ctx, ids)
	if err != nil {
		logger.Warn().Err(err).Str("user_id", userID).Msg("conversation participants lookup failed")
	}

	for i := range list {
		other := list[i].OtherParticipant(userID)
		if u, ok := users[other]; ok {
			list[i].Participant = u
		} else {
			list[i].Participant = models.UserSummary{ID: other}
		}
	}
	return list, nil
}

// IsParticipant reports whether userID belongs to the conversation. Ids
// that are not UUIDs cannot name a conversation.
func (s *Service) IsParticipant(ctx context.Context, conversationID, userID string) (bool, error) {
	if userID == "" {
		return false, nil
	}
	if _, err := uuid.Parse(conversationID); err != nil {
		return false, nil
	}
	return s.conversations.IsParticipant(ctx, conversationID, userID)
}

func (s *Service) publish(ctx context.Context, routingKey, name string, payload map[string]any) {
	envelope := observability.NewEnvelope("messaging", name, payload)
	if err := observability.PublishEvent(ctx, routingKey, envelope, observability.HeadersFromContext(ctx, "")); err != nil {
		logger.Warn().Err(err).Str("routing_key", routingKey).Msg("domain event publish failed")
	}
}
