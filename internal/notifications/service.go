// Package notifications owns the durable per-recipient notification log and
// the domain producers that write to it.
package notifications

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/google/uuid"

	"github.com/rajyaabhishek/LawX-sub001/internal/apperrors"
	"github.com/rajyaabhishek/LawX-sub001/internal/logger"
	"github.com/rajyaabhishek/LawX-sub001/internal/models"
	"github.com/rajyaabhishek/LawX-sub001/internal/observability"
	"github.com/rajyaabhishek/LawX-sub001/internal/repositories"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

type UserDirectory interface {
	BulkUsers(ctx context.Context, ids []string) (map[string]models.UserSummary, error)
	VerifiedLawyerIDs(ctx context.Context) ([]string, error)
}

// Outbox queues the live push of a stored notification.
type Outbox interface {
	PushNotification(n models.Notification)
}

// CreateInput describes one notification. Message may be empty, in which
// case a default text for the type is used.
type CreateInput struct {
	RecipientID   string
	Type          models.NotificationType
	Message       string
	RelatedUserID string
	RelatedPostID string
	RelatedCaseID string
	Payload       models.Payload
}

type Service struct {
	store  repositories.NotificationRepository
	users  UserDirectory
	outbox Outbox
}

func NewService(store repositories.NotificationRepository, users UserDirectory, outbox Outbox) *Service {
	return &Service{store: store, users: users, outbox: outbox}
}

func (in CreateInput) validate() error {
	if in.RecipientID == "" {
		return apperrors.InvalidArg("recipient is required")
	}
	if !in.Type.Valid() {
		return apperrors.InvalidArg(fmt.Sprintf("unknown notification type %q", in.Type))
	}
	if err := models.ValidatePayload(in.Type, in.Payload); err != nil {
		return apperrors.InvalidArg(err.Error())
	}
	return nil
}

// Create persists a notification and queues its live delivery. Whether the
// recipient is connected never affects the result.
func (s *Service) Create(ctx context.Context, in CreateInput) (models.Notification, error) {
	if err := in.validate(); err != nil {
		return models.Notification{}, err
	}

	n := models.Notification{
		RecipientID:   in.RecipientID,
		Type:          in.Type,
		Message:       in.Message,
		RelatedUserID: optional(in.RelatedUserID),
		RelatedPostID: optional(in.RelatedPostID),
		RelatedCaseID: optional(in.RelatedCaseID),
		Payload:       in.Payload,
	}
	if n.Message == "" {
		n.Message = defaultMessage(in.Type)
	}

	stored, err := s.store.Create(ctx, n)
	if err != nil {
		return models.Notification{}, apperrors.Internal("failed to create notification", err)
	}
	observability.IncNotificationCreated(string(stored.Type))

	s.outbox.PushNotification(stored)
	envelope := observability.NewEnvelope("notifications", "notification_created", map[string]any{
		"notification_id": stored.ID,
		"recipient_id":    stored.RecipientID,
		"type":            stored.Type,
	})
	if err := observability.PublishEvent(ctx, observability.RoutingNotificationCreated, envelope, observability.HeadersFromContext(ctx, "")); err != nil {
		logger.Warn().Err(err).Str("notification_id", stored.ID).Msg("notification event publish failed")
	}
	return stored, nil
}

// RecipientError is one recipient's failure inside CreateBulk.
type RecipientError struct {
	RecipientID string
	Err         error
}

func (e *RecipientError) Error() string {
	return fmt.Sprintf("recipient %s: %v", e.RecipientID, e.Err)
}

func (e *RecipientError) Unwrap() error { return e.Err }

// FailedRecipients lists the recipients named in a CreateBulk error.
func FailedRecipients(err error) []string {
	if err == nil {
		return nil
	}
	var errs []error
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		errs = joined.Unwrap()
	} else {
		errs = []error{err}
	}

	var ids []string
	for _, e := range errs {
		var re *RecipientError
		if errors.As(e, &re) {
			ids = append(ids, re.RecipientID)
		}
	}
	return ids
}

// CreateBulk creates one notification per distinct recipient, in first-seen
// order. Recipients fail independently; the returned error joins one
// *RecipientError per failure and the slice holds what was created.
func (s *Service) CreateBulk(ctx context.Context, recipients []string, in CreateInput) ([]models.Notification, error) {
	created := make([]models.Notification, 0, len(recipients))
	var errs []error
	for _, recipient := range dedupe(recipients) {
		in.RecipientID = recipient
		n, err := s.Create(ctx, in)
		if err != nil {
			errs = append(errs, &RecipientError{RecipientID: recipient, Err: err})
			continue
		}
		created = append(created, n)
	}
	return created, errors.Join(errs...)
}

// MarkRead flips the given unread notifications of recipientID. Ids owned
// by someone else, already read, or malformed are left alone.
func (s *Service) MarkRead(ctx context.Context, recipientID string, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, apperrors.InvalidArg("ids are required")
	}
	valid := make([]string, 0, len(ids))
	for _, id := range dedupe(ids) {
		if _, err := uuid.Parse(id); err == nil {
			valid = append(valid, id)
		}
	}
	if len(valid) == 0 {
		return 0, nil
	}

	n, err := s.store.MarkRead(ctx, recipientID, valid)
	if err != nil {
		return 0, apperrors.Internal("failed to mark notifications read", err)
	}
	return n, nil
}

func (s *Service) MarkAllRead(ctx context.Context, recipientID string) (int64, error) {
	n, err := s.store.MarkAllRead(ctx, recipientID)
	if err != nil {
		return 0, apperrors.Internal("failed to mark notifications read", err)
	}
	return n, nil
}

func (s *Service) UnreadCount(ctx context.Context, recipientID string) (int64, error) {
	n, err := s.store.UnreadCount(ctx, recipientID)
	if err != nil {
		return 0, apperrors.Internal("failed to count notifications", err)
	}
	return n, nil
}

// ListForUser returns one page of notifications, newest first. Zero page
// and limit select the defaults.
func (s *Service) ListForUser(ctx context.Context, recipientID string, page, limit int) (models.NotificationPage, error) {
	if page == 0 {
		page = 1
	}
	if limit == 0 {
		limit = DefaultPageSize
	}
	if page < 1 {
		return models.NotificationPage{}, apperrors.InvalidArg("page must be at least 1")
	}
	if limit < 1 || limit > MaxPageSize {
		return models.NotificationPage{}, apperrors.InvalidArg(fmt.Sprintf("limit must be between 1 and %d", MaxPageSize))
	}
	// keeps the offset inside a Postgres int4
	if page > math.MaxInt32/limit {
		return models.NotificationPage{}, apperrors.InvalidArg("page is out of range")
	}

	offset := (page - 1) * limit
	list, total, err := s.store.ListForUser(ctx, recipientID, limit, offset)
	if err != nil {
		return models.NotificationPage{}, apperrors.Internal("failed to load notifications", err)
	}
	unread, err := s.store.UnreadCount(ctx, recipientID)
	if err != nil {
		return models.NotificationPage{}, apperrors.Internal("failed to count notifications", err)
	}
	if list == nil {
		list = []models.Notification{}
	}
	s.attachRelatedUsers(ctx, list)

	return models.NotificationPage{
		Notifications: list,
		Total:         total,
		Page:          page,
		Limit:         limit,
		HasMore:       int64(offset+len(list)) < total,
		UnreadCount:   unread,
	}, nil
}

// Delete removes one of recipientID's notifications.
func (s *Service) Delete(ctx context.Context, recipientID, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return apperrors.NotFound("notification not found")
	}
	err := s.store.Delete(ctx, recipientID, id)
	switch {
	case errors.Is(err, repositories.ErrNotificationNotFound):
		return apperrors.NotFound("notification not found")
	case err != nil:
		return apperrors.Internal("failed to delete notification", err)
	}
	return nil
}

func (s *Service) attachRelatedUsers(ctx context.Context, list []models.Notification) {
	var ids []string
	for _, n := range list {
		if n.RelatedUserID != nil && *n.RelatedUserID != "" {
			ids = append(ids, *n.RelatedUserID)
		}
	}
	ids = dedupe(ids)
	if len(ids) == 0 || s.users == nil {
		return
	}

	users, err := s.users.BulkUsers(ctx, ids)
	if err != nil {
		logger.Warn().Err(err).Int("users", len(ids)).Msg("related user lookup failed")
		return
	}
	for i := range list {
		if list[i].RelatedUserID == nil {
			continue
		}
		if u, ok := users[*list[i].RelatedUserID]; ok {
			list[i].RelatedUser = &u
		}
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// dedupe drops empty and repeated ids, keeping first-seen order.
func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func defaultMessage(t models.NotificationType) string {
	switch t {
	case models.NotificationLike:
		return "Someone liked your post"
	case models.NotificationComment:
		return "Someone commented on your post"
	case models.NotificationConnectionAccepted:
		return "Your connection request was accepted"
	case models.NotificationNewCase:
		return "A new case was posted"
	case models.NotificationCaseApplication:
		return "A lawyer applied to your case"
	case models.NotificationCaseApplicationAccepted:
		return "Your application was accepted"
	case models.NotificationCaseApplicationRejected:
		return "Your application was not accepted"
	case models.NotificationCaseStatusUpdate:
		return "A case you follow was updated"
	}
	return ""
}
