package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/rajyaabhishek/LawX-sub001/internal/models"
)

var ErrNotificationNotFound = errors.New("notification not found")

// NotificationRepository abstracts notification persistence. Every read and
// write is scoped to a recipient except the delivery bookkeeping by id.
type NotificationRepository interface {
	Create(ctx context.Context, n models.Notification) (models.Notification, error)
	MarkRead(ctx context.Context, recipientID string, ids []string) (int64, error)
	MarkAllRead(ctx context.Context, recipientID string) (int64, error)
	MarkDelivered(ctx context.Context, ids []string) (int64, error)
	MarkAllDelivered(ctx context.Context, recipientID string) (int64, error)
	UnreadCount(ctx context.Context, recipientID string) (int64, error)
	ListForUser(ctx context.Context, recipientID string, limit, offset int) ([]models.Notification, int64, error)
	ListUnread(ctx context.Context, recipientID string, limit int) ([]models.Notification, error)
	Delete(ctx context.Context, recipientID, id string) error
}

// NotificationRepo is a sqlx implementation of NotificationRepository.
type NotificationRepo struct {
	db *sqlx.DB
}

// NewNotificationRepo constructs a NotificationRepo.
func NewNotificationRepo(db *sqlx.DB) *NotificationRepo {
	return &NotificationRepo{db: db}
}

type notificationRow struct {
	ID            string     `db:"id"`
	RecipientID   string     `db:"recipient_id"`
	Type          string     `db:"type"`
	Message       string     `db:"message"`
	RelatedUserID *string    `db:"related_user_id"`
	RelatedPostID *string    `db:"related_post_id"`
	RelatedCaseID *string    `db:"related_case_id"`
	Payload       []byte     `db:"payload"`
	Read          bool       `db:"read"`
	ReadAt        *time.Time `db:"read_at"`
	Delivered     bool       `db:"delivered"`
	DeliveredAt   *time.Time `db:"delivered_at"`
	CreatedAt     time.Time  `db:"created_at"`
}

func (row notificationRow) toModel() (models.Notification, error) {
	t := models.NotificationType(row.Type)
	payload, err := models.DecodePayload(t, row.Payload)
	if err != nil {
		return models.Notification{}, err
	}
	return models.Notification{
		ID:            row.ID,
		RecipientID:   row.RecipientID,
		Type:          t,
		Message:       row.Message,
		RelatedUserID: row.RelatedUserID,
		RelatedPostID: row.RelatedPostID,
		RelatedCaseID: row.RelatedCaseID,
		Payload:       payload,
		Read:          row.Read,
		ReadAt:        row.ReadAt,
		Delivered:     row.Delivered,
		DeliveredAt:   row.DeliveredAt,
		CreatedAt:     row.CreatedAt,
	}, nil
}

func rowsToModels(rows []notificationRow) ([]models.Notification, error) {
	result := make([]models.Notification, 0, len(rows))
	for _, row := range rows {
		n, err := row.toModel()
		if err != nil {
			return nil, err
		}
		result = append(result, n)
	}
	return result, nil
}

const notificationColumns = `id, recipient_id, type, message, related_user_id, related_post_id, related_case_id,
        payload, read, read_at, delivered, delivered_at, created_at`

// Create stores a new unread, undelivered notification.
func (r *NotificationRepo) Create(ctx context.Context, n models.Notification) (models.Notification, error) {
	payload, err := models.EncodePayload(n.Payload)
	if err != nil {
		return models.Notification{}, fmt.Errorf("encode payload: %w", err)
	}

	var row notificationRow
	query := `INSERT INTO notifications (id, recipient_id, type, message, related_user_id, related_post_id, related_case_id, payload)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
        RETURNING ` + notificationColumns
	if err := r.db.GetContext(ctx, &row, query, uuid.NewString(), n.RecipientID, string(n.Type), n.Message,
		n.RelatedUserID, n.RelatedPostID, n.RelatedCaseID, string(payload)); err != nil {
		return models.Notification{}, fmt.Errorf("insert notification: %w", err)
	}
	return row.toModel()
}

// MarkRead flags the recipient's listed unread notifications as read. Ids
// owned by other recipients are ignored. A read notification counts as
// delivered.
func (r *NotificationRepo) MarkRead(ctx context.Context, recipientID string, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res, err := r.db.ExecContext(ctx, `UPDATE notifications
        SET read = TRUE, read_at = NOW(),
            delivered = TRUE, delivered_at = COALESCE(delivered_at, NOW())
        WHERE recipient_id = $1 AND id = ANY($2::uuid[]) AND read = FALSE`,
		recipientID, pq.Array(ids))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// MarkAllRead flags every unread notification of the recipient as read.
func (r *NotificationRepo) MarkAllRead(ctx context.Context, recipientID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE notifications
        SET read = TRUE, read_at = NOW(),
            delivered = TRUE, delivered_at = COALESCE(delivered_at, NOW())
        WHERE recipient_id = $1 AND read = FALSE`, recipientID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// MarkDelivered sets delivered_at once for each listed notification.
func (r *NotificationRepo) MarkDelivered(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE notifications SET delivered = TRUE, delivered_at = NOW() WHERE id = ANY($1::uuid[]) AND delivered = FALSE`,
		pq.Array(ids))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// MarkAllDelivered sets delivered_at on every undelivered notification of the recipient.
func (r *NotificationRepo) MarkAllDelivered(ctx context.Context, recipientID string) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE notifications SET delivered = TRUE, delivered_at = NOW() WHERE recipient_id = $1 AND delivered = FALSE`,
		recipientID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// UnreadCount counts the recipient's unread notifications.
func (r *NotificationRepo) UnreadCount(ctx context.Context, recipientID string) (int64, error) {
	var count int64
	err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM notifications WHERE recipient_id = $1 AND read = FALSE`, recipientID)
	return count, err
}

// ListForUser returns one page of the recipient's notifications, newest
// first, and the recipient's total.
func (r *NotificationRepo) ListForUser(ctx context.Context, recipientID string, limit, offset int) ([]models.Notification, int64, error) {
	var total int64
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM notifications WHERE recipient_id = $1`, recipientID); err != nil {
		return nil, 0, err
	}

	var rows []notificationRow
	query := `SELECT ` + notificationColumns + ` FROM notifications
        WHERE recipient_id = $1
        ORDER BY created_at DESC, id DESC
        LIMIT $2 OFFSET $3`
	if err := r.db.SelectContext(ctx, &rows, query, recipientID, limit, offset); err != nil {
		return nil, 0, err
	}

	list, err := rowsToModels(rows)
	if err != nil {
		return nil, 0, err
	}
	return list, total, nil
}

// ListUnread returns the recipient's newest unread notifications.
func (r *NotificationRepo) ListUnread(ctx context.Context, recipientID string, limit int) ([]models.Notification, error) {
	var rows []notificationRow
	query := `SELECT ` + notificationColumns + ` FROM notifications
        WHERE recipient_id = $1 AND read = FALSE
        ORDER BY created_at DESC, id DESC
        LIMIT $2`
	if err := r.db.SelectContext(ctx, &rows, query, recipientID, limit); err != nil {
		return nil, err
	}
	return rowsToModels(rows)
}

// Delete removes one notification owned by the recipient.
func (r *NotificationRepo) Delete(ctx context.Context, recipientID, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM notifications WHERE id = $1 AND recipient_id = $2`, id, recipientID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotificationNotFound
	}
	return nil
}
