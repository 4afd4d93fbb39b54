package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/rajyaabhishek/LawX-sub001/internal/models"
)

var ErrEmptyMessage = errors.New("message requires text or image")

// MessageRepository abstracts message persistence.
type MessageRepository interface {
	Append(ctx context.Context, conversationID, senderID, text, imageURL string) (models.Message, error)
	ListByConversation(ctx context.Context, conversationID string) ([]models.Message, error)
	MarkSeenFromOther(ctx context.Context, conversationID, viewerID string) (int64, error)
	PurgeExpired(ctx context.Context, before time.Time, batch int, release ReleaseImages) (int64, error)
}

// ReleaseImages removes the stored images of messages being purged. An error
// keeps the messages so the next sweep retries.
type ReleaseImages func(ctx context.Context, imageURLs []string) error

// MessageRepo is a sqlx implementation of MessageRepository.
type MessageRepo struct {
	db            *sqlx.DB
	retentionDays int
}

// NewMessageRepo constructs a MessageRepo. Messages expire retentionDays
// after they are written.
func NewMessageRepo(db *sqlx.DB, retentionDays int) *MessageRepo {
	return &MessageRepo{db: db, retentionDays: retentionDays}
}

const messageColumns = `id, seq, conversation_id, sender_id, text, image_url, seen, created_at, expires_at`

// Append stores a message and moves the conversation's last-message snapshot
// to it in one transaction.
func (r *MessageRepo) Append(ctx context.Context, conversationID, senderID, text, imageURL string) (models.Message, error) {
	if text == "" && imageURL == "" {
		return models.Message{}, ErrEmptyMessage
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Message{}, err
	}
	defer tx.Rollback()

	var msg models.Message
	insert := `INSERT INTO messages (id, conversation_id, sender_id, text, image_url, expires_at)
        VALUES ($1, $2, $3, $4, $5, clock_timestamp() + make_interval(days => $6))
        RETURNING ` + messageColumns
	if err := tx.GetContext(ctx, &msg, insert, uuid.NewString(), conversationID, senderID, text, imageURL, r.retentionDays); err != nil {
		if isForeignKeyViolation(err) {
			return models.Message{}, ErrConversationNotFound
		}
		return models.Message{}, fmt.Errorf("insert message: %w", err)
	}

	// a slower writer must not roll the snapshot back to an older message
	snapshot := `UPDATE conversations
        SET last_text=$2, last_image=$3, last_sender_id=$4, last_seen=FALSE, last_at=$5, updated_at=NOW()
        WHERE id=$1 AND last_at <= $5`
	if _, err := tx.ExecContext(ctx, snapshot, conversationID, text, imageURL, senderID, msg.CreatedAt); err != nil {
		return models.Message{}, fmt.Errorf("update conversation snapshot: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return models.Message{}, err
	}
	return msg, nil
}

// ListByConversation returns the live messages of a conversation in write order.
func (r *MessageRepo) ListByConversation(ctx context.Context, conversationID string) ([]models.Message, error) {
	msgs := []models.Message{}
	query := `SELECT ` + messageColumns + ` FROM messages
        WHERE conversation_id=$1 AND expires_at > NOW()
        ORDER BY created_at ASC, seq ASC`
	if err := r.db.SelectContext(ctx, &msgs, query, conversationID); err != nil {
		return nil, err
	}
	return msgs, nil
}

// MarkSeenFromOther flags every unseen message the viewer received in the
// conversation as seen and returns how many changed. Calling it again
// without new messages returns 0.
func (r *MessageRepo) MarkSeenFromOther(ctx context.Context, conversationID, viewerID string) (int64, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	// serializes with Append, whose snapshot update takes the same row lock
	if _, err := tx.ExecContext(ctx, `SELECT id FROM conversations WHERE id=$1 FOR UPDATE`, conversationID); err != nil {
		return 0, fmt.Errorf("lock conversation: %w", err)
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE messages SET seen = TRUE WHERE conversation_id=$1 AND sender_id <> $2 AND seen = FALSE`,
		conversationID, viewerID)
	if err != nil {
		return 0, fmt.Errorf("mark messages seen: %w", err)
	}
	updated, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE conversations SET last_seen = TRUE
        WHERE id=$1 AND last_sender_id <> $2 AND last_seen = FALSE
        AND NOT EXISTS (SELECT 1 FROM messages WHERE conversation_id=$1 AND sender_id <> $2 AND seen = FALSE)`,
		conversationID, viewerID); err != nil {
		return 0, fmt.Errorf("mark snapshot seen: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return updated, nil
}

// PurgeExpired deletes up to batch messages that expired before the cutoff
// and hands their image URLs to release before committing.
func (r *MessageRepo) PurgeExpired(ctx context.Context, before time.Time, batch int, release ReleaseImages) (int64, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	imageURLs := []string{}
	if err := tx.SelectContext(ctx, &imageURLs,
		`DELETE FROM messages WHERE id IN (SELECT id FROM messages WHERE expires_at < $1 ORDER BY expires_at LIMIT $2)
        RETURNING image_url`,
		before, batch); err != nil {
		return 0, fmt.Errorf("delete expired messages: %w", err)
	}
	purged := int64(len(imageURLs))

	attached := imageURLs[:0]
	for _, url := range imageURLs {
		if url != "" {
			attached = append(attached, url)
		}
	}
	if len(attached) > 0 && release != nil {
		if err := release(ctx, attached); err != nil {
			return 0, fmt.Errorf("release images: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return purged, nil
}
