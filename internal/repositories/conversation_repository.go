package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/rajyaabhishek/LawX-sub001/internal/models"
)

var (
	ErrConversationNotFound = errors.New("conversation not found")
	ErrSelfConversation     = errors.New("cannot create conversation with self")
	ErrMissingParticipant   = errors.New("participant id is required")
)

// ConversationRepository abstracts conversation persistence.
type ConversationRepository interface {
	GetOrCreate(ctx context.Context, userA, userB string) (models.Conversation, error)
	Find(ctx context.Context, userA, userB string) (models.Conversation, error)
	Get(ctx context.Context, conversationID string) (models.Conversation, error)
	IsParticipant(ctx context.Context, conversationID, userID string) (bool, error)
	ListForUser(ctx context.Context, userID string) ([]models.ConversationSummary, error)
}

// ConversationRepo is a sqlx implementation of ConversationRepository.
type ConversationRepo struct {
	db *sqlx.DB
}

// NewConversationRepo constructs a ConversationRepo.
func NewConversationRepo(db *sqlx.DB) *ConversationRepo {
	return &ConversationRepo{db: db}
}

const conversationColumns = `id, participant_low, participant_high, last_text, last_image, last_sender_id, last_seen, last_at, created_at, updated_at`

// canonicalPair orders two user ids so that the pair is order independent.
func canonicalPair(userA, userB string) (string, string, error) {
	if userA == "" || userB == "" {
		return "", "", ErrMissingParticipant
	}
	if userA == userB {
		return "", "", ErrSelfConversation
	}
	if userA > userB {
		userA, userB = userB, userA
	}
	return userA, userB, nil
}

// GetOrCreate returns the conversation between two users, creating it when
// absent. Concurrent creators converge on one row: the loser of the insert
// race reads the winner's conversation.
func (r *ConversationRepo) GetOrCreate(ctx context.Context, userA, userB string) (models.Conversation, error) {
	low, high, err := canonicalPair(userA, userB)
	if err != nil {
		return models.Conversation{}, err
	}

	conv, err := r.findPair(ctx, low, high)
	if err == nil {
		return conv, nil
	}
	if !errors.Is(err, ErrConversationNotFound) {
		return models.Conversation{}, err
	}

	query := `INSERT INTO conversations (id, participant_low, participant_high) VALUES ($1, $2, $3)
        ON CONFLICT (participant_low, participant_high) DO NOTHING
        RETURNING ` + conversationColumns
	err = r.db.GetContext(ctx, &conv, query, uuid.NewString(), low, high)
	switch {
	case err == nil:
		return conv, nil
	case errors.Is(err, sql.ErrNoRows), isUniqueViolation(err):
		return r.findPair(ctx, low, high)
	default:
		return models.Conversation{}, fmt.Errorf("insert conversation: %w", err)
	}
}

// Find returns the conversation between two users without creating it.
func (r *ConversationRepo) Find(ctx context.Context, userA, userB string) (models.Conversation, error) {
	low, high, err := canonicalPair(userA, userB)
	if err != nil {
		return models.Conversation{}, err
	}
	return r.findPair(ctx, low, high)
}

func (r *ConversationRepo) findPair(ctx context.Context, low, high string) (models.Conversation, error) {
	var conv models.Conversation
	query := `SELECT ` + conversationColumns + ` FROM conversations WHERE participant_low=$1 AND participant_high=$2`
	err := r.db.GetContext(ctx, &conv, query, low, high)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Conversation{}, ErrConversationNotFound
	}
	return conv, err
}

// Get fetches a conversation by id.
func (r *ConversationRepo) Get(ctx context.Context, conversationID string) (models.Conversation, error) {
	var conv models.Conversation
	err := r.db.GetContext(ctx, &conv, `SELECT `+conversationColumns+` FROM conversations WHERE id=$1`, conversationID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Conversation{}, ErrConversationNotFound
	}
	return conv, err
}

// IsParticipant checks whether a user belongs to the conversation.
func (r *ConversationRepo) IsParticipant(ctx context.Context, conversationID, userID string) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists,
		`SELECT EXISTS(SELECT 1 FROM conversations WHERE id=$1 AND (participant_low=$2 OR participant_high=$2))`,
		conversationID, userID)
	return exists, err
}

// ListForUser returns the user's conversations, most recent activity first,
// each with the number of messages from the other side not yet seen.
func (r *ConversationRepo) ListForUser(ctx context.Context, userID string) ([]models.ConversationSummary, error) {
	query := `SELECT c.id, c.participant_low, c.participant_high, c.last_text, c.last_image, c.last_sender_id,
            c.last_seen, c.last_at, c.created_at, c.updated_at,
            (SELECT COUNT(*) FROM messages m
                WHERE m.conversation_id = c.id AND m.sender_id <> $1 AND m.seen = FALSE AND m.expires_at > NOW()) AS unread_count
        FROM conversations c
        WHERE c.participant_low = $1 OR c.participant_high = $1
        ORDER BY c.last_at DESC, c.id`

	result := []models.ConversationSummary{}
	if err := r.db.SelectContext(ctx, &result, query, userID); err != nil {
		return nil, err
	}
	return result, nil
}
