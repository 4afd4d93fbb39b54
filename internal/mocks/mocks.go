package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/rajyaabhishek/LawX-sub001/internal/models"
	"github.com/rajyaabhishek/LawX-sub001/internal/repositories"
)

type ConversationRepositoryMock struct {
	mock.Mock
}

func (m *ConversationRepositoryMock) GetOrCreate(ctx context.Context, userA, userB string) (models.Conversation, error) {
	args := m.Called(ctx, userA, userB)
	var conv models.Conversation
	if val := args.Get(0); val != nil {
		conv = val.(models.Conversation)
	}
	return conv, args.Error(1)
}

func (m *ConversationRepositoryMock) Find(ctx context.Context, userA, userB string) (models.Conversation, error) {
	args := m.Called(ctx, userA, userB)
	var conv models.Conversation
	if val := args.Get(0); val != nil {
		conv = val.(models.Conversation)
	}
	return conv, args.Error(1)
}

func (m *ConversationRepositoryMock) Get(ctx context.Context, conversationID string) (models.Conversation, error) {
	args := m.Called(ctx, conversationID)
	var conv models.Conversation
	if val := args.Get(0); val != nil {
		conv = val.(models.Conversation)
	}
	return conv, args.Error(1)
}

func (m *ConversationRepositoryMock) IsParticipant(ctx context.Context, conversationID, userID string) (bool, error) {
	args := m.Called(ctx, conversationID, userID)
	return args.Bool(0), args.Error(1)
}

func (m *ConversationRepositoryMock) ListForUser(ctx context.Context, userID string) ([]models.ConversationSummary, error) {
	args := m.Called(ctx, userID)
	var list []models.ConversationSummary
	if val := args.Get(0); val != nil {
		list = val.([]models.ConversationSummary)
	}
	return list, args.Error(1)
}

type MessageRepositoryMock struct {
	mock.Mock
}

func (m *MessageRepositoryMock) Append(ctx context.Context, conversationID, senderID, text, imageURL string) (models.Message, error) {
	args := m.Called(ctx, conversationID, senderID, text, imageURL)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) ListByConversation(ctx context.Context, conversationID string) ([]models.Message, error) {
	args := m.Called(ctx, conversationID)
	var msgs []models.Message
	if val := args.Get(0); val != nil {
		msgs = val.([]models.Message)
	}
	return msgs, args.Error(1)
}

func (m *MessageRepositoryMock) MarkSeenFromOther(ctx context.Context, conversationID, viewerID string) (int64, error) {
	args := m.Called(ctx, conversationID, viewerID)
	return args.Get(0).(int64), args.Error(1)
}

// PurgeExpired passes the second return value, when it is a []string, to
// release the way the repository does before committing.
func (m *MessageRepositoryMock) PurgeExpired(ctx context.Context, before time.Time, batch int, release repositories.ReleaseImages) (int64, error) {
	args := m.Called(ctx, before, batch)
	if urls, ok := args.Get(1).([]string); ok && len(urls) > 0 && release != nil {
		if err := release(ctx, urls); err != nil {
			return 0, err
		}
	}
	return args.Get(0).(int64), args.Error(2)
}

type NotificationRepositoryMock struct {
	mock.Mock
}

func (m *NotificationRepositoryMock) Create(ctx context.Context, n models.Notification) (models.Notification, error) {
	args := m.Called(ctx, n)
	var out models.Notification
	if val := args.Get(0); val != nil {
		out = val.(models.Notification)
	}
	return out, args.Error(1)
}

func (m *NotificationRepositoryMock) MarkRead(ctx context.Context, recipientID string, ids []string) (int64, error) {
	args := m.Called(ctx, recipientID, ids)
	return args.Get(0).(int64), args.Error(1)
}

func (m *NotificationRepositoryMock) MarkAllRead(ctx context.Context, recipientID string) (int64, error) {
	args := m.Called(ctx, recipientID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *NotificationRepositoryMock) MarkDelivered(ctx context.Context, ids []string) (int64, error) {
	args := m.Called(ctx, ids)
	return args.Get(0).(int64), args.Error(1)
}

func (m *NotificationRepositoryMock) MarkAllDelivered(ctx context.Context, recipientID string) (int64, error) {
	args := m.Called(ctx, recipientID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *NotificationRepositoryMock) UnreadCount(ctx context.Context, recipientID string) (int64, error) {
	args := m.Called(ctx, recipientID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *NotificationRepositoryMock) ListForUser(ctx context.Context, recipientID string, limit, offset int) ([]models.Notification, int64, error) {
	args := m.Called(ctx, recipientID, limit, offset)
	var list []models.Notification
	if val := args.Get(0); val != nil {
		list = val.([]models.Notification)
	}
	return list, args.Get(1).(int64), args.Error(2)
}

func (m *NotificationRepositoryMock) ListUnread(ctx context.Context, recipientID string, limit int) ([]models.Notification, error) {
	args := m.Called(ctx, recipientID, limit)
	var list []models.Notification
	if val := args.Get(0); val != nil {
		list = val.([]models.Notification)
	}
	return list, args.Error(1)
}

func (m *NotificationRepositoryMock) Delete(ctx context.Context, recipientID, id string) error {
	args := m.Called(ctx, recipientID, id)
	return args.Error(0)
}

// DirectoryMock stands in for the user directory.
type DirectoryMock struct {
	mock.Mock
}

func (m *DirectoryMock) GetUser(ctx context.Context, id string) (models.UserSummary, error) {
	args := m.Called(ctx, id)
	var user models.UserSummary
	if val := args.Get(0); val != nil {
		user = val.(models.UserSummary)
	}
	return user, args.Error(1)
}

func (m *DirectoryMock) BulkUsers(ctx context.Context, ids []string) (map[string]models.UserSummary, error) {
	args := m.Called(ctx, ids)
	var users map[string]models.UserSummary
	if val := args.Get(0); val != nil {
		users = val.(map[string]models.UserSummary)
	}
	return users, args.Error(1)
}

func (m *DirectoryMock) Exists(ctx context.Context, id string) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *DirectoryMock) FindByExternalID(ctx context.Context, externalID string) (string, error) {
	args := m.Called(ctx, externalID)
	return args.String(0), args.Error(1)
}

func (m *DirectoryMock) VerifiedLawyerIDs(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	var ids []string
	if val := args.Get(0); val != nil {
		ids = val.([]string)
	}
	return ids, args.Error(1)
}

// DispatcherMock records outbox jobs instead of delivering them.
type DispatcherMock struct {
	mock.Mock
}

func (m *DispatcherMock) PushMessage(recipientID string, msg models.Message) {
	m.Called(recipientID, msg)
}

func (m *DispatcherMock) PushNotification(n models.Notification) {
	m.Called(n)
}

func (m *DispatcherMock) PushMessagesSeen(viewerID, conversationID string, count int64) {
	m.Called(viewerID, conversationID, count)
}

func (m *DispatcherMock) Reconcile(userID string) {
	m.Called(userID)
}

var _ repositories.ConversationRepository = (*ConversationRepositoryMock)(nil)
var _ repositories.MessageRepository = (*MessageRepositoryMock)(nil)
var _ repositories.NotificationRepository = (*NotificationRepositoryMock)(nil)
