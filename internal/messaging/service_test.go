package messaging

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"image"
	"image/png"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/rajyaabhishek/LawX-sub001/internal/apperrors"
	"github.com/rajyaabhishek/LawX-sub001/internal/media"
	"github.com/rajyaabhishek/LawX-sub001/internal/mocks"
	"github.com/rajyaabhishek/LawX-sub001/internal/models"
	"github.com/rajyaabhishek/LawX-sub001/internal/repositories"
)

const convID = "7f1c2d9e-8a4b-4c3d-9e2f-1a2b3c4d5e6f"

type fixture struct {
	convs  *mocks.ConversationRepositoryMock
	msgs   *mocks.MessageRepositoryMock
	dir    *mocks.DirectoryMock
	images *mocks.ImageStoreMock
	outbox *mocks.DispatcherMock
	svc    *Service
}

func newFixture() *fixture {
	f := &fixture{
		convs:  new(mocks.ConversationRepositoryMock),
		msgs:   new(mocks.MessageRepositoryMock),
		dir:    new(mocks.DirectoryMock),
		images: new(mocks.ImageStoreMock),
		outbox: new(mocks.DispatcherMock),
	}
	f.svc = NewService(f.convs, f.msgs, f.dir, f.images, f.outbox, 1<<20)
	return f
}

func (f *fixture) assertExpectations(t *testing.T) {
	f.convs.AssertExpectations(t)
	f.msgs.AssertExpectations(t)
	f.dir.AssertExpectations(t)
	f.images.AssertExpectations(t)
	f.outbox.AssertExpectations(t)
}

func pngDataURI(t *testing.T) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewGray(image.Rect(0, 0, 1, 1))))
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes())
}

func TestSendMessage_StoresAndPushes(t *testing.T) {
	f := newFixture()
	conv := models.Conversation{ID: convID, ParticipantLow: "alice", ParticipantHigh: "bob"}
	stored := models.Message{ID: "m1", ConversationID: convID, SenderID: "alice", Text: "hello", CreatedAt: time.Now()}

	f.dir.On("Exists", mock.Anything, "bob").Return(true, nil).Once()
	f.convs.On("GetOrCreate", mock.Anything, "alice", "bob").Return(conv, nil).Once()
	f.msgs.On("Append", mock.Anything, convID, "alice", "hello", "").Return(stored, nil).Once()
	f.outbox.On("PushMessage", "bob", stored).Once()

	msg, err := f.svc.SendMessage(context.Background(), "alice", "bob", SendInput{Text: "  hello "})
	require.NoError(t, err)
	assert.Equal(t, stored, msg)
	f.assertExpectations(t)
}

func TestSendMessage_WithImage(t *testing.T) {
	f := newFixture()
	conv := models.Conversation{ID: convID}
	stored := models.Message{ID: "m1", ConversationID: convID, SenderID: "alice", ImageURL: "/api/v1/media/abc"}

	f.dir.On("Exists", mock.Anything, "bob").Return(true, nil).Once()
	f.images.On("SaveImage", mock.Anything, "alice", "bob", mock.MatchedBy(func(img media.Image) bool {
		return img.MIMEType == "image/png" && len(img.Data) > 0
	})).Return("/api/v1/media/abc", nil).Once()
	f.convs.On("GetOrCreate", mock.Anything, "alice", "bob").Return(conv, nil).Once()
	f.msgs.On("Append", mock.Anything, convID, "alice", "", "/api/v1/media/abc").Return(stored, nil).Once()
	f.outbox.On("PushMessage", "bob", stored).Once()

	msg, err := f.svc.SendMessage(context.Background(), "alice", "bob", SendInput{Image: pngDataURI(t)})
	require.NoError(t, err)
	assert.Equal(t, "/api/v1/media/abc", msg.ImageURL)
	f.assertExpectations(t)
}

func TestSendMessage_ValidationWritesNothing(t *testing.T) {
	tests := []struct {
		name      string
		sender    string
		recipient string
		in        SendInput
		code      apperrors.Code
	}{
		{"no sender", "", "bob", SendInput{Text: "hi"}, apperrors.CodeUnauthenticated},
		{"no recipient", "alice", "", SendInput{Text: "hi"}, apperrors.CodeInvalidArgument},
		{"self", "alice", "alice", SendInput{Text: "hi"}, apperrors.CodeInvalidArgument},
		{"empty", "alice", "bob", SendInput{}, apperrors.CodeInvalidArgument},
		{"whitespace only", "alice", "bob", SendInput{Text: " \n\t"}, apperrors.CodeInvalidArgument},
		{"not a data uri", "alice", "bob", SendInput{Image: "https://example.com/cat.png"}, apperrors.CodeInvalidArgument},
		{"not an image", "alice", "bob", SendInput{Image: "data:image/png;base64," + base64.StdEncoding.EncodeToString([]byte("plain text body"))}, apperrors.CodeInvalidArgument},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()

			_, err := f.svc.SendMessage(context.Background(), tt.sender, tt.recipient, tt.in)
			require.Error(t, err)
			assert.Equal(t, tt.code, apperrors.CodeOf(err))
			f.convs.AssertNotCalled(t, "GetOrCreate", mock.Anything, mock.Anything, mock.Anything)
			f.msgs.AssertNotCalled(t, "Append", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
			f.images.AssertNotCalled(t, "SaveImage", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestSendMessage_UnknownRecipient(t *testing.T) {
	f := newFixture()
	f.dir.On("Exists", mock.Anything, "ghost").Return(false, nil).Once()

	_, err := f.svc.SendMessage(context.Background(), "alice", "ghost", SendInput{Text: "hi"})
	assert.True(t, apperrors.Is(err, apperrors.CodeNotFound))
	f.convs.AssertNotCalled(t, "GetOrCreate", mock.Anything, mock.Anything, mock.Anything)
}

func TestSendMessage_RemovesImageWhenAppendFails(t *testing.T) {
	f := newFixture()
	f.dir.On("Exists", mock.Anything, "bob").Return(true, nil).Once()
	f.images.On("SaveImage", mock.Anything, "alice", "bob", mock.Anything).Return("/api/v1/media/abc", nil).Once()
	f.convs.On("GetOrCreate", mock.Anything, "alice", "bob").Return(models.Conversation{ID: convID}, nil).Once()
	f.msgs.On("Append", mock.Anything, convID, "alice", "look", "/api/v1/media/abc").
		Return(nil, errors.New("connection reset")).Once()
	f.images.On("Delete", mock.Anything, "/api/v1/media/abc").Return(nil).Once()

	_, err := f.svc.SendMessage(context.Background(), "alice", "bob", SendInput{Text: "look", Image: pngDataURI(t)})
	assert.True(t, apperrors.Is(err, apperrors.CodeInternal))
	f.outbox.AssertNotCalled(t, "PushMessage", mock.Anything, mock.Anything)
	f.assertExpectations(t)
}

func TestHistory_MarksSeenAndNotifiesViewer(t *testing.T) {
	f := newFixture()
	msgs := []models.Message{
		{ID: "m1", SenderID: "alice", Text: "first"},
		{ID: "m2", SenderID: "bob", Text: "second", Seen: true},
	}
	f.convs.On("Find", mock.Anything, "bob", "alice").Return(models.Conversation{ID: convID}, nil).Once()
	f.msgs.On("MarkSeenFromOther", mock.Anything, convID, "bob").Return(int64(1), nil).Once()
	f.msgs.On("ListByConversation", mock.Anything, convID).Return(msgs, nil).Once()
	f.outbox.On("PushMessagesSeen", "bob", convID, int64(1)).Once()

	got, err := f.svc.History(context.Background(), "bob", "alice")
	require.NoError(t, err)
	assert.Equal(t, msgs, got)
	f.assertExpectations(t)
}

func TestHistory_SecondReadIsQuiet(t *testing.T) {
	f := newFixture()
	f.convs.On("Find", mock.Anything, "bob", "alice").Return(models.Conversation{ID: convID}, nil).Once()
	f.msgs.On("MarkSeenFromOther", mock.Anything, convID, "bob").Return(int64(0), nil).Once()
	f.msgs.On("ListByConversation", mock.Anything, convID).Return([]models.Message{{ID: "m1", Seen: true}}, nil).Once()

	_, err := f.svc.History(context.Background(), "bob", "alice")
	require.NoError(t, err)
	f.outbox.AssertNotCalled(t, "PushMessagesSeen", mock.Anything, mock.Anything, mock.Anything)
}

func TestHistory_NeverStartedIsEmpty(t *testing.T) {
	f := newFixture()
	f.convs.On("Find", mock.Anything, "bob", "carol").
		Return(nil, repositories.ErrConversationNotFound).Once()

	got, err := f.svc.History(context.Background(), "bob", "carol")
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
	f.msgs.AssertNotCalled(t, "MarkSeenFromOther", mock.Anything, mock.Anything, mock.Anything)
}

func TestMarkSeen_ForeignOrMalformedConversation(t *testing.T) {
	f := newFixture()
	f.convs.On("IsParticipant", mock.Anything, convID, "mallory").Return(false, nil).Once()

	_, err := f.svc.MarkSeen(context.Background(), "mallory", convID)
	assert.True(t, apperrors.Is(err, apperrors.CodeNotFound))

	_, err = f.svc.MarkSeen(context.Background(), "bob", "not-a-uuid")
	assert.True(t, apperrors.Is(err, apperrors.CodeNotFound))

	f.msgs.AssertNotCalled(t, "MarkSeenFromOther", mock.Anything, mock.Anything, mock.Anything)
	f.convs.AssertExpectations(t)
}

func TestMarkSeen_Participant(t *testing.T) {
	f := newFixture()
	f.convs.On("IsParticipant", mock.Anything, convID, "bob").Return(true, nil).Once()
	f.msgs.On("MarkSeenFromOther", mock.Anything, convID, "bob").Return(int64(3), nil).Once()
	f.outbox.On("PushMessagesSeen", "bob", convID, int64(3)).Once()

	n, err := f.svc.MarkSeen(context.Background(), "bob", convID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	f.assertExpectations(t)
}

func TestListConversations_AttachesCounterpart(t *testing.T) {
	f := newFixture()
	list := []models.ConversationSummary{
		{Conversation: models.Conversation{ID: "c2", ParticipantLow: "alice", ParticipantHigh: "carol"}, UnreadCount: 2},
		{Conversation: models.Conversation{ID: "c1", ParticipantLow: "alice", ParticipantHigh: "bob"}},
	}
	f.convs.On("ListForUser", mock.Anything, "alice").Return(list, nil).Once()
	f.dir.On("BulkUsers", mock.Anything, []string{"carol", "bob"}).
		Return(map[string]models.UserSummary{"carol": {ID: "carol", Name: "Carol Counsel"}}, nil).Once()

	got, err := f.svc.ListConversations(context.Background(), "alice")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Carol Counsel", got[0].Participant.Name)
	assert.Equal(t, int64(2), got[0].UnreadCount)
	assert.Equal(t, models.UserSummary{ID: "bob"}, got[1].Participant)
	f.assertExpectations(t)
}

func TestListConversations_DirectoryDownDegrades(t *testing.T) {
	f := newFixture()
	list := []models.ConversationSummary{
		{Conversation: models.Conversation{ID: "c1", ParticipantLow: "alice", ParticipantHigh: "bob"}},
	}
	f.convs.On("ListForUser", mock.Anything, "bob").Return(list, nil).Once()
	f.dir.On("BulkUsers", mock.Anything, []string{"alice"}).Return(nil, errors.New("mongo down")).Once()

	got, err := f.svc.ListConversations(context.Background(), "bob")
	require.NoError(t, err)
	assert.Equal(t, "alice", got[0].Participant.ID)
}

func TestIsParticipant(t *testing.T) {
	f := newFixture()
	f.convs.On("IsParticipant", mock.Anything, convID, "alice").Return(true, nil).Once()

	ok, err := f.svc.IsParticipant(context.Background(), convID, "alice")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = f.svc.IsParticipant(context.Background(), "c1", "alice")
	require.NoError(t, err)
	assert.False(t, ok)
	f.convs.AssertExpectations(t)
}
