package grpcapi

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/rajyaabhishek/LawX-sub001/internal/mocks"
	"github.com/rajyaabhishek/LawX-sub001/internal/models"
	"github.com/rajyaabhishek/LawX-sub001/internal/notifications"
)

type harness struct {
	conn   *grpc.ClientConn
	store  *mocks.NotificationRepositoryMock
	dir    *mocks.DirectoryMock
	outbox *mocks.DispatcherMock
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		store:  new(mocks.NotificationRepositoryMock),
		dir:    new(mocks.DirectoryMock),
		outbox: new(mocks.DispatcherMock),
	}
	svc := notifications.NewService(h.store, h.dir, h.outbox)

	lis := bufconn.Listen(1 << 20)
	srv, _ := NewGRPCServer(svc)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	h.conn = conn
	return h
}

func (h *harness) call(t *testing.T, method string, req map[string]any) (*structpb.Struct, error) {
	t.Helper()
	in, err := structpb.NewStruct(req)
	require.NoError(t, err)
	out := new(structpb.Struct)
	err = h.conn.Invoke(context.Background(), "/"+ServiceName+"/"+method, in, out)
	return out, err
}

// captureCreates answers Create with the input plus an id.
func (h *harness) captureCreates(into *[]models.Notification) {
	h.store.On("Create", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			*into = append(*into, args.Get(1).(models.Notification))
		}).
		Return(models.Notification{ID: "n1", RecipientID: "poster", Type: models.NotificationCaseApplication}, nil)
	h.outbox.On("PushNotification", mock.Anything)
}

func TestHealthReportsServing(t *testing.T) {
	h := newHarness(t)

	resp, err := healthpb.NewHealthClient(h.conn).Check(context.Background(), &healthpb.HealthCheckRequest{Service: ServiceName})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())
}

func TestCreateNotification(t *testing.T) {
	h := newHarness(t)
	var created []models.Notification
	h.captureCreates(&created)

	out, err := h.call(t, "CreateNotification", map[string]any{
		"recipient_id":    "alice",
		"type":            "comment",
		"related_post_id": "post-7",
		"payload":         map[string]any{"post_id": "post-7", "preview": "great write-up"},
	})
	require.NoError(t, err)
	assert.Equal(t, "n1", out.GetFields()["notification"].GetStructValue().GetFields()["id"].GetStringValue())

	require.Len(t, created, 1)
	assert.Equal(t, models.NotificationComment, created[0].Type)
	assert.Equal(t, models.CommentPayload{PostID: "post-7", Preview: "great write-up"}, created[0].Payload)
}

func TestCreateNotificationInvalid(t *testing.T) {
	h := newHarness(t)

	_, err := h.call(t, "CreateNotification", map[string]any{"recipient_id": "alice", "type": "poke"})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = h.call(t, "CreateNotification", map[string]any{"type": "like"})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
	assert.Equal(t, "recipient is required", status.Convert(err).Message())

	h.store.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestNotifyCaseApplication(t *testing.T) {
	h := newHarness(t)
	var created []models.Notification
	h.captureCreates(&created)

	out, err := h.call(t, "NotifyCaseApplication", map[string]any{
		"case_id":        "case-1",
		"case_title":     "Tenancy dispute",
		"poster_id":      "poster",
		"lawyer_id":      "lawyer",
		"lawyer_name":    "Lee",
		"application_id": "app-3",
	})
	require.NoError(t, err)
	assert.False(t, out.GetFields()["skipped"].GetBoolValue())

	require.Len(t, created, 1)
	assert.Equal(t, "poster", created[0].RecipientID)
	assert.Equal(t, "lawyer", *created[0].RelatedUserID)
	assert.Equal(t, "case-1", *created[0].RelatedCaseID)
}

func TestNotifyApplicationDecisionSkipsSelf(t *testing.T) {
	h := newHarness(t)

	out, err := h.call(t, "NotifyApplicationDecision", map[string]any{
		"case_id":   "case-1",
		"poster_id": "poster",
		"lawyer_id": "poster",
		"accepted":  true,
	})
	require.NoError(t, err)
	assert.True(t, out.GetFields()["skipped"].GetBoolValue())
}

func TestNotifyNewCaseFanOut(t *testing.T) {
	h := newHarness(t)
	var created []models.Notification
	h.captureCreates(&created)
	h.dir.On("VerifiedLawyerIDs", mock.Anything).Return([]string{"l1", "l2", "poster"}, nil).Once()

	out, err := h.call(t, "NotifyNewCase", map[string]any{"case_id": "case-1", "case_title": "Will probate", "poster_id": "poster"})
	require.NoError(t, err)
	assert.Equal(t, float64(2), out.GetFields()["created"].GetNumberValue())

	var recipients []string
	for _, n := range created {
		recipients = append(recipients, n.RecipientID)
	}
	assert.Equal(t, []string{"l1", "l2"}, recipients)
}

func TestNotifyCaseStatusUpdateNeedsStatus(t *testing.T) {
	h := newHarness(t)

	_, err := h.call(t, "NotifyCaseStatusUpdate", map[string]any{
		"case_id":       "case-1",
		"poster_id":     "poster",
		"recipient_ids": []any{"l1"},
	})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestNotifyNewCasePartialFailureHidesCause(t *testing.T) {
	h := newHarness(t)
	h.dir.On("VerifiedLawyerIDs", mock.Anything).Return([]string{"l1", "l2"}, nil).Once()
	h.store.On("Create", mock.Anything, mock.MatchedBy(func(n models.Notification) bool { return n.RecipientID == "l1" })).
		Return(nil, errors.New(`pq: duplicate key value violates unique constraint "notifications_pkey"`)).Once()
	h.store.On("Create", mock.Anything, mock.MatchedBy(func(n models.Notification) bool { return n.RecipientID == "l2" })).
		Return(models.Notification{ID: "n2", RecipientID: "l2", Type: models.NotificationNewCase}, nil).Once()
	h.outbox.On("PushNotification", mock.Anything).Once()

	out, err := h.call(t, "NotifyNewCase", map[string]any{"case_id": "case-1", "case_title": "Lease", "poster_id": "poster"})
	require.NoError(t, err)

	fields := out.GetFields()
	assert.Equal(t, float64(1), fields["created"].GetNumberValue())
	failed := fields["failed"].GetListValue().GetValues()
	require.Len(t, failed, 1)
	assert.Equal(t, "l1", failed[0].GetStringValue())
	assert.Equal(t, "internal server error", fields["error"].GetStringValue())
	assert.NotContains(t, out.String(), "pq:")
}
