//go:build integration

package repositories

import (
	"context"
	"log"
	"os"
	"sync"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/rajyaabhishek/LawX-sub001/internal/db"
	"github.com/rajyaabhishek/LawX-sub001/internal/models"
)

var testDB *sqlx.DB

func TestMain(m *testing.M) {
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("lawx_realtime"),
		postgres.WithUsername("lawx"),
		postgres.WithPassword("password"),
		testcontainers.WithEnv(map[string]string{"TZ": "UTC"}),
		postgres.BasicWaitStrategies(),
	)
	if err != nil {
		log.Printf("failed to start container: %s", err)
		os.Exit(1)
	}

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		log.Fatalf("failed to get connection string: %v", err)
	}

	testDB, err = sqlx.ConnectContext(ctx, "postgres", connStr)
	if err != nil {
		log.Fatalf("failed to connect: %v", err)
	}
	if err := db.Migrate(ctx, testDB); err != nil {
		log.Fatalf("failed to migrate: %v", err)
	}

	code := m.Run()

	testDB.Close()
	if err := container.Terminate(ctx); err != nil {
		log.Printf("failed to terminate container: %s", err)
	}
	os.Exit(code)
}

func TestIntegration_ConcurrentGetOrCreateConverges(t *testing.T) {
	repo := NewConversationRepo(testDB)
	ctx := context.Background()

	const workers = 16
	ids := make([]string, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a, b := "race-a", "race-b"
			if i%2 == 1 {
				a, b = b, a
			}
			conv, err := repo.GetOrCreate(ctx, a, b)
			assert.NoError(t, err)
			ids[i] = conv.ID
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}

	var count int
	require.NoError(t, testDB.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM conversations WHERE participant_low='race-a' AND participant_high='race-b'`))
	assert.Equal(t, 1, count)
}

func TestIntegration_MessageFlow(t *testing.T) {
	ctx := context.Background()
	conversations := NewConversationRepo(testDB)
	messages := NewMessageRepo(testDB, 90)

	conv, err := conversations.GetOrCreate(ctx, "flow-a", "flow-b")
	require.NoError(t, err)

	_, err = messages.Append(ctx, conv.ID, "flow-a", "hi", "")
	require.NoError(t, err)
	_, err = messages.Append(ctx, conv.ID, "flow-a", "", "/media/abc")
	require.NoError(t, err)

	list, err := messages.ListByConversation(ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "hi", list[0].Text)
	assert.Less(t, list[0].Seq, list[1].Seq)

	summaries, err := conversations.ListForUser(ctx, "flow-b")
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, int64(2), summaries[0].UnreadCount)
	assert.Equal(t, "/media/abc", summaries[0].LastMessage.Image)
	assert.Equal(t, "flow-a", summaries[0].LastMessage.SenderID)

	seen, err := messages.MarkSeenFromOther(ctx, conv.ID, "flow-b")
	require.NoError(t, err)
	assert.Equal(t, int64(2), seen)

	again, err := messages.MarkSeenFromOther(ctx, conv.ID, "flow-b")
	require.NoError(t, err)
	assert.Zero(t, again)

	ownView, err := messages.MarkSeenFromOther(ctx, conv.ID, "flow-a")
	require.NoError(t, err)
	assert.Zero(t, ownView)

	refreshed, err := conversations.Get(ctx, conv.ID)
	require.NoError(t, err)
	assert.True(t, refreshed.LastMessage.Seen)
}

func TestIntegration_SeenSnapshotMatchesMessagesUnderConcurrentSends(t *testing.T) {
	ctx := context.Background()
	conversations := NewConversationRepo(testDB)
	messages := NewMessageRepo(testDB, 90)

	conv, err := conversations.GetOrCreate(ctx, "seen-a", "seen-b")
	require.NoError(t, err)

	const rounds = 50
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < rounds; i++ {
			_, err := messages.Append(ctx, conv.ID, "seen-a", "ping", "")
			assert.NoError(t, err)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < rounds; i++ {
			_, err := messages.MarkSeenFromOther(ctx, conv.ID, "seen-b")
			assert.NoError(t, err)
		}
	}()
	wg.Wait()

	var unseen int
	require.NoError(t, testDB.GetContext(ctx, &unseen,
		`SELECT COUNT(*) FROM messages WHERE conversation_id=$1 AND sender_id <> 'seen-b' AND seen = FALSE`, conv.ID))
	refreshed, err := conversations.Get(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, unseen == 0, refreshed.LastMessage.Seen)

	_, err = messages.MarkSeenFromOther(ctx, conv.ID, "seen-b")
	require.NoError(t, err)
	refreshed, err = conversations.Get(ctx, conv.ID)
	require.NoError(t, err)
	assert.True(t, refreshed.LastMessage.Seen)
}

func TestIntegration_NotificationLifecycle(t *testing.T) {
	ctx := context.Background()
	repo := NewNotificationRepo(testDB)

	created, err := repo.Create(ctx, models.Notification{
		RecipientID: "notif-owner",
		Type:        models.NotificationLike,
		Message:     "liked your post",
		Payload:     models.LikePayload{PostID: "post-1"},
	})
	require.NoError(t, err)
	assert.False(t, created.Read)
	assert.False(t, created.Delivered)

	foreign, err := repo.MarkRead(ctx, "someone-else", []string{created.ID})
	require.NoError(t, err)
	assert.Zero(t, foreign)

	count, err := repo.UnreadCount(ctx, "notif-owner")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	updated, err := repo.MarkRead(ctx, "notif-owner", []string{created.ID})
	require.NoError(t, err)
	assert.Equal(t, int64(1), updated)

	updated, err = repo.MarkRead(ctx, "notif-owner", []string{created.ID})
	require.NoError(t, err)
	assert.Zero(t, updated)

	list, total, err := repo.ListForUser(ctx, "notif-owner", 20, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, list, 1)
	assert.True(t, list[0].Read)
	assert.True(t, list[0].Delivered)
	assert.Equal(t, models.LikePayload{PostID: "post-1"}, list[0].Payload)
}
