// Package delivery pushes persisted messages and notifications to live
// channels. Work arrives as jobs on a bounded outbox queue drained by a
// fixed worker pool; callers never wait on a push.
package delivery

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/rajyaabhishek/LawX-sub001/internal/logger"
	"github.com/rajyaabhishek/LawX-sub001/internal/models"
	"github.com/rajyaabhishek/LawX-sub001/internal/observability"
	"github.com/rajyaabhishek/LawX-sub001/internal/ws"
)

type JobKind string

const (
	JobMessage      JobKind = "message"
	JobNotification JobKind = "notification"
	JobMessagesSeen JobKind = "messages_seen"
	JobReconcile    JobKind = "reconcile"
)

// Job is one post-commit side effect.
type Job struct {
	Kind           JobKind
	RecipientID    string
	Message        *models.Message
	Notification   *models.Notification
	ConversationID string
	Count          int64
}

type Registry interface {
	Lookup(userID string) (ws.Channel, bool)
}

type IdentityResolver interface {
	Resolve(ctx context.Context, id string) (string, error)
}

type NotificationStore interface {
	MarkDelivered(ctx context.Context, ids []string) (int64, error)
	MarkAllDelivered(ctx context.Context, recipientID string) (int64, error)
	ListUnread(ctx context.Context, recipientID string, limit int) ([]models.Notification, error)
	UnreadCount(ctx context.Context, recipientID string) (int64, error)
}

type UserDirectory interface {
	BulkUsers(ctx context.Context, ids []string) (map[string]models.UserSummary, error)
}

type Options struct {
	Workers        int
	QueueSize      int
	ReconnectBatch int
	JobTimeout     time.Duration
}

// Dispatcher is the outbox. The zero value is not usable; build one with New.
type Dispatcher struct {
	registry      Registry
	resolver      IdentityResolver
	notifications NotificationStore
	users         UserDirectory
	opts          Options

	jobs   chan Job
	wg     sync.WaitGroup
	mu     sync.RWMutex
	closed bool
}

func New(registry Registry, resolver IdentityResolver, notifications NotificationStore, users UserDirectory, opts Options) *Dispatcher {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 1024
	}
	if opts.ReconnectBatch <= 0 {
		opts.ReconnectBatch = 20
	}
	if opts.JobTimeout <= 0 {
		opts.JobTimeout = 10 * time.Second
	}
	return &Dispatcher{
		registry:      registry,
		resolver:      resolver,
		notifications: notifications,
		users:         users,
		opts:          opts,
		jobs:          make(chan Job, opts.QueueSize),
	}
}

// Start launches the worker pool.
func (d *Dispatcher) Start() {
	for i := 0; i < d.opts.Workers; i++ {
		d.wg.Add(1)
		go d.work()
	}
	logger.Info().Int("workers", d.opts.Workers).Int("queue_size", d.opts.QueueSize).Msg("delivery dispatcher started")
}

// Shutdown stops accepting jobs and waits for queued ones to finish, or
// for ctx to expire.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.jobs)
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		logger.Info().Msg("delivery dispatcher drained")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Enqueue never blocks. A full or closed queue drops the job; the event
// stays in storage and reaches the user on their next pull or reconnect.
func (d *Dispatcher) Enqueue(job Job) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		observability.IncOutboxDropped(string(job.Kind))
		return false
	}

	select {
	case d.jobs <- job:
		observability.SetOutboxDepth(len(d.jobs))
		return true
	default:
		logger.Warn().Str("job", string(job.Kind)).Str("recipient_id", job.RecipientID).Msg("outbox full, dropping delivery job")
		observability.IncOutboxDropped(string(job.Kind))
		return false
	}
}

func (d *Dispatcher) PushMessage(recipientID string, msg models.Message) {
	d.Enqueue(Job{Kind: JobMessage, RecipientID: recipientID, Message: &msg})
}

func (d *Dispatcher) PushNotification(n models.Notification) {
	d.Enqueue(Job{Kind: JobNotification, RecipientID: n.RecipientID, Notification: &n})
}

func (d *Dispatcher) PushMessagesSeen(viewerID, conversationID string, count int64) {
	d.Enqueue(Job{Kind: JobMessagesSeen, RecipientID: viewerID, ConversationID: conversationID, Count: count})
}

// Reconcile queues the catch-up for a user who just connected.
func (d *Dispatcher) Reconcile(userID string) {
	d.Enqueue(Job{Kind: JobReconcile, RecipientID: userID})
}

func (d *Dispatcher) work() {
	defer d.wg.Done()
	for job := range d.jobs {
		observability.SetOutboxDepth(len(d.jobs))
		ctx, cancel := context.WithTimeout(context.Background(), d.opts.JobTimeout)
		d.process(ctx, job)
		cancel()
	}
}

func (d *Dispatcher) process(ctx context.Context, job Job) {
	ctx, span := otel.Tracer("lawx-realtime/delivery").Start(ctx, "delivery."+string(job.Kind))
	defer span.End()
	span.SetAttributes(attribute.String("recipient.id", job.RecipientID))

	var err error
	switch job.Kind {
	case JobMessage:
		err = d.pushEvent(ctx, job.RecipientID, models.Event{Type: models.EventNewMessage, Message: job.Message}, job.Kind)
	case JobNotification:
		err = d.deliverNotification(ctx, job)
	case JobMessagesSeen:
		err = d.pushEvent(ctx, job.RecipientID, models.Event{
			Type:           models.EventMessagesSeen,
			ConversationID: job.ConversationID,
			Count:          job.Count,
		}, job.Kind)
	case JobReconcile:
		err = d.reconcile(ctx, job.RecipientID)
	default:
		err = errors.New("unknown job kind")
	}

	if err != nil && !errors.Is(err, errOffline) {
		span.RecordError(err)
		logger.Warn().Err(err).Str("job", string(job.Kind)).Str("recipient_id", job.RecipientID).Msg("delivery job failed")
	}
}

var errOffline = errors.New("recipient offline")

// channelFor finds the live channel of a user. Ids that are not registered
// as given are resolved to the canonical id and looked up once more.
func (d *Dispatcher) channelFor(ctx context.Context, userID string) (ws.Channel, bool) {
	if ch, ok := d.registry.Lookup(userID); ok {
		return ch, true
	}
	if d.resolver == nil {
		return nil, false
	}
	canonical, err := d.resolver.Resolve(ctx, userID)
	if err != nil || canonical == userID {
		return nil, false
	}
	return d.registry.Lookup(canonical)
}

func (d *Dispatcher) pushEvent(ctx context.Context, userID string, event models.Event, kind JobKind) error {
	ch, ok := d.channelFor(ctx, userID)
	if !ok {
		observability.IncPush(string(kind), "offline")
		return errOffline
	}
	if err := ch.Send(event); err != nil {
		observability.IncPush(string(kind), "failed")
		return err
	}
	observability.IncPush(string(kind), "delivered")
	return nil
}

func (d *Dispatcher) deliverNotification(ctx context.Context, job Job) error {
	if job.Notification == nil {
		return errors.New("notification job without notification")
	}
	n := *job.Notification
	d.attachRelatedUsers(ctx, []*models.Notification{&n})

	if err := d.pushEvent(ctx, job.RecipientID, models.Event{Type: models.EventNewNotification, Notification: &n}, job.Kind); err != nil {
		return err
	}
	if _, err := d.notifications.MarkDelivered(ctx, []string{n.ID}); err != nil {
		return err
	}
	return nil
}

func (d *Dispatcher) reconcile(ctx context.Context, userID string) error {
	ch, ok := d.channelFor(ctx, userID)
	if !ok {
		return errOffline
	}

	if _, err := d.notifications.MarkAllDelivered(ctx, userID); err != nil {
		return err
	}
	pending, err := d.notifications.ListUnread(ctx, userID, d.opts.ReconnectBatch)
	if err != nil {
		return err
	}
	unread, err := d.notifications.UnreadCount(ctx, userID)
	if err != nil {
		return err
	}

	refs := make([]*models.Notification, len(pending))
	for i := range pending {
		refs[i] = &pending[i]
	}
	d.attachRelatedUsers(ctx, refs)

	event := models.Event{Type: models.EventPendingNotifications, Notifications: pending, UnreadCount: &unread}
	if err := ch.Send(event); err != nil {
		observability.IncPush(string(JobReconcile), "failed")
		return err
	}
	observability.IncPush(string(JobReconcile), "delivered")
	return nil
}

// attachRelatedUsers fills RelatedUser from the directory. Lookup failures
// leave the summaries empty; the notification is still delivered.
func (d *Dispatcher) attachRelatedUsers(ctx context.Context, notifications []*models.Notification) {
	if d.users == nil {
		return
	}
	ids := make([]string, 0, len(notifications))
	seen := make(map[string]struct{}, len(notifications))
	for _, n := range notifications {
		if n.RelatedUser != nil || n.RelatedUserID == nil || *n.RelatedUserID == "" {
			continue
		}
		if _, dup := seen[*n.RelatedUserID]; !dup {
			seen[*n.RelatedUserID] = struct{}{}
			ids = append(ids, *n.RelatedUserID)
		}
	}
	if len(ids) == 0 {
		return
	}

	users, err := d.users.BulkUsers(ctx, ids)
	if err != nil {
		logger.Warn().Err(err).Int("users", len(ids)).Msg("related user lookup failed")
		return
	}
	for _, n := range notifications {
		if n.RelatedUserID == nil || n.RelatedUser != nil {
			continue
		}
		if u, ok := users[*n.RelatedUserID]; ok {
			summary := u
			n.RelatedUser = &summary
		}
	}
}
