package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"

	"github.com/rajyaabhishek/LawX-sub001/internal/logger"
	"github.com/rajyaabhishek/LawX-sub001/internal/middleware"
	"github.com/rajyaabhishek/LawX-sub001/internal/models"
	"github.com/rajyaabhishek/LawX-sub001/internal/observability"
)

// IdentityResolver maps a client supplied id to the canonical user id.
type IdentityResolver interface {
	Resolve(ctx context.Context, id string) (string, error)
}

// TokenVerifier returns the external user id a bearer token was issued to.
type TokenVerifier interface {
	Subject(token string) (string, error)
}

type ParticipantChecker interface {
	IsParticipant(ctx context.Context, conversationID, userID string) (bool, error)
}

// Reconciler catches a freshly connected user up on what they missed.
type Reconciler interface {
	Reconcile(userID string)
}

type Options struct {
	IdleTimeout    time.Duration
	SendBuffer     int
	TypingInterval time.Duration
}

// Handler upgrades HTTP requests to live channels and serves their events.
type Handler struct {
	registry      *Registry
	resolver      IdentityResolver
	verifier      TokenVerifier
	conversations ParticipantChecker
	reconciler    Reconciler
	opts          Options
}

// NewHandler constructs a Handler. verifier may be nil, in which case the
// userId query parameter alone identifies the connection.
func NewHandler(registry *Registry, resolver IdentityResolver, verifier TokenVerifier, conversations ParticipantChecker, reconciler Reconciler, opts Options) *Handler {
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = 60 * time.Second
	}
	if opts.TypingInterval <= 0 {
		opts.TypingInterval = 3 * time.Second
	}
	return &Handler{
		registry:      registry,
		resolver:      resolver,
		verifier:      verifier,
		conversations: conversations,
		reconciler:    reconciler,
		opts:          opts,
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handle authenticates the handshake, upgrades and registers the channel.
func (h *Handler) Handle(c *gin.Context) {
	requested := c.Query("userId")
	if requested == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "userId is required"})
		return
	}

	ctx, span := otel.Tracer("lawx-realtime/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	userID, err := h.resolver.Resolve(ctx, requested)
	if err != nil {
		logger.Warn().Err(err).Str("user_id", requested).Msg("ws handshake: unknown user")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unknown user"})
		return
	}

	if h.verifier != nil {
		if !h.tokenMatches(ctx, bearerToken(c), userID) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
	}
	span.SetAttributes(attribute.String("user.id", userID))

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	info := newConnInfo(c.Request, c.GetString(middleware.RequestIDKey), userID, requested, span.SpanContext().TraceID().String())
	client := newClient(conn, info, h.opts.SendBuffer, h.opts.IdleTimeout)
	go client.writePump()

	if err := h.registry.Register(userID, client); err != nil {
		return
	}

	// the request context ends with this handler, the channel outlives it
	connCtx := context.WithoutCancel(ctx)
	observability.IncWSActive()
	publishWSEvent(connCtx, "ws_connect", info, "")
	info.log(logger.Info()).Msg("channel connected")

	if h.reconciler != nil {
		h.reconciler.Reconcile(userID)
	}

	go h.serve(connCtx, client)
}

func (h *Handler) tokenMatches(ctx context.Context, token, userID string) bool {
	if token == "" {
		return false
	}
	subject, err := h.verifier.Subject(token)
	if err != nil {
		return false
	}
	owner, err := h.resolver.Resolve(ctx, subject)
	return err == nil && owner == userID
}

func bearerToken(c *gin.Context) string {
	if header := c.GetHeader("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			return strings.TrimSpace(parts[1])
		}
		return ""
	}
	return c.Query("token")
}

func (h *Handler) serve(ctx context.Context, client *Client) {
	info := client.info
	typing := rate.NewLimiter(rate.Every(h.opts.TypingInterval), 1)

	readErr := client.readPump(func(frame []byte) {
		h.handleFrame(ctx, client, typing, frame)
	})
	client.closeWith(readErr)

	h.registry.Unregister(info.userID, client)
	observability.DecWSActive()

	reason := readErr.Error()
	if cause := client.Err(); cause != nil {
		reason = cause.Error()
	}
	if !websocket.IsCloseError(readErr, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		publishWSEvent(ctx, "ws_error", info, reason)
	}
	publishWSEvent(ctx, "ws_disconnect", info, reason)
	info.log(logger.Info()).Str("reason", reason).Msg("channel closed")
}

func (h *Handler) handleFrame(ctx context.Context, client *Client, typing *rate.Limiter, frame []byte) {
	userID := client.info.userID

	var in models.ClientEvent
	if err := json.Unmarshal(frame, &in); err != nil {
		h.reply(client, models.Event{Type: models.EventError, Error: "malformed event"})
		return
	}
	if !in.Type.Inbound() {
		observability.IncWSEvent("unknown")
		h.reply(client, models.Event{Type: models.EventError, Error: "unknown event type"})
		return
	}
	observability.IncWSEvent(string(in.Type))

	switch in.Type {
	case models.EventTyping:
		if in.ConversationID == "" {
			h.reply(client, models.Event{Type: models.EventError, Error: "conversation_id is required"})
			return
		}
		room := ConversationRoom(in.ConversationID)
		if !h.registry.InRoom(userID, room) {
			h.reply(client, models.Event{Type: models.EventError, ConversationID: in.ConversationID, Error: "join the conversation first"})
			return
		}
		if in.IsTyping && !typing.Allow() {
			observability.IncRateLimited("typing")
			return
		}
		isTyping := in.IsTyping
		h.registry.BroadcastToRoom(room, models.Event{
			Type:           models.EventTyping,
			UserID:         userID,
			ConversationID: in.ConversationID,
			IsTyping:       &isTyping,
		}, userID)

	case models.EventJoinConversation:
		if in.ConversationID == "" {
			h.reply(client, models.Event{Type: models.EventError, Error: "conversation_id is required"})
			return
		}
		ok, err := h.conversations.IsParticipant(ctx, in.ConversationID, userID)
		if err != nil {
			logger.Error().Err(err).Str("user_id", userID).Str("conversation_id", in.ConversationID).Msg("participant check failed")
			h.reply(client, models.Event{Type: models.EventError, ConversationID: in.ConversationID, Error: "could not join conversation"})
			return
		}
		if !ok {
			h.reply(client, models.Event{Type: models.EventError, ConversationID: in.ConversationID, Error: "not a participant"})
			return
		}
		h.registry.JoinRoom(userID, ConversationRoom(in.ConversationID))

	case models.EventLeaveConversation:
		if in.ConversationID != "" {
			h.registry.LeaveRoom(userID, ConversationRoom(in.ConversationID))
		}

	case models.EventOnlineUsers:
		h.reply(client, models.Event{Type: models.EventOnlineUsers, OnlineUsers: h.registry.OnlineUsers()})
	}
}

func (h *Handler) reply(client *Client, event models.Event) {
	if err := client.Send(event); err != nil && !errors.Is(err, ErrChannelClosed) {
		client.info.log(logger.Warn()).Err(err).Msg("reply to channel failed")
	}
}
