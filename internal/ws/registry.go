package ws

import (
	"errors"
	"sort"
	"sync"

	"github.com/rajyaabhishek/LawX-sub001/internal/logger"
	"github.com/rajyaabhishek/LawX-sub001/internal/models"
	"github.com/rajyaabhishek/LawX-sub001/internal/observability"
)

var (
	ErrMissingIdentity = errors.New("connection has no user identity")
	ErrSlowConsumer    = errors.New("send buffer full")
	ErrChannelClosed   = errors.New("channel closed")
)

// Channel is a live, push-capable connection to one user.
type Channel interface {
	Send(event models.Event) error
	Close()
}

func PersonalRoom(userID string) string {
	return "user:" + userID
}

func ConversationRoom(conversationID string) string {
	return "conversation:" + conversationID
}

// Registry tracks which users are connected and which rooms they joined.
// A user has at most one channel: the most recent registration wins.
type Registry struct {
	mu      sync.RWMutex
	clients map[string]Channel
	rooms   map[string]map[string]struct{} // room -> user ids
	joined  map[string]map[string]struct{} // user id -> rooms
}

func NewRegistry() *Registry {
	return &Registry{
		clients: make(map[string]Channel),
		rooms:   make(map[string]map[string]struct{}),
		joined:  make(map[string]map[string]struct{}),
	}
}

// Register stores ch as the user's channel, replacing any previous one, and
// announces the user to everyone else.
func (r *Registry) Register(userID string, ch Channel) error {
	if userID == "" {
		ch.Close()
		return ErrMissingIdentity
	}

	r.mu.Lock()
	r.clients[userID] = ch
	r.joinLocked(userID, PersonalRoom(userID))
	targets := r.snapshotLocked()
	online := r.onlineLocked()
	r.mu.Unlock()

	logger.Debug().Str("user_id", userID).Int("online", len(online)).Msg("channel registered")

	for id, target := range targets {
		if id != userID {
			push(id, target, models.Event{Type: models.EventUserOnline, UserID: userID}, "presence")
		}
	}
	r.pushOnlineList(targets, online)
	return nil
}

// Unregister removes the user only if ch is still their current channel.
// It reports whether anything was removed.
func (r *Registry) Unregister(userID string, ch Channel) bool {
	r.mu.Lock()
	current, ok := r.clients[userID]
	if !ok || current != ch {
		r.mu.Unlock()
		return false
	}
	delete(r.clients, userID)
	for room := range r.joined[userID] {
		r.leaveLocked(userID, room)
	}
	targets := r.snapshotLocked()
	online := r.onlineLocked()
	r.mu.Unlock()

	logger.Debug().Str("user_id", userID).Int("online", len(online)).Msg("channel unregistered")

	for id, target := range targets {
		push(id, target, models.Event{Type: models.EventUserOffline, UserID: userID}, "presence")
	}
	r.pushOnlineList(targets, online)
	return true
}

func (r *Registry) Lookup(userID string) (Channel, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ch, ok := r.clients[userID]
	return ch, ok
}

func (r *Registry) IsOnline(userID string) bool {
	_, ok := r.Lookup(userID)
	return ok
}

// OnlineUsers returns the connected user ids in ascending order.
func (r *Registry) OnlineUsers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.onlineLocked()
}

// JoinRoom is idempotent. Only connected users can join; the result tells
// whether the user is a member afterwards.
func (r *Registry) JoinRoom(userID, room string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.clients[userID]; !ok {
		return false
	}
	r.joinLocked(userID, room)
	return true
}

func (r *Registry) LeaveRoom(userID, room string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leaveLocked(userID, room)
}

func (r *Registry) InRoom(userID, room string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.rooms[room][userID]
	return ok
}

// RoomMembers returns the member ids of room in ascending order.
func (r *Registry) RoomMembers(room string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	members := make([]string, 0, len(r.rooms[room]))
	for id := range r.rooms[room] {
		members = append(members, id)
	}
	sort.Strings(members)
	return members
}

// BroadcastToRoom pushes event to every member of room except the given
// user and returns how many pushes succeeded.
func (r *Registry) BroadcastToRoom(room string, event models.Event, except string) int {
	r.mu.RLock()
	targets := make(map[string]Channel, len(r.rooms[room]))
	for id := range r.rooms[room] {
		if id == except {
			continue
		}
		if ch, ok := r.clients[id]; ok {
			targets[id] = ch
		}
	}
	r.mu.RUnlock()

	delivered := 0
	for id, ch := range targets {
		if push(id, ch, event, "room") {
			delivered++
		}
	}
	return delivered
}

func (r *Registry) pushOnlineList(targets map[string]Channel, online []string) {
	for id, target := range targets {
		push(id, target, models.Event{Type: models.EventOnlineUsers, OnlineUsers: online}, "presence")
	}
}

func (r *Registry) joinLocked(userID, room string) {
	if _, ok := r.rooms[room]; !ok {
		r.rooms[room] = make(map[string]struct{})
	}
	r.rooms[room][userID] = struct{}{}
	if _, ok := r.joined[userID]; !ok {
		r.joined[userID] = make(map[string]struct{})
	}
	r.joined[userID][room] = struct{}{}
}

func (r *Registry) leaveLocked(userID, room string) {
	if members, ok := r.rooms[room]; ok {
		delete(members, userID)
		if len(members) == 0 {
			delete(r.rooms, room)
		}
	}
	if rooms, ok := r.joined[userID]; ok {
		delete(rooms, room)
		if len(rooms) == 0 {
			delete(r.joined, userID)
		}
	}
}

func (r *Registry) snapshotLocked() map[string]Channel {
	targets := make(map[string]Channel, len(r.clients))
	for id, ch := range r.clients {
		targets[id] = ch
	}
	return targets
}

func (r *Registry) onlineLocked() []string {
	online := make([]string, 0, len(r.clients))
	for id := range r.clients {
		online = append(online, id)
	}
	sort.Strings(online)
	return online
}

func push(userID string, ch Channel, event models.Event, kind string) bool {
	if err := ch.Send(event); err != nil {
		logger.Warn().Err(err).Str("user_id", userID).Str("event", string(event.Type)).Msg("push to channel failed")
		observability.IncPush(kind, "failed")
		return false
	}
	observability.IncPush(kind, "delivered")
	return true
}
