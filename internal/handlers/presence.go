package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type Presence interface {
	OnlineUsers() []string
}

type PresenceHandler struct {
	presence Presence
}

func NewPresenceHandler(presence Presence) *PresenceHandler {
	return &PresenceHandler{presence: presence}
}

// OnlineUsers lists the users with a live channel on this instance.
func (h *PresenceHandler) OnlineUsers(c *gin.Context) {
	users := h.presence.OnlineUsers()
	if users == nil {
		users = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"users": users, "count": len(users)})
}
