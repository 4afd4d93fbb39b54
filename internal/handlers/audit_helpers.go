package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/rajyaabhishek/LawX-sub001/internal/middleware"
)

func requestIDFromContext(c *gin.Context) string {
	if id := c.GetString(middleware.RequestIDKey); id != "" {
		return id
	}

	requestID := c.GetHeader("X-Request-ID")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Set(middleware.RequestIDKey, requestID)
	return requestID
}

// userIDFromContext is the authenticated canonical user id, or nil on
// public routes.
func userIDFromContext(c *gin.Context) *string {
	if id := c.GetString(middleware.UserIDKey); id != "" {
		return &id
	}
	return nil
}

func currentUser(c *gin.Context) string {
	return c.GetString(middleware.UserIDKey)
}
