package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/rajyaabhishek/LawX-sub001/internal/models"
	"github.com/rajyaabhishek/LawX-sub001/internal/telemetry"
)

type NotificationService interface {
	ListForUser(ctx context.Context, recipientID string, page, limit int) (models.NotificationPage, error)
	UnreadCount(ctx context.Context, recipientID string) (int64, error)
	MarkRead(ctx context.Context, recipientID string, ids []string) (int64, error)
	MarkAllRead(ctx context.Context, recipientID string) (int64, error)
	Delete(ctx context.Context, recipientID, id string) error
}

// NotificationHandler serves the authenticated user's notification log.
type NotificationHandler struct {
	notifications NotificationService
	audit         *telemetry.AuditEmitter
}

func NewNotificationHandler(notifications NotificationService, audit *telemetry.AuditEmitter) *NotificationHandler {
	return &NotificationHandler{notifications: notifications, audit: audit}
}

// List returns one page, newest first. Missing page and limit select the
// defaults.
func (h *NotificationHandler) List(c *gin.Context) {
	page, ok := queryInt(c, "page")
	if !ok {
		return
	}
	limit, ok := queryInt(c, "limit")
	if !ok {
		return
	}

	result, err := h.notifications.ListForUser(c.Request.Context(), currentUser(c), page, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *NotificationHandler) UnreadCount(c *gin.Context) {
	n, err := h.notifications.UnreadCount(c.Request.Context(), currentUser(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": n})
}

// MarkRead flips the listed notifications of the caller.
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	var req struct {
		IDs []string `json:"ids" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ids are required"})
		return
	}

	n, err := h.notifications.MarkRead(c.Request.Context(), currentUser(c), req.IDs)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": n})
}

func (h *NotificationHandler) MarkOneRead(c *gin.Context) {
	n, err := h.notifications.MarkRead(c.Request.Context(), currentUser(c), []string{c.Param("id")})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": n})
}

func (h *NotificationHandler) MarkAllRead(c *gin.Context) {
	n, err := h.notifications.MarkAllRead(c.Request.Context(), currentUser(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": n})
}

// Delete removes a notification at the owner's request. Deletions are
// audited.
func (h *NotificationHandler) Delete(c *gin.Context) {
	id := c.Param("id")
	if err := h.notifications.Delete(c.Request.Context(), currentUser(c), id); err != nil {
		respondError(c, err)
		return
	}
	h.audit.EmitWithFields(c.Request.Context(), "INFO", "notification deleted",
		requestIDFromContext(c), userIDFromContext(c), map[string]string{"notification_id": id})
	c.Status(http.StatusNoContent)
}

// queryInt reads an optional integer query parameter; absent is 0. It
// writes the 400 itself when the value is not a number.
func queryInt(c *gin.Context, key string) (int, bool) {
	raw := c.Query(key)
	if raw == "" {
		return 0, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + key})
		return 0, false
	}
	return v, true
}
