package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/rajyaabhishek/LawX-sub001/internal/messaging"
	"github.com/rajyaabhishek/LawX-sub001/internal/models"
)

type MessageService interface {
	SendMessage(ctx context.Context, senderID, recipientID string, in messaging.SendInput) (models.Message, error)
	History(ctx context.Context, viewerID, otherUserID string) ([]models.Message, error)
	ListConversations(ctx context.Context, userID string) ([]models.ConversationSummary, error)
	MarkSeen(ctx context.Context, viewerID, conversationID string) (int64, error)
}

// MessageHandler manages private messaging endpoints.
type MessageHandler struct {
	messages     MessageService
	maxBodyBytes int64
}

// NewMessageHandler builds a MessageHandler. Send bodies larger than
// maxBodyBytes are refused before they are decoded.
func NewMessageHandler(messages MessageService, maxBodyBytes int64) *MessageHandler {
	return &MessageHandler{messages: messages, maxBodyBytes: maxBodyBytes}
}

// SendMessage stores a message to :recipientId and returns it.
func (h *MessageHandler) SendMessage(c *gin.Context) {
	if h.maxBodyBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBodyBytes)
	}

	var req messaging.SendInput
	if err := c.ShouldBindJSON(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "message body too large"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	msg, err := h.messages.SendMessage(c.Request.Context(), currentUser(c), c.Param("recipientId"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

// GetMessages returns the conversation with :otherUserId and marks the
// counterpart's messages as seen.
func (h *MessageHandler) GetMessages(c *gin.Context) {
	msgs, err := h.messages.History(c.Request.Context(), currentUser(c), c.Param("otherUserId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

func (h *MessageHandler) ListConversations(c *gin.Context) {
	list, err := h.messages.ListConversations(c.Request.Context(), currentUser(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversations": list})
}

func (h *MessageHandler) MarkSeen(c *gin.Context) {
	n, err := h.messages.MarkSeen(c.Request.Context(), currentUser(c), c.Param("conversationId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": n})
}
