package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/rajyaabhishek/LawX-sub001/internal/logger"
	"github.com/rajyaabhishek/LawX-sub001/internal/media"
)

type ImageSource interface {
	Open(ctx context.Context, fileID string) (io.ReadCloser, media.StoredFile, error)
}

// MediaHandler streams stored chat images to the two participants of the
// conversation they were sent in.
type MediaHandler struct {
	images ImageSource
}

func NewMediaHandler(images ImageSource) *MediaHandler {
	return &MediaHandler{images: images}
}

func (h *MediaHandler) ServeImage(c *gin.Context) {
	rc, file, err := h.images.Open(c.Request.Context(), c.Param("id"))
	if errors.Is(err, media.ErrImageNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "image not found"})
		return
	}
	if err != nil {
		logger.Error().Err(err).Str("file_id", c.Param("id")).Msg("image read failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load image"})
		return
	}
	defer rc.Close()

	// same answer as a missing id so ids cannot be confirmed by outsiders
	if !file.VisibleTo(currentUser(c)) {
		c.JSON(http.StatusNotFound, gin.H{"error": "image not found"})
		return
	}

	c.DataFromReader(http.StatusOK, file.Size, file.MIMEType, rc, map[string]string{
		"Cache-Control":          "private, max-age=86400, immutable",
		"X-Content-Type-Options": "nosniff",
	})
}
