package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/rajyaabhishek/LawX-sub001/internal/apperrors"
	"github.com/rajyaabhishek/LawX-sub001/internal/logger"
)

// respondError writes the public part of err. Causes of server-side
// failures only reach the log.
func respondError(c *gin.Context, err error) {
	status := apperrors.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		logger.Error().Err(err).
			Str("route", c.FullPath()).
			Str("request_id", requestIDFromContext(c)).
			Msg("request failed")
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, gin.H{"error": apperrors.PublicMessage(err)})
}
