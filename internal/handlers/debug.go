package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/rajyaabhishek/LawX-sub001/internal/telemetry"
)

// RegisterDebugRoutes adds operator probes. Nothing is registered unless
// enabled, so production routers answer 404.
func RegisterDebugRoutes(router gin.IRouter, emitter *telemetry.AuditEmitter, presence Presence, enabled bool) {
	if !enabled {
		return
	}

	debug := router.Group("/debug")
	debug.GET("/audit-test", func(c *gin.Context) {
		if emitter == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "audit emitter not configured"})
			return
		}
		emitter.EmitWithFields(c.Request.Context(), "INFO", "audit probe", requestIDFromContext(c), userIDFromContext(c),
			map[string]string{"probe": "debug_route"})
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	if presence != nil {
		debug.GET("/channels", func(c *gin.Context) {
			online := presence.OnlineUsers()
			c.JSON(http.StatusOK, gin.H{"open_channels": len(online)})
		})
	}
}
