package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"opschat/internal/registry"
	"opschat/internal/telemetry"
)

// RegisterDebugRoutes wires debug-only endpoints: a live presence dump and a
// round-trip check of the audit pipeline. Off unless explicitly enabled.
func RegisterDebugRoutes(router *gin.Engine, presence *registry.Registry, emitter *telemetry.AuditEmitter, enabled bool) {
	if !enabled {
		return
	}

	router.GET("/debug/presence", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"online_users": presence.OnlineUsers(),
			"rooms":        presence.RoomOccupancy(),
		})
	})

	router.GET("/debug/audit-test", func(c *gin.Context) {
		if emitter == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "audit emitter not configured"})
			return
		}
		emitter.Emit(c.Request.Context(), "INFO", "audit test", requestIDFromContext(c), userIDFromContext(c))
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
}
