package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"dm-service/internal/telemetry"
)

// SubscriberCounter reports live subscriptions per push channel.
type SubscriberCounter interface {
	Subscribers(channel string) int
}

// RegisterDebugRoutes wires debug-only endpoints.
func RegisterDebugRoutes(router *gin.Engine, emitter *telemetry.AuditEmitter, hub SubscriberCounter, enabled bool) {
	if !enabled {
		return
	}

	debug := router.Group("/debug")
	debug.GET("/audit-test", func(c *gin.Context) {
		if emitter == nil {
			c.String(http.StatusServiceUnavailable, "audit emitter not configured")
			return
		}
		emitter.EmitWith(c.Request.Context(), "INFO", "audit test", requestIDFromContext(c), userIDFromContext(c), map[string]string{
			"route": c.FullPath(),
		})
		c.String(http.StatusOK, "OK")
	})
	debug.GET("/subscribers", func(c *gin.Context) {
		channel := c.Query("channel")
		if channel == "" || hub == nil {
			c.String(http.StatusBadRequest, "channel is required")
			return
		}
		c.JSON(http.StatusOK, gin.H{"channel": channel, "subscribers": hub.Subscribers(channel)})
	})
}
