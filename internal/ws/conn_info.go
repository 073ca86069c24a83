package ws

import (
	"time"

	"dm-service/internal/observability"
)

// ConnInfo describes a subscribed connection for logs and lifecycle events.
type ConnInfo struct {
	observability.Identity
	ConnID      string
	UserID      string
	TraceID     string
	ConnectedAt time.Time
}

func (i ConnInfo) lifecyclePayload(channel, event, reason string) map[string]interface{} {
	kind := channelKind(channel)
	return map[string]interface{}{
		"ws": map[string]interface{}{
			"kind":        kind,
			"channel":     channel,
			"event":       event,
			"conn_id":     i.ConnID,
			"duration_ms": time.Since(i.ConnectedAt).Milliseconds(),
			"reason":      reason,
		},
		"identity": map[string]interface{}{
			"user_id":   i.UserID,
			"device_id": i.DeviceID,
			"ip":        i.IP,
		},
	}
}
