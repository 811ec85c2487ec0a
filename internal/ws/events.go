package ws

import (
	"context"
	"time"

	"realtime-service/internal/observability"
)

// PublishConnect reports a new connection on the event bus.
func PublishConnect(ctx context.Context, info ConnInfo) {
	observability.IncWSActive(info.Kind)
	publishLifecycle(ctx, info, "ws_connect", "")
}

// PublishDisconnect reports a closed connection on the event bus.
func PublishDisconnect(ctx context.Context, info ConnInfo, reason string) {
	observability.DecWSActive(info.Kind)
	publishLifecycle(ctx, info, "ws_disconnect", reason)
}

func publishLifecycle(ctx context.Context, info ConnInfo, event, reason string) {
	var duration int64
	if !info.ConnectedAt.IsZero() {
		duration = time.Since(info.ConnectedAt).Milliseconds()
	}
	payload := map[string]interface{}{
		"ws": map[string]interface{}{
			"kind":        info.Kind,
			"resource_id": info.ResourceID,
			"event":       event,
			"conn_id":     info.ConnID,
			"duration_ms": duration,
			"reason":      reason,
		},
		"identity": map[string]interface{}{
			"user_id":   info.UserID,
			"device_id": info.DeviceID,
			"ip":        info.IP,
		},
	}

	_ = observability.PublishEvent(ctx, "ws_events."+info.Kind, observability.NewEnvelope("ws_events", event, payload),
		observability.BuildHeaders(info.RequestID, info.TraceID))
	observability.IncWSEvent(info.Kind, event)
}

// PublishError reports an abnormal connection failure.
func PublishError(ctx context.Context, info ConnInfo, reason string) {
	publishLifecycle(ctx, info, "ws_error", reason)
}
