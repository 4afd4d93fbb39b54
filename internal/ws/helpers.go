package ws

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/rajyaabhishek/LawX-sub001/internal/observability"
)

// connInfo identifies one live channel in logs and ws events.
type connInfo struct {
	connID      string
	userID      string
	externalID  string
	traceID     string
	client      observability.ClientMeta
	connectedAt time.Time
}

func newConnInfo(r *http.Request, requestID, userID, externalID, traceID string) connInfo {
	return connInfo{
		connID:      uuid.NewString(),
		userID:      userID,
		externalID:  externalID,
		traceID:     traceID,
		client:      observability.ClientMetaFromRequest(r, requestID),
		connectedAt: time.Now(),
	}
}

func (i connInfo) log(e *zerolog.Event) *zerolog.Event {
	return e.Str("user_id", i.userID).Str("conn_id", i.connID)
}

// publishWSEvent reports a channel lifecycle event on the domain exchange.
func publishWSEvent(ctx context.Context, event string, info connInfo, reason string) {
	observability.IncWSEvent(event)

	var durationMs int64
	if event != "ws_connect" {
		durationMs = time.Since(info.connectedAt).Milliseconds()
	}
	payload := map[string]any{
		"ws": map[string]any{
			"event":       event,
			"conn_id":     info.connID,
			"duration_ms": durationMs,
			"reason":      reason,
		},
		"identity": map[string]any{
			"user_id":     info.userID,
			"external_id": info.externalID,
			"device_id":   info.client.DeviceID,
			"ip":          info.client.IP,
		},
	}

	_ = observability.PublishEvent(ctx, observability.RoutingWSEvents,
		observability.NewEnvelope("ws_events", event, payload),
		observability.BuildHeaders(info.client.RequestID, info.traceID))
}
