package ws

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"

	"opschat/internal/identity"
	"opschat/internal/observability"
	"opschat/internal/registry"
	"opschat/internal/repositories"
)

// Handler upgrades browser sessions to websocket connections. Authentication
// happens in-band through the auth frame, not during the handshake.
type Handler struct {
	registry *registry.Registry
	verifier identity.Verifier
	chats    repositories.ChatRepository
	upgrader websocket.Upgrader
}

// NewHandler constructs a Handler.
func NewHandler(reg *registry.Registry, verifier identity.Verifier, chats repositories.ChatRepository) *Handler {
	return &Handler{
		registry: reg,
		verifier: verifier,
		chats:    chats,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Handle upgrades the connection and starts the read/write pumps.
func (h *Handler) Handle(c *gin.Context) {
	ctx, span := otel.Tracer("opschat/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	info := registry.ConnInfo{
		ConnID:      uuid.NewString(),
		DeviceID:    observability.DeviceIDFromRequest(c.Request),
		IP:          observability.IPFromRequest(c.Request),
		RequestID:   observability.RequestIDFromRequest(c.Request),
		ConnectedAt: time.Now(),
	}
	if span.SpanContext().HasTraceID() {
		info.TraceID = span.SpanContext().TraceID().String()
	}
	client := newClient(conn, h.registry, h.verifier, h.chats, info)

	observability.IncWSActive("session")
	observability.IncWSEvent("session", "ws_connect")
	publishSessionEvent(ctx, "ws_connect", info, 0, "")

	// The pumps outlive the HTTP handler; publishes after the request ends
	// must not use its context.
	pumpCtx := context.WithoutCancel(ctx)
	go client.writePump()
	go client.readPump(pumpCtx)
}

func publishSessionEvent(ctx context.Context, name string, info registry.ConnInfo, userID int, reason string) {
	_ = observability.PublishEvent(ctx, observability.RoutingKeySessionEvents, observability.EventEnvelope{
		EventType: "ws_events",
		EventName: name,
		Payload: map[string]interface{}{
			"ws": map[string]interface{}{
				"event":       name,
				"conn_id":     info.ConnID,
				"duration_ms": time.Since(info.ConnectedAt).Milliseconds(),
				"reason":      reason,
			},
			"identity": map[string]interface{}{
				"user_id":   userID,
				"device_id": info.DeviceID,
				"ip":        info.IP,
			},
		},
	}, observability.BuildHeaders(info.RequestID, info.TraceID))
}
