package observability

// Routing keys for operational events published to the topic exchange.
const (
	RoutingKeySessionEvents = "ws_events.sessions"
)

// EventEnvelope is the broker-side record for operational chat events
// (socket connects/disconnects and the like). Audit records use their own
// envelope in the telemetry package.
type EventEnvelope struct {
	EventType string `json:"event_type"`
	EventName string `json:"event_name"`
	Payload   any    `json:"payload"`
}

// BuildHeaders assembles the correlation headers attached to every publish.
func BuildHeaders(requestID, traceID string) map[string]string {
	headers := map[string]string{}
	if requestID != "" {
		headers["x-request-id"] = requestID
	}
	if traceID != "" {
		headers["trace_id"] = traceID
	}
	return headers
}
