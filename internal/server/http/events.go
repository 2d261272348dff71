package http

import (
	"encoding/json"

	"ship/internal/ship/domain"
	"ship/internal/ship/ports"
)

// eventEnvelope is the wire form of one orchestration event, shared by the
// SSE and WebSocket streams.
type eventEnvelope struct {
	Type      string         `json:"type"`
	SessionID string         `json:"session_id"`
	Timestamp int64          `json:"timestamp"` // unix milliseconds
	Data      map[string]any `json:"data,omitempty"`
}

func renderEvent(event ports.Event) ([]byte, error) {
	envelope := eventEnvelope{
		Type:      event.EventType(),
		SessionID: event.GetSessionID(),
		Timestamp: event.Timestamp().UnixMilli(),
	}

	switch e := event.(type) {
	case *domain.PhaseStartEvent:
		envelope.Data = map[string]any{"phase": e.Phase}
	case *domain.ProgressEvent:
		envelope.Data = map[string]any{"phase": e.Phase, "percent": e.Percent, "message": e.Message}
	case *domain.PhaseCompleteEvent:
		envelope.Data = map[string]any{"phase": e.Phase, "result": e.Result}
	case *domain.AgentStartEvent:
		envelope.Data = map[string]any{"agent": e.Agent}
	case *domain.AgentCompleteEvent:
		envelope.Data = map[string]any{"agent": e.Agent, "status": e.Status}
		if e.Error != "" {
			envelope.Data["error"] = e.Error
		}
	case *domain.ToolCallEvent:
		envelope.Data = map[string]any{"agent": e.Agent, "call_id": e.CallID, "tool": e.ToolName, "arguments": e.Arguments}
	case *domain.ToolResultEvent:
		envelope.Data = map[string]any{"agent": e.Agent, "call_id": e.CallID, "tool": e.ToolName}
		if e.Result != "" {
			envelope.Data["result"] = e.Result
		}
		if e.Error != "" {
			envelope.Data["error"] = e.Error
		}
	case *domain.ErrorEvent:
		envelope.Data = map[string]any{"message": e.Message}
	case *domain.DoneEvent:
		envelope.Data = map[string]any{"status": e.Status}
	}

	return json.Marshal(envelope)
}
