package domain

import (
	"time"

	"ship/internal/ship/ports"
)

// Re-export the event contracts defined at the port layer.
type Event = ports.Event
type EventListener = ports.EventListener

// BaseEvent provides common fields for all events
type BaseEvent struct {
	timestamp time.Time
	sessionID string
}

func (e *BaseEvent) Timestamp() time.Time {
	return e.timestamp
}

func (e *BaseEvent) GetSessionID() string {
	return e.sessionID
}

func newBaseEvent(sessionID string, ts time.Time) BaseEvent {
	return BaseEvent{timestamp: ts, sessionID: sessionID}
}

// PhaseStartEvent - emitted when a pipeline phase begins
type PhaseStartEvent struct {
	BaseEvent
	Phase ports.Phase
}

func (e *PhaseStartEvent) EventType() string { return "phase_start" }

// NewPhaseStartEvent creates a phase start event
func NewPhaseStartEvent(sessionID string, phase ports.Phase, ts time.Time) *PhaseStartEvent {
	return &PhaseStartEvent{BaseEvent: newBaseEvent(sessionID, ts), Phase: phase}
}

// ProgressEvent - emitted during phase execution
type ProgressEvent struct {
	BaseEvent
	Phase   ports.Phase
	Percent int // -1 when unknown
	Message string
}

func (e *ProgressEvent) EventType() string { return "progress" }

// NewProgressEvent creates a progress event; pass percent -1 when unknown.
func NewProgressEvent(sessionID string, phase ports.Phase, percent int, message string, ts time.Time) *ProgressEvent {
	return &ProgressEvent{BaseEvent: newBaseEvent(sessionID, ts), Phase: phase, Percent: percent, Message: message}
}

// PhaseCompleteEvent - emitted when a phase's result is persisted
type PhaseCompleteEvent struct {
	BaseEvent
	Phase  ports.Phase
	Result any // the phase result payload
}

func (e *PhaseCompleteEvent) EventType() string { return "phase_complete" }

// NewPhaseCompleteEvent creates a phase complete event
func NewPhaseCompleteEvent(sessionID string, phase ports.Phase, result any, ts time.Time) *PhaseCompleteEvent {
	return &PhaseCompleteEvent{BaseEvent: newBaseEvent(sessionID, ts), Phase: phase, Result: result}
}

// AgentStartEvent - emitted when an agent task is dispatched (Code phase)
type AgentStartEvent struct {
	BaseEvent
	Agent ports.AgentType
}

func (e *AgentStartEvent) EventType() string { return "agent_start" }

// NewAgentStartEvent creates an agent start event
func NewAgentStartEvent(sessionID string, agent ports.AgentType, ts time.Time) *AgentStartEvent {
	return &AgentStartEvent{BaseEvent: newBaseEvent(sessionID, ts), Agent: agent}
}

// AgentCompleteEvent - emitted when an agent task reaches a terminal state
type AgentCompleteEvent struct {
	BaseEvent
	Agent  ports.AgentType
	Status ports.TaskStatus
	Error  string
}

func (e *AgentCompleteEvent) EventType() string { return "agent_complete" }

// NewAgentCompleteEvent creates an agent complete event
func NewAgentCompleteEvent(sessionID string, agent ports.AgentType, status ports.TaskStatus, errMsg string, ts time.Time) *AgentCompleteEvent {
	return &AgentCompleteEvent{BaseEvent: newBaseEvent(sessionID, ts), Agent: agent, Status: status, Error: errMsg}
}

// ToolCallEvent - emitted when an agent's model invokes a tool (Code phase)
type ToolCallEvent struct {
	BaseEvent
	Agent     ports.AgentType
	CallID    string
	ToolName  string
	Arguments map[string]any
}

func (e *ToolCallEvent) EventType() string { return "tool_call" }

// NewToolCallEvent creates a tool call event
func NewToolCallEvent(sessionID string, agent ports.AgentType, callID, toolName string, args map[string]any, ts time.Time) *ToolCallEvent {
	return &ToolCallEvent{BaseEvent: newBaseEvent(sessionID, ts), Agent: agent, CallID: callID, ToolName: toolName, Arguments: args}
}

// ToolResultEvent - emitted after the orchestrator consumed a tool call
type ToolResultEvent struct {
	BaseEvent
	Agent    ports.AgentType
	CallID   string
	ToolName string
	Result   string
	Error    string
}

func (e *ToolResultEvent) EventType() string { return "tool_result" }

// NewToolResultEvent creates a tool result event
func NewToolResultEvent(sessionID string, agent ports.AgentType, callID, toolName, result, errMsg string, ts time.Time) *ToolResultEvent {
	return &ToolResultEvent{BaseEvent: newBaseEvent(sessionID, ts), Agent: agent, CallID: callID, ToolName: toolName, Result: result, Error: errMsg}
}

// ErrorEvent - emitted when a phase or agent fails
type ErrorEvent struct {
	BaseEvent
	Message string
}

func (e *ErrorEvent) EventType() string { return "error" }

// NewErrorEvent creates an error event
func NewErrorEvent(sessionID, message string, ts time.Time) *ErrorEvent {
	return &ErrorEvent{BaseEvent: newBaseEvent(sessionID, ts), Message: message}
}

// DoneEvent - always the last event for a session, published exactly once
type DoneEvent struct {
	BaseEvent
	Status ports.SessionStatus
}

func (e *DoneEvent) EventType() string { return "done" }

// NewDoneEvent creates the terminal event for a session
func NewDoneEvent(sessionID string, status ports.SessionStatus, ts time.Time) *DoneEvent {
	return &DoneEvent{BaseEvent: newBaseEvent(sessionID, ts), Status: status}
}
