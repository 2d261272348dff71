package ports

import (
	"fmt"
	"time"
)

// AgentType identifies one specialized Code-phase generation agent. The
// roster is closed: the scheduler's cascade logic relies on exhaustive
// handling of every member.
type AgentType string

const (
	AgentArchitect           AgentType = "architect"
	AgentBackend             AgentType = "backend"
	AgentFrontend            AgentType = "frontend"
	AgentDevOps              AgentType = "devops"
	AgentTest                AgentType = "test"
	AgentDocs                AgentType = "docs"
	AgentSecurity            AgentType = "security"
	AgentI18n                AgentType = "i18n"
	AgentIntegrationReviewer AgentType = "integration-reviewer"
)

// AllAgentTypes lists the roster in fixed priority order. The scheduler uses
// this order to break ties when more tasks are ready than slots are free, so
// runs are reproducible.
var AllAgentTypes = []AgentType{
	AgentArchitect,
	AgentBackend,
	AgentFrontend,
	AgentDevOps,
	AgentTest,
	AgentDocs,
	AgentSecurity,
	AgentI18n,
	AgentIntegrationReviewer,
}

// Priority returns the scheduling rank of the agent (lower runs first), or
// len(AllAgentTypes) for unknown values.
func (a AgentType) Priority() int {
	for i, t := range AllAgentTypes {
		if t == a {
			return i
		}
	}
	return len(AllAgentTypes)
}

// Valid reports whether a is a member of the roster.
func (a AgentType) Valid() bool { return a.Priority() < len(AllAgentTypes) }

// ParseAgentType validates a wire value against the roster.
func ParseAgentType(s string) (AgentType, error) {
	a := AgentType(s)
	if !a.Valid() {
		return "", fmt.Errorf("unknown agent type %q", s)
	}
	return a, nil
}

// TaskStatus tracks one agent task through the Code phase.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskBlocked   TaskStatus = "blocked" // a dependency failed; terminal for this pass
	TaskRunning   TaskStatus = "running"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
)

// Terminal reports whether the status is final for the current pass.
func (s TaskStatus) Terminal() bool {
	return s == TaskCompleted || s == TaskFailed || s == TaskBlocked
}

// AgentTask is one scheduled unit of Code-phase work.
type AgentTask struct {
	Agent        AgentType    `json:"agent"`
	Status       TaskStatus   `json:"status"`
	Dependencies []AgentType  `json:"dependencies"`
	Output       *AgentOutput `json:"output,omitempty"`
	Error        string       `json:"error,omitempty"`
	ErrorKind    string       `json:"error_kind,omitempty"`
	Attempts     int          `json:"attempts"`
	StartedAt    *time.Time   `json:"started_at,omitempty"`
	FinishedAt   *time.Time   `json:"finished_at,omitempty"`
}

// AgentOutput is what a completed agent hands back: generated files plus the
// structured self-description the reviewer reasons over.
type AgentOutput struct {
	Files  []GeneratedFile `json:"files"`
	Report AgentWorkReport `json:"report"`
}

// AgentWorkReport is the structured self-description every agent produces.
// It is data, not prose: the IntegrationReviewer matches integration points
// and surfaces known issues programmatically.
type AgentWorkReport struct {
	Summary           string             `json:"summary"`
	Files             []FilePurpose      `json:"files,omitempty"`
	Decisions         []Decision         `json:"decisions,omitempty"`
	IntegrationPoints []IntegrationPoint `json:"integration_points,omitempty"`
	KnownIssues       []KnownIssue       `json:"known_issues,omitempty"`
}

// FilePurpose names why a generated file exists.
type FilePurpose struct {
	Path    string `json:"path"`
	Purpose string `json:"purpose"`
}

// Decision records an architecture decision with its rationale.
type Decision struct {
	Title     string `json:"title"`
	Rationale string `json:"rationale"`
}

// Integration point directions.
const (
	IntegrationExpects = "expects" // this agent depends on another agent producing it
	IntegrationExposes = "exposes" // this agent provides it to others
)

// IntegrationPoint declares what an agent expects from or exposes to others.
type IntegrationPoint struct {
	Direction string `json:"direction"` // expects or exposes
	Name      string `json:"name"`      // contract identifier, e.g. "api:/api/todos"
	Interface string `json:"interface"` // shape description used for conflict detection
}

// Issue severities, shared by work reports and integration reports.
const (
	SeverityCritical = "critical"
	SeverityMajor    = "major"
	SeverityMinor    = "minor"
)

// KnownIssue is a problem the agent itself reported.
type KnownIssue struct {
	Severity    string `json:"severity"`
	Description string `json:"description"`
}
