package ports

import (
	"context"
	"errors"
	"time"
)

// Phase is one stage of the SHIP pipeline.
type Phase string

const (
	PhaseDesign Phase = "design"
	PhaseSpec   Phase = "spec"
	PhasePlan   Phase = "plan"
	PhaseCode   Phase = "code"
)

// AllPhases lists the pipeline phases in execution order.
var AllPhases = []Phase{PhaseDesign, PhaseSpec, PhasePlan, PhaseCode}

// Index returns the position of the phase in the pipeline, or -1.
func (p Phase) Index() int {
	for i, phase := range AllPhases {
		if phase == p {
			return i
		}
	}
	return -1
}

// Next returns the following phase and whether one exists.
func (p Phase) Next() (Phase, bool) {
	idx := p.Index()
	if idx < 0 || idx+1 >= len(AllPhases) {
		return "", false
	}
	return AllPhases[idx+1], true
}

// Valid reports whether p is a known phase.
func (p Phase) Valid() bool { return p.Index() >= 0 }

// SessionStatus tracks the lifecycle of one orchestration run.
type SessionStatus string

const (
	SessionPending   SessionStatus = "pending"
	SessionRunning   SessionStatus = "running"
	SessionCompleted SessionStatus = "completed"
	SessionFailed    SessionStatus = "failed"
)

// SessionError names what failed and how, for the session record.
type SessionError struct {
	Kind    string    `json:"kind"`
	Phase   Phase     `json:"phase,omitempty"`
	Agent   AgentType `json:"agent,omitempty"`
	Message string    `json:"message"`
}

// EnrichedIntent is the structured product intent produced by the
// natural-language front end. The orchestrator consumes it as-is.
type EnrichedIntent struct {
	Description      string            `json:"description"`
	ProjectType      string            `json:"project_type,omitempty"`
	ArchitectureHint string            `json:"architecture_hint,omitempty"`
	TechHints        []string          `json:"tech_hints,omitempty"`
	Features         []string          `json:"features,omitempty"`
	Preferences      map[string]string `json:"preferences,omitempty"`
}

// Session is the durable record of one SHIP run.
//
// Invariants: Phase only advances forward; a later phase result is never set
// while an earlier one is absent; Completed implies all four results exist;
// Failed implies Error is set and no phase after the failing one has a result.
type Session struct {
	ID      string         `json:"id"`
	Phase   Phase          `json:"phase"`
	Status  SessionStatus  `json:"status"`
	Intent  EnrichedIntent `json:"intent"`
	Version int            `json:"version"`

	DesignResult *DesignResult `json:"design_result,omitempty"`
	SpecResult   *SpecResult   `json:"spec_result,omitempty"`
	PlanResult   *Plan         `json:"plan_result,omitempty"`
	CodeResult   *CodeResult   `json:"code_result,omitempty"`

	Error *SessionError `json:"error,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PhaseResultPresent reports whether the result payload for the given phase
// is set on the session.
func (s *Session) PhaseResultPresent(phase Phase) bool {
	switch phase {
	case PhaseDesign:
		return s.DesignResult != nil
	case PhaseSpec:
		return s.SpecResult != nil
	case PhasePlan:
		return s.PlanResult != nil
	case PhaseCode:
		return s.CodeResult != nil
	default:
		return false
	}
}

// Terminal reports whether the session reached a terminal status.
func (s *Session) Terminal() bool {
	return s.Status == SessionCompleted || s.Status == SessionFailed
}

// DesignResult is the Design phase payload.
type DesignResult struct {
	Summary             string            `json:"summary"`
	ArchitecturePattern string            `json:"architecture_pattern"`
	Components          []ComponentDesign `json:"components"`
	TechStack           []string          `json:"tech_stack"`
}

// ComponentDesign describes one designed component.
type ComponentDesign struct {
	Name         string   `json:"name"`
	Purpose      string   `json:"purpose"`
	Interfaces   []string `json:"interfaces,omitempty"`
	Dependencies []string `json:"dependencies,omitempty"`
}

// SpecResult is the Spec phase payload.
type SpecResult struct {
	Summary      string        `json:"summary"`
	Requirements []Requirement `json:"requirements"`
	Acceptance   []string      `json:"acceptance,omitempty"`
}

// Requirement is one testable requirement derived from the design.
type Requirement struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Priority    string `json:"priority,omitempty"` // must, should, could
}

// CodeResult is the Code phase payload: the union of all agent output plus
// the final integration review.
type CodeResult struct {
	Files   []GeneratedFile               `json:"files"`
	Reports map[AgentType]AgentWorkReport `json:"reports"`
	Tasks   map[AgentType]*AgentTask      `json:"tasks"`
	Review  *IntegrationReport            `json:"review,omitempty"`
}

// GeneratedFile is one produced source file.
type GeneratedFile struct {
	Path    string    `json:"path"`
	Content string    `json:"content"`
	Agent   AgentType `json:"agent,omitempty"`
	Purpose string    `json:"purpose,omitempty"`
}

// Store errors shared by all SessionStore implementations.
var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExists   = errors.New("session already exists")
)

// SessionStore persists sessions with atomic read-modify-write. All mutation
// goes through Update so concurrent writers cannot interleave partial state.
type SessionStore interface {
	// Create persists a new session, failing if the ID is taken.
	Create(ctx context.Context, session *Session) error

	// Get returns a point-in-time copy of the session.
	Get(ctx context.Context, id string) (*Session, error)

	// Update atomically applies mutate to the stored session and persists
	// the result. The updated copy is returned.
	Update(ctx context.Context, id string, mutate func(*Session) error) (*Session, error)

	// List returns all session IDs.
	List(ctx context.Context) ([]string, error)

	// Delete removes a session.
	Delete(ctx context.Context, id string) error
}
