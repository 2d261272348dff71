package ports

// PlanStatus follows draft → pending_approval → approved → executing →
// completed, with rejected/cancelled reachable only before executing.
type PlanStatus string

const (
	PlanDraft           PlanStatus = "draft"
	PlanPendingApproval PlanStatus = "pending_approval"
	PlanApproved        PlanStatus = "approved"
	PlanExecuting       PlanStatus = "executing"
	PlanCompleted       PlanStatus = "completed"
	PlanRejected        PlanStatus = "rejected"
	PlanCancelled       PlanStatus = "cancelled"
)

// CanTransition reports whether the plan may move from its current status to
// the target one.
func (s PlanStatus) CanTransition(to PlanStatus) bool {
	switch s {
	case PlanDraft:
		return to == PlanPendingApproval || to == PlanRejected || to == PlanCancelled
	case PlanPendingApproval:
		return to == PlanApproved || to == PlanRejected || to == PlanCancelled
	case PlanApproved:
		return to == PlanExecuting || to == PlanCancelled
	case PlanExecuting:
		return to == PlanCompleted
	default:
		return false
	}
}

// PlanPhaseName groups plan steps by intent.
type PlanPhaseName string

const (
	PlanPhaseExploration    PlanPhaseName = "exploration"
	PlanPhasePreparation    PlanPhaseName = "preparation"
	PlanPhaseImplementation PlanPhaseName = "implementation"
	PlanPhaseValidation     PlanPhaseName = "validation"
)

// RiskLevel classifies how dangerous a plan step is.
type RiskLevel string

const (
	RiskSafe     RiskLevel = "safe"
	RiskModerate RiskLevel = "moderate"
	RiskRisky    RiskLevel = "risky"
)

// File change operations a plan step may declare.
const (
	ChangeCreate = "create"
	ChangeModify = "modify"
	ChangeDelete = "delete"
	ChangeMove   = "move"
)

// FileChange is one file-level intent within a plan step.
type FileChange struct {
	Op   string `json:"op"` // create, modify, delete, move
	Path string `json:"path"`
	To   string `json:"to,omitempty"` // move destination
}

// PlanStep is one ordered unit of planned work.
type PlanStep struct {
	ID          string       `json:"id"`
	Description string       `json:"description"`
	Changes     []FileChange `json:"changes,omitempty"`
	Risk        RiskLevel    `json:"risk"`
	DependsOn   []string     `json:"depends_on,omitempty"` // step IDs
}

// PlanPhase groups ordered steps under one phase name.
type PlanPhase struct {
	Name  PlanPhaseName `json:"name"`
	Steps []PlanStep    `json:"steps"`
}

// PlanRiskAssessment summarizes plan-wide risk.
type PlanRiskAssessment struct {
	Level          RiskLevel `json:"level"`
	SafeCount      int       `json:"safe_count"`
	ModerateCount  int       `json:"moderate_count"`
	RiskyCount     int       `json:"risky_count"`
	AutoApprovable bool      `json:"auto_approvable"`
}

// Plan is the Plan phase payload: ordered steps grouped into phases.
type Plan struct {
	Summary string             `json:"summary"`
	Phases  []PlanPhase        `json:"phases"`
	Status  PlanStatus         `json:"status"`
	Risk    PlanRiskAssessment `json:"risk"`
}

// AssessRisk recomputes the plan's risk summary from its steps. The plan is
// auto-approvable only when every step is safe.
func (p *Plan) AssessRisk() {
	assessment := PlanRiskAssessment{Level: RiskSafe, AutoApprovable: true}
	for _, phase := range p.Phases {
		for _, step := range phase.Steps {
			switch step.Risk {
			case RiskRisky:
				assessment.RiskyCount++
				assessment.Level = RiskRisky
				assessment.AutoApprovable = false
			case RiskModerate:
				assessment.ModerateCount++
				if assessment.Level == RiskSafe {
					assessment.Level = RiskModerate
				}
				assessment.AutoApprovable = false
			default:
				assessment.SafeCount++
			}
		}
	}
	p.Risk = assessment
}

// Steps flattens all plan steps in phase order.
func (p *Plan) Steps() []PlanStep {
	var steps []PlanStep
	for _, phase := range p.Phases {
		steps = append(steps, phase.Steps...)
	}
	return steps
}
