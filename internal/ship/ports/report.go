package ports

import (
	"fmt"
	"sort"
	"strings"
)

// Issue categories produced by the integration review.
const (
	IssueMissing       = "missing"       // declared dependency never produced
	IssueInconsistency = "inconsistency" // conflicting integration points
	IssueQuality       = "quality"       // agent-reported known issue
	IssueIntegration   = "integration"   // wiring that exists but does not line up
	IssueSecurity      = "security"      // agent-reported security issue
)

// Recognized automatic-repair action kinds. A suggested fix with any other
// action cannot be applied automatically.
const (
	FixRegenerate = "regenerate" // re-run the affected agents
	FixAlign      = "align"      // re-run with the conflicting contract pinned
)

// SuggestedFix is one automatic repair the reviewer proposes.
type SuggestedFix struct {
	Action string   `json:"action"`
	Files  []string `json:"files,omitempty"`
}

// AutoFixable reports whether the fix uses a recognized repair action.
func (f SuggestedFix) AutoFixable() bool {
	return f.Action == FixRegenerate || f.Action == FixAlign
}

// IntegrationIssue is one problem found across agent outputs.
type IntegrationIssue struct {
	Severity       string         `json:"severity"`
	Category       string         `json:"category"`
	Description    string         `json:"description"`
	AffectedAgents []AgentType    `json:"affected_agents"`
	Fixes          []SuggestedFix `json:"fixes,omitempty"`
}

// AutoFixable reports whether at least one suggested fix is a recognized
// automatic-repair kind.
func (i IntegrationIssue) AutoFixable() bool {
	for _, fix := range i.Fixes {
		if fix.AutoFixable() {
			return true
		}
	}
	return false
}

// Signature identifies the issue across repair passes; two passes that yield
// the same signatures made no progress.
func (i IntegrationIssue) Signature() string {
	agents := make([]string, len(i.AffectedAgents))
	for idx, a := range i.AffectedAgents {
		agents[idx] = string(a)
	}
	sort.Strings(agents)
	return fmt.Sprintf("%s|%s|%s", i.Category, strings.Join(agents, ","), i.Description)
}

// IntegrationReport is the output of one integration review pass, ordered
// critical-first.
type IntegrationReport struct {
	Issues []IntegrationIssue `json:"issues"`
	Pass   int                `json:"pass"` // which repair pass produced it
}

// AutoFixable is true only when every issue carries at least one recognized
// automatic fix.
func (r *IntegrationReport) AutoFixable() bool {
	if r == nil || len(r.Issues) == 0 {
		return false
	}
	for _, issue := range r.Issues {
		if !issue.AutoFixable() {
			return false
		}
	}
	return true
}

// Clean reports whether the review found nothing.
func (r *IntegrationReport) Clean() bool {
	return r == nil || len(r.Issues) == 0
}

// AffectedAgents returns the minimal set of agent types named across
// auto-fixable issues, in roster priority order.
func (r *IntegrationReport) AffectedAgents() []AgentType {
	if r == nil {
		return nil
	}
	seen := make(map[AgentType]bool)
	for _, issue := range r.Issues {
		if !issue.AutoFixable() {
			continue
		}
		for _, agent := range issue.AffectedAgents {
			seen[agent] = true
		}
	}
	var agents []AgentType
	for _, agent := range AllAgentTypes {
		if seen[agent] {
			agents = append(agents, agent)
		}
	}
	return agents
}

// Signatures returns the sorted issue signatures for no-progress detection.
func (r *IntegrationReport) Signatures() []string {
	if r == nil {
		return nil
	}
	sigs := make([]string, len(r.Issues))
	for i, issue := range r.Issues {
		sigs[i] = issue.Signature()
	}
	sort.Strings(sigs)
	return sigs
}
