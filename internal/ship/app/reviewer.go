package app

import (
	"fmt"
	"sort"
	"strings"

	"ship/internal/logging"
	"ship/internal/ship/ports"
	"ship/internal/utils"
)

// IntegrationReviewer cross-checks completed agent outputs. It reasons over
// the structured work reports, not the generated code: declared integration
// points are matched pairwise and agent-reported issues are surfaced.
type IntegrationReviewer struct {
	logger logging.Logger
}

// NewIntegrationReviewer returns a reviewer.
func NewIntegrationReviewer() *IntegrationReviewer {
	return &IntegrationReviewer{logger: utils.NewComponentLogger("IntegrationReviewer")}
}

// Review inspects the union of completed task outputs and returns the issue
// list ordered critical-first.
func (r *IntegrationReviewer) Review(tasks map[ports.AgentType]*ports.AgentTask, pass int) *ports.IntegrationReport {
	type exposure struct {
		agent ports.AgentType
		point ports.IntegrationPoint
	}

	exposes := make(map[string][]exposure) // contract name -> providers
	var issues []ports.IntegrationIssue

	for _, agent := range ports.AllAgentTypes {
		task, ok := tasks[agent]
		if !ok || task.Status != ports.TaskCompleted || task.Output == nil {
			continue
		}
		for _, point := range task.Output.Report.IntegrationPoints {
			if point.Direction == ports.IntegrationExposes {
				exposes[point.Name] = append(exposes[point.Name], exposure{agent: agent, point: point})
			}
		}
	}

	// Missing: a contract some agent expects that no agent exposes.
	for _, agent := range ports.AllAgentTypes {
		task, ok := tasks[agent]
		if !ok || task.Status != ports.TaskCompleted || task.Output == nil {
			continue
		}
		for _, point := range task.Output.Report.IntegrationPoints {
			if point.Direction != ports.IntegrationExpects {
				continue
			}
			if providers, ok := exposes[point.Name]; !ok || len(providers) == 0 {
				issues = append(issues, ports.IntegrationIssue{
					Severity:       ports.SeverityCritical,
					Category:       ports.IssueMissing,
					Description:    fmt.Sprintf("%s expects %q but no agent exposes it", agent, point.Name),
					AffectedAgents: missingProviders(agent, point.Name),
					Fixes:          []ports.SuggestedFix{{Action: ports.FixRegenerate}},
				})
			}
		}
	}

	// Inconsistency: one contract exposed with conflicting interfaces, or an
	// expectation whose interface disagrees with the exposure.
	for name, providers := range exposes {
		for i := 1; i < len(providers); i++ {
			if !interfacesMatch(providers[0].point.Interface, providers[i].point.Interface) {
				issues = append(issues, ports.IntegrationIssue{
					Severity: ports.SeverityCritical,
					Category: ports.IssueInconsistency,
					Description: fmt.Sprintf("%s and %s expose %q with conflicting interfaces",
						providers[0].agent, providers[i].agent, name),
					AffectedAgents: []ports.AgentType{providers[0].agent, providers[i].agent},
					Fixes:          []ports.SuggestedFix{{Action: ports.FixAlign}},
				})
			}
		}
	}
	for _, agent := range ports.AllAgentTypes {
		task, ok := tasks[agent]
		if !ok || task.Status != ports.TaskCompleted || task.Output == nil {
			continue
		}
		for _, point := range task.Output.Report.IntegrationPoints {
			if point.Direction != ports.IntegrationExpects || point.Interface == "" {
				continue
			}
			for _, provider := range exposes[point.Name] {
				if !interfacesMatch(point.Interface, provider.point.Interface) {
					issues = append(issues, ports.IntegrationIssue{
						Severity: ports.SeverityMajor,
						Category: ports.IssueIntegration,
						Description: fmt.Sprintf("%s expects %q as %q but %s exposes %q",
							agent, point.Name, point.Interface, provider.agent, provider.point.Interface),
						AffectedAgents: []ports.AgentType{agent, provider.agent},
						Fixes:          []ports.SuggestedFix{{Action: ports.FixAlign}},
					})
				}
			}
		}
	}

	// Agent-reported known issues surface verbatim. Only critical ones get an
	// automatic fix; the rest are informational.
	for _, agent := range ports.AllAgentTypes {
		task, ok := tasks[agent]
		if !ok || task.Status != ports.TaskCompleted || task.Output == nil {
			continue
		}
		for _, known := range task.Output.Report.KnownIssues {
			category := ports.IssueQuality
			if agent == ports.AgentSecurity || strings.Contains(strings.ToLower(known.Description), "security") {
				category = ports.IssueSecurity
			}
			issue := ports.IntegrationIssue{
				Severity:       known.Severity,
				Category:       category,
				Description:    known.Description,
				AffectedAgents: []ports.AgentType{agent},
			}
			if known.Severity == ports.SeverityCritical {
				issue.Fixes = []ports.SuggestedFix{{Action: ports.FixRegenerate}}
			}
			issues = append(issues, issue)
		}
	}

	sortIssues(issues)
	report := &ports.IntegrationReport{Issues: issues, Pass: pass}
	r.logger.Info("Review pass %d: %d issues (auto-fixable: %t)", pass, len(issues), report.AutoFixable())
	return report
}

// missingProviders names the agents to re-run for a missing contract: the
// expecting agent plus the one whose charter should provide it, guessed from
// the contract prefix.
func missingProviders(expecting ports.AgentType, name string) []ports.AgentType {
	provider := expecting
	switch {
	case strings.HasPrefix(name, "api:"):
		provider = ports.AgentBackend
	case strings.HasPrefix(name, "ui:"):
		provider = ports.AgentFrontend
	case strings.HasPrefix(name, "infra:"), strings.HasPrefix(name, "deploy:"):
		provider = ports.AgentDevOps
	}
	if provider == expecting {
		return []ports.AgentType{expecting}
	}
	agents := []ports.AgentType{expecting, provider}
	sort.Slice(agents, func(i, j int) bool { return agents[i].Priority() < agents[j].Priority() })
	return agents
}

// interfacesMatch compares declared interface shapes. Whitespace and case
// differences are not conflicts.
func interfacesMatch(a, b string) bool {
	norm := func(s string) string {
		return strings.Join(strings.Fields(strings.ToLower(s)), " ")
	}
	return a == "" || b == "" || norm(a) == norm(b)
}

var severityRank = map[string]int{
	ports.SeverityCritical: 0,
	ports.SeverityMajor:    1,
	ports.SeverityMinor:    2,
}

func sortIssues(issues []ports.IntegrationIssue) {
	sort.SliceStable(issues, func(i, j int) bool {
		ri, ok := severityRank[issues[i].Severity]
		if !ok {
			ri = len(severityRank)
		}
		rj, ok := severityRank[issues[j].Severity]
		if !ok {
			rj = len(severityRank)
		}
		return ri < rj
	})
}
