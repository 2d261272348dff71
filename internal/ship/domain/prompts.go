package domain

import (
	"encoding/json"
	"fmt"
	"strings"

	"ship/internal/ship/ports"
)

// Prompt construction for phase and agent invocations. Each builder returns
// the system and user messages for one generation call; the response is
// expected to be a single JSON document matching the phase payload.

const designSystemPrompt = `You are the design engine of a product generation pipeline.
Given a product intent, produce the high-level design as JSON with fields:
summary, architecture_pattern, components (name, purpose, interfaces, dependencies), tech_stack.
Respond with JSON only.`

const specSystemPrompt = `You are the specification engine of a product generation pipeline.
Given a product design, produce testable requirements as JSON with fields:
summary, requirements (id, title, description, priority), acceptance.
Respond with JSON only.`

const planSystemPrompt = `You are the planning engine of a product generation pipeline.
Given a specification, produce an execution plan as JSON with fields:
summary, phases (name one of exploration/preparation/implementation/validation,
steps with id, description, changes (op/path), risk one of safe/moderate/risky, depends_on).
Respond with JSON only.`

// BuildPhaseMessages returns the messages for a Design, Spec, or Plan
// invocation. The Code phase is driven per-agent via BuildAgentMessages.
func BuildPhaseMessages(phase ports.Phase, session *ports.Session) ([]ports.Message, error) {
	switch phase {
	case ports.PhaseDesign:
		return []ports.Message{
			{Role: "system", Content: designSystemPrompt},
			{Role: "user", Content: renderIntent(session.Intent)},
		}, nil
	case ports.PhaseSpec:
		if session.DesignResult == nil {
			return nil, fmt.Errorf("spec phase requires a design result")
		}
		input, err := json.Marshal(session.DesignResult)
		if err != nil {
			return nil, err
		}
		return []ports.Message{
			{Role: "system", Content: specSystemPrompt},
			{Role: "user", Content: string(input)},
		}, nil
	case ports.PhasePlan:
		if session.SpecResult == nil {
			return nil, fmt.Errorf("plan phase requires a spec result")
		}
		input, err := json.Marshal(session.SpecResult)
		if err != nil {
			return nil, err
		}
		return []ports.Message{
			{Role: "system", Content: planSystemPrompt},
			{Role: "user", Content: string(input)},
		}, nil
	default:
		return nil, fmt.Errorf("no phase prompt for %q", phase)
	}
}

func renderIntent(intent ports.EnrichedIntent) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Product description: %s\n", intent.Description)
	if intent.ProjectType != "" {
		fmt.Fprintf(&b, "Project type: %s\n", intent.ProjectType)
	}
	if intent.ArchitectureHint != "" {
		fmt.Fprintf(&b, "Architecture hint: %s\n", intent.ArchitectureHint)
	}
	if len(intent.TechHints) > 0 {
		fmt.Fprintf(&b, "Tech hints: %s\n", strings.Join(intent.TechHints, ", "))
	}
	if len(intent.Features) > 0 {
		fmt.Fprintf(&b, "Features: %s\n", strings.Join(intent.Features, "; "))
	}
	for key, value := range intent.Preferences {
		fmt.Fprintf(&b, "Preference %s: %s\n", key, value)
	}
	return b.String()
}

// agentCharters describe each roster member's responsibility in its prompt.
var agentCharters = map[ports.AgentType]string{
	ports.AgentArchitect:           "Define the project skeleton: directory layout, module boundaries, shared contracts every other agent builds on.",
	ports.AgentBackend:             "Implement server-side code: APIs, business logic, data access, following the architect's contracts.",
	ports.AgentFrontend:            "Implement the client: views, state handling, API consumption per the architect's contracts.",
	ports.AgentDevOps:              "Produce build, container, and deployment configuration for the generated project.",
	ports.AgentTest:                "Write automated tests against the backend's declared interfaces.",
	ports.AgentDocs:                "Write user and developer documentation for the generated project.",
	ports.AgentSecurity:            "Review and harden generated code: input validation, auth wiring, secret handling.",
	ports.AgentI18n:                "Externalize user-facing strings and produce locale scaffolding.",
	ports.AgentIntegrationReviewer: "Cross-check all agents' outputs: verify declared integration points line up and report anything that does not.",
}

// SubmitWorkTool is the single tool offered to Code-phase agents: a
// structured channel for handing back files and the work report.
func SubmitWorkTool() ports.ToolDefinition {
	return ports.ToolDefinition{
		Name:        "submit_work",
		Description: "Submit the generated files and the structured work report.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"files": map[string]any{
					"type":        "array",
					"description": "Generated files with path, content and purpose.",
				},
				"report": map[string]any{
					"type":        "object",
					"description": "Work report: summary, decisions, integration_points, known_issues.",
				},
			},
			"required": []any{"files", "report"},
		},
	}
}

// BuildAgentMessages returns the messages for one agent invocation. Prior
// phase results and the outputs of completed dependencies form the context.
func BuildAgentMessages(agent ports.AgentType, session *ports.Session, depOutputs map[ports.AgentType]*ports.AgentOutput) ([]ports.Message, error) {
	charter, ok := agentCharters[agent]
	if !ok {
		return nil, fmt.Errorf("no charter for agent %q", agent)
	}

	system := fmt.Sprintf(`You are the %s agent of a code generation pipeline.
%s
Call submit_work exactly once with your generated files and a work report
(summary, files with purpose, decisions with rationale, integration_points
with direction/name/interface, known_issues with severity). If you cannot
call tools, respond with the same structure as a single JSON document.`, agent, charter)

	var b strings.Builder
	b.WriteString(renderIntent(session.Intent))
	writeSection := func(name string, v any) {
		data, err := json.Marshal(v)
		if err != nil {
			return
		}
		fmt.Fprintf(&b, "\n## %s\n%s\n", name, data)
	}
	if session.DesignResult != nil {
		writeSection("Design", session.DesignResult)
	}
	if session.SpecResult != nil {
		writeSection("Specification", session.SpecResult)
	}
	if session.PlanResult != nil {
		writeSection("Plan", session.PlanResult)
	}
	for _, dep := range ports.AllAgentTypes {
		output, ok := depOutputs[dep]
		if !ok || output == nil {
			continue
		}
		writeSection(fmt.Sprintf("Output of %s", dep), output.Report)
	}

	return []ports.Message{
		{Role: "system", Content: system},
		{Role: "user", Content: b.String()},
	}, nil
}
