package app

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"ship/internal/ship/ports"
)

// stubFactory hands the same client to every provider/model pair.
type stubFactory struct {
	client ports.LLMClient
}

func (f *stubFactory) Client(provider, model string) (ports.LLMClient, error) {
	return f.client, nil
}

// stubRouter routes everything to a single mock model.
type stubRouter struct{}

func (stubRouter) Route(ctx context.Context, req ports.RouteRequest) (ports.RouteDecision, error) {
	return ports.RouteDecision{Provider: "mock", Model: "mock-model", Reason: "test"}, nil
}

func testIntent() ports.EnrichedIntent {
	return ports.EnrichedIntent{
		Description: "a todo list web app with user accounts",
		ProjectType: "web_app",
		Features:    []string{"crud", "auth"},
	}
}

func newTestSession(t *testing.T, store ports.SessionStore) *ports.Session {
	t.Helper()
	now := time.Now()
	s := &ports.Session{
		ID:        "ship-test-" + t.Name(),
		Phase:     ports.PhaseDesign,
		Status:    ports.SessionRunning,
		Intent:    testIntent(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := store.Create(context.Background(), s); err != nil {
		t.Fatalf("create session: %v", err)
	}
	return s
}

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	raw, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return string(raw)
}

func designJSON(t *testing.T) string {
	return mustJSON(t, ports.DesignResult{
		Summary:             "three-tier todo app",
		ArchitecturePattern: "layered",
		Components: []ports.ComponentDesign{
			{Name: "api", Purpose: "REST backend"},
			{Name: "web", Purpose: "frontend"},
		},
		TechStack: []string{"go", "react"},
	})
}

func specJSON(t *testing.T) string {
	return mustJSON(t, ports.SpecResult{
		Summary: "todo requirements",
		Requirements: []ports.Requirement{
			{ID: "R1", Title: "create todos", Description: "users create todo items", Priority: "must"},
		},
	})
}

func planJSON(t *testing.T) string {
	return mustJSON(t, ports.Plan{
		Summary: "build plan",
		Phases: []ports.PlanPhase{
			{
				Name: ports.PlanPhaseImplementation,
				Steps: []ports.PlanStep{
					{ID: "S1", Description: "scaffold repo", Risk: ports.RiskSafe},
					{ID: "S2", Description: "add api routes"},
				},
			},
		},
	})
}

// sessionWithPlan returns a session that already holds design, spec and plan
// results, positioned at the Code phase.
func sessionWithPlan(t *testing.T, store ports.SessionStore) *ports.Session {
	t.Helper()
	s := newTestSession(t, store)
	updated, err := store.Update(context.Background(), s.ID, func(s *ports.Session) error {
		s.DesignResult = &ports.DesignResult{
			Summary:    "three-tier todo app",
			Components: []ports.ComponentDesign{{Name: "api", Purpose: "REST backend"}},
		}
		s.SpecResult = &ports.SpecResult{
			Summary:      "todo requirements",
			Requirements: []ports.Requirement{{ID: "R1", Title: "create todos"}},
		}
		s.PlanResult = &ports.Plan{
			Summary: "build plan",
			Phases: []ports.PlanPhase{
				{Name: ports.PlanPhaseImplementation, Steps: []ports.PlanStep{{ID: "S1", Description: "scaffold", Risk: ports.RiskSafe}}},
			},
			Status: ports.PlanApproved,
		}
		s.Phase = ports.PhaseCode
		return nil
	})
	if err != nil {
		t.Fatalf("seed session: %v", err)
	}
	return updated
}

// submitWorkArgs builds valid submit_work tool arguments for an agent.
func submitWorkArgs(agent ports.AgentType, points ...ports.IntegrationPoint) map[string]any {
	payload := submitWorkPayload{
		Files: []ports.GeneratedFile{
			{Path: "src/" + string(agent) + ".go", Content: "package main"},
		},
		Report: ports.AgentWorkReport{
			Summary:           string(agent) + " work done",
			IntegrationPoints: points,
		},
	}
	raw, _ := json.Marshal(payload)
	var args map[string]any
	_ = json.Unmarshal(raw, &args)
	return args
}

func submitWorkResponse(agent ports.AgentType, points ...ports.IntegrationPoint) *ports.CompletionResponse {
	return &ports.CompletionResponse{
		ToolCalls: []ports.ToolCall{
			{ID: "call-" + string(agent), Name: "submit_work", Arguments: submitWorkArgs(agent, points...)},
		},
		StopReason: "tool_calls",
	}
}

// agentFromRequest recovers which agent a completion request targets by
// matching the system prompt against the roster charters.
func agentFromRequest(req ports.CompletionRequest) (ports.AgentType, bool) {
	if len(req.Tools) == 0 || len(req.Messages) == 0 {
		return "", false
	}
	system := req.Messages[0].Content
	for _, agent := range ports.AllAgentTypes {
		if strings.Contains(system, "the "+string(agent)+" agent") {
			return agent, true
		}
	}
	return "", false
}

// drainEvents collects everything currently buffered on an event channel.
func drainEvents(ch <-chan ports.Event) []ports.Event {
	var out []ports.Event
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, ev)
		default:
			return out
		}
	}
}

func eventTypes(events []ports.Event) []string {
	types := make([]string, len(events))
	for i, ev := range events {
		types[i] = ev.EventType()
	}
	return types
}
