package domain

import (
	"testing"

	"ship/internal/ship/ports"
)

func TestDefaultDependenciesFormValidGraph(t *testing.T) {
	g, err := NewDependencyGraph(DefaultDependencies())
	if err != nil {
		t.Fatalf("default roster must be valid: %v", err)
	}
	if len(g.Members()) != len(ports.AllAgentTypes) {
		t.Errorf("expected full roster, got %d members", len(g.Members()))
	}
	if deps := g.Dependencies(ports.AgentArchitect); len(deps) != 0 {
		t.Errorf("architect must have no dependencies, got %v", deps)
	}
}

func TestNewDependencyGraphRejectsCycle(t *testing.T) {
	_, err := NewDependencyGraph(map[ports.AgentType][]ports.AgentType{
		ports.AgentArchitect: nil,
		ports.AgentBackend:   {ports.AgentFrontend},
		ports.AgentFrontend:  {ports.AgentBackend},
	})
	if err == nil {
		t.Fatal("expected cycle error")
	}
}

func TestNewDependencyGraphRejectsMissingMember(t *testing.T) {
	_, err := NewDependencyGraph(map[ports.AgentType][]ports.AgentType{
		ports.AgentBackend: {ports.AgentArchitect},
	})
	if err == nil {
		t.Fatal("expected error for dependency outside the graph")
	}
}

func TestImplicitArchitectDependency(t *testing.T) {
	g, err := NewDependencyGraph(map[ports.AgentType][]ports.AgentType{
		ports.AgentArchitect: nil,
		ports.AgentBackend:   nil,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	deps := g.Dependencies(ports.AgentBackend)
	if len(deps) != 1 || deps[0] != ports.AgentArchitect {
		t.Errorf("backend should implicitly depend on architect, got %v", deps)
	}
}

func TestReadyRespectsPriorityOrder(t *testing.T) {
	g, err := NewDependencyGraph(map[ports.AgentType][]ports.AgentType{
		ports.AgentArchitect: nil,
		ports.AgentFrontend:  {ports.AgentArchitect},
		ports.AgentBackend:   {ports.AgentArchitect},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	statuses := map[ports.AgentType]ports.TaskStatus{
		ports.AgentArchitect: ports.TaskCompleted,
		ports.AgentBackend:   ports.TaskPending,
		ports.AgentFrontend:  ports.TaskPending,
	}
	ready := g.Ready(func(a ports.AgentType) ports.TaskStatus { return statuses[a] })
	if len(ready) != 2 {
		t.Fatalf("expected two ready agents, got %v", ready)
	}
	// backend outranks frontend in the fixed priority list
	if ready[0] != ports.AgentBackend || ready[1] != ports.AgentFrontend {
		t.Errorf("ready order not by priority: %v", ready)
	}
}

func TestTransitiveDependentsCoversIndirectPaths(t *testing.T) {
	g, err := NewDependencyGraph(DefaultDependencies())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	dependents := g.TransitiveDependents(ports.AgentBackend)
	want := map[ports.AgentType]bool{
		ports.AgentDevOps:              true,
		ports.AgentTest:                true,
		ports.AgentDocs:                true,
		ports.AgentSecurity:            true,
		ports.AgentIntegrationReviewer: true,
	}
	if len(dependents) != len(want) {
		t.Fatalf("unexpected dependent set: %v", dependents)
	}
	for _, d := range dependents {
		if !want[d] {
			t.Errorf("unexpected dependent %s", d)
		}
	}

	// Frontend does not depend on backend; it must be unaffected.
	for _, d := range dependents {
		if d == ports.AgentFrontend {
			t.Error("frontend must not cascade from a backend failure")
		}
	}
}

func TestTransitiveDependentsFromArchitectCoversAll(t *testing.T) {
	g, _ := NewDependencyGraph(DefaultDependencies())
	dependents := g.TransitiveDependents(ports.AgentArchitect)
	if len(dependents) != len(ports.AllAgentTypes)-1 {
		t.Errorf("architect failure must block every other agent, got %v", dependents)
	}
}
