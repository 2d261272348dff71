package domain

import (
	"fmt"
	"sort"

	"ship/internal/ship/ports"
)

// DependencyGraph is the fixed dependency structure over agent types for one
// Code phase run. It is immutable after construction; task status lives with
// the scheduler.
type DependencyGraph struct {
	deps       map[ports.AgentType][]ports.AgentType // agent -> what it depends on
	dependents map[ports.AgentType][]ports.AgentType // agent -> who depends on it
	members    []ports.AgentType                     // priority order
}

// DefaultDependencies returns the conventional roster wiring: architect has
// no dependencies, every other agent depends on it (directly or through an
// intermediate), and the integration-reviewer waits for everyone else.
func DefaultDependencies() map[ports.AgentType][]ports.AgentType {
	return map[ports.AgentType][]ports.AgentType{
		ports.AgentArchitect: nil,
		ports.AgentBackend:   {ports.AgentArchitect},
		ports.AgentFrontend:  {ports.AgentArchitect},
		ports.AgentDevOps:    {ports.AgentArchitect, ports.AgentBackend},
		ports.AgentTest:      {ports.AgentArchitect, ports.AgentBackend},
		ports.AgentDocs:      {ports.AgentArchitect, ports.AgentBackend},
		ports.AgentSecurity:  {ports.AgentArchitect, ports.AgentBackend, ports.AgentFrontend},
		ports.AgentI18n:      {ports.AgentArchitect, ports.AgentFrontend},
		ports.AgentIntegrationReviewer: {
			ports.AgentArchitect, ports.AgentBackend, ports.AgentFrontend,
			ports.AgentDevOps, ports.AgentTest, ports.AgentDocs,
			ports.AgentSecurity, ports.AgentI18n,
		},
	}
}

// NewDependencyGraph validates the declared dependencies and builds the
// graph. Every agent other than architect gains an implicit dependency on
// architect unless the caller declared its dependencies explicitly.
func NewDependencyGraph(deps map[ports.AgentType][]ports.AgentType) (*DependencyGraph, error) {
	g := &DependencyGraph{
		deps:       make(map[ports.AgentType][]ports.AgentType, len(deps)),
		dependents: make(map[ports.AgentType][]ports.AgentType, len(deps)),
	}

	for agent, agentDeps := range deps {
		if !agent.Valid() {
			return nil, fmt.Errorf("unknown agent type %q in graph", agent)
		}
		resolved := agentDeps
		if agent != ports.AgentArchitect && agentDeps == nil {
			// Architect-first convention: architectural decisions exist
			// before any other agent starts.
			if _, architectPresent := deps[ports.AgentArchitect]; architectPresent {
				resolved = []ports.AgentType{ports.AgentArchitect}
			}
		}
		for _, dep := range resolved {
			if !dep.Valid() {
				return nil, fmt.Errorf("agent %s depends on unknown type %q", agent, dep)
			}
			if dep == agent {
				return nil, fmt.Errorf("agent %s depends on itself", agent)
			}
			if _, ok := deps[dep]; !ok {
				return nil, fmt.Errorf("agent %s depends on %s which is not in the graph", agent, dep)
			}
		}
		g.deps[agent] = resolved
	}

	for agent, agentDeps := range g.deps {
		for _, dep := range agentDeps {
			g.dependents[dep] = append(g.dependents[dep], agent)
		}
	}

	g.members = make([]ports.AgentType, 0, len(g.deps))
	for agent := range g.deps {
		g.members = append(g.members, agent)
	}
	sort.Slice(g.members, func(i, j int) bool {
		return g.members[i].Priority() < g.members[j].Priority()
	})

	if cycle := g.findCycle(); cycle != "" {
		return nil, fmt.Errorf("dependency cycle through %s", cycle)
	}
	return g, nil
}

// findCycle runs a three-color DFS and returns an agent on a cycle, or "".
func (g *DependencyGraph) findCycle() ports.AgentType {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	colors := make(map[ports.AgentType]int, len(g.deps))

	var visit func(agent ports.AgentType) ports.AgentType
	visit = func(agent ports.AgentType) ports.AgentType {
		colors[agent] = gray
		for _, dep := range g.deps[agent] {
			switch colors[dep] {
			case gray:
				return dep
			case white:
				if found := visit(dep); found != "" {
					return found
				}
			}
		}
		colors[agent] = black
		return ""
	}

	for _, agent := range g.members {
		if colors[agent] == white {
			if found := visit(agent); found != "" {
				return found
			}
		}
	}
	return ""
}

// Members returns the graph's agents in fixed priority order.
func (g *DependencyGraph) Members() []ports.AgentType {
	out := make([]ports.AgentType, len(g.members))
	copy(out, g.members)
	return out
}

// Contains reports whether the agent participates in this graph.
func (g *DependencyGraph) Contains(agent ports.AgentType) bool {
	_, ok := g.deps[agent]
	return ok
}

// Dependencies returns the direct dependencies of the agent.
func (g *DependencyGraph) Dependencies(agent ports.AgentType) []ports.AgentType {
	return g.deps[agent]
}

// Ready returns pending agents whose dependencies are all completed, in
// fixed priority order so scheduling tie-breaks are reproducible.
func (g *DependencyGraph) Ready(statusOf func(ports.AgentType) ports.TaskStatus) []ports.AgentType {
	var ready []ports.AgentType
	for _, agent := range g.members {
		if statusOf(agent) != ports.TaskPending {
			continue
		}
		allDone := true
		for _, dep := range g.deps[agent] {
			if statusOf(dep) != ports.TaskCompleted {
				allDone = false
				break
			}
		}
		if allDone {
			ready = append(ready, agent)
		}
	}
	return ready
}

// TransitiveDependents returns every agent reachable from the given one via
// "depends on" edges pointing back at it, in priority order. These are the
// tasks that cascade to blocked when the agent fails.
func (g *DependencyGraph) TransitiveDependents(agent ports.AgentType) []ports.AgentType {
	seen := make(map[ports.AgentType]bool)
	var walk func(a ports.AgentType)
	walk = func(a ports.AgentType) {
		for _, dependent := range g.dependents[a] {
			if !seen[dependent] {
				seen[dependent] = true
				walk(dependent)
			}
		}
	}
	walk(agent)

	var out []ports.AgentType
	for _, member := range g.members {
		if seen[member] {
			out = append(out, member)
		}
	}
	return out
}
