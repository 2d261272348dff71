// Package router selects the provider/model pair for each orchestration
// call. Phase and agent signals map onto model tiers; a complexity hint from
// the caller overrides the heuristic.
package router

import (
	"context"
	"fmt"
	"sync"

	"ship/internal/ship/ports"
)

// ModelTier classifies a model by capability/cost tradeoff.
type ModelTier string

const (
	TierSmall   ModelTier = "small"   // fast/cheap model for mechanical tasks
	TierDefault ModelTier = "default" // standard model for most generation
	TierStrong  ModelTier = "strong"  // most capable model for architecture work
)

// ModelProfile names one routable model.
type ModelProfile struct {
	Provider string
	Model    string
	Tier     ModelTier
}

// Config configures the Router.
type Config struct {
	Models      []ModelProfile
	DefaultTier ModelTier
}

// Router implements ports.ModelRouter over a registered profile set.
type Router struct {
	mu          sync.RWMutex
	models      []ModelProfile
	defaultTier ModelTier
}

// New creates a Router from the given configuration.
func New(cfg Config) *Router {
	if cfg.DefaultTier == "" {
		cfg.DefaultTier = TierDefault
	}
	models := make([]ModelProfile, len(cfg.Models))
	copy(models, cfg.Models)
	return &Router{models: models, defaultTier: cfg.DefaultTier}
}

// NewSingleModel returns a router that maps every tier onto one
// provider/model pair, with an optional small-tier override.
func NewSingleModel(provider, model, smallModel string) *Router {
	models := []ModelProfile{
		{Provider: provider, Model: model, Tier: TierDefault},
		{Provider: provider, Model: model, Tier: TierStrong},
	}
	if smallModel != "" {
		models = append(models, ModelProfile{Provider: provider, Model: smallModel, Tier: TierSmall})
	}
	return New(Config{Models: models})
}

// RegisterModel adds or replaces a profile with the same provider+model.
func (r *Router) RegisterModel(profile ModelProfile) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, m := range r.models {
		if m.Provider == profile.Provider && m.Model == profile.Model && m.Tier == profile.Tier {
			r.models[i] = profile
			return
		}
	}
	r.models = append(r.models, profile)
}

// Route picks the model for one phase or agent invocation.
func (r *Router) Route(_ context.Context, req ports.RouteRequest) (ports.RouteDecision, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.models) == 0 {
		return ports.RouteDecision{}, fmt.Errorf("no models registered")
	}

	tier, reason := r.resolveTier(req)
	if m, ok := firstOfTier(r.models, tier); ok {
		return ports.RouteDecision{Provider: m.Provider, Model: m.Model, Reason: reason}, nil
	}
	// Tier unpopulated: degrade to the default tier, then to any model.
	if m, ok := firstOfTier(r.models, r.defaultTier); ok {
		return ports.RouteDecision{Provider: m.Provider, Model: m.Model, Reason: "fallback_default_tier"}, nil
	}
	m := r.models[0]
	return ports.RouteDecision{Provider: m.Provider, Model: m.Model, Reason: "fallback_any"}, nil
}

// resolveTier maps request signals onto a tier. The explicit complexity hint
// wins over the phase/agent heuristic.
func (r *Router) resolveTier(req ports.RouteRequest) (ModelTier, string) {
	switch req.ComplexityHint {
	case "simple":
		return TierSmall, "hint_simple"
	case "complex":
		return TierStrong, "hint_complex"
	}

	if req.Phase == ports.PhaseCode && req.Agent != "" {
		switch req.Agent {
		case ports.AgentArchitect, ports.AgentIntegrationReviewer, ports.AgentSecurity:
			return TierStrong, "agent_" + string(req.Agent)
		case ports.AgentDocs, ports.AgentI18n:
			return TierSmall, "agent_" + string(req.Agent)
		default:
			return r.defaultTier, "agent_" + string(req.Agent)
		}
	}

	switch req.Phase {
	case ports.PhaseDesign:
		return TierStrong, "phase_design"
	case ports.PhaseSpec, ports.PhasePlan:
		return r.defaultTier, "phase_" + string(req.Phase)
	default:
		return r.defaultTier, "default"
	}
}

func firstOfTier(models []ModelProfile, tier ModelTier) (ModelProfile, bool) {
	for _, m := range models {
		if m.Tier == tier {
			return m, true
		}
	}
	return ModelProfile{}, false
}

var _ ports.ModelRouter = (*Router)(nil)
