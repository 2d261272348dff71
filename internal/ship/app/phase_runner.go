package app

import (
	"context"
	"fmt"
	"time"

	shiperrors "ship/internal/errors"
	"ship/internal/logging"
	"ship/internal/ship/domain"
	"ship/internal/ship/ports"
	"ship/internal/utils"
)

// PhaseRunner drives the Design, Spec and Plan phases. Each run consumes the
// previous phase's result, invokes the generation collaborator once,
// validates the payload shape and persists it. The Code phase is driven by
// the AgentScheduler, not here.
type PhaseRunner struct {
	store   ports.SessionStore
	factory ports.LLMFactory
	router  ports.ModelRouter
	events  ports.EventListener
	logger  logging.Logger
	now     func() time.Time
}

// NewPhaseRunner wires a phase runner against the given collaborators.
func NewPhaseRunner(store ports.SessionStore, factory ports.LLMFactory, router ports.ModelRouter, events ports.EventListener) *PhaseRunner {
	return &PhaseRunner{
		store:   store,
		factory: factory,
		router:  router,
		events:  events,
		logger:  utils.NewComponentLogger("PhaseRunner"),
		now:     time.Now,
	}
}

// Run executes one phase for the session. Re-running a phase whose result is
// already present replays the stored result without calling the model. On
// error the phase does not advance and nothing is persisted; the caller owns
// marking the session failed.
func (r *PhaseRunner) Run(ctx context.Context, session *ports.Session, phase ports.Phase) (*ports.Session, error) {
	switch phase {
	case ports.PhaseDesign, ports.PhaseSpec, ports.PhasePlan:
	default:
		return nil, shiperrors.NewValidationError(string(phase), "phase is not runnable here", nil)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: before %s phase", shiperrors.ErrCancelled, phase)
	}

	r.events.OnEvent(domain.NewPhaseStartEvent(session.ID, phase, r.now()))

	if session.PhaseResultPresent(phase) {
		r.logger.Info("Session %s already has a %s result, replaying", session.ID, phase)
		r.events.OnEvent(domain.NewPhaseCompleteEvent(session.ID, phase, phaseResult(session, phase), r.now()))
		return session, nil
	}

	messages, err := domain.BuildPhaseMessages(phase, session)
	if err != nil {
		return nil, shiperrors.NewValidationError(string(phase), "cannot build phase input", err)
	}

	decision, err := r.router.Route(ctx, ports.RouteRequest{Phase: phase, SessionID: session.ID})
	if err != nil {
		return nil, fmt.Errorf("route %s phase: %w", phase, err)
	}
	client, err := r.factory.Client(decision.Provider, decision.Model)
	if err != nil {
		return nil, fmt.Errorf("build client for %s phase: %w", phase, err)
	}

	r.events.OnEvent(domain.NewProgressEvent(session.ID, phase, -1,
		fmt.Sprintf("generating %s with %s", phase, decision.Model), r.now()))
	r.logger.Info("Session %s: running %s phase via %s/%s (%s)",
		session.ID, phase, decision.Provider, decision.Model, decision.Reason)

	resp, err := client.Complete(ctx, ports.CompletionRequest{Messages: messages})
	if err != nil {
		return nil, err
	}

	result, err := r.decodePhaseResult(phase, resp.Content)
	if err != nil {
		return nil, err
	}

	updated, err := r.store.Update(ctx, session.ID, func(s *ports.Session) error {
		if err := setPhaseResult(s, phase, result); err != nil {
			return err
		}
		if next, ok := phase.Next(); ok {
			s.Phase = next
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("persist %s result: %w", phase, err)
	}

	r.events.OnEvent(domain.NewPhaseCompleteEvent(session.ID, phase, result, r.now()))
	return updated, nil
}

// decodePhaseResult parses and shape-validates the model output for a phase.
// Unparseable output is a provider failure; parseable-but-empty output is a
// validation failure and never retried.
func (r *PhaseRunner) decodePhaseResult(phase ports.Phase, content string) (any, error) {
	switch phase {
	case ports.PhaseDesign:
		var result ports.DesignResult
		if err := decodeModelJSON(content, &result); err != nil {
			return nil, shiperrors.NewProviderError("", "", 0, fmt.Errorf("design payload: %w", err))
		}
		if result.Summary == "" || len(result.Components) == 0 {
			return nil, shiperrors.NewValidationError("design", "result missing summary or components", nil)
		}
		return &result, nil
	case ports.PhaseSpec:
		var result ports.SpecResult
		if err := decodeModelJSON(content, &result); err != nil {
			return nil, shiperrors.NewProviderError("", "", 0, fmt.Errorf("spec payload: %w", err))
		}
		if len(result.Requirements) == 0 {
			return nil, shiperrors.NewValidationError("spec", "result has no requirements", nil)
		}
		return &result, nil
	case ports.PhasePlan:
		var result ports.Plan
		if err := decodeModelJSON(content, &result); err != nil {
			return nil, shiperrors.NewProviderError("", "", 0, fmt.Errorf("plan payload: %w", err))
		}
		if len(result.Steps()) == 0 {
			return nil, shiperrors.NewValidationError("plan", "result has no steps", nil)
		}
		for pi := range result.Phases {
			for si := range result.Phases[pi].Steps {
				step := &result.Phases[pi].Steps[si]
				switch step.Risk {
				case ports.RiskSafe, ports.RiskModerate, ports.RiskRisky:
				case "":
					step.Risk = ports.RiskSafe
				default:
					return nil, shiperrors.NewValidationError("plan",
						fmt.Sprintf("step %s has unknown risk level %q", step.ID, step.Risk), nil)
				}
			}
		}
		result.AssessRisk()
		// No human approval surface exists, so the plan walks the approval
		// state machine automatically. The risk summary stays on record.
		result.Status = ports.PlanDraft
		advancePlan(&result, ports.PlanPendingApproval)
		advancePlan(&result, ports.PlanApproved)
		if result.Risk.AutoApprovable {
			r.logger.Info("Plan auto-approved: all %d steps safe", result.Risk.SafeCount)
		} else {
			r.logger.Warn("Plan approved with elevated risk: %d moderate, %d risky",
				result.Risk.ModerateCount, result.Risk.RiskyCount)
		}
		return &result, nil
	default:
		return nil, shiperrors.NewValidationError(string(phase), "no decoder for phase", nil)
	}
}

func advancePlan(plan *ports.Plan, to ports.PlanStatus) {
	if plan.Status.CanTransition(to) {
		plan.Status = to
	}
}

func phaseResult(s *ports.Session, phase ports.Phase) any {
	switch phase {
	case ports.PhaseDesign:
		return s.DesignResult
	case ports.PhaseSpec:
		return s.SpecResult
	case ports.PhasePlan:
		return s.PlanResult
	case ports.PhaseCode:
		return s.CodeResult
	default:
		return nil
	}
}

// setPhaseResult enforces the forward-only phase invariant at the persistence
// boundary: a result is never written while an earlier phase's is absent.
func setPhaseResult(s *ports.Session, phase ports.Phase, result any) error {
	for _, earlier := range ports.AllPhases {
		if earlier == phase {
			break
		}
		if !s.PhaseResultPresent(earlier) {
			return fmt.Errorf("cannot store %s result before %s completes", phase, earlier)
		}
	}
	switch phase {
	case ports.PhaseDesign:
		s.DesignResult = result.(*ports.DesignResult)
	case ports.PhaseSpec:
		s.SpecResult = result.(*ports.SpecResult)
	case ports.PhasePlan:
		s.PlanResult = result.(*ports.Plan)
	case ports.PhaseCode:
		s.CodeResult = result.(*ports.CodeResult)
	default:
		return fmt.Errorf("unknown phase %q", phase)
	}
	return nil
}
