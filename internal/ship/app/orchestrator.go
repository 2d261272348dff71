package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"ship/internal/async"
	shiperrors "ship/internal/errors"
	"ship/internal/logging"
	"ship/internal/ship/domain"
	"ship/internal/ship/ports"
	"ship/internal/utils"
)

// Orchestrator errors surfaced to the control layer.
var (
	ErrExecutionInFlight = errors.New("execution already in flight for session")
	ErrSessionCompleted  = errors.New("session already completed")
	ErrNotExecuting      = errors.New("session is not executing")
)

// Orchestrator owns session lifecycle: it serializes mutations, drives the
// phase pipeline on a per-session worker and enforces at-most-one in-flight
// execution per session.
type Orchestrator struct {
	store     ports.SessionStore
	phases    *PhaseRunner
	scheduler *AgentScheduler
	events    *EventBroadcaster
	webhooks  *WebhookNotifier
	metrics   *Metrics
	logger    logging.Logger
	now       func() time.Time

	maxFixPasses int

	mu         sync.Mutex
	executions map[string]context.CancelFunc
}

// OrchestratorConfig bundles the orchestrator's collaborators.
type OrchestratorConfig struct {
	Store        ports.SessionStore
	Phases       *PhaseRunner
	Scheduler    *AgentScheduler
	Events       *EventBroadcaster
	Webhooks     *WebhookNotifier
	Metrics      *Metrics
	MaxFixPasses int
}

// NewOrchestrator wires the top-level session driver.
func NewOrchestrator(cfg OrchestratorConfig) *Orchestrator {
	if cfg.MaxFixPasses <= 0 {
		cfg.MaxFixPasses = 2
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = DefaultMetrics()
	}
	return &Orchestrator{
		store:        cfg.Store,
		phases:       cfg.Phases,
		scheduler:    cfg.Scheduler,
		events:       cfg.Events,
		webhooks:     cfg.Webhooks,
		metrics:      metrics,
		logger:       utils.NewComponentLogger("Orchestrator"),
		now:          time.Now,
		maxFixPasses: cfg.MaxFixPasses,
		executions:   make(map[string]context.CancelFunc),
	}
}

// Start creates a new pending session from the enriched intent.
func (o *Orchestrator) Start(ctx context.Context, intent ports.EnrichedIntent) (*ports.Session, error) {
	if strings.TrimSpace(intent.Description) == "" {
		return nil, shiperrors.NewValidationError("intent", "description is required", nil)
	}
	now := o.now()
	session := &ports.Session{
		ID:        fmt.Sprintf("ship-%s", uuid.New().String()),
		Phase:     ports.PhaseDesign,
		Status:    ports.SessionPending,
		Intent:    intent,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := o.store.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	o.logger.Info("Session %s created", session.ID)
	return session, nil
}

// Status returns a point-in-time copy of the session.
func (o *Orchestrator) Status(ctx context.Context, sessionID string) (*ports.Session, error) {
	return o.store.Get(ctx, sessionID)
}

// List returns all known session IDs.
func (o *Orchestrator) List(ctx context.Context) ([]string, error) {
	return o.store.List(ctx)
}

// Delete removes a session and its event stream. An executing session must
// be cancelled first.
func (o *Orchestrator) Delete(ctx context.Context, sessionID string) error {
	o.mu.Lock()
	_, inFlight := o.executions[sessionID]
	o.mu.Unlock()
	if inFlight {
		return ErrExecutionInFlight
	}
	if err := o.store.Delete(ctx, sessionID); err != nil {
		return err
	}
	o.events.Remove(sessionID)
	return nil
}

// Execute schedules the session pipeline on a background worker. A second
// call while a run is in flight is rejected, not queued. A failed session
// may be re-executed; phases with stored results replay instead of
// regenerating.
func (o *Orchestrator) Execute(ctx context.Context, sessionID string) error {
	session, err := o.store.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if session.Status == ports.SessionCompleted {
		return ErrSessionCompleted
	}

	o.mu.Lock()
	if _, inFlight := o.executions[sessionID]; inFlight {
		o.mu.Unlock()
		return ErrExecutionInFlight
	}
	// The worker outlives the HTTP request; its context is detached.
	runCtx, cancel := context.WithCancel(context.Background())
	o.executions[sessionID] = cancel
	o.mu.Unlock()

	if session.Status == ports.SessionFailed {
		// Re-execution starts a fresh event stream; the previous run already
		// ended its stream with a done event.
		o.events.Remove(sessionID)
	}

	o.metrics.IncActiveSessions()
	async.Go(o.logger, "session-"+sessionID, func() {
		defer func() {
			o.mu.Lock()
			delete(o.executions, sessionID)
			o.mu.Unlock()
			o.metrics.DecActiveSessions()
			cancel()
		}()
		o.runSession(runCtx, sessionID)
	})
	return nil
}

// Cancel requests cooperative cancellation of an in-flight execution.
// In-flight model calls finish; no new task is dispatched.
func (o *Orchestrator) Cancel(ctx context.Context, sessionID string) error {
	o.mu.Lock()
	cancel, ok := o.executions[sessionID]
	o.mu.Unlock()
	if !ok {
		return ErrNotExecuting
	}
	o.logger.Info("Session %s: cancellation requested", sessionID)
	cancel()
	return nil
}

// Subscribe returns the session's event stream: replay buffer first, then
// live events, ending with done.
func (o *Orchestrator) Subscribe(sessionID string) (<-chan ports.Event, func()) {
	return o.events.Subscribe(sessionID)
}

// runSession drives the pipeline to a terminal state. It is the only writer
// of the session record while executing.
func (o *Orchestrator) runSession(ctx context.Context, sessionID string) {
	session, err := o.store.Update(ctx, sessionID, func(s *ports.Session) error {
		s.Status = ports.SessionRunning
		s.Error = nil
		return nil
	})
	if err != nil {
		o.logger.Error("Session %s: cannot mark running: %v", sessionID, err)
		return
	}

	for _, phase := range []ports.Phase{ports.PhaseDesign, ports.PhaseSpec, ports.PhasePlan} {
		started := o.now()
		session, err = o.phases.Run(ctx, session, phase)
		if err != nil {
			o.metrics.ObservePhase(string(phase), "failed", o.now().Sub(started))
			o.metrics.IncPhaseFailure(string(phase), string(shiperrors.KindOf(err)))
			o.failSession(sessionID, phase, "", err)
			return
		}
		o.metrics.ObservePhase(string(phase), "completed", o.now().Sub(started))
	}

	started := o.now()
	if err := o.runCodePhase(ctx, session); err != nil {
		o.metrics.ObservePhase(string(ports.PhaseCode), "failed", o.now().Sub(started))
		return
	}
	o.metrics.ObservePhase(string(ports.PhaseCode), "completed", o.now().Sub(started))
}

// runCodePhase owns the agent fan-out and the bounded auto-fix loop. It
// marks the session terminal itself.
func (o *Orchestrator) runCodePhase(ctx context.Context, session *ports.Session) error {
	graph, err := domain.NewDependencyGraph(domain.DefaultDependencies())
	if err != nil {
		o.failSession(session.ID, ports.PhaseCode, "", err)
		return err
	}

	if session.CodeResult != nil && session.Status == ports.SessionCompleted {
		return nil
	}

	o.events.OnEvent(domain.NewPhaseStartEvent(session.ID, ports.PhaseCode, o.now()))

	if session.PlanResult != nil && session.PlanResult.Status.CanTransition(ports.PlanExecuting) {
		updated, uerr := o.store.Update(ctx, session.ID, func(s *ports.Session) error {
			s.PlanResult.Status = ports.PlanExecuting
			return nil
		})
		if uerr != nil {
			o.failSession(session.ID, ports.PhaseCode, "", uerr)
			return uerr
		}
		session = updated
	}

	tasks := o.initialTasks(session, graph)
	report, err := o.scheduler.RunCodePhase(ctx, session, tasks, graph, 0)
	if err == nil {
		// A permanent agent failure is not repairable; the fix loop only
		// runs over a fully completed roster.
		if _, anyFailed := firstFailedAgent(tasks); !anyFailed {
			report, err = o.runFixLoop(ctx, session, tasks, graph, report)
		}
	}
	o.recordAgentMetrics(tasks)

	codeResult := buildCodeResult(tasks, report)
	if err != nil {
		// Cancellation or scheduler failure: persist partial output, then fail.
		_, updateErr := o.store.Update(ctx, session.ID, func(s *ports.Session) error {
			s.CodeResult = codeResult
			return nil
		})
		if updateErr != nil {
			o.logger.Error("Session %s: cannot persist partial code result: %v", session.ID, updateErr)
		}
		o.failSession(session.ID, ports.PhaseCode, "", err)
		return err
	}

	if failed, ok := firstFailedAgent(tasks); ok {
		_, updateErr := o.store.Update(ctx, session.ID, func(s *ports.Session) error {
			s.CodeResult = codeResult
			return nil
		})
		if updateErr != nil {
			o.logger.Error("Session %s: cannot persist partial code result: %v", session.ID, updateErr)
		}
		task := tasks[failed]
		o.failAgent(session.ID, failed, task)
		return fmt.Errorf("agent %s failed: %s", failed, task.Error)
	}

	updated, err := o.store.Update(ctx, session.ID, func(s *ports.Session) error {
		s.CodeResult = codeResult
		s.Status = ports.SessionCompleted
		if s.PlanResult != nil && s.PlanResult.Status.CanTransition(ports.PlanCompleted) {
			s.PlanResult.Status = ports.PlanCompleted
		}
		return nil
	})
	if err != nil {
		o.failSession(session.ID, ports.PhaseCode, "", fmt.Errorf("persist code result: %w", err))
		return err
	}

	o.events.OnEvent(domain.NewPhaseCompleteEvent(session.ID, ports.PhaseCode, codeResult, o.now()))
	o.finish(updated)
	return nil
}

// runFixLoop re-schedules the affected agents while the report is
// auto-fixable, the pass bound allows and successive passes keep making
// progress. Exceeding the bound never fails the session; the remaining
// issues ship with the final report.
func (o *Orchestrator) runFixLoop(ctx context.Context, session *ports.Session, tasks map[ports.AgentType]*ports.AgentTask, graph *domain.DependencyGraph, report *ports.IntegrationReport) (*ports.IntegrationReport, error) {
	prevSignatures := ""
	for pass := 1; pass <= o.maxFixPasses; pass++ {
		if report.Clean() || !report.AutoFixable() {
			return report, nil
		}
		signatures := strings.Join(report.Signatures(), ";")
		if signatures == prevSignatures {
			o.logger.Warn("Session %s: fix pass made no progress, stopping", session.ID)
			return report, nil
		}
		prevSignatures = signatures

		affected := report.AffectedAgents()
		if len(affected) == 0 {
			return report, nil
		}
		o.logger.Info("Session %s: auto-fix pass %d re-running %v", session.ID, pass, affected)
		o.metrics.IncFixPass()
		o.events.OnEvent(domain.NewProgressEvent(session.ID, ports.PhaseCode, -1,
			fmt.Sprintf("auto-fix pass %d: re-running %d agents", pass, len(affected)), o.now()))

		for _, agent := range affected {
			resetTask(tasks[agent])
		}
		// The reviewer re-runs after the subset completes.
		resetTask(tasks[ports.AgentIntegrationReviewer])

		next, err := o.scheduler.RunCodePhase(ctx, session, tasks, graph, pass)
		if err != nil {
			return report, err
		}
		if next != nil {
			report = next
		}
	}
	return report, nil
}

func resetTask(task *ports.AgentTask) {
	if task == nil {
		return
	}
	task.Status = ports.TaskPending
	task.Output = nil
	task.Error = ""
	task.ErrorKind = ""
	task.StartedAt = nil
	task.FinishedAt = nil
}

// initialTasks builds the task map, resuming persisted task state when a
// previous run was interrupted mid-Code-phase.
func (o *Orchestrator) initialTasks(session *ports.Session, graph *domain.DependencyGraph) map[ports.AgentType]*ports.AgentTask {
	tasks := make(map[ports.AgentType]*ports.AgentTask, len(ports.AllAgentTypes))
	var persisted map[ports.AgentType]*ports.AgentTask
	if session.CodeResult != nil {
		persisted = session.CodeResult.Tasks
	}
	for _, agent := range ports.AllAgentTypes {
		if prev, ok := persisted[agent]; ok && prev != nil && prev.Status == ports.TaskCompleted {
			restored := *prev
			tasks[agent] = &restored
			continue
		}
		tasks[agent] = &ports.AgentTask{
			Agent:        agent,
			Status:       ports.TaskPending,
			Dependencies: graph.Dependencies(agent),
		}
	}
	// A stale review must not survive a resume; the reviewer runs again.
	resetTask(tasks[ports.AgentIntegrationReviewer])
	tasks[ports.AgentIntegrationReviewer].Dependencies = graph.Dependencies(ports.AgentIntegrationReviewer)
	return tasks
}

// buildCodeResult assembles the final Code payload: file union in roster
// order, all reports and the final review.
func buildCodeResult(tasks map[ports.AgentType]*ports.AgentTask, report *ports.IntegrationReport) *ports.CodeResult {
	result := &ports.CodeResult{
		Reports: make(map[ports.AgentType]ports.AgentWorkReport),
		Tasks:   tasks,
		Review:  report,
	}
	for _, agent := range ports.AllAgentTypes {
		task, ok := tasks[agent]
		if !ok || task.Output == nil {
			continue
		}
		result.Files = append(result.Files, task.Output.Files...)
		result.Reports[agent] = task.Output.Report
	}
	return result
}

// firstFailedAgent returns the highest-priority failed task, if any.
func firstFailedAgent(tasks map[ports.AgentType]*ports.AgentTask) (ports.AgentType, bool) {
	for _, agent := range ports.AllAgentTypes {
		if task, ok := tasks[agent]; ok && task.Status == ports.TaskFailed {
			return agent, true
		}
	}
	return "", false
}

func (o *Orchestrator) recordAgentMetrics(tasks map[ports.AgentType]*ports.AgentTask) {
	for agent, task := range tasks {
		if task.StartedAt == nil || task.FinishedAt == nil {
			continue
		}
		o.metrics.ObserveAgent(string(agent), string(task.Status), task.FinishedAt.Sub(*task.StartedAt))
	}
}

// failSession marks the session failed with an error naming the phase and
// kind, and ends the event stream.
func (o *Orchestrator) failSession(sessionID string, phase ports.Phase, agent ports.AgentType, cause error) {
	kind := shiperrors.KindOf(cause)
	o.logger.Warn("Session %s failed in %s phase (%s): %v", sessionID, phase, kind, cause)

	updated, err := o.store.Update(context.Background(), sessionID, func(s *ports.Session) error {
		s.Status = ports.SessionFailed
		s.Error = &ports.SessionError{
			Kind:    string(kind),
			Phase:   phase,
			Agent:   agent,
			Message: cause.Error(),
		}
		return nil
	})
	if err != nil {
		o.logger.Error("Session %s: cannot persist failure: %v", sessionID, err)
		return
	}
	o.events.OnEvent(domain.NewErrorEvent(sessionID, updated.Error.Message, o.now()))
	o.finish(updated)
}

// failAgent marks the session failed for one agent's failure, preserving the
// task's own error kind.
func (o *Orchestrator) failAgent(sessionID string, agent ports.AgentType, task *ports.AgentTask) {
	kind := task.ErrorKind
	if kind == "" {
		kind = string(shiperrors.KindInternal)
	}
	o.logger.Warn("Session %s failed: agent %s (%s): %s", sessionID, agent, kind, task.Error)

	updated, err := o.store.Update(context.Background(), sessionID, func(s *ports.Session) error {
		s.Status = ports.SessionFailed
		s.Error = &ports.SessionError{
			Kind:    kind,
			Phase:   ports.PhaseCode,
			Agent:   agent,
			Message: task.Error,
		}
		return nil
	})
	if err != nil {
		o.logger.Error("Session %s: cannot persist failure: %v", sessionID, err)
		return
	}
	o.events.OnEvent(domain.NewErrorEvent(sessionID, updated.Error.Message, o.now()))
	o.finish(updated)
}

// finish publishes the terminal done event exactly once and notifies
// webhooks. The broadcaster drops anything published after done.
func (o *Orchestrator) finish(session *ports.Session) {
	o.events.OnEvent(domain.NewDoneEvent(session.ID, session.Status, o.now()))
	if o.webhooks != nil {
		o.webhooks.NotifyTerminal(session)
	}
}
