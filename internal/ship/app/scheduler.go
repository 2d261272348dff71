package app

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	shiperrors "ship/internal/errors"
	"ship/internal/logging"
	"ship/internal/ship/domain"
	"ship/internal/ship/ports"
	"ship/internal/utils"
)

// AgentScheduler runs the Code phase: it dispatches ready agent tasks with
// bounded parallelism, honoring the dependency graph, and cascades blocked
// status through the dependents of a failed task. The integration-reviewer
// roster member is not a model call; when its turn comes every other task is
// terminal and the reviewer analyzes their outputs directly.
type AgentScheduler struct {
	runner      *AgentRunner
	reviewer    *IntegrationReviewer
	events      ports.EventListener
	maxParallel int
	logger      logging.Logger
	now         func() time.Time
}

// NewAgentScheduler wires a scheduler with the given parallelism bound.
func NewAgentScheduler(runner *AgentRunner, reviewer *IntegrationReviewer, events ports.EventListener, maxParallel int) *AgentScheduler {
	if maxParallel <= 0 {
		maxParallel = 3
	}
	return &AgentScheduler{
		runner:      runner,
		reviewer:    reviewer,
		events:      events,
		maxParallel: maxParallel,
		logger:      utils.NewComponentLogger("AgentScheduler"),
		now:         time.Now,
	}
}

type taskResult struct {
	agent  ports.AgentType
	output *ports.AgentOutput
	report *ports.IntegrationReport
	err    error
}

// RunCodePhase drives tasks to a terminal state and returns the integration
// report produced by the reviewer task, if it ran. The task map is mutated
// in place; the caller owns it and must not read it concurrently.
//
// Cancellation is cooperative: between dispatch rounds no new task starts,
// in-flight model calls finish, and ErrCancelled is returned.
func (s *AgentScheduler) RunCodePhase(ctx context.Context, session *ports.Session, tasks map[ports.AgentType]*ports.AgentTask, graph *domain.DependencyGraph, pass int) (*ports.IntegrationReport, error) {
	results := make(chan taskResult)
	var g errgroup.Group
	g.SetLimit(s.maxParallel)

	inFlight := 0
	cancelled := false
	var report *ports.IntegrationReport

	statusOf := func(agent ports.AgentType) ports.TaskStatus {
		if task, ok := tasks[agent]; ok {
			return task.Status
		}
		// Agents absent from the map (subset fix passes) count as satisfied
		// dependencies so the remaining graph stays runnable.
		return ports.TaskCompleted
	}

	for {
		if !cancelled && ctx.Err() != nil {
			cancelled = true
			s.logger.Warn("Session %s: cancellation observed, no new tasks will be dispatched", session.ID)
		}

		if !cancelled {
			for _, agent := range graph.Ready(statusOf) {
				if inFlight >= s.maxParallel {
					break
				}
				s.dispatch(ctx, session, tasks, agent, pass, &g, results)
				inFlight++
			}
		}

		if inFlight == 0 {
			break
		}

		res := <-results
		inFlight--
		s.apply(session, tasks, graph, res, &report)
	}

	_ = g.Wait()

	if cancelled {
		return report, fmt.Errorf("code phase: %w", shiperrors.ErrCancelled)
	}
	if report == nil {
		if task, ok := tasks[ports.AgentIntegrationReviewer]; ok && task.Status == ports.TaskBlocked {
			// A failed dependency blocks the reviewer task, but the review
			// itself reads only completed outputs. Run it anyway so the
			// failure still carries a report over what did complete.
			report = s.reviewer.Review(tasks, pass)
		}
	}
	return report, nil
}

// dispatch marks the task running and hands it to a worker.
func (s *AgentScheduler) dispatch(ctx context.Context, session *ports.Session, tasks map[ports.AgentType]*ports.AgentTask, agent ports.AgentType, pass int, g *errgroup.Group, results chan<- taskResult) {
	task := tasks[agent]
	now := s.now()
	task.Status = ports.TaskRunning
	task.StartedAt = &now
	task.Attempts++

	s.events.OnEvent(domain.NewAgentStartEvent(session.ID, agent, now))
	s.logger.Info("Session %s: dispatching %s (attempt %d)", session.ID, agent, task.Attempts)

	if agent == ports.AgentIntegrationReviewer {
		// Every dependency is terminal and nothing else is in flight, so the
		// worker may read the task map without racing the loop.
		g.Go(func() error {
			report := s.reviewer.Review(tasks, pass)
			summary := fmt.Sprintf("integration review: %d issues", len(report.Issues))
			results <- taskResult{
				agent:  agent,
				output: &ports.AgentOutput{Report: ports.AgentWorkReport{Summary: summary}},
				report: report,
			}
			return nil
		})
		return
	}

	depOutputs := make(map[ports.AgentType]*ports.AgentOutput)
	for _, dep := range graphDependencyClosure(tasks, agent) {
		if depTask, ok := tasks[dep]; ok && depTask.Output != nil {
			depOutputs[dep] = depTask.Output
		}
	}

	g.Go(func() error {
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("Agent %s panicked: %v", agent, r)
				results <- taskResult{agent: agent, err: fmt.Errorf("agent %s panicked: %v", agent, r)}
			}
		}()
		output, err := s.runner.Run(ctx, session, agent, depOutputs)
		results <- taskResult{agent: agent, output: output, err: err}
		return nil
	})
}

// apply folds one terminal result into the task map and cascades blocked
// status when the task failed.
func (s *AgentScheduler) apply(session *ports.Session, tasks map[ports.AgentType]*ports.AgentTask, graph *domain.DependencyGraph, res taskResult, report **ports.IntegrationReport) {
	task := tasks[res.agent]
	now := s.now()
	task.FinishedAt = &now

	if res.err != nil {
		task.Status = ports.TaskFailed
		task.Error = res.err.Error()
		task.ErrorKind = string(shiperrors.KindOf(res.err))
		s.events.OnEvent(domain.NewAgentCompleteEvent(session.ID, res.agent, ports.TaskFailed, task.Error, now))
		s.logger.Warn("Session %s: %s failed: %v", session.ID, res.agent, res.err)
		s.cascadeBlocked(session, tasks, graph, res.agent)
		return
	}

	task.Status = ports.TaskCompleted
	task.Output = res.output
	if res.report != nil {
		*report = res.report
	}
	s.events.OnEvent(domain.NewAgentCompleteEvent(session.ID, res.agent, ports.TaskCompleted, "", now))
	s.logger.Info("Session %s: %s completed (%d files)", session.ID, res.agent, len(res.output.Files))
}

// cascadeBlocked marks every pending transitive dependent of the failed
// agent as blocked. Blocked is terminal for the pass; the task is never
// attempted.
func (s *AgentScheduler) cascadeBlocked(session *ports.Session, tasks map[ports.AgentType]*ports.AgentTask, graph *domain.DependencyGraph, failed ports.AgentType) {
	for _, dependent := range graph.TransitiveDependents(failed) {
		task, ok := tasks[dependent]
		if !ok || task.Status != ports.TaskPending {
			continue
		}
		now := s.now()
		task.Status = ports.TaskBlocked
		task.Error = fmt.Sprintf("blocked: dependency %s failed", failed)
		task.ErrorKind = string(shiperrors.KindBlocked)
		task.FinishedAt = &now
		s.events.OnEvent(domain.NewAgentCompleteEvent(session.ID, dependent, ports.TaskBlocked, task.Error, now))
		s.logger.Warn("Session %s: %s blocked by failure of %s", session.ID, dependent, failed)
	}
}

// graphDependencyClosure lists the agents whose outputs feed this task's
// prompt: its declared dependencies, in roster order.
func graphDependencyClosure(tasks map[ports.AgentType]*ports.AgentTask, agent ports.AgentType) []ports.AgentType {
	task, ok := tasks[agent]
	if !ok {
		return nil
	}
	deps := make([]ports.AgentType, 0, len(task.Dependencies))
	for _, candidate := range ports.AllAgentTypes {
		for _, dep := range task.Dependencies {
			if dep == candidate {
				deps = append(deps, candidate)
				break
			}
		}
	}
	return deps
}
