package app

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	shiperrors "ship/internal/errors"
	"ship/internal/llm"
	"ship/internal/session"
	"ship/internal/ship/domain"
	"ship/internal/ship/ports"
)

func newTaskMap(t *testing.T, graph *domain.DependencyGraph) map[ports.AgentType]*ports.AgentTask {
	t.Helper()
	tasks := make(map[ports.AgentType]*ports.AgentTask, len(ports.AllAgentTypes))
	for _, agent := range ports.AllAgentTypes {
		tasks[agent] = &ports.AgentTask{
			Agent:        agent,
			Status:       ports.TaskPending,
			Dependencies: graph.Dependencies(agent),
		}
	}
	return tasks
}

func newSchedulerUnderTest(client ports.LLMClient, maxParallel int) (*AgentScheduler, *EventBroadcaster) {
	events := NewEventBroadcaster(256)
	runner := NewAgentRunner(&stubFactory{client: client}, stubRouter{}, events)
	return NewAgentScheduler(runner, NewIntegrationReviewer(), events, maxParallel), events
}

func TestScheduler_RunsFullRosterToCompletion(t *testing.T) {
	graph, err := domain.NewDependencyGraph(domain.DefaultDependencies())
	if err != nil {
		t.Fatalf("graph: %v", err)
	}

	mock := llm.NewMockClient("mock-model")
	mock.CompleteFunc = func(ctx context.Context, req ports.CompletionRequest) (*ports.CompletionResponse, error) {
		agent, ok := agentFromRequest(req)
		if !ok {
			t.Errorf("cannot identify agent for request")
			return nil, errors.New("unknown agent")
		}
		return submitWorkResponse(agent), nil
	}

	sched, _ := newSchedulerUnderTest(mock, 3)
	store := session.NewMemoryStore()
	s := sessionWithPlan(t, store)
	tasks := newTaskMap(t, graph)

	report, err := sched.RunCodePhase(context.Background(), s, tasks, graph, 0)
	if err != nil {
		t.Fatalf("run code phase: %v", err)
	}
	if report == nil || !report.Clean() {
		t.Fatalf("report = %+v, want clean", report)
	}
	for agent, task := range tasks {
		if task.Status != ports.TaskCompleted {
			t.Errorf("%s status = %s, want completed", agent, task.Status)
		}
		if task.Attempts != 1 {
			t.Errorf("%s attempts = %d, want 1", agent, task.Attempts)
		}
	}
	// Generated files are stamped with their producing agent.
	for _, file := range tasks[ports.AgentBackend].Output.Files {
		if file.Agent != ports.AgentBackend {
			t.Errorf("file %s stamped %s, want backend", file.Path, file.Agent)
		}
	}
}

func TestScheduler_FailureBlocksTransitiveDependents(t *testing.T) {
	graph, err := domain.NewDependencyGraph(domain.DefaultDependencies())
	if err != nil {
		t.Fatalf("graph: %v", err)
	}

	mock := llm.NewMockClient("mock-model")
	mock.CompleteFunc = func(ctx context.Context, req ports.CompletionRequest) (*ports.CompletionResponse, error) {
		agent, _ := agentFromRequest(req)
		switch agent {
		case ports.AgentBackend:
			return nil, &shiperrors.ProviderError{Provider: "mock", Model: "mock-model", StatusCode: 400, Permanent: true, Err: errors.New("bad prompt")}
		case ports.AgentFrontend:
			return submitWorkResponse(agent, ports.IntegrationPoint{
				Direction: ports.IntegrationExpects, Name: "api:/api/todos", Interface: "REST",
			}), nil
		default:
			return submitWorkResponse(agent), nil
		}
	}

	sched, _ := newSchedulerUnderTest(mock, 3)
	store := session.NewMemoryStore()
	s := sessionWithPlan(t, store)
	tasks := newTaskMap(t, graph)

	report, err := sched.RunCodePhase(context.Background(), s, tasks, graph, 0)
	if err != nil {
		t.Fatalf("run code phase: %v", err)
	}
	// The reviewer task is blocked by the failure, but the review still runs
	// over the completed subset.
	if report == nil {
		t.Fatal("no report produced over the completed subset")
	}
	if len(report.Issues) != 1 || report.Issues[0].Category != ports.IssueMissing {
		t.Fatalf("report issues = %+v, want one missing-contract issue", report.Issues)
	}

	if tasks[ports.AgentBackend].Status != ports.TaskFailed {
		t.Fatalf("backend status = %s, want failed", tasks[ports.AgentBackend].Status)
	}
	if tasks[ports.AgentBackend].ErrorKind != string(shiperrors.KindProvider) {
		t.Fatalf("backend error kind = %s, want provider", tasks[ports.AgentBackend].ErrorKind)
	}

	blocked := []ports.AgentType{
		ports.AgentDevOps, ports.AgentTest, ports.AgentDocs,
		ports.AgentSecurity, ports.AgentIntegrationReviewer,
	}
	for _, agent := range blocked {
		if tasks[agent].Status != ports.TaskBlocked {
			t.Errorf("%s status = %s, want blocked", agent, tasks[agent].Status)
		}
		if tasks[agent].ErrorKind != string(shiperrors.KindBlocked) {
			t.Errorf("%s error kind = %s, want blocked", agent, tasks[agent].ErrorKind)
		}
	}
	// Agents off the failed path still run.
	for _, agent := range []ports.AgentType{ports.AgentArchitect, ports.AgentFrontend, ports.AgentI18n} {
		if tasks[agent].Status != ports.TaskCompleted {
			t.Errorf("%s status = %s, want completed", agent, tasks[agent].Status)
		}
	}
}

func TestScheduler_CancellationStopsNewDispatch(t *testing.T) {
	graph, err := domain.NewDependencyGraph(domain.DefaultDependencies())
	if err != nil {
		t.Fatalf("graph: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	mock := llm.NewMockClient("mock-model")
	mock.CompleteFunc = func(ctx context.Context, req ports.CompletionRequest) (*ports.CompletionResponse, error) {
		agent, _ := agentFromRequest(req)
		// Cancel while the first task is still in flight; it finishes, the
		// rest never start.
		cancel()
		return submitWorkResponse(agent), nil
	}

	sched, _ := newSchedulerUnderTest(mock, 3)
	store := session.NewMemoryStore()
	s := sessionWithPlan(t, store)
	tasks := newTaskMap(t, graph)

	_, err = sched.RunCodePhase(ctx, s, tasks, graph, 0)
	if !errors.Is(err, shiperrors.ErrCancelled) {
		t.Fatalf("err = %v, want ErrCancelled", err)
	}
	if tasks[ports.AgentArchitect].Status != ports.TaskCompleted {
		t.Fatalf("in-flight architect should finish, got %s", tasks[ports.AgentArchitect].Status)
	}
	for _, agent := range []ports.AgentType{ports.AgentBackend, ports.AgentFrontend, ports.AgentIntegrationReviewer} {
		if tasks[agent].Status != ports.TaskPending {
			t.Errorf("%s status = %s, want pending after cancellation", agent, tasks[agent].Status)
		}
	}
}

func TestScheduler_HonorsParallelismBound(t *testing.T) {
	graph, err := domain.NewDependencyGraph(domain.DefaultDependencies())
	if err != nil {
		t.Fatalf("graph: %v", err)
	}

	var inFlight, peak atomic.Int32
	mock := llm.NewMockClient("mock-model")
	mock.CompleteFunc = func(ctx context.Context, req ports.CompletionRequest) (*ports.CompletionResponse, error) {
		n := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		agent, _ := agentFromRequest(req)
		return submitWorkResponse(agent), nil
	}

	sched, _ := newSchedulerUnderTest(mock, 2)
	store := session.NewMemoryStore()
	s := sessionWithPlan(t, store)
	tasks := newTaskMap(t, graph)

	if _, err := sched.RunCodePhase(context.Background(), s, tasks, graph, 0); err != nil {
		t.Fatalf("run code phase: %v", err)
	}
	if got := peak.Load(); got > 2 {
		t.Fatalf("peak concurrency = %d, want <= 2", got)
	}
}

func TestScheduler_DispatchFollowsRosterPriority(t *testing.T) {
	graph, err := domain.NewDependencyGraph(domain.DefaultDependencies())
	if err != nil {
		t.Fatalf("graph: %v", err)
	}

	var mu sync.Mutex
	var order []ports.AgentType
	mock := llm.NewMockClient("mock-model")
	mock.CompleteFunc = func(ctx context.Context, req ports.CompletionRequest) (*ports.CompletionResponse, error) {
		agent, _ := agentFromRequest(req)
		mu.Lock()
		order = append(order, agent)
		mu.Unlock()
		return submitWorkResponse(agent), nil
	}

	// One slot forces a strict total order: ties break by roster priority.
	sched, _ := newSchedulerUnderTest(mock, 1)
	store := session.NewMemoryStore()
	s := sessionWithPlan(t, store)
	tasks := newTaskMap(t, graph)

	if _, err := sched.RunCodePhase(context.Background(), s, tasks, graph, 0); err != nil {
		t.Fatalf("run code phase: %v", err)
	}

	want := []ports.AgentType{
		ports.AgentArchitect, ports.AgentBackend, ports.AgentFrontend,
		ports.AgentDevOps, ports.AgentTest, ports.AgentDocs,
		ports.AgentSecurity, ports.AgentI18n,
	}
	mu.Lock()
	defer mu.Unlock()
	if len(order) != len(want) {
		t.Fatalf("model calls = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("dispatch order = %v, want %v", order, want)
		}
	}
}
