package app

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	shiperrors "ship/internal/errors"
	"ship/internal/logging"
	"ship/internal/ship/domain"
	"ship/internal/ship/ports"
	"ship/internal/utils"
)

// AgentRunner executes exactly one generation agent task: it builds the
// prompt from the session and the outputs of completed dependencies, calls
// the routed model and parses the result into files plus a work report.
type AgentRunner struct {
	factory ports.LLMFactory
	router  ports.ModelRouter
	events  ports.EventListener
	logger  logging.Logger
	now     func() time.Time
}

// NewAgentRunner wires an agent runner against the given collaborators.
func NewAgentRunner(factory ports.LLMFactory, router ports.ModelRouter, events ports.EventListener) *AgentRunner {
	return &AgentRunner{
		factory: factory,
		router:  router,
		events:  events,
		logger:  utils.NewComponentLogger("AgentRunner"),
		now:     time.Now,
	}
}

// submitWorkPayload mirrors the submit_work tool arguments.
type submitWorkPayload struct {
	Files  []ports.GeneratedFile `json:"files"`
	Report ports.AgentWorkReport `json:"report"`
}

// Run executes the agent task and returns its output. Transient model
// failures are retried inside the client; what surfaces here is final.
func (r *AgentRunner) Run(ctx context.Context, session *ports.Session, agent ports.AgentType, depOutputs map[ports.AgentType]*ports.AgentOutput) (*ports.AgentOutput, error) {
	messages, err := domain.BuildAgentMessages(agent, session, depOutputs)
	if err != nil {
		return nil, shiperrors.NewValidationError(string(agent), "cannot build agent input", err)
	}

	decision, err := r.router.Route(ctx, ports.RouteRequest{
		Phase:     ports.PhaseCode,
		Agent:     agent,
		SessionID: session.ID,
	})
	if err != nil {
		return nil, fmt.Errorf("route agent %s: %w", agent, err)
	}
	client, err := r.factory.Client(decision.Provider, decision.Model)
	if err != nil {
		return nil, fmt.Errorf("build client for agent %s: %w", agent, err)
	}

	r.logger.Info("Session %s: running %s via %s/%s (%s)",
		session.ID, agent, decision.Provider, decision.Model, decision.Reason)

	resp, err := client.Complete(ctx, ports.CompletionRequest{
		Messages: messages,
		Tools:    []ports.ToolDefinition{domain.SubmitWorkTool()},
	})
	if err != nil {
		return nil, err
	}

	output, err := r.parseOutput(session.ID, agent, resp)
	if err != nil {
		return nil, err
	}
	for i := range output.Files {
		output.Files[i].Agent = agent
	}
	return output, nil
}

// parseOutput prefers the submit_work tool call; content-only responses are
// parsed as the same payload shape.
func (r *AgentRunner) parseOutput(sessionID string, agent ports.AgentType, resp *ports.CompletionResponse) (*ports.AgentOutput, error) {
	var payload submitWorkPayload

	if call, ok := findSubmitWork(resp.ToolCalls); ok {
		r.events.OnEvent(domain.NewToolCallEvent(sessionID, agent, call.ID, call.Name, call.Arguments, r.now()))
		raw, err := json.Marshal(call.Arguments)
		if err != nil {
			return nil, shiperrors.NewValidationError(string(agent), "unserializable tool arguments", err)
		}
		if err := json.Unmarshal(raw, &payload); err != nil {
			r.events.OnEvent(domain.NewToolResultEvent(sessionID, agent, call.ID, call.Name, "", err.Error(), r.now()))
			return nil, shiperrors.NewProviderError("", "", 0, fmt.Errorf("agent %s submit_work payload: %w", agent, err))
		}
		if err := validatePayload(agent, payload); err != nil {
			r.events.OnEvent(domain.NewToolResultEvent(sessionID, agent, call.ID, call.Name, "", err.Error(), r.now()))
			return nil, err
		}
		r.events.OnEvent(domain.NewToolResultEvent(sessionID, agent, call.ID, call.Name,
			fmt.Sprintf("accepted %d files", len(payload.Files)), "", r.now()))
		return &ports.AgentOutput{Files: payload.Files, Report: payload.Report}, nil
	}

	if err := decodeModelJSON(resp.Content, &payload); err != nil {
		return nil, shiperrors.NewProviderError("", "", 0, fmt.Errorf("agent %s response: %w", agent, err))
	}
	if err := validatePayload(agent, payload); err != nil {
		return nil, err
	}
	return &ports.AgentOutput{Files: payload.Files, Report: payload.Report}, nil
}

func findSubmitWork(calls []ports.ToolCall) (ports.ToolCall, bool) {
	for _, call := range calls {
		if call.Name == "submit_work" {
			return call, true
		}
	}
	return ports.ToolCall{}, false
}

func validatePayload(agent ports.AgentType, payload submitWorkPayload) error {
	if len(payload.Files) == 0 && payload.Report.Summary == "" {
		return shiperrors.NewValidationError(string(agent), "agent produced neither files nor a report", nil)
	}
	for _, f := range payload.Files {
		if f.Path == "" {
			return shiperrors.NewValidationError(string(agent), "generated file without a path", nil)
		}
	}
	return nil
}
