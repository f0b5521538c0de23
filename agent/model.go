package agent

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/agentloom/agentloom/core"
	"github.com/agentloom/agentloom/model"
	"github.com/agentloom/agentloom/tool"
)

// ModelExecutor drives a model-backed leaf: it assembles a request from the
// session history, runs generation turns, executes any requested tool calls
// and feeds their responses into the next turn, until the model produces a
// final response or a control signal (transfer, escalate, pause) ends the
// run.
//
// Every event the executor produces goes through ictx.Yield, so it
// participates in the resume-gate protocol like any other producer.
type ModelExecutor struct {
	model        model.Model
	instructions string
	tools        []tool.Tool
	registry     map[string]tool.Tool
	stream       bool
}

// ModelExecutorOption customizes a ModelExecutor at construction time.
type ModelExecutorOption func(*ModelExecutor)

// WithInstructions sets the system instructions sent on every model turn.
func WithInstructions(instructions string) ModelExecutorOption {
	return func(e *ModelExecutor) { e.instructions = instructions }
}

// WithTools registers the tools the model may call.
func WithTools(tools ...tool.Tool) ModelExecutorOption {
	return func(e *ModelExecutor) { e.tools = append(e.tools, tools...) }
}

// WithStreaming requests partial (streaming) responses from the model.
func WithStreaming() ModelExecutorOption {
	return func(e *ModelExecutor) { e.stream = true }
}

// NewModelExecutor constructs a ModelExecutor around the given model.
func NewModelExecutor(m model.Model, opts ...ModelExecutorOption) *ModelExecutor {
	e := &ModelExecutor{model: m}
	for _, opt := range opts {
		opt(e)
	}
	e.registry = make(map[string]tool.Tool, len(e.tools))
	for _, t := range e.tools {
		e.registry[t.Name()] = t
	}
	return e
}

// Execute implements Executor.
func (e *ModelExecutor) Execute(ictx *core.InvocationContext) error {
	for {
		last, err := e.runTurn(ictx)
		if err != nil {
			return err
		}
		if last == nil {
			return nil
		}
		// A tool response feeds another model turn.
		if len(last.GetFunctionResponses()) > 0 {
			continue
		}
		if last.IsFinalResponse() {
			return nil
		}
	}
}

// runTurn performs one model turn including any tool executions and returns
// the last yielded event. A nil event with nil error signals that the run
// ended on a control signal (transfer, escalate, pending long-running call).
func (e *ModelExecutor) runTurn(ictx *core.InvocationContext) (*core.Event, error) {
	// Refresh the session snapshot so the request sees the latest
	// conversation, including tool responses committed last turn.
	if ictx.SessionService != nil {
		if err := ictx.RefreshSession(); err != nil {
			return nil, fmt.Errorf("model executor: refresh session: %w", err)
		}
	}

	if ictx.Limiter != nil {
		if err := ictx.Limiter.Increment(); err != nil {
			return nil, err
		}
	}

	req := model.Request{
		Instructions: e.instructions,
		Contents:     e.buildContents(ictx),
		Tools:        e.buildToolDefinitions(),
		Stream:       e.stream,
	}

	respCh, errCh := e.model.Generate(ictx.Context, req)

	var last *core.Event
	for {
		select {
		case resp, ok := <-respCh:
			if !ok {
				return last, nil
			}
			ev, stop, err := e.handleResponse(ictx, resp)
			if err != nil {
				return nil, err
			}
			if stop {
				return nil, nil
			}
			last = ev
		case err, ok := <-errCh:
			if !ok {
				errCh = nil
				continue
			}
			if err != nil {
				return nil, fmt.Errorf("model executor: generate: %w", err)
			}
		case <-ictx.Done():
			return nil, ictx.Err()
		}
	}
}

// handleResponse turns one model response into events: the assistant event
// itself, then one function response event per executed tool call. The stop
// flag reports that a control signal ended the run.
func (e *ModelExecutor) handleResponse(ictx *core.InvocationContext, resp model.Response) (*core.Event, bool, error) {
	ev := core.NewEvent(ictx.InvocationID, ictx.Agent.Name)
	content := resp.Content
	ev.Content = &content
	ev.Partial = resp.Partial
	if ictx.Cache != nil && !resp.Partial {
		ev.CacheMetadata = ictx.Cache.Stamp(ictx.SessionID)
	}

	fnCalls := ev.GetFunctionCalls()
	longRunning := e.longRunningIDs(fnCalls)
	if len(longRunning) > 0 {
		ev.LongRunningToolIDs = longRunning
		ev.Actions.PauseRequested = true
	}

	if err := ictx.Yield(ev); err != nil {
		return nil, false, err
	}
	if resp.Partial {
		return &ev, false, nil
	}

	last := &ev
	for _, fc := range fnCalls {
		if t, ok := e.registry[fc.Name]; ok && tool.IsLongRunning(t) {
			continue
		}
		respEv, err := e.executeCall(ictx, fc)
		if err != nil {
			return nil, false, err
		}
		last = respEv
		if respEv.Actions.TransferToAgent != nil || respEv.Actions.Escalate {
			return nil, true, nil
		}
	}

	// A pending long-running call parks the run; the response arrives as a
	// future user message and resolution routes it back here.
	if len(longRunning) > 0 {
		return nil, true, nil
	}
	return last, false, nil
}

// executeCall runs a single tool call and yields its response event.
func (e *ModelExecutor) executeCall(ictx *core.InvocationContext, fc core.FunctionCall) (*core.Event, error) {
	tc := tool.NewContext(ictx, fc.ID)

	start := time.Now()
	result, err := e.callTool(tc, fc)
	dur := time.Since(start)

	ictx.Logger.Info("agent.tool.executed",
		"agent", ictx.Agent.Name,
		"tool", fc.Name,
		"duration_ms", dur.Milliseconds(),
		"error", err != nil,
	)

	respEv := core.NewFunctionResponseEvent(ictx.InvocationID, ictx.Agent.Name, fc.ID, fc.Name, result, err)
	tc.ApplyActions(&respEv)

	if err := ictx.Yield(respEv); err != nil {
		return nil, err
	}
	return &respEv, nil
}

// callTool looks up and invokes the named tool. Tool failures are returned as
// values, not errors: they become the response payload the model can react
// to, rather than aborting the invocation.
func (e *ModelExecutor) callTool(tc *tool.Context, fc core.FunctionCall) (any, error) {
	impl, ok := e.registry[fc.Name]
	if !ok {
		return nil, fmt.Errorf("tool %s not found", fc.Name)
	}

	args := map[string]any{}
	if fc.Arguments != "" {
		if err := json.Unmarshal([]byte(fc.Arguments), &args); err != nil {
			return nil, fmt.Errorf("failed to unmarshal args: %w", err)
		}
	}
	return impl.Call(tc, args)
}

// longRunningIDs returns the ids of calls that target long-running tools.
func (e *ModelExecutor) longRunningIDs(calls []core.FunctionCall) []string {
	var ids []string
	for _, fc := range calls {
		if t, ok := e.registry[fc.Name]; ok && tool.IsLongRunning(t) {
			ids = append(ids, fc.ID)
		}
	}
	return ids
}

// buildContents converts the session's conversation history into model
// contents, falling back to the invocation's user content on a fresh session.
func (e *ModelExecutor) buildContents(ictx *core.InvocationContext) []core.Content {
	history := ictx.GetSessionHistory()
	contents := make([]core.Content, 0, len(history)+1)
	for _, ev := range history {
		if ev.Content == nil || ev.Partial {
			continue
		}
		contents = append(contents, *ev.Content)
	}
	if len(contents) == 0 && len(ictx.UserContent.Parts) > 0 {
		contents = append(contents, ictx.UserContent)
	}
	return contents
}

func (e *ModelExecutor) buildToolDefinitions() []model.ToolDefinition {
	if len(e.tools) == 0 {
		return nil
	}
	defs := make([]model.ToolDefinition, 0, len(e.tools))
	for _, t := range e.tools {
		defs = append(defs, model.ToolDefinition{
			Type: "function",
			Function: model.FunctionDefinition{
				Name:        t.Name(),
				Description: t.Description(),
				Parameters:  t.Parameters(),
			},
		})
	}
	return defs
}
