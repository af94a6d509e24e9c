package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/citysense-ai/citysense/core"
	"github.com/citysense-ai/citysense/internal/util"
	"github.com/citysense-ai/citysense/model"
	"github.com/citysense-ai/citysense/retry"
	"github.com/citysense-ai/citysense/tool"
)

// defaultMaxToolRounds bounds the generate -> tool -> generate cycle so a
// model that keeps requesting tools cannot loop forever.
const defaultMaxToolRounds = 8

// ModelAgentOptions configures a ModelAgent instance.
// Use functional options with NewModelAgent to override defaults.
type ModelAgentOptions struct {
	// Instruction is the system prompt, static or dynamically resolved.
	// Static text supports {{state "key"}} placeholders.
	Instruction Instruction
	// OutputKey, when set, stores the final response text in session state
	// under this key so later pipeline stages can read it.
	OutputKey string
	// MaxHistoryMessages caps how much conversation history is replayed to
	// the model on each turn.
	MaxHistoryMessages int
	// MaxToolRounds caps the number of model round trips within a single run.
	MaxToolRounds int
	// Retry wraps every model call. Defaults to the standard transient-error
	// policy when nil.
	Retry *retry.Executor
	// Tools are registered up front; more can be added via RegisterTool.
	Tools []tool.Tool
}

// ModelAgent drives a language model through a generate / tool-dispatch loop.
//
// Each run builds a request from the session's conversation history plus the
// incoming user content, invokes the model under the retry executor, emits
// the response as an event, and executes any requested tools before asking
// the model again. The final text response is optionally written to session
// state under OutputKey.
//
// ModelAgent embeds BaseAgent for identity and hierarchy management and holds
// no per-run state.
type ModelAgent struct {
	BaseAgent
	llm                model.Model
	instruction        Instruction
	tools              map[string]tool.Tool
	toolOrder          []string
	outputKey          string
	maxHistoryMessages int
	maxToolRounds      int
	retry              *retry.Executor
}

// NewModelAgent creates a model-backed agent with sensible defaults: a
// generic assistant instruction, a 20-message history window, and the
// standard retry policy for model calls.
func NewModelAgent(name string, llm model.Model, optFns ...func(o *ModelAgentOptions)) *ModelAgent {
	opts := ModelAgentOptions{
		Instruction:        NewInstructionFromText(fmt.Sprintf("You are %s, a helpful AI assistant.", name)),
		MaxHistoryMessages: 20,
		MaxToolRounds:      defaultMaxToolRounds,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Retry == nil {
		opts.Retry = retry.New(retry.DefaultPolicy())
	}

	a := &ModelAgent{
		BaseAgent:          NewBaseAgent(name),
		llm:                llm,
		instruction:        opts.Instruction,
		tools:              make(map[string]tool.Tool),
		outputKey:          opts.OutputKey,
		maxHistoryMessages: opts.MaxHistoryMessages,
		maxToolRounds:      opts.MaxToolRounds,
		retry:              opts.Retry,
	}

	a.RegisterTools(opts.Tools...)

	return a
}

// RegisterTool adds a tool to the agent's capability set. Registration order
// determines the order tool definitions are presented to the model.
func (a *ModelAgent) RegisterTool(t tool.Tool) {
	if _, exists := a.tools[t.Name()]; !exists {
		a.toolOrder = append(a.toolOrder, t.Name())
	}
	a.tools[t.Name()] = t
}

// RegisterTools adds multiple tools to the agent's capability set.
func (a *ModelAgent) RegisterTools(tools ...tool.Tool) {
	for _, t := range tools {
		a.RegisterTool(t)
	}
}

// HasTool checks if a tool is registered with the agent.
func (a *ModelAgent) HasTool(name string) bool {
	_, exists := a.tools[name]
	return exists
}

// OutputKey returns the session state key the final response is saved under.
func (a *ModelAgent) OutputKey() string { return a.outputKey }

// Run implements core.Agent. It loops model turns until the model produces a
// response with no pending tool calls or the round limit is reached.
func (a *ModelAgent) Run(runCtx *core.RunContext) error {
	runCtx.LogDebug("agent.run.start", "agent", a.Name(), "run", runCtx.RunID)

	transcript := a.seedTranscript(runCtx)

	for round := 0; round < a.maxToolRounds; round++ {
		req, err := a.buildRequest(runCtx, transcript)
		if err != nil {
			return fmt.Errorf("agent %s: %w", a.Name(), err)
		}

		resp, err := retry.Do(runCtx.Context, a.retry, "model.generate",
			func(ctx context.Context) (*model.Response, error) {
				return a.llm.Generate(ctx, req)
			})
		if err != nil {
			runCtx.LogError("agent.generate.error", "agent", a.Name(), "error", err.Error())

			ev := core.NewEvent(runCtx.RunID, a.Name())
			msg := err.Error()
			ev.ErrorMessage = &msg
			a.stampBranch(runCtx, &ev)
			if emitErr := runCtx.EmitEvent(ev); emitErr != nil {
				return emitErr
			}
			if waitErr := runCtx.WaitForResume(); waitErr != nil {
				return waitErr
			}

			return fmt.Errorf("model generation failed for agent %s: %w", a.Name(), err)
		}

		content := resp.Content
		ev := core.NewEvent(runCtx.RunID, a.Name())
		ev.Content = &content
		a.stampBranch(runCtx, &ev)

		fnCalls := ev.GetFunctionCalls()
		if len(fnCalls) == 0 {
			complete := true
			ev.TurnComplete = &complete
			if a.outputKey != "" {
				if text := content.Text(); text != "" {
					ev.Actions.StateDelta = map[string]any{a.outputKey: text}
				}
			}
		}

		if err := runCtx.EmitEvent(ev); err != nil {
			return err
		}
		if err := runCtx.WaitForResume(); err != nil {
			return err
		}
		transcript = append(transcript, content)

		if len(fnCalls) == 0 {
			runCtx.LogDebug("agent.run.complete", "agent", a.Name(), "rounds", round+1)
			return nil
		}

		for _, fc := range fnCalls {
			toolCtx := core.NewToolContext(runCtx, fc.ID)

			start := time.Now()
			result, callErr := a.executeTool(toolCtx, fc)
			runCtx.LogInfo("agent.tool.executed",
				"agent", a.Name(),
				"tool", fc.Name,
				"duration_ms", time.Since(start).Milliseconds(),
				"error", callErr != nil,
			)

			// Tool failures are surfaced to the model as an error response
			// rather than aborting the run; the model decides how to recover.
			respEv := core.NewFunctionResponseEvent(runCtx.RunID, a.Name(), fc.ID, fc.Name, result, callErr)
			toolCtx.InternalApplyActions(&respEv)
			a.stampBranch(runCtx, &respEv)

			if err := runCtx.EmitEvent(respEv); err != nil {
				return err
			}
			if err := runCtx.WaitForResume(); err != nil {
				return err
			}
			transcript = append(transcript, *respEv.Content)
		}
	}

	return fmt.Errorf("agent %s exceeded %d tool rounds without a final response", a.Name(), a.maxToolRounds)
}

// seedTranscript builds the initial conversation from session history plus
// the incoming user content (skipped if history already ends with it, as is
// the case when the coordinator persisted the user message before the run).
func (a *ModelAgent) seedTranscript(runCtx *core.RunContext) []core.Content {
	var transcript []core.Content

	if runCtx.Session != nil {
		events := runCtx.Session.GetConversationHistory()
		if a.maxHistoryMessages > 0 && len(events) > a.maxHistoryMessages {
			events = events[len(events)-a.maxHistoryMessages:]
		}
		for _, ev := range events {
			if ev.Content != nil && len(ev.Content.Parts) > 0 {
				transcript = append(transcript, *ev.Content)
			}
		}
	}

	if len(runCtx.UserContent.Parts) > 0 {
		if n := len(transcript); n == 0 ||
			transcript[n-1].Role != "user" ||
			transcript[n-1].Text() != runCtx.UserContent.Text() {
			transcript = append(transcript, runCtx.UserContent)
		}
	}

	return transcript
}

// buildRequest resolves the instruction, substitutes session state into any
// template placeholders, and assembles the request with tool definitions.
func (a *ModelAgent) buildRequest(runCtx *core.RunContext, transcript []core.Content) (model.Request, error) {
	instructions, err := a.instruction.Resolve(runCtx)
	if err != nil {
		return model.Request{}, fmt.Errorf("failed to resolve instruction: %w", err)
	}

	rendered, err := util.RenderTemplate(instructions, a.stateView(runCtx))
	if err != nil {
		return model.Request{}, fmt.Errorf("failed to render instruction template: %w", err)
	}

	req := model.Request{
		Instructions: rendered,
		Contents:     transcript,
	}

	for _, name := range a.toolOrder {
		t := a.tools[name]
		req.Tools = append(req.Tools, model.ToolDefinition{
			Type: "function",
			Function: model.FunctionDefinition{
				Name:        t.Name(),
				Description: t.Description(),
				Parameters:  t.Parameters(),
			},
		})
	}

	return req, nil
}

// stateView merges persisted session state with the staged delta so template
// placeholders see values written earlier in the same turn.
func (a *ModelAgent) stateView(runCtx *core.RunContext) map[string]any {
	view := map[string]any{}
	if runCtx.Session != nil {
		for k, v := range runCtx.Session.Clone().State {
			view[k] = v
		}
	}
	for k, v := range runCtx.StateDelta {
		view[k] = v
	}
	return view
}

func (a *ModelAgent) stampBranch(runCtx *core.RunContext, ev *core.Event) {
	if runCtx.Branch != "" {
		branch := runCtx.Branch
		ev.Branch = &branch
	}
}

// executeTool deserializes JSON arguments and invokes the named tool.
func (a *ModelAgent) executeTool(toolCtx *core.ToolContext, fc core.FunctionCall) (any, error) {
	t, exists := a.tools[fc.Name]
	if !exists {
		return nil, fmt.Errorf("tool %s not found", fc.Name)
	}

	args := make(map[string]any)
	if fc.Arguments != "" {
		if err := json.Unmarshal([]byte(fc.Arguments), &args); err != nil {
			return nil, fmt.Errorf("failed to unmarshal args for tool %s: %w", fc.Name, err)
		}
	}

	return t.Call(toolCtx, args)
}
