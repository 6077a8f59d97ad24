// Package orchestrator implements the Agent Orchestrator (I): a
// ReAct-style loop that turns a set of running hooks into an LLM
// function-call schema (internal/toolschema), calls the LLM Capability
// (internal/llm) for the next assistant turn, dispatches any requested
// tool calls through the Hook Lifecycle Engine's Invoke, and feeds results
// back — bounded by the agent's step/time/token/retry budgets (spec.md
// §4.6). Grounded on the teacher's internal/agent/loop.go state-machine
// loop, simplified from its async/parallel tool executor down to the
// strictly sequential, in-LLM-returned-order dispatch spec.md §9 fixes
// (Open Question Decision 2).
package orchestrator

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/forgehook/forgehostd/internal/forgehosterr"
	"github.com/forgehook/forgehostd/internal/llm"
	"github.com/forgehook/forgehostd/internal/observability"
	"github.com/forgehook/forgehostd/internal/runtime"
	"github.com/forgehook/forgehostd/internal/store"
	"github.com/forgehook/forgehostd/internal/toolschema"
	"github.com/forgehook/forgehostd/pkg/model"
)

// maxResponseTextBytes bounds total accumulated output/tool-result text per
// run, mirroring the teacher's internal/agent/loop.go MaxResponseTextSize
// guard (SPEC_FULL.md C.4) — pathological tool-result echoing is truncated
// rather than left unbounded.
const maxResponseTextBytes = 1 << 20 // 1 MiB

// Invoker is the narrow slice of the Hook Lifecycle Engine (E) the
// orchestrator dispatches tool calls through.
type Invoker interface {
	Invoke(ctx context.Context, instanceID, endpointKey string, body []byte, retries int) (runtime.InvokeResult, error)
}

// Orchestrator runs Agent ReAct loops against an Invoker and an LLM
// Capability, persisting every run through the Persistence Port.
type Orchestrator struct {
	chat    *llm.Capability
	engine  Invoker
	lookup  toolschema.InstanceLookup
	runs    store.Runs
	metrics *observability.Metrics
	logger  *observability.Logger

	// now is overridden in tests to make timeout bounds deterministic.
	now func() time.Time
}

// New constructs an Orchestrator. lookup resolves a hookId to its current
// HookInstance, the same lookup the Tool Schema Builder uses, so tool
// names and dispatch targets stay in lockstep.
func New(chat *llm.Capability, engine Invoker, lookup toolschema.InstanceLookup, runs store.Runs, metrics *observability.Metrics, logger *observability.Logger) *Orchestrator {
	return &Orchestrator{
		chat:    chat,
		engine:  engine,
		lookup:  lookup,
		runs:    runs,
		metrics: metrics,
		logger:  logger,
		now:     time.Now,
	}
}

// RunRequest carries Run's inputs, per spec.md §4.6.
type RunRequest struct {
	Input          string
	Data           map[string]any
	ConfigOverride *model.AgentConfig
}

// Run executes one full agent loop to completion (or timeout/failure),
// persisting the AgentRun at creation and again exactly once at its
// terminal status.
func (o *Orchestrator) Run(ctx context.Context, agent *model.Agent, req RunRequest) (*model.AgentRun, error) {
	runConfig := agent.Config.Merge(req.ConfigOverride)

	run := &model.AgentRun{
		ID:        uuid.New().String(),
		AgentID:   agent.ID,
		InputText: req.Input,
		InputData: req.Data,
		Status:    model.RunRunning,
		CreatedAt: o.now(),
	}
	if err := o.runs.CreateRun(ctx, run); err != nil {
		return nil, forgehosterr.Wrap(forgehosterr.CodeInternal, err)
	}

	allowed := make(map[string]bool, len(agent.ToolHookIDs))
	for _, id := range agent.ToolHookIDs {
		allowed[id] = true
	}
	tools := toolschema.Build(agent.ToolHookIDs, o.lookup)

	messages := []model.ChatMessage{
		{Role: model.RoleSystem, Content: agent.SystemPrompt},
		{Role: model.RoleUser, Content: userContent(req.Input, req.Data)},
	}

	start := o.now()
	deadline := time.Duration(runConfig.TimeoutMs) * time.Millisecond
	retries := 0
	if runConfig.RetryOnError {
		retries = runConfig.MaxRetries
	}

	var responseBytes int
	stepCount := 0

	for stepCount < runConfig.MaxSteps {
		if deadline > 0 && o.now().Sub(start) > deadline {
			return o.finish(ctx, run, model.RunTimeout, "", start)
		}

		resp := o.chat.Chat(ctx, model.ChatRequest{
			Provider:      agent.Provider,
			Model:         agent.Model,
			Messages:      messages,
			Tools:         tools,
			MaxTokens:     runConfig.MaxTokens,
			Temperature:   runConfig.Temperature,
			StopSequences: runConfig.StopSequences,
		})
		if resp.Usage != nil {
			run.TokensInput += resp.Usage.InputTokens
			run.TokensOutput += resp.Usage.OutputTokens
		}
		if resp.FinishReason == model.FinishError {
			return o.finish(ctx, run, model.RunFailed, resp.Error, start)
		}

		if len(resp.ToolCalls) == 0 {
			outputText := resp.Content
			run.OutputText = outputText
			run.Output = parseFinalOutput(outputText)
			return o.finish(ctx, run, model.RunCompleted, "", start)
		}

		messages = append(messages, model.ChatMessage{
			Role:      model.RoleAssistant,
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})

		// Tool calls within one assistant turn are dispatched strictly in
		// the LLM's returned order — never reordered, never parallelized
		// (spec.md §5, §9 Open Question Decision 2).
		for _, tc := range resp.ToolCalls {
			if stepCount >= runConfig.MaxSteps {
				break
			}
			stepCount++

			hookID, action, ok := toolschema.DecodeToolName(tc.Function.Name)
			var result model.ToolResult
			var step model.Step
			step.Step = stepCount
			step.At = o.now()

			if !ok || !allowed[hookID] {
				step.Tool = tc.Function.Name
				step.Error = "unknown tool"
				result = model.ToolResult{ToolCallID: tc.ID, Content: `{"error":"unknown tool"}`, IsError: true}
			} else {
				step.Tool = hookID
				step.Action = action
				args := parseArguments(tc.Function.Arguments)
				step.Input = args

				instance, instOK := o.lookup(hookID)
				callStart := o.now()
				if !instOK {
					step.Error = "unknown tool"
					result = model.ToolResult{ToolCallID: tc.ID, Content: `{"error":"unknown tool"}`, IsError: true}
				} else {
					body, _ := json.Marshal(args)
					invokeResult, err := o.engine.Invoke(ctx, instance.InstanceID, action, body, retries)
					step.DurationMs = o.now().Sub(callStart).Milliseconds()
					if err != nil {
						step.Error = err.Error()
						content, _ := json.Marshal(map[string]string{"error": err.Error()})
						result = model.ToolResult{ToolCallID: tc.ID, Content: string(content), IsError: true}
					} else {
						out := map[string]any{}
						if len(invokeResult.Body) > 0 {
							_ = json.Unmarshal(invokeResult.Body, &out)
						}
						step.Output = out
						result = model.ToolResult{ToolCallID: tc.ID, Content: string(invokeResult.Body)}
					}
				}
			}

			run.Steps = append(run.Steps, step)
			run.TotalSteps = len(run.Steps)

			responseBytes += len(result.Content)
			if responseBytes > maxResponseTextBytes {
				result.Content = result.Content[:0]
			}
			messages = append(messages, model.ChatMessage{
				Role:       model.RoleTool,
				Content:    result.Content,
				ToolCallID: result.ToolCallID,
			})
		}
	}

	// Step budget exhausted without a final non-tool-call utterance: the
	// last assistant turn still asked for tools. Spec.md does not name a
	// distinct terminal status for this case beyond the three it defines;
	// treat it as a normal completion with whatever text the model last
	// produced (there may be none).
	return o.finish(ctx, run, model.RunCompleted, "", start)
}

func (o *Orchestrator) finish(ctx context.Context, run *model.AgentRun, status model.RunStatus, errMsg string, start time.Time) (*model.AgentRun, error) {
	run.Status = status
	run.ErrorMessage = errMsg
	completed := o.now()
	run.CompletedAt = &completed
	duration := completed.Sub(start).Milliseconds()
	run.DurationMs = &duration

	if err := o.runs.FinalizeRun(ctx, run); err != nil {
		o.logger.Error(ctx, "finalize agent run failed", "error", err, "run_id", run.ID)
	}
	o.metrics.RecordAgentRun(string(status), float64(duration)/1000.0, run.TotalSteps)
	return run, nil
}

// userContent composes the initial user message: the literal input text,
// plus the JSON encoding of Data appended when present (spec.md §4.6 step 4).
func userContent(input string, data map[string]any) string {
	if len(data) == 0 {
		return input
	}
	encoded, err := json.Marshal(data)
	if err != nil {
		return input
	}
	return input + "\n" + string(encoded)
}

// parseArguments parses a tool call's raw JSON-encoded arguments string,
// falling back to an empty object on failure (spec.md §4.6 step 5).
func parseArguments(raw string) map[string]any {
	args := map[string]any{}
	if raw == "" {
		return args
	}
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return map[string]any{}
	}
	return args
}

// parseFinalOutput implements the source's literal "starts with { or ["
// JSON-content sniffing heuristic (spec.md §9 Open Question, preserved
// verbatim): content that looks like JSON is parsed as the structured
// output; anything else is wrapped as {result: outputText}.
func parseFinalOutput(content string) map[string]any {
	trimmed := strings.TrimSpace(content)
	if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
		var parsed any
		if err := json.Unmarshal([]byte(trimmed), &parsed); err == nil {
			if obj, ok := parsed.(map[string]any); ok {
				return obj
			}
			return map[string]any{"result": parsed}
		}
	}
	return map[string]any{"result": content}
}
