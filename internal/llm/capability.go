package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/forgehook/forgehostd/pkg/model"
)

// modelAliases maps short, user-friendly model names to the concrete
// provider model id, applied inside Chat before a request reaches its
// adapter (spec.md §4.5).
var modelAliases = map[string]string{
	"claude-sonnet": "claude-sonnet-4-20250514",
	"claude-opus":   "claude-opus-4-20250514",
	"claude-haiku":  "claude-haiku-4-20250514",
	"gpt-4o":        "gpt-4o",
	"gpt-4o-mini":   "gpt-4o-mini",
}

func resolveModelAlias(name string) string {
	if alias, ok := modelAliases[name]; ok {
		return alias
	}
	return name
}

// Capability dispatches ChatRequests to the registered Provider for
// req.Provider, translating to and from each adapter's wire dialect. It is
// the sole thing the Agent Orchestrator (internal/orchestrator) depends on
// for LLM access.
type Capability struct {
	providers map[string]Provider
}

// NewCapability constructs a Capability with no providers registered; call
// Register for each configured provider.
func NewCapability() *Capability {
	return &Capability{providers: make(map[string]Provider)}
}

// Register adds (or replaces) the Provider answering for name.
func (c *Capability) Register(name string, p Provider) {
	c.providers[strings.ToLower(name)] = p
}

// Providers lists the registered provider names, sorted.
func (c *Capability) Providers() []string {
	names := make([]string, 0, len(c.providers))
	for name := range c.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Chat implements spec.md §4.5's single logical operation. It never returns
// a Go error: unknown provider, missing credential, transport failure, or a
// response-parse error all surface as FinishReason "error" with Error
// populated, so the Agent Orchestrator has one failure path to handle.
func (c *Capability) Chat(ctx context.Context, req model.ChatRequest) model.ChatResponse {
	provider, ok := c.providers[strings.ToLower(req.Provider)]
	if !ok {
		return model.ChatResponse{FinishReason: model.FinishError, Error: fmt.Sprintf("unknown provider %q", req.Provider)}
	}

	tools, err := ToolsFromModel(req.Tools)
	if err != nil {
		return model.ChatResponse{FinishReason: model.FinishError, Error: fmt.Sprintf("convert tools: %v", err)}
	}

	creq := &CompletionRequest{
		Model:     resolveModelAlias(req.Model),
		MaxTokens: req.MaxTokens,
		Tools:     tools,
	}
	for _, m := range req.Messages {
		if m.Role == model.RoleSystem {
			creq.System = joinNonEmpty(creq.System, m.Content)
			continue
		}
		cm := CompletionMessage{Role: string(m.Role), Content: m.Content}
		for _, a := range m.Attachments {
			cm.Attachments = append(cm.Attachments, Attachment{
				ID: a.Type, Type: a.Type, MimeType: a.MimeType, URL: a.URL, Data: a.Data,
			})
		}
		if m.Role == model.RoleAssistant {
			for _, tc := range m.ToolCalls {
				cm.ToolCalls = append(cm.ToolCalls, ToolCall{
					ID:    tc.ID,
					Name:  tc.Function.Name,
					Input: json.RawMessage(tc.Function.Arguments),
				})
			}
		}
		if m.Role == model.RoleTool {
			cm.ToolResults = append(cm.ToolResults, ToolResult{ToolCallID: m.ToolCallID, Content: m.Content})
		}
		creq.Messages = append(creq.Messages, cm)
	}

	chunks, err := provider.Complete(ctx, creq)
	if err != nil {
		return model.ChatResponse{FinishReason: model.FinishError, Error: err.Error()}
	}

	var text strings.Builder
	var toolCalls []model.ToolCall
	var usage model.Usage
	for chunk := range chunks {
		if chunk.Error != nil {
			return model.ChatResponse{FinishReason: model.FinishError, Error: chunk.Error.Error()}
		}
		if chunk.Text != "" {
			text.WriteString(chunk.Text)
		}
		if chunk.ToolCall != nil {
			toolCalls = append(toolCalls, model.ToolCall{
				ID: chunk.ToolCall.ID,
				Function: model.ToolCallFunction{
					Name:      chunk.ToolCall.Name,
					Arguments: string(chunk.ToolCall.Input),
				},
			})
		}
		if chunk.Done {
			usage.InputTokens = chunk.InputTokens
			usage.OutputTokens = chunk.OutputTokens
		}
	}

	resp := model.ChatResponse{Content: text.String(), Usage: &usage}
	if len(toolCalls) > 0 {
		resp.ToolCalls = toolCalls
		resp.FinishReason = model.FinishToolCalls
	} else {
		resp.FinishReason = model.FinishStop
	}
	return resp
}

func joinNonEmpty(a, b string) string {
	if a == "" {
		return b
	}
	if b == "" {
		return a
	}
	return a + "\n" + b
}
