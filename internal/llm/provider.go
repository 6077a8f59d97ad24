// Package llm implements the LLM Capability (H) of spec.md §4.5: a single
// logical Chat operation absorbing the dialect differences between several
// provider adapters (Anthropic, OpenAI-compatible, Azure OpenAI,
// Ollama/LM Studio) behind one shape the Agent Orchestrator consumes.
//
// Each adapter is a Provider that streams CompletionChunks; Chat drains a
// Provider's stream into the single ChatResponse shape spec.md §4.5
// describes, so the core never sees a provider-specific wire type.
package llm

import (
	"context"
	"encoding/json"
)

// Provider is implemented by each LLM backend. Providers stream
// CompletionChunks; Chat (capability.go) adapts that into the core's
// synchronous ChatResponse shape.
type Provider interface {
	Complete(ctx context.Context, req *CompletionRequest) (<-chan *CompletionChunk, error)
	Name() string
	Models() []Model
	SupportsTools() bool
}

// CompletionRequest is the provider-facing request shape, translated from a
// ChatRequest by capability.go before reaching a specific adapter.
type CompletionRequest struct {
	Model                string              `json:"model"`
	System               string              `json:"system,omitempty"`
	Messages             []CompletionMessage `json:"messages"`
	Tools                []Tool              `json:"tools,omitempty"`
	MaxTokens            int                 `json:"max_tokens,omitempty"`
	EnableThinking       bool                `json:"enable_thinking,omitempty"`
	ThinkingBudgetTokens int                 `json:"thinking_budget_tokens,omitempty"`
}

// CompletionMessage is one turn in a provider-facing conversation.
type CompletionMessage struct {
	Role        string       `json:"role"`
	Content     string       `json:"content,omitempty"`
	ToolCalls   []ToolCall   `json:"tool_calls,omitempty"`
	ToolResults []ToolResult `json:"tool_results,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// CompletionChunk is one increment of a streamed provider response.
type CompletionChunk struct {
	Text          string    `json:"text,omitempty"`
	ToolCall      *ToolCall `json:"tool_call,omitempty"`
	Done          bool      `json:"done,omitempty"`
	Error         error     `json:"-"`
	Thinking      string    `json:"thinking,omitempty"`
	ThinkingStart bool      `json:"thinking_start,omitempty"`
	ThinkingEnd   bool      `json:"thinking_end,omitempty"`
	InputTokens   int       `json:"input_tokens,omitempty"`
	OutputTokens  int       `json:"output_tokens,omitempty"`
}

// Model describes one model a provider exposes.
type Model struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	ContextSize    int    `json:"context_size"`
	SupportsVision bool   `json:"supports_vision"`
}

// Tool is the provider-facing projection of one callable function: a name,
// a description, and a JSON-Schema parameters object. The Tool Schema
// Builder (internal/toolschema) produces these from running hook endpoints.
type Tool interface {
	Name() string
	Description() string
	Schema() json.RawMessage
}
