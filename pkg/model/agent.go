package model

import "time"

// AgentConfig bounds one agent's execution: step/time/token budgets and the
// retry policy for its tool calls.
type AgentConfig struct {
	MaxSteps      int     `json:"maxSteps"`
	MaxTokens     int     `json:"maxTokens"`
	Temperature   float64 `json:"temperature"`
	TimeoutMs     int64   `json:"timeoutMs"`
	RetryOnError  bool    `json:"retryOnError"`
	MaxRetries    int     `json:"maxRetries"`
	StopSequences []string `json:"stopSequences,omitempty"`
}

// Merge overlays non-zero fields of override on top of a, returning the
// effective run config (spec.md §4.6 step 1: runConfig = agent.config ⊕
// configOverride).
func (a AgentConfig) Merge(override *AgentConfig) AgentConfig {
	if override == nil {
		return a
	}
	out := a
	if override.MaxSteps != 0 {
		out.MaxSteps = override.MaxSteps
	}
	if override.MaxTokens != 0 {
		out.MaxTokens = override.MaxTokens
	}
	if override.Temperature != 0 {
		out.Temperature = override.Temperature
	}
	if override.TimeoutMs != 0 {
		out.TimeoutMs = override.TimeoutMs
	}
	if override.MaxRetries != 0 {
		out.MaxRetries = override.MaxRetries
	}
	if len(override.StopSequences) > 0 {
		out.StopSequences = override.StopSequences
	}
	out.RetryOnError = override.RetryOnError || a.RetryOnError
	return out
}

// Agent is a configured, named combination of an LLM provider/model, a
// system prompt, and the set of hooks it is permitted to call as tools.
type Agent struct {
	ID             string      `json:"id"`
	Slug           string      `json:"slug"`
	Name           string      `json:"name"`
	Description    string      `json:"description,omitempty"`
	Provider       string      `json:"provider"`
	Model          string      `json:"model"`
	SystemPrompt   string      `json:"systemPrompt"`
	ToolHookIDs    []string    `json:"toolHookIds"`
	Config         AgentConfig `json:"config"`
	IsPublic       bool        `json:"isPublic"`
	CreatedBy      string      `json:"createdBy,omitempty"`
	CreatedAt      time.Time   `json:"createdAt"`
	UpdatedAt      time.Time   `json:"updatedAt"`
	DeletedAt      *time.Time  `json:"deletedAt,omitempty"`
}
