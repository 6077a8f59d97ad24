package model

import "time"

// RunStatus is an AgentRun's terminal or in-flight status.
type RunStatus string

const (
	RunPending   RunStatus = "pending"
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
	RunTimeout   RunStatus = "timeout"
)

// Step is one iteration of the agent's tool-call loop: the hook and action
// the LLM requested, its input, and the result (or error) produced by
// dispatching it through the lifecycle engine's Invoke.
type Step struct {
	Step       int            `json:"step"`
	Tool       string         `json:"tool"`
	Action     string         `json:"action"`
	Input      map[string]any `json:"input"`
	Output     map[string]any `json:"output,omitempty"`
	Error      string         `json:"error,omitempty"`
	DurationMs int64          `json:"durationMs"`
	At         time.Time      `json:"at"`
}

// AgentRun is one execution of an Agent's ReAct loop, persisted at creation
// and finalized exactly once when it reaches a terminal status.
type AgentRun struct {
	ID            string         `json:"id"`
	AgentID       string         `json:"agentId"`
	InputText     string         `json:"inputText"`
	InputData     map[string]any `json:"inputData,omitempty"`
	Output        map[string]any `json:"output,omitempty"`
	OutputText    string         `json:"outputText,omitempty"`
	Steps         []Step         `json:"steps"`
	TotalSteps    int            `json:"totalSteps"`
	TokensInput   int            `json:"tokensInput"`
	TokensOutput  int            `json:"tokensOutput"`
	DurationMs    *int64         `json:"durationMs,omitempty"`
	Status        RunStatus      `json:"status"`
	ErrorMessage  string         `json:"errorMessage,omitempty"`
	CreatedAt     time.Time      `json:"createdAt"`
	CompletedAt   *time.Time     `json:"completedAt,omitempty"`
}
