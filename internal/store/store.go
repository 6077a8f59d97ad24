// Package store implements the Persistence Port of spec.md §6: the only
// data abstraction the core depends on, covering hook instances, lifecycle
// events, update history, agents, and agent runs.
package store

import (
	"context"
	"errors"

	"github.com/forgehook/forgehostd/pkg/model"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
)

// AgentListOptions filters and paginates Agents.List.
type AgentListOptions struct {
	IncludePrivate bool
	Limit          int
	Offset         int
}

// Hooks is the persistence surface the lifecycle engine uses.
type Hooks interface {
	UpsertHook(ctx context.Context, instance *model.HookInstance) error
	GetHook(ctx context.Context, instanceID string) (*model.HookInstance, error)
	GetHookByHookID(ctx context.Context, hookID string) (*model.HookInstance, error)
	ListHooks(ctx context.Context) ([]*model.HookInstance, error)
	DeleteHook(ctx context.Context, instanceID string) error
	UsedPorts(ctx context.Context) ([]int, error)

	AppendEvent(ctx context.Context, event model.LifecycleEvent) error
	AppendUpdateHistory(ctx context.Context, h model.UpdateHistory) error
	UpdateHistory(ctx context.Context, instanceID string) ([]model.UpdateHistory, error)
}

// Agents is the persistence surface for agent definitions.
type Agents interface {
	UpsertAgent(ctx context.Context, agent *model.Agent) error
	GetAgent(ctx context.Context, idOrSlug string) (*model.Agent, error)
	ListAgents(ctx context.Context, opts AgentListOptions) ([]*model.Agent, error)
	SoftDeleteAgent(ctx context.Context, id string) error
}

// Runs is the persistence surface for agent run traces.
type Runs interface {
	CreateRun(ctx context.Context, run *model.AgentRun) error
	FinalizeRun(ctx context.Context, run *model.AgentRun) error
	GetRun(ctx context.Context, id string) (*model.AgentRun, error)
	RunsByAgent(ctx context.Context, agentID string, limit, offset int) ([]*model.AgentRun, error)
	RecentRuns(ctx context.Context, limit int) ([]*model.AgentRun, error)
}

// Store groups the full Persistence Port and any resources it owns.
type Store interface {
	Hooks
	Agents
	Runs
	Close() error
}
