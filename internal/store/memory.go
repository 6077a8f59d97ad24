package store

import (
	"context"
	"sort"
	"sync"

	"github.com/forgehook/forgehostd/pkg/model"
)

// Memory is an in-memory Store, used by tests and by `forgehostd serve
// --store memory`.
type Memory struct {
	mu sync.RWMutex

	hooks   map[string]*model.HookInstance // by instanceId
	byHook  map[string]string              // hookId -> instanceId
	events  []model.LifecycleEvent
	history map[string][]model.UpdateHistory // by instanceId

	agents map[string]*model.Agent // by id
	bySlug map[string]string       // slug -> id

	runs map[string]*model.AgentRun // by id
}

// NewMemory constructs an empty in-memory Store.
func NewMemory() *Memory {
	return &Memory{
		hooks:   make(map[string]*model.HookInstance),
		byHook:  make(map[string]string),
		history: make(map[string][]model.UpdateHistory),
		agents:  make(map[string]*model.Agent),
		bySlug:  make(map[string]string),
		runs:    make(map[string]*model.AgentRun),
	}
}

func (m *Memory) Close() error { return nil }

func (m *Memory) UpsertHook(ctx context.Context, instance *model.HookInstance) error {
	if instance == nil || instance.InstanceID == "" {
		return ErrNotFound
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks[instance.InstanceID] = instance
	m.byHook[instance.HookID] = instance.InstanceID
	return nil
}

func (m *Memory) GetHook(ctx context.Context, instanceID string) (*model.HookInstance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	i, ok := m.hooks[instanceID]
	if !ok {
		return nil, ErrNotFound
	}
	return i, nil
}

func (m *Memory) GetHookByHookID(ctx context.Context, hookID string) (*model.HookInstance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byHook[hookID]
	if !ok {
		return nil, ErrNotFound
	}
	i, ok := m.hooks[id]
	if !ok {
		return nil, ErrNotFound
	}
	return i, nil
}

func (m *Memory) ListHooks(ctx context.Context) ([]*model.HookInstance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*model.HookInstance, 0, len(m.hooks))
	for _, i := range m.hooks {
		out = append(out, i)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].InstanceID < out[b].InstanceID })
	return out, nil
}

func (m *Memory) DeleteHook(ctx context.Context, instanceID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	i, ok := m.hooks[instanceID]
	if !ok {
		return ErrNotFound
	}
	delete(m.hooks, instanceID)
	delete(m.byHook, i.HookID)
	return nil
}

func (m *Memory) UsedPorts(ctx context.Context) ([]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ports := make([]int, 0)
	for _, i := range m.hooks {
		if i.HostPort != 0 {
			ports = append(ports, i.HostPort)
		}
	}
	return ports, nil
}

func (m *Memory) AppendEvent(ctx context.Context, event model.LifecycleEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}

func (m *Memory) AppendUpdateHistory(ctx context.Context, h model.UpdateHistory) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history[h.InstanceID] = append(m.history[h.InstanceID], h)
	return nil
}

func (m *Memory) UpdateHistory(ctx context.Context, instanceID string) ([]model.UpdateHistory, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rows := m.history[instanceID]
	out := make([]model.UpdateHistory, len(rows))
	copy(out, rows)
	return out, nil
}

func (m *Memory) UpsertAgent(ctx context.Context, agent *model.Agent) error {
	if agent == nil || agent.ID == "" {
		return ErrNotFound
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.agents[agent.ID] = agent
	if agent.Slug != "" {
		m.bySlug[agent.Slug] = agent.ID
	}
	return nil
}

func (m *Memory) GetAgent(ctx context.Context, idOrSlug string) (*model.Agent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if a, ok := m.agents[idOrSlug]; ok {
		return a, nil
	}
	if id, ok := m.bySlug[idOrSlug]; ok {
		if a, ok := m.agents[id]; ok {
			return a, nil
		}
	}
	return nil, ErrNotFound
}

func (m *Memory) ListAgents(ctx context.Context, opts AgentListOptions) ([]*model.Agent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	all := make([]*model.Agent, 0, len(m.agents))
	for _, a := range m.agents {
		if a.DeletedAt != nil {
			continue
		}
		if !opts.IncludePrivate && !a.IsPublic {
			continue
		}
		all = append(all, a)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	return paginateAgents(all, opts.Limit, opts.Offset), nil
}

func paginateAgents(agents []*model.Agent, limit, offset int) []*model.Agent {
	if offset < 0 {
		offset = 0
	}
	if offset > len(agents) {
		offset = len(agents)
	}
	end := len(agents)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return agents[offset:end]
}

func (m *Memory) SoftDeleteAgent(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.agents[id]
	if !ok {
		return ErrNotFound
	}
	now := nowFunc()
	a.DeletedAt = &now
	return nil
}

func (m *Memory) CreateRun(ctx context.Context, run *model.AgentRun) error {
	if run == nil || run.ID == "" {
		return ErrNotFound
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.runs[run.ID]; exists {
		return ErrAlreadyExists
	}
	m.runs[run.ID] = run
	return nil
}

func (m *Memory) FinalizeRun(ctx context.Context, run *model.AgentRun) error {
	if run == nil || run.ID == "" {
		return ErrNotFound
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.runs[run.ID]; !exists {
		return ErrNotFound
	}
	m.runs[run.ID] = run
	return nil
}

func (m *Memory) GetRun(ctx context.Context, id string) (*model.AgentRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.runs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return r, nil
}

func (m *Memory) RunsByAgent(ctx context.Context, agentID string, limit, offset int) ([]*model.AgentRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	all := make([]*model.AgentRun, 0)
	for _, r := range m.runs {
		if r.AgentID == agentID {
			all = append(all, r)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	return paginateRuns(all, limit, offset), nil
}

func (m *Memory) RecentRuns(ctx context.Context, limit int) ([]*model.AgentRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	all := make([]*model.AgentRun, 0, len(m.runs))
	for _, r := range m.runs {
		all = append(all, r)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	return paginateRuns(all, limit, 0), nil
}

func paginateRuns(runs []*model.AgentRun, limit, offset int) []*model.AgentRun {
	if offset < 0 {
		offset = 0
	}
	if offset > len(runs) {
		offset = len(runs)
	}
	end := len(runs)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return runs[offset:end]
}
