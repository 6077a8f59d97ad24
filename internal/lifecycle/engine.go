// Package lifecycle implements the Hook Lifecycle Engine (E): the state
// machine of spec.md §4.1, dispatching through a `runtime -> Adapter` map
// (internal/runtime) so it never branches on runtime type itself, backed
// by the Port Allocator (internal/ports), the Persistence Port
// (internal/store), and the Progress Bus (internal/progress).
package lifecycle

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/forgehook/forgehostd/internal/forgehosterr"
	"github.com/forgehook/forgehostd/internal/manifest"
	"github.com/forgehook/forgehostd/internal/observability"
	"github.com/forgehook/forgehostd/internal/ports"
	"github.com/forgehook/forgehostd/internal/progress"
	"github.com/forgehook/forgehostd/internal/runtime"
	"github.com/forgehook/forgehostd/internal/store"
	"github.com/forgehook/forgehostd/pkg/model"
)

// Engine owns every HookInstance's in-memory state and drives its
// transitions. The in-memory map is the live view mutating operations
// read/write under an exclusive lock (spec.md §5); every mutation is
// written through to the Persistence Port before the lock releases.
type Engine struct {
	store    store.Hooks
	ports    *ports.Allocator
	adapters map[model.Runtime]runtime.Adapter
	bus      *progress.Bus
	metrics  *observability.Metrics
	logger   *observability.Logger

	mu         sync.RWMutex
	byInstance map[string]*model.HookInstance
	byHookID   map[string]string // hookId -> instanceId

	healthMu    sync.Mutex
	healthStops map[string]context.CancelFunc
}

// New constructs an Engine over the given Persistence Port, port
// allocator, and runtime adapters. Call Reconcile once at boot before
// serving traffic.
func New(hooks store.Hooks, allocator *ports.Allocator, adapters map[model.Runtime]runtime.Adapter, bus *progress.Bus, metrics *observability.Metrics, logger *observability.Logger) *Engine {
	return &Engine{
		store:       hooks,
		ports:       allocator,
		adapters:    adapters,
		bus:         bus,
		metrics:     metrics,
		logger:      logger,
		byInstance:  make(map[string]*model.HookInstance),
		byHookID:    make(map[string]string),
		healthStops: make(map[string]context.CancelFunc),
	}
}

func (e *Engine) adapterFor(rt model.Runtime) (runtime.Adapter, error) {
	a, ok := e.adapters[rt]
	if !ok {
		return nil, forgehosterr.Newf(forgehosterr.CodeValidation, "no adapter registered for runtime %q", rt)
	}
	return a, nil
}

func (e *Engine) emit(installID string, evt model.LifecycleEvent) {
	if err := e.store.AppendEvent(context.Background(), evt); err != nil {
		e.logger.Error(context.Background(), "append lifecycle event failed", "error", err, "instance_id", evt.InstanceID)
	}
	if installID != "" && e.bus != nil {
		e.bus.Publish(installID, evt)
	}
}

func (e *Engine) persist(ctx context.Context, instance *model.HookInstance) error {
	if err := e.store.UpsertHook(ctx, instance); err != nil {
		return forgehosterr.Wrap(forgehosterr.CodeInternal, err)
	}
	e.mu.Lock()
	e.byInstance[instance.InstanceID] = instance
	e.byHookID[instance.HookID] = instance.InstanceID
	e.mu.Unlock()
	return nil
}

// Get returns the in-memory instance for instanceID, if present.
func (e *Engine) Get(instanceID string) (*model.HookInstance, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	inst, ok := e.byInstance[instanceID]
	return inst, ok
}

// GetByHookID implements toolschema.InstanceLookup.
func (e *Engine) GetByHookID(hookID string) (*model.HookInstance, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	instanceID, ok := e.byHookID[hookID]
	if !ok {
		return nil, false
	}
	return e.byInstance[instanceID], true
}

// List returns a snapshot of every known instance.
func (e *Engine) List() []*model.HookInstance {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]*model.HookInstance, 0, len(e.byInstance))
	for _, inst := range e.byInstance {
		out = append(out, inst)
	}
	return out
}

// InstallRequest carries Install's inputs, per spec.md §4.1.
type InstallRequest struct {
	Manifest    model.Manifest
	Config      map[string]any
	Environment map[string]string
	AutoStart   bool
	InstallID   string
}

// Install brings up a new HookInstance for req.Manifest. Preconditions: no
// existing instance shares the manifest's hookId.
func (e *Engine) Install(ctx context.Context, req InstallRequest) (*model.HookInstance, error) {
	if err := manifest.Validate(req.Manifest); err != nil {
		return nil, err
	}

	e.mu.RLock()
	_, exists := e.byHookID[req.Manifest.ID]
	e.mu.RUnlock()
	if exists {
		return nil, forgehosterr.Newf(forgehosterr.CodeConflict, "hook %q already installed", req.Manifest.ID)
	}

	adapter, err := e.adapterFor(req.Manifest.Runtime)
	if err != nil {
		return nil, err
	}

	instanceID := uuid.New().String()
	e.emit(req.InstallID, model.LifecycleEvent{Type: model.EventInstalling, InstanceID: instanceID, At: now()})

	var hostPort int
	if req.Manifest.Runtime == model.RuntimeContainer {
		hostPort, err = e.ports.Allocate()
		if err != nil {
			e.metrics.RecordPortAllocationError()
			e.failInstall(ctx, req.InstallID, instanceID, req.Manifest, err)
			return nil, err
		}
	}

	start := time.Now()
	instance, err := adapter.Install(ctx, runtime.InstallSpec{
		Manifest:    req.Manifest,
		Config:      req.Config,
		Environment: req.Environment,
		HostPort:    hostPort,
	})
	e.metrics.HookLifecycleObserve(string(req.Manifest.Runtime), "install", time.Since(start).Seconds())
	if err != nil {
		if hostPort != 0 {
			e.ports.Release(hostPort)
		}
		e.metrics.HookTransition(string(req.Manifest.Runtime), "install", "error")
		e.failInstall(ctx, req.InstallID, instanceID, req.Manifest, err)
		return nil, err
	}

	instance.InstanceID = instanceID
	instance.Status = model.StatusInstalled
	instance.HealthStatus = model.HealthUnknown
	if err := e.persist(ctx, &instance); err != nil {
		return nil, err
	}
	e.metrics.HookTransition(string(req.Manifest.Runtime), "install", "success")
	e.emit(req.InstallID, model.LifecycleEvent{Type: model.EventInstalled, InstanceID: instanceID, At: now()})

	if req.AutoStart {
		if err := e.Start(ctx, instanceID, StartOptions{}); err != nil {
			return &instance, err
		}
		e.mu.RLock()
		refreshed := e.byInstance[instanceID]
		e.mu.RUnlock()
		return refreshed, nil
	}
	return &instance, nil
}

func (e *Engine) failInstall(ctx context.Context, installID, instanceID string, m model.Manifest, cause error) {
	instance := &model.HookInstance{
		InstanceID: instanceID,
		HookID:     m.ID,
		Runtime:    m.Runtime,
		Manifest:   m,
		Status:       model.StatusError,
		HealthStatus: model.HealthUnknown,
		Error:        cause.Error(),
	}
	_ = e.store.UpsertHook(ctx, instance)
	e.emit(installID, model.LifecycleEvent{Type: model.EventError, InstanceID: instanceID, At: now(), Data: map[string]any{"error": cause.Error()}})
}

// StartOptions carries Start's inputs.
type StartOptions struct {
	PullLatest bool
}

// Start brings instance up, scheduling the first health tick at +10s and
// every 30s thereafter.
func (e *Engine) Start(ctx context.Context, instanceID string, opts StartOptions) error {
	instance, ok := e.Get(instanceID)
	if !ok {
		return forgehosterr.Newf(forgehosterr.CodeNotFound, "instance %q not found", instanceID)
	}
	adapter, err := e.adapterFor(instance.Runtime)
	if err != nil {
		return err
	}

	e.setStatus(ctx, instance, model.StatusStarting, "")
	e.emit("", model.LifecycleEvent{Type: model.EventStarting, InstanceID: instanceID, At: now()})

	start := time.Now()
	if instance.Runtime == model.RuntimeContainer && opts.PullLatest {
		if err := e.pullLatestAndRecreate(ctx, instance); err != nil {
			e.setStatus(ctx, instance, model.StatusError, err.Error())
			e.metrics.HookTransition(string(instance.Runtime), "start", "error")
			return err
		}
	}
	if err := adapter.Start(ctx, instance); err != nil {
		e.setStatus(ctx, instance, model.StatusError, err.Error())
		e.metrics.HookTransition(string(instance.Runtime), "start", "error")
		e.emit("", model.LifecycleEvent{Type: model.EventError, InstanceID: instanceID, At: now(), Data: map[string]any{"error": err.Error()}})
		return err
	}
	e.metrics.HookLifecycleObserve(string(instance.Runtime), "start", time.Since(start).Seconds())

	startedAt := now()
	instance.StartedAt = &startedAt
	e.setStatus(ctx, instance, model.StatusRunning, "")
	e.metrics.HookTransition(string(instance.Runtime), "start", "success")
	e.emit("", model.LifecycleEvent{Type: model.EventStarted, InstanceID: instanceID, At: now()})

	e.scheduleHealthChecks(instanceID)
	return nil
}

// Stop gracefully stops instance: 30s for container, force after.
func (e *Engine) Stop(ctx context.Context, instanceID string) error {
	instance, ok := e.Get(instanceID)
	if !ok {
		return forgehosterr.Newf(forgehosterr.CodeNotFound, "instance %q not found", instanceID)
	}
	adapter, err := e.adapterFor(instance.Runtime)
	if err != nil {
		return err
	}

	e.cancelHealthChecks(instanceID)
	e.setStatus(ctx, instance, model.StatusStopping, "")
	e.emit("", model.LifecycleEvent{Type: model.EventStopping, InstanceID: instanceID, At: now()})

	start := time.Now()
	if err := adapter.Stop(ctx, instance); err != nil {
		e.setStatus(ctx, instance, model.StatusError, err.Error())
		e.metrics.HookTransition(string(instance.Runtime), "stop", "error")
		return err
	}
	e.metrics.HookLifecycleObserve(string(instance.Runtime), "stop", time.Since(start).Seconds())

	stoppedAt := now()
	instance.StoppedAt = &stoppedAt
	e.setStatus(ctx, instance, model.StatusStopped, "")
	e.metrics.HookTransition(string(instance.Runtime), "stop", "success")
	e.emit("", model.LifecycleEvent{Type: model.EventStopped, InstanceID: instanceID, At: now()})
	return nil
}

// Restart is Stop followed by Start with an identical surface.
func (e *Engine) Restart(ctx context.Context, instanceID string) error {
	if err := e.Stop(ctx, instanceID); err != nil {
		return err
	}
	return e.Start(ctx, instanceID, StartOptions{})
}

// Uninstall stops instance if running (10s graceful), removes it, releases
// its port, deletes its persisted row, and emits "uninstalled".
func (e *Engine) Uninstall(ctx context.Context, instanceID string) error {
	instance, ok := e.Get(instanceID)
	if !ok {
		return forgehosterr.Newf(forgehosterr.CodeNotFound, "instance %q not found", instanceID)
	}
	adapter, err := e.adapterFor(instance.Runtime)
	if err != nil {
		return err
	}

	e.cancelHealthChecks(instanceID)
	e.setStatus(ctx, instance, model.StatusUninstalling, "")
	e.emit("", model.LifecycleEvent{Type: model.EventUninstalling, InstanceID: instanceID, At: now()})

	if instance.Status == model.StatusRunning {
		_ = adapter.Stop(ctx, instance)
	}
	if err := adapter.Remove(ctx, instance); err != nil {
		e.setStatus(ctx, instance, model.StatusError, err.Error())
		return err
	}
	if instance.HostPort != 0 {
		e.ports.Release(instance.HostPort)
	}

	if err := e.store.DeleteHook(ctx, instanceID); err != nil {
		return forgehosterr.Wrap(forgehosterr.CodeInternal, err)
	}
	e.mu.Lock()
	delete(e.byInstance, instanceID)
	delete(e.byHookID, instance.HookID)
	e.mu.Unlock()

	e.metrics.HookTransition(string(instance.Runtime), "uninstall", "success")
	e.emit("", model.LifecycleEvent{Type: model.EventUninstalled, InstanceID: instanceID, At: now()})
	return nil
}

func (e *Engine) setStatus(ctx context.Context, instance *model.HookInstance, status model.Status, errMsg string) {
	instance.Status = status
	instance.Error = errMsg
	if status != model.StatusRunning {
		// spec.md §3 invariant: healthStatus = unknown whenever status != running.
		instance.HealthStatus = model.HealthUnknown
	}
	updated := now()
	instance.LastUpdatedAt = &updated
	if err := e.persist(ctx, instance); err != nil {
		e.logger.Error(ctx, "persist status transition failed", "error", err, "instance_id", instance.InstanceID)
	}
}

func now() time.Time { return time.Now() }
