// Package embedded implements the Embedded Runtime Adapter (B). Per
// Open Question Decision 5 (see DESIGN.md) this does not reuse the
// teacher's plugin.Open() .so-loader: spec.md's manifest carries
// moduleCode as an opaque string rather than necessarily a filesystem
// .so path, so this adapter instead maintains an in-process registry of
// named Go closures a caller pre-registers by hookId, matching spec.md
// §4.3's `{exports{name->callable}, invocationCount, lastInvokedAt?}`
// shape directly.
package embedded

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/forgehook/forgehostd/internal/forgehosterr"
	"github.com/forgehook/forgehostd/internal/runtime"
	"github.com/forgehook/forgehostd/pkg/model"
)

// Func is one exported, callable function a loaded module provides.
type Func func(ctx context.Context, input map[string]any) (map[string]any, error)

// Module is the set of exports a moduleCode resolves to. Hosting
// applications register modules by hookId ahead of Install (e.g. from an
// init-time registry), since Go has no safe runtime equivalent of
// `eval(moduleCode)`.
type Module map[string]Func

// Registry maps moduleCode identifiers (the manifest's opaque
// `moduleCode` field) to a pre-built Module.
type Registry map[string]Module

type loadedModule struct {
	exports         Module
	invocationCount int
	lastInvokedAt   *time.Time
}

// Adapter implements runtime.Adapter for embedded-runtime hooks.
type Adapter struct {
	registry Registry

	mu      sync.RWMutex
	loaded  map[string]*loadedModule // hookId -> loaded module
}

// New constructs an embedded Adapter over a fixed Registry of known
// modules.
func New(registry Registry) *Adapter {
	return &Adapter{registry: registry, loaded: make(map[string]*loadedModule)}
}

// Load resolves moduleCode against the registry and activates it for
// hookId.
func (a *Adapter) Load(hookID, moduleCode string) error {
	mod, ok := a.registry[moduleCode]
	if !ok {
		return forgehosterr.Newf(forgehosterr.CodeValidation, "unknown moduleCode %q", moduleCode)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.loaded[hookID] = &loadedModule{exports: mod}
	return nil
}

// Unload deactivates hookId's module.
func (a *Adapter) Unload(hookID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.loaded, hookID)
}

// Install activates the manifest's moduleCode. Embedded installs must use
// this variant (carrying moduleCode) rather than the container image path
// (spec.md §4.1).
func (a *Adapter) Install(ctx context.Context, spec runtime.InstallSpec) (model.HookInstance, error) {
	if spec.Manifest.ModuleCode == "" {
		return model.HookInstance{}, forgehosterr.New(forgehosterr.CodeValidation, "embedded runtime requires moduleCode")
	}
	if err := a.Load(spec.Manifest.ID, spec.Manifest.ModuleCode); err != nil {
		return model.HookInstance{}, err
	}
	return model.HookInstance{
		HookID:           spec.Manifest.ID,
		Runtime:          model.RuntimeEmbedded,
		Manifest:         spec.Manifest,
		ModuleLoaded:     true,
		InstalledVersion: spec.Manifest.Version,
		Config:           spec.Config,
		Environment:      spec.Environment,
	}, nil
}

// Start is a no-op: Load already activated the module.
func (a *Adapter) Start(ctx context.Context, instance *model.HookInstance) error { return nil }

// Stop is a no-op: the module stays resident until Remove.
func (a *Adapter) Stop(ctx context.Context, instance *model.HookInstance) error { return nil }

// Remove unloads the module.
func (a *Adapter) Remove(ctx context.Context, instance *model.HookInstance) error {
	a.Unload(instance.HookID)
	return nil
}

// functionName strips a leading get_/post_/put_/delete_/patch_ verb
// prefix from action, per spec.md §4.1's embedded dispatch rule.
func functionName(action string) string {
	for _, prefix := range []string{"get_", "post_", "put_", "delete_", "patch_"} {
		if strings.HasPrefix(action, prefix) {
			return strings.TrimPrefix(action, prefix)
		}
	}
	return action
}

// Invoke calls the named export. endpointKey here is the action produced
// by the tool-name inverse (internal/runtime.Adapter's Invoke contract);
// embedded treats it as a raw export name after stripping the verb prefix,
// never reconstructing an HTTP path.
func (a *Adapter) Invoke(ctx context.Context, instance *model.HookInstance, endpointKey string, body []byte) (runtime.InvokeResult, error) {
	a.mu.Lock()
	lm, ok := a.loaded[instance.HookID]
	a.mu.Unlock()
	if !ok {
		return runtime.InvokeResult{}, forgehosterr.Newf(forgehosterr.CodeNotFound, "hook %q not loaded", instance.HookID)
	}

	fn, ok := lm.exports[functionName(endpointKey)]
	if !ok {
		return runtime.InvokeResult{StatusCode: 404, Body: []byte(`{"success":false,"error":"unknown export"}`)}, nil
	}

	input, err := decodeJSONObject(body)
	if err != nil {
		input = map[string]any{}
	}

	result, err := fn(ctx, input)

	a.mu.Lock()
	lm.invocationCount++
	now := time.Now()
	lm.lastInvokedAt = &now
	a.mu.Unlock()

	if err != nil {
		return runtime.InvokeResult{StatusCode: 500, Body: encodeError(err)}, err
	}
	return runtime.InvokeResult{StatusCode: 200, Body: encodeResult(result)}, nil
}

// Logs has no log surface: an embedded hook runs in-process with no
// separate output stream to capture.
func (a *Adapter) Logs(ctx context.Context, instance *model.HookInstance, tail int) ([]byte, error) {
	return nil, forgehosterr.New(forgehosterr.CodeValidation, "embedded hooks have no log surface")
}

// CheckHealth reports loaded status, exported function names, and
// invocation bookkeeping per spec.md §4.3.
func (a *Adapter) CheckHealth(ctx context.Context, instance *model.HookInstance) (runtime.HealthResult, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	lm, ok := a.loaded[instance.HookID]
	if !ok {
		return runtime.HealthResult{Status: model.HealthUnhealthy, Detail: map[string]any{"loaded": false}}, nil
	}

	exports := make([]string, 0, len(lm.exports))
	for name := range lm.exports {
		exports = append(exports, name)
	}

	detail := map[string]any{
		"loaded":          true,
		"exports":         exports,
		"invocationCount": lm.invocationCount,
	}
	if lm.lastInvokedAt != nil {
		detail["lastInvoked"] = *lm.lastInvokedAt
	}
	return runtime.HealthResult{Status: model.HealthHealthy, Detail: detail}, nil
}
