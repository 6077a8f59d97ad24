package lifecycle

import (
	"context"
	"strings"

	"github.com/forgehook/forgehostd/pkg/model"
)

// ContainerLister is the narrow container-engine surface boot-time
// reconciliation needs. *container.Engine (internal/runtime/container)
// satisfies it directly; the lifecycle package only depends on the shape,
// not the concrete docker SDK types, so adapters for other runtimes never
// need to implement it.
type ContainerLister interface {
	List(ctx context.Context, prefix string) ([]EngineContainer, error)
}

// EngineContainer is the subset of a live container's identity reconcile
// needs: which name it runs under, whether it's up, and what host port (if
// any) it publishes. internal/runtime/container adapts docker SDK's
// container.Summary into this shape.
type EngineContainer struct {
	ID       string
	Name     string
	Running  bool
	HostPort int
}

// Reconcile implements spec.md §4.1's "adoption & reconciliation": it loads
// every persisted instance, lists the container engine's known containers
// under containerPrefix, and reconciles the two views so that after it
// returns the in-memory/persisted state matches what the engine is
// actually running. Call it once at boot, before serving traffic. lister
// may be nil (no container runtime configured), in which case every
// persisted row is trusted as-is.
func (e *Engine) Reconcile(ctx context.Context, lister ContainerLister, containerPrefix string) error {
	rows, err := e.store.ListHooks(ctx)
	if err != nil {
		return err
	}
	e.mu.Lock()
	for _, row := range rows {
		e.byInstance[row.InstanceID] = row
		e.byHookID[row.HookID] = row.InstanceID
	}
	e.mu.Unlock()

	if lister == nil {
		e.metrics.RecordReconcile("skipped")
		return nil
	}

	containers, err := lister.List(ctx, containerPrefix)
	if err != nil {
		e.metrics.RecordReconcile("error")
		return err
	}

	byName := make(map[string]EngineContainer, len(containers))
	for _, c := range containers {
		byName[c.Name] = c
	}

	seen := make(map[string]bool, len(rows))
	for _, row := range rows {
		if row.Runtime != model.RuntimeContainer {
			continue
		}
		c, ok := byName[row.ContainerName]
		if !ok {
			if row.Status == model.StatusRunning || row.Status == model.StatusStarting {
				row.Status = model.StatusStopped
				row.HealthStatus = model.HealthUnknown
				row.ContainerID = ""
				if perr := e.persist(ctx, row); perr != nil {
					e.logger.Error(ctx, "reconcile persist (missing container) failed", "error", perr, "instance_id", row.InstanceID)
				}
			}
			continue
		}
		seen[c.Name] = true
		row.ContainerID = c.ID
		row.HostPort = c.HostPort
		if c.Running {
			row.Status = model.StatusRunning
		} else {
			row.Status = model.StatusStopped
			row.HealthStatus = model.HealthUnknown
		}
		if perr := e.persist(ctx, row); perr != nil {
			e.logger.Error(ctx, "reconcile persist (matched container) failed", "error", perr, "instance_id", row.InstanceID)
		}
		if row.Status == model.StatusRunning {
			e.scheduleHealthChecks(row.InstanceID)
		}
	}

	for _, c := range containers {
		if seen[c.Name] {
			continue
		}
		hookID := strings.TrimPrefix(c.Name, containerPrefix)
		if _, exists := e.GetByHookID(hookID); exists {
			continue
		}
		status := model.StatusStopped
		if c.Running {
			status = model.StatusRunning
		}
		adopted := &model.HookInstance{
			InstanceID: uuidFromContainerID(c.ID),
			HookID:     hookID,
			Runtime:    model.RuntimeContainer,
			Manifest: model.Manifest{
				ID:      hookID,
				Name:    hookID,
				Version: "unknown",
				Runtime: model.RuntimeContainer,
			},
			Status:           status,
			HealthStatus:     model.HealthUnknown,
			ContainerID:      c.ID,
			ContainerName:    c.Name,
			HostPort:         c.HostPort,
			InstalledVersion: "unknown",
		}
		if err := e.persist(ctx, adopted); err != nil {
			e.logger.Error(ctx, "reconcile adopt failed", "error", err, "container", c.Name)
			continue
		}
		e.emit("", model.LifecycleEvent{Type: model.EventInstalled, InstanceID: adopted.InstanceID, At: now(), Data: map[string]any{"adopted": true}})
		if status == model.StatusRunning {
			e.scheduleHealthChecks(adopted.InstanceID)
		}
	}

	e.metrics.RecordReconcile("success")
	return nil
}

// uuidFromContainerID derives a stable instance id for an adopted container
// so repeated boots against the same engine state adopt the same row
// (spec.md §8 Testable Property 3, "adoption idempotence") instead of
// minting a fresh uuid every time.
func uuidFromContainerID(containerID string) string {
	if len(containerID) > 12 {
		containerID = containerID[:12]
	}
	return "adopted-" + containerID
}
