package lifecycle

import (
	"context"
	"time"

	"github.com/forgehook/forgehostd/pkg/model"
)

// Health surveillance tick cadence, per spec.md §4.1: "schedules first
// health tick at +10s, then every 30s". The loop is self-rescheduling and
// stops on any state change away from running.
const (
	healthFirstTickDelay = 10 * time.Second
	healthTickInterval   = 30 * time.Second
)

// scheduleHealthChecks (re)starts instanceID's health surveillance loop,
// cancelling any loop already running for it first.
func (e *Engine) scheduleHealthChecks(instanceID string) {
	e.cancelHealthChecks(instanceID)

	ctx, cancel := context.WithCancel(context.Background())
	e.healthMu.Lock()
	e.healthStops[instanceID] = cancel
	e.healthMu.Unlock()

	go e.healthLoop(ctx, instanceID)
}

// cancelHealthChecks stops instanceID's health loop, if one is running.
// Safe to call even when none is registered.
func (e *Engine) cancelHealthChecks(instanceID string) {
	e.healthMu.Lock()
	cancel, ok := e.healthStops[instanceID]
	if ok {
		delete(e.healthStops, instanceID)
	}
	e.healthMu.Unlock()
	if ok {
		cancel()
	}
}

func (e *Engine) healthLoop(ctx context.Context, instanceID string) {
	timer := time.NewTimer(healthFirstTickDelay)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			if !e.healthTick(ctx, instanceID) {
				return
			}
			timer.Reset(healthTickInterval)
		}
	}
}

// healthTick probes instanceID's current liveness via its adapter,
// persists the result, and emits a "health" event. It returns false once
// the instance has left StatusRunning (or vanished), which ends the
// self-rescheduling loop.
func (e *Engine) healthTick(ctx context.Context, instanceID string) bool {
	instance, ok := e.Get(instanceID)
	if !ok || instance.Status != model.StatusRunning {
		return false
	}
	adapter, err := e.adapterFor(instance.Runtime)
	if err != nil {
		return false
	}

	start := time.Now()
	result, err := adapter.CheckHealth(ctx, instance)
	e.metrics.RecordHealthCheck(instance.HookID, string(result.Status), time.Since(start).Seconds())
	if err != nil {
		e.logger.Error(ctx, "health check failed", "error", err, "instance_id", instanceID)
		result.Status = model.HealthUnknown
	}

	instance.HealthStatus = result.Status
	checkedAt := now()
	instance.LastHealthCheckAt = &checkedAt
	if perr := e.persist(ctx, instance); perr != nil {
		e.logger.Error(ctx, "persist health check failed", "error", perr, "instance_id", instanceID)
	}
	e.emit("", model.LifecycleEvent{Type: model.EventHealth, InstanceID: instanceID, At: checkedAt, Data: result.Detail})
	return instance.Status == model.StatusRunning
}
