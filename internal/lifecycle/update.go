package lifecycle

import (
	"context"

	"github.com/forgehook/forgehostd/internal/forgehosterr"
	"github.com/forgehook/forgehostd/internal/runtime"
	"github.com/forgehook/forgehostd/pkg/model"
)

// UpdateParams carries Update's inputs, per spec.md §4.1. Exactly one of
// NewImageTag (container), or BundleURL/ModuleCode (embedded) is expected;
// NewManifest, if set, replaces the instance's manifest wholesale (its
// version/image.tag are what actually change in the common case).
type UpdateParams struct {
	NewImageTag string
	BundleURL   string
	ModuleCode  string
	NewManifest *model.Manifest
}

// Update replaces instanceID's underlying process with a new version: pulls
// or loads the new image/module, removes the old instance, creates a new
// one from the merged manifest, restarts it if it was running before, and
// records one UpdateHistory row regardless of outcome.
func (e *Engine) Update(ctx context.Context, instanceID string, params UpdateParams) error {
	instance, ok := e.Get(instanceID)
	if !ok {
		return forgehosterr.Newf(forgehosterr.CodeNotFound, "instance %q not found", instanceID)
	}
	adapter, err := e.adapterFor(instance.Runtime)
	if err != nil {
		return err
	}

	fromVersion := instance.InstalledVersion
	previousImageTag := ""
	if instance.Manifest.Image != nil {
		previousImageTag = instance.Manifest.Image.Tag
	}
	wasRunning := instance.Status == model.StatusRunning

	newManifest := instance.Manifest
	if params.NewManifest != nil {
		newManifest = *params.NewManifest
	}
	if params.NewImageTag != "" {
		img := model.Image{Repository: "", Tag: params.NewImageTag}
		if newManifest.Image != nil {
			img.Repository = newManifest.Image.Repository
		}
		newManifest.Image = &img
	}
	if params.ModuleCode != "" {
		newManifest.ModuleCode = params.ModuleCode
	}

	e.setStatus(ctx, instance, model.StatusUpdating, "")
	e.emit("", model.LifecycleEvent{Type: model.EventUpdating, InstanceID: instanceID})

	if wasRunning {
		_ = adapter.Stop(ctx, instance)
	}
	if err := adapter.Remove(ctx, instance); err != nil {
		e.recordUpdateFailure(ctx, instance, fromVersion, newManifest.Version, err)
		return err
	}

	updated, err := adapter.Install(ctx, runtime.InstallSpec{
		Manifest:    newManifest,
		Config:      instance.Config,
		Environment: instance.Environment,
		HostPort:    instance.HostPort,
	})
	if err != nil {
		e.recordUpdateFailure(ctx, instance, fromVersion, newManifest.Version, err)
		return err
	}

	updated.InstanceID = instanceID
	updated.Status = model.StatusInstalled
	updated.HealthStatus = model.HealthUnknown
	updated.InstalledVersion = newManifest.Version
	updated.PreviousVersion = fromVersion
	updated.PreviousImageTag = previousImageTag
	if err := e.persist(ctx, &updated); err != nil {
		return err
	}

	if err := e.store.AppendUpdateHistory(ctx, model.UpdateHistory{
		InstanceID:  instanceID,
		FromVersion: fromVersion,
		ToVersion:   newManifest.Version,
		UpdateType:  model.UpdateOnline,
		Success:     true,
		At:          now(),
	}); err != nil {
		e.logger.Error(ctx, "append update history failed", "error", err, "instance_id", instanceID)
	}
	e.emit("", model.LifecycleEvent{Type: model.EventUpdated, InstanceID: instanceID})

	if wasRunning {
		return e.Start(ctx, instanceID, StartOptions{})
	}
	return nil
}

func (e *Engine) recordUpdateFailure(ctx context.Context, instance *model.HookInstance, fromVersion, toVersion string, cause error) {
	e.setStatus(ctx, instance, model.StatusError, cause.Error())
	_ = e.store.AppendUpdateHistory(ctx, model.UpdateHistory{
		InstanceID:  instance.InstanceID,
		FromVersion: fromVersion,
		ToVersion:   toVersion,
		UpdateType:  model.UpdateOnline,
		Success:     false,
		Error:       cause.Error(),
		At:          now(),
	})
	e.emit("", model.LifecycleEvent{Type: model.EventError, InstanceID: instance.InstanceID, Data: map[string]any{"error": cause.Error()}})
}

// Rollback requires a prior successful Update (previousImageTag and
// previousVersion present) and reapplies them via Update, per spec.md §4.1.
func (e *Engine) Rollback(ctx context.Context, instanceID string) error {
	instance, ok := e.Get(instanceID)
	if !ok {
		return forgehosterr.Newf(forgehosterr.CodeNotFound, "instance %q not found", instanceID)
	}
	if instance.PreviousImageTag == "" || instance.PreviousVersion == "" {
		return forgehosterr.New(forgehosterr.CodeNotFound, "no previous version to roll back to")
	}

	manifest := instance.Manifest
	manifest.Version = instance.PreviousVersion
	return e.Update(ctx, instanceID, UpdateParams{
		NewImageTag: instance.PreviousImageTag,
		NewManifest: &manifest,
	})
}
