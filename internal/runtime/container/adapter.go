package container

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	dockercontainer "github.com/docker/docker/api/types/container"

	"github.com/forgehook/forgehostd/internal/forgehosterr"
	"github.com/forgehook/forgehostd/internal/runtime"
	"github.com/forgehook/forgehostd/pkg/model"
)

// InfraAddresses are the host-level service addresses composed into a
// container hook's environment ahead of manifest defaults and user
// overrides (spec.md §4.1 Install, SPEC_FULL.md C.1).
type InfraAddresses struct {
	RedisURL    string
	DatabaseURL string
	VectorDBURL string
}

// Adapter implements runtime.Adapter for container-runtime hooks. It owns
// no port bookkeeping of its own — hostPort is assigned by
// internal/ports.Allocator and threaded through runtime.InstallSpec.
type Adapter struct {
	engine        *Engine
	namePrefix    string
	volumePrefix  string
	networkName   string
	infra         InfraAddresses
}

// New constructs a container Adapter bound to engine.
func New(engine *Engine, namePrefix, volumePrefix, networkName string, infra InfraAddresses) *Adapter {
	return &Adapter{engine: engine, namePrefix: namePrefix, volumePrefix: volumePrefix, networkName: networkName, infra: infra}
}

// containerName joins the configured prefix (already dash-terminated by
// default, e.g. "forgehook-") directly with hookID, so "legacy" becomes
// "forgehook-legacy" rather than "forgehook--legacy".
func (a *Adapter) containerName(hookID string) string {
	return a.namePrefix + hookID
}

// composeEnv layers PORT/NODE_ENV, infra addresses, manifest defaults, then
// user overrides — user overrides win, per spec.md §4.1.
func (a *Adapter) composeEnv(spec runtime.InstallSpec) []string {
	base := map[string]string{
		"PORT":      strconv.Itoa(spec.Manifest.Port),
		"NODE_ENV":  "production",
	}
	if a.infra.RedisURL != "" {
		base["REDIS_URL"] = a.infra.RedisURL
	}
	if a.infra.DatabaseURL != "" {
		base["DATABASE_URL"] = a.infra.DatabaseURL
	}
	if a.infra.VectorDBURL != "" {
		base["VECTOR_DB_URL"] = a.infra.VectorDBURL
	}
	for k, v := range spec.Manifest.Environment {
		base[k] = v
	}
	for k, v := range spec.Environment {
		base[k] = v
	}

	env := make([]string, 0, len(base))
	for k, v := range base {
		env = append(env, k+"="+v)
	}
	return env
}

func (a *Adapter) buildHealthCheck(m model.Manifest) *dockercontainer.HealthConfig {
	if m.HealthCheck == nil {
		return nil
	}
	hc := m.HealthCheck
	interval := time.Duration(hc.IntervalSec) * time.Second
	timeout := time.Duration(hc.TimeoutSec) * time.Second
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	path := hc.Path
	if path == "" {
		path = "/"
	}
	return &dockercontainer.HealthConfig{
		Test:     []string{"CMD-SHELL", fmt.Sprintf("curl -f http://localhost:%d%s || exit 1", m.Port, path)},
		Interval: interval,
		Timeout:  timeout,
		Retries:  hc.Retries,
	}
}

// Install ensures the network exists, pulls the image if absent, and
// creates (but per spec.md leaves Start to do the starting of) a container
// bound to spec.HostPort.
func (a *Adapter) Install(ctx context.Context, spec runtime.InstallSpec) (model.HookInstance, error) {
	if spec.Manifest.Image == nil {
		return model.HookInstance{}, forgehosterr.New(forgehosterr.CodeValidation, "container hook requires image")
	}
	if err := a.engine.EnsureNetwork(ctx, a.networkName); err != nil {
		return model.HookInstance{}, err
	}

	repo, tag := spec.Manifest.Image.Repository, spec.Manifest.Image.Tag
	if tag == "" {
		tag = "latest"
	}
	exists, err := a.engine.ImageExists(ctx, repo, tag)
	if err != nil {
		return model.HookInstance{}, err
	}
	if !exists {
		if err := a.engine.PullImage(ctx, repo, tag); err != nil {
			return model.HookInstance{}, err
		}
	}

	for _, v := range spec.Manifest.Volumes {
		volName := a.volumePrefix + "-" + spec.Manifest.ID + "-" + strings.ReplaceAll(v, "/", "-")
		if err := a.engine.EnsureVolume(ctx, volName); err != nil {
			return model.HookInstance{}, err
		}
	}

	memBytes, err := ParseMemory(spec.Manifest.Resources.Memory)
	if err != nil {
		return model.HookInstance{}, err
	}
	cpuNanos, err := ParseCPU(spec.Manifest.Resources.CPU)
	if err != nil {
		return model.HookInstance{}, err
	}

	name := a.containerName(spec.Manifest.ID)
	containerID, err := a.engine.CreateContainer(ctx, ContainerSpec{
		Name:          name,
		Image:         repo + ":" + tag,
		Env:           a.composeEnv(spec),
		ContainerPort: spec.Manifest.Port,
		HostPort:      spec.HostPort,
		MemoryBytes:   memBytes,
		NanoCPUs:      cpuNanos,
		HealthCheck:   a.buildHealthCheck(spec.Manifest),
		Labels: map[string]string{
			"forgehostd.hookId": spec.Manifest.ID,
		},
	})
	if err != nil {
		return model.HookInstance{}, err
	}

	return model.HookInstance{
		HookID:           spec.Manifest.ID,
		Runtime:          model.RuntimeContainer,
		Manifest:         spec.Manifest,
		ContainerID:      containerID,
		ContainerName:    name,
		HostPort:         spec.HostPort,
		InstalledVersion: spec.Manifest.Version,
		Config:           spec.Config,
		Environment:      spec.Environment,
	}, nil
}

func (a *Adapter) Start(ctx context.Context, instance *model.HookInstance) error {
	if instance.ContainerID == "" {
		return forgehosterr.New(forgehosterr.CodeValidation, "start requires containerId")
	}
	return a.engine.Start(ctx, instance.ContainerID)
}

func (a *Adapter) Stop(ctx context.Context, instance *model.HookInstance) error {
	return a.engine.Stop(ctx, instance.ContainerID, 30)
}

func (a *Adapter) Remove(ctx context.Context, instance *model.HookInstance) error {
	return a.engine.Remove(ctx, instance.ContainerID)
}

// Invoke dispatches an HTTP call to the container's published host port.
// endpointKey is resolved back into the manifest's literal method+path via
// internal/runtime.ResolveEndpoint.
func (a *Adapter) Invoke(ctx context.Context, instance *model.HookInstance, endpointKey string, body []byte) (runtime.InvokeResult, error) {
	url := fmt.Sprintf("http://localhost:%d", instance.HostPort)
	return dispatchHTTP(ctx, url, instance.Manifest, endpointKey, body)
}

func (a *Adapter) Logs(ctx context.Context, instance *model.HookInstance, tail int) ([]byte, error) {
	return a.engine.Logs(ctx, instance.ContainerID, tail)
}

func (a *Adapter) CheckHealth(ctx context.Context, instance *model.HookInstance) (runtime.HealthResult, error) {
	insp, err := a.engine.Inspect(ctx, instance.ContainerID)
	if err != nil {
		return runtime.HealthResult{Status: model.HealthUnknown}, err
	}
	if insp.State == nil {
		return runtime.HealthResult{Status: model.HealthUnknown}, nil
	}
	if insp.State.Health == nil {
		status := model.HealthUnknown
		if insp.State.Running {
			status = model.HealthHealthy
		}
		return runtime.HealthResult{Status: status}, nil
	}
	status := model.HealthUnknown
	switch insp.State.Health.Status {
	case dockercontainer.Healthy:
		status = model.HealthHealthy
	case dockercontainer.Unhealthy:
		status = model.HealthUnhealthy
	}
	return runtime.HealthResult{
		Status: status,
		Detail: map[string]any{"failingStreak": insp.State.Health.FailingStreak},
	}, nil
}

// PullLatestAndRecreate implements runtime.Updatable: Start's `pullLatest`
// path (spec.md §4.1). It pulls instance's configured image tag and, only
// if the registry digest differs from what's stored locally, removes the
// existing container and recreates it under the same name and host port
// with the refreshed image. A matching digest is a no-op — the plain Start
// call brings the existing container up unchanged.
func (a *Adapter) PullLatestAndRecreate(ctx context.Context, instance *model.HookInstance) error {
	if instance.Manifest.Image == nil {
		return nil
	}
	repo, tag := instance.Manifest.Image.Repository, instance.Manifest.Image.Tag
	if tag == "" {
		tag = "latest"
	}

	check := a.engine.CheckForUpdate(ctx, repo, tag)
	if check.Error != "" {
		return forgehosterr.Newf(forgehosterr.CodeImageError, "check for update: %s", check.Error)
	}
	if err := a.engine.PullImage(ctx, repo, tag); err != nil {
		return err
	}
	if !check.HasUpdate {
		return nil
	}

	if err := a.engine.Remove(ctx, instance.ContainerID); err != nil {
		return err
	}

	memBytes, err := ParseMemory(instance.Manifest.Resources.Memory)
	if err != nil {
		return err
	}
	cpuNanos, err := ParseCPU(instance.Manifest.Resources.CPU)
	if err != nil {
		return err
	}

	spec := runtime.InstallSpec{
		Manifest:    instance.Manifest,
		Config:      instance.Config,
		Environment: instance.Environment,
		HostPort:    instance.HostPort,
	}
	containerID, err := a.engine.CreateContainer(ctx, ContainerSpec{
		Name:          instance.ContainerName,
		Image:         repo + ":" + tag,
		Env:           a.composeEnv(spec),
		ContainerPort: instance.Manifest.Port,
		HostPort:      instance.HostPort,
		MemoryBytes:   memBytes,
		NanoCPUs:      cpuNanos,
		HealthCheck:   a.buildHealthCheck(instance.Manifest),
		Labels: map[string]string{
			"forgehostd.hookId": instance.Manifest.ID,
		},
	})
	if err != nil {
		return err
	}
	instance.ContainerID = containerID
	return nil
}
