// Package container implements the Container Runtime Adapter (A): the
// engine operations spec.md §4.2 exposes (Ping/EnsureNetwork/EnsureVolume/
// PullImage/ImageExists/LocalDigest/RemoteDigest/CreateContainer/Start/
// Stop/Remove/Inspect/Logs/List) plus the digest-based update check and
// resource-string parsing. Grounded on the Docker-Engine-API usage in
// other_examples' agent container manager (ContainerCreate/Start/Stop/
// Remove/Inspect/Logs calls through github.com/docker/docker/client), and
// on the registry-digest lookup pattern from the example pack's OCI
// verifier (github.com/google/go-containerregistry/pkg/v1/remote.Head).
package container

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/api/types/volume"
	dockerclient "github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"
	"github.com/google/go-containerregistry/pkg/name"
	"github.com/google/go-containerregistry/pkg/v1/remote"

	"github.com/forgehook/forgehostd/internal/forgehosterr"
)

// Engine wraps the Docker Engine API client with the narrow surface the
// Hook Lifecycle Engine needs.
type Engine struct {
	cli          *dockerclient.Client
	networkName  string
	volumePrefix string
}

// NewEngine constructs an Engine from an already-configured Docker client
// (host/socket resolution is the caller's concern, mirroring the teacher's
// convention of injecting a pre-built client rather than owning connection
// setup here).
func NewEngine(cli *dockerclient.Client, networkName, volumePrefix string) *Engine {
	return &Engine{cli: cli, networkName: networkName, volumePrefix: volumePrefix}
}

// Ping verifies the engine is reachable.
func (e *Engine) Ping(ctx context.Context) error {
	if _, err := e.cli.Ping(ctx); err != nil {
		return forgehosterr.Wrap(forgehosterr.CodeEngineUnavailable, err)
	}
	return nil
}

// EnsureNetwork creates the shared hook network if it does not already
// exist. Idempotent.
func (e *Engine) EnsureNetwork(ctx context.Context, name string) error {
	networks, err := e.cli.NetworkList(ctx, network.ListOptions{})
	if err != nil {
		return forgehosterr.Wrap(forgehosterr.CodeEngineUnavailable, err)
	}
	for _, n := range networks {
		if n.Name == name {
			return nil
		}
	}
	_, err = e.cli.NetworkCreate(ctx, name, network.CreateOptions{Driver: "bridge"})
	if err != nil {
		return forgehosterr.Wrap(forgehosterr.CodeEngineUnavailable, err)
	}
	return nil
}

// EnsureVolume creates a named volume if it does not already exist.
func (e *Engine) EnsureVolume(ctx context.Context, name string) error {
	if _, err := e.cli.VolumeInspect(ctx, name); err == nil {
		return nil
	}
	if _, err := e.cli.VolumeCreate(ctx, volume.CreateOptions{Name: name}); err != nil {
		return forgehosterr.Wrap(forgehosterr.CodeEngineUnavailable, err)
	}
	return nil
}

// ImageExists reports whether repo:tag is present locally.
func (e *Engine) ImageExists(ctx context.Context, repo, tag string) (bool, error) {
	ref := repo + ":" + tag
	_, err := e.cli.ImageInspect(ctx, ref)
	if err == nil {
		return true, nil
	}
	if dockerclient.IsErrNotFound(err) {
		return false, nil
	}
	return false, forgehosterr.Wrap(forgehosterr.CodeEngineUnavailable, err)
}

// PullImage pulls repo:tag from its configured registry.
func (e *Engine) PullImage(ctx context.Context, repo, tag string) error {
	rc, err := e.cli.ImagePull(ctx, repo+":"+tag, image.PullOptions{})
	if err != nil {
		return forgehosterr.Wrap(forgehosterr.CodeImageError, err)
	}
	defer rc.Close()
	if _, err := io.Copy(io.Discard, rc); err != nil {
		return forgehosterr.Wrap(forgehosterr.CodeImageError, err)
	}
	return nil
}

// LocalDigest returns the content digest of a locally-present image, or ""
// if the image is absent. Read from RepoDigests (the `repo@sha256:...`
// form Docker records after a pull).
func (e *Engine) LocalDigest(ctx context.Context, repo, tag string) (string, error) {
	insp, err := e.cli.ImageInspect(ctx, repo+":"+tag)
	if err != nil {
		if dockerclient.IsErrNotFound(err) {
			return "", nil
		}
		return "", forgehosterr.Wrap(forgehosterr.CodeEngineUnavailable, err)
	}
	for _, rd := range insp.RepoDigests {
		if idx := strings.LastIndex(rd, "@"); idx != -1 {
			return rd[idx+1:], nil
		}
	}
	return "", nil
}

// RemoteDigest fetches the registry's current manifest digest for repo:tag.
// remote.Head absorbs the protocol spec.md §4.2 describes explicitly
// (token exchange for `repository:pull`, manifest HEAD with Docker v2 + OCI
// accept headers, digest read from `Docker-Content-Digest`) — it performs
// exactly that exchange under the hood.
func (e *Engine) RemoteDigest(ctx context.Context, repo, tag string) (string, error) {
	ref, err := name.ParseReference(repo + ":" + tag)
	if err != nil {
		return "", forgehosterr.Wrap(forgehosterr.CodeValidation, err)
	}
	desc, err := remote.Head(ref, remote.WithContext(ctx))
	if err != nil {
		return "", forgehosterr.Wrap(forgehosterr.CodeImageError, err)
	}
	return desc.Digest.String(), nil
}

// UpdateCheck is the result of a digest-based "has update" comparison.
type UpdateCheck struct {
	HasUpdate bool
	Local     string
	Remote    string
	Error     string
}

// CheckForUpdate implements spec.md §4.2's "has update" definition. Network
// or auth failures are reported in Error with HasUpdate=false rather than
// returned as a Go error.
func (e *Engine) CheckForUpdate(ctx context.Context, repo, tag string) UpdateCheck {
	local, err := e.LocalDigest(ctx, repo, tag)
	if err != nil {
		return UpdateCheck{Error: err.Error()}
	}
	remoteDigest, err := e.RemoteDigest(ctx, repo, tag)
	if err != nil {
		return UpdateCheck{Error: err.Error()}
	}
	return UpdateCheck{
		HasUpdate: local != "" && remoteDigest != "" && local != remoteDigest,
		Local:     local,
		Remote:    remoteDigest,
	}
}

// ContainerSpec is the adapter-neutral shape CreateContainer consumes.
type ContainerSpec struct {
	Name          string
	Image         string
	Env           []string
	ContainerPort int
	HostPort      int
	Volumes       []string // host-path:container-path, or named volume:container-path
	MemoryBytes   int64
	NanoCPUs      int64
	HealthCheck   *container.HealthConfig
	Labels        map[string]string
}

// CreateContainer creates (but does not start) a container per spec.
func (e *Engine) CreateContainer(ctx context.Context, spec ContainerSpec) (string, error) {
	containerPort := nat.Port(fmt.Sprintf("%d/tcp", spec.ContainerPort))

	cfg := &container.Config{
		Image:       spec.Image,
		Env:         spec.Env,
		Labels:      spec.Labels,
		Healthcheck: spec.HealthCheck,
		ExposedPorts: nat.PortSet{
			containerPort: struct{}{},
		},
	}

	hostCfg := &container.HostConfig{
		PortBindings: nat.PortMap{
			containerPort: []nat.PortBinding{{HostIP: "0.0.0.0", HostPort: fmt.Sprintf("%d", spec.HostPort)}},
		},
		Binds:         spec.Volumes,
		RestartPolicy: container.RestartPolicy{Name: container.RestartPolicyUnlessStopped},
		Resources: container.Resources{
			Memory:   spec.MemoryBytes,
			NanoCPUs: spec.NanoCPUs,
		},
	}

	netCfg := &network.NetworkingConfig{
		EndpointsConfig: map[string]*network.EndpointSettings{
			e.networkName: {},
		},
	}

	resp, err := e.cli.ContainerCreate(ctx, cfg, hostCfg, netCfg, nil, spec.Name)
	if err != nil {
		return "", forgehosterr.Wrap(forgehosterr.CodeRuntimeError, err)
	}
	return resp.ID, nil
}

// Start starts a created container.
func (e *Engine) Start(ctx context.Context, id string) error {
	if err := e.cli.ContainerStart(ctx, id, container.StartOptions{}); err != nil {
		return forgehosterr.Wrap(forgehosterr.CodeRuntimeError, err)
	}
	return nil
}

// Stop stops a running container, waiting up to timeoutSec before a forced
// kill.
func (e *Engine) Stop(ctx context.Context, id string, timeoutSec int) error {
	if err := e.cli.ContainerStop(ctx, id, container.StopOptions{Timeout: &timeoutSec}); err != nil {
		return forgehosterr.Wrap(forgehosterr.CodeRuntimeError, err)
	}
	return nil
}

// Remove force-removes a container.
func (e *Engine) Remove(ctx context.Context, id string) error {
	if err := e.cli.ContainerRemove(ctx, id, container.RemoveOptions{Force: true}); err != nil {
		return forgehosterr.Wrap(forgehosterr.CodeRuntimeError, err)
	}
	return nil
}

// Inspect returns the engine's current view of a container.
func (e *Engine) Inspect(ctx context.Context, id string) (container.InspectResponse, error) {
	insp, err := e.cli.ContainerInspect(ctx, id)
	if err != nil {
		return container.InspectResponse{}, forgehosterr.Wrap(forgehosterr.CodeNotFound, err)
	}
	return insp, nil
}

// Logs returns the last `tail` lines of combined stdout/stderr.
func (e *Engine) Logs(ctx context.Context, id string, tail int) ([]byte, error) {
	rc, err := e.cli.ContainerLogs(ctx, id, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Tail:       fmt.Sprintf("%d", tail),
	})
	if err != nil {
		return nil, forgehosterr.Wrap(forgehosterr.CodeRuntimeError, err)
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// List returns every container whose name carries the given prefix,
// running or not, for boot-time adoption/reconciliation.
func (e *Engine) List(ctx context.Context, prefix string) ([]container.Summary, error) {
	all, err := e.cli.ContainerList(ctx, container.ListOptions{All: true})
	if err != nil {
		return nil, forgehosterr.Wrap(forgehosterr.CodeEngineUnavailable, err)
	}
	var out []container.Summary
	for _, c := range all {
		for _, n := range c.Names {
			if strings.HasPrefix(strings.TrimPrefix(n, "/"), prefix) {
				out = append(out, c)
				break
			}
		}
	}
	return out, nil
}
