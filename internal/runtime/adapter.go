// Package runtime defines the capability interface the Hook Lifecycle
// Engine dispatches through, generalizing the container/embedded/gateway
// branches of spec.md §4 into one polymorphic surface (spec.md §9: "becomes
// a capability interface").
package runtime

import (
	"context"

	"github.com/forgehook/forgehostd/pkg/model"
)

// InstallSpec carries everything an adapter needs to bring up one instance.
type InstallSpec struct {
	Manifest    model.Manifest
	Config      map[string]any
	Environment map[string]string
	HostPort    int // container only; 0 otherwise
}

// InvokeResult is the adapter-neutral result of dispatching one endpoint
// call, regardless of which runtime served it.
type InvokeResult struct {
	StatusCode int
	Body       []byte
}

// HealthResult is what CheckHealth reports; adapters that cannot probe
// liveness (gateway) return Unknown.
type HealthResult struct {
	Status model.HealthStatus
	Detail map[string]any
}

// Adapter is implemented once per runtime kind (container, embedded,
// gateway). The Hook Lifecycle Engine holds a `runtime -> Adapter` map and
// dispatches to it once per operation — it never branches on runtime type
// itself.
type Adapter interface {
	// Install brings up a new instance and returns adapter-owned identity
	// fields (containerId/hostPort for container, nothing for the others —
	// the engine merges whatever is returned into the HookInstance).
	Install(ctx context.Context, spec InstallSpec) (model.HookInstance, error)

	Start(ctx context.Context, instance *model.HookInstance) error
	Stop(ctx context.Context, instance *model.HookInstance) error
	Remove(ctx context.Context, instance *model.HookInstance) error

	// Invoke dispatches one endpoint call. endpointKey is the already-split
	// action (method_path, underscored) the Tool Schema Builder produces;
	// the adapter is responsible for turning it back into an HTTP call or
	// in-process function call as appropriate.
	Invoke(ctx context.Context, instance *model.HookInstance, endpointKey string, body []byte) (InvokeResult, error)

	Logs(ctx context.Context, instance *model.HookInstance, tail int) ([]byte, error)
	CheckHealth(ctx context.Context, instance *model.HookInstance) (HealthResult, error)
}

// Updatable is an optional capability implemented only by the container
// adapter: Start's `pullLatest` path (spec.md §4.1) pulls the instance's
// configured image tag and, if its registry digest differs from the image
// already running, swaps the container in place under the same name and
// host port. Adapters that don't implement it (embedded, gateway) are
// simply started without this extra step.
type Updatable interface {
	PullLatestAndRecreate(ctx context.Context, instance *model.HookInstance) error
}
