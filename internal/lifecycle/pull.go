package lifecycle

import (
	"context"

	"github.com/forgehook/forgehostd/internal/runtime"
	"github.com/forgehook/forgehostd/pkg/model"
)

// pullLatestAndRecreate implements Start's `pullLatest` option for runtimes
// whose adapter supports it (spec.md §4.1). Adapters that don't implement
// runtime.Updatable (embedded, gateway) are left untouched — pullLatest is
// a container-only concept.
func (e *Engine) pullLatestAndRecreate(ctx context.Context, instance *model.HookInstance) error {
	adapter, err := e.adapterFor(instance.Runtime)
	if err != nil {
		return err
	}
	updatable, ok := adapter.(runtime.Updatable)
	if !ok {
		return nil
	}
	return updatable.PullLatestAndRecreate(ctx, instance)
}
