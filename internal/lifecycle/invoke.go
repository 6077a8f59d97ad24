package lifecycle

import (
	"context"
	"time"

	"github.com/forgehook/forgehostd/internal/backoff"
	"github.com/forgehook/forgehostd/internal/forgehosterr"
	"github.com/forgehook/forgehostd/internal/runtime"
	"github.com/forgehook/forgehostd/pkg/model"
)

var invokeRetryPolicy = backoff.InvokeRetryPolicy()

// Invoke dispatches one endpoint call against instanceID's running adapter,
// retrying transient failures up to retries additional times with
// exponential backoff. retries=0 means a single attempt, no retry.
func (e *Engine) Invoke(ctx context.Context, instanceID, endpointKey string, body []byte, retries int) (runtime.InvokeResult, error) {
	instance, ok := e.Get(instanceID)
	if !ok {
		return runtime.InvokeResult{}, forgehosterr.Newf(forgehosterr.CodeNotFound, "instance %q not found", instanceID)
	}
	if instance.Status != model.StatusRunning {
		return runtime.InvokeResult{}, forgehosterr.Newf(forgehosterr.CodeConflict, "instance %q is not running (status=%s)", instanceID, instance.Status)
	}
	adapter, err := e.adapterFor(instance.Runtime)
	if err != nil {
		return runtime.InvokeResult{}, err
	}

	start := time.Now()
	result, retryErr := backoff.RetryWithBackoff(ctx, invokeRetryPolicy, retries+1, func(attempt int) (runtime.InvokeResult, error) {
		return adapter.Invoke(ctx, instance, endpointKey, body)
	})
	duration := time.Since(start).Seconds()

	status := "success"
	if retryErr != nil {
		status = "error"
	}
	e.metrics.RecordToolInvocation(instanceID+"__"+endpointKey, status, duration)

	if retryErr != nil {
		if result.LastError != nil {
			return runtime.InvokeResult{}, result.LastError
		}
		return runtime.InvokeResult{}, forgehosterr.Wrap(forgehosterr.CodeRuntimeError, retryErr)
	}
	return result.Value, nil
}
