// Package gateway implements the Gateway Runtime Adapter (C): spec.md §4.3
// describes it as keeping only the configured baseUrl and proxying
// verbatim. The one piece of behavior this rework adds beyond a bare proxy
// is baseURL validation against the example pack's SSRF-protection package
// (internal/net/ssrf) before every install and every dispatch, since a
// self-hosted control plane proxying to an operator-supplied URL is
// exactly the shape of request forgery the package guards against.
package gateway

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/forgehook/forgehostd/internal/forgehosterr"
	"github.com/forgehook/forgehostd/internal/net/ssrf"
	"github.com/forgehook/forgehostd/internal/runtime"
	"github.com/forgehook/forgehostd/pkg/model"
)

var httpClient = &http.Client{Timeout: 30 * time.Second}

// Adapter implements runtime.Adapter for gateway-runtime hooks, which have
// no engine-managed process at all — CheckHealth and Logs are necessarily
// degraded (spec.md §4.3 gives C no health or log surface of its own).
type Adapter struct {
	allowedPrivateHosts []string
}

// New constructs a gateway Adapter. allowedPrivateHosts lists hostnames an
// operator has explicitly cleared to resolve to a private address (config
// gateway.allowedPrivateHosts) — everything else is held to the normal
// public-only rule.
func New(allowedPrivateHosts []string) *Adapter {
	return &Adapter{allowedPrivateHosts: allowedPrivateHosts}
}

func (a *Adapter) validateBaseURL(baseURL string) error {
	u, err := url.Parse(baseURL)
	if err != nil {
		return forgehosterr.Wrap(forgehosterr.CodeValidation, err)
	}
	if err := ssrf.ValidateGatewayHostname(u.Hostname(), a.allowedPrivateHosts); err != nil {
		return forgehosterr.Wrap(forgehosterr.CodeValidation, err)
	}
	return nil
}

// Install rejects any request carrying imageTarPath/image (spec.md §4.1)
// and validates the gateway's baseUrl is not an internal/private address.
func (a *Adapter) Install(ctx context.Context, spec runtime.InstallSpec) (model.HookInstance, error) {
	if spec.Manifest.Image != nil {
		return model.HookInstance{}, forgehosterr.New(forgehosterr.CodeValidation, "gateway runtime rejects image")
	}
	if spec.Manifest.Gateway == nil || spec.Manifest.Gateway.BaseURL == "" {
		return model.HookInstance{}, forgehosterr.New(forgehosterr.CodeValidation, "gateway runtime requires gateway.baseUrl")
	}
	if err := a.validateBaseURL(spec.Manifest.Gateway.BaseURL); err != nil {
		return model.HookInstance{}, err
	}

	return model.HookInstance{
		HookID:           spec.Manifest.ID,
		Runtime:          model.RuntimeGateway,
		Manifest:         spec.Manifest,
		BaseURL:          spec.Manifest.Gateway.BaseURL,
		InstalledVersion: spec.Manifest.Version,
		Config:           spec.Config,
		Environment:      spec.Environment,
	}, nil
}

// Start is a no-op: there is no process for C to bring up.
func (a *Adapter) Start(ctx context.Context, instance *model.HookInstance) error { return nil }

// Stop is a no-op for the same reason.
func (a *Adapter) Stop(ctx context.Context, instance *model.HookInstance) error { return nil }

// Remove is a no-op: nothing engine-owned to tear down.
func (a *Adapter) Remove(ctx context.Context, instance *model.HookInstance) error { return nil }

// Invoke proxies the request verbatim to baseUrl+path. baseUrl was already
// validated against SSRF rules at Install time.
func (a *Adapter) Invoke(ctx context.Context, instance *model.HookInstance, endpointKey string, body []byte) (runtime.InvokeResult, error) {
	ep, ok := runtime.ResolveEndpoint(instance.Manifest, endpointKey)
	if !ok {
		return runtime.InvokeResult{}, forgehosterr.Newf(forgehosterr.CodeNotFound, "unknown endpoint %q", endpointKey)
	}

	req, err := http.NewRequestWithContext(ctx, string(ep.Method), instance.BaseURL+ep.Path, bytes.NewReader(body))
	if err != nil {
		return runtime.InvokeResult{}, forgehosterr.Wrap(forgehosterr.CodeInternal, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := httpClient.Do(req)
	if err != nil {
		return runtime.InvokeResult{}, forgehosterr.Wrap(forgehosterr.CodeRuntimeError, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return runtime.InvokeResult{}, forgehosterr.Wrap(forgehosterr.CodeRuntimeError, err)
	}

	result := runtime.InvokeResult{StatusCode: resp.StatusCode, Body: respBody}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return result, forgehosterr.Newf(forgehosterr.CodeRuntimeError, "endpoint returned %d: %s", resp.StatusCode, string(respBody))
	}
	return result, nil
}

// Logs has no log surface for an externally-hosted gateway target.
func (a *Adapter) Logs(ctx context.Context, instance *model.HookInstance, tail int) ([]byte, error) {
	return nil, forgehosterr.New(forgehosterr.CodeValidation, "gateway hooks have no log surface")
}

// CheckHealth always reports Unknown: C has no liveness probe of its own
// (spec.md §4.3).
func (a *Adapter) CheckHealth(ctx context.Context, instance *model.HookInstance) (runtime.HealthResult, error) {
	return runtime.HealthResult{Status: model.HealthUnknown}, nil
}
