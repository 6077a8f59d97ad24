package container

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"

	"github.com/forgehook/forgehostd/internal/forgehosterr"
	"github.com/forgehook/forgehostd/internal/runtime"
	"github.com/forgehook/forgehostd/pkg/model"
)

var httpClient = &http.Client{Timeout: 30 * time.Second}

// dispatchHTTP resolves endpointKey against manifest (the literal
// method/path spec.md §4.1 Invoke requires, recovered via
// internal/runtime.ResolveEndpoint rather than by reparsing the
// underscore-joined key) and issues the call against baseURL+path.
func dispatchHTTP(ctx context.Context, baseURL string, manifest model.Manifest, endpointKey string, body []byte) (runtime.InvokeResult, error) {
	ep, ok := runtime.ResolveEndpoint(manifest, endpointKey)
	if !ok {
		return runtime.InvokeResult{}, forgehosterr.Newf(forgehosterr.CodeNotFound, "unknown endpoint %q", endpointKey)
	}

	req, err := http.NewRequestWithContext(ctx, string(ep.Method), baseURL+ep.Path, bytes.NewReader(body))
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
