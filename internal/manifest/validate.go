// Package manifest validates a Manifest before the Hook Lifecycle Engine
// accepts an Install, per SPEC_FULL.md C.5: a malformed endpoint
// requestBody schema fails Install with the validation error code instead
// of surfacing only when an agent later tries to call the tool. Grounded
// on the teacher's pkg/pluginsdk/validation.go compile-and-cache pattern
// for github.com/santhosh-tekuri/jsonschema/v5.
package manifest

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/forgehook/forgehostd/internal/forgehosterr"
	"github.com/forgehook/forgehostd/pkg/model"
)

var schemaCache sync.Map

func compileSchema(fragment map[string]any) (*jsonschema.Schema, error) {
	encoded, err := json.Marshal(fragment)
	if err != nil {
		return nil, err
	}
	key := string(encoded)
	if cached, ok := schemaCache.Load(key); ok {
		if compiled, ok := cached.(*jsonschema.Schema); ok {
			return compiled, nil
		}
	}

	compiled, err := jsonschema.CompileString("endpoint.requestBody.json", key)
	if err != nil {
		return nil, err
	}
	schemaCache.Store(key, compiled)
	return compiled, nil
}

// Validate checks structural requirements of a Manifest and, for every
// endpoint carrying a requestBody fragment, that the fragment itself
// compiles as a JSON Schema.
func Validate(m model.Manifest) error {
	if m.ID == "" {
		return forgehosterr.New(forgehosterr.CodeValidation, "manifest.id is required")
	}
	if m.Name == "" {
		return forgehosterr.New(forgehosterr.CodeValidation, "manifest.name is required")
	}
	if m.Version == "" {
		return forgehosterr.New(forgehosterr.CodeValidation, "manifest.version is required")
	}

	switch m.Runtime {
	case model.RuntimeContainer:
		if m.Image == nil || m.Image.Repository == "" {
			return forgehosterr.New(forgehosterr.CodeValidation, "container runtime requires image.repository")
		}
	case model.RuntimeEmbedded:
		if m.ModuleCode == "" {
			return forgehosterr.New(forgehosterr.CodeValidation, "embedded runtime requires moduleCode")
		}
	case model.RuntimeGateway:
		if m.Gateway == nil || m.Gateway.BaseURL == "" {
			return forgehosterr.New(forgehosterr.CodeValidation, "gateway runtime requires gateway.baseUrl")
		}
	default:
		return forgehosterr.Newf(forgehosterr.CodeValidation, "unknown runtime %q", m.Runtime)
	}

	for _, ep := range m.Endpoints {
		if len(ep.RequestBody) == 0 {
			continue
		}
		if _, err := compileSchema(ep.RequestBody); err != nil {
			return forgehosterr.Wrap(forgehosterr.CodeValidation, fmt.Errorf("endpoint %s %s requestBody: %w", ep.Method, ep.Path, err))
		}
	}
	return nil
}
