package runtime

import (
	"strings"

	"github.com/forgehook/forgehostd/pkg/model"
)

// EncodeEndpointKey produces the action half of a tool name — everything
// after the hookId__ prefix the Tool Schema Builder (G) emits — so the
// container and gateway adapters can recover a manifest endpoint's
// method+path from the endpointKey Invoke receives without depending on G
// itself. Mirrors spec.md §4.4's
// "{method.lower()}_{path with '/' -> '_', leading/trailing '_' stripped}".
func EncodeEndpointKey(method model.Method, path string) string {
	slug := strings.Trim(strings.ReplaceAll(path, "/", "_"), "_")
	return strings.ToLower(string(method)) + "_" + slug
}

// ResolveEndpoint finds the manifest endpoint whose encoded key equals
// endpointKey, so an adapter can dispatch with the endpoint's literal
// method and path rather than attempting to reverse the underscore
// encoding (which is lossy when a path segment itself contains
// underscores).
func ResolveEndpoint(m model.Manifest, endpointKey string) (model.Endpoint, bool) {
	for _, ep := range m.Endpoints {
		if EncodeEndpointKey(ep.Method, ep.Path) == endpointKey {
			return ep, true
		}
	}
	return model.Endpoint{}, false
}
