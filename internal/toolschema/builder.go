// Package toolschema implements the Tool Schema Builder (G): projecting a
// set of running hooks' endpoints into the LLM-facing model.Tool shape
// (spec.md §4.4), and the reversible tool-name encoding the Agent
// Orchestrator (I) uses to route a tool call back to a hook instance and
// action.
package toolschema

import (
	"log/slog"
	"strings"

	"github.com/forgehook/forgehostd/internal/runtime"
	"github.com/forgehook/forgehostd/pkg/model"
)

// InstanceLookup resolves a hookId to its current HookInstance, the same
// shape the Hook Lifecycle Engine owns. Only running instances contribute
// tools.
type InstanceLookup func(hookID string) (*model.HookInstance, bool)

// Build enumerates every endpoint of each running hook named in hookIDs
// into one model.Tool per endpoint. Unknown or not-running hook ids are
// silently dropped (and logged), per spec.md §4.4.
func Build(hookIDs []string, lookup InstanceLookup) []model.Tool {
	var tools []model.Tool
	for _, hookID := range hookIDs {
		instance, ok := lookup(hookID)
		if !ok {
			slog.Debug("toolschema: dropping unknown hook", "hookId", hookID)
			continue
		}
		if instance.Status != model.StatusRunning {
			slog.Debug("toolschema: dropping non-running hook", "hookId", hookID, "status", instance.Status)
			continue
		}
		for _, ep := range instance.Manifest.Endpoints {
			tools = append(tools, buildTool(instance.Manifest, ep))
		}
	}
	return tools
}

// EncodeToolName produces `{hookId}__{method.lower()}_{path}` per spec.md
// §4.4, reusing internal/runtime's endpoint-key half of the encoding so
// both the tool name and the Invoke endpointKey agree on the same format.
func EncodeToolName(hookID string, ep model.Endpoint) string {
	return hookID + "__" + runtime.EncodeEndpointKey(ep.Method, ep.Path)
}

func buildTool(manifest model.Manifest, ep model.Endpoint) model.Tool {
	desc := ep.Description
	if desc == "" {
		desc = ep.Path
	}

	return model.Tool{
		Name:        EncodeToolName(manifest.ID, ep),
		Description: manifest.Name + ": " + desc,
		Parameters:  buildParameters(ep),
	}
}

func buildParameters(ep model.Endpoint) map[string]any {
	if props, ok := ep.RequestBody["properties"]; ok {
		params := map[string]any{"type": "object", "properties": props}
		if required, ok := ep.RequestBody["required"]; ok {
			if reqList, ok := required.([]any); ok && len(reqList) > 0 {
				params["required"] = required
			} else if reqList, ok := required.([]string); ok && len(reqList) > 0 {
				params["required"] = required
			}
		}
		return params
	}
	if ep.Method != model.MethodGet {
		return map[string]any{
			"type":       "object",
			"properties": map[string]any{"input": map[string]any{"type": "object"}},
		}
	}
	return map[string]any{"type": "object", "properties": map[string]any{}}
}

// DecodeToolName splits toolName at the first "__" into (hookId, action).
// Implementations must not split beyond the first separator, since a
// manifest's endpoint path may itself contain underscores.
func DecodeToolName(toolName string) (hookID, action string, ok bool) {
	idx := strings.Index(toolName, "__")
	if idx < 0 {
		return "", "", false
	}
	return toolName[:idx], toolName[idx+2:], true
}
