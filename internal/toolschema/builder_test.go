package toolschema

import (
	"testing"

	"github.com/forgehook/forgehostd/pkg/model"
)

func lookupFixture(instances map[string]*model.HookInstance) InstanceLookup {
	return func(hookID string) (*model.HookInstance, bool) {
		inst, ok := instances[hookID]
		return inst, ok
	}
}

func TestBuild_DropsNotRunningAndUnknown(t *testing.T) {
	running := &model.HookInstance{
		HookID: "weather",
		Status: model.StatusRunning,
		Manifest: model.Manifest{
			ID:   "weather",
			Name: "Weather",
			Endpoints: []model.Endpoint{
				{Method: model.MethodGet, Path: "/forecast", Description: "Get forecast"},
			},
		},
	}
	stopped := &model.HookInstance{
		HookID:   "stale",
		Status:   model.StatusStopped,
		Manifest: model.Manifest{ID: "stale", Name: "Stale"},
	}
	lookup := lookupFixture(map[string]*model.HookInstance{"weather": running, "stale": stopped})

	tools := Build([]string{"weather", "stale", "missing"}, lookup)
	if len(tools) != 1 {
		t.Fatalf("Build() returned %d tools, want 1", len(tools))
	}
	if tools[0].Name != "weather__get_forecast" {
		t.Errorf("Build() tool name = %q, want weather__get_forecast", tools[0].Name)
	}
	if tools[0].Description != "Weather: Get forecast" {
		t.Errorf("Build() description = %q", tools[0].Description)
	}
}

func TestBuild_ParametersFromRequestBody(t *testing.T) {
	inst := &model.HookInstance{
		HookID: "inventory",
		Status: model.StatusRunning,
		Manifest: model.Manifest{
			ID:   "inventory",
			Name: "Inventory",
			Endpoints: []model.Endpoint{
				{
					Method: model.MethodPost,
					Path:   "/items",
					RequestBody: map[string]any{
						"properties": map[string]any{"name": map[string]any{"type": "string"}},
						"required":   []any{"name"},
					},
				},
			},
		},
	}
	tools := Build([]string{"inventory"}, lookupFixture(map[string]*model.HookInstance{"inventory": inst}))
	if len(tools) != 1 {
		t.Fatalf("Build() returned %d tools, want 1", len(tools))
	}
	params := tools[0].Parameters
	if _, ok := params["required"]; !ok {
		t.Errorf("Build() parameters missing required: %+v", params)
	}
}

func TestBuild_NonGETWithoutRequestBodyGetsInputProperty(t *testing.T) {
	inst := &model.HookInstance{
		HookID: "jobs",
		Status: model.StatusRunning,
		Manifest: model.Manifest{
			ID:   "jobs",
			Name: "Jobs",
			Endpoints: []model.Endpoint{
				{Method: model.MethodPost, Path: "/run"},
			},
		},
	}
	tools := Build([]string{"jobs"}, lookupFixture(map[string]*model.HookInstance{"jobs": inst}))
	props, ok := tools[0].Parameters["properties"].(map[string]any)
	if !ok {
		t.Fatalf("Parameters.properties not a map: %+v", tools[0].Parameters)
	}
	if _, ok := props["input"]; !ok {
		t.Errorf("expected an 'input' property for non-GET without requestBody, got %+v", props)
	}
}

func TestDecodeToolName_SplitsAtFirstSeparator(t *testing.T) {
	hookID, action, ok := DecodeToolName("weather__get_forecast_hourly")
	if !ok {
		t.Fatal("DecodeToolName() returned ok=false")
	}
	if hookID != "weather" || action != "get_forecast_hourly" {
		t.Errorf("DecodeToolName() = (%q, %q), want (weather, get_forecast_hourly)", hookID, action)
	}
}

func TestDecodeToolName_NoSeparator(t *testing.T) {
	if _, _, ok := DecodeToolName("noseparator"); ok {
		t.Error("DecodeToolName() expected ok=false for missing separator")
	}
}
