package embedded

import (
	"context"
	"testing"

	"github.com/forgehook/forgehostd/internal/runtime"
	"github.com/forgehook/forgehostd/pkg/model"
)

func echoModule() Module {
	return Module{
		"forecast": func(ctx context.Context, input map[string]any) (map[string]any, error) {
			return map[string]any{"echo": input}, nil
		},
	}
}

func TestAdapter_InstallAndInvoke(t *testing.T) {
	a := New(Registry{"echo-module": echoModule()})

	manifest := model.Manifest{ID: "echo-hook", Runtime: model.RuntimeEmbedded, ModuleCode: "echo-module"}
	instance, err := a.Install(context.Background(), runtime.InstallSpec{Manifest: manifest})
	if err != nil {
		t.Fatalf("Install() error = %v", err)
	}
	if !instance.ModuleLoaded {
		t.Fatal("Install() did not mark ModuleLoaded")
	}

	result, err := a.Invoke(context.Background(), &instance, "get_forecast", []byte(`{"city":"nyc"}`))
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	if result.StatusCode != 200 {
		t.Errorf("Invoke() status = %d, want 200", result.StatusCode)
	}
}

func TestAdapter_Invoke_UnknownExport(t *testing.T) {
	a := New(Registry{"echo-module": echoModule()})
	manifest := model.Manifest{ID: "echo-hook", ModuleCode: "echo-module"}
	instance, err := a.Install(context.Background(), runtime.InstallSpec{Manifest: manifest})
	if err != nil {
		t.Fatalf("Install() error = %v", err)
	}

	result, err := a.Invoke(context.Background(), &instance, "get_missing", nil)
	if err != nil {
		t.Fatalf("Invoke() unexpected error = %v", err)
	}
	if result.StatusCode != 404 {
		t.Errorf("Invoke() status = %d, want 404 for unknown export", result.StatusCode)
	}
}

func TestAdapter_Install_RequiresModuleCode(t *testing.T) {
	a := New(Registry{})
	_, err := a.Install(context.Background(), runtime.InstallSpec{Manifest: model.Manifest{ID: "x"}})
	if err == nil {
		t.Fatal("Install() expected error for missing moduleCode")
	}
}

func TestAdapter_CheckHealth(t *testing.T) {
	a := New(Registry{"echo-module": echoModule()})
	manifest := model.Manifest{ID: "echo-hook", ModuleCode: "echo-module"}
	instance, err := a.Install(context.Background(), runtime.InstallSpec{Manifest: manifest})
	if err != nil {
		t.Fatalf("Install() error = %v", err)
	}

	health, err := a.CheckHealth(context.Background(), &instance)
	if err != nil {
		t.Fatalf("CheckHealth() error = %v", err)
	}
	if health.Status != model.HealthHealthy {
		t.Errorf("CheckHealth() status = %v, want healthy", health.Status)
	}

	if err := a.Remove(context.Background(), &instance); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	health, err = a.CheckHealth(context.Background(), &instance)
	if err != nil {
		t.Fatalf("CheckHealth() after Remove error = %v", err)
	}
	if health.Status != model.HealthUnhealthy {
		t.Errorf("CheckHealth() after Remove status = %v, want unhealthy", health.Status)
	}
}
