package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/forgehook/forgehostd/internal/runtime"
	"github.com/forgehook/forgehostd/pkg/model"
)

func TestAdapter_Install_RejectsImage(t *testing.T) {
	a := New()
	_, err := a.Install(context.Background(), runtime.InstallSpec{
		Manifest: model.Manifest{ID: "x", Image: &model.Image{Repository: "x"}},
	})
	if err == nil {
		t.Fatal("Install() expected error when image is set")
	}
}

func TestAdapter_Install_RejectsPrivateBaseURL(t *testing.T) {
	a := New()
	_, err := a.Install(context.Background(), runtime.InstallSpec{
		Manifest: model.Manifest{ID: "x", Gateway: &model.Gateway{BaseURL: "http://localhost:9999"}},
	})
	if err == nil {
		t.Fatal("Install() expected SSRF rejection for localhost baseUrl")
	}
}

func TestAdapter_Invoke_ProxiesVerbatim(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/forecast" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"temp":72}`))
	}))
	defer srv.Close()

	a := New()
	instance := &model.HookInstance{
		HookID:  "weather",
		BaseURL: srv.URL,
		Manifest: model.Manifest{
			Endpoints: []model.Endpoint{{Method: model.MethodGet, Path: "/forecast"}},
		},
	}

	result, err := a.Invoke(context.Background(), instance, "get_forecast", nil)
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	if result.StatusCode != 200 {
		t.Errorf("Invoke() status = %d, want 200", result.StatusCode)
	}
}

func TestAdapter_CheckHealth_AlwaysUnknown(t *testing.T) {
	a := New()
	health, err := a.CheckHealth(context.Background(), &model.HookInstance{})
	if err != nil {
		t.Fatalf("CheckHealth() error = %v", err)
	}
	if health.Status != model.HealthUnknown {
		t.Errorf("CheckHealth() = %v, want unknown", health.Status)
	}
}
