package runtime

import (
	"testing"

	"github.com/forgehook/forgehostd/pkg/model"
)

func TestEncodeEndpointKey(t *testing.T) {
	cases := []struct {
		method model.Method
		path   string
		want   string
	}{
		{model.MethodGet, "/forecast", "get_forecast"},
		{model.MethodPost, "/items/create", "post_items_create"},
		{model.MethodGet, "/", "get_"},
	}
	for _, c := range cases {
		got := EncodeEndpointKey(c.method, c.path)
		if got != c.want {
			t.Errorf("EncodeEndpointKey(%s, %q) = %q, want %q", c.method, c.path, got, c.want)
		}
	}
}

func TestResolveEndpoint(t *testing.T) {
	m := model.Manifest{
		Endpoints: []model.Endpoint{
			{Method: model.MethodGet, Path: "/forecast"},
			{Method: model.MethodPost, Path: "/items/create"},
		},
	}

	ep, ok := ResolveEndpoint(m, "post_items_create")
	if !ok {
		t.Fatalf("ResolveEndpoint() did not find post_items_create")
	}
	if ep.Path != "/items/create" || ep.Method != model.MethodPost {
		t.Errorf("ResolveEndpoint() = %+v, want POST /items/create", ep)
	}

	if _, ok := ResolveEndpoint(m, "delete_nonexistent"); ok {
		t.Errorf("ResolveEndpoint() unexpectedly matched an absent endpoint")
	}
}
