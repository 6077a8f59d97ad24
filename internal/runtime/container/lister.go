package container

import (
	"context"
	"strings"

	"github.com/forgehook/forgehostd/internal/lifecycle"
)

// Lister adapts Engine.List into lifecycle.ContainerLister, translating
// docker SDK's container.Summary rows into the runtime-neutral shape
// boot-time reconciliation needs.
type Lister struct {
	engine *Engine
}

// NewLister wraps engine for use as a lifecycle.ContainerLister.
func NewLister(engine *Engine) *Lister {
	return &Lister{engine: engine}
}

func (l *Lister) List(ctx context.Context, prefix string) ([]lifecycle.EngineContainer, error) {
	summaries, err := l.engine.List(ctx, prefix)
	if err != nil {
		return nil, err
	}
	out := make([]lifecycle.EngineContainer, 0, len(summaries))
	for _, s := range summaries {
		var name string
		for _, n := range s.Names {
			name = strings.TrimPrefix(n, "/")
			break
		}
		if name == "" {
			continue
		}
		var hostPort int
		for _, p := range s.Ports {
			if p.PublicPort != 0 {
				hostPort = int(p.PublicPort)
				break
			}
		}
		out = append(out, lifecycle.EngineContainer{
			ID:       s.ID,
			Name:     name,
			Running:  s.State == "running",
			HostPort: hostPort,
		})
	}
	return out, nil
}
