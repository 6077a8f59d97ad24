package main

import (
	"context"
	"fmt"

	dockerclient "github.com/docker/docker/client"

	"github.com/forgehook/forgehostd/internal/config"
	"github.com/forgehook/forgehostd/internal/lifecycle"
	"github.com/forgehook/forgehostd/internal/llm"
	"github.com/forgehook/forgehostd/internal/llm/providers"
	"github.com/forgehook/forgehostd/internal/observability"
	"github.com/forgehook/forgehostd/internal/orchestrator"
	"github.com/forgehook/forgehostd/internal/ports"
	"github.com/forgehook/forgehostd/internal/progress"
	"github.com/forgehook/forgehostd/internal/reconcile"
	"github.com/forgehook/forgehostd/internal/runtime"
	"github.com/forgehook/forgehostd/internal/runtime/container"
	"github.com/forgehook/forgehostd/internal/runtime/embedded"
	"github.com/forgehook/forgehostd/internal/runtime/gateway"
	"github.com/forgehook/forgehostd/internal/store"
	"github.com/forgehook/forgehostd/internal/toolschema"
	"github.com/forgehook/forgehostd/pkg/model"
)

// app holds every constructed service the serve/doctor commands need,
// wired once from config the way the teacher's gateway.NewManagedServer
// wires its channel/tool/memory layer from a single Config.
type app struct {
	cfg          *config.Config
	store        store.Store
	logger       *observability.Logger
	metrics      *observability.Metrics
	bus          *progress.Bus
	allocator    *ports.Allocator
	lifecycle    *lifecycle.Engine
	orchestrator *orchestrator.Orchestrator
	dockerCli    *dockerclient.Client
	containerEng *container.Engine
	reconciler   *reconcile.Scheduler
}

// buildApp constructs every service forgehostd needs from cfg. The caller
// owns calling close() (via Close) once done.
func buildApp(ctx context.Context, cfg *config.Config) (*app, error) {
	logger := observability.NewLogger(observability.LogConfig{
		Level:  "info",
		Format: "json",
	})
	metrics := observability.NewMetrics()
	bus := progress.NewBus()

	st, err := openStore(cfg)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	usedPorts, err := st.UsedPorts(ctx)
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("load used ports: %w", err)
	}
	allocator := ports.NewAllocator(cfg.PortRange.Start, cfg.PortRange.End, usedPorts)

	adapters := map[model.Runtime]runtime.Adapter{
		model.RuntimeEmbedded: embedded.New(embedded.Registry{}),
		model.RuntimeGateway:  gateway.New(cfg.Gateway.AllowedPrivateHosts),
	}

	var dockerCli *dockerclient.Client
	var containerEng *container.Engine
	dockerCli, err = newDockerClient(cfg)
	if err != nil {
		logger.Warn(ctx, "container runtime unavailable, continuing without it", "error", err)
	} else {
		containerEng = container.NewEngine(dockerCli, cfg.Container.NetworkName, cfg.Container.VolumePrefix)
		adapters[model.RuntimeContainer] = container.New(
			containerEng,
			cfg.Container.Prefix,
			cfg.Container.VolumePrefix,
			cfg.Container.NetworkName,
			container.InfraAddresses{
				RedisURL:    cfg.Infra.RedisURL,
				DatabaseURL: cfg.Infra.DatabaseURL,
				VectorDBURL: cfg.Infra.VectorDBURL,
			},
		)
	}

	engine := lifecycle.New(st, allocator, adapters, bus, metrics, logger)

	if containerEng != nil {
		if err := engine.Reconcile(ctx, container.NewLister(containerEng), cfg.Container.Prefix); err != nil {
			logger.Error(ctx, "boot reconciliation failed", "error", err)
		}
	} else if err := engine.Reconcile(ctx, nil, cfg.Container.Prefix); err != nil {
		logger.Error(ctx, "boot reconciliation failed", "error", err)
	}

	chat := llm.NewCapability()
	registerProviders(chat, cfg.LLM)

	lookup := toolschema.InstanceLookup(func(hookID string) (*model.HookInstance, bool) {
		return engine.GetByHookID(hookID)
	})
	orch := orchestrator.New(chat, engine, lookup, st, metrics, logger)

	var reconciler *reconcile.Scheduler
	if cfg.Reconcile.Enabled && containerEng != nil {
		reconciler, err = reconcile.NewScheduler(cfg.Reconcile.Schedule, func(ctx context.Context) error {
			return engine.Reconcile(ctx, container.NewLister(containerEng), cfg.Container.Prefix)
		}, logger)
		if err != nil {
			logger.Warn(ctx, "periodic reconciliation disabled", "error", err)
			reconciler = nil
		}
	}

	return &app{
		cfg:          cfg,
		store:        st,
		logger:       logger,
		metrics:      metrics,
		bus:          bus,
		allocator:    allocator,
		lifecycle:    engine,
		orchestrator: orch,
		dockerCli:    dockerCli,
		containerEng: containerEng,
		reconciler:   reconciler,
	}, nil
}

func (a *app) Close() error {
	if a.reconciler != nil {
		a.reconciler.Stop()
	}
	if a.dockerCli != nil {
		_ = a.dockerCli.Close()
	}
	return a.store.Close()
}

func openStore(cfg *config.Config) (store.Store, error) {
	switch cfg.Persistence.Driver {
	case "postgres":
		return store.NewPostgresFromDSN(cfg.Persistence.DSN, store.DefaultPostgresConfig())
	default:
		return store.NewMemory(), nil
	}
}

func newDockerClient(cfg *config.Config) (*dockerclient.Client, error) {
	opts := []dockerclient.Opt{
		dockerclient.FromEnv,
		dockerclient.WithAPIVersionNegotiation(),
	}
	if cfg.Container.DockerHost != "" {
		opts = append(opts, dockerclient.WithHost(cfg.Container.DockerHost))
	} else if cfg.Container.DockerSocket != "" {
		opts = append(opts, dockerclient.WithHost("unix://"+cfg.Container.DockerSocket))
	}
	cli, err := dockerclient.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}
	return cli, nil
}

// registerProviders registers every LLM provider cfg configures, by name,
// skipping any whose required credentials are absent rather than failing
// startup — forgehostd should still serve the hooks it can run without a
// configured agent provider.
func registerProviders(chat *llm.Capability, cfg config.LLMConfig) {
	for name, p := range cfg.Providers {
		switch name {
		case "anthropic":
			if p.APIKey == "" {
				continue
			}
			prov, err := providers.NewAnthropicProvider(providers.AnthropicConfig{APIKey: p.APIKey, BaseURL: p.BaseURL})
			if err == nil {
				chat.Register(name, prov)
			}
		case "openai":
			if p.APIKey == "" {
				continue
			}
			chat.Register(name, providers.NewOpenAIProvider(p.APIKey))
		case "azure":
			if p.APIKey == "" || p.BaseURL == "" {
				continue
			}
			prov, err := providers.NewAzureOpenAIProvider(providers.AzureOpenAIConfig{Endpoint: p.BaseURL, APIKey: p.APIKey})
			if err == nil {
				chat.Register(name, prov)
			}
		case "ollama":
			if p.BaseURL == "" {
				continue
			}
			chat.Register(name, providers.NewOllamaProvider(providers.OllamaConfig{BaseURL: p.BaseURL}))
		case "lmstudio":
			if p.BaseURL == "" {
				continue
			}
			chat.Register(name, providers.NewOllamaProvider(providers.OllamaConfig{BaseURL: p.BaseURL}))
		}
	}
}
