// Package config loads forgehostd's configuration: a YAML file overlaid
// with the environment variables spec.md §6 recognizes (env wins),
// following the teacher's layered load→defaults→validate pattern
// (internal/config/config.go, internal/config/loader.go).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ContainerConfig configures the Container Runtime Adapter's naming and
// engine reachability.
type ContainerConfig struct {
	Prefix        string `yaml:"prefix"`
	VolumePrefix  string `yaml:"volumePrefix"`
	NetworkName   string `yaml:"networkName"`
	DockerHost    string `yaml:"dockerHost"`
	DockerSocket  string `yaml:"dockerSocket"`
}

// PortRangeConfig bounds the Port Allocator's free-list.
type PortRangeConfig struct {
	Start int `yaml:"start"`
	End   int `yaml:"end"`
}

// InfraConfig carries the host's own infrastructure addresses, composed
// into a container hook's environment ahead of manifest defaults and user
// overrides (SPEC_FULL.md C.1).
type InfraConfig struct {
	RedisURL    string `yaml:"redisUrl"`
	DatabaseURL string `yaml:"databaseUrl"`
	VectorDBURL string `yaml:"vectorDbUrl"`
}

// PersistenceConfig selects and configures the Persistence Port backend.
type PersistenceConfig struct {
	Driver string `yaml:"driver"` // "memory" or "postgres"
	DSN    string `yaml:"dsn"`
}

// ProviderConfig is one LLM provider's base URL/credential configuration.
type ProviderConfig struct {
	BaseURL string `yaml:"baseUrl"`
	APIKey  string `yaml:"apiKey"`
}

// LLMConfig aggregates every configured provider by name.
type LLMConfig struct {
	Providers map[string]ProviderConfig `yaml:"providers"`
}

// ServerConfig is owned by the external HTTP layer but still configured
// here (spec.md explicitly treats the HTTP framework as an out-of-scope
// collaborator; forgehostd still needs to know what address to hand it).
type ServerConfig struct {
	ListenAddr string `yaml:"listenAddr"`
}

// ReconcileConfig configures the optional periodic re-reconciliation sweep
// (SPEC_FULL.md B, robfig/cron/v3).
type ReconcileConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Schedule string `yaml:"schedule"`
}

// GatewayConfig configures the Gateway Runtime Adapter's baseUrl validation.
// AllowedPrivateHosts lets an operator install a gateway-runtime hook whose
// baseUrl names a sidecar or internal service (e.g. a container on the same
// compose network) without disabling SSRF protection for every other host.
type GatewayConfig struct {
	AllowedPrivateHosts []string `yaml:"allowedPrivateHosts"`
}

// Config is forgehostd's full, validated configuration.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Container   ContainerConfig   `yaml:"container"`
	PortRange   PortRangeConfig   `yaml:"portRange"`
	Infra       InfraConfig       `yaml:"infra"`
	Persistence PersistenceConfig `yaml:"persistence"`
	LLM         LLMConfig         `yaml:"llm"`
	Reconcile   ReconcileConfig   `yaml:"reconcile"`
	Gateway     GatewayConfig     `yaml:"gateway"`
}

// ValidationError collects every issue found while validating a Config, so
// callers see all problems at once rather than one-at-a-time.
type ValidationError struct {
	Issues []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid config: %s", strings.Join(e.Issues, "; "))
}

// Load reads path as YAML, applies the spec.md §6 environment overlay (env
// wins), fills defaults for anything still unset, and validates the result.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config file: %w", err)
			}
		} else {
			expanded := os.ExpandEnv(string(data))
			dec := yaml.NewDecoder(strings.NewReader(expanded))
			dec.KnownFields(true)
			if err := dec.Decode(cfg); err != nil {
				return nil, fmt.Errorf("parse config file: %w", err)
			}
		}
	}

	applyEnvOverrides(cfg)
	applyDefaults(cfg)

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides applies exactly the environment variables spec.md §6
// names, on top of whatever the YAML file set (env wins).
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("PLUGIN_PORT_RANGE_START"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.PortRange.Start = n
		}
	}
	if v := os.Getenv("PLUGIN_PORT_RANGE_END"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.PortRange.End = n
		}
	}
	if v := os.Getenv("CONTAINER_PREFIX"); v != "" {
		cfg.Container.Prefix = v
	}
	if v := os.Getenv("VOLUME_PREFIX"); v != "" {
		cfg.Container.VolumePrefix = v
	}
	if v := os.Getenv("NETWORK_NAME"); v != "" {
		cfg.Container.NetworkName = v
	}
	if v := os.Getenv("DOCKER_HOST"); v != "" {
		cfg.Container.DockerHost = v
	}
	if v := os.Getenv("DOCKER_SOCKET"); v != "" {
		cfg.Container.DockerSocket = v
	}
	if v := os.Getenv("GATEWAY_ALLOWED_PRIVATE_HOSTS"); v != "" {
		cfg.Gateway.AllowedPrivateHosts = strings.Split(v, ",")
	}

	if cfg.LLM.Providers == nil {
		cfg.LLM.Providers = make(map[string]ProviderConfig)
	}
	overrideProvider(cfg.LLM.Providers, "ollama", "OLLAMA_URL", "")
	overrideProvider(cfg.LLM.Providers, "lmstudio", "LMSTUDIO_URL", "")
	overrideProvider(cfg.LLM.Providers, "openai", "OPENAI_BASE_URL", "OPENAI_API_KEY")
	overrideProvider(cfg.LLM.Providers, "anthropic", "", "ANTHROPIC_API_KEY")
	overrideProvider(cfg.LLM.Providers, "azure", "AZURE_OPENAI_ENDPOINT", "AZURE_OPENAI_API_KEY")
}

func overrideProvider(providers map[string]ProviderConfig, name, baseURLEnv, apiKeyEnv string) {
	p := providers[name]
	if baseURLEnv != "" {
		if v := os.Getenv(baseURLEnv); v != "" {
			p.BaseURL = v
		}
	}
	if apiKeyEnv != "" {
		if v := os.Getenv(apiKeyEnv); v != "" {
			p.APIKey = v
		}
	}
	providers[name] = p
}

func applyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = ":8090"
	}
	if cfg.Container.Prefix == "" {
		cfg.Container.Prefix = "forgehook-"
	}
	if cfg.Container.VolumePrefix == "" {
		cfg.Container.VolumePrefix = "forgehook-vol-"
	}
	if cfg.Container.NetworkName == "" {
		cfg.Container.NetworkName = "forgehook-net"
	}
	if cfg.PortRange.Start == 0 {
		cfg.PortRange.Start = 20000
	}
	if cfg.PortRange.End == 0 {
		cfg.PortRange.End = 21000
	}
	if cfg.Persistence.Driver == "" {
		cfg.Persistence.Driver = "memory"
	}
	if cfg.Reconcile.Schedule == "" {
		cfg.Reconcile.Schedule = "@every 5m"
	}
}

func validate(cfg *Config) error {
	var issues []string
	if cfg.PortRange.Start <= 0 || cfg.PortRange.End <= 0 {
		issues = append(issues, "portRange.start and portRange.end must be positive")
	}
	if cfg.PortRange.Start > cfg.PortRange.End {
		issues = append(issues, "portRange.start must be <= portRange.end")
	}
	switch cfg.Persistence.Driver {
	case "memory":
	case "postgres":
		if cfg.Persistence.DSN == "" {
			issues = append(issues, "persistence.dsn is required when persistence.driver is postgres")
		}
	default:
		issues = append(issues, fmt.Sprintf("unknown persistence.driver %q", cfg.Persistence.Driver))
	}
	if len(issues) > 0 {
		return &ValidationError{Issues: issues}
	}
	return nil
}
