// Package main provides the CLI entry point for forgehostd, the ForgeHook
// host process: a Hook Lifecycle Engine (install/start/stop/update/
// rollback of container, embedded, and gateway runtime hooks) plus an
// Agent Orchestrator that runs ReAct-style LLM tool-calling loops over
// whichever hooks are currently running.
//
// # Basic Usage
//
// Start the host:
//
//	forgehostd serve --config forgehostd.yaml
//
// Manage database migrations:
//
//	forgehostd migrate up
//	forgehostd migrate status
//
// Validate configuration and connectivity:
//
//	forgehostd doctor
//
// # Environment Variables
//
// spec.md §6 names the environment overlay applied on top of the YAML
// config file (env wins): PLUGIN_PORT_RANGE_START, PLUGIN_PORT_RANGE_END,
// CONTAINER_PREFIX, VOLUME_PREFIX, NETWORK_NAME, DOCKER_HOST,
// DOCKER_SOCKET, OLLAMA_URL, LMSTUDIO_URL, OPENAI_BASE_URL,
// OPENAI_API_KEY, ANTHROPIC_API_KEY, AZURE_OPENAI_ENDPOINT,
// AZURE_OPENAI_API_KEY.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// Build metadata, set via -ldflags at release build time:
//
//	go build -ldflags "-X main.version=v1.0.0 -X main.commit=$(git rev-parse HEAD) -X main.date=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	rootCmd := buildRootCmd()
	if err := rootCmd.Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

// buildRootCmd creates the root command with all subcommands attached.
// Separated from main() to facilitate testing.
func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "forgehostd",
		Short: "forgehostd - ForgeHook plugin host",
		Long: `forgehostd installs, runs, and updates ForgeHook hooks (container,
embedded, and gateway runtimes) and orchestrates agent tool-calling loops
over whichever hooks are currently running.`,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		buildServeCmd(),
		buildMigrateCmd(),
		buildDoctorCmd(),
	)

	return rootCmd
}

// resolveConfigPath falls back to the FORGEHOSTD_CONFIG environment
// variable, then to the conventional default path, when path is empty.
func resolveConfigPath(path string) string {
	if path != "" {
		return path
	}
	if v := os.Getenv("FORGEHOSTD_CONFIG"); v != "" {
		return v
	}
	return "forgehostd.yaml"
}
