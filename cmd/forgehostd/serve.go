package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/forgehook/forgehostd/internal/config"
)

// buildServeCmd creates the "serve" command: load config, wire every
// service, reconcile against the running container engine, then block
// until an interrupt/term signal asks for graceful shutdown. Grounded on
// the teacher's cmd/nexus handlers_serve.go runServe (buildServeCmd +
// signal.NotifyContext + errCh select + bounded shutdown grace period).
func buildServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the ForgeHook host",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), resolveConfigPath(configPath))
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	return cmd
}

func runServe(parent context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx, cfg)
	if err != nil {
		return fmt.Errorf("build app: %w", err)
	}
	defer func() {
		if cerr := a.Close(); cerr != nil {
			a.logger.Error(context.Background(), "close failed", "error", cerr)
		}
	}()

	a.logger.Info(ctx, "forgehostd started",
		"persistence", cfg.Persistence.Driver,
		"containerRuntime", a.containerEng != nil,
		"portRange", []int{cfg.PortRange.Start, cfg.PortRange.End},
	)

	<-ctx.Done()
	a.logger.Info(context.Background(), "shutting down")
	return nil
}
