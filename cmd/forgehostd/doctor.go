package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/forgehook/forgehostd/internal/config"
	"github.com/forgehook/forgehostd/internal/store"
)

// buildDoctorCmd creates the "doctor" command: validate configuration and
// report connectivity to the store and container engine, grounded on the
// teacher's cmd/nexus commands_doctor.go/handlers_doctor.go shape
// (load config, run independent checks, print a plain report) minus the
// config-migration/workspace-repair machinery this domain has no
// equivalent of.
func buildDoctorCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Validate configuration and check connectivity",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDoctor(cmd, resolveConfigPath(configPath))
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	return cmd
}

func runDoctor(cmd *cobra.Command, configPath string) error {
	out := cmd.OutOrStdout()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	fmt.Fprintln(out, "Config: OK")
	fmt.Fprintf(out, "  persistence driver: %s\n", cfg.Persistence.Driver)
	fmt.Fprintf(out, "  port range:         %d-%d\n", cfg.PortRange.Start, cfg.PortRange.End)
	fmt.Fprintf(out, "  container prefix:   %s\n", cfg.Container.Prefix)

	switch cfg.Persistence.Driver {
	case "postgres":
		st, err := store.NewPostgresFromDSN(cfg.Persistence.DSN, store.DefaultPostgresConfig())
		if err != nil {
			fmt.Fprintf(out, "Persistence: FAILED (%s)\n", err)
		} else {
			fmt.Fprintln(out, "Persistence: OK (postgres reachable)")
			_ = st.Close()
		}
	default:
		fmt.Fprintln(out, "Persistence: OK (in-memory store, nothing to reach)")
	}

	dockerCli, err := newDockerClient(cfg)
	if err != nil {
		fmt.Fprintf(out, "Container runtime: unavailable (%s)\n", err)
	} else {
		ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
		defer cancel()
		if _, err := dockerCli.Ping(ctx); err != nil {
			fmt.Fprintf(out, "Container runtime: unreachable (%s)\n", err)
		} else {
			fmt.Fprintln(out, "Container runtime: OK")
		}
		_ = dockerCli.Close()
	}

	if len(cfg.LLM.Providers) == 0 {
		fmt.Fprintln(out, "LLM providers: none configured (agent runs will fail)")
	} else {
		fmt.Fprintln(out, "LLM providers configured:")
		for name, p := range cfg.LLM.Providers {
			hasCreds := p.APIKey != "" || p.BaseURL != ""
			status := "missing credentials/baseUrl"
			if hasCreds {
				status = "configured"
			}
			fmt.Fprintf(out, "  - %s: %s\n", name, status)
		}
	}

	return nil
}
