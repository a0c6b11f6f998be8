// ABOUTME: Entry point for dexi-gateway, the assistant request orchestration server
// ABOUTME: Builds the cobra command tree and runs it under a signal-aware context

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
     _           _                     _
  __| | _____  _(_)       __ _  __ _| |_ _____      ____ _ _   _
 / _' |/ _ \ \/ / |_____ / _' |/ _' | __/ _ \ \ /\ / / _' | | | |
| (_| |  __/>  <| |_____| (_| | (_| | ||  __/\ V  V / (_| | |_| |
 \__,_|\___/_/\_\_|      \__, |\__,_|\__\___| \_/\_/ \__,_|\__, |
                         |___/                             |___/
`

// getConfigPath returns the config file to load.
// Priority: --config flag > DEXI_CONFIG env var > none (built-in defaults).
func getConfigPath(flag string) string {
	if flag != "" {
		return flag
	}
	return os.Getenv("DEXI_CONFIG")
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "dexi-gateway",
		Short:         "Dexi assistant gateway",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "",
		"Path to YAML configuration file (default: $DEXI_CONFIG)")

	root.AddCommand(
		buildServeCmd(&configPath),
		buildHealthCmd(&configPath),
		buildMintTokenCmd(),
		buildClaimsCmd(),
		buildVersionCmd(),
	)
	return root
}

func buildServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the gateway server",
		Long: `Start the gateway HTTP server.

Graceful shutdown is handled on SIGINT/SIGTERM signals.`,
		Example: `  # Start with built-in defaults and dev auth
  DEXI_DEV_AUTH=1 dexi-gateway serve

  # Start with a config file
  dexi-gateway serve --config config.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), getConfigPath(*configPath))
		},
	}
}

func buildHealthCmd(configPath *string) *cobra.Command {
	var ready bool
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check gateway health",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHealth(cmd.Context(), cmd.OutOrStdout(), getConfigPath(*configPath), ready)
		},
	}
	cmd.Flags().BoolVar(&ready, "ready", false, "Check readiness instead of liveness")
	return cmd
}

func buildVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	}
}
