// Package main provides the freeda command: the support backend server, its
// MCP tool server and a terminal viewer for live tickets.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"freeda-support/src/config"
)

var envFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "freeda",
	Short: "Freeda - customer support backend with an AI assistant",
	Long: `Freeda answers customer support tickets with a resilient AI assistant
and fans every ticket change out to live viewers.

It supports two modes:
- Local Mode: memory or file storage, events stay in process (default)
- Distributed Mode: Postgres + Redpanda, events relayed between replicas

Mode is auto-detected based on REDPANDA_BROKERS environment variable.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	rootCmd.AddCommand(serveCmd, mcpCmd, watchCmd, statusCmd)
}

// loadConfig reads the env file (if present) and the environment.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, fmt.Errorf("configuration error: %w", err)
	}
	return cfg, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
