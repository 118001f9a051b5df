package main

import (
	"context"

	"github.com/spf13/cobra"

	"freeda-support/src/app"
	"freeda-support/src/logger"
	"freeda-support/src/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the ticket tools over MCP (stdio)",
	Long: `Run a Model Context Protocol server on stdin/stdout exposing the
create_ticket, get_ticket, add_message, take_over_ticket, close_ticket and
list_tickets tools.

Logs go to stderr so stdout stays reserved for the protocol. Point
STORAGE_TYPE at the same file or database as the HTTP server to work on
the same tickets.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		log := logger.NewStderrLogger(cfg.LogLevel)
		defer log.Sync()

		a, err := app.New(context.Background(), cfg, log)
		if err != nil {
			return err
		}
		defer a.Close()

		return mcp.NewServer(a.Orchestrator, log).Run()
	},
}
