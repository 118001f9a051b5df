package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"freeda-support/src/contracts"
	"freeda-support/src/ticket"
	"freeda-support/src/tui"
)

var watchURL string

var watchCmd = &cobra.Command{
	Use:   "watch [ticket-id]",
	Short: "Follow a ticket conversation live",
	Long: `Open the terminal viewer on a ticket. The conversation so far is shown
first, then every new message and status change as it happens.

Example:
  freeda watch FRE-1A2B3C4D --url http://localhost:8000`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id := args[0]
		if !ticket.ValidID(id) {
			return ticket.WrapError(ticket.ErrNotFound)
		}

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		client := newAPIClient(watchURL)
		// Fail fast on unknown tickets before taking over the terminal.
		if _, err := client.Status(ctx, id); err != nil {
			return err
		}

		events := make(chan contracts.Event, 16)
		streamErr := make(chan error, 1)
		go func() {
			streamErr <- client.Stream(ctx, id, events)
		}()

		if err := tui.Start(id, events); err != nil {
			return fmt.Errorf("TUI error: %w", err)
		}
		cancel()

		if err := <-streamErr; err != nil && !errors.Is(err, context.Canceled) {
			fmt.Fprintf(os.Stderr, "Event stream: %v\n", err)
		}
		return nil
	},
}

func init() {
	watchCmd.Flags().StringVar(&watchURL, "url", "http://localhost:8000", "base URL of the Freeda server")
}
