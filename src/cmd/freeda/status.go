package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"freeda-support/src/ticket"
)

var statusURL string

// statusCmd shows ticket status
var statusCmd = &cobra.Command{
	Use:   "status [ticket-id]",
	Short: "Print the status of a ticket",
	Long:  `Query a running server for the public status of a ticket.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id := args[0]
		if !ticket.ValidID(id) {
			return ticket.WrapError(ticket.ErrNotFound)
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
		defer cancel()

		st, err := newAPIClient(statusURL).Status(ctx, id)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Ticket:       %s\n", st.TicketID)
		fmt.Fprintf(out, "Status:       %s\n", st.StatusInfo.Label)
		fmt.Fprintf(out, "Description:  %s\n", st.StatusInfo.Description)
		fmt.Fprintf(out, "Messages:     %d\n", st.MessageCount)
		fmt.Fprintf(out, "Last update:  %s\n", st.LastUpdate.Local().Format("2006-01-02 15:04"))
		return nil
	},
}

func init() {
	statusCmd.Flags().StringVar(&statusURL, "url", "http://localhost:8000", "base URL of the Freeda server")
}
