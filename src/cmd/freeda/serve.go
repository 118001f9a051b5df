package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"freeda-support/src/app"
	"freeda-support/src/logger"
	"freeda-support/src/server"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the public ticket API",
	Long: `Serve the public ticket API, the WebSocket and SSE live feeds and the
health endpoint.

Storage is selected by STORAGE_TYPE (memory, file, postgres). Setting
REDPANDA_BROKERS mirrors ticket events so viewers attached to any replica
see every change.

Example:
  freeda serve --addr :8000`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if serveAddr != "" {
			cfg.HTTPAddr = serveAddr
		}

		log := logger.NewZapLogger(cfg.LogLevel)
		defer log.Sync()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := app.New(ctx, cfg, log)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.Start(ctx); err != nil {
			return err
		}

		log.Info("Starting Freeda support backend (mode=%s)", a.Mode)
		if err := server.New(a).Run(ctx, cfg.HTTPAddr); err != nil {
			return err
		}
		log.Info("Freeda support backend stopped")
		return nil
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides HTTP_ADDR)")
}
