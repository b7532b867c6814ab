package commands

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"ewarn/internal/logger"
	"ewarn/internal/processor"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and background detection",
	Long: `Starts the early warning service.

This command:
- serves the warning, rule and recommendation API
- refreshes every disease on the configured schedule
- consumes refresh notices and publishes warning batches when Kafka is enabled

Endpoints:
  GET  /api/v1/rules[/{disease}]
  GET  /api/v1/warnings/{disease}?month=&year=
  POST /api/v1/warnings/{disease}/detect
  GET  /api/v1/recommendations/{disease}/{category}
  POST /api/v1/refresh/{disease}
  GET  /health, /stats, /metrics`,
	RunE: runServe,
}

var serveAddr string

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "HTTP listen address (overrides config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(nil)
	if err != nil {
		return err
	}
	if serveAddr != "" {
		cfg.Server.Addr = serveAddr
	}

	// wait for termination signals
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log := logger.WithComponent("main")
	if err := processor.New(cfg).Run(ctx); err != nil {
		log.Error().Err(err).Msg("processor exited")
		return err
	}
	log.Info().Msg("exited")
	return nil
}
