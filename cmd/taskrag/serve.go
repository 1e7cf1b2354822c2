package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"taskrag/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP task-generation server",
	Long: `Starts the HTTP server exposing:
  POST /generate-tasks   generate a task list for an event description
  GET  /                 liveness check

The server shuts down gracefully on SIGINT/SIGTERM.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		a, err := newApp(cfg)
		if err != nil {
			return err
		}
		defer a.close()

		if err := a.withPipeline(); err != nil {
			return err
		}

		if n, err := a.index.Count(); err == nil {
			logger.Info("knowledge base loaded", zap.Int64("documents", n))
			if n == 0 {
				logger.Warn("knowledge base is empty, run `taskrag ingest` first")
			}
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		srv := server.New(a.pipeline, logger, server.Options{
			Addr:           cfg.Server.Addr,
			RequestTimeout: cfg.GetRequestTimeout(),
		})
		return srv.Run(ctx)
	},
}
