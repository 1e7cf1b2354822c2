// taskrag generates event-organization task lists by retrieving the closest
// template from a local vector knowledge base and prompting an LLM with it.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"taskrag/internal/config"
	"taskrag/internal/logging"
)

var (
	// Global flags
	configPath string
	verbose    bool

	// Logger
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "taskrag",
	Short: "taskrag - RAG task generation for event planning",
	Long: `taskrag retrieves the most relevant event template from a local vector
knowledge base and prompts an LLM to produce a structured task list for
organizing the event.

Typical flow:
  taskrag ingest --dir kb/     populate the knowledge base
  taskrag serve                expose POST /generate-tasks
  taskrag generate --name ...  run the pipeline once from the CLI`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
		logging.CloseAll()
	},
}

// loadConfig resolves the config file plus environment overrides and brings
// up the category debug logger.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if verbose {
		cfg.Logging.DebugMode = true
	}

	if err := logging.Initialize(cfg.DataDir(), logging.Options{
		DebugMode:  cfg.Logging.DebugMode,
		Level:      cfg.Logging.Level,
		Categories: cfg.Logging.Categories,
		JSONFormat: cfg.Logging.Format == "json",
	}); err != nil {
		return nil, fmt.Errorf("failed to initialize debug logging: %w", err)
	}
	return cfg, nil
}

func main() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "taskrag.yaml", "path to config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(versionCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
