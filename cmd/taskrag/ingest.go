package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	ingestDir   string
	ingestReset bool
	ingestWatch bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Embed template documents into the knowledge base",
	Long: `Reads every *.json template under --dir, embeds each document, and
upserts it into the vector index by doc_id.

With --reset the collection is wiped first, so documents whose source files
were removed do not linger. With --watch the command keeps running and
re-ingests on file changes.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		a, err := newApp(cfg)
		if err != nil {
			return err
		}
		defer a.close()

		n, err := a.ingestor.IngestDir(cmd.Context(), ingestDir, ingestReset)
		if err != nil {
			return err
		}
		fmt.Printf("Ingested %d documents from %s into collection %s\n", n, ingestDir, cfg.Index.Collection)

		if !ingestWatch {
			return nil
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		logger.Info("watching for changes", zap.String("dir", ingestDir))
		if err := a.ingestor.Watch(ctx, ingestDir); err != nil && ctx.Err() == nil {
			return err
		}
		return nil
	},
}

func init() {
	ingestCmd.Flags().StringVar(&ingestDir, "dir", "kb", "directory of template JSON files")
	ingestCmd.Flags().BoolVar(&ingestReset, "reset", false, "wipe the collection before ingesting")
	ingestCmd.Flags().BoolVar(&ingestWatch, "watch", false, "keep running and re-ingest on changes")
}
