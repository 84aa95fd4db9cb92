package graphmem

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/soundprediction/graphmem/pkg/deferred"
)

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Replay journaled episodes through ingestion",
	Long: `Replay episodes recorded in the deferred-ingestion journal
through the extraction pipeline. Episodes that fail stay pending for
the next run.`,
	RunE: runReplay,
}

var (
	replayJournalPath string
	replayBatchSize   int
)

func init() {
	rootCmd.AddCommand(replayCmd)

	replayCmd.Flags().StringVar(&replayJournalPath, "journal", "", "Journal database path (overrides config)")
	replayCmd.Flags().IntVar(&replayBatchSize, "batch-size", deferred.DefaultBatchSize, "Episodes per replay batch")
}

func runReplay(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	log := newLogger(cfg)

	path := cfg.Journal.Path
	if replayJournalPath != "" {
		path = replayJournalPath
	}
	if path == "" {
		return fmt.Errorf("no journal path configured")
	}

	journal, err := deferred.NewJournal(path)
	if err != nil {
		return err
	}
	defer journal.Close()

	graph, err := newGraphDriver(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to graph database: %w", err)
	}
	memory, err := newMemoryClient(cfg, graph, log)
	if err != nil {
		return err
	}
	ctx := context.Background()
	defer memory.Close(ctx)

	processor := deferred.NewProcessor(journal, memory, replayBatchSize, log)
	n, err := processor.Drain(ctx)
	log.Info("replay finished", "processed", n)
	return err
}
