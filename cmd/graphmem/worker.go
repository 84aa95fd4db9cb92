package graphmem

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/soundprediction/graphmem/pkg/deferred"
	"github.com/soundprediction/graphmem/pkg/worker"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run a standalone ingestion worker",
	Long: `Run an ingestion worker that drains the queue into the
knowledge graph without serving HTTP. Useful for scaling ingestion
separately from the API.`,
	RunE: runWorker,
}

func init() {
	rootCmd.AddCommand(workerCmd)
	workerCmd.Flags().Int("concurrency", 0, "Parallel episode limit (overrides SEMAPHORE_LIMIT)")
}

func runWorker(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if cmd.Flags().Changed("concurrency") {
		cfg.Worker.Concurrency, _ = cmd.Flags().GetInt("concurrency")
	}
	log := newLogger(cfg)

	if cfg.Queue.Backend != "badger" {
		return fmt.Errorf("standalone worker requires a persistent queue backend, got %q", cfg.Queue.Backend)
	}

	graph, err := newGraphDriver(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to graph database: %w", err)
	}
	memory, err := newMemoryClient(cfg, graph, log)
	if err != nil {
		return err
	}

	q, err := newQueue(&cfg.Queue)
	if err != nil {
		return err
	}
	defer q.Close()

	var ingester worker.Ingester = memory
	if cfg.Journal.Enabled && cfg.Journal.Path != "" {
		journal, err := deferred.NewJournal(cfg.Journal.Path)
		if err != nil {
			return fmt.Errorf("failed to open ingestion journal: %w", err)
		}
		defer journal.Close()
		ingester = deferred.NewJournalingIngester(journal, memory)
	}

	w := newWorker(cfg, q, ingester, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		log.Info("stopping worker", "signal", sig.String())
		cancel()
	}()

	log.Info("worker started", "concurrency", cfg.Worker.Concurrency)
	if err := w.Run(ctx); err != nil && err != context.Canceled {
		return err
	}
	return memory.Close(context.Background())
}
