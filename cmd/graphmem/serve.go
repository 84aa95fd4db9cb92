package graphmem

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/soundprediction/graphmem/pkg/centrality"
	"github.com/soundprediction/graphmem/pkg/deferred"
	"github.com/soundprediction/graphmem/pkg/relevance"
	"github.com/soundprediction/graphmem/pkg/server"
	"github.com/soundprediction/graphmem/pkg/telemetry"
	"github.com/soundprediction/graphmem/pkg/worker"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the graphmem HTTP server",
	Long: `Start the HTTP server exposing ingestion, search, episode
retrieval, centrality and relevance feedback endpoints. An embedded
queue worker processes ingestion asynchronously.`,
	RunE: runServe,
}

var (
	serveHost     string
	servePort     int
	serveNoWorker bool
)

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveHost, "host", "", "Server host")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Server port")
	serveCmd.Flags().BoolVar(&serveNoWorker, "no-worker", false, "Serve without the embedded ingestion worker")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if cmd.Flags().Changed("host") {
		cfg.Server.Host = serveHost
	}
	if cmd.Flags().Changed("port") {
		cfg.Server.Port = servePort
	}
	log := newLogger(cfg)

	graph, err := newGraphDriver(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to graph database: %w", err)
	}

	memory, err := newMemoryClient(cfg, graph, log)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := memory.CreateIndices(ctx); err != nil {
		log.Warn("failed to create indices", "error", err)
	}

	deps := server.Dependencies{
		Memory:     memory,
		Graph:      graph,
		Centrality: centrality.NewEngine(graph, centrality.DefaultWeights, log),
		Storage:    centrality.NewAtomicStorage(graph, log),
		Relevance:  relevance.NewTracker(),
		Scorer:     relevance.HeuristicScorer{},
		Telemetry:  telemetry.NewRecorder(cfg.Telemetry.Enabled, ""),
		Logger:     log,
	}

	var ingester worker.Ingester = memory
	if cfg.Journal.Enabled && cfg.Journal.Path != "" {
		journal, err := deferred.NewJournal(cfg.Journal.Path)
		if err != nil {
			return fmt.Errorf("failed to open ingestion journal: %w", err)
		}
		defer journal.Close()
		ingester = deferred.NewJournalingIngester(journal, memory)
	}

	if !serveNoWorker {
		q, err := newQueue(&cfg.Queue)
		if err != nil {
			return err
		}
		defer q.Close()
		w := newWorker(cfg, q, ingester, log)
		deps.Worker = w
		go func() {
			if err := w.Run(ctx); err != nil && err != context.Canceled {
				log.Error("worker stopped", "error", err)
			}
		}()
	}

	srv := server.New(&cfg.Server, deps)
	srv.Setup()

	deps.Telemetry.Capture("server_started", map[string]interface{}{
		"worker": !serveNoWorker,
	})

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Start()
	}()

	select {
	case err := <-errChan:
		return err
	case sig := <-sigChan:
		log.Info("shutting down", "signal", sig.String())
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()
		if err := srv.Stop(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		return memory.Close(shutdownCtx)
	}
}
