package graphmem

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/soundprediction/graphmem/pkg/centrality"
)

var centralityCmd = &cobra.Command{
	Use:   "centrality",
	Short: "Calculate centrality metrics for a group",
	Long: `Calculate pagerank, degree, betweenness and composite
importance for every entity in a group. Results print as JSON and can
optionally be stored back onto the nodes.`,
	RunE: runCentrality,
}

var (
	centralityGroupID string
	centralityStore   bool
	centralityResume  string
)

func init() {
	rootCmd.AddCommand(centralityCmd)

	centralityCmd.Flags().StringVar(&centralityGroupID, "group-id", "default", "Group to analyze")
	centralityCmd.Flags().BoolVar(&centralityStore, "store", false, "Persist scores onto the nodes")
	centralityCmd.Flags().StringVar(&centralityResume, "resume", "", "Resume an interrupted storage transaction by id")
}

func runCentrality(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	log := newLogger(cfg)

	graph, err := newGraphDriver(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to graph database: %w", err)
	}
	defer graph.Close(context.Background())

	ctx := context.Background()
	engine := centrality.NewEngine(graph, centrality.DefaultWeights, log)
	storage := centrality.NewAtomicStorage(graph, log)

	if centralityResume != "" {
		metrics, err := engine.CalculateAll(ctx, centralityGroupID)
		if err != nil {
			return fmt.Errorf("centrality calculation failed: %w", err)
		}
		if err := storage.Resume(ctx, centralityResume, centralityGroupID, metrics); err != nil {
			return fmt.Errorf("failed to resume transaction: %w", err)
		}
		log.Info("storage transaction resumed", "tx_id", centralityResume)
		return nil
	}

	var metrics *centrality.Metrics
	if cfg.Centrality.RemoteURL != "" {
		remote := centrality.NewRemoteClient(centrality.RemoteConfig{
			BaseURL: cfg.Centrality.RemoteURL,
		}, engine, log)
		metrics, err = remote.Calculate(ctx, centralityGroupID)
	} else {
		metrics, err = engine.CalculateAll(ctx, centralityGroupID)
	}
	if err != nil {
		return fmt.Errorf("centrality calculation failed: %w", err)
	}

	if centralityStore {
		txID, err := storage.Store(ctx, centralityGroupID, metrics)
		if err != nil {
			return fmt.Errorf("failed to store scores: %w", err)
		}
		log.Info("scores stored", "tx_id", txID, "nodes", len(metrics.Importance))
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(metrics)
}
