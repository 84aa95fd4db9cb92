package graphmem

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/firebase/genkit/go/genkit"
	"github.com/spf13/cobra"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start the Model Context Protocol (MCP) server",
	Long: `Start an MCP server exposing the knowledge graph as tools for
AI agents: adding memories, searching nodes and facts, retrieving
episodes and clearing groups.`,
	RunE: runMCP,
}

var (
	mcpGroupID      string
	mcpDestroyGraph bool
)

func init() {
	rootCmd.AddCommand(mcpCmd)

	mcpCmd.Flags().StringVar(&mcpGroupID, "group-id", "default", "Namespace for the graph")
	mcpCmd.Flags().BoolVar(&mcpDestroyGraph, "destroy-graph", false, "Clear the group's data on startup")
}

func runMCP(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
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
		return fmt.Errorf("failed to create indices: %w", err)
	}
	if mcpDestroyGraph {
		log.Warn("clearing group data on startup", "group_id", mcpGroupID)
		if err := memory.ClearGroup(ctx, mcpGroupID); err != nil {
			return fmt.Errorf("failed to clear graph: %w", err)
		}
	}

	tools := &mcpTools{memory: memory, groupID: mcpGroupID, logger: log}

	g := genkit.Init(ctx)
	tools.register(g)

	log.Info("mcp server ready", "group_id", mcpGroupID)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigChan:
		log.Info("stopping mcp server", "signal", sig.String())
	case <-ctx.Done():
	}
	return memory.Close(context.Background())
}
