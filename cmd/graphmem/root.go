// Package graphmem implements the graphmem command line interface.
package graphmem

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/soundprediction/graphmem/pkg/config"
	"github.com/soundprediction/graphmem/pkg/logger"
)

var rootCmd = &cobra.Command{
	Use:   "graphmem",
	Short: "Temporal knowledge graph memory for AI agents",
	Long: `Graphmem ingests conversations and documents into a temporal
knowledge graph and serves hybrid search over the accumulated memory.`,
	SilenceUsage: true,
}

var (
	configFile string
	logLevel   string
	logFormat  string
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Config file path")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "Log format (text, json, color)")
}

// Execute runs the CLI.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return err
	}
	return nil
}

// loadConfig reads configuration and applies global flag overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if logFormat != "" {
		cfg.Log.Format = logFormat
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) *slog.Logger {
	log := logger.New(cfg.Log.Format, cfg.Log.Level)
	slog.SetDefault(log)
	return log
}
