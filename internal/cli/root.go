// Package cli implements the caseflow command line.
package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/debtdesk/caseflow/internal/daemon"
	"github.com/debtdesk/caseflow/internal/infra/observability"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "caseflow",
	Short: "Idempotent payment reconciliation for collection cases",
	Long: `caseflow consumes payment.completed events, applies each payment to its
collection case exactly once, and publishes balance and status changes.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default $CASEFLOW_HOME/caseflow.toml)")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// ─── Helpers ────────────────────────────────────────────────────────────────

// loadConfig reads the config and builds the root logger.
func loadConfig() (daemon.Config, *zap.Logger, error) {
	path := configPath
	if path == "" {
		path = daemon.ConfigPath()
	}
	cfg, err := daemon.LoadConfig(path)
	if err != nil {
		return cfg, nil, err
	}
	logger, err := observability.NewLogger(observability.LogConfig{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})
	if err != nil {
		return cfg, nil, err
	}
	return cfg, logger, nil
}

// printJSON writes v indented, for humans and jq alike.
func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}
