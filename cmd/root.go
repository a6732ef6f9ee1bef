package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/flw-audit/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "flw-audit",
	Short: "Follow-up visit reconciliation and field-worker audit",
	Long:  "Reconciles expected care-schedule visits against worker submissions, scores follow-up rates, and flags GPS and data-quality anomalies.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
