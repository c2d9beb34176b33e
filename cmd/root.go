package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/medintel/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "medintel",
	Short: "Medicare reimbursement data provenance and simulation engine",
	Long: "Fetches Medicare Part B procedure and Part D drug reimbursement data per entity and year, " +
		"projects years without published data from the nearest confirmed year, and reports trends " +
		"with every value tagged as measured or simulated.",
	SilenceUsage: true,
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
