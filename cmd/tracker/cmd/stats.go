package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/klcheung/alertledger/internal/config"
	"github.com/klcheung/alertledger/internal/engine"
	"github.com/klcheung/alertledger/internal/storage"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print ledger statistics",
	Long: `Load the ledger from disk, run an expiration sweep, and print order
and journal statistics.`,
	RunE: runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := newLogger(cfg.Environment.LogLevel)

	store, err := storage.NewJSONStorage(cfg.Storage.Path)
	if err != nil {
		return fmt.Errorf("init storage: %w", err)
	}

	eng, err := engine.New(engine.Config{
		AssumedStopLossPct: cfg.Tracker.AssumedStopLossPct,
		ExpiredLossPct:     cfg.Tracker.ExpiredLossPct,
	}, store, logger)
	if err != nil {
		return fmt.Errorf("init engine: %w", err)
	}

	stats := eng.Statistics()
	fmt.Printf("Orders:    %d total, %d open, %d closed, %d expired\n",
		stats.TotalOrders, stats.OpenOrders, stats.ClosedOrders, stats.ExpiredOrders)
	fmt.Printf("Results:   %d wins, %d losses\n", stats.Wins, stats.Losses)
	fmt.Printf("Messages:  %d journaled\n", stats.TotalMessages)

	open := eng.OpenOrders()
	if len(open) > 0 {
		fmt.Println("\nOpen positions:")
		for _, o := range open {
			fmt.Printf("  %-28s %s exp %s entry %.2f\n", o.ID, o.Key(), o.Expiration, o.EntryPrice)
		}
	}
	return nil
}
