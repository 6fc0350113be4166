package cmd

import (
	"bufio"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/klcheung/alertledger/internal/config"
	"github.com/klcheung/alertledger/internal/engine"
	"github.com/klcheung/alertledger/internal/models"
	"github.com/klcheung/alertledger/internal/storage"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [message...]",
	Short: "Feed messages through the grammars and into the ledger",
	Long: `Parse one or more alert messages and apply them to the ledger on disk.

Messages are taken from the arguments, or from stdin (one per line) when
no arguments are given. Useful for replaying exported channel logs.

Example:
  tracker ingest "BTO QQQ 613p 9/19 @1.61"
  cat alerts.txt | tracker ingest`,
	RunE: runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
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

	lines := args
	if len(lines) == 0 {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			if line := scanner.Text(); line != "" {
				lines = append(lines, line)
			}
		}
		if err := scanner.Err(); err != nil {
			return fmt.Errorf("reading stdin: %w", err)
		}
	}

	produced := 0
	for _, line := range lines {
		msg := models.Message{
			Content:   line,
			Timestamp: time.Now().UTC(),
		}
		if orderID, ok := eng.Ingest(msg); ok {
			produced++
			fmt.Printf("order %s <- %q\n", orderID, line)
		}
	}

	if err := eng.Persist(); err != nil {
		return fmt.Errorf("flush ledger: %w", err)
	}

	fmt.Printf("%d message(s) ingested, %d produced orders\n", len(lines), produced)
	return nil
}
