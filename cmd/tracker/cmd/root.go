package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "tracker",
	Short: "Option-signal tracker that turns alert messages into an order ledger",
	Long: `Tracker ingests option trade alerts from chat channels, parses them with
a set of message grammars, and maintains a ledger of paper orders with
entry, exit and P&L tracking.

It provides:
  - A polling gateway that pulls messages from a relay API
  - A grammar-based signal parser (broker embeds, bilingual cards, shorthand)
  - An order lifecycle engine with expiration sweeps
  - A JSON ledger persisted to disk
  - An HTTP dashboard API for orders, statistics and the message journal`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

var cfgFile string

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "f", "config.yaml", "path to config file")
}
