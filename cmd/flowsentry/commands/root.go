// Package commands implements the flowsentry command-line interface.
package commands

import (
	"github.com/spf13/cobra"
)

// Version is the application version.
const Version = "0.1.0"

var (
	cfgFile  string
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:   "flowsentry",
	Short: "flowsentry - streaming network anomaly detection",
	Long: `flowsentry watches a stream of network flow events and flags statistical
outliers online, without labeled data. It trains an isolation forest on an
initial window of traffic, scores every subsequent event, and periodically
retrains on a sliding window of recent history.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"path to a YAML config file (optional)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"log level: debug, info, warn, error (overrides config)")

	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(scanCmd)
}
