package cmd

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	logLevel      string // Log verbosity level
	inventoryPath string // Path to the YAML inventory
)

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:           "dtm",
	Short:         "Inter-domain traffic engineering: reference and compensation vectors",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level, err := logrus.ParseLevel(logLevel)
		if err != nil {
			return err
		}
		logrus.SetLevel(level)
		return nil
	},
}

// Execute runs the CLI root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		logrus.Error(err)
		os.Exit(1)
	}
}

// init sets up CLI flags and subcommands
func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log", "info", "Log level (trace, debug, info, warn, error, fatal, panic)")
	rootCmd.PersistentFlags().StringVar(&inventoryPath, "inventory", "inventory.yaml", "Path to the YAML inventory")

	rootCmd.AddCommand(newRunCmd(), newRefvecCmd(), newReplayCmd())
}
