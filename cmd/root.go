package cmd

import (
	"fmt"
	"os"

	"github.com/metal-toolbox/printwatch/internal/model"
	"github.com/spf13/cobra"
)

var (
	cfgFile  string
	debug    bool
	trace    bool
	logLevel int
)

var rootCmd = &cobra.Command{
	Use:   "printwatch",
	Short: "printwatch polls network printers for consumable levels and tracks the supply depot stock",
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		switch {
		case trace:
			logLevel = model.LogLevelTrace
		case debug:
			logLevel = model.LogLevelDebug
		default:
			logLevel = model.LogLevelInfo
		}
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "configuration file (default is $HOME/.printwatch.yml)")
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVarP(&trace, "trace", "", false, "enable trace logging")
}
