package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/metal-toolbox/printwatch/internal/poll"
	"github.com/spf13/cobra"
)

type pollFlags struct {
	catalog string
	low     int
	medium  int
	json    bool
	quiet   bool
}

var (
	pollFlagSet = &pollFlags{}
)

var cmdPoll = &cobra.Command{
	Use:   "poll",
	Short: "Poll the active printers once and store their consumable levels",
	Run: func(cmd *cobra.Command, _ []string) {
		runPoll(cmd)
	},
}

func runPoll(cmd *cobra.Command) {
	pw := newApp()

	ctx, cancelFunc := context.WithCancel(cmd.Context())
	defer cancelFunc()

	st, err := initStores(ctx, pw, pollFlagSet.catalog)
	if err != nil {
		pw.Logger.Fatal(err)
	}
	defer st.close()

	if st.catalog == nil {
		pw.Logger.Fatal(ErrNoCatalog)
	}

	dispatcher, closeDispatcher, err := initDispatcher(pw)
	if err != nil {
		pw.Logger.Fatal(err)
	}
	defer closeDispatcher()

	orchestrator, err := newOrchestrator(pw, st, dispatcher)
	if err != nil {
		pw.Logger.Fatal(err)
	}

	// an interrupt cancels the run, in flight fetches complete and nothing is stored
	go func() {
		select {
		case <-pw.TermCh:
			pw.Logger.Info("got TERM signal, canceling run...")
			orchestrator.Cancel()
		case <-ctx.Done():
		}
	}()

	thresholds := pw.Config.Thresholds
	if cmd.Flags().Changed("low") {
		thresholds.Low = pollFlagSet.low
	}

	if cmd.Flags().Changed("medium") {
		thresholds.Medium = pollFlagSet.medium
	}

	var onProgress poll.ProgressFunc
	if !pollFlagSet.quiet {
		onProgress = func(p poll.Progress) {
			fmt.Fprintf(os.Stderr, "[%5.1f%%] %d/%d %s\n", p.Percent, p.Done, p.Total, p.Device.Address)
		}
	}

	outcome, err := orchestrator.Poll(ctx, thresholds, onProgress)
	if err != nil {
		pw.Logger.Fatal(err)
	}

	if pollFlagSet.json {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")

		if err := enc.Encode(outcome); err != nil {
			pw.Logger.Fatal(err)
		}

		return
	}

	printResults(os.Stdout, outcome.Results)
	fmt.Printf("\n%s: %s\n", outcome.Status, outcome.Message)
}

func init() {
	cmdPoll.Flags().StringVar(&pollFlagSet.catalog, "catalog", "", "device catalog YAML file, overrides catalog.file")
	cmdPoll.Flags().IntVar(&pollFlagSet.low, "low", 0, "low level threshold in percent, overrides thresholds.low")
	cmdPoll.Flags().IntVar(&pollFlagSet.medium, "medium", 0, "medium level threshold in percent, overrides thresholds.medium")
	cmdPoll.Flags().BoolVar(&pollFlagSet.json, "json", false, "print the run outcome as JSON")
	cmdPoll.Flags().BoolVarP(&pollFlagSet.quiet, "quiet", "q", false, "do not print progress")

	rootCmd.AddCommand(cmdPoll)
}
