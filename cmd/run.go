package cmd

import (
	"context"

	"github.com/metal-toolbox/printwatch/internal/metrics"
	"github.com/metal-toolbox/printwatch/internal/scheduler"
	"github.com/metal-toolbox/printwatch/internal/version"
	"github.com/spf13/cobra"
)

type runFlags struct {
	catalog     string
	pollAtStart bool
}

var (
	runFlagSet = &runFlags{}
)

var cmdRun = &cobra.Command{
	Use:   "run",
	Short: "Run printwatch as a service, polling printers on the configured schedule",
	Run: func(cmd *cobra.Command, _ []string) {
		runService(cmd.Context())
	},
}

func runService(ctx context.Context) {
	pw := newApp()

	if pw.Config.Schedule == "" {
		pw.Logger.Fatal("schedule not configured, set schedule, for example '@every 1h'")
	}

	// serve metrics endpoint
	version.ExportBuildInfoMetric()
	metrics.ListenAndServe(pw.Config.Metrics.Listen, pw.Logger)

	ctx, otelShutdown := initTelemetry(ctx, pw.Logger)
	defer otelShutdown(ctx)

	// Setup cancel context with cancel func.
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	st, err := initStores(ctx, pw, runFlagSet.catalog)
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

	s := scheduler.New(orchestrator, pw.Config.Thresholds, pw.Logger)
	if err := s.Start(ctx, pw.Config.Schedule); err != nil {
		pw.Logger.Fatal(err)
	}

	if runFlagSet.pollAtStart {
		pw.SyncWG.Add(1)

		go func() {
			defer pw.SyncWG.Done()

			// errors are logged by the scheduler
			_ = s.RunOnce(ctx)
		}()
	}

	<-pw.TermCh
	pw.Logger.Info("got TERM signal, exiting...")

	cancelFunc()
	s.Stop()

	pw.Logger.Trace("wait for goroutines..")
	pw.SyncWG.Wait()
}

func init() {
	cmdRun.Flags().StringVar(&runFlagSet.catalog, "catalog", "", "device catalog YAML file, overrides catalog.file")
	cmdRun.Flags().BoolVar(&runFlagSet.pollAtStart, "poll-at-start", false, "poll once at startup without waiting for the first scheduled run")

	rootCmd.AddCommand(cmdRun)
}
