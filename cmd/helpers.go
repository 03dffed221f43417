package cmd

import (
	"context"
	"fmt"
	"io"
	"log"
	"text/tabwriter"
	"time"

	logrusrv2 "github.com/bombsimon/logrusr/v2"
	"github.com/equinix-labs/otel-init-go/otelinit"
	"github.com/metal-toolbox/printwatch/internal/alert"
	"github.com/metal-toolbox/printwatch/internal/app"
	"github.com/metal-toolbox/printwatch/internal/extractor"
	"github.com/metal-toolbox/printwatch/internal/model"
	"github.com/metal-toolbox/printwatch/internal/poll"
	"github.com/metal-toolbox/printwatch/internal/store"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
)

const dayLayout = "2006-01-02"

var (
	ErrNoCatalog = errors.New("no device catalog, set catalog.file or use the postgres store")
)

func newApp() *app.App {
	pw, err := app.New(cfgFile, logLevel)
	if err != nil {
		log.Fatal(err)
	}

	return pw
}

// stores are the storage backends selected by configuration.
type stores struct {
	readings store.ReadingStore
	ledger   store.LedgerStore
	// catalog is nil when neither a catalog file nor the postgres store is configured.
	catalog store.DeviceCatalog
	close   func()
}

// initStores opens the configured store, catalogFile overrides the configured catalog file.
func initStores(ctx context.Context, pw *app.App, catalogFile string) (*stores, error) {
	st := &stores{close: func() {}}

	switch pw.Config.Store.Kind {
	case model.StoreKindPostgres:
		pg, err := store.NewPostgres(ctx, pw.Config.Store.Postgres.DSN, pw.Logger)
		if err != nil {
			return nil, err
		}

		st.readings, st.ledger, st.catalog, st.close = pg, pg, pg, pg.Close
	default:
		pw.Logger.Debug("memory store in use, readings and stock are not kept across invocations")

		mem := store.NewMemStore()
		st.readings, st.ledger = mem, mem
	}

	if catalogFile == "" {
		catalogFile = pw.Config.Catalog.File
	}

	if catalogFile != "" {
		catalog, err := store.NewYamlCatalog(catalogFile)
		if err != nil {
			st.close()
			return nil, err
		}

		st.catalog = catalog
	}

	return st, nil
}

// initDispatcher returns the configured alert dispatcher, nil when alerts are disabled.
func initDispatcher(pw *app.App) (alert.Dispatcher, func(), error) {
	cfg := pw.Config.Alerts

	switch {
	case !cfg.Enabled:
		return nil, func() {}, nil
	case cfg.NatsURL == "":
		return &alert.LogDispatcher{Logger: pw.Logger}, func() {}, nil
	}

	nd, err := alert.NewNatsDispatcher(cfg.NatsURL, cfg.Subject, pw.Logger)
	if err != nil {
		return nil, nil, err
	}

	return nd, nd.Close, nil
}

func newOrchestrator(pw *app.App, st *stores, dispatcher alert.Dispatcher) (*poll.Orchestrator, error) {
	models, err := pw.Config.ConsumableMap()
	if err != nil {
		return nil, err
	}

	fetcher := extractor.New(
		models,
		pw.Logger,
		extractor.WithTimeout(pw.Config.FetchTimeout),
		extractor.WithStatusPath(pw.Config.StatusPath),
	)

	opts := []poll.Option{
		poll.WithConcurrency(pw.Config.Concurrency),
		poll.WithProgressTimeout(pw.Config.ProgressTimeout),
	}

	if st.catalog != nil {
		opts = append(opts, poll.WithCatalog(st.catalog))
	}

	if dispatcher != nil {
		opts = append(opts, poll.WithDispatcher(dispatcher))
	}

	return poll.New(fetcher, st.readings, pw.Logger, opts...), nil
}

// initTelemetry sets up the OpenTelemetry exporter configured through the OTEL_* env variables.
func initTelemetry(ctx context.Context, logger *logrus.Logger) (context.Context, func(context.Context)) {
	otel.SetLogger(logrusrv2.New(logger))

	return otelinit.InitOpenTelemetry(ctx, model.AppName)
}

// parseDay parses a YYYY-MM-DD flag value in the local time zone,
// with endOfDay the last instant of that day is returned.
func parseDay(value string, endOfDay bool) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}

	t, err := time.ParseInLocation(dayLayout, value, time.Local)
	if err != nil {
		return nil, errors.Wrap(err, "expected a YYYY-MM-DD date")
	}

	if endOfDay {
		t = t.AddDate(0, 0, 1).Add(-time.Nanosecond)
	}

	return &t, nil
}

func timeRange(from, to string) (store.TimeRange, error) {
	f, err := parseDay(from, false)
	if err != nil {
		return store.TimeRange{}, errors.Wrap(err, "--from")
	}

	t, err := parseDay(to, true)
	if err != nil {
		return store.TimeRange{}, errors.Wrap(err, "--to")
	}

	return store.TimeRange{From: f, To: t}, nil
}

func pct(f *float64) string {
	if f == nil {
		return "-"
	}

	return fmt.Sprintf("%.0f%%", *f*100)
}

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

func printResults(w io.Writer, results []model.DeviceResult) {
	tw := newTable(w)
	fmt.Fprintln(tw, "ADDRESS\tSITE\tNAME\tMODEL\tTONER\tKIT\tIMAGING\tLEVEL")

	for _, r := range results {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.Device.Address, r.Device.Site, r.Device.Name, r.Device.Model,
			pct(r.Fractions.Toner), pct(r.Fractions.Kit), pct(r.Fractions.Imaging), r.Level,
		)
	}

	_ = tw.Flush()
}
