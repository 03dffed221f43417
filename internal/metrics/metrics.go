package metrics

import (
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

const (
	MetricsEndpoint = "0.0.0.0:9090"
)

var (
	DeviceFetchCounter        *prometheus.CounterVec
	DeviceFetchRuntimeSummary *prometheus.SummaryVec

	RunCounter        *prometheus.CounterVec
	RunRuntimeSummary *prometheus.SummaryVec
	DevicesByLevel    *prometheus.GaugeVec

	StockQuantity         *prometheus.GaugeVec
	LedgerMovementCounter *prometheus.CounterVec

	AlertCounter *prometheus.CounterVec

	StoreQueryErrorCount *prometheus.CounterVec
)

func init() {
	DeviceFetchCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "printwatch_device_fetch_total",
			Help: "A counter metric to measure the total count of device status page fetches",
		},
		[]string{"result"}, // ok, error, unknown_model, skipped
	)

	DeviceFetchRuntimeSummary = promauto.NewSummaryVec(
		prometheus.SummaryOpts{
			Name: "printwatch_device_fetch_seconds",
			Help: "A summary metric to measure the time spent fetching a device status page",
		},
		[]string{"model"},
	)

	RunCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "printwatch_poll_runs_total",
			Help: "A counter metric to measure the total count of poll runs by outcome",
		},
		[]string{"status"},
	)

	RunRuntimeSummary = promauto.NewSummaryVec(
		prometheus.SummaryOpts{
			Name: "printwatch_poll_run_seconds",
			Help: "A summary metric to measure the time spent in each poll run",
		},
		[]string{"status"},
	)

	DevicesByLevel = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "printwatch_devices_by_level",
			Help: "A gauge metric of the device count per level in the last completed poll run",
		},
		[]string{"level"},
	)

	StockQuantity = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "printwatch_stock_quantity",
			Help: "A gauge metric of the stock quantity on hand per supply type and model",
		},
		[]string{"supply_type", "model"},
	)

	LedgerMovementCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "printwatch_stock_movements_total",
			Help: "A counter metric to measure the total count of stock movements recorded",
		},
		[]string{"kind"},
	)

	AlertCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "printwatch_alerts_total",
			Help: "A counter metric to measure the total count of low level alerts dispatched",
		},
		[]string{"result"},
	)

	StoreQueryErrorCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "printwatch_store_query_error_count",
			Help: "A counter metric to measure the total count of errors querying the store.",
		},
		[]string{"storeKind"},
	)
}

// ListenAndServe exposes prometheus metrics as /metrics on addr.
func ListenAndServe(addr string, logger *logrus.Logger) {
	if addr == "" {
		addr = MetricsEndpoint
	}

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())

		server := &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 2 * time.Second, // nolint:gomnd // time duration value is clear as is.
		}

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Error("metrics endpoint")
		}
	}()
}
