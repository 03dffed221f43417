// Package extractor retrieves printer status pages and parses consumable levels from them.
package extractor

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	retryablehttp "github.com/hashicorp/go-retryablehttp"
	"github.com/metal-toolbox/printwatch/internal/metrics"
	"github.com/metal-toolbox/printwatch/internal/model"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	// MaxFetchTimeout is the upper bound on the per device request timeout.
	MaxFetchTimeout = 5 * time.Second

	// status pages are small, anything larger is not a printer status page.
	maxBodyBytes = 2 << 20
)

var (
	ErrFetch = errors.New("error fetching status page")
)

// Result values recorded in the fetch metrics.
const (
	ResultOK           = "ok"
	ResultError        = "error"
	ResultUnknownModel = "unknown_model"
	ResultSkipped      = "skipped"
)

// Extractor fetches a device's status page and returns its consumable fractions.
type Extractor struct {
	client     *retryablehttp.Client
	models     model.ConsumableMap
	statusPath string
	logger     *logrus.Logger
}

// Option sets an Extractor parameter.
type Option func(*Extractor)

// WithTimeout sets the per request timeout, values above MaxFetchTimeout are capped.
func WithTimeout(d time.Duration) Option {
	return func(e *Extractor) {
		if d <= 0 || d > MaxFetchTimeout {
			d = MaxFetchTimeout
		}

		e.client.HTTPClient.Timeout = d
	}
}

// WithStatusPath sets the path of the status page requested on each device.
func WithStatusPath(p string) Option {
	return func(e *Extractor) {
		if p != "" {
			e.statusPath = p
		}
	}
}

// WithHTTPClient replaces the underlying http client.
func WithHTTPClient(c *http.Client) Option {
	return func(e *Extractor) {
		e.client.HTTPClient = c
	}
}

// New returns an Extractor for the given consumable map.
func New(models model.ConsumableMap, logger *logrus.Logger, opts ...Option) *Extractor {
	client := retryablehttp.NewClient()
	client.Logger = nil
	// a failed device is reported absent for this run, it is not retried
	client.RetryMax = 0
	client.ErrorHandler = retryablehttp.PassthroughErrorHandler
	client.HTTPClient.Timeout = MaxFetchTimeout
	client.HTTPClient.Transport = otelhttp.NewTransport(client.HTTPClient.Transport)

	e := &Extractor{
		client:     client,
		models:     models,
		statusPath: model.DefaultStatusPath,
		logger:     logger,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// StatusURL returns the status page URL for the device address.
func (e *Extractor) StatusURL(address string) string {
	return fmt.Sprintf("http://%s%s", address, e.statusPath)
}

// Fetch returns the consumable fractions of the device.
//
// Any fetch or parse failure yields all absent fractions and a single log line, it is never returned to the caller.
// When cancel is already set, no request is made.
func (e *Extractor) Fetch(ctx context.Context, device model.Device, cancel *model.CancelFlag) model.Fractions {
	if cancel.Canceled() {
		metrics.DeviceFetchCounter.WithLabelValues(ResultSkipped).Inc()
		return model.Fractions{}
	}

	startTS := time.Now()

	tokens, err := e.fetchTokens(ctx, device.Address)

	metrics.DeviceFetchRuntimeSummary.WithLabelValues(device.Model).Observe(time.Since(startTS).Seconds())

	if err != nil {
		metrics.DeviceFetchCounter.WithLabelValues(ResultError).Inc()

		// errors after a cancel are a side effect of shutting down
		if !cancel.Canceled() {
			e.logger.WithFields(logrus.Fields{
				"address": device.Address,
				"model":   device.Model,
				"err":     err.Error(),
			}).Warn("device status fetch failed")
		}

		return model.Fractions{}
	}

	indexes, ok := e.models.Lookup(device.Model)
	if !ok {
		metrics.DeviceFetchCounter.WithLabelValues(ResultUnknownModel).Inc()

		e.logger.WithFields(logrus.Fields{
			"address": device.Address,
			"model":   device.Model,
			"tokens":  tokens,
		}).Debug("unsupported model, consumables reported absent")

		return model.Fractions{}
	}

	metrics.DeviceFetchCounter.WithLabelValues(ResultOK).Inc()

	return ResolveFractions(tokens, indexes)
}

func (e *Extractor) fetchTokens(ctx context.Context, address string) ([]string, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, e.StatusURL(address), nil)
	if err != nil {
		return nil, errors.Wrap(ErrFetch, err.Error())
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(ErrFetch, err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, errors.Wrap(ErrFetch, "status code "+resp.Status)
	}

	text, err := VisibleText(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, err
	}

	return PercentTokens(text), nil
}
