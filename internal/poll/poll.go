// Package poll runs poll cycles across the active printers of the catalog.
package poll

import (
	"context"
	"fmt"
	"sync"
	"time"

	sw "github.com/filanov/stateswitch"
	"github.com/google/uuid"
	"github.com/metal-toolbox/printwatch/internal/alert"
	"github.com/metal-toolbox/printwatch/internal/level"
	"github.com/metal-toolbox/printwatch/internal/metrics"
	"github.com/metal-toolbox/printwatch/internal/model"
	"github.com/metal-toolbox/printwatch/internal/store"
	"github.com/metal-toolbox/printwatch/internal/worker"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/exp/slices"
)

const (
	pkgName = "internal/poll"

	// DefaultProgressTimeout bounds the wait for progress callbacks once a run has drained.
	DefaultProgressTimeout = time.Second

	// DefaultAlertTimeout bounds a single alert dispatch.
	DefaultAlertTimeout = 15 * time.Second
)

var (
	ErrNoActiveDevices   = errors.New("no active devices")
	ErrRunActive         = errors.New("a poll run is already active")
	ErrStaleCancel       = errors.New("cancel flag set before run start, rearm before starting a run")
	ErrInvalidThresholds = model.ErrInvalidThresholds
)

// Fetcher returns the consumable fractions of one device.
//
// Implementations report failures as absent fractions and skip the request when cancel is set.
type Fetcher interface {
	Fetch(ctx context.Context, device model.Device, cancel *model.CancelFlag) model.Fractions
}

// Progress is reported once per probed device, in completion order.
type Progress struct {
	Device    model.Device
	Fractions model.Fractions
	Done      int
	Total     int
	// Percent is the share of devices probed so far, 0-100.
	Percent float64
}

// ProgressFunc receives run progress, it should return promptly.
type ProgressFunc func(Progress)

// Orchestrator runs poll cycles, at most one at a time.
type Orchestrator struct {
	fetcher    Fetcher
	readings   store.ReadingStore
	catalog    store.DeviceCatalog
	dispatcher alert.Dispatcher
	logger     *logrus.Logger
	now        func() time.Time

	concurrency     int
	progressTimeout time.Duration
	alertTimeout    time.Duration

	cancel *model.CancelFlag

	// mu guards the state machine and lastOutcome.
	mu          sync.Mutex
	sm          sw.StateMachine
	state       *runState
	lastOutcome *model.RunOutcome
}

// Option sets an Orchestrator parameter.
type Option func(*Orchestrator)

// WithCatalog sets the device catalog read by Poll.
func WithCatalog(catalog store.DeviceCatalog) Option {
	return func(o *Orchestrator) {
		o.catalog = catalog
	}
}

// WithDispatcher enables alert dispatch for runs with low level devices.
func WithDispatcher(d alert.Dispatcher) Option {
	return func(o *Orchestrator) {
		o.dispatcher = d
	}
}

// WithConcurrency sets the maximum number of device fetches in flight.
func WithConcurrency(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.concurrency = n
		}
	}
}

// WithProgressTimeout sets how long a finished run waits for progress callbacks to return.
func WithProgressTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.progressTimeout = d
		}
	}
}

// WithAlertTimeout sets the alert dispatch timeout.
func WithAlertTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.alertTimeout = d
		}
	}
}

// WithClock sets the time source for run and reading timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		o.now = now
	}
}

// New returns an Orchestrator probing devices with fetcher and persisting batches to readings.
func New(fetcher Fetcher, readings store.ReadingStore, logger *logrus.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		fetcher:         fetcher,
		readings:        readings,
		logger:          logger,
		now:             time.Now,
		concurrency:     model.DefaultConcurrency,
		progressTimeout: DefaultProgressTimeout,
		alertTimeout:    DefaultAlertTimeout,
		cancel:          &model.CancelFlag{},
		sm:              newRunStateMachine(),
	}

	for _, opt := range opts {
		opt(o)
	}

	o.state = newRunState(o.now)

	return o
}

// State returns the current run state.
func (o *Orchestrator) State() sw.State {
	o.mu.Lock()
	defer o.mu.Unlock()

	return o.state.State()
}

// LastOutcome returns the outcome of the last finished run, nil when no run has finished.
func (o *Orchestrator) LastOutcome() *model.RunOutcome {
	o.mu.Lock()
	defer o.mu.Unlock()

	return o.lastOutcome
}

// Cancel requests the active run to stop, devices not yet dispatched are not probed.
//
// A flag set while no run is active prevents the next run until Rearm is called.
func (o *Orchestrator) Cancel() {
	o.cancel.Cancel()
}

// Canceled returns true when the cancel flag is set.
func (o *Orchestrator) Canceled() bool {
	return o.cancel.Canceled()
}

// Rearm clears the cancel flag, it returns ErrRunActive while a run is active.
func (o *Orchestrator) Rearm() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state.State() == StateRunning {
		return ErrRunActive
	}

	o.cancel.Reset()

	return nil
}

func (o *Orchestrator) transition(t sw.TransitionType) error {
	if err := o.sm.Run(t, o.state, nil); err != nil {
		if errors.Is(err, sw.NoConditionPassedToRunTransaction) {
			return errors.Wrap(
				ErrStateTransition,
				fmt.Sprintf("no transition rule found for transition type '%s' and state '%s'", t, o.state.State()),
			)
		}

		return errors.Wrap(ErrStateTransition, err.Error())
	}

	return nil
}

func (o *Orchestrator) start() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state.State() == StateRunning {
		return ErrRunActive
	}

	if o.cancel.Canceled() {
		return ErrStaleCancel
	}

	if err := o.transition(TransitionStart); err != nil {
		return errors.Wrap(ErrRunActive, err.Error())
	}

	return nil
}

// finish moves the run to its terminal state and back to idle.
func (o *Orchestrator) finish(outcome *model.RunOutcome) {
	o.mu.Lock()
	defer o.mu.Unlock()

	terminal := TransitionComplete

	switch outcome.Status {
	case model.RunCanceled:
		terminal = TransitionCancel
	case model.RunError:
		terminal = TransitionFail
	}

	for _, t := range []sw.TransitionType{terminal, TransitionReset} {
		if err := o.transition(t); err != nil {
			o.logger.WithError(err).Error("run state transition")
		}
	}

	o.lastOutcome = outcome
}

// Poll reads the active devices from the catalog and runs a poll cycle over them.
func (o *Orchestrator) Poll(ctx context.Context, thresholds model.Thresholds, onProgress ProgressFunc) (*model.RunOutcome, error) {
	if o.catalog == nil {
		return nil, errors.Wrap(ErrNoActiveDevices, "no device catalog configured")
	}

	devices, err := o.catalog.ListActiveDevices(ctx)
	if err != nil {
		outcome := o.rejected(thresholds, model.RunError, "device catalog: "+err.Error())
		return outcome, err
	}

	return o.Run(ctx, devices, thresholds, onProgress)
}

func (o *Orchestrator) rejected(thresholds model.Thresholds, status model.RunStatus, msg string) *model.RunOutcome {
	metrics.RunCounter.WithLabelValues(string(status)).Inc()

	now := o.now()

	return &model.RunOutcome{
		ID:         uuid.New(),
		Status:     status,
		Message:    msg,
		Thresholds: thresholds,
		StartedAt:  now,
	}
}

// Run probes the devices, classifies their levels and persists the readings as one batch.
//
// Invalid thresholds, a stale cancel flag and an active run are rejected before any device is probed.
// A canceled run persists nothing and returns a canceled outcome with a nil error.
func (o *Orchestrator) Run(ctx context.Context, devices []model.Device, thresholds model.Thresholds, onProgress ProgressFunc) (*model.RunOutcome, error) {
	if err := thresholds.Validate(); err != nil {
		return o.rejected(thresholds, model.RunError, err.Error()), err
	}

	if err := o.start(); err != nil {
		status := model.RunError
		if errors.Is(err, ErrStaleCancel) {
			status = model.RunCanceled
		}

		return o.rejected(thresholds, status, err.Error()), err
	}

	ctx, span := otel.Tracer(pkgName).Start(ctx, "Orchestrator.Run")
	defer span.End()

	outcome := &model.RunOutcome{
		ID:         uuid.New(),
		Thresholds: thresholds,
		StartedAt:  o.now(),
	}

	span.SetAttributes(
		attribute.String("runID", outcome.ID.String()),
		attribute.Int("devices", len(devices)),
	)

	le := o.logger.WithFields(logrus.Fields{
		"runID":   outcome.ID.String(),
		"devices": len(devices),
	})

	err := o.run(ctx, devices, outcome, onProgress)

	span.SetAttributes(attribute.String("status", string(outcome.Status)))

	metrics.RunCounter.WithLabelValues(string(outcome.Status)).Inc()
	metrics.RunRuntimeSummary.WithLabelValues(string(outcome.Status)).Observe(time.Since(outcome.StartedAt).Seconds())

	o.finish(outcome)

	le.WithField("status", outcome.Status).Info(outcome.Message)

	// alerts never fail a run and never hold it active
	if err == nil && outcome.Summary.AlertEligible() {
		o.dispatchAlerts(ctx, outcome)
	}

	return outcome, err
}

func (o *Orchestrator) run(ctx context.Context, devices []model.Device, outcome *model.RunOutcome, onProgress ProgressFunc) error {
	if len(devices) == 0 {
		outcome.Status = model.RunError
		outcome.Message = ErrNoActiveDevices.Error()

		return ErrNoActiveDevices
	}

	results := o.probe(ctx, devices, onProgress)

	// cancellation is checked once more after the in flight fetches drained
	if o.cancel.Canceled() {
		outcome.Status = model.RunCanceled
		outcome.Message = fmt.Sprintf("run canceled after %d of %d devices, no readings stored", len(results), len(devices))

		return nil
	}

	// every device was probed
	outcome.Timestamp = o.now()
	outcome.Results = classify(results, outcome.Thresholds)
	outcome.Summary = summarize(outcome.Results)

	readings := make([]model.SupplyReading, 0, len(outcome.Results))
	for _, result := range outcome.Results {
		readings = append(readings, model.SupplyReading{
			Timestamp: outcome.Timestamp,
			Address:   result.Device.Address,
			Fractions: result.Fractions,
		})
	}

	if err := o.readings.AppendBatch(ctx, outcome.Timestamp, readings); err != nil {
		outcome.Status = model.RunError
		outcome.Message = "storing readings: " + err.Error()
		outcome.Timestamp = time.Time{}

		return err
	}

	for _, l := range []model.Level{model.LevelLow, model.LevelMedium, model.LevelNormal, model.LevelAbsent} {
		metrics.DevicesByLevel.WithLabelValues(string(l)).Set(float64(countLevel(outcome.Results, l)))
	}

	outcome.Status = model.RunSuccess
	if outcome.Summary.Low+outcome.Summary.Medium+outcome.Summary.Absent > 0 {
		outcome.Status = model.RunWarning
	}

	outcome.Message = summaryMessage(outcome.Summary, outcome.Thresholds)

	return nil
}

type fetchResult struct {
	device    model.Device
	fractions model.Fractions
}

// probe fetches every device through the limiter and returns the results in completion order.
//
// It returns early, with the results collected so far, once the cancel flag is set or ctx is done.
func (o *Orchestrator) probe(ctx context.Context, devices []model.Device, onProgress ProgressFunc) []fetchResult {
	limiter := worker.NewLimiter(o.concurrency)

	// buffered to the device count so a fetch never waits on the collector
	resultCh := make(chan fetchResult, len(devices))
	collectedCh := make(chan []fetchResult)

	relay := newProgressRelay(onProgress, len(devices), o.logger)

	go func() {
		collected := make([]fetchResult, 0, len(devices))

		for result := range resultCh {
			collected = append(collected, result)

			relay.emit(Progress{
				Device:    result.device,
				Fractions: result.fractions,
				Done:      len(collected),
				Total:     len(devices),
				Percent:   float64(len(collected)) * 100 / float64(len(devices)),
			})
		}

		collectedCh <- collected
	}()

	for _, device := range devices {
		if o.cancel.Canceled() {
			break
		}

		device := device

		err := limiter.Dispatch(ctx, func() {
			resultCh <- fetchResult{device: device, fractions: o.fetcher.Fetch(ctx, device, o.cancel)}
		})
		if err != nil {
			// the context ended, treat it as a cancel request
			o.logger.WithError(err).Warn("poll run dispatch interrupted")
			o.cancel.Cancel()

			break
		}
	}

	limiter.StopWait()
	close(resultCh)

	collected := <-collectedCh

	relay.stopWait(o.progressTimeout)

	return collected
}

func classify(results []fetchResult, thresholds model.Thresholds) []model.DeviceResult {
	classified := make([]model.DeviceResult, 0, len(results))

	for _, result := range results {
		classified = append(classified, model.DeviceResult{
			Device:    result.device,
			Fractions: result.fractions,
			Level:     level.ClassifyFractions(result.fractions, thresholds),
		})
	}

	slices.SortFunc(classified, func(a, b model.DeviceResult) int {
		switch {
		case a.Device.Address < b.Device.Address:
			return -1
		case a.Device.Address > b.Device.Address:
			return 1
		default:
			return 0
		}
	})

	return classified
}

func summarize(results []model.DeviceResult) model.RunSummary {
	summary := model.RunSummary{Total: len(results)}

	for _, result := range results {
		switch result.Level {
		case model.LevelLow:
			summary.Low++
		case model.LevelMedium:
			summary.Medium++
		case model.LevelAbsent:
			summary.Absent++
		}
	}

	summary.Responded = summary.Total - summary.Absent

	return summary
}

func countLevel(results []model.DeviceResult, l model.Level) int {
	n := 0

	for _, result := range results {
		if result.Level == l {
			n++
		}
	}

	return n
}

func summaryMessage(s model.RunSummary, t model.Thresholds) string {
	return fmt.Sprintf(
		"polled %d devices, %d responded: %d low (<%d%%), %d medium (<%d%%), %d without data",
		s.Total, s.Responded, s.Low, t.Low, s.Medium, t.Medium, s.Absent,
	)
}

func (o *Orchestrator) dispatchAlerts(ctx context.Context, outcome *model.RunOutcome) {
	if o.dispatcher == nil {
		return
	}

	notice := alert.NewNotice(outcome)
	if notice == nil {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, o.alertTimeout)
	defer cancel()

	if err := o.dispatcher.NotifyLowLevel(ctx, notice); err != nil {
		metrics.AlertCounter.WithLabelValues("error").Inc()

		o.logger.WithFields(logrus.Fields{
			"runID":   outcome.ID.String(),
			"devices": len(notice.Devices),
			"err":     err.Error(),
		}).Warn("low level alert dispatch failed")
	}
}
