// Package scheduler runs poll cycles on a cron schedule.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/jpillora/backoff"
	"github.com/metal-toolbox/printwatch/internal/model"
	"github.com/metal-toolbox/printwatch/internal/poll"
	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

const (
	// MinInterval and MaxInterval bound the time between two scheduled runs.
	MinInterval = 15 * time.Minute
	MaxInterval = 48 * time.Hour

	// intervals sampled when validating a cron expression
	scheduleSamples = 16

	defaultRetryMin      = 5 * time.Second
	defaultRetryMax      = 2 * time.Minute
	defaultRetryAttempts = 6
)

var (
	ErrSchedule        = errors.New("invalid poll schedule")
	ErrSchedulerActive = errors.New("scheduler already started")
	ErrRunDeferred     = errors.New("scheduled run gave up, a run stayed active")
)

// Poller is the orchestrator surface the scheduler drives.
type Poller interface {
	Rearm() error
	Poll(ctx context.Context, thresholds model.Thresholds, onProgress poll.ProgressFunc) (*model.RunOutcome, error)
}

// Scheduler triggers Poller runs on a cron schedule.
type Scheduler struct {
	poller     Poller
	thresholds model.Thresholds
	logger     *logrus.Logger

	retryMin      time.Duration
	retryMax      time.Duration
	retryAttempts int

	mu     sync.Mutex
	cron   *cron.Cron
	cancel context.CancelFunc
}

// Option sets a Scheduler parameter.
type Option func(*Scheduler)

// WithRetry sets the backoff applied while the orchestrator is busy at tick time.
func WithRetry(minWait, maxWait time.Duration, attempts int) Option {
	return func(s *Scheduler) {
		s.retryMin = minWait
		s.retryMax = maxWait
		s.retryAttempts = attempts
	}
}

// New returns a Scheduler running poller with the given thresholds.
func New(poller Poller, thresholds model.Thresholds, logger *logrus.Logger, opts ...Option) *Scheduler {
	s := &Scheduler{
		poller:        poller,
		thresholds:    thresholds,
		logger:        logger,
		retryMin:      defaultRetryMin,
		retryMax:      defaultRetryMax,
		retryAttempts: defaultRetryAttempts,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// ParseSchedule parses a standard cron expression or descriptor (@every 1h, @daily)
// and verifies the time between runs stays within MinInterval and MaxInterval.
func ParseSchedule(spec string) (cron.Schedule, error) {
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, errors.Wrap(ErrSchedule, err.Error())
	}

	if every, ok := schedule.(cron.ConstantDelaySchedule); ok {
		if err := checkInterval(spec, every.Delay); err != nil {
			return nil, err
		}

		return schedule, nil
	}

	// sample the gaps between upcoming activations
	next := schedule.Next(time.Now())
	for i := 0; i < scheduleSamples; i++ {
		after := schedule.Next(next)
		if after.IsZero() {
			return nil, errors.Wrap(ErrSchedule, spec+": schedule never fires")
		}

		if err := checkInterval(spec, after.Sub(next)); err != nil {
			return nil, err
		}

		next = after
	}

	return schedule, nil
}

func checkInterval(spec string, interval time.Duration) error {
	if interval < MinInterval || interval > MaxInterval {
		return errors.Wrapf(
			ErrSchedule,
			"%s: runs %s apart, expected between %s and %s",
			spec, interval, MinInterval, MaxInterval,
		)
	}

	return nil
}

// Start schedules runs per spec, it returns once the cron runner is started.
//
// Runs are skipped while a previous scheduled run is still in progress. Stop ends the schedule.
func (s *Scheduler) Start(ctx context.Context, spec string) error {
	schedule, err := ParseSchedule(spec)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron != nil {
		return ErrSchedulerActive
	}

	cronLogger := cron.PrintfLogger(s.logger)

	s.cron = cron.New(cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)))

	ctx, s.cancel = context.WithCancel(ctx)

	s.cron.Schedule(schedule, cron.FuncJob(func() {
		// errors are logged by tick
		_ = s.tick(ctx)
	}))

	s.cron.Start()

	s.logger.WithFields(logrus.Fields{
		"schedule": spec,
		"next":     schedule.Next(time.Now()).Format(time.RFC3339),
	}).Info("poll schedule started")

	return nil
}

// Stop ends the schedule, interrupting a run in progress, and waits for it to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron == nil {
		return
	}

	s.cancel()
	<-s.cron.Stop().Done()

	s.cron = nil

	s.logger.Info("poll schedule stopped")
}

// RunOnce runs a poll now, with the same deferral as a scheduled run.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	return s.tick(ctx)
}

// tick runs one scheduled poll, deferring with backoff while another run is active.
func (s *Scheduler) tick(ctx context.Context) error {
	delay := &backoff.Backoff{
		Min:    s.retryMin,
		Max:    s.retryMax,
		Factor: 2,
		Jitter: true,
	}

	for attempt := 1; ; attempt++ {
		outcome, err := s.attempt(ctx)
		if err == nil {
			s.logger.WithFields(logrus.Fields{
				"runID":  outcome.ID.String(),
				"status": outcome.Status,
			}).Info("scheduled run finished: " + outcome.Message)

			return nil
		}

		if !errors.Is(err, poll.ErrRunActive) {
			s.logger.WithError(err).Warn("scheduled run failed")
			return err
		}

		if attempt >= s.retryAttempts {
			s.logger.WithField("attempts", attempt).Warn(ErrRunDeferred.Error())
			return errors.Wrap(ErrRunDeferred, err.Error())
		}

		wait := delay.Duration()

		s.logger.WithFields(logrus.Fields{
			"attempt": attempt,
			"retryIn": wait.String(),
		}).Debug("a run is active, scheduled run deferred")

		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (s *Scheduler) attempt(ctx context.Context) (*model.RunOutcome, error) {
	// a scheduled run starts with a clear cancel flag
	if err := s.poller.Rearm(); err != nil {
		return nil, err
	}

	return s.poller.Poll(ctx, s.thresholds, func(p poll.Progress) {
		s.logger.WithFields(logrus.Fields{
			"address": p.Device.Address,
			"done":    p.Done,
			"total":   p.Total,
		}).Trace("scheduled run progress")
	})
}
