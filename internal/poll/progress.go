package poll

import (
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// progressRelay calls the progress func from its own goroutine so a slow callback never holds up the fetches.
type progressRelay struct {
	fn      ProgressFunc
	eventCh chan Progress
	doneCh  chan struct{}
	stopped atomic.Bool
	logger  *logrus.Logger
}

func newProgressRelay(fn ProgressFunc, size int, logger *logrus.Logger) *progressRelay {
	r := &progressRelay{
		fn:      fn,
		eventCh: make(chan Progress, size),
		doneCh:  make(chan struct{}),
		logger:  logger,
	}

	go r.relay()

	return r
}

func (r *progressRelay) relay() {
	defer close(r.doneCh)

	for event := range r.eventCh {
		// events left over after stopWait gave up are dropped
		if r.fn == nil || r.stopped.Load() {
			continue
		}

		r.fn(event)
	}
}

// emit queues the event, it never blocks as the channel holds one event per device.
func (r *progressRelay) emit(event Progress) {
	select {
	case r.eventCh <- event:
	default:
		r.logger.WithField("address", event.Device.Address).Debug("progress event dropped")
	}
}

// stopWait closes the relay and waits up to timeout for queued events to be delivered.
func (r *progressRelay) stopWait(timeout time.Duration) {
	close(r.eventCh)

	t := time.NewTimer(timeout)
	defer t.Stop()

	select {
	case <-r.doneCh:
	case <-t.C:
		r.stopped.Store(true)
		r.logger.WithField("timeout", timeout.String()).Warn("progress callback did not return in time, remaining events dropped")
	}
}
