package worker

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
)

var (
	ErrLimiterConcurrency = errors.New("error running task, reached concurrency limit")
	ErrLimiterDrain       = errors.New("draining tasks")
)

// requirements
// - at most concurrency funcs run at any time, Dispatch queues (blocks) beyond that
// - drain blocks adding more items to be run, waits until all items are complete
// - accepts func() - all error handling must be wrapped in a closure by the caller
// - supports returning number of running items

// Limiter runs go routines limiting them by the defined concurrency.
type Limiter struct {
	// waitgroup for running routines.
	wg *sync.WaitGroup
	// slots holds one element per running routine.
	slots chan struct{}
	// mu is the guard for drain.
	mu sync.RWMutex
	// active is the number of routines currently running.
	active int32
	// drain is the flag set when StopWait() invoked, with drain=true, no further tasks are accepted.
	drain bool
}

// NewLimiter returns a new limiting go routine runner.
// To ensure the routines spawned by Limiter are stopped, the StopWait() method should be invoked.
//
// concurrency is the limit on the number of running go routines, values below 1 are treated as 1.
func NewLimiter(concurrency int) *Limiter {
	if concurrency < 1 {
		concurrency = 1
	}

	return &Limiter{
		wg:    &sync.WaitGroup{},
		slots: make(chan struct{}, concurrency),
	}
}

// Dispatch runs the given routine once a slot is free, blocking while the limiter is at capacity.
//
// The routine to be executed should be wrapped in a closure.
func (l *Limiter) Dispatch(ctx context.Context, f func()) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := l.reserve(); err != nil {
		return err
	}

	select {
	case l.slots <- struct{}{}:
	case <-ctx.Done():
		l.wg.Done()
		return ctx.Err()
	}

	l.run(f)

	return nil
}

// TryDispatch runs the given routine if a slot is free, it returns ErrLimiterConcurrency otherwise.
func (l *Limiter) TryDispatch(f func()) error {
	if err := l.reserve(); err != nil {
		return err
	}

	select {
	case l.slots <- struct{}{}:
	default:
		l.wg.Done()
		return ErrLimiterConcurrency
	}

	l.run(f)

	return nil
}

func (l *Limiter) reserve() error {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.drain {
		return ErrLimiterDrain
	}

	l.wg.Add(1)

	return nil
}

func (l *Limiter) run(f func()) {
	atomic.AddInt32(&l.active, 1)

	go func() {
		defer func() {
			atomic.AddInt32(&l.active, -1)
			<-l.slots
			l.wg.Done()
		}()

		f()
	}()
}

// ActiveCount returns the count of running routines
func (l *Limiter) ActiveCount() int {
	return int(atomic.LoadInt32(&l.active))
}

// Draining returns true once StopWait has been invoked.
func (l *Limiter) Draining() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.drain
}

// StopWait prevents any further routines from being added
// and waits until all the routines complete.
func (l *Limiter) StopWait() {
	l.mu.Lock()
	l.drain = true
	l.mu.Unlock()

	l.wg.Wait()
}
