package worker

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/goleak"
)

func Test_Limiter_Run(t *testing.T) {
	defer goleak.VerifyNone(t)

	limiter := NewLimiter(5)

	returnCh := make(chan struct{})

	count := 3
	for i := 0; i < count; i++ {
		err := limiter.Dispatch(context.Background(), func() {
			returnCh <- struct{}{}
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	for i := 0; i < count; i++ {
		<-returnCh
	}

	limiter.StopWait()
}

func Test_Limiter_TryDispatch_limits(t *testing.T) {
	defer goleak.VerifyNone(t)

	limiter := NewLimiter(3)

	returnCh := make(chan struct{})

	count := 3
	for i := 0; i < count; i++ {
		err := limiter.TryDispatch(func() {
			<-returnCh
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	// add another func exceeding concurrency limit of 3
	err := limiter.TryDispatch(func() {
		t.Error("expected limiter to limit concurrency")
	})

	assert.ErrorIs(t, err, ErrLimiterConcurrency)

	// unblock routines
	for i := 0; i < count; i++ {
		returnCh <- struct{}{}
	}

	limiter.StopWait()
}

func Test_Limiter_Dispatch_queues(t *testing.T) {
	defer goleak.VerifyNone(t)

	concurrency := 4
	limiter := NewLimiter(concurrency)

	var inflight, peak int32

	var mu sync.Mutex

	total := 40
	for i := 0; i < total; i++ {
		err := limiter.Dispatch(context.Background(), func() {
			n := atomic.AddInt32(&inflight, 1)

			mu.Lock()
			if n > peak {
				peak = n
			}
			mu.Unlock()

			time.Sleep(5 * time.Millisecond)
			atomic.AddInt32(&inflight, -1)
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	limiter.StopWait()

	assert.LessOrEqual(t, int(peak), concurrency)
	assert.Equal(t, 0, limiter.ActiveCount())
}

func Test_Limiter_Dispatch_context(t *testing.T) {
	defer goleak.VerifyNone(t)

	limiter := NewLimiter(1)

	releaseCh := make(chan struct{})

	err := limiter.Dispatch(context.Background(), func() { <-releaseCh })
	assert.Nil(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err = limiter.Dispatch(ctx, func() {
		t.Error("expected dispatch to give up on context deadline")
	})

	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(releaseCh)
	limiter.StopWait()
}

func Test_Limiter_Active(t *testing.T) {
	defer goleak.VerifyNone(t)

	limiter := NewLimiter(5)

	// release causes the job to return
	releaseCh := make(chan struct{})

	count := 3
	for i := 0; i < count; i++ {
		err := limiter.Dispatch(context.Background(), func() {
			<-releaseCh
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	// test active jobs are as expected
	assert.Equal(t, count, limiter.ActiveCount())

	for i := 0; i < count; i++ {
		// cause job to return
		releaseCh <- struct{}{}
	}

	limiter.StopWait()

	assert.Equal(t, 0, limiter.ActiveCount())
}

func Test_Limiter_StopWait(t *testing.T) {
	defer goleak.VerifyNone(t)

	limiter := NewLimiter(5)

	returnCh := make(chan struct{})

	count := 3
	for i := 0; i < count; i++ {
		err := limiter.Dispatch(context.Background(), func() {
			time.Sleep(100 * time.Millisecond)
			returnCh <- struct{}{}
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	stopped := make(chan struct{})

	go func() {
		limiter.StopWait()
		close(stopped)
	}()

	// give a few ms for StopWait to run
	time.Sleep(10 * time.Millisecond)

	assert.True(t, limiter.Draining())

	err := limiter.Dispatch(context.Background(), func() {
		t.Error("expected limiter to not accept methods in after StopWait()")
	})

	assert.ErrorIs(t, err, ErrLimiterDrain)

	for i := 0; i < count; i++ {
		<-returnCh
	}

	<-stopped
}
