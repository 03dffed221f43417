package poll

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	sw "github.com/filanov/stateswitch"
	"github.com/metal-toolbox/printwatch/internal/alert"
	"github.com/metal-toolbox/printwatch/internal/fixtures"
	"github.com/metal-toolbox/printwatch/internal/model"
	"github.com/metal-toolbox/printwatch/internal/store"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/mock/gomock"
)

var (
	testThresholds = model.Thresholds{Low: 10, Medium: 25}
	testNow        = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
)

func fixedClock() time.Time { return testNow }

func TestRunConcurrencyCap(t *testing.T) {
	defer goleak.VerifyNone(t)

	devices := fixtures.Devices(65)
	fetcher := &fixtures.FakeFetcher{Delay: 15 * time.Millisecond}
	readings := store.NewMemStore()

	o := New(fetcher, readings, logrus.New())

	outcome, err := o.Run(context.Background(), devices, testThresholds, nil)
	require.NoError(t, err)

	assert.Equal(t, model.DefaultConcurrency, o.concurrency)
	assert.LessOrEqual(t, fetcher.Peak(), model.DefaultConcurrency)
	assert.Greater(t, fetcher.Peak(), 1, "expected fetches to run in parallel")
	assert.Equal(t, len(devices), fetcher.Calls())

	assert.Equal(t, model.RunWarning, outcome.Status, "every device is absent")
	assert.Equal(t, len(devices), outcome.Summary.Absent)

	batch, _, err := readings.LatestBatch(context.Background())
	require.NoError(t, err)
	assert.Len(t, batch, len(devices))
}

func TestRunClassifiesAndPersists(t *testing.T) {
	devices := fixtures.Devices(4)

	fetcher := &fixtures.FakeFetcher{
		Fractions: map[string]model.Fractions{
			devices[0].Address: {Toner: fixtures.Fraction(0.05), Kit: fixtures.Fraction(0.30)},
			devices[1].Address: {Toner: fixtures.Fraction(0.20)},
			devices[2].Address: {Toner: fixtures.Fraction(0.50), Imaging: fixtures.Fraction(0.90)},
		},
	}

	ctrl := gomock.NewController(t)
	readings := fixtures.NewMockReadingStore(ctrl)
	dispatcher := fixtures.NewMockDispatcher(ctrl)

	readings.EXPECT().
		AppendBatch(gomock.Any(), testNow, gomock.Any()).
		Times(1).
		DoAndReturn(func(_ context.Context, ts time.Time, batch []model.SupplyReading) error {
			require.Len(t, batch, len(devices))

			for _, r := range batch {
				assert.Equal(t, ts, r.Timestamp, "readings share the batch timestamp")
			}

			return nil
		})

	dispatcher.EXPECT().
		NotifyLowLevel(gomock.Any(), gomock.Any()).
		Times(1).
		DoAndReturn(func(_ context.Context, notice *alert.Notice) error {
			require.Len(t, notice.Devices, 1)
			assert.Equal(t, devices[0].Address, notice.Devices[0].Address)
			assert.Equal(t, 10, notice.LowThreshold)

			return nil
		})

	o := New(fetcher, readings, logrus.New(), WithClock(fixedClock), WithDispatcher(dispatcher))

	outcome, err := o.Run(context.Background(), devices, testThresholds, nil)
	require.NoError(t, err)

	assert.Equal(t, model.RunWarning, outcome.Status)
	assert.Equal(t, testNow, outcome.Timestamp)
	assert.Equal(t, model.RunSummary{Total: 4, Responded: 3, Low: 1, Medium: 1, Absent: 1}, outcome.Summary)
	assert.Equal(t, "polled 4 devices, 3 responded: 1 low (<10%), 1 medium (<25%), 1 without data", outcome.Message)

	levels := map[string]model.Level{}
	for _, r := range outcome.Results {
		levels[r.Device.Address] = r.Level
	}

	assert.Equal(t, map[string]model.Level{
		devices[0].Address: model.LevelLow,
		devices[1].Address: model.LevelMedium,
		devices[2].Address: model.LevelNormal,
		devices[3].Address: model.LevelAbsent,
	}, levels)

	assert.Equal(t, StateIdle, o.State())
	assert.Equal(t, outcome, o.LastOutcome())
}

func TestRunSuccessWithoutAlerts(t *testing.T) {
	devices := fixtures.Devices(2)
	fetcher := &fixtures.FakeFetcher{
		Fractions: map[string]model.Fractions{
			devices[0].Address: {Toner: fixtures.Fraction(0.80)},
			devices[1].Address: {Toner: fixtures.Fraction(0.60), Kit: fixtures.Fraction(0.40)},
		},
	}

	ctrl := gomock.NewController(t)
	// no expectations, any dispatch fails the test
	dispatcher := fixtures.NewMockDispatcher(ctrl)

	o := New(fetcher, store.NewMemStore(), logrus.New(), WithDispatcher(dispatcher))

	outcome, err := o.Run(context.Background(), devices, testThresholds, nil)
	require.NoError(t, err)
	assert.Equal(t, model.RunSuccess, outcome.Status)
	assert.False(t, outcome.Summary.AlertEligible())
}

func TestRunAlertFailureDoesNotFailRun(t *testing.T) {
	devices := fixtures.Devices(1)
	fetcher := &fixtures.FakeFetcher{
		Fractions: map[string]model.Fractions{devices[0].Address: {Toner: fixtures.Fraction(0.01)}},
	}

	ctrl := gomock.NewController(t)
	dispatcher := fixtures.NewMockDispatcher(ctrl)
	dispatcher.EXPECT().NotifyLowLevel(gomock.Any(), gomock.Any()).Return(errors.New("nats down")).Times(1)

	o := New(fetcher, store.NewMemStore(), logrus.New(), WithDispatcher(dispatcher))

	outcome, err := o.Run(context.Background(), devices, testThresholds, nil)
	require.NoError(t, err)
	assert.Equal(t, model.RunWarning, outcome.Status)
	assert.Equal(t, 1, outcome.Summary.Low)
}

func TestRunCancelDiscardsBatch(t *testing.T) {
	defer goleak.VerifyNone(t)

	devices := fixtures.Devices(30)
	fetcher := &fixtures.FakeFetcher{Delay: 5 * time.Millisecond}

	ctrl := gomock.NewController(t)
	// no expectations, a persisted batch fails the test
	readings := fixtures.NewMockReadingStore(ctrl)

	o := New(fetcher, readings, logrus.New(), WithConcurrency(2))

	var fetches int32

	fetcher.OnFetch = func(model.Device) {
		if atomic.AddInt32(&fetches, 1) == 5 {
			o.Cancel()
		}
	}

	outcome, err := o.Run(context.Background(), devices, testThresholds, nil)
	require.NoError(t, err, "cancellation is not an error")

	assert.Equal(t, model.RunCanceled, outcome.Status)
	assert.True(t, outcome.Timestamp.IsZero())
	assert.Empty(t, outcome.Results)
	assert.GreaterOrEqual(t, fetcher.Calls(), 5)
	assert.Less(t, fetcher.Calls(), len(devices), "devices after the cancel are not probed")
	assert.Equal(t, StateIdle, o.State())

	// the flag stays set until rearmed
	outcome, err = o.Run(context.Background(), devices, testThresholds, nil)
	assert.ErrorIs(t, err, ErrStaleCancel)
	assert.Equal(t, model.RunCanceled, outcome.Status)

	require.NoError(t, o.Rearm())
	assert.False(t, o.Canceled())

	readings.EXPECT().AppendBatch(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil).Times(1)

	fetcher.OnFetch = nil

	outcome, err = o.Run(context.Background(), devices, testThresholds, nil)
	require.NoError(t, err)
	assert.Equal(t, model.RunWarning, outcome.Status)
}

func TestRunStaleCancelProbesNothing(t *testing.T) {
	fetcher := &fixtures.FakeFetcher{}
	o := New(fetcher, store.NewMemStore(), logrus.New())

	o.Cancel()

	outcome, err := o.Run(context.Background(), fixtures.Devices(3), testThresholds, nil)
	assert.ErrorIs(t, err, ErrStaleCancel)
	assert.Equal(t, model.RunCanceled, outcome.Status)
	assert.Equal(t, 0, fetcher.Calls())
	assert.Equal(t, 0, fetcher.Skipped())
	assert.Equal(t, StateIdle, o.State())
}

func TestRunContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	o := New(&fixtures.FakeFetcher{}, store.NewMemStore(), logrus.New(), WithConcurrency(1))

	outcome, err := o.Run(ctx, fixtures.Devices(5), testThresholds, nil)
	require.NoError(t, err)
	assert.Equal(t, model.RunCanceled, outcome.Status)
	assert.True(t, o.Canceled())
}

func TestRunRejected(t *testing.T) {
	tests := []struct {
		name       string
		devices    []model.Device
		thresholds model.Thresholds
		expectErr  error
	}{
		{"no devices", []model.Device{}, testThresholds, ErrNoActiveDevices},
		{"low not below medium", fixtures.Devices(1), model.Thresholds{Low: 25, Medium: 25}, ErrInvalidThresholds},
		{"threshold out of range", fixtures.Devices(1), model.Thresholds{Low: 0, Medium: 25}, ErrInvalidThresholds},
		{"threshold above 99", fixtures.Devices(1), model.Thresholds{Low: 10, Medium: 100}, ErrInvalidThresholds},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			// no expectations, storage must not be touched
			readings := fixtures.NewMockReadingStore(ctrl)
			fetcher := &fixtures.FakeFetcher{}

			o := New(fetcher, readings, logrus.New())

			outcome, err := o.Run(context.Background(), tc.devices, tc.thresholds, nil)
			assert.ErrorIs(t, err, tc.expectErr)
			assert.Equal(t, model.RunError, outcome.Status)
			assert.NotEmpty(t, outcome.Message)
			assert.Equal(t, 0, fetcher.Calls())
			assert.Equal(t, StateIdle, o.State())
		})
	}
}

func TestRunStoreError(t *testing.T) {
	ctrl := gomock.NewController(t)
	readings := fixtures.NewMockReadingStore(ctrl)
	readings.EXPECT().AppendBatch(gomock.Any(), gomock.Any(), gomock.Any()).Return(store.ErrStore).Times(1)

	o := New(&fixtures.FakeFetcher{}, readings, logrus.New())

	outcome, err := o.Run(context.Background(), fixtures.Devices(2), testThresholds, nil)
	assert.ErrorIs(t, err, store.ErrStore)
	assert.Equal(t, model.RunError, outcome.Status)
	assert.Equal(t, StateIdle, o.State())
}

func TestRunActive(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})

	var once sync.Once

	fetcher := &fixtures.FakeFetcher{
		OnFetch: func(model.Device) {
			once.Do(func() { close(started) })
			<-release
		},
	}

	o := New(fetcher, store.NewMemStore(), logrus.New())

	var wg sync.WaitGroup

	wg.Add(1)

	go func() {
		defer wg.Done()

		_, err := o.Run(context.Background(), fixtures.Devices(1), testThresholds, nil)
		assert.NoError(t, err)
	}()

	<-started

	assert.Equal(t, StateRunning, o.State())

	_, err := o.Run(context.Background(), fixtures.Devices(1), testThresholds, nil)
	assert.ErrorIs(t, err, ErrRunActive)

	assert.ErrorIs(t, o.Rearm(), ErrRunActive)

	close(release)
	wg.Wait()

	assert.Equal(t, StateIdle, o.State())
}

func TestRunProgress(t *testing.T) {
	devices := fixtures.Devices(10)
	o := New(&fixtures.FakeFetcher{}, store.NewMemStore(), logrus.New(), WithConcurrency(3))

	var (
		mu     sync.Mutex
		events []Progress
	)

	_, err := o.Run(context.Background(), devices, testThresholds, func(p Progress) {
		mu.Lock()
		defer mu.Unlock()

		events = append(events, p)
	})
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()

	require.Len(t, events, len(devices))

	seen := map[string]bool{}

	for idx, p := range events {
		assert.Equal(t, idx+1, p.Done)
		assert.Equal(t, len(devices), p.Total)
		seen[p.Device.Address] = true
	}

	assert.Len(t, seen, len(devices))
	assert.InDelta(t, 100.0, events[len(events)-1].Percent, 1e-9)
}

func TestRunSlowProgressCallback(t *testing.T) {
	o := New(&fixtures.FakeFetcher{}, store.NewMemStore(), logrus.New(), WithProgressTimeout(20*time.Millisecond))

	block := make(chan struct{})
	defer close(block)

	start := time.Now()

	outcome, err := o.Run(context.Background(), fixtures.Devices(3), testThresholds, func(Progress) {
		<-block
	})
	require.NoError(t, err)

	assert.Equal(t, model.RunWarning, outcome.Status)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestPoll(t *testing.T) {
	ctrl := gomock.NewController(t)
	catalog := fixtures.NewMockDeviceCatalog(ctrl)

	devices := fixtures.Devices(3)
	catalog.EXPECT().ListActiveDevices(gomock.Any()).Return(devices, nil).Times(1)

	fetcher := &fixtures.FakeFetcher{}
	o := New(fetcher, store.NewMemStore(), logrus.New(), WithCatalog(catalog))

	outcome, err := o.Poll(context.Background(), testThresholds, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, outcome.Summary.Total)
	assert.ElementsMatch(t, []string{devices[0].Address, devices[1].Address, devices[2].Address}, fetcher.Fetched())

	catalog.EXPECT().ListActiveDevices(gomock.Any()).Return(nil, store.ErrYamlCatalog).Times(1)

	outcome, err = o.Poll(context.Background(), testThresholds, nil)
	assert.ErrorIs(t, err, store.ErrYamlCatalog)
	assert.Equal(t, model.RunError, outcome.Status)

	catalog.EXPECT().ListActiveDevices(gomock.Any()).Return([]model.Device{}, nil).Times(1)

	_, err = o.Poll(context.Background(), testThresholds, nil)
	assert.ErrorIs(t, err, ErrNoActiveDevices)
}

func TestStateMachineTransitions(t *testing.T) {
	m := newRunStateMachine()
	s := newRunState(fixedClock)

	// a run cannot complete before it started
	err := m.Run(TransitionComplete, s, nil)
	assert.ErrorIs(t, err, sw.NoConditionPassedToRunTransaction)

	require.NoError(t, m.Run(TransitionStart, s, nil))
	assert.Equal(t, StateRunning, s.State())
	assert.Equal(t, testNow, s.startedAt)

	// no second start while running
	assert.Error(t, m.Run(TransitionStart, s, nil))

	require.NoError(t, m.Run(TransitionCancel, s, nil))
	assert.Equal(t, StateCanceled, s.State())

	require.NoError(t, m.Run(TransitionReset, s, nil))
	assert.Equal(t, StateIdle, s.State())
}

func TestDescribeStateMachine(t *testing.T) {
	b, err := DescribeStateMachine()
	require.NoError(t, err)

	desc := &sw.StateMachineJSON{}
	require.NoError(t, json.Unmarshal(b, desc))

	destinations := map[string]bool{}
	for _, rule := range desc.TransitionRules {
		destinations[rule.DestinationState] = true
	}

	for _, state := range []sw.State{StateIdle, StateRunning, StateCompleted, StateCanceled, StateErrored} {
		assert.True(t, destinations[string(state)], string(state))
	}
}
