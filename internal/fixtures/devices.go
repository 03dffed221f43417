package fixtures

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/metal-toolbox/printwatch/internal/model"
)

// Devices returns n active MX611 devices with distinct addresses, alternating between two sites.
func Devices(n int) []model.Device {
	devices := make([]model.Device, 0, n)

	for i := 0; i < n; i++ {
		site := "North"
		if i%2 == 1 {
			site = "South"
		}

		devices = append(devices, model.Device{
			Address: fmt.Sprintf("10.0.%d.%d", i/250, i%250+1),
			Model:   "Lexmark MX611dhe",
			Site:    site,
			Name:    fmt.Sprintf("printer-%03d", i),
			Serial:  fmt.Sprintf("7016%06d", i),
			Active:  true,
		})
	}

	return devices
}

// Fraction returns a pointer to f.
func Fraction(f float64) *float64 {
	return &f
}

// FakeFetcher is an instrumented fetcher returning preset fractions per device address.
type FakeFetcher struct {
	// Fractions per address, devices missing from the map report all absent.
	Fractions map[string]model.Fractions
	// Delay is applied to every fetch.
	Delay time.Duration
	// OnFetch, when set, is called at the start of every fetch that was not skipped.
	OnFetch func(device model.Device)

	inflight int32
	peak     int32
	calls    int32
	skipped  int32

	mu      sync.Mutex
	fetched []string
}

// Fetch records the call and returns the preset fractions after Delay.
func (f *FakeFetcher) Fetch(ctx context.Context, device model.Device, cancel *model.CancelFlag) model.Fractions {
	if cancel.Canceled() {
		atomic.AddInt32(&f.skipped, 1)
		return model.Fractions{}
	}

	atomic.AddInt32(&f.calls, 1)

	n := atomic.AddInt32(&f.inflight, 1)
	defer atomic.AddInt32(&f.inflight, -1)

	for {
		peak := atomic.LoadInt32(&f.peak)
		if n <= peak || atomic.CompareAndSwapInt32(&f.peak, peak, n) {
			break
		}
	}

	if f.OnFetch != nil {
		f.OnFetch(device)
	}

	if f.Delay > 0 {
		select {
		case <-time.After(f.Delay):
		case <-ctx.Done():
			return model.Fractions{}
		}
	}

	f.mu.Lock()
	f.fetched = append(f.fetched, device.Address)
	f.mu.Unlock()

	return f.Fractions[device.Address].Clone()
}

// Peak returns the highest number of concurrent fetches observed.
func (f *FakeFetcher) Peak() int {
	return int(atomic.LoadInt32(&f.peak))
}

// Calls returns the number of fetches that were not skipped.
func (f *FakeFetcher) Calls() int {
	return int(atomic.LoadInt32(&f.calls))
}

// Skipped returns the number of fetches skipped on a set cancel flag.
func (f *FakeFetcher) Skipped() int {
	return int(atomic.LoadInt32(&f.skipped))
}

// Fetched returns the addresses fetched, in completion order.
func (f *FakeFetcher) Fetched() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]string(nil), f.fetched...)
}
