// Package depletion projects consumable exhaustion dates from reading history.
package depletion

import (
	"math"
	"time"

	"github.com/metal-toolbox/printwatch/internal/model"
)

const (
	// MaxHorizonDays bounds projections, anything further out is not a meaningful prediction.
	MaxHorizonDays = 3650

	day = 24 * time.Hour
)

// Sample is one point of a consumable history, Percent is on a 0-100 scale and nil when absent.
type Sample struct {
	Timestamp time.Time
	Percent   *float64
}

// Predict fits a least squares line of percent against elapsed days and returns the
// instant the line reaches zero.
//
// ok is false when fewer than two samples are present, the trend is flat or rising,
// the projection is more than MaxHorizonDays out, or the projected date is not after today.
func Predict(history []Sample, today time.Time) (exhaustion time.Time, ok bool) {
	var (
		base   time.Time
		xs, ys []float64
	)

	for _, s := range history {
		if s.Percent == nil || math.IsNaN(*s.Percent) || math.IsInf(*s.Percent, 0) {
			continue
		}

		if len(xs) == 0 {
			base = s.Timestamp
		}

		xs = append(xs, s.Timestamp.Sub(base).Seconds()/day.Seconds())
		ys = append(ys, *s.Percent)
	}

	if len(xs) < 2 {
		return time.Time{}, false
	}

	slope, intercept, fitted := fitLine(xs, ys)
	if !fitted || slope >= 0 {
		return time.Time{}, false
	}

	days := -intercept / slope
	if days > MaxHorizonDays {
		return time.Time{}, false
	}

	predicted := base.Add(time.Duration(days * float64(day)))
	if !dateAfter(predicted, today) {
		return time.Time{}, false
	}

	return predicted, true
}

// fitLine returns the degree one least squares fit of ys over xs.
func fitLine(xs, ys []float64) (slope, intercept float64, ok bool) {
	n := float64(len(xs))

	var sumX, sumY float64
	for i := range xs {
		sumX += xs[i]
		sumY += ys[i]
	}

	meanX, meanY := sumX/n, sumY/n

	var sxx, sxy float64
	for i := range xs {
		dx := xs[i] - meanX
		sxx += dx * dx
		sxy += dx * (ys[i] - meanY)
	}

	// all samples at the same instant
	if sxx == 0 {
		return 0, 0, false
	}

	slope = sxy / sxx
	intercept = meanY - slope*meanX

	return slope, intercept, true
}

// dateAfter compares calendar dates in the location of today.
func dateAfter(t, today time.Time) bool {
	ty, tm, td := t.In(today.Location()).Date()
	y, m, d := today.Date()

	return time.Date(ty, tm, td, 0, 0, 0, 0, time.UTC).After(time.Date(y, m, d, 0, 0, 0, 0, time.UTC))
}

// Series returns the history of one consumable from readings ordered by time, on a 0-100 scale.
func Series(readings []model.SupplyReading, c model.Consumable) []Sample {
	samples := make([]Sample, 0, len(readings))

	for _, r := range readings {
		s := Sample{Timestamp: r.Timestamp}
		if v := r.Value(c); v != nil {
			pct := *v * 100
			s.Percent = &pct
		}

		samples = append(samples, s)
	}

	return samples
}
