package depletion

import (
	"testing"
	"time"

	"github.com/metal-toolbox/printwatch/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pct(v float64) *float64 { return &v }

var day0 = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func at(days int) time.Time { return day0.AddDate(0, 0, days) }

func TestPredict(t *testing.T) {
	tests := []struct {
		name     string
		history  []Sample
		today    time.Time
		expected time.Time
		ok       bool
	}{
		{
			"declining trend projects zero crossing",
			[]Sample{{at(0), pct(80)}, {at(10), pct(60)}},
			at(12),
			at(40),
			true,
		},
		{
			"rising trend",
			[]Sample{{at(0), pct(50)}, {at(10), pct(55)}},
			at(12),
			time.Time{},
			false,
		},
		{
			"flat trend",
			[]Sample{{at(0), pct(50)}, {at(10), pct(50)}},
			at(12),
			time.Time{},
			false,
		},
		{
			"single sample",
			[]Sample{{at(0), pct(50)}},
			at(1),
			time.Time{},
			false,
		},
		{
			"all absent",
			[]Sample{{at(0), nil}, {at(5), nil}, {at(10), nil}},
			at(11),
			time.Time{},
			false,
		},
		{
			"absent samples are skipped",
			[]Sample{{at(0), nil}, {at(2), pct(80)}, {at(7), nil}, {at(12), pct(60)}},
			at(13),
			at(42),
			true,
		},
		{
			"projection on today is suppressed",
			[]Sample{{at(0), pct(80)}, {at(10), pct(60)}},
			at(40),
			time.Time{},
			false,
		},
		{
			"projection in the past is suppressed",
			[]Sample{{at(0), pct(80)}, {at(10), pct(60)}},
			at(50),
			time.Time{},
			false,
		},
		{
			"projection beyond horizon",
			[]Sample{{at(0), pct(100)}, {at(100), pct(99.9)}},
			at(101),
			time.Time{},
			false,
		},
		{
			"same instant samples",
			[]Sample{{at(3), pct(80)}, {at(3), pct(60)}},
			at(4),
			time.Time{},
			false,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := Predict(tc.history, tc.today)
			require.Equal(t, tc.ok, ok)

			if !tc.ok {
				return
			}

			assert.WithinDuration(t, tc.expected, got, time.Minute)
		})
	}
}

func TestPredictIsRepeatable(t *testing.T) {
	history := []Sample{{at(0), pct(90)}, {at(3), pct(81)}, {at(6), pct(75)}, {at(9), pct(64)}}

	first, ok := Predict(history, at(10))
	require.True(t, ok)

	for i := 0; i < 5; i++ {
		again, ok := Predict(history, at(10))
		require.True(t, ok)
		assert.Equal(t, first, again)
	}

	// input is left untouched
	assert.Equal(t, 90.0, *history[0].Percent)
}

func TestSeries(t *testing.T) {
	readings := []model.SupplyReading{
		{Timestamp: at(0), Address: "10.0.0.1", Fractions: model.Fractions{Toner: pct(0.8), Kit: pct(0.5)}},
		{Timestamp: at(1), Address: "10.0.0.1", Fractions: model.Fractions{Kit: pct(0.4)}},
	}

	toner := Series(readings, model.ConsumableToner)
	require.Len(t, toner, 2)
	assert.InDelta(t, 80.0, *toner[0].Percent, 1e-9)
	assert.Nil(t, toner[1].Percent)

	kit := Series(readings, model.ConsumableKit)
	assert.InDelta(t, 40.0, *kit[1].Percent, 1e-9)
}
