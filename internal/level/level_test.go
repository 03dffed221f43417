package level

import (
	"testing"

	"github.com/metal-toolbox/printwatch/internal/model"
	"github.com/stretchr/testify/assert"
)

func fptr(f float64) *float64 { return &f }

func TestClassify(t *testing.T) {
	tests := []struct {
		name      string
		fractions []float64
		low       int
		medium    int
		expected  model.Level
	}{
		{"empty is absent", nil, 10, 25, model.LevelAbsent},
		{"lowest below low", []float64{0.05, 0.30}, 10, 25, model.LevelLow},
		{"below medium", []float64{0.20}, 10, 25, model.LevelMedium},
		{"normal", []float64{0.50}, 10, 25, model.LevelNormal},
		{"exactly at low is medium", []float64{0.10}, 10, 25, model.LevelMedium},
		{"exactly at medium is normal", []float64{0.25}, 10, 25, model.LevelNormal},
		{"zero is low", []float64{0, 0.9}, 10, 25, model.LevelLow},
		{"minimum wins regardless of position", []float64{0.9, 0.8, 0.07}, 10, 25, model.LevelLow},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, Classify(tc.fractions, tc.low, tc.medium))
		})
	}
}

func TestClassifyMonotonic(t *testing.T) {
	prev := model.LevelLow.Severity() + 1

	for pct := 0; pct <= 100; pct++ {
		got := Classify([]float64{float64(pct) / 100, 1}, 10, 25)
		assert.LessOrEqual(t, got.Severity(), prev, "severity increased at %d%%", pct)
		prev = got.Severity()
	}
}

func TestClassifyFractions(t *testing.T) {
	th := model.DefaultThresholds()

	assert.Equal(t, model.LevelAbsent, ClassifyFractions(model.Fractions{}, th))
	assert.Equal(t, model.LevelLow, ClassifyFractions(model.Fractions{Toner: fptr(0.5), Imaging: fptr(0.02)}, th))
	assert.Equal(t, model.LevelNormal, ClassifyFractions(model.Fractions{Kit: fptr(0.8)}, th))
}
