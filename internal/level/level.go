// Package level classifies consumable readings into alert levels.
package level

import (
	"github.com/metal-toolbox/printwatch/internal/model"
)

// Classify returns the level for the present consumable fractions.
//
// An empty list is absent, otherwise the lowest fraction is compared against
// the thresholds given in percent. Callers validate low < medium before classifying.
func Classify(fractions []float64, low, medium int) model.Level {
	if len(fractions) == 0 {
		return model.LevelAbsent
	}

	lowest := fractions[0]
	for _, f := range fractions[1:] {
		if f < lowest {
			lowest = f
		}
	}

	switch {
	case lowest < float64(low)/100:
		return model.LevelLow
	case lowest < float64(medium)/100:
		return model.LevelMedium
	default:
		return model.LevelNormal
	}
}

// ClassifyFractions classifies the present values of a reading.
func ClassifyFractions(f model.Fractions, t model.Thresholds) model.Level {
	return Classify(f.Present(), t.Low, t.Medium)
}
