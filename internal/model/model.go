package model

import (
	"github.com/pkg/errors"
)

const (
	AppName = "printwatch"

	LogLevelInfo  = 0
	LogLevelDebug = 1
	LogLevelTrace = 2

	// DefaultConcurrency is the maximum number of device status fetches in flight during a poll run.
	DefaultConcurrency = 20

	// DefaultStatusPath is the printer status page requested from each device.
	DefaultStatusPath = "/cgi-bin/dynamic/printer/PrinterStatus.html"
)

type StoreKind string

const (
	StoreKindMemory   StoreKind = "memory"
	StoreKindPostgres StoreKind = "postgres"
)

// StoreKinds returns the supported storage backends.
func StoreKinds() []StoreKind { return []StoreKind{StoreKindMemory, StoreKindPostgres} }

var (
	ErrInvalidThresholds = errors.New("invalid level thresholds")
)

// Thresholds are the percentage boundaries used to classify consumable levels.
//
// A consumable below Low percent is classified low, below Medium percent medium.
type Thresholds struct {
	Low    int `mapstructure:"low"`
	Medium int `mapstructure:"medium"`
}

// DefaultThresholds returns the thresholds applied when none are configured.
func DefaultThresholds() Thresholds {
	return Thresholds{Low: 10, Medium: 25}
}

// Validate returns ErrInvalidThresholds when a threshold is outside 1..99 or low is not below medium.
func (t Thresholds) Validate() error {
	if t.Low < 1 || t.Low > 99 || t.Medium < 1 || t.Medium > 99 {
		return errors.Wrapf(ErrInvalidThresholds, "thresholds must be within 1-99, got low=%d medium=%d", t.Low, t.Medium)
	}

	if t.Low >= t.Medium {
		return errors.Wrapf(ErrInvalidThresholds, "low threshold (%d%%) must be less than medium threshold (%d%%)", t.Low, t.Medium)
	}

	return nil
}
