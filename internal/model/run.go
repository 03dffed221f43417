package model

import (
	"time"

	"github.com/google/uuid"
)

// RunStatus is the terminal outcome of a poll run.
type RunStatus string

const (
	RunSuccess  RunStatus = "success"
	RunWarning  RunStatus = "warning"
	RunCanceled RunStatus = "canceled"
	RunError    RunStatus = "error"
)

// DeviceResult is the classified result of polling one device.
type DeviceResult struct {
	Device    Device
	Fractions Fractions
	Level     Level
}

// RunSummary holds the counts of a completed poll run.
type RunSummary struct {
	Total     int
	Responded int
	Low       int
	Medium    int
	Absent    int
}

// AlertEligible returns true when at least one device is at the low level.
func (s RunSummary) AlertEligible() bool {
	return s.Low > 0
}

// RunOutcome is what a poll run reports to its caller.
type RunOutcome struct {
	ID         uuid.UUID
	Status     RunStatus
	Message    string
	Thresholds Thresholds
	StartedAt  time.Time
	// Timestamp is shared by all readings persisted by the run, zero when nothing was persisted.
	Timestamp time.Time
	Summary   RunSummary
	Results   []DeviceResult
}
