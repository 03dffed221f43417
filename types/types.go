package types

import (
	"encoding/json"
	"time"
)

const (
	Version int32 = 1
)

// LowLevelAlert is the canonical structure published for a device with a consumable below the low threshold.
//
// Fractions are in the range [0,1], a nil value means the device did not report the consumable.
type LowLevelAlert struct {
	RunID        string    `json:"runID"`
	PolledAt     time.Time `json:"polled"`
	Site         string    `json:"site"`
	Address      string    `json:"address"`
	Model        string    `json:"model"`
	Name         string    `json:"name,omitempty"`
	Toner        *float64  `json:"toner"`
	Kit          *float64  `json:"kit"`
	Imaging      *float64  `json:"imaging"`
	LowThreshold int       `json:"lowThreshold"`
	TraceID      string    `json:"traceID,omitempty"`
	SpanID       string    `json:"spanID,omitempty"`
	MsgVersion   int32     `json:"msgVersion"`
}

// MustBytes sets the version field of the LowLevelAlert so any callers don't have
// to deal with it. It will panic if we cannot serialize to JSON for some reason.
func (v *LowLevelAlert) MustBytes() []byte {
	v.MsgVersion = Version
	byt, err := json.Marshal(v)
	if err != nil {
		panic("unable to serialize low level alert: " + err.Error())
	}
	return byt
}
