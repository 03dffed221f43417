package model

import (
	"time"
)

// Fractions holds the consumable levels reported by a device in the range [0,1].
//
// A nil value is an absent reading, the model lacks the consumable or the fetch failed.
type Fractions struct {
	Toner   *float64
	Kit     *float64
	Imaging *float64
}

// Present returns the values that are not absent, in toner, kit, imaging order.
func (f Fractions) Present() []float64 {
	values := make([]float64, 0, 3)

	for _, v := range []*float64{f.Toner, f.Kit, f.Imaging} {
		if v != nil {
			values = append(values, *v)
		}
	}

	return values
}

// Absent returns true when no consumable value is present.
func (f Fractions) Absent() bool {
	return f.Toner == nil && f.Kit == nil && f.Imaging == nil
}

// SupplyReading is one immutable observation of a device's consumables.
type SupplyReading struct {
	Timestamp time.Time
	Address   string
	Fractions
}

// Consumable identifies one of the tracked consumables of a reading.
type Consumable string

const (
	ConsumableToner   Consumable = "toner"
	ConsumableKit     Consumable = "maintenance_kit"
	ConsumableImaging Consumable = "imaging_unit"
)

// Consumables returns the tracked consumables.
func Consumables() []Consumable {
	return []Consumable{ConsumableToner, ConsumableImaging, ConsumableKit}
}

// Value returns the fraction for the consumable, nil when absent.
func (r SupplyReading) Value(c Consumable) *float64 {
	switch c {
	case ConsumableToner:
		return r.Toner
	case ConsumableKit:
		return r.Kit
	case ConsumableImaging:
		return r.Imaging
	default:
		return nil
	}
}

// Clone returns a copy of the fractions that shares no pointers with f.
func (f Fractions) Clone() Fractions {
	return Fractions{Toner: cloneFloat(f.Toner), Kit: cloneFloat(f.Kit), Imaging: cloneFloat(f.Imaging)}
}

func cloneFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}

	c := *v

	return &c
}

// CloneReadings returns a copy of the readings that shares no pointers with readings.
func CloneReadings(readings []SupplyReading) []SupplyReading {
	out := make([]SupplyReading, len(readings))
	for idx, r := range readings {
		out[idx] = SupplyReading{Timestamp: r.Timestamp, Address: r.Address, Fractions: r.Fractions.Clone()}
	}

	return out
}
