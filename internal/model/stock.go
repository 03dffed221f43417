package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SupplyType is a kind of replacement part kept in the depot.
type SupplyType string

const (
	SupplyToner          SupplyType = "toner"
	SupplyImagingUnit    SupplyType = "imaging_unit"
	SupplyMaintenanceKit SupplyType = "maintenance_kit"

	// DefaultStockMinimum is the minimum alert threshold given to stock items created by an entry.
	DefaultStockMinimum = 2
)

// SupplyTypes returns the supported supply types.
func SupplyTypes() []SupplyType {
	return []SupplyType{SupplyToner, SupplyImagingUnit, SupplyMaintenanceKit}
}

// Valid returns true for a supported supply type.
func (s SupplyType) Valid() bool {
	for _, t := range SupplyTypes() {
		if s == t {
			return true
		}
	}

	return false
}

// StockKey identifies a stock item.
type StockKey struct {
	SupplyType SupplyType
	Model      string
}

func (k StockKey) String() string {
	return fmt.Sprintf("%s/%s", k.SupplyType, k.Model)
}

// StockState is the alert state derived from a stock item quantity and minimum.
type StockState string

const (
	StockCritical StockState = "critical"
	StockLow      StockState = "low"
	StockOK       StockState = "ok"
)

// StockItem is the depot inventory of one supply type for one printer model.
type StockItem struct {
	SupplyType SupplyType
	Model      string
	Quantity   int
	Minimum    int
}

// Key returns the stock key for the item.
func (s StockItem) Key() StockKey {
	return StockKey{SupplyType: s.SupplyType, Model: s.Model}
}

// State returns critical when the quantity is at or below the minimum,
// low when it is at or below twice the minimum and ok otherwise.
func (s StockItem) State() StockState {
	switch {
	case s.Quantity <= s.Minimum:
		return StockCritical
	case s.Quantity <= 2*s.Minimum:
		return StockLow
	default:
		return StockOK
	}
}

// MovementKind is the kind of a stock movement.
type MovementKind string

const (
	MovementEntry      MovementKind = "entry"
	MovementExit       MovementKind = "exit"
	MovementAdjustment MovementKind = "adjustment"
)

// StockMovement is an append only ledger entry recording a change in stock quantity.
type StockMovement struct {
	ID         uuid.UUID
	Timestamp  time.Time
	Kind       MovementKind
	SupplyType SupplyType
	Model      string
	// Delta is the signed change applied to the stock item quantity.
	Delta int
	Note  string
	// ShipmentID is set on exit movements caused by a shipment.
	ShipmentID *uuid.UUID
}

// ShipmentRecord is a dispatch of supply units to a site.
type ShipmentRecord struct {
	ID         uuid.UUID
	Timestamp  time.Time
	Site       string
	// DeviceAddress is optional, empty when the shipment is not for a particular device.
	DeviceAddress string
	SupplyType    SupplyType
	Model         string
	Quantity      int
}
