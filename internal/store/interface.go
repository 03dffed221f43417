package store

import (
	"context"
	"strings"
	"time"

	"github.com/metal-toolbox/printwatch/internal/model"
	"github.com/pkg/errors"
)

const (
	pkgName = "internal/store"
)

var (
	ErrNoReadings        = errors.New("no readings stored")
	ErrStockItemNotFound = errors.New("stock item not found")
	ErrStore             = errors.New("store error")
)

//go:generate mockgen -source interface.go -destination=../fixtures/mock_store.go -package fixtures

// DeviceCatalog is the read only source of polling targets.
type DeviceCatalog interface {
	// ListActiveDevices returns the devices flagged active.
	ListActiveDevices(ctx context.Context) ([]model.Device, error)
}

// ReadingStore persists supply readings in append only batches.
type ReadingStore interface {
	// AppendBatch persists the readings of one poll run, all share the timestamp.
	// Readers never observe part of a batch.
	AppendBatch(ctx context.Context, timestamp time.Time, readings []model.SupplyReading) error

	// History returns the readings of a device in timestamp order.
	History(ctx context.Context, address string, filter TimeRange) ([]model.SupplyReading, error)

	// LatestBatch returns the most recent batch and its timestamp, ErrNoReadings when none is stored.
	LatestBatch(ctx context.Context) ([]model.SupplyReading, time.Time, error)
}

// StockChange is the result of a StockMutator, applied as one unit by UpdateStock.
type StockChange struct {
	// Item is the new state of the stock item, nil leaves stock untouched.
	Item *model.StockItem
	// Movement is appended when set.
	Movement *model.StockMovement
	// Shipment is appended when set.
	Shipment *model.ShipmentRecord
}

// StockMutator computes a change from the current stock item, current is nil when the item does not exist.
//
// Returning an error aborts the update without side effects.
type StockMutator func(current *model.StockItem) (StockChange, error)

// LedgerStore persists stock items, movements and shipments.
type LedgerStore interface {
	// StockItem returns the item for the key, ErrStockItemNotFound when it does not exist.
	StockItem(ctx context.Context, key model.StockKey) (model.StockItem, error)

	// StockItems returns all items ordered by supply type, model.
	StockItems(ctx context.Context) ([]model.StockItem, error)

	// UpdateStock applies the mutator's change atomically, readers see either none or all of it.
	UpdateStock(ctx context.Context, key model.StockKey, fn StockMutator) error

	// Movements returns the movements matching the filter, newest first.
	Movements(ctx context.Context, filter MovementFilter) ([]model.StockMovement, error)

	// Shipments returns the shipments matching the filter, newest first.
	Shipments(ctx context.Context, filter ShipmentFilter) ([]model.ShipmentRecord, error)
}

var (
	_ ReadingStore  = (*MemStore)(nil)
	_ LedgerStore   = (*MemStore)(nil)
	_ DeviceCatalog = (*YamlCatalog)(nil)
	_ DeviceCatalog = (*Postgres)(nil)
	_ ReadingStore  = (*Postgres)(nil)
	_ LedgerStore   = (*Postgres)(nil)
)

// TimeRange bounds a query by timestamp, a nil bound is open.
type TimeRange struct {
	From *time.Time
	To   *time.Time
}

// Contains returns true when ts is within the range, both bounds inclusive.
func (r TimeRange) Contains(ts time.Time) bool {
	if r.From != nil && ts.Before(*r.From) {
		return false
	}

	if r.To != nil && ts.After(*r.To) {
		return false
	}

	return true
}

// MovementFilter selects stock movements, zero fields match everything.
type MovementFilter struct {
	SupplyType model.SupplyType
	// ModelContains is a case insensitive substring of the model name.
	ModelContains string
	TimeRange
}

// Match returns true when the movement satisfies the filter.
func (f MovementFilter) Match(m *model.StockMovement) bool {
	if f.SupplyType != "" && m.SupplyType != f.SupplyType {
		return false
	}

	if !containsFold(m.Model, f.ModelContains) {
		return false
	}

	return f.Contains(m.Timestamp)
}

// ShipmentFilter selects shipments, zero fields match everything.
type ShipmentFilter struct {
	SupplyType model.SupplyType
	// SiteContains is a case insensitive substring of the site.
	SiteContains string
	Year         int
	Month        time.Month
	TimeRange
}

// Match returns true when the shipment satisfies the filter.
func (f ShipmentFilter) Match(s *model.ShipmentRecord) bool {
	if f.SupplyType != "" && s.SupplyType != f.SupplyType {
		return false
	}

	if !containsFold(s.Site, f.SiteContains) {
		return false
	}

	if f.Year != 0 && s.Timestamp.Year() != f.Year {
		return false
	}

	if f.Month != 0 && s.Timestamp.Month() != f.Month {
		return false
	}

	return f.Contains(s.Timestamp)
}

func containsFold(s, substr string) bool {
	return substr == "" || strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
