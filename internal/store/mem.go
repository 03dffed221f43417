package store

import (
	"context"
	"sync"
	"time"

	"github.com/metal-toolbox/printwatch/internal/model"
	"github.com/pkg/errors"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

type batch struct {
	timestamp time.Time
	readings  []model.SupplyReading
}

// MemStore is an in memory ReadingStore and LedgerStore.
type MemStore struct {
	mu *sync.RWMutex

	batches   []batch
	items     map[model.StockKey]model.StockItem
	movements []model.StockMovement
	shipments []model.ShipmentRecord
}

func NewMemStore() *MemStore {
	return &MemStore{
		mu:    &sync.RWMutex{},
		items: map[model.StockKey]model.StockItem{},
	}
}

func (m *MemStore) AppendBatch(_ context.Context, timestamp time.Time, readings []model.SupplyReading) error {
	if len(readings) == 0 {
		return nil
	}

	b := batch{timestamp: timestamp, readings: model.CloneReadings(readings)}

	for idx := range b.readings {
		b.readings[idx].Timestamp = timestamp
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.batches = append(m.batches, b)

	return nil
}

func (m *MemStore) History(_ context.Context, address string, filter TimeRange) ([]model.SupplyReading, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	found := []model.SupplyReading{}

	for _, b := range m.batches {
		if !filter.Contains(b.timestamp) {
			continue
		}

		for idx := range b.readings {
			if b.readings[idx].Address == address {
				found = append(found, b.readings[idx])
			}
		}
	}

	history := model.CloneReadings(found)

	slices.SortStableFunc(history, func(a, b model.SupplyReading) int {
		return a.Timestamp.Compare(b.Timestamp)
	})

	return history, nil
}

func (m *MemStore) LatestBatch(_ context.Context) ([]model.SupplyReading, time.Time, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.batches) == 0 {
		return nil, time.Time{}, ErrNoReadings
	}

	latest := m.batches[0]
	for _, b := range m.batches[1:] {
		if !b.timestamp.Before(latest.timestamp) {
			latest = b
		}
	}

	return model.CloneReadings(latest.readings), latest.timestamp, nil
}

func (m *MemStore) StockItem(_ context.Context, key model.StockKey) (model.StockItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	item, exists := m.items[key]
	if !exists {
		return model.StockItem{}, errors.Wrap(ErrStockItemNotFound, key.String())
	}

	return item, nil
}

func (m *MemStore) StockItems(_ context.Context) ([]model.StockItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	items := maps.Values(m.items)
	slices.SortFunc(items, compareItems)

	return items, nil
}

func compareItems(a, b model.StockItem) int {
	switch {
	case a.SupplyType < b.SupplyType:
		return -1
	case a.SupplyType > b.SupplyType:
		return 1
	case a.Model < b.Model:
		return -1
	case a.Model > b.Model:
		return 1
	default:
		return 0
	}
}

// UpdateStock runs fn and applies its change under the store lock.
func (m *MemStore) UpdateStock(_ context.Context, key model.StockKey, fn StockMutator) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var current *model.StockItem
	if item, exists := m.items[key]; exists {
		current = &item
	}

	change, err := fn(current)
	if err != nil {
		return err
	}

	if change.Item != nil {
		if change.Item.Key() != key {
			return errors.Wrap(ErrStore, "stock change for "+change.Item.Key().String()+" under key "+key.String())
		}

		m.items[key] = *change.Item
	}

	if change.Shipment != nil {
		m.shipments = append(m.shipments, *change.Shipment)
	}

	if change.Movement != nil {
		movement := *change.Movement
		if movement.ShipmentID != nil {
			id := *movement.ShipmentID
			movement.ShipmentID = &id
		}

		m.movements = append(m.movements, movement)
	}

	return nil
}

func (m *MemStore) Movements(_ context.Context, filter MovementFilter) ([]model.StockMovement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	movements := []model.StockMovement{}

	for idx := len(m.movements) - 1; idx >= 0; idx-- {
		if filter.Match(&m.movements[idx]) {
			movement := m.movements[idx]
			if movement.ShipmentID != nil {
				id := *movement.ShipmentID
				movement.ShipmentID = &id
			}

			movements = append(movements, movement)
		}
	}

	slices.SortStableFunc(movements, func(a, b model.StockMovement) int {
		return b.Timestamp.Compare(a.Timestamp)
	})

	return movements, nil
}

func (m *MemStore) Shipments(_ context.Context, filter ShipmentFilter) ([]model.ShipmentRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	shipments := []model.ShipmentRecord{}

	for idx := len(m.shipments) - 1; idx >= 0; idx-- {
		if filter.Match(&m.shipments[idx]) {
			shipments = append(shipments, m.shipments[idx])
		}
	}

	slices.SortStableFunc(shipments, func(a, b model.ShipmentRecord) int {
		return b.Timestamp.Compare(a.Timestamp)
	})

	return shipments, nil
}
