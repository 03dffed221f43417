package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/metal-toolbox/printwatch/internal/model"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fptr(f float64) *float64 { return &f }

func TestMemStoreReadings(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()

	_, _, err := s.LatestBatch(ctx)
	assert.ErrorIs(t, err, ErrNoReadings)

	t1 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	t2 := t1.Add(24 * time.Hour)

	first := []model.SupplyReading{
		{Address: "10.0.0.1", Fractions: model.Fractions{Toner: fptr(0.8)}},
		{Address: "10.0.0.2", Fractions: model.Fractions{}},
	}

	require.NoError(t, s.AppendBatch(ctx, t1, first))
	require.NoError(t, s.AppendBatch(ctx, t2, []model.SupplyReading{
		{Address: "10.0.0.1", Fractions: model.Fractions{Toner: fptr(0.6)}},
	}))

	// the stored batch must not alias the caller's values
	*first[0].Toner = 0.1

	history, err := s.History(ctx, "10.0.0.1", TimeRange{})
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, t1, history[0].Timestamp)
	assert.InDelta(t, 0.8, *history[0].Toner, 1e-9)
	assert.Equal(t, t2, history[1].Timestamp)

	history, err = s.History(ctx, "10.0.0.1", TimeRange{From: &t2})
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.InDelta(t, 0.6, *history[0].Toner, 1e-9)

	history, err = s.History(ctx, "10.9.9.9", TimeRange{})
	require.NoError(t, err)
	assert.Empty(t, history)

	latest, ts, err := s.LatestBatch(ctx)
	require.NoError(t, err)
	assert.Equal(t, t2, ts)
	require.Len(t, latest, 1)
	assert.Equal(t, "10.0.0.1", latest[0].Address)
}

func TestMemStoreAppendBatchAtomic(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()

	size := 50
	readings := make([]model.SupplyReading, size)

	for i := range readings {
		readings[i] = model.SupplyReading{Address: "10.0.0.1"}
	}

	var wg sync.WaitGroup

	done := make(chan struct{})

	wg.Add(1)

	go func() {
		defer wg.Done()

		for {
			select {
			case <-done:
				return
			default:
			}

			latest, _, err := s.LatestBatch(ctx)
			if errors.Is(err, ErrNoReadings) {
				continue
			}

			assert.Len(t, latest, size)
		}
	}()

	for i := 0; i < 20; i++ {
		require.NoError(t, s.AppendBatch(ctx, time.Now(), readings))
	}

	close(done)
	wg.Wait()
}

func TestMemStoreUpdateStock(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()
	key := model.StockKey{SupplyType: model.SupplyToner, Model: "Lexmark MX611dhe"}

	_, err := s.StockItem(ctx, key)
	assert.ErrorIs(t, err, ErrStockItemNotFound)

	err = s.UpdateStock(ctx, key, func(current *model.StockItem) (StockChange, error) {
		assert.Nil(t, current)

		return StockChange{
			Item:     &model.StockItem{SupplyType: key.SupplyType, Model: key.Model, Quantity: 5, Minimum: 2},
			Movement: &model.StockMovement{ID: uuid.New(), Kind: model.MovementEntry, SupplyType: key.SupplyType, Model: key.Model, Delta: 5},
		}, nil
	})
	require.NoError(t, err)

	// a failing mutator leaves no trace
	errAbort := errors.New("abort")
	err = s.UpdateStock(ctx, key, func(current *model.StockItem) (StockChange, error) {
		require.NotNil(t, current)
		assert.Equal(t, 5, current.Quantity)

		return StockChange{}, errAbort
	})
	assert.ErrorIs(t, err, errAbort)

	// a change for another key is rejected
	err = s.UpdateStock(ctx, key, func(current *model.StockItem) (StockChange, error) {
		return StockChange{Item: &model.StockItem{SupplyType: model.SupplyImagingUnit, Model: key.Model}}, nil
	})
	assert.ErrorIs(t, err, ErrStore)

	item, err := s.StockItem(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, 5, item.Quantity)

	movements, err := s.Movements(ctx, MovementFilter{})
	require.NoError(t, err)
	assert.Len(t, movements, 1)

	items, err := s.StockItems(ctx)
	require.NoError(t, err)
	assert.Equal(t, []model.StockItem{item}, items)
}

func TestMemStoreFilters(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()

	jan := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)
	feb := time.Date(2026, 2, 15, 0, 0, 0, 0, time.UTC)

	add := func(ts time.Time, site string, supplyType model.SupplyType, modelName string) {
		key := model.StockKey{SupplyType: supplyType, Model: modelName}
		shipment := &model.ShipmentRecord{ID: uuid.New(), Timestamp: ts, Site: site, SupplyType: supplyType, Model: modelName, Quantity: 1}
		movement := &model.StockMovement{
			ID: uuid.New(), Timestamp: ts, Kind: model.MovementExit, SupplyType: supplyType, Model: modelName,
			Delta: -1, ShipmentID: &shipment.ID,
		}

		require.NoError(t, s.UpdateStock(ctx, key, func(*model.StockItem) (StockChange, error) {
			return StockChange{Shipment: shipment, Movement: movement}, nil
		}))
	}

	add(jan, "North Branch", model.SupplyToner, "Lexmark MX611dhe")
	add(feb, "South Branch", model.SupplyImagingUnit, "Lexmark T654")
	add(feb, "north annex", model.SupplyToner, "Lexmark T654")

	shipments, err := s.Shipments(ctx, ShipmentFilter{SiteContains: "NORTH"})
	require.NoError(t, err)
	require.Len(t, shipments, 2)
	assert.Equal(t, feb, shipments[0].Timestamp, "newest first")

	shipments, err = s.Shipments(ctx, ShipmentFilter{Year: 2026, Month: time.January})
	require.NoError(t, err)
	require.Len(t, shipments, 1)
	assert.Equal(t, "North Branch", shipments[0].Site)

	shipments, err = s.Shipments(ctx, ShipmentFilter{SupplyType: model.SupplyImagingUnit})
	require.NoError(t, err)
	assert.Len(t, shipments, 1)

	movements, err := s.Movements(ctx, MovementFilter{ModelContains: "t654"})
	require.NoError(t, err)
	assert.Len(t, movements, 2)

	movements, err = s.Movements(ctx, MovementFilter{SupplyType: model.SupplyToner, TimeRange: TimeRange{To: &jan}})
	require.NoError(t, err)
	require.Len(t, movements, 1)
	require.NotNil(t, movements[0].ShipmentID)
}
