// Package ledger maintains the depot stock of printer supplies and its movement history.
package ledger

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/metal-toolbox/printwatch/internal/metrics"
	"github.com/metal-toolbox/printwatch/internal/model"
	"github.com/metal-toolbox/printwatch/internal/store"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/exp/slices"
)

var (
	ErrInvalidQuantity   = errors.New("invalid quantity")
	ErrInvalidSupply     = errors.New("invalid supply type or model")
	ErrStockItemNotFound = store.ErrStockItemNotFound
)

// StockLedger applies stock mutations, serialized per (supply type, model) key.
//
// Mutations on different keys proceed concurrently.
type StockLedger struct {
	repository store.LedgerStore
	logger     *logrus.Logger
	now        func() time.Time

	mu    sync.Mutex
	locks map[model.StockKey]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

// Option sets a StockLedger parameter.
type Option func(*StockLedger)

// WithClock sets the time source for movement timestamps.
func WithClock(now func() time.Time) Option {
	return func(l *StockLedger) {
		l.now = now
	}
}

// New returns a StockLedger persisting to the given store.
func New(repository store.LedgerStore, logger *logrus.Logger, opts ...Option) *StockLedger {
	l := &StockLedger{
		repository: repository,
		logger:     logger,
		now:        time.Now,
		locks:      map[model.StockKey]*keyLock{},
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

// lock acquires the key lock and returns its release func.
func (l *StockLedger) lock(key model.StockKey) func() {
	l.mu.Lock()

	kl, exists := l.locks[key]
	if !exists {
		kl = &keyLock{}
		l.locks[key] = kl
	}

	kl.refs++
	l.mu.Unlock()

	kl.mu.Lock()

	return func() {
		kl.mu.Unlock()

		l.mu.Lock()
		kl.refs--

		if kl.refs == 0 {
			delete(l.locks, key)
		}

		l.mu.Unlock()
	}
}

func (l *StockLedger) update(ctx context.Context, key model.StockKey, fn store.StockMutator) error {
	release := l.lock(key)
	defer release()

	var applied store.StockChange

	err := l.repository.UpdateStock(ctx, key, func(current *model.StockItem) (store.StockChange, error) {
		change, err := fn(current)
		applied = change

		return change, err
	})
	if err != nil {
		return err
	}

	if applied.Item != nil {
		metrics.StockQuantity.WithLabelValues(string(key.SupplyType), key.Model).Set(float64(applied.Item.Quantity))
	}

	if applied.Movement != nil {
		metrics.LedgerMovementCounter.WithLabelValues(string(applied.Movement.Kind)).Inc()
	}

	return nil
}

func validKey(supplyType model.SupplyType, modelName string) (model.StockKey, error) {
	if !supplyType.Valid() {
		return model.StockKey{}, errors.Wrap(ErrInvalidSupply, "unknown supply type: "+string(supplyType))
	}

	if strings.TrimSpace(modelName) == "" {
		return model.StockKey{}, errors.Wrap(ErrInvalidSupply, "model name required")
	}

	return model.StockKey{SupplyType: supplyType, Model: modelName}, nil
}

// Shipment is a request to dispatch supply units to a site.
type Shipment struct {
	// Timestamp defaults to the current time when zero.
	Timestamp     time.Time
	Site          string
	DeviceAddress string
	SupplyType    model.SupplyType
	Model         string
	Quantity      int
}

// RegisterShipment records the shipment and, when a stock item exists for its supply type and model,
// debits the item by the shipped quantity clamped at zero with an exit movement referencing the shipment.
//
// Without a matching stock item the shipment is recorded with no stock side effect.
func (l *StockLedger) RegisterShipment(ctx context.Context, s Shipment) (model.ShipmentRecord, error) {
	key, err := validKey(s.SupplyType, s.Model)
	if err != nil {
		return model.ShipmentRecord{}, err
	}

	if s.Quantity <= 0 {
		return model.ShipmentRecord{}, errors.Wrap(ErrInvalidQuantity, fmt.Sprintf("shipment quantity must be positive, got %d", s.Quantity))
	}

	if s.Timestamp.IsZero() {
		s.Timestamp = l.now()
	}

	record := model.ShipmentRecord{
		ID:            uuid.New(),
		Timestamp:     s.Timestamp,
		Site:          s.Site,
		DeviceAddress: s.DeviceAddress,
		SupplyType:    s.SupplyType,
		Model:         s.Model,
		Quantity:      s.Quantity,
	}

	err = l.update(ctx, key, func(current *model.StockItem) (store.StockChange, error) {
		change := store.StockChange{Shipment: &record}
		if current == nil {
			return change, nil
		}

		item := *current
		item.Quantity = atLeastZero(current.Quantity - s.Quantity)

		shipmentID := record.ID
		change.Item = &item
		change.Movement = &model.StockMovement{
			ID:         uuid.New(),
			Timestamp:  s.Timestamp,
			Kind:       model.MovementExit,
			SupplyType: s.SupplyType,
			Model:      s.Model,
			Delta:      item.Quantity - current.Quantity,
			Note:       "shipment to " + s.Site,
			ShipmentID: &shipmentID,
		}

		return change, nil
	})
	if err != nil {
		return model.ShipmentRecord{}, err
	}

	l.logger.WithFields(logrus.Fields{
		"site":       s.Site,
		"supplyType": s.SupplyType,
		"model":      s.Model,
		"quantity":   s.Quantity,
	}).Debug("shipment registered")

	return record, nil
}

// AddEntry increments the stock item by quantity, creating it with the default minimum when missing,
// and appends an entry movement.
func (l *StockLedger) AddEntry(ctx context.Context, supplyType model.SupplyType, modelName string, quantity int, note string) (model.StockItem, error) {
	key, err := validKey(supplyType, modelName)
	if err != nil {
		return model.StockItem{}, err
	}

	if quantity <= 0 {
		return model.StockItem{}, errors.Wrap(ErrInvalidQuantity, fmt.Sprintf("entry quantity must be positive, got %d", quantity))
	}

	var item model.StockItem

	err = l.update(ctx, key, func(current *model.StockItem) (store.StockChange, error) {
		item = model.StockItem{SupplyType: supplyType, Model: modelName, Minimum: model.DefaultStockMinimum}
		if current != nil {
			item = *current
		}

		item.Quantity += quantity

		return store.StockChange{
			Item: &item,
			Movement: &model.StockMovement{
				ID:         uuid.New(),
				Timestamp:  l.now(),
				Kind:       model.MovementEntry,
				SupplyType: supplyType,
				Model:      modelName,
				Delta:      quantity,
				Note:       note,
			},
		}, nil
	})
	if err != nil {
		return model.StockItem{}, err
	}

	return item, nil
}

// Adjust sets the absolute quantity and minimum of an existing stock item, negative values are clamped to zero.
//
// An adjustment movement is appended only when the quantity changed.
func (l *StockLedger) Adjust(ctx context.Context, supplyType model.SupplyType, modelName string, quantity, minimum int) (model.StockItem, error) {
	return l.adjust(ctx, supplyType, modelName, &quantity, minimum)
}

// SetMinimum sets the minimum alert threshold of an existing stock item leaving its quantity untouched.
func (l *StockLedger) SetMinimum(ctx context.Context, supplyType model.SupplyType, modelName string, minimum int) (model.StockItem, error) {
	return l.adjust(ctx, supplyType, modelName, nil, minimum)
}

func (l *StockLedger) adjust(ctx context.Context, supplyType model.SupplyType, modelName string, quantity *int, minimum int) (model.StockItem, error) {
	key, err := validKey(supplyType, modelName)
	if err != nil {
		return model.StockItem{}, err
	}

	var item model.StockItem

	err = l.update(ctx, key, func(current *model.StockItem) (store.StockChange, error) {
		if current == nil {
			return store.StockChange{}, errors.Wrap(ErrStockItemNotFound, key.String())
		}

		item = *current
		item.Minimum = atLeastZero(minimum)

		if quantity != nil {
			item.Quantity = atLeastZero(*quantity)
		}

		change := store.StockChange{Item: &item}

		if delta := item.Quantity - current.Quantity; delta != 0 {
			change.Movement = &model.StockMovement{
				ID:         uuid.New(),
				Timestamp:  l.now(),
				Kind:       model.MovementAdjustment,
				SupplyType: supplyType,
				Model:      modelName,
				Delta:      delta,
				Note:       AdjustmentNote(delta),
			}
		}

		return change, nil
	})
	if err != nil {
		return model.StockItem{}, err
	}

	return item, nil
}

func atLeastZero(n int) int {
	if n < 0 {
		return 0
	}

	return n
}

// AdjustmentNote returns the generated note of an adjustment movement.
func AdjustmentNote(delta int) string {
	if delta < 0 {
		return fmt.Sprintf("manual adjustment (-%d)", -delta)
	}

	return fmt.Sprintf("manual adjustment (+%d)", delta)
}

// Item returns one stock item.
func (l *StockLedger) Item(ctx context.Context, supplyType model.SupplyType, modelName string) (model.StockItem, error) {
	return l.repository.StockItem(ctx, model.StockKey{SupplyType: supplyType, Model: modelName})
}

// StockSummary is the stock list with the count of items per alert state.
type StockSummary struct {
	Items    []model.StockItem
	Critical int
	Low      int
}

// Items returns every stock item and the count of critical and low items.
func (l *StockLedger) Items(ctx context.Context) (StockSummary, error) {
	items, err := l.repository.StockItems(ctx)
	if err != nil {
		return StockSummary{}, err
	}

	summary := StockSummary{Items: items}

	for _, item := range items {
		switch item.State() {
		case model.StockCritical:
			summary.Critical++
		case model.StockLow:
			summary.Low++
		}
	}

	return summary, nil
}

// Movements returns the movement history matching the filter, newest first.
func (l *StockLedger) Movements(ctx context.Context, filter store.MovementFilter) ([]model.StockMovement, error) {
	return l.repository.Movements(ctx, filter)
}

// Shipments returns the shipments matching the filter, newest first.
func (l *StockLedger) Shipments(ctx context.Context, filter store.ShipmentFilter) ([]model.ShipmentRecord, error) {
	return l.repository.Shipments(ctx, filter)
}

// Consumption is the quantity shipped to a site for one supply type.
type Consumption struct {
	Site       string
	SupplyType model.SupplyType
	Quantity   int
}

// Consumption totals the shipments matching the filter per site and supply type, ordered by site then supply type.
func (l *StockLedger) Consumption(ctx context.Context, filter store.ShipmentFilter) ([]Consumption, error) {
	shipments, err := l.repository.Shipments(ctx, filter)
	if err != nil {
		return nil, err
	}

	type siteSupply struct {
		site       string
		supplyType model.SupplyType
	}

	totals := map[siteSupply]int{}
	for _, s := range shipments {
		totals[siteSupply{s.Site, s.SupplyType}] += s.Quantity
	}

	consumption := make([]Consumption, 0, len(totals))
	for k, quantity := range totals {
		consumption = append(consumption, Consumption{Site: k.site, SupplyType: k.supplyType, Quantity: quantity})
	}

	slices.SortFunc(consumption, func(a, b Consumption) int {
		if c := strings.Compare(a.Site, b.Site); c != 0 {
			return c
		}

		return strings.Compare(string(a.SupplyType), string(b.SupplyType))
	})

	return consumption, nil
}
