package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/metal-toolbox/printwatch/internal/metrics"
	"github.com/metal-toolbox/printwatch/internal/model"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
)

const (
	storeKindPostgres = string(model.StoreKindPostgres)
)

var (
	ErrPostgres = errors.New("postgres store error")
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS devices (
	address TEXT PRIMARY KEY,
	model   TEXT NOT NULL DEFAULT '',
	site    TEXT NOT NULL DEFAULT '',
	name    TEXT NOT NULL DEFAULT '',
	serial  TEXT NOT NULL DEFAULT '',
	active  BOOLEAN NOT NULL DEFAULT TRUE
);

CREATE TABLE IF NOT EXISTS supply_readings (
	batch_ts TIMESTAMPTZ NOT NULL,
	address  TEXT NOT NULL,
	toner    DOUBLE PRECISION,
	kit      DOUBLE PRECISION,
	imaging  DOUBLE PRECISION
);

CREATE INDEX IF NOT EXISTS supply_readings_address_ts ON supply_readings (address, batch_ts);
CREATE INDEX IF NOT EXISTS supply_readings_ts ON supply_readings (batch_ts);

CREATE TABLE IF NOT EXISTS stock_items (
	supply_type TEXT NOT NULL,
	model       TEXT NOT NULL,
	quantity    INTEGER NOT NULL CHECK (quantity >= 0),
	minimum     INTEGER NOT NULL CHECK (minimum >= 0),
	PRIMARY KEY (supply_type, model)
);

CREATE TABLE IF NOT EXISTS shipments (
	id             UUID PRIMARY KEY,
	ts             TIMESTAMPTZ NOT NULL,
	site           TEXT NOT NULL,
	device_address TEXT NOT NULL DEFAULT '',
	supply_type    TEXT NOT NULL,
	model          TEXT NOT NULL,
	quantity       INTEGER NOT NULL CHECK (quantity > 0)
);

CREATE TABLE IF NOT EXISTS stock_movements (
	id          UUID PRIMARY KEY,
	ts          TIMESTAMPTZ NOT NULL,
	kind        TEXT NOT NULL,
	supply_type TEXT NOT NULL,
	model       TEXT NOT NULL,
	delta       INTEGER NOT NULL,
	note        TEXT NOT NULL DEFAULT '',
	shipment_id UUID REFERENCES shipments (id)
);
`

// Postgres is a DeviceCatalog, ReadingStore and LedgerStore backed by a postgres database.
type Postgres struct {
	pool   *pgxpool.Pool
	logger *logrus.Logger
}

// NewPostgres connects to the database at dsn and creates the schema when missing.
func NewPostgres(ctx context.Context, dsn string, logger *logrus.Logger) (*Postgres, error) {
	if dsn == "" {
		return nil, errors.Wrap(ErrPostgres, "no dsn configured")
	}

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, errors.Wrap(ErrPostgres, "parse dsn: "+err.Error())
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, errors.Wrap(ErrPostgres, err.Error())
	}

	p := &Postgres{pool: pool, logger: logger}

	if err := p.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	logger.WithFields(logrus.Fields{
		"host":     poolConfig.ConnConfig.Host,
		"database": poolConfig.ConnConfig.Database,
	}).Debug("connected to postgres store")

	return p, nil
}

// Migrate creates the tables and indexes when they do not exist.
func (p *Postgres) Migrate(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, schemaSQL); err != nil {
		return p.queryError("migrate", err)
	}

	return nil
}

// Close releases the connection pool.
func (p *Postgres) Close() {
	p.pool.Close()
}

func (p *Postgres) queryError(op string, err error) error {
	metrics.StoreQueryErrorCount.With(map[string]string{"storeKind": storeKindPostgres}).Inc()

	return errors.Wrap(ErrPostgres, op+": "+err.Error())
}

// ListActiveDevices implements the DeviceCatalog interface.
func (p *Postgres) ListActiveDevices(ctx context.Context) ([]model.Device, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT address, model, site, name, serial, active FROM devices WHERE active ORDER BY address`)
	if err != nil {
		return nil, p.queryError("list devices", err)
	}
	defer rows.Close()

	devices := []model.Device{}

	for rows.Next() {
		var d model.Device
		if err := rows.Scan(&d.Address, &d.Model, &d.Site, &d.Name, &d.Serial, &d.Active); err != nil {
			return nil, p.queryError("scan device", err)
		}

		devices = append(devices, d)
	}

	if err := rows.Err(); err != nil {
		return nil, p.queryError("list devices", err)
	}

	return devices, nil
}

// ImportDevices inserts the devices into the catalog table, existing addresses are updated.
func (p *Postgres) ImportDevices(ctx context.Context, devices []model.Device) error {
	if len(devices) == 0 {
		return nil
	}

	err := pgx.BeginTxFunc(ctx, p.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}

		for idx := range devices {
			d := &devices[idx]
			batch.Queue(
				`INSERT INTO devices (address, model, site, name, serial, active) VALUES ($1, $2, $3, $4, $5, $6)
				ON CONFLICT (address) DO UPDATE SET
					model = EXCLUDED.model, site = EXCLUDED.site, name = EXCLUDED.name,
					serial = EXCLUDED.serial, active = EXCLUDED.active`,
				d.Address, d.Model, d.Site, d.Name, d.Serial, d.Active,
			)
		}

		return tx.SendBatch(ctx, batch).Close()
	})
	if err != nil {
		return p.queryError("import devices", err)
	}

	return nil
}

// AppendBatch implements the ReadingStore interface, the batch is inserted in a single transaction.
func (p *Postgres) AppendBatch(ctx context.Context, timestamp time.Time, readings []model.SupplyReading) error {
	if len(readings) == 0 {
		return nil
	}

	ctx, span := otel.Tracer(pkgName).Start(ctx, "Postgres.AppendBatch")
	defer span.End()

	err := pgx.BeginTxFunc(ctx, p.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}

		for idx := range readings {
			r := &readings[idx]
			batch.Queue(
				`INSERT INTO supply_readings (batch_ts, address, toner, kit, imaging) VALUES ($1, $2, $3, $4, $5)`,
				timestamp, r.Address, r.Toner, r.Kit, r.Imaging,
			)
		}

		br := tx.SendBatch(ctx, batch)
		for i := 0; i < batch.Len(); i++ {
			if _, err := br.Exec(); err != nil {
				_ = br.Close()
				return err
			}
		}

		return br.Close()
	})
	if err != nil {
		return p.queryError("append batch", err)
	}

	return nil
}

func scanReadings(rows pgx.Rows) ([]model.SupplyReading, error) {
	defer rows.Close()

	readings := []model.SupplyReading{}

	for rows.Next() {
		var r model.SupplyReading
		if err := rows.Scan(&r.Timestamp, &r.Address, &r.Toner, &r.Kit, &r.Imaging); err != nil {
			return nil, err
		}

		readings = append(readings, r)
	}

	return readings, rows.Err()
}

// History implements the ReadingStore interface.
func (p *Postgres) History(ctx context.Context, address string, filter TimeRange) ([]model.SupplyReading, error) {
	q := newWhere()
	q.add("address = %s", address)
	q.timeRange("batch_ts", filter)

	rows, err := p.pool.Query(ctx,
		`SELECT batch_ts, address, toner, kit, imaging FROM supply_readings`+q.sql()+` ORDER BY batch_ts`,
		q.args...,
	)
	if err != nil {
		return nil, p.queryError("history", err)
	}

	readings, err := scanReadings(rows)
	if err != nil {
		return nil, p.queryError("history", err)
	}

	return readings, nil
}

// LatestBatch implements the ReadingStore interface.
func (p *Postgres) LatestBatch(ctx context.Context) ([]model.SupplyReading, time.Time, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT batch_ts, address, toner, kit, imaging FROM supply_readings
		 WHERE batch_ts = (SELECT max(batch_ts) FROM supply_readings) ORDER BY address`)
	if err != nil {
		return nil, time.Time{}, p.queryError("latest batch", err)
	}

	readings, err := scanReadings(rows)
	if err != nil {
		return nil, time.Time{}, p.queryError("latest batch", err)
	}

	if len(readings) == 0 {
		return nil, time.Time{}, ErrNoReadings
	}

	return readings, readings[0].Timestamp, nil
}

// StockItem implements the LedgerStore interface.
func (p *Postgres) StockItem(ctx context.Context, key model.StockKey) (model.StockItem, error) {
	item, err := selectStockItem(ctx, p.pool, key, false)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.StockItem{}, errors.Wrap(ErrStockItemNotFound, key.String())
		}

		return model.StockItem{}, p.queryError("stock item", err)
	}

	return item, nil
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func selectStockItem(ctx context.Context, q querier, key model.StockKey, forUpdate bool) (model.StockItem, error) {
	query := `SELECT quantity, minimum FROM stock_items WHERE supply_type = $1 AND model = $2`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	item := model.StockItem{SupplyType: key.SupplyType, Model: key.Model}

	err := q.QueryRow(ctx, query, string(key.SupplyType), key.Model).Scan(&item.Quantity, &item.Minimum)

	return item, err
}

// StockItems implements the LedgerStore interface.
func (p *Postgres) StockItems(ctx context.Context) ([]model.StockItem, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT supply_type, model, quantity, minimum FROM stock_items ORDER BY supply_type, model`)
	if err != nil {
		return nil, p.queryError("stock items", err)
	}
	defer rows.Close()

	items := []model.StockItem{}

	for rows.Next() {
		var supplyType string

		var item model.StockItem
		if err := rows.Scan(&supplyType, &item.Model, &item.Quantity, &item.Minimum); err != nil {
			return nil, p.queryError("scan stock item", err)
		}

		item.SupplyType = model.SupplyType(supplyType)
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, p.queryError("stock items", err)
	}

	return items, nil
}

// UpdateStock implements the LedgerStore interface.
//
// The item row is locked for the duration of the transaction, the shipment, item and movement commit together.
func (p *Postgres) UpdateStock(ctx context.Context, key model.StockKey, fn StockMutator) error {
	var mutatorErr error

	err := pgx.BeginTxFunc(ctx, p.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		var current *model.StockItem

		item, err := selectStockItem(ctx, tx, key, true)
		switch {
		case err == nil:
			current = &item
		case errors.Is(err, pgx.ErrNoRows):
		default:
			return err
		}

		change, err := fn(current)
		if err != nil {
			mutatorErr = err
			return err
		}

		return applyStockChange(ctx, tx, key, &change)
	})

	if mutatorErr != nil {
		return mutatorErr
	}

	if err != nil {
		return p.queryError("update stock "+key.String(), err)
	}

	return nil
}

func applyStockChange(ctx context.Context, tx pgx.Tx, key model.StockKey, change *StockChange) error {
	if s := change.Shipment; s != nil {
		if _, err := tx.Exec(ctx,
			`INSERT INTO shipments (id, ts, site, device_address, supply_type, model, quantity)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			s.ID.String(), s.Timestamp, s.Site, s.DeviceAddress, string(s.SupplyType), s.Model, s.Quantity,
		); err != nil {
			return err
		}
	}

	if item := change.Item; item != nil {
		if item.Key() != key {
			return errors.Wrap(ErrStore, "stock change for "+item.Key().String()+" under key "+key.String())
		}

		if _, err := tx.Exec(ctx,
			`INSERT INTO stock_items (supply_type, model, quantity, minimum) VALUES ($1, $2, $3, $4)
			 ON CONFLICT (supply_type, model) DO UPDATE SET quantity = EXCLUDED.quantity, minimum = EXCLUDED.minimum`,
			string(item.SupplyType), item.Model, item.Quantity, item.Minimum,
		); err != nil {
			return err
		}
	}

	if m := change.Movement; m != nil {
		var shipmentID *string
		if m.ShipmentID != nil {
			id := m.ShipmentID.String()
			shipmentID = &id
		}

		if _, err := tx.Exec(ctx,
			`INSERT INTO stock_movements (id, ts, kind, supply_type, model, delta, note, shipment_id)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			m.ID.String(), m.Timestamp, string(m.Kind), string(m.SupplyType), m.Model, m.Delta, m.Note, shipmentID,
		); err != nil {
			return err
		}
	}

	return nil
}

// Movements implements the LedgerStore interface.
func (p *Postgres) Movements(ctx context.Context, filter MovementFilter) ([]model.StockMovement, error) {
	q := newWhere()
	if filter.SupplyType != "" {
		q.add("supply_type = %s", string(filter.SupplyType))
	}

	if filter.ModelContains != "" {
		q.add("model ILIKE %s", "%"+filter.ModelContains+"%")
	}

	q.timeRange("ts", filter.TimeRange)

	rows, err := p.pool.Query(ctx,
		`SELECT id, ts, kind, supply_type, model, delta, note, shipment_id FROM stock_movements`+q.sql()+` ORDER BY ts DESC`,
		q.args...,
	)
	if err != nil {
		return nil, p.queryError("movements", err)
	}
	defer rows.Close()

	movements := []model.StockMovement{}

	for rows.Next() {
		var (
			m                uuid.UUID
			kind, supplyType string
			shipmentID       pgtype.UUID
			movement         model.StockMovement
		)

		if err := rows.Scan(&m, &movement.Timestamp, &kind, &supplyType, &movement.Model,
			&movement.Delta, &movement.Note, &shipmentID); err != nil {
			return nil, p.queryError("scan movement", err)
		}

		movement.ID = m
		movement.Kind = model.MovementKind(kind)
		movement.SupplyType = model.SupplyType(supplyType)

		if shipmentID.Valid {
			id := uuid.UUID(shipmentID.Bytes)
			movement.ShipmentID = &id
		}

		movements = append(movements, movement)
	}

	if err := rows.Err(); err != nil {
		return nil, p.queryError("movements", err)
	}

	return movements, nil
}

// Shipments implements the LedgerStore interface.
func (p *Postgres) Shipments(ctx context.Context, filter ShipmentFilter) ([]model.ShipmentRecord, error) {
	q := newWhere()
	if filter.SupplyType != "" {
		q.add("supply_type = %s", string(filter.SupplyType))
	}

	if filter.SiteContains != "" {
		q.add("site ILIKE %s", "%"+filter.SiteContains+"%")
	}

	if filter.Year != 0 {
		q.add("EXTRACT(YEAR FROM ts) = %s", filter.Year)
	}

	if filter.Month != 0 {
		q.add("EXTRACT(MONTH FROM ts) = %s", int(filter.Month))
	}

	q.timeRange("ts", filter.TimeRange)

	rows, err := p.pool.Query(ctx,
		`SELECT id, ts, site, device_address, supply_type, model, quantity FROM shipments`+q.sql()+` ORDER BY ts DESC`,
		q.args...,
	)
	if err != nil {
		return nil, p.queryError("shipments", err)
	}
	defer rows.Close()

	shipments := []model.ShipmentRecord{}

	for rows.Next() {
		var (
			supplyType string
			s          model.ShipmentRecord
		)

		if err := rows.Scan(&s.ID, &s.Timestamp, &s.Site, &s.DeviceAddress, &supplyType, &s.Model, &s.Quantity); err != nil {
			return nil, p.queryError("scan shipment", err)
		}

		s.SupplyType = model.SupplyType(supplyType)
		shipments = append(shipments, s)
	}

	if err := rows.Err(); err != nil {
		return nil, p.queryError("shipments", err)
	}

	return shipments, nil
}

// where accumulates numbered placeholder conditions.
type where struct {
	conds []string
	args  []any
}

func newWhere() *where {
	return &where{}
}

// add appends a condition, the %s verb in cond is replaced by the next placeholder.
func (w *where) add(cond string, arg any) {
	w.args = append(w.args, arg)
	w.conds = append(w.conds, fmt.Sprintf(cond, fmt.Sprintf("$%d", len(w.args))))
}

func (w *where) timeRange(column string, r TimeRange) {
	if r.From != nil {
		w.add(column+" >= %s", *r.From)
	}

	if r.To != nil {
		w.add(column+" <= %s", *r.To)
	}
}

func (w *where) sql() string {
	if len(w.conds) == 0 {
		return ""
	}

	return " WHERE " + strings.Join(w.conds, " AND ")
}
