package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"

	"beni/internal/core"

	_ "modernc.org/sqlite"
)

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

const assetColumns = `id, name, category, purchase_price_cents, purchase_date,
	useful_life_years, residual_value_cents, fuel_type, consumption_per_100,
	maintenance_per_km, expected_annual_km, power_watts, hourly_rate, area_sqm`

func (r *SQLiteRepository) CreateAsset(ctx context.Context, a core.AssetProfile) (core.AssetProfile, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return core.AssetProfile{}, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	specCols := specColumns(a)
	res, err := tx.ExecContext(ctx, `
		INSERT INTO assets (name, category, purchase_price_cents, purchase_date,
			useful_life_years, residual_value_cents, fuel_type, consumption_per_100,
			maintenance_per_km, expected_annual_km, power_watts, hourly_rate, area_sqm)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.Name, string(a.Category), a.PurchasePrice.Cents, a.PurchaseDate.Format("2006-01-02"),
		a.UsefulLifeYears.String(), a.ResidualValue.Cents,
		specCols.fuelType, specCols.consumptionPer100, specCols.maintenancePerKm,
		specCols.expectedAnnualKm, specCols.powerWatts, specCols.hourlyRate, specCols.areaSqm,
	)
	if err != nil {
		return core.AssetProfile{}, fmt.Errorf("insert asset: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return core.AssetProfile{}, fmt.Errorf("asset id: %w", err)
	}

	for label, amount := range a.AnnualFixedCosts {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO asset_fixed_costs (asset_id, label, amount_cents) VALUES (?, ?, ?)`,
			id, label, amount.Cents,
		); err != nil {
			return core.AssetProfile{}, fmt.Errorf("insert fixed cost %q: %w", label, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return core.AssetProfile{}, fmt.Errorf("commit: %w", err)
	}

	a.ID = id
	slog.InfoContext(ctx, "Asset saved to SQLite",
		"id", id,
		"name", a.Name,
		"category", a.Category)
	return a, nil
}

func (r *SQLiteRepository) GetAsset(ctx context.Context, id int64) (core.AssetProfile, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+assetColumns+` FROM assets WHERE id = ?`, id)

	a, err := scanAsset(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.AssetProfile{}, fmt.Errorf("asset %d: %w", id, ErrNotFound)
		}
		return core.AssetProfile{}, fmt.Errorf("get asset: %w", err)
	}

	if err := r.loadFixedCosts(ctx, &a); err != nil {
		return core.AssetProfile{}, err
	}
	return a, nil
}

func (r *SQLiteRepository) ListAssets(ctx context.Context) ([]core.AssetProfile, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+assetColumns+` FROM assets ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list assets: %w", err)
	}
	defer rows.Close()

	var assets []core.AssetProfile
	for rows.Next() {
		a, err := scanAsset(rows)
		if err != nil {
			return nil, fmt.Errorf("scan asset: %w", err)
		}
		assets = append(assets, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate assets: %w", err)
	}

	for i := range assets {
		if err := r.loadFixedCosts(ctx, &assets[i]); err != nil {
			return nil, err
		}
	}
	return assets, nil
}

func (r *SQLiteRepository) DeleteAsset(ctx context.Context, id int64) error {
	var count int64
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM usage_events WHERE asset_id = ?`, id).Scan(&count)
	if err != nil {
		return fmt.Errorf("count asset events: %w", err)
	}
	if count > 0 {
		return fmt.Errorf("asset %d: %w", id, ErrAssetHasEvents)
	}

	res, err := r.db.ExecContext(ctx, `DELETE FROM assets WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete asset: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete asset result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("asset %d: %w", id, ErrNotFound)
	}
	return nil
}

func (r *SQLiteRepository) loadFixedCosts(ctx context.Context, a *core.AssetProfile) error {
	rows, err := r.db.QueryContext(ctx,
		`SELECT label, amount_cents FROM asset_fixed_costs WHERE asset_id = ? ORDER BY label`,
		a.ID)
	if err != nil {
		return fmt.Errorf("load fixed costs: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var label string
		var cents int64
		if err := rows.Scan(&label, &cents); err != nil {
			return fmt.Errorf("scan fixed cost: %w", err)
		}
		if a.AnnualFixedCosts == nil {
			a.AnnualFixedCosts = make(map[string]core.Money)
		}
		a.AnnualFixedCosts[label] = core.Money{Cents: cents}
	}
	return rows.Err()
}

const eventColumns = `id, asset_id, occurred_at, description, category,
	direct_amount_cents, usage_quantity, unit_price_override, version`

func (r *SQLiteRepository) CreateEvent(ctx context.Context, e core.UsageEvent) (core.UsageEvent, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO usage_events (asset_id, occurred_at, description, category,
			direct_amount_cents, usage_quantity, unit_price_override, version)
		VALUES (?, ?, ?, ?, ?, ?, ?, 1)`,
		e.AssetID, e.OccurredAt.UTC().Format(time.RFC3339), e.Description, e.Category,
		e.DirectAmount.Cents, e.UsageQuantity.String(), nullDecimalString(e.UnitPriceOverride),
	)
	if err != nil {
		return core.UsageEvent{}, fmt.Errorf("insert event: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return core.UsageEvent{}, fmt.Errorf("event id: %w", err)
	}

	e.ID = id
	e.Version = 1
	slog.InfoContext(ctx, "Usage event saved to SQLite",
		"id", id,
		"asset_id", e.AssetID,
		"direct_cents", e.DirectAmount.Cents)
	return e, nil
}

func (r *SQLiteRepository) GetEvent(ctx context.Context, id int64) (core.UsageEvent, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+eventColumns+` FROM usage_events WHERE id = ?`, id)

	e, err := scanEvent(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.UsageEvent{}, fmt.Errorf("event %d: %w", id, ErrNotFound)
		}
		return core.UsageEvent{}, fmt.Errorf("get event: %w", err)
	}
	return e, nil
}

func (r *SQLiteRepository) ListEvents(ctx context.Context, assetID int64) ([]core.UsageEvent, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+eventColumns+` FROM usage_events WHERE asset_id = ? ORDER BY occurred_at, id`,
		assetID)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []core.UsageEvent
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func (r *SQLiteRepository) UpdateEvent(ctx context.Context, e core.UsageEvent) (core.UsageEvent, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE usage_events
		SET occurred_at = ?, description = ?, category = ?, direct_amount_cents = ?,
			usage_quantity = ?, unit_price_override = ?, version = version + 1,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`,
		e.OccurredAt.UTC().Format(time.RFC3339), e.Description, e.Category,
		e.DirectAmount.Cents, e.UsageQuantity.String(), nullDecimalString(e.UnitPriceOverride),
		e.ID,
	)
	if err != nil {
		return core.UsageEvent{}, fmt.Errorf("update event: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return core.UsageEvent{}, fmt.Errorf("update event result: %w", err)
	}
	if affected == 0 {
		return core.UsageEvent{}, fmt.Errorf("event %d: %w", e.ID, ErrNotFound)
	}
	return r.GetEvent(ctx, e.ID)
}

func (r *SQLiteRepository) DeleteEvent(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM usage_events WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete event: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete event result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("event %d: %w", id, ErrNotFound)
	}
	return nil
}

func (r *SQLiteRepository) SaveDecomposition(ctx context.Context, d core.CostDecomposition, version int64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO cost_decompositions (event_id, asset_id, direct_cents, hidden_cents,
			total_cents, partial, event_version, resolved_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(event_id) DO UPDATE SET
			asset_id = excluded.asset_id,
			direct_cents = excluded.direct_cents,
			hidden_cents = excluded.hidden_cents,
			total_cents = excluded.total_cents,
			partial = excluded.partial,
			event_version = excluded.event_version,
			resolved_at = CURRENT_TIMESTAMP`,
		d.EventID, d.AssetID, d.DirectCost.Cents, d.HiddenCost.Cents,
		d.TotalCost.Cents, boolToInt(d.Partial), version,
	)
	if err != nil {
		return fmt.Errorf("upsert decomposition: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM cost_components WHERE event_id = ?`, d.EventID); err != nil {
		return fmt.Errorf("clear components: %w", err)
	}

	for i, c := range d.Components {
		detail, err := json.Marshal(c.Detail)
		if err != nil {
			return fmt.Errorf("marshal component detail: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO cost_components (event_id, kind, label, amount_cents, detail, position)
			VALUES (?, ?, ?, ?, ?, ?)`,
			d.EventID, string(c.Kind), c.Label, c.Amount.Cents, string(detail), i,
		); err != nil {
			return fmt.Errorf("insert component: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	slog.InfoContext(ctx, "Decomposition saved to SQLite",
		"event_id", d.EventID,
		"asset_id", d.AssetID,
		"total_cents", d.TotalCost.Cents,
		"partial", d.Partial)
	return nil
}

func (r *SQLiteRepository) GetDecomposition(ctx context.Context, eventID int64) (core.CostDecomposition, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT event_id, asset_id, direct_cents, hidden_cents, total_cents, partial
		FROM cost_decompositions WHERE event_id = ?`, eventID)

	var d core.CostDecomposition
	var partial int64
	err := row.Scan(&d.EventID, &d.AssetID, &d.DirectCost.Cents,
		&d.HiddenCost.Cents, &d.TotalCost.Cents, &partial)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.CostDecomposition{}, fmt.Errorf("decomposition for event %d: %w", eventID, ErrNotFound)
		}
		return core.CostDecomposition{}, fmt.Errorf("get decomposition: %w", err)
	}
	d.Partial = partial != 0

	d.Components, err = r.loadComponents(ctx, eventID)
	if err != nil {
		return core.CostDecomposition{}, err
	}
	return d, nil
}

func (r *SQLiteRepository) ListDecompositions(ctx context.Context, assetID int64) ([]core.CostDecomposition, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT event_id, asset_id, direct_cents, hidden_cents, total_cents, partial
		FROM cost_decompositions WHERE asset_id = ? ORDER BY event_id`, assetID)
	if err != nil {
		return nil, fmt.Errorf("list decompositions: %w", err)
	}
	defer rows.Close()

	var decomps []core.CostDecomposition
	for rows.Next() {
		var d core.CostDecomposition
		var partial int64
		if err := rows.Scan(&d.EventID, &d.AssetID, &d.DirectCost.Cents,
			&d.HiddenCost.Cents, &d.TotalCost.Cents, &partial); err != nil {
			return nil, fmt.Errorf("scan decomposition: %w", err)
		}
		d.Partial = partial != 0
		decomps = append(decomps, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate decompositions: %w", err)
	}

	for i := range decomps {
		decomps[i].Components, err = r.loadComponents(ctx, decomps[i].EventID)
		if err != nil {
			return nil, err
		}
	}
	return decomps, nil
}

func (r *SQLiteRepository) ListPendingEvents(ctx context.Context, limit int) ([]core.UsageEvent, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT e.id, e.asset_id, e.occurred_at, e.description, e.category,
			e.direct_amount_cents, e.usage_quantity, e.unit_price_override, e.version
		FROM usage_events e
		LEFT JOIN cost_decompositions d ON d.event_id = e.id
		WHERE d.event_id IS NULL OR d.event_version < e.version
		ORDER BY e.id
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending events: %w", err)
	}
	defer rows.Close()

	var events []core.UsageEvent
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan pending event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func (r *SQLiteRepository) loadComponents(ctx context.Context, eventID int64) ([]core.CostComponent, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT kind, label, amount_cents, detail
		FROM cost_components WHERE event_id = ? ORDER BY position`, eventID)
	if err != nil {
		return nil, fmt.Errorf("load components: %w", err)
	}
	defer rows.Close()

	var components []core.CostComponent
	for rows.Next() {
		var c core.CostComponent
		var kind, detail string
		if err := rows.Scan(&kind, &c.Label, &c.Amount.Cents, &detail); err != nil {
			return nil, fmt.Errorf("scan component: %w", err)
		}
		c.Kind = core.ComponentKind(kind)
		if detail != "" && detail != "{}" && detail != "null" {
			if err := json.Unmarshal([]byte(detail), &c.Detail); err != nil {
				return nil, fmt.Errorf("unmarshal component detail: %w", err)
			}
		}
		components = append(components, c)
	}
	return components, rows.Err()
}

// assetSpecColumns holds the flattened nullable spec columns of an asset row.
type assetSpecColumns struct {
	fuelType          sql.NullString
	consumptionPer100 sql.NullString
	maintenancePerKm  sql.NullString
	expectedAnnualKm  sql.NullString
	powerWatts        sql.NullString
	hourlyRate        sql.NullString
	areaSqm           sql.NullString
}

func specColumns(a core.AssetProfile) assetSpecColumns {
	var cols assetSpecColumns
	if v := a.Vehicle; v != nil {
		cols.fuelType = sql.NullString{String: string(v.FuelType), Valid: v.FuelType != ""}
		cols.consumptionPer100 = nullDecimalString(v.ConsumptionPer100)
		cols.maintenancePerKm = nullDecimalString(v.MaintenancePerKm)
		cols.expectedAnnualKm = nullDecimalString(v.ExpectedAnnualKm)
	}
	if e := a.Equipment; e != nil {
		cols.powerWatts = nullDecimalString(e.PowerWatts)
		cols.hourlyRate = nullDecimalString(e.HourlyRate)
	}
	if p := a.Property; p != nil {
		cols.areaSqm = nullDecimalString(p.AreaSqm)
	}
	return cols
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAsset(row rowScanner) (core.AssetProfile, error) {
	var a core.AssetProfile
	var category, purchaseDate, usefulLife string
	var cols assetSpecColumns

	err := row.Scan(&a.ID, &a.Name, &category, &a.PurchasePrice.Cents, &purchaseDate,
		&usefulLife, &a.ResidualValue.Cents, &cols.fuelType, &cols.consumptionPer100,
		&cols.maintenancePerKm, &cols.expectedAnnualKm, &cols.powerWatts,
		&cols.hourlyRate, &cols.areaSqm)
	if err != nil {
		return core.AssetProfile{}, err
	}

	a.Category = core.AssetCategory(category)
	date, err := time.Parse("2006-01-02", purchaseDate)
	if err != nil {
		return core.AssetProfile{}, fmt.Errorf("parse purchase date %q: %w", purchaseDate, err)
	}
	a.PurchaseDate = core.Date{Time: date}
	a.UsefulLifeYears, err = decimal.NewFromString(usefulLife)
	if err != nil {
		return core.AssetProfile{}, fmt.Errorf("parse useful life %q: %w", usefulLife, err)
	}

	switch a.Category {
	case core.CategoryVehicle:
		a.Vehicle = &core.VehicleSpec{
			FuelType:          core.FuelType(cols.fuelType.String),
			ConsumptionPer100: parseNullDecimal(cols.consumptionPer100),
			MaintenancePerKm:  parseNullDecimal(cols.maintenancePerKm),
			ExpectedAnnualKm:  parseNullDecimal(cols.expectedAnnualKm),
		}
	case core.CategoryEquipment, core.CategoryAppliance:
		a.Equipment = &core.EquipmentSpec{
			PowerWatts: parseNullDecimal(cols.powerWatts),
			HourlyRate: parseNullDecimal(cols.hourlyRate),
		}
	case core.CategoryProperty:
		a.Property = &core.PropertySpec{AreaSqm: parseNullDecimal(cols.areaSqm)}
	}
	return a, nil
}

func scanEvent(row rowScanner) (core.UsageEvent, error) {
	var e core.UsageEvent
	var occurredAt, quantity string
	var override sql.NullString

	err := row.Scan(&e.ID, &e.AssetID, &occurredAt, &e.Description, &e.Category,
		&e.DirectAmount.Cents, &quantity, &override, &e.Version)
	if err != nil {
		return core.UsageEvent{}, err
	}

	e.OccurredAt, err = parseTimestamp(occurredAt)
	if err != nil {
		return core.UsageEvent{}, fmt.Errorf("parse occurred_at %q: %w", occurredAt, err)
	}
	e.UsageQuantity, err = decimal.NewFromString(quantity)
	if err != nil {
		return core.UsageEvent{}, fmt.Errorf("parse usage quantity %q: %w", quantity, err)
	}
	e.UnitPriceOverride = parseNullDecimal(override)
	return e, nil
}

func parseTimestamp(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp format")
}

func nullDecimalString(d decimal.NullDecimal) sql.NullString {
	if !d.Valid {
		return sql.NullString{}
	}
	return sql.NullString{String: d.Decimal.String(), Valid: true}
}

func parseNullDecimal(s sql.NullString) decimal.NullDecimal {
	if !s.Valid || s.String == "" {
		return decimal.NullDecimal{}
	}
	d, err := decimal.NewFromString(s.String)
	if err != nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: d, Valid: true}
}

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
