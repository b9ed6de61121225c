package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"beni/internal/core"
	"beni/internal/storage"
	"beni/internal/storage/memory"
)

type fakePublisher struct {
	published []publishedResolve
	err       error
}

type publishedResolve struct {
	eventID int64
	assetID int64
	version int64
}

func (f *fakePublisher) PublishEventResolve(_ context.Context, eventID, assetID, version int64) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, publishedResolve{eventID, assetID, version})
	return nil
}

func testDefaults() core.PriceDefaults {
	return core.PriceDefaults{
		FuelPrices: map[core.FuelType]decimal.Decimal{
			core.FuelPetrol: decimal.RequireFromString("1.75"),
		},
		TariffPerKWh: decimal.NewNullDecimal(decimal.RequireFromString("0.25")),
	}
}

func testVehicle() core.AssetProfile {
	return core.AssetProfile{
		Name:            "Auto di famiglia",
		Category:        core.CategoryVehicle,
		PurchasePrice:   core.Money{Cents: 1500000},
		PurchaseDate:    core.NewDate(2023, 1, 15),
		UsefulLifeYears: decimal.NewFromInt(10),
		ResidualValue:   core.Money{Cents: 300000},
		Vehicle: &core.VehicleSpec{
			FuelType:          core.FuelPetrol,
			ConsumptionPer100: decimal.NewNullDecimal(decimal.RequireFromString("6.5")),
			MaintenancePerKm:  decimal.NewNullDecimal(decimal.RequireFromString("0.08")),
		},
	}
}

func fuelEvent(assetID int64) core.UsageEvent {
	return core.UsageEvent{
		AssetID:           assetID,
		OccurredAt:        time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC),
		Description:       "Rifornimento",
		Category:          "trasporti",
		DirectAmount:      core.Money{Cents: 6000},
		UsageQuantity:     decimal.NewFromInt(200),
		UnitPriceOverride: decimal.NewNullDecimal(decimal.RequireFromString("1.85")),
	}
}

func newService(t *testing.T) (*AssetService, *memory.Store, *fakePublisher) {
	t.Helper()
	store := memory.NewStore()
	pub := &fakePublisher{}
	return NewAssetService(store, pub, testDefaults()), store, pub
}

func TestAssetService_CreateAsset(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newService(t)

	created, err := svc.CreateAsset(ctx, testVehicle())
	if err != nil {
		t.Fatalf("CreateAsset() error = %v", err)
	}
	if created.ID == 0 {
		t.Error("CreateAsset() should assign an ID")
	}
}

func TestAssetService_CreateAssetInvalid(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newService(t)

	invalid := testVehicle()
	invalid.Name = "  "

	_, err := svc.CreateAsset(ctx, invalid)
	if !errors.Is(err, core.ErrEmptyName) {
		t.Errorf("CreateAsset() error = %v, want ErrEmptyName", err)
	}
}

func TestAssetService_RecordEventPublishes(t *testing.T) {
	ctx := context.Background()
	svc, _, pub := newService(t)

	asset, _ := svc.CreateAsset(ctx, testVehicle())
	event, err := svc.RecordEvent(ctx, fuelEvent(asset.ID))
	if err != nil {
		t.Fatalf("RecordEvent() error = %v", err)
	}

	if len(pub.published) != 1 {
		t.Fatalf("published %d messages, want 1", len(pub.published))
	}
	got := pub.published[0]
	if got.eventID != event.ID || got.assetID != asset.ID || got.version != 1 {
		t.Errorf("published = %+v, want event %d asset %d version 1", got, event.ID, asset.ID)
	}
}

func TestAssetService_RecordEventUnknownAsset(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newService(t)

	_, err := svc.RecordEvent(ctx, fuelEvent(42))
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("RecordEvent() error = %v, want ErrNotFound", err)
	}
}

func TestAssetService_RecordEventPublishFailureTolerated(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	pub := &fakePublisher{err: errors.New("broker down")}
	svc := NewAssetService(store, pub, testDefaults())

	asset, _ := svc.CreateAsset(ctx, testVehicle())
	if _, err := svc.RecordEvent(ctx, fuelEvent(asset.ID)); err != nil {
		t.Errorf("RecordEvent() error = %v, want nil despite publish failure", err)
	}
}

func TestAssetService_UpdateEventBumpsVersion(t *testing.T) {
	ctx := context.Background()
	svc, _, pub := newService(t)

	asset, _ := svc.CreateAsset(ctx, testVehicle())
	event, _ := svc.RecordEvent(ctx, fuelEvent(asset.ID))

	event.Description = "Rifornimento autostrada"
	updated, err := svc.UpdateEvent(ctx, event)
	if err != nil {
		t.Fatalf("UpdateEvent() error = %v", err)
	}
	if updated.Version != 2 {
		t.Errorf("UpdateEvent() Version = %d, want 2", updated.Version)
	}
	if len(pub.published) != 2 || pub.published[1].version != 2 {
		t.Errorf("expected second publish with version 2, got %+v", pub.published)
	}
}

func TestAssetService_Decompose(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newService(t)

	asset, _ := svc.CreateAsset(ctx, testVehicle())
	event, _ := svc.RecordEvent(ctx, fuelEvent(asset.ID))

	decomp, err := svc.Decompose(ctx, event.ID)
	if err != nil {
		t.Fatalf("Decompose() error = %v", err)
	}

	// 200 km at 6.5 l/100km and 1.85 eur/l plus 0.08 eur/km maintenance
	if decomp.HiddenCost.Cents != 2405+1600 {
		t.Errorf("HiddenCost = %d cents, want 4005", decomp.HiddenCost.Cents)
	}
	if decomp.TotalCost.Cents != 6000+4005 {
		t.Errorf("TotalCost = %d cents, want 10005", decomp.TotalCost.Cents)
	}
	if decomp.Partial {
		t.Error("decomposition should not be partial")
	}
}

func TestAssetService_TCOAndMetrics(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newService(t)

	asset, _ := svc.CreateAsset(ctx, testVehicle())
	if _, err := svc.RecordEvent(ctx, fuelEvent(asset.ID)); err != nil {
		t.Fatalf("RecordEvent() error = %v", err)
	}

	asOf := core.NewDate(2024, 1, 15)
	summary, err := svc.TCO(ctx, asset.ID, asOf)
	if err != nil {
		t.Fatalf("TCO() error = %v", err)
	}
	if summary.TCOTotal.Cents == 0 {
		t.Error("TCO() total should be positive")
	}

	metrics, err := svc.UnitMetrics(ctx, asset.ID, asOf)
	if err != nil {
		t.Fatalf("UnitMetrics() error = %v", err)
	}
	if metrics.Unit != "km" {
		t.Errorf("UnitMetrics() Unit = %q, want km", metrics.Unit)
	}
	if !metrics.CostPerUnit.Valid {
		t.Error("UnitMetrics() CostPerUnit should be defined with 200 km of usage")
	}
}

func TestAssetService_CostSeries(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newService(t)

	asset, _ := svc.CreateAsset(ctx, testVehicle())
	if _, err := svc.RecordEvent(ctx, fuelEvent(asset.ID)); err != nil {
		t.Fatalf("RecordEvent() error = %v", err)
	}

	seq, err := svc.CostSeries(ctx, asset.ID, core.PeriodMonthly, core.NewDate(2024, 3, 1), core.NewDate(2024, 4, 30))
	if err != nil {
		t.Fatalf("CostSeries() error = %v", err)
	}

	var points []core.CostPoint
	for p := range seq {
		points = append(points, p)
	}
	if len(points) != 2 {
		t.Fatalf("CostSeries() returned %d points, want 2", len(points))
	}
	if points[0].Label != "2024-03" {
		t.Errorf("first point label = %q, want 2024-03", points[0].Label)
	}
	if points[0].Total.Cents != 10005 {
		t.Errorf("first point total = %d cents, want 10005", points[0].Total.Cents)
	}
	if points[1].Total.Cents != 0 {
		t.Errorf("second point total = %d cents, want 0", points[1].Total.Cents)
	}
}
