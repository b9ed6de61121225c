package services

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"

	"beni/internal/amqp"
	"beni/internal/storage/memory"
)

func newProcessor(t *testing.T) (*ResolutionProcessor, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	return NewResolutionProcessor(store, testDefaults(), DefaultResolutionProcessorConfig()), store
}

func TestResolutionProcessor_HandleMessage(t *testing.T) {
	ctx := context.Background()
	proc, store := newProcessor(t)

	asset, _ := store.CreateAsset(ctx, testVehicle())
	event, _ := store.CreateEvent(ctx, fuelEvent(asset.ID))

	msg := amqp.NewEventResolveMessage(event.ID, asset.ID, event.Version)
	if err := proc.HandleMessage(ctx, msg); err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}

	decomp, err := store.GetDecomposition(ctx, event.ID)
	if err != nil {
		t.Fatalf("GetDecomposition() error = %v", err)
	}
	if decomp.TotalCost.Cents != 10005 {
		t.Errorf("persisted total = %d cents, want 10005", decomp.TotalCost.Cents)
	}
}

func TestResolutionProcessor_HandleMessageMissingEvent(t *testing.T) {
	ctx := context.Background()
	proc, _ := newProcessor(t)

	// Event deleted between publish and delivery: skip, don't requeue.
	msg := amqp.NewEventResolveMessage(999, 1, 1)
	if err := proc.HandleMessage(ctx, msg); err != nil {
		t.Errorf("HandleMessage() error = %v, want nil for missing event", err)
	}
}

func TestResolutionProcessor_ProcessPending(t *testing.T) {
	ctx := context.Background()
	proc, store := newProcessor(t)

	asset, _ := store.CreateAsset(ctx, testVehicle())
	first, _ := store.CreateEvent(ctx, fuelEvent(asset.ID))
	second, _ := store.CreateEvent(ctx, fuelEvent(asset.ID))

	n, err := proc.ProcessPending(ctx)
	if err != nil {
		t.Fatalf("ProcessPending() error = %v", err)
	}
	if n != 2 {
		t.Errorf("ProcessPending() = %d, want 2", n)
	}

	for _, id := range []int64{first.ID, second.ID} {
		if _, err := store.GetDecomposition(ctx, id); err != nil {
			t.Errorf("GetDecomposition(%d) error = %v", id, err)
		}
	}

	// Nothing left to do.
	n, err = proc.ProcessPending(ctx)
	if err != nil {
		t.Fatalf("ProcessPending() second run error = %v", err)
	}
	if n != 0 {
		t.Errorf("ProcessPending() second run = %d, want 0", n)
	}
}

func TestResolutionProcessor_ReResolvesAfterEdit(t *testing.T) {
	ctx := context.Background()
	proc, store := newProcessor(t)

	asset, _ := store.CreateAsset(ctx, testVehicle())
	event, _ := store.CreateEvent(ctx, fuelEvent(asset.ID))

	if _, err := proc.ProcessPending(ctx); err != nil {
		t.Fatalf("ProcessPending() error = %v", err)
	}

	// Double the distance and drop the pump price override.
	event.UsageQuantity = event.UsageQuantity.Mul(decimal.NewFromInt(2))
	event.UnitPriceOverride = decimal.NullDecimal{}
	if _, err := store.UpdateEvent(ctx, event); err != nil {
		t.Fatalf("UpdateEvent() error = %v", err)
	}

	n, err := proc.ProcessPending(ctx)
	if err != nil {
		t.Fatalf("ProcessPending() after edit error = %v", err)
	}
	if n != 1 {
		t.Fatalf("ProcessPending() after edit = %d, want 1", n)
	}

	decomp, err := store.GetDecomposition(ctx, event.ID)
	if err != nil {
		t.Fatalf("GetDecomposition() error = %v", err)
	}
	// 400 km at 6.5 l/100km and the 1.75 default, plus 0.08 eur/km
	if decomp.HiddenCost.Cents != 4550+3200 {
		t.Errorf("HiddenCost after edit = %d cents, want 7750", decomp.HiddenCost.Cents)
	}
}

func TestResolutionProcessor_StartStop(t *testing.T) {
	ctx := context.Background()
	proc, _ := newProcessor(t)

	if err := proc.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if !proc.IsRunning() {
		t.Error("IsRunning() = false after Start")
	}
	if err := proc.Start(ctx); err == nil {
		t.Error("second Start() should fail")
	}
	if err := proc.Stop(ctx); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if proc.IsRunning() {
		t.Error("IsRunning() = true after Stop")
	}
}
