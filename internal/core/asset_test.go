package core

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestAssetProfileValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*AssetProfile)
		wantErr error
	}{
		{
			name:   "valid vehicle",
			mutate: func(a *AssetProfile) {},
		},
		{
			name:    "empty name",
			mutate:  func(a *AssetProfile) { a.Name = "" },
			wantErr: ErrEmptyName,
		},
		{
			name:    "unknown category",
			mutate:  func(a *AssetProfile) { a.Category = "boat" },
			wantErr: ErrUnknownCategory,
		},
		{
			name:    "zero useful life",
			mutate:  func(a *AssetProfile) { a.UsefulLifeYears = decimal.Zero },
			wantErr: ErrInvalidUsefulLife,
		},
		{
			name:    "negative useful life",
			mutate:  func(a *AssetProfile) { a.UsefulLifeYears = dec("-3") },
			wantErr: ErrInvalidUsefulLife,
		},
		{
			name:    "residual above purchase",
			mutate:  func(a *AssetProfile) { a.ResidualValue = Money{Cents: 2000000} },
			wantErr: ErrResidualExceedsPurchase,
		},
		{
			name:    "negative purchase price",
			mutate:  func(a *AssetProfile) { a.PurchasePrice = Money{Cents: -1} },
			wantErr: ErrNegativePurchasePrice,
		},
		{
			name:    "negative residual",
			mutate:  func(a *AssetProfile) { a.ResidualValue = Money{Cents: -1} },
			wantErr: ErrNegativeResidualValue,
		},
		{
			name:    "negative coefficient",
			mutate:  func(a *AssetProfile) { a.Vehicle.MaintenancePerKm = ndec("-0.08") },
			wantErr: ErrNegativeCoefficient,
		},
		{
			name: "negative fixed cost",
			mutate: func(a *AssetProfile) {
				a.AnnualFixedCosts = map[string]Money{"assicurazione": {Cents: -100}}
			},
			wantErr: ErrNegativeFixedCost,
		},
		{
			name:    "vehicle without spec",
			mutate:  func(a *AssetProfile) { a.Vehicle = nil },
			wantErr: ErrMissingSpec,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			asset := testVehicle()
			tt.mutate(&asset)
			err := asset.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestUsageEventValidate(t *testing.T) {
	valid := UsageEvent{
		AssetID:       1,
		OccurredAt:    NewDate(2024, 1, 1).Time,
		Description:   "ok",
		DirectAmount:  Money{Cents: 100},
		UsageQuantity: dec("10"),
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("Validate() = %v, want nil", err)
	}

	zeroUsage := valid
	zeroUsage.UsageQuantity = decimal.Zero
	if err := zeroUsage.Validate(); err != nil {
		t.Fatalf("zero usage must validate, got %v", err)
	}

	tests := []struct {
		name    string
		mutate  func(*UsageEvent)
		wantErr error
	}{
		{"no asset", func(e *UsageEvent) { e.AssetID = 0 }, ErrMissingAssetRef},
		{"zero time", func(e *UsageEvent) { e.OccurredAt = time.Time{} }, ErrZeroOccurredAt},
		{"blank description", func(e *UsageEvent) { e.Description = "  " }, ErrEmptyDescription},
		{"negative amount", func(e *UsageEvent) { e.DirectAmount = Money{Cents: -1} }, ErrNegativeDirectAmount},
		{"negative usage", func(e *UsageEvent) { e.UsageQuantity = dec("-1") }, ErrNegativeUsage},
		{"negative override", func(e *UsageEvent) { e.UnitPriceOverride = ndec("-1.85") }, ErrNegativeUnitPrice},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := valid
			tt.mutate(&e)
			if err := e.Validate(); !errors.Is(err, tt.wantErr) {
				t.Fatalf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestCategoryUsageUnit(t *testing.T) {
	cases := map[AssetCategory]string{
		CategoryVehicle:   "km",
		CategoryProperty:  "m2",
		CategoryEquipment: "ora",
		CategoryAppliance: "ora",
	}
	for category, want := range cases {
		if got := category.UsageUnit(); got != want {
			t.Errorf("%s unit = %q, want %q", category, got, want)
		}
	}
}
