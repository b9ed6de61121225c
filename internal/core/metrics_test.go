package core

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestComputeUnitMetrics(t *testing.T) {
	summary := TCOSummary{TCOTotal: Money{Cents: 450000}} // €4,500

	tests := []struct {
		name        string
		usage       decimal.Decimal
		category    AssetCategory
		wantValid   bool
		wantPerUnit string
		wantUnit    string
	}{
		{
			name:        "vehicle cost per km",
			usage:       dec("15000"),
			category:    CategoryVehicle,
			wantValid:   true,
			wantPerUnit: "0.3",
			wantUnit:    "km",
		},
		{
			name:        "appliance cost per hour",
			usage:       dec("900"),
			category:    CategoryAppliance,
			wantValid:   true,
			wantPerUnit: "5",
			wantUnit:    "ora",
		},
		{
			name:        "property cost per sqm",
			usage:       dec("65"),
			category:    CategoryProperty,
			wantValid:   true,
			wantPerUnit: "69.230769",
			wantUnit:    "m2",
		},
		{
			name:      "zero usage yields absent metric",
			usage:     decimal.Zero,
			category:  CategoryVehicle,
			wantValid: false,
			wantUnit:  "km",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeUnitMetrics(summary, tt.usage, tt.category)
			if got.Unit != tt.wantUnit {
				t.Errorf("unit = %q, want %q", got.Unit, tt.wantUnit)
			}
			if got.CostPerUnit.Valid != tt.wantValid {
				t.Fatalf("valid = %v, want %v", got.CostPerUnit.Valid, tt.wantValid)
			}
			if tt.wantValid && got.CostPerUnit.Decimal.Round(6).Cmp(dec(tt.wantPerUnit)) != 0 {
				t.Errorf("cost per unit = %s, want %s", got.CostPerUnit.Decimal, tt.wantPerUnit)
			}
		})
	}
}
