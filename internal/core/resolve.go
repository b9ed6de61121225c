package core

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// ComponentKind classifies a hidden-cost component.
type ComponentKind string

const (
	ComponentFuel         ComponentKind = "fuel"
	ComponentEnergy       ComponentKind = "energy"
	ComponentMaintenance  ComponentKind = "maintenance"
	ComponentDepreciation ComponentKind = "depreciation"
)

type (
	// PriceDefaults carries the configured fallback prices used when an
	// event has no unit price override. It is always passed in explicitly
	// so the resolver stays a pure, testable function.
	PriceDefaults struct {
		// FuelPrices maps fuel type to €/L (€/kWh for electric).
		FuelPrices map[FuelType]decimal.Decimal
		// TariffPerKWh prices power-rated appliance and equipment usage.
		TariffPerKWh decimal.NullDecimal
	}

	// CostComponent is one hidden-cost line of a decomposition.
	CostComponent struct {
		Kind   ComponentKind
		Label  string
		Amount Money
		Detail map[string]string
	}

	// CostDecomposition is the resolved cost of a single usage event.
	// Invariants: TotalCost = DirectCost + HiddenCost and
	// HiddenCost = sum of component amounts. Partial marks that a
	// category-required coefficient or price was unavailable and a
	// component was omitted: the total is a lower bound, not zero cost.
	CostDecomposition struct {
		AssetID    int64
		EventID    int64
		DirectCost Money
		HiddenCost Money
		TotalCost  Money
		Components []CostComponent
		Partial    bool
	}
)

// fuelPrice picks the event override, falling back to the configured
// default for the vehicle's fuel type.
func (p PriceDefaults) fuelPrice(ft FuelType, override decimal.NullDecimal) (decimal.Decimal, bool) {
	if override.Valid {
		return override.Decimal, true
	}
	price, ok := p.FuelPrices[ft]
	return price, ok
}

func (p PriceDefaults) tariff(override decimal.NullDecimal) (decimal.Decimal, bool) {
	if override.Valid {
		return override.Decimal, true
	}
	return p.TariffPerKWh.Decimal, p.TariffPerKWh.Valid
}

type resolveFunc func(asset AssetProfile, event UsageEvent, defaults PriceDefaults) ([]CostComponent, bool)

// categoryResolvers is the formula lookup table: one variant per category,
// no class hierarchy. New categories register here.
var categoryResolvers = map[AssetCategory]resolveFunc{
	CategoryVehicle:   resolveVehicle,
	CategoryEquipment: resolveEquipment,
	CategoryAppliance: resolveEquipment,
	CategoryProperty:  resolveProperty,
}

// Resolve computes the full cost decomposition of one usage event against
// its asset profile. The result is a deterministic function of the inputs:
// re-resolving after an edit needs no locking, calling twice yields
// identical output. Components are ordered fuel/energy, maintenance,
// then depreciation.
func Resolve(asset AssetProfile, event UsageEvent, defaults PriceDefaults) (CostDecomposition, error) {
	if err := asset.Validate(); err != nil {
		return CostDecomposition{}, fmt.Errorf("asset profile: %w", err)
	}
	if err := event.Validate(); err != nil {
		return CostDecomposition{}, fmt.Errorf("usage event: %w", err)
	}
	if event.AssetID != asset.ID {
		return CostDecomposition{}, fmt.Errorf("event %d does not belong to asset %d", event.ID, asset.ID)
	}

	resolver, ok := categoryResolvers[asset.Category]
	if !ok {
		return CostDecomposition{}, fmt.Errorf("%w: %q", ErrUnknownCategory, asset.Category)
	}
	components, partial := resolver(asset, event, defaults)

	hidden := Money{}
	for _, c := range components {
		hidden = hidden.Add(c.Amount)
	}
	return CostDecomposition{
		AssetID:    asset.ID,
		EventID:    event.ID,
		DirectCost: event.DirectAmount,
		HiddenCost: hidden,
		TotalCost:  event.DirectAmount.Add(hidden),
		Components: components,
		Partial:    partial,
	}, nil
}

var hundred = decimal.NewFromInt(100)

func resolveVehicle(asset AssetProfile, event UsageEvent, defaults PriceDefaults) ([]CostComponent, bool) {
	spec := asset.Vehicle
	qty := event.UsageQuantity
	var components []CostComponent
	partial := false

	// Fuel: (consumption/100) * km * unit price. A missing coefficient or
	// price omits the component entirely, never a silent zero.
	if !spec.ConsumptionPer100.Valid {
		partial = true
	} else if price, ok := defaults.fuelPrice(spec.FuelType, event.UnitPriceOverride); !ok {
		partial = true
	} else {
		consumed := spec.ConsumptionPer100.Decimal.Div(hundred).Mul(qty)
		amount := consumed.Mul(price)
		label := "Carburante"
		unit := "L"
		if spec.FuelType == FuelElectric {
			label = "Energia"
			unit = "kWh"
		}
		components = append(components, CostComponent{
			Kind:   ComponentFuel,
			Label:  label,
			Amount: MoneyFromDecimal(amount),
			Detail: map[string]string{
				"consumed":        consumed.String(),
				"consumed_unit":   unit,
				"unit_price":      price.String(),
				"consumption_100": spec.ConsumptionPer100.Decimal.String(),
				"estimated":       boolString(!event.UnitPriceOverride.Valid),
			},
		})
	}

	if !spec.MaintenancePerKm.Valid {
		partial = true
	} else {
		amount := spec.MaintenancePerKm.Decimal.Mul(qty)
		components = append(components, CostComponent{
			Kind:   ComponentMaintenance,
			Label:  "Manutenzione",
			Amount: MoneyFromDecimal(amount),
			Detail: map[string]string{
				"rate_per_km": spec.MaintenancePerKm.Decimal.String(),
			},
		})
	}

	// Per-event depreciation is illustrative only. Without an expected
	// annual mileage it is attributed solely at the lifetime level, and
	// its absence never marks the result partial.
	if spec.ExpectedAnnualKm.Valid && spec.ExpectedAnnualKm.Decimal.Sign() > 0 {
		base := asset.PurchasePrice.Dec().Sub(asset.ResidualValue.Dec())
		perKm := base.Div(asset.UsefulLifeYears).Div(spec.ExpectedAnnualKm.Decimal)
		components = append(components, CostComponent{
			Kind:   ComponentDepreciation,
			Label:  "Ammortamento",
			Amount: MoneyFromDecimal(perKm.Mul(qty)),
			Detail: map[string]string{
				"expected_annual_km": spec.ExpectedAnnualKm.Decimal.String(),
				"illustrative":       "true",
			},
		})
	}

	return components, partial
}

func resolveEquipment(asset AssetProfile, event UsageEvent, defaults PriceDefaults) ([]CostComponent, bool) {
	spec := asset.Equipment
	qty := event.UsageQuantity

	// Flat hourly billing takes precedence over power-rated pricing.
	if spec.HourlyRate.Valid {
		amount := spec.HourlyRate.Decimal.Mul(qty)
		return []CostComponent{{
			Kind:   ComponentEnergy,
			Label:  "Costo orario",
			Amount: MoneyFromDecimal(amount),
			Detail: map[string]string{
				"hourly_rate": spec.HourlyRate.Decimal.String(),
			},
		}}, false
	}

	if !spec.PowerWatts.Valid {
		return nil, true
	}
	tariff, ok := defaults.tariff(event.UnitPriceOverride)
	if !ok {
		return nil, true
	}
	kwh := spec.PowerWatts.Decimal.Div(decimal.NewFromInt(1000)).Mul(qty)
	return []CostComponent{{
		Kind:   ComponentEnergy,
		Label:  "Energia",
		Amount: MoneyFromDecimal(kwh.Mul(tariff)),
		Detail: map[string]string{
			"kwh":            kwh.String(),
			"tariff_per_kwh": tariff.String(),
			"power_watts":    spec.PowerWatts.Decimal.String(),
		},
	}}, false
}

// resolveProperty: property has no per-event hidden cost; its costs are
// fixed and periodic, handled entirely by the lifetime aggregation.
func resolveProperty(AssetProfile, UsageEvent, PriceDefaults) ([]CostComponent, bool) {
	return nil, false
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
