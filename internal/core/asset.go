package core

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// AssetCategory is the closed set of tracked asset kinds. The resolver
// dispatches on this tag via a lookup table; adding a category means adding
// one policy variant, not branching logic throughout the engine.
type AssetCategory string

const (
	CategoryVehicle   AssetCategory = "vehicle"
	CategoryProperty  AssetCategory = "property"
	CategoryEquipment AssetCategory = "equipment"
	CategoryAppliance AssetCategory = "appliance"
)

// IsValid returns true if the category is one of the known variants.
func (c AssetCategory) IsValid() bool {
	switch c {
	case CategoryVehicle, CategoryProperty, CategoryEquipment, CategoryAppliance:
		return true
	default:
		return false
	}
}

// UsageUnit is the category-appropriate measure driving hidden-cost formulas.
func (c AssetCategory) UsageUnit() string {
	switch c {
	case CategoryVehicle:
		return "km"
	case CategoryProperty:
		return "m2"
	default:
		return "ora"
	}
}

// FuelType identifies what a vehicle burns; electric vehicles price their
// consumption in kWh instead of liters.
type FuelType string

const (
	FuelPetrol   FuelType = "petrol"
	FuelDiesel   FuelType = "diesel"
	FuelLPG      FuelType = "lpg"
	FuelElectric FuelType = "electric"
)

type (
	// Date is a calendar day without time-of-day, in UTC.
	Date struct {
		time.Time
	}

	// VehicleSpec carries the vehicle-only cost coefficients.
	// ConsumptionPer100 is liters (or kWh for electric) per 100 km.
	// ExpectedAnnualKm, when set, enables illustrative per-event
	// depreciation; the lifetime figure stays authoritative either way.
	VehicleSpec struct {
		FuelType          FuelType
		ConsumptionPer100 decimal.NullDecimal
		MaintenancePerKm  decimal.NullDecimal
		ExpectedAnnualKm  decimal.NullDecimal
	}

	// EquipmentSpec covers appliances and equipment. Exactly one of
	// PowerWatts (energy priced via the kWh tariff) or HourlyRate
	// (flat €/hour billing) should be set.
	EquipmentSpec struct {
		PowerWatts decimal.NullDecimal
		HourlyRate decimal.NullDecimal
	}

	// PropertySpec carries the property-only parameters.
	PropertySpec struct {
		AreaSqm decimal.NullDecimal
	}

	// AssetProfile is the static and lifecycle description of a tracked
	// physical asset. Purchase fields are immutable once registered.
	AssetProfile struct {
		ID               int64
		Name             string
		Category         AssetCategory
		PurchasePrice    Money
		PurchaseDate     Date
		UsefulLifeYears  decimal.Decimal
		ResidualValue    Money
		AnnualFixedCosts map[string]Money

		Vehicle   *VehicleSpec
		Equipment *EquipmentSpec
		Property  *PropertySpec
	}
)

// Profile validation failures. These are fatal to the profile: the engine
// never coerces an invalid profile into a computable one.
var (
	ErrEmptyName               = errors.New("empty asset name")
	ErrUnknownCategory         = errors.New("unknown asset category")
	ErrNegativePurchasePrice   = errors.New("negative purchase price")
	ErrInvalidUsefulLife       = errors.New("useful life must be positive")
	ErrNegativeResidualValue   = errors.New("negative residual value")
	ErrResidualExceedsPurchase = errors.New("residual value exceeds purchase price")
	ErrNegativeCoefficient     = errors.New("negative cost coefficient")
	ErrNegativeFixedCost       = errors.New("negative annual fixed cost")
	ErrMissingSpec             = errors.New("missing category coefficient block")
)

// NewDate creates a Date from year, month, day in UTC.
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates a datetime to its calendar day in UTC.
func DateOf(t time.Time) Date {
	u := t.UTC()
	return NewDate(u.Year(), int(u.Month()), u.Day())
}

func (d Date) Validate() error {
	if d.IsZero() {
		return errors.New("date cannot be zero")
	}
	return nil
}

// Validate checks the profile invariants from registration onward.
func (a AssetProfile) Validate() error {
	if a.Name == "" {
		return ErrEmptyName
	}
	if !a.Category.IsValid() {
		return fmt.Errorf("%w: %q", ErrUnknownCategory, a.Category)
	}
	if err := a.PurchaseDate.Validate(); err != nil {
		return fmt.Errorf("purchase date: %w", err)
	}
	if a.PurchasePrice.IsNegative() {
		return ErrNegativePurchasePrice
	}
	if a.UsefulLifeYears.Sign() <= 0 {
		// Depreciation is undefined for a non-positive life; fail, never default.
		return ErrInvalidUsefulLife
	}
	if a.ResidualValue.IsNegative() {
		return ErrNegativeResidualValue
	}
	if a.ResidualValue.Cents > a.PurchasePrice.Cents {
		return ErrResidualExceedsPurchase
	}
	for name, amount := range a.AnnualFixedCosts {
		if amount.IsNegative() {
			return fmt.Errorf("%w: %q", ErrNegativeFixedCost, name)
		}
	}
	return a.validateSpec()
}

func (a AssetProfile) validateSpec() error {
	switch a.Category {
	case CategoryVehicle:
		if a.Vehicle == nil {
			return fmt.Errorf("%w: vehicle", ErrMissingSpec)
		}
		return checkNonNegative(a.Vehicle.ConsumptionPer100, a.Vehicle.MaintenancePerKm, a.Vehicle.ExpectedAnnualKm)
	case CategoryEquipment, CategoryAppliance:
		if a.Equipment == nil {
			return fmt.Errorf("%w: %s", ErrMissingSpec, a.Category)
		}
		return checkNonNegative(a.Equipment.PowerWatts, a.Equipment.HourlyRate)
	case CategoryProperty:
		if a.Property == nil {
			return fmt.Errorf("%w: property", ErrMissingSpec)
		}
		return checkNonNegative(a.Property.AreaSqm)
	}
	return nil
}

func checkNonNegative(values ...decimal.NullDecimal) error {
	for _, v := range values {
		if v.Valid && v.Decimal.Sign() < 0 {
			return ErrNegativeCoefficient
		}
	}
	return nil
}

// TotalUsageQuantity returns the denominator for unit metrics: the summed
// usage of the supplied events, except for property where usage is the
// constant surface area.
func (a AssetProfile) TotalUsageQuantity(events []UsageEvent) decimal.Decimal {
	if a.Category == CategoryProperty {
		if a.Property != nil && a.Property.AreaSqm.Valid {
			return a.Property.AreaSqm.Decimal
		}
		return decimal.Zero
	}
	total := decimal.Zero
	for _, e := range events {
		total = total.Add(e.UsageQuantity)
	}
	return total
}
