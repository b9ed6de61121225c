package core

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type (
	// TCOMetrics is the derived context disclosed alongside a summary.
	TCOMetrics struct {
		ElapsedYears  decimal.Decimal
		PurchasePrice Money
		EventCount    int
		TotalUsage    decimal.Decimal
	}

	// TCOSummary is the lifetime cost of owning an asset as of a given
	// date. It is derived, never a source of truth: recomputing from the
	// same inputs yields the same summary.
	//
	// Invariant: TCOTotal = sum(DirectByCategory) + FixedCostsTotal +
	// DepreciationTotal. ResidualValue is disclosed separately and is
	// already netted out of the depreciation figure.
	TCOSummary struct {
		AssetID           int64
		AsOf              Date
		DirectByCategory  map[string]Money
		FixedCostsTotal   Money
		DepreciationTotal Money
		ResidualValue     Money
		TCOTotal          Money
		Metrics           TCOMetrics
		// Partial is set when any supplied decomposition was partial,
		// so callers can disclose that the estimate is incomplete.
		Partial bool
	}
)

// daysPerYear follows the civil-year average used for proration.
var daysPerYear = decimal.NewFromFloat(365.25)

// elapsedDays returns the ownership duration in fractional days, clamped
// to zero for an as-of date before the purchase.
func elapsedDays(purchase Date, asOf Date) decimal.Decimal {
	d := asOf.Sub(purchase.Time)
	if d < 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(int64(d / time.Second)).Div(decimal.NewFromInt(86400))
}

// Aggregate computes the total cost of ownership for an asset from its full
// event history. Direct costs are summed per user-assigned category; annual
// fixed costs are prorated by the elapsed ownership fraction; depreciation
// is straight-line over time.
//
// Depreciation here is intentionally time-based and independent of any
// per-event depreciation component produced by Resolve: the lifetime figure
// is authoritative, the per-event one is illustrative. Summing per-event
// totals is NOT a substitute for this aggregation, that would count
// depreciation twice.
func Aggregate(asset AssetProfile, events []UsageEvent, decomps []CostDecomposition, asOf Date) (TCOSummary, error) {
	if err := asset.Validate(); err != nil {
		return TCOSummary{}, fmt.Errorf("asset profile: %w", err)
	}
	if err := asOf.Validate(); err != nil {
		return TCOSummary{}, fmt.Errorf("as-of date: %w", err)
	}

	days := elapsedDays(asset.PurchaseDate, asOf)
	elapsedYears := days.Div(daysPerYear)

	// Direct costs grouped by the transaction's category. An asset with no
	// linked events still accrues fixed costs and depreciation.
	direct := make(map[string]Money)
	directTotal := Money{}
	for _, e := range events {
		category := e.Category
		if category == "" {
			category = "altro"
		}
		direct[category] = direct[category].Add(e.DirectAmount)
		directTotal = directTotal.Add(e.DirectAmount)
	}

	fixed := decimal.Zero
	for _, amount := range asset.AnnualFixedCosts {
		fixed = fixed.Add(amount.Dec().Mul(elapsedYears))
	}
	fixedTotal := MoneyFromDecimal(fixed)

	depreciationTotal := straightLineDepreciation(asset, elapsedYears)

	partial := false
	for _, d := range decomps {
		if d.Partial {
			partial = true
			break
		}
	}

	return TCOSummary{
		AssetID:           asset.ID,
		AsOf:              asOf,
		DirectByCategory:  direct,
		FixedCostsTotal:   fixedTotal,
		DepreciationTotal: depreciationTotal,
		ResidualValue:     asset.ResidualValue,
		TCOTotal:          directTotal.Add(fixedTotal).Add(depreciationTotal),
		Metrics: TCOMetrics{
			ElapsedYears:  elapsedYears,
			PurchasePrice: asset.PurchasePrice,
			EventCount:    len(events),
			TotalUsage:    asset.TotalUsageQuantity(events),
		},
		Partial: partial,
	}, nil
}

// straightLineDepreciation spreads purchase price minus residual value
// linearly over the useful life, capping once the life is exhausted.
// Same-day aggregation yields zero, not a division error.
func straightLineDepreciation(asset AssetProfile, elapsedYears decimal.Decimal) Money {
	if elapsedYears.Sign() <= 0 {
		return Money{}
	}
	years := elapsedYears
	if years.GreaterThan(asset.UsefulLifeYears) {
		years = asset.UsefulLifeYears
	}
	base := asset.PurchasePrice.Dec().Sub(asset.ResidualValue.Dec())
	return MoneyFromDecimal(years.Div(asset.UsefulLifeYears).Mul(base))
}
