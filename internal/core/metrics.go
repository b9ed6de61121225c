package core

import "github.com/shopspring/decimal"

// UnitMetrics is the per-unit economics of an asset: cost per km, per hour
// or per square meter depending on category. CostPerUnit with Valid=false
// means insufficient data; a zero denominator never produces NaN, infinity
// or a free-looking zero.
type UnitMetrics struct {
	Unit        string
	TotalUsage  decimal.Decimal
	CostPerUnit decimal.NullDecimal
}

// ComputeUnitMetrics derives cost-per-usage-unit from a lifetime summary
// and the asset's total usage quantity.
func ComputeUnitMetrics(summary TCOSummary, totalUsage decimal.Decimal, category AssetCategory) UnitMetrics {
	m := UnitMetrics{
		Unit:       category.UsageUnit(),
		TotalUsage: totalUsage,
	}
	if totalUsage.Sign() > 0 {
		m.CostPerUnit = decimal.NullDecimal{
			Decimal: summary.TCOTotal.Dec().Div(totalUsage),
			Valid:   true,
		}
	}
	return m
}
