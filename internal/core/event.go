package core

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// UsageEvent is one usage of an asset: a transaction linked to it plus the
// category-appropriate usage quantity (km for vehicles, hours for
// appliances/equipment, absent for property). Events are immutable once
// resolved; an edit forces re-resolution of the decomposition.
type UsageEvent struct {
	ID          int64
	AssetID     int64
	OccurredAt  time.Time
	Description string
	// Category is the transaction's user-assigned spending category, a
	// pass-through grouping key for the lifetime aggregation.
	Category      string
	DirectAmount  Money
	UsageQuantity decimal.Decimal
	// UnitPriceOverride is the known unit price at the time of the event
	// (e.g. fuel price at the pump). When unset, the resolver falls back
	// to the configured default for the asset's fuel type or tariff.
	UnitPriceOverride decimal.NullDecimal
	// Version increments on every edit. A decomposition computed for an
	// older version is stale and gets recomputed by the sweep.
	Version int64
}

var (
	ErrEmptyDescription     = errors.New("empty description")
	ErrMissingAssetRef      = errors.New("event must reference an asset")
	ErrZeroOccurredAt       = errors.New("event timestamp cannot be zero")
	ErrNegativeUsage        = errors.New("negative usage quantity")
	ErrNegativeDirectAmount = errors.New("negative direct amount")
	ErrNegativeUnitPrice    = errors.New("negative unit price override")
)

func (e UsageEvent) Validate() error {
	if e.AssetID <= 0 {
		return ErrMissingAssetRef
	}
	if e.OccurredAt.IsZero() {
		return ErrZeroOccurredAt
	}
	if len(strings.TrimSpace(e.Description)) == 0 {
		return ErrEmptyDescription
	}
	if e.DirectAmount.IsNegative() {
		return ErrNegativeDirectAmount
	}
	// Zero usage is valid: the event still resolves with zero hidden cost.
	if e.UsageQuantity.Sign() < 0 {
		return ErrNegativeUsage
	}
	if e.UnitPriceOverride.Valid && e.UnitPriceOverride.Decimal.Sign() < 0 {
		return ErrNegativeUnitPrice
	}
	return nil
}
