package sheets

import (
	"context"

	"beni/internal/core"
)

// ReportRow is one asset's line in the exported TCO report.
type ReportRow struct {
	AssetID      int64
	AssetName    string
	Category     core.AssetCategory
	AsOf         core.Date
	DirectTotal  core.Money
	FixedTotal   core.Money
	Depreciation core.Money
	TCOTotal     core.Money
	// CostPerUnit is the formatted cost per usage unit, empty when the
	// metric is undefined (no usage recorded yet).
	CostPerUnit string
	Unit        string
	Partial     bool
}

// ReportWriter is the outbound port for TCO report exports.
type ReportWriter interface {
	// WriteTCOReport replaces the report sheet contents with the given rows.
	WriteTCOReport(ctx context.Context, rows []ReportRow) error
}
