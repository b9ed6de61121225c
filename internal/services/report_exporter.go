package services

import (
	"context"
	"fmt"
	"log/slog"

	"beni/internal/core"
	applog "beni/internal/log"
	"beni/internal/sheets"
	"beni/internal/storage"
)

// ReportExporter builds the per-asset TCO report and hands it to a
// ReportWriter. The worker runs it on a timer.
type ReportExporter struct {
	repo     storage.Repository
	writer   sheets.ReportWriter
	defaults core.PriceDefaults
}

func NewReportExporter(repo storage.Repository, writer sheets.ReportWriter, defaults core.PriceDefaults) *ReportExporter {
	return &ReportExporter{
		repo:     repo,
		writer:   writer,
		defaults: defaults,
	}
}

// Export computes the TCO of every asset as of the given day and writes
// the report.
func (e *ReportExporter) Export(ctx context.Context, asOf core.Date) error {
	rows, err := e.BuildRows(ctx, asOf)
	if err != nil {
		return err
	}
	if err := e.writer.WriteTCOReport(ctx, rows); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	slog.InfoContext(ctx, "TCO report export completed",
		applog.FieldAsOf, asOf.Format("2006-01-02"),
		"assets", len(rows))
	return nil
}

// BuildRows computes one report row per asset.
func (e *ReportExporter) BuildRows(ctx context.Context, asOf core.Date) ([]sheets.ReportRow, error) {
	assets, err := e.repo.ListAssets(ctx)
	if err != nil {
		return nil, fmt.Errorf("list assets: %w", err)
	}

	rows := make([]sheets.ReportRow, 0, len(assets))
	for _, asset := range assets {
		events, err := e.repo.ListEvents(ctx, asset.ID)
		if err != nil {
			return nil, fmt.Errorf("list events for asset %d: %w", asset.ID, err)
		}

		decomps := make([]core.CostDecomposition, 0, len(events))
		for _, ev := range events {
			d, err := core.Resolve(asset, ev, e.defaults)
			if err != nil {
				return nil, fmt.Errorf("resolve event %d: %w", ev.ID, err)
			}
			decomps = append(decomps, d)
		}

		summary, err := core.Aggregate(asset, events, decomps, asOf)
		if err != nil {
			return nil, fmt.Errorf("aggregate asset %d: %w", asset.ID, err)
		}

		totalUsage := asset.TotalUsageQuantity(events)
		metrics := core.ComputeUnitMetrics(summary, totalUsage, asset.Category)

		var direct core.Money
		for _, amount := range summary.DirectByCategory {
			direct = direct.Add(amount)
		}

		costPerUnit := ""
		if metrics.CostPerUnit.Valid {
			costPerUnit = metrics.CostPerUnit.Decimal.StringFixed(2)
		}

		rows = append(rows, sheets.ReportRow{
			AssetID:      asset.ID,
			AssetName:    asset.Name,
			Category:     asset.Category,
			AsOf:         asOf,
			DirectTotal:  direct,
			FixedTotal:   summary.FixedCostsTotal,
			Depreciation: summary.DepreciationTotal,
			TCOTotal:     summary.TCOTotal,
			CostPerUnit:  costPerUnit,
			Unit:         metrics.Unit,
			Partial:      summary.Partial,
		})
	}
	return rows, nil
}
