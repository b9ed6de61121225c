package services

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"time"

	"beni/internal/core"
	applog "beni/internal/log"
	"beni/internal/storage"
)

// ResolvePublisher notifies the worker that a usage event needs its cost
// decomposition (re)computed. Implemented by amqp.Client.
type ResolvePublisher interface {
	PublishEventResolve(ctx context.Context, eventID, assetID, version int64) error
}

// AssetService orchestrates asset and usage event operations: validation,
// persistence, resolve notifications and the on-demand cost computations
// served by the HTTP layer. Reads never depend on the worker having run,
// decompositions are recomputed inline from the profile and the event.
type AssetService struct {
	repo      storage.Repository
	publisher ResolvePublisher
	defaults  core.PriceDefaults
}

func NewAssetService(repo storage.Repository, publisher ResolvePublisher, defaults core.PriceDefaults) *AssetService {
	return &AssetService{
		repo:      repo,
		publisher: publisher,
		defaults:  defaults,
	}
}

func (s *AssetService) CreateAsset(ctx context.Context, a core.AssetProfile) (core.AssetProfile, error) {
	if err := a.Validate(); err != nil {
		return core.AssetProfile{}, fmt.Errorf("validate asset: %w", err)
	}
	created, err := s.repo.CreateAsset(ctx, a)
	if err != nil {
		return core.AssetProfile{}, fmt.Errorf("save asset: %w", err)
	}
	return created, nil
}

func (s *AssetService) GetAsset(ctx context.Context, id int64) (core.AssetProfile, error) {
	return s.repo.GetAsset(ctx, id)
}

func (s *AssetService) ListAssets(ctx context.Context) ([]core.AssetProfile, error) {
	return s.repo.ListAssets(ctx)
}

// DeleteAsset refuses while usage events still reference the asset.
func (s *AssetService) DeleteAsset(ctx context.Context, id int64) error {
	return s.repo.DeleteAsset(ctx, id)
}

// RecordEvent saves a usage event and asks the worker to persist its
// decomposition. A publish failure is logged but does not fail the request,
// the pending sweep picks the event up later.
func (s *AssetService) RecordEvent(ctx context.Context, e core.UsageEvent) (core.UsageEvent, error) {
	if err := e.Validate(); err != nil {
		return core.UsageEvent{}, fmt.Errorf("validate event: %w", err)
	}
	if _, err := s.repo.GetAsset(ctx, e.AssetID); err != nil {
		return core.UsageEvent{}, fmt.Errorf("load asset %d: %w", e.AssetID, err)
	}

	created, err := s.repo.CreateEvent(ctx, e)
	if err != nil {
		return core.UsageEvent{}, fmt.Errorf("save event: %w", err)
	}

	s.publishResolve(ctx, created)
	return created, nil
}

// UpdateEvent saves the edit and triggers re-resolution. The stored
// decomposition stays stale until the worker catches up.
func (s *AssetService) UpdateEvent(ctx context.Context, e core.UsageEvent) (core.UsageEvent, error) {
	if err := e.Validate(); err != nil {
		return core.UsageEvent{}, fmt.Errorf("validate event: %w", err)
	}

	updated, err := s.repo.UpdateEvent(ctx, e)
	if err != nil {
		return core.UsageEvent{}, fmt.Errorf("update event: %w", err)
	}

	s.publishResolve(ctx, updated)
	return updated, nil
}

func (s *AssetService) DeleteEvent(ctx context.Context, id int64) error {
	return s.repo.DeleteEvent(ctx, id)
}

func (s *AssetService) GetEvent(ctx context.Context, id int64) (core.UsageEvent, error) {
	return s.repo.GetEvent(ctx, id)
}

func (s *AssetService) ListEvents(ctx context.Context, assetID int64) ([]core.UsageEvent, error) {
	if _, err := s.repo.GetAsset(ctx, assetID); err != nil {
		return nil, fmt.Errorf("load asset %d: %w", assetID, err)
	}
	return s.repo.ListEvents(ctx, assetID)
}

// Decompose returns the cost decomposition of a single event, computed
// from the current profile and prices.
func (s *AssetService) Decompose(ctx context.Context, eventID int64) (core.CostDecomposition, error) {
	event, err := s.repo.GetEvent(ctx, eventID)
	if err != nil {
		return core.CostDecomposition{}, fmt.Errorf("load event %d: %w", eventID, err)
	}
	asset, err := s.repo.GetAsset(ctx, event.AssetID)
	if err != nil {
		return core.CostDecomposition{}, fmt.Errorf("load asset %d: %w", event.AssetID, err)
	}
	return core.Resolve(asset, event, s.defaults)
}

// TCO computes the lifetime total cost of ownership of an asset as of the
// given day.
func (s *AssetService) TCO(ctx context.Context, assetID int64, asOf core.Date) (core.TCOSummary, error) {
	asset, events, decomps, err := s.resolveAll(ctx, assetID)
	if err != nil {
		return core.TCOSummary{}, err
	}
	return core.Aggregate(asset, events, decomps, asOf)
}

// UnitMetrics computes cost per usage unit from the TCO as of the given day.
func (s *AssetService) UnitMetrics(ctx context.Context, assetID int64, asOf core.Date) (core.UnitMetrics, error) {
	asset, events, decomps, err := s.resolveAll(ctx, assetID)
	if err != nil {
		return core.UnitMetrics{}, err
	}
	summary, err := core.Aggregate(asset, events, decomps, asOf)
	if err != nil {
		return core.UnitMetrics{}, fmt.Errorf("aggregate: %w", err)
	}
	return core.ComputeUnitMetrics(summary, asset.TotalUsageQuantity(events), asset.Category), nil
}

// CostSeries projects total cost over time buckets for charting.
func (s *AssetService) CostSeries(ctx context.Context, assetID int64, bucket core.Period, from, to core.Date) (iter.Seq[core.CostPoint], error) {
	_, events, decomps, err := s.resolveAll(ctx, assetID)
	if err != nil {
		return nil, err
	}
	return core.Project(events, decomps, bucket, from, to)
}

// resolveAll loads an asset with its events and resolves every event
// inline. Persisted decompositions are ignored here on purpose: recomputing
// keeps reads correct even when the worker lags behind an edit.
func (s *AssetService) resolveAll(ctx context.Context, assetID int64) (core.AssetProfile, []core.UsageEvent, []core.CostDecomposition, error) {
	asset, err := s.repo.GetAsset(ctx, assetID)
	if err != nil {
		return core.AssetProfile{}, nil, nil, fmt.Errorf("load asset %d: %w", assetID, err)
	}
	events, err := s.repo.ListEvents(ctx, assetID)
	if err != nil {
		return core.AssetProfile{}, nil, nil, fmt.Errorf("list events: %w", err)
	}

	decomps := make([]core.CostDecomposition, 0, len(events))
	for _, e := range events {
		d, err := core.Resolve(asset, e, s.defaults)
		if err != nil {
			return core.AssetProfile{}, nil, nil, fmt.Errorf("resolve event %d: %w", e.ID, err)
		}
		decomps = append(decomps, d)
	}
	return asset, events, decomps, nil
}

func (s *AssetService) publishResolve(ctx context.Context, e core.UsageEvent) {
	if s.publisher == nil {
		slog.WarnContext(ctx, "AMQP publisher not available, relying on pending sweep",
			applog.FieldEventID, e.ID)
		return
	}
	if err := s.publisher.PublishEventResolve(ctx, e.ID, e.AssetID, e.Version); err != nil {
		slog.ErrorContext(ctx, "Failed to publish resolve message",
			applog.FieldEventID, e.ID, applog.FieldError, err)
	}
}

// Today returns the current day in UTC, the default asOf for TCO reads.
func Today() core.Date {
	return core.DateOf(time.Now().UTC())
}
