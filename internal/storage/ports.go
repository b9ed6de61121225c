package storage

import (
	"context"
	"errors"

	"beni/internal/core"
)

var (
	// ErrNotFound is returned when an asset, event or decomposition does
	// not exist.
	ErrNotFound = errors.New("not found")
	// ErrAssetHasEvents is returned when deleting an asset that still has
	// usage events attached.
	ErrAssetHasEvents = errors.New("asset has usage events")
)

// Repository is the persistence surface shared by the SQLite and in-memory
// backends. All write operations validate nothing themselves, callers are
// expected to run core validation first.
type Repository interface {
	CreateAsset(ctx context.Context, a core.AssetProfile) (core.AssetProfile, error)
	GetAsset(ctx context.Context, id int64) (core.AssetProfile, error)
	ListAssets(ctx context.Context) ([]core.AssetProfile, error)
	// DeleteAsset refuses with ErrAssetHasEvents while usage events still
	// reference the asset.
	DeleteAsset(ctx context.Context, id int64) error

	CreateEvent(ctx context.Context, e core.UsageEvent) (core.UsageEvent, error)
	GetEvent(ctx context.Context, id int64) (core.UsageEvent, error)
	ListEvents(ctx context.Context, assetID int64) ([]core.UsageEvent, error)
	// UpdateEvent bumps the event version so stale decompositions are
	// picked up by the pending sweep.
	UpdateEvent(ctx context.Context, e core.UsageEvent) (core.UsageEvent, error)
	DeleteEvent(ctx context.Context, id int64) error

	// SaveDecomposition upserts the decomposition for d.EventID, recording
	// the event version it was computed from.
	SaveDecomposition(ctx context.Context, d core.CostDecomposition, version int64) error
	GetDecomposition(ctx context.Context, eventID int64) (core.CostDecomposition, error)
	ListDecompositions(ctx context.Context, assetID int64) ([]core.CostDecomposition, error)
	// ListPendingEvents returns events with no decomposition or a stale
	// one, oldest first, at most limit rows.
	ListPendingEvents(ctx context.Context, limit int) ([]core.UsageEvent, error)

	Close() error
}
