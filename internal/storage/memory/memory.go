// Package memory implements the storage.Repository contract with plain maps.
// It backs the memory data backend and the HTTP and service tests, where a
// real SQLite file would only slow things down.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"beni/internal/core"
	"beni/internal/storage"
)

type Store struct {
	mu sync.RWMutex

	assets  map[int64]core.AssetProfile
	events  map[int64]core.UsageEvent
	decomps map[int64]decompRecord

	nextAssetID int64
	nextEventID int64
}

type decompRecord struct {
	decomp  core.CostDecomposition
	version int64
}

var _ storage.Repository = (*Store)(nil)

func NewStore() *Store {
	return &Store{
		assets:      make(map[int64]core.AssetProfile),
		events:      make(map[int64]core.UsageEvent),
		decomps:     make(map[int64]decompRecord),
		nextAssetID: 1,
		nextEventID: 1,
	}
}

func (s *Store) CreateAsset(_ context.Context, a core.AssetProfile) (core.AssetProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a.ID = s.nextAssetID
	s.nextAssetID++
	s.assets[a.ID] = a
	return a, nil
}

func (s *Store) GetAsset(_ context.Context, id int64) (core.AssetProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.assets[id]
	if !ok {
		return core.AssetProfile{}, fmt.Errorf("asset %d: %w", id, storage.ErrNotFound)
	}
	return a, nil
}

func (s *Store) ListAssets(_ context.Context) ([]core.AssetProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	assets := make([]core.AssetProfile, 0, len(s.assets))
	for _, a := range s.assets {
		assets = append(assets, a)
	}
	sort.Slice(assets, func(i, j int) bool { return assets[i].ID < assets[j].ID })
	return assets, nil
}

func (s *Store) DeleteAsset(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.assets[id]; !ok {
		return fmt.Errorf("asset %d: %w", id, storage.ErrNotFound)
	}
	for _, e := range s.events {
		if e.AssetID == id {
			return fmt.Errorf("asset %d: %w", id, storage.ErrAssetHasEvents)
		}
	}
	delete(s.assets, id)
	return nil
}

func (s *Store) CreateEvent(_ context.Context, e core.UsageEvent) (core.UsageEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e.ID = s.nextEventID
	s.nextEventID++
	e.Version = 1
	s.events[e.ID] = e
	return e, nil
}

func (s *Store) GetEvent(_ context.Context, id int64) (core.UsageEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.events[id]
	if !ok {
		return core.UsageEvent{}, fmt.Errorf("event %d: %w", id, storage.ErrNotFound)
	}
	return e, nil
}

func (s *Store) ListEvents(_ context.Context, assetID int64) ([]core.UsageEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var events []core.UsageEvent
	for _, e := range s.events {
		if e.AssetID == assetID {
			events = append(events, e)
		}
	}
	sort.Slice(events, func(i, j int) bool {
		if events[i].OccurredAt.Equal(events[j].OccurredAt) {
			return events[i].ID < events[j].ID
		}
		return events[i].OccurredAt.Before(events[j].OccurredAt)
	})
	return events, nil
}

func (s *Store) UpdateEvent(_ context.Context, e core.UsageEvent) (core.UsageEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.events[e.ID]
	if !ok {
		return core.UsageEvent{}, fmt.Errorf("event %d: %w", e.ID, storage.ErrNotFound)
	}
	e.AssetID = current.AssetID
	e.Version = current.Version + 1
	s.events[e.ID] = e
	return e, nil
}

func (s *Store) DeleteEvent(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.events[id]; !ok {
		return fmt.Errorf("event %d: %w", id, storage.ErrNotFound)
	}
	delete(s.events, id)
	delete(s.decomps, id)
	return nil
}

func (s *Store) SaveDecomposition(_ context.Context, d core.CostDecomposition, version int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.decomps[d.EventID] = decompRecord{decomp: d, version: version}
	return nil
}

func (s *Store) GetDecomposition(_ context.Context, eventID int64) (core.CostDecomposition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.decomps[eventID]
	if !ok {
		return core.CostDecomposition{}, fmt.Errorf("decomposition for event %d: %w", eventID, storage.ErrNotFound)
	}
	return rec.decomp, nil
}

func (s *Store) ListDecompositions(_ context.Context, assetID int64) ([]core.CostDecomposition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var decomps []core.CostDecomposition
	for _, rec := range s.decomps {
		if rec.decomp.AssetID == assetID {
			decomps = append(decomps, rec.decomp)
		}
	}
	sort.Slice(decomps, func(i, j int) bool { return decomps[i].EventID < decomps[j].EventID })
	return decomps, nil
}

func (s *Store) ListPendingEvents(_ context.Context, limit int) ([]core.UsageEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var pending []core.UsageEvent
	for _, e := range s.events {
		rec, ok := s.decomps[e.ID]
		if !ok || rec.version < e.Version {
			pending = append(pending, e)
		}
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].ID < pending[j].ID })
	if limit > 0 && len(pending) > limit {
		pending = pending[:limit]
	}
	return pending, nil
}

func (s *Store) Close() error {
	return nil
}
