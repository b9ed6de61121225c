package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"beni/internal/amqp"
	"beni/internal/core"
	applog "beni/internal/log"
	"beni/internal/storage"
)

// ResolutionProcessorConfig holds configuration for the background resolver.
type ResolutionProcessorConfig struct {
	// PollInterval is how often the sweep checks for pending events.
	PollInterval time.Duration

	// BatchSize is the max number of events resolved per sweep cycle.
	BatchSize int
}

// DefaultResolutionProcessorConfig returns sensible defaults
func DefaultResolutionProcessorConfig() ResolutionProcessorConfig {
	return ResolutionProcessorConfig{
		PollInterval: 10 * time.Second,
		BatchSize:    25,
	}
}

// ResolutionProcessor persists cost decompositions for usage events. It
// reacts to resolve messages and additionally sweeps the database for
// events whose decomposition is missing or stale, so a lost message never
// leaves an event unresolved forever.
type ResolutionProcessor struct {
	repo     storage.Repository
	defaults core.PriceDefaults
	config   ResolutionProcessorConfig

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func NewResolutionProcessor(repo storage.Repository, defaults core.PriceDefaults, config ResolutionProcessorConfig) *ResolutionProcessor {
	return &ResolutionProcessor{
		repo:     repo,
		defaults: defaults,
		config:   config,
	}
}

// HandleMessage resolves the event named by a resolve message and persists
// the decomposition. A vanished event is not an error, the event was
// deleted between publish and delivery.
func (p *ResolutionProcessor) HandleMessage(ctx context.Context, msg *amqp.EventResolveMessage) error {
	err := p.resolveEvent(ctx, msg.EventID)
	if errors.Is(err, storage.ErrNotFound) {
		slog.WarnContext(ctx, "Resolve message for missing event, skipping",
			applog.FieldEventID, msg.EventID)
		return nil
	}
	return err
}

// ProcessPending resolves one batch of pending events and reports how many
// it handled.
func (p *ResolutionProcessor) ProcessPending(ctx context.Context) (int, error) {
	events, err := p.repo.ListPendingEvents(ctx, p.config.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("list pending events: %w", err)
	}

	processed := 0
	for _, e := range events {
		if ctx.Err() != nil {
			return processed, ctx.Err()
		}
		if err := p.resolveEvent(ctx, e.ID); err != nil {
			slog.ErrorContext(ctx, "Failed to resolve pending event",
				applog.FieldEventID, e.ID, applog.FieldError, err)
			continue
		}
		processed++
	}
	return processed, nil
}

func (p *ResolutionProcessor) resolveEvent(ctx context.Context, eventID int64) error {
	event, err := p.repo.GetEvent(ctx, eventID)
	if err != nil {
		return fmt.Errorf("load event %d: %w", eventID, err)
	}
	asset, err := p.repo.GetAsset(ctx, event.AssetID)
	if err != nil {
		return fmt.Errorf("load asset %d: %w", event.AssetID, err)
	}

	decomp, err := core.Resolve(asset, event, p.defaults)
	if err != nil {
		return fmt.Errorf("resolve event %d: %w", eventID, err)
	}

	if err := p.repo.SaveDecomposition(ctx, decomp, event.Version); err != nil {
		return fmt.Errorf("save decomposition: %w", err)
	}

	slog.InfoContext(ctx, "Resolved usage event",
		applog.FieldEventID, eventID,
		applog.FieldAssetID, asset.ID,
		applog.FieldHiddenCents, decomp.HiddenCost.Cents,
		applog.FieldTotalCents, decomp.TotalCost.Cents,
		applog.FieldPartial, decomp.Partial)
	return nil
}

// Start begins the sweep loop. Returns an error if already running.
func (p *ResolutionProcessor) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("resolution processor is already running")
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})
	p.mu.Unlock()

	go p.runLoop(ctx)

	slog.InfoContext(ctx, "Resolution processor started",
		"poll_interval", p.config.PollInterval,
		"batch_size", p.config.BatchSize)
	return nil
}

// Stop gracefully stops the sweep and waits for completion.
func (p *ResolutionProcessor) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	close(p.stopCh)

	select {
	case <-p.doneCh:
		slog.InfoContext(ctx, "Resolution processor stopped gracefully")
	case <-ctx.Done():
		slog.WarnContext(ctx, "Resolution processor stop timed out")
		return ctx.Err()
	}

	p.mu.Lock()
	p.running = false
	p.mu.Unlock()
	return nil
}

// IsRunning returns whether the sweep loop is currently running
func (p *ResolutionProcessor) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *ResolutionProcessor) runLoop(ctx context.Context) {
	defer close(p.doneCh)

	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	// Sweep immediately on startup to catch events left over from a crash
	p.sweep(ctx)

	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.sweep(ctx)
		}
	}
}

func (p *ResolutionProcessor) sweep(ctx context.Context) {
	n, err := p.ProcessPending(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "Pending sweep failed", applog.FieldError, err)
		return
	}
	if n > 0 {
		slog.DebugContext(ctx, "Pending sweep resolved events", "count", n)
	}
}
