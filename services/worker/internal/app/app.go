package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"portfoliohub/internal/viewcount"
	"portfoliohub/pkg/domain"
	"portfoliohub/pkg/queue"
	"portfoliohub/pkg/storage"
	"portfoliohub/pkg/store"
)

// JobSource delivers asset jobs to a handler until ctx is done.
type JobSource interface {
	Run(ctx context.Context, concurrency int, handler queue.Handler) error
}

// ViewFlusher drains buffered project views.
type ViewFlusher interface {
	Flush(ctx context.Context, apply viewcount.ApplyFunc) (int, error)
}

// Config holds the worker's dependencies.
type Config struct {
	Store         store.Store
	Objects       storage.ObjectStore
	Jobs          JobSource
	Views         ViewFlusher
	Concurrency   int
	MaxRetries    int
	FlushInterval time.Duration
	MaxProbeBytes int64
	Logger        *slog.Logger
}

// App processes uploaded assets and flushes view counts.
type App struct {
	store         store.Store
	objects       storage.ObjectStore
	jobs          JobSource
	views         ViewFlusher
	concurrency   int
	maxRetries    int
	flushInterval time.Duration
	maxProbeBytes int64
	logger        *slog.Logger
	now           func() time.Time
}

func New(cfg Config) (*App, error) {
	if cfg.Store == nil {
		return nil, errors.New("store is required")
	}
	if cfg.Objects == nil {
		return nil, errors.New("object store is required")
	}
	if cfg.Jobs == nil {
		return nil, errors.New("job source is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{
		store:         cfg.Store,
		objects:       cfg.Objects,
		jobs:          cfg.Jobs,
		views:         cfg.Views,
		concurrency:   cfg.Concurrency,
		maxRetries:    cfg.MaxRetries,
		flushInterval: cfg.FlushInterval,
		maxProbeBytes: cfg.MaxProbeBytes,
		logger:        logger,
		now:           func() time.Time { return time.Now().UTC() },
	}
	if a.concurrency <= 0 {
		a.concurrency = 1
	}
	if a.maxRetries <= 0 {
		a.maxRetries = 3
	}
	if a.flushInterval <= 0 {
		a.flushInterval = time.Minute
	}
	if a.maxProbeBytes <= 0 {
		a.maxProbeBytes = 100 << 20
	}
	return a, nil
}

// Run consumes asset jobs and flushes views until ctx is cancelled. A final
// flush runs on shutdown so buffered views are not held until the next start.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.jobs.Run(gctx, a.concurrency, a.ProcessAsset)
	})
	if a.views != nil {
		g.Go(func() error {
			a.flushLoop(gctx)
			return nil
		})
	}
	err := g.Wait()
	if a.views != nil {
		flushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if _, ferr := a.FlushViews(flushCtx); ferr != nil {
			a.logger.Warn("final_view_flush_failed", "err", ferr)
		}
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (a *App) flushLoop(ctx context.Context) {
	ticker := time.NewTicker(a.flushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := a.FlushViews(ctx); err != nil {
				a.logger.Warn("view_flush_failed", "err", err)
			}
		}
	}
}

// FlushViews writes buffered view counts to the store.
func (a *App) FlushViews(ctx context.Context) (int, error) {
	if a.views == nil {
		return 0, nil
	}
	n, err := a.views.Flush(ctx, func(projectID string, delta int64) error {
		err := a.store.IncrementProjectViews(projectID, delta)
		if errors.Is(err, store.ErrNotFound) {
			// project deleted since the view; nothing to count against
			a.logger.Info("views_dropped", "project_id", projectID, "delta", delta)
			return nil
		}
		return err
	})
	if n > 0 {
		a.logger.Info("views_flushed", "projects", n)
	}
	return n, err
}

// ProcessAsset probes one uploaded asset and records the outcome. Missing
// assets and unreadable files fail immediately; other errors are retried by
// the queue, and the asset is marked FAILED on the last attempt.
func (a *App) ProcessAsset(ctx context.Context, job queue.Job) error {
	logger := a.logger.With("job_id", job.ID, "asset_id", job.AssetID, "attempt", job.Attempts)
	asset, ok, err := a.store.GetAsset(job.AssetID)
	if err != nil {
		return fmt.Errorf("load asset: %w", err)
	}
	if !ok {
		logger.Warn("asset_missing")
		return fmt.Errorf("asset %s not found: %w", job.AssetID, queue.ErrFinal)
	}
	if asset.ProcessingStatus == domain.ProcessingCompleted {
		return nil
	}
	err = a.store.UpdateAssetProcessing(asset.ID, store.AssetProcessing{
		Status:    domain.ProcessingInProgress,
		UpdatedAt: a.now(),
	})
	if err != nil {
		return fmt.Errorf("mark processing: %w", err)
	}

	result, err := a.probeAsset(ctx, asset)
	if err != nil {
		final := errors.Is(err, errUnreadable) || errors.Is(err, storage.ErrObjectNotFound)
		if final || job.Attempts >= a.maxRetries {
			a.markFailed(logger, asset, err)
			return fmt.Errorf("%w: %w", queue.ErrFinal, err)
		}
		uerr := a.store.UpdateAssetProcessing(asset.ID, store.AssetProcessing{
			Status:    domain.ProcessingPending,
			Error:     err.Error(),
			UpdatedAt: a.now(),
		})
		if uerr != nil {
			logger.Warn("asset_status_update_failed", "err", uerr)
		}
		return err
	}

	err = a.store.UpdateAssetProcessing(asset.ID, store.AssetProcessing{
		Status:      domain.ProcessingCompleted,
		IsProcessed: true,
		UpdatedAt:   a.now(),
		Result: &store.AssetMedia{
			Width:     result.Width,
			Height:    result.Height,
			PageCount: result.PageCount,
			Metadata:  a.metadata(asset, result),
		},
	})
	if err != nil {
		return fmt.Errorf("mark completed: %w", err)
	}
	logger.Info("asset_processed", "type", asset.Type, "format", result.Format)
	return nil
}

func (a *App) probeAsset(ctx context.Context, asset domain.ProjectAsset) (probeResult, error) {
	rc, info, err := a.objects.Get(ctx, asset.StorageKey)
	if err != nil {
		return probeResult{}, fmt.Errorf("fetch object: %w", err)
	}
	defer func() { _ = rc.Close() }()
	if info.Size > a.maxProbeBytes {
		// too large to hold in memory; keep size and mime only
		return probeResult{}, nil
	}
	data, err := io.ReadAll(io.LimitReader(rc, a.maxProbeBytes))
	if err != nil {
		return probeResult{}, fmt.Errorf("read object: %w", err)
	}
	return probe(asset.Type, asset.FileName, asset.MimeType, data)
}

func (a *App) metadata(asset domain.ProjectAsset, result probeResult) json.RawMessage {
	meta := map[string]any{
		"probedAt": a.now().Format(time.RFC3339),
		"bytes":    asset.FileSize,
		"mimeType": asset.MimeType,
	}
	if result.Format != "" {
		meta["format"] = result.Format
	}
	raw, err := json.Marshal(meta)
	if err != nil {
		return nil
	}
	return raw
}

func (a *App) markFailed(logger *slog.Logger, asset domain.ProjectAsset, cause error) {
	err := a.store.UpdateAssetProcessing(asset.ID, store.AssetProcessing{
		Status:    domain.ProcessingFailed,
		Error:     cause.Error(),
		UpdatedAt: a.now(),
	})
	if err != nil {
		logger.Warn("asset_status_update_failed", "err", err)
		return
	}
	logger.Error("asset_processing_failed", "err", cause)
}
