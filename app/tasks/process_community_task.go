package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/contentloop/crossposter/app/assets"
	"github.com/contentloop/crossposter/app/cache"
	"github.com/contentloop/crossposter/app/community"
	"github.com/contentloop/crossposter/app/ingest"
	"github.com/contentloop/crossposter/app/pipeline"
)

type ProcessCommunityTask struct {
	Task
	Config       *community.Config
	ingestClient *ingest.Client
	processor    *pipeline.Processor
	assetManager *assets.Manager
	snapshotDir  string
}

func NewProcessCommunityTask(communityName string, config *community.Config,
	ingestClient *ingest.Client, processor *pipeline.Processor,
	assetManager *assets.Manager, snapshotDir string) *ProcessCommunityTask {
	return &ProcessCommunityTask{
		Task:         NewTask(TaskTypeProcessCommunity, communityName),
		Config:       config,
		ingestClient: ingestClient,
		processor:    processor,
		assetManager: assetManager,
		snapshotDir:  snapshotDir,
	}
}

func (t *ProcessCommunityTask) Execute(ctx context.Context) error {

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if !t.Config.Settings.Enabled {
		slog.Debug("Community disabled, skipping", "community", t.CommunityName)
		return nil
	}

	fetchCtx, cancel := context.WithTimeout(ctx, time.Duration(t.Config.Settings.Timeout)*time.Second)
	defer cancel()

	token, err := t.ingestClient.Authorize(fetchCtx)
	if err != nil {
		return fmt.Errorf("failed to authorize with upstream: %w", err)
	}

	observations, err := t.ingestClient.FetchHot(fetchCtx, token, t.Config.Source, t.Config.Settings.FetchLimit)
	if err != nil {
		return fmt.Errorf("failed to fetch observations: %w", err)
	}

	snapshot := cache.NewSnapshot(t.snapshotDir, t.CommunityName)
	if err := snapshot.Load(); err != nil {
		return fmt.Errorf("failed to load snapshot: %w", err)
	}

	// Local asset copies are per-run scratch; the object store keeps the
	// durable copy.
	if err := t.assetManager.ClearLocal(t.CommunityName); err != nil {
		slog.Warn("Failed to clear local asset cache", "community", t.CommunityName, "error", err)
	}

	summary, observedIDs := t.processor.Run(ctx, t.Config, observations, snapshot)

	if err := snapshot.Replace(observedIDs); err != nil {
		return fmt.Errorf("failed to replace snapshot: %w", err)
	}

	slog.Info("Task completed",
		"type", "ProcessCommunity",
		"community", t.CommunityName,
		"duration", t.GetDuration(),
		"total", summary.Total,
		"skipped", summary.Skipped,
		"created", summary.Created,
		"updated", summary.Updated,
		"published", summary.Published,
		"deferred", summary.Deferred,
		"failed", summary.Failed)

	return nil
}
