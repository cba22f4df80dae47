package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

const defaultIdempotencyRetention = 7 * 24 * time.Hour

// KeyCleaner removes idempotency keys older than a retention window.
type KeyCleaner interface {
	Cleanup(ctx context.Context, olderThan time.Duration) error
}

// IdempotencyCleanupJob prunes stale idempotency keys.
type IdempotencyCleanupJob struct {
	Keys   KeyCleaner
	Logger *slog.Logger
}

// NewIdempotencyCleanupJob constructs the cleanup handler.
func NewIdempotencyCleanupJob(keys KeyCleaner, logger *slog.Logger) *IdempotencyCleanupJob {
	return &IdempotencyCleanupJob{Keys: keys, Logger: logger}
}

// Handle processes cleanup tasks.
func (j *IdempotencyCleanupJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Keys == nil {
		return errors.New("idempotency cleanup: handler not configured")
	}
	var payload IdempotencyCleanupPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	if payload.Retention <= 0 {
		payload.Retention = defaultIdempotencyRetention
	}
	tracker := defaultJobMetrics.Track(TaskIdempotencyCleanup)
	err := tracker.End(j.Keys.Cleanup(ctx, payload.Retention))
	logger := slog.Default()
	if j.Logger != nil {
		logger = j.Logger
	}
	if err != nil {
		logger.Error("idempotency cleanup", slog.Any("error", err))
		return err
	}
	logger.Info("idempotency keys pruned", slog.Duration("retention", payload.Retention))
	return nil
}
