package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/voucher-ledger/internal/shared"
)

// Enqueuer submits tasks. *asynq.Client and *Client satisfy it.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// AuditSink persists audit records.
type AuditSink interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// AuditEnqueuer hands audit records to the queue so posting never waits on
// the audit table. When enqueueing fails the record is written through
// Fallback directly.
type AuditEnqueuer struct {
	Queue    Enqueuer
	Fallback AuditSink
	Logger   *slog.Logger
}

// NewAuditEnqueuer constructs an AuditEnqueuer.
func NewAuditEnqueuer(queue Enqueuer, fallback AuditSink, logger *slog.Logger) *AuditEnqueuer {
	return &AuditEnqueuer{Queue: queue, Fallback: fallback, Logger: logger}
}

// Record enqueues log.
func (a *AuditEnqueuer) Record(ctx context.Context, log shared.AuditLog) error {
	if log.At.IsZero() {
		log.At = time.Now().UTC()
	}
	task, err := NewAuditRecordTask(log)
	if err != nil {
		return err
	}
	if a.Queue != nil {
		_, err = a.Queue.EnqueueContext(ctx, task)
		if err == nil {
			return nil
		}
		a.logger().Warn("enqueue audit record", slog.String("action", log.Action), slog.Any("error", err))
	}
	if a.Fallback == nil {
		if err == nil {
			err = errors.New("audit: no queue or fallback configured")
		}
		return err
	}
	return a.Fallback.Record(ctx, log)
}

func (a *AuditEnqueuer) logger() *slog.Logger {
	if a.Logger != nil {
		return a.Logger
	}
	return slog.Default()
}

// AuditRecordJob drains audit tasks into the sink.
type AuditRecordJob struct {
	Sink   AuditSink
	Logger *slog.Logger
}

// NewAuditRecordJob constructs the audit consumer.
func NewAuditRecordJob(sink AuditSink, logger *slog.Logger) *AuditRecordJob {
	return &AuditRecordJob{Sink: sink, Logger: logger}
}

// Handle persists one audit record.
func (j *AuditRecordJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Sink == nil {
		return errors.New("audit record: handler not configured")
	}
	var log shared.AuditLog
	if err := json.Unmarshal(t.Payload(), &log); err != nil {
		return asynq.SkipRetry
	}
	if err := log.Validate(); err != nil {
		j.logger().Warn("dropping invalid audit record", slog.Any("error", err))
		return asynq.SkipRetry
	}
	return j.Sink.Record(ctx, log)
}

func (j *AuditRecordJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskAuditRecord))
	}
	return slog.Default().With(slog.String("job", TaskAuditRecord))
}
