package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/voucher-ledger/internal/jobs"
	"github.com/odyssey-erp/voucher-ledger/internal/vouchers"
)

// DueLister lists pending post-dated vouchers.
type DueLister interface {
	DuePDCs(ctx context.Context, asOf time.Time, limit int) ([]vouchers.Voucher, error)
}

// PDCDueScanJob logs post-dated vouchers awaiting regularization.
type PDCDueScanJob struct {
	Vouchers DueLister
	Logger   *slog.Logger
	Metrics  *jobmetrics.Metrics
	clock    func() time.Time
}

// NewPDCDueScanJob wires dependencies for the due PDC handler.
func NewPDCDueScanJob(lister DueLister, logger *slog.Logger, metrics *jobmetrics.Metrics) *PDCDueScanJob {
	return &PDCDueScanJob{Vouchers: lister, Logger: logger, Metrics: metrics, clock: func() time.Time { return time.Now().UTC() }}
}

// Handle processes due PDC scan tasks.
func (j *PDCDueScanJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.Vouchers == nil {
		return errors.New("pdc due scan: handler not configured")
	}
	var payload PDCDueScanPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	if payload.AsOf.IsZero() {
		payload.AsOf = j.now()
	}
	tracker := j.metrics().Track(TaskPDCDueScan)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger().With(slog.String("as_of", payload.AsOf.Format("2006-01-02")))
	due, err := j.Vouchers.DuePDCs(ctx, payload.AsOf, 500)
	if err != nil {
		logger.Error("list due pdcs", slog.Any("error", err))
		return err
	}
	for _, v := range due {
		attrs := []any{
			slog.String("voucher_id", v.ID.String()),
			slog.String("number", v.Number),
			slog.Int64("amount_minor", int64(v.TotalDebit)),
		}
		if v.PDCDate != nil {
			attrs = append(attrs, slog.String("pdc_date", v.PDCDate.Format("2006-01-02")))
		}
		logger.Info("post-dated voucher due", attrs...)
	}
	logger.Info("completed pdc due scan", slog.Int("due", len(due)))
	return nil
}

func (j *PDCDueScanJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskPDCDueScan))
	}
	return slog.Default().With(slog.String("job", TaskPDCDueScan))
}

func (j *PDCDueScanJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *PDCDueScanJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
