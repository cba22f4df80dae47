package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	jobmetrics "github.com/odyssey-erp/voucher-ledger/internal/jobs"
	"github.com/odyssey-erp/voucher-ledger/internal/money"
	"github.com/odyssey-erp/voucher-ledger/internal/shared"
	"github.com/odyssey-erp/voucher-ledger/internal/vouchers"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeQueue struct {
	tasks []*asynq.Task
	err   error
}

func (q *fakeQueue) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	if q.err != nil {
		return nil, q.err
	}
	q.tasks = append(q.tasks, task)
	return &asynq.TaskInfo{Type: task.Type()}, nil
}

type sinkStub struct {
	logs []shared.AuditLog
	err  error
}

func (s *sinkStub) Record(_ context.Context, log shared.AuditLog) error {
	if s.err != nil {
		return s.err
	}
	s.logs = append(s.logs, log)
	return nil
}

var sampleLog = shared.AuditLog{ActorID: 3, Action: "voucher.create", Entity: "voucher", EntityID: "v-1"}

func TestAuditEnqueuerQueuesRecord(t *testing.T) {
	queue := &fakeQueue{}
	sink := &sinkStub{}
	enq := NewAuditEnqueuer(queue, sink, discardLogger())

	require.NoError(t, enq.Record(context.Background(), sampleLog))
	require.Len(t, queue.tasks, 1)
	require.Empty(t, sink.logs)
	require.Equal(t, TaskAuditRecord, queue.tasks[0].Type())

	var decoded shared.AuditLog
	require.NoError(t, json.Unmarshal(queue.tasks[0].Payload(), &decoded))
	require.Equal(t, "voucher.create", decoded.Action)
	require.False(t, decoded.At.IsZero())
}

func TestAuditEnqueuerFallsBackWhenQueueDown(t *testing.T) {
	queue := &fakeQueue{err: errors.New("redis down")}
	sink := &sinkStub{}
	enq := NewAuditEnqueuer(queue, sink, discardLogger())

	require.NoError(t, enq.Record(context.Background(), sampleLog))
	require.Len(t, sink.logs, 1)

	enq.Fallback = nil
	require.Error(t, enq.Record(context.Background(), sampleLog))
}

func TestAuditEnqueuerRejectsIncompleteLog(t *testing.T) {
	enq := NewAuditEnqueuer(&fakeQueue{}, nil, discardLogger())
	require.Error(t, enq.Record(context.Background(), shared.AuditLog{Action: "x"}))
}

func TestAuditRecordJobHandle(t *testing.T) {
	sink := &sinkStub{}
	job := NewAuditRecordJob(sink, discardLogger())

	task, err := NewAuditRecordTask(sampleLog)
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.Len(t, sink.logs, 1)

	err = job.Handle(context.Background(), asynq.NewTask(TaskAuditRecord, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)

	err = job.Handle(context.Background(), asynq.NewTask(TaskAuditRecord, []byte(`{"action":"x"}`)))
	require.ErrorIs(t, err, asynq.SkipRetry)

	sink.err = errors.New("db down")
	require.Error(t, job.Handle(context.Background(), task))
}

type integrityStub struct {
	unbalanced []VoucherFinding
	mismatch   []VoucherFinding
	drift      []StockFinding
	err        error
	limits     chan int
}

func (s *integrityStub) UnbalancedVouchers(_ context.Context, limit int) ([]VoucherFinding, error) {
	s.limits <- limit
	return s.unbalanced, s.err
}

func (s *integrityStub) HeaderMismatches(_ context.Context, limit int) ([]VoucherFinding, error) {
	s.limits <- limit
	return s.mismatch, nil
}

func (s *integrityStub) StockDrift(_ context.Context, limit int) ([]StockFinding, error) {
	s.limits <- limit
	return s.drift, nil
}

func TestLedgerIntegrityRunCollectsFindings(t *testing.T) {
	store := &integrityStub{
		unbalanced: []VoucherFinding{{VoucherID: uuid.New(), Number: "JRN-000001", EntryDebit: 100, EntryCredit: 90}},
		drift:      []StockFinding{{ItemID: 1, SKU: "WID", CurrentStock: decimal.NewFromInt(30), Movements: decimal.NewFromInt(10)}},
		limits:     make(chan int, 3),
	}
	metrics := jobmetrics.NewMetrics(prometheus.NewRegistry())
	job := NewLedgerIntegrityJob(store, discardLogger(), metrics)

	report, err := job.Run(context.Background(), 0)
	require.NoError(t, err)
	require.Equal(t, 2, report.Findings())
	require.Len(t, report.Unbalanced, 1)
	require.Empty(t, report.HeaderMismatch)
	close(store.limits)
	for limit := range store.limits {
		require.Equal(t, defaultIntegrityLimit, limit)
	}
}

func TestLedgerIntegrityPropagatesStoreError(t *testing.T) {
	store := &integrityStub{err: errors.New("boom"), limits: make(chan int, 3)}
	job := NewLedgerIntegrityJob(store, discardLogger(), jobmetrics.NewMetrics(prometheus.NewRegistry()))

	task, err := NewLedgerIntegrityTask(10)
	require.NoError(t, err)
	require.Error(t, job.Handle(context.Background(), task))
	require.ErrorIs(t, job.Handle(context.Background(), asynq.NewTask(TaskLedgerIntegrity, []byte("nope"))), asynq.SkipRetry)
}

type dueStub struct {
	asOf  time.Time
	limit int
	out   []vouchers.Voucher
}

func (d *dueStub) DuePDCs(_ context.Context, asOf time.Time, limit int) ([]vouchers.Voucher, error) {
	d.asOf, d.limit = asOf, limit
	return d.out, nil
}

func TestPDCDueScanDefaultsToToday(t *testing.T) {
	pdcDate := time.Date(2024, 4, 10, 0, 0, 0, 0, time.UTC)
	stub := &dueStub{out: []vouchers.Voucher{{ID: uuid.New(), Number: "PAY-000004", TotalDebit: money.Amount(5000), PDCDate: &pdcDate}}}
	job := NewPDCDueScanJob(stub, discardLogger(), jobmetrics.NewMetrics(prometheus.NewRegistry()))
	job.clock = func() time.Time { return pdcDate }

	require.NoError(t, job.Handle(context.Background(), asynq.NewTask(TaskPDCDueScan, nil)))
	require.Equal(t, pdcDate, stub.asOf)
	require.Equal(t, 500, stub.limit)

	asOf := pdcDate.AddDate(0, 0, 5)
	task, err := NewPDCDueScanTask(asOf)
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.True(t, asOf.Equal(stub.asOf))
}

type cleanerStub struct {
	retention time.Duration
}

func (c *cleanerStub) Cleanup(_ context.Context, olderThan time.Duration) error {
	c.retention = olderThan
	return nil
}

func TestIdempotencyCleanupDefaultsRetention(t *testing.T) {
	keys := &cleanerStub{}
	job := NewIdempotencyCleanupJob(keys, discardLogger())

	require.NoError(t, job.Handle(context.Background(), asynq.NewTask(TaskIdempotencyCleanup, nil)))
	require.Equal(t, defaultIdempotencyRetention, keys.retention)

	task, err := NewIdempotencyCleanupTask(time.Hour)
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, time.Hour, keys.retention)
}

type inspectorStub struct {
	info map[string]*asynq.QueueInfo
	err  error
}

func (s inspectorStub) GetQueueInfo(queue string) (*asynq.QueueInfo, error) {
	if s.err != nil {
		return nil, s.err
	}
	info, ok := s.info[queue]
	if !ok {
		return nil, asynq.ErrQueueNotFound
	}
	return info, nil
}

func TestJobsHealth(t *testing.T) {
	inspector := inspectorStub{info: map[string]*asynq.QueueInfo{QueueDefault: {Queue: QueueDefault, Pending: 4, Retry: 1}}}
	r := chi.NewRouter()
	r.Route("/jobs", NewHandler(inspector, discardLogger()).MountRoutes)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var out []queueHealth
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Equal(t, []queueHealth{{Queue: QueueDefault, Pending: 4, Failed: 1}, {Queue: QueueAudit}}, out)

	r = chi.NewRouter()
	r.Route("/jobs", NewHandler(inspectorStub{err: errors.New("down")}, discardLogger()).MountRoutes)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
