package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/voucher-ledger/internal/shared"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// QueueAudit carries audit records emitted after commits.
	QueueAudit = "audit"

	// TaskAuditRecord persists one audit record.
	TaskAuditRecord = "audit:record"
	// TaskLedgerIntegrity scans the ledger for invariant violations.
	TaskLedgerIntegrity = "ledger:integrity"
	// TaskPDCDueScan reports post-dated vouchers whose cheque date has arrived.
	TaskPDCDueScan = "pdc:due-scan"
	// TaskIdempotencyCleanup removes expired idempotency keys.
	TaskIdempotencyCleanup = "idempotency:cleanup"
)

// NewAuditRecordTask constructs an Asynq task carrying log.
func NewAuditRecordTask(log shared.AuditLog) (*asynq.Task, error) {
	if err := log.Validate(); err != nil {
		return nil, err
	}
	body, err := json.Marshal(log)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAuditRecord, body, asynq.Queue(QueueAudit), asynq.MaxRetry(10)), nil
}

// LedgerIntegrityPayload scopes an integrity scan.
type LedgerIntegrityPayload struct {
	// Limit caps the findings reported per check.
	Limit int `json:"limit"`
}

// NewLedgerIntegrityTask constructs an Asynq task for the integrity scan.
func NewLedgerIntegrityTask(limit int) (*asynq.Task, error) {
	body, err := json.Marshal(LedgerIntegrityPayload{Limit: limit})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLedgerIntegrity, body, asynq.Queue(QueueDefault)), nil
}

// PDCDueScanPayload carries the scan date. A zero AsOf means the run date.
type PDCDueScanPayload struct {
	AsOf time.Time `json:"as_of"`
}

// NewPDCDueScanTask constructs an Asynq task for the due PDC report.
func NewPDCDueScanTask(asOf time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(PDCDueScanPayload{AsOf: asOf})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskPDCDueScan, body, asynq.Queue(QueueDefault)), nil
}

// IdempotencyCleanupPayload sets key retention.
type IdempotencyCleanupPayload struct {
	Retention time.Duration `json:"retention"`
}

// NewIdempotencyCleanupTask constructs an Asynq task for key cleanup.
func NewIdempotencyCleanupTask(retention time.Duration) (*asynq.Task, error) {
	body, err := json.Marshal(IdempotencyCleanupPayload{Retention: retention})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyCleanup, body, asynq.Queue(QueueDefault)), nil
}
