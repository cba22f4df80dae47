package inventory

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/voucher-ledger/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetItem(ctx context.Context, itemID int64) (Item, error)
	GetTransfer(ctx context.Context, id uuid.UUID) (Transfer, error)
	ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service coordinates inventory reads and stock transfers.
type Service struct {
	repo      RepositoryPort
	processor *Processor
	audit     AuditPort
	logger    *slog.Logger
	now       func() time.Time
	newID     func() uuid.UUID
}

// NewService builds Service. audit may be nil.
func NewService(repo RepositoryPort, processor *Processor, audit AuditPort, logger *slog.Logger) *Service {
	if processor == nil {
		processor = NewProcessor(nil, true)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, processor: processor, audit: audit, logger: logger, now: time.Now, newID: uuid.New}
}

// GetItem returns an item with its current stock and purchase rate.
func (s *Service) GetItem(ctx context.Context, itemID int64) (Item, error) {
	if itemID <= 0 {
		return Item{}, ErrItemNotFound
	}
	return s.repo.GetItem(ctx, itemID)
}

// ListMovements lists stock movements for an item.
func (s *Service) ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error) {
	if _, err := s.GetItem(ctx, filter.ItemID); err != nil {
		return nil, err
	}
	if !filter.From.IsZero() && !filter.To.IsZero() && filter.To.Before(filter.From) {
		return nil, shared.Validation("inventory: to date must not precede from date")
	}
	return s.repo.ListMovements(ctx, filter)
}

func (s *Service) record(ctx context.Context, log shared.AuditLog) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, log); err != nil {
		s.logger.Warn("audit emission failed", slog.String("action", log.Action), slog.String("entity_id", log.EntityID), slog.Any("error", err))
	}
}
