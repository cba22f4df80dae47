package vouchers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/voucher-ledger/internal/inventory"
	"github.com/odyssey-erp/voucher-ledger/internal/shared"
)

// RepositoryPort abstracts voucher persistence.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetVoucher(ctx context.Context, id uuid.UUID) (Voucher, error)
	ListDuePDCs(ctx context.Context, filter DueFilter) ([]Voucher, error)
}

// TxRepository exposes the writes of one posting transaction.
type TxRepository interface {
	NextNumber(ctx context.Context, t VoucherType) (string, error)
	NumberExists(ctx context.Context, number string) (bool, error)
	InsertVoucher(ctx context.Context, v Voucher) error
	InsertEntries(ctx context.Context, voucherID uuid.UUID, entries []Entry) ([]Entry, error)
	InsertItems(ctx context.Context, voucherID uuid.UUID, items []Item) error
	GetVoucherForUpdate(ctx context.Context, id uuid.UUID) (Voucher, error)
	MarkRegularized(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
	Inventory() inventory.TxRepository
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// IdempotencyPort guards against replayed posting requests.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// Observer receives posting outcomes, typically for metrics.
type Observer interface {
	VoucherPosted(voucherType string)
	PostingFailed(voucherType, kind string)
}

const idempotencyModule = "vouchers"

// Service posts vouchers atomically.
type Service struct {
	repo        RepositoryPort
	engine      *Engine
	processor   *inventory.Processor
	audit       AuditPort
	idempotency IdempotencyPort
	observer    Observer
	logger      *slog.Logger
	now         func() time.Time
}

// NewService builds Service. audit may be nil.
func NewService(repo RepositoryPort, engine *Engine, processor *inventory.Processor, audit AuditPort, logger *slog.Logger) *Service {
	if processor == nil {
		processor = inventory.NewProcessor(nil, true)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, engine: engine, processor: processor, audit: audit, logger: logger, now: time.Now}
}

// WithIdempotency enables Idempotency-Key handling.
func (s *Service) WithIdempotency(store IdempotencyPort) {
	s.idempotency = store
}

// WithObserver registers a posting observer.
func (s *Service) WithObserver(observer Observer) {
	s.observer = observer
}

// WithNow overrides the clock.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Post generates and persists a voucher with its entries, allocations,
// items and stock effects in one transaction.
func (s *Service) Post(ctx context.Context, req PostingRequest, idempotencyKey string) (Voucher, error) {
	v, err := s.post(ctx, req, idempotencyKey)
	if err != nil {
		if s.observer != nil {
			s.observer.PostingFailed(string(req.Type), errorKind(err))
		}
		return Voucher{}, err
	}
	if s.observer != nil {
		s.observer.VoucherPosted(string(v.Type))
	}
	s.record(ctx, shared.AuditLog{
		ActorID:  v.CreatedBy,
		Action:   "voucher.create",
		Entity:   "voucher",
		EntityID: v.ID.String(),
		NewValue: map[string]any{
			"number":        v.Number,
			"type":          string(v.Type),
			"total_minor":   int64(v.TotalDebit),
			"currency":      v.Currency,
			"is_posted":     v.IsPosted,
			"is_post_dated": v.IsPostDated,
		},
		At: v.CreatedAt,
	})
	return v, nil
}

func (s *Service) post(ctx context.Context, req PostingRequest, key string) (Voucher, error) {
	draft, err := s.engine.Generate(ctx, req)
	if err != nil {
		return Voucher{}, err
	}
	insertedKey := false
	if key != "" && s.idempotency != nil {
		if err := s.idempotency.CheckAndInsert(ctx, key, idempotencyModule); err != nil {
			return Voucher{}, err
		}
		insertedKey = true
	}

	v := draft.Voucher
	v.CreatedAt = s.now().UTC()
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if v.Number == "" {
			number, err := allocateNumber(ctx, tx, v.Type)
			if err != nil {
				return err
			}
			v.Number = number
		} else {
			exists, err := tx.NumberExists(ctx, v.Number)
			if err != nil {
				return err
			}
			if exists {
				return fmt.Errorf("%w: %s", ErrDuplicateNumber, v.Number)
			}
		}
		if err := tx.InsertVoucher(ctx, v); err != nil {
			return err
		}
		entries, err := tx.InsertEntries(ctx, v.ID, v.Entries)
		if err != nil {
			return err
		}
		v.Entries = entries
		if err := tx.InsertItems(ctx, v.ID, v.Items); err != nil {
			return err
		}
		if draft.StockEffects == nil {
			return nil
		}
		effect := *draft.StockEffects
		effect.Number = v.Number
		movements, err := inventory.DeriveMovements(effect)
		if err != nil {
			return err
		}
		_, err = s.processor.Apply(ctx, tx.Inventory(), movements)
		return err
	})
	if err != nil {
		if insertedKey {
			if derr := s.idempotency.Delete(ctx, key); derr != nil {
				s.logger.Warn("release idempotency key", slog.String("key", key), slog.Any("error", derr))
			}
		}
		return Voucher{}, err
	}
	return v, nil
}

// maxNumberAttempts bounds how many counter values allocateNumber skips.
const maxNumberAttempts = 100

// allocateNumber draws counter values until one is not already taken by a
// manually numbered voucher.
func allocateNumber(ctx context.Context, tx TxRepository, t VoucherType) (string, error) {
	for i := 0; i < maxNumberAttempts; i++ {
		number, err := tx.NextNumber(ctx, t)
		if err != nil {
			return "", err
		}
		exists, err := tx.NumberExists(ctx, number)
		if err != nil {
			return "", err
		}
		if !exists {
			return number, nil
		}
	}
	return "", fmt.Errorf("%w: no free %s number after %d attempts", ErrDuplicateNumber, t.Prefix(), maxNumberAttempts)
}

// Get loads a voucher with its entries and items.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (Voucher, error) {
	return s.repo.GetVoucher(ctx, id)
}

func (s *Service) record(ctx context.Context, log shared.AuditLog) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, log); err != nil {
		s.logger.Warn("audit emission failed", slog.String("action", log.Action), slog.String("entity_id", log.EntityID), slog.Any("error", err))
	}
}

func errorKind(err error) string {
	switch {
	case errors.Is(err, shared.ErrValidation), errors.Is(err, shared.ErrUnauthenticated):
		return "validation"
	case errors.Is(err, shared.ErrConflict):
		return "conflict"
	case errors.Is(err, shared.ErrConfiguration):
		return "configuration"
	case errors.Is(err, shared.ErrNotFound):
		return "not_found"
	default:
		return "internal"
	}
}
