package vouchers

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/voucher-ledger/internal/shared"
)

var (
	// ErrNotPostDated indicates a regularize request on a regular voucher.
	ErrNotPostDated = shared.Validation("vouchers: voucher is not post-dated")
	// ErrAlreadyRegularized indicates the cheque was regularized before.
	ErrAlreadyRegularized = shared.Conflict("vouchers: post-dated cheque already regularized")
)

func validatePDC(req PostingRequest) error {
	if !req.IsPostDated {
		if req.PDCDate != nil {
			return shared.Validation("vouchers: pdc date given for a voucher that is not post-dated")
		}
		return nil
	}
	if req.PDCDate == nil || req.PDCDate.IsZero() {
		return shared.Validation("vouchers: post-dated voucher requires a pdc date")
	}
	if !dateOnly(*req.PDCDate).After(dateOnly(req.Date)) {
		return shared.Validation("vouchers: pdc date must be after the voucher date")
	}
	return nil
}

// Regularize marks a pending post-dated cheque as cleared. Ledger entries
// are left untouched.
func (s *Service) Regularize(ctx context.Context, id uuid.UUID, actorID int64) (Voucher, error) {
	if actorID <= 0 {
		return Voucher{}, shared.ErrUnauthenticated
	}
	var v Voucher
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		v, err = tx.GetVoucherForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !v.IsPostDated {
			return ErrNotPostDated
		}
		if v.PDCStatus == PDCRegularized {
			return ErrAlreadyRegularized
		}
		now := s.now().UTC()
		ok, err := tx.MarkRegularized(ctx, id, now)
		if err != nil {
			return err
		}
		if !ok {
			return ErrAlreadyRegularized
		}
		v.PDCStatus = PDCRegularized
		v.RegularizedAt = &now
		return nil
	})
	if err != nil {
		return Voucher{}, err
	}
	s.record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   "voucher.regularize",
		Entity:   "voucher",
		EntityID: v.ID.String(),
		OldValue: map[string]any{"pdc_status": string(PDCPending)},
		NewValue: map[string]any{"pdc_status": string(PDCRegularized)},
	})
	return v, nil
}

// DuePDCs lists pending post-dated vouchers whose cheque date has arrived.
func (s *Service) DuePDCs(ctx context.Context, asOf time.Time, limit int) ([]Voucher, error) {
	if asOf.IsZero() {
		asOf = s.now()
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.repo.ListDuePDCs(ctx, DueFilter{AsOf: dateOnly(asOf), Limit: limit})
}
