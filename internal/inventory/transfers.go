package inventory

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/odyssey-erp/voucher-ledger/internal/money"
	"github.com/odyssey-erp/voucher-ledger/internal/shared"
)

// Validate checks the transfer request before any write.
func (in TransferInput) Validate() error {
	if strings.TrimSpace(in.Number) == "" {
		return shared.Validation("inventory: transfer number is required")
	}
	if in.Date.IsZero() {
		return shared.Validation("inventory: transfer date is required")
	}
	if in.FromGodownID <= 0 || in.ToGodownID <= 0 {
		return shared.Validation("inventory: source and destination godown are required")
	}
	if in.FromGodownID == in.ToGodownID {
		return ErrSameGodown
	}
	switch in.Status {
	case "", TransferPending, TransferCompleted:
	default:
		return shared.Validationf("inventory: invalid transfer status %q", in.Status)
	}
	if len(in.Items) == 0 {
		return shared.Validation("inventory: transfer requires at least one item")
	}
	for i, item := range in.Items {
		if item.ItemID <= 0 {
			return shared.Validationf("inventory: item %d has no inventory item", i+1)
		}
		if err := ValidateQuantity(item.Quantity); err != nil {
			return fmt.Errorf("item %d: %w", i+1, err)
		}
	}
	if in.ActorID <= 0 {
		return shared.ErrUnauthenticated
	}
	return nil
}

// CreateTransfer records a transfer. A COMPLETED transfer moves stock at once.
func (s *Service) CreateTransfer(ctx context.Context, in TransferInput) (Transfer, error) {
	if err := in.Validate(); err != nil {
		return Transfer{}, err
	}
	now := s.now().UTC()
	t := Transfer{
		ID:           s.newID(),
		Number:       strings.TrimSpace(in.Number),
		Date:         in.Date,
		FromGodownID: in.FromGodownID,
		ToGodownID:   in.ToGodownID,
		Status:       in.Status,
		Narration:    in.Narration,
		CreatedBy:    in.ActorID,
		CreatedAt:    now,
	}
	if t.Status == "" {
		t.Status = TransferPending
	}
	if t.Status == TransferCompleted {
		t.CompletedAt = &now
	}
	for i, item := range in.Items {
		item.LineNo = i + 1
		t.Items = append(t.Items, item)
	}

	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		exists, err := tx.TransferNumberExists(ctx, t.Number)
		if err != nil {
			return err
		}
		if exists {
			return ErrDuplicateTransferNumber
		}
		if err := tx.InsertTransfer(ctx, t); err != nil {
			return err
		}
		if t.Status != TransferCompleted {
			return nil
		}
		movements, err := s.moveStock(ctx, tx, t)
		if err != nil {
			return err
		}
		t.Movements = movements
		return nil
	})
	if err != nil {
		return Transfer{}, err
	}
	s.record(ctx, shared.AuditLog{
		ActorID:  in.ActorID,
		Action:   "stock_transfer.create",
		Entity:   "stock_transfer",
		EntityID: t.ID.String(),
		NewValue: map[string]any{"number": t.Number, "status": string(t.Status), "from_godown_id": t.FromGodownID, "to_godown_id": t.ToGodownID},
	})
	return t, nil
}

// CompleteTransfer moves a PENDING transfer to COMPLETED and emits its
// movements. Completing twice returns ErrTransferAlreadyCompleted.
func (s *Service) CompleteTransfer(ctx context.Context, id uuid.UUID, actorID int64) (Transfer, error) {
	if actorID <= 0 {
		return Transfer{}, shared.ErrUnauthenticated
	}
	var t Transfer
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		t, err = tx.GetTransfer(ctx, id)
		if err != nil {
			return err
		}
		now := s.now().UTC()
		ok, err := tx.MarkTransferCompleted(ctx, id, now)
		if err != nil {
			return err
		}
		if !ok {
			return ErrTransferAlreadyCompleted
		}
		t.Status = TransferCompleted
		t.CompletedAt = &now
		movements, err := s.moveStock(ctx, tx, t)
		if err != nil {
			return err
		}
		t.Movements = movements
		return nil
	})
	if err != nil {
		return Transfer{}, err
	}
	s.record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   "stock_transfer.complete",
		Entity:   "stock_transfer",
		EntityID: t.ID.String(),
		OldValue: map[string]any{"status": string(TransferPending)},
		NewValue: map[string]any{"status": string(TransferCompleted)},
	})
	return t, nil
}

// GetTransfer loads a transfer with its movements.
func (s *Service) GetTransfer(ctx context.Context, id uuid.UUID) (Transfer, error) {
	return s.repo.GetTransfer(ctx, id)
}

// moveStock emits one OUT from the source and one IN to the destination per
// item, valued at the item's current purchase rate.
func (s *Service) moveStock(ctx context.Context, tx TxRepository, t Transfer) ([]Movement, error) {
	transferID := t.ID
	movements := make([]Movement, 0, len(t.Items)*2)
	for _, line := range t.Items {
		item, err := tx.GetItem(ctx, line.ItemID)
		if err != nil {
			if errors.Is(err, ErrItemNotFound) {
				return nil, fmt.Errorf("%w: item %d", ErrUnknownItem, line.ItemID)
			}
			return nil, err
		}
		amount, err := money.MulQuantity(item.PurchaseRate, line.Quantity)
		if err != nil {
			return nil, err
		}
		from, to := t.FromGodownID, t.ToGodownID
		base := Movement{
			ItemID:      line.ItemID,
			Quantity:    line.Quantity,
			Rate:        item.PurchaseRate,
			Amount:      amount,
			TransferID:  &transferID,
			Date:        t.Date,
			ReferenceNo: t.Number,
			Narration:   t.Narration,
			BatchNumber: line.BatchNumber,
		}
		out := base
		out.Type = MovementOut
		out.GodownID = &from
		in := base
		in.Type = MovementIn
		in.GodownID = &to
		movements = append(movements, out, in)
	}
	return s.processor.applyTransfer(ctx, tx, movements)
}
