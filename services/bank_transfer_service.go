package services

import (
	"context"
	"errors"
	"time"

	"github.com/NoaSkape/firefly-estimator-sub005/common/auth"
	apperrors "github.com/NoaSkape/firefly-estimator-sub005/common/errors"
	"github.com/NoaSkape/firefly-estimator-sub005/models"
	"github.com/NoaSkape/firefly-estimator-sub005/repository"
	"go.uber.org/zap"
)

func (s *paymentServiceImpl) ListBankTransfers(ctx context.Context, status models.BankTransferStatus, page, limit int) ([]models.BankTransferIntent, int64, *apperrors.Error) {
	switch status {
	case "", models.BankTransferPending, models.BankTransferConfirmed, models.BankTransferRejected:
	default:
		return nil, 0, apperrors.BadRequest("Unknown bank transfer status")
	}
	list, total, err := s.transfers.List(ctx, status, page, limit)
	if err != nil {
		s.logger.Error("Failed to list bank transfers", zap.Error(err))
		return nil, 0, apperrors.Internal("Failed to list bank transfers", err)
	}
	return list, total, nil
}

// ConfirmBankTransfer records that the wire arrived and pays its milestone.
func (s *paymentServiceImpl) ConfirmBankTransfer(ctx context.Context, who auth.Identity, id string) (*models.BankTransferIntent, *apperrors.Error) {
	now := time.Now().UTC()
	bt, err := s.transfers.Resolve(ctx, id, models.BankTransferConfirmed, map[string]interface{}{
		"confirmed_by": who.UserID,
		"confirmed_at": now,
	})
	if err != nil {
		return nil, s.resolveError(err)
	}

	o, err := s.orders.FindByID(ctx, bt.OrderID)
	if err != nil {
		return nil, repoError(s.logger, err, "Order not found", "Failed to load order")
	}
	if _, err := s.settle(ctx, o, bt.Milestone, who.UserID, "bank transfer "+bt.ReferenceCode); err != nil {
		if !errors.Is(err, repository.ErrConflict) {
			return nil, repoError(s.logger, err, "Order not found", "Failed to mark milestone paid")
		}
		// Already paid another way; the wire needs refunding by hand.
		s.logger.Warn("Bank transfer confirmed for a milestone that is already paid",
			zap.String("bank_transfer_id", bt.ID),
			zap.String("order_id", bt.OrderID),
			zap.String("milestone", string(bt.Milestone)),
		)
	}

	s.events.Publish(ctx, Event{
		Type:      EventBankTransferConfirmed,
		OrderID:   bt.OrderID,
		UserID:    bt.UserID,
		Milestone: string(bt.Milestone),
		Amount:    bt.Amount,
		Status:    string(bt.Status),
	})
	s.logger.Info("Bank transfer confirmed",
		zap.String("bank_transfer_id", bt.ID),
		zap.String("reference", bt.ReferenceCode),
		zap.String("by", who.UserID),
	)
	return bt, nil
}

// RejectBankTransfer closes a pending transfer and fails its milestone so
// the buyer can pay again.
func (s *paymentServiceImpl) RejectBankTransfer(ctx context.Context, who auth.Identity, id string, req *models.RejectBankTransferRequest) (*models.BankTransferIntent, *apperrors.Error) {
	reason := sanitize(req.Reason)
	if reason == "" {
		return nil, apperrors.BadRequest("A rejection reason is required")
	}
	bt, err := s.transfers.Resolve(ctx, id, models.BankTransferRejected, map[string]interface{}{
		"rejected_reason": reason,
	})
	if err != nil {
		return nil, s.resolveError(err)
	}

	o, err := s.orders.FindByID(ctx, bt.OrderID)
	if err != nil {
		return nil, repoError(s.logger, err, "Order not found", "Failed to load order")
	}
	if m, _ := o.Milestone(bt.Milestone); m != nil && m.BankTransferID == bt.ID {
		_, err = s.orders.UpdateMilestone(ctx, o.ID, bt.Milestone,
			[]models.MilestoneStatus{models.MilestonePending, models.MilestoneProcessing},
			map[string]interface{}{"status": models.MilestoneFailed, "failure_reason": reason},
			&models.TimelineEntry{At: time.Now().UTC(), Actor: who.UserID, Event: "bank_transfer_rejected", Detail: reason},
		)
		if err != nil && !errors.Is(err, repository.ErrConflict) {
			return nil, repoError(s.logger, err, "Order not found", "Failed to update milestone")
		}
	}

	s.logger.Info("Bank transfer rejected",
		zap.String("bank_transfer_id", bt.ID),
		zap.String("reference", bt.ReferenceCode),
		zap.String("by", who.UserID),
	)
	return bt, nil
}

func (s *paymentServiceImpl) resolveError(err error) *apperrors.Error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return apperrors.NotFound("Bank transfer not found")
	case errors.Is(err, repository.ErrConflict):
		return apperrors.Conflict("Only pending bank transfers can be confirmed or rejected")
	default:
		s.logger.Error("Failed to resolve bank transfer", zap.Error(err))
		return apperrors.Internal("Failed to resolve bank transfer", err)
	}
}
