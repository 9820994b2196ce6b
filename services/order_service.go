package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/NoaSkape/firefly-estimator-sub005/common/auth"
	apperrors "github.com/NoaSkape/firefly-estimator-sub005/common/errors"
	"github.com/NoaSkape/firefly-estimator-sub005/models"
	"github.com/NoaSkape/firefly-estimator-sub005/repository"
	"go.uber.org/zap"
)

// OrderService defines buyer and back-office order operations.
type OrderService interface {
	ListMyOrders(ctx context.Context, who auth.Identity) ([]models.Order, *apperrors.Error)
	GetOrder(ctx context.Context, who auth.Identity, id string) (*models.Order, *apperrors.Error)
	ListOrders(ctx context.Context, filter models.OrderFilter, page, limit int) ([]models.Order, int64, *apperrors.Error)
	UpdateProduction(ctx context.Context, who auth.Identity, id string, req *models.UpdateProductionRequest) (*models.Order, *apperrors.Error)
	AddNote(ctx context.Context, who auth.Identity, id string, req *models.AddNoteRequest) (*models.Order, *apperrors.Error)
	CancelOrder(ctx context.Context, who auth.Identity, id string) (*models.Order, *apperrors.Error)
}

type orderServiceImpl struct {
	orders repository.OrderRepository
	events EventPublisher
	logger *zap.Logger
}

// NewOrderService creates an OrderService.
func NewOrderService(orders repository.OrderRepository, events EventPublisher, logger *zap.Logger) OrderService {
	if events == nil {
		events = NoopEventPublisher{}
	}
	return &orderServiceImpl{orders: orders, events: events, logger: logger}
}

func (s *orderServiceImpl) ListMyOrders(ctx context.Context, who auth.Identity) ([]models.Order, *apperrors.Error) {
	list, err := s.orders.ListByUser(ctx, who.UserID)
	if err != nil {
		s.logger.Error("Failed to list orders", zap.String("user_id", who.UserID), zap.Error(err))
		return nil, apperrors.Internal("Failed to list orders", err)
	}
	return list, nil
}

func (s *orderServiceImpl) GetOrder(ctx context.Context, who auth.Identity, id string) (*models.Order, *apperrors.Error) {
	return loadOrder(ctx, s.orders, s.logger, who, id)
}

func (s *orderServiceImpl) ListOrders(ctx context.Context, filter models.OrderFilter, page, limit int) ([]models.Order, int64, *apperrors.Error) {
	if filter.ProductionStatus != "" && !filter.ProductionStatus.Valid() {
		return nil, 0, apperrors.BadRequest("Unknown production status")
	}
	list, total, err := s.orders.List(ctx, filter, page, limit)
	if err != nil {
		s.logger.Error("Failed to list orders", zap.Error(err))
		return nil, 0, apperrors.Internal("Failed to list orders", err)
	}
	return list, total, nil
}

// UpdateProduction moves an order through the build pipeline. Delivery
// requires the order to be paid in full.
func (s *orderServiceImpl) UpdateProduction(ctx context.Context, who auth.Identity, id string, req *models.UpdateProductionRequest) (*models.Order, *apperrors.Error) {
	if !req.Status.Valid() {
		return nil, apperrors.BadRequest("Unknown production status")
	}
	o, err := s.orders.FindByID(ctx, id)
	if err != nil {
		return nil, repoError(s.logger, err, "Order not found", "Failed to load order")
	}
	if o.Status == models.OrderStatusCancelled {
		return nil, apperrors.Conflict("Cancelled orders cannot change production status")
	}
	if req.Status == models.ProductionDelivered && o.Status != models.OrderStatusPaidInFull {
		return nil, apperrors.Conflict("Orders must be paid in full before delivery")
	}
	if req.Status == o.ProductionStatus {
		return o, nil
	}

	detail := fmt.Sprintf("%s -> %s", o.ProductionStatus, req.Status)
	if note := sanitize(req.Note); note != "" {
		detail += ": " + note
	}
	updated, err := s.orders.Update(ctx, id,
		map[string]interface{}{"production_status": req.Status},
		&models.TimelineEntry{At: time.Now().UTC(), Actor: who.UserID, Event: EventProductionUpdated, Detail: detail},
	)
	if err != nil {
		return nil, repoError(s.logger, err, "Order not found", "Failed to update order")
	}

	s.events.Publish(ctx, Event{
		Type:    EventProductionUpdated,
		OrderID: updated.ID,
		UserID:  updated.UserID,
		Status:  string(updated.ProductionStatus),
	})
	s.logger.Info("Production status updated",
		zap.String("order_id", id),
		zap.String("from", string(o.ProductionStatus)),
		zap.String("to", string(req.Status)),
	)
	return updated, nil
}

func (s *orderServiceImpl) AddNote(ctx context.Context, who auth.Identity, id string, req *models.AddNoteRequest) (*models.Order, *apperrors.Error) {
	body := sanitize(req.Body)
	if body == "" {
		return nil, apperrors.BadRequest("Note body is required")
	}
	now := time.Now().UTC()
	o, err := s.orders.AddNote(ctx, id,
		models.OrderNote{At: now, Author: who.UserID, Body: body},
		&models.TimelineEntry{At: now, Actor: who.UserID, Event: "note_added"},
	)
	if err != nil {
		return nil, repoError(s.logger, err, "Order not found", "Failed to add note")
	}
	return o, nil
}

// CancelOrder cancels an order on which nothing has been paid or is in
// flight.
func (s *orderServiceImpl) CancelOrder(ctx context.Context, who auth.Identity, id string) (*models.Order, *apperrors.Error) {
	o, err := s.orders.FindByID(ctx, id)
	if err != nil {
		return nil, repoError(s.logger, err, "Order not found", "Failed to load order")
	}
	if o.Status == models.OrderStatusCancelled {
		return o, nil
	}
	for _, m := range o.Milestones {
		switch m.Status {
		case models.MilestonePaid:
			return nil, apperrors.Conflict("Orders with payments cannot be cancelled")
		case models.MilestoneProcessing:
			return nil, apperrors.Conflict("A payment is in progress for this order")
		}
	}

	updated, err := s.orders.Cancel(ctx, id,
		&models.TimelineEntry{At: time.Now().UTC(), Actor: who.UserID, Event: "order_cancelled"},
	)
	if errors.Is(err, repository.ErrConflict) {
		return nil, apperrors.Conflict("A payment was recorded for this order")
	}
	if err != nil {
		return nil, repoError(s.logger, err, "Order not found", "Failed to cancel order")
	}
	s.logger.Info("Order cancelled", zap.String("order_id", id), zap.String("by", who.UserID))
	return updated, nil
}

// loadOrder fetches an order visible to who.
func loadOrder(ctx context.Context, orders repository.OrderRepository, logger *zap.Logger, who auth.Identity, id string) (*models.Order, *apperrors.Error) {
	o, err := orders.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NotFound("Order not found")
		}
		logger.Error("Failed to load order", zap.String("order_id", id), zap.Error(err))
		return nil, apperrors.Internal("Failed to load order", err)
	}
	if o.UserID != who.UserID && !who.IsAdmin() {
		return nil, apperrors.Forbidden("You do not have access to this order")
	}
	return o, nil
}
