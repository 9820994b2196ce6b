package services

import (
	"context"
	"time"

	"github.com/NoaSkape/firefly-estimator-sub005/analytics"
	apperrors "github.com/NoaSkape/firefly-estimator-sub005/common/errors"
	"github.com/NoaSkape/firefly-estimator-sub005/models"
	"github.com/NoaSkape/firefly-estimator-sub005/repository"
	"go.uber.org/zap"
)

// CustomerService defines the admin customer-intelligence operations.
type CustomerService interface {
	ListCustomers(ctx context.Context, page, limit int) ([]models.CustomerInsight, int64, *apperrors.Error)
	GetCustomer(ctx context.Context, userID string) (*models.CustomerDetail, *apperrors.Error)
}

type customerServiceImpl struct {
	customers     repository.CustomerRepository
	orders        repository.OrderRepository
	lifespanYears float64
	logger        *zap.Logger
	now           func() time.Time
}

// NewCustomerService creates a CustomerService scoring CLV over
// lifespanYears.
func NewCustomerService(customers repository.CustomerRepository, orders repository.OrderRepository, lifespanYears float64, logger *zap.Logger) CustomerService {
	if lifespanYears <= 0 {
		lifespanYears = 3
	}
	return &customerServiceImpl{
		customers:     customers,
		orders:        orders,
		lifespanYears: lifespanYears,
		logger:        logger,
		now:           time.Now,
	}
}

// ListCustomers returns a page of customers, each scored against the whole
// customer base.
func (s *customerServiceImpl) ListCustomers(ctx context.Context, page, limit int) ([]models.CustomerInsight, int64, *apperrors.Error) {
	list, total, err := s.customers.List(ctx, page, limit)
	if err != nil {
		s.logger.Error("Failed to list customers", zap.Error(err))
		return nil, 0, apperrors.Internal("Failed to list customers", err)
	}
	scores, appErr := s.scores(ctx)
	if appErr != nil {
		return nil, 0, appErr
	}

	out := make([]models.CustomerInsight, 0, len(list))
	for _, c := range list {
		out = append(out, insight(c, scores[c.UserID]))
	}
	return out, total, nil
}

func (s *customerServiceImpl) GetCustomer(ctx context.Context, userID string) (*models.CustomerDetail, *apperrors.Error) {
	c, err := s.customers.FindByID(ctx, userID)
	if err != nil {
		return nil, repoError(s.logger, err, "Customer not found", "Failed to load customer")
	}
	scores, appErr := s.scores(ctx)
	if appErr != nil {
		return nil, appErr
	}
	history, err := s.orders.ListByUser(ctx, userID)
	if err != nil {
		s.logger.Error("Failed to list customer orders", zap.String("user_id", userID), zap.Error(err))
		return nil, apperrors.Internal("Failed to list customer orders", err)
	}
	return &models.CustomerDetail{CustomerInsight: insight(*c, scores[userID]), OrderHistory: history}, nil
}

func (s *customerServiceImpl) scores(ctx context.Context) (map[string]*analytics.SegmentedCustomer, *apperrors.Error) {
	orders, err := s.orders.FindCreatedBetween(ctx, time.Time{}, time.Time{})
	if err != nil {
		s.logger.Error("Failed to load orders", zap.Error(err))
		return nil, apperrors.Internal("Failed to load orders", err)
	}
	segmented := analytics.SegmentCustomers(analytics.CustomerValues(orders, s.now().UTC(), s.lifespanYears))
	out := make(map[string]*analytics.SegmentedCustomer, len(segmented))
	for i := range segmented {
		out[segmented[i].UserID] = &segmented[i]
	}
	return out, nil
}

// insight joins a customer with its score. Customers whose only orders were
// cancelled have no score and stay dormant.
func insight(c models.Customer, sc *analytics.SegmentedCustomer) models.CustomerInsight {
	out := models.CustomerInsight{Customer: c, Segment: analytics.SegmentDormant}
	if sc == nil {
		return out
	}
	out.Revenue = sc.Revenue
	out.Orders = sc.Orders
	out.AOV = sc.AOV
	out.RecencyDays = sc.RecencyDays
	out.PredictedCLV = sc.PredictedCLV
	out.Segment = sc.Segment
	out.RFMScore = sc.Score
	return out
}
