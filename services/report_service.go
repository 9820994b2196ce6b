package services

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"time"

	apperrors "github.com/NoaSkape/firefly-estimator-sub005/common/errors"
	"github.com/NoaSkape/firefly-estimator-sub005/models"
	"github.com/NoaSkape/firefly-estimator-sub005/repository"
	"go.uber.org/zap"
)

const reportPageSize = 500

var orderReportHeader = []string{
	"order_number", "created_at", "customer", "email", "model",
	"total", "paid", "status", "production_status",
}

// ReportService renders admin exports.
type ReportService interface {
	// OrdersCSV writes every order created in [From, To) as CSV. A zero bound
	// is open.
	OrdersCSV(ctx context.Context, w io.Writer, dr models.DateRange) *apperrors.Error
}

type reportServiceImpl struct {
	orders repository.OrderRepository
	loc    *time.Location
	logger *zap.Logger
}

// NewReportService creates a ReportService that prints dates in loc.
func NewReportService(orders repository.OrderRepository, loc *time.Location, logger *zap.Logger) ReportService {
	if loc == nil {
		loc = time.UTC
	}
	return &reportServiceImpl{orders: orders, loc: loc, logger: logger}
}

func (s *reportServiceImpl) OrdersCSV(ctx context.Context, w io.Writer, dr models.DateRange) *apperrors.Error {
	if !dr.From.IsZero() && !dr.To.IsZero() && !dr.From.Before(dr.To) {
		return apperrors.BadRequest("from must be before to")
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(orderReportHeader); err != nil {
		return apperrors.Internal("Failed to write report", err)
	}

	filter := models.OrderFilter{From: dr.From, To: dr.To}
	written := 0
	for page := 1; ; page++ {
		list, total, err := s.orders.List(ctx, filter, page, reportPageSize)
		if err != nil {
			s.logger.Error("Failed to load orders for report", zap.Int("page", page), zap.Error(err))
			return apperrors.Internal("Failed to load orders", err)
		}
		for _, o := range list {
			if err := cw.Write(s.row(o)); err != nil {
				return apperrors.Internal("Failed to write report", err)
			}
		}
		written += len(list)
		if len(list) < reportPageSize || int64(written) >= total {
			break
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		s.logger.Error("Failed to flush report", zap.Error(err))
		return apperrors.Internal("Failed to write report", err)
	}
	s.logger.Info("Orders report generated", zap.Int("rows", written))
	return nil
}

func (s *reportServiceImpl) row(o models.Order) []string {
	return []string{
		o.OrderNumber,
		o.CreatedAt.In(s.loc).Format("2006-01-02 15:04"),
		o.Customer.Name,
		o.Customer.Email,
		o.ModelName,
		dollars(o.Pricing.Total),
		dollars(o.AmountPaid()),
		string(o.Status),
		string(o.ProductionStatus),
	}
}

func dollars(cents int64) string {
	sign := ""
	if cents < 0 {
		sign, cents = "-", -cents
	}
	return fmt.Sprintf("%s%d.%02d", sign, cents/100, cents%100)
}
