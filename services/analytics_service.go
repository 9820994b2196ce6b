package services

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/NoaSkape/firefly-estimator-sub005/analytics"
	apperrors "github.com/NoaSkape/firefly-estimator-sub005/common/errors"
	"github.com/NoaSkape/firefly-estimator-sub005/models"
	"github.com/NoaSkape/firefly-estimator-sub005/repository"
	"go.uber.org/zap"
)

const (
	topListLimit     = 10
	maxHistoryMonths = 120
)

// FunnelStages are the tracked events a session passes through on the way
// to an order.
var FunnelStages = []models.TrackEventType{
	models.EventPageView,
	models.EventModelView,
	models.EventConfigureStart,
	models.EventCheckoutStep,
	models.EventOrderSubmitted,
}

// AnalyticsConfig holds reporting defaults.
type AnalyticsConfig struct {
	Timezone      string
	LifespanYears float64
}

// SeasonalityReport pairs the monthly indices with the history they came from.
type SeasonalityReport struct {
	Indices  []analytics.SeasonalIndex `json:"indices"`
	Seasonal bool                      `json:"seasonal"`
	History  []analytics.MonthPoint    `json:"history"`
}

// OrderValueReport describes order totals in a range.
type OrderValueReport struct {
	Range   models.DateRange  `json:"range"`
	Summary analytics.Summary `json:"summary"`
}

// AnalyticsService defines the admin reporting operations.
type AnalyticsService interface {
	Overview(ctx context.Context, dr models.DateRange, tz string) (*models.Overview, *apperrors.Error)
	Funnel(ctx context.Context, dr models.DateRange) (*models.Funnel, *apperrors.Error)
	Forecast(ctx context.Context, months, horizon int) (*analytics.ForecastResult, *apperrors.Error)
	Seasonality(ctx context.Context, months int) (*SeasonalityReport, *apperrors.Error)
	CustomerValues(ctx context.Context, top int) ([]analytics.SegmentedCustomer, *apperrors.Error)
	OrderValues(ctx context.Context, dr models.DateRange) (*OrderValueReport, *apperrors.Error)
}

type analyticsServiceImpl struct {
	orders   repository.OrderRepository
	tracking repository.TrackingRepository
	cfg      AnalyticsConfig
	logger   *zap.Logger
	now      func() time.Time
}

// NewAnalyticsService creates an AnalyticsService.
func NewAnalyticsService(orders repository.OrderRepository, tracking repository.TrackingRepository, cfg AnalyticsConfig, logger *zap.Logger) AnalyticsService {
	if cfg.Timezone == "" {
		cfg.Timezone = "UTC"
	}
	if cfg.LifespanYears <= 0 {
		cfg.LifespanYears = 3
	}
	return &analyticsServiceImpl{orders: orders, tracking: tracking, cfg: cfg, logger: logger, now: time.Now}
}

// Overview builds the dashboard headline numbers for [From, To), with the
// daily series bucketed in tz.
func (s *analyticsServiceImpl) Overview(ctx context.Context, dr models.DateRange, tz string) (*models.Overview, *apperrors.Error) {
	if appErr := checkRange(dr); appErr != nil {
		return nil, appErr
	}
	if tz == "" {
		tz = s.cfg.Timezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, apperrors.BadRequest("Unknown time zone " + tz)
	}

	out := &models.Overview{Range: dr, Timezone: tz}
	sessions, err := s.tracking.SessionStats(ctx, dr)
	if err != nil {
		return nil, s.internal("Failed to load session stats", err)
	}
	out.Sessions = sessions.Sessions
	out.AvgSessionDuration = round4(sessions.AvgDurationSecs)
	out.BounceRate = ratio(sessions.Bounces, sessions.Sessions)

	if out.Visitors, err = s.tracking.CountVisitors(ctx, dr); err != nil {
		return nil, s.internal("Failed to count visitors", err)
	}
	if out.PageViews, err = s.tracking.CountPageViews(ctx, dr); err != nil {
		return nil, s.internal("Failed to count page views", err)
	}
	if out.TopPages, err = s.tracking.TopPaths(ctx, dr, topListLimit); err != nil {
		return nil, s.internal("Failed to load top pages", err)
	}
	if out.TopModels, err = s.tracking.TopModels(ctx, dr, topListLimit); err != nil {
		return nil, s.internal("Failed to load top models", err)
	}
	if out.TrafficSources, err = s.tracking.TrafficSources(ctx, dr, topListLimit); err != nil {
		return nil, s.internal("Failed to load traffic sources", err)
	}
	traffic, err := s.tracking.DailyTraffic(ctx, dr, tz)
	if err != nil {
		return nil, s.internal("Failed to load daily traffic", err)
	}
	orders, err := s.orders.FindCreatedBetween(ctx, dr.From, dr.To)
	if err != nil {
		return nil, s.internal("Failed to load orders", err)
	}

	byDay := make(map[string]*models.DailyPoint)
	for _, o := range orders {
		out.Orders++
		out.Revenue += o.Pricing.Total
		key := o.CreatedAt.In(loc).Format(time.DateOnly)
		if byDay[key] == nil {
			byDay[key] = &models.DailyPoint{}
		}
		byDay[key].Orders++
		byDay[key].Revenue += o.Pricing.Total
	}
	out.ConversionRate = ratio(out.Orders, out.Sessions)

	out.Daily = []models.DailyPoint{}
	first := dr.From.In(loc)
	last := dr.To.Add(-time.Nanosecond).In(loc)
	for day := time.Date(first.Year(), first.Month(), first.Day(), 0, 0, 0, 0, loc); !day.After(last); day = day.AddDate(0, 0, 1) {
		key := day.Format(time.DateOnly)
		p := models.DailyPoint{Date: key}
		if d := byDay[key]; d != nil {
			p.Orders, p.Revenue = d.Orders, d.Revenue
		}
		if t, ok := traffic[key]; ok {
			p.Sessions, p.PageViews = t[0], t[1]
		}
		out.Daily = append(out.Daily, p)
	}
	return out, nil
}

// Funnel counts sessions that reached each stage.
func (s *analyticsServiceImpl) Funnel(ctx context.Context, dr models.DateRange) (*models.Funnel, *apperrors.Error) {
	if appErr := checkRange(dr); appErr != nil {
		return nil, appErr
	}
	out := &models.Funnel{Range: dr, Stages: make([]models.FunnelStage, 0, len(FunnelStages))}
	var first, prev int64
	for i, stage := range FunnelStages {
		n, err := s.tracking.SessionsWithEvent(ctx, dr, string(stage))
		if err != nil {
			return nil, s.internal("Failed to load funnel", err)
		}
		if i == 0 {
			first, prev = n, n
		}
		out.Stages = append(out.Stages, models.FunnelStage{
			Stage:     string(stage),
			Sessions:  n,
			FromPrev:  ratio(n, prev),
			FromStart: ratio(n, first),
		})
		prev = n
	}
	return out, nil
}

func (s *analyticsServiceImpl) Forecast(ctx context.Context, months, horizon int) (*analytics.ForecastResult, *apperrors.Error) {
	if horizon < 1 || horizon > analytics.MaxHorizon {
		return nil, apperrors.BadRequest(analytics.ErrInvalidHorizon.Error())
	}
	series, appErr := s.history(ctx, months)
	if appErr != nil {
		return nil, appErr
	}
	res, err := analytics.Forecast(series, horizon)
	switch {
	case errors.Is(err, analytics.ErrInsufficientData):
		return nil, apperrors.Unprocessable("At least 3 months of order history are needed to forecast")
	case errors.Is(err, analytics.ErrInvalidHorizon):
		return nil, apperrors.BadRequest(err.Error())
	case err != nil:
		return nil, s.internal("Failed to compute forecast", err)
	}
	return res, nil
}

func (s *analyticsServiceImpl) Seasonality(ctx context.Context, months int) (*SeasonalityReport, *apperrors.Error) {
	series, appErr := s.history(ctx, months)
	if appErr != nil {
		return nil, appErr
	}
	return &SeasonalityReport{
		Indices:  analytics.Seasonality(series),
		Seasonal: len(series) >= analytics.MinSeasonalityPoints,
		History:  series,
	}, nil
}

// CustomerValues scores every customer with at least one live order and
// returns the top by predicted CLV. top <= 0 returns everyone.
func (s *analyticsServiceImpl) CustomerValues(ctx context.Context, top int) ([]analytics.SegmentedCustomer, *apperrors.Error) {
	segmented, appErr := s.segmented(ctx)
	if appErr != nil {
		return nil, appErr
	}
	if top > 0 && len(segmented) > top {
		segmented = segmented[:top]
	}
	return segmented, nil
}

func (s *analyticsServiceImpl) segmented(ctx context.Context) ([]analytics.SegmentedCustomer, *apperrors.Error) {
	orders, err := s.orders.FindCreatedBetween(ctx, time.Time{}, time.Time{})
	if err != nil {
		return nil, s.internal("Failed to load orders", err)
	}
	values := analytics.CustomerValues(orders, s.now().UTC(), s.cfg.LifespanYears)
	return analytics.SegmentCustomers(values), nil
}

func (s *analyticsServiceImpl) OrderValues(ctx context.Context, dr models.DateRange) (*OrderValueReport, *apperrors.Error) {
	if !dr.From.IsZero() && !dr.To.IsZero() && !dr.From.Before(dr.To) {
		return nil, apperrors.BadRequest("from must be before to")
	}
	orders, err := s.orders.FindCreatedBetween(ctx, dr.From, dr.To)
	if err != nil {
		return nil, s.internal("Failed to load orders", err)
	}
	return &OrderValueReport{Range: dr, Summary: analytics.DescribeOrderValues(analytics.OrderValues(orders))}, nil
}

// history returns the last months complete calendar months of revenue.
func (s *analyticsServiceImpl) history(ctx context.Context, months int) ([]analytics.MonthPoint, *apperrors.Error) {
	if months < 1 || months > maxHistoryMonths {
		return nil, apperrors.BadRequest("months must be between 1 and 120")
	}
	loc, err := time.LoadLocation(s.cfg.Timezone)
	if err != nil {
		loc = time.UTC
	}
	now := s.now().In(loc)
	end := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, loc)
	start := end.AddDate(0, -months, 0)

	orders, err := s.orders.FindCreatedBetween(ctx, start, end)
	if err != nil {
		return nil, s.internal("Failed to load orders", err)
	}
	return analytics.MonthlyRevenue(orders, loc, start, end.Add(-time.Second)), nil
}

func (s *analyticsServiceImpl) internal(msg string, err error) *apperrors.Error {
	s.logger.Error(msg, zap.Error(err))
	return apperrors.Internal(msg, err)
}

func checkRange(dr models.DateRange) *apperrors.Error {
	if dr.From.IsZero() || dr.To.IsZero() {
		return apperrors.BadRequest("from and to are required")
	}
	if !dr.From.Before(dr.To) {
		return apperrors.BadRequest("from must be before to")
	}
	if dr.To.Sub(dr.From) > 366*24*time.Hour {
		return apperrors.BadRequest("Date range cannot exceed one year")
	}
	return nil
}

func ratio(n, d int64) float64 {
	if d == 0 {
		return 0
	}
	return round4(float64(n) / float64(d))
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
