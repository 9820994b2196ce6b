// Package analytics holds the predictive analytics engine: monthly revenue
// series, seasonality, trend forecasting, customer lifetime value and RFM
// segmentation. Everything here is a pure function over order history.
package analytics

import (
	"errors"
	"time"

	"github.com/NoaSkape/firefly-estimator-sub005/models"
)

var (
	// ErrInsufficientData means the input is too short for the requested model.
	ErrInsufficientData = errors.New("insufficient data")
	ErrInvalidHorizon   = errors.New("horizon must be between 1 and 24 months")
)

const (
	MinForecastPoints    = 3
	MinSeasonalityPoints = 12
	MaxHorizon           = 24
)

// MonthPoint is one calendar month of order revenue, in cents.
type MonthPoint struct {
	Month   string    `json:"month"`
	Start   time.Time `json:"start"`
	Revenue int64     `json:"revenue"`
	Orders  int       `json:"orders"`
}

// MonthlyRevenue buckets orders by calendar month in loc. The result covers
// every month from the month of from through the month of to, zero-filled.
// Cancelled orders are skipped.
func MonthlyRevenue(orders []models.Order, loc *time.Location, from, to time.Time) []MonthPoint {
	if loc == nil {
		loc = time.UTC
	}
	start := monthStart(from.In(loc))
	end := monthStart(to.In(loc))
	if end.Before(start) {
		return []MonthPoint{}
	}

	var series []MonthPoint
	index := make(map[string]int)
	for m := start; !m.After(end); m = m.AddDate(0, 1, 0) {
		key := m.Format("2006-01")
		index[key] = len(series)
		series = append(series, MonthPoint{Month: key, Start: m})
	}

	for _, o := range orders {
		if o.Status == models.OrderStatusCancelled {
			continue
		}
		i, ok := index[o.CreatedAt.In(loc).Format("2006-01")]
		if !ok {
			continue
		}
		series[i].Revenue += o.Pricing.Total
		series[i].Orders++
	}
	return series
}

func monthStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
}

func revenues(series []MonthPoint) []float64 {
	out := make([]float64, len(series))
	for i, p := range series {
		out[i] = float64(p.Revenue)
	}
	return out
}
