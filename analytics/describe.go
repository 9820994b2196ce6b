package analytics

import (
	"github.com/NoaSkape/firefly-estimator-sub005/models"
	"github.com/montanaflynn/stats"
)

// Summary describes a distribution of order values in cents.
type Summary struct {
	Count  int     `json:"count"`
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	P90    float64 `json:"p90"`
	StdDev float64 `json:"std_dev"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
}

// OrderValues extracts the totals of non-cancelled orders.
func OrderValues(orders []models.Order) []float64 {
	out := make([]float64, 0, len(orders))
	for _, o := range orders {
		if o.Status == models.OrderStatusCancelled {
			continue
		}
		out = append(out, float64(o.Pricing.Total))
	}
	return out
}

// DescribeOrderValues summarises values. An empty input yields a zero
// Summary. StdDev is the sample deviation and zero for a single value.
func DescribeOrderValues(values []float64) Summary {
	data := stats.Float64Data(values)
	if len(data) == 0 {
		return Summary{}
	}

	s := Summary{Count: len(data)}
	s.Mean, _ = stats.Mean(data)
	s.Median, _ = stats.Median(data)
	s.Min, _ = stats.Min(data)
	s.Max, _ = stats.Max(data)
	if p, err := stats.Percentile(data, 90); err == nil {
		s.P90 = p
	} else {
		s.P90 = s.Max
	}
	if len(data) > 1 {
		s.StdDev, _ = stats.StandardDeviationSample(data)
	}

	s.Mean = round2(s.Mean)
	s.Median = round2(s.Median)
	s.P90 = round2(s.P90)
	s.StdDev = round2(s.StdDev)
	return s
}
