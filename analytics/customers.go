package analytics

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/NoaSkape/firefly-estimator-sub005/models"
	"github.com/montanaflynn/stats"
)

// RFM segments.
const (
	SegmentChampion  = "champion"
	SegmentLoyal     = "loyal"
	SegmentPromising = "promising"
	SegmentAtRisk    = "at_risk"
	SegmentDormant   = "dormant"
)

// CustomerValue is the order history of one customer reduced to the inputs
// of lifetime-value and RFM scoring. Money is in cents.
type CustomerValue struct {
	UserID           string    `json:"user_id"`
	Name             string    `json:"name"`
	Email            string    `json:"email"`
	Revenue          int64     `json:"revenue"`
	Orders           int       `json:"orders"`
	AOV              float64   `json:"average_order_value"`
	FirstOrder       time.Time `json:"first_order"`
	LastOrder        time.Time `json:"last_order"`
	RecencyDays      int       `json:"recency_days"`
	PurchasesPerYear float64   `json:"purchases_per_year"`
	PredictedCLV     float64   `json:"predicted_clv"`
}

// CustomerValues groups orders by user and predicts each customer's CLV as
// AOV × purchases per year × lifespanYears. Tenure is floored at one year and
// frequency at one purchase over the whole lifespan. The result is sorted by
// predicted CLV, highest first.
func CustomerValues(orders []models.Order, now time.Time, lifespanYears float64) []CustomerValue {
	if lifespanYears <= 0 {
		lifespanYears = 1
	}

	byUser := make(map[string]*CustomerValue)
	for _, o := range orders {
		if o.Status == models.OrderStatusCancelled || o.UserID == "" {
			continue
		}
		cv, ok := byUser[o.UserID]
		if !ok {
			cv = &CustomerValue{UserID: o.UserID, FirstOrder: o.CreatedAt, LastOrder: o.CreatedAt}
			byUser[o.UserID] = cv
		}
		cv.Revenue += o.Pricing.Total
		cv.Orders++
		if o.CreatedAt.Before(cv.FirstOrder) {
			cv.FirstOrder = o.CreatedAt
		}
		if !o.CreatedAt.Before(cv.LastOrder) {
			cv.LastOrder = o.CreatedAt
			cv.Name = o.Customer.Name
			cv.Email = o.Customer.Email
		}
	}

	out := make([]CustomerValue, 0, len(byUser))
	for _, cv := range byUser {
		cv.AOV = float64(cv.Revenue) / float64(cv.Orders)
		cv.RecencyDays = int(math.Max(0, now.Sub(cv.LastOrder).Hours()/24))

		tenureYears := math.Max(1, now.Sub(cv.FirstOrder).Hours()/24/365)
		cv.PurchasesPerYear = math.Max(float64(cv.Orders)/tenureYears, 1/lifespanYears)
		cv.PredictedCLV = round2(cv.AOV * cv.PurchasesPerYear * lifespanYears)
		cv.AOV = round2(cv.AOV)
		cv.PurchasesPerYear = round2(cv.PurchasesPerYear)
		out = append(out, *cv)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].PredictedCLV != out[j].PredictedCLV {
			return out[i].PredictedCLV > out[j].PredictedCLV
		}
		return out[i].UserID < out[j].UserID
	})
	return out
}

// SegmentedCustomer is a CustomerValue with its RFM scores.
type SegmentedCustomer struct {
	CustomerValue
	Recency   int    `json:"r"`
	Frequency int    `json:"f"`
	Monetary  int    `json:"m"`
	Score     string `json:"rfm_score"`
	Segment   string `json:"segment"`
}

// SegmentCustomers scores recency, frequency and monetary value 1..5 against
// the quintile cut points of the group and maps the scores to a segment.
func SegmentCustomers(values []CustomerValue) []SegmentedCustomer {
	if len(values) == 0 {
		return []SegmentedCustomer{}
	}

	recency := make(stats.Float64Data, len(values))
	frequency := make(stats.Float64Data, len(values))
	monetary := make(stats.Float64Data, len(values))
	for i, v := range values {
		recency[i] = float64(v.RecencyDays)
		frequency[i] = float64(v.Orders)
		monetary[i] = float64(v.Revenue)
	}
	rCuts, fCuts, mCuts := quintiles(recency), quintiles(frequency), quintiles(monetary)

	out := make([]SegmentedCustomer, len(values))
	for i, v := range values {
		// Fewer days since the last order is better.
		r := 6 - score(recency[i], rCuts)
		f := score(frequency[i], fCuts)
		m := score(monetary[i], mCuts)
		out[i] = SegmentedCustomer{
			CustomerValue: v,
			Recency:       r,
			Frequency:     f,
			Monetary:      m,
			Score:         fmt.Sprintf("%d%d%d", r, f, m),
			Segment:       segment(r, f, m),
		}
	}
	return out
}

// quintiles returns the 20/40/60/80th percentiles, or nil when every value
// is the same and no ranking is possible.
func quintiles(data stats.Float64Data) []float64 {
	lo, _ := stats.Min(data)
	hi, _ := stats.Max(data)
	if lo == hi {
		return nil
	}
	cuts := make([]float64, 0, 4)
	for _, p := range []float64{20, 40, 60, 80} {
		v, err := stats.Percentile(data, p)
		if err != nil {
			v = lo
		}
		cuts = append(cuts, v)
	}
	return cuts
}

// score is 1 plus the number of cut points v exceeds. Without cut points
// every value is average.
func score(v float64, cuts []float64) int {
	if cuts == nil {
		return 3
	}
	s := 1
	for _, c := range cuts {
		if v > c {
			s++
		}
	}
	return s
}

func segment(r, f, m int) string {
	switch {
	case r >= 4 && f >= 4:
		return SegmentChampion
	case r >= 3 && f >= 3:
		return SegmentLoyal
	case r >= 3:
		return SegmentPromising
	case f >= 3 || m >= 4:
		return SegmentAtRisk
	default:
		return SegmentDormant
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
