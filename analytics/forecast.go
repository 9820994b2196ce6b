package analytics

import (
	"math"
	"time"

	"github.com/montanaflynn/stats"
)

// z-score of a two-sided 95% interval.
const z95 = 1.96

// SeasonalIndex is the relative strength of one calendar month.
type SeasonalIndex struct {
	Month int     `json:"month"`
	Name  string  `json:"name"`
	Index float64 `json:"index"`
}

// SeasonalityIndices returns, per calendar month, the mean revenue of that
// month divided by the overall monthly mean. Series shorter than a year, or
// with no revenue, yield a flat 1.0 for every month.
func SeasonalityIndices(series []MonthPoint) [12]float64 {
	var idx [12]float64
	for i := range idx {
		idx[i] = 1
	}
	if len(series) < MinSeasonalityPoints {
		return idx
	}

	overall, err := stats.Mean(revenues(series))
	if err != nil || overall == 0 {
		return idx
	}

	var byMonth [12]stats.Float64Data
	for _, p := range series {
		m := p.Start.Month() - 1
		byMonth[m] = append(byMonth[m], float64(p.Revenue))
	}
	for m, vals := range byMonth {
		if len(vals) == 0 {
			continue
		}
		mean, err := stats.Mean(vals)
		if err != nil {
			continue
		}
		idx[m] = mean / overall
	}
	return idx
}

// Seasonality lists SeasonalityIndices with month names.
func Seasonality(series []MonthPoint) []SeasonalIndex {
	idx := SeasonalityIndices(series)
	out := make([]SeasonalIndex, 12)
	for i, v := range idx {
		out[i] = SeasonalIndex{Month: i + 1, Name: time.Month(i + 1).String(), Index: v}
	}
	return out
}

type ForecastPoint struct {
	Month   string  `json:"month"`
	Revenue float64 `json:"revenue"`
	Lower   float64 `json:"lower"`
	Upper   float64 `json:"upper"`
}

// ForecastResult is a trend-times-season projection of monthly revenue.
type ForecastResult struct {
	Points         []ForecastPoint `json:"points"`
	Slope          float64         `json:"slope"`
	Intercept      float64         `json:"intercept"`
	RSquared       float64         `json:"r_squared"`
	ResidualStdDev float64         `json:"residual_std_dev"`
	Seasonal       bool            `json:"seasonal"`
	History        []MonthPoint    `json:"history"`
}

// Forecast fits a least-squares trend to the deseasonalised series and
// projects horizon months past its end. Projections are clamped at zero and
// carry a 95% band of ±1.96 residual standard deviations.
func Forecast(series []MonthPoint, horizon int) (*ForecastResult, error) {
	if len(series) < MinForecastPoints {
		return nil, ErrInsufficientData
	}
	if horizon < 1 || horizon > MaxHorizon {
		return nil, ErrInvalidHorizon
	}

	seasonal := len(series) >= MinSeasonalityPoints
	idx := SeasonalityIndices(series)
	factor := func(t time.Time) float64 {
		if f := idx[t.Month()-1]; seasonal && f > 0 {
			return f
		}
		return 1
	}

	points := make(stats.Series, len(series))
	for i, p := range series {
		points[i] = stats.Coordinate{X: float64(i), Y: float64(p.Revenue) / factor(p.Start)}
	}
	slope, intercept, err := fitLine(points)
	if err != nil {
		return nil, err
	}

	actual := revenues(series)
	fitted := make(stats.Float64Data, len(series))
	residuals := make(stats.Float64Data, len(series))
	for i, p := range series {
		fitted[i] = (intercept + slope*float64(i)) * factor(p.Start)
		residuals[i] = actual[i] - fitted[i]
	}

	sd, err := stats.StandardDeviationSample(residuals)
	if err != nil || math.IsNaN(sd) {
		sd = 0
	}
	r, err := stats.Correlation(actual, fitted)
	if err != nil || math.IsNaN(r) {
		r = 0
	}

	res := &ForecastResult{
		Slope:          slope,
		Intercept:      intercept,
		RSquared:       r * r,
		ResidualStdDev: sd,
		Seasonal:       seasonal,
		History:        series,
		Points:         make([]ForecastPoint, 0, horizon),
	}
	last := series[len(series)-1].Start
	for h := 1; h <= horizon; h++ {
		month := last.AddDate(0, h, 0)
		x := float64(len(series) - 1 + h)
		v := math.Max(0, (intercept+slope*x)*factor(month))
		res.Points = append(res.Points, ForecastPoint{
			Month:   month.Format("2006-01"),
			Revenue: v,
			Lower:   math.Max(0, v-z95*sd),
			Upper:   v + z95*sd,
		})
	}
	return res, nil
}

// fitLine recovers slope and intercept from the fitted coordinates that
// stats.LinearRegression returns.
func fitLine(points stats.Series) (slope, intercept float64, err error) {
	fit, err := stats.LinearRegression(points)
	if err != nil {
		return 0, 0, err
	}
	first, last := fit[0], fit[len(fit)-1]
	if dx := last.X - first.X; dx != 0 {
		slope = (last.Y - first.Y) / dx
	}
	intercept = first.Y - slope*first.X
	if math.IsNaN(slope) || math.IsNaN(intercept) {
		return 0, 0, ErrInsufficientData
	}
	return slope, intercept, nil
}
