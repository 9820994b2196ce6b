package controllers

import (
	"net/http"
	"time"

	apperrors "github.com/NoaSkape/firefly-estimator-sub005/common/errors"
	"github.com/NoaSkape/firefly-estimator-sub005/models"
	"github.com/NoaSkape/firefly-estimator-sub005/services"
	"github.com/gin-gonic/gin"
)

const (
	defaultOverviewDays  = 30
	defaultHistoryMonths = 24
	defaultHorizon       = 6
	defaultTopCustomers  = 20
)

// AnalyticsController serves the tracking beacon and the admin dashboard.
type AnalyticsController struct {
	tracking  services.TrackingService
	analytics services.AnalyticsService
	loc       *time.Location
	now       func() time.Time
}

// NewAnalyticsController creates an AnalyticsController. loc is the
// reporting time zone used for date-only parameters.
func NewAnalyticsController(tracking services.TrackingService, analytics services.AnalyticsService, loc *time.Location) *AnalyticsController {
	if loc == nil {
		loc = time.UTC
	}
	return &AnalyticsController{tracking: tracking, analytics: analytics, loc: loc, now: time.Now}
}

// Track handles POST /api/analytics/track. The user id is attached when the
// beacon carries a valid session token.
func (ac *AnalyticsController) Track(c *gin.Context) {
	var req models.TrackRequest
	if !bindJSON(c, &req) {
		return
	}
	ev := &models.TrackEvent{
		TrackRequest: req,
		UserID:       identity(c).UserID,
		UserAgent:    c.Request.UserAgent(),
		IP:           c.ClientIP(),
	}
	if appErr := ac.tracking.Track(c.Request.Context(), ev); appErr != nil {
		apperrors.Respond(c, appErr)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
}

// reportRange reads from/to, defaulting to the last 30 days.
func (ac *AnalyticsController) reportRange(c *gin.Context, loc *time.Location) (models.DateRange, *apperrors.Error) {
	dr, appErr := parseDateRange(c, loc)
	if appErr != nil {
		return dr, appErr
	}
	if dr.To.IsZero() {
		dr.To = ac.now().UTC()
	}
	if dr.From.IsZero() {
		dr.From = dr.To.AddDate(0, 0, -defaultOverviewDays)
	}
	return dr, nil
}

// Overview handles GET /api/admin/analytics/overview?from=&to=&tz=.
func (ac *AnalyticsController) Overview(c *gin.Context) {
	tz := c.Query("tz")
	loc := ac.loc
	if tz != "" {
		l, err := time.LoadLocation(tz)
		if err != nil {
			apperrors.Respond(c, apperrors.BadRequest("Unknown time zone "+tz))
			return
		}
		loc = l
	}
	dr, appErr := ac.reportRange(c, loc)
	if appErr != nil {
		apperrors.Respond(c, appErr)
		return
	}
	out, appErr := ac.analytics.Overview(c.Request.Context(), dr, tz)
	if appErr != nil {
		apperrors.Respond(c, appErr)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (ac *AnalyticsController) Funnel(c *gin.Context) {
	dr, appErr := ac.reportRange(c, ac.loc)
	if appErr != nil {
		apperrors.Respond(c, appErr)
		return
	}
	out, appErr := ac.analytics.Funnel(c.Request.Context(), dr)
	if appErr != nil {
		apperrors.Respond(c, appErr)
		return
	}
	c.JSON(http.StatusOK, out)
}

// Forecast handles GET /api/admin/analytics/forecast?months=24&horizon=6.
func (ac *AnalyticsController) Forecast(c *gin.Context) {
	months, appErr := queryInt(c, "months", defaultHistoryMonths)
	if appErr != nil {
		apperrors.Respond(c, appErr)
		return
	}
	horizon, appErr := queryInt(c, "horizon", defaultHorizon)
	if appErr != nil {
		apperrors.Respond(c, appErr)
		return
	}
	out, appErr := ac.analytics.Forecast(c.Request.Context(), months, horizon)
	if appErr != nil {
		apperrors.Respond(c, appErr)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (ac *AnalyticsController) Seasonality(c *gin.Context) {
	months, appErr := queryInt(c, "months", defaultHistoryMonths)
	if appErr != nil {
		apperrors.Respond(c, appErr)
		return
	}
	out, appErr := ac.analytics.Seasonality(c.Request.Context(), months)
	if appErr != nil {
		apperrors.Respond(c, appErr)
		return
	}
	c.JSON(http.StatusOK, out)
}

// CustomerValues handles GET /api/admin/analytics/clv?top=20.
func (ac *AnalyticsController) CustomerValues(c *gin.Context) {
	top, appErr := queryInt(c, "top", defaultTopCustomers)
	if appErr != nil {
		apperrors.Respond(c, appErr)
		return
	}
	out, appErr := ac.analytics.CustomerValues(c.Request.Context(), top)
	if appErr != nil {
		apperrors.Respond(c, appErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"customers": out})
}

// OrderValues handles GET /api/admin/analytics/order-values. Without bounds
// it describes every order.
func (ac *AnalyticsController) OrderValues(c *gin.Context) {
	dr, appErr := parseDateRange(c, ac.loc)
	if appErr != nil {
		apperrors.Respond(c, appErr)
		return
	}
	out, appErr := ac.analytics.OrderValues(c.Request.Context(), dr)
	if appErr != nil {
		apperrors.Respond(c, appErr)
		return
	}
	c.JSON(http.StatusOK, out)
}
