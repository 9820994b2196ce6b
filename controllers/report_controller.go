package controllers

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	apperrors "github.com/NoaSkape/firefly-estimator-sub005/common/errors"
	"github.com/NoaSkape/firefly-estimator-sub005/services"
	"github.com/gin-gonic/gin"
)

type ReportController struct {
	reports services.ReportService
	loc     *time.Location
}

func NewReportController(reports services.ReportService, loc *time.Location) *ReportController {
	if loc == nil {
		loc = time.UTC
	}
	return &ReportController{reports: reports, loc: loc}
}

// OrdersCSV handles GET /api/admin/reports/orders.csv?from=&to=. The report
// is rendered into memory first so a failure can still be sent as JSON.
func (rc *ReportController) OrdersCSV(c *gin.Context) {
	dr, appErr := parseDateRange(c, rc.loc)
	if appErr != nil {
		apperrors.Respond(c, appErr)
		return
	}

	var buf bytes.Buffer
	if appErr := rc.reports.OrdersCSV(c.Request.Context(), &buf, dr); appErr != nil {
		apperrors.Respond(c, appErr)
		return
	}

	filename := fmt.Sprintf("orders-%s.csv", time.Now().In(rc.loc).Format("20060102"))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
}
