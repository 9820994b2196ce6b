package controllers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/NoaSkape/firefly-estimator-sub005/common/auth"
	apperrors "github.com/NoaSkape/firefly-estimator-sub005/common/errors"
	"github.com/NoaSkape/firefly-estimator-sub005/middleware"
	"github.com/NoaSkape/firefly-estimator-sub005/models"
	"github.com/gin-gonic/gin"
)

const (
	defaultPage  = 1
	defaultLimit = 20
	maxLimit     = 100
)

// bindJSON decodes the body into req and writes a 400 when it does not
// bind.
func bindJSON(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
		return false
	}
	return true
}

// identity returns the caller set by middleware.RequireAuth.
func identity(c *gin.Context) auth.Identity {
	id, _ := middleware.GetIdentity(c)
	return id
}

// parsePaginationParams extracts and validates pagination parameters.
func parsePaginationParams(c *gin.Context) (int, int) {
	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page < 1 {
		page = defaultPage
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultLimit)))
	if err != nil || limit < 1 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	return page, limit
}

func pageMeta(page, limit int, total int64) gin.H {
	totalPages := (total + int64(limit) - 1) / int64(limit)
	return gin.H{
		"page":        page,
		"limit":       limit,
		"total":       total,
		"total_pages": totalPages,
		"has_more":    total > int64(page*limit),
	}
}

// queryInt reads a positive integer query parameter, falling back to def
// when it is absent.
func queryInt(c *gin.Context, key string, def int) (int, *apperrors.Error) {
	raw := c.Query(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperrors.BadRequest("Invalid " + key)
	}
	return n, nil
}

// parseTime accepts RFC 3339 timestamps or YYYY-MM-DD dates in loc. A date
// used as an upper bound covers that whole day.
func parseTime(raw string, loc *time.Location, upper bool) (time.Time, bool) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, true
	}
	t, err := time.ParseInLocation(time.DateOnly, raw, loc)
	if err != nil {
		return time.Time{}, false
	}
	if upper {
		t = t.AddDate(0, 0, 1)
	}
	return t, true
}

// parseDateRange reads from/to. Missing bounds stay zero.
func parseDateRange(c *gin.Context, loc *time.Location) (models.DateRange, *apperrors.Error) {
	var dr models.DateRange
	if raw := c.Query("from"); raw != "" {
		t, ok := parseTime(raw, loc, false)
		if !ok {
			return dr, apperrors.BadRequest("Invalid from date")
		}
		dr.From = t
	}
	if raw := c.Query("to"); raw != "" {
		t, ok := parseTime(raw, loc, true)
		if !ok {
			return dr, apperrors.BadRequest("Invalid to date")
		}
		dr.To = t
	}
	return dr, nil
}
