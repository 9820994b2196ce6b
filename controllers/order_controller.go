package controllers

import (
	"net/http"
	"time"

	apperrors "github.com/NoaSkape/firefly-estimator-sub005/common/errors"
	"github.com/NoaSkape/firefly-estimator-sub005/models"
	"github.com/NoaSkape/firefly-estimator-sub005/services"
	"github.com/gin-gonic/gin"
)

// OrderController serves buyer order views, milestone payments and the
// admin order desk.
type OrderController struct {
	orders   services.OrderService
	payments services.PaymentService
	loc      *time.Location
}

// NewOrderController creates an OrderController. loc interprets date-only
// filters.
func NewOrderController(orders services.OrderService, payments services.PaymentService, loc *time.Location) *OrderController {
	if loc == nil {
		loc = time.UTC
	}
	return &OrderController{orders: orders, payments: payments, loc: loc}
}

// ListMyOrders handles GET /api/orders.
func (oc *OrderController) ListMyOrders(c *gin.Context) {
	list, appErr := oc.orders.ListMyOrders(c.Request.Context(), identity(c))
	if appErr != nil {
		apperrors.Respond(c, appErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": list})
}

// GetOrder handles GET /api/orders/:id and GET /api/admin/orders/:id.
func (oc *OrderController) GetOrder(c *gin.Context) {
	o, appErr := oc.orders.GetOrder(c.Request.Context(), identity(c), c.Param("id"))
	if appErr != nil {
		apperrors.Respond(c, appErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"order": o})
}

// PayMilestone handles POST /api/orders/:id/milestones/:milestone/pay. An
// empty body pays with the order's chosen method.
func (oc *OrderController) PayMilestone(c *gin.Context) {
	var req models.PayMilestoneRequest
	if c.Request.ContentLength != 0 && !bindJSON(c, &req) {
		return
	}
	out, appErr := oc.payments.InitiateMilestonePayment(c.Request.Context(), identity(c), c.Param("id"), c.Param("milestone"), &req)
	if appErr != nil {
		apperrors.Respond(c, appErr)
		return
	}
	c.JSON(http.StatusOK, out)
}

// ListOrders handles GET /api/admin/orders.
func (oc *OrderController) ListOrders(c *gin.Context) {
	page, limit := parsePaginationParams(c)
	dr, appErr := parseDateRange(c, oc.loc)
	if appErr != nil {
		apperrors.Respond(c, appErr)
		return
	}
	filter := models.OrderFilter{
		Status:           models.OrderStatus(c.Query("status")),
		ProductionStatus: models.ProductionStatus(c.Query("production_status")),
		Search:           c.Query("search"),
		From:             dr.From,
		To:               dr.To,
	}

	list, total, appErr := oc.orders.ListOrders(c.Request.Context(), filter, page, limit)
	if appErr != nil {
		apperrors.Respond(c, appErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": list, "meta": pageMeta(page, limit, total)})
}

func (oc *OrderController) UpdateProduction(c *gin.Context) {
	var req models.UpdateProductionRequest
	if !bindJSON(c, &req) {
		return
	}
	o, appErr := oc.orders.UpdateProduction(c.Request.Context(), identity(c), c.Param("id"), &req)
	if appErr != nil {
		apperrors.Respond(c, appErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"order": o})
}

func (oc *OrderController) AddNote(c *gin.Context) {
	var req models.AddNoteRequest
	if !bindJSON(c, &req) {
		return
	}
	o, appErr := oc.orders.AddNote(c.Request.Context(), identity(c), c.Param("id"), &req)
	if appErr != nil {
		apperrors.Respond(c, appErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"order": o})
}

func (oc *OrderController) CancelOrder(c *gin.Context) {
	o, appErr := oc.orders.CancelOrder(c.Request.Context(), identity(c), c.Param("id"))
	if appErr != nil {
		apperrors.Respond(c, appErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"order": o})
}
