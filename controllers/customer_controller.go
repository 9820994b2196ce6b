package controllers

import (
	"net/http"

	apperrors "github.com/NoaSkape/firefly-estimator-sub005/common/errors"
	"github.com/NoaSkape/firefly-estimator-sub005/services"
	"github.com/gin-gonic/gin"
)

type CustomerController struct {
	customers services.CustomerService
}

func NewCustomerController(customers services.CustomerService) *CustomerController {
	return &CustomerController{customers: customers}
}

// ListCustomers handles GET /api/admin/customers.
func (cc *CustomerController) ListCustomers(c *gin.Context) {
	page, limit := parsePaginationParams(c)
	list, total, appErr := cc.customers.ListCustomers(c.Request.Context(), page, limit)
	if appErr != nil {
		apperrors.Respond(c, appErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"customers": list, "meta": pageMeta(page, limit, total)})
}

// GetCustomer handles GET /api/admin/customers/:id.
func (cc *CustomerController) GetCustomer(c *gin.Context) {
	out, appErr := cc.customers.GetCustomer(c.Request.Context(), c.Param("id"))
	if appErr != nil {
		apperrors.Respond(c, appErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"customer": out})
}
