package routes

import (
	commonmw "github.com/NoaSkape/firefly-estimator-sub005/common/middleware"
	"github.com/NoaSkape/firefly-estimator-sub005/controllers"
	"github.com/NoaSkape/firefly-estimator-sub005/middleware"
	"github.com/gin-gonic/gin"
)

// Controllers groups the handlers registered by RegisterRoutes.
type Controllers struct {
	Catalog   *controllers.CatalogController
	Builds    *controllers.BuildController
	Orders    *controllers.OrderController
	Payments  *controllers.PaymentController
	Analytics *controllers.AnalyticsController
	Customers *controllers.CustomerController
	Reports   *controllers.ReportController
}

// RegisterRoutes sets up the public, buyer and admin APIs. trackLimiter
// throttles the analytics beacon separately from the global limiter.
func RegisterRoutes(r *gin.Engine, ctl Controllers, verifier middleware.TokenVerifier, trackLimiter *commonmw.RateLimiter) {
	api := r.Group("/api")

	// Public
	api.GET("/models", ctl.Catalog.ListModels)
	api.GET("/models/:slug", ctl.Catalog.GetModel)
	api.POST("/models/:slug/quote", ctl.Catalog.Quote)
	api.POST("/analytics/track", commonmw.RateLimitWith(trackLimiter), middleware.OptionalAuth(verifier), ctl.Analytics.Track)
	api.POST("/stripe/webhook", ctl.Payments.StripeWebhook)

	// Buyer
	buyer := api.Group("")
	buyer.Use(middleware.RequireAuth(verifier))
	{
		buyer.POST("/builds", ctl.Builds.CreateBuild)
		buyer.GET("/builds", ctl.Builds.ListBuilds)
		buyer.GET("/builds/:id", ctl.Builds.GetBuild)
		buyer.DELETE("/builds/:id", ctl.Builds.CancelBuild)
		buyer.PATCH("/builds/:id/configuration", ctl.Builds.UpdateConfiguration)
		buyer.PUT("/builds/:id/buyer", ctl.Builds.SetBuyerInfo)
		buyer.PUT("/builds/:id/payment-method", ctl.Builds.SetPaymentMethod)
		buyer.POST("/builds/:id/contract", ctl.Builds.SignContract)
		buyer.PATCH("/builds/:id/step", ctl.Builds.SetStep)
		buyer.POST("/builds/:id/submit", ctl.Builds.SubmitBuild)

		buyer.GET("/orders", ctl.Orders.ListMyOrders)
		buyer.GET("/orders/:id", ctl.Orders.GetOrder)
		buyer.POST("/orders/:id/milestones/:milestone/pay", ctl.Orders.PayMilestone)
	}

	// Admin
	admin := api.Group("/admin")
	admin.Use(middleware.RequireAuth(verifier), middleware.AdminOnly())
	{
		admin.GET("/models", ctl.Catalog.AdminListModels)
		admin.POST("/models", ctl.Catalog.CreateModel)
		admin.GET("/models/:id", ctl.Catalog.AdminGetModel)
		admin.PUT("/models/:id", ctl.Catalog.UpdateModel)
		admin.DELETE("/models/:id", ctl.Catalog.DeactivateModel)
		admin.POST("/models/:id/images/presign", ctl.Catalog.PresignImageUpload)
		admin.POST("/models/:id/images", ctl.Catalog.AttachImage)

		admin.GET("/builds", ctl.Builds.AdminListBuilds)

		admin.GET("/orders", ctl.Orders.ListOrders)
		admin.GET("/orders/:id", ctl.Orders.GetOrder)
		admin.PATCH("/orders/:id/production", ctl.Orders.UpdateProduction)
		admin.POST("/orders/:id/notes", ctl.Orders.AddNote)
		admin.POST("/orders/:id/cancel", ctl.Orders.CancelOrder)

		admin.GET("/bank-transfers", ctl.Payments.ListBankTransfers)
		admin.POST("/bank-transfers/:id/confirm", ctl.Payments.ConfirmBankTransfer)
		admin.POST("/bank-transfers/:id/reject", ctl.Payments.RejectBankTransfer)

		admin.GET("/customers", ctl.Customers.ListCustomers)
		admin.GET("/customers/:id", ctl.Customers.GetCustomer)

		admin.GET("/analytics/overview", ctl.Analytics.Overview)
		admin.GET("/analytics/funnel", ctl.Analytics.Funnel)
		admin.GET("/analytics/forecast", ctl.Analytics.Forecast)
		admin.GET("/analytics/seasonality", ctl.Analytics.Seasonality)
		admin.GET("/analytics/clv", ctl.Analytics.CustomerValues)
		admin.GET("/analytics/order-values", ctl.Analytics.OrderValues)

		admin.GET("/reports/orders.csv", ctl.Reports.OrdersCSV)
	}
}
