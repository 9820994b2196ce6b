package controllers

import (
	"io"
	"net/http"

	apperrors "github.com/NoaSkape/firefly-estimator-sub005/common/errors"
	"github.com/NoaSkape/firefly-estimator-sub005/models"
	"github.com/NoaSkape/firefly-estimator-sub005/services"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// maxWebhookBytes bounds the Stripe payload read before verification.
const maxWebhookBytes = 65536

// PaymentController handles the Stripe webhook and the bank-transfer desk.
type PaymentController struct {
	payments services.PaymentService
	logger   *zap.Logger
}

func NewPaymentController(payments services.PaymentService, logger *zap.Logger) *PaymentController {
	return &PaymentController{payments: payments, logger: logger}
}

// StripeWebhook handles POST /api/stripe/webhook. The raw body is needed to
// verify the Stripe-Signature header.
func (pc *PaymentController) StripeWebhook(c *gin.Context) {
	payload, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBytes))
	if err != nil {
		pc.logger.Warn("Failed to read Stripe webhook body", zap.Error(err))
		apperrors.Respond(c, apperrors.New(http.StatusServiceUnavailable, "Error reading request body", err))
		return
	}

	if appErr := pc.payments.HandleStripeWebhook(c.Request.Context(), payload, c.GetHeader("Stripe-Signature")); appErr != nil {
		apperrors.Respond(c, appErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "received"})
}

// ListBankTransfers handles GET /api/admin/bank-transfers?status=.
func (pc *PaymentController) ListBankTransfers(c *gin.Context) {
	page, limit := parsePaginationParams(c)
	list, total, appErr := pc.payments.ListBankTransfers(c.Request.Context(), models.BankTransferStatus(c.Query("status")), page, limit)
	if appErr != nil {
		apperrors.Respond(c, appErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"bank_transfers": list, "meta": pageMeta(page, limit, total)})
}

func (pc *PaymentController) ConfirmBankTransfer(c *gin.Context) {
	bt, appErr := pc.payments.ConfirmBankTransfer(c.Request.Context(), identity(c), c.Param("id"))
	if appErr != nil {
		apperrors.Respond(c, appErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"bank_transfer": bt})
}

func (pc *PaymentController) RejectBankTransfer(c *gin.Context) {
	var req models.RejectBankTransferRequest
	if !bindJSON(c, &req) {
		return
	}
	bt, appErr := pc.payments.RejectBankTransfer(c.Request.Context(), identity(c), c.Param("id"), &req)
	if appErr != nil {
		apperrors.Respond(c, appErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"bank_transfer": bt})
}
