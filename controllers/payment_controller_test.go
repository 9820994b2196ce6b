package controllers_test

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/NoaSkape/firefly-estimator-sub005/common/auth"
	apperrors "github.com/NoaSkape/firefly-estimator-sub005/common/errors"
	"github.com/NoaSkape/firefly-estimator-sub005/controllers"
	"github.com/NoaSkape/firefly-estimator-sub005/models"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupPaymentRouter(svc *mockPayments) *gin.Engine {
	r := newRouter(admin)
	pc := controllers.NewPaymentController(svc, zap.NewNop())
	r.POST("/stripe/webhook", pc.StripeWebhook)
	r.GET("/admin/bank-transfers", pc.ListBankTransfers)
	r.POST("/admin/bank-transfers/:id/confirm", pc.ConfirmBankTransfer)
	r.POST("/admin/bank-transfers/:id/reject", pc.RejectBankTransfer)
	return r
}

func TestPayment_StripeWebhook_PassesRawBody(t *testing.T) {
	const payload = `{"id":"evt_1","type":"payment_intent.succeeded"}`
	svc := &mockPayments{webhookFn: func(_ context.Context, body []byte, sig string) *apperrors.Error {
		assert.Equal(t, payload, string(body))
		if sig != "t=1,v1=abc" {
			return apperrors.BadRequest("Invalid signature")
		}
		return nil
	}}
	r := setupPaymentRouter(svc)

	req := newRawRequest(http.MethodPost, "/stripe/webhook", payload)
	req.Header.Set("Stripe-Signature", "t=1,v1=abc")
	w := serve(r, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "received", decode(t, w)["status"])

	req = newRawRequest(http.MethodPost, "/stripe/webhook", payload)
	req.Header.Set("Stripe-Signature", "forged")
	assert.Equal(t, http.StatusBadRequest, serve(r, req).Code)
}

func TestPayment_StripeWebhook_RejectsOversizedBody(t *testing.T) {
	svc := &mockPayments{webhookFn: func(context.Context, []byte, string) *apperrors.Error {
		t.Fatal("oversized payload reached the service")
		return nil
	}}

	w := serve(setupPaymentRouter(svc), newRawRequest(http.MethodPost, "/stripe/webhook", strings.Repeat("x", 70000)))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestPayment_ListBankTransfers(t *testing.T) {
	svc := &mockPayments{listFn: func(_ context.Context, status models.BankTransferStatus, page, limit int) ([]models.BankTransferIntent, int64, *apperrors.Error) {
		if status == "lost" {
			return nil, 0, apperrors.BadRequest("Invalid status filter")
		}
		assert.Equal(t, models.BankTransferPending, status)
		return []models.BankTransferIntent{{ID: "bt1", ReferenceCode: "FF-0A1B2C3D"}}, 1, nil
	}}
	r := setupPaymentRouter(svc)

	w := do(r, http.MethodGet, "/admin/bank-transfers?status=pending", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["bank_transfers"], 1)

	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodGet, "/admin/bank-transfers?status=lost", nil).Code)
}

func TestPayment_ConfirmAndReject(t *testing.T) {
	svc := &mockPayments{
		confirmFn: func(_ context.Context, who auth.Identity, id string) (*models.BankTransferIntent, *apperrors.Error) {
			assert.Equal(t, admin.UserID, who.UserID)
			return &models.BankTransferIntent{ID: id, Status: models.BankTransferConfirmed}, nil
		},
		rejectFn: func(_ context.Context, _ auth.Identity, id string, req *models.RejectBankTransferRequest) (*models.BankTransferIntent, *apperrors.Error) {
			return &models.BankTransferIntent{ID: id, Status: models.BankTransferRejected}, nil
		},
	}
	r := setupPaymentRouter(svc)

	w := do(r, http.MethodPost, "/admin/bank-transfers/bt1/confirm", nil)
	require.Equal(t, http.StatusOK, w.Code)
	bt := decode(t, w)["bank_transfer"].(map[string]interface{})
	assert.Equal(t, "confirmed", bt["status"])

	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodPost, "/admin/bank-transfers/bt1/reject", `{}`).Code)
	assert.Equal(t, http.StatusOK, do(r, http.MethodPost, "/admin/bank-transfers/bt1/reject", models.RejectBankTransferRequest{Reason: "Amount short"}).Code)
}
