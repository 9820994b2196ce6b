package services_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/NoaSkape/firefly-estimator-sub005/models"
	"github.com/NoaSkape/firefly-estimator-sub005/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newOrderService(orders *mockOrderRepo, events *mockEvents) services.OrderService {
	return services.NewOrderService(orders, events, testLogger())
}

func TestOrder_GetOrder_Access(t *testing.T) {
	orders := newMockOrderRepo(testOrder("o1", buyer.UserID, models.PaymentPlanDeposit, 100000))
	svc := newOrderService(orders, &mockEvents{})

	o, appErr := svc.GetOrder(context.Background(), buyer, "o1")
	require.Nil(t, appErr)
	assert.Equal(t, "o1", o.ID)

	_, appErr = svc.GetOrder(context.Background(), stranger, "o1")
	require.NotNil(t, appErr)
	assert.Equal(t, http.StatusForbidden, appErr.Code)

	_, appErr = svc.GetOrder(context.Background(), admin, "o1")
	assert.Nil(t, appErr)

	_, appErr = svc.GetOrder(context.Background(), admin, "missing")
	require.NotNil(t, appErr)
	assert.Equal(t, http.StatusNotFound, appErr.Code)
}

func TestOrder_ListMyOrders(t *testing.T) {
	orders := newMockOrderRepo(
		testOrder("o1", buyer.UserID, models.PaymentPlanDeposit, 100000),
		testOrder("o2", stranger.UserID, models.PaymentPlanFull, 100000),
	)
	svc := newOrderService(orders, &mockEvents{})

	list, appErr := svc.ListMyOrders(context.Background(), buyer)
	require.Nil(t, appErr)
	require.Len(t, list, 1)
	assert.Equal(t, "o1", list[0].ID)
}

func TestOrder_ListOrders_RejectsUnknownStatus(t *testing.T) {
	svc := newOrderService(newMockOrderRepo(), &mockEvents{})

	_, _, appErr := svc.ListOrders(context.Background(), models.OrderFilter{ProductionStatus: "painting"}, 1, 10)
	require.NotNil(t, appErr)
	assert.Equal(t, http.StatusBadRequest, appErr.Code)
}

func TestOrder_UpdateProduction(t *testing.T) {
	orders := newMockOrderRepo(testOrder("o1", buyer.UserID, models.PaymentPlanDeposit, 100000))
	events := &mockEvents{}
	svc := newOrderService(orders, events)

	o, appErr := svc.UpdateProduction(context.Background(), admin, "o1", &models.UpdateProductionRequest{
		Status: models.ProductionInProduction,
		Note:   "Framing <b>started</b>",
	})
	require.Nil(t, appErr)
	assert.Equal(t, models.ProductionInProduction, o.ProductionStatus)
	require.Len(t, o.Timeline, 1)
	assert.Equal(t, "not_started -> in_production: Framing started", o.Timeline[0].Detail)
	assert.Equal(t, admin.UserID, o.Timeline[0].Actor)
	assert.Equal(t, []string{services.EventProductionUpdated}, events.types())

	_, appErr = svc.UpdateProduction(context.Background(), admin, "o1", &models.UpdateProductionRequest{Status: "painting"})
	require.NotNil(t, appErr)
	assert.Equal(t, http.StatusBadRequest, appErr.Code)
}

func TestOrder_UpdateProduction_DeliveryRequiresFullPayment(t *testing.T) {
	unpaid := testOrder("o1", buyer.UserID, models.PaymentPlanFull, 100000)
	paid := testOrder("o2", buyer.UserID, models.PaymentPlanFull, 100000)
	paid.Milestones[0].Status = models.MilestonePaid
	paid.Status = models.OrderStatusPaidInFull
	svc := newOrderService(newMockOrderRepo(unpaid, paid), &mockEvents{})

	_, appErr := svc.UpdateProduction(context.Background(), admin, "o1", &models.UpdateProductionRequest{Status: models.ProductionDelivered})
	require.NotNil(t, appErr)
	assert.Equal(t, http.StatusConflict, appErr.Code)

	o, appErr := svc.UpdateProduction(context.Background(), admin, "o2", &models.UpdateProductionRequest{Status: models.ProductionDelivered})
	require.Nil(t, appErr)
	assert.Equal(t, models.ProductionDelivered, o.ProductionStatus)
}

func TestOrder_UpdateProduction_CancelledOrder(t *testing.T) {
	o := testOrder("o1", buyer.UserID, models.PaymentPlanFull, 100000)
	o.Status = models.OrderStatusCancelled
	svc := newOrderService(newMockOrderRepo(o), &mockEvents{})

	_, appErr := svc.UpdateProduction(context.Background(), admin, "o1", &models.UpdateProductionRequest{Status: models.ProductionQueued})
	require.NotNil(t, appErr)
	assert.Equal(t, http.StatusConflict, appErr.Code)
}

func TestOrder_AddNote(t *testing.T) {
	svc := newOrderService(newMockOrderRepo(testOrder("o1", buyer.UserID, models.PaymentPlanFull, 100000)), &mockEvents{})

	o, appErr := svc.AddNote(context.Background(), admin, "o1", &models.AddNoteRequest{Body: "  Called buyer <i>re</i> delivery  "})
	require.Nil(t, appErr)
	require.Len(t, o.Notes, 1)
	assert.Equal(t, "Called buyer re delivery", o.Notes[0].Body)
	assert.Equal(t, "note_added", o.Timeline[len(o.Timeline)-1].Event)

	_, appErr = svc.AddNote(context.Background(), admin, "o1", &models.AddNoteRequest{Body: "<br>"})
	require.NotNil(t, appErr)
	assert.Equal(t, http.StatusBadRequest, appErr.Code)
}

func TestOrder_CancelOrder(t *testing.T) {
	open := testOrder("o1", buyer.UserID, models.PaymentPlanDeposit, 100000)
	deposit := testOrder("o2", buyer.UserID, models.PaymentPlanDeposit, 100000)
	deposit.Milestones[0].Status = models.MilestonePaid
	inFlight := testOrder("o3", buyer.UserID, models.PaymentPlanDeposit, 100000)
	inFlight.Milestones[0].Status = models.MilestoneProcessing
	svc := newOrderService(newMockOrderRepo(open, deposit, inFlight), &mockEvents{})

	o, appErr := svc.CancelOrder(context.Background(), admin, "o1")
	require.Nil(t, appErr)
	assert.Equal(t, models.OrderStatusCancelled, o.Status)

	for _, id := range []string{"o2", "o3"} {
		_, appErr = svc.CancelOrder(context.Background(), admin, id)
		require.NotNil(t, appErr, id)
		assert.Equal(t, http.StatusConflict, appErr.Code, id)
	}
}

func TestOrder_CancelOrder_PaymentSettlesMeanwhile(t *testing.T) {
	orders := newMockOrderRepo(testOrder("o1", buyer.UserID, models.PaymentPlanDeposit, 100000))
	orders.beforeCancel = func() {
		_, err := orders.UpdateMilestone(context.Background(), "o1", models.MilestoneDeposit,
			[]models.MilestoneStatus{models.MilestonePending},
			map[string]interface{}{"status": models.MilestonePaid}, nil)
		require.NoError(t, err)
	}
	svc := newOrderService(orders, &mockEvents{})

	_, appErr := svc.CancelOrder(context.Background(), admin, "o1")
	require.NotNil(t, appErr)
	assert.Equal(t, http.StatusConflict, appErr.Code)

	o, err := orders.FindByID(context.Background(), "o1")
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusDepositPaid, o.Status)
}
