package services_test

import (
	"context"
	"net/http"
	"regexp"
	"sync"
	"testing"

	"github.com/NoaSkape/firefly-estimator-sub005/models"
	"github.com/NoaSkape/firefly-estimator-sub005/repository"
	"github.com/NoaSkape/firefly-estimator-sub005/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type buildFixture struct {
	svc       services.BuildService
	catalog   *mockModelRepo
	builds    *mockBuildRepo
	orders    *mockOrderRepo
	customers *mockCustomerRepo
	events    *mockEvents
}

func newBuildFixture() *buildFixture {
	f := &buildFixture{
		catalog:   newMockModelRepo(magnolia()),
		builds:    newMockBuildRepo(),
		orders:    newMockOrderRepo(),
		customers: newMockCustomerRepo(),
		events:    &mockEvents{},
	}
	f.svc = services.NewBuildService(f.builds, f.catalog, f.orders, f.customers,
		repository.NewLocalLocker(), f.events, nil,
		services.BuildConfig{Rules: testRules, ContractVersion: "2025-01", Currency: "usd"},
		testLogger(),
	)
	return f
}

func validBuyer() *models.BuyerInfo {
	return &models.BuyerInfo{
		FirstName: "Jane",
		LastName:  "Buyer",
		Email:     "Jane@Example.com",
		Phone:     "512-555-0100",
		Address:   models.Address{Line1: "1 Main St", City: "Austin", State: "tx", Zip: "78701"},
	}
}

// readyBuild walks a build through every checkout step.
func (f *buildFixture) readyBuild(t *testing.T) *models.Build {
	t.Helper()
	ctx := context.Background()
	b, appErr := f.svc.CreateBuild(ctx, buyer, &models.CreateBuildRequest{
		ModelSlug:  "magnolia",
		Selections: []models.Selection{sel("siding", "cedar")},
	})
	require.Nil(t, appErr)
	_, appErr = f.svc.SetBuyerInfo(ctx, buyer, b.ID, validBuyer())
	require.Nil(t, appErr)
	_, appErr = f.svc.SetPaymentMethod(ctx, buyer, b.ID, &models.PaymentChoiceRequest{Method: models.PaymentMethodCard, Plan: models.PaymentPlanDeposit})
	require.Nil(t, appErr)
	b, appErr = f.svc.SignContract(ctx, buyer, b.ID, &models.SignContractRequest{SignedName: "Jane Buyer", Accepted: true}, "203.0.113.9")
	require.Nil(t, appErr)
	return b
}

func TestBuild_Create_PartialConfiguration(t *testing.T) {
	f := newBuildFixture()

	b, appErr := f.svc.CreateBuild(context.Background(), buyer, &models.CreateBuildRequest{ModelSlug: "magnolia"})
	require.Nil(t, appErr)
	assert.Equal(t, models.StepConfigure, b.Step)
	assert.Equal(t, models.BuildStatusDraft, b.Status)
	assert.Equal(t, []string{"siding"}, b.Missing)
	assert.Equal(t, int64(6000000), b.Pricing.Total)
}

func TestBuild_Create_Errors(t *testing.T) {
	f := newBuildFixture()

	_, appErr := f.svc.CreateBuild(context.Background(), buyer, &models.CreateBuildRequest{ModelSlug: "unknown"})
	require.NotNil(t, appErr)
	assert.Equal(t, http.StatusNotFound, appErr.Code)

	_, appErr = f.svc.CreateBuild(context.Background(), buyer, &models.CreateBuildRequest{
		ModelSlug:  "magnolia",
		Selections: []models.Selection{sel("siding", "brick")},
	})
	require.NotNil(t, appErr)
	assert.Equal(t, http.StatusBadRequest, appErr.Code)
}

func TestBuild_StepAdvancesWithSections(t *testing.T) {
	f := newBuildFixture()
	ctx := context.Background()

	b, _ := f.svc.CreateBuild(ctx, buyer, &models.CreateBuildRequest{ModelSlug: "magnolia"})

	// Buyer info cannot move the build past an incomplete configuration.
	b, appErr := f.svc.SetBuyerInfo(ctx, buyer, b.ID, validBuyer())
	require.Nil(t, appErr)
	assert.Equal(t, models.StepConfigure, b.Step)
	assert.Equal(t, "TX", b.Buyer.Address.State)
	assert.Equal(t, "jane@example.com", b.Buyer.Email)
	require.NotNil(t, b.Buyer.DeliveryAddress)
	assert.Equal(t, "1 Main St", b.Buyer.DeliveryAddress.Line1)

	b, appErr = f.svc.UpdateConfiguration(ctx, buyer, b.ID, []models.Selection{sel("siding", "lap")})
	require.Nil(t, appErr)
	assert.Empty(t, b.Missing)

	b, appErr = f.svc.SetPaymentMethod(ctx, buyer, b.ID, &models.PaymentChoiceRequest{Method: models.PaymentMethodACH, Plan: models.PaymentPlanFull})
	require.Nil(t, appErr)
	assert.Equal(t, models.StepContract, b.Step)
}

func TestBuild_SetBuyerInfo_Validation(t *testing.T) {
	f := newBuildFixture()
	b, _ := f.svc.CreateBuild(context.Background(), buyer, &models.CreateBuildRequest{ModelSlug: "magnolia"})

	info := validBuyer()
	info.Email = "not-an-email"
	_, appErr := f.svc.SetBuyerInfo(context.Background(), buyer, b.ID, info)
	require.NotNil(t, appErr)
	assert.Equal(t, http.StatusBadRequest, appErr.Code)
	assert.Contains(t, appErr.Message, "Email")
}

func TestBuild_SetStep(t *testing.T) {
	f := newBuildFixture()
	ctx := context.Background()
	b, _ := f.svc.CreateBuild(ctx, buyer, &models.CreateBuildRequest{ModelSlug: "magnolia", Selections: []models.Selection{sel("siding", "lap")}})

	_, appErr := f.svc.SetStep(ctx, buyer, b.ID, models.StepContract)
	require.NotNil(t, appErr)
	assert.Equal(t, http.StatusConflict, appErr.Code)
	assert.Contains(t, appErr.Message, "buyer_info")

	b, appErr = f.svc.SetStep(ctx, buyer, b.ID, models.StepBuyerInfo)
	require.Nil(t, appErr)
	assert.Equal(t, models.StepBuyerInfo, b.Step)

	b, appErr = f.svc.SetStep(ctx, buyer, b.ID, models.StepConfigure)
	require.Nil(t, appErr)
	assert.Equal(t, models.StepConfigure, b.Step)

	_, appErr = f.svc.SetStep(ctx, buyer, b.ID, 9)
	require.NotNil(t, appErr)
	assert.Equal(t, http.StatusBadRequest, appErr.Code)
}

func TestBuild_SignContract(t *testing.T) {
	f := newBuildFixture()
	ctx := context.Background()
	b, _ := f.svc.CreateBuild(ctx, buyer, &models.CreateBuildRequest{ModelSlug: "magnolia", Selections: []models.Selection{sel("siding", "lap")}})

	_, appErr := f.svc.SignContract(ctx, buyer, b.ID, &models.SignContractRequest{SignedName: "Jane", Accepted: false}, "")
	require.NotNil(t, appErr)
	assert.Equal(t, http.StatusBadRequest, appErr.Code)

	_, appErr = f.svc.SignContract(ctx, buyer, b.ID, &models.SignContractRequest{SignedName: "Jane", Accepted: true}, "")
	require.NotNil(t, appErr)
	assert.Equal(t, http.StatusConflict, appErr.Code)

	signed := f.readyBuild(t)
	assert.Equal(t, models.StepReview, signed.Step)
	require.NotNil(t, signed.Contract)
	assert.Equal(t, "2025-01", signed.Contract.Version)
	assert.Equal(t, signed.Pricing.Total, signed.Contract.PricingTotal)
	assert.Equal(t, "203.0.113.9", signed.Contract.IP)
}

func TestBuild_ReconfigureClearsContract(t *testing.T) {
	f := newBuildFixture()
	b := f.readyBuild(t)

	b, appErr := f.svc.UpdateConfiguration(context.Background(), buyer, b.ID, []models.Selection{sel("siding", "cedar"), sel("extras", "solar")})
	require.Nil(t, appErr)
	assert.Nil(t, b.Contract)
	assert.Equal(t, models.StepContract, b.Step)
}

func TestBuild_AccessControl(t *testing.T) {
	f := newBuildFixture()
	b, _ := f.svc.CreateBuild(context.Background(), buyer, &models.CreateBuildRequest{ModelSlug: "magnolia"})

	_, appErr := f.svc.GetBuild(context.Background(), stranger, b.ID)
	require.NotNil(t, appErr)
	assert.Equal(t, http.StatusForbidden, appErr.Code)

	got, appErr := f.svc.GetBuild(context.Background(), admin, b.ID)
	require.Nil(t, appErr)
	assert.Equal(t, b.ID, got.ID)
}

func TestBuild_Submit(t *testing.T) {
	f := newBuildFixture()
	b := f.readyBuild(t)

	o, created, appErr := f.svc.SubmitBuild(context.Background(), buyer, b.ID)
	require.Nil(t, appErr)
	assert.True(t, created)
	assert.Regexp(t, regexp.MustCompile(`^FF-\d{8}-[A-Z0-9]{6}$`), o.OrderNumber)
	assert.Equal(t, models.OrderStatusPendingPayment, o.Status)
	assert.Equal(t, models.ProductionNotStarted, o.ProductionStatus)
	assert.Equal(t, "Jane Buyer", o.Customer.Name)
	require.Len(t, o.Milestones, 2)
	assert.Equal(t, int64(1587500), o.Milestones[0].Amount)
	assert.Equal(t, int64(4762500), o.Milestones[1].Amount)
	require.Len(t, o.Timeline, 1)
	assert.Equal(t, services.EventOrderSubmitted, o.Timeline[0].Event)

	stored, _ := f.builds.FindByID(context.Background(), b.ID)
	assert.Equal(t, models.BuildStatusSubmitted, stored.Status)
	assert.Equal(t, o.ID, stored.OrderID)

	c, err := f.customers.FindByID(context.Background(), buyer.UserID)
	require.NoError(t, err)
	assert.Equal(t, 1, c.OrderCount)
	assert.Equal(t, []string{services.EventOrderSubmitted}, f.events.types())

	// Re-submitting returns the same order without creating another.
	again, created, appErr := f.svc.SubmitBuild(context.Background(), buyer, b.ID)
	require.Nil(t, appErr)
	assert.False(t, created)
	assert.Equal(t, o.ID, again.ID)
	assert.Len(t, f.orders.orders, 1)

	// Submitted builds are read-only.
	_, appErr = f.svc.SetStep(context.Background(), buyer, b.ID, models.StepConfigure)
	require.NotNil(t, appErr)
	assert.Equal(t, http.StatusConflict, appErr.Code)
}

func TestBuild_Submit_Incomplete(t *testing.T) {
	f := newBuildFixture()
	b, _ := f.svc.CreateBuild(context.Background(), buyer, &models.CreateBuildRequest{ModelSlug: "magnolia"})

	_, _, appErr := f.svc.SubmitBuild(context.Background(), buyer, b.ID)
	require.NotNil(t, appErr)
	assert.Equal(t, http.StatusConflict, appErr.Code)
	assert.Empty(t, f.orders.orders)
}

func TestBuild_Submit_PriceChangeRequiresResign(t *testing.T) {
	f := newBuildFixture()
	b := f.readyBuild(t)
	f.catalog.setPrice("model-magnolia", 6100000)

	_, _, appErr := f.svc.SubmitBuild(context.Background(), buyer, b.ID)
	require.NotNil(t, appErr)
	assert.Equal(t, http.StatusConflict, appErr.Code)

	stored, _ := f.builds.FindByID(context.Background(), b.ID)
	assert.Nil(t, stored.Contract)
	assert.Equal(t, int64(6450000), stored.Pricing.Total)
	assert.Equal(t, models.StepContract, stored.Step)
	assert.Empty(t, f.orders.orders)
}

func TestBuild_Submit_ConcurrentCreatesOneOrder(t *testing.T) {
	f := newBuildFixture()
	b := f.readyBuild(t)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, _ = f.svc.SubmitBuild(context.Background(), buyer, b.ID)
		}()
	}
	wg.Wait()

	assert.Len(t, f.orders.orders, 1)
}

func TestBuild_Cancel(t *testing.T) {
	f := newBuildFixture()
	b, _ := f.svc.CreateBuild(context.Background(), buyer, &models.CreateBuildRequest{ModelSlug: "magnolia"})

	require.Nil(t, f.svc.CancelBuild(context.Background(), buyer, b.ID))

	appErr := f.svc.CancelBuild(context.Background(), buyer, b.ID)
	require.NotNil(t, appErr)
	assert.Equal(t, http.StatusConflict, appErr.Code)
}
