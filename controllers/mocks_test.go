package controllers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/NoaSkape/firefly-estimator-sub005/analytics"
	"github.com/NoaSkape/firefly-estimator-sub005/common/auth"
	apperrors "github.com/NoaSkape/firefly-estimator-sub005/common/errors"
	"github.com/NoaSkape/firefly-estimator-sub005/middleware"
	"github.com/NoaSkape/firefly-estimator-sub005/models"
	"github.com/NoaSkape/firefly-estimator-sub005/repository"
	"github.com/NoaSkape/firefly-estimator-sub005/services"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var (
	buyer = auth.Identity{UserID: "user_buyer", Email: "ada@example.com", Role: auth.RoleCustomer}
	admin = auth.Identity{UserID: "user_admin", Role: auth.RoleAdmin}
)

// --- Helpers ---

// newRouter returns an engine whose requests carry who as the caller.
func newRouter(who auth.Identity) *gin.Engine {
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set(middleware.IdentityKey, who)
		c.Next()
	})
	return r
}

func do(r http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	var rd io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		rd = bytes.NewBufferString(b)
	default:
		raw, _ := json.Marshal(b)
		rd = bytes.NewBuffer(raw)
	}
	req := httptest.NewRequest(method, path, rd)
	if rd != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

// newRawRequest builds a request whose body is sent byte for byte.
func newRawRequest(method, path, body string) *http.Request {
	return httptest.NewRequest(method, path, bytes.NewBufferString(body))
}

func serve(r http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp
}

// --- Mock CatalogService ---

type mockCatalog struct {
	listFn    func(ctx context.Context, activeOnly bool) ([]models.HomeModel, *apperrors.Error)
	getFn     func(ctx context.Context, slug string) (*models.HomeModel, *apperrors.Error)
	getByIDFn func(ctx context.Context, id string) (*models.HomeModel, *apperrors.Error)
	quoteFn   func(ctx context.Context, slug string, selections []models.Selection) (*services.Quote, *apperrors.Error)
	createFn  func(ctx context.Context, req *models.UpsertModelRequest) (*models.HomeModel, *apperrors.Error)
	updateFn  func(ctx context.Context, id string, req *models.UpsertModelRequest) (*models.HomeModel, *apperrors.Error)
	deactFn   func(ctx context.Context, id string) *apperrors.Error
	presignFn func(ctx context.Context, id string, req *models.ImageUploadRequest) (*services.ImageUpload, *apperrors.Error)
	attachFn  func(ctx context.Context, id string, req *models.AttachImageRequest) (*models.HomeModel, *apperrors.Error)
}

func (m *mockCatalog) ListModels(ctx context.Context, activeOnly bool) ([]models.HomeModel, *apperrors.Error) {
	return m.listFn(ctx, activeOnly)
}
func (m *mockCatalog) GetModel(ctx context.Context, slug string) (*models.HomeModel, *apperrors.Error) {
	return m.getFn(ctx, slug)
}
func (m *mockCatalog) GetModelByID(ctx context.Context, id string) (*models.HomeModel, *apperrors.Error) {
	return m.getByIDFn(ctx, id)
}
func (m *mockCatalog) Quote(ctx context.Context, slug string, selections []models.Selection) (*services.Quote, *apperrors.Error) {
	return m.quoteFn(ctx, slug, selections)
}
func (m *mockCatalog) CreateModel(ctx context.Context, req *models.UpsertModelRequest) (*models.HomeModel, *apperrors.Error) {
	return m.createFn(ctx, req)
}
func (m *mockCatalog) UpdateModel(ctx context.Context, id string, req *models.UpsertModelRequest) (*models.HomeModel, *apperrors.Error) {
	return m.updateFn(ctx, id, req)
}
func (m *mockCatalog) DeactivateModel(ctx context.Context, id string) *apperrors.Error {
	return m.deactFn(ctx, id)
}
func (m *mockCatalog) PresignImageUpload(ctx context.Context, id string, req *models.ImageUploadRequest) (*services.ImageUpload, *apperrors.Error) {
	return m.presignFn(ctx, id, req)
}
func (m *mockCatalog) AttachImage(ctx context.Context, id string, req *models.AttachImageRequest) (*models.HomeModel, *apperrors.Error) {
	return m.attachFn(ctx, id, req)
}

// --- Mock BuildService ---

type mockBuilds struct {
	createFn  func(ctx context.Context, who auth.Identity, req *models.CreateBuildRequest) (*models.Build, *apperrors.Error)
	listFn    func(ctx context.Context, who auth.Identity) ([]models.Build, *apperrors.Error)
	listAllFn func(ctx context.Context, filter repository.BuildFilter, page, limit int) ([]models.Build, int64, *apperrors.Error)
	getFn     func(ctx context.Context, who auth.Identity, id string) (*models.Build, *apperrors.Error)
	configFn  func(ctx context.Context, who auth.Identity, id string, selections []models.Selection) (*models.Build, *apperrors.Error)
	buyerFn   func(ctx context.Context, who auth.Identity, id string, info *models.BuyerInfo) (*models.Build, *apperrors.Error)
	paymentFn func(ctx context.Context, who auth.Identity, id string, req *models.PaymentChoiceRequest) (*models.Build, *apperrors.Error)
	signFn    func(ctx context.Context, who auth.Identity, id string, req *models.SignContractRequest, ip string) (*models.Build, *apperrors.Error)
	stepFn    func(ctx context.Context, who auth.Identity, id string, step int) (*models.Build, *apperrors.Error)
	submitFn  func(ctx context.Context, who auth.Identity, id string) (*models.Order, bool, *apperrors.Error)
	cancelFn  func(ctx context.Context, who auth.Identity, id string) *apperrors.Error
}

func (m *mockBuilds) CreateBuild(ctx context.Context, who auth.Identity, req *models.CreateBuildRequest) (*models.Build, *apperrors.Error) {
	return m.createFn(ctx, who, req)
}
func (m *mockBuilds) ListBuilds(ctx context.Context, who auth.Identity) ([]models.Build, *apperrors.Error) {
	return m.listFn(ctx, who)
}
func (m *mockBuilds) ListAllBuilds(ctx context.Context, filter repository.BuildFilter, page, limit int) ([]models.Build, int64, *apperrors.Error) {
	return m.listAllFn(ctx, filter, page, limit)
}
func (m *mockBuilds) GetBuild(ctx context.Context, who auth.Identity, id string) (*models.Build, *apperrors.Error) {
	return m.getFn(ctx, who, id)
}
func (m *mockBuilds) UpdateConfiguration(ctx context.Context, who auth.Identity, id string, selections []models.Selection) (*models.Build, *apperrors.Error) {
	return m.configFn(ctx, who, id, selections)
}
func (m *mockBuilds) SetBuyerInfo(ctx context.Context, who auth.Identity, id string, info *models.BuyerInfo) (*models.Build, *apperrors.Error) {
	return m.buyerFn(ctx, who, id, info)
}
func (m *mockBuilds) SetPaymentMethod(ctx context.Context, who auth.Identity, id string, req *models.PaymentChoiceRequest) (*models.Build, *apperrors.Error) {
	return m.paymentFn(ctx, who, id, req)
}
func (m *mockBuilds) SignContract(ctx context.Context, who auth.Identity, id string, req *models.SignContractRequest, ip string) (*models.Build, *apperrors.Error) {
	return m.signFn(ctx, who, id, req, ip)
}
func (m *mockBuilds) SetStep(ctx context.Context, who auth.Identity, id string, step int) (*models.Build, *apperrors.Error) {
	return m.stepFn(ctx, who, id, step)
}
func (m *mockBuilds) SubmitBuild(ctx context.Context, who auth.Identity, id string) (*models.Order, bool, *apperrors.Error) {
	return m.submitFn(ctx, who, id)
}
func (m *mockBuilds) CancelBuild(ctx context.Context, who auth.Identity, id string) *apperrors.Error {
	return m.cancelFn(ctx, who, id)
}

// --- Mock OrderService ---

type mockOrders struct {
	listMineFn func(ctx context.Context, who auth.Identity) ([]models.Order, *apperrors.Error)
	getFn      func(ctx context.Context, who auth.Identity, id string) (*models.Order, *apperrors.Error)
	listFn     func(ctx context.Context, filter models.OrderFilter, page, limit int) ([]models.Order, int64, *apperrors.Error)
	prodFn     func(ctx context.Context, who auth.Identity, id string, req *models.UpdateProductionRequest) (*models.Order, *apperrors.Error)
	noteFn     func(ctx context.Context, who auth.Identity, id string, req *models.AddNoteRequest) (*models.Order, *apperrors.Error)
	cancelFn   func(ctx context.Context, who auth.Identity, id string) (*models.Order, *apperrors.Error)
}

func (m *mockOrders) ListMyOrders(ctx context.Context, who auth.Identity) ([]models.Order, *apperrors.Error) {
	return m.listMineFn(ctx, who)
}
func (m *mockOrders) GetOrder(ctx context.Context, who auth.Identity, id string) (*models.Order, *apperrors.Error) {
	return m.getFn(ctx, who, id)
}
func (m *mockOrders) ListOrders(ctx context.Context, filter models.OrderFilter, page, limit int) ([]models.Order, int64, *apperrors.Error) {
	return m.listFn(ctx, filter, page, limit)
}
func (m *mockOrders) UpdateProduction(ctx context.Context, who auth.Identity, id string, req *models.UpdateProductionRequest) (*models.Order, *apperrors.Error) {
	return m.prodFn(ctx, who, id, req)
}
func (m *mockOrders) AddNote(ctx context.Context, who auth.Identity, id string, req *models.AddNoteRequest) (*models.Order, *apperrors.Error) {
	return m.noteFn(ctx, who, id, req)
}
func (m *mockOrders) CancelOrder(ctx context.Context, who auth.Identity, id string) (*models.Order, *apperrors.Error) {
	return m.cancelFn(ctx, who, id)
}

// --- Mock PaymentService ---

type mockPayments struct {
	initiateFn func(ctx context.Context, who auth.Identity, orderID, milestone string, req *models.PayMilestoneRequest) (*models.PaymentInitiation, *apperrors.Error)
	webhookFn  func(ctx context.Context, payload []byte, signature string) *apperrors.Error
	listFn     func(ctx context.Context, status models.BankTransferStatus, page, limit int) ([]models.BankTransferIntent, int64, *apperrors.Error)
	confirmFn  func(ctx context.Context, who auth.Identity, id string) (*models.BankTransferIntent, *apperrors.Error)
	rejectFn   func(ctx context.Context, who auth.Identity, id string, req *models.RejectBankTransferRequest) (*models.BankTransferIntent, *apperrors.Error)
}

func (m *mockPayments) InitiateMilestonePayment(ctx context.Context, who auth.Identity, orderID, milestone string, req *models.PayMilestoneRequest) (*models.PaymentInitiation, *apperrors.Error) {
	return m.initiateFn(ctx, who, orderID, milestone, req)
}
func (m *mockPayments) HandleStripeWebhook(ctx context.Context, payload []byte, signature string) *apperrors.Error {
	return m.webhookFn(ctx, payload, signature)
}
func (m *mockPayments) ListBankTransfers(ctx context.Context, status models.BankTransferStatus, page, limit int) ([]models.BankTransferIntent, int64, *apperrors.Error) {
	return m.listFn(ctx, status, page, limit)
}
func (m *mockPayments) ConfirmBankTransfer(ctx context.Context, who auth.Identity, id string) (*models.BankTransferIntent, *apperrors.Error) {
	return m.confirmFn(ctx, who, id)
}
func (m *mockPayments) RejectBankTransfer(ctx context.Context, who auth.Identity, id string, req *models.RejectBankTransferRequest) (*models.BankTransferIntent, *apperrors.Error) {
	return m.rejectFn(ctx, who, id, req)
}

// --- Mock TrackingService and AnalyticsService ---

type mockTracking struct {
	trackFn func(ctx context.Context, ev *models.TrackEvent) *apperrors.Error
}

func (m *mockTracking) Track(ctx context.Context, ev *models.TrackEvent) *apperrors.Error {
	return m.trackFn(ctx, ev)
}
func (m *mockTracking) HandleMessage(context.Context, string) error { return nil }

type mockAnalytics struct {
	overviewFn    func(ctx context.Context, dr models.DateRange, tz string) (*models.Overview, *apperrors.Error)
	funnelFn      func(ctx context.Context, dr models.DateRange) (*models.Funnel, *apperrors.Error)
	forecastFn    func(ctx context.Context, months, horizon int) (*analytics.ForecastResult, *apperrors.Error)
	seasonFn      func(ctx context.Context, months int) (*services.SeasonalityReport, *apperrors.Error)
	clvFn         func(ctx context.Context, top int) ([]analytics.SegmentedCustomer, *apperrors.Error)
	orderValuesFn func(ctx context.Context, dr models.DateRange) (*services.OrderValueReport, *apperrors.Error)
}

func (m *mockAnalytics) Overview(ctx context.Context, dr models.DateRange, tz string) (*models.Overview, *apperrors.Error) {
	return m.overviewFn(ctx, dr, tz)
}
func (m *mockAnalytics) Funnel(ctx context.Context, dr models.DateRange) (*models.Funnel, *apperrors.Error) {
	return m.funnelFn(ctx, dr)
}
func (m *mockAnalytics) Forecast(ctx context.Context, months, horizon int) (*analytics.ForecastResult, *apperrors.Error) {
	return m.forecastFn(ctx, months, horizon)
}
func (m *mockAnalytics) Seasonality(ctx context.Context, months int) (*services.SeasonalityReport, *apperrors.Error) {
	return m.seasonFn(ctx, months)
}
func (m *mockAnalytics) CustomerValues(ctx context.Context, top int) ([]analytics.SegmentedCustomer, *apperrors.Error) {
	return m.clvFn(ctx, top)
}
func (m *mockAnalytics) OrderValues(ctx context.Context, dr models.DateRange) (*services.OrderValueReport, *apperrors.Error) {
	return m.orderValuesFn(ctx, dr)
}

// --- Mock CustomerService and ReportService ---

type mockCustomers struct {
	listFn func(ctx context.Context, page, limit int) ([]models.CustomerInsight, int64, *apperrors.Error)
	getFn  func(ctx context.Context, userID string) (*models.CustomerDetail, *apperrors.Error)
}

func (m *mockCustomers) ListCustomers(ctx context.Context, page, limit int) ([]models.CustomerInsight, int64, *apperrors.Error) {
	return m.listFn(ctx, page, limit)
}
func (m *mockCustomers) GetCustomer(ctx context.Context, userID string) (*models.CustomerDetail, *apperrors.Error) {
	return m.getFn(ctx, userID)
}

type mockReports struct {
	ordersFn func(ctx context.Context, w io.Writer, dr models.DateRange) *apperrors.Error
}

func (m *mockReports) OrdersCSV(ctx context.Context, w io.Writer, dr models.DateRange) *apperrors.Error {
	return m.ordersFn(ctx, w, dr)
}
