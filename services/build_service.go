package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/NoaSkape/firefly-estimator-sub005/common/auth"
	apperrors "github.com/NoaSkape/firefly-estimator-sub005/common/errors"
	"github.com/NoaSkape/firefly-estimator-sub005/models"
	aws_pkg "github.com/NoaSkape/firefly-estimator-sub005/pkg/aws"
	"github.com/NoaSkape/firefly-estimator-sub005/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const submitLockTTL = 30 * time.Second

// BuildConfig holds the checkout rules builds are priced and contracted under.
type BuildConfig struct {
	Rules           PricingRules
	ContractVersion string
	Currency        string
}

// BuildService defines the configurator and checkout operations.
type BuildService interface {
	CreateBuild(ctx context.Context, who auth.Identity, req *models.CreateBuildRequest) (*models.Build, *apperrors.Error)
	ListBuilds(ctx context.Context, who auth.Identity) ([]models.Build, *apperrors.Error)
	ListAllBuilds(ctx context.Context, filter repository.BuildFilter, page, limit int) ([]models.Build, int64, *apperrors.Error)
	GetBuild(ctx context.Context, who auth.Identity, id string) (*models.Build, *apperrors.Error)
	UpdateConfiguration(ctx context.Context, who auth.Identity, id string, selections []models.Selection) (*models.Build, *apperrors.Error)
	SetBuyerInfo(ctx context.Context, who auth.Identity, id string, info *models.BuyerInfo) (*models.Build, *apperrors.Error)
	SetPaymentMethod(ctx context.Context, who auth.Identity, id string, req *models.PaymentChoiceRequest) (*models.Build, *apperrors.Error)
	SignContract(ctx context.Context, who auth.Identity, id string, req *models.SignContractRequest, ip string) (*models.Build, *apperrors.Error)
	SetStep(ctx context.Context, who auth.Identity, id string, step int) (*models.Build, *apperrors.Error)
	// SubmitBuild turns a complete build into an order. created is false when
	// the build had already been submitted and the existing order is returned.
	SubmitBuild(ctx context.Context, who auth.Identity, id string) (order *models.Order, created bool, appErr *apperrors.Error)
	CancelBuild(ctx context.Context, who auth.Identity, id string) *apperrors.Error
}

type buildServiceImpl struct {
	builds    repository.BuildRepository
	catalog   repository.ModelRepository
	orders    repository.OrderRepository
	customers repository.CustomerRepository
	locker    repository.Locker
	events    EventPublisher
	metrics   Metrics
	cfg       BuildConfig
	logger    *zap.Logger
}

// NewBuildService creates a BuildService.
func NewBuildService(
	builds repository.BuildRepository,
	catalog repository.ModelRepository,
	orders repository.OrderRepository,
	customers repository.CustomerRepository,
	locker repository.Locker,
	events EventPublisher,
	metrics Metrics,
	cfg BuildConfig,
	logger *zap.Logger,
) BuildService {
	if events == nil {
		events = NoopEventPublisher{}
	}
	if locker == nil {
		locker = repository.NewLocalLocker()
	}
	return &buildServiceImpl{
		builds:    builds,
		catalog:   catalog,
		orders:    orders,
		customers: customers,
		locker:    locker,
		events:    events,
		metrics:   metricsOrNoop(metrics),
		cfg:       cfg,
		logger:    logger,
	}
}

func (s *buildServiceImpl) CreateBuild(ctx context.Context, who auth.Identity, req *models.CreateBuildRequest) (*models.Build, *apperrors.Error) {
	m, err := s.catalog.FindBySlug(ctx, req.ModelSlug)
	if err != nil {
		return nil, repoError(s.logger, err, "Model not found", "Failed to load model")
	}
	if !m.Active {
		return nil, apperrors.NotFound("Model not found")
	}
	q, appErr := Price(m, req.Selections, s.cfg.Rules)
	if appErr != nil {
		return nil, appErr
	}

	now := time.Now().UTC()
	b := &models.Build{
		ID:         uuid.NewString(),
		UserID:     who.UserID,
		ModelID:    m.ID,
		ModelSlug:  m.Slug,
		ModelName:  m.Name,
		Selections: q.Selections,
		Pricing:    q.Pricing,
		Missing:    q.Missing,
		Step:       models.StepConfigure,
		Status:     models.BuildStatusDraft,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.builds.Create(ctx, b); err != nil {
		s.logger.Error("Failed to create build", zap.Error(err))
		return nil, apperrors.Internal("Failed to create build", err)
	}
	s.logger.Info("Build created", zap.String("build_id", b.ID), zap.String("user_id", who.UserID), zap.String("model", m.Slug))
	return b, nil
}

func (s *buildServiceImpl) ListBuilds(ctx context.Context, who auth.Identity) ([]models.Build, *apperrors.Error) {
	list, err := s.builds.ListByUser(ctx, who.UserID)
	if err != nil {
		s.logger.Error("Failed to list builds", zap.Error(err))
		return nil, apperrors.Internal("Failed to list builds", err)
	}
	return list, nil
}

func (s *buildServiceImpl) ListAllBuilds(ctx context.Context, filter repository.BuildFilter, page, limit int) ([]models.Build, int64, *apperrors.Error) {
	list, total, err := s.builds.List(ctx, filter, page, limit)
	if err != nil {
		s.logger.Error("Failed to list builds", zap.Error(err))
		return nil, 0, apperrors.Internal("Failed to list builds", err)
	}
	return list, total, nil
}

func (s *buildServiceImpl) GetBuild(ctx context.Context, who auth.Identity, id string) (*models.Build, *apperrors.Error) {
	return s.load(ctx, who, id)
}

func (s *buildServiceImpl) UpdateConfiguration(ctx context.Context, who auth.Identity, id string, selections []models.Selection) (*models.Build, *apperrors.Error) {
	b, appErr := s.loadDraft(ctx, who, id)
	if appErr != nil {
		return nil, appErr
	}
	m, err := s.catalog.FindByID(ctx, b.ModelID)
	if err != nil {
		return nil, repoError(s.logger, err, "Model not found", "Failed to load model")
	}
	q, appErr := Price(m, selections, s.cfg.Rules)
	if appErr != nil {
		return nil, appErr
	}

	b.Selections = q.Selections
	b.Missing = q.Missing
	b.Pricing = q.Pricing
	if b.Contract != nil && b.Contract.PricingTotal != b.Pricing.Total {
		b.Contract = nil
	}
	return s.save(ctx, b, b.Step)
}

func (s *buildServiceImpl) SetBuyerInfo(ctx context.Context, who auth.Identity, id string, info *models.BuyerInfo) (*models.Build, *apperrors.Error) {
	b, appErr := s.loadDraft(ctx, who, id)
	if appErr != nil {
		return nil, appErr
	}

	clean := normalizeBuyer(info)
	if err := validate.Struct(clean); err != nil {
		return nil, validationError(err)
	}
	if clean.DeliveryAddress == nil {
		addr := clean.Address
		clean.DeliveryAddress = &addr
	}
	b.Buyer = clean
	return s.save(ctx, b, max(b.Step, models.StepPaymentMethod))
}

func (s *buildServiceImpl) SetPaymentMethod(ctx context.Context, who auth.Identity, id string, req *models.PaymentChoiceRequest) (*models.Build, *apperrors.Error) {
	if !req.Method.Valid() {
		return nil, apperrors.BadRequest("Payment method must be one of card, ach, bank_transfer")
	}
	if !req.Plan.Valid() {
		return nil, apperrors.BadRequest("Payment plan must be deposit or full")
	}
	b, appErr := s.loadDraft(ctx, who, id)
	if appErr != nil {
		return nil, appErr
	}
	b.Payment = &models.PaymentChoice{Method: req.Method, Plan: req.Plan}
	return s.save(ctx, b, max(b.Step, models.StepContract))
}

func (s *buildServiceImpl) SignContract(ctx context.Context, who auth.Identity, id string, req *models.SignContractRequest, ip string) (*models.Build, *apperrors.Error) {
	if !req.Accepted {
		return nil, apperrors.BadRequest("The purchase agreement must be accepted")
	}
	name := sanitize(req.SignedName)
	if name == "" || len(name) > 120 {
		return nil, apperrors.BadRequest("Signed name is required")
	}

	b, appErr := s.loadDraft(ctx, who, id)
	if appErr != nil {
		return nil, appErr
	}
	if len(b.Missing) > 0 || b.Buyer == nil || b.Payment == nil {
		return nil, apperrors.Conflict("Complete the configuration, buyer info and payment method before signing")
	}

	b.Contract = &models.Contract{
		Version:      s.cfg.ContractVersion,
		SignedName:   name,
		SignedAt:     time.Now().UTC(),
		IP:           ip,
		PricingTotal: b.Pricing.Total,
	}
	return s.save(ctx, b, models.StepReview)
}

func (s *buildServiceImpl) SetStep(ctx context.Context, who auth.Identity, id string, step int) (*models.Build, *apperrors.Error) {
	if step < models.StepConfigure || step > models.StepReview {
		return nil, apperrors.BadRequest("Step must be between 1 and 5")
	}
	b, appErr := s.loadDraft(ctx, who, id)
	if appErr != nil {
		return nil, appErr
	}
	if step > b.Step {
		if first := b.FirstIncompleteStep(); step > first {
			return nil, apperrors.Conflict(fmt.Sprintf("Complete the %s step first", models.StepName(first)))
		}
	}
	b.Step = step
	if err := s.builds.SaveDraft(ctx, b); err != nil {
		return nil, repoError(s.logger, err, "Build not found", "Failed to save build")
	}
	return b, nil
}

func (s *buildServiceImpl) SubmitBuild(ctx context.Context, who auth.Identity, id string) (*models.Order, bool, *apperrors.Error) {
	release, err := s.locker.Acquire(ctx, "submit:"+id, submitLockTTL)
	if errors.Is(err, repository.ErrLocked) {
		return nil, false, apperrors.Conflict("This build is already being submitted")
	}
	if err != nil {
		s.logger.Error("Failed to acquire submit lock", zap.String("build_id", id), zap.Error(err))
		return nil, false, apperrors.Internal("Failed to submit build", err)
	}
	defer release()

	b, appErr := s.load(ctx, who, id)
	if appErr != nil {
		return nil, false, appErr
	}
	switch b.Status {
	case models.BuildStatusSubmitted:
		o, err := s.orders.FindByBuildID(ctx, b.ID)
		if err != nil {
			return nil, false, repoError(s.logger, err, "Order not found", "Failed to load order")
		}
		return o, false, nil
	case models.BuildStatusCancelled:
		return nil, false, apperrors.Conflict("Build has been cancelled")
	}
	if !b.ReadyToSubmit() {
		return nil, false, apperrors.Conflict(fmt.Sprintf("Complete the %s step before submitting", models.StepName(b.FirstIncompleteStep())))
	}

	// Catalog prices may have moved since the contract was signed.
	m, err := s.catalog.FindByID(ctx, b.ModelID)
	if err != nil || !m.Active {
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			s.logger.Error("Failed to load model", zap.Error(err))
			return nil, false, apperrors.Internal("Failed to submit build", err)
		}
		return nil, false, apperrors.Conflict("This model is no longer available")
	}
	q, appErr := Price(m, b.Selections, s.cfg.Rules)
	if appErr != nil {
		return nil, false, apperrors.Conflict("The selected options are no longer available")
	}
	if q.Pricing.Total != b.Pricing.Total {
		b.Pricing = q.Pricing
		b.Missing = q.Missing
		b.Contract = nil
		if _, appErr := s.save(ctx, b, b.Step); appErr != nil {
			return nil, false, appErr
		}
		return nil, false, apperrors.Conflict("Pricing has changed; please review and sign the agreement again")
	}

	o := s.newOrder(b)
	if err := s.orders.Create(ctx, o); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			existing, findErr := s.orders.FindByBuildID(ctx, b.ID)
			if findErr == nil {
				return existing, false, nil
			}
		}
		s.logger.Error("Failed to create order", zap.String("build_id", b.ID), zap.Error(err))
		return nil, false, apperrors.Internal("Failed to submit build", err)
	}

	if err := s.builds.MarkSubmitted(ctx, b.ID, o.ID); err != nil {
		// The order exists; a retry finds it by build id.
		s.logger.Error("Failed to mark build submitted", zap.String("build_id", b.ID), zap.String("order_id", o.ID), zap.Error(err))
	}
	if err := s.customers.RecordOrder(ctx, repository.CustomerOrder{
		UserID:  o.UserID,
		Email:   o.Customer.Email,
		Name:    o.Customer.Name,
		Phone:   o.Customer.Phone,
		OrderAt: o.CreatedAt,
	}); err != nil {
		s.logger.Error("Failed to record customer", zap.String("user_id", o.UserID), zap.Error(err))
	}

	s.events.Publish(ctx, Event{
		Type:    EventOrderSubmitted,
		OrderID: o.ID,
		UserID:  o.UserID,
		Amount:  o.Pricing.Total,
		Status:  string(o.Status),
	})
	emit(s.logger, func(ctx context.Context) error {
		dims := map[string]string{"model": o.ModelSlug, "plan": string(o.PaymentPlan)}
		if err := s.metrics.RecordCount(ctx, aws_pkg.MetricOrdersSubmitted, dims); err != nil {
			return err
		}
		return s.metrics.RecordValue(ctx, aws_pkg.MetricOrderValue, float64(o.Pricing.Total)/100, dims)
	})

	s.logger.Info("Build submitted",
		zap.String("build_id", b.ID),
		zap.String("order_id", o.ID),
		zap.String("order_number", o.OrderNumber),
		zap.Int64("total", o.Pricing.Total),
	)
	return o, true, nil
}

func (s *buildServiceImpl) CancelBuild(ctx context.Context, who auth.Identity, id string) *apperrors.Error {
	if _, appErr := s.loadDraft(ctx, who, id); appErr != nil {
		return appErr
	}
	if err := s.builds.Cancel(ctx, id); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return apperrors.Conflict("Only draft builds can be cancelled")
		}
		return repoError(s.logger, err, "Build not found", "Failed to cancel build")
	}
	s.logger.Info("Build cancelled", zap.String("build_id", id), zap.String("by", who.UserID))
	return nil
}

func (s *buildServiceImpl) newOrder(b *models.Build) *models.Order {
	now := time.Now().UTC()
	delivery := b.Buyer.Address
	if b.Buyer.DeliveryAddress != nil {
		delivery = *b.Buyer.DeliveryAddress
	}
	return &models.Order{
		ID:          uuid.NewString(),
		OrderNumber: orderNumber(now),
		BuildID:     b.ID,
		UserID:      b.UserID,
		Customer: models.OrderCustomer{
			Name:  b.Buyer.FullName(),
			Email: b.Buyer.Email,
			Phone: b.Buyer.Phone,
		},
		DeliveryAddress:  delivery,
		ModelSlug:        b.ModelSlug,
		ModelName:        b.ModelName,
		Selections:       b.Selections,
		Pricing:          b.Pricing,
		Currency:         s.cfg.Currency,
		PaymentPlan:      b.Payment.Plan,
		PaymentMethod:    b.Payment.Method,
		Milestones:       Milestones(b.Pricing.Total, b.Payment.Plan, s.cfg.Rules.DepositPercent),
		Status:           models.OrderStatusPendingPayment,
		ProductionStatus: models.ProductionNotStarted,
		ContractVersion:  b.Contract.Version,
		Timeline: []models.TimelineEntry{{
			At:     now,
			Actor:  b.UserID,
			Event:  EventOrderSubmitted,
			Detail: fmt.Sprintf("%s, %s plan via %s", b.ModelName, b.Payment.Plan, b.Payment.Method),
		}},
		Notes:     []models.OrderNote{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// load fetches a build the caller may see.
func (s *buildServiceImpl) load(ctx context.Context, who auth.Identity, id string) (*models.Build, *apperrors.Error) {
	b, err := s.builds.FindByID(ctx, id)
	if err != nil {
		return nil, repoError(s.logger, err, "Build not found", "Failed to load build")
	}
	if b.UserID != who.UserID && !who.IsAdmin() {
		return nil, apperrors.Forbidden("You do not have access to this build")
	}
	return b, nil
}

func (s *buildServiceImpl) loadDraft(ctx context.Context, who auth.Identity, id string) (*models.Build, *apperrors.Error) {
	b, appErr := s.load(ctx, who, id)
	if appErr != nil {
		return nil, appErr
	}
	if b.Status != models.BuildStatusDraft {
		return nil, apperrors.Conflict("Build is no longer editable")
	}
	return b, nil
}

// save stores b at the requested step, held back to the first incomplete one.
func (s *buildServiceImpl) save(ctx context.Context, b *models.Build, step int) (*models.Build, *apperrors.Error) {
	b.Step = min(step, b.FirstIncompleteStep())
	if err := s.builds.SaveDraft(ctx, b); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, apperrors.Conflict("Build is no longer editable")
		}
		return nil, repoError(s.logger, err, "Build not found", "Failed to save build")
	}
	return b, nil
}

func normalizeBuyer(in *models.BuyerInfo) *models.BuyerInfo {
	out := &models.BuyerInfo{
		FirstName: sanitize(in.FirstName),
		LastName:  sanitize(in.LastName),
		Email:     strings.ToLower(strings.TrimSpace(in.Email)),
		Phone:     strings.TrimSpace(in.Phone),
		Address:   normalizeAddress(in.Address),
		Notes:     sanitize(in.Notes),
	}
	if in.DeliveryAddress != nil {
		addr := normalizeAddress(*in.DeliveryAddress)
		out.DeliveryAddress = &addr
	}
	return out
}

func normalizeAddress(a models.Address) models.Address {
	return models.Address{
		Line1: sanitize(a.Line1),
		Line2: sanitize(a.Line2),
		City:  sanitize(a.City),
		State: strings.ToUpper(strings.TrimSpace(a.State)),
		Zip:   strings.TrimSpace(a.Zip),
	}
}

// orderNumber formats FF-YYYYMMDD-XXXXXX.
func orderNumber(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:6])
	return fmt.Sprintf("FF-%s-%s", now.Format("20060102"), suffix)
}
