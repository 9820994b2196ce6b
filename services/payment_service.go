package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
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

const payLockTTL = 30 * time.Second

// PaymentConfig holds the currency and wire details used for payments.
type PaymentConfig struct {
	Currency string
	Bank     models.WireInstructions
}

// PaymentService defines milestone payment operations, the Stripe webhook
// and the manual bank-transfer desk.
type PaymentService interface {
	InitiateMilestonePayment(ctx context.Context, who auth.Identity, orderID, milestone string, req *models.PayMilestoneRequest) (*models.PaymentInitiation, *apperrors.Error)
	HandleStripeWebhook(ctx context.Context, payload []byte, signature string) *apperrors.Error
	ListBankTransfers(ctx context.Context, status models.BankTransferStatus, page, limit int) ([]models.BankTransferIntent, int64, *apperrors.Error)
	ConfirmBankTransfer(ctx context.Context, who auth.Identity, id string) (*models.BankTransferIntent, *apperrors.Error)
	RejectBankTransfer(ctx context.Context, who auth.Identity, id string, req *models.RejectBankTransferRequest) (*models.BankTransferIntent, *apperrors.Error)
}

type paymentServiceImpl struct {
	orders    repository.OrderRepository
	transfers repository.BankTransferRepository
	customers repository.CustomerRepository
	gateway   PaymentGateway
	locker    repository.Locker
	events    EventPublisher
	metrics   Metrics
	cfg       PaymentConfig
	logger    *zap.Logger
}

// NewPaymentService creates a PaymentService.
func NewPaymentService(
	orders repository.OrderRepository,
	transfers repository.BankTransferRepository,
	customers repository.CustomerRepository,
	gateway PaymentGateway,
	locker repository.Locker,
	events EventPublisher,
	metrics Metrics,
	cfg PaymentConfig,
	logger *zap.Logger,
) PaymentService {
	if events == nil {
		events = NoopEventPublisher{}
	}
	if locker == nil {
		locker = repository.NewLocalLocker()
	}
	if cfg.Currency == "" {
		cfg.Currency = "usd"
	}
	return &paymentServiceImpl{
		orders:    orders,
		transfers: transfers,
		customers: customers,
		gateway:   gateway,
		locker:    locker,
		events:    events,
		metrics:   metricsOrNoop(metrics),
		cfg:       cfg,
		logger:    logger,
	}
}

// InitiateMilestonePayment starts paying one milestone by card, ACH or wire.
// A milestone already in flight with the same method returns the existing
// intent or instructions.
func (s *paymentServiceImpl) InitiateMilestonePayment(ctx context.Context, who auth.Identity, orderID, milestone string, req *models.PayMilestoneRequest) (*models.PaymentInitiation, *apperrors.Error) {
	if req.Method != "" && !req.Method.Valid() {
		return nil, apperrors.BadRequest(fmt.Sprintf("Unsupported payment method %q", req.Method))
	}

	release, err := s.locker.Acquire(ctx, "pay:"+orderID+":"+milestone, payLockTTL)
	if errors.Is(err, repository.ErrLocked) {
		return nil, apperrors.Conflict("A payment for this milestone is already being started")
	}
	if err != nil {
		s.logger.Error("Failed to acquire payment lock", zap.String("order_id", orderID), zap.Error(err))
		return nil, apperrors.Internal("Failed to start payment", err)
	}
	defer release()

	o, appErr := loadOrder(ctx, s.orders, s.logger, who, orderID)
	if appErr != nil {
		return nil, appErr
	}
	name := models.MilestoneName(milestone)
	m, _ := o.Milestone(name)
	if m == nil {
		return nil, apperrors.NotFound("Milestone not found")
	}
	method := req.Method
	if method == "" {
		method = o.PaymentMethod
	}

	switch {
	case o.Status == models.OrderStatusCancelled:
		return nil, apperrors.Conflict("Order is cancelled")
	case m.Status == models.MilestonePaid:
		return nil, apperrors.Conflict("Milestone is already paid")
	case name == models.MilestoneFinal && !depositPaid(o):
		return nil, apperrors.Conflict("The deposit must be paid before the final payment")
	}

	if m.Status == models.MilestoneProcessing {
		if m.Method != method {
			return nil, apperrors.Conflict(fmt.Sprintf("A %s payment is already in progress for this milestone", m.Method))
		}
		if existing, appErr := s.resume(ctx, o, m); existing != nil || appErr != nil {
			return existing, appErr
		}
	}

	var out *models.PaymentInitiation
	if method == models.PaymentMethodBankTransfer {
		out, appErr = s.startBankTransfer(ctx, who, o, m)
	} else {
		out, appErr = s.startIntent(ctx, who, o, m, method)
	}
	if appErr != nil {
		return nil, appErr
	}

	emit(s.logger, func(ctx context.Context) error {
		return s.metrics.RecordCount(ctx, aws_pkg.MetricPaymentInitiated, map[string]string{"method": string(method)})
	})
	s.logger.Info("Milestone payment initiated",
		zap.String("order_id", o.ID),
		zap.String("milestone", string(name)),
		zap.String("method", string(method)),
		zap.Int64("amount", m.Amount),
	)
	return out, nil
}

// resume returns the in-flight payment for m, or nil when it can no longer
// be found and a new one should be started.
func (s *paymentServiceImpl) resume(ctx context.Context, o *models.Order, m *models.Milestone) (*models.PaymentInitiation, *apperrors.Error) {
	out := &models.PaymentInitiation{
		OrderID:   o.ID,
		Milestone: m.Name,
		Method:    m.Method,
		Amount:    m.Amount,
		Currency:  s.currency(o),
	}
	if m.Method == models.PaymentMethodBankTransfer {
		bt, err := s.transfers.FindPending(ctx, o.ID, m.Name)
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil
		}
		if err != nil {
			s.logger.Error("Failed to load bank transfer", zap.String("order_id", o.ID), zap.Error(err))
			return nil, apperrors.Internal("Failed to load bank transfer", err)
		}
		out.BankTransfer = bt
		return out, nil
	}

	if m.IntentID == "" {
		return nil, nil
	}
	intent, err := s.gateway.GetIntent(ctx, m.IntentID)
	if err != nil {
		s.logger.Error("Failed to load payment intent", zap.String("intent_id", m.IntentID), zap.Error(err))
		return nil, apperrors.Internal("Failed to load payment", err)
	}
	out.ClientSecret = intent.ClientSecret
	out.PaymentIntentID = intent.ID
	return out, nil
}

func (s *paymentServiceImpl) startIntent(ctx context.Context, who auth.Identity, o *models.Order, m *models.Milestone, method models.PaymentMethod) (*models.PaymentInitiation, *apperrors.Error) {
	intent, err := s.gateway.CreateIntent(ctx, IntentRequest{
		Amount:   m.Amount,
		Currency: s.currency(o),
		Method:   method,
		Metadata: map[string]string{
			"order_id":  o.ID,
			"milestone": string(m.Name),
			"user_id":   o.UserID,
			"build_id":  o.BuildID,
		},
		IdempotencyKey: fmt.Sprintf("%s:%s:%s", o.ID, m.Name, uuid.NewString()),
	})
	if err != nil {
		s.logger.Error("Failed to create payment intent",
			zap.String("order_id", o.ID),
			zap.String("milestone", string(m.Name)),
			zap.Error(err),
		)
		return nil, apperrors.New(http.StatusBadGateway, "Payment provider unavailable", err)
	}

	if _, appErr := s.markProcessing(ctx, who, o.ID, m, map[string]interface{}{
		"method":           method,
		"intent_id":        intent.ID,
		"bank_transfer_id": "",
	}); appErr != nil {
		return nil, appErr
	}

	return &models.PaymentInitiation{
		OrderID:         o.ID,
		Milestone:       m.Name,
		Method:          method,
		Amount:          m.Amount,
		Currency:        s.currency(o),
		ClientSecret:    intent.ClientSecret,
		PaymentIntentID: intent.ID,
	}, nil
}

func (s *paymentServiceImpl) startBankTransfer(ctx context.Context, who auth.Identity, o *models.Order, m *models.Milestone) (*models.PaymentInitiation, *apperrors.Error) {
	now := time.Now().UTC()
	ref := referenceCode()
	instructions := s.cfg.Bank
	instructions.Reference = ref

	bt := &models.BankTransferIntent{
		ID:            uuid.NewString(),
		OrderID:       o.ID,
		OrderNumber:   o.OrderNumber,
		UserID:        o.UserID,
		Milestone:     m.Name,
		Amount:        m.Amount,
		Currency:      s.currency(o),
		ReferenceCode: ref,
		Status:        models.BankTransferPending,
		Instructions:  instructions,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.transfers.Create(ctx, bt); err != nil {
		s.logger.Error("Failed to create bank transfer", zap.String("order_id", o.ID), zap.Error(err))
		return nil, apperrors.Internal("Failed to create bank transfer", err)
	}

	if _, appErr := s.markProcessing(ctx, who, o.ID, m, map[string]interface{}{
		"method":           models.PaymentMethodBankTransfer,
		"bank_transfer_id": bt.ID,
		"intent_id":        "",
	}); appErr != nil {
		return nil, appErr
	}

	emit(s.logger, func(ctx context.Context) error {
		return s.metrics.RecordValue(ctx, aws_pkg.MetricBankTransferPending, float64(bt.Amount)/100, nil)
	})
	return &models.PaymentInitiation{
		OrderID:      o.ID,
		Milestone:    m.Name,
		Method:       models.PaymentMethodBankTransfer,
		Amount:       m.Amount,
		Currency:     s.currency(o),
		BankTransfer: bt,
	}, nil
}

func (s *paymentServiceImpl) markProcessing(ctx context.Context, who auth.Identity, orderID string, m *models.Milestone, fields map[string]interface{}) (*models.Order, *apperrors.Error) {
	fields["status"] = models.MilestoneProcessing
	fields["failure_reason"] = ""
	o, err := s.orders.UpdateMilestone(ctx, orderID, m.Name,
		[]models.MilestoneStatus{models.MilestonePending, models.MilestoneFailed, models.MilestoneProcessing},
		fields,
		&models.TimelineEntry{
			At:     time.Now().UTC(),
			Actor:  who.UserID,
			Event:  "payment_initiated",
			Detail: fmt.Sprintf("%s via %s", m.Name, fields["method"]),
		},
	)
	if err != nil {
		return nil, repoError(s.logger, err, "Order not found", "Failed to update milestone")
	}
	return o, nil
}

// HandleStripeWebhook applies a verified PaymentIntent event to its
// milestone. Paid is terminal and repeated deliveries are no-ops.
func (s *paymentServiceImpl) HandleStripeWebhook(ctx context.Context, payload []byte, signature string) *apperrors.Error {
	ev, err := s.gateway.ParseWebhook(payload, signature)
	if err != nil {
		s.logger.Warn("Stripe webhook signature verification failed", zap.Error(err))
		return apperrors.BadRequest("Invalid webhook signature")
	}

	s.logger.Info("Processing Stripe webhook",
		zap.String("event_type", ev.Type),
		zap.String("event_id", ev.ID),
	)

	switch ev.Type {
	case StripeIntentSucceeded, StripeIntentProcessing, StripeIntentFailed:
	default:
		s.logger.Info("Unhandled webhook event type", zap.String("event_type", ev.Type))
		return nil
	}

	o, name, ok := s.intentMilestone(ctx, ev)
	if !ok {
		return nil
	}
	m, _ := o.Milestone(name)
	// A milestone waiting on a wire has no live Stripe intent.
	stale := m.Method == models.PaymentMethodBankTransfer ||
		(m.IntentID != "" && m.IntentID != ev.IntentID)

	var updateErr error
	switch ev.Type {
	case StripeIntentSucceeded:
		// A stale intent that succeeded still moved money.
		_, updateErr = s.settle(ctx, o, name, "stripe", "payment_intent "+ev.IntentID)
	case StripeIntentProcessing:
		if stale {
			s.logStale(ev, m)
			break
		}
		_, updateErr = s.orders.UpdateMilestone(ctx, o.ID, name,
			[]models.MilestoneStatus{models.MilestonePending, models.MilestoneFailed, models.MilestoneProcessing},
			map[string]interface{}{"status": models.MilestoneProcessing, "intent_id": ev.IntentID},
			nil,
		)
	case StripeIntentFailed:
		if stale {
			s.logStale(ev, m)
			break
		}
		reason := ev.FailureReason
		if reason == "" {
			reason = "Payment failed"
		}
		_, updateErr = s.orders.UpdateMilestone(ctx, o.ID, name,
			[]models.MilestoneStatus{models.MilestonePending, models.MilestoneProcessing},
			map[string]interface{}{"status": models.MilestoneFailed, "failure_reason": reason},
			&models.TimelineEntry{At: time.Now().UTC(), Actor: "stripe", Event: "payment_failed", Detail: reason},
		)
		if updateErr == nil {
			emit(s.logger, func(ctx context.Context) error {
				return s.metrics.RecordCount(ctx, aws_pkg.MetricPaymentFailed, map[string]string{"method": string(m.Method)})
			})
		}
	}
	switch {
	case updateErr == nil:
		return nil
	case errors.Is(updateErr, repository.ErrConflict):
		s.logger.Info("Skipping duplicate payment webhook",
			zap.String("order_id", o.ID),
			zap.String("milestone", string(name)),
			zap.String("event_type", ev.Type),
		)
		return nil
	case errors.Is(updateErr, repository.ErrNotFound):
		return nil
	default:
		s.logger.Error("Failed to apply payment webhook", zap.String("order_id", o.ID), zap.Error(updateErr))
		return apperrors.Internal("Failed to apply payment webhook", updateErr)
	}
}

func (s *paymentServiceImpl) logStale(ev *WebhookEvent, m *models.Milestone) {
	s.logger.Info("Ignoring webhook for superseded payment intent",
		zap.String("event_type", ev.Type),
		zap.String("intent_id", ev.IntentID),
		zap.String("current_intent_id", m.IntentID),
	)
}

// intentMilestone finds the order and milestone an intent pays for, from
// metadata first and the stored intent id second.
func (s *paymentServiceImpl) intentMilestone(ctx context.Context, ev *WebhookEvent) (*models.Order, models.MilestoneName, bool) {
	var (
		o   *models.Order
		err error
	)
	name := models.MilestoneName(ev.Metadata["milestone"])
	if id := ev.Metadata["order_id"]; id != "" {
		o, err = s.orders.FindByID(ctx, id)
	} else if ev.IntentID != "" {
		o, err = s.orders.FindByIntentID(ctx, ev.IntentID)
	} else {
		err = repository.ErrNotFound
	}
	if err != nil {
		s.logger.Warn("Order not found for payment intent",
			zap.String("intent_id", ev.IntentID),
			zap.Any("metadata", ev.Metadata),
			zap.Error(err),
		)
		return nil, "", false
	}

	if name == "" {
		for _, m := range o.Milestones {
			if m.IntentID == ev.IntentID {
				name = m.Name
				break
			}
		}
	}
	if m, _ := o.Milestone(name); m == nil {
		s.logger.Warn("Milestone not found for payment intent",
			zap.String("order_id", o.ID),
			zap.String("intent_id", ev.IntentID),
			zap.String("milestone", string(name)),
		)
		return nil, "", false
	}
	return o, name, true
}

// settle marks a milestone paid and records what follows from it: the
// customer's paid total, the milestone_paid event and the success metric.
func (s *paymentServiceImpl) settle(ctx context.Context, o *models.Order, name models.MilestoneName, actor, detail string) (*models.Order, error) {
	now := time.Now().UTC()
	updated, err := s.orders.UpdateMilestone(ctx, o.ID, name,
		[]models.MilestoneStatus{models.MilestonePending, models.MilestoneProcessing, models.MilestoneFailed},
		map[string]interface{}{"status": models.MilestonePaid, "paid_at": now, "failure_reason": ""},
		&models.TimelineEntry{At: now, Actor: actor, Event: EventMilestonePaid, Detail: fmt.Sprintf("%s: %s", name, detail)},
	)
	if err != nil {
		return nil, err
	}

	m, _ := updated.Milestone(name)
	if err := s.customers.AddPayment(ctx, updated.UserID, m.Amount); err != nil {
		s.logger.Error("Failed to update customer lifetime value", zap.String("user_id", updated.UserID), zap.Error(err))
	}
	s.events.Publish(ctx, Event{
		Type:      EventMilestonePaid,
		OrderID:   updated.ID,
		UserID:    updated.UserID,
		Milestone: string(name),
		Amount:    m.Amount,
		Status:    string(updated.Status),
	})
	emit(s.logger, func(ctx context.Context) error {
		return s.metrics.RecordCount(ctx, aws_pkg.MetricPaymentSucceeded, map[string]string{"method": string(m.Method)})
	})
	s.logger.Info("Milestone paid",
		zap.String("order_id", updated.ID),
		zap.String("milestone", string(name)),
		zap.Int64("amount", m.Amount),
		zap.String("order_status", string(updated.Status)),
	)
	return updated, nil
}

func depositPaid(o *models.Order) bool {
	m, _ := o.Milestone(models.MilestoneDeposit)
	return m != nil && m.Status == models.MilestonePaid
}

// referenceCode returns FF- and eight uppercase hex characters.
func referenceCode() string {
	return "FF-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}

func (s *paymentServiceImpl) currency(o *models.Order) string {
	if o.Currency != "" {
		return o.Currency
	}
	return s.cfg.Currency
}
