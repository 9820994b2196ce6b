package models

import "time"

type MilestoneName string

const (
	MilestoneDeposit MilestoneName = "deposit"
	MilestoneFinal   MilestoneName = "final"
	MilestoneFull    MilestoneName = "full"
)

type MilestoneStatus string

const (
	MilestonePending    MilestoneStatus = "pending"
	MilestoneProcessing MilestoneStatus = "processing"
	MilestonePaid       MilestoneStatus = "paid"
	MilestoneFailed     MilestoneStatus = "failed"
)

// Milestone is a named payment installment of an order.
type Milestone struct {
	Name           MilestoneName   `bson:"name" json:"name"`
	Amount         int64           `bson:"amount" json:"amount"`
	Status         MilestoneStatus `bson:"status" json:"status"`
	Method         PaymentMethod   `bson:"method,omitempty" json:"method,omitempty"`
	IntentID       string          `bson:"intent_id,omitempty" json:"intent_id,omitempty"`
	BankTransferID string          `bson:"bank_transfer_id,omitempty" json:"bank_transfer_id,omitempty"`
	PaidAt         *time.Time      `bson:"paid_at,omitempty" json:"paid_at,omitempty"`
	FailureReason  string          `bson:"failure_reason,omitempty" json:"failure_reason,omitempty"`
}

type OrderStatus string

const (
	OrderStatusPendingPayment OrderStatus = "pending_payment"
	OrderStatusDepositPaid    OrderStatus = "deposit_paid"
	OrderStatusPaidInFull     OrderStatus = "paid_in_full"
	OrderStatusCancelled      OrderStatus = "cancelled"
)

type ProductionStatus string

const (
	ProductionNotStarted       ProductionStatus = "not_started"
	ProductionQueued           ProductionStatus = "queued"
	ProductionInProduction     ProductionStatus = "in_production"
	ProductionQualityCheck     ProductionStatus = "quality_check"
	ProductionReadyForDelivery ProductionStatus = "ready_for_delivery"
	ProductionDelivered        ProductionStatus = "delivered"
)

// Valid reports whether s is a known production status.
func (s ProductionStatus) Valid() bool {
	switch s {
	case ProductionNotStarted, ProductionQueued, ProductionInProduction,
		ProductionQualityCheck, ProductionReadyForDelivery, ProductionDelivered:
		return true
	}
	return false
}

type OrderCustomer struct {
	Name  string `bson:"name" json:"name"`
	Email string `bson:"email" json:"email"`
	Phone string `bson:"phone" json:"phone"`
}

// TimelineEntry is an append-only audit record on an order.
type TimelineEntry struct {
	At     time.Time `bson:"at" json:"at"`
	Actor  string    `bson:"actor" json:"actor"`
	Event  string    `bson:"event" json:"event"`
	Detail string    `bson:"detail,omitempty" json:"detail,omitempty"`
}

type OrderNote struct {
	At     time.Time `bson:"at" json:"at"`
	Author string    `bson:"author" json:"author"`
	Body   string    `bson:"body" json:"body"`
}

// Order is created when a build is submitted.
type Order struct {
	ID               string           `bson:"_id" json:"id"`
	OrderNumber      string           `bson:"order_number" json:"order_number"`
	BuildID          string           `bson:"build_id" json:"build_id"`
	UserID           string           `bson:"user_id" json:"user_id"`
	Customer         OrderCustomer    `bson:"customer" json:"customer"`
	DeliveryAddress  Address          `bson:"delivery_address" json:"delivery_address"`
	ModelSlug        string           `bson:"model_slug" json:"model_slug"`
	ModelName        string           `bson:"model_name" json:"model_name"`
	Selections       []Selection      `bson:"selections" json:"selections"`
	Pricing          Pricing          `bson:"pricing" json:"pricing"`
	Currency         string           `bson:"currency" json:"currency"`
	PaymentPlan      PaymentPlan      `bson:"payment_plan" json:"payment_plan"`
	PaymentMethod    PaymentMethod    `bson:"payment_method" json:"payment_method"`
	Milestones       []Milestone      `bson:"milestones" json:"milestones"`
	Status           OrderStatus      `bson:"status" json:"status"`
	ProductionStatus ProductionStatus `bson:"production_status" json:"production_status"`
	ContractVersion  string           `bson:"contract_version" json:"contract_version"`
	Timeline         []TimelineEntry  `bson:"timeline" json:"timeline"`
	Notes            []OrderNote      `bson:"notes" json:"notes"`
	CreatedAt        time.Time        `bson:"created_at" json:"created_at"`
	UpdatedAt        time.Time        `bson:"updated_at" json:"updated_at"`
}

// Milestone returns the milestone with the given name.
func (o *Order) Milestone(name MilestoneName) (*Milestone, int) {
	for i := range o.Milestones {
		if o.Milestones[i].Name == name {
			return &o.Milestones[i], i
		}
	}
	return nil, -1
}

// AmountPaid sums the paid milestones.
func (o *Order) AmountPaid() int64 {
	var paid int64
	for _, m := range o.Milestones {
		if m.Status == MilestonePaid {
			paid += m.Amount
		}
	}
	return paid
}

// DeriveStatus computes the payment status from the milestones.
func (o *Order) DeriveStatus() OrderStatus {
	if o.Status == OrderStatusCancelled {
		return OrderStatusCancelled
	}
	if len(o.Milestones) == 0 {
		return OrderStatusPendingPayment
	}
	allPaid, depositPaid := true, false
	for _, m := range o.Milestones {
		if m.Status != MilestonePaid {
			allPaid = false
			continue
		}
		if m.Name == MilestoneDeposit {
			depositPaid = true
		}
	}
	switch {
	case allPaid:
		return OrderStatusPaidInFull
	case depositPaid:
		return OrderStatusDepositPaid
	default:
		return OrderStatusPendingPayment
	}
}

// OrderFilter narrows the admin order list.
type OrderFilter struct {
	Status           OrderStatus
	ProductionStatus ProductionStatus
	Search           string
	From, To         time.Time
}

type UpdateProductionRequest struct {
	Status ProductionStatus `json:"status" binding:"required"`
	Note   string           `json:"note"`
}

type AddNoteRequest struct {
	Body string `json:"body" binding:"required,max=4000"`
}

type PayMilestoneRequest struct {
	Method PaymentMethod `json:"method"`
}

// PaymentInitiation is returned when a buyer starts paying a milestone.
type PaymentInitiation struct {
	OrderID         string              `json:"order_id"`
	Milestone       MilestoneName       `json:"milestone"`
	Method          PaymentMethod       `json:"method"`
	Amount          int64               `json:"amount"`
	Currency        string              `json:"currency"`
	ClientSecret    string              `json:"client_secret,omitempty"`
	PaymentIntentID string              `json:"payment_intent_id,omitempty"`
	BankTransfer    *BankTransferIntent `json:"bank_transfer,omitempty"`
}
