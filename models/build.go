package models

import "time"

// Checkout steps, in order. A build may sit on any step whose predecessors
// are complete.
const (
	StepConfigure     = 1
	StepBuyerInfo     = 2
	StepPaymentMethod = 3
	StepContract      = 4
	StepReview        = 5
)

var stepNames = map[int]string{
	StepConfigure:     "configure",
	StepBuyerInfo:     "buyer_info",
	StepPaymentMethod: "payment_method",
	StepContract:      "contract",
	StepReview:        "review",
}

// StepName returns the wire name of a checkout step.
func StepName(step int) string {
	return stepNames[step]
}

type BuildStatus string

const (
	BuildStatusDraft     BuildStatus = "draft"
	BuildStatusSubmitted BuildStatus = "submitted"
	BuildStatusCancelled BuildStatus = "cancelled"
)

type PaymentMethod string

const (
	PaymentMethodCard         PaymentMethod = "card"
	PaymentMethodACH          PaymentMethod = "ach"
	PaymentMethodBankTransfer PaymentMethod = "bank_transfer"
)

// Valid reports whether m is a supported payment method.
func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentMethodCard, PaymentMethodACH, PaymentMethodBankTransfer:
		return true
	}
	return false
}

type PaymentPlan string

const (
	PaymentPlanDeposit PaymentPlan = "deposit"
	PaymentPlanFull    PaymentPlan = "full"
)

func (p PaymentPlan) Valid() bool {
	return p == PaymentPlanDeposit || p == PaymentPlanFull
}

// Selection picks one option within an option group.
type Selection struct {
	Group  string `bson:"group" json:"group" binding:"required"`
	Option string `bson:"option" json:"option" binding:"required"`
}

// PriceLine is one itemised row of a quote.
type PriceLine struct {
	Group  string `bson:"group,omitempty" json:"group,omitempty"`
	Option string `bson:"option,omitempty" json:"option,omitempty"`
	Label  string `bson:"label" json:"label"`
	Amount int64  `bson:"amount" json:"amount"`
}

// Pricing is a priced configuration in cents.
type Pricing struct {
	Base     int64       `bson:"base" json:"base"`
	Options  int64       `bson:"options" json:"options"`
	Subtotal int64       `bson:"subtotal" json:"subtotal"`
	Delivery int64       `bson:"delivery" json:"delivery"`
	Tax      int64       `bson:"tax" json:"tax"`
	Total    int64       `bson:"total" json:"total"`
	Lines    []PriceLine `bson:"lines" json:"lines"`
}

type Address struct {
	Line1 string `bson:"line1" json:"line1" validate:"required,max=200"`
	Line2 string `bson:"line2,omitempty" json:"line2,omitempty" validate:"max=200"`
	City  string `bson:"city" json:"city" validate:"required,max=100"`
	State string `bson:"state" json:"state" validate:"required,len=2,alpha"`
	Zip   string `bson:"zip" json:"zip" validate:"required,numeric,min=5,max=10"`
}

// BuyerInfo is the checkout buyer-info section.
type BuyerInfo struct {
	FirstName       string   `bson:"first_name" json:"first_name" validate:"required,max=80"`
	LastName        string   `bson:"last_name" json:"last_name" validate:"required,max=80"`
	Email           string   `bson:"email" json:"email" validate:"required,email"`
	Phone           string   `bson:"phone" json:"phone" validate:"required,min=7,max=20"`
	Address         Address  `bson:"address" json:"address"`
	DeliveryAddress *Address `bson:"delivery_address,omitempty" json:"delivery_address,omitempty"`
	Notes           string   `bson:"notes,omitempty" json:"notes,omitempty" validate:"max=2000"`
}

// FullName joins first and last name.
func (b *BuyerInfo) FullName() string {
	if b == nil {
		return ""
	}
	if b.LastName == "" {
		return b.FirstName
	}
	return b.FirstName + " " + b.LastName
}

// PaymentChoice is the checkout payment-method section.
type PaymentChoice struct {
	Method PaymentMethod `bson:"method" json:"method"`
	Plan   PaymentPlan   `bson:"plan" json:"plan"`
}

// Contract records the buyer's acceptance of the purchase agreement for a
// specific priced total.
type Contract struct {
	Version      string    `bson:"version" json:"version"`
	SignedName   string    `bson:"signed_name" json:"signed_name"`
	SignedAt     time.Time `bson:"signed_at" json:"signed_at"`
	IP           string    `bson:"ip" json:"ip"`
	PricingTotal int64     `bson:"pricing_total" json:"pricing_total"`
}

// Build is a draft home configuration advancing through checkout.
type Build struct {
	ID         string         `bson:"_id" json:"id"`
	UserID     string         `bson:"user_id" json:"user_id"`
	ModelID    string         `bson:"model_id" json:"model_id"`
	ModelSlug  string         `bson:"model_slug" json:"model_slug"`
	ModelName  string         `bson:"model_name" json:"model_name"`
	Selections []Selection    `bson:"selections" json:"selections"`
	Pricing    Pricing        `bson:"pricing" json:"pricing"`
	Missing    []string       `bson:"missing_groups,omitempty" json:"missing_groups,omitempty"`
	Step       int            `bson:"step" json:"step"`
	Status     BuildStatus    `bson:"status" json:"status"`
	Buyer      *BuyerInfo     `bson:"buyer,omitempty" json:"buyer,omitempty"`
	Payment    *PaymentChoice `bson:"payment,omitempty" json:"payment,omitempty"`
	Contract   *Contract      `bson:"contract,omitempty" json:"contract,omitempty"`
	OrderID    string         `bson:"order_id,omitempty" json:"order_id,omitempty"`
	CreatedAt  time.Time      `bson:"created_at" json:"created_at"`
	UpdatedAt  time.Time      `bson:"updated_at" json:"updated_at"`
}

// FirstIncompleteStep is the furthest step the build may be moved to.
func (b *Build) FirstIncompleteStep() int {
	switch {
	case len(b.Missing) > 0:
		return StepConfigure
	case b.Buyer == nil:
		return StepBuyerInfo
	case b.Payment == nil:
		return StepPaymentMethod
	case b.Contract == nil || b.Contract.PricingTotal != b.Pricing.Total:
		return StepContract
	default:
		return StepReview
	}
}

// ReadyToSubmit reports whether every checkout section is complete and the
// signed contract still matches the priced total.
func (b *Build) ReadyToSubmit() bool {
	return b.Status == BuildStatusDraft && b.FirstIncompleteStep() == StepReview
}

// CreateBuildRequest starts a build from a model.
type CreateBuildRequest struct {
	ModelSlug  string      `json:"model_slug" binding:"required"`
	Selections []Selection `json:"selections" binding:"omitempty,dive"`
}

// QuoteRequest prices a configuration without persisting it.
type QuoteRequest struct {
	Selections []Selection `json:"selections" binding:"omitempty,dive"`
}

type UpdateConfigurationRequest struct {
	Selections []Selection `json:"selections" binding:"omitempty,dive"`
}

type PaymentChoiceRequest struct {
	Method PaymentMethod `json:"method" binding:"required"`
	Plan   PaymentPlan   `json:"plan" binding:"required"`
}

type SignContractRequest struct {
	SignedName string `json:"signed_name" binding:"required"`
	Accepted   bool   `json:"accepted"`
}

type SetStepRequest struct {
	Step int `json:"step" binding:"required,min=1,max=5"`
}
