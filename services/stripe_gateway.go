package services

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/NoaSkape/firefly-estimator-sub005/models"
	"github.com/stripe/stripe-go/v80"
	"github.com/stripe/stripe-go/v80/paymentintent"
	"github.com/stripe/stripe-go/v80/webhook"
)

// Stripe webhook event types the payment service acts on.
const (
	StripeIntentSucceeded  = "payment_intent.succeeded"
	StripeIntentProcessing = "payment_intent.processing"
	StripeIntentFailed     = "payment_intent.payment_failed"
)

// IntentRequest describes a PaymentIntent for one milestone.
type IntentRequest struct {
	Amount         int64
	Currency       string
	Method         models.PaymentMethod
	Metadata       map[string]string
	IdempotencyKey string
}

// GatewayIntent is the part of a PaymentIntent the service needs.
type GatewayIntent struct {
	ID           string
	ClientSecret string
	Status       string
}

// WebhookEvent is a verified webhook delivery about a PaymentIntent.
type WebhookEvent struct {
	ID            string
	Type          string
	IntentID      string
	Metadata      map[string]string
	FailureReason string
}

// PaymentGateway creates PaymentIntents and verifies webhooks.
type PaymentGateway interface {
	CreateIntent(ctx context.Context, req IntentRequest) (*GatewayIntent, error)
	GetIntent(ctx context.Context, id string) (*GatewayIntent, error)
	ParseWebhook(payload []byte, signature string) (*WebhookEvent, error)
}

// StripeGateway is the PaymentGateway backed by the Stripe API.
type StripeGateway struct {
	intents    *paymentintent.Client
	webhookKey string
}

func NewStripeGateway(secretKey, webhookKey string) *StripeGateway {
	return &StripeGateway{
		intents:    &paymentintent.Client{B: stripe.GetBackend(stripe.APIBackend), Key: secretKey},
		webhookKey: webhookKey,
	}
}

func (g *StripeGateway) CreateIntent(ctx context.Context, req IntentRequest) (*GatewayIntent, error) {
	methodType := "card"
	if req.Method == models.PaymentMethodACH {
		methodType = "us_bank_account"
	}
	params := &stripe.PaymentIntentParams{
		Amount:             stripe.Int64(req.Amount),
		Currency:           stripe.String(req.Currency),
		PaymentMethodTypes: stripe.StringSlice([]string{methodType}),
	}
	params.Context = ctx
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}

	pi, err := g.intents.New(params)
	if err != nil {
		return nil, fmt.Errorf("create payment intent: %w", err)
	}
	return &GatewayIntent{ID: pi.ID, ClientSecret: pi.ClientSecret, Status: string(pi.Status)}, nil
}

func (g *StripeGateway) GetIntent(ctx context.Context, id string) (*GatewayIntent, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	pi, err := g.intents.Get(id, params)
	if err != nil {
		return nil, fmt.Errorf("get payment intent: %w", err)
	}
	return &GatewayIntent{ID: pi.ID, ClientSecret: pi.ClientSecret, Status: string(pi.Status)}, nil
}

// ParseWebhook verifies the Stripe-Signature header. Events that do not
// carry a PaymentIntent come back with an empty IntentID.
func (g *StripeGateway) ParseWebhook(payload []byte, signature string) (*WebhookEvent, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, g.webhookKey,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true},
	)
	if err != nil {
		return nil, err
	}

	out := &WebhookEvent{ID: event.ID, Type: string(event.Type)}
	if event.Data == nil || event.Data.Object["object"] != "payment_intent" {
		return out, nil
	}
	var pi stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
		return nil, fmt.Errorf("decode payment intent: %w", err)
	}
	out.IntentID = pi.ID
	out.Metadata = pi.Metadata
	if pi.LastPaymentError != nil {
		out.FailureReason = pi.LastPaymentError.Msg
	}
	return out, nil
}
