package services

import (
	"context"
	"encoding/json"
	"time"

	aws_pkg "github.com/NoaSkape/firefly-estimator-sub005/pkg/aws"
	"go.uber.org/zap"
)

// Domain event types published to SNS.
const (
	EventOrderSubmitted        = "order_submitted"
	EventMilestonePaid         = "milestone_paid"
	EventBankTransferConfirmed = "bank_transfer_confirmed"
	EventProductionUpdated     = "production_updated"
)

// Event is the SNS message body for a domain event.
type Event struct {
	Type      string    `json:"type"`
	OrderID   string    `json:"order_id"`
	UserID    string    `json:"user_id"`
	Milestone string    `json:"milestone,omitempty"`
	Amount    int64     `json:"amount,omitempty"`
	Status    string    `json:"status,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// EventPublisher delivers domain events. Publishing is best-effort: failures
// are logged, never returned.
type EventPublisher interface {
	Publish(ctx context.Context, event Event)
}

type snsEventPublisher struct {
	client   aws_pkg.SNSPublisher
	topicArn string
	logger   *zap.Logger
}

// NewEventPublisher publishes to topicArn, or discards events when no topic
// or client is configured.
func NewEventPublisher(client aws_pkg.SNSPublisher, topicArn string, logger *zap.Logger) EventPublisher {
	if client == nil || topicArn == "" {
		logger.Warn("SNS topic not configured, domain events are disabled")
		return NoopEventPublisher{}
	}
	return &snsEventPublisher{client: client, topicArn: topicArn, logger: logger}
}

func (p *snsEventPublisher) Publish(ctx context.Context, event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	payload, err := json.Marshal(event)
	if err != nil {
		p.logger.Error("Failed to marshal event", zap.String("type", event.Type), zap.Error(err))
		return
	}
	if err := p.client.Publish(ctx, p.topicArn, payload, map[string]string{"event_type": event.Type}); err != nil {
		p.logger.Error("Failed to publish event",
			zap.String("type", event.Type),
			zap.String("order_id", event.OrderID),
			zap.Error(err),
		)
		return
	}
	p.logger.Info("Event published", zap.String("type", event.Type), zap.String("order_id", event.OrderID))
}

// NoopEventPublisher drops every event.
type NoopEventPublisher struct{}

func (NoopEventPublisher) Publish(context.Context, Event) {}
