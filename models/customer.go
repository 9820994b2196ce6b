package models

import "time"

// Customer mirrors a Clerk user that has submitted at least one order.
type Customer struct {
	UserID        string    `bson:"_id" json:"user_id"`
	Email         string    `bson:"email" json:"email"`
	Name          string    `bson:"name" json:"name"`
	Phone         string    `bson:"phone" json:"phone"`
	FirstSeenAt   time.Time `bson:"first_seen_at" json:"first_seen_at"`
	LastOrderAt   time.Time `bson:"last_order_at" json:"last_order_at"`
	OrderCount    int       `bson:"order_count" json:"order_count"`
	LifetimeValue int64     `bson:"lifetime_value" json:"lifetime_value"`
	UpdatedAt     time.Time `bson:"updated_at" json:"updated_at"`
}

// CustomerInsight is a customer joined with computed analytics.
type CustomerInsight struct {
	Customer
	Revenue      int64   `json:"revenue"`
	Orders       int     `json:"orders"`
	AOV          float64 `json:"average_order_value"`
	RecencyDays  int     `json:"recency_days"`
	PredictedCLV float64 `json:"predicted_clv"`
	Segment      string  `json:"segment"`
	RFMScore     string  `json:"rfm_score"`
}

// CustomerDetail is a single customer with their orders.
type CustomerDetail struct {
	CustomerInsight
	OrderHistory []Order `json:"order_history"`
}
