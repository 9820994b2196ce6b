package models

import "time"

type TrackEventType string

const (
	EventPageView       TrackEventType = "page_view"
	EventModelView      TrackEventType = "model_view"
	EventConfigureStart TrackEventType = "configure_start"
	EventCheckoutStep   TrackEventType = "checkout_step"
	EventOrderSubmitted TrackEventType = "order_submitted"
)

// Valid reports whether e is a tracked event type.
func (e TrackEventType) Valid() bool {
	switch e {
	case EventPageView, EventModelView, EventConfigureStart, EventCheckoutStep, EventOrderSubmitted:
		return true
	}
	return false
}

// TrackRequest is the public analytics beacon payload.
type TrackRequest struct {
	SessionID   string         `json:"session_id" binding:"required,max=64"`
	VisitorID   string         `json:"visitor_id" binding:"required,max=64"`
	Event       TrackEventType `json:"event" binding:"required"`
	Path        string         `json:"path" binding:"required,max=512"`
	Referrer    string         `json:"referrer" binding:"max=1024"`
	ModelSlug   string         `json:"model_slug" binding:"max=64"`
	Step        string         `json:"step" binding:"max=32"`
	UTMSource   string         `json:"utm_source" binding:"max=128"`
	UTMMedium   string         `json:"utm_medium" binding:"max=128"`
	UTMCampaign string         `json:"utm_campaign" binding:"max=128"`
}

// TrackEvent is a TrackRequest enriched by the server. It is the message
// body placed on the analytics queue.
type TrackEvent struct {
	TrackRequest
	ID         string    `json:"id"`
	UserID     string    `json:"user_id,omitempty"`
	UserAgent  string    `json:"user_agent"`
	IP         string    `json:"ip"`
	OccurredAt time.Time `json:"occurred_at"`
}

// PageView is one tracked event.
type PageView struct {
	ID         string         `bson:"_id" json:"id"`
	SessionID  string         `bson:"session_id" json:"session_id"`
	VisitorID  string         `bson:"visitor_id" json:"visitor_id"`
	UserID     string         `bson:"user_id,omitempty" json:"user_id,omitempty"`
	Event      TrackEventType `bson:"event" json:"event"`
	Path       string         `bson:"path" json:"path"`
	Referrer   string         `bson:"referrer,omitempty" json:"referrer,omitempty"`
	ModelSlug  string         `bson:"model_slug,omitempty" json:"model_slug,omitempty"`
	Step       string         `bson:"step,omitempty" json:"step,omitempty"`
	OccurredAt time.Time      `bson:"occurred_at" json:"occurred_at"`
}

// Session aggregates the events of one browsing session.
type Session struct {
	ID          string    `bson:"_id" json:"id"`
	VisitorID   string    `bson:"visitor_id" json:"visitor_id"`
	UserID      string    `bson:"user_id,omitempty" json:"user_id,omitempty"`
	StartedAt   time.Time `bson:"started_at" json:"started_at"`
	LastSeenAt  time.Time `bson:"last_seen_at" json:"last_seen_at"`
	PageViews   int       `bson:"page_views" json:"page_views"`
	LandingPath string    `bson:"landing_path" json:"landing_path"`
	Referrer    string    `bson:"referrer,omitempty" json:"referrer,omitempty"`
	UTMSource   string    `bson:"utm_source,omitempty" json:"utm_source,omitempty"`
	UTMMedium   string    `bson:"utm_medium,omitempty" json:"utm_medium,omitempty"`
	UTMCampaign string    `bson:"utm_campaign,omitempty" json:"utm_campaign,omitempty"`
	UserAgent   string    `bson:"user_agent,omitempty" json:"user_agent,omitempty"`
	Events      []string  `bson:"events" json:"events"`
	Converted   bool      `bson:"converted" json:"converted"`
}
