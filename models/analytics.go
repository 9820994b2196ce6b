package models

import "time"

// DateRange is an inclusive-exclusive [From, To) window.
type DateRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

type CountItem struct {
	Key   string `json:"key" bson:"_id"`
	Count int64  `json:"count" bson:"count"`
}

type DailyPoint struct {
	Date      string `json:"date"`
	Sessions  int64  `json:"sessions"`
	PageViews int64  `json:"page_views"`
	Orders    int64  `json:"orders"`
	Revenue   int64  `json:"revenue"`
}

// Overview is the admin dashboard headline report.
type Overview struct {
	Range              DateRange    `json:"range"`
	Timezone           string       `json:"timezone"`
	Visitors           int64        `json:"visitors"`
	Sessions           int64        `json:"sessions"`
	PageViews          int64        `json:"page_views"`
	BounceRate         float64      `json:"bounce_rate"`
	AvgSessionDuration float64      `json:"avg_session_duration_seconds"`
	Orders             int64        `json:"orders"`
	Revenue            int64        `json:"revenue"`
	ConversionRate     float64      `json:"conversion_rate"`
	TopPages           []CountItem  `json:"top_pages"`
	TopModels          []CountItem  `json:"top_models"`
	TrafficSources     []CountItem  `json:"traffic_sources"`
	Daily              []DailyPoint `json:"daily"`
}

type FunnelStage struct {
	Stage     string  `json:"stage"`
	Sessions  int64   `json:"sessions"`
	FromPrev  float64 `json:"conversion_from_previous"`
	FromStart float64 `json:"conversion_from_start"`
}

type Funnel struct {
	Range  DateRange     `json:"range"`
	Stages []FunnelStage `json:"stages"`
}
