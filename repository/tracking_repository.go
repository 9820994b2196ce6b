package repository

import (
	"context"
	"fmt"

	"github.com/NoaSkape/firefly-estimator-sub005/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoTrackingRepository implements TrackingRepository over the Sessions and
// PageViews collections.
type MongoTrackingRepository struct {
	sessions  *mongo.Collection
	pageViews *mongo.Collection
}

func NewMongoTrackingRepository(db *mongo.Database) *MongoTrackingRepository {
	return &MongoTrackingRepository{
		sessions:  db.Collection(CollSessions),
		pageViews: db.Collection(CollPageViews),
	}
}

// Record stores pv and folds ev into its session. Events may arrive out of
// order from the queue, so the session window uses $min/$max. A redelivered
// event still reaches the session but does not count its page view twice.
func (r *MongoTrackingRepository) Record(ctx context.Context, pv *models.PageView, ev *models.TrackEvent) error {
	replay := false
	if _, err := r.pageViews.InsertOne(ctx, pv); err != nil {
		if !isDuplicate(err) {
			return fmt.Errorf("insert page view: %w", err)
		}
		replay = true
	}

	onInsert := bson.M{
		"visitor_id":   ev.VisitorID,
		"landing_path": ev.Path,
		"converted":    false,
	}
	for k, v := range map[string]string{
		"referrer":     ev.Referrer,
		"utm_source":   ev.UTMSource,
		"utm_medium":   ev.UTMMedium,
		"utm_campaign": ev.UTMCampaign,
		"user_agent":   ev.UserAgent,
	} {
		if v != "" {
			onInsert[k] = v
		}
	}

	update := bson.M{
		"$setOnInsert": onInsert,
		"$min":         bson.M{"started_at": ev.OccurredAt},
		"$max":         bson.M{"last_seen_at": ev.OccurredAt},
		"$addToSet":    bson.M{"events": string(ev.Event)},
	}
	switch {
	case ev.Event != models.EventPageView:
		onInsert["page_views"] = 0
	case replay:
		// No session yet means the first attempt never counted the view.
		onInsert["page_views"] = 1
	default:
		update["$inc"] = bson.M{"page_views": 1}
	}

	set := bson.M{}
	if ev.UserID != "" {
		set["user_id"] = ev.UserID
	}
	if ev.Event == models.EventOrderSubmitted {
		set["converted"] = true
		delete(onInsert, "converted")
	}
	if len(set) > 0 {
		update["$set"] = set
	}

	if _, err := r.sessions.UpdateOne(ctx, bson.M{"_id": ev.SessionID}, update, options.Update().SetUpsert(true)); err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}
	return nil
}

func (r *MongoTrackingRepository) SessionStats(ctx context.Context, dr models.DateRange) (SessionStats, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: timeMatch("started_at", dr)}},
		{{Key: "$group", Value: bson.M{
			"_id":      nil,
			"sessions": bson.M{"$sum": 1},
			"bounces": bson.M{"$sum": bson.M{
				"$cond": bson.A{bson.M{"$lte": bson.A{"$page_views", 1}}, 1, 0},
			}},
			"avg_ms": bson.M{"$avg": bson.M{"$subtract": bson.A{"$last_seen_at", "$started_at"}}},
		}}},
	}

	cursor, err := r.sessions.Aggregate(ctx, pipeline)
	if err != nil {
		return SessionStats{}, fmt.Errorf("aggregate sessions: %w", err)
	}
	defer cursor.Close(ctx)

	var rows []struct {
		Sessions int64   `bson:"sessions"`
		Bounces  int64   `bson:"bounces"`
		AvgMs    float64 `bson:"avg_ms"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return SessionStats{}, fmt.Errorf("decode session stats: %w", err)
	}
	if len(rows) == 0 {
		return SessionStats{}, nil
	}
	return SessionStats{
		Sessions:        rows[0].Sessions,
		Bounces:         rows[0].Bounces,
		AvgDurationSecs: rows[0].AvgMs / 1000,
	}, nil
}

func (r *MongoTrackingRepository) CountVisitors(ctx context.Context, dr models.DateRange) (int64, error) {
	ids, err := r.sessions.Distinct(ctx, "visitor_id", timeMatch("started_at", dr))
	if err != nil {
		return 0, fmt.Errorf("distinct visitors: %w", err)
	}
	return int64(len(ids)), nil
}

func (r *MongoTrackingRepository) CountPageViews(ctx context.Context, dr models.DateRange) (int64, error) {
	q := timeMatch("occurred_at", dr)
	q["event"] = models.EventPageView
	n, err := r.pageViews.CountDocuments(ctx, q)
	if err != nil {
		return 0, fmt.Errorf("count page views: %w", err)
	}
	return n, nil
}

func (r *MongoTrackingRepository) TopPaths(ctx context.Context, dr models.DateRange, limit int) ([]models.CountItem, error) {
	match := timeMatch("occurred_at", dr)
	match["event"] = models.EventPageView
	return r.countBy(ctx, r.pageViews, match, "$path", limit)
}

func (r *MongoTrackingRepository) TopModels(ctx context.Context, dr models.DateRange, limit int) ([]models.CountItem, error) {
	match := timeMatch("occurred_at", dr)
	match["event"] = models.EventModelView
	match["model_slug"] = bson.M{"$nin": bson.A{"", nil}}
	return r.countBy(ctx, r.pageViews, match, "$model_slug", limit)
}

// TrafficSources groups sessions by utm_source, then referrer, then "direct".
func (r *MongoTrackingRepository) TrafficSources(ctx context.Context, dr models.DateRange, limit int) ([]models.CountItem, error) {
	source := bson.M{"$ifNull": bson.A{
		"$utm_source",
		bson.M{"$ifNull": bson.A{"$referrer", "direct"}},
	}}
	return r.countBy(ctx, r.sessions, timeMatch("started_at", dr), source, limit)
}

func (r *MongoTrackingRepository) countBy(ctx context.Context, coll *mongo.Collection, match bson.M, key interface{}, limit int) ([]models.CountItem, error) {
	if limit < 1 {
		limit = 10
	}
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: match}},
		{{Key: "$group", Value: bson.M{"_id": key, "count": bson.M{"$sum": 1}}}},
		{{Key: "$sort", Value: bson.D{{Key: "count", Value: -1}, {Key: "_id", Value: 1}}}},
		{{Key: "$limit", Value: limit}},
	}
	cursor, err := coll.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("aggregate %s: %w", coll.Name(), err)
	}
	defer cursor.Close(ctx)

	out := []models.CountItem{}
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode %s counts: %w", coll.Name(), err)
	}
	return out, nil
}

func (r *MongoTrackingRepository) DailyTraffic(ctx context.Context, dr models.DateRange, tz string) (map[string][2]int64, error) {
	sessions, err := r.daily(ctx, r.sessions, timeMatch("started_at", dr), "$started_at", tz)
	if err != nil {
		return nil, err
	}
	pvMatch := timeMatch("occurred_at", dr)
	pvMatch["event"] = models.EventPageView
	views, err := r.daily(ctx, r.pageViews, pvMatch, "$occurred_at", tz)
	if err != nil {
		return nil, err
	}

	out := make(map[string][2]int64, len(sessions))
	for _, s := range sessions {
		v := out[s.Key]
		v[0] = s.Count
		out[s.Key] = v
	}
	for _, p := range views {
		v := out[p.Key]
		v[1] = p.Count
		out[p.Key] = v
	}
	return out, nil
}

func (r *MongoTrackingRepository) daily(ctx context.Context, coll *mongo.Collection, match bson.M, field, tz string) ([]models.CountItem, error) {
	day := bson.M{"$dateToString": bson.M{"format": "%Y-%m-%d", "date": field, "timezone": tz}}
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: match}},
		{{Key: "$group", Value: bson.M{"_id": day, "count": bson.M{"$sum": 1}}}},
	}
	cursor, err := coll.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("aggregate daily %s: %w", coll.Name(), err)
	}
	defer cursor.Close(ctx)

	out := []models.CountItem{}
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode daily %s: %w", coll.Name(), err)
	}
	return out, nil
}

func (r *MongoTrackingRepository) SessionsWithEvent(ctx context.Context, dr models.DateRange, ev string) (int64, error) {
	q := timeMatch("started_at", dr)
	q["events"] = ev
	n, err := r.sessions.CountDocuments(ctx, q)
	if err != nil {
		return 0, fmt.Errorf("count sessions: %w", err)
	}
	return n, nil
}

func (r *MongoTrackingRepository) EnsureIndexes(ctx context.Context) error {
	if _, err := r.sessions.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "started_at", Value: -1}}},
		{Keys: bson.D{{Key: "visitor_id", Value: 1}}},
		{Keys: bson.D{{Key: "events", Value: 1}, {Key: "started_at", Value: -1}}},
	}); err != nil {
		return err
	}
	_, err := r.pageViews.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "occurred_at", Value: -1}, {Key: "event", Value: 1}}},
		{Keys: bson.D{{Key: "session_id", Value: 1}}},
	})
	return err
}

func timeMatch(field string, dr models.DateRange) bson.M {
	q := bson.M{}
	if f := rangeFilter(dr.From, dr.To); f != nil {
		q[field] = f
	}
	return q
}
