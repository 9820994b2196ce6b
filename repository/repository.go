package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/NoaSkape/firefly-estimator-sub005/models"
	"go.mongodb.org/mongo-driver/mongo"
)

// Collection names.
const (
	CollModels        = "Models"
	CollBuilds        = "Builds"
	CollOrders        = "Orders"
	CollBankTransfers = "bankTransferIntents"
	CollCustomers     = "customers"
	CollSessions      = "Sessions"
	CollPageViews     = "PageViews"
)

var (
	ErrNotFound = errors.New("record not found")
	// ErrConflict covers duplicate keys and conditional updates whose
	// precondition no longer holds.
	ErrConflict = errors.New("record conflict")
)

// ModelRepository stores the tiny-home catalog.
type ModelRepository interface {
	List(ctx context.Context, activeOnly bool) ([]models.HomeModel, error)
	FindByID(ctx context.Context, id string) (*models.HomeModel, error)
	FindBySlug(ctx context.Context, slug string) (*models.HomeModel, error)
	Create(ctx context.Context, m *models.HomeModel) error
	Replace(ctx context.Context, m *models.HomeModel) error
	UpsertBySlug(ctx context.Context, m *models.HomeModel) error
	SetActive(ctx context.Context, id string, active bool) error
	AddImage(ctx context.Context, id string, img models.ModelImage) (*models.HomeModel, error)
}

// BuildFilter narrows the admin build list.
type BuildFilter struct {
	Status models.BuildStatus
	Step   int
	UserID string
}

// BuildRepository stores draft configurations.
type BuildRepository interface {
	Create(ctx context.Context, b *models.Build) error
	FindByID(ctx context.Context, id string) (*models.Build, error)
	ListByUser(ctx context.Context, userID string) ([]models.Build, error)
	List(ctx context.Context, filter BuildFilter, page, limit int) ([]models.Build, int64, error)
	// SaveDraft replaces a build only while it is still a draft.
	SaveDraft(ctx context.Context, b *models.Build) error
	MarkSubmitted(ctx context.Context, id, orderID string) error
	Cancel(ctx context.Context, id string) error
}

// OrderRepository stores submitted orders.
type OrderRepository interface {
	Create(ctx context.Context, o *models.Order) error
	FindByID(ctx context.Context, id string) (*models.Order, error)
	FindByBuildID(ctx context.Context, buildID string) (*models.Order, error)
	ListByUser(ctx context.Context, userID string) ([]models.Order, error)
	List(ctx context.Context, filter models.OrderFilter, page, limit int) ([]models.Order, int64, error)
	// FindCreatedBetween returns every non-cancelled order created in
	// [from, to). A zero bound is open.
	FindCreatedBetween(ctx context.Context, from, to time.Time) ([]models.Order, error)
	Update(ctx context.Context, id string, updates map[string]interface{}, entry *models.TimelineEntry) (*models.Order, error)
	AddNote(ctx context.Context, id string, note models.OrderNote, entry *models.TimelineEntry) (*models.Order, error)
	// UpdateMilestone sets fields on the named milestone only when its
	// current status is one of from. ErrConflict otherwise.
	UpdateMilestone(ctx context.Context, id string, name models.MilestoneName, from []models.MilestoneStatus, fields map[string]interface{}, entry *models.TimelineEntry) (*models.Order, error)
	FindByIntentID(ctx context.Context, intentID string) (*models.Order, error)
	// Cancel marks the order cancelled only while no milestone is paid or
	// processing. ErrConflict otherwise.
	Cancel(ctx context.Context, id string, entry *models.TimelineEntry) (*models.Order, error)
}

// BankTransferRepository stores bankTransferIntents.
type BankTransferRepository interface {
	Create(ctx context.Context, bt *models.BankTransferIntent) error
	FindByID(ctx context.Context, id string) (*models.BankTransferIntent, error)
	FindPending(ctx context.Context, orderID string, milestone models.MilestoneName) (*models.BankTransferIntent, error)
	List(ctx context.Context, status models.BankTransferStatus, page, limit int) ([]models.BankTransferIntent, int64, error)
	// Resolve moves a pending intent to status. ErrConflict if it is no
	// longer pending.
	Resolve(ctx context.Context, id string, status models.BankTransferStatus, fields map[string]interface{}) (*models.BankTransferIntent, error)
}

// CustomerOrder is what a submitted order contributes to a customer record.
type CustomerOrder struct {
	UserID  string
	Email   string
	Name    string
	Phone   string
	OrderAt time.Time
}

// CustomerRepository stores the customers collection.
type CustomerRepository interface {
	RecordOrder(ctx context.Context, c CustomerOrder) error
	AddPayment(ctx context.Context, userID string, amount int64) error
	FindByID(ctx context.Context, userID string) (*models.Customer, error)
	List(ctx context.Context, page, limit int) ([]models.Customer, int64, error)
	All(ctx context.Context) ([]models.Customer, error)
}

// SessionStats summarises sessions started in a range.
type SessionStats struct {
	Sessions        int64
	Bounces         int64
	AvgDurationSecs float64
}

// TrackingRepository stores Sessions and PageViews and answers the
// aggregate questions the dashboard asks of them.
type TrackingRepository interface {
	Record(ctx context.Context, pv *models.PageView, ev *models.TrackEvent) error
	SessionStats(ctx context.Context, r models.DateRange) (SessionStats, error)
	CountVisitors(ctx context.Context, r models.DateRange) (int64, error)
	CountPageViews(ctx context.Context, r models.DateRange) (int64, error)
	TopPaths(ctx context.Context, r models.DateRange, limit int) ([]models.CountItem, error)
	TopModels(ctx context.Context, r models.DateRange, limit int) ([]models.CountItem, error)
	TrafficSources(ctx context.Context, r models.DateRange, limit int) ([]models.CountItem, error)
	// DailyTraffic buckets sessions and page views per local calendar day,
	// keyed by YYYY-MM-DD.
	DailyTraffic(ctx context.Context, r models.DateRange, tz string) (map[string][2]int64, error)
	// SessionsWithEvent counts sessions in range whose events include ev.
	SessionsWithEvent(ctx context.Context, r models.DateRange, ev string) (int64, error)
}

func isDuplicate(err error) bool {
	return mongo.IsDuplicateKeyError(err)
}

func wrapFind(err error, what string) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return ErrNotFound
	}
	return fmt.Errorf("find %s: %w", what, err)
}

func skipLimit(page, limit int) (int64, int64) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 10
	}
	return int64((page - 1) * limit), int64(limit)
}
