package services_test

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/NoaSkape/firefly-estimator-sub005/common/auth"
	"github.com/NoaSkape/firefly-estimator-sub005/models"
	aws_pkg "github.com/NoaSkape/firefly-estimator-sub005/pkg/aws"
	"github.com/NoaSkape/firefly-estimator-sub005/repository"
	"github.com/NoaSkape/firefly-estimator-sub005/services"
	"go.uber.org/zap"
)

// --- Mock model repository ---

type mockModelRepo struct {
	mu     sync.Mutex
	models map[string]*models.HomeModel
}

func newMockModelRepo(list ...*models.HomeModel) *mockModelRepo {
	r := &mockModelRepo{models: make(map[string]*models.HomeModel)}
	for _, m := range list {
		r.models[m.ID] = m
	}
	return r
}

func (r *mockModelRepo) List(_ context.Context, activeOnly bool) ([]models.HomeModel, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []models.HomeModel{}
	for _, m := range r.models {
		if activeOnly && !m.Active {
			continue
		}
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slug < out[j].Slug })
	return out, nil
}

func (r *mockModelRepo) FindByID(_ context.Context, id string) (*models.HomeModel, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.models[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *m
	return &cp, nil
}

func (r *mockModelRepo) FindBySlug(_ context.Context, slug string) (*models.HomeModel, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.models {
		if m.Slug == slug {
			cp := *m
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *mockModelRepo) Create(_ context.Context, m *models.HomeModel) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.models {
		if existing.Slug == m.Slug {
			return repository.ErrConflict
		}
	}
	cp := *m
	r.models[m.ID] = &cp
	return nil
}

func (r *mockModelRepo) Replace(_ context.Context, m *models.HomeModel) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.models[m.ID]; !ok {
		return repository.ErrNotFound
	}
	for _, existing := range r.models {
		if existing.Slug == m.Slug && existing.ID != m.ID {
			return repository.ErrConflict
		}
	}
	cp := *m
	r.models[m.ID] = &cp
	return nil
}

func (r *mockModelRepo) UpsertBySlug(_ context.Context, m *models.HomeModel) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, existing := range r.models {
		if existing.Slug == m.Slug {
			m.ID = id
		}
	}
	cp := *m
	r.models[m.ID] = &cp
	return nil
}

func (r *mockModelRepo) SetActive(_ context.Context, id string, active bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.models[id]
	if !ok {
		return repository.ErrNotFound
	}
	m.Active = active
	return nil
}

func (r *mockModelRepo) AddImage(_ context.Context, id string, img models.ModelImage) (*models.HomeModel, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.models[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if img.Primary {
		for i := range m.Images {
			m.Images[i].Primary = false
		}
	}
	m.Images = append(m.Images, img)
	cp := *m
	return &cp, nil
}

func (r *mockModelRepo) setPrice(id string, price int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.models[id].BasePrice = price
}

// --- Mock build repository ---

type mockBuildRepo struct {
	mu     sync.Mutex
	builds map[string]*models.Build
}

func newMockBuildRepo() *mockBuildRepo {
	return &mockBuildRepo{builds: make(map[string]*models.Build)}
}

func (r *mockBuildRepo) Create(_ context.Context, b *models.Build) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *b
	r.builds[b.ID] = &cp
	return nil
}

func (r *mockBuildRepo) FindByID(_ context.Context, id string) (*models.Build, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.builds[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *b
	return &cp, nil
}

func (r *mockBuildRepo) ListByUser(_ context.Context, userID string) ([]models.Build, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []models.Build{}
	for _, b := range r.builds {
		if b.UserID == userID {
			out = append(out, *b)
		}
	}
	return out, nil
}

func (r *mockBuildRepo) List(_ context.Context, filter repository.BuildFilter, _, _ int) ([]models.Build, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []models.Build{}
	for _, b := range r.builds {
		if filter.Status != "" && b.Status != filter.Status {
			continue
		}
		out = append(out, *b)
	}
	return out, int64(len(out)), nil
}

func (r *mockBuildRepo) SaveDraft(_ context.Context, b *models.Build) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.builds[b.ID]
	if !ok {
		return repository.ErrNotFound
	}
	if existing.Status != models.BuildStatusDraft {
		return repository.ErrConflict
	}
	cp := *b
	r.builds[b.ID] = &cp
	return nil
}

func (r *mockBuildRepo) MarkSubmitted(_ context.Context, id, orderID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.builds[id]
	if !ok {
		return repository.ErrNotFound
	}
	b.Status = models.BuildStatusSubmitted
	b.OrderID = orderID
	return nil
}

func (r *mockBuildRepo) Cancel(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.builds[id]
	if !ok {
		return repository.ErrNotFound
	}
	if b.Status != models.BuildStatusDraft {
		return repository.ErrConflict
	}
	b.Status = models.BuildStatusCancelled
	return nil
}

// --- Mock order repository ---

type mockOrderRepo struct {
	mu     sync.Mutex
	orders map[string]*models.Order
	// beforeCancel runs without the lock just before Cancel applies.
	beforeCancel func()
}

func newMockOrderRepo(list ...*models.Order) *mockOrderRepo {
	r := &mockOrderRepo{orders: make(map[string]*models.Order)}
	for _, o := range list {
		r.orders[o.ID] = cloneOrder(o)
	}
	return r
}

func cloneOrder(o *models.Order) *models.Order {
	cp := *o
	cp.Milestones = append([]models.Milestone(nil), o.Milestones...)
	cp.Timeline = append([]models.TimelineEntry(nil), o.Timeline...)
	cp.Notes = append([]models.OrderNote(nil), o.Notes...)
	return &cp
}

func (r *mockOrderRepo) Create(_ context.Context, o *models.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.orders {
		if existing.BuildID == o.BuildID {
			return repository.ErrConflict
		}
	}
	r.orders[o.ID] = cloneOrder(o)
	return nil
}

func (r *mockOrderRepo) FindByID(_ context.Context, id string) (*models.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return cloneOrder(o), nil
}

func (r *mockOrderRepo) FindByBuildID(_ context.Context, buildID string) (*models.Order, error) {
	return r.findBy(func(o *models.Order) bool { return o.BuildID == buildID })
}

func (r *mockOrderRepo) FindByIntentID(_ context.Context, intentID string) (*models.Order, error) {
	return r.findBy(func(o *models.Order) bool {
		for _, m := range o.Milestones {
			if m.IntentID == intentID {
				return true
			}
		}
		return false
	})
}

func (r *mockOrderRepo) findBy(match func(*models.Order) bool) (*models.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, o := range r.orders {
		if match(o) {
			return cloneOrder(o), nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *mockOrderRepo) sorted(keep func(*models.Order) bool) []models.Order {
	out := []models.Order{}
	for _, o := range r.orders {
		if keep(o) {
			out = append(out, *cloneOrder(o))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (r *mockOrderRepo) ListByUser(_ context.Context, userID string) ([]models.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sorted(func(o *models.Order) bool { return o.UserID == userID }), nil
}

func (r *mockOrderRepo) List(_ context.Context, filter models.OrderFilter, page, limit int) ([]models.Order, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	all := r.sorted(func(o *models.Order) bool {
		if filter.Status != "" && o.Status != filter.Status {
			return false
		}
		if filter.ProductionStatus != "" && o.ProductionStatus != filter.ProductionStatus {
			return false
		}
		return inRange(o.CreatedAt, filter.From, filter.To)
	})
	start := (page - 1) * limit
	if start > len(all) {
		start = len(all)
	}
	end := min(start+limit, len(all))
	return all[start:end], int64(len(all)), nil
}

func (r *mockOrderRepo) FindCreatedBetween(_ context.Context, from, to time.Time) ([]models.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sorted(func(o *models.Order) bool {
		return o.Status != models.OrderStatusCancelled && inRange(o.CreatedAt, from, to)
	}), nil
}

func (r *mockOrderRepo) Update(_ context.Context, id string, updates map[string]interface{}, entry *models.TimelineEntry) (*models.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	for k, v := range updates {
		switch k {
		case "status":
			o.Status = v.(models.OrderStatus)
		case "production_status":
			o.ProductionStatus = v.(models.ProductionStatus)
		}
	}
	if entry != nil {
		o.Timeline = append(o.Timeline, *entry)
	}
	return cloneOrder(o), nil
}

func (r *mockOrderRepo) AddNote(_ context.Context, id string, note models.OrderNote, entry *models.TimelineEntry) (*models.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	o.Notes = append(o.Notes, note)
	if entry != nil {
		o.Timeline = append(o.Timeline, *entry)
	}
	return cloneOrder(o), nil
}

func (r *mockOrderRepo) UpdateMilestone(_ context.Context, id string, name models.MilestoneName, from []models.MilestoneStatus, fields map[string]interface{}, entry *models.TimelineEntry) (*models.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	m, _ := o.Milestone(name)
	if o.Status == models.OrderStatusCancelled || m == nil || !containsStatus(from, m.Status) {
		return nil, repository.ErrConflict
	}
	for k, v := range fields {
		switch k {
		case "status":
			m.Status = v.(models.MilestoneStatus)
		case "method":
			m.Method = v.(models.PaymentMethod)
		case "intent_id":
			m.IntentID = v.(string)
		case "bank_transfer_id":
			m.BankTransferID = v.(string)
		case "failure_reason":
			m.FailureReason = v.(string)
		case "paid_at":
			t := v.(time.Time)
			m.PaidAt = &t
		}
	}
	if entry != nil {
		o.Timeline = append(o.Timeline, *entry)
	}
	o.Status = o.DeriveStatus()
	return cloneOrder(o), nil
}

func (r *mockOrderRepo) Cancel(_ context.Context, id string, entry *models.TimelineEntry) (*models.Order, error) {
	if r.beforeCancel != nil {
		r.beforeCancel()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if o.Status == models.OrderStatusCancelled {
		return nil, repository.ErrConflict
	}
	for _, m := range o.Milestones {
		if m.Status == models.MilestonePaid || m.Status == models.MilestoneProcessing {
			return nil, repository.ErrConflict
		}
	}
	o.Status = models.OrderStatusCancelled
	if entry != nil {
		o.Timeline = append(o.Timeline, *entry)
	}
	return cloneOrder(o), nil
}

func containsStatus(list []models.MilestoneStatus, s models.MilestoneStatus) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func inRange(t, from, to time.Time) bool {
	if !from.IsZero() && t.Before(from) {
		return false
	}
	if !to.IsZero() && !t.Before(to) {
		return false
	}
	return true
}

// --- Mock bank transfer repository ---

type mockTransferRepo struct {
	mu        sync.Mutex
	transfers map[string]*models.BankTransferIntent
}

func newMockTransferRepo() *mockTransferRepo {
	return &mockTransferRepo{transfers: make(map[string]*models.BankTransferIntent)}
}

func (r *mockTransferRepo) Create(_ context.Context, bt *models.BankTransferIntent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *bt
	r.transfers[bt.ID] = &cp
	return nil
}

func (r *mockTransferRepo) FindByID(_ context.Context, id string) (*models.BankTransferIntent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	bt, ok := r.transfers[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *bt
	return &cp, nil
}

func (r *mockTransferRepo) FindPending(_ context.Context, orderID string, milestone models.MilestoneName) (*models.BankTransferIntent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, bt := range r.transfers {
		if bt.OrderID == orderID && bt.Milestone == milestone && bt.Status == models.BankTransferPending {
			cp := *bt
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *mockTransferRepo) List(_ context.Context, status models.BankTransferStatus, _, _ int) ([]models.BankTransferIntent, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []models.BankTransferIntent{}
	for _, bt := range r.transfers {
		if status == "" || bt.Status == status {
			out = append(out, *bt)
		}
	}
	return out, int64(len(out)), nil
}

func (r *mockTransferRepo) Resolve(_ context.Context, id string, status models.BankTransferStatus, fields map[string]interface{}) (*models.BankTransferIntent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	bt, ok := r.transfers[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if bt.Status != models.BankTransferPending {
		return nil, repository.ErrConflict
	}
	bt.Status = status
	if v, ok := fields["confirmed_by"].(string); ok {
		bt.ConfirmedBy = v
	}
	if v, ok := fields["rejected_reason"].(string); ok {
		bt.RejectedReason = v
	}
	cp := *bt
	return &cp, nil
}

// --- Mock customer repository ---

type mockCustomerRepo struct {
	mu        sync.Mutex
	customers map[string]*models.Customer
}

func newMockCustomerRepo() *mockCustomerRepo {
	return &mockCustomerRepo{customers: make(map[string]*models.Customer)}
}

func (r *mockCustomerRepo) RecordOrder(_ context.Context, c repository.CustomerOrder) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.customers[c.UserID]
	if !ok {
		existing = &models.Customer{UserID: c.UserID, FirstSeenAt: c.OrderAt}
		r.customers[c.UserID] = existing
	}
	existing.Email, existing.Name, existing.Phone = c.Email, c.Name, c.Phone
	if c.OrderAt.After(existing.LastOrderAt) {
		existing.LastOrderAt = c.OrderAt
	}
	existing.OrderCount++
	return nil
}

func (r *mockCustomerRepo) AddPayment(_ context.Context, userID string, amount int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.customers[userID]
	if !ok {
		return repository.ErrNotFound
	}
	c.LifetimeValue += amount
	return nil
}

func (r *mockCustomerRepo) FindByID(_ context.Context, userID string) (*models.Customer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.customers[userID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (r *mockCustomerRepo) List(ctx context.Context, _, _ int) ([]models.Customer, int64, error) {
	all, _ := r.All(ctx)
	return all, int64(len(all)), nil
}

func (r *mockCustomerRepo) All(_ context.Context) ([]models.Customer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []models.Customer{}
	for _, c := range r.customers {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

// --- Mock event publisher ---

type mockEvents struct {
	mu     sync.Mutex
	events []services.Event
}

func (m *mockEvents) Publish(_ context.Context, e services.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
}

func (m *mockEvents) types() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.events))
	for i, e := range m.events {
		out[i] = e.Type
	}
	return out
}

// --- Mock SNS client ---

type mockSNS struct {
	topics     []string
	attributes []map[string]string
	err        error
}

func (m *mockSNS) Publish(_ context.Context, topicArn string, _ []byte, attributes map[string]string) error {
	m.topics = append(m.topics, topicArn)
	m.attributes = append(m.attributes, attributes)
	return m.err
}

// --- Mock presigner ---

type mockPresigner struct {
	keys []string
}

func (m *mockPresigner) PresignPut(_ context.Context, key, contentType string, expiry time.Duration) (*aws_pkg.PresignedUpload, error) {
	m.keys = append(m.keys, key)
	return &aws_pkg.PresignedUpload{
		URL:       "https://bucket.s3.amazonaws.com/" + key + "?X-Amz-Signature=test",
		Method:    "PUT",
		Headers:   map[string]string{"Content-Type": contentType},
		ExpiresAt: time.Now().Add(expiry),
	}, nil
}

// --- Mock catalog cache ---

type mockCache struct {
	mu          sync.Mutex
	list        []models.HomeModel
	bySlug      map[string]*models.HomeModel
	invalidated int
}

func newMockCache() *mockCache {
	return &mockCache{bySlug: make(map[string]*models.HomeModel)}
}

func (c *mockCache) GetModels(context.Context) ([]models.HomeModel, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.list, c.list != nil
}

func (c *mockCache) SetModels(_ context.Context, list []models.HomeModel) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.list = list
}

func (c *mockCache) GetModel(_ context.Context, slug string) (*models.HomeModel, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, ok := c.bySlug[slug]
	return m, ok
}

func (c *mockCache) SetModel(_ context.Context, m *models.HomeModel) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bySlug[m.Slug] = m
}

func (c *mockCache) Invalidate(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.list = nil
	c.bySlug = make(map[string]*models.HomeModel)
	c.invalidated++
	return nil
}

// --- Fixtures ---

var (
	buyer    = auth.Identity{UserID: "user_buyer", Email: "buyer@example.com", Role: auth.RoleCustomer}
	stranger = auth.Identity{UserID: "user_other", Role: auth.RoleCustomer}
	admin    = auth.Identity{UserID: "user_admin", Role: auth.RoleAdmin}
)

var testRules = services.PricingRules{DepositPercent: 25, TaxRateBps: 0, DeliveryFee: 0}

func testLogger() *zap.Logger {
	return zap.NewNop()
}

// magnolia is a 6,000,000-cent model with one required single-choice group
// and one optional multi-choice group.
func magnolia() *models.HomeModel {
	return &models.HomeModel{
		ID:        "model-magnolia",
		Slug:      "magnolia",
		ModelCode: "APS-630A",
		Name:      "The Magnolia",
		BasePrice: 6000000,
		Active:    true,
		Images:    []models.ModelImage{},
		OptionGroups: []models.OptionGroup{
			{
				Key:      "siding",
				Name:     "Exterior siding",
				Required: true,
				Options: []models.ModelOption{
					{Key: "lap", Name: "Lap siding", Price: 0},
					{Key: "cedar", Name: "Cedar shake", Price: 350000},
				},
			},
			{
				Key:   "extras",
				Name:  "Extras",
				Multi: true,
				Options: []models.ModelOption{
					{Key: "porch", Name: "Covered porch", Price: 450000},
					{Key: "solar", Name: "Solar package", Price: 900000},
				},
			},
		},
	}
}

func testOrder(id, userID string, plan models.PaymentPlan, total int64) *models.Order {
	now := time.Now().UTC()
	return &models.Order{
		ID:               id,
		OrderNumber:      "FF-20250101-" + id,
		BuildID:          "build-" + id,
		UserID:           userID,
		Customer:         models.OrderCustomer{Name: "Jane Buyer", Email: "buyer@example.com"},
		ModelSlug:        "magnolia",
		ModelName:        "The Magnolia",
		Pricing:          models.Pricing{Total: total, Subtotal: total, Base: total},
		Currency:         "usd",
		PaymentPlan:      plan,
		PaymentMethod:    models.PaymentMethodCard,
		Milestones:       services.Milestones(total, plan, 25),
		Status:           models.OrderStatusPendingPayment,
		ProductionStatus: models.ProductionNotStarted,
		Timeline:         []models.TimelineEntry{},
		Notes:            []models.OrderNote{},
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}
