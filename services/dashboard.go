package services

import (
	"context"
	"sort"
	"sync"
	"time"

	"budget-sync/engine"
	"budget-sync/models"
	"budget-sync/utils"
)

// Publisher receives recomputed dashboard views. The websocket hub
// implements this; tests use a capture fake.
type Publisher interface {
	PublishDashboard(userID string, view DashboardView)
}

// Stores bundles the four entity sources a dashboard syncs.
type Stores struct {
	Expenses    engine.Source[models.Expense]
	Goals       engine.Source[models.Goal]
	Suggestions engine.Source[models.Suggestion]
	Profile     engine.Source[models.Profile]
}

// CategoryBudgetStatus is the per-category budget-vs-spend comparison the
// UI colors by risk.
type CategoryBudgetStatus struct {
	Category   string    `json:"category"`
	Spent      float64   `json:"spent"`
	Budget     float64   `json:"budget"`
	Percent    float64   `json:"percent"`
	Risk       RiskLevel `json:"risk"`
	OverBudget bool      `json:"over_budget"`
}

// DashboardView is the complete derived state pushed to the presentation
// layer on every change. Delta is nil when last month had no spending.
type DashboardView struct {
	UserID           string                 `json:"user_id"`
	GeneratedAt      time.Time              `json:"generated_at"`
	Loading          bool                   `json:"loading"`
	SyncError        string                 `json:"sync_error,omitempty"`
	MonthTotal       float64                `json:"month_total"`
	LastMonthTotal   float64                `json:"last_month_total"`
	Delta            *float64               `json:"delta,omitempty"`
	CategoryTotals   map[string]float64     `json:"category_totals"`
	TopCategory      string                 `json:"top_category,omitempty"`
	TopCategoryTotal float64                `json:"top_category_total,omitempty"`
	BudgetStatus     []CategoryBudgetStatus `json:"budget_status"`
	Alerts           []models.Alert         `json:"alerts"`
	Goals            []models.Goal          `json:"goals"`
	Suggestions      []models.Suggestion    `json:"suggestions"`
}

// Dashboard owns the four synced collections for one user and recomputes
// the derived view whenever any of them changes.
type Dashboard struct {
	userID string
	cfg    AlertConfig
	pub    Publisher
	now    func() time.Time

	expenses    *engine.Collection[models.Expense]
	goals       *engine.Collection[models.Goal]
	suggestions *engine.Collection[models.Suggestion]
	profile     *engine.Collection[models.Profile]

	mu        sync.Mutex
	dismissed map[string]bool
	cancels   []func()
}

func newDashboard(userID string, stores Stores, subs *engine.LifecycleManager, cfg AlertConfig, pub Publisher, now func() time.Time) *Dashboard {
	return &Dashboard{
		userID:      userID,
		cfg:         cfg,
		pub:         pub,
		now:         now,
		dismissed:   make(map[string]bool),
		expenses:    engine.NewCollection(models.EntityExpenses, stores.Expenses, subs, engine.WithValidator(models.Expense.Validate)),
		goals:       engine.NewCollection(models.EntityGoals, stores.Goals, subs, engine.WithValidator(models.Goal.Validate)),
		suggestions: engine.NewCollection(models.EntitySuggestions, stores.Suggestions, subs, engine.WithValidator(models.Suggestion.Validate)),
		profile:     engine.NewCollection(models.EntityProfile, stores.Profile, subs, engine.WithValidator(models.Profile.Validate)),
	}
}

func (d *Dashboard) open(ctx context.Context) error {
	watch := func(cancel func()) {
		d.mu.Lock()
		d.cancels = append(d.cancels, cancel)
		d.mu.Unlock()
	}
	watch(d.expenses.Watch(func(engine.Snapshot[models.Expense]) { d.recompute() }))
	watch(d.goals.Watch(func(engine.Snapshot[models.Goal]) { d.recompute() }))
	watch(d.suggestions.Watch(func(engine.Snapshot[models.Suggestion]) { d.recompute() }))
	watch(d.profile.Watch(func(engine.Snapshot[models.Profile]) { d.recompute() }))

	if err := d.expenses.Open(ctx, d.userID); err != nil {
		return err
	}
	if err := d.goals.Open(ctx, d.userID); err != nil {
		return err
	}
	if err := d.suggestions.Open(ctx, d.userID); err != nil {
		return err
	}
	return d.profile.Open(ctx, d.userID)
}

func (d *Dashboard) close() {
	d.mu.Lock()
	cancels := d.cancels
	d.cancels = nil
	d.mu.Unlock()
	for _, cancel := range cancels {
		cancel()
	}

	d.expenses.Close()
	d.goals.Close()
	d.suggestions.Close()
	d.profile.Close()
}

// WaitReady blocks until every collection has finished its initial load, or
// ctx expires. A dashboard opened on demand serves its first view only after
// this returns nil; otherwise the caller would serialize a loading stub.
func (d *Dashboard) WaitReady(ctx context.Context) error {
	ready := make(chan struct{}, 1)
	check := func() {
		if !d.loading() {
			select {
			case ready <- struct{}{}:
			default:
			}
		}
	}

	cancels := []func(){
		d.expenses.Watch(func(engine.Snapshot[models.Expense]) { check() }),
		d.goals.Watch(func(engine.Snapshot[models.Goal]) { check() }),
		d.suggestions.Watch(func(engine.Snapshot[models.Suggestion]) { check() }),
		d.profile.Watch(func(engine.Snapshot[models.Profile]) { check() }),
	}
	defer func() {
		for _, cancel := range cancels {
			cancel()
		}
	}()

	check()
	select {
	case <-ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dashboard) loading() bool {
	return d.expenses.Current().Loading ||
		d.goals.Current().Loading ||
		d.suggestions.Current().Loading ||
		d.profile.Current().Loading
}

// Dismiss hides an alert by identity for this session. Local only.
func (d *Dashboard) Dismiss(alertID string) {
	d.mu.Lock()
	d.dismissed[alertID] = true
	d.mu.Unlock()
	d.recompute()
}

func (d *Dashboard) recompute() {
	d.pub.PublishDashboard(d.userID, d.View())
}

// View assembles the derived state from the current snapshots.
func (d *Dashboard) View() DashboardView {
	expenses := d.expenses.Current()
	goals := d.goals.Current()
	suggestions := d.suggestions.Current()
	profile := d.profile.Current()

	now := d.now()
	monthStart, monthEnd := MonthWindow(now)

	view := DashboardView{
		UserID:         d.userID,
		GeneratedAt:    now,
		Loading:        expenses.Loading || goals.Loading || suggestions.Loading || profile.Loading,
		MonthTotal:     WindowTotal(expenses.Items, monthStart, monthEnd),
		LastMonthTotal: MonthTotal(expenses.Items, now.AddDate(0, -1, 0)),
		CategoryTotals: CategoryTotals(expenses.Items, monthStart, monthEnd),
		Goals:          goals.Items,
		Suggestions:    suggestions.Items,
	}

	for _, snap := range []error{expenses.Err, goals.Err, suggestions.Err, profile.Err} {
		if snap != nil {
			view.SyncError = snap.Error()
			break
		}
	}

	if delta, ok := MonthOverMonthDelta(expenses.Items, now); ok {
		view.Delta = &delta
	}
	if category, total, ok := TopCategory(expenses.Items, monthStart, monthEnd); ok {
		view.TopCategory = category
		view.TopCategoryTotal = total
	}

	var income float64
	var allocations models.BudgetAllocations
	if len(profile.Items) > 0 {
		income = profile.Items[0].MonthlyIncome
		allocations = profile.Items[0].BudgetAllocations
	}

	for category, budget := range allocations {
		if budget <= 0 {
			continue
		}
		spent := view.CategoryTotals[category]
		view.BudgetStatus = append(view.BudgetStatus, CategoryBudgetStatus{
			Category:   category,
			Spent:      spent,
			Budget:     budget,
			Percent:    spent / budget * 100,
			Risk:       Risk(spent, budget, d.cfg.Risk),
			OverBudget: spent > budget,
		})
	}
	sortBudgetStatus(view.BudgetStatus)

	alerts := GenerateAlerts(AlertInput{
		CategoryTotals:       view.CategoryTotals,
		Allocations:          allocations,
		TodaySpend:           DayTotal(expenses.Items, now),
		TrailingDailyAverage: TrailingDailyAverage(expenses.Items, now),
		MonthSpend:           view.MonthTotal,
		MonthlyIncome:        income,
	}, d.cfg)

	d.mu.Lock()
	view.Alerts = FilterDismissed(alerts, d.dismissed)
	d.mu.Unlock()

	return view
}

// Budget rows render in a fixed order so consecutive pushes diff cleanly.
func sortBudgetStatus(rows []CategoryBudgetStatus) {
	sort.Slice(rows, func(i, j int) bool { return rows[i].Category < rows[j].Category })
}

// Expenses exposes the expense collection for mutation passthroughs.
func (d *Dashboard) Expenses() *engine.Collection[models.Expense] { return d.expenses }

// Goals exposes the goal collection.
func (d *Dashboard) Goals() *engine.Collection[models.Goal] { return d.goals }

// Suggestions exposes the suggestion collection.
func (d *Dashboard) Suggestions() *engine.Collection[models.Suggestion] { return d.suggestions }

// Profile exposes the profile collection.
func (d *Dashboard) Profile() *engine.Collection[models.Profile] { return d.profile }

// ----------------------------------------------------------------------------
// Manager
// ----------------------------------------------------------------------------

// DashboardManager tracks one dashboard per connected user, refcounted so
// several websocket sessions of the same user share a single set of
// collections and subscriptions.
type DashboardManager struct {
	stores Stores
	subs   *engine.LifecycleManager
	pub    Publisher
	cfg    AlertConfig
	now    func() time.Time

	mu       sync.Mutex
	sessions map[string]*dashboardSession
}

type dashboardSession struct {
	refs      int
	dashboard *Dashboard
}

func NewDashboardManager(stores Stores, subs *engine.LifecycleManager, pub Publisher, cfg AlertConfig) *DashboardManager {
	return &DashboardManager{
		stores:   stores,
		subs:     subs,
		pub:      pub,
		cfg:      cfg,
		now:      time.Now,
		sessions: make(map[string]*dashboardSession),
	}
}

// SetClock overrides the time source. Test helper.
func (m *DashboardManager) SetClock(now func() time.Time) { m.now = now }

// Connect opens (or joins) the dashboard for userID.
func (m *DashboardManager) Connect(ctx context.Context, userID string) (*Dashboard, error) {
	m.mu.Lock()
	if s, ok := m.sessions[userID]; ok {
		s.refs++
		d := s.dashboard
		m.mu.Unlock()
		return d, nil
	}

	d := newDashboard(userID, m.stores, m.subs, m.cfg, m.pub, m.now)
	m.sessions[userID] = &dashboardSession{refs: 1, dashboard: d}
	m.mu.Unlock()

	if err := d.open(ctx); err != nil {
		m.drop(userID)
		return nil, err
	}
	utils.LogSyncAction("dashboard opened", "dashboard", userID)
	return d, nil
}

// Disconnect drops one reference; the last disconnect tears everything down.
func (m *DashboardManager) Disconnect(userID string) {
	m.mu.Lock()
	s, ok := m.sessions[userID]
	if !ok {
		m.mu.Unlock()
		return
	}
	s.refs--
	if s.refs > 0 {
		m.mu.Unlock()
		return
	}
	delete(m.sessions, userID)
	m.mu.Unlock()

	s.dashboard.close()
	utils.LogSyncAction("dashboard closed", "dashboard", userID)
}

// CloseUser force-closes regardless of refcount. Used when the session's
// auth expires: collections must not linger for a logged-out user.
func (m *DashboardManager) CloseUser(userID string) {
	m.drop(userID)
	m.subs.ReleaseUser(userID)
}

func (m *DashboardManager) drop(userID string) {
	m.mu.Lock()
	s, ok := m.sessions[userID]
	delete(m.sessions, userID)
	m.mu.Unlock()
	if ok {
		s.dashboard.close()
	}
}

// Get returns the live dashboard for userID, if any.
func (m *DashboardManager) Get(userID string) (*Dashboard, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[userID]
	if !ok {
		return nil, false
	}
	return s.dashboard, true
}
