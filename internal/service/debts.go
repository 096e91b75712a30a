package service

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/boddenberg/fintrack-go/internal/domain"
	"github.com/boddenberg/fintrack-go/internal/infra/observability"
	"github.com/boddenberg/fintrack-go/internal/port"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var debtTracer = otel.Tracer("service/debts")

// allMonths is the summary cache key used when no month filter is given.
const allMonths = "all"

// DebtAggregator owns people, debts, their month buckets and the server summary.
type DebtAggregator struct {
	api       port.DebtAPI
	tokens    port.KeyValueStore
	methods   port.PaymentMethodSource
	summaries port.Cache[*domain.DebtSummaryResponse]
	metrics   *observability.Metrics
	logger    *zap.Logger

	mu           sync.RWMutex
	people       []domain.Person
	debts        []domain.Debt
	monthly      []domain.MonthlyDebtSummary
	summary      *domain.DebtSummaryResponse
	summaryMonth domain.MonthKey
	listMonth    domain.MonthKey
	currentMonth domain.MonthKey
	active       bool
	initialized  bool
	inflight     int
	lastErr      string
}

// NewDebtAggregator creates an inactive aggregator. methods may be nil.
func NewDebtAggregator(
	api port.DebtAPI,
	tokens port.KeyValueStore,
	methods port.PaymentMethodSource,
	summaries port.Cache[*domain.DebtSummaryResponse],
	metrics *observability.Metrics,
	logger *zap.Logger,
) *DebtAggregator {
	return &DebtAggregator{
		api:          api,
		tokens:       tokens,
		methods:      methods,
		summaries:    summaries,
		metrics:      metrics,
		logger:       logger,
		currentMonth: domain.CurrentMonth(time.Now()),
	}
}

// Snapshot returns a copy of the current state, with the finance side's payment methods.
func (d *DebtAggregator) Snapshot() domain.DebtState {
	methods := []domain.PaymentMethod{}
	if d.methods != nil {
		methods = cloneOrEmpty(d.methods.PaymentMethods())
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	return domain.DebtState{
		People:         cloneOrEmpty(d.people),
		Debts:          cloneOrEmpty(d.debts),
		MonthlyData:    cloneDebtBuckets(d.monthly),
		Summary:        d.summary,
		PaymentMethods: methods,
		CurrentMonth:   d.currentMonth,
		Active:         d.active,
		IsLoading:      d.inflight > 0,
		Error:          d.lastErr,
	}
}

// ClearError drops the last error message.
func (d *DebtAggregator) ClearError() {
	d.mu.Lock()
	d.lastErr = ""
	d.mu.Unlock()
}

func (d *DebtAggregator) begin(ctx context.Context, op string) (context.Context, func(error)) {
	ctx, span := debtTracer.Start(ctx, "DebtAggregator."+op)
	start := time.Now()

	d.mu.Lock()
	d.inflight++
	d.lastErr = ""
	d.mu.Unlock()

	return ctx, func(err error) {
		d.mu.Lock()
		d.inflight--
		if err != nil {
			d.lastErr = domain.Message(err)
		}
		d.mu.Unlock()

		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			d.logger.Warn("debts: operation failed", zap.String("op", op), zap.Error(err))
		}
		d.metrics.RecordRequestDuration("debts."+op, time.Since(start))
		span.End()
	}
}

// ============================================================
// People
// ============================================================

// LoadPeople replaces the people list.
func (d *DebtAggregator) LoadPeople(ctx context.Context) (err error) {
	ctx, done := d.begin(ctx, "LoadPeople")
	defer func() { done(err) }()

	people, err := d.api.ListPeople(ctx)
	if err != nil {
		return err
	}
	d.mu.Lock()
	d.people = people
	d.mu.Unlock()
	return nil
}

// CreatePerson creates a person and reloads the list.
func (d *DebtAggregator) CreatePerson(ctx context.Context, in domain.PersonInput) (p *domain.Person, err error) {
	ctx, done := d.begin(ctx, "CreatePerson")
	defer func() { done(err) }()

	if err := in.Validate(); err != nil {
		return nil, err
	}
	if p, err = d.api.CreatePerson(ctx, in); err != nil {
		return nil, err
	}
	return p, d.LoadPeople(ctx)
}

// UpdatePerson updates a person and reloads the list.
func (d *DebtAggregator) UpdatePerson(ctx context.Context, id string, in domain.PersonInput) (p *domain.Person, err error) {
	ctx, done := d.begin(ctx, "UpdatePerson")
	defer func() { done(err) }()

	if err := in.Validate(); err != nil {
		return nil, err
	}
	if p, err = d.api.UpdatePerson(ctx, id, in); err != nil {
		return nil, err
	}
	return p, d.LoadPeople(ctx)
}

// DeletePerson deletes a person and reloads the list.
func (d *DebtAggregator) DeletePerson(ctx context.Context, id string) (err error) {
	ctx, done := d.begin(ctx, "DeletePerson")
	defer func() { done(err) }()

	if err := d.api.DeletePerson(ctx, id); err != nil {
		return err
	}
	return d.LoadPeople(ctx)
}

// PersonSummary rolls up the loaded debts of the person with id.
func (d *DebtAggregator) PersonSummary(id string) (domain.PersonSummary, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	i := slices.IndexFunc(d.people, func(p domain.Person) bool { return p.ID == id })
	if i < 0 {
		return domain.PersonSummary{}, &domain.ErrNotFound{Resource: "person", ID: id}
	}
	return SummarizePerson(d.people[i], d.debts), nil
}

// ============================================================
// Debts
// ============================================================

// LoadDebts replaces the debt list with the backend's list for month (all
// months when empty) and regroups it.
func (d *DebtAggregator) LoadDebts(ctx context.Context, month domain.MonthKey) (err error) {
	ctx, done := d.begin(ctx, "LoadDebts")
	defer func() { done(err) }()

	debts, err := d.api.ListDebts(ctx, month)
	if err != nil {
		return err
	}
	monthly := GroupDebts(debts)

	d.mu.Lock()
	d.debts = debts
	d.monthly = monthly
	d.listMonth = month
	d.mu.Unlock()

	d.logger.Debug("debts: debts loaded",
		zap.String("month", month.String()),
		zap.Int("count", len(debts)),
	)
	return nil
}

// LoadDebtSummary fetches the server summary for month, served from the
// cache while fresh.
func (d *DebtAggregator) LoadDebtSummary(ctx context.Context, month domain.MonthKey) (s *domain.DebtSummaryResponse, err error) {
	ctx, done := d.begin(ctx, "LoadDebtSummary")
	defer func() { done(err) }()

	key := summaryKey(month)
	if cached, ok := d.summaries.Get(key); ok {
		d.metrics.IncrCacheHit("debt_summary")
		d.setSummary(month, cached)
		return cached, nil
	}
	d.metrics.IncrCacheMiss("debt_summary")

	s, err = d.api.GetDebtSummary(ctx, month)
	if err != nil {
		return nil, err
	}
	if s == nil {
		s = &domain.DebtSummaryResponse{DebtsByPerson: map[string]domain.DebtByPerson{}}
	}
	d.summaries.Set(key, s)
	d.setSummary(month, s)
	return s, nil
}

func (d *DebtAggregator) setSummary(month domain.MonthKey, s *domain.DebtSummaryResponse) {
	d.mu.Lock()
	d.summary = s
	d.summaryMonth = month
	d.mu.Unlock()
}

// CreateDebt creates a debt, then reloads the list. A failed reload patches
// the created debt into its bucket.
func (d *DebtAggregator) CreateDebt(ctx context.Context, in domain.DebtInput) (debt *domain.Debt, err error) {
	ctx, done := d.begin(ctx, "CreateDebt")
	defer func() { done(err) }()

	if err := in.Validate(); err != nil {
		return nil, err
	}
	if debt, err = d.api.CreateDebt(ctx, in); err != nil {
		return nil, err
	}
	d.afterMutation(ctx, func(b []domain.MonthlyDebtSummary) []domain.MonthlyDebtSummary {
		if debt == nil {
			return b
		}
		return AddDebt(b, *debt)
	})
	return debt, nil
}

// UpdateDebt updates the debt with id, then reloads like CreateDebt.
func (d *DebtAggregator) UpdateDebt(ctx context.Context, id string, in domain.DebtInput) (debt *domain.Debt, err error) {
	ctx, done := d.begin(ctx, "UpdateDebt")
	defer func() { done(err) }()

	if err := in.Validate(); err != nil {
		return nil, err
	}
	if debt, err = d.api.UpdateDebt(ctx, id, in); err != nil {
		return nil, err
	}
	d.afterMutation(ctx, func(b []domain.MonthlyDebtSummary) []domain.MonthlyDebtSummary {
		if debt == nil {
			return b
		}
		return ReplaceDebt(b, *debt)
	})
	return debt, nil
}

// UpdateDebtPayment records a payment on the debt with id, then reloads like CreateDebt.
func (d *DebtAggregator) UpdateDebtPayment(ctx context.Context, id string, p domain.DebtPayment) (debt *domain.Debt, err error) {
	ctx, done := d.begin(ctx, "UpdateDebtPayment")
	defer func() { done(err) }()

	if err := p.ValidateAgainst(d.knownDebt(id)); err != nil {
		return nil, err
	}
	if debt, err = d.api.UpdateDebtPayment(ctx, id, p); err != nil {
		return nil, err
	}
	d.afterMutation(ctx, func(b []domain.MonthlyDebtSummary) []domain.MonthlyDebtSummary {
		if debt == nil {
			return b
		}
		return ReplaceDebt(b, *debt)
	})
	return debt, nil
}

// knownDebt returns a copy of the loaded debt with id, or nil.
func (d *DebtAggregator) knownDebt(id string) *domain.Debt {
	d.mu.RLock()
	defer d.mu.RUnlock()

	i := slices.IndexFunc(d.debts, func(debt domain.Debt) bool { return debt.ID == id })
	if i < 0 {
		return nil
	}
	debt := d.debts[i]
	return &debt
}

// DeleteDebt deletes the debt with id, then reloads like CreateDebt.
func (d *DebtAggregator) DeleteDebt(ctx context.Context, id string) (err error) {
	ctx, done := d.begin(ctx, "DeleteDebt")
	defer func() { done(err) }()

	if err := d.api.DeleteDebt(ctx, id); err != nil {
		return err
	}
	d.afterMutation(ctx, func(b []domain.MonthlyDebtSummary) []domain.MonthlyDebtSummary {
		return RemoveDebt(b, id)
	})
	return nil
}

// afterMutation drops cached summaries, reloads the list with the last month
// filter and falls back to patch when the reload fails. A summary already on
// screen is refreshed.
func (d *DebtAggregator) afterMutation(ctx context.Context, patch func([]domain.MonthlyDebtSummary) []domain.MonthlyDebtSummary) {
	d.summaries.Purge()

	d.mu.RLock()
	month, summaryMonth, hadSummary := d.listMonth, d.summaryMonth, d.summary != nil
	d.mu.RUnlock()

	if err := d.LoadDebts(ctx, month); err != nil {
		d.logger.Warn("debts: reload after mutation failed, patching locally", zap.Error(err))
		d.mu.Lock()
		d.monthly = patch(d.monthly)
		d.debts = FlattenDebts(d.monthly)
		d.mu.Unlock()
	}

	if hadSummary {
		if _, err := d.LoadDebtSummary(ctx, summaryMonth); err != nil {
			d.logger.Warn("debts: summary refresh failed", zap.Error(err))
		}
	}
}

// ============================================================
// Activation
// ============================================================

// SetActive turns automatic loading on or off. Becoming active with a stored
// token reloads people and debts.
func (d *DebtAggregator) SetActive(ctx context.Context, active bool) error {
	d.mu.Lock()
	was := d.active
	d.active = active
	d.mu.Unlock()

	if !active || was {
		return nil
	}
	return d.initialize(ctx)
}

// SetCurrentMonth selects month and, once initialized and active, loads its debts.
func (d *DebtAggregator) SetCurrentMonth(ctx context.Context, month domain.MonthKey) error {
	if !month.Valid() {
		return &domain.ErrValidation{Field: "month", Message: "mês deve estar no formato YYYY-MM"}
	}

	d.mu.Lock()
	d.currentMonth = month
	load := d.initialized && d.active
	d.mu.Unlock()

	if !load || !hasToken(ctx, d.tokens, d.logger) {
		return nil
	}
	return d.LoadDebts(ctx, month)
}

// Watch reacts to authToken changes until ctx ends or changes is closed.
func (d *DebtAggregator) Watch(ctx context.Context, changes <-chan domain.StorageChange) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case change, ok := <-changes:
			if !ok {
				return nil
			}
			if change.Key != domain.KeyAuthToken {
				continue
			}
			if change.Removed() {
				d.Reset()
				continue
			}
			if err := d.initialize(ctx); err != nil {
				d.logger.Warn("debts: load after login failed", zap.Error(err))
			}
		}
	}
}

// Reset drops every loaded list and cached summary, as on logout.
func (d *DebtAggregator) Reset() {
	d.summaries.Purge()

	d.mu.Lock()
	defer d.mu.Unlock()

	d.people = nil
	d.debts = nil
	d.monthly = nil
	d.summary = nil
	d.summaryMonth = ""
	d.listMonth = ""
	d.initialized = false
	d.lastErr = ""
	d.logger.Info("debts: state reset")
}

// initialize loads people and every debt concurrently. It is a no-op while
// inactive or logged out.
func (d *DebtAggregator) initialize(ctx context.Context) error {
	d.mu.RLock()
	active := d.active
	d.mu.RUnlock()
	if !active || !hasToken(ctx, d.tokens, d.logger) {
		return nil
	}

	ctx, span := debtTracer.Start(ctx, "DebtAggregator.initialize")
	defer span.End()
	span.SetAttributes(attribute.Bool("reload", d.isInitialized()))

	d.mu.Lock()
	d.initialized = true
	d.mu.Unlock()

	var g errgroup.Group
	var peopleErr, debtsErr error
	g.Go(func() error {
		peopleErr = d.LoadPeople(ctx)
		return nil
	})
	g.Go(func() error {
		debtsErr = d.LoadDebts(ctx, "")
		return nil
	})
	_ = g.Wait()
	return errors.Join(peopleErr, debtsErr)
}

func (d *DebtAggregator) isInitialized() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.initialized
}

func summaryKey(month domain.MonthKey) string {
	if month == "" {
		return allMonths
	}
	return string(month)
}
