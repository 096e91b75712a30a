// Package service holds the client runtime: the session store and the
// finance and debt aggregators that mirror backend data into local state.
package service

import (
	"context"
	"errors"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/boddenberg/fintrack-go/internal/domain"
	"github.com/boddenberg/fintrack-go/internal/infra/observability"
	"github.com/boddenberg/fintrack-go/internal/port"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var financeTracer = otel.Tracer("service/finance")

// FinanceAggregator owns transactions, their month buckets, categories, goals
// and payment methods. Network calls run outside the lock; the last response wins.
type FinanceAggregator struct {
	api     port.FinanceAPI
	tokens  port.KeyValueStore
	metrics *observability.Metrics
	logger  *zap.Logger

	// loadingTx drops overlapping LoadTransactions calls.
	loadingTx atomic.Bool

	mu             sync.RWMutex
	transactions   []domain.Transaction
	monthly        []domain.MonthlyFinanceSummary
	categories     []domain.Category
	goals          []domain.FinancialGoal
	paymentMethods []domain.PaymentMethod
	currentMonth   domain.MonthKey
	active         bool
	initialized    bool
	inflight       int
	lastErr        string
}

// NewFinanceAggregator creates an inactive aggregator positioned on the current month.
func NewFinanceAggregator(api port.FinanceAPI, tokens port.KeyValueStore, metrics *observability.Metrics, logger *zap.Logger) *FinanceAggregator {
	return &FinanceAggregator{
		api:          api,
		tokens:       tokens,
		metrics:      metrics,
		logger:       logger,
		currentMonth: domain.CurrentMonth(time.Now()),
	}
}

// Snapshot returns a copy of the current state.
func (f *FinanceAggregator) Snapshot() domain.FinanceState {
	f.mu.RLock()
	defer f.mu.RUnlock()

	return domain.FinanceState{
		Transactions:   cloneOrEmpty(f.transactions),
		MonthlyData:    cloneFinanceBuckets(f.monthly),
		Categories:     cloneOrEmpty(f.categories),
		Goals:          cloneOrEmpty(f.goals),
		PaymentMethods: cloneOrEmpty(f.paymentMethods),
		CurrentMonth:   f.currentMonth,
		Active:         f.active,
		IsLoading:      f.inflight > 0,
		Error:          f.lastErr,
	}
}

// MonthSummary returns the bucket for key, if one exists.
func (f *FinanceAggregator) MonthSummary(key domain.MonthKey) (domain.MonthlyFinanceSummary, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if i := findFinanceBucket(f.monthly, key); i >= 0 {
		return cloneFinanceBuckets(f.monthly[i : i+1])[0], true
	}
	return domain.MonthlyFinanceSummary{}, false
}

// PaymentMethods returns the loaded payment methods.
func (f *FinanceAggregator) PaymentMethods() []domain.PaymentMethod {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return cloneOrEmpty(f.paymentMethods)
}

// ClearError drops the last error message.
func (f *FinanceAggregator) ClearError() {
	f.mu.Lock()
	f.lastErr = ""
	f.mu.Unlock()
}

// begin marks an operation in flight and clears the previous error. The
// returned func must be called with the operation's outcome.
func (f *FinanceAggregator) begin(ctx context.Context, op string) (context.Context, func(error)) {
	ctx, span := financeTracer.Start(ctx, "FinanceAggregator."+op)
	start := time.Now()

	f.mu.Lock()
	f.inflight++
	f.lastErr = ""
	f.mu.Unlock()

	return ctx, func(err error) {
		f.mu.Lock()
		f.inflight--
		if err != nil {
			f.lastErr = domain.Message(err)
		}
		f.mu.Unlock()

		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			f.logger.Warn("finance: operation failed", zap.String("op", op), zap.Error(err))
		}
		f.metrics.RecordRequestDuration("finance."+op, time.Since(start))
		span.End()
	}
}

// ============================================================
// Transactions
// ============================================================

// LoadTransactions replaces the transaction list with the backend's list for
// month (all months when empty) and regroups it. A call made while another
// is in flight is dropped and reported as skipped.
func (f *FinanceAggregator) LoadTransactions(ctx context.Context, month domain.MonthKey) (skipped bool, err error) {
	if !f.loadingTx.CompareAndSwap(false, true) {
		f.metrics.IncrSkippedLoad("transactions")
		f.logger.Debug("finance: transaction load already in flight", zap.String("month", month.String()))
		return true, nil
	}
	defer f.loadingTx.Store(false)

	ctx, done := f.begin(ctx, "LoadTransactions")
	defer func() { done(err) }()

	txs, err := f.api.ListTransactions(ctx, month)
	if err != nil {
		return false, err
	}

	monthly := GroupTransactions(txs)

	f.mu.Lock()
	f.transactions = txs
	f.monthly = monthly
	f.mu.Unlock()

	f.logger.Debug("finance: transactions loaded",
		zap.String("month", month.String()),
		zap.Int("count", len(txs)),
		zap.Int("buckets", len(monthly)),
	)
	return false, nil
}

// CreateTransaction creates tx and reloads the current month. When the reload
// is skipped or fails, the created transaction is patched into its bucket.
func (f *FinanceAggregator) CreateTransaction(ctx context.Context, in domain.TransactionInput) (tx *domain.Transaction, err error) {
	ctx, done := f.begin(ctx, "CreateTransaction")
	defer func() { done(err) }()

	if err := in.Validate(); err != nil {
		return nil, err
	}
	tx, err = f.api.CreateTransaction(ctx, in)
	if err != nil {
		return nil, err
	}

	if f.reloadTransactions(ctx) || tx == nil {
		return tx, nil
	}
	f.patchBuckets(func(b []domain.MonthlyFinanceSummary) []domain.MonthlyFinanceSummary {
		return AddTransaction(b, *tx)
	})
	return tx, nil
}

// UpdateTransaction updates the transaction with id, then reloads like CreateTransaction.
func (f *FinanceAggregator) UpdateTransaction(ctx context.Context, id string, in domain.TransactionInput) (tx *domain.Transaction, err error) {
	ctx, done := f.begin(ctx, "UpdateTransaction")
	defer func() { done(err) }()

	if err := in.Validate(); err != nil {
		return nil, err
	}
	tx, err = f.api.UpdateTransaction(ctx, id, in)
	if err != nil {
		return nil, err
	}

	if f.reloadTransactions(ctx) || tx == nil {
		return tx, nil
	}
	f.patchBuckets(func(b []domain.MonthlyFinanceSummary) []domain.MonthlyFinanceSummary {
		return ReplaceTransaction(b, *tx)
	})
	return tx, nil
}

// DeleteTransaction deletes the transaction with id, then reloads like CreateTransaction.
func (f *FinanceAggregator) DeleteTransaction(ctx context.Context, id string) (err error) {
	ctx, done := f.begin(ctx, "DeleteTransaction")
	defer func() { done(err) }()

	if err := f.api.DeleteTransaction(ctx, id); err != nil {
		return err
	}

	if f.reloadTransactions(ctx) {
		return nil
	}
	f.patchBuckets(func(b []domain.MonthlyFinanceSummary) []domain.MonthlyFinanceSummary {
		return RemoveTransaction(b, id)
	})
	return nil
}

// reloadTransactions reloads the current month and reports whether the
// list now reflects the backend.
func (f *FinanceAggregator) reloadTransactions(ctx context.Context) bool {
	f.mu.RLock()
	month := f.currentMonth
	f.mu.RUnlock()

	skipped, err := f.LoadTransactions(ctx, month)
	if err != nil {
		f.logger.Warn("finance: reload after mutation failed, patching locally", zap.Error(err))
		return false
	}
	return !skipped
}

func (f *FinanceAggregator) patchBuckets(apply func([]domain.MonthlyFinanceSummary) []domain.MonthlyFinanceSummary) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.monthly = apply(f.monthly)
	f.transactions = FlattenTransactions(f.monthly)
}

// ============================================================
// Categories
// ============================================================

// LoadCategories replaces the category list.
func (f *FinanceAggregator) LoadCategories(ctx context.Context) (err error) {
	ctx, done := f.begin(ctx, "LoadCategories")
	defer func() { done(err) }()

	cats, err := f.api.ListCategories(ctx)
	if err != nil {
		return err
	}
	f.mu.Lock()
	f.categories = cats
	f.mu.Unlock()
	return nil
}

// CreateCategory creates a category and reloads the list.
func (f *FinanceAggregator) CreateCategory(ctx context.Context, in domain.CategoryInput) (c *domain.Category, err error) {
	ctx, done := f.begin(ctx, "CreateCategory")
	defer func() { done(err) }()

	if err := in.Validate(); err != nil {
		return nil, err
	}
	if c, err = f.api.CreateCategory(ctx, in); err != nil {
		return nil, err
	}
	return c, f.LoadCategories(ctx)
}

// UpdateCategory updates a category and reloads the list.
func (f *FinanceAggregator) UpdateCategory(ctx context.Context, id string, in domain.CategoryInput) (c *domain.Category, err error) {
	ctx, done := f.begin(ctx, "UpdateCategory")
	defer func() { done(err) }()

	if err := in.Validate(); err != nil {
		return nil, err
	}
	if c, err = f.api.UpdateCategory(ctx, id, in); err != nil {
		return nil, err
	}
	return c, f.LoadCategories(ctx)
}

// DeleteCategory deletes a category and reloads the list.
func (f *FinanceAggregator) DeleteCategory(ctx context.Context, id string) (err error) {
	ctx, done := f.begin(ctx, "DeleteCategory")
	defer func() { done(err) }()

	if err := f.api.DeleteCategory(ctx, id); err != nil {
		return err
	}
	return f.LoadCategories(ctx)
}

// ============================================================
// Goals
// ============================================================

// LoadGoals replaces the goal list.
func (f *FinanceAggregator) LoadGoals(ctx context.Context) (err error) {
	ctx, done := f.begin(ctx, "LoadGoals")
	defer func() { done(err) }()

	goals, err := f.api.ListGoals(ctx)
	if err != nil {
		return err
	}
	f.mu.Lock()
	f.goals = goals
	f.mu.Unlock()
	return nil
}

// CreateGoal creates a goal and reloads the list.
func (f *FinanceAggregator) CreateGoal(ctx context.Context, in domain.GoalInput) (g *domain.FinancialGoal, err error) {
	ctx, done := f.begin(ctx, "CreateGoal")
	defer func() { done(err) }()

	if err := in.Validate(); err != nil {
		return nil, err
	}
	if g, err = f.api.CreateGoal(ctx, in); err != nil {
		return nil, err
	}
	return g, f.LoadGoals(ctx)
}

// UpdateGoal updates a goal and reloads the list.
func (f *FinanceAggregator) UpdateGoal(ctx context.Context, id string, in domain.GoalInput) (g *domain.FinancialGoal, err error) {
	ctx, done := f.begin(ctx, "UpdateGoal")
	defer func() { done(err) }()

	if err := in.Validate(); err != nil {
		return nil, err
	}
	if g, err = f.api.UpdateGoal(ctx, id, in); err != nil {
		return nil, err
	}
	return g, f.LoadGoals(ctx)
}

// DeleteGoal deletes a goal and reloads the list.
func (f *FinanceAggregator) DeleteGoal(ctx context.Context, id string) (err error) {
	ctx, done := f.begin(ctx, "DeleteGoal")
	defer func() { done(err) }()

	if err := f.api.DeleteGoal(ctx, id); err != nil {
		return err
	}
	return f.LoadGoals(ctx)
}

// AddGoalLocal appends a goal to local state only. Nothing is sent to the
// backend and the next LoadGoals discards it.
func (f *FinanceAggregator) AddGoalLocal(in domain.GoalInput) (domain.FinancialGoal, error) {
	if err := in.Validate(); err != nil {
		return domain.FinancialGoal{}, err
	}
	g := domain.FinancialGoal{
		ID:            uuid.NewString(),
		Title:         in.Title,
		TargetAmount:  in.TargetAmount,
		CurrentAmount: in.CurrentAmount,
		Deadline:      in.Deadline,
		Description:   in.Description,
	}

	f.mu.Lock()
	f.goals = append(slices.Clip(f.goals), g)
	f.mu.Unlock()
	return g, nil
}

// ============================================================
// Payment methods
// ============================================================

// LoadPaymentMethods replaces the payment-method list. A failure is logged
// and returned but never written to the state error.
func (f *FinanceAggregator) LoadPaymentMethods(ctx context.Context) error {
	ctx, span := financeTracer.Start(ctx, "FinanceAggregator.LoadPaymentMethods")
	defer span.End()

	methods, err := f.api.ListPaymentMethods(ctx)
	if err != nil {
		span.RecordError(err)
		f.logger.Warn("finance: failed to load payment methods", zap.Error(err))
		return err
	}
	f.mu.Lock()
	f.paymentMethods = methods
	f.mu.Unlock()
	return nil
}

// CreatePaymentMethod creates a payment method and reloads the list.
func (f *FinanceAggregator) CreatePaymentMethod(ctx context.Context, in domain.PaymentMethodInput) (m *domain.PaymentMethod, err error) {
	ctx, done := f.begin(ctx, "CreatePaymentMethod")
	defer func() { done(err) }()

	if err := in.Validate(); err != nil {
		return nil, err
	}
	if m, err = f.api.CreatePaymentMethod(ctx, in); err != nil {
		return nil, err
	}
	return m, f.LoadPaymentMethods(ctx)
}

// UpdatePaymentMethod updates a payment method and reloads the list.
func (f *FinanceAggregator) UpdatePaymentMethod(ctx context.Context, id string, in domain.PaymentMethodInput) (m *domain.PaymentMethod, err error) {
	ctx, done := f.begin(ctx, "UpdatePaymentMethod")
	defer func() { done(err) }()

	if err := in.Validate(); err != nil {
		return nil, err
	}
	if m, err = f.api.UpdatePaymentMethod(ctx, id, in); err != nil {
		return nil, err
	}
	return m, f.LoadPaymentMethods(ctx)
}

// DeletePaymentMethod deletes a payment method and reloads the list.
func (f *FinanceAggregator) DeletePaymentMethod(ctx context.Context, id string) (err error) {
	ctx, done := f.begin(ctx, "DeletePaymentMethod")
	defer func() { done(err) }()

	if err := f.api.DeletePaymentMethod(ctx, id); err != nil {
		return err
	}
	return f.LoadPaymentMethods(ctx)
}

// ============================================================
// Activation
// ============================================================

// SetActive turns automatic loading on or off. Becoming active with a stored
// token (re)loads everything.
func (f *FinanceAggregator) SetActive(ctx context.Context, active bool) error {
	f.mu.Lock()
	was := f.active
	f.active = active
	f.mu.Unlock()

	if !active || was {
		return nil
	}
	return f.initialize(ctx)
}

// SetCurrentMonth selects month and, once initialized and active, loads its transactions.
func (f *FinanceAggregator) SetCurrentMonth(ctx context.Context, month domain.MonthKey) error {
	if !month.Valid() {
		return &domain.ErrValidation{Field: "month", Message: "mês deve estar no formato YYYY-MM"}
	}

	f.mu.Lock()
	f.currentMonth = month
	load := f.initialized && f.active
	f.mu.Unlock()

	if !load || !f.hasToken(ctx) {
		return nil
	}
	_, err := f.LoadTransactions(ctx, month)
	return err
}

// Watch reacts to authToken changes until ctx ends or changes is closed.
// A new token initializes an active aggregator; a removed one resets it.
func (f *FinanceAggregator) Watch(ctx context.Context, changes <-chan domain.StorageChange) error {
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
				f.Reset()
				continue
			}
			if err := f.initialize(ctx); err != nil {
				f.logger.Warn("finance: load after login failed", zap.Error(err))
			}
		}
	}
}

// Reset drops every loaded list, as on logout.
func (f *FinanceAggregator) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.transactions = nil
	f.monthly = nil
	f.categories = nil
	f.goals = nil
	f.paymentMethods = nil
	f.initialized = false
	f.lastErr = ""
	f.logger.Info("finance: state reset")
}

// initialize loads categories, goals and payment methods concurrently, then
// the current month's transactions. It is a no-op while inactive or logged out.
func (f *FinanceAggregator) initialize(ctx context.Context) error {
	f.mu.RLock()
	active, month := f.active, f.currentMonth
	f.mu.RUnlock()
	if !active || !f.hasToken(ctx) {
		return nil
	}

	ctx, span := financeTracer.Start(ctx, "FinanceAggregator.initialize")
	defer span.End()
	span.SetAttributes(attribute.String("month", month.String()))

	f.mu.Lock()
	f.initialized = true
	f.mu.Unlock()

	// A failed list must not cancel its siblings.
	var g errgroup.Group
	g.Go(func() error { return f.LoadCategories(ctx) })
	g.Go(func() error { return f.LoadGoals(ctx) })
	g.Go(func() error {
		_ = f.LoadPaymentMethods(ctx)
		return nil
	})
	listErr := g.Wait()

	_, txErr := f.LoadTransactions(ctx, month)
	return errors.Join(listErr, txErr)
}

func (f *FinanceAggregator) hasToken(ctx context.Context) bool {
	return hasToken(ctx, f.tokens, f.logger)
}

func hasToken(ctx context.Context, tokens port.KeyValueStore, logger *zap.Logger) bool {
	token, ok, err := tokens.Get(ctx, domain.KeyAuthToken)
	if err != nil {
		logger.Warn("failed to read auth token", zap.Error(err))
		return false
	}
	return ok && token != ""
}

func cloneOrEmpty[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return slices.Clone(s)
}
