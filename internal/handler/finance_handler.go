package handler

import (
	"net/http"

	"github.com/boddenberg/fintrack-go/internal/domain"
	"github.com/boddenberg/fintrack-go/internal/service"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// financeMutation is returned by every finance write: the item the backend
// answered with, if any, and the state after the reload.
type financeMutation struct {
	Item  any                 `json:"item,omitempty"`
	State domain.FinanceState `json:"state"`
}

type activeRequest struct {
	Active bool `json:"active"`
}

type monthRequest struct {
	Month domain.MonthKey `json:"month"`
}

func mountFinance(r chi.Router, finance *service.FinanceAggregator, logger *zap.Logger) {
	r.Get("/", financeStateHandler(finance))
	r.Put("/active", financeActiveHandler(finance, logger))
	r.Put("/month", financeMonthHandler(finance, logger))
	r.Post("/clear-error", financeClearErrorHandler(finance))
	r.Get("/months/{month}", financeMonthSummaryHandler(finance, logger))

	r.Get("/transactions", loadTransactionsHandler(finance, logger))
	r.Post("/transactions", createTransactionHandler(finance, logger))
	r.Put("/transactions/{id}", updateTransactionHandler(finance, logger))
	r.Delete("/transactions/{id}", deleteTransactionHandler(finance, logger))

	r.Get("/categories", loadCategoriesHandler(finance, logger))
	r.Post("/categories", createCategoryHandler(finance, logger))
	r.Put("/categories/{id}", updateCategoryHandler(finance, logger))
	r.Delete("/categories/{id}", deleteCategoryHandler(finance, logger))

	r.Get("/goals", loadGoalsHandler(finance, logger))
	r.Post("/goals", createGoalHandler(finance, logger))
	r.Post("/goals/local", addGoalLocalHandler(finance, logger))
	r.Put("/goals/{id}", updateGoalHandler(finance, logger))
	r.Delete("/goals/{id}", deleteGoalHandler(finance, logger))

	r.Get("/payment-methods", loadPaymentMethodsHandler(finance, logger))
	r.Post("/payment-methods", createPaymentMethodHandler(finance, logger))
	r.Put("/payment-methods/{id}", updatePaymentMethodHandler(finance, logger))
	r.Delete("/payment-methods/{id}", deletePaymentMethodHandler(finance, logger))
}

// ============================================================
// State & activation
// ============================================================

func financeStateHandler(finance *service.FinanceAggregator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, finance.Snapshot())
	}
}

func financeActiveHandler(finance *service.FinanceAggregator, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PUT /v1/finance/active")
		defer span.End()

		var req activeRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if err := finance.SetActive(ctx, req.Active); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, finance.Snapshot())
	}
}

func financeMonthHandler(finance *service.FinanceAggregator, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PUT /v1/finance/month")
		defer span.End()

		var req monthRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if err := finance.SetCurrentMonth(ctx, req.Month); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, finance.Snapshot())
	}
}

func financeClearErrorHandler(finance *service.FinanceAggregator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		finance.ClearError()
		writeJSON(w, http.StatusOK, finance.Snapshot())
	}
}

func financeMonthSummaryHandler(finance *service.FinanceAggregator, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key, err := domain.ParseMonth(chi.URLParam(r, "month"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		summary, ok := finance.MonthSummary(key)
		if !ok {
			handleServiceError(w, &domain.ErrNotFound{Resource: "month", ID: key.String()}, logger)
			return
		}
		writeJSON(w, http.StatusOK, summary)
	}
}

// ============================================================
// Transactions
// ============================================================

// loadTransactionsHandler reloads ?month= (all months when absent). A load
// dropped by the in-flight guard answers 202 with the current state.
func loadTransactionsHandler(finance *service.FinanceAggregator, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/finance/transactions")
		defer span.End()

		month, err := monthParam(r)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		skipped, err := finance.LoadTransactions(ctx, month)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		status := http.StatusOK
		if skipped {
			status = http.StatusAccepted
		}
		writeJSON(w, status, finance.Snapshot())
	}
}

func createTransactionHandler(finance *service.FinanceAggregator, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/finance/transactions")
		defer span.End()

		var in domain.TransactionInput
		if !decodeBody(w, r, &in) {
			return
		}
		tx, err := finance.CreateTransaction(ctx, in)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, financeMutation{Item: tx, State: finance.Snapshot()})
	}
}

func updateTransactionHandler(finance *service.FinanceAggregator, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PUT /v1/finance/transactions/{id}")
		defer span.End()

		var in domain.TransactionInput
		if !decodeBody(w, r, &in) {
			return
		}
		tx, err := finance.UpdateTransaction(ctx, chi.URLParam(r, "id"), in)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, financeMutation{Item: tx, State: finance.Snapshot()})
	}
}

func deleteTransactionHandler(finance *service.FinanceAggregator, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "DELETE /v1/finance/transactions/{id}")
		defer span.End()

		if err := finance.DeleteTransaction(ctx, chi.URLParam(r, "id")); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, financeMutation{State: finance.Snapshot()})
	}
}

// ============================================================
// Categories
// ============================================================

func loadCategoriesHandler(finance *service.FinanceAggregator, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/finance/categories")
		defer span.End()

		if err := finance.LoadCategories(ctx); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, finance.Snapshot().Categories)
	}
}

func createCategoryHandler(finance *service.FinanceAggregator, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/finance/categories")
		defer span.End()

		var in domain.CategoryInput
		if !decodeBody(w, r, &in) {
			return
		}
		c, err := finance.CreateCategory(ctx, in)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, financeMutation{Item: c, State: finance.Snapshot()})
	}
}

func updateCategoryHandler(finance *service.FinanceAggregator, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PUT /v1/finance/categories/{id}")
		defer span.End()

		var in domain.CategoryInput
		if !decodeBody(w, r, &in) {
			return
		}
		c, err := finance.UpdateCategory(ctx, chi.URLParam(r, "id"), in)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, financeMutation{Item: c, State: finance.Snapshot()})
	}
}

func deleteCategoryHandler(finance *service.FinanceAggregator, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "DELETE /v1/finance/categories/{id}")
		defer span.End()

		if err := finance.DeleteCategory(ctx, chi.URLParam(r, "id")); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, financeMutation{State: finance.Snapshot()})
	}
}

// ============================================================
// Goals
// ============================================================

func loadGoalsHandler(finance *service.FinanceAggregator, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/finance/goals")
		defer span.End()

		if err := finance.LoadGoals(ctx); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, finance.Snapshot().Goals)
	}
}

func createGoalHandler(finance *service.FinanceAggregator, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/finance/goals")
		defer span.End()

		var in domain.GoalInput
		if !decodeBody(w, r, &in) {
			return
		}
		g, err := finance.CreateGoal(ctx, in)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, financeMutation{Item: g, State: finance.Snapshot()})
	}
}

// addGoalLocalHandler keeps the goal in memory only; nothing reaches the backend.
func addGoalLocalHandler(finance *service.FinanceAggregator, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in domain.GoalInput
		if !decodeBody(w, r, &in) {
			return
		}
		g, err := finance.AddGoalLocal(in)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, financeMutation{Item: g, State: finance.Snapshot()})
	}
}

func updateGoalHandler(finance *service.FinanceAggregator, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PUT /v1/finance/goals/{id}")
		defer span.End()

		var in domain.GoalInput
		if !decodeBody(w, r, &in) {
			return
		}
		g, err := finance.UpdateGoal(ctx, chi.URLParam(r, "id"), in)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, financeMutation{Item: g, State: finance.Snapshot()})
	}
}

func deleteGoalHandler(finance *service.FinanceAggregator, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "DELETE /v1/finance/goals/{id}")
		defer span.End()

		if err := finance.DeleteGoal(ctx, chi.URLParam(r, "id")); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, financeMutation{State: finance.Snapshot()})
	}
}

// ============================================================
// Payment methods
// ============================================================

func loadPaymentMethodsHandler(finance *service.FinanceAggregator, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/finance/payment-methods")
		defer span.End()

		if err := finance.LoadPaymentMethods(ctx); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, finance.PaymentMethods())
	}
}

func createPaymentMethodHandler(finance *service.FinanceAggregator, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/finance/payment-methods")
		defer span.End()

		var in domain.PaymentMethodInput
		if !decodeBody(w, r, &in) {
			return
		}
		m, err := finance.CreatePaymentMethod(ctx, in)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, financeMutation{Item: m, State: finance.Snapshot()})
	}
}

func updatePaymentMethodHandler(finance *service.FinanceAggregator, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PUT /v1/finance/payment-methods/{id}")
		defer span.End()

		var in domain.PaymentMethodInput
		if !decodeBody(w, r, &in) {
			return
		}
		m, err := finance.UpdatePaymentMethod(ctx, chi.URLParam(r, "id"), in)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, financeMutation{Item: m, State: finance.Snapshot()})
	}
}

func deletePaymentMethodHandler(finance *service.FinanceAggregator, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "DELETE /v1/finance/payment-methods/{id}")
		defer span.End()

		if err := finance.DeletePaymentMethod(ctx, chi.URLParam(r, "id")); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, financeMutation{State: finance.Snapshot()})
	}
}
