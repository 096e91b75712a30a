package handler

import (
	"net/http"

	"github.com/boddenberg/fintrack-go/internal/domain"
	"github.com/boddenberg/fintrack-go/internal/service"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type debtMutation struct {
	Item  any              `json:"item,omitempty"`
	State domain.DebtState `json:"state"`
}

func mountDebts(r chi.Router, debts *service.DebtAggregator, logger *zap.Logger) {
	r.Get("/", debtStateHandler(debts))
	r.Put("/active", debtActiveHandler(debts, logger))
	r.Put("/month", debtMonthHandler(debts, logger))
	r.Post("/clear-error", debtClearErrorHandler(debts))

	r.Get("/people", loadPeopleHandler(debts, logger))
	r.Post("/people", createPersonHandler(debts, logger))
	r.Put("/people/{id}", updatePersonHandler(debts, logger))
	r.Delete("/people/{id}", deletePersonHandler(debts, logger))
	r.Get("/people/{id}/summary", personSummaryHandler(debts, logger))

	r.Get("/list", loadDebtsHandler(debts, logger))
	r.Post("/list", createDebtHandler(debts, logger))
	r.Put("/list/{id}", updateDebtHandler(debts, logger))
	r.Patch("/list/{id}/payment", debtPaymentHandler(debts, logger))
	r.Delete("/list/{id}", deleteDebtHandler(debts, logger))

	r.Get("/summary", debtSummaryHandler(debts, logger))
}

// ============================================================
// State & activation
// ============================================================

func debtStateHandler(debts *service.DebtAggregator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, debts.Snapshot())
	}
}

func debtActiveHandler(debts *service.DebtAggregator, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PUT /v1/debts/active")
		defer span.End()

		var req activeRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if err := debts.SetActive(ctx, req.Active); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, debts.Snapshot())
	}
}

func debtMonthHandler(debts *service.DebtAggregator, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PUT /v1/debts/month")
		defer span.End()

		var req monthRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if err := debts.SetCurrentMonth(ctx, req.Month); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, debts.Snapshot())
	}
}

func debtClearErrorHandler(debts *service.DebtAggregator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		debts.ClearError()
		writeJSON(w, http.StatusOK, debts.Snapshot())
	}
}

// ============================================================
// People
// ============================================================

func loadPeopleHandler(debts *service.DebtAggregator, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/debts/people")
		defer span.End()

		if err := debts.LoadPeople(ctx); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, debts.Snapshot().People)
	}
}

func createPersonHandler(debts *service.DebtAggregator, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/debts/people")
		defer span.End()

		var in domain.PersonInput
		if !decodeBody(w, r, &in) {
			return
		}
		p, err := debts.CreatePerson(ctx, in)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, debtMutation{Item: p, State: debts.Snapshot()})
	}
}

func updatePersonHandler(debts *service.DebtAggregator, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PUT /v1/debts/people/{id}")
		defer span.End()

		var in domain.PersonInput
		if !decodeBody(w, r, &in) {
			return
		}
		p, err := debts.UpdatePerson(ctx, chi.URLParam(r, "id"), in)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, debtMutation{Item: p, State: debts.Snapshot()})
	}
}

func deletePersonHandler(debts *service.DebtAggregator, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "DELETE /v1/debts/people/{id}")
		defer span.End()

		if err := debts.DeletePerson(ctx, chi.URLParam(r, "id")); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, debtMutation{State: debts.Snapshot()})
	}
}

func personSummaryHandler(debts *service.DebtAggregator, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, err := debts.PersonSummary(chi.URLParam(r, "id"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, s)
	}
}

// ============================================================
// Debts
// ============================================================

func loadDebtsHandler(debts *service.DebtAggregator, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/debts/list")
		defer span.End()

		month, err := monthParam(r)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		if err := debts.LoadDebts(ctx, month); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, debts.Snapshot())
	}
}

func createDebtHandler(debts *service.DebtAggregator, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/debts/list")
		defer span.End()

		var in domain.DebtInput
		if !decodeBody(w, r, &in) {
			return
		}
		d, err := debts.CreateDebt(ctx, in)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, debtMutation{Item: d, State: debts.Snapshot()})
	}
}

func updateDebtHandler(debts *service.DebtAggregator, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PUT /v1/debts/list/{id}")
		defer span.End()

		var in domain.DebtInput
		if !decodeBody(w, r, &in) {
			return
		}
		d, err := debts.UpdateDebt(ctx, chi.URLParam(r, "id"), in)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, debtMutation{Item: d, State: debts.Snapshot()})
	}
}

func debtPaymentHandler(debts *service.DebtAggregator, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PATCH /v1/debts/list/{id}/payment")
		defer span.End()

		var p domain.DebtPayment
		if !decodeBody(w, r, &p) {
			return
		}
		d, err := debts.UpdateDebtPayment(ctx, chi.URLParam(r, "id"), p)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, debtMutation{Item: d, State: debts.Snapshot()})
	}
}

func deleteDebtHandler(debts *service.DebtAggregator, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "DELETE /v1/debts/list/{id}")
		defer span.End()

		if err := debts.DeleteDebt(ctx, chi.URLParam(r, "id")); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, debtMutation{State: debts.Snapshot()})
	}
}

func debtSummaryHandler(debts *service.DebtAggregator, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/debts/summary")
		defer span.End()

		month, err := monthParam(r)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		s, err := debts.LoadDebtSummary(ctx, month)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, s)
	}
}
