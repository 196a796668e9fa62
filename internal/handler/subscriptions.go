package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"transit-pass-api/internal/models"
	"transit-pass-api/internal/validation"
)

// CreatePlan handles POST /plans
func (h *Handler) CreatePlan(w http.ResponseWriter, r *http.Request) {
	var req models.SubscriptionPlan
	if !h.decode(w, r, &req) {
		return
	}
	req.ID = validation.SanitizeString(req.ID)
	for i := range req.EligibleLines {
		req.EligibleLines[i] = validation.SanitizeString(req.EligibleLines[i])
	}

	plan, err := h.service.CreatePlan(r.Context(), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusCreated, plan)
}

// ListPlans handles GET /plans
func (h *Handler) ListPlans(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, h.service.ListPlans(r.Context()))
}

// GetPlan handles GET /plans/{plan_id}
func (h *Handler) GetPlan(w http.ResponseWriter, r *http.Request) {
	plan, err := h.service.GetPlan(r.Context(), chi.URLParam(r, "plan_id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, plan)
}

// SetPlanActive handles PUT /plans/{plan_id}/active
func (h *Handler) SetPlanActive(w http.ResponseWriter, r *http.Request) {
	var req models.PlanActiveRequest
	if !h.decode(w, r, &req) {
		return
	}

	plan, err := h.service.SetPlanActive(r.Context(), chi.URLParam(r, "plan_id"), req.Active)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, plan)
}

// CreateSubscription handles POST /subscriptions
func (h *Handler) CreateSubscription(w http.ResponseWriter, r *http.Request) {
	var req models.SubscriptionInput
	if !h.decode(w, r, &req) {
		return
	}

	sub, err := h.service.CreateSubscription(r.Context(), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusCreated, sub)
}

// ListSubscriptions handles GET /subscriptions
func (h *Handler) ListSubscriptions(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, h.service.ListSubscriptions(r.Context()))
}

// GetSubscription handles GET /subscriptions/{subscription_id}
func (h *Handler) GetSubscription(w http.ResponseWriter, r *http.Request) {
	sub, err := h.service.GetSubscription(r.Context(), chi.URLParam(r, "subscription_id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, sub)
}

// SetSubscriptionStatus handles POST /subscriptions/{subscription_id}/status
func (h *Handler) SetSubscriptionStatus(w http.ResponseWriter, r *http.Request) {
	var req models.StatusChangeRequest
	if !h.decode(w, r, &req) {
		return
	}

	sub, err := h.service.SetSubscriptionStatus(r.Context(), chi.URLParam(r, "subscription_id"), req.Status)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, sub)
}

// AddPayment handles POST /subscriptions/{subscription_id}/payments
func (h *Handler) AddPayment(w http.ResponseWriter, r *http.Request) {
	var req models.PaymentInput
	if !h.decode(w, r, &req) {
		return
	}

	payment, err := h.service.AddPayment(r.Context(), chi.URLParam(r, "subscription_id"), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusCreated, payment)
}

// SetPaymentStatus handles PUT /subscriptions/{subscription_id}/payments/{payment_id}/status
func (h *Handler) SetPaymentStatus(w http.ResponseWriter, r *http.Request) {
	var req models.PaymentStatusRequest
	if !h.decode(w, r, &req) {
		return
	}

	payment, err := h.service.SetPaymentStatus(r.Context(),
		chi.URLParam(r, "subscription_id"),
		chi.URLParam(r, "payment_id"),
		req.Status,
	)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, payment)
}

// RefreshSnapshots handles POST /subscriptions/{subscription_id}/refresh
func (h *Handler) RefreshSnapshots(w http.ResponseWriter, r *http.Request) {
	sub, err := h.service.RefreshSnapshots(r.Context(), chi.URLParam(r, "subscription_id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, sub)
}

// RecordTrip handles POST /subscriptions/{subscription_id}/trips
func (h *Handler) RecordTrip(w http.ResponseWriter, r *http.Request) {
	var req models.TripInput
	if !h.decode(w, r, &req) {
		return
	}

	trip, err := h.service.RecordTrip(r.Context(), chi.URLParam(r, "subscription_id"), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusCreated, trip)
}

// ListTrips handles GET /trips?client_id=&subscription_id=
func (h *Handler) ListTrips(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	trips := h.service.ListTrips(r.Context(), models.TripFilter{
		ClientID:       validation.SanitizeString(q.Get("client_id")),
		SubscriptionID: validation.SanitizeString(q.Get("subscription_id")),
	})
	h.respondJSON(w, http.StatusOK, trips)
}
