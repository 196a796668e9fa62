package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"transit-pass-api/internal/models"
	"transit-pass-api/internal/validation"
)

// ListClients handles GET /clients?status=&city=&q=
func (h *Handler) ListClients(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := models.ClientFilter{
		Status:   models.ClientStatus(validation.SanitizeString(q.Get("status"))),
		City:     validation.SanitizeString(q.Get("city")),
		FreeText: validation.SanitizeString(q.Get("q")),
	}

	clients, err := h.service.ListClients(r.Context(), f)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, clients)
}

// AddClient handles POST /clients
func (h *Handler) AddClient(w http.ResponseWriter, r *http.Request) {
	var req models.ClientInput
	if !h.decode(w, r, &req) {
		return
	}

	client, err := h.service.AddClient(r.Context(), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusCreated, client)
}

// GetClient handles GET /clients/{client_id}
func (h *Handler) GetClient(w http.ResponseWriter, r *http.Request) {
	client, err := h.service.GetClient(r.Context(), chi.URLParam(r, "client_id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, client)
}

// UpdateClient handles PATCH /clients/{client_id}
func (h *Handler) UpdateClient(w http.ResponseWriter, r *http.Request) {
	var patch models.ClientPatch
	if !h.decode(w, r, &patch) {
		return
	}

	client, err := h.service.UpdateClient(r.Context(), chi.URLParam(r, "client_id"), patch)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, client)
}

// DeleteClient handles DELETE /clients/{client_id}
func (h *Handler) DeleteClient(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "client_id")
	cancelled, err := h.service.DeleteClient(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if cancelled == nil {
		cancelled = []string{}
	}
	h.respondJSON(w, http.StatusOK, models.DeleteClientResponse{ClientID: id, CancelledSubscriptions: cancelled})
}

// ListClientSubscriptions handles GET /clients/{client_id}/subscriptions
func (h *Handler) ListClientSubscriptions(w http.ResponseWriter, r *http.Request) {
	subs, err := h.service.ListClientSubscriptions(r.Context(), chi.URLParam(r, "client_id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, subs)
}
