package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"transit-pass-api/internal/models"
)

// Verify handles POST /verify?now=
//
// A denied pass is still a 200; the decision is in the body.
func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	now, ok := h.timeParam(w, r, "now")
	if !ok {
		return
	}

	var req models.VerifyRequest
	if !h.decode(w, r, &req) {
		return
	}

	res, err := h.service.Verify(r.Context(), req, now)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, res)
}

// GetStatistics handles GET /statistics?as_of=
func (h *Handler) GetStatistics(w http.ResponseWriter, r *http.Request) {
	asOf, ok := h.timeParam(w, r, "as_of")
	if !ok {
		return
	}
	h.respondJSON(w, http.StatusOK, h.service.GetStatistics(r.Context(), asOf))
}

// Dashboard handles GET /dashboard?as_of=
func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	asOf, ok := h.timeParam(w, r, "as_of")
	if !ok {
		return
	}
	h.respondJSON(w, http.StatusOK, h.service.Dashboard(r.Context(), asOf))
}

// GetFleetLines handles GET /fleet/lines
func (h *Handler) GetFleetLines(w http.ResponseWriter, r *http.Request) {
	lines, err := h.service.FleetLines(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, lines)
}

// PublishFleetLines handles PUT /fleet/lines
func (h *Handler) PublishFleetLines(w http.ResponseWriter, r *http.Request) {
	var req models.FleetUpdate
	if !h.decode(w, r, &req) {
		return
	}

	lines, err := h.service.PublishFleet(r.Context(), req.Lines)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, lines)
}

// ListFeatures handles GET /features
func (h *Handler) ListFeatures(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, h.service.Features())
}

// SetFeature handles PUT /features/{name}
func (h *Handler) SetFeature(w http.ResponseWriter, r *http.Request) {
	var req models.FeatureToggleRequest
	if !h.decode(w, r, &req) {
		return
	}

	name := chi.URLParam(r, "name")
	if err := h.service.SetFeature(name, req.Enabled); err != nil {
		h.fail(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, h.service.Features())
}
