package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"transit-pass-api/internal/models"
	"transit-pass-api/internal/service"
	"transit-pass-api/internal/store"
	"transit-pass-api/internal/validation"
)

// Handler provides HTTP handlers for the API.
type Handler struct {
	service     *service.Service
	maxBodySize int64
	log         *zap.Logger
}

// NewHandlerOptions holds options for creating a handler.
type NewHandlerOptions struct {
	MaxBodySize int64
	Logger      *zap.Logger
}

// DefaultHandlerOptions returns default handler options.
func DefaultHandlerOptions() NewHandlerOptions {
	return NewHandlerOptions{
		MaxBodySize: 1 << 20,
		Logger:      zap.NewNop(),
	}
}

// NewHandler creates a new handler instance.
func NewHandler(svc *service.Service) *Handler {
	return NewHandlerWithOptions(svc, DefaultHandlerOptions())
}

// NewHandlerWithOptions creates a new handler instance with custom options.
func NewHandlerWithOptions(svc *service.Service, opts NewHandlerOptions) *Handler {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.MaxBodySize <= 0 {
		opts.MaxBodySize = DefaultHandlerOptions().MaxBodySize
	}
	return &Handler{
		service:     svc,
		maxBodySize: opts.MaxBodySize,
		log:         opts.Logger,
	}
}

// Routes mounts every API endpoint on r.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/clients", func(r chi.Router) {
		r.Get("/", h.ListClients)
		r.Post("/", h.AddClient)
		r.Route("/{client_id}", func(r chi.Router) {
			r.Get("/", h.GetClient)
			r.Patch("/", h.UpdateClient)
			r.Delete("/", h.DeleteClient)
			r.Get("/subscriptions", h.ListClientSubscriptions)
		})
	})

	r.Route("/plans", func(r chi.Router) {
		r.Get("/", h.ListPlans)
		r.Post("/", h.CreatePlan)
		r.Get("/{plan_id}", h.GetPlan)
		r.Put("/{plan_id}/active", h.SetPlanActive)
	})

	r.Route("/subscriptions", func(r chi.Router) {
		r.Get("/", h.ListSubscriptions)
		r.Post("/", h.CreateSubscription)
		r.Route("/{subscription_id}", func(r chi.Router) {
			r.Get("/", h.GetSubscription)
			r.Post("/status", h.SetSubscriptionStatus)
			r.Post("/payments", h.AddPayment)
			r.Put("/payments/{payment_id}/status", h.SetPaymentStatus)
			r.Post("/refresh", h.RefreshSnapshots)
			r.Post("/trips", h.RecordTrip)
		})
	})

	r.Get("/trips", h.ListTrips)
	r.Post("/verify", h.Verify)
	r.Get("/statistics", h.GetStatistics)
	r.Get("/dashboard", h.Dashboard)

	r.Get("/fleet/lines", h.GetFleetLines)
	r.Put("/fleet/lines", h.PublishFleetLines)

	r.Get("/features", h.ListFeatures)
	r.Put("/features/{name}", h.SetFeature)
}

// decode reads a JSON body into dest. It writes the error response itself and reports
// whether the handler may continue.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dest any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodySize)

	if err := json.NewDecoder(r.Body).Decode(dest); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.Is(err, io.EOF):
			h.respondError(w, http.StatusBadRequest, "request body is required")
		case errors.As(err, &maxErr):
			h.respondError(w, http.StatusRequestEntityTooLarge, "request body too large")
		default:
			h.respondError(w, http.StatusBadRequest, "invalid JSON in request body: "+err.Error())
		}
		return false
	}
	return true
}

// timeParam parses an optional RFC3339 query parameter. A missing parameter yields the zero
// time, which the service reads as "now". The caller's offset is kept so calendar
// boundaries such as the start of the month fall in the caller's zone.
func (h *Handler) timeParam(w http.ResponseWriter, r *http.Request, name string) (time.Time, bool) {
	raw := validation.SanitizeString(r.URL.Query().Get(name))
	if raw == "" {
		return time.Time{}, true
	}
	parsed, err := validation.ValidateTimeString(raw)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid '"+name+"' parameter, must be RFC3339 format")
		return time.Time{}, false
	}
	return parsed, true
}

// statusFor maps service errors to HTTP status codes.
func statusFor(err error) int {
	var (
		verr       *validation.ValidationError
		immutable  *store.ImmutableFieldError
		conflict   *store.ConflictError
		transition *store.TransitionError
	)
	switch {
	case errors.As(err, &verr), errors.As(err, &immutable):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.As(err, &conflict), errors.As(err, &transition), errors.Is(err, store.ErrTripLimitReached):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// fail writes err with the status it maps to. Internal errors are logged and not echoed.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.log.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		h.respondError(w, status, "internal server error")
		return
	}
	h.respondError(w, status, err.Error())
}

// respondJSON sends a JSON response with the given status code.
func (h *Handler) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Warn("failed to encode response", zap.Error(err))
	}
}

// respondError sends an error response with the given status code and message.
func (h *Handler) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, models.ErrorResponse{Error: message})
}
