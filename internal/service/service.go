package service

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"transit-pass-api/internal/events"
	"transit-pass-api/internal/features"
	"transit-pass-api/internal/filter"
	"transit-pass-api/internal/fleet"
	"transit-pass-api/internal/metrics"
	"transit-pass-api/internal/models"
	"transit-pass-api/internal/stats"
	"transit-pass-api/internal/store"
	"transit-pass-api/internal/tracing"
	"transit-pass-api/internal/validation"
	"transit-pass-api/internal/verification"
)

// Service provides the business operations of the transit pass API on top of the store.
type Service struct {
	store    *store.Store
	verifier *verification.Verifier
	events   *events.Manager
	features *features.Manager
	fleet    *fleet.Feed
	log      *zap.Logger
	now      func() time.Time
}

// Option configures a Service.
type Option func(*Service)

func WithEvents(m *events.Manager) Option {
	return func(s *Service) { s.events = m }
}

func WithFeatures(m *features.Manager) Option {
	return func(s *Service) { s.features = m }
}

func WithFleet(f *fleet.Feed) Option {
	return func(s *Service) { s.fleet = f }
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Service) { s.log = l }
}

// WithClock overrides the default "as of" time used when a caller passes a zero time.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a new service instance.
func NewService(st *store.Store, opts ...Option) *Service {
	s := &Service{
		store:    st,
		verifier: verification.NewVerifier(st),
		features: features.NewManager(),
		log:      zap.NewNop(),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) asOf(t time.Time) time.Time {
	if t.IsZero() {
		return s.now()
	}
	return t
}

// AddClient registers a client.
func (s *Service) AddClient(ctx context.Context, in models.ClientInput) (c models.Client, err error) {
	ctx, span := tracing.Start(ctx, "service.AddClient")
	defer func() { tracing.End(span, err) }()

	c, err = s.store.AddClient(ctx, in)
	if err != nil {
		return models.Client{}, err
	}

	metrics.ClientsRegisteredTotal.Inc()
	s.events.Publish(ctx, events.ClientRegistered, events.ClientData{Client: c})
	s.log.Info("client registered", zap.String("client_id", c.ID))
	return c, nil
}

// UpdateClient applies a partial update to a client.
func (s *Service) UpdateClient(ctx context.Context, id string, patch models.ClientPatch) (c models.Client, err error) {
	ctx, span := tracing.Start(ctx, "service.UpdateClient", attribute.String("client.id", id))
	defer func() { tracing.End(span, err) }()

	c, err = s.store.UpdateClient(ctx, id, patch)
	if err != nil {
		return models.Client{}, err
	}

	s.events.Publish(ctx, events.ClientUpdated, events.ClientData{Client: c})
	return c, nil
}

// DeleteClient removes a client. When cascading deletes are enabled the client's active
// and suspended subscriptions are cancelled; their ids are returned.
func (s *Service) DeleteClient(ctx context.Context, id string) (cancelled []string, err error) {
	ctx, span := tracing.Start(ctx, "service.DeleteClient", attribute.String("client.id", id))
	defer func() { tracing.End(span, err) }()

	if err := s.store.DeleteClient(ctx, id); err != nil {
		return nil, err
	}

	if s.features.IsEnabled(features.CascadeClientDelete) {
		for _, sub := range s.store.ListClientSubscriptions(id) {
			if sub.Status != models.SubscriptionActive && sub.Status != models.SubscriptionSuspended {
				continue
			}
			if _, err := s.changeStatus(ctx, sub, models.SubscriptionCancelled, false); err != nil {
				return cancelled, fmt.Errorf("failed to cancel subscription %s: %w", sub.ID, err)
			}
			cancelled = append(cancelled, sub.ID)
		}
	}

	s.events.Publish(ctx, events.ClientDeleted, events.ClientDeletedData{ClientID: id, CancelledSubscriptions: cancelled})
	s.log.Info("client deleted", zap.String("client_id", id), zap.Int("cancelled_subscriptions", len(cancelled)))
	return cancelled, nil
}

func (s *Service) GetClient(ctx context.Context, id string) (models.Client, error) {
	return s.store.GetClient(id)
}

// ListClients returns the clients matching f, in registration order.
func (s *Service) ListClients(ctx context.Context, f models.ClientFilter) ([]models.Client, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, &validation.ValidationError{Field: "status", Message: "must be one of active, inactive, suspended"}
	}
	return filter.Clients(s.store.ListClients(), f), nil
}

// CreatePlan stores a new plan.
func (s *Service) CreatePlan(ctx context.Context, plan models.SubscriptionPlan) (p models.SubscriptionPlan, err error) {
	ctx, span := tracing.Start(ctx, "service.CreatePlan")
	defer func() { tracing.End(span, err) }()

	return s.store.CreatePlan(ctx, plan)
}

func (s *Service) GetPlan(ctx context.Context, id string) (models.SubscriptionPlan, error) {
	return s.store.GetPlan(id)
}

func (s *Service) ListPlans(ctx context.Context) []models.SubscriptionPlan {
	return s.store.ListPlans()
}

// SetPlanActive opens or closes a plan for new subscriptions. Existing subscriptions are not affected.
func (s *Service) SetPlanActive(ctx context.Context, id string, active bool) (models.SubscriptionPlan, error) {
	p, err := s.store.SetPlanActive(ctx, id, active)
	if err != nil {
		return models.SubscriptionPlan{}, err
	}
	s.log.Info("plan availability changed", zap.String("plan_id", id), zap.Bool("active", active))
	return p, nil
}

// CreateSubscription subscribes a client to a plan.
func (s *Service) CreateSubscription(ctx context.Context, in models.SubscriptionInput) (sub models.Subscription, err error) {
	ctx, span := tracing.Start(ctx, "service.CreateSubscription",
		attribute.String("client.id", in.ClientID),
		attribute.String("plan.id", in.PlanID),
	)
	defer func() { tracing.End(span, err) }()

	sub, err = s.store.CreateSubscription(ctx, in)
	if err != nil {
		return models.Subscription{}, err
	}

	metrics.SubscriptionsCreatedTotal.WithLabelValues(sub.Plan.Name).Inc()
	s.events.Publish(ctx, events.SubscriptionCreated, events.SubscriptionData{Subscription: sub})
	s.log.Info("subscription created",
		zap.String("subscription_id", sub.ID),
		zap.String("client_id", sub.ClientID),
		zap.String("plan_id", sub.PlanID),
		zap.Time("end_date", sub.EndDate),
	)
	return sub, nil
}

func (s *Service) GetSubscription(ctx context.Context, id string) (models.Subscription, error) {
	return s.store.GetSubscription(id)
}

func (s *Service) ListSubscriptions(ctx context.Context) []models.Subscription {
	return s.store.ListSubscriptions()
}

// ListClientSubscriptions returns a client's subscriptions. The client must still exist.
func (s *Service) ListClientSubscriptions(ctx context.Context, clientID string) ([]models.Subscription, error) {
	if _, err := s.store.GetClient(clientID); err != nil {
		return nil, err
	}
	return s.store.ListClientSubscriptions(clientID), nil
}

// SetSubscriptionStatus applies an operator status change.
func (s *Service) SetSubscriptionStatus(ctx context.Context, id string, status models.SubscriptionStatus) (sub models.Subscription, err error) {
	ctx, span := tracing.Start(ctx, "service.SetSubscriptionStatus",
		attribute.String("subscription.id", id),
		attribute.String("status", string(status)),
	)
	defer func() { tracing.End(span, err) }()

	current, err := s.store.GetSubscription(id)
	if err != nil {
		return models.Subscription{}, err
	}
	return s.changeStatus(ctx, current, status, false)
}

func (s *Service) changeStatus(ctx context.Context, current models.Subscription, status models.SubscriptionStatus, automatic bool) (models.Subscription, error) {
	updated, err := s.store.SetSubscriptionStatus(ctx, current.ID, status)
	if err != nil {
		return models.Subscription{}, err
	}
	if current.Status != updated.Status {
		s.events.Publish(ctx, events.SubscriptionStatusChanged, events.StatusChangedData{
			SubscriptionID: updated.ID,
			ClientID:       updated.ClientID,
			From:           current.Status,
			To:             updated.Status,
			Automatic:      automatic,
		})
	}
	return updated, nil
}

// ExpireDueSubscriptions moves active subscriptions whose end date has passed to expired.
func (s *Service) ExpireDueSubscriptions(ctx context.Context, asOf time.Time) (n int, err error) {
	ctx, span := tracing.Start(ctx, "service.ExpireDueSubscriptions")
	defer func() { tracing.End(span, err) }()

	expired, err := s.store.ExpireDue(ctx, s.asOf(asOf))
	for _, sub := range expired {
		metrics.SubscriptionsExpiredTotal.Inc()
		s.events.Publish(ctx, events.SubscriptionStatusChanged, events.StatusChangedData{
			SubscriptionID: sub.ID,
			ClientID:       sub.ClientID,
			From:           models.SubscriptionActive,
			To:             models.SubscriptionExpired,
			Automatic:      true,
		})
	}
	if err != nil {
		return len(expired), fmt.Errorf("expiry sweep stopped after %d subscriptions: %w", len(expired), err)
	}
	return len(expired), nil
}

// AddPayment records a payment against a subscription.
func (s *Service) AddPayment(ctx context.Context, subscriptionID string, in models.PaymentInput) (p models.Payment, err error) {
	ctx, span := tracing.Start(ctx, "service.AddPayment", attribute.String("subscription.id", subscriptionID))
	defer func() { tracing.End(span, err) }()

	p, err = s.store.AddPayment(ctx, subscriptionID, in)
	if err != nil {
		return models.Payment{}, err
	}
	s.events.Publish(ctx, events.PaymentRecorded, events.PaymentData{Payment: p})
	return p, nil
}

func (s *Service) SetPaymentStatus(ctx context.Context, subscriptionID, paymentID string, status models.PaymentStatus) (models.Payment, error) {
	return s.store.SetPaymentStatus(ctx, subscriptionID, paymentID, status)
}

// RefreshSnapshots re-copies the current client and plan into a subscription.
func (s *Service) RefreshSnapshots(ctx context.Context, subscriptionID string) (models.Subscription, error) {
	return s.store.RefreshSnapshots(ctx, subscriptionID)
}

// RecordTrip stores a boarding and increments the subscription's trip count. Every call
// records one trip; callers avoid duplicates.
func (s *Service) RecordTrip(ctx context.Context, subscriptionID string, in models.TripInput) (trip models.TripRecord, err error) {
	ctx, span := tracing.Start(ctx, "service.RecordTrip",
		attribute.String("subscription.id", subscriptionID),
		attribute.String("line.id", in.LineID),
	)
	defer func() { tracing.End(span, err) }()

	trip, err = s.store.RecordTrip(ctx, subscriptionID, in)
	if err != nil {
		return models.TripRecord{}, err
	}

	metrics.TripsRecordedTotal.Inc()
	s.events.Publish(ctx, events.TripRecorded, events.TripData{Trip: trip})
	return trip, nil
}

func (s *Service) ListTrips(ctx context.Context, f models.TripFilter) []models.TripRecord {
	return s.store.ListTrips(f)
}

// Verify decides whether the scanned code authorizes a trip as of asOf (zero means now).
// A denial is a normal result; only a malformed request returns an error.
func (s *Service) Verify(ctx context.Context, req models.VerifyRequest, asOf time.Time) (res models.VerificationResult, err error) {
	ctx, span := tracing.Start(ctx, "service.Verify", attribute.String("line.id", req.LineID))
	defer func() { tracing.End(span, err) }()

	req.Code = validation.SanitizeString(req.Code)
	req.LineID = validation.SanitizeString(req.LineID)
	if err := validation.ValidateVerifyRequest(req); err != nil {
		return models.VerificationResult{}, err
	}

	at := s.asOf(asOf)
	res = s.verifier.Verify(ctx, req, at)

	reason := ""
	if len(res.Errors) > 0 {
		reason = string(res.Errors[0])
	}
	metrics.ObserveVerification(res.Valid, reason)
	span.SetAttributes(attribute.Bool("verification.valid", res.Valid))

	data := events.VerifiedData{
		LineID:     req.LineID,
		Valid:      res.Valid,
		Reasons:    res.Errors,
		VerifiedAt: at,
	}
	if res.Subscription != nil {
		data.SubscriptionID = res.Subscription.ID
		data.ClientID = res.Subscription.ClientID
	}
	s.events.Publish(ctx, events.AccessVerified, data)

	if !res.Valid {
		s.log.Info("verification denied", zap.String("reason", reason), zap.String("line_id", req.LineID))
	}
	return res, nil
}

// GetStatistics recomputes the dashboard statistics as of asOf (zero means now).
func (s *Service) GetStatistics(ctx context.Context, asOf time.Time) models.Statistics {
	clients, subs := s.store.Snapshot()
	return stats.Compute(clients, subs, s.asOf(asOf))
}

// Dashboard returns the statistics beside the fleet feed snapshot. A fleet read failure
// yields no lines rather than an error.
func (s *Service) Dashboard(ctx context.Context, asOf time.Time) models.DashboardResponse {
	resp := models.DashboardResponse{
		Statistics: s.GetStatistics(ctx, asOf),
		Lines:      []models.LineStatus{},
	}
	lines, err := s.FleetLines(ctx)
	if err != nil {
		s.log.Warn("fleet snapshot unavailable", zap.Error(err))
		return resp
	}
	resp.Lines = lines
	return resp
}

// PublishFleet replaces the fleet line snapshot.
func (s *Service) PublishFleet(ctx context.Context, lines []models.LineStatus) ([]models.LineStatus, error) {
	if s.fleet == nil {
		return nil, fmt.Errorf("fleet feed is not configured")
	}
	return s.fleet.Publish(ctx, lines)
}

// FleetLines returns the live fleet snapshot, empty when none was published or it expired.
func (s *Service) FleetLines(ctx context.Context) ([]models.LineStatus, error) {
	if s.fleet == nil {
		return []models.LineStatus{}, nil
	}
	return s.fleet.Lines(ctx)
}

// Features lists the feature flags.
func (s *Service) Features() []features.FeatureFlag {
	return s.features.List()
}

// SetFeature switches a feature flag.
func (s *Service) SetFeature(name string, enabled bool) error {
	if !s.features.Set(name, enabled) {
		return &store.NotFoundError{Entity: "feature", ID: name}
	}
	s.log.Info("feature flag changed", zap.String("feature", name), zap.Bool("enabled", enabled))
	return nil
}
