package store

import (
	"context"
	"fmt"
	"time"

	"transit-pass-api/internal/models"
	"transit-pass-api/internal/validation"
)

// CreateSubscription opens a subscription of the client on the plan. Client and plan
// are copied into the subscription as snapshots.
func (s *Store) CreateSubscription(ctx context.Context, in models.SubscriptionInput) (models.Subscription, error) {
	in.ClientID = validation.SanitizeString(in.ClientID)
	in.PlanID = validation.SanitizeString(in.PlanID)
	if err := validation.ValidateSubscriptionInput(in); err != nil {
		return models.Subscription{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ci, ok := s.clientIdx[in.ClientID]
	if !ok {
		return models.Subscription{}, &NotFoundError{Entity: "client", ID: in.ClientID}
	}
	pi, ok := s.planIdx[in.PlanID]
	if !ok {
		return models.Subscription{}, &NotFoundError{Entity: "plan", ID: in.PlanID}
	}
	plan := s.plans[pi]
	if !plan.Active {
		return models.Subscription{}, &validation.ValidationError{Field: "plan_id", Message: "plan is not open for subscription"}
	}

	if s.singleActive() && s.hasActiveSubscription(in.ClientID, "") {
		return models.Subscription{}, &ConflictError{Message: fmt.Sprintf("client %q already holds an active subscription", in.ClientID)}
	}

	now := s.now()
	start := in.StartDate
	if start.IsZero() {
		start = now
	}

	sub := models.Subscription{
		ID: freshID(func(id string) bool {
			_, taken := s.subIdx[id]
			return taken
		}),
		ClientID:  in.ClientID,
		Client:    cloneClient(s.clients[ci]),
		PlanID:    plan.ID,
		Plan:      clonePlan(plan),
		StartDate: start,
		EndDate:   start.AddDate(0, 0, plan.DurationDays),
		Status:    models.SubscriptionActive,
		QRPayload: "SUB-" + freshID(func(id string) bool {
			_, taken := s.subByQR["SUB-"+id]
			return taken
		}),
		Payments:  []models.Payment{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	sub = cloneSubscription(sub)

	if err := s.persistSubscription(ctx, sub); err != nil {
		return models.Subscription{}, err
	}
	s.subIdx[sub.ID] = len(s.subscriptions)
	s.subscriptions = append(s.subscriptions, sub)
	s.subByQR[sub.QRPayload] = sub.ID

	return cloneSubscription(sub), nil
}

// hasActiveSubscription reports whether clientID holds an active subscription other than exceptID.
func (s *Store) hasActiveSubscription(clientID, exceptID string) bool {
	for _, sub := range s.subscriptions {
		if sub.ClientID == clientID && sub.ID != exceptID && sub.Status == models.SubscriptionActive {
			return true
		}
	}
	return false
}

func (s *Store) GetSubscription(id string) (models.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i, ok := s.subIdx[id]
	if !ok {
		return models.Subscription{}, &NotFoundError{Entity: "subscription", ID: id}
	}
	return cloneSubscription(s.subscriptions[i]), nil
}

// FindSubscriptionByQR returns the subscription whose QR payload equals code.
func (s *Store) FindSubscriptionByQR(code string) (models.Subscription, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.subByQR[code]
	if !ok {
		return models.Subscription{}, false
	}
	return cloneSubscription(s.subscriptions[s.subIdx[id]]), true
}

// ListSubscriptions returns every subscription in creation order.
func (s *Store) ListSubscriptions() []models.Subscription {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Subscription, len(s.subscriptions))
	for i, sub := range s.subscriptions {
		out[i] = cloneSubscription(sub)
	}
	return out
}

func (s *Store) ListClientSubscriptions(clientID string) []models.Subscription {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []models.Subscription{}
	for _, sub := range s.subscriptions {
		if sub.ClientID == clientID {
			out = append(out, cloneSubscription(sub))
		}
	}
	return out
}

// Snapshot returns consistent copies of the client and subscription collections.
func (s *Store) Snapshot() ([]models.Client, []models.Subscription) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	clients := make([]models.Client, len(s.clients))
	for i, c := range s.clients {
		clients[i] = cloneClient(c)
	}
	subs := make([]models.Subscription, len(s.subscriptions))
	for i, sub := range s.subscriptions {
		subs[i] = cloneSubscription(sub)
	}
	return clients, subs
}

// SetSubscriptionStatus applies an operator status change. Setting the current status is a no-op.
func (s *Store) SetSubscriptionStatus(ctx context.Context, id string, status models.SubscriptionStatus) (models.Subscription, error) {
	if !status.Valid() {
		return models.Subscription{}, &validation.ValidationError{Field: "status", Message: "must be one of active, expired, suspended, cancelled"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.transition(ctx, id, status)
}

// transition changes a subscription's status. Callers hold the write lock.
func (s *Store) transition(ctx context.Context, id string, status models.SubscriptionStatus) (models.Subscription, error) {
	i, ok := s.subIdx[id]
	if !ok {
		return models.Subscription{}, &NotFoundError{Entity: "subscription", ID: id}
	}

	current := s.subscriptions[i]
	if current.Status == status {
		return cloneSubscription(current), nil
	}
	if !current.Status.CanTransitionTo(status) {
		return models.Subscription{}, &TransitionError{From: current.Status, To: status}
	}
	if status == models.SubscriptionActive && s.singleActive() && s.hasActiveSubscription(current.ClientID, current.ID) {
		return models.Subscription{}, &ConflictError{Message: fmt.Sprintf("client %q already holds an active subscription", current.ClientID)}
	}

	updated := cloneSubscription(current)
	updated.Status = status
	updated.UpdatedAt = later(s.now(), updated.UpdatedAt)

	if err := s.persistSubscription(ctx, updated); err != nil {
		return models.Subscription{}, err
	}
	s.subscriptions[i] = updated
	return cloneSubscription(updated), nil
}

// ExpireDue moves every active subscription whose end date is before asOf to expired
// and returns the subscriptions it changed.
func (s *Store) ExpireDue(ctx context.Context, asOf time.Time) ([]models.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var expired []models.Subscription
	for _, sub := range s.subscriptions {
		if sub.Status != models.SubscriptionActive || !sub.EndDate.Before(asOf) {
			continue
		}
		updated, err := s.transition(ctx, sub.ID, models.SubscriptionExpired)
		if err != nil {
			return expired, err
		}
		expired = append(expired, updated)
	}
	return expired, nil
}

// AddPayment appends a payment to the subscription's ordered payment history.
func (s *Store) AddPayment(ctx context.Context, subscriptionID string, in models.PaymentInput) (models.Payment, error) {
	in.Reference = validation.SanitizeString(in.Reference)
	in.Operator = validation.SanitizeString(in.Operator)
	if in.Status == "" {
		in.Status = models.PaymentPending
	}
	if err := validation.ValidatePayment(in); err != nil {
		return models.Payment{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.subIdx[subscriptionID]
	if !ok {
		return models.Payment{}, &NotFoundError{Entity: "subscription", ID: subscriptionID}
	}

	now := s.now()
	paidAt := in.PaidAt
	if paidAt.IsZero() {
		paidAt = now
	}
	payment := models.Payment{
		ID:             freshID(func(id string) bool { return s.paymentIDs[id] }),
		SubscriptionID: subscriptionID,
		Amount:         in.Amount,
		Method:         in.Method,
		Status:         in.Status,
		Reference:      in.Reference,
		PaidAt:         paidAt,
		Operator:       in.Operator,
	}

	updated := cloneSubscription(s.subscriptions[i])
	updated.Payments = append(updated.Payments, payment)
	updated.UpdatedAt = later(now, updated.UpdatedAt)

	if err := s.persistSubscription(ctx, updated); err != nil {
		return models.Payment{}, err
	}
	s.subscriptions[i] = updated
	s.paymentIDs[payment.ID] = true

	return payment, nil
}

// SetPaymentStatus updates the settlement state of one payment.
func (s *Store) SetPaymentStatus(ctx context.Context, subscriptionID, paymentID string, status models.PaymentStatus) (models.Payment, error) {
	if !status.Valid() {
		return models.Payment{}, &validation.ValidationError{Field: "status", Message: "must be one of pending, validated, failed, refunded"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.subIdx[subscriptionID]
	if !ok {
		return models.Payment{}, &NotFoundError{Entity: "subscription", ID: subscriptionID}
	}

	updated := cloneSubscription(s.subscriptions[i])
	for j := range updated.Payments {
		if updated.Payments[j].ID != paymentID {
			continue
		}
		updated.Payments[j].Status = status
		updated.UpdatedAt = later(s.now(), updated.UpdatedAt)
		if err := s.persistSubscription(ctx, updated); err != nil {
			return models.Payment{}, err
		}
		s.subscriptions[i] = updated
		return updated.Payments[j], nil
	}
	return models.Payment{}, &NotFoundError{Entity: "payment", ID: paymentID}
}

// RefreshSnapshots re-copies the current client and plan into the subscription.
// A client deleted since creation leaves the old snapshot in place.
func (s *Store) RefreshSnapshots(ctx context.Context, subscriptionID string) (models.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.subIdx[subscriptionID]
	if !ok {
		return models.Subscription{}, &NotFoundError{Entity: "subscription", ID: subscriptionID}
	}

	updated := cloneSubscription(s.subscriptions[i])
	if ci, ok := s.clientIdx[updated.ClientID]; ok {
		updated.Client = cloneClient(s.clients[ci])
	}
	if pi, ok := s.planIdx[updated.PlanID]; ok {
		updated.Plan = clonePlan(s.plans[pi])
	}
	updated.TripsRemaining = updated.RemainingTrips()
	updated.UpdatedAt = later(s.now(), updated.UpdatedAt)

	if err := s.persistSubscription(ctx, updated); err != nil {
		return models.Subscription{}, err
	}
	s.subscriptions[i] = updated
	return cloneSubscription(updated), nil
}

// RecordTrip stores a boarding event and increments TripsUsed by one. It is the write
// that follows a successful verification; calling it twice records two trips.
func (s *Store) RecordTrip(ctx context.Context, subscriptionID string, in models.TripInput) (models.TripRecord, error) {
	in.LineID = validation.SanitizeString(in.LineID)
	if in.ScanMethod == "" {
		in.ScanMethod = models.ScanQRCode
	}
	if err := validation.ValidateTrip(in); err != nil {
		return models.TripRecord{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.subIdx[subscriptionID]
	if !ok {
		return models.TripRecord{}, &NotFoundError{Entity: "subscription", ID: subscriptionID}
	}

	updated := cloneSubscription(s.subscriptions[i])
	if updated.Status != models.SubscriptionActive {
		return models.TripRecord{}, &ConflictError{Message: fmt.Sprintf("subscription is %s", updated.Status)}
	}
	now := s.now()
	if updated.EndDate.Before(now) {
		return models.TripRecord{}, &ConflictError{Message: fmt.Sprintf("subscription ended on %s", updated.EndDate.Format(time.RFC3339))}
	}
	if updated.Plan.Capped() && updated.TripsUsed >= *updated.Plan.TripCap {
		return models.TripRecord{}, ErrTripLimitReached
	}

	ts := in.Timestamp
	if ts.IsZero() {
		ts = now
	}
	trip := models.TripRecord{
		ID:               freshID(func(id string) bool { return s.tripIDs[id] }),
		ClientID:         updated.ClientID,
		SubscriptionID:   updated.ID,
		LineID:           in.LineID,
		LineName:         in.LineName,
		LineNumber:       in.LineNumber,
		Origin:           in.Origin,
		Destination:      in.Destination,
		Timestamp:        ts,
		BusID:            in.BusID,
		DriverID:         in.DriverID,
		Fare:             in.Fare,
		ValidationStatus: models.TripValidated,
		ScanMethod:       in.ScanMethod,
	}

	updated.TripsUsed++
	updated.TripsRemaining = updated.RemainingTrips()
	updated.UpdatedAt = later(now, updated.UpdatedAt)

	if s.persister != nil {
		if err := s.persister.SaveTripWithSubscription(ctx, trip, updated); err != nil {
			return models.TripRecord{}, fmt.Errorf("failed to persist trip: %w", err)
		}
	}

	s.subscriptions[i] = updated
	s.trips = append(s.trips, trip)
	s.tripIDs[trip.ID] = true

	return trip, nil
}

// ListTrips returns the trip history, oldest first, narrowed by filter.
func (s *Store) ListTrips(filter models.TripFilter) []models.TripRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []models.TripRecord{}
	for _, t := range s.trips {
		if filter.ClientID != "" && t.ClientID != filter.ClientID {
			continue
		}
		if filter.SubscriptionID != "" && t.SubscriptionID != filter.SubscriptionID {
			continue
		}
		out = append(out, t)
	}
	return out
}
