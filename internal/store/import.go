package store

import (
	"fmt"

	"transit-pass-api/internal/models"
	"transit-pass-api/internal/validation"
)

// Dataset is a complete set of records, as read back from persistence or sample data.
type Dataset struct {
	Clients       []models.Client
	Plans         []models.SubscriptionPlan
	Subscriptions []models.Subscription
	Trips         []models.TripRecord
}

// Import loads complete records, keeping their ids and timestamps. Nothing is written to
// the persister. Uniqueness of ids and QR identifiers is enforced across the existing
// collections and the dataset; on error the store is left unchanged.
func (s *Store) Import(data Dataset) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	clientIDs := make(map[string]bool)
	clientQRs := make(map[string]bool)
	for _, c := range data.Clients {
		if err := validation.ValidateClient(c); err != nil {
			return fmt.Errorf("client %s: %w", c.ID, err)
		}
		if _, dup := s.clientIdx[c.ID]; dup || clientIDs[c.ID] || c.ID == "" {
			return &ConflictError{Message: fmt.Sprintf("duplicate client id %q", c.ID)}
		}
		if _, dup := s.clientQR[c.QRCodeID]; dup || clientQRs[c.QRCodeID] || c.QRCodeID == "" {
			return &ConflictError{Message: fmt.Sprintf("duplicate qr_code_id %q", c.QRCodeID)}
		}
		clientIDs[c.ID] = true
		clientQRs[c.QRCodeID] = true
	}

	planIDs := make(map[string]bool)
	for _, p := range data.Plans {
		if err := validation.ValidatePlan(p); err != nil {
			return fmt.Errorf("plan %s: %w", p.ID, err)
		}
		if _, dup := s.planIdx[p.ID]; dup || planIDs[p.ID] || p.ID == "" {
			return &ConflictError{Message: fmt.Sprintf("duplicate plan id %q", p.ID)}
		}
		planIDs[p.ID] = true
	}

	subIDs := make(map[string]bool)
	subQRs := make(map[string]bool)
	for _, sub := range data.Subscriptions {
		if !sub.Status.Valid() {
			return fmt.Errorf("subscription %s: invalid status %q", sub.ID, sub.Status)
		}
		if sub.EndDate.Before(sub.StartDate) {
			return fmt.Errorf("subscription %s: end_date precedes start_date", sub.ID)
		}
		if sub.TripsUsed < 0 || (sub.Plan.Capped() && sub.TripsUsed > *sub.Plan.TripCap) {
			return fmt.Errorf("subscription %s: trips_used %d out of range", sub.ID, sub.TripsUsed)
		}
		if _, dup := s.subIdx[sub.ID]; dup || subIDs[sub.ID] || sub.ID == "" {
			return &ConflictError{Message: fmt.Sprintf("duplicate subscription id %q", sub.ID)}
		}
		if _, dup := s.subByQR[sub.QRPayload]; dup || subQRs[sub.QRPayload] || sub.QRPayload == "" {
			return &ConflictError{Message: fmt.Sprintf("duplicate qr_payload %q", sub.QRPayload)}
		}
		subIDs[sub.ID] = true
		subQRs[sub.QRPayload] = true
	}

	for _, c := range data.Clients {
		s.clientIdx[c.ID] = len(s.clients)
		s.clients = append(s.clients, cloneClient(c))
		s.clientQR[c.QRCodeID] = c.ID
	}
	for _, p := range data.Plans {
		s.planIdx[p.ID] = len(s.plans)
		s.plans = append(s.plans, clonePlan(p))
	}
	for _, sub := range data.Subscriptions {
		s.subIdx[sub.ID] = len(s.subscriptions)
		s.subscriptions = append(s.subscriptions, cloneSubscription(sub))
		s.subByQR[sub.QRPayload] = sub.ID
		for _, p := range sub.Payments {
			s.paymentIDs[p.ID] = true
		}
	}
	for _, t := range data.Trips {
		s.trips = append(s.trips, t)
		s.tripIDs[t.ID] = true
	}
	return nil
}
