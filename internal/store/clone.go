package store

import (
	"slices"
	"time"

	"transit-pass-api/internal/models"
)

// Records handed out by the store never alias its internal state.

func cloneClient(c models.Client) models.Client {
	if c.BirthDate != nil {
		b := *c.BirthDate
		c.BirthDate = &b
	}
	return c
}

func clonePlan(p models.SubscriptionPlan) models.SubscriptionPlan {
	if p.TripCap != nil {
		cp := *p.TripCap
		p.TripCap = &cp
	}
	p.EligibleLines = slices.Clone(p.EligibleLines)
	p.Benefits = slices.Clone(p.Benefits)
	return p
}

func cloneSubscription(s models.Subscription) models.Subscription {
	s.Client = cloneClient(s.Client)
	s.Plan = clonePlan(s.Plan)
	s.Payments = slices.Clone(s.Payments)
	if s.Payments == nil {
		s.Payments = []models.Payment{}
	}
	s.TripsRemaining = s.RemainingTrips()
	return s
}

// later returns t, or floor when t would move a timestamp backwards.
func later(t, floor time.Time) time.Time {
	if t.Before(floor) {
		return floor
	}
	return t
}
