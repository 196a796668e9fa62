// Package stats derives dashboard metrics from the client and subscription collections.
package stats

import (
	"time"

	"transit-pass-api/internal/models"
)

// MonthStart returns midnight on the first day of the month containing t, in t's location.
func MonthStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
}

// Compute recomputes every aggregate from scratch. Identical inputs and asOf give
// identical output.
//
// RevenueThisMonth sums plan prices of subscriptions created since the start of the month,
// not the payments actually validated. TripsThisMonth sums TripsUsed over active
// subscriptions regardless of when the trips happened.
func Compute(clients []models.Client, subs []models.Subscription, asOf time.Time) models.Statistics {
	since := MonthStart(asOf)
	st := models.Statistics{
		TotalClients: len(clients),
		AsOf:         asOf,
	}

	for _, c := range clients {
		switch c.Status {
		case models.ClientActive:
			st.ClientsActive++
		case models.ClientInactive:
			st.ClientsInactive++
		case models.ClientSuspended:
			st.ClientsSuspended++
		}
		if !c.RegisteredAt.Before(since) {
			st.NewClientsThisMonth++
		}
	}

	for _, sub := range subs {
		switch sub.Status {
		case models.SubscriptionActive:
			st.SubscriptionsActive++
			st.TripsThisMonth += sub.TripsUsed
		case models.SubscriptionExpired:
			st.SubscriptionsExpired++
		case models.SubscriptionSuspended:
			st.SubscriptionsSuspended++
		case models.SubscriptionCancelled:
			st.SubscriptionsCancelled++
		}
		if !sub.CreatedAt.Before(since) {
			st.RevenueThisMonth += sub.Plan.Price
		}
	}

	return st
}
