// Package verification decides whether a scanned pass authorizes a trip.
//
// Decide is pure: it never changes trips_used. Recording the trip is a separate write
// made by the caller after an authorized result, so a retried or duplicated scan can
// not be counted twice by verification itself.
package verification

import (
	"context"
	"slices"
	"time"

	"transit-pass-api/internal/models"
)

const (
	MsgNotRecognized  = "code not recognized"
	MsgExpired        = "subscription expired"
	MsgSuspended      = "subscription suspended"
	MsgCancelled      = "subscription cancelled"
	MsgTripLimit      = "trip limit reached"
	MsgLineNotCovered = "line not covered by subscription"
	MsgAuthorized     = "trip authorized"
)

// Decide applies the boarding rules to sub (nil when the code matched nothing).
// client is attached to the result when known; it falls back to the subscription snapshot.
func Decide(sub *models.Subscription, client *models.Client, req models.VerifyRequest, asOf time.Time) models.VerificationResult {
	if sub == nil {
		return deny(nil, nil, MsgNotRecognized, models.ReasonCodeNotRecognized)
	}

	if client == nil {
		snapshot := sub.Client
		client = &snapshot
	}

	// A lapsed end date wins over whatever status is stored.
	if sub.EndDate.Before(asOf) {
		return deny(sub, client, MsgExpired, models.ReasonExpired)
	}

	switch sub.Status {
	case models.SubscriptionActive:
	case models.SubscriptionExpired:
		return deny(sub, client, MsgExpired, models.ReasonExpired)
	case models.SubscriptionSuspended:
		return deny(sub, client, MsgSuspended, models.ReasonSuspended)
	case models.SubscriptionCancelled:
		return deny(sub, client, MsgCancelled, models.ReasonCancelled)
	default:
		// Statuses are parsed on the way in; an unknown one is treated as not usable.
		return deny(sub, client, MsgCancelled, models.ReasonCancelled)
	}

	if sub.Plan.Capped() && sub.TripsUsed >= *sub.Plan.TripCap {
		return deny(sub, client, MsgTripLimit, models.ReasonTripLimitReached)
	}

	// Without a line the scan point is unknown, so the restriction cannot be judged.
	if req.LineID != "" && len(sub.Plan.EligibleLines) > 0 && !sub.Plan.CoversLine(req.LineID) {
		return deny(sub, client, MsgLineNotCovered, models.ReasonLineNotCovered)
	}

	return models.VerificationResult{
		Valid:          true,
		Client:         client,
		Subscription:   sub,
		Message:        MsgAuthorized,
		TripAuthorized: true,
		TripInfo: &models.TripInfo{
			TripsRemaining: sub.RemainingTrips(),
			EligibleLines:  slices.Clone(sub.Plan.EligibleLines),
			ExpiresAt:      sub.EndDate,
		},
	}
}

func deny(sub *models.Subscription, client *models.Client, msg string, reason models.DenialReason) models.VerificationResult {
	return models.VerificationResult{
		Valid:        false,
		Client:       client,
		Subscription: sub,
		Message:      msg,
		Errors:       []models.DenialReason{reason},
	}
}

// Source is the read-only view of the store the verifier needs.
type Source interface {
	FindSubscriptionByQR(code string) (models.Subscription, bool)
	GetClient(id string) (models.Client, error)
}

// Verifier resolves scanned codes against a Source.
type Verifier struct {
	source Source
}

func NewVerifier(source Source) *Verifier {
	return &Verifier{source: source}
}

// Verify looks up the subscription for req.Code and decides on it as of asOf.
// It only reads from the source.
func (v *Verifier) Verify(ctx context.Context, req models.VerifyRequest, asOf time.Time) models.VerificationResult {
	sub, ok := v.source.FindSubscriptionByQR(req.Code)
	if !ok {
		return Decide(nil, nil, req, asOf)
	}

	var client *models.Client
	if c, err := v.source.GetClient(sub.ClientID); err == nil {
		client = &c
	}
	return Decide(&sub, client, req, asOf)
}
