package verification

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"transit-pass-api/internal/models"
	"transit-pass-api/internal/seed"
	"transit-pass-api/internal/store"
)

var now = time.Date(2025, 3, 15, 10, 0, 0, 0, time.UTC)

func intPtr(n int) *int { return &n }

func activeSub(plan models.SubscriptionPlan) *models.Subscription {
	return &models.Subscription{
		ID:        "s1",
		ClientID:  "c1",
		Client:    models.Client{ID: "c1", Surname: "Mbadinga"},
		Plan:      plan,
		StartDate: now.AddDate(0, 0, -5),
		EndDate:   now.AddDate(0, 0, 25),
		Status:    models.SubscriptionActive,
	}
}

func TestDecide_UnknownCode(t *testing.T) {
	res := Decide(nil, nil, models.VerifyRequest{Code: "nope"}, now)

	assert.False(t, res.Valid)
	assert.Nil(t, res.Client)
	assert.Nil(t, res.Subscription)
	assert.Equal(t, MsgNotRecognized, res.Message)
	assert.Equal(t, []models.DenialReason{models.ReasonCodeNotRecognized}, res.Errors)
}

func TestDecide_ExpiredByDateRegardlessOfStatus(t *testing.T) {
	sub := activeSub(models.SubscriptionPlan{})
	sub.EndDate = now.Add(-time.Minute)

	res := Decide(sub, nil, models.VerifyRequest{LineID: "L1"}, now)

	assert.False(t, res.Valid)
	assert.Equal(t, []models.DenialReason{models.ReasonExpired}, res.Errors)
	require.NotNil(t, res.Client)
	assert.Equal(t, "Mbadinga", res.Client.Surname)

	for _, status := range []models.SubscriptionStatus{models.SubscriptionSuspended, models.SubscriptionCancelled} {
		sub.Status = status
		res = Decide(sub, nil, models.VerifyRequest{LineID: "L1"}, now)
		assert.Equal(t, []models.DenialReason{models.ReasonExpired}, res.Errors, "status %s", status)
	}
}

func TestDecide_EndDateEqualToNowIsStillValid(t *testing.T) {
	sub := activeSub(models.SubscriptionPlan{})
	sub.EndDate = now

	res := Decide(sub, nil, models.VerifyRequest{LineID: "L1"}, now)
	assert.True(t, res.Valid)
}

func TestDecide_StatusDenials(t *testing.T) {
	tests := []struct {
		status models.SubscriptionStatus
		reason models.DenialReason
	}{
		{models.SubscriptionExpired, models.ReasonExpired},
		{models.SubscriptionSuspended, models.ReasonSuspended},
		{models.SubscriptionCancelled, models.ReasonCancelled},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			sub := activeSub(models.SubscriptionPlan{})
			sub.Status = tt.status

			res := Decide(sub, nil, models.VerifyRequest{}, now)
			assert.False(t, res.Valid)
			assert.False(t, res.TripAuthorized)
			assert.Equal(t, []models.DenialReason{tt.reason}, res.Errors)
			assert.NotNil(t, res.Subscription)
		})
	}
}

func TestDecide_TripLimit(t *testing.T) {
	sub := activeSub(models.SubscriptionPlan{TripCap: intPtr(3)})
	sub.TripsUsed = 3

	res := Decide(sub, nil, models.VerifyRequest{}, now)
	assert.False(t, res.Valid)
	assert.Equal(t, []models.DenialReason{models.ReasonTripLimitReached}, res.Errors)

	sub.TripsUsed = 2
	res = Decide(sub, nil, models.VerifyRequest{}, now)
	require.True(t, res.Valid)
	require.NotNil(t, res.TripInfo.TripsRemaining)
	assert.Equal(t, 1, *res.TripInfo.TripsRemaining)
}

func TestDecide_LineRestriction(t *testing.T) {
	restricted := activeSub(models.SubscriptionPlan{EligibleLines: []string{"L1", "L4"}})

	res := Decide(restricted, nil, models.VerifyRequest{LineID: "L7"}, now)
	assert.False(t, res.Valid)
	assert.Equal(t, MsgLineNotCovered, res.Message)
	assert.Equal(t, []models.DenialReason{models.ReasonLineNotCovered}, res.Errors)

	res = Decide(restricted, nil, models.VerifyRequest{LineID: "L4"}, now)
	assert.True(t, res.Valid)

	res = Decide(restricted, nil, models.VerifyRequest{}, now)
	assert.True(t, res.Valid, "no line given skips the restriction")
	assert.Empty(t, res.Errors)

	open := activeSub(models.SubscriptionPlan{})
	res = Decide(open, nil, models.VerifyRequest{LineID: "L7"}, now)
	assert.True(t, res.Valid)
	assert.True(t, res.TripAuthorized)
	assert.Nil(t, res.TripInfo.TripsRemaining)
	assert.True(t, res.TripInfo.ExpiresAt.Equal(open.EndDate))
}

func TestDecide_PrefersCurrentClient(t *testing.T) {
	sub := activeSub(models.SubscriptionPlan{})
	current := &models.Client{ID: "c1", Surname: "Mbadinga-Ella"}

	res := Decide(sub, current, models.VerifyRequest{}, now)
	assert.Equal(t, "Mbadinga-Ella", res.Client.Surname)
}

func TestDecide_DoesNotChangeTripsUsed(t *testing.T) {
	sub := activeSub(models.SubscriptionPlan{TripCap: intPtr(5)})
	sub.TripsUsed = 1

	for i := 0; i < 3; i++ {
		Decide(sub, nil, models.VerifyRequest{}, now)
	}
	assert.Equal(t, 1, sub.TripsUsed)
}

func TestVerifier_AgainstSample(t *testing.T) {
	s := store.New()
	require.NoError(t, s.Import(seed.Dataset(now)))
	v := NewVerifier(s)
	ctx := context.Background()

	tests := []struct {
		name  string
		req   models.VerifyRequest
		valid bool
		why   models.DenialReason
	}{
		{"monthly any line", models.VerifyRequest{Code: seed.QRMbadinga, LineID: "L9"}, true, ""},
		{"student on campus line", models.VerifyRequest{Code: seed.QRNzeBekale, LineID: "L1"}, true, ""},
		{"student off campus", models.VerifyRequest{Code: seed.QRNzeBekale, LineID: "L2"}, false, models.ReasonLineNotCovered},
		{"student without line", models.VerifyRequest{Code: seed.QRNzeBekale}, true, ""},
		{"suspended", models.VerifyRequest{Code: seed.QRObameNguema, LineID: "L1"}, false, models.ReasonSuspended},
		{"expired", models.VerifyRequest{Code: seed.QRKoumbaDiaby, LineID: "L1"}, false, models.ReasonExpired},
		{"unknown", models.VerifyRequest{Code: "SUB-unknown"}, false, models.ReasonCodeNotRecognized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := v.Verify(ctx, tt.req, now)
			assert.Equal(t, tt.valid, res.Valid)
			if !tt.valid {
				assert.Equal(t, []models.DenialReason{tt.why}, res.Errors)
			}
		})
	}

	sub, err := s.GetSubscription(seed.SubMbadinga)
	require.NoError(t, err)
	assert.Equal(t, 6, sub.TripsUsed)
}

func TestVerifier_DeletedClientFallsBackToSnapshot(t *testing.T) {
	s := store.New()
	require.NoError(t, s.Import(seed.Dataset(now)))
	require.NoError(t, s.DeleteClient(context.Background(), seed.ClientMbadinga))

	res := NewVerifier(s).Verify(context.Background(), models.VerifyRequest{Code: seed.QRMbadinga}, now)
	assert.True(t, res.Valid)
	require.NotNil(t, res.Client)
	assert.Equal(t, "Mbadinga", res.Client.Surname)
}
