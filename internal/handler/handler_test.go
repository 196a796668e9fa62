package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"transit-pass-api/internal/cache"
	"transit-pass-api/internal/features"
	"transit-pass-api/internal/fleet"
	"transit-pass-api/internal/models"
	"transit-pass-api/internal/seed"
	"transit-pass-api/internal/service"
	"transit-pass-api/internal/store"
)

var testNow = time.Date(2025, 3, 15, 10, 0, 0, 0, time.UTC)

func setupTestHandler(t *testing.T) *Handler {
	t.Helper()

	flags := features.NewManager()
	features.Defaults(flags, true, false, false)

	clock := func() time.Time { return testNow }
	st := store.New(
		store.WithClock(clock),
		store.WithSingleActiveSubscription(func() bool { return flags.IsEnabled(features.SingleActiveSubscription) }),
	)
	require.NoError(t, st.Import(seed.Dataset(testNow)))

	svc := service.NewService(st,
		service.WithFeatures(flags),
		service.WithFleet(fleet.NewFeed(cache.NewInMemoryCache(), time.Minute)),
		service.WithClock(clock),
	)
	return NewHandler(svc)
}

func setupRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()
	h.Routes(r)
	return r
}

func do(t *testing.T, r http.Handler, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf *bytes.Buffer
	switch b := body.(type) {
	case nil:
		buf = &bytes.Buffer{}
	case string:
		buf = bytes.NewBufferString(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		buf = bytes.NewBuffer(raw)
	}

	req := httptest.NewRequest(method, target, buf)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	return rr
}

func decodeBody[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out), rr.Body.String())
	return out
}

func TestAddClient_Success(t *testing.T) {
	r := setupRouter(setupTestHandler(t))

	rr := do(t, r, http.MethodPost, "/clients", models.ClientInput{
		Surname:   "Moussavou",
		GivenName: "Rachel",
		Phone:     "+241 06 40 50 60",
		Email:     "rachel.moussavou@example.ga",
		City:      "Port-Gentil",
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))

	c := decodeBody[models.Client](t, rr)
	assert.NotEmpty(t, c.ID)
	assert.NotEmpty(t, c.QRCodeID)
	assert.Equal(t, models.ClientActive, c.Status)

	rr = do(t, r, http.MethodGet, "/clients/"+c.ID, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "Rachel", decodeBody[models.Client](t, rr).GivenName)
}

func TestAddClient_Errors(t *testing.T) {
	r := setupRouter(setupTestHandler(t))

	tests := []struct {
		name   string
		body   any
		status int
		msg    string
	}{
		{"empty body", nil, http.StatusBadRequest, "request body is required"},
		{"malformed json", `{"surname":`, http.StatusBadRequest, "invalid JSON"},
		{"unknown status", `{"surname":"A","given_name":"B","phone":"+241 01","email":"a@b.ga","status":"banned"}`, http.StatusBadRequest, "invalid JSON"},
		{"missing email", models.ClientInput{Surname: "A", GivenName: "B", Phone: "+241 06 00 00 00"}, http.StatusBadRequest, "email"},
		{"duplicate qr", models.ClientInput{
			Surname: "A", GivenName: "B", Phone: "+241 06 00 00 00", Email: "a@b.ga",
			QRCodeID: mustClient(t, r, seed.ClientMbadinga).QRCodeID,
		}, http.StatusConflict, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(t, r, http.MethodPost, "/clients", tt.body)
			assert.Equal(t, tt.status, rr.Code, rr.Body.String())
			resp := decodeBody[models.ErrorResponse](t, rr)
			assert.Contains(t, resp.Error, tt.msg)
		})
	}
}

func mustClient(t *testing.T, r http.Handler, id string) models.Client {
	t.Helper()
	rr := do(t, r, http.MethodGet, "/clients/"+id, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	return decodeBody[models.Client](t, rr)
}

func TestListClients_Filters(t *testing.T) {
	r := setupRouter(setupTestHandler(t))

	rr := do(t, r, http.MethodGet, "/clients", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decodeBody[[]models.Client](t, rr), 5)

	rr = do(t, r, http.MethodGet, "/clients?status=suspended", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	got := decodeBody[[]models.Client](t, rr)
	require.Len(t, got, 1)
	assert.Equal(t, "Obame Nguema", got[0].Surname)

	rr = do(t, r, http.MethodGet, "/clients?status=banned", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestUpdateClient(t *testing.T) {
	r := setupRouter(setupTestHandler(t))

	rr := do(t, r, http.MethodPatch, "/clients/"+seed.ClientMbadinga, map[string]any{"city": "Owendo"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, "Owendo", decodeBody[models.Client](t, rr).City)

	rr = do(t, r, http.MethodPatch, "/clients/"+seed.ClientMbadinga, map[string]any{"qr_code_id": "forged"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, decodeBody[models.ErrorResponse](t, rr).Error, "immutable")

	rr = do(t, r, http.MethodPatch, "/clients/00000000-0000-4000-8000-000000000000", map[string]any{"city": "Owendo"})
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestDeleteClient(t *testing.T) {
	r := setupRouter(setupTestHandler(t))

	rr := do(t, r, http.MethodDelete, "/clients/"+seed.ClientNzeBekale, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	resp := decodeBody[models.DeleteClientResponse](t, rr)
	assert.Equal(t, seed.ClientNzeBekale, resp.ClientID)
	assert.Empty(t, resp.CancelledSubscriptions)
	assert.Contains(t, rr.Body.String(), `"cancelled_subscriptions":[]`)

	rr = do(t, r, http.MethodDelete, "/clients/"+seed.ClientNzeBekale, nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = do(t, r, http.MethodGet, "/clients/"+seed.ClientNzeBekale+"/subscriptions", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestDeleteClient_CascadeFlag(t *testing.T) {
	r := setupRouter(setupTestHandler(t))

	rr := do(t, r, http.MethodPut, "/features/"+features.CascadeClientDelete, models.FeatureToggleRequest{Enabled: true})
	require.Equal(t, http.StatusOK, rr.Code)

	rr = do(t, r, http.MethodDelete, "/clients/"+seed.ClientMbadinga, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, []string{seed.SubMbadinga}, decodeBody[models.DeleteClientResponse](t, rr).CancelledSubscriptions)
}

func TestVerify(t *testing.T) {
	r := setupRouter(setupTestHandler(t))
	now := testNow.Format(time.RFC3339)

	tests := []struct {
		name    string
		req     models.VerifyRequest
		valid   bool
		reasons []models.DenialReason
	}{
		{"active monthly", models.VerifyRequest{Code: seed.QRMbadinga, LineID: "L3"}, true, nil},
		{"student off-network line", models.VerifyRequest{Code: seed.QRNzeBekale, LineID: "L2"}, false, []models.DenialReason{models.ReasonLineNotCovered}},
		{"unknown code", models.VerifyRequest{Code: "TPG-UNKNOWN"}, false, []models.DenialReason{models.ReasonCodeNotRecognized}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(t, r, http.MethodPost, "/verify?now="+now, tt.req)
			require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
			res := decodeBody[models.VerificationResult](t, rr)
			assert.Equal(t, tt.valid, res.Valid)
			assert.Equal(t, tt.valid, res.TripAuthorized)
			assert.Equal(t, tt.reasons, res.Errors)
		})
	}
}

func TestVerify_BadInput(t *testing.T) {
	r := setupRouter(setupTestHandler(t))

	rr := do(t, r, http.MethodPost, "/verify?now=yesterday", models.VerifyRequest{Code: seed.QRMbadinga})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, decodeBody[models.ErrorResponse](t, rr).Error, "'now'")

	rr = do(t, r, http.MethodPost, "/verify", models.VerifyRequest{Code: ""})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestRecordTrip_CapReached(t *testing.T) {
	r := setupRouter(setupTestHandler(t))
	target := "/subscriptions/" + seed.SubOndoMeyo + "/trips"

	// Hebdo 14 with nine trips used leaves five.
	for i := 0; i < 5; i++ {
		rr := do(t, r, http.MethodPost, target, models.TripInput{LineID: "L2", Fare: 150})
		require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	}

	rr := do(t, r, http.MethodPost, target, models.TripInput{LineID: "L2", Fare: 150})
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = do(t, r, http.MethodGet, "/trips?subscription_id="+seed.SubOndoMeyo, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decodeBody[[]models.TripRecord](t, rr), 5)

	rr = do(t, r, http.MethodGet, "/subscriptions/"+seed.SubOndoMeyo, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 14, decodeBody[models.Subscription](t, rr).TripsUsed)
}

func TestSubscriptionLifecycle(t *testing.T) {
	r := setupRouter(setupTestHandler(t))

	rr := do(t, r, http.MethodPost, "/subscriptions", models.SubscriptionInput{ClientID: seed.ClientMbadinga, PlanID: seed.PlanWeekly})
	assert.Equal(t, http.StatusConflict, rr.Code, "single active subscription is on by default")

	rr = do(t, r, http.MethodPost, "/subscriptions/"+seed.SubMbadinga+"/status", models.StatusChangeRequest{Status: models.SubscriptionCancelled})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = do(t, r, http.MethodPost, "/subscriptions/"+seed.SubMbadinga+"/status", models.StatusChangeRequest{Status: models.SubscriptionActive})
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = do(t, r, http.MethodPost, "/subscriptions", models.SubscriptionInput{ClientID: seed.ClientMbadinga, PlanID: seed.PlanWeekly})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	sub := decodeBody[models.Subscription](t, rr)
	assert.Equal(t, models.SubscriptionActive, sub.Status)
	assert.True(t, sub.EndDate.Equal(testNow.AddDate(0, 0, 7)), "end date %s", sub.EndDate)

	rr = do(t, r, http.MethodPost, "/subscriptions/"+sub.ID+"/payments", models.PaymentInput{Amount: 5000, Method: models.PaymentCash})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	payment := decodeBody[models.Payment](t, rr)

	rr = do(t, r, http.MethodPut, "/subscriptions/"+sub.ID+"/payments/"+payment.ID+"/status", models.PaymentStatusRequest{Status: models.PaymentFailed})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, models.PaymentFailed, decodeBody[models.Payment](t, rr).Status)

	rr = do(t, r, http.MethodPost, "/subscriptions/"+sub.ID+"/refresh", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = do(t, r, http.MethodGet, "/clients/"+seed.ClientMbadinga+"/subscriptions", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decodeBody[[]models.Subscription](t, rr), 2)

	rr = do(t, r, http.MethodGet, "/subscriptions", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decodeBody[[]models.Subscription](t, rr), 6)
}

func TestPlans(t *testing.T) {
	r := setupRouter(setupTestHandler(t))

	tripCap := 40
	rr := do(t, r, http.MethodPost, "/plans", models.SubscriptionPlan{
		Name:         "Mensuel 40",
		DurationDays: 30,
		Price:        11000,
		TripCap:      &tripCap,
		Active:       true,
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	plan := decodeBody[models.SubscriptionPlan](t, rr)
	assert.NotEmpty(t, plan.ID)

	rr = do(t, r, http.MethodPut, "/plans/"+plan.ID+"/active", models.PlanActiveRequest{Active: false})
	require.Equal(t, http.StatusOK, rr.Code)
	assert.False(t, decodeBody[models.SubscriptionPlan](t, rr).Active)

	rr = do(t, r, http.MethodGet, "/plans", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decodeBody[[]models.SubscriptionPlan](t, rr), 4)

	rr = do(t, r, http.MethodPost, "/plans", models.SubscriptionPlan{Name: "Broken", DurationDays: 0, Price: 100})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, r, http.MethodGet, "/plans/missing", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestStatisticsAndDashboard(t *testing.T) {
	r := setupRouter(setupTestHandler(t))
	asOf := testNow.Format(time.RFC3339)

	rr := do(t, r, http.MethodGet, "/statistics?as_of="+asOf, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	st := decodeBody[models.Statistics](t, rr)
	assert.Equal(t, 5, st.TotalClients)
	assert.Equal(t, 2, st.NewClientsThisMonth)
	assert.Equal(t, 19, st.TripsThisMonth)

	rr = do(t, r, http.MethodGet, "/statistics?as_of=03/15/2025", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, r, http.MethodPut, "/fleet/lines", models.FleetUpdate{Lines: []models.LineStatus{
		{LineID: "L1", LineName: "Akanda - Centre", ActiveBuses: 4, State: fleet.StateOnTime},
		{LineID: "L2", LineName: "Owendo - Gare routière", ActiveBuses: 2, State: fleet.StateDelayed},
	}})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = do(t, r, http.MethodGet, "/dashboard?as_of="+asOf, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	d := decodeBody[models.DashboardResponse](t, rr)
	assert.Equal(t, st, d.Statistics)
	assert.Len(t, d.Lines, 2)

	rr = do(t, r, http.MethodPut, "/fleet/lines", models.FleetUpdate{Lines: []models.LineStatus{
		{LineID: "L1", ActiveBuses: -1, State: fleet.StateOnTime},
	}})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, decodeBody[models.ErrorResponse](t, rr).Error, "lines[0].active_buses")
}

func TestStatistics_AsOfKeepsOffset(t *testing.T) {
	r := setupRouter(setupTestHandler(t))

	// 2025-03-31T23:30Z in UTC, but already April at +01:00.
	rr := do(t, r, http.MethodGet, "/statistics?as_of=2025-04-01T00:30:00%2B01:00", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	st := decodeBody[models.Statistics](t, rr)
	assert.Equal(t, 0, st.NewClientsThisMonth)
	assert.Zero(t, st.RevenueThisMonth)
	assert.True(t, st.AsOf.Equal(time.Date(2025, 3, 31, 23, 30, 0, 0, time.UTC)), "as_of = %s", st.AsOf)
	_, offset := st.AsOf.Zone()
	assert.Equal(t, 3600, offset)

	// The same instant written in UTC still falls in March.
	rr = do(t, r, http.MethodGet, "/statistics?as_of=2025-03-31T23:30:00Z", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 2, decodeBody[models.Statistics](t, rr).NewClientsThisMonth)
}

func TestFeatures(t *testing.T) {
	r := setupRouter(setupTestHandler(t))

	rr := do(t, r, http.MethodGet, "/features", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	flags := decodeBody[[]features.FeatureFlag](t, rr)
	assert.Len(t, flags, 3)

	rr = do(t, r, http.MethodPut, "/features/nope", models.FeatureToggleRequest{Enabled: true})
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestBodyTooLarge(t *testing.T) {
	svcHandler := setupTestHandler(t)
	h := NewHandlerWithOptions(svcHandler.service, NewHandlerOptions{MaxBodySize: 32})
	r := setupRouter(h)

	body := `{"surname":"` + strings.Repeat("x", 64) + `"}`
	rr := do(t, r, http.MethodPost, "/clients", body)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
}
