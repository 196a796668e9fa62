// Package seed provides the sample roster used for demos and tests: five Libreville riders,
// three plans and one subscription per rider.
package seed

import (
	"time"

	"transit-pass-api/internal/models"
	"transit-pass-api/internal/stats"
	"transit-pass-api/internal/store"
)

// Fixed identifiers so that tests and demo devices can refer to seeded records.
const (
	ClientMbadinga    = "3f1c2a4e-8b7d-4c1e-9a2b-1d2e3f4a5b01"
	ClientOndoMeyo    = "3f1c2a4e-8b7d-4c1e-9a2b-1d2e3f4a5b02"
	ClientNzeBekale   = "3f1c2a4e-8b7d-4c1e-9a2b-1d2e3f4a5b03"
	ClientObameNguema = "3f1c2a4e-8b7d-4c1e-9a2b-1d2e3f4a5b04"
	ClientKoumbaDiaby = "3f1c2a4e-8b7d-4c1e-9a2b-1d2e3f4a5b05"

	PlanMonthly = "7a9e0c1d-2b3f-4a5e-8c6d-0e1f2a3b4c01"
	PlanWeekly  = "7a9e0c1d-2b3f-4a5e-8c6d-0e1f2a3b4c02"
	PlanStudent = "7a9e0c1d-2b3f-4a5e-8c6d-0e1f2a3b4c03"

	SubMbadinga    = "c4d5e6f7-1a2b-4c3d-9e8f-7a6b5c4d3e01"
	SubOndoMeyo    = "c4d5e6f7-1a2b-4c3d-9e8f-7a6b5c4d3e02"
	SubNzeBekale   = "c4d5e6f7-1a2b-4c3d-9e8f-7a6b5c4d3e03"
	SubObameNguema = "c4d5e6f7-1a2b-4c3d-9e8f-7a6b5c4d3e04"
	SubKoumbaDiaby = "c4d5e6f7-1a2b-4c3d-9e8f-7a6b5c4d3e05"
)

// QR payloads of the seeded subscriptions.
const (
	QRMbadinga    = "SUB-5b1e2c3d-4f5a-4b6c-8d7e-9f0a1b2c3d01"
	QROndoMeyo    = "SUB-5b1e2c3d-4f5a-4b6c-8d7e-9f0a1b2c3d02"
	QRNzeBekale   = "SUB-5b1e2c3d-4f5a-4b6c-8d7e-9f0a1b2c3d03"
	QRObameNguema = "SUB-5b1e2c3d-4f5a-4b6c-8d7e-9f0a1b2c3d04"
	QRKoumbaDiaby = "SUB-5b1e2c3d-4f5a-4b6c-8d7e-9f0a1b2c3d05"
)

// Student plan lines.
var StudentLines = []string{"L1", "L4"}

func intPtr(n int) *int { return &n }

func datePtr(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

// Plans returns the three sample plans.
func Plans() []models.SubscriptionPlan {
	return []models.SubscriptionPlan{
		{
			ID:           PlanMonthly,
			Name:         "Mensuel Illimité",
			Description:  "Unlimited travel on every line for 30 days",
			DurationDays: 30,
			Price:        15000,
			Benefits:     []string{"all lines", "unlimited trips"},
			Color:        "#1E88E5",
			Active:       true,
		},
		{
			ID:           PlanWeekly,
			Name:         "Hebdo 14",
			Description:  "Fourteen trips within 7 days",
			DurationDays: 7,
			Price:        5000,
			TripCap:      intPtr(14),
			Benefits:     []string{"all lines"},
			Color:        "#43A047",
			Active:       true,
		},
		{
			ID:            PlanStudent,
			Name:          "Étudiant",
			Description:   "Reduced rate on the campus lines",
			DurationDays:  30,
			Price:         8000,
			EligibleLines: append([]string(nil), StudentLines...),
			Benefits:      []string{"campus lines", "unlimited trips"},
			Color:         "#FB8C00",
			Active:        true,
		},
	}
}

// Dataset builds the sample data around asOf. Mbadinga, Ondo Meyo and Nze Bekale registered
// before the month containing asOf; Obame Nguema and Koumba Diaby registered within it.
func Dataset(asOf time.Time) store.Dataset {
	asOf = asOf.UTC()
	monthStart := stats.MonthStart(asOf)
	inMonth := func(d time.Duration) time.Time {
		t := monthStart.Add(d)
		if t.After(asOf) {
			return asOf
		}
		return t
	}

	clients := []models.Client{
		{
			ID:        ClientMbadinga,
			Surname:   "Mbadinga",
			GivenName: "Jean-Pierre",
			Phone:     "+241 06 12 34 56",
			Email:     "jp.mbadinga@example.ga",
			BirthDate: datePtr(1985, time.April, 12),
			Address:   "Quartier Louis",
			City:      "Libreville",
			Status:    models.ClientActive,
			QRCodeID:  "CLT-8e2d4f6a-1b3c-4d5e-9f7a-2b4c6d8e0a01",
		},
		{
			ID:        ClientOndoMeyo,
			Surname:   "Ondo Meyo",
			GivenName: "Marie-Claire",
			Phone:     "+241 07 98 76 54",
			Email:     "mc.ondomeyo@example.ga",
			BirthDate: datePtr(1992, time.September, 3),
			Address:   "Nzeng-Ayong",
			City:      "Libreville",
			Status:    models.ClientActive,
			QRCodeID:  "CLT-8e2d4f6a-1b3c-4d5e-9f7a-2b4c6d8e0a02",
		},
		{
			ID:        ClientNzeBekale,
			Surname:   "Nze Bekale",
			GivenName: "Paul",
			Phone:     "+241 06 55 44 33",
			Email:     "paul.nzebekale@example.ga",
			BirthDate: datePtr(2003, time.January, 27),
			Address:   "Akanda",
			City:      "Akanda",
			Status:    models.ClientActive,
			QRCodeID:  "CLT-8e2d4f6a-1b3c-4d5e-9f7a-2b4c6d8e0a03",
		},
		{
			ID:        ClientObameNguema,
			Surname:   "Obame Nguema",
			GivenName: "Sylvie",
			Phone:     "+241 07 11 22 33",
			Email:     "sylvie.obame@example.ga",
			Address:   "Owendo Centre",
			City:      "Owendo",
			Status:    models.ClientSuspended,
			QRCodeID:  "CLT-8e2d4f6a-1b3c-4d5e-9f7a-2b4c6d8e0a04",
		},
		{
			ID:        ClientKoumbaDiaby,
			Surname:   "Koumba Diaby",
			GivenName: "Aminata",
			Phone:     "+241 06 77 88 99",
			Email:     "aminata.koumba@example.ga",
			City:      "Libreville",
			Status:    models.ClientActive,
			QRCodeID:  "CLT-8e2d4f6a-1b3c-4d5e-9f7a-2b4c6d8e0a05",
		},
	}

	registered := []time.Time{
		monthStart.AddDate(0, -5, 2),
		monthStart.AddDate(0, -2, 10),
		monthStart.AddDate(0, 0, -3),
		inMonth(2 * time.Hour),
		inMonth(26 * time.Hour),
	}
	for i := range clients {
		clients[i].RegisteredAt = registered[i]
		clients[i].LastUpdated = registered[i]
	}

	plans := Plans()
	planByID := make(map[string]models.SubscriptionPlan, len(plans))
	for _, p := range plans {
		planByID[p.ID] = p
	}

	subscribe := func(id, qr string, client models.Client, planID string, start time.Time, status models.SubscriptionStatus, used int) models.Subscription {
		plan := planByID[planID]
		sub := models.Subscription{
			ID:        id,
			ClientID:  client.ID,
			Client:    client,
			PlanID:    planID,
			Plan:      plan,
			StartDate: start,
			EndDate:   start.AddDate(0, 0, plan.DurationDays),
			Status:    status,
			TripsUsed: used,
			QRPayload: qr,
			Payments: []models.Payment{{
				ID:             "e1f2a3b4-c5d6-4e7f-8a9b-0c1d2e3f4a" + id[len(id)-2:],
				SubscriptionID: id,
				Amount:         plan.Price,
				Method:         models.PaymentMobileMoney,
				Status:         models.PaymentValidated,
				Reference:      "MM-" + id[len(id)-2:],
				PaidAt:         start,
				Operator:       "Airtel Money",
			}},
			CreatedAt: start,
			UpdatedAt: start,
		}
		sub.TripsRemaining = sub.RemainingTrips()
		return sub
	}

	subs := []models.Subscription{
		subscribe(SubMbadinga, QRMbadinga, clients[0], PlanMonthly, asOf.Add(-time.Hour), models.SubscriptionActive, 6),
		subscribe(SubOndoMeyo, QROndoMeyo, clients[1], PlanWeekly, asOf.Add(-48*time.Hour), models.SubscriptionActive, 9),
		subscribe(SubNzeBekale, QRNzeBekale, clients[2], PlanStudent, asOf.Add(-72*time.Hour), models.SubscriptionActive, 4),
		subscribe(SubObameNguema, QRObameNguema, clients[3], PlanMonthly, registered[3], models.SubscriptionSuspended, 0),
		subscribe(SubKoumbaDiaby, QRKoumbaDiaby, clients[4], PlanWeekly, registered[4], models.SubscriptionExpired, 14),
	}

	return store.Dataset{
		Clients:       clients,
		Plans:         plans,
		Subscriptions: subs,
	}
}
