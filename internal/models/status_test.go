package models

import (
	"encoding/json"
	"testing"
)

func TestSubscriptionStatus_CanTransitionTo(t *testing.T) {
	all := []SubscriptionStatus{SubscriptionActive, SubscriptionExpired, SubscriptionSuspended, SubscriptionCancelled}
	allowed := map[SubscriptionStatus][]SubscriptionStatus{
		SubscriptionActive:    {SubscriptionExpired, SubscriptionSuspended, SubscriptionCancelled},
		SubscriptionSuspended: {SubscriptionActive, SubscriptionCancelled},
	}

	for _, from := range all {
		for _, to := range all {
			want := false
			for _, ok := range allowed[from] {
				if ok == to {
					want = true
				}
			}
			if got := from.CanTransitionTo(to); got != want {
				t.Errorf("%s -> %s: got %v, want %v", from, to, got, want)
			}
		}
	}
}

func TestStatusJSON_RejectsUnknownValues(t *testing.T) {
	var in ClientInput
	if err := json.Unmarshal([]byte(`{"status":"banned"}`), &in); err == nil {
		t.Error("Expected error for unknown client status")
	}

	var req StatusChangeRequest
	if err := json.Unmarshal([]byte(`{"status":"suspended"}`), &req); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if req.Status != SubscriptionSuspended {
		t.Errorf("Expected suspended, got %s", req.Status)
	}
}

func TestRemainingTrips(t *testing.T) {
	unlimited := Subscription{TripsUsed: 40}
	if unlimited.RemainingTrips() != nil {
		t.Error("Expected nil for an unlimited plan")
	}

	tripCap := 14
	sub := Subscription{Plan: SubscriptionPlan{TripCap: &tripCap}, TripsUsed: 9}
	if got := *sub.RemainingTrips(); got != 5 {
		t.Errorf("Expected 5 trips remaining, got %d", got)
	}

	sub.TripsUsed = 20
	if got := *sub.RemainingTrips(); got != 0 {
		t.Errorf("Expected remaining trips to floor at 0, got %d", got)
	}
}

func TestPlanCoversLine(t *testing.T) {
	open := SubscriptionPlan{}
	if !open.CoversLine("L9") {
		t.Error("Expected a plan without restrictions to cover every line")
	}

	student := SubscriptionPlan{EligibleLines: []string{"L1", "L4"}}
	if !student.CoversLine("L4") || student.CoversLine("L2") {
		t.Error("Unexpected coverage for restricted plan")
	}
}
