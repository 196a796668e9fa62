package models

import "time"

// Client represents a registered transit rider.
type Client struct {
	ID           string       `json:"id"` // uuid, immutable
	Surname      string       `json:"surname"`
	GivenName    string       `json:"given_name"`
	Phone        string       `json:"phone"`
	Email        string       `json:"email"`
	BirthDate    *time.Time   `json:"birth_date,omitempty"`
	Address      string       `json:"address,omitempty"`
	City         string       `json:"city,omitempty"`
	Status       ClientStatus `json:"status"`
	RegisteredAt time.Time    `json:"registered_at"`
	LastUpdated  time.Time    `json:"last_updated"`
	QRCodeID     string       `json:"qr_code_id"` // immutable, unique
}

// ClientInput is the payload accepted when registering a client.
type ClientInput struct {
	Surname   string       `json:"surname" validate:"required,max=100"`
	GivenName string       `json:"given_name" validate:"required,max=100"`
	Phone     string       `json:"phone" validate:"required,max=32"`
	Email     string       `json:"email" validate:"required,email,max=254"`
	BirthDate *time.Time   `json:"birth_date,omitempty"`
	Address   string       `json:"address,omitempty" validate:"max=255"`
	City      string       `json:"city,omitempty" validate:"max=100"`
	Status    ClientStatus `json:"status,omitempty"`
	QRCodeID  string       `json:"qr_code_id,omitempty" validate:"max=128"`
}

// ClientPatch carries a partial client update. Nil fields are left untouched.
// ID and QRCodeID exist only so that attempts to change them can be rejected.
type ClientPatch struct {
	ID        *string       `json:"id,omitempty"`
	QRCodeID  *string       `json:"qr_code_id,omitempty"`
	Surname   *string       `json:"surname,omitempty"`
	GivenName *string       `json:"given_name,omitempty"`
	Phone     *string       `json:"phone,omitempty"`
	Email     *string       `json:"email,omitempty"`
	BirthDate *time.Time    `json:"birth_date,omitempty"`
	Address   *string       `json:"address,omitempty"`
	City      *string       `json:"city,omitempty"`
	Status    *ClientStatus `json:"status,omitempty"`
}

// ClientFilter selects clients from the roster. Zero-valued fields impose no constraint.
type ClientFilter struct {
	Status   ClientStatus `json:"status,omitempty"`
	City     string       `json:"city,omitempty"`
	FreeText string       `json:"q,omitempty"`
}

// SubscriptionPlan is a purchasable plan template.
type SubscriptionPlan struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	Description   string   `json:"description,omitempty"`
	DurationDays  int      `json:"duration_days"`
	Price         int64    `json:"price"`                    // minor FCFA units
	TripCap       *int     `json:"trip_cap,omitempty"`       // nil = unlimited
	EligibleLines []string `json:"eligible_lines,omitempty"` // empty = all lines
	Benefits      []string `json:"benefits,omitempty"`
	Color         string   `json:"color,omitempty"`
	Active        bool     `json:"active"`
}

// Capped reports whether the plan limits the number of trips.
func (p SubscriptionPlan) Capped() bool {
	return p.TripCap != nil
}

// CoversLine reports whether lineID may be ridden under this plan.
func (p SubscriptionPlan) CoversLine(lineID string) bool {
	if len(p.EligibleLines) == 0 {
		return true
	}
	for _, id := range p.EligibleLines {
		if id == lineID {
			return true
		}
	}
	return false
}

// Subscription is a client's instantiation of a plan over a date range.
type Subscription struct {
	ID             string             `json:"id"`
	ClientID       string             `json:"client_id"`
	Client         Client             `json:"client"` // snapshot
	PlanID         string             `json:"plan_id"`
	Plan           SubscriptionPlan   `json:"plan"` // snapshot
	StartDate      time.Time          `json:"start_date"`
	EndDate        time.Time          `json:"end_date"`
	Status         SubscriptionStatus `json:"status"`
	TripsUsed      int                `json:"trips_used"`
	TripsRemaining *int               `json:"trips_remaining,omitempty"`
	QRPayload      string             `json:"qr_payload"`
	Payments       []Payment          `json:"payments"`
	CreatedAt      time.Time          `json:"created_at"`
	UpdatedAt      time.Time          `json:"updated_at"`
}

// RemainingTrips derives the trips left under a capped plan, or nil when unlimited.
func (s Subscription) RemainingTrips() *int {
	if !s.Plan.Capped() {
		return nil
	}
	left := *s.Plan.TripCap - s.TripsUsed
	if left < 0 {
		left = 0
	}
	return &left
}

// SubscriptionInput is the payload accepted when subscribing a client to a plan.
type SubscriptionInput struct {
	ClientID  string    `json:"client_id"`
	PlanID    string    `json:"plan_id"`
	StartDate time.Time `json:"start_date"` // zero = now
}

// Payment is a single payment against a subscription.
type Payment struct {
	ID             string        `json:"id"`
	SubscriptionID string        `json:"subscription_id"`
	Amount         int64         `json:"amount"`
	Method         PaymentMethod `json:"method"`
	Status         PaymentStatus `json:"status"`
	Reference      string        `json:"reference,omitempty"`
	PaidAt         time.Time     `json:"paid_at"`
	Operator       string        `json:"operator,omitempty"` // mobile-money operator
}

// PaymentInput is the payload accepted when recording a payment.
type PaymentInput struct {
	Amount    int64         `json:"amount"`
	Method    PaymentMethod `json:"method"`
	Status    PaymentStatus `json:"status,omitempty"`
	Reference string        `json:"reference,omitempty"`
	PaidAt    time.Time     `json:"paid_at,omitempty"`
	Operator  string        `json:"operator,omitempty"`
}

// TripRecord is a historical boarding event.
type TripRecord struct {
	ID               string               `json:"id"`
	ClientID         string               `json:"client_id"`
	SubscriptionID   string               `json:"subscription_id"`
	LineID           string               `json:"line_id"`
	LineName         string               `json:"line_name,omitempty"`
	LineNumber       string               `json:"line_number,omitempty"`
	Origin           string               `json:"origin,omitempty"`
	Destination      string               `json:"destination,omitempty"`
	Timestamp        time.Time            `json:"timestamp"`
	BusID            string               `json:"bus_id,omitempty"`
	DriverID         string               `json:"driver_id,omitempty"`
	Fare             int64                `json:"fare"`
	ValidationStatus TripValidationStatus `json:"validation_status"`
	ScanMethod       ScanMethod           `json:"scan_method"`
}

// TripInput carries the boarding details supplied by the validator device.
type TripInput struct {
	LineID      string     `json:"line_id"`
	LineName    string     `json:"line_name,omitempty"`
	LineNumber  string     `json:"line_number,omitempty"`
	Origin      string     `json:"origin,omitempty"`
	Destination string     `json:"destination,omitempty"`
	Timestamp   time.Time  `json:"timestamp,omitempty"`
	BusID       string     `json:"bus_id,omitempty"`
	DriverID    string     `json:"driver_id,omitempty"`
	Fare        int64      `json:"fare"`
	ScanMethod  ScanMethod `json:"scan_method,omitempty"`
}

// TripFilter narrows the trip history listing.
type TripFilter struct {
	ClientID       string
	SubscriptionID string
}

// VerifyRequest is what a boarding device sends after scanning a code.
type VerifyRequest struct {
	Code        string `json:"code"`
	LineID      string `json:"line_id,omitempty"`
	Origin      string `json:"origin,omitempty"`
	Destination string `json:"destination,omitempty"`
}

// TripInfo is attached to an authorized verification.
type TripInfo struct {
	TripsRemaining *int      `json:"trips_remaining,omitempty"`
	EligibleLines  []string  `json:"eligible_lines,omitempty"`
	ExpiresAt      time.Time `json:"expires_at"`
}

// VerificationResult is the authorize/deny decision for a scanned code.
// A denial is a normal result, not an error.
type VerificationResult struct {
	Valid          bool           `json:"valid"`
	Client         *Client        `json:"client,omitempty"`
	Subscription   *Subscription  `json:"subscription,omitempty"`
	Message        string         `json:"message"`
	Errors         []DenialReason `json:"errors,omitempty"`
	TripAuthorized bool           `json:"trip_authorized"`
	TripInfo       *TripInfo      `json:"trip_info,omitempty"`
}

// Statistics is the dashboard aggregate computed from the roster.
type Statistics struct {
	TotalClients           int       `json:"total_clients"`
	ClientsActive          int       `json:"clients_active"`
	ClientsInactive        int       `json:"clients_inactive"`
	ClientsSuspended       int       `json:"clients_suspended"`
	NewClientsThisMonth    int       `json:"new_clients_this_month"`
	SubscriptionsActive    int       `json:"subscriptions_active"`
	SubscriptionsExpired   int       `json:"subscriptions_expired"`
	SubscriptionsSuspended int       `json:"subscriptions_suspended"`
	SubscriptionsCancelled int       `json:"subscriptions_cancelled"`
	RevenueThisMonth       int64     `json:"revenue_this_month"` // from plan prices, not payments
	TripsThisMonth         int       `json:"trips_this_month"`   // trips used on active subscriptions
	AsOf                   time.Time `json:"as_of"`
}

// LineStatus is one line's state as reported by the fleet feed.
type LineStatus struct {
	LineID      string    `json:"line_id"`
	LineName    string    `json:"line_name"`
	LineNumber  string    `json:"line_number,omitempty"`
	ActiveBuses int       `json:"active_buses"`
	State       string    `json:"state"` // e.g. on_time, delayed, interrupted
	UpdatedAt   time.Time `json:"updated_at"`
}

// DashboardResponse places statistics beside the fleet snapshot; the two are never combined.
type DashboardResponse struct {
	Statistics Statistics   `json:"statistics"`
	Lines      []LineStatus `json:"lines"`
}

// StatusChangeRequest is the body of a subscription status change.
type StatusChangeRequest struct {
	Status SubscriptionStatus `json:"status"`
}

// PaymentStatusRequest is the body of a payment status change.
type PaymentStatusRequest struct {
	Status PaymentStatus `json:"status"`
}

// PlanActiveRequest toggles a plan on or off.
type PlanActiveRequest struct {
	Active bool `json:"active"`
}

// FleetUpdate is the body pushed by the fleet feed.
type FleetUpdate struct {
	Lines []LineStatus `json:"lines"`
}

// FeatureToggleRequest switches a feature flag.
type FeatureToggleRequest struct {
	Enabled bool `json:"enabled"`
}

// DeleteClientResponse reports a deletion and any subscriptions it cancelled.
type DeleteClientResponse struct {
	ClientID               string   `json:"client_id"`
	CancelledSubscriptions []string `json:"cancelled_subscriptions"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error string `json:"error"`
}
