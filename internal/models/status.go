package models

import "fmt"

// ClientStatus is the account state of a rider.
type ClientStatus string

const (
	ClientActive    ClientStatus = "active"
	ClientInactive  ClientStatus = "inactive"
	ClientSuspended ClientStatus = "suspended"
)

// Valid reports whether s is one of the declared client statuses.
func (s ClientStatus) Valid() bool {
	switch s {
	case ClientActive, ClientInactive, ClientSuspended:
		return true
	}
	return false
}

// ParseClientStatus converts a raw string into a ClientStatus.
func ParseClientStatus(raw string) (ClientStatus, error) {
	s := ClientStatus(raw)
	if !s.Valid() {
		return "", fmt.Errorf("unknown client status %q", raw)
	}
	return s, nil
}

func (s *ClientStatus) UnmarshalText(text []byte) error {
	parsed, err := ParseClientStatus(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// SubscriptionStatus is the lifecycle state of a subscription.
type SubscriptionStatus string

const (
	SubscriptionActive    SubscriptionStatus = "active"
	SubscriptionExpired   SubscriptionStatus = "expired"
	SubscriptionSuspended SubscriptionStatus = "suspended"
	SubscriptionCancelled SubscriptionStatus = "cancelled"
)

func (s SubscriptionStatus) Valid() bool {
	switch s {
	case SubscriptionActive, SubscriptionExpired, SubscriptionSuspended, SubscriptionCancelled:
		return true
	}
	return false
}

// CanTransitionTo reports whether an operator may move a subscription from s to next.
// Expired and cancelled are terminal; suspended may be reactivated.
func (s SubscriptionStatus) CanTransitionTo(next SubscriptionStatus) bool {
	switch s {
	case SubscriptionActive:
		return next == SubscriptionExpired || next == SubscriptionSuspended || next == SubscriptionCancelled
	case SubscriptionSuspended:
		return next == SubscriptionActive || next == SubscriptionCancelled
	case SubscriptionExpired, SubscriptionCancelled:
		return false
	}
	return false
}

func ParseSubscriptionStatus(raw string) (SubscriptionStatus, error) {
	s := SubscriptionStatus(raw)
	if !s.Valid() {
		return "", fmt.Errorf("unknown subscription status %q", raw)
	}
	return s, nil
}

func (s *SubscriptionStatus) UnmarshalText(text []byte) error {
	parsed, err := ParseSubscriptionStatus(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// PaymentMethod is how a payment was collected.
type PaymentMethod string

const (
	PaymentCash         PaymentMethod = "cash"
	PaymentCard         PaymentMethod = "card"
	PaymentMobileMoney  PaymentMethod = "mobile_money"
	PaymentBankTransfer PaymentMethod = "bank_transfer"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentCash, PaymentCard, PaymentMobileMoney, PaymentBankTransfer:
		return true
	}
	return false
}

func ParsePaymentMethod(raw string) (PaymentMethod, error) {
	m := PaymentMethod(raw)
	if !m.Valid() {
		return "", fmt.Errorf("unknown payment method %q", raw)
	}
	return m, nil
}

func (m *PaymentMethod) UnmarshalText(text []byte) error {
	parsed, err := ParsePaymentMethod(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// PaymentStatus is the settlement state of a payment.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentValidated PaymentStatus = "validated"
	PaymentFailed    PaymentStatus = "failed"
	PaymentRefunded  PaymentStatus = "refunded"
)

func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentPending, PaymentValidated, PaymentFailed, PaymentRefunded:
		return true
	}
	return false
}

func ParsePaymentStatus(raw string) (PaymentStatus, error) {
	s := PaymentStatus(raw)
	if !s.Valid() {
		return "", fmt.Errorf("unknown payment status %q", raw)
	}
	return s, nil
}

func (s *PaymentStatus) UnmarshalText(text []byte) error {
	parsed, err := ParsePaymentStatus(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// TripValidationStatus is the outcome recorded on a boarding event.
type TripValidationStatus string

const (
	TripValidated TripValidationStatus = "validated"
	TripRefused   TripValidationStatus = "refused"
	TripPending   TripValidationStatus = "pending"
)

func (s TripValidationStatus) Valid() bool {
	switch s {
	case TripValidated, TripRefused, TripPending:
		return true
	}
	return false
}

func (s *TripValidationStatus) UnmarshalText(text []byte) error {
	v := TripValidationStatus(text)
	if !v.Valid() {
		return fmt.Errorf("unknown trip validation status %q", string(text))
	}
	*s = v
	return nil
}

// ScanMethod is how the rider presented their pass.
type ScanMethod string

const (
	ScanQRCode ScanMethod = "qr_code"
	ScanManual ScanMethod = "manual"
	ScanNFC    ScanMethod = "nfc"
)

func (m ScanMethod) Valid() bool {
	switch m {
	case ScanQRCode, ScanManual, ScanNFC:
		return true
	}
	return false
}

func (m *ScanMethod) UnmarshalText(text []byte) error {
	v := ScanMethod(text)
	if !v.Valid() {
		return fmt.Errorf("unknown scan method %q", string(text))
	}
	*m = v
	return nil
}

// DenialReason is a machine-readable code attached to a refused verification.
type DenialReason string

const (
	ReasonCodeNotRecognized DenialReason = "code_not_recognized"
	ReasonExpired           DenialReason = "subscription_expired"
	ReasonSuspended         DenialReason = "subscription_suspended"
	ReasonCancelled         DenialReason = "subscription_cancelled"
	ReasonTripLimitReached  DenialReason = "trip_limit_reached"
	ReasonLineNotCovered    DenialReason = "line_not_covered"
)
