package store

import (
	"errors"
	"fmt"

	"transit-pass-api/internal/models"
)

var (
	// ErrNotFound is matched by every NotFoundError via errors.Is.
	ErrNotFound = errors.New("not found")
	// ErrTripLimitReached is returned by RecordTrip when a capped plan is exhausted.
	ErrTripLimitReached = errors.New("trip limit reached")
)

// NotFoundError reports that no record of the given entity matches ID.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Entity, e.ID)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// ImmutableFieldError reports an attempt to change id or qr_code_id.
type ImmutableFieldError struct {
	Field string
}

func (e *ImmutableFieldError) Error() string {
	return fmt.Sprintf("field '%s' is immutable", e.Field)
}

// ConflictError reports a write that would break a collection-wide rule,
// e.g. a duplicate QR code or a second active subscription.
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string {
	return e.Message
}

// TransitionError reports a subscription status change the lifecycle does not allow.
type TransitionError struct {
	From models.SubscriptionStatus
	To   models.SubscriptionStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot move subscription from %s to %s", e.From, e.To)
}
