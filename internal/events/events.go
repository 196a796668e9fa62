package events

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"transit-pass-api/internal/models"
)

// EventType represents the type of event.
type EventType string

const (
	ClientRegistered          EventType = "client.registered"
	ClientUpdated             EventType = "client.updated"
	ClientDeleted             EventType = "client.deleted"
	SubscriptionCreated       EventType = "subscription.created"
	SubscriptionStatusChanged EventType = "subscription.status_changed"
	PaymentRecorded           EventType = "payment.recorded"
	TripRecorded              EventType = "trip.recorded"
	AccessVerified            EventType = "access.verified"
)

// AllTypes lists every event the service emits.
var AllTypes = []EventType{
	ClientRegistered,
	ClientUpdated,
	ClientDeleted,
	SubscriptionCreated,
	SubscriptionStatusChanged,
	PaymentRecorded,
	TripRecorded,
	AccessVerified,
}

// Event represents an event in the system.
type Event struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
}

type ClientData struct {
	Client models.Client `json:"client"`
}

type ClientDeletedData struct {
	ClientID               string   `json:"client_id"`
	CancelledSubscriptions []string `json:"cancelled_subscriptions,omitempty"`
}

type SubscriptionData struct {
	Subscription models.Subscription `json:"subscription"`
}

type StatusChangedData struct {
	SubscriptionID string                    `json:"subscription_id"`
	ClientID       string                    `json:"client_id"`
	From           models.SubscriptionStatus `json:"from"`
	To             models.SubscriptionStatus `json:"to"`
	Automatic      bool                      `json:"automatic"` // set by the expiry sweep
}

type PaymentData struct {
	Payment models.Payment `json:"payment"`
}

type TripData struct {
	Trip models.TripRecord `json:"trip"`
}

// VerifiedData summarizes a verification without the client's personal details.
type VerifiedData struct {
	SubscriptionID string                `json:"subscription_id,omitempty"`
	ClientID       string                `json:"client_id,omitempty"`
	LineID         string                `json:"line_id,omitempty"`
	Valid          bool                  `json:"valid"`
	Reasons        []models.DenialReason `json:"reasons,omitempty"`
	VerifiedAt     time.Time             `json:"verified_at"`
}

// Handler is a function that handles events.
type Handler func(ctx context.Context, event Event) error

// Manager fans events out to subscribed handlers. Handlers run on their own goroutine;
// Publish never waits for them.
type Manager struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler
	enabled  func() bool
	log      *zap.Logger
	wg       sync.WaitGroup
	now      func() time.Time
}

// NewManager creates an event manager. enabled is checked on every Publish; nil means always on.
func NewManager(enabled func() bool, log *zap.Logger) *Manager {
	if enabled == nil {
		enabled = func() bool { return true }
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{
		handlers: make(map[EventType][]Handler),
		enabled:  enabled,
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Subscribe subscribes a handler to a specific event type.
func (m *Manager) Subscribe(eventType EventType, handler Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.handlers[eventType] = append(m.handlers[eventType], handler)
}

// SubscribeAll subscribes handler to every event type in AllTypes.
func (m *Manager) SubscribeAll(handler Handler) {
	for _, t := range AllTypes {
		m.Subscribe(t, handler)
	}
}

// Publish delivers data to every handler subscribed to eventType.
func (m *Manager) Publish(ctx context.Context, eventType EventType, data any) {
	if m == nil || !m.enabled() {
		return
	}

	m.mu.RLock()
	handlers := append([]Handler(nil), m.handlers[eventType]...)
	m.mu.RUnlock()

	if len(handlers) == 0 {
		return
	}

	event := Event{
		Type:      eventType,
		Timestamp: m.now(),
		Data:      data,
	}

	// Handlers outlive the request that produced the event.
	hctx := context.WithoutCancel(ctx)
	for _, handler := range handlers {
		m.wg.Add(1)
		go func(h Handler) {
			defer m.wg.Done()
			if err := h(hctx, event); err != nil {
				m.log.Warn("event handler failed",
					zap.String("event", string(event.Type)),
					zap.Error(err),
				)
			}
		}(handler)
	}
}

// Wait blocks until every handler started so far has returned.
func (m *Manager) Wait() {
	m.wg.Wait()
}

// Shutdown drops all handlers and waits for running ones to finish.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	m.handlers = make(map[EventType][]Handler)
	m.mu.Unlock()

	m.wg.Wait()
}
