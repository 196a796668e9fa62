package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"transit-pass-api/internal/models"
	"transit-pass-api/internal/validation"
)

// Persister receives every committed write so the collections can outlive the process.
// The store applies a change in memory only after the persister accepted it.
type Persister interface {
	SaveClient(ctx context.Context, client models.Client) error
	DeleteClient(ctx context.Context, id string) error
	SavePlan(ctx context.Context, plan models.SubscriptionPlan) error
	SaveSubscription(ctx context.Context, sub models.Subscription) error
	// SaveTripWithSubscription stores a trip and the subscription whose counter it
	// advanced atomically: either both are written or neither is.
	SaveTripWithSubscription(ctx context.Context, trip models.TripRecord, sub models.Subscription) error
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithPersister makes the store write through to p.
func WithPersister(p Persister) Option {
	return func(s *Store) { s.persister = p }
}

// WithSingleActiveSubscription enforces at most one active subscription per client
// whenever enabled reports true. It is consulted on every write, so a feature flag can
// switch the rule at runtime.
func WithSingleActiveSubscription(enabled func() bool) Option {
	return func(s *Store) { s.singleActive = enabled }
}

// Store owns the canonical client, plan, subscription and trip collections.
// All methods are safe for concurrent use.
type Store struct {
	mu sync.RWMutex

	clients       []models.Client
	plans         []models.SubscriptionPlan
	subscriptions []models.Subscription
	trips         []models.TripRecord

	clientIdx  map[string]int
	planIdx    map[string]int
	subIdx     map[string]int
	clientQR   map[string]string // qr_code_id -> client id
	subByQR    map[string]string // qr_payload -> subscription id
	paymentIDs map[string]bool
	tripIDs    map[string]bool

	now          func() time.Time
	persister    Persister
	singleActive func() bool
}

// New creates an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		clientIdx:    make(map[string]int),
		planIdx:      make(map[string]int),
		subIdx:       make(map[string]int),
		clientQR:     make(map[string]string),
		subByQR:      make(map[string]string),
		paymentIDs:   make(map[string]bool),
		tripIDs:      make(map[string]bool),
		now:          func() time.Time { return time.Now().UTC() },
		singleActive: func() bool { return false },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// freshID draws random ids until one is free. Callers hold the write lock.
func freshID(taken func(string) bool) string {
	for {
		id := uuid.NewString()
		if !taken(id) {
			return id
		}
	}
}

// AddClient registers a new client. The id, timestamps and (when absent) the QR identifier
// are assigned here.
func (s *Store) AddClient(ctx context.Context, in models.ClientInput) (models.Client, error) {
	in.Surname = validation.SanitizeString(in.Surname)
	in.GivenName = validation.SanitizeString(in.GivenName)
	in.Email = validation.SanitizeString(in.Email)
	in.Phone = validation.SanitizeString(in.Phone)
	in.QRCodeID = validation.SanitizeString(in.QRCodeID)
	in.Address = validation.SanitizeString(in.Address)
	in.City = validation.SanitizeString(in.City)
	if in.Status == "" {
		in.Status = models.ClientActive
	}
	if err := validation.ValidateClientInput(in); err != nil {
		return models.Client{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if in.QRCodeID != "" {
		if _, taken := s.clientQR[in.QRCodeID]; taken {
			return models.Client{}, &ConflictError{Message: fmt.Sprintf("qr_code_id %q already assigned", in.QRCodeID)}
		}
	} else {
		in.QRCodeID = "CLT-" + freshID(func(id string) bool {
			_, taken := s.clientQR["CLT-"+id]
			return taken
		})
	}

	now := s.now()
	client := models.Client{
		ID: freshID(func(id string) bool {
			_, taken := s.clientIdx[id]
			return taken
		}),
		Surname:      in.Surname,
		GivenName:    in.GivenName,
		Phone:        in.Phone,
		Email:        in.Email,
		BirthDate:    in.BirthDate,
		Address:      in.Address,
		City:         in.City,
		Status:       in.Status,
		RegisteredAt: now,
		LastUpdated:  now,
		QRCodeID:     in.QRCodeID,
	}
	client = cloneClient(client)

	if err := s.persistClient(ctx, client); err != nil {
		return models.Client{}, err
	}

	s.clientIdx[client.ID] = len(s.clients)
	s.clients = append(s.clients, client)
	s.clientQR[client.QRCodeID] = client.ID

	return cloneClient(client), nil
}

// UpdateClient merges patch into the client matching id and refreshes LastUpdated.
func (s *Store) UpdateClient(ctx context.Context, id string, patch models.ClientPatch) (models.Client, error) {
	if patch.ID != nil {
		return models.Client{}, &ImmutableFieldError{Field: "id"}
	}
	if patch.QRCodeID != nil {
		return models.Client{}, &ImmutableFieldError{Field: "qr_code_id"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.clientIdx[id]
	if !ok {
		return models.Client{}, &NotFoundError{Entity: "client", ID: id}
	}

	updated := cloneClient(s.clients[i])
	applyPatch(&updated, patch)
	updated.LastUpdated = later(s.now(), updated.LastUpdated)

	if err := validation.ValidateClient(updated); err != nil {
		return models.Client{}, err
	}

	if err := s.persistClient(ctx, updated); err != nil {
		return models.Client{}, err
	}
	s.clients[i] = updated

	return cloneClient(updated), nil
}

func applyPatch(c *models.Client, p models.ClientPatch) {
	if p.Surname != nil {
		c.Surname = validation.SanitizeString(*p.Surname)
	}
	if p.GivenName != nil {
		c.GivenName = validation.SanitizeString(*p.GivenName)
	}
	if p.Phone != nil {
		c.Phone = validation.SanitizeString(*p.Phone)
	}
	if p.Email != nil {
		c.Email = validation.SanitizeString(*p.Email)
	}
	if p.BirthDate != nil {
		b := *p.BirthDate
		c.BirthDate = &b
	}
	if p.Address != nil {
		c.Address = validation.SanitizeString(*p.Address)
	}
	if p.City != nil {
		c.City = validation.SanitizeString(*p.City)
	}
	if p.Status != nil {
		c.Status = *p.Status
	}
}

// DeleteClient removes the client. Subscriptions referencing it are left untouched.
func (s *Store) DeleteClient(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.clientIdx[id]
	if !ok {
		return &NotFoundError{Entity: "client", ID: id}
	}

	if s.persister != nil {
		if err := s.persister.DeleteClient(ctx, id); err != nil {
			return fmt.Errorf("failed to delete client: %w", err)
		}
	}

	delete(s.clientQR, s.clients[i].QRCodeID)
	s.clients = append(s.clients[:i], s.clients[i+1:]...)
	s.clientIdx = make(map[string]int, len(s.clients))
	for j, c := range s.clients {
		s.clientIdx[c.ID] = j
	}
	return nil
}

// GetClient returns the client matching id.
func (s *Store) GetClient(id string) (models.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i, ok := s.clientIdx[id]
	if !ok {
		return models.Client{}, &NotFoundError{Entity: "client", ID: id}
	}
	return cloneClient(s.clients[i]), nil
}

// ListClients returns every client in registration order.
func (s *Store) ListClients() []models.Client {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Client, len(s.clients))
	for i, c := range s.clients {
		out[i] = cloneClient(c)
	}
	return out
}

// CreatePlan stores a new plan template. An empty ID is replaced with a fresh one.
func (s *Store) CreatePlan(ctx context.Context, plan models.SubscriptionPlan) (models.SubscriptionPlan, error) {
	plan.Name = validation.SanitizeString(plan.Name)
	if err := validation.ValidatePlan(plan); err != nil {
		return models.SubscriptionPlan{}, err
	}
	if plan.ID != "" {
		if err := validation.ValidateUUID(plan.ID, "id"); err != nil {
			return models.SubscriptionPlan{}, err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if plan.ID == "" {
		plan.ID = freshID(func(id string) bool {
			_, taken := s.planIdx[id]
			return taken
		})
	} else if _, taken := s.planIdx[plan.ID]; taken {
		return models.SubscriptionPlan{}, &ConflictError{Message: fmt.Sprintf("plan %q already exists", plan.ID)}
	}
	plan = clonePlan(plan)

	if err := s.persistPlan(ctx, plan); err != nil {
		return models.SubscriptionPlan{}, err
	}
	s.planIdx[plan.ID] = len(s.plans)
	s.plans = append(s.plans, plan)

	return clonePlan(plan), nil
}

// SetPlanActive toggles whether new subscriptions may be opened on a plan.
func (s *Store) SetPlanActive(ctx context.Context, id string, active bool) (models.SubscriptionPlan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.planIdx[id]
	if !ok {
		return models.SubscriptionPlan{}, &NotFoundError{Entity: "plan", ID: id}
	}
	updated := clonePlan(s.plans[i])
	updated.Active = active
	if err := s.persistPlan(ctx, updated); err != nil {
		return models.SubscriptionPlan{}, err
	}
	s.plans[i] = updated
	return clonePlan(updated), nil
}

func (s *Store) GetPlan(id string) (models.SubscriptionPlan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i, ok := s.planIdx[id]
	if !ok {
		return models.SubscriptionPlan{}, &NotFoundError{Entity: "plan", ID: id}
	}
	return clonePlan(s.plans[i]), nil
}

func (s *Store) ListPlans() []models.SubscriptionPlan {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.SubscriptionPlan, len(s.plans))
	for i, p := range s.plans {
		out[i] = clonePlan(p)
	}
	return out
}

func (s *Store) persistClient(ctx context.Context, c models.Client) error {
	if s.persister == nil {
		return nil
	}
	if err := s.persister.SaveClient(ctx, c); err != nil {
		return fmt.Errorf("failed to persist client: %w", err)
	}
	return nil
}

func (s *Store) persistPlan(ctx context.Context, p models.SubscriptionPlan) error {
	if s.persister == nil {
		return nil
	}
	if err := s.persister.SavePlan(ctx, p); err != nil {
		return fmt.Errorf("failed to persist plan: %w", err)
	}
	return nil
}

func (s *Store) persistSubscription(ctx context.Context, sub models.Subscription) error {
	if s.persister == nil {
		return nil
	}
	if err := s.persister.SaveSubscription(ctx, sub); err != nil {
		return fmt.Errorf("failed to persist subscription: %w", err)
	}
	return nil
}
