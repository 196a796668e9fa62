package features

import (
	"sort"
	"sync"
)

// FeatureFlag represents a feature flag configuration.
type FeatureFlag struct {
	Name        string `json:"name"`
	Enabled     bool   `json:"enabled"`
	Description string `json:"description"`
}

// Manager manages feature flags.
type Manager struct {
	mu    sync.RWMutex
	flags map[string]*FeatureFlag
}

// NewManager creates a new feature flag manager.
func NewManager() *Manager {
	return &Manager{
		flags: make(map[string]*FeatureFlag),
	}
}

// Register registers a new feature flag, replacing any previous definition.
func (m *Manager) Register(name string, enabled bool, description string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.flags[name] = &FeatureFlag{
		Name:        name,
		Enabled:     enabled,
		Description: description,
	}
}

// IsEnabled reports whether a flag is on. Unknown flags are off.
func (m *Manager) IsEnabled(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	flag, exists := m.flags[name]
	if !exists {
		return false
	}
	return flag.Enabled
}

// Set switches a registered flag. It reports false for unknown flags.
func (m *Manager) Set(name string, enabled bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	flag, exists := m.flags[name]
	if !exists {
		return false
	}
	flag.Enabled = enabled
	return true
}

// List returns copies of all flags ordered by name.
func (m *Manager) List() []FeatureFlag {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]FeatureFlag, 0, len(m.flags))
	for _, f := range m.flags {
		out = append(out, *f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

const (
	// SingleActiveSubscription rejects a second active subscription for the same client.
	SingleActiveSubscription = "single_active_subscription"
	// CascadeClientDelete cancels a client's active subscriptions when the client is deleted.
	CascadeClientDelete = "cascade_client_delete"
	// EventHooks turns domain event publication on.
	EventHooks = "event_hooks_enabled"
)

// Defaults registers the service flags with the given initial values.
func Defaults(m *Manager, singleActive, cascadeDelete, eventHooks bool) {
	m.Register(SingleActiveSubscription, singleActive, "at most one active subscription per client")
	m.Register(CascadeClientDelete, cascadeDelete, "cancel active subscriptions of a deleted client")
	m.Register(EventHooks, eventHooks, "publish domain events to subscribed handlers")
}
