package seed

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"transit-pass-api/internal/models"
	"transit-pass-api/internal/store"
)

func TestDataset_Imports(t *testing.T) {
	asOf := time.Date(2025, 3, 15, 10, 0, 0, 0, time.UTC)
	data := Dataset(asOf)

	s := store.New()
	require.NoError(t, s.Import(data))

	assert.Len(t, s.ListClients(), 5)
	assert.Len(t, s.ListPlans(), 3)
	assert.Len(t, s.ListSubscriptions(), 5)
}

func TestDataset_RegistrationSplit(t *testing.T) {
	asOf := time.Date(2025, 3, 15, 10, 0, 0, 0, time.UTC)
	monthStart := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	before := 0
	for _, c := range Dataset(asOf).Clients {
		if c.RegisteredAt.Before(monthStart) {
			before++
		}
		assert.False(t, c.RegisteredAt.After(asOf), "%s registered after asOf", c.Surname)
	}
	assert.Equal(t, 3, before)
}

func TestDataset_EarlyInMonth(t *testing.T) {
	// Registration times within the month are clamped to asOf.
	asOf := time.Date(2025, 3, 1, 0, 30, 0, 0, time.UTC)
	s := store.New()
	require.NoError(t, s.Import(Dataset(asOf)))
}

func TestDataset_OneActivePerClient(t *testing.T) {
	active := map[string]int{}
	for _, sub := range Dataset(time.Now()).Subscriptions {
		if sub.Status == models.SubscriptionActive {
			active[sub.ClientID]++
		}
	}
	for id, n := range active {
		assert.Equal(t, 1, n, "client %s", id)
	}
}
