package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type fakeExpirer struct {
	mu    sync.Mutex
	calls []time.Time
	n     int
	err   error
}

func (f *fakeExpirer) ExpireDueSubscriptions(_ context.Context, asOf time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, asOf)
	return f.n, f.err
}

func (f *fakeExpirer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func TestSweepExpired(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	exp := &fakeExpirer{n: 2}
	fixed := time.Date(2025, 3, 15, 10, 0, 0, 0, time.UTC)

	s := NewScheduler(exp, "@every 1m", zap.New(core))
	s.now = func() time.Time { return fixed }
	s.SweepExpired()

	require.Equal(t, 1, exp.count())
	assert.Equal(t, fixed, exp.calls[0])
	require.Equal(t, 1, logs.FilterMessage("expiry sweep completed").Len())
}

func TestSweepExpired_LogsFailure(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	exp := &fakeExpirer{err: errors.New("disk full")}

	NewScheduler(exp, "@every 1m", zap.New(core)).SweepExpired()

	assert.Equal(t, 1, logs.FilterMessage("expiry sweep failed").Len())
}

func TestStart_InvalidSchedule(t *testing.T) {
	s := NewScheduler(&fakeExpirer{}, "every now and then", zap.NewNop())
	assert.Error(t, s.Start())
}

func TestStart_RunsOnSchedule(t *testing.T) {
	exp := &fakeExpirer{}
	s := NewScheduler(exp, "@every 1s", zap.NewNop())
	require.NoError(t, s.Start())
	defer s.Stop()

	assert.Eventually(t, func() bool { return exp.count() > 0 }, 3*time.Second, 50*time.Millisecond)
}
