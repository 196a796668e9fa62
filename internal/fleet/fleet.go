// Package fleet holds the last line-status snapshot pushed by the external fleet feed.
// Snapshots expire after a TTL so a silent feed shows as no data rather than stale data.
package fleet

import (
	"context"
	"errors"
	"fmt"
	"time"

	"transit-pass-api/internal/cache"
	"transit-pass-api/internal/models"
	"transit-pass-api/internal/validation"
)

const linesKey = "fleet:lines"

// Line states accepted from the feed.
const (
	StateOnTime      = "on_time"
	StateDelayed     = "delayed"
	StateInterrupted = "interrupted"
)

// Feed stores and serves the fleet line snapshot.
type Feed struct {
	cache cache.Cache
	ttl   time.Duration
	now   func() time.Time
}

func NewFeed(c cache.Cache, ttl time.Duration) *Feed {
	return &Feed{cache: c, ttl: ttl, now: func() time.Time { return time.Now().UTC() }}
}

// Publish replaces the snapshot. Lines without an UpdatedAt are stamped with the current time.
func (f *Feed) Publish(ctx context.Context, lines []models.LineStatus) ([]models.LineStatus, error) {
	seen := make(map[string]bool, len(lines))
	out := make([]models.LineStatus, len(lines))
	for i, l := range lines {
		l.LineID = validation.SanitizeString(l.LineID)
		if l.LineID == "" {
			return nil, &validation.ValidationError{Field: fmt.Sprintf("lines[%d].line_id", i), Message: "is required"}
		}
		if seen[l.LineID] {
			return nil, &validation.ValidationError{Field: fmt.Sprintf("lines[%d].line_id", i), Message: "duplicate line"}
		}
		seen[l.LineID] = true
		if l.ActiveBuses < 0 {
			return nil, &validation.ValidationError{Field: fmt.Sprintf("lines[%d].active_buses", i), Message: "must not be negative"}
		}
		switch l.State {
		case StateOnTime, StateDelayed, StateInterrupted:
		default:
			return nil, &validation.ValidationError{Field: fmt.Sprintf("lines[%d].state", i), Message: "must be one of on_time, delayed, interrupted"}
		}
		if l.UpdatedAt.IsZero() {
			l.UpdatedAt = f.now()
		}
		out[i] = l
	}

	if err := cache.SetJSON(ctx, f.cache, linesKey, out, f.ttl); err != nil {
		return nil, fmt.Errorf("failed to store fleet snapshot: %w", err)
	}
	return out, nil
}

// Lines returns the current snapshot, or an empty slice when none is live.
func (f *Feed) Lines(ctx context.Context) ([]models.LineStatus, error) {
	var lines []models.LineStatus
	err := cache.GetJSON(ctx, f.cache, linesKey, &lines)
	if errors.Is(err, cache.ErrNotFound) {
		return []models.LineStatus{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read fleet snapshot: %w", err)
	}
	if lines == nil {
		lines = []models.LineStatus{}
	}
	return lines, nil
}
