package ratelimit

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/j-veylop/agent-profiles/internal/models"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time { return c.t }

func newTracker() (*Tracker, *fakeClock) {
	clock := &fakeClock{t: time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC)}
	return NewTracker(WithClock(clock.now)), clock
}

func TestRecord_ThenLimited(t *testing.T) {
	tr, clock := newTracker()
	p := &models.Profile{ID: "work"}

	event := tr.Record(p, "resets 3pm")
	assert.Equal(t, models.RateLimitSession, event.Type)
	assert.True(t, event.ResetAt.Equal(time.Date(2025, 3, 10, 15, 0, 0, 0, time.UTC)))
	assert.Equal(t, clock.t, event.RecordedAt)

	status := tr.IsLimited(p)
	require.True(t, status.Limited)
	assert.Equal(t, models.RateLimitSession, status.Type)
	assert.True(t, status.ResetAt.Equal(event.ResetAt))

	assert.Equal(t, status, tr.IsLimited(p), "repeated evaluation must be stable")

	tr.Clear(p)
	assert.False(t, tr.IsLimited(p).Limited)
	assert.Empty(t, p.RateLimitEvents)
}

func TestIsLimited_ExpiresAtReset(t *testing.T) {
	tr, clock := newTracker()
	p := &models.Profile{ID: "work"}

	event := tr.Record(p, "in 1h")
	clock.t = event.ResetAt.Add(-time.Second)
	assert.True(t, tr.IsLimited(p).Limited)

	clock.t = event.ResetAt
	assert.False(t, tr.IsLimited(p).Limited)
}

func TestRecord_WeeklyInference(t *testing.T) {
	tr, _ := newTracker()
	p := &models.Profile{ID: "work"}

	event := tr.Record(p, "Resets Mar 14 at 9am (UTC)")
	assert.Equal(t, models.RateLimitWeekly, event.Type)
}

func TestRecord_UnparseableFallsBackToWindow(t *testing.T) {
	tr, clock := newTracker()
	p := &models.Profile{ID: "work"}

	event := tr.Record(p, "try again later")
	assert.Equal(t, models.RateLimitSession, event.Type)
	assert.True(t, event.ResetAt.Equal(clock.t.Add(5*time.Hour)))
}

func TestIsLimited_MostRecentEventPerWindowWins(t *testing.T) {
	tr, clock := newTracker()
	p := &models.Profile{ID: "work"}

	tr.Record(p, "in 3h")
	clock.t = clock.t.Add(time.Minute)
	// The provider later reported an earlier reset for the same window.
	later := tr.Record(p, "in 10m")

	status := tr.IsLimited(p)
	require.True(t, status.Limited)
	assert.True(t, status.ResetAt.Equal(later.ResetAt))
}

func TestIsLimited_ReportsFurthestWindow(t *testing.T) {
	tr, _ := newTracker()
	p := &models.Profile{ID: "work"}

	tr.Record(p, "in 2h")
	weekly := tr.Record(p, "in 3 days")

	status := tr.IsLimited(p)
	require.True(t, status.Limited)
	assert.Equal(t, models.RateLimitWeekly, status.Type)
	assert.True(t, status.ResetAt.Equal(weekly.ResetAt))
}

func TestRecord_BoundsHistory(t *testing.T) {
	tr, clock := newTracker()
	p := &models.Profile{ID: "work"}

	for i := range MaxEvents + 5 {
		clock.t = clock.t.Add(time.Minute)
		tr.Record(p, fmt.Sprintf("in %dm", i+1))
	}

	require.Len(t, p.RateLimitEvents, MaxEvents)
	assert.Equal(t, "in 6m", p.RateLimitEvents[0].ResetText)
}

func TestPrune(t *testing.T) {
	tr, clock := newTracker()
	p := &models.Profile{ID: "work"}

	tr.Record(p, "in 10m")
	tr.Record(p, "in 2 days")

	clock.t = clock.t.Add(time.Hour)
	assert.Equal(t, 1, tr.Prune(p))
	require.Len(t, p.RateLimitEvents, 1)
	assert.Equal(t, models.RateLimitWeekly, p.RateLimitEvents[0].Type)

	clock.t = clock.t.Add(72 * time.Hour)
	assert.Equal(t, 1, tr.Prune(p))
	assert.Nil(t, p.RateLimitEvents)
}

func TestStatusAt_NoEvents(t *testing.T) {
	assert.Equal(t, Status{}, StatusAt(nil, time.Now()))
	tr, _ := newTracker()
	assert.False(t, tr.IsLimited(nil).Limited)
}
