// Package ratelimit records provider rate-limit responses per profile and evaluates them.
package ratelimit

import (
	"log/slog"
	"time"

	"github.com/j-veylop/agent-profiles/internal/models"
	"github.com/j-veylop/agent-profiles/internal/resettime"
)

// MaxEvents bounds the event history kept on a profile.
const MaxEvents = 20

// Status is the rate-limit state of a profile at one instant.
type Status struct {
	ResetAt time.Time
	Type    models.RateLimitType
	Limited bool
}

// Tracker records and evaluates rate-limit events.
type Tracker struct {
	now    func() time.Time
	logger *slog.Logger
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) {
		t.now = now
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Tracker) {
		t.logger = logger
	}
}

// NewTracker creates a tracker using the wall clock unless overridden.
func NewTracker(opts ...Option) *Tracker {
	t := &Tracker{
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Record parses resetText, infers the window and appends the event to the profile.
// Text that cannot be parsed falls back to the full length of the inferred window.
func (t *Tracker) Record(p *models.Profile, resetText string) models.RateLimitEvent {
	now := t.now()
	window := resettime.InferWindow(resetText)

	resetAt, ok := resettime.Parse(resetText, now)
	if !ok {
		resetAt = now.Add(resettime.DefaultWindow(window))
		t.logger.Warn("unparseable rate limit reset time, assuming full window",
			"profile", p.ID,
			"text", resetText,
			"window", window,
		)
	}

	event := models.RateLimitEvent{
		Type:       window,
		ResetAt:    resetAt,
		RecordedAt: now,
		ResetText:  resetText,
	}

	p.RateLimitEvents = append(p.RateLimitEvents, event)
	if n := len(p.RateLimitEvents); n > MaxEvents {
		p.RateLimitEvents = append([]models.RateLimitEvent(nil), p.RateLimitEvents[n-MaxEvents:]...)
	}

	t.logger.Debug("recorded rate limit",
		"profile", p.ID,
		"window", window,
		"reset_at", resetAt,
	)
	return event
}

// IsLimited evaluates the profile's events at the tracker's current time.
func (t *Tracker) IsLimited(p *models.Profile) Status {
	if p == nil {
		return Status{}
	}
	return StatusAt(p.RateLimitEvents, t.now())
}

// Clear drops every event of the profile.
func (t *Tracker) Clear(p *models.Profile) {
	p.RateLimitEvents = nil
}

// Prune drops expired events and returns how many were removed.
func (t *Tracker) Prune(p *models.Profile) int {
	now := t.now()
	kept := p.RateLimitEvents[:0]
	for _, e := range p.RateLimitEvents {
		if now.Before(e.ResetAt) {
			kept = append(kept, e)
		}
	}
	removed := len(p.RateLimitEvents) - len(kept)
	if len(kept) == 0 {
		kept = nil
	}
	p.RateLimitEvents = kept
	return removed
}

// Now returns the tracker's current time.
func (t *Tracker) Now() time.Time {
	return t.now()
}

// StatusAt evaluates events at now. Only the most recent event of each window counts;
// a window is limited while now is before that event's reset. When both windows are
// limited the one that resets last is reported.
func StatusAt(events []models.RateLimitEvent, now time.Time) Status {
	latest := make(map[models.RateLimitType]models.RateLimitEvent, 2)
	for _, e := range events {
		prev, ok := latest[e.Type]
		if !ok || !e.RecordedAt.Before(prev.RecordedAt) {
			latest[e.Type] = e
		}
	}

	var status Status
	for _, window := range []models.RateLimitType{models.RateLimitSession, models.RateLimitWeekly} {
		e, ok := latest[window]
		if !ok || !now.Before(e.ResetAt) {
			continue
		}
		if !status.Limited || e.ResetAt.After(status.ResetAt) {
			status = Status{Limited: true, Type: e.Type, ResetAt: e.ResetAt}
		}
	}
	return status
}
