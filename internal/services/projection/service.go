// Package projection forecasts when a profile's session and weekly windows run out.
package projection

import (
	"fmt"
	"log/slog"
	"maps"
	"math"
	"sync"
	"time"

	"github.com/j-veylop/agent-profiles/internal/models"
)

const (
	lowConfThreshold = 6
	medConfThreshold = 24

	// resetDrop is how far a window percentage must fall between samples to count as a reset.
	resetDrop = 5.0

	sessionLookback = 5 * time.Hour
	weeklyLookback  = 7 * 24 * time.Hour
)

// SeriesSource serves recorded usage samples.
type SeriesSource interface {
	GetUsageSeries(profileID string, since time.Time) (models.UsageSeries, error)
}

// Option configures a Service.
type Option func(*Service)

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// Service computes usage projections from recorded samples and caches the latest per profile.
type Service struct {
	mu     sync.RWMutex
	source SeriesSource
	cache  map[string]*models.Projection
	logger *slog.Logger
	now    func() time.Time
}

// New creates a Service reading samples from source.
func New(source SeriesSource, opts ...Option) *Service {
	s := &Service{
		source: source,
		cache:  make(map[string]*models.Projection),
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Calculate forecasts both windows of profileID. current is the profile's last known usage
// and may be nil, in which case the newest sample stands in for it.
func (s *Service) Calculate(profileID string, current *models.UsageSnapshot) (*models.Projection, error) {
	now := s.now()

	series, err := s.source.GetUsageSeries(profileID, now.Add(-weeklyLookback))
	if err != nil {
		return nil, fmt.Errorf("failed to load usage series: %w", err)
	}

	sessionNow, weeklyNow := latest(series, current)
	var sessionReset, weeklyReset time.Time
	if current != nil {
		sessionReset, weeklyReset = current.SessionResetAt, current.WeeklyResetAt
	}

	sessionSamples := currentWindow(series.Samples, now.Add(-sessionLookback), func(u models.UsageSample) float64 {
		return u.SessionPercent
	})
	weeklySamples := currentWindow(series.Samples, time.Time{}, func(u models.UsageSample) float64 {
		return u.WeeklyPercent
	})

	proj := &models.Projection{
		ProfileID:   profileID,
		LastUpdated: now,
		Session:     project(models.RateLimitSession, sessionNow, sessionReset, sessionSamples, now),
		Weekly:      project(models.RateLimitWeekly, weeklyNow, weeklyReset, weeklySamples, now),
	}

	s.logger.Debug("projection calculated",
		"profile", profileID,
		"session", proj.Session.Status,
		"weekly", proj.Weekly.Status,
		"samples", len(series.Samples))

	s.mu.Lock()
	s.cache[profileID] = proj
	s.mu.Unlock()

	return proj, nil
}

// Cached returns the last projection computed for profileID, or nil.
func (s *Service) Cached(profileID string) *models.Projection {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cache[profileID]
}

// All returns a copy of every cached projection keyed by profile id.
func (s *Service) All() map[string]*models.Projection {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.cache)
}

// Forget drops the cached projection of a profile.
func (s *Service) Forget(profileID string) {
	s.mu.Lock()
	delete(s.cache, profileID)
	s.mu.Unlock()
}

// DetectReset reports whether a window moved from oldPercent to newPercent by resetting.
func DetectReset(newPercent, oldPercent float64) bool {
	return newPercent < oldPercent-resetDrop
}

type sample struct {
	at      time.Time
	percent float64
}

// currentWindow returns the samples after the most recent reset that are not older than since.
func currentWindow(samples []models.UsageSample, since time.Time, value func(models.UsageSample) float64) []sample {
	start := 0
	for i := 1; i < len(samples); i++ {
		if DetectReset(value(samples[i]), value(samples[i-1])) {
			start = i
		}
	}

	out := make([]sample, 0, len(samples)-start)
	for _, u := range samples[start:] {
		if u.Timestamp.Before(since) {
			continue
		}
		out = append(out, sample{at: u.Timestamp, percent: value(u)})
	}
	return out
}

func latest(series models.UsageSeries, current *models.UsageSnapshot) (session, weekly float64) {
	if current != nil {
		return current.SessionUsagePercent, current.WeeklyUsagePercent
	}
	if n := len(series.Samples); n > 0 {
		last := series.Samples[n-1]
		return last.SessionPercent, last.WeeklyPercent
	}
	return 0, 0
}

// rate is the growth of the window in percent per hour across the samples.
func rate(samples []sample) float64 {
	if len(samples) < 2 {
		return 0
	}
	first, last := samples[0], samples[len(samples)-1]
	hours := last.at.Sub(first.at).Hours()
	if hours <= 0 {
		return 0
	}
	r := (last.percent - first.percent) / hours
	if r < 0 {
		return 0
	}
	return r
}

func confidence(dataPoints int) models.Confidence {
	switch {
	case dataPoints < lowConfThreshold:
		return models.ConfidenceLow
	case dataPoints < medConfThreshold:
		return models.ConfidenceMedium
	default:
		return models.ConfidenceHigh
	}
}

func project(window models.RateLimitType, current float64, resetAt time.Time, samples []sample, now time.Time) *models.WindowProjection {
	proj := &models.WindowProjection{
		Window:         window,
		CurrentPercent: current,
		RatePerHour:    rate(samples),
		DataPoints:     len(samples),
		Confidence:     confidence(len(samples)),
		Status:         models.ProjectionUnknown,
		HoursLeft:      math.Inf(1),
	}
	// A reset time in the past belongs to a window that has already rolled over.
	if resetAt.After(now) {
		proj.ResetAt = resetAt
	}

	if current >= 100 {
		proj.HoursLeft = 0
		proj.ExhaustAt = now
		proj.WillExhaustBeforeReset = !proj.ResetAt.IsZero()
		proj.Status = models.ProjectionCritical
		return proj
	}

	if proj.RatePerHour <= 0 {
		if len(samples) >= 2 {
			proj.Status = models.ProjectionSafe
		}
		return proj
	}

	proj.HoursLeft = (100 - current) / proj.RatePerHour
	proj.ExhaustAt = now.Add(time.Duration(proj.HoursLeft * float64(time.Hour)))

	switch {
	case !proj.ResetAt.IsZero() && !proj.ExhaustAt.Before(proj.ResetAt):
		proj.Status = models.ProjectionSafe
	case proj.HoursLeft < 1:
		proj.WillExhaustBeforeReset = true
		proj.Status = models.ProjectionCritical
	case proj.ResetAt.IsZero():
		// Without a reset time only imminent exhaustion can be judged.
	default:
		proj.WillExhaustBeforeReset = true
		proj.Status = models.ProjectionWarning
	}
	return proj
}
