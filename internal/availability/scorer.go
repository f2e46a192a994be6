// Package availability decides which profile is usable now and whether to move off the current one.
package availability

import (
	"cmp"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/j-veylop/agent-profiles/internal/credentials"
	"github.com/j-veylop/agent-profiles/internal/models"
	"github.com/j-veylop/agent-profiles/internal/ratelimit"
)

// CredentialChecker reports whether a config directory holds usable credentials.
type CredentialChecker func(configDir string) bool

// Evaluation is everything the scorer knows about one profile at one instant.
type Evaluation struct {
	Limit         ratelimit.Status
	Authenticated bool
	OverThreshold bool
	Available     bool
}

// Recommendation is the outcome of a proactive switch check. It is advice, never an action.
type Recommendation struct {
	Suggested    *models.Profile
	Reason       string
	ShouldSwitch bool
}

// Scorer evaluates profiles against rate limits, usage thresholds and authentication.
// All methods are pure over their inputs and the scorer's clock.
type Scorer struct {
	now            func() time.Time
	hasCredentials CredentialChecker
	logger         *slog.Logger
}

// Option configures a Scorer.
type Option func(*Scorer)

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Scorer) {
		s.now = now
	}
}

// WithCredentialChecker replaces the on-disk credential check.
func WithCredentialChecker(fn CredentialChecker) Option {
	return func(s *Scorer) {
		s.hasCredentials = fn
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scorer) {
		s.logger = logger
	}
}

// NewScorer creates a scorer backed by the wall clock and the credential files on disk.
func NewScorer(opts ...Option) *Scorer {
	s := &Scorer{
		now:            time.Now,
		hasCredentials: credentials.HasCredentials,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Now returns the scorer's current time.
func (s *Scorer) Now() time.Time {
	return s.now()
}

// IsAuthenticated reports whether the profile has an unexpired token or a credential-bearing config directory.
func (s *Scorer) IsAuthenticated(p *models.Profile) bool {
	if p == nil {
		return false
	}
	if p.HasValidToken(s.now()) {
		return true
	}
	return p.ConfigDir != "" && s.hasCredentials(p.ConfigDir)
}

// IsRateLimited evaluates the profile's rate-limit events at the current time.
func (s *Scorer) IsRateLimited(p *models.Profile) ratelimit.Status {
	if p == nil {
		return ratelimit.Status{}
	}
	return ratelimit.StatusAt(p.RateLimitEvents, s.now())
}

// OverThreshold reports whether either usage window has reached its threshold.
func OverThreshold(p *models.Profile, settings models.AutoSwitchSettings) bool {
	if p == nil || p.Usage == nil {
		return false
	}
	session, weekly := settings.Thresholds()
	return p.Usage.SessionUsagePercent >= session || p.Usage.WeeklyUsagePercent >= weekly
}

// Evaluate computes the full evaluation of a profile.
func (s *Scorer) Evaluate(p *models.Profile, settings models.AutoSwitchSettings) Evaluation {
	e := Evaluation{
		Authenticated: s.IsAuthenticated(p),
		Limit:         s.IsRateLimited(p),
		OverThreshold: OverThreshold(p, settings),
	}
	e.Available = e.Authenticated && !e.Limit.Limited && (!settings.Enabled || !e.OverThreshold)
	return e
}

// IsAvailable reports whether the profile can be used now: authenticated, not rate-limited and,
// when auto-switch is enabled, below both usage thresholds.
func (s *Scorer) IsAvailable(p *models.Profile, settings models.AutoSwitchSettings) bool {
	return s.Evaluate(p, settings).Available
}

// BestAvailable picks the profile to use next, skipping excludeID.
//
// Available profiles listed in order win by their position; available profiles that are not listed
// follow in slice order. When nothing is available the least bad candidate is returned: among
// authenticated candidates if there are any, the rate-limited one that resets soonest, or when none
// is rate-limited the one with the lowest combined usage. Nil is returned only when there is no
// candidate at all. The result points into profiles.
func (s *Scorer) BestAvailable(profiles []models.Profile, settings models.AutoSwitchSettings, excludeID string, order []models.AccountID) *models.Profile {
	type candidate struct {
		profile *models.Profile
		eval    Evaluation
		index   int
	}

	var available, unavailable []candidate
	for i := range profiles {
		p := &profiles[i]
		if excludeID != "" && p.ID == excludeID {
			continue
		}
		c := candidate{profile: p, eval: s.Evaluate(p, settings), index: i}
		if c.eval.Available {
			available = append(available, c)
		} else {
			unavailable = append(unavailable, c)
		}
	}

	if len(available) > 0 {
		best := slices.MinFunc(available, func(a, b candidate) int {
			return ComparePriority(order,
				models.OAuthAccount(a.profile.ID), a.index,
				models.OAuthAccount(b.profile.ID), b.index)
		})
		return best.profile
	}
	if len(unavailable) == 0 {
		return nil
	}

	pool := unavailable
	if authed := slices.DeleteFunc(slices.Clone(unavailable), func(c candidate) bool {
		return !c.eval.Authenticated
	}); len(authed) > 0 {
		pool = authed
	}

	var limited []candidate
	for _, c := range pool {
		if c.eval.Limit.Limited {
			limited = append(limited, c)
		}
	}
	if len(limited) > 0 {
		best := slices.MinFunc(limited, func(a, b candidate) int {
			return cmp.Or(a.eval.Limit.ResetAt.Compare(b.eval.Limit.ResetAt), cmp.Compare(a.index, b.index))
		})
		return best.profile
	}

	best := slices.MinFunc(pool, func(a, b candidate) int {
		return cmp.Or(
			cmp.Compare(a.profile.Usage.CombinedPercent(), b.profile.Usage.CombinedPercent()),
			cmp.Compare(a.index, b.index),
		)
	})
	return best.profile
}

// ComparePriority orders accounts listed in order by their position, ahead of unlisted ones,
// which keep their relative index.
func ComparePriority(order []models.AccountID, a models.AccountID, aIndex int, b models.AccountID, bIndex int) int {
	ai := models.PriorityIndex(order, a)
	bi := models.PriorityIndex(order, b)
	switch {
	case ai >= 0 && bi >= 0:
		return cmp.Or(cmp.Compare(ai, bi), cmp.Compare(aIndex, bIndex))
	case ai >= 0:
		return -1
	case bi >= 0:
		return 1
	default:
		return cmp.Compare(aIndex, bIndex)
	}
}

// ShouldProactivelySwitch recommends moving off current when it has crossed a usage threshold
// (auto-switch enabled) or become rate-limited (switch-on-rate-limit enabled), and another
// profile is available.
func (s *Scorer) ShouldProactivelySwitch(current *models.Profile, all []models.Profile, settings models.AutoSwitchSettings, order []models.AccountID) Recommendation {
	if current == nil {
		return Recommendation{Reason: "no active profile"}
	}

	eval := s.Evaluate(current, settings)

	var reason string
	switch {
	case settings.SwitchOnRateLimit && eval.Limit.Limited:
		reason = fmt.Sprintf("%s is rate limited (%s window) until %s",
			current.Name, eval.Limit.Type, eval.Limit.ResetAt.Local().Format("Jan 2 15:04"))
	case settings.Enabled && eval.OverThreshold:
		reason = thresholdReason(current, settings)
	default:
		return Recommendation{Reason: "current profile is within limits"}
	}

	best := s.BestAvailable(all, settings, current.ID, order)
	if best == nil || !s.IsAvailable(best, settings) {
		s.logger.Debug("switch warranted but no profile available", "profile", current.ID, "reason", reason)
		return Recommendation{Reason: reason + "; no other profile is available"}
	}

	return Recommendation{
		ShouldSwitch: true,
		Reason:       fmt.Sprintf("%s; switch to %s", reason, best.Name),
		Suggested:    best,
	}
}

func thresholdReason(p *models.Profile, settings models.AutoSwitchSettings) string {
	session, weekly := settings.Thresholds()
	if p.Usage.SessionUsagePercent >= session {
		return fmt.Sprintf("%s session usage %.0f%% reached the %.0f%% threshold",
			p.Name, p.Usage.SessionUsagePercent, session)
	}
	return fmt.Sprintf("%s weekly usage %.0f%% reached the %.0f%% threshold",
		p.Name, p.Usage.WeeklyUsagePercent, weekly)
}

// SortByAvailability returns a stably sorted copy of profiles: authenticated and unlimited
// first, then rate-limited by soonest reset, then unauthenticated. Ties go to the most
// recently used.
func (s *Scorer) SortByAvailability(profiles []models.Profile) []models.Profile {
	type ranked struct {
		resetAt time.Time
		group   int
	}

	ranks := make(map[string]ranked, len(profiles))
	for i := range profiles {
		p := &profiles[i]
		status := s.IsRateLimited(p)
		r := ranked{resetAt: status.ResetAt}
		switch {
		case !s.IsAuthenticated(p):
			r.group = 2
		case status.Limited:
			r.group = 1
		}
		ranks[p.ID] = r
	}

	sorted := slices.Clone(profiles)
	slices.SortStableFunc(sorted, func(a, b models.Profile) int {
		ra, rb := ranks[a.ID], ranks[b.ID]
		return cmp.Or(
			cmp.Compare(ra.group, rb.group),
			ra.resetAt.Compare(rb.resetAt),
			b.LastUsedAt.Compare(a.LastUsedAt),
		)
	})
	return sorted
}
