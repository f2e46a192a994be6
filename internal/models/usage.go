package models

import "time"

// UsageSnapshot is the last known usage of a profile's rate-limit windows.
type UsageSnapshot struct {
	LastUpdated         time.Time `json:"lastUpdated"`
	SessionResetAt      time.Time `json:"sessionResetAt,omitzero"`
	WeeklyResetAt       time.Time `json:"weeklyResetAt,omitzero"`
	OpusUsagePercent    *float64  `json:"opusUsagePercent,omitempty"`
	SessionResetTime    string    `json:"sessionResetTime,omitempty"`
	WeeklyResetTime     string    `json:"weeklyResetTime,omitempty"`
	SessionUsagePercent float64   `json:"sessionUsagePercent"`
	WeeklyUsagePercent  float64   `json:"weeklyUsagePercent"`
}

// Clone returns a deep copy of the snapshot.
func (u UsageSnapshot) Clone() UsageSnapshot {
	if u.OpusUsagePercent != nil {
		v := *u.OpusUsagePercent
		u.OpusUsagePercent = &v
	}
	return u
}

// CombinedPercent is the sum of both window percentages, used to rank exhausted profiles.
func (u *UsageSnapshot) CombinedPercent() float64 {
	if u == nil {
		return 0
	}
	return u.SessionUsagePercent + u.WeeklyUsagePercent
}

// RateLimitType names a provider rate-limit window.
type RateLimitType string

const (
	// RateLimitSession is the short rolling window.
	RateLimitSession RateLimitType = "session"
	// RateLimitWeekly is the seven day window.
	RateLimitWeekly RateLimitType = "weekly"
)

// RateLimitEvent records that the provider refused a profile until ResetAt.
type RateLimitEvent struct {
	ResetAt    time.Time     `json:"resetAt"`
	RecordedAt time.Time     `json:"recordedAt"`
	Type       RateLimitType `json:"type"`
	ResetText  string        `json:"resetText,omitempty"`
}

// AutoSwitchSettings controls proactive switching between profiles.
type AutoSwitchSettings struct {
	Enabled               bool          `json:"enabled"`
	SessionThreshold      float64       `json:"sessionThreshold"`
	WeeklyThreshold       float64       `json:"weeklyThreshold"`
	IndependentThresholds bool          `json:"independentThresholds"`
	SwitchOnRateLimit     bool          `json:"switchOnRateLimit"`
	UsageCheckInterval    time.Duration `json:"usageCheckInterval"`
}

// DefaultAutoSwitchSettings returns the settings used when none are persisted.
func DefaultAutoSwitchSettings() AutoSwitchSettings {
	return AutoSwitchSettings{
		Enabled:               false,
		SessionThreshold:      95,
		WeeklyThreshold:       99,
		IndependentThresholds: true,
		SwitchOnRateLimit:     true,
		UsageCheckInterval:    30 * time.Second,
	}
}

// Thresholds returns the effective session and weekly thresholds.
// When thresholds are not independent the session threshold applies to both windows.
func (s AutoSwitchSettings) Thresholds() (session, weekly float64) {
	if !s.IndependentThresholds {
		return s.SessionThreshold, s.SessionThreshold
	}
	return s.SessionThreshold, s.WeeklyThreshold
}
