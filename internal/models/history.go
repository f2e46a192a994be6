package models

import "time"

// TimeRange selects how far back history queries look.
type TimeRange int

const (
	// TimeRange24Hours covers the last day.
	TimeRange24Hours TimeRange = iota
	// TimeRange7Days covers one weekly window.
	TimeRange7Days
	// TimeRange30Days covers the last month.
	TimeRange30Days
	// TimeRangeAllTime applies no lower bound.
	TimeRangeAllTime
)

// String returns the display name for a time range.
func (t TimeRange) String() string {
	switch t {
	case TimeRange24Hours:
		return "24 Hours"
	case TimeRange7Days:
		return "7 Days"
	case TimeRange30Days:
		return "30 Days"
	case TimeRangeAllTime:
		return "All Time"
	default:
		return "Unknown"
	}
}

// Since returns the lower bound of the range relative to now. AllTime yields the zero time.
func (t TimeRange) Since(now time.Time) time.Time {
	switch t {
	case TimeRange24Hours:
		return now.Add(-24 * time.Hour)
	case TimeRange7Days:
		return now.AddDate(0, 0, -7)
	case TimeRange30Days:
		return now.AddDate(0, 0, -30)
	case TimeRangeAllTime:
		return time.Time{}
	default:
		return now.AddDate(0, 0, -30)
	}
}

// Next cycles to the next time range.
func (t TimeRange) Next() TimeRange {
	return (t + 1) % 4
}

// UsageSample is one recorded usage observation of a profile.
type UsageSample struct {
	Timestamp      time.Time
	OpusPercent    *float64
	ProfileID      string
	ID             int64
	SessionPercent float64
	WeeklyPercent  float64
}

// RateLimitRecord is a rate-limit event as kept in history, with the profile it hit.
type RateLimitRecord struct {
	RateLimitEvent
	ProfileID string
	ID        int64
}

// SwitchReason tells why the active account changed.
type SwitchReason string

const (
	// SwitchManual is a switch requested by the user.
	SwitchManual SwitchReason = "manual"
	// SwitchRateLimited follows a rate-limit on the previous account.
	SwitchRateLimited SwitchReason = "rate_limited"
	// SwitchThreshold follows usage crossing a configured threshold.
	SwitchThreshold SwitchReason = "threshold"
)

// SwitchEvent records a change of the active account.
type SwitchEvent struct {
	Timestamp time.Time
	From      AccountID
	To        AccountID
	Reason    SwitchReason
	ID        int64
}

// UsageSeries holds the samples of one profile in chronological order.
type UsageSeries struct {
	ProfileID string
	Samples   []UsageSample
}

// Session returns the session percentages of the series.
func (s UsageSeries) Session() []float64 {
	out := make([]float64, len(s.Samples))
	for i, sample := range s.Samples {
		out[i] = sample.SessionPercent
	}
	return out
}

// Weekly returns the weekly percentages of the series.
func (s UsageSeries) Weekly() []float64 {
	out := make([]float64, len(s.Samples))
	for i, sample := range s.Samples {
		out[i] = sample.WeeklyPercent
	}
	return out
}

// Peak returns the highest session percentage and when it was observed.
func (s UsageSeries) Peak() (float64, time.Time) {
	var peak float64
	var at time.Time
	for _, sample := range s.Samples {
		if sample.SessionPercent > peak || at.IsZero() {
			peak, at = sample.SessionPercent, sample.Timestamp
		}
	}
	return peak, at
}
