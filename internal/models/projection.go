package models

import "time"

// ProjectionStatus indicates how urgent a window's exhaustion is.
type ProjectionStatus string

const (
	ProjectionSafe     ProjectionStatus = "SAFE"
	ProjectionWarning  ProjectionStatus = "WARNING"
	ProjectionCritical ProjectionStatus = "CRITICAL"
	ProjectionUnknown  ProjectionStatus = "UNKNOWN"
)

// Confidence grades a projection by how many samples it was computed from.
type Confidence string

const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

// WindowProjection forecasts when one rate-limit window will be used up.
type WindowProjection struct {
	ExhaustAt              time.Time        `json:"exhaustAt,omitzero"`
	ResetAt                time.Time        `json:"resetAt,omitzero"`
	Window                 RateLimitType    `json:"window"`
	Status                 ProjectionStatus `json:"status"`
	Confidence             Confidence       `json:"confidence"`
	CurrentPercent         float64          `json:"currentPercent"`
	RatePerHour            float64          `json:"ratePerHour"`
	HoursLeft              float64          `json:"-"` // +Inf when usage is not growing
	DataPoints             int              `json:"dataPoints"`
	WillExhaustBeforeReset bool             `json:"willExhaustBeforeReset"`
}

// Exhausting reports whether the window is projected to run out before it resets.
func (w *WindowProjection) Exhausting() bool {
	return w != nil && w.WillExhaustBeforeReset
}

// Projection holds the forecasts of both windows of an OAuth profile.
type Projection struct {
	LastUpdated time.Time         `json:"lastUpdated"`
	Session     *WindowProjection `json:"session"`
	Weekly      *WindowProjection `json:"weekly"`
	ProfileID   string            `json:"profileId"`
}

// Worst returns the most urgent status across both windows.
func (p *Projection) Worst() ProjectionStatus {
	if p == nil {
		return ProjectionUnknown
	}
	worst := ProjectionUnknown
	for _, w := range []*WindowProjection{p.Session, p.Weekly} {
		if w != nil && statusRank(w.Status) > statusRank(worst) {
			worst = w.Status
		}
	}
	return worst
}

func statusRank(s ProjectionStatus) int {
	switch s {
	case ProjectionSafe:
		return 1
	case ProjectionWarning:
		return 2
	case ProjectionCritical:
		return 3
	default:
		return 0
	}
}
