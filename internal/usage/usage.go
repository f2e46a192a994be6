// Package usage turns provider usage reports into normalized usage snapshots.
package usage

import (
	"bufio"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/x/ansi"

	"github.com/j-veylop/agent-profiles/internal/models"
	"github.com/j-veylop/agent-profiles/internal/resettime"
)

// Reading is a possibly partial usage report. Nil fields were not present in the source.
type Reading struct {
	SessionPercent *float64
	WeeklyPercent  *float64
	OpusPercent    *float64
	SessionReset   *string
	WeeklyReset    *string
}

// Complete reports whether both window percentages were found.
func (r Reading) Complete() bool {
	return r.SessionPercent != nil && r.WeeklyPercent != nil
}

// Empty reports whether nothing at all was found.
func (r Reading) Empty() bool {
	return r.SessionPercent == nil && r.WeeklyPercent == nil && r.OpusPercent == nil &&
		r.SessionReset == nil && r.WeeklyReset == nil
}

type section int

const (
	sectionNone section = iota
	sectionSession
	sectionWeekly
	sectionOpus
	sectionOtherWeekly
)

var (
	percentRe = regexp.MustCompile(`(\d{1,3}(?:\.\d+)?)\s*%\s*(?:used)?`)
	resetRe   = regexp.MustCompile(`(?i)\bresets?\b\s*(?:at\b)?\s*:?\s*(.+)$`)
)

// Parse extracts window percentages and reset descriptions from free-form usage output.
// Unrecognized fragments are left nil.
func Parse(raw string) Reading {
	var r Reading
	current := sectionNone

	scanner := bufio.NewScanner(strings.NewReader(ansi.Strip(raw)))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if s, ok := sectionOf(line); ok {
			current = s
			// Some renderers put the figures on the header line itself.
			line = headerRemainder(line)
			if line == "" {
				continue
			}
		}

		if m := resetRe.FindStringSubmatch(line); m != nil {
			text := strings.TrimSpace(m[1])
			switch current {
			case sectionSession:
				setOnce(&r.SessionReset, text)
			case sectionWeekly:
				setOnce(&r.WeeklyReset, text)
			}
			continue
		}

		if m := percentRe.FindStringSubmatch(line); m != nil {
			v, err := strconv.ParseFloat(m[1], 64)
			if err != nil {
				continue
			}
			switch current {
			case sectionSession:
				setOnce(&r.SessionPercent, clamp(v))
			case sectionWeekly:
				setOnce(&r.WeeklyPercent, clamp(v))
			case sectionOpus:
				setOnce(&r.OpusPercent, clamp(v))
			}
		}
	}

	return r
}

func sectionOf(line string) (section, bool) {
	lower := strings.ToLower(line)
	if strings.HasPrefix(lower, "reset") {
		return sectionNone, false
	}
	switch {
	case strings.Contains(lower, "session"):
		return sectionSession, true
	case strings.Contains(lower, "week") && strings.Contains(lower, "opus"):
		return sectionOpus, true
	case strings.Contains(lower, "week") && strings.Contains(lower, "sonnet"):
		return sectionOtherWeekly, true
	case strings.Contains(lower, "week"):
		return sectionWeekly, true
	default:
		return sectionNone, false
	}
}

// headerRemainder returns what follows the header label on lines like "Current session: 40% used".
func headerRemainder(line string) string {
	if _, rest, ok := strings.Cut(line, ":"); ok {
		return strings.TrimSpace(rest)
	}
	if percentRe.MatchString(line) {
		return line
	}
	return ""
}

func setOnce[T any](dst **T, v T) {
	if *dst == nil {
		*dst = &v
	}
}

func clamp(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 100:
		return 100
	default:
		return v
	}
}

// Apply merges reading into prev and returns the new snapshot.
// Fields the reading does not carry keep their previous values, so a percentage-only
// update never erases known reset times.
func Apply(prev *models.UsageSnapshot, r Reading, now time.Time) models.UsageSnapshot {
	var next models.UsageSnapshot
	if prev != nil {
		next = prev.Clone()
	}

	if r.SessionPercent != nil {
		next.SessionUsagePercent = clamp(*r.SessionPercent)
	}
	if r.WeeklyPercent != nil {
		next.WeeklyUsagePercent = clamp(*r.WeeklyPercent)
	}
	if r.OpusPercent != nil {
		v := clamp(*r.OpusPercent)
		next.OpusUsagePercent = &v
	}

	if r.SessionReset != nil {
		next.SessionResetTime, next.SessionResetAt = applyReset(*r.SessionReset, next.SessionResetTime, next.SessionResetAt, now)
	}
	if r.WeeklyReset != nil {
		next.WeeklyResetTime, next.WeeklyResetAt = applyReset(*r.WeeklyReset, next.WeeklyResetTime, next.WeeklyResetAt, now)
	}

	next.LastUpdated = now
	return next
}

// Percentages builds a reading from structured percentages, typically from a direct API response.
func Percentages(session, weekly float64, opus *float64) Reading {
	return Reading{
		SessionPercent: &session,
		WeeklyPercent:  &weekly,
		OpusPercent:    opus,
	}
}

// FromPercentages merges structured percentages into prev.
func FromPercentages(prev *models.UsageSnapshot, session, weekly float64, opus *float64, now time.Time) models.UsageSnapshot {
	return Apply(prev, Percentages(session, weekly, opus), now)
}

// applyReset keeps a known reset time while it is still ahead. Relative texts like "3pm" repeat
// across days, so the same text is parsed again once the stored time has passed.
func applyReset(text, prevText string, prevAt, now time.Time) (string, time.Time) {
	if text == prevText && prevAt.After(now) {
		return prevText, prevAt
	}
	return text, parseReset(text, now)
}

func parseReset(text string, now time.Time) time.Time {
	t, ok := resettime.Parse(text, now)
	if !ok {
		return time.Time{}
	}
	return t
}
