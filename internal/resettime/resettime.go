// Package resettime turns the provider's human-readable reset descriptions into absolute times.
//
// Recognized shapes, each optionally prefixed by "resets" / "resets at" and suffixed with an IANA
// zone in parentheses, e.g. "Resets Dec 17 at 6am (Europe/Oslo)":
//
//	3pm, 3:30pm, 15:04           next occurrence of that wall-clock time
//	Dec 17 at 6am, Dec 17, 3pm   that date in the current year, or next year if already past
//	in 2h 30m, in 45 minutes     relative to now
//	2025-01-02T15:04:05Z         RFC 3339
package resettime

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/j-veylop/agent-profiles/internal/models"
)

var (
	zoneRe     = regexp.MustCompile(`\(([A-Za-z_]+(?:/[A-Za-z0-9_+\-]+)*)\)\s*$`)
	prefixRe   = regexp.MustCompile(`(?i)^(?:limit\s+)?(?:resets?\s+at|resets?|at)\b\s*:?\s*`)
	relativeRe = regexp.MustCompile(`(?i)(\d+)\s*(d|days?|h|hrs?|hours?|m|mins?|minutes?)\b`)
	clockRe    = regexp.MustCompile(`(?i)^(\d{1,2})(?::(\d{2}))?\s*(am|pm)?$`)
	dateRe     = regexp.MustCompile(`(?i)^([a-z]{3,9})\.?\s+(\d{1,2})(?:st|nd|rd|th)?(?:\s*,\s*|\s+at\s+|\s+)?(.*)$`)
	monthRe    = regexp.MustCompile(`(?i)\b(jan|feb|mar|apr|may|jun|jul|aug|sep|sept|oct|nov|dec)[a-z]*\.?\s+\d{1,2}\b`)
)

var months = map[string]time.Month{
	"jan": time.January, "feb": time.February, "mar": time.March, "apr": time.April,
	"may": time.May, "jun": time.June, "jul": time.July, "aug": time.August,
	"sep": time.September, "oct": time.October, "nov": time.November, "dec": time.December,
}

// Parse converts text into an absolute reset time. The boolean is false when nothing in text
// could be understood.
func Parse(text string, now time.Time) (time.Time, bool) {
	s := strings.TrimSpace(text)
	if s == "" {
		return time.Time{}, false
	}

	loc := now.Location()
	if m := zoneRe.FindStringSubmatch(s); m != nil {
		if l, err := time.LoadLocation(m[1]); err == nil {
			loc = l
		}
		s = strings.TrimSpace(s[:len(s)-len(m[0])])
	}
	s = strings.TrimSpace(prefixRe.ReplaceAllString(s, ""))
	s = strings.TrimSuffix(s, ".")
	if s == "" {
		return time.Time{}, false
	}

	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, true
	}

	lower := strings.ToLower(s)
	if strings.HasPrefix(lower, "in ") {
		return parseRelative(lower, now)
	}

	local := now.In(loc)

	if h, m, ok := parseClock(s); ok {
		t := time.Date(local.Year(), local.Month(), local.Day(), h, m, 0, 0, loc)
		if !t.After(local) {
			t = t.AddDate(0, 0, 1)
		}
		return t, true
	}

	if m := dateRe.FindStringSubmatch(s); m != nil {
		month, ok := months[strings.ToLower(m[1])[:3]]
		if !ok {
			return time.Time{}, false
		}
		day, err := strconv.Atoi(m[2])
		if err != nil || day < 1 || day > 31 {
			return time.Time{}, false
		}
		hour, minute := 0, 0
		if rest := strings.TrimSpace(m[3]); rest != "" {
			h, mm, ok := parseClock(rest)
			if !ok {
				return time.Time{}, false
			}
			hour, minute = h, mm
		}
		t := time.Date(local.Year(), month, day, hour, minute, 0, 0, loc)
		if !t.After(local) {
			t = t.AddDate(1, 0, 0)
		}
		return t, true
	}

	return time.Time{}, false
}

// InferWindow guesses which rate-limit window a reset description belongs to.
// A calendar date or a mention of "week" means the weekly window; anything else is the session.
func InferWindow(text string) models.RateLimitType {
	lower := strings.ToLower(text)
	if strings.Contains(lower, "week") || monthRe.MatchString(lower) {
		return models.RateLimitWeekly
	}
	if m := relativeRe.FindAllStringSubmatch(lower, -1); m != nil {
		for _, part := range m {
			if strings.HasPrefix(part[2], "d") {
				return models.RateLimitWeekly
			}
		}
	}
	return models.RateLimitSession
}

// DefaultWindow returns the nominal length of a rate-limit window.
func DefaultWindow(t models.RateLimitType) time.Duration {
	if t == models.RateLimitWeekly {
		return 7 * 24 * time.Hour
	}
	return 5 * time.Hour
}

func parseRelative(s string, now time.Time) (time.Time, bool) {
	matches := relativeRe.FindAllStringSubmatch(s, -1)
	if matches == nil {
		return time.Time{}, false
	}
	var d time.Duration
	for _, m := range matches {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			return time.Time{}, false
		}
		switch m[2][0] {
		case 'd':
			d += time.Duration(n) * 24 * time.Hour
		case 'h':
			d += time.Duration(n) * time.Hour
		case 'm':
			d += time.Duration(n) * time.Minute
		}
	}
	return now.Add(d), true
}

func parseClock(s string) (hour, minute int, ok bool) {
	m := clockRe.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return 0, 0, false
	}
	hour, _ = strconv.Atoi(m[1])
	if m[2] != "" {
		minute, _ = strconv.Atoi(m[2])
	}
	switch strings.ToLower(m[3]) {
	case "am":
		if hour == 12 {
			hour = 0
		}
	case "pm":
		if hour != 12 {
			hour += 12
		}
	case "":
		// A bare number without am/pm or minutes is ambiguous.
		if m[2] == "" {
			return 0, 0, false
		}
	}
	if hour > 23 || minute > 59 {
		return 0, 0, false
	}
	return hour, minute, true
}
