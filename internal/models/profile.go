// Package models defines data structures and domain types.
package models

import (
	"regexp"
	"slices"
	"strings"
	"time"
)

// TokenLifetime is how long a long-lived OAuth token stays valid after creation.
const TokenLifetime = 365 * 24 * time.Hour

// DefaultProfileID is the id of the profile created on first run.
const DefaultProfileID = "default"

// Profile represents one authenticatable identity with its own isolated config directory.
type Profile struct {
	CreatedAt        time.Time        `json:"createdAt"`
	LastUsedAt       time.Time        `json:"lastUsedAt,omitzero"`
	TokenCreatedAt   time.Time        `json:"tokenCreatedAt,omitzero"`
	Usage            *UsageSnapshot   `json:"usage,omitempty"`
	RateLimitEvents  []RateLimitEvent `json:"rateLimitEvents,omitempty"`
	ID               string           `json:"id"`
	Name             string           `json:"name"`
	Description      string           `json:"description,omitempty"`
	ConfigDir        string           `json:"configDir"`
	OAuthToken       string           `json:"oauthToken,omitempty"`
	Email            string           `json:"email,omitempty"`
	SubscriptionType string           `json:"subscriptionType,omitempty"`
	RateLimitTier    string           `json:"rateLimitTier,omitempty"`
	IsDefault        bool             `json:"isDefault"`
}

// HasValidToken reports whether the profile carries a token that has not outlived TokenLifetime.
func (p *Profile) HasValidToken(now time.Time) bool {
	if p == nil || p.OAuthToken == "" {
		return false
	}
	if p.TokenCreatedAt.IsZero() {
		return false
	}
	return now.Before(p.TokenCreatedAt.Add(TokenLifetime))
}

// Clone returns a deep copy of the profile.
func (p *Profile) Clone() Profile {
	clone := *p
	if p.Usage != nil {
		usage := p.Usage.Clone()
		clone.Usage = &usage
	}
	clone.RateLimitEvents = slices.Clone(p.RateLimitEvents)
	return clone
}

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

// ProfileIDFromName derives a stable id from a display name.
func ProfileIDFromName(name string) string {
	id := nonSlug.ReplaceAllString(strings.ToLower(strings.TrimSpace(name)), "-")
	id = strings.Trim(id, "-")
	if id == "" {
		return "profile"
	}
	return id
}
