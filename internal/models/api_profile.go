package models

import (
	"maps"
	"time"
)

// APIProfile is an account authenticated with a static API key against a compatible endpoint.
type APIProfile struct {
	CreatedAt        time.Time         `yaml:"created_at"`
	LastUsedAt       time.Time         `yaml:"last_used_at,omitempty"`
	RateLimitedUntil *time.Time        `yaml:"rate_limited_until,omitempty"`
	Models           map[string]string `yaml:"models,omitempty"`
	ID               string            `yaml:"id"`
	Name             string            `yaml:"name"`
	BaseURL          string            `yaml:"base_url"`
	APIKey           string            `yaml:"api_key"`
}

// HasKey reports whether a key is stored.
func (a *APIProfile) HasKey() bool {
	return a != nil && a.APIKey != ""
}

// IsRateLimited reports whether the account is cooling down at now.
func (a *APIProfile) IsRateLimited(now time.Time) bool {
	return a.RateLimitedUntil != nil && now.Before(*a.RateLimitedUntil)
}

// Clone returns a deep copy of the profile.
func (a *APIProfile) Clone() APIProfile {
	clone := *a
	if a.RateLimitedUntil != nil {
		t := *a.RateLimitedUntil
		clone.RateLimitedUntil = &t
	}
	clone.Models = maps.Clone(a.Models)
	return clone
}
