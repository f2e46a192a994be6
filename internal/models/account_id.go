package models

import (
	"encoding/json"
	"fmt"
	"strings"
)

// AccountKind distinguishes the two independently stored credential kinds.
type AccountKind int

const (
	// KindOAuth is a profile authenticated through the provider's OAuth flow.
	KindOAuth AccountKind = iota + 1
	// KindAPIKey is a profile authenticated with a static API key.
	KindAPIKey
)

const (
	oauthPrefix  = "oauth-"
	apiKeyPrefix = "api-"
)

// String returns the wire prefix name of the kind.
func (k AccountKind) String() string {
	switch k {
	case KindOAuth:
		return "oauth"
	case KindAPIKey:
		return "api"
	default:
		return "unknown"
	}
}

// AccountID addresses an account across both credential kinds so the id spaces never collide.
type AccountID struct {
	Kind AccountKind
	ID   string
}

// OAuthAccount returns the account id of an OAuth profile.
func OAuthAccount(id string) AccountID {
	return AccountID{Kind: KindOAuth, ID: id}
}

// APIKeyAccount returns the account id of an API-key profile.
func APIKeyAccount(id string) AccountID {
	return AccountID{Kind: KindAPIKey, ID: id}
}

// IsZero reports whether the id is unset.
func (a AccountID) IsZero() bool {
	return a.Kind == 0 && a.ID == ""
}

// String renders the kind-prefixed form, e.g. "oauth-work".
func (a AccountID) String() string {
	switch a.Kind {
	case KindOAuth:
		return oauthPrefix + a.ID
	case KindAPIKey:
		return apiKeyPrefix + a.ID
	default:
		return a.ID
	}
}

// ParseAccountID parses the kind-prefixed form.
func ParseAccountID(s string) (AccountID, error) {
	switch {
	case strings.HasPrefix(s, oauthPrefix) && len(s) > len(oauthPrefix):
		return OAuthAccount(strings.TrimPrefix(s, oauthPrefix)), nil
	case strings.HasPrefix(s, apiKeyPrefix) && len(s) > len(apiKeyPrefix):
		return APIKeyAccount(strings.TrimPrefix(s, apiKeyPrefix)), nil
	default:
		return AccountID{}, fmt.Errorf("invalid account id %q: missing oauth- or api- prefix", s)
	}
}

// MarshalJSON encodes the id in its prefixed string form.
func (a AccountID) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

// UnmarshalJSON decodes the prefixed string form.
// Bare ids from older stores are treated as OAuth profile ids.
func (a *AccountID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	id, err := ParseAccountID(s)
	if err != nil {
		id = OAuthAccount(s)
	}
	*a = id
	return nil
}

// PriorityIndex returns the position of id in order, or -1 when it is not listed.
func PriorityIndex(order []AccountID, id AccountID) int {
	for i, o := range order {
		if o == id {
			return i
		}
	}
	return -1
}
