// Package unified ranks OAuth profiles and API-key profiles as one list of accounts.
package unified

import (
	"cmp"
	"slices"
	"time"

	"github.com/j-veylop/agent-profiles/internal/availability"
	"github.com/j-veylop/agent-profiles/internal/models"
)

// Account is one entry of the merged ranking.
type Account struct {
	// AvailableAt is when a rate-limited account frees up. Zero when not rate-limited.
	AvailableAt time.Time
	OAuth       *models.Profile
	API         *models.APIProfile
	ID          models.AccountID
	Name        string
	Available   bool
	Active      bool
	// Authenticated is true for OAuth profiles with usable credentials and API profiles with a key.
	Authenticated bool
}

// Options narrows and orders the ranking.
type Options struct {
	ExcludeAccountID models.AccountID
	ActiveOAuthID    string
	ActiveAPIID      string
	PriorityOrder    []models.AccountID
}

// Resolver merges both credential kinds using a shared availability scorer.
type Resolver struct {
	scorer *availability.Scorer
}

// NewResolver creates a resolver.
func NewResolver(scorer *availability.Scorer) *Resolver {
	return &Resolver{scorer: scorer}
}

// Accounts returns every account except the excluded one, available accounts first.
// Within each group accounts listed in the priority order come first by position; the rest keep
// their base order, OAuth profiles before API-key profiles.
func (r *Resolver) Accounts(oauth []models.Profile, api []models.APIProfile, settings models.AutoSwitchSettings, opts Options) []Account {
	now := r.scorer.Now()
	accounts := make([]Account, 0, len(oauth)+len(api))

	for i := range oauth {
		p := &oauth[i]
		acc := Account{
			ID:     models.OAuthAccount(p.ID),
			Name:   p.Name,
			OAuth:  p,
			Active: opts.ActiveOAuthID != "" && p.ID == opts.ActiveOAuthID,
		}
		accounts = r.appendUnlessExcluded(accounts, acc, settings, now, opts)
	}
	for i := range api {
		a := &api[i]
		acc := Account{
			ID:     models.APIKeyAccount(a.ID),
			Name:   a.Name,
			API:    a,
			Active: opts.ActiveAPIID != "" && a.ID == opts.ActiveAPIID,
		}
		accounts = r.appendUnlessExcluded(accounts, acc, settings, now, opts)
	}

	index := make(map[models.AccountID]int, len(accounts))
	for i, acc := range accounts {
		index[acc.ID] = i
	}

	slices.SortStableFunc(accounts, func(a, b Account) int {
		return cmp.Or(
			compareAvailable(a, b),
			availability.ComparePriority(opts.PriorityOrder, a.ID, index[a.ID], b.ID, index[b.ID]),
		)
	})
	return accounts
}

// BestAvailable returns the highest ranked available account. When none is available it returns
// the least bad one, judged the same way as availability.Scorer.BestAvailable: authenticated
// accounts first, then the soonest to free up, then the lowest combined usage. Nil is returned only
// when there is no account at all; check Available before switching to the result.
func (r *Resolver) BestAvailable(oauth []models.Profile, api []models.APIProfile, settings models.AutoSwitchSettings, opts Options) *Account {
	accounts := r.Accounts(oauth, api, settings, opts)
	if len(accounts) == 0 {
		return nil
	}
	if accounts[0].Available {
		return &accounts[0]
	}

	pool := accounts
	if authed := slices.DeleteFunc(slices.Clone(accounts), func(a Account) bool {
		return !a.Authenticated
	}); len(authed) > 0 {
		pool = authed
	}

	var waiting []Account
	for _, acc := range pool {
		if !acc.AvailableAt.IsZero() {
			waiting = append(waiting, acc)
		}
	}
	if len(waiting) > 0 {
		// SortStable keeps the ranking order between equal reset times.
		slices.SortStableFunc(waiting, func(a, b Account) int {
			return a.AvailableAt.Compare(b.AvailableAt)
		})
		return &waiting[0]
	}

	pool = slices.Clone(pool)
	slices.SortStableFunc(pool, func(a, b Account) int {
		return cmp.Compare(combinedUsage(a), combinedUsage(b))
	})
	return &pool[0]
}

func combinedUsage(acc Account) float64 {
	if acc.OAuth == nil {
		return 0
	}
	return acc.OAuth.Usage.CombinedPercent()
}

func (r *Resolver) appendUnlessExcluded(accounts []Account, acc Account, settings models.AutoSwitchSettings, now time.Time, opts Options) []Account {
	if !opts.ExcludeAccountID.IsZero() && acc.ID == opts.ExcludeAccountID {
		return accounts
	}
	r.evaluate(&acc, settings, now)
	return append(accounts, acc)
}

func (r *Resolver) evaluate(acc *Account, settings models.AutoSwitchSettings, now time.Time) {
	switch acc.ID.Kind {
	case models.KindOAuth:
		eval := r.scorer.Evaluate(acc.OAuth, settings)
		acc.Available = eval.Available
		acc.Authenticated = eval.Authenticated
		if eval.Limit.Limited {
			acc.AvailableAt = eval.Limit.ResetAt
		}
	case models.KindAPIKey:
		limited := acc.API.IsRateLimited(now)
		acc.Authenticated = acc.API.HasKey()
		acc.Available = acc.Authenticated && !limited
		if limited {
			acc.AvailableAt = *acc.API.RateLimitedUntil
		}
	default:
		panic("unified: unknown account kind " + acc.ID.Kind.String())
	}
}

func compareAvailable(a, b Account) int {
	switch {
	case a.Available == b.Available:
		return 0
	case a.Available:
		return -1
	default:
		return 1
	}
}
