package services

import (
	"errors"
	"fmt"
	"slices"

	"github.com/j-veylop/agent-profiles/internal/availability"
	"github.com/j-veylop/agent-profiles/internal/models"
	"github.com/j-veylop/agent-profiles/internal/resettime"
	"github.com/j-veylop/agent-profiles/internal/services/apiprofiles"
	"github.com/j-veylop/agent-profiles/internal/services/profiles"
	"github.com/j-veylop/agent-profiles/internal/unified"
	"github.com/j-veylop/agent-profiles/internal/usage"
)

var (
	// ErrUnrecognizedUsage is returned when usage output contains nothing that could be parsed.
	ErrUnrecognizedUsage = errors.New("no usage figures found in output")
	// ErrNoneAvailable is returned when no account can take over.
	ErrNoneAvailable = errors.New("no account is available")
	// ErrUnknownAccount is returned for account ids that match no stored profile.
	ErrUnknownAccount = errors.New("unknown account")
)

// ActiveAccount returns the account new sessions run as. An active API-key profile takes
// precedence over the active OAuth profile.
func (m *Manager) ActiveAccount() models.AccountID {
	if id := m.api.ActiveID(); id != "" {
		return models.APIKeyAccount(id)
	}
	if p := m.profiles.GetActiveProfile(); p != nil {
		return models.OAuthAccount(p.ID)
	}
	return models.AccountID{}
}

// Accounts returns both credential kinds ranked by availability and priority.
func (m *Manager) Accounts() []unified.Account {
	return m.rank(models.AccountID{})
}

// BestAccount returns the best available account other than exclude, or nil.
func (m *Manager) BestAccount(exclude models.AccountID) *unified.Account {
	accounts := m.rank(exclude)
	if len(accounts) == 0 || !accounts[0].Available {
		return nil
	}
	return &accounts[0]
}

func (m *Manager) rank(exclude models.AccountID) []unified.Account {
	data := m.profiles.Data()
	opts := unified.Options{
		ExcludeAccountID: exclude,
		ActiveAPIID:      m.api.ActiveID(),
		PriorityOrder:    data.AccountPriorityOrder,
	}
	if opts.ActiveAPIID == "" {
		opts.ActiveOAuthID = data.ActiveProfileID
	}
	return m.resolver.Accounts(data.Profiles, m.api.List(), data.AutoSwitch, opts)
}

// Recommend checks whether the active OAuth profile should be left for another one.
func (m *Manager) Recommend() availability.Recommendation {
	data := m.profiles.Data()
	current := m.profiles.GetActiveProfile()
	return m.scorer.ShouldProactivelySwitch(current, data.Profiles, data.AutoSwitch, data.AccountPriorityOrder)
}

// ReportUsage parses the output of the provider's usage command and records it for the profile.
func (m *Manager) ReportUsage(profileID, raw string) (models.UsageSnapshot, error) {
	reading := usage.Parse(raw)
	if reading.Empty() {
		return models.UsageSnapshot{}, ErrUnrecognizedUsage
	}
	if !reading.Complete() {
		m.logger.Debug("partial usage report", "profile", profileID)
	}
	return m.applyUsage(profileID, reading)
}

// ReportUsagePercentages records usage figures obtained without parsing, e.g. from a status line.
func (m *Manager) ReportUsagePercentages(profileID string, session, weekly float64, opus *float64) (models.UsageSnapshot, error) {
	return m.applyUsage(profileID, usage.Percentages(session, weekly, opus))
}

func (m *Manager) applyUsage(profileID string, reading usage.Reading) (models.UsageSnapshot, error) {
	snapshot, err := m.profiles.UpdateUsage(profileID, reading)
	if err != nil {
		return snapshot, err
	}

	sample := &models.UsageSample{
		Timestamp:      snapshot.LastUpdated,
		ProfileID:      profileID,
		SessionPercent: snapshot.SessionUsagePercent,
		WeeklyPercent:  snapshot.WeeklyUsagePercent,
		OpusPercent:    snapshot.OpusUsagePercent,
	}
	if err := m.database.InsertUsageSample(sample); err != nil {
		m.logger.Warn("failed to record usage sample", "profile", profileID, "error", err)
	}

	m.broadcast(UsageUpdatedEvent{ProfileID: profileID, Usage: snapshot})
	m.checkRecommendation(profileID)
	return snapshot, nil
}

// ReportRateLimit records that the provider refused an account. resetText is the provider's
// description of when the limit lifts.
func (m *Manager) ReportRateLimit(id models.AccountID, resetText string) (models.RateLimitEvent, error) {
	var event models.RateLimitEvent

	switch id.Kind {
	case models.KindOAuth:
		var err error
		event, err = m.profiles.RecordRateLimit(id.ID, resetText)
		if err != nil {
			return event, err
		}
		if _, err := m.database.InsertRateLimitEvent(id.ID, event); err != nil {
			m.logger.Warn("failed to record rate limit event", "profile", id.ID, "error", err)
		}

	case models.KindAPIKey:
		now := m.now()
		window := resettime.InferWindow(resetText)
		resetAt, ok := resettime.Parse(resetText, now)
		if !ok {
			resetAt = now.Add(resettime.DefaultWindow(window))
		}
		if err := m.api.MarkRateLimited(id.ID, resetAt); err != nil {
			return event, translateAPIError(err, id)
		}
		event = models.RateLimitEvent{ResetAt: resetAt, RecordedAt: now, Type: window, ResetText: resetText}

	default:
		return event, fmt.Errorf("%w: %s", ErrUnknownAccount, id)
	}

	m.logger.Info("rate limit recorded", "account", id.String(), "type", event.Type, "reset_at", event.ResetAt)
	m.notifyf("Rate limited: "+m.accountName(id), "Available again at %s", event.ResetAt.Local().Format("Jan 2 15:04"))
	m.broadcast(RateLimitedEvent{Account: id, Type: event.Type, ResetAt: event.ResetAt})
	if id.Kind == models.KindOAuth {
		m.checkRecommendation(id.ID)
	}
	return event, nil
}

// ClearRateLimit drops the recorded rate limits of an account.
func (m *Manager) ClearRateLimit(id models.AccountID) error {
	switch id.Kind {
	case models.KindOAuth:
		if err := m.profiles.ClearRateLimits(id.ID); err != nil {
			return err
		}
	case models.KindAPIKey:
		if err := m.api.ClearRateLimit(id.ID); err != nil {
			return translateAPIError(err, id)
		}
	default:
		return fmt.Errorf("%w: %s", ErrUnknownAccount, id)
	}

	m.mu.Lock()
	delete(m.recommended, id.ID)
	m.mu.Unlock()
	return nil
}

// checkRecommendation notifies once when the active profile should be left. The notice is re-armed
// when the profile recovers.
func (m *Manager) checkRecommendation(profileID string) {
	active := m.profiles.GetActiveProfile()
	if active == nil || active.ID != profileID || m.api.ActiveID() != "" {
		return
	}

	rec := m.Recommend()

	m.mu.Lock()
	already := m.recommended[profileID]
	m.recommended[profileID] = rec.ShouldSwitch
	m.mu.Unlock()

	if !rec.ShouldSwitch || already {
		return
	}

	m.logger.Info("switch recommended", "profile", profileID, "reason", rec.Reason)
	m.notifyf("Switch recommended", "%s", rec.Reason)
	m.broadcast(RecommendationEvent{Recommendation: rec})
}

// SwitchTo makes id the active account and records the switch in history.
func (m *Manager) SwitchTo(id models.AccountID, reason models.SwitchReason) (models.SwitchEvent, error) {
	from := m.ActiveAccount()

	switch id.Kind {
	case models.KindOAuth:
		if err := m.profiles.SetActiveProfile(id.ID); err != nil {
			return models.SwitchEvent{}, err
		}
		if err := m.api.SetActive(""); err != nil {
			return models.SwitchEvent{}, err
		}
	case models.KindAPIKey:
		if err := m.api.SetActive(id.ID); err != nil {
			return models.SwitchEvent{}, translateAPIError(err, id)
		}
	default:
		return models.SwitchEvent{}, fmt.Errorf("%w: %s", ErrUnknownAccount, id)
	}

	event := models.SwitchEvent{
		Timestamp: m.now(),
		From:      from,
		To:        id,
		Reason:    reason,
	}
	if err := m.database.InsertSwitchEvent(&event); err != nil {
		m.logger.Warn("failed to record switch", "to", id.String(), "error", err)
	}

	m.logger.Info("active account switched", "from", from.String(), "to", id.String(), "reason", reason)
	m.broadcast(SwitchedEvent{Switch: event})
	m.broadcast(m.snapshotEvent())
	return event, nil
}

// SwitchToBest moves to the best available account other than the active one.
func (m *Manager) SwitchToBest(reason models.SwitchReason) (*unified.Account, error) {
	best := m.BestAccount(m.ActiveAccount())
	if best == nil {
		return nil, ErrNoneAvailable
	}
	if _, err := m.SwitchTo(best.ID, reason); err != nil {
		return nil, err
	}
	return best, nil
}

// AddProfile creates an OAuth profile. An empty configDir gets an isolated directory.
func (m *Manager) AddProfile(name, configDir string) (*models.Profile, error) {
	return m.profiles.AddProfile(name, configDir)
}

// AddAPIProfile stores an API-key account and announces the new account list.
func (m *Manager) AddAPIProfile(name, baseURL, apiKey string, modelAliases map[string]string) (*models.APIProfile, error) {
	p, err := m.api.Add(name, baseURL, apiKey, modelAliases)
	if err != nil {
		return nil, err
	}
	m.broadcast(m.snapshotEvent())
	return p, nil
}

// DeleteAccount removes an account of either kind and drops it from the priority order.
func (m *Manager) DeleteAccount(id models.AccountID) error {
	switch id.Kind {
	case models.KindOAuth:
		if err := m.profiles.DeleteProfile(id.ID); err != nil {
			return err
		}
		m.forecast.Forget(id.ID)
		return nil
	case models.KindAPIKey:
		if err := m.api.Remove(id.ID); err != nil {
			return translateAPIError(err, id)
		}
		order := m.profiles.Data().AccountPriorityOrder
		if idx := models.PriorityIndex(order, id); idx >= 0 {
			if err := m.profiles.SetPriorityOrder(slices.Delete(order, idx, idx+1)); err != nil {
				return err
			}
		}
		m.logger.Info("api profile removed", "id", id.ID)
		m.broadcast(m.snapshotEvent())
		return nil
	default:
		return fmt.Errorf("%w: %s", ErrUnknownAccount, id)
	}
}

// Settings returns the auto-switch settings and the cross-kind priority order.
func (m *Manager) Settings() (models.AutoSwitchSettings, []models.AccountID) {
	data := m.profiles.Data()
	return data.AutoSwitch, data.AccountPriorityOrder
}

// Env returns the environment a spawned process needs to run as the account.
func (m *Manager) Env(id models.AccountID) (map[string]string, error) {
	switch id.Kind {
	case models.KindOAuth:
		if m.profiles.GetProfile(id.ID) == nil {
			return nil, fmt.Errorf("%w: %s", ErrUnknownAccount, id)
		}
		return m.profiles.ProfileEnv(id.ID), nil
	case models.KindAPIKey:
		if m.api.Get(id.ID) == nil {
			return nil, fmt.Errorf("%w: %s", ErrUnknownAccount, id)
		}
		return m.api.Env(id.ID), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownAccount, id)
	}
}

// UsageHistory returns the recorded usage of a profile within timeRange.
func (m *Manager) UsageHistory(profileID string, timeRange models.TimeRange) (models.UsageSeries, error) {
	return m.database.GetUsageSeries(profileID, timeRange.Since(m.now()))
}

// RecentSwitches returns the latest account switches, newest first.
func (m *Manager) RecentSwitches(limit int) ([]models.SwitchEvent, error) {
	return m.database.RecentSwitchEvents(limit)
}

// RecentRateLimits returns the latest rate-limit events of a profile, or of all profiles when
// profileID is empty.
func (m *Manager) RecentRateLimits(profileID string, limit int) ([]models.RateLimitRecord, error) {
	return m.database.RecentRateLimitEvents(profileID, limit)
}

// Projection forecasts when the session and weekly windows of an OAuth profile run out.
func (m *Manager) Projection(profileID string) (*models.Projection, error) {
	p := m.profiles.GetProfile(profileID)
	if p == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAccount, models.OAuthAccount(profileID))
	}
	return m.forecast.Calculate(profileID, p.Usage)
}

func (m *Manager) accountName(id models.AccountID) string {
	switch id.Kind {
	case models.KindOAuth:
		if p := m.profiles.GetProfile(id.ID); p != nil {
			return p.Name
		}
	case models.KindAPIKey:
		if p := m.api.Get(id.ID); p != nil {
			return p.Name
		}
	}
	return id.String()
}

func (m *Manager) notifyf(title, format string, args ...any) {
	if err := m.notify(title, fmt.Sprintf(format, args...)); err != nil {
		m.logger.Debug("desktop notification failed", "error", err)
	}
}

// translateAPIError maps API store misses onto ErrUnknownAccount.
func translateAPIError(err error, id models.AccountID) error {
	if errors.Is(err, apiprofiles.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrUnknownAccount, id)
	}
	return err
}

// IsNotFound reports whether err means an account or profile does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrUnknownAccount) || errors.Is(err, profiles.ErrNotFound) ||
		errors.Is(err, apiprofiles.ErrNotFound)
}
