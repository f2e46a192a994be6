// Package services composes the profile stores, history database and availability logic.
package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/gen2brain/beeep"

	"github.com/j-veylop/agent-profiles/internal/availability"
	"github.com/j-veylop/agent-profiles/internal/config"
	"github.com/j-veylop/agent-profiles/internal/credentials"
	"github.com/j-veylop/agent-profiles/internal/db"
	"github.com/j-veylop/agent-profiles/internal/models"
	"github.com/j-veylop/agent-profiles/internal/ratelimit"
	"github.com/j-veylop/agent-profiles/internal/services/apiprofiles"
	"github.com/j-veylop/agent-profiles/internal/services/profiles"
	"github.com/j-veylop/agent-profiles/internal/services/projection"
	"github.com/j-veylop/agent-profiles/internal/tokencipher"
	"github.com/j-veylop/agent-profiles/internal/unified"
	"github.com/j-veylop/agent-profiles/internal/vault"
)

type (
	// ProfilesChangedEvent is emitted when the set of accounts or the active one changes.
	ProfilesChangedEvent struct {
		Active   models.AccountID
		Accounts []unified.Account
	}

	// UsageUpdatedEvent is emitted after a usage report was applied to a profile.
	UsageUpdatedEvent struct {
		ProfileID string
		Usage     models.UsageSnapshot
	}

	// RateLimitedEvent is emitted when an account hit a rate limit.
	RateLimitedEvent struct {
		ResetAt time.Time
		Account models.AccountID
		Type    models.RateLimitType
	}

	// RecommendationEvent is emitted when a switch away from the active profile becomes advisable.
	RecommendationEvent struct {
		Recommendation availability.Recommendation
	}

	// SwitchedEvent is emitted after the active account changed.
	SwitchedEvent struct {
		Switch models.SwitchEvent
	}

	// ErrorEvent is emitted when an error occurs in any service.
	ErrorEvent struct {
		Error   error
		Service string
	}
)

// ServiceEvent is the interface implemented by all service events.
type ServiceEvent interface {
	isServiceEvent()
}

func (ProfilesChangedEvent) isServiceEvent() {}
func (UsageUpdatedEvent) isServiceEvent()    {}
func (RateLimitedEvent) isServiceEvent()     {}
func (RecommendationEvent) isServiceEvent()  {}
func (SwitchedEvent) isServiceEvent()        {}
func (ErrorEvent) isServiceEvent()           {}

// Notifier shows a desktop notification.
type Notifier func(title, message string) error

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger passed to every component.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithClock sets the time source passed to every component.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// WithNotifier replaces desktop notifications.
func WithNotifier(n Notifier) Option {
	return func(m *Manager) {
		m.notify = n
	}
}

// WithCredentialChecker replaces the credential file check used for availability.
func WithCredentialChecker(fn availability.CredentialChecker) Option {
	return func(m *Manager) {
		m.hasCredentials = fn
	}
}

// Manager orchestrates services and event routing.
type Manager struct {
	mu          sync.RWMutex
	subscribers []chan ServiceEvent
	// recommended remembers which profiles already triggered a switch notification.
	recommended map[string]bool

	cfg      *config.Config
	profiles *profiles.Store
	api      *apiprofiles.Store
	database *db.DB
	forecast *projection.Service
	vault    *vault.Vault
	cipher   *tokencipher.Cipher
	tracker  *ratelimit.Tracker
	scorer   *availability.Scorer
	resolver *unified.Resolver

	logger         *slog.Logger
	now            func() time.Time
	notify         Notifier
	hasCredentials availability.CredentialChecker

	stopChan  chan struct{}
	stopOnce  sync.Once
	routeDone chan struct{}
}

// NewManager builds every component from cfg and initializes the profile store.
func NewManager(ctx context.Context, cfg *config.Config, opts ...Option) (*Manager, error) {
	m := &Manager{
		cfg:         cfg,
		logger:      slog.Default(),
		now:         time.Now,
		recommended: make(map[string]bool),
		stopChan:    make(chan struct{}),
		routeDone:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.notify == nil {
		m.notify = desktopNotifier(cfg.Notifications)
	}

	m.vault = vault.New(cfg.VaultService)

	key, err := tokencipher.LoadOrCreateKey(m.vault, cfg.KeyPath, m.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to load token key: %w", err)
	}
	if m.cipher, err = tokencipher.New(key); err != nil {
		return nil, err
	}

	m.tracker = ratelimit.NewTracker(ratelimit.WithClock(m.now), ratelimit.WithLogger(m.logger))

	checker := m.hasCredentials
	if checker == nil {
		checker = credentials.HasCredentials
	}
	// Credential files are read under the directory lock so a concurrent login cannot be seen
	// half written.
	lockedChecker := func(configDir string) bool {
		unlock := m.profiles.LockConfigDir(configDir)
		defer unlock()
		return checker(configDir)
	}
	m.scorer = availability.NewScorer(
		availability.WithClock(m.now),
		availability.WithLogger(m.logger),
		availability.WithCredentialChecker(lockedChecker),
	)
	m.resolver = unified.NewResolver(m.scorer)

	m.profiles = profiles.New(cfg.ProfilesPath,
		profiles.WithLogger(m.logger),
		profiles.WithClock(m.now),
		profiles.WithCipher(m.cipher),
		profiles.WithVault(m.vault),
		profiles.WithTracker(m.tracker),
		profiles.WithDefaultConfigDir(cfg.DefaultConfigDir),
		profiles.WithProfilesDir(cfg.ProfilesDir),
		profiles.WithWatch(cfg.WatchStore),
		profiles.WithAutoSwitchDefaults(autoSwitchDefaults(cfg)),
	)
	if err := m.profiles.Initialize(ctx); err != nil {
		_ = m.profiles.Close()
		return nil, err
	}

	m.api, err = apiprofiles.New(cfg.APIProfilesPath, m.cipher,
		apiprofiles.WithLogger(m.logger), apiprofiles.WithClock(m.now))
	if err != nil {
		_ = m.profiles.Close()
		return nil, err
	}

	m.database, err = db.New(cfg.DatabasePath)
	if err != nil {
		_ = m.profiles.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	m.forecast = projection.New(m.database, projection.WithClock(m.now), projection.WithLogger(m.logger))

	go m.routeEvents()

	return m, nil
}

func autoSwitchDefaults(cfg *config.Config) models.AutoSwitchSettings {
	settings := models.DefaultAutoSwitchSettings()
	settings.SessionThreshold = cfg.SessionThreshold
	settings.WeeklyThreshold = cfg.WeeklyThreshold
	if cfg.UsageCheckInterval > 0 {
		settings.UsageCheckInterval = cfg.UsageCheckInterval
	}
	return settings
}

func desktopNotifier(enabled bool) Notifier {
	if !enabled {
		return func(string, string) error { return nil }
	}
	return func(title, message string) error {
		return beeep.Notify(title, message, "")
	}
}

// routeEvents converts profile store events and broadcasts them to subscribers.
func (m *Manager) routeEvents() {
	defer close(m.routeDone)
	for {
		select {
		case event := <-m.profiles.Events():
			m.handleProfileEvent(event)
		case <-m.stopChan:
			return
		}
	}
}

func (m *Manager) handleProfileEvent(event profiles.Event) {
	switch event.Type {
	case profiles.EventProfilesLoaded, profiles.EventProfilesChanged,
		profiles.EventProfileAdded, profiles.EventProfileUpdated,
		profiles.EventProfileDeleted, profiles.EventActiveProfileChanged,
		profiles.EventRateLimited:

		m.broadcast(m.snapshotEvent())

	case profiles.EventError:
		m.broadcast(ErrorEvent{
			Service: "profiles",
			Error:   event.Error,
		})
	}
}

func (m *Manager) snapshotEvent() ProfilesChangedEvent {
	return ProfilesChangedEvent{
		Active:   m.ActiveAccount(),
		Accounts: m.Accounts(),
	}
}

// broadcast sends an event to all subscribers. Full subscriber channels miss the event.
func (m *Manager) broadcast(event ServiceEvent) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, sub := range m.subscribers {
		select {
		case sub <- event:
		default:
			m.logger.Debug("subscriber channel full, event dropped", "event", fmt.Sprintf("%T", event))
		}
	}
}

// Subscribe creates a channel for receiving service events.
// Returns a tea.Cmd that can be used in Bubble Tea's Init or Update.
func (m *Manager) Subscribe() (chan ServiceEvent, tea.Cmd) {
	ch := make(chan ServiceEvent, 50)

	m.mu.Lock()
	m.subscribers = append(m.subscribers, ch)
	m.mu.Unlock()

	return ch, WaitForEvent(ch)
}

// WaitForEvent returns a tea.Cmd that waits for the next event on a channel.
// A closed channel yields a nil message.
func WaitForEvent(ch <-chan ServiceEvent) tea.Cmd {
	return func() tea.Msg {
		event, ok := <-ch
		if !ok {
			return nil
		}
		return event
	}
}

// Unsubscribe removes a subscriber channel and closes it.
func (m *Manager) Unsubscribe(ch chan ServiceEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, sub := range m.subscribers {
		if sub == ch {
			m.subscribers = append(m.subscribers[:i], m.subscribers[i+1:]...)
			close(ch)
			break
		}
	}
}

// Profiles returns the OAuth profile store.
func (m *Manager) Profiles() *profiles.Store {
	return m.profiles
}

// APIProfiles returns the API-key profile store.
func (m *Manager) APIProfiles() *apiprofiles.Store {
	return m.api
}

// Database returns the history database.
func (m *Manager) Database() *db.DB {
	return m.database
}

// Vault returns the credential vault.
func (m *Manager) Vault() *vault.Vault {
	return m.vault
}

// Scorer returns the availability scorer.
func (m *Manager) Scorer() *availability.Scorer {
	return m.scorer
}

// Close stops event routing and closes every component. It is safe to call more than once.
func (m *Manager) Close() error {
	var errs []error
	m.stopOnce.Do(func() {
		close(m.stopChan)
		<-m.routeDone

		m.mu.Lock()
		for _, sub := range m.subscribers {
			close(sub)
		}
		m.subscribers = nil
		m.mu.Unlock()

		if err := m.profiles.Close(); err != nil {
			errs = append(errs, err)
		}
		if m.database != nil {
			if err := m.database.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	})
	return errors.Join(errs...)
}
