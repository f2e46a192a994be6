// Package profiles provides the profile store with persistence, file watching and change notifications.
package profiles

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/sync/singleflight"

	"github.com/j-veylop/agent-profiles/internal/credentials"
	"github.com/j-veylop/agent-profiles/internal/fileutil"
	"github.com/j-veylop/agent-profiles/internal/models"
	"github.com/j-veylop/agent-profiles/internal/ratelimit"
)

var (
	// ErrNotInitialized is returned by mutations issued before Initialize succeeded.
	ErrNotInitialized = errors.New("profile store not initialized")
	// ErrNotFound is returned for unknown profile ids.
	ErrNotFound = errors.New("profile not found")
	// ErrDefaultProfile is returned when deleting the default profile.
	ErrDefaultProfile = errors.New("the default profile cannot be deleted")
	// ErrLastProfile is returned when deleting the only remaining profile.
	ErrLastProfile = errors.New("the last profile cannot be deleted")
	// ErrEmptyName is returned for empty or whitespace-only names.
	ErrEmptyName = errors.New("profile name must not be empty")
	// ErrNoCipher is returned when a token is stored without a configured cipher.
	ErrNoCipher = errors.New("no token cipher configured")
	// ErrInvalidSettings is returned for out-of-range auto-switch settings.
	ErrInvalidSettings = errors.New("invalid auto-switch settings")
)

// TokenCipher encrypts tokens before they reach disk.
type TokenCipher interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

// TokenVault looks up a profile's token in the OS credential store.
type TokenVault interface {
	TokenFor(configDir string) (string, error)
}

// Inspector reads the credential files of a config directory.
type Inspector func(dir string) (credentials.Info, error)

// Event represents a profile store event.
type Event struct {
	Error   error
	Profile *models.Profile
	Type    EventType
}

// EventType defines the type of profile event.
type EventType int

const (
	EventProfilesLoaded EventType = iota
	EventProfilesChanged
	EventProfileAdded
	EventProfileUpdated
	EventProfileDeleted
	EventActiveProfileChanged
	EventRateLimited
	EventError
)

// State is the initialization state of the store.
type State int

const (
	StateUninitialized State = iota
	StateInitializing
	StateReady
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Store owns the profile data and mirrors it to a JSON file after every mutation.
type Store struct {
	mu    sync.RWMutex
	data  models.StoreData
	state State

	filePath         string
	defaultConfigDir string
	profilesDir      string
	lastWritten      []byte

	now       func() time.Time
	logger    *slog.Logger
	cipher    TokenCipher
	vault     TokenVault
	inspect   Inspector
	tracker   *ratelimit.Tracker
	switchDef *models.AutoSwitchSettings
	dirs      *dirLocks
	initGroup singleflight.Group

	watch         bool
	watcher       *fsnotify.Watcher
	eventChan     chan Event
	stopChan      chan struct{}
	stopOnce      sync.Once
	debounceMu    sync.Mutex
	debounceTimer *time.Timer
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// WithCipher sets the cipher used for stored tokens.
func WithCipher(c TokenCipher) Option {
	return func(s *Store) {
		s.cipher = c
	}
}

// WithVault sets the credential vault consulted by ProfileEnv.
func WithVault(v TokenVault) Option {
	return func(s *Store) {
		s.vault = v
	}
}

// WithInspector replaces the credential file reader used by the repair passes.
func WithInspector(fn Inspector) Option {
	return func(s *Store) {
		s.inspect = fn
	}
}

// WithDefaultConfigDir sets the config directory of the default profile.
func WithDefaultConfigDir(dir string) Option {
	return func(s *Store) {
		s.defaultConfigDir = dir
	}
}

// WithProfilesDir sets the parent of newly created and migrated profile directories.
func WithProfilesDir(dir string) Option {
	return func(s *Store) {
		s.profilesDir = dir
	}
}

// WithWatch enables reloading the store file when it is edited externally.
func WithWatch(enabled bool) Option {
	return func(s *Store) {
		s.watch = enabled
	}
}

// WithTracker sets the rate-limit tracker.
func WithTracker(t *ratelimit.Tracker) Option {
	return func(s *Store) {
		s.tracker = t
	}
}

// WithAutoSwitchDefaults sets the auto-switch settings of a newly created store and of
// store files that predate auto-switching.
func WithAutoSwitchDefaults(settings models.AutoSwitchSettings) Option {
	return func(s *Store) {
		s.switchDef = &settings
	}
}

// New creates a store backed by filePath. Nothing is read until Initialize.
func New(filePath string, opts ...Option) *Store {
	s := &Store{
		filePath:  filePath,
		now:       time.Now,
		logger:    slog.Default(),
		inspect:   credentials.Inspect,
		dirs:      newDirLocks(),
		eventChan: make(chan Event, 100),
		stopChan:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.defaultConfigDir == "" {
		s.defaultConfigDir = "~/.claude"
	}
	s.defaultConfigDir = ExpandHome(s.defaultConfigDir)
	if s.profilesDir == "" {
		s.profilesDir = filepath.Join(filepath.Dir(s.defaultConfigDir), ".claude-profiles")
	}
	s.profilesDir = ExpandHome(s.profilesDir)
	if s.tracker == nil {
		s.tracker = ratelimit.NewTracker(ratelimit.WithClock(s.now), ratelimit.WithLogger(s.logger))
	}

	s.data = s.defaultData()
	return s
}

func (s *Store) defaultData() models.StoreData {
	d := models.DefaultStoreData(s.defaultConfigDir, s.now())
	d.AutoSwitch = s.defaultAutoSwitch()
	return d
}

func (s *Store) defaultAutoSwitch() models.AutoSwitchSettings {
	if s.switchDef != nil {
		return *s.switchDef
	}
	return models.DefaultAutoSwitchSettings()
}

// Events returns the event channel for subscribing to profile changes.
func (s *Store) Events() <-chan Event {
	return s.eventChan
}

// State returns the initialization state.
func (s *Store) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Path returns the store file path.
func (s *Store) Path() string {
	return s.filePath
}

// Initialize loads the persisted store, runs the repair passes and starts watching the file.
// It is idempotent. Concurrent callers share a single in-flight attempt; a failed attempt leaves
// the store retryable.
func (s *Store) Initialize(ctx context.Context) error {
	if s.State() == StateReady {
		return nil
	}

	ch := s.initGroup.DoChan("initialize", func() (any, error) {
		return nil, s.initialize()
	})

	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Store) initialize() error {
	s.mu.Lock()
	if s.state == StateReady {
		s.mu.Unlock()
		return nil
	}
	s.state = StateInitializing
	s.mu.Unlock()

	data, raw, err := s.readFile()
	exists := err == nil
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		s.fail(err)
		return fmt.Errorf("failed to load profiles: %w", err)
	}
	if !exists {
		data = s.defaultData()
	}

	changed := s.normalize(&data)
	if s.repair(&data) {
		changed = true
	}

	s.mu.Lock()
	s.data = data
	s.lastWritten = raw
	if !exists || changed {
		if err := s.persistLocked(); err != nil {
			s.state = StateFailed
			s.mu.Unlock()
			return fmt.Errorf("failed to save profiles: %w", err)
		}
	}
	s.state = StateReady
	s.mu.Unlock()

	if s.watch && s.watcher == nil {
		if err := s.startWatcher(); err != nil {
			s.logger.Warn("profile store watch disabled", "error", err)
		}
	}

	s.logger.Info("profile store ready", "path", s.filePath, "profiles", len(data.Profiles))
	s.sendEvent(Event{Type: EventProfilesLoaded})
	return nil
}

func (s *Store) fail(err error) {
	s.mu.Lock()
	s.state = StateFailed
	s.mu.Unlock()
	s.logger.Error("profile store initialization failed", "error", err)
}

// readFile parses the store file on top of the defaults so that fields missing from older
// versions keep their default values.
func (s *Store) readFile() (models.StoreData, []byte, error) {
	raw, err := os.ReadFile(s.filePath)
	if err != nil {
		return models.StoreData{}, nil, err
	}

	data := models.StoreData{AutoSwitch: s.defaultAutoSwitch()}
	if err := json.Unmarshal(raw, &data); err != nil {
		return models.StoreData{}, nil, fmt.Errorf("failed to parse %s: %w", filepath.Base(s.filePath), err)
	}
	return data, raw, nil
}

// normalize restores the store invariants and reports whether anything changed.
func (s *Store) normalize(d *models.StoreData) bool {
	changed := false

	if d.Version < models.StoreVersion {
		s.logger.Info("upgrading profile store", "from", d.Version, "to", models.StoreVersion)
		d.Version = models.StoreVersion
		changed = true
	}

	if len(d.Profiles) == 0 {
		s.logger.Warn("profile store has no profiles, recreating default")
		d.Profiles = models.DefaultStoreData(s.defaultConfigDir, s.now()).Profiles
		changed = true
	}

	for i := range d.Profiles {
		p := &d.Profiles[i]
		if dir := ExpandHome(p.ConfigDir); dir != p.ConfigDir {
			p.ConfigDir = dir
			changed = true
		}
	}

	if d.DefaultIndex() < 0 {
		idx := d.Find(models.DefaultProfileID)
		if idx < 0 {
			idx = 0
		}
		d.Profiles[idx].IsDefault = true
		s.logger.Warn("no default profile, promoting", "profile", d.Profiles[idx].ID)
		changed = true
	}
	seenDefault := false
	for i := range d.Profiles {
		if !d.Profiles[i].IsDefault {
			continue
		}
		if seenDefault {
			d.Profiles[i].IsDefault = false
			changed = true
			continue
		}
		seenDefault = true
	}

	if d.Find(d.ActiveProfileID) < 0 {
		fallback := d.Profiles[d.DefaultIndex()].ID
		s.logger.Warn("active profile not found, falling back to default",
			"active", d.ActiveProfileID, "fallback", fallback)
		d.ActiveProfileID = fallback
		changed = true
	}

	if d.AutoSwitch.UsageCheckInterval <= 0 {
		d.AutoSwitch.UsageCheckInterval = models.DefaultAutoSwitchSettings().UsageCheckInterval
	}

	return changed
}

// persistLocked writes the full store atomically (must hold lock).
func (s *Store) persistLocked() error {
	data, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal profiles: %w", err)
	}

	if err := fileutil.WriteAtomic(s.filePath, data, 0o600); err != nil {
		return fmt.Errorf("failed to write profiles: %w", err)
	}

	s.lastWritten = data
	return nil
}

// mutate applies fn to the store and persists the result. When fn fails nothing is persisted and
// fn must have left the data untouched. When persisting fails the in-memory change is kept and
// the error is returned; the next successful persist makes it durable.
func (s *Store) mutate(fn func(d *models.StoreData) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateReady {
		return ErrNotInitialized
	}
	if err := fn(&s.data); err != nil {
		return err
	}
	if err := s.persistLocked(); err != nil {
		s.logger.Error("failed to persist profiles", "error", err)
		s.sendEvent(Event{Type: EventError, Error: err})
		return fmt.Errorf("failed to save profiles: %w", err)
	}
	return nil
}

// startWatcher starts the file system watcher.
func (s *Store) startWatcher() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	// Watch the directory to catch atomic replacements of the file.
	if err := watcher.Add(filepath.Dir(s.filePath)); err != nil {
		if closeErr := watcher.Close(); closeErr != nil {
			s.logger.Error("failed to close watcher", "error", closeErr)
		}
		return err
	}
	s.watcher = watcher

	go s.watchLoop()
	return nil
}

// watchLoop handles file system events with debouncing.
func (s *Store) watchLoop() {
	const debounceInterval = 100 * time.Millisecond

	for {
		select {
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != filepath.Base(s.filePath) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}

			s.debounceMu.Lock()
			if s.debounceTimer != nil {
				s.debounceTimer.Stop()
			}
			s.debounceTimer = time.AfterFunc(debounceInterval, s.handleFileChange)
			s.debounceMu.Unlock()

		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.sendEvent(Event{Type: EventError, Error: err})

		case <-s.stopChan:
			return
		}
	}
}

// handleFileChange reloads the store after an external edit. The store's own writes are skipped.
func (s *Store) handleFileChange() {
	raw, err := os.ReadFile(s.filePath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.sendEvent(Event{Type: EventError, Error: err})
		}
		return
	}

	s.mu.RLock()
	own := bytes.Equal(raw, s.lastWritten)
	s.mu.RUnlock()
	if own {
		return
	}

	data, _, err := s.readFile()
	if err != nil {
		s.logger.Warn("ignoring unreadable external edit", "error", err)
		s.sendEvent(Event{Type: EventError, Error: err})
		return
	}
	s.normalize(&data)

	s.mu.Lock()
	s.data = data
	s.lastWritten = raw
	s.mu.Unlock()

	s.logger.Debug("profile store reloaded after external change")
	s.sendEvent(Event{Type: EventProfilesChanged})
}

// sendEvent sends an event to the event channel non-blocking.
func (s *Store) sendEvent(event Event) {
	select {
	case s.eventChan <- event:
	default:
		// Channel full, drop oldest event
		select {
		case <-s.eventChan:
		default:
		}
		select {
		case s.eventChan <- event:
		default:
		}
	}
}

// Close stops the file watcher and cleans up resources.
func (s *Store) Close() error {
	var err error
	s.stopOnce.Do(func() {
		close(s.stopChan)

		s.debounceMu.Lock()
		if s.debounceTimer != nil {
			s.debounceTimer.Stop()
		}
		s.debounceMu.Unlock()

		if s.watcher != nil {
			err = s.watcher.Close()
		}
	})
	return err
}
