// Package apiprofiles persists API-key accounts separately from the OAuth profile store.
package apiprofiles

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/j-veylop/agent-profiles/internal/fileutil"
	"github.com/j-veylop/agent-profiles/internal/models"
)

const (
	// EnvBaseURL points the provider CLI at a compatible endpoint.
	EnvBaseURL = "ANTHROPIC_BASE_URL"
	// EnvAPIKey hands the provider CLI an API key.
	EnvAPIKey = "ANTHROPIC_API_KEY"

	fileVersion = 1
)

var (
	// ErrNotFound is returned for unknown API profile ids.
	ErrNotFound = errors.New("api profile not found")
	// ErrEmptyName is returned when a profile is added without a name.
	ErrEmptyName = errors.New("api profile name must not be empty")
	// ErrEmptyKey is returned when a profile is added without a key.
	ErrEmptyKey = errors.New("api key must not be empty")
)

// Cipher encrypts keys before they reach disk.
type Cipher interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

// File is the on-disk layout of api-profiles.yaml.
type File struct {
	ActiveID string              `yaml:"active_id,omitempty"`
	Profiles []models.APIProfile `yaml:"profiles"`
	Version  int                 `yaml:"version"`
}

// Store manages API-key profiles.
type Store struct {
	mu     sync.RWMutex
	file   File
	path   string
	cipher Cipher
	logger *slog.Logger
	now    func() time.Time
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

// New loads the store at path. A missing file yields an empty store.
func New(path string, cipher Cipher, opts ...Option) (*Store, error) {
	s := &Store{
		path:   path,
		cipher: cipher,
		logger: slog.Default(),
		now:    time.Now,
		file:   File{Version: fileVersion},
	}
	for _, opt := range opts {
		opt(s)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return s, nil
		}
		return nil, fmt.Errorf("read api profiles: %w", err)
	}
	if err := yaml.Unmarshal(data, &s.file); err != nil {
		return nil, fmt.Errorf("parse api profiles: %w", err)
	}
	if s.file.ActiveID != "" && s.find(s.file.ActiveID) < 0 {
		s.logger.Warn("active api profile not found, clearing", "id", s.file.ActiveID)
		s.file.ActiveID = ""
	}
	return s, nil
}

// List returns a copy of all API profiles.
func (s *Store) List() []models.APIProfile {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.APIProfile, len(s.file.Profiles))
	for i := range s.file.Profiles {
		out[i] = s.file.Profiles[i].Clone()
	}
	return out
}

// Get returns a copy of the profile, or nil.
func (s *Store) Get(id string) *models.APIProfile {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx := s.find(id)
	if idx < 0 {
		return nil
	}
	p := s.file.Profiles[idx].Clone()
	return &p
}

// Add stores a new profile with its key encrypted and returns it.
func (s *Store) Add(name, baseURL, apiKey string, modelAliases map[string]string) (*models.APIProfile, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrEmptyName
	}
	if apiKey == "" {
		return nil, ErrEmptyKey
	}

	encrypted, err := s.cipher.Encrypt(apiKey)
	if err != nil {
		return nil, fmt.Errorf("encrypt api key: %w", err)
	}

	p := models.APIProfile{
		ID:        uuid.NewString(),
		Name:      name,
		BaseURL:   strings.TrimRight(baseURL, "/"),
		APIKey:    encrypted,
		Models:    modelAliases,
		CreatedAt: s.now(),
	}

	err = s.mutate(func(f *File) error {
		f.Profiles = append(f.Profiles, p)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("api profile added", "id", p.ID, "name", p.Name)
	clone := p.Clone()
	return &clone, nil
}

// Remove deletes a profile. Removing the active profile clears the active pointer.
func (s *Store) Remove(id string) error {
	return s.mutate(func(f *File) error {
		idx := s.find(id)
		if idx < 0 {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		f.Profiles = slices.Delete(f.Profiles, idx, idx+1)
		if f.ActiveID == id {
			f.ActiveID = ""
		}
		return nil
	})
}

// SetActive marks a profile active. An empty id deactivates API profiles.
func (s *Store) SetActive(id string) error {
	return s.mutate(func(f *File) error {
		if id == "" {
			f.ActiveID = ""
			return nil
		}
		idx := s.find(id)
		if idx < 0 {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		f.ActiveID = id
		f.Profiles[idx].LastUsedAt = s.now()
		return nil
	})
}

// ActiveID returns the id of the active profile, or "".
func (s *Store) ActiveID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.file.ActiveID
}

// Active returns the active profile, or nil.
func (s *Store) Active() *models.APIProfile {
	return s.Get(s.ActiveID())
}

// MarkRateLimited records that the endpoint refused the key until until.
func (s *Store) MarkRateLimited(id string, until time.Time) error {
	return s.mutate(func(f *File) error {
		idx := s.find(id)
		if idx < 0 {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		f.Profiles[idx].RateLimitedUntil = &until
		return nil
	})
}

// ClearRateLimit drops the cooldown of a profile.
func (s *Store) ClearRateLimit(id string) error {
	return s.mutate(func(f *File) error {
		idx := s.find(id)
		if idx < 0 {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		f.Profiles[idx].RateLimitedUntil = nil
		return nil
	})
}

// Env returns the environment a spawned process needs to use the profile. A key that cannot be
// decrypted is logged and left out. Unknown ids yield an empty map.
func (s *Store) Env(id string) map[string]string {
	env := map[string]string{}

	p := s.Get(id)
	if p == nil {
		return env
	}
	if p.BaseURL != "" {
		env[EnvBaseURL] = p.BaseURL
	}
	key, err := s.cipher.Decrypt(p.APIKey)
	if err != nil {
		s.logger.Warn("api key could not be decrypted", "id", id, "error", err)
		return env
	}
	env[EnvAPIKey] = key
	return env
}

// find returns the index of id (must hold lock).
func (s *Store) find(id string) int {
	return slices.IndexFunc(s.file.Profiles, func(p models.APIProfile) bool {
		return p.ID == id
	})
}

// mutate applies fn and saves. A failed save keeps the in-memory change.
func (s *Store) mutate(fn func(f *File) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := fn(&s.file); err != nil {
		return err
	}
	if err := s.saveLocked(); err != nil {
		s.logger.Error("failed to save api profiles", "error", err)
		return err
	}
	return nil
}

func (s *Store) saveLocked() error {
	s.file.Version = fileVersion
	data, err := yaml.Marshal(&s.file)
	if err != nil {
		return fmt.Errorf("marshal api profiles: %w", err)
	}

	if err := fileutil.WriteAtomic(s.path, data, 0o600); err != nil {
		return fmt.Errorf("write api profiles: %w", err)
	}
	return nil
}
