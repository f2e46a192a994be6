package profiles

import (
	"fmt"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/j-veylop/agent-profiles/internal/models"
	"github.com/j-veylop/agent-profiles/internal/tokencipher"
	"github.com/j-veylop/agent-profiles/internal/usage"
)

// Profiles returns a copy of all profiles.
func (s *Store) Profiles() []models.Profile {
	s.mu.RLock()
	defer s.mu.RUnlock()

	profiles := make([]models.Profile, len(s.data.Profiles))
	for i := range s.data.Profiles {
		profiles[i] = s.data.Profiles[i].Clone()
	}
	return profiles
}

// Data returns a copy of the full store.
func (s *Store) Data() models.StoreData {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.Clone()
}

// GetProfile returns a copy of the profile with id, or nil.
func (s *Store) GetProfile(id string) *models.Profile {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx := s.data.Find(id)
	if idx < 0 {
		return nil
	}
	p := s.data.Profiles[idx].Clone()
	return &p
}

// GetActiveProfile returns the active profile. A stale pointer falls back to the default
// profile, then to the first one.
func (s *Store) GetActiveProfile() *models.Profile {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if idx := s.data.Find(s.data.ActiveProfileID); idx >= 0 {
		p := s.data.Profiles[idx].Clone()
		return &p
	}

	if idx := s.data.DefaultIndex(); idx >= 0 {
		s.logger.Warn("active profile not found, using default",
			"active", s.data.ActiveProfileID, "fallback", s.data.Profiles[idx].ID)
		p := s.data.Profiles[idx].Clone()
		return &p
	}

	if len(s.data.Profiles) > 0 {
		s.logger.Warn("active profile not found, using first profile",
			"active", s.data.ActiveProfileID, "fallback", s.data.Profiles[0].ID)
		p := s.data.Profiles[0].Clone()
		return &p
	}

	return nil
}

// SaveProfile inserts or replaces a profile. A profile without an id gets one derived from its
// name, and one without a config directory gets an isolated directory under the profiles dir.
// Marking a profile default clears the flag on every other profile; the default flag can only
// move, never disappear.
func (s *Store) SaveProfile(profile models.Profile) error {
	_, err := s.saveProfile(profile)
	return err
}

func (s *Store) saveProfile(profile models.Profile) (models.Profile, error) {
	profile.Name = strings.TrimSpace(profile.Name)
	if profile.Name == "" {
		return models.Profile{}, ErrEmptyName
	}
	if profile.OAuthToken != "" && !tokencipher.IsEncrypted(profile.OAuthToken) {
		if s.cipher == nil {
			return models.Profile{}, ErrNoCipher
		}
		ciphertext, err := s.cipher.Encrypt(profile.OAuthToken)
		if err != nil {
			return models.Profile{}, fmt.Errorf("failed to encrypt token: %w", err)
		}
		profile.OAuthToken = ciphertext
		profile.TokenCreatedAt = s.now()
	}

	var saved models.Profile
	var added bool
	err := s.mutate(func(d *models.StoreData) error {
		if profile.ID == "" {
			profile.ID = uniqueID(d, models.ProfileIDFromName(profile.Name))
		}
		if profile.ConfigDir == "" {
			profile.ConfigDir = filepath.Join(s.profilesDir, profile.ID)
		}
		profile.ConfigDir = ExpandHome(profile.ConfigDir)

		idx := d.Find(profile.ID)
		if idx < 0 {
			added = true
			if profile.CreatedAt.IsZero() {
				profile.CreatedAt = s.now()
			}
			d.Profiles = append(d.Profiles, profile)
			idx = len(d.Profiles) - 1
		} else {
			existing := &d.Profiles[idx]
			if profile.CreatedAt.IsZero() {
				profile.CreatedAt = existing.CreatedAt
			}
			if existing.IsDefault {
				profile.IsDefault = true
			}
			d.Profiles[idx] = profile
		}

		if profile.IsDefault {
			for i := range d.Profiles {
				d.Profiles[i].IsDefault = i == idx
			}
		}
		saved = d.Profiles[idx].Clone()
		return nil
	})
	if err != nil {
		return models.Profile{}, err
	}

	event := Event{Type: EventProfileUpdated, Profile: &saved}
	if added {
		s.logger.Info("profile added", "profile", saved.ID, "config_dir", saved.ConfigDir)
		event.Type = EventProfileAdded
	}
	s.sendEvent(event)
	return saved, nil
}

// AddProfile creates a profile named name with a fresh id. An empty configDir gets an isolated
// directory under the profiles dir.
func (s *Store) AddProfile(name, configDir string) (*models.Profile, error) {
	saved, err := s.saveProfile(models.Profile{Name: name, ConfigDir: configDir})
	if err != nil {
		return nil, err
	}
	return &saved, nil
}

// DeleteProfile removes a profile. The default profile and the last profile cannot be deleted.
// Deleting the active profile makes the default profile active.
func (s *Store) DeleteProfile(id string) error {
	var deleted models.Profile
	err := s.mutate(func(d *models.StoreData) error {
		idx := d.Find(id)
		if idx < 0 {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		if d.Profiles[idx].IsDefault {
			return ErrDefaultProfile
		}
		if len(d.Profiles) == 1 {
			return ErrLastProfile
		}

		deleted = d.Profiles[idx]
		d.Profiles = slices.Delete(d.Profiles, idx, idx+1)
		d.AccountPriorityOrder = slices.DeleteFunc(d.AccountPriorityOrder, func(a models.AccountID) bool {
			return a == models.OAuthAccount(id)
		})
		d.MigratedProfileIDs = slices.DeleteFunc(d.MigratedProfileIDs, func(m string) bool {
			return m == id
		})

		if d.ActiveProfileID == id {
			d.ActiveProfileID = d.Profiles[d.DefaultIndex()].ID
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info("profile deleted", "profile", id)
	s.sendEvent(Event{Type: EventProfileDeleted, Profile: &deleted})
	return nil
}

// RenameProfile changes the display name. The id stays stable.
func (s *Store) RenameProfile(id, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrEmptyName
	}
	return s.update(id, func(p *models.Profile) error {
		p.Name = name
		return nil
	})
}

// SetActiveProfile makes id the active profile and stamps its last use.
func (s *Store) SetActiveProfile(id string) error {
	var active models.Profile
	err := s.mutate(func(d *models.StoreData) error {
		idx := d.Find(id)
		if idx < 0 {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		d.ActiveProfileID = id
		d.Profiles[idx].LastUsedAt = s.now()
		active = d.Profiles[idx].Clone()
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info("active profile changed", "profile", id)
	s.sendEvent(Event{Type: EventActiveProfileChanged, Profile: &active})
	return nil
}

// SetToken encrypts plaintext and stores it as the profile's OAuth token.
func (s *Store) SetToken(id, plaintext string) error {
	if s.cipher == nil {
		return ErrNoCipher
	}
	ciphertext, err := s.cipher.Encrypt(plaintext)
	if err != nil {
		return fmt.Errorf("failed to encrypt token: %w", err)
	}

	return s.updateData(id, func(d *models.StoreData, p *models.Profile) error {
		p.OAuthToken = ciphertext
		p.TokenCreatedAt = s.now()
		d.MigratedProfileIDs = slices.DeleteFunc(d.MigratedProfileIDs, func(m string) bool {
			return m == id
		})
		return nil
	})
}

// ClearToken removes the profile's stored token.
func (s *Store) ClearToken(id string) error {
	return s.update(id, func(p *models.Profile) error {
		p.OAuthToken = ""
		p.TokenCreatedAt = time.Time{}
		return nil
	})
}

// UpdateUsage merges a usage reading into the profile's snapshot.
func (s *Store) UpdateUsage(id string, reading usage.Reading) (models.UsageSnapshot, error) {
	var snapshot models.UsageSnapshot
	err := s.update(id, func(p *models.Profile) error {
		snapshot = usage.Apply(p.Usage, reading, s.now())
		next := snapshot.Clone()
		p.Usage = &next
		return nil
	})
	return snapshot, err
}

// RecordRateLimit records a rate-limit response for the profile.
func (s *Store) RecordRateLimit(id, resetText string) (models.RateLimitEvent, error) {
	var event models.RateLimitEvent
	var limited models.Profile
	err := s.mutate(func(d *models.StoreData) error {
		idx := d.Find(id)
		if idx < 0 {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		event = s.tracker.Record(&d.Profiles[idx], resetText)
		limited = d.Profiles[idx].Clone()
		return nil
	})
	if err != nil {
		return event, err
	}

	s.sendEvent(Event{Type: EventRateLimited, Profile: &limited})
	return event, nil
}

// ClearRateLimits drops every rate-limit event of the profile.
func (s *Store) ClearRateLimits(id string) error {
	return s.update(id, func(p *models.Profile) error {
		s.tracker.Clear(p)
		return nil
	})
}

// SetAutoSwitch replaces the auto-switch settings.
func (s *Store) SetAutoSwitch(settings models.AutoSwitchSettings) error {
	if settings.SessionThreshold <= 0 || settings.SessionThreshold > 100 ||
		settings.WeeklyThreshold <= 0 || settings.WeeklyThreshold > 100 {
		return fmt.Errorf("%w: thresholds must be within (0, 100]", ErrInvalidSettings)
	}
	if settings.UsageCheckInterval <= 0 {
		settings.UsageCheckInterval = models.DefaultAutoSwitchSettings().UsageCheckInterval
	}

	err := s.mutate(func(d *models.StoreData) error {
		d.AutoSwitch = settings
		return nil
	})
	if err != nil {
		return err
	}
	s.sendEvent(Event{Type: EventProfilesChanged})
	return nil
}

// SetPriorityOrder replaces the account priority order. Duplicates are dropped and OAuth entries
// must name existing profiles.
func (s *Store) SetPriorityOrder(order []models.AccountID) error {
	err := s.mutate(func(d *models.StoreData) error {
		seen := make(map[models.AccountID]bool, len(order))
		cleaned := make([]models.AccountID, 0, len(order))
		for _, id := range order {
			if id.IsZero() || seen[id] {
				continue
			}
			if id.Kind == models.KindOAuth && d.Find(id.ID) < 0 {
				return fmt.Errorf("%w: %s", ErrNotFound, id.ID)
			}
			seen[id] = true
			cleaned = append(cleaned, id)
		}
		d.AccountPriorityOrder = cleaned
		return nil
	})
	if err != nil {
		return err
	}
	s.sendEvent(Event{Type: EventProfilesChanged})
	return nil
}

// NeedsReauth reports whether the profile was migrated to its own directory and must log in again.
func (s *Store) NeedsReauth(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Contains(s.data.MigratedProfileIDs, id)
}

// MarkReauthenticated clears the re-authentication flag of the profile.
func (s *Store) MarkReauthenticated(id string) error {
	return s.updateData(id, func(d *models.StoreData, _ *models.Profile) error {
		d.MigratedProfileIDs = slices.DeleteFunc(d.MigratedProfileIDs, func(m string) bool {
			return m == id
		})
		return nil
	})
}

func (s *Store) update(id string, fn func(p *models.Profile) error) error {
	return s.updateData(id, func(_ *models.StoreData, p *models.Profile) error {
		return fn(p)
	})
}

// updateData runs fn on the profile with id and emits an update event.
func (s *Store) updateData(id string, fn func(d *models.StoreData, p *models.Profile) error) error {
	var updated models.Profile
	err := s.mutate(func(d *models.StoreData) error {
		idx := d.Find(id)
		if idx < 0 {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		if err := fn(d, &d.Profiles[idx]); err != nil {
			return err
		}
		updated = d.Profiles[idx].Clone()
		return nil
	})
	if err != nil {
		return err
	}

	s.sendEvent(Event{Type: EventProfileUpdated, Profile: &updated})
	return nil
}

// uniqueID appends a numeric suffix to base until no profile uses it.
func uniqueID(d *models.StoreData, base string) string {
	id := base
	for n := 2; d.Find(id) >= 0; n++ {
		id = base + "-" + strconv.Itoa(n)
	}
	return id
}
