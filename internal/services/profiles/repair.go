package profiles

import (
	"errors"
	"os"
	"path/filepath"
	"slices"

	"github.com/j-veylop/agent-profiles/internal/credentials"
	"github.com/j-veylop/agent-profiles/internal/models"
)

// repair runs the one-time startup passes and reports whether anything changed:
// shared-directory migration, email correction, subscription backfill and pruning of
// expired rate-limit events.
func (s *Store) repair(d *models.StoreData) bool {
	changed := s.migrateSharedDirs(d)

	for i := range d.Profiles {
		p := &d.Profiles[i]

		if clean := credentials.SanitizeEmail(p.Email); clean != p.Email {
			s.logger.Warn("sanitized stored email", "profile", p.ID)
			p.Email = clean
			changed = true
		}

		if s.tracker.Prune(p) > 0 {
			changed = true
		}

		if p.ConfigDir == "" {
			continue
		}
		info, err := s.inspectDir(p.ConfigDir)
		if err != nil {
			if !errors.Is(err, credentials.ErrNoCredentials) {
				s.logger.Debug("cannot inspect profile credentials", "profile", p.ID, "error", err)
			}
			continue
		}

		if info.Email != "" && info.Email != p.Email {
			s.logger.Info("correcting stored email from credentials", "profile", p.ID)
			p.Email = info.Email
			changed = true
		}
		if p.SubscriptionType == "" && info.SubscriptionType != "" {
			p.SubscriptionType = info.SubscriptionType
			changed = true
		}
		if p.RateLimitTier == "" && info.RateLimitTier != "" {
			p.RateLimitTier = info.RateLimitTier
			changed = true
		}
	}

	return changed
}

// migrateSharedDirs moves non-default profiles that point at the default profile's directory
// into their own directory. Their credentials stay behind, so they are flagged for re-login.
func (s *Store) migrateSharedDirs(d *models.StoreData) bool {
	idx := d.DefaultIndex()
	if idx < 0 {
		return false
	}
	shared := filepath.Clean(d.Profiles[idx].ConfigDir)

	changed := false
	for i := range d.Profiles {
		p := &d.Profiles[i]
		if p.IsDefault || filepath.Clean(p.ConfigDir) != shared {
			continue
		}

		dir := filepath.Join(s.profilesDir, p.ID)
		unlock := s.dirs.lock(dir)
		err := os.MkdirAll(dir, 0o700)
		unlock()
		if err != nil {
			s.logger.Error("failed to create isolated profile directory", "profile", p.ID, "error", err)
			continue
		}

		s.logger.Warn("profile shared the default config directory, migrated; re-authentication required",
			"profile", p.ID, "config_dir", dir)
		p.ConfigDir = dir
		p.Email = ""
		if !slices.Contains(d.MigratedProfileIDs, p.ID) {
			d.MigratedProfileIDs = append(d.MigratedProfileIDs, p.ID)
		}
		changed = true
	}
	return changed
}

func (s *Store) inspectDir(dir string) (credentials.Info, error) {
	unlock := s.dirs.lock(dir)
	defer unlock()
	return s.inspect(dir)
}
