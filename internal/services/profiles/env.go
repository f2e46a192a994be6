package profiles

import (
	"errors"

	"github.com/j-veylop/agent-profiles/internal/vault"
)

const (
	// EnvConfigDir points the provider CLI at a profile's config directory.
	EnvConfigDir = "CLAUDE_CONFIG_DIR"
	// EnvOAuthToken hands the provider CLI an access token directly.
	EnvOAuthToken = "CLAUDE_CODE_OAUTH_TOKEN"
)

// ProfileEnv returns the environment a spawned process needs to run as the profile. The token is
// taken from the stored ciphertext, else from the credential vault; when neither yields one the map
// only carries the config directory and the process falls back to the directory's own login.
// Unknown ids yield an empty map.
func (s *Store) ProfileEnv(id string) map[string]string {
	env := map[string]string{}

	p := s.GetProfile(id)
	if p == nil {
		return env
	}

	dir := ExpandHome(p.ConfigDir)
	env[EnvConfigDir] = dir

	if token := s.resolveToken(id, dir, p.OAuthToken, p.HasValidToken(s.now())); token != "" {
		env[EnvOAuthToken] = token
	}
	return env
}

func (s *Store) resolveToken(id, dir, ciphertext string, valid bool) string {
	if valid && s.cipher != nil {
		token, err := s.cipher.Decrypt(ciphertext)
		if err == nil {
			return token
		}
		s.logger.Warn("stored token could not be decrypted", "profile", id, "error", err)
	}

	if s.vault == nil {
		return ""
	}

	unlock := s.dirs.lock(dir)
	token, err := s.vault.TokenFor(dir)
	unlock()
	if err != nil {
		if errors.Is(err, vault.ErrNotFound) {
			s.logger.Debug("no token in credential vault", "profile", id)
		} else {
			s.logger.Warn("credential vault lookup failed", "profile", id, "error", err)
		}
		return ""
	}
	return token
}
