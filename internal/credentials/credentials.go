// Package credentials inspects the provider's own credential files inside a profile's config directory.
package credentials

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/charmbracelet/x/ansi"
	"github.com/tidwall/gjson"
)

const (
	// CredentialsFile holds the OAuth credentials written by the provider CLI.
	CredentialsFile = ".credentials.json"
	// AccountFile holds the CLI state, including the logged-in account.
	AccountFile = ".claude.json"
)

// ErrNoCredentials is returned when a directory holds no recognizable credential file.
var ErrNoCredentials = errors.New("no credentials in config directory")

// Info is what the credential files reveal about a profile.
type Info struct {
	ExpiresAt        time.Time
	Email            string
	SubscriptionType string
	RateLimitTier    string
	HasAccessToken   bool
	HasAccount       bool
}

// Inspect reads the credential files of dir. Missing files are not errors on their own;
// ErrNoCredentials is returned only when neither file exists.
func Inspect(dir string) (Info, error) {
	var info Info

	creds, credErr := readJSON(filepath.Join(dir, CredentialsFile))
	account, accErr := readJSON(filepath.Join(dir, AccountFile))

	if credErr != nil && accErr != nil {
		if errors.Is(credErr, os.ErrNotExist) && errors.Is(accErr, os.ErrNotExist) {
			return info, ErrNoCredentials
		}
		if !errors.Is(credErr, os.ErrNotExist) {
			return info, credErr
		}
		return info, accErr
	}

	if credErr == nil {
		oauth := creds.Get("claudeAiOauth")
		info.HasAccessToken = oauth.Get("accessToken").String() != ""
		info.SubscriptionType = oauth.Get("subscriptionType").String()
		info.RateLimitTier = oauth.Get("rateLimitTier").String()
		if ms := oauth.Get("expiresAt").Int(); ms > 0 {
			info.ExpiresAt = time.UnixMilli(ms)
		}
	}

	if accErr == nil {
		oauthAccount := account.Get("oauthAccount")
		info.HasAccount = oauthAccount.Exists()
		info.Email = SanitizeEmail(oauthAccount.Get("emailAddress").String())
		if info.SubscriptionType == "" {
			info.SubscriptionType = oauthAccount.Get("subscriptionType").String()
		}
	}

	return info, nil
}

// HasCredentials reports whether dir contains credential-bearing files.
func HasCredentials(dir string) bool {
	if dir == "" {
		return false
	}
	info, err := Inspect(dir)
	if err != nil {
		return false
	}
	return info.HasAccessToken || info.Email != ""
}

// SanitizeEmail strips ANSI escape sequences, control characters and surrounding space.
// Emails captured from terminal output can carry these and must not be stored as-is.
func SanitizeEmail(s string) string {
	s = ansi.Strip(s)
	s = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
	return strings.TrimSpace(s)
}

func readJSON(path string) (gjson.Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return gjson.Result{}, err
	}
	if !gjson.ValidBytes(data) {
		return gjson.Result{}, fmt.Errorf("parse %s: invalid json", filepath.Base(path))
	}
	return gjson.ParseBytes(data), nil
}
