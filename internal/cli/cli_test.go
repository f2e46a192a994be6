package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"

	"github.com/j-veylop/agent-profiles/internal/config"
	"github.com/j-veylop/agent-profiles/internal/logger"
	"github.com/j-veylop/agent-profiles/internal/services"
)

func newTestDeps(t *testing.T) *deps {
	t.Helper()
	keyring.MockInit()

	dir := t.TempDir()
	cfg := &config.Config{
		DataDir:            dir,
		ProfilesPath:       filepath.Join(dir, "profiles.json"),
		APIProfilesPath:    filepath.Join(dir, "api-profiles.yaml"),
		DatabasePath:       filepath.Join(dir, "history.db"),
		KeyPath:            filepath.Join(dir, "token.key"),
		ProfilesDir:        filepath.Join(dir, "profiles"),
		DefaultConfigDir:   filepath.Join(dir, "claude"),
		VaultService:       "agent-profiles-cli-test",
		LogLevel:           "error",
		SessionThreshold:   95,
		WeeklyThreshold:    99,
		UsageCheckInterval: 30 * time.Second,
	}

	return &deps{
		loadConfig: func() (*config.Config, error) { return cfg, nil },
		openManager: func(ctx context.Context, cfg *config.Config) (*services.Manager, error) {
			return services.NewManager(ctx, cfg,
				services.WithLogger(logger.Discard()),
				services.WithNotifier(func(string, string) error { return nil }),
				services.WithCredentialChecker(func(string) bool { return true }),
			)
		},
	}
}

// run executes one command line against d with stdin as input.
func run(t *testing.T, d *deps, stdin string, args ...string) (string, error) {
	t.Helper()
	d.stdin = strings.NewReader(stdin)
	d.jsonOut = false

	cmd := newRootCmd(d)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := d.execute(cmd)
	return out.String(), err
}

func mustRun(t *testing.T, d *deps, args ...string) string {
	t.Helper()
	out, err := run(t, d, "", args...)
	require.NoError(t, err, out)
	return out
}

func TestListShowsDefaultProfile(t *testing.T) {
	d := newTestDeps(t)

	out := mustRun(t, d, "list")
	assert.Contains(t, out, "oauth-default")
	assert.Contains(t, out, "Default")

	var entries []listEntry
	require.NoError(t, json.Unmarshal([]byte(mustRun(t, d, "list", "--json")), &entries))
	require.Len(t, entries, 1)
	assert.True(t, entries[0].Active)
	assert.Equal(t, "oauth", entries[0].Kind)
}

func TestAddUseAndDelete(t *testing.T) {
	d := newTestDeps(t)

	out := mustRun(t, d, "add", "Side Project")
	assert.Contains(t, out, "side-project")

	mustRun(t, d, "use", "side-project")
	env := mustRun(t, d, "env")
	assert.Contains(t, env, "export CLAUDE_CONFIG_DIR=")
	assert.Contains(t, env, filepath.Join("profiles", "side-project"))

	mustRun(t, d, "rename", "side-project", "Weekend")
	assert.Contains(t, mustRun(t, d, "list"), "Weekend")

	mustRun(t, d, "use", "default")
	mustRun(t, d, "delete", "side-project")
	assert.NotContains(t, mustRun(t, d, "list"), "Weekend")
}

func TestUnknownAccount(t *testing.T) {
	d := newTestDeps(t)

	_, err := run(t, d, "", "use", "nobody")
	assert.ErrorIs(t, err, services.ErrUnknownAccount)
}

func TestAPIProfiles(t *testing.T) {
	d := newTestDeps(t)

	out, err := run(t, d, "sk-test-123\n", "api", "add", "Proxy", "--base-url", "https://proxy.test", "--model", "opus=claude-opus")
	require.NoError(t, err, out)
	assert.Contains(t, out, "api-proxy")

	list := mustRun(t, d, "api", "list")
	assert.Contains(t, list, "https://proxy.test")
	assert.NotContains(t, list, "sk-test-123")

	mustRun(t, d, "use", "api-proxy")
	env := mustRun(t, d, "env")
	assert.Contains(t, env, "sk-test-123")
	assert.Contains(t, env, "https://proxy.test")

	mustRun(t, d, "priority", "api-proxy", "default")
	assert.Contains(t, mustRun(t, d, "priority"), "1. api-proxy")

	mustRun(t, d, "use", "default")
	mustRun(t, d, "api", "remove", "proxy")
	assert.Contains(t, mustRun(t, d, "api", "list"), "No API profiles")
	assert.Contains(t, mustRun(t, d, "priority"), "1. oauth-default")
}

func TestAPIAddRequiresKey(t *testing.T) {
	d := newTestDeps(t)

	_, err := run(t, d, "", "api", "add", "Proxy")
	assert.ErrorIs(t, err, errEmptySecret)
}

func TestRateLimitAndBest(t *testing.T) {
	d := newTestDeps(t)
	mustRun(t, d, "add", "Backup")

	out := mustRun(t, d, "limit", "default", "resets", "in", "2h")
	assert.Contains(t, out, "rate-limited until")
	assert.Contains(t, mustRun(t, d, "list"), "limited until")

	assert.Contains(t, mustRun(t, d, "best", "--dry-run"), "oauth-backup")
	assert.Contains(t, mustRun(t, d, "best"), "Backup")

	mustRun(t, d, "clear-limit", "default")
	assert.NotContains(t, mustRun(t, d, "list"), "limited until")
}

func TestUsageAndRecommend(t *testing.T) {
	d := newTestDeps(t)
	mustRun(t, d, "add", "Backup")
	mustRun(t, d, "auto-switch", "--enable", "--session", "80")

	out := mustRun(t, d, "usage", "default", "--session", "90", "--weekly", "20")
	assert.Contains(t, out, "session 90%")

	rec := mustRun(t, d, "recommend")
	assert.Contains(t, rec, "Switch recommended")
	assert.Contains(t, rec, "backup")

	piped, err := run(t, d, "Current session\n12% used\n\nCurrent week (all models)\n30% used\n", "usage", "backup")
	require.NoError(t, err, piped)
	assert.Contains(t, piped, "session 12%, weekly 30%")

	_, err = run(t, d, "nothing useful", "usage", "backup")
	assert.ErrorIs(t, err, services.ErrUnrecognizedUsage)
}

func TestForecast(t *testing.T) {
	d := newTestDeps(t)
	mustRun(t, d, "usage", "default", "--session", "40", "--weekly", "10")

	out := mustRun(t, d, "forecast", "default")
	assert.Contains(t, out, "session")
	assert.Contains(t, out, "weekly")
	assert.Contains(t, out, "not enough data")

	_, err := run(t, d, "", "forecast", "nobody")
	assert.ErrorIs(t, err, services.ErrUnknownAccount)
}

func TestAutoSwitchFlags(t *testing.T) {
	d := newTestDeps(t)

	_, err := run(t, d, "", "auto-switch", "--enable", "--disable")
	require.Error(t, err)

	out := mustRun(t, d, "auto-switch", "--enable", "--weekly", "90")
	assert.Contains(t, out, "enabled: true")
	assert.Contains(t, out, "weekly threshold: 90%")
}

func TestTokenSetAndClear(t *testing.T) {
	d := newTestDeps(t)

	out, err := run(t, d, "sk-ant-oat01-secret\n", "token", "set", "default")
	require.NoError(t, err, out)
	assert.Contains(t, out, "Token stored")

	env := mustRun(t, d, "env", "default")
	assert.Contains(t, env, "sk-ant-oat01-secret")

	mustRun(t, d, "token", "clear", "default")
	assert.NotContains(t, mustRun(t, d, "env", "default"), "sk-ant-oat01-secret")
}

func TestVersionSkipsManager(t *testing.T) {
	d := newTestDeps(t)
	d.loadConfig = func() (*config.Config, error) { return nil, errors.New("should not load") }

	out := mustRun(t, d, "version")
	assert.Contains(t, out, "agent-profiles")
}

func TestConfigError(t *testing.T) {
	d := newTestDeps(t)
	d.loadConfig = func() (*config.Config, error) { return nil, errors.New("bad toml") }

	_, err := run(t, d, "", "list")
	assert.ErrorContains(t, err, "bad toml")
}

func TestLoggedIn(t *testing.T) {
	d := newTestDeps(t)
	assert.Contains(t, mustRun(t, d, "logged-in", "default"), "does not need a new login")
}
