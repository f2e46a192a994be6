package services

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/zalando/go-keyring"

	"github.com/j-veylop/agent-profiles/internal/config"
	"github.com/j-veylop/agent-profiles/internal/logger"
	"github.com/j-veylop/agent-profiles/internal/models"
	"github.com/j-veylop/agent-profiles/internal/services/apiprofiles"
	"github.com/j-veylop/agent-profiles/internal/services/profiles"
)

var start = time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC)

type recordingNotifier struct {
	mu     sync.Mutex
	titles []string
}

func (n *recordingNotifier) notify(title, _ string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.titles = append(n.titles, title)
	return nil
}

func (n *recordingNotifier) count(prefix string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, title := range n.titles {
		if strings.HasPrefix(title, prefix) {
			c++
		}
	}
	return c
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		DataDir:            dir,
		ProfilesPath:       filepath.Join(dir, "profiles.json"),
		APIProfilesPath:    filepath.Join(dir, "api-profiles.yaml"),
		DatabasePath:       filepath.Join(dir, "history.db"),
		KeyPath:            filepath.Join(dir, "token.key"),
		ProfilesDir:        filepath.Join(dir, "profiles"),
		DefaultConfigDir:   filepath.Join(dir, "claude"),
		VaultService:       "agent-profiles-test",
		SessionThreshold:   95,
		WeeklyThreshold:    99,
		UsageCheckInterval: 30 * time.Second,
	}
}

func newTestManager(t *testing.T) (*Manager, *recordingNotifier) {
	t.Helper()
	keyring.MockInit()

	notifier := &recordingNotifier{}
	mgr, err := NewManager(context.Background(), testConfig(t),
		WithClock(func() time.Time { return start }),
		WithLogger(logger.Discard()),
		WithNotifier(notifier.notify),
		WithCredentialChecker(func(string) bool { return true }),
	)
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	t.Cleanup(func() { _ = mgr.Close() })
	return mgr, notifier
}

func addProfile(t *testing.T, mgr *Manager, name string) *models.Profile {
	t.Helper()
	p, err := mgr.Profiles().AddProfile(name, "")
	if err != nil {
		t.Fatalf("AddProfile(%q) failed: %v", name, err)
	}
	return p
}

func TestNewManager(t *testing.T) {
	mgr, _ := newTestManager(t)

	if mgr.Profiles() == nil || mgr.APIProfiles() == nil || mgr.Database() == nil {
		t.Fatal("components should be initialized")
	}
	if mgr.Vault() == nil || mgr.Scorer() == nil {
		t.Fatal("vault and scorer should be initialized")
	}
	if mgr.Profiles().State() != profiles.StateReady {
		t.Errorf("profile store state = %s, want ready", mgr.Profiles().State())
	}

	if got := mgr.ActiveAccount(); got != models.OAuthAccount(models.DefaultProfileID) {
		t.Errorf("ActiveAccount() = %v, want default", got)
	}

	accounts := mgr.Accounts()
	if len(accounts) != 1 || !accounts[0].Active {
		t.Errorf("expected the active default account, got %+v", accounts)
	}

	settings := mgr.Profiles().Data().AutoSwitch
	if settings.SessionThreshold != 95 || settings.WeeklyThreshold != 99 {
		t.Errorf("auto-switch defaults not taken from config: %+v", settings)
	}
}

func TestNewManager_CorruptStore(t *testing.T) {
	keyring.MockInit()
	cfg := testConfig(t)
	if err := writeFile(cfg.ProfilesPath, "{not json"); err != nil {
		t.Fatal(err)
	}

	if _, err := NewManager(context.Background(), cfg, WithLogger(logger.Discard())); err == nil {
		t.Error("NewManager should fail on an unreadable profile store")
	}
}

func TestReportUsage(t *testing.T) {
	mgr, _ := newTestManager(t)

	raw := "Current session\n42% used\nResets in 2h\n\nCurrent week (all models)\n17% used\n"
	snapshot, err := mgr.ReportUsage(models.DefaultProfileID, raw)
	if err != nil {
		t.Fatalf("ReportUsage failed: %v", err)
	}
	if snapshot.SessionUsagePercent != 42 || snapshot.WeeklyUsagePercent != 17 {
		t.Errorf("unexpected snapshot: %+v", snapshot)
	}
	if !snapshot.SessionResetAt.Equal(start.Add(2 * time.Hour)) {
		t.Errorf("SessionResetAt = %v", snapshot.SessionResetAt)
	}

	stored := mgr.Profiles().GetProfile(models.DefaultProfileID)
	if stored.Usage == nil || stored.Usage.SessionUsagePercent != 42 {
		t.Errorf("usage not stored on profile: %+v", stored.Usage)
	}

	series, err := mgr.UsageHistory(models.DefaultProfileID, models.TimeRange24Hours)
	if err != nil {
		t.Fatalf("UsageHistory failed: %v", err)
	}
	if len(series.Samples) != 1 || series.Samples[0].WeeklyPercent != 17 {
		t.Errorf("unexpected history: %+v", series.Samples)
	}
}

func TestReportUsage_Errors(t *testing.T) {
	mgr, _ := newTestManager(t)

	if _, err := mgr.ReportUsage(models.DefaultProfileID, "nothing useful here"); !errors.Is(err, ErrUnrecognizedUsage) {
		t.Errorf("expected ErrUnrecognizedUsage, got %v", err)
	}
	if _, err := mgr.ReportUsage("ghost", "Current session\n10% used"); !IsNotFound(err) {
		t.Errorf("expected not found for unknown profile, got %v", err)
	}
}

func TestReportUsagePercentages_KeepsMissingFields(t *testing.T) {
	mgr, _ := newTestManager(t)

	opus := 3.0
	if _, err := mgr.ReportUsagePercentages(models.DefaultProfileID, 10, 20, &opus); err != nil {
		t.Fatal(err)
	}
	snapshot, err := mgr.ReportUsagePercentages(models.DefaultProfileID, 15, 25, nil)
	if err != nil {
		t.Fatal(err)
	}
	if snapshot.SessionUsagePercent != 15 || snapshot.WeeklyUsagePercent != 25 {
		t.Errorf("unexpected snapshot: %+v", snapshot)
	}
	if snapshot.OpusUsagePercent == nil || *snapshot.OpusUsagePercent != 3 {
		t.Errorf("opus percentage should survive a report without it, got %v", snapshot.OpusUsagePercent)
	}
}

func TestReportRateLimit_RecommendsOnce(t *testing.T) {
	mgr, notifier := newTestManager(t)
	work := addProfile(t, mgr, "Work")

	event, err := mgr.ReportRateLimit(models.OAuthAccount(models.DefaultProfileID), "resets in 2h")
	if err != nil {
		t.Fatalf("ReportRateLimit failed: %v", err)
	}
	if event.Type != models.RateLimitSession || !event.ResetAt.Equal(start.Add(2*time.Hour)) {
		t.Errorf("unexpected event: %+v", event)
	}

	rec := mgr.Recommend()
	if !rec.ShouldSwitch || rec.Suggested == nil || rec.Suggested.ID != work.ID {
		t.Errorf("expected a switch to %s, got %+v", work.ID, rec)
	}

	if _, err := mgr.ReportRateLimit(models.OAuthAccount(models.DefaultProfileID), "resets in 3h"); err != nil {
		t.Fatal(err)
	}

	if got := notifier.count("Rate limited"); got != 2 {
		t.Errorf("rate limit notifications = %d, want 2", got)
	}
	if got := notifier.count("Switch recommended"); got != 1 {
		t.Errorf("switch notifications = %d, want 1", got)
	}

	records, err := mgr.RecentRateLimits(models.DefaultProfileID, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 2 {
		t.Errorf("expected 2 recorded events, got %d", len(records))
	}

	if err := mgr.ClearRateLimit(models.OAuthAccount(models.DefaultProfileID)); err != nil {
		t.Fatal(err)
	}
	if mgr.Recommend().ShouldSwitch {
		t.Error("no switch should be recommended after clearing the limit")
	}
}

func TestReportRateLimit_APIKey(t *testing.T) {
	mgr, _ := newTestManager(t)

	p, err := mgr.APIProfiles().Add("Backup", "", "sk-test", nil)
	if err != nil {
		t.Fatal(err)
	}
	id := models.APIKeyAccount(p.ID)

	event, err := mgr.ReportRateLimit(id, "garbled")
	if err != nil {
		t.Fatalf("ReportRateLimit failed: %v", err)
	}
	if !event.ResetAt.Equal(start.Add(5 * time.Hour)) {
		t.Errorf("unparseable text should fall back to the session window, got %v", event.ResetAt)
	}
	if !mgr.APIProfiles().Get(p.ID).IsRateLimited(start) {
		t.Error("api profile should be rate limited")
	}

	for _, acc := range mgr.Accounts() {
		if acc.ID == id && acc.Available {
			t.Error("rate limited api account should not be available")
		}
	}

	if _, err := mgr.ReportRateLimit(models.APIKeyAccount("ghost"), "in 1h"); !IsNotFound(err) {
		t.Errorf("expected not found, got %v", err)
	}
	if _, err := mgr.ReportRateLimit(models.AccountID{ID: "bare"}, "in 1h"); !errors.Is(err, ErrUnknownAccount) {
		t.Errorf("expected ErrUnknownAccount, got %v", err)
	}
}

func TestSwitchTo(t *testing.T) {
	mgr, _ := newTestManager(t)

	p, err := mgr.APIProfiles().Add("Backup", "", "sk-test", nil)
	if err != nil {
		t.Fatal(err)
	}
	apiID := models.APIKeyAccount(p.ID)

	if _, err := mgr.SwitchTo(apiID, models.SwitchManual); err != nil {
		t.Fatalf("SwitchTo(api) failed: %v", err)
	}
	if mgr.ActiveAccount() != apiID {
		t.Errorf("ActiveAccount() = %v, want %v", mgr.ActiveAccount(), apiID)
	}

	work := addProfile(t, mgr, "Work")
	workID := models.OAuthAccount(work.ID)
	if _, err := mgr.SwitchTo(workID, models.SwitchThreshold); err != nil {
		t.Fatalf("SwitchTo(oauth) failed: %v", err)
	}
	if mgr.ActiveAccount() != workID {
		t.Errorf("ActiveAccount() = %v, want %v", mgr.ActiveAccount(), workID)
	}
	if mgr.APIProfiles().ActiveID() != "" {
		t.Error("switching to an oauth profile should deactivate the api profile")
	}

	switches, err := mgr.RecentSwitches(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(switches) != 2 {
		t.Fatalf("expected 2 switches, got %d", len(switches))
	}
	if switches[0].From != apiID || switches[0].To != workID || switches[0].Reason != models.SwitchThreshold {
		t.Errorf("unexpected newest switch: %+v", switches[0])
	}

	if _, err := mgr.SwitchTo(models.OAuthAccount("ghost"), models.SwitchManual); !IsNotFound(err) {
		t.Errorf("expected not found, got %v", err)
	}
	if _, err := mgr.SwitchTo(models.APIKeyAccount("ghost"), models.SwitchManual); !IsNotFound(err) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestSwitchToBest(t *testing.T) {
	mgr, _ := newTestManager(t)

	if _, err := mgr.SwitchToBest(models.SwitchManual); !errors.Is(err, ErrNoneAvailable) {
		t.Errorf("a lone profile has nowhere to go, got %v", err)
	}

	work := addProfile(t, mgr, "Work")
	if _, err := mgr.ReportRateLimit(models.OAuthAccount(models.DefaultProfileID), "in 1h"); err != nil {
		t.Fatal(err)
	}

	best, err := mgr.SwitchToBest(models.SwitchRateLimited)
	if err != nil {
		t.Fatalf("SwitchToBest failed: %v", err)
	}
	if best.ID != models.OAuthAccount(work.ID) {
		t.Errorf("SwitchToBest() = %v, want %s", best.ID, work.ID)
	}
	if mgr.ActiveAccount() != models.OAuthAccount(work.ID) {
		t.Errorf("active account not switched: %v", mgr.ActiveAccount())
	}
}

func TestEnv(t *testing.T) {
	mgr, _ := newTestManager(t)

	env, err := mgr.Env(models.OAuthAccount(models.DefaultProfileID))
	if err != nil {
		t.Fatal(err)
	}
	if env[profiles.EnvConfigDir] == "" {
		t.Error("oauth env should carry the config dir")
	}

	p, err := mgr.APIProfiles().Add("Backup", "https://proxy.local", "sk-test", nil)
	if err != nil {
		t.Fatal(err)
	}
	env, err = mgr.Env(models.APIKeyAccount(p.ID))
	if err != nil {
		t.Fatal(err)
	}
	if env[apiprofiles.EnvAPIKey] != "sk-test" || env[apiprofiles.EnvBaseURL] != "https://proxy.local" {
		t.Errorf("unexpected api env: %v", env)
	}

	for _, id := range []models.AccountID{models.OAuthAccount("ghost"), models.APIKeyAccount("ghost"), {}} {
		if _, err := mgr.Env(id); !errors.Is(err, ErrUnknownAccount) {
			t.Errorf("Env(%v) error = %v, want ErrUnknownAccount", id, err)
		}
	}
}

func TestAddAndDeleteAccounts(t *testing.T) {
	mgr, _ := newTestManager(t)

	work, err := mgr.AddProfile("Work", "")
	if err != nil {
		t.Fatal(err)
	}
	proxy, err := mgr.AddAPIProfile("Proxy", "https://proxy.local", "sk-test", map[string]string{"opus": "big"})
	if err != nil {
		t.Fatal(err)
	}
	if len(mgr.Accounts()) != 3 {
		t.Fatalf("expected 3 accounts, got %d", len(mgr.Accounts()))
	}

	order := []models.AccountID{models.APIKeyAccount(proxy.ID), models.OAuthAccount(work.ID)}
	if err := mgr.Profiles().SetPriorityOrder(order); err != nil {
		t.Fatal(err)
	}
	if _, got := mgr.Settings(); len(got) != 2 {
		t.Fatalf("priority order = %v", got)
	}

	if err := mgr.DeleteAccount(models.APIKeyAccount(proxy.ID)); err != nil {
		t.Fatal(err)
	}
	if err := mgr.DeleteAccount(models.OAuthAccount(work.ID)); err != nil {
		t.Fatal(err)
	}
	if _, got := mgr.Settings(); len(got) != 0 {
		t.Errorf("deleted accounts should leave the priority order, got %v", got)
	}
	if len(mgr.Accounts()) != 1 {
		t.Errorf("expected only the default account, got %+v", mgr.Accounts())
	}

	for _, id := range []models.AccountID{models.APIKeyAccount(proxy.ID), {}} {
		if err := mgr.DeleteAccount(id); !IsNotFound(err) {
			t.Errorf("DeleteAccount(%v) error = %v, want not found", id, err)
		}
	}
	if err := mgr.DeleteAccount(models.OAuthAccount(models.DefaultProfileID)); !errors.Is(err, profiles.ErrDefaultProfile) {
		t.Errorf("deleting the default profile: err = %v", err)
	}
}

func TestSettings(t *testing.T) {
	mgr, _ := newTestManager(t)

	settings, order := mgr.Settings()
	if settings.SessionThreshold != 95 || settings.WeeklyThreshold != 99 {
		t.Errorf("settings = %+v", settings)
	}
	if len(order) != 0 {
		t.Errorf("fresh store should have no priority order, got %v", order)
	}
}

func TestProjection(t *testing.T) {
	keyring.MockInit()
	now := start
	mgr, err := NewManager(context.Background(), testConfig(t),
		WithClock(func() time.Time { return now }),
		WithLogger(logger.Discard()),
		WithNotifier(func(string, string) error { return nil }),
		WithCredentialChecker(func(string) bool { return true }),
	)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = mgr.Close() })

	for _, pct := range []float64{60, 80, 95} {
		if _, err := mgr.ReportUsagePercentages(models.DefaultProfileID, pct, 10, nil); err != nil {
			t.Fatal(err)
		}
		now = now.Add(30 * time.Minute)
	}
	now = now.Add(-30 * time.Minute)

	proj, err := mgr.Projection(models.DefaultProfileID)
	if err != nil {
		t.Fatal(err)
	}
	if proj.Session.DataPoints != 3 {
		t.Errorf("session data points = %d, want 3", proj.Session.DataPoints)
	}
	if proj.Session.Status != models.ProjectionCritical {
		t.Errorf("session status = %s, want critical", proj.Session.Status)
	}
	if proj.Weekly.Status != models.ProjectionSafe {
		t.Errorf("weekly status = %s, want safe", proj.Weekly.Status)
	}

	if _, err := mgr.Projection("ghost"); !errors.Is(err, ErrUnknownAccount) {
		t.Errorf("Projection(ghost) error = %v, want ErrUnknownAccount", err)
	}
}

func TestSubscription(t *testing.T) {
	mgr, _ := newTestManager(t)
	work := addProfile(t, mgr, "Work")

	ch, cmd := mgr.Subscribe()
	if cmd == nil {
		t.Fatal("Subscribe should return a command")
	}

	if _, err := mgr.SwitchTo(models.OAuthAccount(work.ID), models.SwitchManual); err != nil {
		t.Fatal(err)
	}

	deadline := time.After(2 * time.Second)
	for {
		select {
		case event := <-ch:
			if sw, ok := event.(SwitchedEvent); ok {
				if sw.Switch.To != models.OAuthAccount(work.ID) {
					t.Errorf("unexpected switch event: %+v", sw)
				}
				mgr.Unsubscribe(ch)
				if msg := WaitForEvent(ch)(); msg != nil {
					t.Errorf("closed subscription should yield nil, got %T", msg)
				}
				return
			}
		case <-deadline:
			t.Fatal("timed out waiting for switch event")
		}
	}
}

func TestClose_Idempotent(t *testing.T) {
	mgr, _ := newTestManager(t)
	ch, _ := mgr.Subscribe()

	if err := mgr.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := mgr.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}

	// Close closes subscriber channels; draining must terminate.
	for range ch {
	}
}

func writeFile(path, content string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(content), 0o600)
}

func TestCredentialCheckHoldsConfigDirLock(t *testing.T) {
	mgr, _ := newTestManager(t)
	dir := t.TempDir()

	unlock := mgr.Profiles().LockConfigDir(dir)
	done := make(chan bool, 1)
	go func() {
		done <- mgr.Scorer().IsAuthenticated(&models.Profile{ConfigDir: dir})
	}()

	select {
	case <-done:
		t.Fatal("credential check should wait for the config dir lock")
	case <-time.After(50 * time.Millisecond):
	}

	unlock()
	select {
	case ok := <-done:
		if !ok {
			t.Error("IsAuthenticated should use the injected checker")
		}
	case <-time.After(time.Second):
		t.Fatal("credential check did not finish after the lock was released")
	}
}
