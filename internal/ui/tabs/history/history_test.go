package history

import (
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/j-veylop/agent-profiles/internal/app"
	"github.com/j-veylop/agent-profiles/internal/models"
	"github.com/j-veylop/agent-profiles/internal/unified"
)

type fakeSource struct {
	err        error
	ranges     []models.TimeRange
	profileIDs []string
	series     models.UsageSeries
	switches   []models.SwitchEvent
	limits     []models.RateLimitRecord
	projection *models.Projection
}

func (f *fakeSource) UsageHistory(profileID string, tr models.TimeRange) (models.UsageSeries, error) {
	f.ranges = append(f.ranges, tr)
	f.profileIDs = append(f.profileIDs, profileID)
	return f.series, f.err
}

func (f *fakeSource) RecentSwitches(int) ([]models.SwitchEvent, error) {
	return f.switches, nil
}

func (f *fakeSource) RecentRateLimits(string, int) ([]models.RateLimitRecord, error) {
	return f.limits, nil
}

func (f *fakeSource) Projection(string) (*models.Projection, error) {
	return f.projection, nil
}

func testState() *app.State {
	state := app.NewState()
	state.SetAccounts([]unified.Account{
		{ID: models.OAuthAccount("work"), Name: "Work", Active: true},
		{ID: models.APIKeyAccount("proxy"), Name: "Proxy"},
	}, models.OAuthAccount("work"))
	return state
}

func testSource() *fakeSource {
	t0 := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	return &fakeSource{
		series: models.UsageSeries{ProfileID: "work", Samples: []models.UsageSample{
			{Timestamp: t0, SessionPercent: 20, WeeklyPercent: 30},
			{Timestamp: t0.Add(time.Hour), SessionPercent: 85, WeeklyPercent: 35},
			{Timestamp: t0.Add(2 * time.Hour), SessionPercent: 10, WeeklyPercent: 36},
		}},
		switches: []models.SwitchEvent{
			{Timestamp: t0, To: models.OAuthAccount("work"), Reason: models.SwitchManual},
			{Timestamp: t0.Add(time.Hour), From: models.OAuthAccount("work"), To: models.APIKeyAccount("proxy"), Reason: models.SwitchRateLimited},
		},
		limits: []models.RateLimitRecord{
			{ProfileID: "work", RateLimitEvent: models.RateLimitEvent{Type: models.RateLimitSession, RecordedAt: t0, ResetAt: t0.Add(5 * time.Hour)}},
		},
		projection: &models.Projection{
			ProfileID: "work",
			Session: &models.WindowProjection{
				Window:                 models.RateLimitSession,
				Status:                 models.ProjectionWarning,
				Confidence:             models.ConfidenceLow,
				RatePerHour:            12.5,
				HoursLeft:              2,
				ExhaustAt:              t0.Add(4 * time.Hour),
				WillExhaustBeforeReset: true,
				DataPoints:             3,
			},
			Weekly: &models.WindowProjection{
				Window:     models.RateLimitWeekly,
				Status:     models.ProjectionUnknown,
				Confidence: models.ConfidenceLow,
				HoursLeft:  math.Inf(1),
			},
		},
	}
}

// load runs the tab's load command and feeds the result back.
func load(t *testing.T, m *Model, cmd tea.Cmd) {
	t.Helper()
	if cmd == nil {
		t.Fatal("expected a load command")
	}
	m.Update(cmd())
}

func TestModel_LoadsSelectedProfile(t *testing.T) {
	src := testSource()
	m := New(testState(), src)
	m.SetSize(120, 60)

	load(t, m, m.Init())

	if len(src.profileIDs) != 1 || src.profileIDs[0] != "work" {
		t.Errorf("queried profiles = %v", src.profileIDs)
	}
	if src.ranges[0] != models.TimeRange7Days {
		t.Errorf("default range = %v", src.ranges[0])
	}

	view := m.View()
	for _, want := range []string{"History: Work", "7 Days", "3 samples", "Peak session", "85%", "Rate Limits", "session", "work → api-proxy", "rate_limited", "Forecast", "WARNING", "12.5%/h", "runs out", "not enough data"} {
		if !strings.Contains(view, want) {
			t.Errorf("View missing %q", want)
		}
	}
}

func TestModel_ToggleRange(t *testing.T) {
	src := testSource()
	m := New(testState(), src)
	load(t, m, m.Init())

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("t")})
	load(t, m, cmd)

	if m.timeRange != models.TimeRange30Days {
		t.Errorf("timeRange = %v, want 30 days", m.timeRange)
	}
	if got := src.ranges[len(src.ranges)-1]; got != models.TimeRange30Days {
		t.Errorf("queried range = %v", got)
	}
}

func TestModel_APIAccountSkipsUsage(t *testing.T) {
	src := testSource()
	state := testState()
	m := New(state, src)
	load(t, m, m.Init())

	state.SetSelectedIndex(1)
	_, cmd := m.Update(app.SelectedAccountChangedMsg{ID: models.APIKeyAccount("proxy"), Index: 1})
	load(t, m, cmd)

	if len(src.profileIDs) != 1 {
		t.Errorf("usage should not be queried for API accounts, got %v", src.profileIDs)
	}
	if !strings.Contains(m.View(), "do not report usage") {
		t.Error("View should explain missing usage")
	}
}

func TestModel_ReloadsOnSelectionChange(t *testing.T) {
	state := testState()
	m := New(state, testSource())
	load(t, m, m.Init())

	if _, cmd := m.Update(app.AccountsLoadedMsg{}); cmd != nil {
		t.Error("unchanged selection should not reload")
	}

	state.SetSelectedIndex(1)
	if _, cmd := m.Update(app.AccountsLoadedMsg{}); cmd == nil {
		t.Error("changed selection should reload")
	}
}

func TestModel_Error(t *testing.T) {
	src := testSource()
	src.err = errors.New("disk gone")
	m := New(testState(), src)

	msg := m.Init()()
	_, cmd := m.Update(msg)
	if cmd == nil {
		t.Fatal("error should raise a notification")
	}
	if n, ok := cmd().(app.AddNotificationMsg); !ok || n.Type != app.NotificationError {
		t.Errorf("notification = %#v", n)
	}
	if !strings.Contains(m.View(), "disk gone") {
		t.Error("View should show the error")
	}
}

func TestModel_NoSource(t *testing.T) {
	m := New(app.NewState(), nil)
	if _, ok := m.Init()().(historyErrorMsg); !ok {
		t.Error("missing source should produce an error")
	}
	if m.View() == "" {
		t.Error("View returned empty string")
	}
}

func TestHelp(t *testing.T) {
	m := New(app.NewState(), nil)
	if len(m.ShortHelp()) == 0 || len(m.FullHelp()) == 0 {
		t.Error("help should list bindings")
	}
}
