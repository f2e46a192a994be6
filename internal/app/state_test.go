package app

import (
	"testing"
	"time"

	"github.com/j-veylop/agent-profiles/internal/availability"
	"github.com/j-veylop/agent-profiles/internal/models"
	"github.com/j-veylop/agent-profiles/internal/unified"
)

func testAccounts() []unified.Account {
	return []unified.Account{
		{ID: models.OAuthAccount("work"), Name: "Work", Available: true, Active: true},
		{ID: models.APIKeyAccount("proxy"), Name: "Proxy", Available: true},
		{ID: models.OAuthAccount("home"), Name: "Home"},
	}
}

func TestNewState(t *testing.T) {
	s := NewState()
	if !s.IsLoading() {
		t.Error("new state should be loading")
	}
	if len(s.Accounts()) != 0 {
		t.Error("Accounts should be empty")
	}
	if s.SelectedAccount() != nil {
		t.Error("SelectedAccount should be nil without accounts")
	}
}

func TestState_SetAccounts(t *testing.T) {
	s := NewState()
	s.SetAccounts(testAccounts(), models.OAuthAccount("work"))

	if s.IsLoading() {
		t.Error("state should stop loading after the first snapshot")
	}
	if got := len(s.Accounts()); got != 3 {
		t.Errorf("Accounts len = %d, want 3", got)
	}
	active := s.ActiveAccount()
	if active == nil || active.Name != "Work" {
		t.Fatalf("ActiveAccount = %+v, want Work", active)
	}
	if s.LastUpdated().IsZero() {
		t.Error("LastUpdated should be set")
	}
}

func TestState_SelectionFollowsAccount(t *testing.T) {
	s := NewState()
	s.SetAccounts(testAccounts(), models.OAuthAccount("work"))
	s.SetSelectedIndex(1)

	reordered := testAccounts()
	reordered[0], reordered[1] = reordered[1], reordered[0]
	s.SetAccounts(reordered, models.OAuthAccount("work"))

	if s.SelectedIndex() != 0 {
		t.Errorf("SelectedIndex = %d, want 0 (proxy moved up)", s.SelectedIndex())
	}
	if sel := s.SelectedAccount(); sel == nil || sel.ID != models.APIKeyAccount("proxy") {
		t.Errorf("SelectedAccount = %+v, want proxy", sel)
	}

	s.SetAccounts(testAccounts()[2:], models.AccountID{})
	if s.SelectedIndex() != 0 {
		t.Errorf("SelectedIndex = %d, want reset to 0", s.SelectedIndex())
	}
	if s.ActiveAccount() != nil {
		t.Error("ActiveAccount should be nil when the active id is not listed")
	}
}

func TestState_SetSelectedIndexClamps(t *testing.T) {
	s := NewState()
	s.SetAccounts(testAccounts(), models.AccountID{})

	s.SetSelectedIndex(10)
	if s.SelectedIndex() != 2 {
		t.Errorf("SelectedIndex = %d, want 2", s.SelectedIndex())
	}
	s.SetSelectedIndex(-3)
	if s.SelectedIndex() != 0 {
		t.Errorf("SelectedIndex = %d, want 0", s.SelectedIndex())
	}
}

func TestState_Recommendation(t *testing.T) {
	s := NewState()

	s.SetRecommendation(&availability.Recommendation{ShouldSwitch: true, Reason: "session usage 96%"})
	if rec := s.Recommendation(); rec == nil || rec.Reason != "session usage 96%" {
		t.Fatalf("Recommendation = %+v", rec)
	}

	s.SetRecommendation(&availability.Recommendation{})
	if s.Recommendation() != nil {
		t.Error("negative recommendation should clear the pending one")
	}

	s.SetRecommendation(nil)
	if s.Recommendation() != nil {
		t.Error("nil should clear the recommendation")
	}
}

func TestState_Notifications(t *testing.T) {
	s := NewState()

	id := s.AddNotification(NotificationInfo, "test", time.Minute)
	if id == "" {
		t.Error("AddNotification returned empty ID")
	}

	notifs := s.Notifications()
	if len(notifs) != 1 {
		t.Fatalf("Notifications len = %d, want 1", len(notifs))
	}
	if notifs[0].Message != "test" {
		t.Errorf("Notification message = %s, want test", notifs[0].Message)
	}

	s.RemoveNotification(id)
	if len(s.Notifications()) != 0 {
		t.Error("Notification should be removed")
	}
}

func TestState_NotificationLimit(t *testing.T) {
	s := NewState()
	for range maxNotifications + 3 {
		s.AddNotification(NotificationInfo, "n", 0)
	}
	if got := len(s.Notifications()); got != maxNotifications {
		t.Errorf("Notifications len = %d, want %d", got, maxNotifications)
	}

	s.ClearAllNotifications()
	if len(s.Notifications()) != 0 {
		t.Error("ClearAllNotifications should remove everything")
	}
}

func TestState_ClearExpiredNotifications(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := NewState()
	s.now = func() time.Time { return now }

	s.notifications = append(s.notifications,
		Notification{ID: "expired", CreatedAt: now.Add(-2 * time.Minute), Duration: time.Minute},
		Notification{ID: "active", CreatedAt: now, Duration: time.Minute},
		Notification{ID: "sticky", CreatedAt: now.Add(-time.Hour)},
	)

	s.ClearExpiredNotifications()

	notifs := s.Notifications()
	if len(notifs) != 2 {
		t.Fatalf("Expected 2 notifications, got %d", len(notifs))
	}
	if notifs[0].ID != "active" || notifs[1].ID != "sticky" {
		t.Errorf("unexpected notifications left: %+v", notifs)
	}
}

func TestNotificationType_String(t *testing.T) {
	tests := []struct {
		t    NotificationType
		want string
	}{
		{NotificationSuccess, "success"},
		{NotificationError, "error"},
		{NotificationWarning, "warning"},
		{NotificationInfo, "info"},
		{NotificationType(999), "unknown"},
	}

	for _, tt := range tests {
		if got := tt.t.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}
