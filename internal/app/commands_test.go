package app

import (
	"errors"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/j-veylop/agent-profiles/internal/availability"
	"github.com/j-veylop/agent-profiles/internal/models"
	"github.com/j-veylop/agent-profiles/internal/services"
	"github.com/j-veylop/agent-profiles/internal/unified"
)

// fakeServices records calls made by the TUI.
type fakeServices struct {
	accounts  []unified.Account
	active    models.AccountID
	rec       availability.Recommendation
	switchErr error
	clearErr  error
	best      *unified.Account

	switchedTo []models.AccountID
	reasons    []models.SwitchReason
	cleared    []models.AccountID
	deleted    []models.AccountID
	added      []string
	ch         chan services.ServiceEvent
}

func (f *fakeServices) Accounts() []unified.Account { return f.accounts }

func (f *fakeServices) ActiveAccount() models.AccountID { return f.active }

func (f *fakeServices) Recommend() availability.Recommendation { return f.rec }

func (f *fakeServices) ClearRateLimit(id models.AccountID) error {
	f.cleared = append(f.cleared, id)
	return f.clearErr
}

func (f *fakeServices) AddProfile(name, configDir string) (*models.Profile, error) {
	f.added = append(f.added, name)
	return &models.Profile{ID: models.ProfileIDFromName(name), Name: name, ConfigDir: configDir}, nil
}

func (f *fakeServices) DeleteAccount(id models.AccountID) error {
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeServices) SwitchTo(id models.AccountID, reason models.SwitchReason) (models.SwitchEvent, error) {
	f.switchedTo = append(f.switchedTo, id)
	f.reasons = append(f.reasons, reason)
	return models.SwitchEvent{To: id, Reason: reason}, f.switchErr
}

func (f *fakeServices) SwitchToBest(models.SwitchReason) (*unified.Account, error) {
	if f.best == nil {
		return nil, services.ErrNoneAvailable
	}
	return f.best, nil
}

func (f *fakeServices) Subscribe() (chan services.ServiceEvent, tea.Cmd) {
	f.ch = make(chan services.ServiceEvent, 4)
	return f.ch, services.WaitForEvent(f.ch)
}

func TestCommands_Tick(t *testing.T) {
	cmds := NewCommands(nil)
	if cmds.Tick(time.Millisecond) == nil {
		t.Error("Tick returned nil")
	}
}

func TestCommands_Notifications(t *testing.T) {
	cmds := NewCommands(nil)

	tests := []struct {
		name string
		fn   func(string) tea.Cmd
		want NotificationType
	}{
		{"Success", cmds.NotifySuccess, NotificationSuccess},
		{"Error", cmds.NotifyError, NotificationError},
		{"Warning", cmds.NotifyWarning, NotificationWarning},
		{"Info", cmds.NotifyInfo, NotificationInfo},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.fn("msg")()

			addMsg, ok := msg.(AddNotificationMsg)
			if !ok {
				t.Fatalf("Expected AddNotificationMsg, got %T", msg)
			}
			if addMsg.Type != tt.want {
				t.Errorf("Type = %v, want %v", addMsg.Type, tt.want)
			}
			if addMsg.Message != "msg" {
				t.Errorf("Message = %q, want msg", addMsg.Message)
			}
			if addMsg.Duration <= 0 {
				t.Error("notifications from commands should expire")
			}
		})
	}
}

func TestCommands_ClearNotification(t *testing.T) {
	cmds := NewCommands(nil)
	if cmds.ClearNotification("id", time.Millisecond) == nil {
		t.Error("ClearNotification returned nil")
	}
}

func TestCommands_LoadAccounts(t *testing.T) {
	svc := &fakeServices{
		accounts: testAccounts(),
		active:   models.OAuthAccount("work"),
		rec:      availability.Recommendation{ShouldSwitch: true, Reason: "weekly usage 99%"},
	}

	msg := NewCommands(svc).LoadAccounts()()
	loaded, ok := msg.(AccountsLoadedMsg)
	if !ok {
		t.Fatalf("Expected AccountsLoadedMsg, got %T", msg)
	}
	if len(loaded.Accounts) != 3 || loaded.Active != svc.active {
		t.Errorf("unexpected snapshot: %+v", loaded)
	}
	if !loaded.Recommendation.ShouldSwitch {
		t.Error("recommendation should be carried")
	}
}

func TestCommands_SwitchAccount(t *testing.T) {
	svc := &fakeServices{}
	id := models.APIKeyAccount("proxy")

	msg := NewCommands(svc).SwitchAccount(id)()
	res, ok := msg.(SwitchAccountResultMsg)
	if !ok {
		t.Fatalf("Expected SwitchAccountResultMsg, got %T", msg)
	}
	if res.Error != nil || res.ID != id {
		t.Errorf("result = %+v", res)
	}
	if len(svc.reasons) != 1 || svc.reasons[0] != models.SwitchManual {
		t.Errorf("reasons = %v, want manual", svc.reasons)
	}
}

func TestCommands_SwitchToBest(t *testing.T) {
	svc := &fakeServices{}
	cmds := NewCommands(svc)

	res := cmds.SwitchToBest()().(SwitchAccountResultMsg)
	if !errors.Is(res.Error, services.ErrNoneAvailable) {
		t.Errorf("Error = %v, want ErrNoneAvailable", res.Error)
	}

	svc.best = &unified.Account{ID: models.OAuthAccount("home"), Name: "Home"}
	res = cmds.SwitchToBest()().(SwitchAccountResultMsg)
	if res.Error != nil || res.Name != "Home" {
		t.Errorf("result = %+v", res)
	}
}

func TestCommands_ClearRateLimit(t *testing.T) {
	svc := &fakeServices{clearErr: errors.New("boom")}
	id := models.OAuthAccount("work")

	res := NewCommands(svc).ClearRateLimit(id)().(ClearRateLimitResultMsg)
	if res.Error == nil || res.ID != id {
		t.Errorf("result = %+v", res)
	}
	if len(svc.cleared) != 1 {
		t.Errorf("ClearRateLimit calls = %d, want 1", len(svc.cleared))
	}
}

func TestWaitForServiceEventCmd(t *testing.T) {
	ch := make(chan services.ServiceEvent, 1)
	ch <- services.ErrorEvent{Service: "profiles"}

	msg := waitForServiceEventCmd(ch)()
	if ev, ok := msg.(ServiceEventMsg); !ok || ev.Event.(services.ErrorEvent).Service != "profiles" {
		t.Errorf("unexpected message %#v", msg)
	}

	close(ch)
	if msg := waitForServiceEventCmd(ch)(); msg != nil {
		t.Errorf("closed channel should yield nil, got %#v", msg)
	}
}

func TestCommands_AddAndDelete(t *testing.T) {
	svc := &fakeServices{}
	cmds := NewCommands(svc)

	added := cmds.AddProfile("Side Project")().(AddProfileResultMsg)
	if added.Error != nil || added.Profile.ID != "side-project" {
		t.Errorf("AddProfile result = %+v", added)
	}

	id := models.APIKeyAccount("proxy")
	deleted := cmds.DeleteAccount(id)().(DeleteAccountResultMsg)
	if deleted.Error != nil || deleted.ID != id {
		t.Errorf("DeleteAccount result = %+v", deleted)
	}
	if len(svc.deleted) != 1 || svc.deleted[0] != id {
		t.Errorf("deleted = %v", svc.deleted)
	}
}
