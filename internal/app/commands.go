package app

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/j-veylop/agent-profiles/internal/availability"
	"github.com/j-veylop/agent-profiles/internal/models"
	"github.com/j-veylop/agent-profiles/internal/services"
	"github.com/j-veylop/agent-profiles/internal/unified"
)

const (
	// DefaultTickInterval is the default interval between ticks.
	DefaultTickInterval = 2 * time.Second

	// DefaultNotificationDuration is the default duration for notifications.
	DefaultNotificationDuration = 5 * time.Second

	// QuickNotificationDuration is for brief notifications.
	QuickNotificationDuration = 3 * time.Second

	// LongNotificationDuration is for important notifications.
	LongNotificationDuration = 10 * time.Second
)

// Services is the part of the service manager the TUI drives.
type Services interface {
	Accounts() []unified.Account
	ActiveAccount() models.AccountID
	Recommend() availability.Recommendation
	SwitchTo(id models.AccountID, reason models.SwitchReason) (models.SwitchEvent, error)
	SwitchToBest(reason models.SwitchReason) (*unified.Account, error)
	ClearRateLimit(id models.AccountID) error
	AddProfile(name, configDir string) (*models.Profile, error)
	DeleteAccount(id models.AccountID) error
	Subscribe() (chan services.ServiceEvent, tea.Cmd)
}

// tickCmd returns a command that sends a TickMsg after the specified interval.
func tickCmd(interval time.Duration) tea.Cmd {
	return tea.Tick(interval, func(t time.Time) tea.Msg {
		return TickMsg{Time: t}
	})
}

func defaultTickCmd() tea.Cmd {
	return tickCmd(DefaultTickInterval)
}

// loadAccountsCmd returns a command that snapshots the ranked accounts.
func loadAccountsCmd(svc Services) tea.Cmd {
	return func() tea.Msg {
		return AccountsLoadedMsg{
			Accounts:       svc.Accounts(),
			Active:         svc.ActiveAccount(),
			Recommendation: svc.Recommend(),
		}
	}
}

// subscribeToServicesCmd returns a command that subscribes to service events.
func subscribeToServicesCmd(svc Services) tea.Cmd {
	ch, _ := svc.Subscribe()
	return func() tea.Msg {
		return SubscriptionEventMsg{Channel: ch}
	}
}

// waitForServiceEventCmd returns a command that waits for the next service event.
func waitForServiceEventCmd(ch <-chan services.ServiceEvent) tea.Cmd {
	return func() tea.Msg {
		event, ok := <-ch
		if !ok {
			return nil
		}
		return ServiceEventMsg{Event: event}
	}
}

// clearNotificationCmd returns a command that removes a notification after a delay.
func clearNotificationCmd(id string, delay time.Duration) tea.Cmd {
	return tea.Tick(delay, func(_ time.Time) tea.Msg {
		return RemoveNotificationMsg{ID: id}
	})
}

func switchAccountCmd(svc Services, id models.AccountID, reason models.SwitchReason) tea.Cmd {
	return func() tea.Msg {
		_, err := svc.SwitchTo(id, reason)
		return SwitchAccountResultMsg{ID: id, Error: err}
	}
}

func switchToBestCmd(svc Services) tea.Cmd {
	return func() tea.Msg {
		best, err := svc.SwitchToBest(models.SwitchManual)
		if err != nil {
			return SwitchAccountResultMsg{Error: err}
		}
		return SwitchAccountResultMsg{ID: best.ID, Name: best.Name}
	}
}

func clearRateLimitCmd(svc Services, id models.AccountID) tea.Cmd {
	return func() tea.Msg {
		return ClearRateLimitResultMsg{ID: id, Error: svc.ClearRateLimit(id)}
	}
}

func addProfileCmd(svc Services, name string) tea.Cmd {
	return func() tea.Msg {
		p, err := svc.AddProfile(name, "")
		return AddProfileResultMsg{Profile: p, Error: err}
	}
}

func deleteAccountCmd(svc Services, id models.AccountID) tea.Cmd {
	return func() tea.Msg {
		return DeleteAccountResultMsg{ID: id, Error: svc.DeleteAccount(id)}
	}
}

func notifyCmd(t NotificationType, message string, d time.Duration) tea.Cmd {
	return func() tea.Msg {
		return AddNotificationMsg{Type: t, Message: message, Duration: d}
	}
}

func notifySuccessCmd(message string) tea.Cmd {
	return notifyCmd(NotificationSuccess, message, DefaultNotificationDuration)
}

func notifyErrorCmd(message string) tea.Cmd {
	return notifyCmd(NotificationError, message, LongNotificationDuration)
}

func notifyWarningCmd(message string) tea.Cmd {
	return notifyCmd(NotificationWarning, message, LongNotificationDuration)
}

func notifyInfoCmd(message string) tea.Cmd {
	return notifyCmd(NotificationInfo, message, QuickNotificationDuration)
}

// Commands provides a public interface to the command functions.
type Commands struct {
	services Services
}

// NewCommands creates a new Commands instance.
func NewCommands(svc Services) *Commands {
	return &Commands{services: svc}
}

// Tick returns a tick command with the specified interval.
func (c *Commands) Tick(interval time.Duration) tea.Cmd {
	return tickCmd(interval)
}

// LoadAccounts returns a command that loads accounts.
func (c *Commands) LoadAccounts() tea.Cmd {
	return loadAccountsCmd(c.services)
}

// SwitchAccount returns a command that makes an account active.
func (c *Commands) SwitchAccount(id models.AccountID) tea.Cmd {
	return switchAccountCmd(c.services, id, models.SwitchManual)
}

// SwitchToBest returns a command that moves to the best available account.
func (c *Commands) SwitchToBest() tea.Cmd {
	return switchToBestCmd(c.services)
}

// ClearRateLimit returns a command that drops an account's rate limits.
func (c *Commands) ClearRateLimit(id models.AccountID) tea.Cmd {
	return clearRateLimitCmd(c.services, id)
}

// AddProfile returns a command that creates an OAuth profile with an isolated directory.
func (c *Commands) AddProfile(name string) tea.Cmd {
	return addProfileCmd(c.services, name)
}

// DeleteAccount returns a command that removes an account.
func (c *Commands) DeleteAccount(id models.AccountID) tea.Cmd {
	return deleteAccountCmd(c.services, id)
}

// NotifySuccess returns a command that adds a success notification.
func (c *Commands) NotifySuccess(message string) tea.Cmd {
	return notifySuccessCmd(message)
}

// NotifyError returns a command that adds an error notification.
func (c *Commands) NotifyError(message string) tea.Cmd {
	return notifyErrorCmd(message)
}

// NotifyWarning returns a command that adds a warning notification.
func (c *Commands) NotifyWarning(message string) tea.Cmd {
	return notifyWarningCmd(message)
}

// NotifyInfo returns a command that adds an info notification.
func (c *Commands) NotifyInfo(message string) tea.Cmd {
	return notifyInfoCmd(message)
}

// ClearNotification returns a command that removes a notification after a delay.
func (c *Commands) ClearNotification(id string, delay time.Duration) tea.Cmd {
	return clearNotificationCmd(id, delay)
}
