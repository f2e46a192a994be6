package app

import (
	"time"

	"github.com/j-veylop/agent-profiles/internal/availability"
	"github.com/j-veylop/agent-profiles/internal/models"
	"github.com/j-veylop/agent-profiles/internal/services"
	"github.com/j-veylop/agent-profiles/internal/unified"
)

// TickMsg is sent periodically to trigger state refresh.
type TickMsg struct {
	Time time.Time
}

// AccountsLoadedMsg contains the ranked accounts and the active one.
type AccountsLoadedMsg struct {
	Recommendation availability.Recommendation
	Active         models.AccountID
	Accounts       []unified.Account
}

// SwitchAccountMsg requests making an account active.
type SwitchAccountMsg struct {
	ID     models.AccountID
	Reason models.SwitchReason
}

// SwitchToBestMsg requests moving to the best available account.
type SwitchToBestMsg struct{}

// SwitchAccountResultMsg contains the result of an account switch.
type SwitchAccountResultMsg struct {
	Error error
	Name  string
	ID    models.AccountID
}

// ClearRateLimitMsg requests dropping the rate limits of an account.
type ClearRateLimitMsg struct {
	ID models.AccountID
}

// ClearRateLimitResultMsg contains the result of clearing rate limits.
type ClearRateLimitResultMsg struct {
	Error error
	ID    models.AccountID
}

// AddProfileMsg requests creating an OAuth profile.
type AddProfileMsg struct {
	Name string
}

// AddProfileResultMsg contains the result of creating a profile.
type AddProfileResultMsg struct {
	Error   error
	Profile *models.Profile
}

// DeleteAccountMsg requests removal of an account.
type DeleteAccountMsg struct {
	ID models.AccountID
}

// DeleteAccountResultMsg contains the result of removing an account.
type DeleteAccountResultMsg struct {
	Error error
	ID    models.AccountID
}

// RefreshMsg requests reloading the accounts.
type RefreshMsg struct{}

// AddNotificationMsg requests adding a new notification.
type AddNotificationMsg struct {
	Message  string
	Type     NotificationType
	Duration time.Duration
}

// RemoveNotificationMsg requests removal of a notification.
type RemoveNotificationMsg struct {
	ID string
}

// ServiceEventMsg wraps a service event from the service manager.
type ServiceEventMsg struct {
	Event services.ServiceEvent
}

// SubscriptionEventMsg is the callback wrapper for service subscription.
type SubscriptionEventMsg struct {
	Channel chan services.ServiceEvent
}

// ErrorMsg represents a general error.
type ErrorMsg struct {
	Error   error
	Context string
}

// TabSwitchMsg requests switching to a specific tab.
type TabSwitchMsg struct {
	Tab TabID
}

// SelectedAccountChangedMsg signals that the highlighted account changed.
type SelectedAccountChangedMsg struct {
	ID    models.AccountID
	Index int
}
