// Package app provides the main Bubble Tea application model and state management.
package app

import (
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/j-veylop/agent-profiles/internal/availability"
	"github.com/j-veylop/agent-profiles/internal/models"
	"github.com/j-veylop/agent-profiles/internal/unified"
)

// NotificationType defines the type of notification.
type NotificationType int

const (
	// NotificationSuccess represents a success notification.
	NotificationSuccess NotificationType = iota
	// NotificationError represents an error notification.
	NotificationError
	// NotificationWarning represents a warning notification.
	NotificationWarning
	// NotificationInfo represents an informational notification.
	NotificationInfo
)

// maxNotifications bounds the toast stack.
const maxNotifications = 10

// String returns the string representation of a NotificationType.
func (n NotificationType) String() string {
	switch n {
	case NotificationSuccess:
		return "success"
	case NotificationError:
		return "error"
	case NotificationWarning:
		return "warning"
	case NotificationInfo:
		return "info"
	default:
		return "unknown"
	}
}

// Notification represents a user-facing notification message.
type Notification struct {
	CreatedAt time.Time
	ID        string
	Message   string
	Type      NotificationType
	Duration  time.Duration
}

// IsExpired reports whether the notification has outlived its duration at now.
func (n *Notification) IsExpired(now time.Time) bool {
	if n.Duration <= 0 {
		return false
	}
	return now.Sub(n.CreatedAt) > n.Duration
}

// State is the data shared between the root model and the tabs.
type State struct {
	mu sync.RWMutex

	accounts       []unified.Account
	active         models.AccountID
	recommendation *availability.Recommendation
	selected       int
	loading        bool
	lastUpdated    time.Time

	notifications   []Notification
	notificationSeq int

	now func() time.Time
}

// NewState creates an empty state that is loading its first snapshot.
func NewState() *State {
	return &State{
		loading: true,
		now:     time.Now,
	}
}

// SetAccounts replaces the ranked accounts and the active account id.
// The selection follows the previously selected account when it is still listed.
func (s *State) SetAccounts(accounts []unified.Account, active models.AccountID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var selectedID models.AccountID
	if s.selected >= 0 && s.selected < len(s.accounts) {
		selectedID = s.accounts[s.selected].ID
	}

	s.accounts = accounts
	s.active = active
	s.loading = false
	s.lastUpdated = s.now()

	s.selected = 0
	if idx := slices.IndexFunc(accounts, func(a unified.Account) bool { return a.ID == selectedID }); idx >= 0 {
		s.selected = idx
	}
}

// Accounts returns a copy of the ranked accounts.
func (s *State) Accounts() []unified.Account {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.accounts)
}

// ActiveID returns the id of the account new sessions run as.
func (s *State) ActiveID() models.AccountID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

// ActiveAccount returns the active account, or nil.
func (s *State) ActiveAccount() *unified.Account {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := range s.accounts {
		if s.accounts[i].ID == s.active {
			acc := s.accounts[i]
			return &acc
		}
	}
	return nil
}

// SelectedIndex returns the index of the highlighted account.
func (s *State) SelectedIndex() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.selected
}

// SetSelectedIndex moves the highlight, clamped to the account list.
func (s *State) SetSelectedIndex(idx int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selected = max(0, min(idx, len(s.accounts)-1))
}

// SelectedAccount returns the highlighted account, or nil when there are none.
func (s *State) SelectedAccount() *unified.Account {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.selected < 0 || s.selected >= len(s.accounts) {
		return nil
	}
	acc := s.accounts[s.selected]
	return &acc
}

// SetRecommendation stores the latest switch recommendation. A nil or negative one clears it.
func (s *State) SetRecommendation(rec *availability.Recommendation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec == nil || !rec.ShouldSwitch {
		s.recommendation = nil
		return
	}
	s.recommendation = rec
}

// Recommendation returns the pending switch recommendation, or nil.
func (s *State) Recommendation() *availability.Recommendation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.recommendation
}

// IsLoading reports whether the first snapshot has not arrived yet.
func (s *State) IsLoading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading
}

// LastUpdated returns when the accounts were last replaced.
func (s *State) LastUpdated() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastUpdated
}

// AddNotification adds a new notification and returns its ID.
func (s *State) AddNotification(notifType NotificationType, message string, duration time.Duration) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.notificationSeq++
	id := "n" + strconv.Itoa(s.notificationSeq)

	s.notifications = append(s.notifications, Notification{
		ID:        id,
		Type:      notifType,
		Message:   message,
		CreatedAt: s.now(),
		Duration:  duration,
	})
	if len(s.notifications) > maxNotifications {
		s.notifications = s.notifications[len(s.notifications)-maxNotifications:]
	}
	return id
}

// RemoveNotification removes a notification by ID.
func (s *State) RemoveNotification(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifications = slices.DeleteFunc(s.notifications, func(n Notification) bool { return n.ID == id })
}

// ClearExpiredNotifications removes all expired notifications.
func (s *State) ClearExpiredNotifications() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	s.notifications = slices.DeleteFunc(s.notifications, func(n Notification) bool { return n.IsExpired(now) })
}

// Notifications returns the notifications that have not expired.
func (s *State) Notifications() []Notification {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.now()
	active := make([]Notification, 0, len(s.notifications))
	for _, n := range s.notifications {
		if !n.IsExpired(now) {
			active = append(active, n)
		}
	}
	return active
}

// ClearAllNotifications removes all notifications.
func (s *State) ClearAllNotifications() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifications = nil
}
