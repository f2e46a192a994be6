// Package history provides the history tab: usage charts, switches, and rate limits.
package history

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/j-veylop/agent-profiles/internal/app"
	"github.com/j-veylop/agent-profiles/internal/models"
)

const (
	switchesLimit   = 10
	rateLimitsLimit = 10
)

// Source is the part of the service manager that serves recorded history.
type Source interface {
	UsageHistory(profileID string, timeRange models.TimeRange) (models.UsageSeries, error)
	RecentSwitches(limit int) ([]models.SwitchEvent, error)
	RecentRateLimits(profileID string, limit int) ([]models.RateLimitRecord, error)
	Projection(profileID string) (*models.Projection, error)
}

type keyMap struct {
	ToggleRange key.Binding
	Up          key.Binding
	Down        key.Binding
}

func defaultKeyMap() keyMap {
	return keyMap{
		ToggleRange: key.NewBinding(
			key.WithKeys("t"),
			key.WithHelp("t", "toggle time range"),
		),
		Up: key.NewBinding(
			key.WithKeys("up", "k"),
			key.WithHelp("↑/k", "scroll up"),
		),
		Down: key.NewBinding(
			key.WithKeys("down", "j"),
			key.WithHelp("↓/j", "scroll down"),
		),
	}
}

// snapshot is one load of history for the highlighted account.
type snapshot struct {
	account    models.AccountID
	name       string
	series     models.UsageSeries
	switches   []models.SwitchEvent
	rateLimits []models.RateLimitRecord
	projection *models.Projection
}

type historyLoadedMsg struct {
	data snapshot
}

type historyErrorMsg struct {
	err string
}

// Model represents the history tab state.
type Model struct {
	state       *app.State
	source      Source
	data        *snapshot
	viewport    viewport.Model
	lastRefresh time.Time
	errorMsg    string
	keys        keyMap
	timeRange   models.TimeRange
	width       int
	height      int
	loading     bool
}

// New creates a new history model.
func New(state *app.State, source Source) *Model {
	return &Model{
		state:     state,
		source:    source,
		keys:      defaultKeyMap(),
		viewport:  viewport.New(0, 0),
		timeRange: models.TimeRange7Days,
	}
}

// Init loads history for the current selection.
func (m *Model) Init() tea.Cmd {
	return m.load()
}

func (m *Model) load() tea.Cmd {
	m.loading = true
	source := m.source
	timeRange := m.timeRange
	acc := m.state.SelectedAccount()

	return func() tea.Msg {
		if source == nil {
			return historyErrorMsg{err: "history is not available"}
		}

		var data snapshot
		if acc != nil {
			data.account = acc.ID
			data.name = acc.Name
		}

		var err error
		if data.account.Kind == models.KindOAuth {
			if data.series, err = source.UsageHistory(data.account.ID, timeRange); err != nil {
				return historyErrorMsg{err: err.Error()}
			}
			if data.rateLimits, err = source.RecentRateLimits(data.account.ID, rateLimitsLimit); err != nil {
				return historyErrorMsg{err: err.Error()}
			}
			if data.projection, err = source.Projection(data.account.ID); err != nil {
				return historyErrorMsg{err: err.Error()}
			}
		}
		if data.switches, err = source.RecentSwitches(switchesLimit); err != nil {
			return historyErrorMsg{err: err.Error()}
		}
		return historyLoadedMsg{data: data}
	}
}

// Update handles messages for the history tab.
func (m *Model) Update(msg tea.Msg) (app.Tab, tea.Cmd) {
	switch msg := msg.(type) {
	case historyLoadedMsg:
		m.data = &msg.data
		m.loading = false
		m.lastRefresh = time.Now()
		m.errorMsg = ""

	case historyErrorMsg:
		m.loading = false
		m.errorMsg = msg.err
		return m, func() tea.Msg {
			return app.AddNotificationMsg{
				Type:     app.NotificationError,
				Message:  fmt.Sprintf("History error: %s", msg.err),
				Duration: app.LongNotificationDuration,
			}
		}

	case app.TabSwitchMsg:
		if msg.Tab == app.TabHistory {
			return m, m.load()
		}

	case app.SelectedAccountChangedMsg, app.SwitchAccountResultMsg:
		if !m.loading {
			return m, m.load()
		}

	case app.AccountsLoadedMsg:
		if m.data == nil || m.selectionChanged() {
			return m, m.load()
		}

	case tea.KeyMsg:
		if key.Matches(msg, m.keys.ToggleRange) {
			m.timeRange = m.timeRange.Next()
			return m, m.load()
		}
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m *Model) selectionChanged() bool {
	acc := m.state.SelectedAccount()
	return acc != nil && acc.ID != m.data.account
}

// SetSize sets the available size for the history tab.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.viewport.Width = width
	m.viewport.Height = height
}

// ShortHelp returns the key bindings for the short help view.
func (m *Model) ShortHelp() []key.Binding {
	return []key.Binding{m.keys.ToggleRange}
}

// FullHelp returns the key bindings for the full help view.
func (m *Model) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{m.keys.ToggleRange},
		{m.keys.Up, m.keys.Down},
	}
}
