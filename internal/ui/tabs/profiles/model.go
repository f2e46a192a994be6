// Package profiles provides the account list tab: ranking, switching, and profile management.
package profiles

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/j-veylop/agent-profiles/internal/app"
	"github.com/j-veylop/agent-profiles/internal/models"
	"github.com/j-veylop/agent-profiles/internal/ui/components"
	"github.com/j-veylop/agent-profiles/internal/ui/styles"
	"github.com/j-veylop/agent-profiles/internal/unified"
)

type keyMap struct {
	Switch     key.Binding
	Best       key.Binding
	ClearLimit key.Binding
	Add        key.Binding
	Delete     key.Binding
	Escape     key.Binding
}

func defaultKeyMap() keyMap {
	return keyMap{
		Switch: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "switch to account"),
		),
		Best: key.NewBinding(
			key.WithKeys("b"),
			key.WithHelp("b", "switch to best"),
		),
		ClearLimit: key.NewBinding(
			key.WithKeys("c"),
			key.WithHelp("c", "clear rate limit"),
		),
		Add: key.NewBinding(
			key.WithKeys("n", "a"),
			key.WithHelp("n", "add profile"),
		),
		Delete: key.NewBinding(
			key.WithKeys("d", "delete"),
			key.WithHelp("d", "delete"),
		),
		Escape: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "cancel"),
		),
	}
}

// Model is the profiles tab.
type Model struct {
	state         *app.State
	table         table.Model
	ids           []models.AccountID
	nameInput     textinput.Model
	spinner       components.LoadingSpinner
	usageBar      components.UsageBar
	keys          keyMap
	now           func() time.Time
	deleteTarget  models.AccountID
	deleteName    string
	width         int
	height        int
	adding        bool
	confirmDelete bool
}

// New creates the profiles tab over the shared state.
func New(state *app.State) *Model {
	nameInput := textinput.New()
	nameInput.Placeholder = "Work, Personal, ..."
	nameInput.CharLimit = 64
	nameInput.Width = 40

	t := table.New(
		table.WithColumns(columns(30)),
		table.WithFocused(true),
		table.WithHeight(10),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(styles.Subtle).
		BorderBottom(true).
		Bold(true).
		Foreground(styles.Primary)
	s.Selected = s.Selected.
		Foreground(styles.TextPrimary).
		Background(styles.BgAccent).
		Bold(true)
	t.SetStyles(s)

	return &Model{
		state:     state,
		table:     t,
		nameInput: nameInput,
		spinner:   components.NewSpinner("Loading profiles..."),
		usageBar:  components.NewUsageBar(),
		keys:      defaultKeyMap(),
		now:       time.Now,
	}
}

func columns(nameWidth int) []table.Column {
	return []table.Column{
		{Title: "", Width: 1},
		{Title: "Name", Width: nameWidth},
		{Title: "Kind", Width: 7},
		{Title: "Session", Width: 8},
		{Title: "Weekly", Width: 8},
		{Title: "Status", Width: 20},
	}
}

// Init starts the loading spinner.
func (m *Model) Init() tea.Cmd {
	return m.spinner.Tick()
}

// CapturingInput reports whether the add form owns the keyboard.
func (m *Model) CapturingInput() bool {
	return m.adding
}

// Update handles messages for the profiles tab.
func (m *Model) Update(msg tea.Msg) (app.Tab, tea.Cmd) {
	if m.adding {
		return m.updateAddForm(msg)
	}
	if m.confirmDelete {
		return m.updateDeleteConfirm(msg)
	}

	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m, m.handleKey(msg)

	case app.AccountsLoadedMsg, app.ServiceEventMsg, app.SwitchAccountResultMsg, app.DeleteAccountResultMsg:
		m.syncRows()

	default:
		if m.state.IsLoading() {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			return m, cmd
		}
	}

	return m, nil
}

func (m *Model) handleKey(msg tea.KeyMsg) tea.Cmd {
	selected, hasSelection := m.selectedID()

	switch {
	case key.Matches(msg, m.keys.Switch):
		if hasSelection {
			return emit(app.SwitchAccountMsg{ID: selected, Reason: models.SwitchManual})
		}

	case key.Matches(msg, m.keys.Best):
		return emit(app.SwitchToBestMsg{})

	case key.Matches(msg, m.keys.ClearLimit):
		if hasSelection {
			return emit(app.ClearRateLimitMsg{ID: selected})
		}

	case key.Matches(msg, m.keys.Delete):
		if hasSelection {
			m.confirmDelete = true
			m.deleteTarget = selected
			m.deleteName = m.table.SelectedRow()[1]
		}

	case key.Matches(msg, m.keys.Add):
		m.adding = true
		m.nameInput.SetValue("")
		m.nameInput.Focus()
		return textinput.Blink

	default:
		before := m.table.Cursor()
		var cmd tea.Cmd
		m.table, cmd = m.table.Update(msg)
		if after := m.table.Cursor(); after != before && after < len(m.ids) {
			m.state.SetSelectedIndex(after)
			id := m.ids[after]
			return tea.Batch(cmd, emit(app.SelectedAccountChangedMsg{ID: id, Index: after}))
		}
		return cmd
	}
	return nil
}

func emit(msg tea.Msg) tea.Cmd {
	return func() tea.Msg { return msg }
}

func (m *Model) updateAddForm(msg tea.Msg) (app.Tab, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok {
		switch msg.Type {
		case tea.KeyEsc:
			m.closeAddForm()
			return m, nil
		case tea.KeyEnter:
			name := m.nameInput.Value()
			if name == "" {
				return m, nil
			}
			m.closeAddForm()
			return m, emit(app.AddProfileMsg{Name: name})
		}
	}

	var cmd tea.Cmd
	m.nameInput, cmd = m.nameInput.Update(msg)
	return m, cmd
}

func (m *Model) closeAddForm() {
	m.adding = false
	m.nameInput.Blur()
}

func (m *Model) updateDeleteConfirm(msg tea.Msg) (app.Tab, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok {
		switch msg.String() {
		case "y", "Y":
			id := m.deleteTarget
			m.resetDelete()
			return m, emit(app.DeleteAccountMsg{ID: id})
		case "n", "N", "esc":
			m.resetDelete()
		}
	}
	return m, nil
}

func (m *Model) resetDelete() {
	m.confirmDelete = false
	m.deleteTarget = models.AccountID{}
	m.deleteName = ""
}

func (m *Model) selectedID() (models.AccountID, bool) {
	idx := m.table.Cursor()
	if idx < 0 || idx >= len(m.ids) {
		return models.AccountID{}, false
	}
	return m.ids[idx], true
}

// syncRows rebuilds the table from the shared state and restores the cursor.
func (m *Model) syncRows() {
	accounts := m.state.Accounts()
	rows := make([]table.Row, 0, len(accounts))
	ids := make([]models.AccountID, 0, len(accounts))

	now := m.now()
	for _, acc := range accounts {
		marker := ""
		if acc.Active {
			marker = "*"
		}
		session, weekly := usageColumns(acc)
		rows = append(rows, table.Row{
			marker,
			acc.Name,
			kindLabel(acc.ID.Kind),
			session,
			weekly,
			statusLabel(acc, now),
		})
		ids = append(ids, acc.ID)
	}

	m.ids = ids
	m.table.SetRows(rows)
	if len(rows) > 0 {
		m.table.SetCursor(m.state.SelectedIndex())
	}
}

func kindLabel(kind models.AccountKind) string {
	switch kind {
	case models.KindOAuth:
		return "oauth"
	case models.KindAPIKey:
		return "api"
	default:
		return "?"
	}
}

func usageColumns(acc unified.Account) (string, string) {
	if acc.OAuth == nil || acc.OAuth.Usage == nil {
		return "-", "-"
	}
	return formatPercent(acc.OAuth.Usage.SessionUsagePercent), formatPercent(acc.OAuth.Usage.WeeklyUsagePercent)
}

func formatPercent(p float64) string {
	return fmt.Sprintf("%.0f%%", p)
}

func statusLabel(acc unified.Account, now time.Time) string {
	switch {
	case !acc.AvailableAt.IsZero() && acc.AvailableAt.After(now):
		return "limited " + formatUntil(acc.AvailableAt, now)
	case acc.Available:
		return "available"
	case acc.ID.Kind == models.KindAPIKey:
		return "no key"
	case acc.OAuth != nil && !acc.OAuth.HasValidToken(now) && acc.OAuth.OAuthToken != "":
		return "token expired"
	default:
		return "unavailable"
	}
}

// formatUntil shows a clock time for limits lifting today and a date otherwise.
func formatUntil(t, now time.Time) string {
	t = t.Local()
	if t.YearDay() == now.Local().YearDay() && t.Year() == now.Local().Year() {
		return "until " + t.Format("15:04")
	}
	return "until " + t.Format("Jan 2 15:04")
}

// SetSize sets the available size for the tab.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.table.SetHeight(max(height-16, 3))

	nameWidth := min(max(width-62, 16), 40)
	m.table.SetColumns(columns(nameWidth))
}

// ShortHelp returns the key bindings for the short help view.
func (m *Model) ShortHelp() []key.Binding {
	if m.adding {
		return []key.Binding{
			key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "create")),
			m.keys.Escape,
		}
	}
	return []key.Binding{m.keys.Switch, m.keys.Best, m.keys.Add, m.keys.Delete}
}

// FullHelp returns the key bindings for the full help view.
func (m *Model) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{m.keys.Switch, m.keys.Best, m.keys.ClearLimit},
		{m.keys.Add, m.keys.Delete},
	}
}
