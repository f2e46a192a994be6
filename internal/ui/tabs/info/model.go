// Package info provides the info tab: configuration, switching policy, and build details.
package info

import (
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/j-veylop/agent-profiles/internal/app"
	"github.com/j-veylop/agent-profiles/internal/config"
	"github.com/j-veylop/agent-profiles/internal/models"
)

// Source exposes the settings and environment shown on the tab.
type Source interface {
	Settings() (models.AutoSwitchSettings, []models.AccountID)
	Env(id models.AccountID) (map[string]string, error)
}

type keyMap struct {
	Reveal key.Binding
	Up     key.Binding
	Down   key.Binding
}

func defaultKeyMap() keyMap {
	return keyMap{
		Reveal: key.NewBinding(
			key.WithKeys("s"),
			key.WithHelp("s", "show/hide secrets"),
		),
		Up: key.NewBinding(
			key.WithKeys("up", "k"),
			key.WithHelp("↑/k", "up"),
		),
		Down: key.NewBinding(
			key.WithKeys("down", "j"),
			key.WithHelp("↓/j", "down"),
		),
	}
}

// Model represents the info tab state.
type Model struct {
	state       *app.State
	config      *config.Config
	source      Source
	viewport    viewport.Model
	keys        keyMap
	width       int
	height      int
	showSecrets bool
}

// New creates a new info model. cfg and source may be nil.
func New(state *app.State, cfg *config.Config, source Source) *Model {
	return &Model{
		state:    state,
		config:   cfg,
		source:   source,
		keys:     defaultKeyMap(),
		viewport: viewport.New(0, 0),
	}
}

// Init initializes the info tab.
func (m *Model) Init() tea.Cmd {
	return nil
}

// Update handles messages for the info tab.
func (m *Model) Update(msg tea.Msg) (app.Tab, tea.Cmd) {
	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}

	if key.Matches(keyMsg, m.keys.Reveal) {
		m.showSecrets = !m.showSecrets
		return m, nil
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(keyMsg)
	return m, cmd
}

// SetSize sets the available size for the info tab.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.viewport.Width = width
	m.viewport.Height = height
}

// ShortHelp returns the key bindings for the short help view.
func (m *Model) ShortHelp() []key.Binding {
	return []key.Binding{m.keys.Reveal}
}

// FullHelp returns the key bindings for the full help view.
func (m *Model) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{m.keys.Reveal},
		{m.keys.Up, m.keys.Down},
	}
}
