package info

import (
	"fmt"
	"maps"
	"runtime"
	"slices"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/j-veylop/agent-profiles/internal/ui/styles"
	"github.com/j-veylop/agent-profiles/internal/version"
)

// View renders the info tab.
func (m *Model) View() string {
	content := lipgloss.JoinVertical(lipgloss.Left,
		m.renderTitle(),
		m.renderConfigCard(),
		m.renderPolicyCard(),
		m.renderEnvCard(),
		m.renderAboutCard(),
	)

	m.viewport.SetContent(content)

	return styles.DocStyle.
		Width(m.width).
		Height(m.height).
		Render(m.viewport.View())
}

func (m *Model) renderTitle() string {
	title := styles.TitleStyle.Render("Info")
	subtitle := styles.HelpStyle.Render("Configuration and application information")
	return lipgloss.JoinVertical(lipgloss.Left, title, subtitle, "")
}

func (m *Model) card(title string, rows ...string) string {
	cardWidth := min(max(m.width-6, 50), 90)
	all := append([]string{styles.CardTitleStyle.Render(title)}, rows...)
	return styles.CardStyle.Width(cardWidth).Render(lipgloss.JoinVertical(lipgloss.Left, all...))
}

func row(label, value string) string {
	return styles.LabelStyle.Render(label+":") + styles.ValueStyle.Render(value)
}

func (m *Model) renderConfigCard() string {
	c := m.config
	if c == nil {
		return m.card("Configuration", styles.HelpStyle.Render("Configuration not loaded"))
	}
	return m.card("Configuration",
		row("Data Dir", c.DataDir),
		row("Profiles File", c.ProfilesPath),
		row("API Profiles File", c.APIProfilesPath),
		row("Database", c.DatabasePath),
		row("Profiles Dir", c.ProfilesDir),
		row("Default Config Dir", c.DefaultConfigDir),
		row("Keyring Service", c.VaultService),
		row("Log Level", c.LogLevel+" ("+c.LogFormat+")"),
		row("Watch Store", onOff(c.WatchStore)),
		row("Notifications", onOff(c.Notifications)),
	)
}

func (m *Model) renderPolicyCard() string {
	if m.source == nil {
		return ""
	}

	settings, order := m.source.Settings()
	session, weekly := settings.Thresholds()

	priority := "ranking order"
	if len(order) > 0 {
		ids := make([]string, len(order))
		for i, id := range order {
			ids[i] = id.String()
		}
		priority = strings.Join(ids, " > ")
	}

	return m.card("Auto-Switch",
		row("Enabled", onOff(settings.Enabled)),
		row("Session Threshold", fmt.Sprintf("%.0f%%", session)),
		row("Weekly Threshold", fmt.Sprintf("%.0f%%", weekly)),
		row("Switch On Limit", onOff(settings.SwitchOnRateLimit)),
		row("Check Interval", settings.UsageCheckInterval.String()),
		row("Priority", priority),
	)
}

func (m *Model) renderEnvCard() string {
	active := m.state.ActiveAccount()
	if m.source == nil || active == nil {
		return ""
	}

	env, err := m.source.Env(active.ID)
	if err != nil {
		return m.card("Environment", styles.ErrorTextStyle.Render(err.Error()))
	}
	if len(env) == 0 {
		return m.card("Environment: "+active.Name, styles.HelpStyle.Render("Uses the default configuration"))
	}

	rows := make([]string, 0, len(env)+2)
	for _, k := range slices.Sorted(maps.Keys(env)) {
		v := env[k]
		if !m.showSecrets && isSecret(k) {
			v = mask(v)
		}
		rows = append(rows, styles.InfoTextStyle.Render(k)+"="+v)
	}
	rows = append(rows, "", styles.HelpStyle.Render("Press 's' to show secrets"))
	return m.card("Environment: "+active.Name, rows...)
}

func isSecret(name string) bool {
	return strings.Contains(name, "TOKEN") || strings.Contains(name, "KEY")
}

func mask(v string) string {
	if len(v) <= 8 {
		return strings.Repeat("*", len(v))
	}
	return v[:4] + strings.Repeat("*", 8) + v[len(v)-4:]
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

func (m *Model) renderAboutCard() string {
	return m.card("About "+version.AppName,
		row("Version", version.GetVersion()),
		row("Build Date", version.GetDate()),
		row("Git Commit", version.GetCommit()),
		row("Go Version", runtime.Version()),
		row("Platform", fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH)),
		"",
		fmt.Sprintf("Accounts: %s", styles.InfoTextStyle.Render(fmt.Sprintf("%d", len(m.state.Accounts())))),
	)
}
