package profiles

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/j-veylop/agent-profiles/internal/models"
	"github.com/j-veylop/agent-profiles/internal/ui/styles"
	"github.com/j-veylop/agent-profiles/internal/unified"
)

// View renders the profiles tab.
func (m *Model) View() string {
	if m.state.IsLoading() {
		return m.spinner.RenderCentered(m.width, m.height)
	}

	sections := []string{m.renderTitle()}
	if banner := m.renderRecommendation(); banner != "" {
		sections = append(sections, banner)
	}

	switch {
	case m.adding:
		sections = append(sections, m.renderAddForm())
	case m.confirmDelete:
		sections = append(sections, m.renderDeleteConfirm(), m.renderTable())
	default:
		sections = append(sections, m.renderTable(), m.renderDetails())
	}

	sections = append(sections, m.renderFooter())

	return styles.DocStyle.
		Width(m.width).
		Render(lipgloss.JoinVertical(lipgloss.Left, sections...))
}

func (m *Model) renderTitle() string {
	accounts := m.state.Accounts()
	available := 0
	for _, acc := range accounts {
		if acc.Available {
			available++
		}
	}

	title := styles.TitleStyle.Render("Profiles")
	subtitle := styles.HelpStyle.Render(fmt.Sprintf("%d accounts, %d available", len(accounts), available))
	return lipgloss.JoinVertical(lipgloss.Left, title, subtitle, "")
}

func (m *Model) renderRecommendation() string {
	rec := m.state.Recommendation()
	if rec == nil {
		return ""
	}

	msg := "Consider switching: " + rec.Reason
	if rec.Suggested != nil {
		msg += fmt.Sprintf(" (suggested: %s, press b)", rec.Suggested.Name)
	}
	return styles.WarningTextStyle.Bold(true).Render(msg)
}

func (m *Model) cardWidth() int {
	return max(m.width-6, 60)
}

func (m *Model) renderTable() string {
	if len(m.state.Accounts()) == 0 {
		return m.renderEmptyState()
	}
	if len(m.ids) == 0 {
		m.syncRows()
	}
	return styles.CardStyle.Width(m.cardWidth()).Render(m.table.View())
}

func (m *Model) renderEmptyState() string {
	content := lipgloss.JoinVertical(lipgloss.Center,
		"",
		styles.SubTitleStyle.Render("No Profiles Configured"),
		"",
		styles.HelpStyle.Render("Add a profile, then log in with its config directory."),
		"",
		styles.InfoTextStyle.Render("Press 'n' to add a new profile"),
		"",
	)
	return styles.CardStyle.Width(m.cardWidth()).Render(content)
}

// renderDetails shows usage bars and limits for the highlighted account.
func (m *Model) renderDetails() string {
	acc := m.state.SelectedAccount()
	if acc == nil {
		return ""
	}

	width := m.cardWidth() - 6
	title := styles.CardTitleStyle.Render(acc.Name) + " " + styles.GetKindStyle(acc.ID.Kind).Render(acc.ID.String())
	if acc.Active {
		title += " " + styles.ActiveMarkerStyle.Render("(active)")
	}
	rows := []string{title}

	switch {
	case acc.OAuth != nil:
		rows = append(rows, m.oauthDetails(*acc, width)...)
	case acc.API != nil:
		rows = append(rows, m.apiDetails(*acc)...)
	}

	return styles.CardStyle.Width(m.cardWidth()).Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}

func (m *Model) oauthDetails(acc unified.Account, width int) []string {
	p := acc.OAuth
	var rows []string
	if p.Email != "" {
		rows = append(rows, field("Email", p.Email))
	}
	if p.SubscriptionType != "" {
		rows = append(rows, field("Plan", p.SubscriptionType))
	}
	rows = append(rows, field("Config dir", p.ConfigDir))

	now := m.now()
	limited := !acc.AvailableAt.IsZero() && acc.AvailableAt.After(now)
	if limited {
		rows = append(rows, "", m.usageBar.ViewRateLimited("Rate limit", formatUntil(acc.AvailableAt, now), width))
	}

	if u := p.Usage; u != nil {
		rows = append(rows, "")
		rows = append(rows,
			m.usageBar.View(u.SessionUsagePercent, "Session", width),
			m.usageBar.View(u.WeeklyUsagePercent, "Weekly", width),
		)
		if u.OpusUsagePercent != nil {
			rows = append(rows, m.usageBar.View(*u.OpusUsagePercent, "Weekly (Opus)", width))
		}
		if !u.LastUpdated.IsZero() {
			rows = append(rows, styles.HelpStyle.Render("updated "+u.LastUpdated.Local().Format("Jan 2 15:04")))
		}
	} else if !limited {
		rows = append(rows, "", styles.HelpStyle.Render("No usage reported yet"))
	}
	return rows
}

func (m *Model) apiDetails(acc unified.Account) []string {
	a := acc.API
	rows := []string{field("Base URL", a.BaseURL)}
	if !a.HasKey() {
		rows = append(rows, styles.ErrorTextStyle.Render("No API key stored"))
	}
	if len(a.Models) > 0 {
		aliases := make([]string, 0, len(a.Models))
		for _, alias := range slices.Sorted(maps.Keys(a.Models)) {
			aliases = append(aliases, alias+"="+a.Models[alias])
		}
		rows = append(rows, field("Models", strings.Join(aliases, ", ")))
	}
	if now := m.now(); a.IsRateLimited(now) {
		rows = append(rows, styles.RateLimitedStyle.Render("Rate limited "+formatUntil(*a.RateLimitedUntil, now)))
	}
	return rows
}

func field(label, value string) string {
	return styles.LabelStyle.Render(label) + styles.ValueStyle.Render(value)
}

func (m *Model) renderAddForm() string {
	width := min(max(m.width-10, 50), 80)

	content := lipgloss.JoinVertical(lipgloss.Left,
		styles.CardTitleStyle.Render("Add OAuth Profile"),
		styles.FocusedStyle.Render("> Name:"),
		m.nameInput.View(),
		"",
		styles.HelpStyle.Render("A config directory is created for the profile."),
		styles.HelpStyle.Render("Enter: create | Esc: cancel"),
	)
	return styles.CardStyle.Width(width).Render(content)
}

func (m *Model) renderDeleteConfirm() string {
	warning := "This action cannot be undone."
	if m.deleteTarget.Kind == models.KindOAuth {
		warning = "The profile's config directory is removed."
	}

	content := lipgloss.JoinVertical(lipgloss.Center,
		styles.WarningTextStyle.Bold(true).Render("Delete Account?"),
		"",
		styles.ErrorTextStyle.Render(m.deleteName),
		"",
		warning,
		"",
		styles.FocusedStyle.Render("(y)es")+"  "+styles.BlurredStyle.Render("(n)o"),
	)
	return styles.CardStyle.Width(50).Render(content)
}

func (m *Model) renderFooter() string {
	var shortcuts []string
	switch {
	case m.adding:
		shortcuts = []string{"enter create", "esc cancel"}
	case m.confirmDelete:
		shortcuts = []string{"y confirm", "n cancel"}
	default:
		shortcuts = []string{"enter switch", "b best", "c clear limit", "n add", "d delete", "r refresh"}
	}
	return lipgloss.NewStyle().
		MarginTop(1).
		Foreground(styles.TextMuted).
		Render(strings.Join(shortcuts, " | "))
}
