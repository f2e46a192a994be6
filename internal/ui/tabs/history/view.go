package history

import (
	"fmt"
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/j-veylop/agent-profiles/internal/models"
	"github.com/j-veylop/agent-profiles/internal/ui/components"
	"github.com/j-veylop/agent-profiles/internal/ui/styles"
)

// View renders the history tab.
func (m *Model) View() string {
	if m.loading && m.data == nil {
		return m.frame(styles.HelpStyle.Render("Loading history..."))
	}
	if m.errorMsg != "" {
		return m.frame(fmt.Sprintf("%s %s", styles.ErrorTextStyle.Render("Error:"), m.errorMsg))
	}
	if m.data == nil {
		return m.frame(styles.HelpStyle.Render("No history loaded."))
	}

	content := lipgloss.JoinVertical(lipgloss.Left,
		m.renderHeader(),
		m.renderUsageChart(),
		m.renderForecast(),
		m.renderRateLimits(),
		m.renderSwitches(),
	)
	m.viewport.SetContent(content)

	return m.frame(m.viewport.View())
}

func (m *Model) frame(content string) string {
	return styles.DocStyle.
		Width(m.width).
		Height(m.height).
		Render(content)
}

func (m *Model) cardWidth() int {
	return max(m.width-6, 40)
}

func (m *Model) renderHeader() string {
	name := m.data.name
	if name == "" {
		name = "no account selected"
	}
	if len(name) > 40 {
		name = name[:37] + "..."
	}

	rangeIndicator := lipgloss.NewStyle().
		Foreground(styles.Primary).
		Bold(true).
		Padding(0, 1).
		Border(lipgloss.RoundedBorder()).
		BorderForeground(styles.Primary).
		Render(fmt.Sprintf("[t] %s", m.timeRange.String()))

	header := lipgloss.JoinHorizontal(lipgloss.Center, styles.TitleStyle.Render("History: "+name), "  ", rangeIndicator)

	var subtitle string
	if samples := m.data.series.Samples; len(samples) > 0 {
		subtitle = styles.HelpStyle.Render(fmt.Sprintf("%d samples: %s → %s",
			len(samples),
			samples[0].Timestamp.Local().Format("Jan 2 15:04"),
			samples[len(samples)-1].Timestamp.Local().Format("Jan 2 15:04"),
		))
	}

	return lipgloss.JoinVertical(lipgloss.Left, header, subtitle, "")
}

func (m *Model) card(title string, rows ...string) string {
	all := append([]string{styles.CardTitleStyle.Render(title)}, rows...)
	return styles.CardStyle.Width(m.cardWidth()).Render(lipgloss.JoinVertical(lipgloss.Left, all...))
}

func (m *Model) renderUsageChart() string {
	if m.data.account.Kind == models.KindAPIKey {
		return m.card("Usage", styles.HelpStyle.Render("API-key accounts do not report usage windows."))
	}

	series := m.data.series
	if len(series.Samples) == 0 {
		return m.card("Usage", styles.HelpStyle.Render("No usage recorded in this range."))
	}

	chart := components.RenderUsageChart(series.Session(), series.Weekly(), max(m.cardWidth()-14, 30), 8, "")

	var rows []string
	for line := range strings.SplitSeq(chart, "\n") {
		rows = append(rows, "  "+line)
	}

	peak, at := series.Peak()
	rows = append(rows,
		"",
		"  "+components.RenderLegend([]components.LegendItem{
			{Label: "Session", Color: components.SessionColor},
			{Label: "Weekly", Color: components.WeeklyColor},
		}),
		fmt.Sprintf("  Peak session: %s at %s",
			styles.GetUsageStyle(peak, false).Bold(true).Render(fmt.Sprintf("%.0f%%", peak)),
			at.Local().Format("Jan 2 15:04"),
		),
	)
	return m.card("Usage", rows...)
}

func (m *Model) renderForecast() string {
	proj := m.data.projection
	if m.data.account.Kind != models.KindOAuth || proj == nil {
		return ""
	}
	return m.card("Forecast",
		forecastRow("Session", proj.Session),
		forecastRow("Weekly", proj.Weekly),
	)
}

func forecastRow(label string, w *models.WindowProjection) string {
	if w == nil {
		return fmt.Sprintf("  %-8s %s", label, styles.HelpStyle.Render("n/a"))
	}

	var outlook string
	switch {
	case w.Status == models.ProjectionUnknown:
		outlook = "not enough data"
	case math.IsInf(w.HoursLeft, 1):
		outlook = "not growing"
	case w.WillExhaustBeforeReset:
		outlook = "runs out " + w.ExhaustAt.Local().Format("Jan 2 15:04")
	default:
		outlook = "lasts until reset"
	}

	return fmt.Sprintf("  %-8s %s  %5.1f%%/h  %s  %s",
		label,
		projectionStyle(w.Status).Render(fmt.Sprintf("%-8s", w.Status)),
		w.RatePerHour,
		outlook,
		styles.HelpStyle.Render(fmt.Sprintf("(%s confidence, %d samples)", w.Confidence, w.DataPoints)),
	)
}

func projectionStyle(status models.ProjectionStatus) lipgloss.Style {
	switch status {
	case models.ProjectionCritical:
		return styles.ErrorTextStyle.Bold(true)
	case models.ProjectionWarning:
		return styles.WarningTextStyle
	case models.ProjectionSafe:
		return styles.SuccessTextStyle
	default:
		return styles.HelpStyle
	}
}

func (m *Model) renderRateLimits() string {
	if m.data.account.Kind != models.KindOAuth {
		return ""
	}
	if len(m.data.rateLimits) == 0 {
		return m.card("Rate Limits", styles.HelpStyle.Render("No rate limits recorded."))
	}

	rows := make([]string, 0, len(m.data.rateLimits))
	for _, rl := range m.data.rateLimits {
		rows = append(rows, fmt.Sprintf("%s  %-8s reset %s",
			styles.HelpStyle.Render(rl.RecordedAt.Local().Format("Jan 2 15:04")),
			string(rl.Type),
			rl.ResetAt.Local().Format("Jan 2 15:04"),
		))
	}
	return m.card("Rate Limits", rows...)
}

func (m *Model) renderSwitches() string {
	if len(m.data.switches) == 0 {
		return m.card("Recent Switches", styles.HelpStyle.Render("No switches recorded."))
	}

	rows := make([]string, 0, len(m.data.switches))
	for _, ev := range m.data.switches {
		from := ev.From.String()
		if ev.From.IsZero() {
			from = "-"
		}
		rows = append(rows, fmt.Sprintf("%s  %s → %s  %s",
			styles.HelpStyle.Render(ev.Timestamp.Local().Format("Jan 2 15:04")),
			from,
			ev.To.String(),
			reasonStyle(ev.Reason).Render(string(ev.Reason)),
		))
	}
	return m.card("Recent Switches", rows...)
}

func reasonStyle(reason models.SwitchReason) lipgloss.Style {
	switch reason {
	case models.SwitchRateLimited:
		return styles.ErrorTextStyle
	case models.SwitchThreshold:
		return styles.WarningTextStyle
	default:
		return styles.InfoTextStyle
	}
}
