package components

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/lipgloss"

	"github.com/j-veylop/agent-profiles/internal/logger"
	"github.com/j-veylop/agent-profiles/internal/ui/styles"
)

const (
	lowUsageColor  = "#51cf66"
	highUsageColor = "#ff6b6b"
)

// UsageBar renders how much of a rate-limit window has been consumed.
type UsageBar struct {
	progress progress.Model
}

// NewUsageBar creates a bar that shades from green to red as usage grows.
func NewUsageBar() UsageBar {
	return UsageBar{
		progress: progress.New(
			progress.WithScaledGradient(lowUsageColor, highUsageColor),
			progress.WithWidth(30),
			progress.WithoutPercentage(),
		),
	}
}

// View renders the bar with a label and the percentage.
func (u UsageBar) View(percent float64, label string, width int) string {
	u.progress.Width = max(width-24, 10)

	percentStr := styles.GetUsageStyle(percent, false).
		Width(6).
		Align(lipgloss.Right).
		Render(fmt.Sprintf("%.0f%%", percent))

	return lipgloss.JoinHorizontal(lipgloss.Center,
		styles.LabelStyle.Width(16).Render(label),
		u.progress.ViewAs(clampPercent(percent)/100),
		" ",
		percentStr,
	)
}

// ViewRateLimited renders an exhausted bar with the time the limit lifts.
func (u UsageBar) ViewRateLimited(label, until string, width int) string {
	barWidth := max(width-24, 10)
	return lipgloss.JoinHorizontal(lipgloss.Center,
		styles.LabelStyle.Width(16).Render(label),
		lipgloss.NewStyle().Foreground(styles.Error).Render(strings.Repeat("░", barWidth)),
		" ",
		styles.RateLimitedStyle.Render("LIMITED until "+until),
	)
}

// RenderGradientBar renders just the bar characters, shaded by position.
func RenderGradientBar(percent float64, width int) string {
	if width < 1 {
		return ""
	}

	filled := int(float64(width) * clampPercent(percent) / 100)

	var b strings.Builder
	for i := range width {
		if i < filled {
			t := float64(i) / float64(max(1, width-1))
			color := interpolateColor(lowUsageColor, highUsageColor, t)
			b.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color(color)).Render("█"))
		} else {
			b.WriteString(lipgloss.NewStyle().Foreground(styles.Subtle).Render("░"))
		}
	}
	return b.String()
}

// SimpleUsageBar renders a one-line bar sized for table cells.
func SimpleUsageBar(percent float64, width int) string {
	bar := RenderGradientBar(percent, max(width-6, 5))
	return bar + styles.GetUsageStyle(percent, false).Width(6).Align(lipgloss.Right).Render(fmt.Sprintf("%.0f%%", percent))
}

func clampPercent(p float64) float64 {
	return max(0, min(p, 100))
}

func interpolateColor(fromHex, toHex string, t float64) string {
	from := hexToRGB(fromHex)
	to := hexToRGB(toHex)

	r := int(float64(from[0]) + t*(float64(to[0])-float64(from[0])))
	g := int(float64(from[1]) + t*(float64(to[1])-float64(from[1])))
	b := int(float64(from[2]) + t*(float64(to[2])-float64(from[2])))

	return fmt.Sprintf("#%02x%02x%02x", r, g, b)
}

func hexToRGB(hex string) [3]int {
	hex = strings.TrimPrefix(hex, "#")
	var r, g, b int
	if _, err := fmt.Sscanf(hex, "%02x%02x%02x", &r, &g, &b); err != nil {
		logger.Error("failed to parse hex color", "hex", hex, "error", err)
		return [3]int{0, 0, 0}
	}
	return [3]int{r, g, b}
}
