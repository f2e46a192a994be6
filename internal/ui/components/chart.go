// Package components provides reusable UI components for the TUI.
package components

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/guptarohit/asciigraph"

	"github.com/j-veylop/agent-profiles/internal/ui/styles"
)

// Chart series colors.
var (
	SessionColor = lipgloss.Color("#cc785c")
	WeeklyColor  = lipgloss.Color("#4285f4")
)

var sparkChars = []rune{'▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}

func chartBounds(width, height int) (int, int) {
	return max(width, 20), max(height, 3)
}

// RenderLineChart creates a single-series ASCII line chart on a 0-100 scale.
func RenderLineChart(data []float64, width, height int, caption string) string {
	if len(data) == 0 {
		return styles.HelpStyle.Render("No data available")
	}

	width, height = chartBounds(width, height)
	return asciigraph.Plot(data,
		asciigraph.Height(height),
		asciigraph.Width(width),
		asciigraph.LowerBound(0),
		asciigraph.UpperBound(100),
		asciigraph.Caption(caption),
	)
}

// RenderUsageChart plots session and weekly usage percentages together.
func RenderUsageChart(session, weekly []float64, width, height int, caption string) string {
	if len(session) == 0 && len(weekly) == 0 {
		return styles.HelpStyle.Render("No data available")
	}

	width, height = chartBounds(width, height)

	n := max(len(session), len(weekly))
	sessionData := make([]float64, n)
	weeklyData := make([]float64, n)
	copy(sessionData, session)
	copy(weeklyData, weekly)

	return asciigraph.PlotMany([][]float64{sessionData, weeklyData},
		asciigraph.Height(height),
		asciigraph.Width(width),
		asciigraph.LowerBound(0),
		asciigraph.UpperBound(100),
		asciigraph.Caption(caption),
		asciigraph.SeriesColors(asciigraph.Red, asciigraph.Blue),
	)
}

// RenderSparkline creates a compact inline chart of percentages, sampled down to width.
func RenderSparkline(values []float64, width int) string {
	if len(values) == 0 || width <= 0 {
		return ""
	}

	step := max(float64(len(values))/float64(width), 1)

	var b strings.Builder
	for i := 0; i < width && int(float64(i)*step) < len(values); i++ {
		v := values[int(float64(i)*step)]
		idx := int(v / 100 * float64(len(sparkChars)-1))
		idx = max(0, min(idx, len(sparkChars)-1))
		b.WriteString(styles.GetUsageStyle(v, false).Render(string(sparkChars[idx])))
	}
	return b.String()
}

// LegendItem represents a single legend entry.
type LegendItem struct {
	Label string
	Color lipgloss.Color
}

// RenderLegend creates a chart legend.
func RenderLegend(items []LegendItem) string {
	parts := make([]string, 0, len(items))
	for _, item := range items {
		box := lipgloss.NewStyle().Foreground(item.Color).Render("■")
		parts = append(parts, fmt.Sprintf("%s %s", box, item.Label))
	}
	return strings.Join(parts, "  ")
}
