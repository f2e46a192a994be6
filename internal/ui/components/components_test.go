package components

import (
	"strings"
	"testing"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
)

func TestSpinner(t *testing.T) {
	s := NewSpinner("Loading")
	if !strings.Contains(s.View(), "Loading") {
		t.Error("View should include the label")
	}

	s.SetLabel("Fetching history")
	if !strings.Contains(s.View(), "Fetching history") {
		t.Error("SetLabel should change the rendered label")
	}

	if s.Tick() == nil {
		t.Error("Tick should return command")
	}
	if _, cmd := s.Update(spinner.TickMsg{}); cmd == nil {
		t.Error("Update should return command for tick")
	}

	if view := s.RenderCentered(40, 5); strings.Count(view, "\n") != 4 {
		t.Errorf("RenderCentered should fill the height, got %q", view)
	}
}

func TestRenderLineChart(t *testing.T) {
	if got := RenderLineChart(nil, 20, 5, "Session"); !strings.Contains(got, "No data") {
		t.Errorf("empty chart = %q", got)
	}

	chart := RenderLineChart([]float64{10, 40, 80, 95}, 20, 5, "Session")
	if !strings.Contains(chart, "Session") {
		t.Error("chart should carry its caption")
	}
	if !strings.Contains(chart, "100") {
		t.Error("chart should be scaled to 100")
	}
}

func TestRenderUsageChart(t *testing.T) {
	if got := RenderUsageChart(nil, nil, 20, 5, ""); !strings.Contains(got, "No data") {
		t.Errorf("empty chart = %q", got)
	}
	if RenderUsageChart([]float64{1, 2, 3}, []float64{5}, 20, 5, "Usage") == "" {
		t.Error("RenderUsageChart returned empty")
	}
}

func TestRenderSparkline(t *testing.T) {
	if RenderSparkline(nil, 10) != "" {
		t.Error("empty sparkline should render nothing")
	}

	plain := ansi.Strip(RenderSparkline([]float64{0, 50, 100}, 10))
	if plain != "▁▄█" {
		t.Errorf("sparkline = %q, want ▁▄█", plain)
	}

	sampled := ansi.Strip(RenderSparkline(make([]float64, 100), 10))
	if got := len([]rune(sampled)); got != 10 {
		t.Errorf("sampled width = %d, want 10", got)
	}
}

func TestRenderLegend(t *testing.T) {
	s := RenderLegend([]LegendItem{
		{Label: "Session", Color: SessionColor},
		{Label: "Weekly", Color: lipgloss.Color("#ffffff")},
	})
	if !strings.Contains(s, "Session") || !strings.Contains(s, "Weekly") {
		t.Errorf("legend = %q", s)
	}
}
