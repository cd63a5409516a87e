package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/tinytelemetry/canopy/internal/model"
	"github.com/tinytelemetry/canopy/internal/visibility"
)

const sidebarWidth = 26

func checkbox(checked bool) string {
	if checked {
		return "[x]"
	}
	return "[ ]"
}

func selectAllBox(s visibility.SelectAllState) string {
	switch s {
	case visibility.SelectAll:
		return "[x]"
	case visibility.SelectSome:
		return "[-]"
	}
	return "[ ]"
}

// renderSidebar renders the chart visibility checklist.
func (d *DashboardPage) renderSidebar(height int) string {
	vis := d.engine.Visibility()
	stats := vis.Stats()

	var b strings.Builder
	b.WriteString(titleStyle.Render("Charts"))
	b.WriteString(mutedStyle.Render(fmt.Sprintf(" %d/%d", stats.Visible, stats.Total)))
	b.WriteString("\n")
	b.WriteString(selectAllBox(stats.SelectAll()) + " all (a)\n\n")

	for i, kind := range model.VisibilityKinds() {
		label := string(kind)
		if chart, ok := kind.Chart(); ok {
			label = chart.Title()
		}
		line := fmt.Sprintf("%s %d %s", checkbox(vis.IsVisible(kind)), i+1, label)
		if i == d.cursor {
			line = cursorStyle.Render("> " + line)
		} else {
			line = "  " + line
		}
		b.WriteString(line + "\n")
	}

	return lipgloss.NewStyle().
		Width(sidebarWidth-2).
		Height(max(height-2, 1)).
		Border(lipgloss.NormalBorder(), false, true, false, false).
		BorderForeground(ColorGray).
		PaddingRight(1).
		Render(b.String())
}
