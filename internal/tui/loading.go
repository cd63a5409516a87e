package tui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

const spinnerInterval = 120 * time.Millisecond

// renderLoadingPlaceholder renders an animated loading indicator.
// The frame is selected based on the current time so it animates on re-render.
func renderLoadingPlaceholder(width, height int) string {
	frame := spinnerFrames[time.Now().UnixMilli()/spinnerInterval.Milliseconds()%int64(len(spinnerFrames))]

	loadingStyle := lipgloss.NewStyle().
		Foreground(ColorGray).
		Italic(true)

	text := loadingStyle.Render(frame + " Loading...")

	return lipgloss.Place(width, height, lipgloss.Center, lipgloss.Center, text)
}

// SpinnerTickMsg triggers a re-render for loading spinners.
type SpinnerTickMsg struct{}

// anyChartLoading returns true if a visible chart has no payload yet and a
// fetch is in flight.
func (d *DashboardPage) anyChartLoading() bool {
	for _, c := range d.frame.Charts {
		if c.Loading {
			return true
		}
	}
	return false
}

// startSpinnerIfNeeded schedules a spinner tick if any chart is loading.
func (d *DashboardPage) startSpinnerIfNeeded() tea.Cmd {
	if d.spinning || !d.anyChartLoading() {
		return nil
	}
	d.spinning = true
	return tea.Tick(spinnerInterval, func(_ time.Time) tea.Msg {
		return SpinnerTickMsg{}
	})
}
