package tui

import "github.com/charmbracelet/lipgloss"

var (
	ColorBlue   = lipgloss.Color("12")
	ColorGreen  = lipgloss.Color("10")
	ColorYellow = lipgloss.Color("11")
	ColorRed    = lipgloss.Color("9")
	ColorGray   = lipgloss.Color("8")
	ColorWhite  = lipgloss.Color("15")
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true)
	mutedStyle  = lipgloss.NewStyle().Foreground(ColorGray)
	errorStyle  = lipgloss.NewStyle().Foreground(ColorRed)
	okStyle     = lipgloss.NewStyle().Foreground(ColorGreen)
	warnStyle   = lipgloss.NewStyle().Foreground(ColorYellow)
	cursorStyle = lipgloss.NewStyle().Foreground(ColorBlue).Bold(true)
)

// themeColor returns the template's primary color, or blue when it is unset.
func themeColor(hex string) lipgloss.TerminalColor {
	if hex == "" {
		return ColorBlue
	}
	return lipgloss.Color(hex)
}
