package lipgloss

import "github.com/charmbracelet/lipgloss"

// Shared terminal styles for one-shot status messages.
var (
	Red    = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	Yellow = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	Green  = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	Cyan   = lipgloss.NewStyle().Foreground(lipgloss.Color("14"))

	BoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("63")).
			Padding(0, 1)
)
