package iostreams

import "github.com/charmbracelet/lipgloss"

var (
	colorPrimary = lipgloss.Color("#2AA198")
	colorSuccess = lipgloss.Color("#04B575")
	colorWarning = lipgloss.Color("#FFCC00")
	colorError   = lipgloss.Color("#FF5F87")
	colorMuted   = lipgloss.Color("#626262")
	colorInfo    = lipgloss.Color("#87CEEB")
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(colorPrimary)
	errorStyle   = lipgloss.NewStyle().Foreground(colorError)
	successStyle = lipgloss.NewStyle().Foreground(colorSuccess)
	warningStyle = lipgloss.NewStyle().Foreground(colorWarning)
	mutedStyle   = lipgloss.NewStyle().Foreground(colorMuted)
	boldStyle    = lipgloss.NewStyle().Bold(true)
)

// InfoStyle colors in-progress indicators such as spinners.
var InfoStyle = lipgloss.NewStyle().Foreground(colorInfo)
