package iostreams

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
)

// ColorScheme formats text for the terminal. A disabled scheme returns its
// input unchanged and uses bracketed words in place of icons.
type ColorScheme struct {
	enabled bool
}

// NewColorScheme returns a ColorScheme.
func NewColorScheme(enabled bool) *ColorScheme {
	return &ColorScheme{enabled: enabled}
}

// Enabled reports whether colors are emitted.
func (cs *ColorScheme) Enabled() bool { return cs.enabled }

func (cs *ColorScheme) render(style lipgloss.Style, s string) string {
	if !cs.enabled {
		return s
	}
	return style.Render(s)
}

func (cs *ColorScheme) Red(s string) string { return cs.render(errorStyle, s) }
func (cs *ColorScheme) Yellow(s string) string { return cs.render(warningStyle, s) }
func (cs *ColorScheme) Green(s string) string { return cs.render(successStyle, s) }
func (cs *ColorScheme) Cyan(s string) string { return cs.render(InfoStyle, s) }
func (cs *ColorScheme) Primary(s string) string { return cs.render(titleStyle, s) }
func (cs *ColorScheme) Bold(s string) string { return cs.render(boldStyle, s) }
func (cs *ColorScheme) Muted(s string) string { return cs.render(mutedStyle, s) }

// Mutedf formats and mutes.
func (cs *ColorScheme) Mutedf(format string, a ...any) string {
	return cs.Muted(fmt.Sprintf(format, a...))
}

func (cs *ColorScheme) icon(glyph, plain string, color func(string) string) string {
	if !cs.enabled {
		return plain
	}
	return color(glyph)
}

// SuccessIcon is a green check, or "[ok]".
func (cs *ColorScheme) SuccessIcon() string { return cs.icon("✓", "[ok]", cs.Green) }

// WarningIcon is a yellow "!", or "[warn]".
func (cs *ColorScheme) WarningIcon() string { return cs.icon("!", "[warn]", cs.Yellow) }

// FailureIcon is a red cross, or "[error]".
func (cs *ColorScheme) FailureIcon() string { return cs.icon("✗", "[error]", cs.Red) }
