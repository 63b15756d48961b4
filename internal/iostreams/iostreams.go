// Package iostreams wraps the process streams with terminal detection and
// color formatting so commands can be tested against plain buffers.
package iostreams

import (
	"io"
	"os"

	"github.com/muesli/termenv"
	"golang.org/x/term"
)

// detect is a lazily resolved capability. The zero value is "off", which
// is what a struct literal in tests wants; constructors start at auto.
type detect int8

const (
	off  detect = 0
	on   detect = 1
	auto detect = -1
)

func detected(b bool) detect {
	if b {
		return on
	}
	return off
}

func (d *detect) get(probe func() bool) bool {
	if *d == auto {
		*d = detected(probe())
	}
	return *d == on
}

// IOStreams bundles the standard streams with their terminal capabilities.
type IOStreams struct {
	In     io.Reader
	Out    io.Writer
	ErrOut io.Writer

	// Logger receives diagnostic output from the command layer.
	Logger Logger

	stdinTTY  detect
	stdoutTTY detect
	stderrTTY detect
	color     detect

	neverPrompt bool

	width, height int
}

// NewIOStreams returns IOStreams on the process streams with every
// capability auto-detected.
func NewIOStreams() *IOStreams {
	return &IOStreams{
		In:        os.Stdin,
		Out:       os.Stdout,
		ErrOut:    os.Stderr,
		stdinTTY:  auto,
		stdoutTTY: auto,
		stderrTTY: auto,
		color:     auto,
	}
}

func fd(v any) (int, bool) {
	f, ok := v.(*os.File)
	if !ok {
		return 0, false
	}
	return int(f.Fd()), true
}

func isTerminal(v any) func() bool {
	return func() bool {
		n, ok := fd(v)
		return ok && term.IsTerminal(n)
	}
}

// IsInputTTY reports whether stdin is a terminal.
func (s *IOStreams) IsInputTTY() bool { return s.stdinTTY.get(isTerminal(s.In)) }

// IsOutputTTY reports whether stdout is a terminal.
func (s *IOStreams) IsOutputTTY() bool { return s.stdoutTTY.get(isTerminal(s.Out)) }

// IsStderrTTY reports whether stderr is a terminal.
func (s *IOStreams) IsStderrTTY() bool { return s.stderrTTY.get(isTerminal(s.ErrOut)) }

// SetStdinTTY overrides stdin detection.
func (s *IOStreams) SetStdinTTY(v bool) { s.stdinTTY = detected(v) }

// SetStdoutTTY overrides stdout detection.
func (s *IOStreams) SetStdoutTTY(v bool) { s.stdoutTTY = detected(v) }

// SetStderrTTY overrides stderr detection.
func (s *IOStreams) SetStderrTTY(v bool) { s.stderrTTY = detected(v) }

// ColorEnabled reports whether output may be colored. Auto-detection
// requires a terminal on stdout and honors NO_COLOR, CLICOLOR and
// CLICOLOR_FORCE.
func (s *IOStreams) ColorEnabled() bool {
	return s.color.get(func() bool {
		if termenv.EnvNoColor() {
			return false
		}
		return s.IsOutputTTY() || os.Getenv("CLICOLOR_FORCE") != ""
	})
}

// SetColorEnabled overrides color detection.
func (s *IOStreams) SetColorEnabled(enabled bool) { s.color = detected(enabled) }

// ColorScheme returns a ColorScheme matching ColorEnabled.
func (s *IOStreams) ColorScheme() *ColorScheme {
	return NewColorScheme(s.ColorEnabled())
}

// CanPrompt reports whether the user can answer a prompt: both stdin and
// stdout are terminals and prompting was not disabled.
func (s *IOStreams) CanPrompt() bool {
	return !s.neverPrompt && s.IsInputTTY() && s.IsOutputTTY()
}

// SetNeverPrompt disables prompting.
func (s *IOStreams) SetNeverPrompt(never bool) { s.neverPrompt = never }

// TerminalWidth returns the terminal width in columns, 80 when unknown.
func (s *IOStreams) TerminalWidth() int {
	if s.width == 0 {
		s.width, s.height = 80, 24
		for _, stream := range []any{s.ErrOut, s.Out} {
			n, ok := fd(stream)
			if !ok {
				continue
			}
			if w, h, err := term.GetSize(n); err == nil && w > 0 {
				s.width, s.height = w, h
				break
			}
		}
	}
	return s.width
}

// SetTerminalSizeCache pins the terminal size.
func (s *IOStreams) SetTerminalSizeCache(width, height int) {
	s.width, s.height = width, height
}
