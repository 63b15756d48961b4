package iostreams

import "github.com/rs/zerolog"

// Logger is the subset of *zerolog.Logger the command layer writes to.
// The factory installs &logger.Log; tests use loggertest.
type Logger interface {
	Debug() *zerolog.Event
	Info() *zerolog.Event
	Warn() *zerolog.Event
	Error() *zerolog.Event
}
