// Package progress renders concurrent acquisition progress: one bar per
// pulled layer, one spinner per build step, and a tail of raw build output.
//
// A single Reporter owns every active unit. Callers on any goroutine report
// through the Sink methods, which only mutate shared state and never block on
// the terminal. The TTY renderer samples that state on a tick, so bursts of
// intermediate updates collapse to the latest value per unit.
package progress

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/schmitthub/devcell/internal/iostreams"
)

// Kind selects how a unit is drawn.
type Kind int

const (
	// KindStep is an indeterminate unit rendered as a spinner.
	KindStep Kind = iota
	// KindBytes is a determinate unit rendered as a bar.
	KindBytes
)

// Mode selects the renderer.
type Mode string

const (
	ModeAuto  Mode = "auto"
	ModePlain Mode = "plain"
	ModeTTY   Mode = "tty"
)

// ParseMode validates a --progress flag value.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeAuto:
		return ModeAuto, nil
	case ModePlain, ModeTTY:
		return Mode(s), nil
	}
	return "", fmt.Errorf("invalid progress mode %q: must be one of auto, plain, tty", s)
}

// Handle identifies one unit of progress.
type Handle int

// Sink receives progress from acquisition code.
type Sink interface {
	Begin(label string, kind Kind) Handle
	Update(h Handle, current, total int64)
	Finish(h Handle, ok bool)
	Log(line string)
}

// Logger is the subset of the logging interface the reporter needs.
// *loggertest.TestLogger and the iostreams logger satisfy it.
type Logger interface {
	Debug() *zerolog.Event
	Error() *zerolog.Event
}

type unitState int

const (
	unitRunning unitState = iota
	unitDone
	unitFailed
)

type unit struct {
	handle  Handle
	label   string
	kind    Kind
	current int64
	total   int64
	state   unitState
	started time.Time
	ended   time.Time
}

func (u *unit) percent() float64 {
	if u.total <= 0 {
		return 0
	}
	p := float64(u.current) / float64(u.total)
	if p > 1 {
		return 1
	}
	return p
}

const (
	defaultLogTail = 5
	tickInterval   = 100 * time.Millisecond
)

// Options configures a Reporter.
type Options struct {
	Mode  Mode
	Title string
	// LogTail is how many raw log lines the TTY view keeps visible.
	LogTail int
	Logger  Logger
}

// Reporter is the single owner of all progress units.
type Reporter struct {
	ios    *iostreams.IOStreams
	title  string
	logger Logger

	mu      sync.Mutex
	units   []*unit
	byID    map[Handle]*unit
	next    Handle
	logs    *ringBuffer
	plain   bool
	tripped bool
	closed  bool

	tty *ttyRenderer

	// runTTY starts the interactive renderer; replaced in tests.
	runTTY func(r *Reporter) (*ttyRenderer, error)
}

// NewReporter creates a Reporter writing to ios.ErrOut. TTY rendering is used
// when the mode asks for it, or in auto mode when stderr is a terminal.
func NewReporter(ios *iostreams.IOStreams, opts Options) *Reporter {
	tail := opts.LogTail
	if tail <= 0 {
		tail = defaultLogTail
	}
	var log Logger = opts.Logger
	if log == nil && ios.Logger != nil {
		log = ios.Logger
	}
	r := &Reporter{
		ios:    ios,
		title:  opts.Title,
		logger: log,
		byID:   make(map[Handle]*unit),
		logs:   newRingBuffer(tail),
		runTTY: startTTY,
	}
	switch opts.Mode {
	case ModePlain:
		r.plain = true
	case ModeTTY:
		r.plain = false
	default:
		r.plain = !ios.IsStderrTTY()
	}
	return r
}

// Begin registers a unit and returns its handle.
func (r *Reporter) Begin(label string, kind Kind) Handle {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.next++
	u := &unit{handle: r.next, label: label, kind: kind, started: time.Now()}
	r.units = append(r.units, u)
	r.byID[u.handle] = u

	if r.closed {
		return u.handle
	}
	if r.plain {
		r.printf("[run] %s\n", label)
		return u.handle
	}
	r.ensureTTYLocked()
	return u.handle
}

// Update records progress for a determinate unit. It never blocks on
// rendering; only the latest value is drawn.
func (r *Reporter) Update(h Handle, current, total int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.byID[h]
	if !ok || u.state != unitRunning {
		return
	}
	u.current = current
	if total > 0 {
		u.total = total
	}
}

// Finish marks a unit done or failed. Finishing twice is a no-op.
func (r *Reporter) Finish(h Handle, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, found := r.byID[h]
	if !found || u.state != unitRunning {
		return
	}
	u.ended = time.Now()
	u.state = unitDone
	if !ok {
		u.state = unitFailed
	}
	if u.kind == KindBytes && ok && u.total > 0 {
		u.current = u.total
	}
	if r.closed || !r.plain {
		return
	}
	r.printf("%s %s\n", plainTag(u.state), u.label)
}

// Log adds a raw output line to the visible tail.
func (r *Reporter) Log(line string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logs.Push(line)
	if r.logger != nil {
		r.logger.Debug().Str("line", line).Msg("build output")
	}
}

// Close stops the renderer and prints a final frame. Safe to call more than
// once.
func (r *Reporter) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	tty := r.tty
	r.tty = nil
	r.mu.Unlock()

	if tty != nil {
		tty.stop()
	}
}

// Plain reports whether the reporter renders plain lines, either by choice
// or because the TTY renderer failed.
func (r *Reporter) Plain() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.plain
}

func plainTag(s unitState) string {
	switch s {
	case unitDone:
		return "[ok]"
	case unitFailed:
		return "[fail]"
	default:
		return "[run]"
	}
}

// printf writes to stderr. Write failures are logged and otherwise ignored.
// Caller holds r.mu.
func (r *Reporter) printf(format string, args ...any) {
	if _, err := fmt.Fprintf(r.ios.ErrOut, format, args...); err != nil && r.logger != nil {
		r.logger.Error().Err(err).Msg("progress output failed")
	}
}

// ensureTTYLocked starts the interactive renderer on first use. A start
// failure trips the breaker. Caller holds r.mu.
func (r *Reporter) ensureTTYLocked() {
	if r.tty != nil || r.tripped {
		return
	}
	tty, err := r.runTTY(r)
	if err != nil {
		r.tripLocked(err)
		return
	}
	r.tty = tty
}

// trip permanently downgrades to plain output after a rendering failure.
func (r *Reporter) trip(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tripLocked(err)
}

func (r *Reporter) tripLocked(err error) {
	if r.tripped {
		return
	}
	r.tripped = true
	r.plain = true
	r.tty = nil
	if r.logger != nil {
		r.logger.Error().Err(err).Msg("progress renderer failed, falling back to plain output")
	}
	if r.closed {
		return
	}
	for _, u := range r.units {
		r.printf("%s %s\n", plainTag(u.state), u.label)
	}
}

// snapshot copies the current units and log tail for rendering.
func (r *Reporter) snapshot() ([]unit, []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	units := make([]unit, len(r.units))
	for i, u := range r.units {
		units[i] = *u
	}
	return units, r.logs.Lines()
}

// Nop is a Sink that discards everything.
type Nop struct{}

func (Nop) Begin(string, Kind) Handle   { return 0 }
func (Nop) Update(Handle, int64, int64) {}
func (Nop) Finish(Handle, bool)         {}
func (Nop) Log(string)                  {}

var (
	_ Sink = (*Reporter)(nil)
	_ Sink = Nop{}
)
