package progress

import (
	"fmt"
	"strings"
	"time"

	bprogress "github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/docker/go-units"

	"github.com/schmitthub/devcell/internal/iostreams"
	"github.com/schmitthub/devcell/internal/logger"
	"github.com/schmitthub/devcell/internal/text"
)

const (
	maxVisibleUnits = 8
	barWidth        = 28
	minWidth        = 40
)

// ttyRenderer drives the bubbletea program.
type ttyRenderer struct {
	program *tea.Program
	done    chan struct{}
}

// startTTY launches the program on its own goroutine. Input is not read, so
// Ctrl+C still reaches the process as SIGINT and cancels the operation.
func startTTY(r *Reporter) (*ttyRenderer, error) {
	m := newModel(r)
	p := tea.NewProgram(m,
		tea.WithInput(nil),
		tea.WithOutput(r.ios.ErrOut),
		tea.WithoutSignalHandler(),
	)
	t := &ttyRenderer{program: p, done: make(chan struct{})}

	logger.SetInteractiveMode(true)
	go func() {
		defer close(t.done)
		defer logger.SetInteractiveMode(false)
		if _, err := p.Run(); err != nil {
			r.trip(err)
		}
	}()
	return t, nil
}

func (t *ttyRenderer) stop() {
	t.program.Send(closeMsg{})
	<-t.done
}

type tickMsg time.Time

type closeMsg struct{}

func tick() tea.Cmd {
	return tea.Tick(tickInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

type model struct {
	r        *Reporter
	cs       *iostreams.ColorScheme
	spinner  spinner.Model
	bar      bprogress.Model
	width    int
	finished bool
}

func newModel(r *Reporter) model {
	s := spinner.New()
	s.Spinner = spinner.MiniDot
	s.Style = iostreams.InfoStyle

	return model{
		r:       r,
		cs:      r.ios.ColorScheme(),
		spinner: s,
		bar:     bprogress.New(bprogress.WithDefaultGradient(), bprogress.WithWidth(barWidth), bprogress.WithoutPercentage()),
		width:   r.ios.TerminalWidth(),
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, tick())
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case tickMsg:
		if m.finished {
			return m, nil
		}
		return m, tick()
	case closeMsg:
		m.finished = true
		return m, tea.Quit
	}
	return m, nil
}

func (m model) View() string {
	units, logs := m.r.snapshot()
	spin := m.spinner.View()
	if m.finished {
		spin = ""
	}
	return render(frame{
		cs:      m.cs,
		title:   m.r.title,
		units:   units,
		logs:    logs,
		spinner: spin,
		bar:     m.bar.ViewAs,
		width:   m.width,
		now:     time.Now(),
	})
}

// frame is everything one render needs.
type frame struct {
	cs      *iostreams.ColorScheme
	title   string
	units   []unit
	logs    []string
	spinner string
	bar     func(float64) string
	width   int
	now     time.Time
}

func render(f frame) string {
	width := f.width
	if width < minWidth {
		width = minWidth
	}
	cs := f.cs
	var buf strings.Builder

	if f.title != "" {
		buf.WriteString(cs.Bold(cs.Primary(f.title)))
		buf.WriteByte('\n')
	}

	visible, hidden := visibleUnits(f.units, maxVisibleUnits)
	if hidden > 0 {
		fmt.Fprintf(&buf, "  %s %s\n", cs.Green("✓"), cs.Muted(fmt.Sprintf("%d completed", hidden)))
	}
	for _, u := range visible {
		renderUnit(&buf, f, u, width)
	}

	for _, line := range f.logs {
		line = strings.TrimRight(line, "\r\n")
		fmt.Fprintf(&buf, "    %s\n", cs.Muted(text.Truncate(line, width-4)))
	}
	return buf.String()
}

func renderUnit(buf *strings.Builder, f frame, u unit, width int) {
	cs := f.cs
	var icon string
	switch u.state {
	case unitDone:
		icon = cs.Green("✓")
	case unitFailed:
		icon = cs.Red("✗")
	default:
		icon = f.spinner
		if icon == "" {
			icon = cs.Muted("•")
		}
	}

	label := text.TruncateMiddle(u.label, width/2)

	detail := ""
	if u.kind == KindBytes && u.total > 0 {
		bar := ""
		if f.bar != nil && u.state == unitRunning {
			bar = f.bar(u.percent()) + " "
		}
		detail = bar + cs.Muted(fmt.Sprintf("%s/%s", units.HumanSize(float64(u.current)), units.HumanSize(float64(u.total))))
	} else {
		end := f.now
		if u.state != unitRunning {
			end = u.ended
		}
		detail = cs.Muted(formatDuration(end.Sub(u.started)))
	}
	fmt.Fprintf(buf, "  %s %s %s\n", icon, label, detail)
}

// visibleUnits keeps running and failed units plus the newest finished ones,
// collapsing older successes into a count.
func visibleUnits(all []unit, limit int) ([]unit, int) {
	if len(all) <= limit {
		return all, 0
	}
	keep := make([]bool, len(all))
	n := 0
	for i, u := range all {
		if u.state != unitDone {
			keep[i] = true
			n++
		}
	}
	for i := len(all) - 1; i >= 0 && n < limit; i-- {
		if !keep[i] {
			keep[i] = true
			n++
		}
	}
	var visible []unit
	hidden := 0
	for i, u := range all {
		if keep[i] {
			visible = append(visible, u)
		} else {
			hidden++
		}
	}
	return visible, hidden
}

func formatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	secs := d.Seconds()
	if secs < 60 {
		return fmt.Sprintf("%.1fs", secs)
	}
	return fmt.Sprintf("%dm %ds", int(secs)/60, int(secs)%60)
}
