package progress

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schmitthub/devcell/internal/iostreams"
	"github.com/schmitthub/devcell/internal/iostreams/iostreamstest"
	"github.com/schmitthub/devcell/internal/logger/loggertest"
)

func TestParseMode(t *testing.T) {
	for _, in := range []string{"", "auto", "plain", "tty"} {
		_, err := ParseMode(in)
		assert.NoError(t, err, in)
	}
	_, err := ParseMode("fancy")
	assert.Error(t, err)
}

func TestReporter_PlainLines(t *testing.T) {
	tio := iostreamstest.New()
	r := NewReporter(tio.IOStreams, Options{Mode: ModeAuto})
	require.True(t, r.Plain(), "non-tty stderr selects plain output")

	layer := r.Begin("layer 1a2b3c", KindBytes)
	step := r.Begin("RUN apt-get install", KindStep)
	r.Update(layer, 10, 100)
	r.Finish(layer, true)
	r.Finish(step, false)
	r.Finish(step, true)
	r.Close()

	assert.Equal(t,
		"[run] layer 1a2b3c\n[run] RUN apt-get install\n[ok] layer 1a2b3c\n[fail] RUN apt-get install\n",
		tio.ErrBuf.String())
}

func TestReporter_UpdatesKeepLatestValue(t *testing.T) {
	tio := iostreamstest.New()
	r := NewReporter(tio.IOStreams, Options{Mode: ModePlain})
	h := r.Begin("layer", KindBytes)

	var wg sync.WaitGroup
	for g := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 1000 {
				r.Update(h, int64(g*1000+i), 10_000)
			}
		}()
	}
	wg.Wait()
	r.Update(h, 9_999, 10_000)

	units, _ := r.snapshot()
	require.Len(t, units, 1)
	assert.Equal(t, int64(9_999), units[0].current)
	assert.Equal(t, int64(10_000), units[0].total)

	r.Finish(h, true)
	r.Update(h, 1, 10_000)
	units, _ = r.snapshot()
	assert.Equal(t, int64(10_000), units[0].current, "finished units ignore updates")
}

func TestReporter_BreakerDowngradesToPlain(t *testing.T) {
	tio := iostreamstest.New()
	log := loggertest.New()
	r := NewReporter(tio.IOStreams, Options{Mode: ModeTTY, Logger: log})
	r.runTTY = func(*Reporter) (*ttyRenderer, error) {
		return nil, errors.New("terminal went away")
	}
	require.False(t, r.Plain())

	h := r.Begin("RUN make", KindStep)
	assert.True(t, r.Plain())
	r.Finish(h, true)

	second := r.Begin("COPY . .", KindStep)
	r.Finish(second, true)
	r.Close()

	out := tio.ErrBuf.String()
	assert.Contains(t, out, "[run] RUN make\n")
	assert.Contains(t, out, "[ok] RUN make\n")
	assert.Contains(t, out, "[run] COPY . .\n")
	assert.Contains(t, log.Output(), "falling back to plain output")
	assert.Contains(t, log.Output(), "terminal went away")
}

func TestReporter_CloseIsIdempotent(t *testing.T) {
	tio := iostreamstest.New()
	r := NewReporter(tio.IOStreams, Options{Mode: ModePlain})
	r.Close()
	r.Close()
	r.Begin("late", KindStep)
	assert.Empty(t, tio.ErrBuf.String())
}

func TestReporter_LogTail(t *testing.T) {
	tio := iostreamstest.New()
	r := NewReporter(tio.IOStreams, Options{Mode: ModePlain, LogTail: 3})
	for _, l := range []string{"a", "b", "c", "d", "e"} {
		r.Log(l)
	}
	_, logs := r.snapshot()
	assert.Equal(t, []string{"c", "d", "e"}, logs)
}

func TestRingBuffer(t *testing.T) {
	rb := newRingBuffer(2)
	assert.Nil(t, rb.Lines())
	rb.Push("one")
	assert.Equal(t, []string{"one"}, rb.Lines())
	rb.Push("two")
	rb.Push("three")
	assert.Equal(t, []string{"two", "three"}, rb.Lines())
}

func TestVisibleUnits(t *testing.T) {
	var all []unit
	for i := range 10 {
		all = append(all, unit{handle: Handle(i), state: unitDone})
	}
	all[2].state = unitFailed
	all[9].state = unitRunning

	visible, hidden := visibleUnits(all, 4)
	assert.Equal(t, 6, hidden)
	require.Len(t, visible, 4)
	assert.Equal(t, Handle(2), visible[0].handle)
	assert.Equal(t, Handle(7), visible[1].handle)
	assert.Equal(t, Handle(9), visible[3].handle)
}

func TestRender(t *testing.T) {
	now := time.Now()
	out := render(frame{
		cs:    iostreams.NewColorScheme(false),
		title: "Pulling devcell 3.1.4",
		units: []unit{
			{label: "layer abc", kind: KindBytes, current: 512, total: 2048, started: now},
			{label: "RUN make", kind: KindStep, state: unitDone, started: now.Add(-2 * time.Second), ended: now},
		},
		logs:    []string{"compiling...\n"},
		spinner: "*",
		bar:     func(p float64) string { return strings.Repeat("#", int(p*4)) },
		width:   80,
		now:     now,
	})

	assert.Contains(t, out, "Pulling devcell 3.1.4\n")
	assert.Contains(t, out, "* layer abc # 512B/2.048kB")
	assert.Contains(t, out, "✓ RUN make 2.0s")
	assert.Contains(t, out, "    compiling...\n")
}

func TestRender_Truncates(t *testing.T) {
	now := time.Now()
	out := render(frame{
		cs: iostreams.NewColorScheme(false),
		units: []unit{
			{label: "pull ghcr.io/schmitthub/devcell-with-a-very-long-name:3.1.4", kind: KindStep, started: now},
		},
		logs:  []string{"#12 " + strings.Repeat("⣿", 60)},
		width: 40,
		now:   now,
	})

	assert.Contains(t, out, "pull ghc...ame:3.1.4")
	assert.Contains(t, out, "#12 "+strings.Repeat("⣿", 29)+"...")
}

func TestNop(t *testing.T) {
	var s Sink = Nop{}
	h := s.Begin("x", KindStep)
	s.Update(h, 1, 2)
	s.Finish(h, true)
	s.Log("line")
}

func TestNewModel_SpinnerStyle(t *testing.T) {
	tio := iostreamstest.New()
	tio.SetTerminalSizeCache(100, 40)
	r := NewReporter(tio.IOStreams, Options{Mode: ModePlain})

	m := newModel(r)
	assert.Equal(t, iostreams.InfoStyle.GetForeground(), m.spinner.Style.GetForeground())
	assert.Equal(t, 100, m.width)
	assert.NotNil(t, m.Init())
}
