// Package iostreamstest builds IOStreams over in-memory buffers.
package iostreamstest

import (
	"bytes"
	"sync"

	"github.com/schmitthub/devcell/internal/iostreams"
	"github.com/schmitthub/devcell/internal/logger/loggertest"
)

// Buffer is a goroutine-safe bytes.Buffer. The progress reporter writes
// from its own goroutine while tests read.
type Buffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *Buffer) Read(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Read(p)
}

func (b *Buffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *Buffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// Reset discards the contents.
func (b *Buffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf.Reset()
}

// SetInput replaces the contents with s, for stdin.
func (b *Buffer) SetInput(s string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf.Reset()
	b.buf.WriteString(s)
}

// TestIOStreams exposes the buffers behind an IOStreams.
type TestIOStreams struct {
	*iostreams.IOStreams
	InBuf  *Buffer
	OutBuf *Buffer
	ErrBuf *Buffer
}

// New returns non-interactive, colorless IOStreams with a nop logger.
func New() *TestIOStreams {
	t := &TestIOStreams{InBuf: &Buffer{}, OutBuf: &Buffer{}, ErrBuf: &Buffer{}}
	t.IOStreams = &iostreams.IOStreams{
		In:     t.InBuf,
		Out:    t.OutBuf,
		ErrOut: t.ErrBuf,
		Logger: loggertest.NewNop(),
	}
	return t
}

// SetInteractive marks all three streams as terminals, or none.
func (t *TestIOStreams) SetInteractive(interactive bool) {
	t.SetStdinTTY(interactive)
	t.SetStdoutTTY(interactive)
	t.SetStderrTTY(interactive)
}
