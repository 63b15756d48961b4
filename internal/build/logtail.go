package build

import (
	"os"
	"strconv"
	"strings"
)

// LogLinesEnv overrides how many build output lines are retained.
const LogLinesEnv = "DEVCELL_BUILD_LOG_LINES"

const (
	DefaultLogLines = 15
	MinLogLines     = 5
	MaxLogLines     = 500
)

// LogTailSize returns the retained line count, clamped to [5, 500].
// Unparseable values fall back to the default.
func LogTailSize() int {
	raw := strings.TrimSpace(os.Getenv(LogLinesEnv))
	if raw == "" {
		return DefaultLogLines
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return DefaultLogLines
	}
	return min(max(n, MinLogLines), MaxLogLines)
}

// tail keeps the most recent lines.
type tail struct {
	lines []string
	size  int
}

func newTail(size int) *tail {
	return &tail{size: size}
}

func (t *tail) push(line string) {
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return
	}
	if len(t.lines) == t.size {
		copy(t.lines, t.lines[1:])
		t.lines = t.lines[:t.size-1]
	}
	t.lines = append(t.lines, line)
}

func (t *tail) snapshot() []string {
	out := make([]string, len(t.lines))
	copy(out, t.lines)
	return out
}
