package build

import (
	"fmt"
	"strings"
)

// Remedies matched against build output.
const (
	RemedyNetwork    = "Check your network connection and Docker's ability to reach the internet."
	RemedyDisk       = "Free up disk space with 'docker system prune' or check available storage."
	RemedyPermission = "Check Docker permissions. You may need to add your user to the 'docker' group."
)

var remedyRules = []struct {
	needles []string
	remedy  string
}{
	{needles: []string{"network", "connection", "timeout", "timed out", "could not resolve", "temporary failure resolving"}, remedy: RemedyNetwork},
	{needles: []string{"no space left", "disk", "out of space", "insufficient space"}, remedy: RemedyDisk},
	{needles: []string{"permission", "denied"}, remedy: RemedyPermission},
}

// Error is a failed build. LogTail always carries the last lines of output.
type Error struct {
	Cause   error
	LogTail []string
	Remedy  string
}

// newError builds an Error, picking a remedy from the cause and the tail.
func newError(cause error, tail []string) *Error {
	return &Error{Cause: cause, LogTail: tail, Remedy: remedyFor(cause, tail)}
}

func (e *Error) Error() string {
	return fmt.Sprintf("image build failed: %v", e.Cause)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// NextSteps returns the matched remedy and the recent build output.
func (e *Error) NextSteps() []string {
	var steps []string
	if e.Remedy != "" {
		steps = append(steps, e.Remedy)
	}
	steps = append(steps, "Retry without the layer cache: devcell update --build-no-cache")
	if len(e.LogTail) > 0 {
		steps = append(steps, "Recent build output:\n  "+strings.Join(e.LogTail, "\n  "))
	} else {
		steps = append(steps, "No build output was received; the build failed before any step ran")
	}
	return steps
}

func remedyFor(cause error, tail []string) string {
	var hay strings.Builder
	if cause != nil {
		hay.WriteString(strings.ToLower(cause.Error()))
	}
	for _, line := range tail {
		hay.WriteByte('\n')
		hay.WriteString(strings.ToLower(line))
	}
	text := hay.String()
	for _, rule := range remedyRules {
		for _, n := range rule.needles {
			if strings.Contains(text, n) {
				return rule.remedy
			}
		}
	}
	return ""
}
