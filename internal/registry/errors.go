package registry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	cerrdefs "github.com/containerd/errdefs"
)

// Attempt records one pull attempt against one registry.
type Attempt struct {
	Registry  string
	Number    int
	Err       error
	Retryable bool
}

// ExhaustedError is returned when every registry and retry failed.
type ExhaustedError struct {
	Ref      string
	Attempts []Attempt
}

func (e *ExhaustedError) Error() string {
	var b strings.Builder
	b.WriteString("all registries exhausted")
	if e.Ref != "" {
		fmt.Fprintf(&b, " pulling %s", e.Ref)
	}
	for i, a := range e.LastPerRegistry() {
		if i == 0 {
			b.WriteString(": ")
		} else {
			b.WriteString("; ")
		}
		fmt.Fprintf(&b, "%s: %v", a.Registry, a.Err)
	}
	return b.String()
}

// LastPerRegistry returns the final attempt against each registry, in the
// order the registries were tried.
func (e *ExhaustedError) LastPerRegistry() []Attempt {
	var out []Attempt
	index := map[string]int{}
	for _, a := range e.Attempts {
		if i, ok := index[a.Registry]; ok {
			out[i] = a
			continue
		}
		index[a.Registry] = len(out)
		out = append(out, a)
	}
	return out
}

// Registries lists the registries tried, in order.
func (e *ExhaustedError) Registries() []string {
	var out []string
	for _, a := range e.LastPerRegistry() {
		out = append(out, a.Registry)
	}
	return out
}

func (e *ExhaustedError) Unwrap() []error {
	var errs []error
	for _, a := range e.LastPerRegistry() {
		errs = append(errs, a.Err)
	}
	return errs
}

// NextSteps returns suggested remediation steps.
func (e *ExhaustedError) NextSteps() []string {
	return []string{
		"Check your network connection and that the registries are reachable",
		"Retry later if a registry reported a rate limit or server error",
		"Build the image locally instead: devcell update --build",
	}
}

// streamError is an error reported inside the pull progress stream.
type streamError struct {
	msg string
}

func (e *streamError) Error() string { return e.msg }

var nonRetryablePatterns = []string{
	"manifest unknown",
	"not found",
	"unauthorized",
	"authentication required",
	"denied",
	"invalid reference",
}

var retryablePatterns = []string{
	"timeout",
	"timed out",
	"connection reset",
	"connection refused",
	"tls handshake",
	"toomanyrequests",
	"too many requests",
	"429",
	"500 internal",
	"502",
	"503",
	"504",
	"unexpected eof",
	"temporary",
	"eof",
}

// isRetryable classifies a pull failure. Unknown failures are treated as
// transient.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || cerrdefs.IsDeadlineExceeded(err) {
		return true
	}
	if cerrdefs.IsNotFound(err) || cerrdefs.IsUnauthorized(err) ||
		cerrdefs.IsPermissionDenied(err) || cerrdefs.IsInvalidArgument(err) {
		return false
	}
	if cerrdefs.IsUnavailable(err) || cerrdefs.IsInternal(err) || cerrdefs.IsResourceExhausted(err) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, p := range nonRetryablePatterns {
		if strings.Contains(msg, p) {
			return false
		}
	}
	for _, p := range retryablePatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return true
}
