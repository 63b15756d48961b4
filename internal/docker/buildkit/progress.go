package buildkit

import (
	"strings"

	bkclient "github.com/moby/buildkit/client"
	digest "github.com/opencontainers/go-digest"

	"github.com/schmitthub/devcell/internal/docker"
	"github.com/schmitthub/devcell/internal/logger"
)

// drainProgress reads the BuildKit status channel until it is closed and
// turns vertex snapshots into step events. BuildKit resends full vertex
// state, so steps are deduplicated by digest.
func drainProgress(ch chan *bkclient.SolveStatus, onEvent func(docker.BuildEvent)) {
	type stepState struct {
		index int
		done  bool
	}
	steps := make(map[digest.Digest]*stepState)

	for status := range ch {
		for _, v := range status.Vertexes {
			if v.Name == "" || isInternalStep(v.Name) {
				continue
			}
			st, seen := steps[v.Digest]
			if !seen {
				if v.Started == nil && v.Completed == nil && v.Error == "" {
					continue
				}
				st = &stepState{index: len(steps)}
				steps[v.Digest] = st
				onEvent(docker.BuildEvent{
					StepID:    v.Digest.String(),
					StepName:  cleanStepName(v.Name),
					StepIndex: st.index,
					Status:    docker.BuildStepRunning,
				})
			}
			if st.done {
				continue
			}
			switch {
			case v.Error != "":
				st.done = true
				logger.Debug().Str("vertex", v.Name).Str("error", v.Error).Msg("buildkit vertex error")
				onEvent(docker.BuildEvent{
					StepID:    v.Digest.String(),
					StepIndex: st.index,
					Status:    docker.BuildStepError,
					Error:     v.Error,
				})
			case v.Completed != nil:
				st.done = true
				status := docker.BuildStepComplete
				if v.Cached {
					status = docker.BuildStepCached
				}
				onEvent(docker.BuildEvent{
					StepID:    v.Digest.String(),
					StepIndex: st.index,
					Status:    status,
					Cached:    v.Cached,
				})
			}
		}

		for _, l := range status.Logs {
			st := steps[l.Vertex]
			index := -1
			if st != nil {
				index = st.index
			}
			for _, line := range splitLogLines(l.Data) {
				onEvent(docker.BuildEvent{
					StepID:    l.Vertex.String(),
					StepIndex: index,
					Status:    docker.BuildStepRunning,
					LogLine:   line,
				})
			}
		}
	}
}

// splitLogLines splits raw vertex output into display lines. Segments
// rewritten with carriage returns keep only their last rendering.
func splitLogLines(data []byte) []string {
	var lines []string
	for _, raw := range strings.Split(string(data), "\n") {
		if i := strings.LastIndex(strings.TrimRight(raw, "\r"), "\r"); i >= 0 {
			raw = raw[i+1:]
		}
		line := strings.TrimSpace(raw)
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

// isInternalStep reports BuildKit housekeeping vertexes (load build
// definition, load .dockerignore, ...).
func isInternalStep(name string) bool {
	return strings.HasPrefix(name, "[internal]")
}

// cleanStepName strips --mount flags from RUN steps and collapses whitespace.
func cleanStepName(name string) string {
	if idx := strings.Index(name, "RUN --mount="); idx >= 0 {
		rest := name[idx:]
		for strings.HasPrefix(rest, "RUN --mount=") {
			sp := strings.IndexByte(rest[4:], ' ')
			if sp < 0 {
				break
			}
			rest = "RUN" + rest[4+sp:]
		}
		name = name[:idx] + rest
	}
	return strings.Join(strings.Fields(name), " ")
}
