package docker

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/moby/moby/api/types/build"
	"github.com/moby/moby/client"

	"github.com/schmitthub/devcell/internal/logger"
)

// BuildOptions describes one image build.
type BuildOptions struct {
	Tags       []string
	Dockerfile string
	BuildArgs  map[string]*string
	Labels     map[string]string
	NoCache    bool
	// ContextDir is the on-disk build context (BuildKit path).
	ContextDir string
	// Context is the tar build context (legacy path).
	Context io.Reader
}

// BuildStepStatus is the state of one build step.
type BuildStepStatus int

const (
	BuildStepRunning BuildStepStatus = iota
	BuildStepComplete
	BuildStepCached
	BuildStepError
)

// BuildEvent is a builder-neutral progress event. Legacy "Step N/M" lines and
// BuildKit vertexes are both reported through it.
type BuildEvent struct {
	StepID     string
	StepName   string
	StepIndex  int
	TotalSteps int
	Status     BuildStepStatus
	Cached     bool
	LogLine    string
	Error      string
}

// BuildImage builds an image, routing to BuildKit when enabled and a context
// directory is available, and to the legacy ImageBuild API otherwise.
func (c *Client) BuildImage(ctx context.Context, useBuildKit bool, opts BuildOptions, onEvent func(BuildEvent)) error {
	if onEvent == nil {
		onEvent = func(BuildEvent) {}
	}
	if useBuildKit && opts.ContextDir != "" && c.BuildKitImageBuilder != nil {
		return c.BuildKitImageBuilder(ctx, opts, onEvent)
	}
	if opts.Context == nil {
		return fmt.Errorf("building image: no build context")
	}

	resp, err := c.API.ImageBuild(ctx, opts.Context, client.ImageBuildOptions{
		Tags:       opts.Tags,
		Dockerfile: opts.Dockerfile,
		Remove:     true,
		NoCache:    opts.NoCache,
		BuildArgs:  opts.BuildArgs,
		Labels:     opts.Labels,
	})
	if err != nil {
		return fmt.Errorf("building image: %w", err)
	}
	defer resp.Body.Close()

	return ProcessBuildOutput(resp.Body, onEvent)
}

// BuildKitEnabled checks whether BuildKit is available.
// Follows Docker CLI's detection: env var > daemon ping > OS heuristic.
func (c *Client) BuildKitEnabled(ctx context.Context) (bool, error) {
	if v := os.Getenv("DOCKER_BUILDKIT"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return false, fmt.Errorf("DOCKER_BUILDKIT environment variable expects boolean value: %w", err)
		}
		return enabled, nil
	}

	ping, err := c.API.Ping(ctx, client.PingOptions{})
	if err != nil {
		return false, fmt.Errorf("failed to ping Docker daemon: %w", err)
	}
	if ping.BuilderVersion == build.BuilderBuildKit {
		return true, nil
	}
	return ping.OSType != "windows", nil
}

// buildEvent represents a Docker build stream event.
type buildEvent struct {
	Stream      string `json:"stream"`
	Error       string `json:"error"`
	ErrorDetail struct {
		Message string `json:"message"`
	} `json:"errorDetail"`
}

// legacyStepRe matches legacy Docker build step lines: "Step N/M : INSTRUCTION args".
var legacyStepRe = regexp.MustCompile(`^Step (\d+)/(\d+) : (.+)$`)

// ProcessBuildOutput decodes a legacy build stream and forwards structured
// step events. A build error in the stream is returned as an error.
func ProcessBuildOutput(reader io.Reader, onEvent func(BuildEvent)) error {
	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	var (
		parseErrors  int
		current      BuildEvent
		inStep       bool
		stepIsCached bool
	)

	finishStep := func() {
		if !inStep {
			return
		}
		ev := current
		ev.StepName = ""
		ev.Status = BuildStepComplete
		if stepIsCached {
			ev.Status = BuildStepCached
			ev.Cached = true
		}
		onEvent(ev)
	}

	for scanner.Scan() {
		var event buildEvent
		if err := json.Unmarshal(scanner.Bytes(), &event); err != nil {
			parseErrors++
			logger.Debug().
				Err(err).
				Str("raw", string(scanner.Bytes())).
				Msg("failed to parse build output event")
			if parseErrors > 10 {
				return fmt.Errorf("build output stream appears corrupted: %d consecutive parse failures", parseErrors)
			}
			continue
		}
		parseErrors = 0

		msg := event.Error
		if msg == "" {
			msg = event.ErrorDetail.Message
		}
		if msg != "" {
			if inStep {
				ev := current
				ev.StepName = ""
				ev.Status = BuildStepError
				ev.Error = msg
				onEvent(ev)
			}
			return fmt.Errorf("build error: %s", msg)
		}

		stream := strings.TrimSpace(event.Stream)
		if stream == "" {
			continue
		}

		if m := legacyStepRe.FindStringSubmatch(stream); m != nil {
			finishStep()
			stepNum, _ := strconv.Atoi(m[1])
			total, _ := strconv.Atoi(m[2])
			current = BuildEvent{
				StepID:     fmt.Sprintf("step-%d", stepNum-1),
				StepIndex:  stepNum - 1,
				TotalSteps: total,
			}
			inStep = true
			stepIsCached = false

			ev := current
			ev.StepName = m[3]
			ev.Status = BuildStepRunning
			onEvent(ev)
			continue
		}

		if strings.HasPrefix(stream, "---> Using cache") && inStep {
			stepIsCached = true
			continue
		}

		ev := current
		ev.Status = BuildStepRunning
		ev.LogLine = stream
		onEvent(ev)
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading build output: %w", err)
	}

	finishStep()
	logger.Debug().Msg("image build complete")
	return nil
}
