package build

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/google/uuid"

	"github.com/schmitthub/devcell/internal/docker"
	"github.com/schmitthub/devcell/internal/logger"
	"github.com/schmitthub/devcell/internal/progress"
)

// Builder is the subset of the Docker adapter the engine needs.
type Builder interface {
	BuildKitEnabled(ctx context.Context) (bool, error)
	BuildImage(ctx context.Context, useBuildKit bool, opts docker.BuildOptions, onEvent func(docker.BuildEvent)) error
	ImageID(ctx context.Context, ref string) (docker.LocalImageID, error)
}

// Engine builds the canonical image.
type Engine struct {
	builder   Builder
	canonical string
	version   string
	instance  string
	logLines  int
}

// NewEngine returns an engine that tags builds as canonical and labels them
// with version.
func NewEngine(builder Builder, canonical, version, instance string) *Engine {
	return &Engine{
		builder:   builder,
		canonical: canonical,
		version:   version,
		instance:  instance,
		logLines:  LogTailSize(),
	}
}

// AcquireByBuild builds spec and returns the id of the canonical image.
// Failures carry the recent build output.
func (e *Engine) AcquireByBuild(ctx context.Context, spec Spec, useCache bool, sink progress.Sink) (docker.LocalImageID, error) {
	if sink == nil {
		sink = progress.Nop{}
	}
	buildID := uuid.NewString()
	log := logger.WithField("build_id", buildID)

	useBuildKit, err := e.builder.BuildKitEnabled(ctx)
	if err != nil {
		log.Debug().Err(err).Msg("BuildKit detection failed, using legacy builder")
		useBuildKit = false
	}

	version := e.version
	opts := docker.BuildOptions{
		Tags:       []string{e.canonical},
		Dockerfile: DockerfileName,
		BuildArgs:  map[string]*string{"DEVCELL_VERSION": &version},
		Labels:     docker.ManagedLabels(e.instance, docker.VersionLabels(e.version)),
		NoCache:    !useCache,
	}

	if useBuildKit {
		dir, err := os.MkdirTemp("", "devcell-build-*")
		if err != nil {
			return "", fmt.Errorf("creating build context directory: %w", err)
		}
		defer os.RemoveAll(dir)
		if err := spec.Materialize(dir); err != nil {
			return "", err
		}
		opts.ContextDir = dir
	} else {
		tarball, err := spec.Tarball()
		if err != nil {
			return "", fmt.Errorf("creating build context: %w", err)
		}
		opts.Context = tarball
	}

	log.Info().
		Str("image", e.canonical).
		Bool("buildkit", useBuildKit).
		Bool("cache", useCache).
		Msg("building image")

	rec := newStepRecorder(sink, e.logLines)
	if err := e.builder.BuildImage(ctx, useBuildKit, opts, rec.handle); err != nil {
		rec.abandon()
		if ctx.Err() != nil {
			return "", fmt.Errorf("build cancelled: %w", ctx.Err())
		}
		return "", newError(err, rec.tail())
	}
	rec.complete()

	id, err := e.builder.ImageID(ctx, e.canonical)
	if err != nil {
		return "", newError(fmt.Errorf("build finished but %s is missing: %w", e.canonical, err), rec.tail())
	}
	return id, nil
}

// stepRecorder maps build events onto progress units. BuildKit reports from
// its own goroutine, so calls are serialized.
type stepRecorder struct {
	mu    sync.Mutex
	sink  progress.Sink
	steps map[string]progress.Handle
	done  map[string]bool
	order []string
	logs  *tail
}

func newStepRecorder(sink progress.Sink, lines int) *stepRecorder {
	return &stepRecorder{
		sink:  sink,
		steps: map[string]progress.Handle{},
		done:  map[string]bool{},
		logs:  newTail(lines),
	}
}

func (r *stepRecorder) handle(ev docker.BuildEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if ev.LogLine != "" {
		r.logs.push(ev.LogLine)
		r.sink.Log(ev.LogLine)
	}
	if ev.StepID == "" {
		return
	}

	h, known := r.steps[ev.StepID]
	if !known {
		if ev.StepName == "" {
			return
		}
		h = r.sink.Begin(ev.StepName, progress.KindStep)
		r.steps[ev.StepID] = h
		r.order = append(r.order, ev.StepID)
	}

	switch ev.Status {
	case docker.BuildStepComplete, docker.BuildStepCached:
		r.finish(ev.StepID, h, true)
	case docker.BuildStepError:
		if ev.Error != "" {
			r.logs.push(ev.Error)
		}
		r.finish(ev.StepID, h, false)
	}
}

func (r *stepRecorder) finish(id string, h progress.Handle, ok bool) {
	if r.done[id] {
		return
	}
	r.done[id] = true
	r.sink.Finish(h, ok)
}

// abandon fails every step still running.
func (r *stepRecorder) abandon() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range r.order {
		r.finish(id, r.steps[id], false)
	}
}

// complete closes steps the builder never reported as finished.
func (r *stepRecorder) complete() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range r.order {
		r.finish(id, r.steps[id], true)
	}
}

func (r *stepRecorder) tail() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.logs.snapshot()
}

// IsBuildError reports whether err is a failed build.
func IsBuildError(err error) bool {
	var be *Error
	return errors.As(err, &be)
}
