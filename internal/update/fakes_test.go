package update

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/schmitthub/devcell/internal/build"
	"github.com/schmitthub/devcell/internal/config"
	"github.com/schmitthub/devcell/internal/docker"
	"github.com/schmitthub/devcell/internal/docker/dockertest"
	"github.com/schmitthub/devcell/internal/negotiate"
	"github.com/schmitthub/devcell/internal/progress"
	"github.com/schmitthub/devcell/internal/provenance"
	"github.com/schmitthub/devcell/internal/registry"
)

var errNoSuchImage = errors.New("no such image")

// fakeHost is an in-memory Docker host: a tag table, image labels and at
// most one container. It implements Lifecycle, Images and registry.Images.
type fakeHost struct {
	mu sync.Mutex

	tags      map[string]docker.LocalImageID
	versions  map[docker.LocalImageID]string
	container *docker.ContainerState

	// remote maps a fully qualified remote reference to the version it
	// serves. Registries in unreachable fail every pull.
	remote      map[string]string
	unreachable map[string]bool

	startErr  map[string]error
	tagErr    map[string]error
	health    map[docker.LocalImageID]docker.HealthState
	healthFn  func() docker.HealthState
	stopErr   error
	reclaimed uint64

	// removeErr fails the next Remove only.
	removeErr error

	calls []string
}

func newFakeHost() *fakeHost {
	return &fakeHost{
		tags:        map[string]docker.LocalImageID{},
		versions:    map[docker.LocalImageID]string{},
		remote:      map[string]string{},
		unreachable: map[string]bool{},
		startErr:    map[string]error{},
		tagErr:      map[string]error{},
		health:      map[docker.LocalImageID]docker.HealthState{},
	}
}

func imageIDFor(version string) docker.LocalImageID {
	return docker.LocalImageID(dockertest.ImageID("devcell:" + version))
}

// addImage stores an image with a version label under ref.
func (h *fakeHost) addImage(ref, version string) docker.LocalImageID {
	id := imageIDFor(version)
	h.versions[id] = version
	h.tags[ref] = id
	return id
}

// runContainer puts a running container on the host.
func (h *fakeHost) runContainer(name string, id docker.LocalImageID, spec docker.RunSpec) {
	h.container = &docker.ContainerState{
		ID:      "ctr-" + string(id),
		Name:    name,
		ImageID: id,
		Running: true,
		Health:  docker.HealthHealthy,
		Spec:    spec,
	}
}

func (h *fakeHost) record(format string, args ...any) {
	h.calls = append(h.calls, fmt.Sprintf(format, args...))
}

func (h *fakeHost) callsWithPrefix(prefix string) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []string
	for _, c := range h.calls {
		if strings.HasPrefix(c, prefix) {
			out = append(out, c)
		}
	}
	return out
}

func (h *fakeHost) resolve(ref string) (docker.LocalImageID, bool) {
	if id, ok := h.tags[ref]; ok {
		return id, true
	}
	if _, ok := h.versions[docker.LocalImageID(ref)]; ok {
		return docker.LocalImageID(ref), true
	}
	return "", false
}

func (h *fakeHost) tagOf(ref string) docker.LocalImageID {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.tags[ref]
}

// Lifecycle

func (h *fakeHost) Inspect(_ context.Context, name string) (*docker.ContainerState, bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.container == nil || h.container.Name != name {
		return nil, false, nil
	}
	cs := *h.container
	return &cs, true, nil
}

func (h *fakeHost) Stop(_ context.Context, name string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.record("stop %s", name)
	if h.stopErr != nil {
		return h.stopErr
	}
	if h.container != nil {
		h.container.Running = false
		h.container.Health = docker.HealthExited
	}
	return nil
}

func (h *fakeHost) Start(_ context.Context, name, image string, spec docker.RunSpec) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.record("start %s %s", name, image)
	if err := h.startErr[image]; err != nil {
		return err
	}
	if h.container != nil {
		return fmt.Errorf("container name %s already in use", name)
	}
	id, ok := h.resolve(image)
	if !ok {
		return errNoSuchImage
	}
	h.runContainer(name, id, spec)
	return nil
}

func (h *fakeHost) Remove(_ context.Context, name string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.record("remove %s", name)
	if err := h.removeErr; err != nil {
		h.removeErr = nil
		return err
	}
	if h.container != nil && h.container.Name == name {
		h.container = nil
	}
	return nil
}

func (h *fakeHost) Health(_ context.Context, name string) (docker.HealthState, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.container == nil || h.container.Name != name {
		return docker.HealthMissing, nil
	}
	if h.healthFn != nil {
		return h.healthFn(), nil
	}
	if st, ok := h.health[h.container.ImageID]; ok {
		return st, nil
	}
	return docker.HealthHealthy, nil
}

// Images

func (h *fakeHost) Exists(_ context.Context, ref string) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.resolve(ref)
	return ok, nil
}

func (h *fakeHost) ID(_ context.Context, ref string) (docker.LocalImageID, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	id, ok := h.resolve(ref)
	if !ok {
		return "", errNoSuchImage
	}
	return id, nil
}

func (h *fakeHost) Version(_ context.Context, ref string) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	id, ok := h.resolve(ref)
	if !ok {
		return "", errNoSuchImage
	}
	return h.versions[id], nil
}

func (h *fakeHost) Tag(_ context.Context, source, target string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.record("tag %s", target)
	if err := h.tagErr[target]; err != nil {
		return err
	}
	id, ok := h.resolve(source)
	if !ok {
		return errNoSuchImage
	}
	h.tags[target] = id
	return nil
}

func (h *fakeHost) Untag(_ context.Context, ref string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.record("untag %s", ref)
	delete(h.tags, ref)
	return nil
}

func (h *fakeHost) Purge(context.Context) (uint64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.record("purge")
	return h.reclaimed, nil
}

// registry.Images

func (h *fakeHost) PullImage(_ context.Context, ref string) (io.ReadCloser, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.record("pull %s", ref)
	for reg := range h.unreachable {
		if strings.HasPrefix(ref, reg+"/") {
			return nil, fmt.Errorf("dial tcp: lookup %s: connection refused", reg)
		}
	}
	version, ok := h.remote[ref]
	if !ok {
		return nil, fmt.Errorf("manifest for %s not found: manifest unknown", ref)
	}
	h.addImage(ref, version)
	stream := `{"status":"Pulling fs layer","id":"layer1"}
{"status":"Downloading","id":"layer1","progressDetail":{"current":512,"total":1024}}
{"status":"Pull complete","id":"layer1"}
`
	return io.NopCloser(strings.NewReader(stream)), nil
}

func (h *fakeHost) TagImage(ctx context.Context, source, target string) error {
	return h.Tag(ctx, source, target)
}

func (h *fakeHost) ImageID(ctx context.Context, ref string) (docker.LocalImageID, error) {
	return h.ID(ctx, ref)
}

// fakeBuilder "builds" by adding a labelled image under the canonical tag.
type fakeBuilder struct {
	host      *fakeHost
	canonical string
	version   string
	err       error
	calls     int
	useCache  []bool
}

func (b *fakeBuilder) AcquireByBuild(_ context.Context, _ build.Spec, useCache bool, _ progress.Sink) (docker.LocalImageID, error) {
	b.calls++
	b.useCache = append(b.useCache, useCache)
	if b.err != nil {
		return "", b.err
	}
	b.host.mu.Lock()
	defer b.host.mu.Unlock()
	b.host.record("build")
	return b.host.addImage(b.canonical, b.version), nil
}

type fakeLatest struct {
	version, registry string
	err               error
}

func (l fakeLatest) LatestVersion(context.Context) (string, string, error) {
	return l.version, l.registry, l.err
}

type staticConfig struct {
	source config.ImageSource
	policy config.CheckPolicy
	spec   docker.RunSpec
}

func (c staticConfig) ImageSource() config.ImageSource { return c.source }
func (c staticConfig) CheckPolicy() config.CheckPolicy { return c.policy }
func (c staticConfig) RunSpec() (docker.RunSpec, error) {
	return c.spec, nil
}

// harness wires an Orchestrator over a fakeHost with the real puller and
// provenance stores.
type harness struct {
	host     *fakeHost
	builder  *fakeBuilder
	store    *provenance.Store
	previous *provenance.Store
	names    config.Names
	states   []string
	orch     *Orchestrator
	cfg      staticConfig
	latest   LatestLookup
	cli      string
}

var testRegistries = []string{"ghcr.io/schmitthub", "docker.io/schmitthub"}

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newHarness(t *testing.T, cli string) *harness {
	t.Helper()
	dir := t.TempDir()
	names := config.NamesFor(config.DefaultSettings(), "")
	host := newFakeHost()
	h := &harness{
		host:     host,
		builder:  &fakeBuilder{host: host, canonical: names.Canonical, version: negotiate.Normalize(cli)},
		store:    provenance.NewStore(filepath.Join(dir, names.StateFile)),
		previous: provenance.NewStore(filepath.Join(dir, names.PreviousStateFile)),
		names:    names,
		cfg: staticConfig{
			source: config.SourcePrebuilt,
			policy: config.CheckAlways,
			spec:   docker.RunSpec{Binds: []string{"/home/dev/work:/work"}},
		},
		cli: cli,
	}
	return h
}

// install simulates a host already running version from a prior update.
func (h *harness) install(t *testing.T, version string, spec docker.RunSpec) docker.LocalImageID {
	t.Helper()
	id := h.host.addImage(h.names.Canonical, version)
	h.host.runContainer(h.names.Container, id, spec)
	if err := h.store.Save(provenance.Prebuilt(version, testRegistries[0], testNow.Add(-24*time.Hour))); err != nil {
		t.Fatal(err)
	}
	return id
}

func (h *harness) publish(version string, registries ...string) {
	for _, reg := range registries {
		h.host.remote[reg+"/devcell:"+version] = version
	}
}

func (h *harness) build() *Orchestrator {
	puller := registry.NewPuller(h.host, testRegistries, h.names.Canonical, registry.WithBackoff(0))
	h.orch = New(Deps{
		Lifecycle: h.host,
		Images:    h.host,
		Puller:    puller,
		Builder:   h.builder,
		Latest:    h.latest,
		Config:    h.cfg,
		Store:     h.store,
		Previous:  h.previous,
	}, Options{
		CLIVersion:     h.cli,
		Names:          h.names,
		ImageName:      "devcell",
		HealthTimeout:  50 * time.Millisecond,
		HealthInterval: time.Millisecond,
		Purge:          true,
		Spec:           build.Spec{Files: map[string][]byte{build.DockerfileName: []byte("FROM scratch\n")}},
		OnTransition: func(s State) {
			h.states = append(h.states, s.Name())
		},
		Now: func() time.Time { return testNow },
	})
	return h.orch
}
