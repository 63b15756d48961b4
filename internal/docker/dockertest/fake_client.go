// Package dockertest provides test doubles for internal/docker.
//
// FakeAPIClient follows the function-field convention: each moby method
// devcell calls has an Fn field. Wrap it in a real *docker.Client so the
// docker-layer code under test executes for real:
//
//	fake := dockertest.NewFakeClient()
//	fake.SetupImageExists("devcell/sandbox:current", "3.1.4")
//	ok, err := fake.Client.ImageExists(ctx, "devcell/sandbox:current")
//
//	fake.AssertCalled(t, "ImageInspect")
package dockertest

import (
	"context"
	"fmt"
	"io"
	"net"
	"sync"
	"testing"

	"github.com/moby/moby/client"

	"github.com/schmitthub/devcell/internal/docker"
)

// FakeAPIClient is a test double for docker.APIClient. If an Fn field is set
// the fake delegates to it and records the call; if it is nil the call
// panics with "not implemented: MethodName".
type FakeAPIClient struct {
	// Embed nil *client.Client so the fake also satisfies wider moby
	// interfaces. Calling an unfaked method panics on nil dereference.
	*client.Client

	mu sync.Mutex

	// Calls records the method names invoked on this fake, in order.
	Calls []string

	PingFn func(ctx context.Context, options client.PingOptions) (client.PingResult, error)

	ImagePullFn    func(ctx context.Context, ref string, options client.ImagePullOptions) (client.ImagePullResponse, error)
	ImageTagFn     func(ctx context.Context, opts client.ImageTagOptions) (client.ImageTagResult, error)
	ImageRemoveFn  func(ctx context.Context, image string, opts client.ImageRemoveOptions) (client.ImageRemoveResult, error)
	ImageInspectFn func(ctx context.Context, image string, opts ...client.ImageInspectOption) (client.ImageInspectResult, error)
	ImageBuildFn   func(ctx context.Context, buildContext io.Reader, opts client.ImageBuildOptions) (client.ImageBuildResult, error)
	ImagePruneFn   func(ctx context.Context, opts client.ImagePruneOptions) (client.ImagePruneResult, error)

	ContainerCreateFn  func(ctx context.Context, opts client.ContainerCreateOptions) (client.ContainerCreateResult, error)
	ContainerStartFn   func(ctx context.Context, container string, opts client.ContainerStartOptions) (client.ContainerStartResult, error)
	ContainerStopFn    func(ctx context.Context, container string, opts client.ContainerStopOptions) (client.ContainerStopResult, error)
	ContainerRemoveFn  func(ctx context.Context, container string, opts client.ContainerRemoveOptions) (client.ContainerRemoveResult, error)
	ContainerRestartFn func(ctx context.Context, container string, opts client.ContainerRestartOptions) (client.ContainerRestartResult, error)
	ContainerInspectFn func(ctx context.Context, container string, opts client.ContainerInspectOptions) (client.ContainerInspectResult, error)

	DialHijackFn func(ctx context.Context, url, proto string, meta map[string][]string) (net.Conn, error)
}

var _ docker.APIClient = (*FakeAPIClient)(nil)

func (f *FakeAPIClient) record(method string) {
	f.mu.Lock()
	f.Calls = append(f.Calls, method)
	f.mu.Unlock()
}

func notImplemented(method string) {
	panic(fmt.Sprintf("not implemented: %s, set %sFn on FakeAPIClient", method, method))
}

// CallsSnapshot returns a copy of the call log.
func (f *FakeAPIClient) CallsSnapshot() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.Calls...)
}

// Reset clears the Calls log.
func (f *FakeAPIClient) Reset() {
	f.mu.Lock()
	f.Calls = nil
	f.mu.Unlock()
}

func (f *FakeAPIClient) Ping(ctx context.Context, options client.PingOptions) (client.PingResult, error) {
	if f.PingFn == nil {
		notImplemented("Ping")
	}
	f.record("Ping")
	return f.PingFn(ctx, options)
}

func (f *FakeAPIClient) ImagePull(ctx context.Context, ref string, options client.ImagePullOptions) (client.ImagePullResponse, error) {
	if f.ImagePullFn == nil {
		notImplemented("ImagePull")
	}
	f.record("ImagePull")
	return f.ImagePullFn(ctx, ref, options)
}

func (f *FakeAPIClient) ImageTag(ctx context.Context, opts client.ImageTagOptions) (client.ImageTagResult, error) {
	if f.ImageTagFn == nil {
		notImplemented("ImageTag")
	}
	f.record("ImageTag")
	return f.ImageTagFn(ctx, opts)
}

func (f *FakeAPIClient) ImageRemove(ctx context.Context, image string, opts client.ImageRemoveOptions) (client.ImageRemoveResult, error) {
	if f.ImageRemoveFn == nil {
		notImplemented("ImageRemove")
	}
	f.record("ImageRemove")
	return f.ImageRemoveFn(ctx, image, opts)
}

func (f *FakeAPIClient) ImageInspect(ctx context.Context, image string, opts ...client.ImageInspectOption) (client.ImageInspectResult, error) {
	if f.ImageInspectFn == nil {
		notImplemented("ImageInspect")
	}
	f.record("ImageInspect")
	return f.ImageInspectFn(ctx, image, opts...)
}

func (f *FakeAPIClient) ImageBuild(ctx context.Context, buildContext io.Reader, opts client.ImageBuildOptions) (client.ImageBuildResult, error) {
	if f.ImageBuildFn == nil {
		notImplemented("ImageBuild")
	}
	f.record("ImageBuild")
	return f.ImageBuildFn(ctx, buildContext, opts)
}

func (f *FakeAPIClient) ImagePrune(ctx context.Context, opts client.ImagePruneOptions) (client.ImagePruneResult, error) {
	if f.ImagePruneFn == nil {
		notImplemented("ImagePrune")
	}
	f.record("ImagePrune")
	return f.ImagePruneFn(ctx, opts)
}

func (f *FakeAPIClient) ContainerCreate(ctx context.Context, opts client.ContainerCreateOptions) (client.ContainerCreateResult, error) {
	if f.ContainerCreateFn == nil {
		notImplemented("ContainerCreate")
	}
	f.record("ContainerCreate")
	return f.ContainerCreateFn(ctx, opts)
}

func (f *FakeAPIClient) ContainerStart(ctx context.Context, container string, opts client.ContainerStartOptions) (client.ContainerStartResult, error) {
	if f.ContainerStartFn == nil {
		notImplemented("ContainerStart")
	}
	f.record("ContainerStart")
	return f.ContainerStartFn(ctx, container, opts)
}

func (f *FakeAPIClient) ContainerStop(ctx context.Context, container string, opts client.ContainerStopOptions) (client.ContainerStopResult, error) {
	if f.ContainerStopFn == nil {
		notImplemented("ContainerStop")
	}
	f.record("ContainerStop")
	return f.ContainerStopFn(ctx, container, opts)
}

func (f *FakeAPIClient) ContainerRemove(ctx context.Context, container string, opts client.ContainerRemoveOptions) (client.ContainerRemoveResult, error) {
	if f.ContainerRemoveFn == nil {
		notImplemented("ContainerRemove")
	}
	f.record("ContainerRemove")
	return f.ContainerRemoveFn(ctx, container, opts)
}

func (f *FakeAPIClient) ContainerRestart(ctx context.Context, container string, opts client.ContainerRestartOptions) (client.ContainerRestartResult, error) {
	if f.ContainerRestartFn == nil {
		notImplemented("ContainerRestart")
	}
	f.record("ContainerRestart")
	return f.ContainerRestartFn(ctx, container, opts)
}

func (f *FakeAPIClient) ContainerInspect(ctx context.Context, container string, opts client.ContainerInspectOptions) (client.ContainerInspectResult, error) {
	if f.ContainerInspectFn == nil {
		notImplemented("ContainerInspect")
	}
	f.record("ContainerInspect")
	return f.ContainerInspectFn(ctx, container, opts)
}

func (f *FakeAPIClient) DialHijack(ctx context.Context, url, proto string, meta map[string][]string) (net.Conn, error) {
	if f.DialHijackFn == nil {
		notImplemented("DialHijack")
	}
	f.record("DialHijack")
	return f.DialHijackFn(ctx, url, proto, meta)
}

// Close is a no-op.
func (f *FakeAPIClient) Close() error {
	return nil
}

// FakeClient wraps a real *docker.Client backed by a FakeAPIClient.
type FakeClient struct {
	// Client is the real *docker.Client to inject into code under test.
	Client *docker.Client
	// FakeAPI is the underlying function-field fake.
	FakeAPI *FakeAPIClient
}

// NewFakeClient constructs a FakeClient with no behavior configured.
func NewFakeClient() *FakeClient {
	api := &FakeAPIClient{}
	return &FakeClient{
		Client:  docker.NewClientFromAPI(api),
		FakeAPI: api,
	}
}

// AssertCalled fails the test if method was never called.
func (f *FakeClient) AssertCalled(t *testing.T, method string) {
	t.Helper()
	if f.CallCount(method) == 0 {
		t.Errorf("expected %s to be called; calls: %v", method, f.FakeAPI.CallsSnapshot())
	}
}

// AssertNotCalled fails the test if method was called.
func (f *FakeClient) AssertNotCalled(t *testing.T, method string) {
	t.Helper()
	if n := f.CallCount(method); n > 0 {
		t.Errorf("expected %s not to be called, got %d calls", method, n)
	}
}

// CallCount returns how many times method was called.
func (f *FakeClient) CallCount(method string) int {
	n := 0
	for _, c := range f.FakeAPI.CallsSnapshot() {
		if c == method {
			n++
		}
	}
	return n
}
