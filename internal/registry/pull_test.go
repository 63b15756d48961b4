package registry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schmitthub/devcell/internal/docker"
	"github.com/schmitthub/devcell/internal/progress"
)

// fakeImages scripts PullImage results per remote reference.
type fakeImages struct {
	mu      sync.Mutex
	results map[string][]func() (io.ReadCloser, error)
	pulls   []string
	tags    [][2]string
}

func newFakeImages() *fakeImages {
	return &fakeImages{results: map[string][]func() (io.ReadCloser, error){}}
}

func (f *fakeImages) script(remote string, steps ...func() (io.ReadCloser, error)) {
	f.results[remote] = append(f.results[remote], steps...)
}

func (f *fakeImages) PullImage(_ context.Context, ref string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pulls = append(f.pulls, ref)
	steps := f.results[ref]
	if len(steps) == 0 {
		return nil, errors.New("dial tcp: connection refused")
	}
	step := steps[0]
	f.results[ref] = steps[1:]
	return step()
}

func (f *fakeImages) TagImage(_ context.Context, source, target string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tags = append(f.tags, [2]string{source, target})
	return nil
}

func (f *fakeImages) ImageID(_ context.Context, ref string) (docker.LocalImageID, error) {
	return docker.LocalImageID("sha256:" + strings.Repeat("a", 64)), nil
}

func ok(lines ...string) func() (io.ReadCloser, error) {
	return func() (io.ReadCloser, error) {
		return io.NopCloser(strings.NewReader(strings.Join(lines, "\n"))), nil
	}
}

func fail(msg string) func() (io.ReadCloser, error) {
	return func() (io.ReadCloser, error) { return nil, errors.New(msg) }
}

// recordingSink captures progress calls.
type recordingSink struct {
	mu       sync.Mutex
	next     progress.Handle
	labels   map[progress.Handle]string
	updates  map[string][]int64
	finished map[string]bool
}

func newRecordingSink() *recordingSink {
	return &recordingSink{labels: map[progress.Handle]string{}, updates: map[string][]int64{}, finished: map[string]bool{}}
}

func (s *recordingSink) Begin(label string, _ progress.Kind) progress.Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	s.labels[s.next] = label
	return s.next
}

func (s *recordingSink) Update(h progress.Handle, current, _ int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates[s.labels[h]] = append(s.updates[s.labels[h]], current)
}

func (s *recordingSink) Finish(h progress.Handle, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finished[s.labels[h]] = ok
}

func (s *recordingSink) Log(string) {}

func newTestPuller(images Images, registries ...string) (*Puller, *[]time.Duration) {
	var slept []time.Duration
	p := NewPuller(images, registries, "devcell/sandbox:current")
	p.sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return ctx.Err()
	}
	return p, &slept
}

var ref = docker.ImageRef{Repository: "devcell", Tag: "3.1.4"}

const (
	ghcr = "ghcr.io/schmitthub"
	hub  = "docker.io/schmitthub"
)

func TestAcquireByPull_FirstRegistry(t *testing.T) {
	images := newFakeImages()
	images.script(ghcr+"/devcell:3.1.4", ok(
		`{"status":"Pulling from schmitthub/devcell","id":"3.1.4"}`,
		`{"status":"Pulling fs layer","id":"aaaaaaaaaaaa"}`,
		`{"status":"Pulling fs layer","id":"bbbbbbbbbbbb"}`,
		`{"status":"Downloading","id":"bbbbbbbbbbbb","progressDetail":{"current":5,"total":10}}`,
		`{"status":"Downloading","id":"aaaaaaaaaaaa","progressDetail":{"current":1,"total":4}}`,
		`{"status":"Pull complete","id":"bbbbbbbbbbbb"}`,
		`{"status":"Already exists","id":"aaaaaaaaaaaa"}`,
		`{"status":"Status: Downloaded newer image for ghcr.io/schmitthub/devcell:3.1.4"}`,
	))
	p, slept := newTestPuller(images, ghcr, hub)
	sink := newRecordingSink()

	res, err := p.AcquireByPull(context.Background(), ref, sink)
	require.NoError(t, err)
	assert.Equal(t, ghcr, res.Registry)
	assert.Equal(t, ghcr+"/devcell:3.1.4", res.Remote)
	assert.Empty(t, res.Attempts)
	assert.Empty(t, *slept)
	assert.Equal(t, [][2]string{{ghcr + "/devcell:3.1.4", "devcell/sandbox:current"}}, images.tags)

	assert.Equal(t, []int64{5}, sink.updates["layer bbbbbbbbbbbb"])
	assert.Equal(t, []int64{1}, sink.updates["layer aaaaaaaaaaaa"])
	assert.True(t, sink.finished["layer aaaaaaaaaaaa"])
	assert.True(t, sink.finished["layer bbbbbbbbbbbb"])
	assert.Len(t, sink.labels, 2, "the tag line is not a layer")
}

func TestAcquireByPull_RetriesWithBackoff(t *testing.T) {
	images := newFakeImages()
	images.script(ghcr+"/devcell:3.1.4",
		fail("received unexpected HTTP status: 503 Service Unavailable"),
		fail("net/http: TLS handshake timeout"),
		ok(`{"status":"Pull complete","id":"aaaaaaaaaaaa"}`),
	)
	p, slept := newTestPuller(images, ghcr, hub)

	res, err := p.AcquireByPull(context.Background(), ref, nil)
	require.NoError(t, err)
	assert.Equal(t, ghcr, res.Registry)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, *slept)
	require.Len(t, res.Attempts, 2)
	assert.True(t, res.Attempts[0].Retryable)
}

func TestAcquireByPull_FallsBackToSecondary(t *testing.T) {
	images := newFakeImages()
	images.script(hub+"/devcell:3.1.4", ok(`{"status":"Pull complete","id":"aaaaaaaaaaaa"}`))
	p, slept := newTestPuller(images, ghcr, hub)

	res, err := p.AcquireByPull(context.Background(), ref, nil)
	require.NoError(t, err)
	assert.Equal(t, hub, res.Registry)

	require.Len(t, res.Attempts, 3)
	for i, a := range res.Attempts {
		assert.Equal(t, ghcr, a.Registry, "preferred registry tried first")
		assert.Equal(t, i+1, a.Number)
	}
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, *slept)
	assert.Equal(t, []string{
		ghcr + "/devcell:3.1.4", ghcr + "/devcell:3.1.4", ghcr + "/devcell:3.1.4", hub + "/devcell:3.1.4",
	}, images.pulls)
	assert.Equal(t, hub+"/devcell:3.1.4", images.tags[0][0])
}

func TestAcquireByPull_NonRetryableSkipsToNextRegistry(t *testing.T) {
	images := newFakeImages()
	images.script(ghcr+"/devcell:3.1.4", fail("manifest unknown: manifest unknown"))
	images.script(hub+"/devcell:3.1.4", ok(`{"status":"Pull complete","id":"aaaaaaaaaaaa"}`))
	p, slept := newTestPuller(images, ghcr, hub)

	res, err := p.AcquireByPull(context.Background(), ref, nil)
	require.NoError(t, err)
	assert.Equal(t, hub, res.Registry)
	require.Len(t, res.Attempts, 1)
	assert.False(t, res.Attempts[0].Retryable)
	assert.Empty(t, *slept)
}

func TestAcquireByPull_Exhausted(t *testing.T) {
	images := newFakeImages()
	images.script(ghcr+"/devcell:3.1.4", fail("unauthorized: authentication required"))
	images.script(hub+"/devcell:3.1.4",
		fail("dial tcp: i/o timeout"),
		fail("dial tcp: i/o timeout"),
		fail("toomanyrequests: rate limit"),
	)
	p, _ := newTestPuller(images, ghcr, hub)
	sink := newRecordingSink()

	_, err := p.AcquireByPull(context.Background(), ref, sink)
	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Contains(t, err.Error(), "all registries exhausted")
	assert.Equal(t, []string{ghcr, hub}, exhausted.Registries())
	require.Len(t, exhausted.Attempts, 4)

	last := exhausted.LastPerRegistry()
	require.Len(t, last, 2)
	assert.Contains(t, last[0].Err.Error(), "unauthorized")
	assert.Contains(t, last[1].Err.Error(), "toomanyrequests")
	assert.Empty(t, images.tags, "no canonical tag on failure")
	assert.NotEmpty(t, exhausted.NextSteps())
}

func TestAcquireByPull_StreamErrorAbandonsLayers(t *testing.T) {
	images := newFakeImages()
	images.script(ghcr+"/devcell:3.1.4", ok(
		`{"status":"Downloading","id":"aaaaaaaaaaaa","progressDetail":{"current":1,"total":4}}`,
		`{"errorDetail":{"message":"unexpected EOF"},"error":"unexpected EOF"}`,
	))
	images.script(ghcr+"/devcell:3.1.4", ok(`{"status":"Pull complete","id":"aaaaaaaaaaaa"}`))
	p, _ := newTestPuller(images, ghcr)
	sink := newRecordingSink()

	res, err := p.AcquireByPull(context.Background(), ref, sink)
	require.NoError(t, err)
	require.Len(t, res.Attempts, 1)
	assert.True(t, res.Attempts[0].Retryable)
}

func TestAcquireByPull_CancelledDuringBackoff(t *testing.T) {
	images := newFakeImages()
	images.script(ghcr+"/devcell:3.1.4", fail("503 Service Unavailable"))
	p := NewPuller(images, []string{ghcr, hub}, "devcell/sandbox:current", WithBackoff(time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err := p.AcquireByPull(ctx, ref, nil)
	require.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Empty(t, images.tags)
}

func TestAcquireByPull_PreferredRegistryFromRef(t *testing.T) {
	images := newFakeImages()
	images.script(hub+"/devcell:3.1.4", ok(`{"status":"Pull complete","id":"a"}`))
	p, _ := newTestPuller(images, ghcr, hub)

	res, err := p.AcquireByPull(context.Background(), ref.WithRegistry(hub), nil)
	require.NoError(t, err)
	assert.Equal(t, hub, res.Registry)
	assert.Equal(t, []string{hub + "/devcell:3.1.4"}, images.pulls)
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{errors.New("manifest unknown"), false},
		{errors.New("pull access denied for devcell"), false},
		{errors.New("Error response from daemon: Get https://ghcr.io/v2/: net/http: request canceled (Client.Timeout exceeded)"), true},
		{errors.New("received unexpected HTTP status: 502 Bad Gateway"), true},
		{fmt.Errorf("attempt: %w", context.DeadlineExceeded), true},
		{context.Canceled, false},
		{errors.New("something odd"), true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, isRetryable(tt.err), tt.err.Error())
	}
}
