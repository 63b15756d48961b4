package dockertest

import (
	"context"
	"io"
	"strings"

	dockerspec "github.com/moby/docker-image-spec/specs-go/v1"
	"github.com/moby/moby/api/types/container"
	dockerimage "github.com/moby/moby/api/types/image"
	"github.com/moby/moby/client"
	digest "github.com/opencontainers/go-digest"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/schmitthub/devcell/internal/docker"
)

// ImageID returns a deterministic, well-formed image id for name.
func ImageID(name string) string {
	return digest.FromString(name).String()
}

// FixtureImageSize is the size every ImageInspectFixture reports.
const FixtureImageSize = 512 * 1024 * 1024

// ImageInspectFixture returns an inspect result for a labelled devcell image.
func ImageInspectFixture(ref, version string) client.ImageInspectResult {
	labels := docker.ManagedLabels("")
	if version != "" {
		for k, v := range docker.VersionLabels(version) {
			labels[k] = v
		}
	}
	return client.ImageInspectResult{
		InspectResponse: dockerimage.InspectResponse{
			ID:       ImageID(ref),
			RepoTags: []string{ref},
			Size:     FixtureImageSize,
			Config: &dockerspec.DockerOCIImageConfig{
				ImageConfig: ocispec.ImageConfig{
					Labels: labels,
				},
			},
		},
	}
}

// ContainerFixture returns an inspect result for a container.
func ContainerFixture(name, image string, running bool) container.InspectResponse {
	status := container.StateExited
	if running {
		status = container.StateRunning
	}
	return container.InspectResponse{
		ID:    "ctr-" + name,
		Name:  "/" + name,
		Image: ImageID(image),
		Config: &container.Config{
			Image:  image,
			Labels: docker.ManagedLabels(""),
		},
		HostConfig: &container.HostConfig{},
		State: &container.State{
			Status:  status,
			Running: running,
		},
	}
}

// SetupImages configures ImageInspect to answer for the given refs, each
// mapped to its version label. Unknown refs are not found.
func (f *FakeClient) SetupImages(versions map[string]string) {
	f.FakeAPI.ImageInspectFn = func(_ context.Context, image string, _ ...client.ImageInspectOption) (client.ImageInspectResult, error) {
		version, ok := versions[image]
		if !ok {
			return client.ImageInspectResult{}, notFoundError("No such image: " + image)
		}
		return ImageInspectFixture(image, version), nil
	}
}

// SetupImageTag makes ImageTag succeed and records source->target pairs.
func (f *FakeClient) SetupImageTag() *[]client.ImageTagOptions {
	var tagged []client.ImageTagOptions
	f.FakeAPI.ImageTagFn = func(_ context.Context, opts client.ImageTagOptions) (client.ImageTagResult, error) {
		tagged = append(tagged, opts)
		return client.ImageTagResult{}, nil
	}
	return &tagged
}

// SetupImageRemove makes ImageRemove succeed.
func (f *FakeClient) SetupImageRemove() {
	f.FakeAPI.ImageRemoveFn = func(_ context.Context, _ string, _ client.ImageRemoveOptions) (client.ImageRemoveResult, error) {
		return client.ImageRemoveResult{}, nil
	}
}

// SetupContainer configures ContainerInspect to return c for its name and
// not-found for anything else.
func (f *FakeClient) SetupContainer(c container.InspectResponse) {
	name := strings.TrimPrefix(c.Name, "/")
	f.FakeAPI.ContainerInspectFn = func(_ context.Context, id string, _ client.ContainerInspectOptions) (client.ContainerInspectResult, error) {
		if id != name && id != c.ID {
			return client.ContainerInspectResult{}, notFoundError("No such container: " + id)
		}
		return client.ContainerInspectResult{Container: c}, nil
	}
}

// SetupNoContainer makes every ContainerInspect report not found.
func (f *FakeClient) SetupNoContainer() {
	f.FakeAPI.ContainerInspectFn = func(_ context.Context, id string, _ client.ContainerInspectOptions) (client.ContainerInspectResult, error) {
		return client.ContainerInspectResult{}, notFoundError("No such container: " + id)
	}
}

// SetupContainerLifecycle makes create/start/stop/remove/restart succeed.
func (f *FakeClient) SetupContainerLifecycle() {
	f.FakeAPI.ContainerCreateFn = func(_ context.Context, opts client.ContainerCreateOptions) (client.ContainerCreateResult, error) {
		return client.ContainerCreateResult{ID: "ctr-" + opts.Name}, nil
	}
	f.FakeAPI.ContainerStartFn = func(_ context.Context, _ string, _ client.ContainerStartOptions) (client.ContainerStartResult, error) {
		return client.ContainerStartResult{}, nil
	}
	f.FakeAPI.ContainerStopFn = func(_ context.Context, _ string, _ client.ContainerStopOptions) (client.ContainerStopResult, error) {
		return client.ContainerStopResult{}, nil
	}
	f.FakeAPI.ContainerRemoveFn = func(_ context.Context, _ string, _ client.ContainerRemoveOptions) (client.ContainerRemoveResult, error) {
		return client.ContainerRemoveResult{}, nil
	}
	f.FakeAPI.ContainerRestartFn = func(_ context.Context, _ string, _ client.ContainerRestartOptions) (client.ContainerRestartResult, error) {
		return client.ContainerRestartResult{}, nil
	}
}

// SetupLegacyBuild wires a legacy image build that streams the given JSON
// lines.
func (f *FakeClient) SetupLegacyBuild(stream string) *client.ImageBuildOptions {
	var captured client.ImageBuildOptions
	f.FakeAPI.ImageBuildFn = func(_ context.Context, buildContext io.Reader, opts client.ImageBuildOptions) (client.ImageBuildResult, error) {
		captured = opts
		_, _ = io.Copy(io.Discard, buildContext)
		return client.ImageBuildResult{
			Body: io.NopCloser(strings.NewReader(stream)),
		}, nil
	}
	return &captured
}

// SetupPing wires Ping with the given OS type and BuildKit preference.
func (f *FakeClient) SetupPing(result client.PingResult, err error) {
	f.FakeAPI.PingFn = func(_ context.Context, _ client.PingOptions) (client.PingResult, error) {
		return result, err
	}
}

// errNotFound satisfies errdefs.IsNotFound.
type errNotFound struct {
	msg string
}

func (e errNotFound) Error() string { return e.msg }
func (e errNotFound) NotFound()     {}

func notFoundError(msg string) error {
	return errNotFound{msg: msg}
}

// NotFoundError returns an error the docker package classifies as not found.
func NotFoundError(msg string) error {
	return notFoundError(msg)
}
