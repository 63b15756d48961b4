// Package docker is devcell's adapter over the moby client: image pull, tag,
// build and prune plus the lifecycle of the single managed container.
package docker

import (
	"context"
	"io"
	"net"

	"github.com/moby/moby/client"
)

// APIClient is the subset of the moby client devcell calls.
// *client.Client satisfies it; dockertest.FakeAPIClient fakes it.
type APIClient interface {
	Ping(ctx context.Context, options client.PingOptions) (client.PingResult, error)

	ImagePull(ctx context.Context, ref string, options client.ImagePullOptions) (client.ImagePullResponse, error)
	ImageTag(ctx context.Context, options client.ImageTagOptions) (client.ImageTagResult, error)
	ImageRemove(ctx context.Context, image string, options client.ImageRemoveOptions) (client.ImageRemoveResult, error)
	ImageInspect(ctx context.Context, image string, opts ...client.ImageInspectOption) (client.ImageInspectResult, error)
	ImageBuild(ctx context.Context, buildContext io.Reader, options client.ImageBuildOptions) (client.ImageBuildResult, error)
	ImagePrune(ctx context.Context, options client.ImagePruneOptions) (client.ImagePruneResult, error)

	ContainerCreate(ctx context.Context, options client.ContainerCreateOptions) (client.ContainerCreateResult, error)
	ContainerStart(ctx context.Context, container string, options client.ContainerStartOptions) (client.ContainerStartResult, error)
	ContainerStop(ctx context.Context, container string, options client.ContainerStopOptions) (client.ContainerStopResult, error)
	ContainerRemove(ctx context.Context, container string, options client.ContainerRemoveOptions) (client.ContainerRemoveResult, error)
	ContainerRestart(ctx context.Context, container string, options client.ContainerRestartOptions) (client.ContainerRestartResult, error)
	ContainerInspect(ctx context.Context, container string, options client.ContainerInspectOptions) (client.ContainerInspectResult, error)

	DialHijack(ctx context.Context, url, proto string, meta map[string][]string) (net.Conn, error)
	Close() error
}

// BuildKitBuilder runs a BuildKit solve. Set by the factory from the
// buildkit subpackage so this package stays free of the BuildKit tree.
type BuildKitBuilder func(ctx context.Context, opts BuildOptions, onEvent func(BuildEvent)) error

// Client wraps the moby API client with devcell's conventions: managed
// labels, not-found classification and user-facing errors.
type Client struct {
	API APIClient

	// BuildKitImageBuilder is used by BuildImage when BuildKit is enabled.
	// Nil forces the legacy builder.
	BuildKitImageBuilder BuildKitBuilder
}

// NewClient connects to the Docker daemon from the environment and verifies
// it is reachable.
func NewClient(ctx context.Context) (*Client, error) {
	api, err := client.New(client.FromEnv)
	if err != nil {
		return nil, ErrDockerNotRunning(err)
	}
	c := &Client{API: api}
	if err := c.HealthCheck(ctx); err != nil {
		_ = api.Close()
		return nil, err
	}
	return c, nil
}

// NewClientFromAPI wraps an existing API client. Used by tests.
func NewClientFromAPI(api APIClient) *Client {
	return &Client{API: api}
}

// HealthCheck verifies the Docker daemon is reachable.
func (c *Client) HealthCheck(ctx context.Context) error {
	if _, err := c.API.Ping(ctx, client.PingOptions{}); err != nil {
		return ErrDockerNotRunning(err)
	}
	return nil
}

// DialHijack exposes the daemon's hijack endpoint for BuildKit sessions.
func (c *Client) DialHijack(ctx context.Context, url, proto string, meta map[string][]string) (net.Conn, error) {
	return c.API.DialHijack(ctx, url, proto, meta)
}

// Close releases Docker client resources.
func (c *Client) Close() error {
	return c.API.Close()
}
