// Package buildkit runs devcell image builds through Docker's embedded
// BuildKit daemon. Importing it pulls in the BuildKit dependency tree, so
// internal/docker only sees it through docker.BuildKitBuilder.
package buildkit

import (
	"context"
	"fmt"
	"net"

	bkclient "github.com/moby/buildkit/client"
)

// DockerDialer abstracts the DialHijack capability on the moby client.
// *docker.Client satisfies this interface.
type DockerDialer interface {
	DialHijack(ctx context.Context, url, proto string, meta map[string][]string) (net.Conn, error)
}

// NewBuildKitClient creates a BuildKit client connected to Docker's embedded
// buildkitd via the /grpc and /session hijack endpoints.
//
// The caller is responsible for calling Close() on the returned client.
func NewBuildKitClient(ctx context.Context, apiClient DockerDialer) (*bkclient.Client, error) {
	c, err := bkclient.New(ctx, "",
		bkclient.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return apiClient.DialHijack(ctx, "/grpc", "h2c", nil)
		}),
		bkclient.WithSessionDialer(func(ctx context.Context, proto string, meta map[string][]string) (net.Conn, error) {
			return apiClient.DialHijack(ctx, "/session", proto, meta)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("buildkit: failed to create client: %w", err)
	}
	return c, nil
}
