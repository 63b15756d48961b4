package buildkit

import (
	"context"
	"fmt"

	bkclient "github.com/moby/buildkit/client"

	"github.com/schmitthub/devcell/internal/docker"
)

// NewImageBuilder returns a docker.BuildKitBuilder that opens a fresh
// BuildKit connection per build, runs Solve and forwards vertex progress.
//
//	client.BuildKitImageBuilder = buildkit.NewImageBuilder(client)
func NewImageBuilder(apiClient DockerDialer) docker.BuildKitBuilder {
	return func(ctx context.Context, opts docker.BuildOptions, onEvent func(docker.BuildEvent)) error {
		bkClient, err := NewBuildKitClient(ctx, apiClient)
		if err != nil {
			return fmt.Errorf("buildkit: connect: %w", err)
		}
		defer bkClient.Close()

		solveOpt, err := toSolveOpt(opts)
		if err != nil {
			return err
		}

		statusCh := make(chan *bkclient.SolveStatus)
		done := make(chan struct{})
		go func() {
			defer close(done)
			drainProgress(statusCh, onEvent)
		}()

		_, err = bkClient.Solve(ctx, nil, solveOpt, statusCh)
		<-done
		if err != nil {
			return fmt.Errorf("buildkit: solve: %w", err)
		}
		return nil
	}
}
