// Package restart provides the restart command.
package restart

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/schmitthub/devcell/internal/cmdutil"
	"github.com/schmitthub/devcell/internal/config"
	"github.com/schmitthub/devcell/internal/hostlock"
	"github.com/schmitthub/devcell/internal/iostreams"
	"github.com/schmitthub/devcell/internal/service"
)

// Restarter restarts the devcell container.
type Restarter interface {
	Restart(ctx context.Context) error
}

// RestartOptions holds options for the restart command.
type RestartOptions struct {
	IOStreams *iostreams.IOStreams
	Names     func() (config.Names, error)
	HostLock  func(context.Context) (*hostlock.Lock, error)
	Service   func(context.Context) (Restarter, error)
}

// NewCmdRestart creates the restart command.
func NewCmdRestart(f *cmdutil.Factory, runF func(context.Context, *RestartOptions) error) *cobra.Command {
	opts := &RestartOptions{
		IOStreams: f.IOStreams,
		Names:     f.Names,
		HostLock:  f.HostLock,
		Service: func(ctx context.Context) (Restarter, error) {
			return f.Service(ctx)
		},
	}

	cmd := &cobra.Command{
		Use:     "restart",
		Short:   "Restart the devcell container",
		Long:    `Restarts the devcell container, starting it if it is stopped.`,
		Example: `  devcell restart`,
		Args:    cmdutil.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if runF != nil {
				return runF(cmd.Context(), opts)
			}
			return restartRun(cmd.Context(), opts)
		},
	}

	return cmd
}

func restartRun(ctx context.Context, opts *RestartOptions) error {
	ios := opts.IOStreams
	cs := ios.ColorScheme()

	names, err := opts.Names()
	if err != nil {
		return err
	}

	lock, err := opts.HostLock(ctx)
	if err != nil {
		return err
	}
	defer lock.Release()

	svc, err := opts.Service(ctx)
	if err != nil {
		return err
	}
	if err := svc.Restart(ctx); err != nil {
		if errors.Is(err, service.ErrNoImage) {
			return fmt.Errorf("%w; run 'devcell start' to install one", err)
		}
		return fmt.Errorf("restarting %s: %w", names.Container, err)
	}
	fmt.Fprintf(ios.Out, "%s Restarted %s\n", cs.SuccessIcon(), names.Container)
	return nil
}
