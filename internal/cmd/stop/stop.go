// Package stop provides the stop command.
package stop

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/schmitthub/devcell/internal/cmdutil"
	"github.com/schmitthub/devcell/internal/config"
	"github.com/schmitthub/devcell/internal/hostlock"
	"github.com/schmitthub/devcell/internal/iostreams"
)

// Stopper stops the devcell container.
type Stopper interface {
	Stop(ctx context.Context) (bool, error)
}

// StopOptions holds options for the stop command.
type StopOptions struct {
	IOStreams *iostreams.IOStreams
	Names     func() (config.Names, error)
	HostLock  func(context.Context) (*hostlock.Lock, error)
	Service   func(context.Context) (Stopper, error)
}

// NewCmdStop creates the stop command.
func NewCmdStop(f *cmdutil.Factory, runF func(context.Context, *StopOptions) error) *cobra.Command {
	opts := &StopOptions{
		IOStreams: f.IOStreams,
		Names:     f.Names,
		HostLock:  f.HostLock,
		Service: func(ctx context.Context) (Stopper, error) {
			return f.Service(ctx)
		},
	}

	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the devcell container",
		Long: `Stops the devcell container. The container and its image are kept;
'devcell start' resumes it.`,
		Example: `  devcell stop`,
		Args:    cmdutil.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if runF != nil {
				return runF(cmd.Context(), opts)
			}
			return stopRun(cmd.Context(), opts)
		},
	}

	return cmd
}

func stopRun(ctx context.Context, opts *StopOptions) error {
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
	stopped, err := svc.Stop(ctx)
	if err != nil {
		return fmt.Errorf("stopping %s: %w", names.Container, err)
	}
	if !stopped {
		fmt.Fprintf(ios.Out, "%s %s is not running\n", cs.Muted("-"), names.Container)
		return nil
	}
	fmt.Fprintf(ios.Out, "%s Stopped %s\n", cs.SuccessIcon(), names.Container)
	return nil
}
