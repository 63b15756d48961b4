// Package start provides the start command.
package start

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/schmitthub/devcell/internal/cmdutil"
	"github.com/schmitthub/devcell/internal/config"
	"github.com/schmitthub/devcell/internal/hostlock"
	"github.com/schmitthub/devcell/internal/iostreams"
	"github.com/schmitthub/devcell/internal/progress"
	"github.com/schmitthub/devcell/internal/service"
	"github.com/schmitthub/devcell/internal/update"
)

// Starter starts the devcell container.
type Starter interface {
	Start(ctx context.Context) (*service.StartResult, error)
}

// Acquirer installs an image when none exists yet.
type Acquirer interface {
	Run(ctx context.Context, req update.Request) (*update.Result, error)
}

// StartOptions holds options for the start command.
type StartOptions struct {
	IOStreams *iostreams.IOStreams
	Names     func() (config.Names, error)
	HostLock  func(context.Context) (*hostlock.Lock, error)
	Service   func(context.Context) (Starter, error)
	Acquirer  func(context.Context) (Acquirer, error)

	Progress string
}

// NewCmdStart creates the start command.
func NewCmdStart(f *cmdutil.Factory, runF func(context.Context, *StartOptions) error) *cobra.Command {
	opts := &StartOptions{
		IOStreams: f.IOStreams,
		Names:     f.Names,
		HostLock:  f.HostLock,
		Service: func(ctx context.Context) (Starter, error) {
			return f.Service(ctx)
		},
		Acquirer: func(ctx context.Context) (Acquirer, error) {
			return f.Orchestrator(ctx)
		},
	}

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the devcell container",
		Long: `Starts the devcell container, creating it if needed.

When no devcell image has been installed yet, the image matching this CLI is
acquired first, exactly as 'devcell update' would.`,
		Example: `  devcell start`,
		Args:    cmdutil.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if runF != nil {
				return runF(cmd.Context(), opts)
			}
			return startRun(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVar(&opts.Progress, "progress", string(progress.ModeAuto), "Progress output when an image is acquired: auto, plain or tty")

	return cmd
}

func startRun(ctx context.Context, opts *StartOptions) error {
	ios := opts.IOStreams
	cs := ios.ColorScheme()

	mode, err := progress.ParseMode(opts.Progress)
	if err != nil {
		return cmdutil.FlagErrorWrap(err)
	}
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
	res, err := svc.Start(ctx)
	switch {
	case errors.Is(err, service.ErrNoImage):
		return acquireAndStart(ctx, opts, mode, names)
	case err != nil:
		return err
	}

	if res.AlreadyRunning {
		fmt.Fprintf(ios.Out, "%s %s is already running\n", cs.SuccessIcon(), names.Container)
		return nil
	}
	fmt.Fprintf(ios.Out, "%s Started %s\n", cs.SuccessIcon(), names.Container)
	return nil
}

func acquireAndStart(ctx context.Context, opts *StartOptions, mode progress.Mode, names config.Names) error {
	ios := opts.IOStreams
	cs := ios.ColorScheme()

	fmt.Fprintf(ios.ErrOut, "No devcell image installed; acquiring %s\n", names.Canonical)
	acq, err := opts.Acquirer(ctx)
	if err != nil {
		return err
	}

	rep := progress.NewReporter(ios, progress.Options{Mode: mode, Title: "Acquiring devcell image"})
	res, err := acq.Run(ctx, update.Request{Sink: rep})
	rep.Close()
	if err != nil {
		return err
	}

	fmt.Fprintf(ios.Out, "%s Started %s on devcell image %s (%s)\n", cs.SuccessIcon(), names.Container, res.Record.Version, res.Record.Describe())
	return nil
}
