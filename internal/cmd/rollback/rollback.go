// Package rollback provides the rollback command.
package rollback

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/schmitthub/devcell/internal/cmdutil"
	"github.com/schmitthub/devcell/internal/hostlock"
	"github.com/schmitthub/devcell/internal/iostreams"
	"github.com/schmitthub/devcell/internal/progress"
	"github.com/schmitthub/devcell/internal/prompter"
	"github.com/schmitthub/devcell/internal/update"
)

// RollbackRunner switches the container back to the backup image.
type RollbackRunner interface {
	Rollback(ctx context.Context, sink progress.Sink) (*update.RollbackResult, error)
}

// RollbackOptions holds options for the rollback command.
type RollbackOptions struct {
	IOStreams *iostreams.IOStreams
	Prompter  func() *prompter.Prompter
	HostLock  func(context.Context) (*hostlock.Lock, error)
	Runner    func(context.Context) (RollbackRunner, error)

	Yes bool
}

// NewCmdRollback creates the rollback command.
func NewCmdRollback(f *cmdutil.Factory, runF func(context.Context, *RollbackOptions) error) *cobra.Command {
	opts := &RollbackOptions{
		IOStreams: f.IOStreams,
		Prompter:  f.Prompter,
		HostLock:  f.HostLock,
		Runner: func(ctx context.Context) (RollbackRunner, error) {
			return f.Orchestrator(ctx)
		},
	}

	cmd := &cobra.Command{
		Use:   "rollback",
		Short: "Switch the container back to the previous image",
		Long: `Restarts the devcell container from the image kept under the backup tag
by the last update.

The image being replaced becomes the new backup, so running rollback twice
returns to where you started.`,
		Example: `  devcell rollback
  devcell rollback --yes`,
		Args: cmdutil.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if runF != nil {
				return runF(cmd.Context(), opts)
			}
			return rollbackRun(cmd.Context(), opts)
		},
	}

	cmd.Flags().BoolVarP(&opts.Yes, "yes", "y", false, "Do not ask for confirmation")

	return cmd
}

func rollbackRun(ctx context.Context, opts *RollbackOptions) error {
	ios := opts.IOStreams
	cs := ios.ColorScheme()

	if !opts.Yes {
		ok, err := opts.Prompter().Require("Restart the devcell container from the backup image?")
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintln(ios.ErrOut, "Rollback cancelled.")
			return nil
		}
	}

	lock, err := opts.HostLock(ctx)
	if err != nil {
		return err
	}
	defer lock.Release()

	runner, err := opts.Runner(ctx)
	if err != nil {
		return err
	}

	rep := progress.NewReporter(ios, progress.Options{Title: "Rolling back devcell image"})
	res, err := runner.Rollback(ctx, rep)
	rep.Close()
	if err != nil {
		return err
	}

	fmt.Fprintf(ios.Out, "%s Rolled back to devcell image %s (%s)\n", cs.SuccessIcon(), res.Record.Version, res.Record.Describe())
	if !res.Exact {
		fmt.Fprintf(ios.ErrOut, "%s No record was kept for this image; provenance was read from its labels\n", cs.WarningIcon())
	}
	return nil
}
