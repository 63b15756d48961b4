// Package cli provides the "update cli" command, which replaces the devcell
// binary with the latest release.
package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/schmitthub/devcell/internal/cmdutil"
	"github.com/schmitthub/devcell/internal/hostlock"
	"github.com/schmitthub/devcell/internal/iostreams"
	"github.com/schmitthub/devcell/internal/prompter"
	"github.com/schmitthub/devcell/internal/selfupdate"
)

// SelfUpdater checks for and installs a newer CLI.
type SelfUpdater interface {
	Check(ctx context.Context) (*selfupdate.Result, error)
	Apply(ctx context.Context, res *selfupdate.Result) error
}

// CLIOptions holds options for the update cli command.
type CLIOptions struct {
	IOStreams *iostreams.IOStreams
	Prompter  func() *prompter.Prompter
	HostLock  func(context.Context) (*hostlock.Lock, error)
	Updater   func(context.Context) (SelfUpdater, error)

	Yes bool
}

// NewCmdCLI creates the update cli command.
func NewCmdCLI(f *cmdutil.Factory, runF func(context.Context, *CLIOptions) error) *cobra.Command {
	opts := &CLIOptions{
		IOStreams: f.IOStreams,
		Prompter:  f.Prompter,
		HostLock:  f.HostLock,
		Updater: func(ctx context.Context) (SelfUpdater, error) {
			return f.SelfUpdater(ctx)
		},
	}

	cmd := &cobra.Command{
		Use:   "cli",
		Short: "Update the devcell CLI itself",
		Long: `Updates the devcell CLI to the latest release using the method it was
installed with (npm, Homebrew, go install or a release binary), then restarts
the devcell container so it runs under the new version.`,
		Example: `  devcell update cli
  devcell update cli --yes`,
		Args: cmdutil.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if runF != nil {
				return runF(cmd.Context(), opts)
			}
			return cliRun(cmd.Context(), opts)
		},
	}

	cmd.Flags().BoolVarP(&opts.Yes, "yes", "y", false, "Do not ask for confirmation")

	return cmd
}

func cliRun(ctx context.Context, opts *CLIOptions) error {
	ios := opts.IOStreams
	cs := ios.ColorScheme()

	updater, err := opts.Updater(ctx)
	if err != nil {
		return err
	}
	res, err := updater.Check(ctx)
	if err != nil {
		return err
	}
	if res.AlreadyCurrent {
		fmt.Fprintf(ios.Out, "%s devcell %s is already the latest release\n", cs.SuccessIcon(), res.From)
		return nil
	}

	if !opts.Yes {
		msg := fmt.Sprintf("Update devcell %s to %s using %s?", res.From, res.To, res.Method)
		ok, err := opts.Prompter().Require(msg)
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintln(ios.ErrOut, "Update cancelled.")
			return nil
		}
	}

	lock, err := opts.HostLock(ctx)
	if err != nil {
		return err
	}
	defer lock.Release()

	if err := updater.Apply(ctx, res); err != nil {
		if errors.Is(err, selfupdate.ErrRestart) {
			fmt.Fprintf(ios.Out, "%s Updated devcell to %s\n", cs.SuccessIcon(), res.To)
			fmt.Fprintf(ios.ErrOut, "%s The container could not be restarted; run 'devcell restart'\n", cs.WarningIcon())
		}
		return err
	}

	fmt.Fprintf(ios.Out, "%s Updated devcell %s to %s\n", cs.SuccessIcon(), res.From, res.To)
	return nil
}
