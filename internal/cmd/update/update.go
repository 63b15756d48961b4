// Package update provides the update command, which moves the devcell
// container to a new image, and its cli subcommand.
package update

import (
	"context"
	"fmt"
	"os"
	"time"

	units "github.com/docker/go-units"
	"github.com/spf13/cobra"

	"github.com/schmitthub/devcell/internal/cmd/update/cli"
	"github.com/schmitthub/devcell/internal/cmdutil"
	"github.com/schmitthub/devcell/internal/config"
	"github.com/schmitthub/devcell/internal/hostlock"
	"github.com/schmitthub/devcell/internal/iostreams"
	"github.com/schmitthub/devcell/internal/negotiate"
	"github.com/schmitthub/devcell/internal/progress"
	"github.com/schmitthub/devcell/internal/prompter"
	"github.com/schmitthub/devcell/internal/signals"
	"github.com/schmitthub/devcell/internal/update"
)

// Runner runs one image update.
type Runner interface {
	Run(ctx context.Context, req update.Request) (*update.Result, error)
}

// UpdateOptions holds options for the update command.
type UpdateOptions struct {
	IOStreams *iostreams.IOStreams
	Prompter  func() *prompter.Prompter
	Settings  func() (*config.Settings, error)
	HostLock  func(context.Context) (*hostlock.Lock, error)
	Updater   func(context.Context) (Runner, error)

	Pull             bool
	Build            bool
	BuildNoCache     bool
	SkipVersionCheck bool
	Force            bool
	Yes              bool
	Progress         string
}

// NewCmdUpdate creates the update command.
func NewCmdUpdate(f *cmdutil.Factory, runF func(context.Context, *UpdateOptions) error) *cobra.Command {
	opts := &UpdateOptions{
		IOStreams: f.IOStreams,
		Prompter:  f.Prompter,
		Settings:  f.Settings,
		HostLock:  f.HostLock,
		Updater: func(ctx context.Context) (Runner, error) {
			return f.Orchestrator(ctx)
		},
	}

	cmd := &cobra.Command{
		Use:   "update",
		Short: "Update the devcell image and restart the container",
		Long: `Acquires the devcell image matching this CLI and swaps the running
container onto it.

The image is pulled from the configured registries, or built from the
embedded definition when image.source is "build". If every registry fails
and the source is prebuilt, the image is built instead.

The previous image is kept under a backup tag. When the new container does
not become healthy, devcell switches back to it automatically; use
'devcell rollback' to return to it later.`,
		Example: `  # Update to the image matching this CLI
  devcell update

  # Pull even if the installed image is current
  devcell update --pull

  # Rebuild from scratch without the layer cache
  devcell update --build-no-cache --yes`,
		Args: cmdutil.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if runF != nil {
				return runF(cmd.Context(), opts)
			}
			return updateRun(cmd.Context(), opts)
		},
	}

	cmd.Flags().BoolVar(&opts.Pull, "pull", false, "Pull the published image, even if current")
	cmd.Flags().BoolVar(&opts.Build, "build", false, "Build the image from the embedded definition, reusing cached layers")
	cmd.Flags().BoolVar(&opts.BuildNoCache, "build-no-cache", false, "Build the image without the layer cache")
	cmd.Flags().BoolVar(&opts.SkipVersionCheck, "skip-version-check", false, "Skip the CLI/image version comparison for this run")
	cmd.Flags().BoolVarP(&opts.Force, "force", "f", false, "Acquire the image again from the configured source, even if current")
	cmd.Flags().BoolVarP(&opts.Yes, "yes", "y", false, "Do not ask for confirmation")
	cmd.Flags().StringVar(&opts.Progress, "progress", string(progress.ModeAuto), "Progress output: auto, plain or tty")

	cmd.AddCommand(cli.NewCmdCLI(f, nil))

	return cmd
}

func updateRun(ctx context.Context, opts *UpdateOptions) error {
	ios := opts.IOStreams
	cs := ios.ColorScheme()

	// Flags are validated before anything on the host is touched.
	force, err := update.ForceFromFlags(opts.Pull, opts.Build, opts.BuildNoCache)
	if err != nil {
		return err
	}
	mode, err := progress.ParseMode(opts.Progress)
	if err != nil {
		return cmdutil.FlagErrorWrap(err)
	}
	if opts.Force && force == negotiate.ForceNone {
		settings, err := opts.Settings()
		if err != nil {
			return err
		}
		force = update.ForceForSource(settings.Image.Source)
	}

	if !opts.Yes {
		ok, err := opts.Prompter().Require("Update the devcell image? The container restarts if the image changes.")
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

	runner, err := opts.Updater(ctx)
	if err != nil {
		return err
	}

	ctx, cancel := signals.SetupSignalContext(ctx, func(os.Signal) {
		fmt.Fprintf(ios.ErrOut, "%s Interrupted; restoring the previous container, please wait...\n", cs.WarningIcon())
	})
	defer cancel()

	rep := progress.NewReporter(ios, progress.Options{
		Mode:  mode,
		Title: "Updating devcell image",
	})
	res, err := runner.Run(ctx, update.Request{
		Force:            force,
		SkipVersionCheck: opts.SkipVersionCheck,
		Sink:             rep,
	})
	rep.Close()
	if err != nil {
		return err
	}

	printResult(ios, res)
	return nil
}

func printResult(ios *iostreams.IOStreams, res *update.Result) {
	cs := ios.ColorScheme()

	if res.Plan.Warning != "" {
		fmt.Fprintf(ios.ErrOut, "%s %s\n", cs.WarningIcon(), res.Plan.Warning)
	}

	switch res.Outcome {
	case update.OutcomeDevImage:
		fmt.Fprintf(ios.ErrOut, "%s Installed image is a dev build; not updating. Use --pull or --build to replace it.\n", cs.WarningIcon())
	case update.OutcomeAlreadyCurrent:
		version := res.Record.Version
		if version == "" {
			version = res.Plan.TargetVersion
		}
		fmt.Fprintf(ios.Out, "%s devcell image %s is already current\n", cs.SuccessIcon(), version)
	case update.OutcomeUpdated:
		if res.FellBack {
			fmt.Fprintf(ios.ErrOut, "%s No registry could provide the image; it was built from source instead\n", cs.WarningIcon())
		}
		fmt.Fprintf(ios.Out, "%s Updated devcell image to %s (%s)\n", cs.SuccessIcon(), res.Record.Version, res.Record.Describe())
		if res.Previous != nil && res.BackupTag != "" {
			fmt.Fprintf(ios.Out, "  Previous image %s kept as %s\n", res.Previous.Version, res.BackupTag)
		}
		if res.Reclaimed > 0 {
			fmt.Fprintf(ios.Out, "  Reclaimed %s from unused images\n", units.HumanSize(float64(res.Reclaimed)))
		}
		fmt.Fprintln(ios.Out, cs.Mutedf("  Finished in %s", res.Duration.Round(100*time.Millisecond)))
	}
}
