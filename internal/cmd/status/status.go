// Package status provides the status command.
package status

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/schmitthub/devcell/internal/cmdutil"
	"github.com/schmitthub/devcell/internal/config"
	"github.com/schmitthub/devcell/internal/docker"
	"github.com/schmitthub/devcell/internal/iostreams"
	"github.com/schmitthub/devcell/internal/status"
	"github.com/schmitthub/devcell/internal/text"
)

// StatusOptions holds options for the status command.
type StatusOptions struct {
	IOStreams *iostreams.IOStreams
	Version   string
	Names     func() (config.Names, error)
	Deps      func(context.Context) (status.Deps, error)

	JSON bool
}

// NewCmdStatus creates the status command.
func NewCmdStatus(f *cmdutil.Factory, runF func(context.Context, *StatusOptions) error) *cobra.Command {
	opts := &StatusOptions{
		IOStreams: f.IOStreams,
		Version:   f.Version,
		Names:     f.Names,
		Deps:      f.StatusDeps,
	}

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the installed devcell image and container",
		Long: `Shows the installed devcell image version, where it came from, whether a
newer one is published and the state of the container.

A failed registry lookup is reported but does not fail the command.`,
		Example: `  devcell status
  devcell status --json`,
		Args: cmdutil.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if runF != nil {
				return runF(cmd.Context(), opts)
			}
			return statusRun(cmd.Context(), opts)
		},
	}

	cmd.Flags().BoolVar(&opts.JSON, "json", false, "Output as JSON")

	return cmd
}

func statusRun(ctx context.Context, opts *StatusOptions) error {
	names, err := opts.Names()
	if err != nil {
		return err
	}
	deps, err := opts.Deps(ctx)
	if err != nil {
		return err
	}
	report, err := status.Query(ctx, deps, names, opts.Version)
	if err != nil {
		return fmt.Errorf("reading devcell status: %w", err)
	}

	if opts.JSON {
		return cmdutil.WriteJSON(opts.IOStreams.Out, report)
	}
	printReport(opts.IOStreams, report)
	return nil
}

func printReport(ios *iostreams.IOStreams, r *status.Report) {
	cs := ios.ColorScheme()
	out := ios.Out

	row := func(label, value string) {
		fmt.Fprintf(out, "%-11s %s\n", label+":", value)
	}

	row("CLI", r.CLIVersion)
	if !r.Installed {
		row("Image", cs.Muted("not installed"))
	} else {
		image := r.ImageVersion
		if size := r.HumanSize(); size != "" {
			image += " " + cs.Mutedf("(%s)", size)
		}
		row("Image", image)
		if r.Source != "" {
			row("Source", r.Source)
		}
		if r.AcquiredAt != nil {
			row("Acquired", r.AcquiredAt.Local().Format(time.DateTime))
		}
	}

	switch {
	case r.LookupError != "":
		row("Latest", cs.Mutedf("unknown (%s)", text.Truncate(text.FirstLine(r.LookupError), 60)))
	case r.Latest != "":
		latest := r.Latest
		if r.LatestRegistry != "" {
			latest += " " + cs.Mutedf("(%s)", r.LatestRegistry)
		}
		if r.NewerAvailable {
			latest += " " + cs.Yellow("newer available")
		}
		row("Latest", latest)
	}

	backup := "none"
	if r.HasBackup {
		backup = "available"
	}
	row("Backup", backup)
	row("Container", containerState(cs, r.Container))

	if r.Mismatch {
		fmt.Fprintf(ios.ErrOut, "\n%s image version %s does not match devcell %s; run 'devcell update' to switch\n",
			cs.WarningIcon(), r.ImageVersion, r.CLIVersion)
	}
}

func containerState(cs *iostreams.ColorScheme, c status.Container) string {
	if !c.Exists {
		return c.Name + " " + cs.Muted("(not created)")
	}
	state := []string{"stopped"}
	if c.Running {
		state = []string{cs.Green("running")}
	}
	if c.Running && c.Health != "" && c.Health != docker.HealthRunning {
		state = append(state, string(c.Health))
	}
	return fmt.Sprintf("%s (%s)", c.Name, strings.Join(state, ", "))
}
