// Package set provides the config set command.
package set

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/schmitthub/devcell/internal/cmdutil"
	"github.com/schmitthub/devcell/internal/iostreams"
)

// Writer persists a settings key.
type Writer interface {
	Write(key string, value any) error
	Path() string
}

// SetOptions holds options for the config set command.
type SetOptions struct {
	IOStreams *iostreams.IOStreams
	Settings  func() Writer

	Key   string
	Value string
}

// NewCmdSet creates the config set command.
func NewCmdSet(f *cmdutil.Factory, runF func(context.Context, *SetOptions) error) *cobra.Command {
	opts := &SetOptions{
		IOStreams: f.IOStreams,
		Settings: func() Writer {
			return f.ConfigLoader()
		},
	}

	cmd := &cobra.Command{
		Use:   "set KEY VALUE",
		Short: "Change a setting in settings.yaml",
		Long: `Writes one key to settings.yaml. The other keys in the file are kept.
List keys (image.registries, container.mounts, container.ports,
container.env) take a comma separated value.`,
		Example: `  devcell config set image.source build
  devcell config set image.registries ghcr.io/me,docker.io/me
  devcell config set update.health_timeout 90s`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Key, opts.Value = args[0], args[1]
			if runF != nil {
				return runF(cmd.Context(), opts)
			}
			return setRun(opts)
		},
	}

	return cmd
}

func setRun(opts *SetOptions) error {
	w := opts.Settings()
	if err := w.Write(opts.Key, opts.Value); err != nil {
		return err
	}
	cs := opts.IOStreams.ColorScheme()
	fmt.Fprintf(opts.IOStreams.Out, "%s Set %s to %s %s\n", cs.SuccessIcon(), opts.Key, opts.Value, cs.Mutedf("(%s)", w.Path()))
	return nil
}
