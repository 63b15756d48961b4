// Package get provides the config get command.
package get

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/schmitthub/devcell/internal/cmdutil"
	"github.com/schmitthub/devcell/internal/config"
	"github.com/schmitthub/devcell/internal/iostreams"
)

// Reader returns effective settings values.
type Reader interface {
	Get(key string) (any, error)
	Path() string
}

// GetOptions holds options for the config get command.
type GetOptions struct {
	IOStreams *iostreams.IOStreams
	Settings  func() Reader

	Key string
}

// NewCmdGet creates the config get command.
func NewCmdGet(f *cmdutil.Factory, runF func(context.Context, *GetOptions) error) *cobra.Command {
	opts := &GetOptions{
		IOStreams: f.IOStreams,
		Settings: func() Reader {
			return f.ConfigLoader()
		},
	}

	cmd := &cobra.Command{
		Use:   "get [KEY]",
		Short: "Print a setting, or all of them",
		Example: `  devcell config get
  devcell config get image.source`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				opts.Key = args[0]
			}
			if runF != nil {
				return runF(cmd.Context(), opts)
			}
			return getRun(opts)
		},
	}

	return cmd
}

func getRun(opts *GetOptions) error {
	r := opts.Settings()
	out := opts.IOStreams.Out

	if opts.Key != "" {
		v, err := r.Get(opts.Key)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, format(v))
		return nil
	}

	for _, key := range config.Keys() {
		v, err := r.Get(key)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%-26s %s\n", key, format(v))
	}
	fmt.Fprintf(opts.IOStreams.ErrOut, "%s\n", opts.IOStreams.ColorScheme().Mutedf("Settings file: %s", r.Path()))
	return nil
}

func format(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case []string:
		return strings.Join(val, ",")
	case []any:
		parts := make([]string, len(val))
		for i, p := range val {
			parts[i] = fmt.Sprint(p)
		}
		return strings.Join(parts, ",")
	}
	return fmt.Sprint(v)
}
