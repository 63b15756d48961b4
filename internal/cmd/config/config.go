// Package config provides the config command group.
package config

import (
	"github.com/spf13/cobra"

	"github.com/schmitthub/devcell/internal/cmd/config/get"
	"github.com/schmitthub/devcell/internal/cmd/config/set"
	"github.com/schmitthub/devcell/internal/cmdutil"
)

// NewCmdConfig creates the config command.
func NewCmdConfig(f *cmdutil.Factory) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Read and change devcell settings",
		Long: `Reads and changes keys in settings.yaml. DEVCELL_* environment variables
override the file; 'config get' shows the effective value.`,
	}

	cmd.AddCommand(get.NewCmdGet(f, nil))
	cmd.AddCommand(set.NewCmdSet(f, nil))

	return cmd
}
