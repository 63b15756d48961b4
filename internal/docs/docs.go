// Package docs renders the devcell command tree as Markdown reference pages
// and man pages.
package docs

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
)

// renderFunc writes the page for one command.
type renderFunc func(cmd *cobra.Command, w io.Writer) error

// visibleCommands returns the subcommands that get their own page.
func visibleCommands(cmd *cobra.Command) []*cobra.Command {
	var out []*cobra.Command
	for _, c := range cmd.Commands() {
		if !c.IsAvailableCommand() || c.IsAdditionalHelpTopicCommand() {
			continue
		}
		out = append(out, c)
	}
	return out
}

// pageName turns "devcell update cli" into "devcell_update_cli".
func pageName(cmd *cobra.Command, sep string) string {
	return strings.ReplaceAll(cmd.CommandPath(), " ", sep)
}

// writeTree renders cmd and every visible descendant into dir.
func writeTree(cmd *cobra.Command, dir string, filename func(*cobra.Command) string, render renderFunc) error {
	for _, c := range visibleCommands(cmd) {
		if err := writeTree(c, dir, filename, render); err != nil {
			return err
		}
	}

	path := filepath.Join(dir, filename(cmd))
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	if err := render(cmd, f); err != nil {
		f.Close()
		return fmt.Errorf("rendering %s: %w", path, err)
	}
	return f.Close()
}
