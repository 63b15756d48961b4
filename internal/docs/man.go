package docs

import (
	"bytes"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/cpuguy83/go-md2man/v2/md2man"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// manSection is the man section for user commands.
const manSection = "1"

// GenManTree writes one man page per command into dir
// ("devcell-update-cli.1").
func GenManTree(cmd *cobra.Command, dir string) error {
	return writeTree(cmd, dir, manFilename, GenMan)
}

// GenMan writes the man page for a single command. The page is composed
// as Markdown and converted with md2man.
func GenMan(cmd *cobra.Command, w io.Writer) error {
	cmd.InitDefaultHelpFlag()

	var buf bytes.Buffer
	name := cmd.CommandPath()
	fmt.Fprintf(&buf, "%% %s(%s) | Devcell Manual\n\n", strings.ToUpper(pageName(cmd, "-")), manSection)

	fmt.Fprintf(&buf, "# NAME\n%s \\- %s\n\n", name, cmd.Short)

	buf.WriteString("# SYNOPSIS\n**" + name + "**")
	if cmd.NonInheritedFlags().HasAvailableFlags() {
		buf.WriteString(" [OPTIONS]")
	}
	if cmd.HasAvailableSubCommands() {
		buf.WriteString(" COMMAND")
	}
	buf.WriteString("\n\n")

	if cmd.Long != "" {
		fmt.Fprintf(&buf, "# DESCRIPTION\n%s\n\n", cmd.Long)
	}

	if subs := visibleCommands(cmd); len(subs) > 0 {
		buf.WriteString("# COMMANDS\n")
		for _, c := range subs {
			fmt.Fprintf(&buf, "**%s**\n: %s\n\n", c.Name(), c.Short)
		}
	}

	local, inherited := cmd.NonInheritedFlags(), cmd.InheritedFlags()
	if local.HasAvailableFlags() || inherited.HasAvailableFlags() {
		buf.WriteString("# OPTIONS\n")
		writeManFlags(&buf, local)
		writeManFlags(&buf, inherited)
	}

	if cmd.Example != "" {
		fmt.Fprintf(&buf, "# EXAMPLES\n```\n%s\n```\n\n", cmd.Example)
	}

	var related []string
	if cmd.HasParent() {
		related = append(related, manRef(cmd.Parent()))
	}
	for _, c := range visibleCommands(cmd) {
		related = append(related, manRef(c))
	}
	if len(related) > 0 {
		fmt.Fprintf(&buf, "# SEE ALSO\n%s\n", strings.Join(related, ", "))
	}

	_, err := w.Write(md2man.Render(buf.Bytes()))
	return err
}

func writeManFlags(buf *bytes.Buffer, flags *pflag.FlagSet) {
	var list []*pflag.Flag
	flags.VisitAll(func(f *pflag.Flag) {
		if !f.Hidden {
			list = append(list, f)
		}
	})
	sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })

	for _, f := range list {
		if f.Shorthand != "" {
			fmt.Fprintf(buf, "**-%s**, **--%s**", f.Shorthand, f.Name)
		} else {
			fmt.Fprintf(buf, "**--%s**", f.Name)
		}
		if typ := f.Value.Type(); typ != "bool" {
			fmt.Fprintf(buf, " <%s>", typ)
		}
		buf.WriteString("\n: " + f.Usage)
		switch f.DefValue {
		case "", "false", "0", "[]":
		default:
			fmt.Fprintf(buf, " (default: %s)", f.DefValue)
		}
		buf.WriteString("\n\n")
	}
}

func manRef(cmd *cobra.Command) string {
	return fmt.Sprintf("**%s(%s)**", pageName(cmd, "-"), manSection)
}

func manFilename(cmd *cobra.Command) string {
	return pageName(cmd, "-") + "." + manSection
}
