package cmdutil

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/schmitthub/devcell/internal/iostreams"
)

// WriteJSON encodes data as indented JSON. Used by --json output.
func WriteJSON(w io.Writer, data any) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}

// FormatError renders err for the terminal: the message, then numbered next
// steps from the first error in the chain that offers them.
func FormatError(cs *iostreams.ColorScheme, err error) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s %s\n", cs.FailureIcon(), err.Error())

	var ns NextStepper
	if errors.As(err, &ns) {
		if steps := ns.NextSteps(); len(steps) > 0 {
			sb.WriteString("\n" + cs.Bold("Next Steps:") + "\n")
			for i, step := range steps {
				fmt.Fprintf(&sb, "  %d. %s\n", i+1, step)
			}
		}
	}
	return sb.String()
}

// PrintHelpHint prints a contextual help hint to stderr.
// cmdPath should be cmd.CommandPath() (e.g., "devcell update").
func PrintHelpHint(ios *iostreams.IOStreams, cmdPath string) {
	fmt.Fprintf(ios.ErrOut, "\nRun '%s --help' for more information.\n", cmdPath)
}
