// Package devcell wires the CLI entry point: factory, root command, error
// rendering, exit codes and the background release check.
package devcell

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/schmitthub/devcell/internal/cmd/factory"
	"github.com/schmitthub/devcell/internal/cmd/root"
	"github.com/schmitthub/devcell/internal/cmdutil"
	"github.com/schmitthub/devcell/internal/iostreams"
	"github.com/schmitthub/devcell/internal/logger"
	"github.com/schmitthub/devcell/internal/release"
)

// Build-time variables injected via ldflags
var (
	Version = "dev"
	Commit  = "none"
)

const (
	exitOk    = 0
	exitError = 1
	exitUsage = 2
)

// Main is the entry point for the devcell CLI.
// It initializes the Factory, creates the root command, and executes it.
func Main() int {
	// Ensure logs are flushed on exit
	defer logger.CloseFileWriter()

	f := factory.New(Version, Commit)
	defer f.CloseClient()

	rootCmd := root.NewCmdRoot(f)

	// The release check runs alongside the command and is abandoned when
	// the command finishes first.
	updateCtx, updateCancel := context.WithCancel(context.Background())
	defer updateCancel()
	updateCh := make(chan *release.CheckResult, 1)
	go func() {
		statePath := filepath.Join(f.StateDir(), release.StateFileName)
		res, err := release.CheckForUpdate(updateCtx, statePath, Version, release.DefaultRepo)
		if err != nil {
			logger.Debug().Err(err).Msg("release check failed")
		}
		updateCh <- res
	}()

	cmd, err := rootCmd.ExecuteContextC(context.Background())
	updateCancel()
	newRelease := <-updateCh

	if err != nil {
		return handleError(f.IOStreams, cmd, err)
	}

	if cmd.CommandPath() != "devcell update cli" {
		printUpdateNotification(f.IOStreams, newRelease)
	}
	return exitOk
}

// handleError prints err and returns the process exit code.
func handleError(ios *iostreams.IOStreams, cmd *cobra.Command, err error) int {
	if errors.Is(err, cmdutil.SilentError) {
		return exitError
	}

	var exitErr *cmdutil.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}

	var flagErr *cmdutil.FlagError
	if errors.As(err, &flagErr) || isCobraUsageError(err) {
		fmt.Fprintln(ios.ErrOut, err)
		if cmd != nil {
			fmt.Fprintln(ios.ErrOut)
			fmt.Fprint(ios.ErrOut, cmd.UsageString())
		}
		return exitUsage
	}

	fmt.Fprint(ios.ErrOut, cmdutil.FormatError(ios.ColorScheme(), err))
	if cmd != nil {
		logger.Debug().Err(err).Str("command", cmd.CommandPath()).Msg("command failed")
	}
	return exitError
}

// isCobraUsageError matches the flag parsing errors cobra returns unwrapped.
func isCobraUsageError(err error) bool {
	msg := err.Error()
	for _, prefix := range []string{"unknown flag", "unknown shorthand flag", "flag needs an argument", "invalid argument"} {
		if strings.HasPrefix(msg, prefix) {
			return true
		}
	}
	return false
}

// printUpdateNotification tells an interactive user about a newer release.
func printUpdateNotification(ios *iostreams.IOStreams, res *release.CheckResult) {
	if res == nil || !ios.IsStderrTTY() {
		return
	}
	cs := ios.ColorScheme()
	fmt.Fprintf(ios.ErrOut, "\n%s %s → %s\n",
		cs.Yellow("A new release of devcell is available:"),
		cs.Cyan(res.CurrentVersion),
		cs.Cyan(res.LatestVersion))
	fmt.Fprintf(ios.ErrOut, "To upgrade: %s\n", cs.Bold("devcell update cli"))
	fmt.Fprintf(ios.ErrOut, "%s\n", res.ReleaseURL)
}
