package root

import (
	"github.com/spf13/cobra"

	configcmd "github.com/schmitthub/devcell/internal/cmd/config"
	"github.com/schmitthub/devcell/internal/cmd/restart"
	"github.com/schmitthub/devcell/internal/cmd/rollback"
	"github.com/schmitthub/devcell/internal/cmd/start"
	statuscmd "github.com/schmitthub/devcell/internal/cmd/status"
	"github.com/schmitthub/devcell/internal/cmd/stop"
	updatecmd "github.com/schmitthub/devcell/internal/cmd/update"
	versioncmd "github.com/schmitthub/devcell/internal/cmd/version"
	"github.com/schmitthub/devcell/internal/cmdutil"
	"github.com/schmitthub/devcell/internal/config"
	"github.com/schmitthub/devcell/internal/logger"
)

// NewCmdRoot creates the root command for the devcell CLI.
func NewCmdRoot(f *cmdutil.Factory) *cobra.Command {
	var debug bool

	cmd := &cobra.Command{
		Use:   "devcell",
		Short: "Run and update the devcell development container",
		Long: `devcell manages a long-running development container and keeps its image
in step with the CLI.

Quick start:
  devcell start          # Acquire the image if needed and start the container
  devcell status         # Show the installed image and container state
  devcell update         # Move the container to the image matching this CLI
  devcell rollback       # Go back to the previous image`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			initializeLogger(f, debug)

			logger.Debug().
				Str("version", f.Version).
				Str("command", cmd.CommandPath()).
				Bool("debug", debug).
				Msg("devcell starting")

			return nil
		},
		Version: f.Version,
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&debug, "debug", "D", false, "Enable debug logging")

	cmd.SetVersionTemplate(versioncmd.Format(f.Version, f.Commit))

	cmd.AddCommand(start.NewCmdStart(f, nil))
	cmd.AddCommand(stop.NewCmdStop(f, nil))
	cmd.AddCommand(restart.NewCmdRestart(f, nil))
	cmd.AddCommand(statuscmd.NewCmdStatus(f, nil))
	cmd.AddCommand(updatecmd.NewCmdUpdate(f, nil))
	cmd.AddCommand(rollback.NewCmdRollback(f, nil))
	cmd.AddCommand(configcmd.NewCmdConfig(f))
	cmd.AddCommand(versioncmd.NewCmdVersion(f, f.Version, f.Commit))

	return cmd
}

// initializeLogger sets up the logger with file logging if possible.
// Falls back to console-only logging on any errors.
func initializeLogger(f *cmdutil.Factory, debug bool) {
	var logCfg *logger.LoggingConfig
	if f.Settings != nil {
		settings, err := f.Settings()
		if err != nil {
			logger.Init(debug)
			logger.Warn().Err(err).Msg("file logging unavailable: failed to load settings")
			return
		}
		logCfg = &logger.LoggingConfig{
			FileEnabled: settings.Logging.FileEnabled,
			MaxSizeMB:   settings.Logging.MaxSizeMB,
			MaxAgeDays:  settings.Logging.MaxAgeDays,
			MaxBackups:  settings.Logging.MaxBackups,
		}
	}

	if err := logger.InitWithFile(debug, config.LogsDir(), logCfg); err != nil {
		logger.Init(debug)
		logger.Warn().Err(err).Msg("file logging unavailable: failed to initialize file writer")
	}
	if instance, err := config.Instance(); err == nil {
		logger.SetInstance(instance)
	}
}
