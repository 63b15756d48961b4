package cmdutil

import (
	"context"

	"github.com/schmitthub/devcell/internal/config"
	"github.com/schmitthub/devcell/internal/docker"
	"github.com/schmitthub/devcell/internal/hostlock"
	"github.com/schmitthub/devcell/internal/iostreams"
	"github.com/schmitthub/devcell/internal/prompter"
	"github.com/schmitthub/devcell/internal/selfupdate"
	"github.com/schmitthub/devcell/internal/service"
	"github.com/schmitthub/devcell/internal/status"
	"github.com/schmitthub/devcell/internal/update"
)

// Factory provides shared dependencies for CLI commands.
// It is a dependency injection container: the struct defines what
// dependencies exist (the contract), while internal/cmd/factory
// wires the real implementations.
//
// Closure fields are set by the factory constructor and use lazy
// initialization internally. Commands extract only the fields they
// need into per-command Options structs.
type Factory struct {
	// Version info (set at build time via ldflags)
	Version string
	Commit  string

	// IO streams for input/output (for testability)
	IOStreams *iostreams.IOStreams

	// Docker
	Client      func(context.Context) (*docker.Client, error)
	CloseClient func()

	// Configuration
	ConfigLoader func() *config.Loader
	Settings     func() (*config.Settings, error)
	Names        func() (config.Names, error)
	// StateDir holds provenance records, the host lock and the update-check
	// cache.
	StateDir func() string

	Prompter func() *prompter.Prompter
	// HostLock serializes state-changing commands across processes.
	HostLock func(context.Context) (*hostlock.Lock, error)

	// Domain services
	Orchestrator func(context.Context) (*update.Orchestrator, error)
	Service      func(context.Context) (*service.Manager, error)
	SelfUpdater  func(context.Context) (*selfupdate.Updater, error)
	StatusDeps   func(context.Context) (status.Deps, error)
}
