package factory

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/schmitthub/devcell/internal/build"
	"github.com/schmitthub/devcell/internal/cmdutil"
	"github.com/schmitthub/devcell/internal/config"
	"github.com/schmitthub/devcell/internal/docker"
	"github.com/schmitthub/devcell/internal/docker/buildkit"
	"github.com/schmitthub/devcell/internal/hostlock"
	"github.com/schmitthub/devcell/internal/iostreams"
	"github.com/schmitthub/devcell/internal/logger"
	"github.com/schmitthub/devcell/internal/negotiate"
	"github.com/schmitthub/devcell/internal/prompter"
	"github.com/schmitthub/devcell/internal/provenance"
	"github.com/schmitthub/devcell/internal/registry"
	"github.com/schmitthub/devcell/internal/release"
	"github.com/schmitthub/devcell/internal/selfupdate"
	"github.com/schmitthub/devcell/internal/service"
	"github.com/schmitthub/devcell/internal/status"
	"github.com/schmitthub/devcell/internal/update"
)

// downloadTimeout bounds a release binary download.
const downloadTimeout = 5 * time.Minute

// New creates a fully-wired Factory with lazy-initialized dependency closures.
// Called exactly once at the CLI entry point (internal/devcell/cmd.go).
// Tests should NOT import this package; construct &cmdutil.Factory{} directly.
func New(version, commit string) *cmdutil.Factory {
	ios := iostreams.NewIOStreams()

	// Respect CI environment (disable prompts)
	if os.Getenv("CI") != "" {
		ios.SetNeverPrompt(true)
	}
	ios.Logger = &logger.Log

	f := &cmdutil.Factory{
		Version:   version,
		Commit:    commit,
		IOStreams: ios,
		StateDir:  config.StateDir,
	}

	// --- Lazy dependency closures ---

	// Docker client
	var (
		clientOnce sync.Once
		client     *docker.Client
		clientErr  error
	)
	f.Client = func(ctx context.Context) (*docker.Client, error) {
		clientOnce.Do(func() {
			client, clientErr = docker.NewClient(ctx)
			if clientErr == nil {
				client.BuildKitImageBuilder = buildkit.NewImageBuilder(client.API)
			}
		})
		return client, clientErr
	}
	f.CloseClient = func() {
		if client != nil {
			client.Close()
		}
	}

	// Settings
	var (
		loaderOnce   sync.Once
		loader       *config.Loader
		settingsOnce sync.Once
		settings     *config.Settings
		settingsErr  error
	)
	f.ConfigLoader = func() *config.Loader {
		loaderOnce.Do(func() {
			loader = config.NewLoader()
		})
		return loader
	}
	f.Settings = func() (*config.Settings, error) {
		settingsOnce.Do(func() {
			settings, settingsErr = f.ConfigLoader().Load()
		})
		return settings, settingsErr
	}

	// Instance-scoped names
	f.Names = func() (config.Names, error) {
		s, err := f.Settings()
		if err != nil {
			return config.Names{}, err
		}
		instance, err := config.Instance()
		if err != nil {
			return config.Names{}, err
		}
		return config.NamesFor(s, instance), nil
	}

	f.Prompter = func() *prompter.Prompter {
		return prompter.NewPrompter(f.IOStreams)
	}

	f.HostLock = func(ctx context.Context) (*hostlock.Lock, error) {
		return hostlock.Acquire(ctx, config.LockFilePath(), hostlock.DefaultWait)
	}

	// One negotiation session per process so CheckOnce warnings show once.
	session := negotiate.NewSession()

	f.Orchestrator = func(ctx context.Context) (*update.Orchestrator, error) {
		c, err := f.Client(ctx)
		if err != nil {
			return nil, err
		}
		s, err := f.Settings()
		if err != nil {
			return nil, err
		}
		names, err := f.Names()
		if err != nil {
			return nil, err
		}
		stateDir := f.StateDir()

		puller := registry.NewPuller(c, s.Image.Registries, names.Canonical,
			registry.WithAttemptTimeout(s.Update.PullTimeout))
		engine := build.NewEngine(c, names.Canonical, negotiate.Normalize(f.Version), names.Instance)

		return update.New(update.Deps{
			Lifecycle: &update.DockerLifecycle{Client: c},
			Images:    &update.DockerImages{Client: c},
			Puller:    puller,
			Builder:   engine,
			Latest:    registry.NewVersionLookup(s.Image.Registries, s.Image.Name),
			Config:    &update.SettingsConfig{Settings: s, Instance: names.Instance},
			Store:     provenance.NewStore(filepath.Join(stateDir, names.StateFile)),
			Previous:  provenance.NewStore(filepath.Join(stateDir, names.PreviousStateFile)),
			Session:   session,
		}, update.Options{
			CLIVersion:     f.Version,
			Names:          names,
			ImageName:      s.Image.Name,
			HealthTimeout:  s.Update.HealthTimeout,
			HealthInterval: s.Update.HealthInterval,
			Purge:          s.Update.PurgeAfterUpdate,
		}), nil
	}

	f.Service = func(ctx context.Context) (*service.Manager, error) {
		c, err := f.Client(ctx)
		if err != nil {
			return nil, err
		}
		s, err := f.Settings()
		if err != nil {
			return nil, err
		}
		names, err := f.Names()
		if err != nil {
			return nil, err
		}
		cfg := &update.SettingsConfig{Settings: s, Instance: names.Instance}
		return service.NewManager(c, names, cfg.RunSpec), nil
	}

	f.SelfUpdater = func(ctx context.Context) (*selfupdate.Updater, error) {
		exe, err := selfupdate.ResolveExecutable()
		if err != nil {
			return nil, err
		}
		return &selfupdate.Updater{
			CurrentVersion: f.Version,
			Executable:     exe,
			Paths:          selfupdate.PathsFromEnv(),
			Runner:         selfupdate.ExecRunner{Stdout: f.IOStreams.ErrOut, Stderr: f.IOStreams.ErrOut},
			Releases:       release.NewGitHubClient(release.WithTimeout(downloadTimeout)),
			Packages:       release.NewNPMClient(),
			Service:        &lazyService{f: f},
		}, nil
	}

	f.StatusDeps = func(ctx context.Context) (status.Deps, error) {
		c, err := f.Client(ctx)
		if err != nil {
			return status.Deps{}, err
		}
		s, err := f.Settings()
		if err != nil {
			return status.Deps{}, err
		}
		names, err := f.Names()
		if err != nil {
			return status.Deps{}, err
		}
		return status.Deps{
			Images:     c,
			Containers: c,
			Latest:     registry.NewVersionLookup(s.Image.Registries, s.Image.Name),
			Records:    provenance.NewStore(filepath.Join(f.StateDir(), names.StateFile)),
		}, nil
	}

	return f
}

// lazyService connects to Docker only when a self-update actually needs the
// service restarted.
type lazyService struct {
	f *cmdutil.Factory
}

func (s *lazyService) Restart(ctx context.Context) error {
	m, err := s.f.Service(ctx)
	if err != nil {
		return err
	}
	return m.Restart(ctx)
}
