package selfupdate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"

	goupdate "github.com/doitdistributed/go-update"

	"github.com/schmitthub/devcell/internal/logger"
	"github.com/schmitthub/devcell/internal/negotiate"
	"github.com/schmitthub/devcell/internal/release"
	"github.com/schmitthub/devcell/internal/update"
)

// GoModule is the path go install fetches the CLI from.
const GoModule = "github.com/schmitthub/devcell/cmd/devcell"

// Runner runs an installer command.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) error
}

// ExecRunner runs commands with the process's stdout and stderr.
type ExecRunner struct {
	Stdout io.Writer
	Stderr io.Writer
}

func (r ExecRunner) Run(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = r.Stdout
	cmd.Stderr = r.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

// Releases looks up and downloads GitHub releases.
type Releases interface {
	LatestRelease(ctx context.Context, repo string) (*release.Release, error)
	Download(ctx context.Context, asset release.Asset) (io.ReadCloser, error)
}

// Packages looks up the latest npm version.
type Packages interface {
	LatestVersion(ctx context.Context, pkg string) (string, error)
}

// Service restarts the managed container once the CLI is replaced.
type Service interface {
	Restart(ctx context.Context) error
}

// Updater replaces the running CLI.
type Updater struct {
	CurrentVersion string
	Executable     string
	Paths          Paths
	Runner         Runner
	Releases       Releases
	Packages       Packages
	Service        Service
	Repo           string
	GOOS           string
	GOARCH         string
}

// Result reports a self-update.
type Result struct {
	Method         Method
	From           string
	To             string
	AlreadyCurrent bool
}

// ErrRestart marks a restart failure after the CLI was replaced.
var ErrRestart = errors.New("restarting the devcell service")

// Check resolves the install method and target version without changing
// anything.
func (u *Updater) Check(ctx context.Context) (*Result, error) {
	if negotiate.IsSnapshot(u.CurrentVersion) {
		return nil, &update.ConfigurationError{
			Message:  fmt.Sprintf("devcell %s is a development build and cannot update itself", u.CurrentVersion),
			Guidance: append([]string{"Install a released version instead:"}, installGuidance()...),
		}
	}
	method := Detect(u.Executable, u.Paths)
	if method == MethodUnknown {
		return nil, &update.ConfigurationError{
			Message:  fmt.Sprintf("cannot tell how %s was installed", u.Executable),
			Guidance: installGuidance(),
		}
	}

	target, err := u.latest(ctx, method)
	if err != nil {
		return nil, fmt.Errorf("looking up the latest devcell release: %w", err)
	}
	return &Result{
		Method:         method,
		From:           negotiate.Normalize(u.CurrentVersion),
		To:             target,
		AlreadyCurrent: !negotiate.Newer(target, u.CurrentVersion),
	}, nil
}

// Apply runs the installer for a checked Result and restarts the service.
// A restart failure wraps ErrRestart; the CLI is already updated by then.
func (u *Updater) Apply(ctx context.Context, res *Result) error {
	if res.AlreadyCurrent {
		return nil
	}
	log := logger.WithField("method", res.Method.String())
	log.Info().Str("from", res.From).Str("to", res.To).Msg("updating devcell cli")

	var err error
	switch res.Method {
	case MethodNPM:
		err = u.Runner.Run(ctx, "npm", "install", "-g", release.NPMPackage+"@"+res.To)
	case MethodHomebrew:
		err = u.Runner.Run(ctx, "brew", "upgrade", "devcell")
	case MethodGoInstall:
		err = u.Runner.Run(ctx, "go", "install", GoModule+"@v"+res.To)
	case MethodRelease:
		err = u.replaceBinary(ctx)
	default:
		return fmt.Errorf("unsupported install method %s", res.Method)
	}
	if err != nil {
		return fmt.Errorf("updating devcell with %s: %w", res.Method, err)
	}

	if u.Service != nil {
		if err := u.Service.Restart(ctx); err != nil {
			return fmt.Errorf("%w: %w", ErrRestart, err)
		}
	}
	return nil
}

// Run checks and applies in one step.
func (u *Updater) Run(ctx context.Context) (*Result, error) {
	res, err := u.Check(ctx)
	if err != nil {
		return nil, err
	}
	return res, u.Apply(ctx, res)
}

func (u *Updater) latest(ctx context.Context, method Method) (string, error) {
	if method == MethodNPM {
		v, err := u.Packages.LatestVersion(ctx, release.NPMPackage)
		if err != nil {
			return "", err
		}
		return negotiate.Normalize(v), nil
	}
	rel, err := u.Releases.LatestRelease(ctx, u.repo())
	if err != nil {
		return "", err
	}
	return rel.Version, nil
}

func (u *Updater) replaceBinary(ctx context.Context) error {
	rel, err := u.Releases.LatestRelease(ctx, u.repo())
	if err != nil {
		return err
	}
	goos, goarch := u.platform()
	asset, ok := rel.AssetFor(goos, goarch)
	if !ok {
		return fmt.Errorf("release %s has no %s binary", rel.Version, release.AssetName(goos, goarch))
	}
	body, err := u.Releases.Download(ctx, asset)
	if err != nil {
		return err
	}
	defer body.Close()

	info, err := os.Stat(u.Executable)
	if err != nil {
		return err
	}
	return goupdate.Apply(body, goupdate.Options{
		TargetPath: u.Executable,
		TargetMode: info.Mode(),
	})
}

func (u *Updater) repo() string {
	if u.Repo != "" {
		return u.Repo
	}
	return release.DefaultRepo
}

func (u *Updater) platform() (string, string) {
	goos, goarch := u.GOOS, u.GOARCH
	if goos == "" {
		goos = runtime.GOOS
	}
	if goarch == "" {
		goarch = runtime.GOARCH
	}
	return goos, goarch
}

func installGuidance() []string {
	return []string{
		"Release binary: download from https://github.com/" + release.DefaultRepo + "/releases into ~/.local/bin and create ~/.local/bin/" + InstallMarker,
		"npm: npm install -g " + release.NPMPackage,
		"Homebrew: brew install devcell",
		"go install: go install " + GoModule + "@latest",
	}
}
