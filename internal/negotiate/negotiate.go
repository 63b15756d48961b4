// Package negotiate decides whether the installed image matches the CLI and
// how a replacement should be acquired.
//
// Decide is pure: it reads a session view but never records into it. Callers
// record what they actually showed with Session.Observe.
package negotiate

import (
	"fmt"
	"strings"

	"github.com/blang/semver/v4"

	"github.com/schmitthub/devcell/internal/config"
)

// Force overrides the configured image source for one invocation.
type Force int

const (
	ForceNone Force = iota
	ForcePull
	ForceBuild
	ForceBuildNoCache
)

func (f Force) String() string {
	switch f {
	case ForcePull:
		return "pull"
	case ForceBuild:
		return "build"
	case ForceBuildNoCache:
		return "build-no-cache"
	default:
		return "none"
	}
}

// DevVersion is the version label of images built from an unreleased tree.
const DevVersion = "dev"

// SeenSet is a read-only view of the warnings already shown this session.
type SeenSet interface {
	Seen(key string) bool
}

// Input is everything Decide looks at.
type Input struct {
	CLIVersion       string
	InstalledVersion string
	LatestPublished  string
	ConfiguredSource config.ImageSource
	Policy           config.CheckPolicy
	Seen             SeenSet
	Force            Force
	SkipVersionCheck bool
}

// Plan is the outcome of a negotiation. It is never persisted.
type Plan struct {
	TargetVersion string
	Source        config.ImageSource
	RequiresBuild bool
	UseCache      bool
	// FallbackAllowed permits building from source when every registry fails.
	FallbackAllowed bool
	UpdateNeeded    bool
	Mismatch        bool
	// Snapshot is set when the CLI is an unreleased build.
	Snapshot bool
	// Warning is empty when nothing should be shown.
	Warning string
	// WarningKey is what the caller records after showing Warning.
	WarningKey string
}

// Decide computes a plan.
func Decide(in Input) Plan {
	cli := Normalize(in.CLIVersion)
	installed := Normalize(in.InstalledVersion)
	latest := Normalize(in.LatestPublished)

	p := Plan{
		TargetVersion: cli,
		Source:        in.ConfiguredSource,
		UseCache:      true,
		Snapshot:      IsSnapshot(cli),
	}
	if p.Source == "" {
		p.Source = config.SourcePrebuilt
	}

	if p.Snapshot {
		if latest != "" {
			p.TargetVersion = latest
		} else {
			// Nothing published to pull; the embedded build is the only option.
			p.TargetVersion = cli
			p.Source = config.SourceBuild
		}
	}

	switch in.Force {
	case ForcePull:
		p.Source = config.SourcePrebuilt
	case ForceBuild:
		p.Source = config.SourceBuild
	case ForceBuildNoCache:
		p.Source = config.SourceBuild
		p.UseCache = false
	}
	p.RequiresBuild = p.Source == config.SourceBuild
	p.FallbackAllowed = p.Source == config.SourcePrebuilt && in.Force == ForceNone

	p.Mismatch = installed != "" && installed != DevVersion && installed != p.TargetVersion
	p.UpdateNeeded = in.Force != ForceNone || installed == "" || p.Mismatch

	switch {
	case p.Snapshot:
		key := "snapshot:" + cli
		if in.Seen == nil || !in.Seen.Seen(key) {
			p.Warning = snapshotWarning(cli, latest)
			p.WarningKey = key
		}
	case p.Mismatch && !in.SkipVersionCheck:
		if shouldWarn(in.Policy, in.Seen, p.TargetVersion) {
			p.Warning = fmt.Sprintf("image version %s does not match devcell %s; run 'devcell update' to switch", installed, p.TargetVersion)
			p.WarningKey = p.TargetVersion
		}
	}
	return p
}

func shouldWarn(policy config.CheckPolicy, seen SeenSet, target string) bool {
	switch policy {
	case config.CheckNever:
		return false
	case config.CheckOnce:
		return seen == nil || !seen.Seen(target)
	default:
		return true
	}
}

func snapshotWarning(cli, latest string) string {
	if latest == "" {
		return fmt.Sprintf("devcell %s is an unreleased build and no published image is known; the image will be built from source", cli)
	}
	return fmt.Sprintf("devcell %s is an unreleased build; using the latest published image %s", cli, latest)
}

// Normalize strips a leading "v" and surrounding whitespace.
func Normalize(v string) string {
	return strings.TrimPrefix(strings.TrimSpace(v), "v")
}

// IsSnapshot reports whether v names an unreleased build: "dev", a
// pre-release, dirty build metadata, or anything that is not semver.
func IsSnapshot(v string) bool {
	v = Normalize(v)
	if v == "" || strings.EqualFold(v, DevVersion) {
		return true
	}
	sv, err := semver.Parse(v)
	if err != nil {
		return true
	}
	if len(sv.Pre) > 0 {
		return true
	}
	for _, b := range sv.Build {
		if b == "dirty" {
			return true
		}
	}
	return false
}

// Newer reports whether candidate is a strictly newer release than current.
// Unparseable versions never compare as newer.
func Newer(candidate, current string) bool {
	c, err := semver.Parse(Normalize(candidate))
	if err != nil {
		return false
	}
	cur, err := semver.Parse(Normalize(current))
	if err != nil {
		return false
	}
	return c.GT(cur)
}
