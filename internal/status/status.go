// Package status reports what devcell image is installed and whether a newer
// one is known.
package status

import (
	"context"
	"errors"
	"time"

	"github.com/docker/go-units"
	"golang.org/x/sync/errgroup"

	"github.com/schmitthub/devcell/internal/config"
	"github.com/schmitthub/devcell/internal/docker"
	"github.com/schmitthub/devcell/internal/logger"
	"github.com/schmitthub/devcell/internal/negotiate"
	"github.com/schmitthub/devcell/internal/provenance"
)

// Images reads local image metadata.
type Images interface {
	ImageExists(ctx context.Context, ref string) (bool, error)
	ImageVersion(ctx context.Context, ref string) (string, error)
	ImageSize(ctx context.Context, ref string) (int64, error)
}

// Containers inspects the managed container.
type Containers interface {
	InspectContainer(ctx context.Context, name string) (*docker.ContainerState, bool, error)
}

// LatestLookup finds the newest published image version.
type LatestLookup interface {
	LatestVersion(ctx context.Context) (version, registry string, err error)
}

// Records loads the provenance record.
type Records interface {
	Load() (provenance.Record, error)
}

// Deps are the collaborators a Query reads from.
type Deps struct {
	Images     Images
	Containers Containers
	Latest     LatestLookup
	Records    Records
}

// Container is the managed container's state.
type Container struct {
	Name    string             `json:"name"`
	Exists  bool               `json:"exists"`
	Running bool               `json:"running"`
	Health  docker.HealthState `json:"health,omitempty"`
}

// Report is the result of a status query.
type Report struct {
	CLIVersion     string     `json:"cli_version"`
	Installed      bool       `json:"installed"`
	ImageVersion   string     `json:"image_version,omitempty"`
	ImageSize      int64      `json:"image_size_bytes,omitempty"`
	Source         string     `json:"source,omitempty"`
	AcquiredAt     *time.Time `json:"acquired_at,omitempty"`
	Latest         string     `json:"latest,omitempty"`
	LatestRegistry string     `json:"latest_registry,omitempty"`
	NewerAvailable bool       `json:"newer_available"`
	Mismatch       bool       `json:"mismatch"`
	HasBackup      bool       `json:"has_backup"`
	Container      Container  `json:"container"`
	// LookupError is set when the registries could not be asked for the
	// latest version. The rest of the report is still valid.
	LookupError string `json:"latest_error,omitempty"`
}

// HumanSize renders ImageSize, e.g. "536.9MB".
func (r *Report) HumanSize() string {
	if r.ImageSize <= 0 {
		return ""
	}
	return units.HumanSize(float64(r.ImageSize))
}

// Query gathers a Report. Local reads and the registry lookup run
// concurrently; only local read failures fail the query.
func Query(ctx context.Context, deps Deps, names config.Names, cliVersion string) (*Report, error) {
	report := &Report{
		CLIVersion: negotiate.Normalize(cliVersion),
		Container:  Container{Name: names.Container},
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		exists, err := deps.Images.ImageExists(gctx, names.Canonical)
		if err != nil || !exists {
			return err
		}
		report.Installed = true
		if report.ImageVersion, err = deps.Images.ImageVersion(gctx, names.Canonical); err != nil {
			return err
		}
		report.ImageSize, err = deps.Images.ImageSize(gctx, names.Canonical)
		return err
	})

	g.Go(func() error {
		var err error
		report.HasBackup, err = deps.Images.ImageExists(gctx, names.Backup)
		return err
	})

	g.Go(func() error {
		st, found, err := deps.Containers.InspectContainer(gctx, names.Container)
		if err != nil || !found {
			return err
		}
		report.Container.Exists = true
		report.Container.Running = st.Running
		report.Container.Health = st.Health
		return nil
	})

	g.Go(func() error {
		rec, err := deps.Records.Load()
		if errors.Is(err, provenance.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		report.Source = rec.Describe()
		at := rec.AcquiredAt
		report.AcquiredAt = &at
		return nil
	})

	// Registry trouble is reported, never fatal.
	var latest, latestRegistry string
	if deps.Latest != nil {
		g.Go(func() error {
			v, reg, err := deps.Latest.LatestVersion(gctx)
			if err != nil {
				logger.Debug().Err(err).Msg("latest version lookup failed")
				report.LookupError = err.Error()
				return nil
			}
			latest, latestRegistry = v, reg
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	report.Latest = latest
	report.LatestRegistry = latestRegistry
	if report.Installed {
		report.Mismatch = !negotiate.IsSnapshot(cliVersion) &&
			report.ImageVersion != negotiate.DevVersion &&
			negotiate.Normalize(report.ImageVersion) != report.CLIVersion
		report.NewerAvailable = latest != "" && negotiate.Newer(latest, report.ImageVersion)
	}
	return report, nil
}
