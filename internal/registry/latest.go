package registry

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/go-containerregistry/pkg/authn"
	"github.com/google/go-containerregistry/pkg/name"
	"github.com/google/go-containerregistry/pkg/v1/remote"

	"github.com/schmitthub/devcell/internal/docker"
	"github.com/schmitthub/devcell/internal/logger"
)

// LatestTag is the moving tag of the newest published image.
const LatestTag = "latest"

// VersionLookup reads the version label of the published latest image
// without pulling it.
type VersionLookup struct {
	Registries []string
	Repository string
	Tag        string

	// NameOptions and RemoteOptions are passed to go-containerregistry.
	NameOptions   []name.Option
	RemoteOptions []remote.Option
}

// NewVersionLookup returns a lookup using the default keychain.
func NewVersionLookup(registries []string, repository string) *VersionLookup {
	return &VersionLookup{
		Registries: registries,
		Repository: repository,
		Tag:        LatestTag,
		RemoteOptions: []remote.Option{
			remote.WithAuthFromKeychain(authn.DefaultKeychain),
		},
	}
}

// LatestVersion returns the version label of the first registry that answers.
// An image without a version label yields "".
func (l *VersionLookup) LatestVersion(ctx context.Context) (string, string, error) {
	var errs []error
	for _, reg := range l.Registries {
		v, err := l.versionFrom(ctx, reg)
		if err == nil {
			return v, reg, nil
		}
		if ctx.Err() != nil {
			return "", "", ctx.Err()
		}
		logger.Debug().Str("registry", reg).Err(err).Msg("latest version lookup failed")
		errs = append(errs, fmt.Errorf("%s: %w", reg, err))
	}
	if len(errs) == 0 {
		return "", "", errors.New("no registries configured")
	}
	return "", "", fmt.Errorf("looking up latest published version: %w", errors.Join(errs...))
}

func (l *VersionLookup) versionFrom(ctx context.Context, reg string) (string, error) {
	tag := l.Tag
	if tag == "" {
		tag = LatestTag
	}
	ref, err := name.ParseReference(docker.ImageRef{Registry: reg, Repository: l.Repository, Tag: tag}.String(), l.NameOptions...)
	if err != nil {
		return "", err
	}
	opts := append([]remote.Option{remote.WithContext(ctx)}, l.RemoteOptions...)
	img, err := remote.Image(ref, opts...)
	if err != nil {
		return "", err
	}
	cfg, err := img.ConfigFile()
	if err != nil {
		return "", err
	}
	return docker.VersionFromLabels(cfg.Config.Labels), nil
}
