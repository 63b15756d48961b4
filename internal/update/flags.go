package update

import (
	"strings"

	"github.com/schmitthub/devcell/internal/config"
	"github.com/schmitthub/devcell/internal/negotiate"
)

// ForceFromFlags maps the mutually exclusive --pull, --build and
// --build-no-cache flags to a negotiate.Force. Combining them is a
// ConfigurationError; callers check it before touching anything.
func ForceFromFlags(pull, build, buildNoCache bool) (negotiate.Force, error) {
	var set []string
	force := negotiate.ForceNone
	if pull {
		set = append(set, "--pull")
		force = negotiate.ForcePull
	}
	if build {
		set = append(set, "--build")
		force = negotiate.ForceBuild
	}
	if buildNoCache {
		set = append(set, "--build-no-cache")
		force = negotiate.ForceBuildNoCache
	}
	if len(set) > 1 {
		return negotiate.ForceNone, &ConfigurationError{
			Message: "only one of --pull, --build or --build-no-cache may be given (got " + strings.Join(set, ", ") + ")",
			Guidance: []string{
				"Use --pull to download the published image",
				"Use --build to build from the embedded definition, reusing cached layers",
				"Use --build-no-cache for a full rebuild",
			},
		}
	}
	return force, nil
}

// ForceForSource is what --force means without an explicit source flag:
// acquire again from the configured source.
func ForceForSource(source config.ImageSource) negotiate.Force {
	if source == config.SourceBuild {
		return negotiate.ForceBuild
	}
	return negotiate.ForcePull
}
