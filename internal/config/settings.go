package config

import (
	"fmt"
	"time"
)

// ImageSource is the preferred way of acquiring the sandbox image.
type ImageSource string

const (
	SourcePrebuilt ImageSource = "prebuilt"
	SourceBuild    ImageSource = "build"
)

// CheckPolicy controls how often the version mismatch warning is shown.
type CheckPolicy string

const (
	CheckAlways CheckPolicy = "always"
	CheckOnce   CheckPolicy = "once"
	CheckNever  CheckPolicy = "never"
)

// Settings is the decoded form of settings.yaml plus DEVCELL_* overrides.
type Settings struct {
	Image     ImageSettings     `mapstructure:"image" yaml:"image"`
	Update    UpdateSettings    `mapstructure:"update" yaml:"update"`
	Container ContainerSettings `mapstructure:"container" yaml:"container"`
	Logging   LoggingSettings   `mapstructure:"logging" yaml:"logging"`
}

// ImageSettings selects where images come from.
type ImageSettings struct {
	Source ImageSource `mapstructure:"source" yaml:"source"`
	// Registries is the ordered list of registry namespaces, most preferred
	// first (e.g. "ghcr.io/schmitthub").
	Registries []string `mapstructure:"registries" yaml:"registries"`
	// Name is the remote repository name under every registry namespace.
	Name string `mapstructure:"name" yaml:"name"`
	// Repository is the local repository used for canonical and backup tags.
	Repository string `mapstructure:"repository" yaml:"repository"`
}

// UpdateSettings tunes the update pipeline.
type UpdateSettings struct {
	Check            CheckPolicy   `mapstructure:"check" yaml:"check"`
	PullTimeout      time.Duration `mapstructure:"pull_timeout" yaml:"pull_timeout"`
	HealthTimeout    time.Duration `mapstructure:"health_timeout" yaml:"health_timeout"`
	HealthInterval   time.Duration `mapstructure:"health_interval" yaml:"health_interval"`
	PurgeAfterUpdate bool          `mapstructure:"purge_after_update" yaml:"purge_after_update"`
}

// ContainerSettings describes the managed container. Mounts and Ports are
// only used when no container exists yet; swaps reuse the running
// container's configuration.
type ContainerSettings struct {
	Name   string   `mapstructure:"name" yaml:"name"`
	Mounts []string `mapstructure:"mounts" yaml:"mounts"`
	Ports  []string `mapstructure:"ports" yaml:"ports"`
	Env    []string `mapstructure:"env" yaml:"env"`
}

// LoggingSettings configures the rotating log file.
type LoggingSettings struct {
	FileEnabled *bool `mapstructure:"file_enabled" yaml:"file_enabled,omitempty"`
	MaxSizeMB   int   `mapstructure:"max_size_mb" yaml:"max_size_mb,omitempty"`
	MaxAgeDays  int   `mapstructure:"max_age_days" yaml:"max_age_days,omitempty"`
	MaxBackups  int   `mapstructure:"max_backups" yaml:"max_backups,omitempty"`
}

// Default values.
const (
	DefaultImageName      = "devcell"
	DefaultRepository     = "devcell/sandbox"
	DefaultContainerName  = "devcell"
	DefaultPullTimeout    = 10 * time.Minute
	DefaultHealthTimeout  = 60 * time.Second
	DefaultHealthInterval = 2 * time.Second
)

// DefaultRegistries is the built-in registry order: GHCR first, Docker Hub
// as fallback.
var DefaultRegistries = []string{"ghcr.io/schmitthub", "docker.io/schmitthub"}

// DefaultSettings returns the settings used when no file exists.
func DefaultSettings() *Settings {
	return &Settings{
		Image: ImageSettings{
			Source:     SourcePrebuilt,
			Registries: append([]string(nil), DefaultRegistries...),
			Name:       DefaultImageName,
			Repository: DefaultRepository,
		},
		Update: UpdateSettings{
			Check:            CheckAlways,
			PullTimeout:      DefaultPullTimeout,
			HealthTimeout:    DefaultHealthTimeout,
			HealthInterval:   DefaultHealthInterval,
			PurgeAfterUpdate: true,
		},
		Container: ContainerSettings{
			Name: DefaultContainerName,
		},
	}
}

// Validate checks enum values and durations.
func (s *Settings) Validate() error {
	switch s.Image.Source {
	case SourcePrebuilt, SourceBuild:
	default:
		return &ValidationError{Key: "image.source", Value: string(s.Image.Source), Allowed: "prebuilt, build"}
	}
	switch s.Update.Check {
	case CheckAlways, CheckOnce, CheckNever:
	default:
		return &ValidationError{Key: "update.check", Value: string(s.Update.Check), Allowed: "always, once, never"}
	}
	if len(s.Image.Registries) == 0 {
		return &ValidationError{Key: "image.registries", Value: "[]", Allowed: "at least one registry"}
	}
	if s.Image.Name == "" {
		return &ValidationError{Key: "image.name", Value: "", Allowed: "a repository name"}
	}
	if s.Update.PullTimeout <= 0 {
		return &ValidationError{Key: "update.pull_timeout", Value: s.Update.PullTimeout.String(), Allowed: "a positive duration"}
	}
	if s.Update.HealthInterval <= 0 || s.Update.HealthTimeout < s.Update.HealthInterval {
		return &ValidationError{
			Key:     "update.health_timeout",
			Value:   s.Update.HealthTimeout.String(),
			Allowed: "a duration no shorter than update.health_interval",
		}
	}
	if _, _, err := ParsePorts(s.Container.Ports); err != nil {
		return err
	}
	return nil
}

// ValidationError reports an invalid settings value.
type ValidationError struct {
	Key     string
	Value   string
	Allowed string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid value %q for %s (allowed: %s)", e.Value, e.Key, e.Allowed)
}
