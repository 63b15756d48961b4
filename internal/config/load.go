package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Loader reads settings.yaml with DEVCELL_* environment overrides.
type Loader struct {
	path  string
	viper *viper.Viper
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithSettingsFile overrides the settings file location.
func WithSettingsFile(path string) LoaderOption {
	return func(l *Loader) {
		l.path = path
	}
}

// NewLoader creates a settings loader. The default file is SettingsFilePath().
func NewLoader(opts ...LoaderOption) *Loader {
	l := &Loader{
		path:  SettingsFilePath(),
		viper: newViperConfig(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func newViperConfig() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("DEVCELL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

// setDefaults registers every leaf key so AutomaticEnv can override it
// during Unmarshal.
func setDefaults(v *viper.Viper) {
	d := DefaultSettings()
	v.SetDefault("image.source", string(d.Image.Source))
	v.SetDefault("image.registries", d.Image.Registries)
	v.SetDefault("image.name", d.Image.Name)
	v.SetDefault("image.repository", d.Image.Repository)
	v.SetDefault("update.check", string(d.Update.Check))
	v.SetDefault("update.pull_timeout", d.Update.PullTimeout)
	v.SetDefault("update.health_timeout", d.Update.HealthTimeout)
	v.SetDefault("update.health_interval", d.Update.HealthInterval)
	v.SetDefault("update.purge_after_update", d.Update.PurgeAfterUpdate)
	v.SetDefault("container.name", d.Container.Name)
	v.SetDefault("container.mounts", []string{})
	v.SetDefault("container.ports", []string{})
	v.SetDefault("container.env", []string{})
	v.SetDefault("logging.max_size_mb", 0)
	v.SetDefault("logging.max_age_days", 0)
	v.SetDefault("logging.max_backups", 0)
}

// Path returns the settings file this loader reads.
func (l *Loader) Path() string {
	return l.path
}

// Load reads and validates the settings. A missing file is not an error:
// defaults and environment overrides apply.
func (l *Loader) Load() (*Settings, error) {
	if err := l.read(); err != nil {
		return nil, err
	}
	return decode(l.viper)
}

func (l *Loader) read() error {
	l.viper.SetConfigFile(l.path)
	if _, err := os.Stat(l.path); err == nil {
		if err := l.viper.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read settings file: %w", err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to stat settings file %s: %w", l.path, err)
	}
	return nil
}

func decode(v *viper.Viper) (*Settings, error) {
	var s Settings
	if err := v.Unmarshal(&s, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))); err != nil {
		return nil, fmt.Errorf("failed to parse settings file: %w", err)
	}

	s.Image.Source = ImageSource(strings.ToLower(string(s.Image.Source)))
	s.Update.Check = CheckPolicy(strings.ToLower(string(s.Update.Check)))

	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Get returns the effective value of key: the settings file, then
// DEVCELL_* overrides, then the default.
func (l *Loader) Get(key string) (any, error) {
	if !IsKnownKey(key) {
		return nil, &KeyNotFoundError{Key: key}
	}
	if err := l.read(); err != nil {
		return nil, err
	}
	return l.viper.Get(key), nil
}

// Set overrides a key for the lifetime of this loader. Call Write to persist.
func (l *Loader) Set(key string, value any) {
	l.viper.Set(key, value)
}
